// Package devbucket serves a local directory as a single S3 bucket, enough of
// the path-style REST API for the index to list, read, write and presign
// against it during development.
package devbucket

import (
	"bufio"
	"crypto/md5"
	"encoding/hex"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"simpleindex/internal/logger"

	"github.com/gorilla/mux"
)

const (
	defaultMaxKeys = 1000
	s3Namespace    = "http://s3.amazonaws.com/doc/2006-03-01/"
	// uploadPrefix marks in-progress PutObject temp files, which are never listed
	uploadPrefix   = ".upload-"
)

// ErrInvalidKey is returned for keys that would escape the root directory
var ErrInvalidKey = errors.New("invalid object key")

// Bucket is a directory exposed as an S3 bucket
type Bucket struct {
	root   string
	name   string
	logger *logger.Logger
	router *mux.Router
}

// New creates a bucket named name rooted at dir
func New(dir, name string, log *logger.Logger) *Bucket {
	b := &Bucket{
		root:   dir,
		name:   name,
		logger: log,
		router: mux.NewRouter(),
	}
	b.setupRoutes()
	return b
}

// Handler returns the HTTP handler
func (b *Bucket) Handler() http.Handler {
	return b.router
}

func (b *Bucket) setupRoutes() {
	b.router.SkipClean(true)
	b.router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods("GET")
	b.router.HandleFunc("/{bucket}", b.handleList).Methods("GET")
	b.router.HandleFunc("/{bucket}/", b.handleList).Methods("GET")
	b.router.HandleFunc("/{bucket}/{key:.+}", b.handleGet).Methods("GET", "HEAD")
	b.router.HandleFunc("/{bucket}/{key:.+}", b.handlePut).Methods("PUT")
}

type listBucketResult struct {
	XMLName               xml.Name       `xml:"ListBucketResult"`
	Xmlns                 string         `xml:"xmlns,attr"`
	Name                  string         `xml:"Name"`
	Prefix                string         `xml:"Prefix"`
	Delimiter             string         `xml:"Delimiter,omitempty"`
	StartAfter            string         `xml:"StartAfter,omitempty"`
	ContinuationToken     string         `xml:"ContinuationToken,omitempty"`
	NextContinuationToken string         `xml:"NextContinuationToken,omitempty"`
	KeyCount              int            `xml:"KeyCount"`
	MaxKeys               int            `xml:"MaxKeys"`
	IsTruncated           bool           `xml:"IsTruncated"`
	Contents              []object       `xml:"Contents"`
	CommonPrefixes        []commonPrefix `xml:"CommonPrefixes"`
}

type object struct {
	Key          string `xml:"Key"`
	LastModified string `xml:"LastModified"`
	ETag         string `xml:"ETag"`
	Size         int64  `xml:"Size"`
	StorageClass string `xml:"StorageClass"`
}

type commonPrefix struct {
	Prefix string `xml:"Prefix"`
}

type errorResponse struct {
	XMLName   xml.Name `xml:"Error"`
	Code      string   `xml:"Code"`
	Message   string   `xml:"Message"`
	Resource  string   `xml:"Resource,omitempty"`
	RequestID string   `xml:"RequestId"`
}

func (b *Bucket) checkBucket(w http.ResponseWriter, r *http.Request) bool {
	if mux.Vars(r)["bucket"] != b.name {
		writeError(w, http.StatusNotFound, "NoSuchBucket", "The specified bucket does not exist", mux.Vars(r)["bucket"])
		return false
	}
	return true
}

// handleList implements ListObjectsV2 with prefix, delimiter, max-keys and
// continuation tokens. The token is the last key or prefix returned.
func (b *Bucket) handleList(w http.ResponseWriter, r *http.Request) {
	if !b.checkBucket(w, r) {
		return
	}
	q := r.URL.Query()
	if q.Get("list-type") != "2" {
		writeError(w, http.StatusNotImplemented, "NotImplemented", "Only ListObjectsV2 is supported", "")
		return
	}

	prefix := q.Get("prefix")
	delimiter := q.Get("delimiter")
	maxKeys := defaultMaxKeys
	if v := q.Get("max-keys"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "InvalidArgument", "max-keys must be a non-negative integer", "")
			return
		}
		maxKeys = n
	}
	after := q.Get("start-after")
	token := q.Get("continuation-token")
	if token != "" {
		after = token
	}

	objects, err := b.walk(prefix)
	if err != nil {
		b.logger.Errorf("Failed to walk %s: %v", b.root, err)
		writeError(w, http.StatusInternalServerError, "InternalError", err.Error(), "")
		return
	}

	res := listBucketResult{
		Xmlns:             s3Namespace,
		Name:              b.name,
		Prefix:            prefix,
		Delimiter:         delimiter,
		StartAfter:        q.Get("start-after"),
		ContinuationToken: token,
		MaxKeys:           maxKeys,
	}

	var last string
	entries := collapse(objects, prefix, delimiter)
	if maxKeys == 0 {
		entries = nil
	}
	for _, e := range entries {
		if after != "" && e.name() <= after {
			continue
		}
		if res.KeyCount == maxKeys {
			res.IsTruncated = true
			res.NextContinuationToken = last
			break
		}
		if e.prefix != "" {
			res.CommonPrefixes = append(res.CommonPrefixes, commonPrefix{Prefix: e.prefix})
		} else {
			res.Contents = append(res.Contents, e.object)
		}
		res.KeyCount++
		last = e.name()
	}

	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, xml.Header)
	_ = xml.NewEncoder(w).Encode(res)
}

// entry is either an object or a rolled up common prefix
type entry struct {
	object object
	prefix string
}

func (e entry) name() string {
	if e.prefix != "" {
		return e.prefix
	}
	return e.object.Key
}

// collapse rolls keys sharing prefix+...+delimiter into one common prefix.
// objects must be sorted; the result stays sorted.
func collapse(objects []object, prefix, delimiter string) []entry {
	var out []entry
	for _, obj := range objects {
		if delimiter != "" {
			rest := obj.Key[len(prefix):]
			if i := strings.Index(rest, delimiter); i >= 0 {
				p := prefix + rest[:i+len(delimiter)]
				if n := len(out); n > 0 && out[n-1].prefix == p {
					continue
				}
				out = append(out, entry{prefix: p})
				continue
			}
		}
		out = append(out, entry{object: obj})
	}
	return out
}

// walk returns every object whose key starts with prefix, sorted by key
func (b *Bucket) walk(prefix string) ([]object, error) {
	var objects []object
	err := filepath.WalkDir(b.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), uploadPrefix) {
			return nil
		}
		rel, err := filepath.Rel(b.root, p)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if !strings.HasPrefix(key, prefix) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		etag, _ := fileMD5Hex(p)
		objects = append(objects, object{
			Key:          key,
			LastModified: info.ModTime().UTC().Format(time.RFC3339),
			ETag:         fmt.Sprintf("%q", etag),
			Size:         info.Size(),
			StorageClass: "STANDARD",
		})
		return nil
	})
	sort.Slice(objects, func(i, j int) bool { return objects[i].Key < objects[j].Key })
	return objects, err
}

// handleGet serves GetObject and HeadObject
func (b *Bucket) handleGet(w http.ResponseWriter, r *http.Request) {
	if !b.checkBucket(w, r) {
		return
	}
	key := mux.Vars(r)["key"]
	full, err := b.resolve(key)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidArgument", err.Error(), key)
		return
	}

	fi, err := os.Stat(full)
	if err != nil || fi.IsDir() {
		writeError(w, http.StatusNotFound, "NoSuchKey", "The specified key does not exist.", key)
		return
	}

	writeHead(w, full, fi)
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}

	f, err := os.Open(full)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "InternalError", err.Error(), key)
		return
	}
	defer f.Close()
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, f)
}

// handlePut serves PutObject, writing through a temp file and rename
func (b *Bucket) handlePut(w http.ResponseWriter, r *http.Request) {
	if !b.checkBucket(w, r) {
		return
	}
	key := mux.Vars(r)["key"]
	full, err := b.resolve(key)
	if err != nil {
		writeError(w, http.StatusBadRequest, "InvalidArgument", err.Error(), key)
		return
	}

	var body io.Reader = r.Body
	if strings.Contains(r.Header.Get("Content-Encoding"), "aws-chunked") {
		body = newChunkedReader(r.Body)
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		writeError(w, http.StatusInternalServerError, "InternalError", err.Error(), key)
		return
	}
	tmp, err := os.CreateTemp(filepath.Dir(full), uploadPrefix+"*")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "InternalError", err.Error(), key)
		return
	}
	h := md5.New()
	_, err = io.Copy(io.MultiWriter(tmp, h), body)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), full)
	}
	if err != nil {
		_ = os.Remove(tmp.Name())
		if errors.Is(err, io.ErrUnexpectedEOF) {
			writeError(w, http.StatusBadRequest, "IncompleteBody", "The request body ended before the final chunk", key)
			return
		}
		writeError(w, http.StatusInternalServerError, "InternalError", err.Error(), key)
		return
	}

	b.logger.Debugf("Stored %s/%s", b.name, key)
	w.Header().Set("ETag", fmt.Sprintf("%q", hex.EncodeToString(h.Sum(nil))))
	w.WriteHeader(http.StatusOK)
}

// resolve maps a key to a path under root
func (b *Bucket) resolve(key string) (string, error) {
	clean := path.Clean("/" + key)
	if clean == "/" || strings.HasSuffix(key, "/") {
		return "", fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return filepath.Join(b.root, filepath.FromSlash(clean[1:])), nil
}

func fileMD5Hex(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := md5.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func writeHead(w http.ResponseWriter, full string, fi os.FileInfo) {
	ctype := mime.TypeByExtension(filepath.Ext(full))
	if ctype == "" {
		ctype = "application/octet-stream"
	}
	w.Header().Set("Content-Type", ctype)
	w.Header().Set("Content-Length", strconv.FormatInt(fi.Size(), 10))
	w.Header().Set("Last-Modified", fi.ModTime().UTC().Format(http.TimeFormat))
	if etag, err := fileMD5Hex(full); err == nil {
		w.Header().Set("ETag", fmt.Sprintf("%q", etag))
	}
}

func writeError(w http.ResponseWriter, status int, code, message, resource string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, xml.Header)
	_ = xml.NewEncoder(w).Encode(errorResponse{
		Code:      code,
		Message:   message,
		Resource:  resource,
		RequestID: strconv.FormatInt(time.Now().UnixNano(), 36),
	})
}

// chunkedReader decodes an aws-chunked body: hex-size[;ext]\r\n data \r\n,
// terminated by a zero-size chunk and optional trailers.
type chunkedReader struct {
	r         *bufio.Reader
	remaining int64
	done      bool
}

func newChunkedReader(r io.Reader) *chunkedReader {
	return &chunkedReader{r: bufio.NewReader(r)}
}

func (c *chunkedReader) Read(p []byte) (int, error) {
	for c.remaining == 0 {
		if c.done {
			return 0, io.EOF
		}
		if err := c.nextChunk(); err != nil {
			return 0, err
		}
	}

	if int64(len(p)) > c.remaining {
		p = p[:c.remaining]
	}
	n, err := c.r.Read(p)
	c.remaining -= int64(n)
	if err != nil {
		// The zero-size chunk has not been seen yet
		return n, unexpectedEOF(err)
	}
	if c.remaining == 0 {
		if _, err := c.r.Discard(2); err != nil {
			return n, unexpectedEOF(err)
		}
	}
	return n, nil
}

func unexpectedEOF(err error) error {
	if errors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}

func (c *chunkedReader) nextChunk() error {
	line, err := c.r.ReadString('\n')
	if err != nil {
		return fmt.Errorf("malformed aws-chunked body: %w", unexpectedEOF(err))
	}
	line = strings.TrimSpace(line)
	if i := strings.IndexByte(line, ';'); i >= 0 {
		line = line[:i]
	}
	size, err := strconv.ParseInt(line, 16, 64)
	if err != nil {
		return fmt.Errorf("malformed aws-chunked size %q: %w", line, err)
	}
	if size == 0 {
		c.done = true
		// Trailers are not stored
		_, _ = io.Copy(io.Discard, c.r)
		return nil
	}
	c.remaining = size
	return nil
}
