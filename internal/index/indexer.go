package index

import (
	"context"
	"fmt"
	"strings"
	"time"

	"simpleindex/internal/logger"
	"simpleindex/internal/storage"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	// IndexKey is where the cached root index lives
	IndexKey = "index.html"
	// RootTitle is the title of the root index
	RootTitle = "Simple index"
	// Separator splits package names from artifact names in storage keys
	Separator = "/"
)

// Indexer builds index pages from an object store
type Indexer struct {
	store       storage.Store
	concurrency int
	logger      *logger.Logger
}

// NewIndexer creates an indexer. concurrency bounds in-flight presign calls
// per package page; values below one mean one.
func NewIndexer(store storage.Store, concurrency int, log *logger.Logger) *Indexer {
	if concurrency < 1 {
		concurrency = 1
	}
	return &Indexer{
		store:       store,
		concurrency: concurrency,
		logger:      log,
	}
}

// RootIndex serves the cached root index object as stored
func (ix *Indexer) RootIndex(ctx context.Context) (Response, error) {
	body, err := ix.store.Get(ctx, IndexKey)
	if err != nil {
		return Response{}, fmt.Errorf("failed to read root index: %w", err)
	}
	return OK(string(body), ""), nil
}

// PackageIndex lists every artifact under name/ and links each one through a
// freshly signed URL, in listing order
func (ix *Indexer) PackageIndex(ctx context.Context, name string) (Response, error) {
	keys, err := storage.Collect(ix.store.Keys(ctx, name+Separator))
	if err != nil {
		return Response{}, fmt.Errorf("failed to list package %q: %w", name, err)
	}

	hrefs, err := ix.presignAll(ctx, keys)
	if err != nil {
		return Response{}, fmt.Errorf("failed to sign artifacts of %q: %w", name, err)
	}

	anchors := make([]string, len(keys))
	for i, key := range keys {
		anchors[i] = RenderAnchor(hrefs[i], baseName(key))
	}

	ix.logger.WithFields(logrus.Fields{
		"package":   name,
		"artifacts": len(keys),
	}).Debug("Built package index")

	return OK(RenderIndex("Links for "+name, anchors), ""), nil
}

// presignAll signs keys concurrently; hrefs[i] always belongs to keys[i]
func (ix *Indexer) presignAll(ctx context.Context, keys []string) ([]string, error) {
	hrefs := make([]string, len(keys))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(ix.concurrency)

	for i, key := range keys {
		g.Go(func() error {
			url, err := ix.store.Presign(gctx, key)
			if err != nil {
				return err
			}
			hrefs[i] = url
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return hrefs, nil
}

// WriteResult describes a completed reindex
type WriteResult struct {
	storage.PutResult
	Packages int           `json:"packages"`
	Bytes    int           `json:"bytes"`
	Duration time.Duration `json:"duration_ns"`
}

// ReindexBucket regenerates the cached root index from the store's
// top-level prefixes and overwrites IndexKey with it
func (ix *Indexer) ReindexBucket(ctx context.Context) (*WriteResult, error) {
	start := time.Now()

	prefixes, err := storage.Collect(ix.store.Prefixes(ctx, Separator))
	if err != nil {
		return nil, fmt.Errorf("failed to list packages: %w", err)
	}

	anchors := make([]string, len(prefixes))
	for i, prefix := range prefixes {
		pkg := strings.Trim(prefix, Separator)
		anchors[i] = RenderAnchor(pkg, pkg)
	}
	body := RenderIndex(RootTitle, anchors)

	put, err := ix.store.Put(ctx, IndexKey, []byte(body), DefaultContentType+"; charset=UTF-8")
	if err != nil {
		return nil, fmt.Errorf("failed to write root index: %w", err)
	}

	res := &WriteResult{
		PutResult: *put,
		Packages:  len(prefixes),
		Bytes:     len(body),
		Duration:  time.Since(start),
	}

	ix.logger.WithFields(logrus.Fields{
		"bucket":   res.Bucket,
		"key":      res.Key,
		"packages": res.Packages,
		"bytes":    res.Bytes,
	}).Info("Reindexed bucket")

	return res, nil
}

// baseName returns the last path segment of key; a key ending in the
// separator yields ""
func baseName(key string) string {
	return key[strings.LastIndex(key, Separator)+1:]
}
