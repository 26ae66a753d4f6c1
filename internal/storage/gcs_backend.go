package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"net/http"
	"time"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
)

// gcsBucketHandle abstracts a GCS bucket handle for testability.
type gcsBucketHandle interface {
	Objects(ctx context.Context, q *storage.Query) gcsObjectIterator
	Object(name string) gcsObjectHandle
	SignedURL(object string, opts *storage.SignedURLOptions) (string, error)
}

// gcsObjectIterator abstracts a GCS object iterator.
type gcsObjectIterator interface {
	Next() (*storage.ObjectAttrs, error)
}

// gcsObjectHandle abstracts a GCS object handle.
type gcsObjectHandle interface {
	NewReader(ctx context.Context) (io.ReadCloser, error)
	Write(ctx context.Context, body []byte, contentType string) (*storage.ObjectAttrs, error)
}

// realBucketHandle wraps *storage.BucketHandle to satisfy gcsBucketHandle.
type realBucketHandle struct{ bh *storage.BucketHandle }

func (r *realBucketHandle) Objects(ctx context.Context, q *storage.Query) gcsObjectIterator {
	return r.bh.Objects(ctx, q)
}

func (r *realBucketHandle) Object(name string) gcsObjectHandle {
	return &realObjectHandle{r.bh.Object(name)}
}

func (r *realBucketHandle) SignedURL(object string, opts *storage.SignedURLOptions) (string, error) {
	return r.bh.SignedURL(object, opts)
}

// realObjectHandle wraps *storage.ObjectHandle to satisfy gcsObjectHandle.
type realObjectHandle struct{ oh *storage.ObjectHandle }

func (r *realObjectHandle) NewReader(ctx context.Context) (io.ReadCloser, error) {
	return r.oh.NewReader(ctx)
}

func (r *realObjectHandle) Write(ctx context.Context, body []byte, contentType string) (*storage.ObjectAttrs, error) {
	w := r.oh.NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(body); err != nil {
		_ = w.Close()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return w.Attrs(), nil
}

// GCSBackend implements Store using Google Cloud Storage
type GCSBackend struct {
	bucket string
	handle gcsBucketHandle
	ttl    time.Duration
	now    func() time.Time
}

// NewGCSBackend creates a GCS backend using application default credentials
func NewGCSBackend(ctx context.Context, bucket string, ttl time.Duration) (*GCSBackend, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return newGCSBackend(bucket, &realBucketHandle{client.Bucket(bucket)}, ttl), nil
}

func newGCSBackend(bucket string, handle gcsBucketHandle, ttl time.Duration) *GCSBackend {
	return &GCSBackend{
		bucket: bucket,
		handle: handle,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Bucket returns the bucket name
func (g *GCSBackend) Bucket() string {
	return g.bucket
}

// Keys lists object names under prefix; the iterator pages internally
func (g *GCSBackend) Keys(ctx context.Context, prefix string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		it := g.handle.Objects(ctx, &storage.Query{Prefix: prefix})
		for {
			attrs, err := it.Next()
			if errors.Is(err, iterator.Done) {
				return
			}
			if err != nil {
				yield("", fmt.Errorf("failed to list gs://%s/%s: %w", g.bucket, prefix, err))
				return
			}
			if !yield(attrs.Name, nil) {
				return
			}
		}
	}
}

// Prefixes lists synthetic directory prefixes at the top of the bucket
func (g *GCSBackend) Prefixes(ctx context.Context, delimiter string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		it := g.handle.Objects(ctx, &storage.Query{Delimiter: delimiter})
		for {
			attrs, err := it.Next()
			if errors.Is(err, iterator.Done) {
				return
			}
			if err != nil {
				yield("", fmt.Errorf("failed to list prefixes of gs://%s: %w", g.bucket, err))
				return
			}
			// Objects at the top level come back with an empty Prefix
			if attrs.Prefix == "" {
				continue
			}
			if !yield(attrs.Prefix, nil) {
				return
			}
		}
	}
}

// Get downloads an object
func (g *GCSBackend) Get(ctx context.Context, key string) ([]byte, error) {
	r, err := g.handle.Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get object %q: %w", key, err)
	}
	defer func() { _ = r.Close() }()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read object %q: %w", key, err)
	}
	return data, nil
}

// Put uploads an object; GCS replaces objects atomically on writer close
func (g *GCSBackend) Put(ctx context.Context, key string, body []byte, contentType string) (*PutResult, error) {
	attrs, err := g.handle.Object(key).Write(ctx, body, contentType)
	if err != nil {
		return nil, fmt.Errorf("failed to put object %q: %w", key, err)
	}

	res := &PutResult{Bucket: g.bucket, Key: key}
	if attrs != nil {
		res.ETag = attrs.Etag
		if attrs.Generation != 0 {
			res.VersionID = fmt.Sprintf("%d", attrs.Generation)
		}
	}
	return res, nil
}

// Presign returns a V4 signed GET URL valid for the configured TTL
func (g *GCSBackend) Presign(_ context.Context, key string) (string, error) {
	url, err := g.handle.SignedURL(key, &storage.SignedURLOptions{
		Method:  http.MethodGet,
		Expires: g.now().Add(g.ttl),
		Scheme:  storage.SigningSchemeV4,
	})
	if err != nil {
		return "", fmt.Errorf("failed to sign %q: %w", key, err)
	}
	return url, nil
}
