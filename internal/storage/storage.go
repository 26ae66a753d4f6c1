package storage

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"
)

// Store is the object store the index is served from
type Store interface {
	// Keys yields every object key under prefix, draining all listing pages
	// in the store's order. Each call starts a fresh listing.
	Keys(ctx context.Context, prefix string) iter.Seq2[string, error]

	// Prefixes yields the distinct first-level common prefixes (including
	// the trailing delimiter) across all listing pages
	Prefixes(ctx context.Context, delimiter string) iter.Seq2[string, error]

	// Get reads a whole object
	Get(ctx context.Context, key string) ([]byte, error)

	// Put writes a whole object, replacing any previous content
	Put(ctx context.Context, key string, body []byte, contentType string) (*PutResult, error)

	// Presign returns a time-limited GET URL for key. Existence is not checked.
	Presign(ctx context.Context, key string) (string, error)

	// Bucket names the bucket or container being served
	Bucket() string
}

var (
	_ Store = (*S3Backend)(nil)
	_ Store = (*GCSBackend)(nil)
	_ Store = (*AzureBackend)(nil)
)

// PutResult describes a completed write
type PutResult struct {
	Bucket    string `json:"bucket"`
	Key       string `json:"key"`
	ETag      string `json:"etag,omitempty"`
	VersionID string `json:"version_id,omitempty"`
}

// Collect drains seq into a slice, preserving order and stopping at the first error
func Collect(seq iter.Seq2[string, error]) ([]string, error) {
	var out []string
	for v, err := range seq {
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Scheme identifies a storage backend
type Scheme string

const (
	SchemeS3    Scheme = "s3"
	SchemeGCS   Scheme = "gs"
	SchemeAzure Scheme = "azblob"
)

// Location is a parsed bucket identifier
type Location struct {
	Scheme  Scheme
	Account string // Azure storage account, empty otherwise
	Bucket  string
}

// ParseLocation parses a bucket identifier. A bare name is an S3 bucket.
func ParseLocation(raw string) (Location, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Location{}, fmt.Errorf("%w: empty bucket", ErrInvalidLocation)
	}

	scheme, rest, found := strings.Cut(raw, "://")
	if !found {
		return Location{Scheme: SchemeS3, Bucket: raw}, nil
	}
	rest = strings.Trim(rest, "/")

	switch Scheme(scheme) {
	case SchemeS3, SchemeGCS:
		if rest == "" || strings.Contains(rest, "/") {
			return Location{}, fmt.Errorf("%w: %q", ErrInvalidLocation, raw)
		}
		return Location{Scheme: Scheme(scheme), Bucket: rest}, nil
	case SchemeAzure:
		account, container, ok := strings.Cut(rest, "/")
		if !ok || account == "" || container == "" || strings.Contains(container, "/") {
			return Location{}, fmt.Errorf("%w: %q (want azblob://account/container)", ErrInvalidLocation, raw)
		}
		return Location{Scheme: SchemeAzure, Account: account, Bucket: container}, nil
	default:
		return Location{}, fmt.Errorf("%w: %q", ErrUnsupportedScheme, scheme)
	}
}

// Config selects and configures a backend
type Config struct {
	Bucket          string
	Region          string
	Endpoint        string // Optional custom endpoint (MinIO, LocalStack, Azurite)
	PresignTTL      time.Duration
	AzureAccountKey string
}

// Open creates the backend named by cfg.Bucket
func Open(ctx context.Context, cfg Config) (Store, error) {
	loc, err := ParseLocation(cfg.Bucket)
	if err != nil {
		return nil, err
	}
	if cfg.PresignTTL <= 0 {
		return nil, ErrInvalidTTL
	}

	switch loc.Scheme {
	case SchemeS3:
		b, err := NewS3Backend(ctx, S3Config{
			Bucket:     loc.Bucket,
			Region:     cfg.Region,
			Endpoint:   cfg.Endpoint,
			PresignTTL: cfg.PresignTTL,
		})
		if err != nil {
			return nil, err
		}
		return b, nil
	case SchemeGCS:
		b, err := NewGCSBackend(ctx, loc.Bucket, cfg.PresignTTL)
		if err != nil {
			return nil, err
		}
		return b, nil
	case SchemeAzure:
		b, err := NewAzureBackend(AzureConfig{
			Account:    loc.Account,
			Container:  loc.Bucket,
			AccountKey: cfg.AzureAccountKey,
			Endpoint:   cfg.Endpoint,
			PresignTTL: cfg.PresignTTL,
		})
		if err != nil {
			return nil, err
		}
		return b, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, loc.Scheme)
	}
}
