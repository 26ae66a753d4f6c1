// Package storagetest provides an in-memory storage.Store for tests.
package storagetest

import (
	"context"
	"fmt"
	"iter"
	"net/url"
	"strings"
	"sync"

	"simpleindex/internal/storage"
)

var _ storage.Store = (*Store)(nil)

// Store is an in-memory storage.Store. Keys are listed in insertion order so
// tests can assert that callers never re-sort.
type Store struct {
	Name string

	// ListErr, GetErr, PutErr and PresignErr force failures when set
	ListErr    error
	GetErr     error
	PutErr     error
	PresignErr error

	mu       sync.Mutex
	order    []string
	objects  map[string][]byte
	types    map[string]string
	prefixes []string
	puts     int
	signed   []string
}

// New creates an empty store named bucket
func New(bucket string) *Store {
	return &Store{
		Name:    bucket,
		objects: map[string][]byte{},
		types:   map[string]string{},
	}
}

// Add stores an object without counting it as a Put
func (s *Store) Add(key string, body string) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; !ok {
		s.order = append(s.order, key)
	}
	s.objects[key] = []byte(body)
	return s
}

// SetPrefixes overrides the common prefixes returned by Prefixes. Without it
// prefixes are derived from stored keys.
func (s *Store) SetPrefixes(prefixes ...string) *Store {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prefixes = prefixes
	return s
}

// Object returns the stored body and content type of key
func (s *Store) Object(key string) (string, string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	body, ok := s.objects[key]
	return string(body), s.types[key], ok
}

// Puts returns the number of Put calls that succeeded
func (s *Store) Puts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.puts
}

// Signed returns every key passed to Presign
func (s *Store) Signed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.signed...)
}

// Bucket implements storage.Store
func (s *Store) Bucket() string {
	return s.Name
}

// Keys implements storage.Store
func (s *Store) Keys(_ context.Context, prefix string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if s.ListErr != nil {
			yield("", s.ListErr)
			return
		}
		s.mu.Lock()
		keys := append([]string(nil), s.order...)
		s.mu.Unlock()
		for _, k := range keys {
			if !strings.HasPrefix(k, prefix) {
				continue
			}
			if !yield(k, nil) {
				return
			}
		}
	}
}

// Prefixes implements storage.Store
func (s *Store) Prefixes(_ context.Context, delimiter string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		if s.ListErr != nil {
			yield("", s.ListErr)
			return
		}
		s.mu.Lock()
		prefixes := s.prefixes
		if prefixes == nil {
			seen := map[string]bool{}
			for _, k := range s.order {
				head, _, found := strings.Cut(k, delimiter)
				if !found || seen[head] {
					continue
				}
				seen[head] = true
				prefixes = append(prefixes, head+delimiter)
			}
		}
		s.mu.Unlock()
		for _, p := range prefixes {
			if !yield(p, nil) {
				return
			}
		}
	}
}

// Get implements storage.Store
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	if s.GetErr != nil {
		return nil, s.GetErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	body, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("no such key %q", key)
	}
	return append([]byte(nil), body...), nil
}

// Put implements storage.Store
func (s *Store) Put(_ context.Context, key string, body []byte, contentType string) (*storage.PutResult, error) {
	if s.PutErr != nil {
		return nil, s.PutErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[key]; !ok {
		s.order = append(s.order, key)
	}
	s.objects[key] = append([]byte(nil), body...)
	s.types[key] = contentType
	s.puts++
	return &storage.PutResult{
		Bucket: s.Name,
		Key:    key,
		ETag:   fmt.Sprintf(`"%d"`, s.puts),
	}, nil
}

// Presign implements storage.Store with a deterministic fake URL
func (s *Store) Presign(_ context.Context, key string) (string, error) {
	if s.PresignErr != nil {
		return "", s.PresignErr
	}
	s.mu.Lock()
	s.signed = append(s.signed, key)
	s.mu.Unlock()
	return SignedURL(s.Name, key), nil
}

// SignedURL is the URL the fake store returns for key
func SignedURL(bucket, key string) string {
	return "https://" + bucket + ".example.test/" + key + "?sig=" + url.QueryEscape(key)
}
