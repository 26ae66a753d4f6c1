package metrics

import (
	"context"
	"iter"
	"time"

	"simpleindex/internal/storage"
)

// instrumentedStore records every store call
type instrumentedStore struct {
	next storage.Store
	m    *Metrics
}

// InstrumentStore wraps s so each call is counted and timed. Listings are
// observed once, when the caller stops iterating.
func (m *Metrics) InstrumentStore(s storage.Store) storage.Store {
	return &instrumentedStore{next: s, m: m}
}

func (s *instrumentedStore) Bucket() string {
	return s.next.Bucket()
}

func (s *instrumentedStore) Keys(ctx context.Context, prefix string) iter.Seq2[string, error] {
	return s.observeSeq("list_keys", s.next.Keys(ctx, prefix))
}

func (s *instrumentedStore) Prefixes(ctx context.Context, delimiter string) iter.Seq2[string, error] {
	return s.observeSeq("list_prefixes", s.next.Prefixes(ctx, delimiter))
}

func (s *instrumentedStore) Get(ctx context.Context, key string) ([]byte, error) {
	start := time.Now()
	data, err := s.next.Get(ctx, key)
	s.m.observeStore("get", start, err)
	return data, err
}

func (s *instrumentedStore) Put(ctx context.Context, key string, body []byte, contentType string) (*storage.PutResult, error) {
	start := time.Now()
	res, err := s.next.Put(ctx, key, body, contentType)
	s.m.observeStore("put", start, err)
	return res, err
}

func (s *instrumentedStore) Presign(ctx context.Context, key string) (string, error) {
	start := time.Now()
	url, err := s.next.Presign(ctx, key)
	s.m.observeStore("presign", start, err)
	return url, err
}

func (s *instrumentedStore) observeSeq(op string, seq iter.Seq2[string, error]) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		start := time.Now()
		var failed error
		defer func() { s.m.observeStore(op, start, failed) }()

		for v, err := range seq {
			if err != nil {
				failed = err
			}
			if !yield(v, err) {
				return
			}
		}
	}
}
