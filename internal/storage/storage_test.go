package storage

import (
	"context"
	"encoding/base64"
	"errors"
	"iter"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLocation(t *testing.T) {
	tests := []struct {
		raw  string
		want Location
	}{
		{"pkgs", Location{Scheme: SchemeS3, Bucket: "pkgs"}},
		{"s3://pkgs", Location{Scheme: SchemeS3, Bucket: "pkgs"}},
		{"s3://pkgs/", Location{Scheme: SchemeS3, Bucket: "pkgs"}},
		{"gs://pkgs", Location{Scheme: SchemeGCS, Bucket: "pkgs"}},
		{"azblob://acct/pkgs", Location{Scheme: SchemeAzure, Account: "acct", Bucket: "pkgs"}},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseLocation(tt.raw)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseLocation_Errors(t *testing.T) {
	for _, raw := range []string{"", "s3://", "gs://a/b", "azblob://acct", "azblob://acct/c/d"} {
		_, err := ParseLocation(raw)
		assert.ErrorIs(t, err, ErrInvalidLocation, raw)
	}

	_, err := ParseLocation("ftp://pkgs")
	assert.ErrorIs(t, err, ErrUnsupportedScheme)
}

func TestOpen_Validation(t *testing.T) {
	_, err := Open(context.Background(), Config{Bucket: "gs://pkgs"})
	assert.ErrorIs(t, err, ErrInvalidTTL)

	_, err = Open(context.Background(), Config{Bucket: "azblob://acct/pkgs", PresignTTL: time.Minute})
	assert.ErrorIs(t, err, ErrMissingCredential)
}

func seqOf(values []string, failAt int) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for i, v := range values {
			if i == failAt {
				yield("", errors.New("page failed"))
				return
			}
			if !yield(v, nil) {
				return
			}
		}
	}
}

func TestCollect(t *testing.T) {
	got, err := Collect(seqOf([]string{"c", "a", "b"}, -1))
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "a", "b"}, got)

	got, err = Collect(seqOf(nil, -1))
	require.NoError(t, err)
	assert.Empty(t, got)

	_, err = Collect(seqOf([]string{"a", "b"}, 1))
	assert.EqualError(t, err, "page failed")
}

func TestAzureBackend_PresignSignsLocally(t *testing.T) {
	key := base64.StdEncoding.EncodeToString([]byte("not-a-real-key"))
	b, err := NewAzureBackend(AzureConfig{
		Account:    "acct",
		Container:  "pkgs",
		AccountKey: key,
		PresignTTL: 15 * time.Minute,
	})
	require.NoError(t, err)
	assert.Equal(t, "pkgs", b.Bucket())

	fixed := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return fixed }

	raw, err := b.Presign(context.Background(), "demo/demo-1.0.tar.gz")
	require.NoError(t, err)

	u, err := url.Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, "acct.blob.core.windows.net", u.Host)
	assert.Equal(t, "/pkgs/demo/demo-1.0.tar.gz", u.Path)
	q := u.Query()
	assert.Equal(t, "r", q.Get("sp"))
	assert.Equal(t, "2030-01-01T00:15:00Z", q.Get("se"))
	assert.NotEmpty(t, q.Get("sig"))
}
