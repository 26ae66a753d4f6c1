package storage

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newAzureTestBackend points an AzureBackend at a fake blob endpoint
func newAzureTestBackend(t *testing.T, handler http.HandlerFunc) *AzureBackend {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	b, err := NewAzureBackend(AzureConfig{
		Account:    "acct",
		Container:  "pkgs",
		AccountKey: base64.StdEncoding.EncodeToString([]byte("not-a-real-key")),
		Endpoint:   srv.URL,
		PresignTTL: time.Minute,
	})
	require.NoError(t, err)
	return b
}

func enumerationResults(w http.ResponseWriter, nextMarker, blobs string) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, `<?xml version="1.0" encoding="utf-8"?>
<EnumerationResults ServiceEndpoint="http://acct.blob.core.windows.net/" ContainerName="pkgs">%s<NextMarker>%s</NextMarker></EnumerationResults>`,
		blobs, nextMarker)
}

func TestAzureBackend_KeysDrainsAllPagesInOrder(t *testing.T) {
	var (
		mu      sync.Mutex
		markers []string
	)
	b := newAzureTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/pkgs", r.URL.Path)
		assert.Equal(t, "list", q.Get("comp"))
		assert.Equal(t, "demo/", q.Get("prefix"))
		assert.Empty(t, q.Get("delimiter"))

		marker := q.Get("marker")
		mu.Lock()
		markers = append(markers, marker)
		mu.Unlock()
		switch marker {
		case "":
			enumerationResults(w, "m2", `<Blobs>
<Blob><Name>demo/zeta-1.whl</Name></Blob>
<Blob><Name>demo/alpha-1.whl</Name></Blob>
</Blobs>`)
		case "m2":
			// a page with no Blobs element at all
			enumerationResults(w, "m3", "")
		case "m3":
			enumerationResults(w, "", `<Blobs>
<Blob><Deleted>false</Deleted></Blob>
<Blob><Name>demo/mid-1.whl</Name></Blob>
</Blobs>`)
		default:
			t.Errorf("unexpected marker %q", marker)
			w.WriteHeader(http.StatusBadRequest)
		}
	})

	keys, err := Collect(b.Keys(context.Background(), "demo/"))
	require.NoError(t, err)
	assert.Equal(t, []string{"demo/zeta-1.whl", "demo/alpha-1.whl", "demo/mid-1.whl"}, keys)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"", "m2", "m3"}, markers)
}

func TestAzureBackend_Prefixes(t *testing.T) {
	b := newAzureTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "list", q.Get("comp"))
		assert.Equal(t, "/", q.Get("delimiter"))

		switch q.Get("marker") {
		case "":
			enumerationResults(w, "p2", `<Blobs>
<BlobPrefix><Name>b/</Name></BlobPrefix>
<BlobPrefix><Name>a/</Name></BlobPrefix>
<Blob><Name>index.html</Name></Blob>
</Blobs>`)
		case "p2":
			enumerationResults(w, "", `<Blobs>
<BlobPrefix><Name>c/</Name></BlobPrefix>
<BlobPrefix></BlobPrefix>
</Blobs>`)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})

	prefixes, err := Collect(b.Prefixes(context.Background(), "/"))
	require.NoError(t, err)
	assert.Equal(t, []string{"b/", "a/", "c/"}, prefixes)
}

func TestAzureBackend_ListError(t *testing.T) {
	b := newAzureTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-ms-error-code", string(bloberror.AuthorizationFailure))
		w.Header().Set("Content-Type", "application/xml")
		w.WriteHeader(http.StatusForbidden)
		_, _ = io.WriteString(w, `<?xml version="1.0" encoding="utf-8"?><Error><Code>AuthorizationFailure</Code><Message>denied</Message></Error>`)
	})

	_, err := Collect(b.Keys(context.Background(), "demo/"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list azblob container pkgs/demo/")
	assert.True(t, bloberror.HasCode(err, bloberror.AuthorizationFailure))

	_, err = Collect(b.Prefixes(context.Background(), "/"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to list prefixes of azblob container pkgs")
}

func TestAzureBackend_Get(t *testing.T) {
	b := newAzureTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		if r.URL.Path != "/pkgs/demo/demo-1.0.whl" {
			w.Header().Set("x-ms-error-code", string(bloberror.BlobNotFound))
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/octet-stream")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, "wheel")
	})

	data, err := b.Get(context.Background(), "demo/demo-1.0.whl")
	require.NoError(t, err)
	assert.Equal(t, "wheel", string(data))

	_, err = b.Get(context.Background(), "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `failed to get blob "missing"`)
	assert.True(t, bloberror.HasCode(err, bloberror.BlobNotFound))
}

func TestAzureBackend_Put(t *testing.T) {
	b := newAzureTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/pkgs/index.html", r.URL.Path)
		assert.Equal(t, "BlockBlob", r.Header.Get("x-ms-blob-type"))
		assert.Equal(t, "text/html; charset=UTF-8", r.Header.Get("x-ms-blob-content-type"))

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		assert.Equal(t, "<html></html>", string(body))

		w.Header().Set("ETag", `"0x8DTEST"`)
		w.Header().Set("x-ms-version-id", "2030-01-01T00:00:00.0000000Z")
		w.WriteHeader(http.StatusCreated)
	})

	res, err := b.Put(context.Background(), "index.html", []byte("<html></html>"), "text/html; charset=UTF-8")
	require.NoError(t, err)
	assert.Equal(t, &PutResult{
		Bucket:    "pkgs",
		Key:       "index.html",
		ETag:      `"0x8DTEST"`,
		VersionID: "2030-01-01T00:00:00.0000000Z",
	}, res)
}

func TestAzureBackend_PutError(t *testing.T) {
	b := newAzureTestBackend(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("x-ms-error-code", string(bloberror.AuthorizationFailure))
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := b.Put(context.Background(), "index.html", []byte("x"), "text/html")
	require.Error(t, err)
	assert.Contains(t, err.Error(), `failed to put blob "index.html"`)
}
