package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"iter"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore/streaming"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blockblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/container"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"
)

// AzureConfig holds configuration for AzureBackend
type AzureConfig struct {
	Account    string
	Container  string
	AccountKey string
	// Endpoint overrides the account URL, e.g. http://127.0.0.1:10000/devstoreaccount1 for Azurite
	Endpoint   string
	PresignTTL time.Duration
}

// AzureBackend implements Store using Azure Blob Storage. SAS URLs are
// signed locally with the account shared key.
type AzureBackend struct {
	container *container.Client
	name      string
	ttl       time.Duration
	now       func() time.Time
}

// NewAzureBackend creates an Azure Blob backend authenticated with a shared key
func NewAzureBackend(cfg AzureConfig) (*AzureBackend, error) {
	if cfg.AccountKey == "" {
		return nil, fmt.Errorf("%w: azure account key is required to sign blob URLs", ErrMissingCredential)
	}

	cred, err := azblob.NewSharedKeyCredential(cfg.Account, cfg.AccountKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create azure credential: %w", err)
	}

	endpoint := cfg.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.blob.core.windows.net", cfg.Account)
	}
	containerURL := strings.TrimSuffix(endpoint, "/") + "/" + cfg.Container

	client, err := container.NewClientWithSharedKeyCredential(containerURL, cred, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create azure container client: %w", err)
	}

	return &AzureBackend{
		container: client,
		name:      cfg.Container,
		ttl:       cfg.PresignTTL,
		now:       time.Now,
	}, nil
}

// Bucket returns the container name
func (a *AzureBackend) Bucket() string {
	return a.name
}

// Keys lists blob names under prefix across all pages
func (a *AzureBackend) Keys(ctx context.Context, prefix string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		pager := a.container.NewListBlobsFlatPager(&container.ListBlobsFlatOptions{
			Prefix: to.Ptr(prefix),
		})
		for pager.More() {
			page, err := pager.NextPage(ctx)
			if err != nil {
				yield("", fmt.Errorf("failed to list azblob container %s/%s: %w", a.name, prefix, err))
				return
			}
			if page.Segment == nil {
				continue
			}
			for _, item := range page.Segment.BlobItems {
				if item == nil || item.Name == nil {
					continue
				}
				if !yield(*item.Name, nil) {
					return
				}
			}
		}
	}
}

// Prefixes lists virtual directories at the top of the container
func (a *AzureBackend) Prefixes(ctx context.Context, delimiter string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		pager := a.container.NewListBlobsHierarchyPager(delimiter, nil)
		for pager.More() {
			page, err := pager.NextPage(ctx)
			if err != nil {
				yield("", fmt.Errorf("failed to list prefixes of azblob container %s: %w", a.name, err))
				return
			}
			if page.Segment == nil {
				continue
			}
			for _, p := range page.Segment.BlobPrefixes {
				if p == nil || p.Name == nil {
					continue
				}
				if !yield(*p.Name, nil) {
					return
				}
			}
		}
	}
}

// Get downloads a blob
func (a *AzureBackend) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := a.container.NewBlobClient(key).DownloadStream(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get blob %q: %w", key, err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read blob %q: %w", key, err)
	}
	return data, nil
}

// Put uploads a block blob in a single request
func (a *AzureBackend) Put(ctx context.Context, key string, body []byte, contentType string) (*PutResult, error) {
	resp, err := a.container.NewBlockBlobClient(key).Upload(ctx,
		streaming.NopCloser(bytes.NewReader(body)),
		&blockblob.UploadOptions{
			HTTPHeaders: &blob.HTTPHeaders{BlobContentType: to.Ptr(contentType)},
		})
	if err != nil {
		return nil, fmt.Errorf("failed to put blob %q: %w", key, err)
	}

	res := &PutResult{Bucket: a.name, Key: key}
	if resp.ETag != nil {
		res.ETag = string(*resp.ETag)
	}
	if resp.VersionID != nil {
		res.VersionID = *resp.VersionID
	}
	return res, nil
}

// Presign returns a read-only SAS URL valid for the configured TTL
func (a *AzureBackend) Presign(_ context.Context, key string) (string, error) {
	url, err := a.container.NewBlobClient(key).GetSASURL(
		sas.BlobPermissions{Read: true},
		a.now().Add(a.ttl),
		nil,
	)
	if err != nil {
		return "", fmt.Errorf("failed to sign %q: %w", key, err)
	}
	return url, nil
}
