package storage

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/sas"

	"github.com/storekit/storekit/upload"
)

// AzureConfig holds configuration for the Azure Blob Storage backend.
type AzureConfig struct {
	AccountName string // storage account name (required)
	AccountKey  string // storage account key (required)
	Container   string // blob container name (required)
	BaseURL     string // custom base URL for public access (optional)
}

// AzureStore persists blobs in an Azure Blob Storage container.
type AzureStore struct {
	client      *azblob.Client
	accountName string
	container   string
	baseURL     string
	keyCred     *azblob.SharedKeyCredential
}

// NewAzure creates an Azure Blob backend with shared-key authentication.
func NewAzure(config AzureConfig) (*AzureStore, error) {
	if config.AccountName == "" || config.AccountKey == "" || config.Container == "" {
		return nil, &upload.ConfigurationError{Subject: "azure storage", Reason: "account name, account key, and container are required"}
	}
	cred, err := azblob.NewSharedKeyCredential(config.AccountName, config.AccountKey)
	if err != nil {
		return nil, &upload.ConfigurationError{Subject: "azure storage", Reason: fmt.Sprintf("failed to create credentials: %v", err)}
	}
	serviceURL := fmt.Sprintf("https://%s.blob.core.windows.net/", config.AccountName)
	client, err := azblob.NewClientWithSharedKeyCredential(serviceURL, cred, nil)
	if err != nil {
		return nil, &upload.ConfigurationError{Subject: "azure storage", Reason: fmt.Sprintf("failed to create client: %v", err)}
	}
	return &AzureStore{
		client:      client,
		accountName: config.AccountName,
		container:   config.Container,
		baseURL:     config.BaseURL,
		keyCred:     cred,
	}, nil
}

// EnsureContainer creates the container when it does not exist yet. Run it
// under the descriptor's resolver lock so concurrent uploads against the
// same backend cannot race the creation.
func (a *AzureStore) EnsureContainer(ctx context.Context) error {
	_, err := a.client.CreateContainer(ctx, a.container, nil)
	if err != nil && !bloberror.HasCode(err, bloberror.ContainerAlreadyExists) {
		return fmt.Errorf("failed to create container %q: %w", a.container, err)
	}
	return nil
}

// Store uploads a blob to the container.
func (a *AzureStore) Store(ctx context.Context, location string, reader io.Reader, size int64, contentType string) (string, error) {
	key := strings.TrimPrefix(path.Clean(location), "/")

	var opts *azblob.UploadStreamOptions
	if contentType != "" {
		opts = &azblob.UploadStreamOptions{
			HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
		}
	}
	if _, err := a.client.UploadStream(ctx, a.container, key, reader, opts); err != nil {
		return "", fmt.Errorf("failed to upload to Azure Blob: %w", err)
	}
	return key, nil
}

// GetReader opens a stored blob for reading.
func (a *AzureStore) GetReader(ctx context.Context, location string) (io.ReadCloser, error) {
	resp, err := a.client.DownloadStream(ctx, a.container, location, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return nil, &upload.NotFoundError{Location: location}
		}
		return nil, fmt.Errorf("failed to download blob: %w", err)
	}
	return resp.Body, nil
}

// Delete removes a stored blob.
func (a *AzureStore) Delete(ctx context.Context, location string) error {
	if _, err := a.client.DeleteBlob(ctx, a.container, location, nil); err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return &upload.NotFoundError{Location: location}
		}
		return err
	}
	return nil
}

// Exists reports whether a blob is stored at the location.
func (a *AzureStore) Exists(ctx context.Context, location string) (bool, error) {
	blobClient := a.client.ServiceClient().NewContainerClient(a.container).NewBlobClient(location)
	_, err := blobClient.GetProperties(ctx, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// GetSize returns the stored size of a blob in bytes.
func (a *AzureStore) GetSize(ctx context.Context, location string) (int64, error) {
	blobClient := a.client.ServiceClient().NewContainerClient(a.container).NewBlobClient(location)
	props, err := blobClient.GetProperties(ctx, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound) {
			return 0, &upload.NotFoundError{Location: location}
		}
		return 0, err
	}
	if props.ContentLength == nil {
		return 0, fmt.Errorf("content length not available")
	}
	return *props.ContentLength, nil
}

// List returns the names of every blob under the prefix.
func (a *AzureStore) List(ctx context.Context, prefix string) ([]string, error) {
	var opts *azblob.ListBlobsFlatOptions
	if prefix != "" {
		opts = &azblob.ListBlobsFlatOptions{Prefix: &prefix}
	}
	var names []string
	pager := a.client.NewListBlobsFlatPager(a.container, opts)
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return nil, err
		}
		for _, item := range resp.Segment.BlobItems {
			names = append(names, *item.Name)
		}
	}
	return names, nil
}

// GetURL returns the public URL for a stored blob.
func (a *AzureStore) GetURL(location string) string {
	if a.baseURL != "" {
		return strings.TrimSuffix(a.baseURL, "/") + "/" + location
	}
	return fmt.Sprintf("https://%s.blob.core.windows.net/%s/%s", a.accountName, a.container, location)
}

// SignedURL generates a shared-access-signature GET URL.
func (a *AzureStore) SignedURL(ctx context.Context, location string, expiration time.Duration) (string, error) {
	perms := sas.BlobPermissions{Read: true}
	values := sas.BlobSignatureValues{
		Protocol:      sas.ProtocolHTTPS,
		ExpiryTime:    time.Now().UTC().Add(expiration),
		Permissions:   perms.String(),
		ContainerName: a.container,
		BlobName:      location,
	}
	params, err := values.SignWithSharedKey(a.keyCred)
	if err != nil {
		return "", fmt.Errorf("failed to sign blob URL: %w", err)
	}
	return a.GetURL(location) + "?" + params.Encode(), nil
}

// Info returns container metadata plus blob count and total size.
func (a *AzureStore) Info(ctx context.Context) (map[string]any, error) {
	info := map[string]any{
		"type":      "azure",
		"account":   a.accountName,
		"container": a.container,
	}
	var totalSize int64
	var count int
	pager := a.client.NewListBlobsFlatPager(a.container, nil)
	for pager.More() {
		resp, err := pager.NextPage(ctx)
		if err != nil {
			return info, err
		}
		for _, item := range resp.Segment.BlobItems {
			if item.Properties != nil && item.Properties.ContentLength != nil {
				totalSize += *item.Properties.ContentLength
			}
			count++
		}
	}
	info["totalSize"] = totalSize
	info["fileCount"] = count
	return info, nil
}

// Close is a no-op; the Azure client holds no connection state to release.
func (a *AzureStore) Close() error { return nil }
