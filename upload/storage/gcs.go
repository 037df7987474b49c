package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	gcstorage "cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	"github.com/storekit/storekit/upload"
)

// GCSConfig holds configuration for the Google Cloud Storage backend.
type GCSConfig struct {
	Bucket          string // GCS bucket name (required)
	ProjectID       string // GCP project ID (optional)
	CredentialsFile string // service account JSON file (optional, uses env if empty)
	BaseURL         string // custom base URL for public access (optional)
}

// GCSStore persists blobs in a Google Cloud Storage bucket.
type GCSStore struct {
	client  *gcstorage.Client
	bucket  string
	baseURL string
}

// NewGCS creates a GCS backend. Credentials come from the configured file
// or the ambient Google application default credentials.
func NewGCS(ctx context.Context, config GCSConfig) (*GCSStore, error) {
	if config.Bucket == "" {
		return nil, &upload.ConfigurationError{Subject: "gcs storage", Reason: "bucket name is required"}
	}

	var opts []option.ClientOption
	if config.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(config.CredentialsFile))
	}
	client, err := gcstorage.NewClient(ctx, opts...)
	if err != nil {
		return nil, &upload.ConfigurationError{Subject: "gcs storage", Reason: fmt.Sprintf("failed to create client: %v", err)}
	}
	return &GCSStore{client: client, bucket: config.Bucket, baseURL: config.BaseURL}, nil
}

// Store uploads a blob to the bucket.
func (g *GCSStore) Store(ctx context.Context, location string, reader io.Reader, size int64, contentType string) (string, error) {
	key := strings.TrimPrefix(path.Clean(location), "/")

	w := g.client.Bucket(g.bucket).Object(key).NewWriter(ctx)
	if contentType != "" {
		w.ContentType = contentType
	}
	if _, err := io.Copy(w, reader); err != nil {
		if closeErr := w.Close(); closeErr != nil {
			return "", fmt.Errorf("failed to write to GCS: %v, and failed to close writer: %v", err, closeErr)
		}
		return "", fmt.Errorf("failed to write to GCS: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("failed to close GCS writer: %w", err)
	}
	return key, nil
}

// GetReader opens a stored object for reading.
func (g *GCSStore) GetReader(ctx context.Context, location string) (io.ReadCloser, error) {
	reader, err := g.client.Bucket(g.bucket).Object(location).NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcstorage.ErrObjectNotExist) {
			return nil, &upload.NotFoundError{Location: location}
		}
		return nil, fmt.Errorf("failed to get object reader: %w", err)
	}
	return reader, nil
}

// Delete removes a stored object.
func (g *GCSStore) Delete(ctx context.Context, location string) error {
	if err := g.client.Bucket(g.bucket).Object(location).Delete(ctx); err != nil {
		if errors.Is(err, gcstorage.ErrObjectNotExist) {
			return &upload.NotFoundError{Location: location}
		}
		return err
	}
	return nil
}

// Exists reports whether an object is stored at the location.
func (g *GCSStore) Exists(ctx context.Context, location string) (bool, error) {
	_, err := g.client.Bucket(g.bucket).Object(location).Attrs(ctx)
	if err != nil {
		if errors.Is(err, gcstorage.ErrObjectNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// GetSize returns the stored size of an object in bytes.
func (g *GCSStore) GetSize(ctx context.Context, location string) (int64, error) {
	attrs, err := g.client.Bucket(g.bucket).Object(location).Attrs(ctx)
	if err != nil {
		if errors.Is(err, gcstorage.ErrObjectNotExist) {
			return 0, &upload.NotFoundError{Location: location}
		}
		return 0, err
	}
	return attrs.Size, nil
}

// List returns the names of every object under the prefix.
func (g *GCSStore) List(ctx context.Context, prefix string) ([]string, error) {
	var query *gcstorage.Query
	if prefix != "" {
		query = &gcstorage.Query{Prefix: prefix}
	}
	var names []string
	it := g.client.Bucket(g.bucket).Objects(ctx, query)
	for {
		attrs, err := it.Next()
		if err != nil {
			if err == iterator.Done {
				break
			}
			return nil, err
		}
		names = append(names, attrs.Name)
	}
	return names, nil
}

// GetURL returns the public URL for a stored object.
func (g *GCSStore) GetURL(location string) string {
	if g.baseURL != "" {
		return strings.TrimSuffix(g.baseURL, "/") + "/" + location
	}
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", g.bucket, location)
}

// SignedURL generates a signed GET URL. Requires credentials with a
// private key (service account JSON) or the GOOGLE_ACCESS_ID /
// GOOGLE_PRIVATE_KEY environment variables.
func (g *GCSStore) SignedURL(ctx context.Context, location string, expiration time.Duration) (string, error) {
	opts := &gcstorage.SignedURLOptions{
		GoogleAccessID: os.Getenv("GOOGLE_ACCESS_ID"),
		PrivateKey:     []byte(os.Getenv("GOOGLE_PRIVATE_KEY")),
		Method:         "GET",
		Expires:        time.Now().Add(expiration),
	}
	return g.client.Bucket(g.bucket).SignedURL(location, opts)
}

// Info returns bucket metadata plus object count and total size.
func (g *GCSStore) Info(ctx context.Context) (map[string]any, error) {
	info := map[string]any{
		"type":   "gcs",
		"bucket": g.bucket,
	}
	if attrs, err := g.client.Bucket(g.bucket).Attrs(ctx); err == nil {
		info["location"] = attrs.Location
		info["storageClass"] = attrs.StorageClass
	}
	var totalSize int64
	var count int
	it := g.client.Bucket(g.bucket).Objects(ctx, nil)
	for {
		attrs, err := it.Next()
		if err != nil {
			if err == iterator.Done {
				break
			}
			return info, err
		}
		totalSize += attrs.Size
		count++
	}
	info["totalSize"] = totalSize
	info["fileCount"] = count
	return info, nil
}

// Close releases the underlying client.
func (g *GCSStore) Close() error {
	return g.client.Close()
}
