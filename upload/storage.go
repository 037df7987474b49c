package upload

import (
	"context"
	"io"
	"time"
)

// BlobStore is the byte-persistence primitive an executor composes with the
// variant pipeline. Implementations for local disk, S3, GCS, Azure Blob,
// SFTP and in-memory storage live in the storage subpackage.
//
// Locations use forward slashes on every backend. Filesystem-like backends
// must refuse locations that resolve outside their configured root with a
// SecurityError, and reads against unknown locations must return a
// NotFoundError rather than a generic I/O failure.
type BlobStore interface {
	// Store streams the reader's content to the given location and returns
	// the location the bytes were stored under. size is the declared length
	// in bytes, or -1 if unknown; contentType may be recorded by backends
	// that support it.
	Store(ctx context.Context, location string, reader io.Reader, size int64, contentType string) (string, error)

	// GetReader opens a stored object for reading. The caller closes the
	// returned reader.
	GetReader(ctx context.Context, location string) (io.ReadCloser, error)

	// Delete removes a stored object.
	Delete(ctx context.Context, location string) error

	// Exists reports whether an object is stored at the location.
	Exists(ctx context.Context, location string) (bool, error)

	// GetSize returns the stored size of an object in bytes.
	GetSize(ctx context.Context, location string) (int64, error)

	// List returns the locations of stored objects under the given prefix.
	// An empty prefix lists everything.
	List(ctx context.Context, prefix string) ([]string, error)

	// GetURL returns the public URL for a location, or an empty string if
	// the backend has no public access.
	GetURL(location string) string

	// SignedURL returns a pre-signed URL valid for the given duration, or
	// an error if the backend does not support signing.
	SignedURL(ctx context.Context, location string, expiration time.Duration) (string, error)

	// Info returns backend-specific metadata such as the bucket or root
	// path, object count and total size.
	Info(ctx context.Context) (map[string]any, error)

	// Close releases backend resources.
	Close() error
}
