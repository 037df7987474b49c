// Package upload provides a backend-agnostic file storage facade: callers
// upload a file under a logical category and get back structured metadata
// for the primary artifact and its derived image renditions, without
// depending on any particular storage SDK.
//
// Features:
//   - Pluggable byte-persistence backends (local disk, S3, GCS, Azure Blob,
//     SFTP, in-memory) behind the BlobStore interface
//   - A shared variant pipeline deriving compressed, thumbnail and
//     custom-size renditions from image uploads
//   - Deterministic artifact addressing with traversal-safe locations
//   - Entity linking with idempotent relation records
//
// Example:
//
//	store := storage.NewMemory()
//	exec := upload.NewBlobExecutor("memory", store, upload.ImageOptions{
//	    CreateThumbnail:    true,
//	    ThumbnailMaxWidth:  200,
//	    ThumbnailMaxHeight: 200,
//	})
//
//	primary, variants, err := exec.CreateWithVariants(ctx, file, "Users", "Avatar")
package upload

import (
	"context"
	"io"
)

// Executor performs upload and variant operations against one configured
// backend. Every implementation runs the same variant pipeline on top of
// its own byte-persistence medium.
type Executor interface {
	// Create stores the file under the category and returns the primary
	// entry. An optional entity tag becomes the second address segment.
	Create(ctx context.Context, file File, category string, entityTag ...string) (*FileEntry, error)

	// CreateForEntity stores the file, attaches it to the entity when the
	// entity implements FileAttacher, and records an entity relation on the
	// returned entry. The entity's type name becomes the address tag.
	CreateForEntity(ctx context.Context, entity any, file File, category string) (*FileEntry, error)

	// CreateWithVariants stores the file and, for image uploads, derives
	// the configured renditions. Non-image uploads return an empty variant
	// list.
	CreateWithVariants(ctx context.Context, file File, category string, entityTag ...string) (*FileEntry, []FileEntry, error)

	// CreateForEntityWithVariants combines CreateForEntity and
	// CreateWithVariants: every rendition carries the entity relations
	// recorded on the primary.
	CreateForEntityWithVariants(ctx context.Context, entity any, file File, category string) (*FileEntry, []FileEntry, error)

	// Open reads back a stored artifact by its location.
	Open(ctx context.Context, location string) (io.ReadCloser, error)

	// Remove deletes a stored artifact by its location.
	Remove(ctx context.Context, location string) error
}

// OptionsReloader is the optional hot-reload capability. Executors that
// implement it receive configuration swaps pushed through the provider
// registry; delivery is type-checked, not blindly cast.
type OptionsReloader interface {
	UpdateOptions(options any) error
}

// FileAttacher is the optional file-attachment capability an entity may
// implement to be told about its primary entry at upload time.
type FileAttacher interface {
	AttachFile(entry *FileEntry) error
}

// EntityWithID short-circuits reflective identifier lookup for entities
// that can state their own identity.
type EntityWithID interface {
	EntityID() string
}
