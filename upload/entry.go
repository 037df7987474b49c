package upload

import "time"

// Variant classifications recorded on FileEntry.Variant. A custom rendition
// is classified under its configured size name instead.
const (
	VariantOriginal   = "original"
	VariantCompressed = "compressed"
	VariantThumbnail  = "thumbnails"
)

// Metadata keys the variant pipeline writes onto the primary entry so
// callers can find renditions without listing the backend.
const (
	MetaThumbnail  = "thumbnail"
	MetaCompressed = "compressed"
	MetaSizes      = "sizes"
)

// RenditionContentType is the fixed content type of every generated
// rendition. The pipeline always re-encodes renditions as JPEG.
const RenditionContentType = "image/jpeg"

// FileEntry describes one stored artifact: the primary upload or one of its
// derived renditions. The identity, location and size are fixed once the
// entry is created; the metadata map may be enriched afterwards by callers.
// The struct is flat and JSON-serializable so an external metadata store can
// persist it as-is.
type FileEntry struct {
	ID           string            `json:"id"`
	Name         string            `json:"name"`
	OriginalName string            `json:"originalName"`
	Location     string            `json:"location"`
	Category     string            `json:"category"`
	Size         int64             `json:"size"`
	ContentType  string            `json:"contentType"`
	Extension    string            `json:"extension"`
	Metadata     map[string]string `json:"metadata,omitempty"`
	UploadedAt   time.Time         `json:"uploadedAt"`
	LastAccessed time.Time         `json:"lastAccessed"`
	Variant      string            `json:"variant"`
	Encrypted    bool              `json:"encrypted"`
	Provider     string            `json:"provider"`
	Deleted      bool              `json:"deleted"`
	Relations    []EntityRelation  `json:"relations,omitempty"`
}

// EntityRelation links a FileEntry to an owning entity. Relations are
// appended by LinkToEntity and copied wholesale onto each rendition at
// creation time; the facade never removes them.
type EntityRelation struct {
	EntityID   string    `json:"entityId"`
	EntityName string    `json:"entityName"`
	InUse      bool      `json:"inUse"`
	Notes      string    `json:"notes,omitempty"`
	LinkedAt   time.Time `json:"linkedAt"`
}
