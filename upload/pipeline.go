package upload

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"io"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"

	// Registered so webp uploads can be decoded for variant generation;
	// renditions are always re-encoded as JPEG.
	_ "golang.org/x/image/webp"
)

// Folder classes an upload is addressed under, gated by its extension.
const (
	folderImages = "Images"
	folderOthers = "Others"
)

// imageExtensions is the fixed set of extensions classified as images.
// Only classified uploads are eligible for variant generation.
var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
	".webp": true,
	".tif":  true,
	".tiff": true,
}

// BlobExecutor implements Executor by composing the variant pipeline with a
// BlobStore. It is the reference executor: every backend is one of these
// wrapped around a different store.
type BlobExecutor struct {
	name  string
	store BlobStore

	mu   sync.RWMutex // guards opts against hot swaps
	opts ImageOptions
}

// NewBlobExecutor creates an executor named after its backend descriptor.
// The name is recorded as the owning provider on every entry it creates.
func NewBlobExecutor(name string, store BlobStore, opts ImageOptions) *BlobExecutor {
	return &BlobExecutor{name: name, store: store, opts: opts}
}

// Name returns the backend name recorded on created entries.
func (e *BlobExecutor) Name() string { return e.name }

// Options returns the current image-processing settings.
func (e *BlobExecutor) Options() ImageOptions {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.opts
}

// UpdateOptions implements the hot-reload capability. It accepts an
// ImageOptions value, a pointer to one, or any payload implementing
// VariantConfigurer; anything else is a ConfigurationError.
func (e *BlobExecutor) UpdateOptions(options any) error {
	var opts ImageOptions
	switch v := options.(type) {
	case ImageOptions:
		opts = v
	case *ImageOptions:
		if v == nil {
			return &ConfigurationError{Subject: e.name, Reason: "nil image options"}
		}
		opts = *v
	case VariantConfigurer:
		opts = v.VariantOptions()
	default:
		return &ConfigurationError{
			Subject: e.name,
			Reason:  fmt.Sprintf("unsupported options payload %T", options),
		}
	}
	e.mu.Lock()
	e.opts = opts
	e.mu.Unlock()
	return nil
}

// Create stores the file under {category}/{entityTag}/{Images|Others}/ and
// returns the primary entry.
func (e *BlobExecutor) Create(ctx context.Context, file File, category string, entityTag ...string) (*FileEntry, error) {
	return e.createOriginal(ctx, file, category, firstTag(entityTag), nil)
}

// CreateForEntity stores the file addressed under the entity's type name,
// invokes the entity's attachment capability when present, and links the
// entry to the entity.
func (e *BlobExecutor) CreateForEntity(ctx context.Context, entity any, file File, category string) (*FileEntry, error) {
	// Resolve the identifier up front so validation fails before any
	// bytes are written.
	if _, err := resolveEntityID(entity); err != nil {
		return nil, err
	}

	entry, err := e.createOriginal(ctx, file, category, entityTypeName(entity), nil)
	if err != nil {
		return nil, err
	}
	if err := attachAndLink(entry, entity); err != nil {
		return nil, err
	}
	return entry, nil
}

// CreateWithVariants stores the file and, when it classifies as an image
// and variant generation is enabled, derives the configured renditions. A
// rendition that fails to decode, resize or persist is skipped; bytes
// already written for other renditions are not rolled back.
func (e *BlobExecutor) CreateWithVariants(ctx context.Context, file File, category string, entityTag ...string) (*FileEntry, []FileEntry, error) {
	return e.createWithVariants(ctx, file, category, firstTag(entityTag), nil)
}

// CreateForEntityWithVariants runs the full pipeline for an entity upload;
// the entity relation recorded on the primary is copied onto every
// rendition.
func (e *BlobExecutor) CreateForEntityWithVariants(ctx context.Context, entity any, file File, category string) (*FileEntry, []FileEntry, error) {
	if _, err := resolveEntityID(entity); err != nil {
		return nil, nil, err
	}
	return e.createWithVariants(ctx, file, category, entityTypeName(entity), entity)
}

// Open reads back a stored artifact by location.
func (e *BlobExecutor) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	return e.store.GetReader(ctx, location)
}

// Remove deletes a stored artifact by location.
func (e *BlobExecutor) Remove(ctx context.Context, location string) error {
	return e.store.Delete(ctx, location)
}

func (e *BlobExecutor) createWithVariants(ctx context.Context, file File, category, entityTag string, entity any) (*FileEntry, []FileEntry, error) {
	opts := e.Options()

	// Images are teed into memory while the original streams to the
	// backend, so the source is decoded exactly once even though the
	// upload stream is single-pass. Non-images never buffer.
	var buffer *bytes.Buffer
	if file != nil && isImageName(file.Name()) && opts.enabled() {
		buffer = &bytes.Buffer{}
	}

	primary, err := e.createOriginal(ctx, file, category, entityTag, buffer)
	if err != nil {
		return nil, nil, err
	}
	if entity != nil {
		if err := attachAndLink(primary, entity); err != nil {
			return nil, nil, err
		}
	}
	if buffer == nil {
		return primary, nil, nil
	}

	src, err := imaging.Decode(bytes.NewReader(buffer.Bytes()))
	if err != nil {
		if obs := getObserver(); obs != nil {
			obs.OnUploadError(ctx, primary.OriginalName, "variant decode failed: "+err.Error())
		}
		return primary, nil, nil
	}

	var (
		variants []FileEntry
		sizes    []string
	)
	for _, spec := range renditionSpecs(opts) {
		// Cooperative cancellation: abort before the next rendition is
		// described, leaving already-flushed bytes in place.
		if err := ctx.Err(); err != nil {
			return primary, variants, err
		}

		variant, err := e.renderVariant(ctx, src, spec, primary)
		if err != nil {
			if obs := getObserver(); obs != nil {
				obs.OnUploadError(ctx, primary.OriginalName, fmt.Sprintf("rendition %s failed: %v", spec.folder, err))
			}
			continue
		}
		variants = append(variants, *variant)

		switch spec.folder {
		case VariantCompressed:
			primary.Metadata[MetaCompressed] = variant.Location
		case VariantThumbnail:
			primary.Metadata[MetaThumbnail] = variant.Location
		default:
			sizes = append(sizes, spec.folder+":"+variant.Location)
		}
	}
	if len(sizes) > 0 {
		primary.Metadata[MetaSizes] = strings.Join(sizes, ";")
	}

	return primary, variants, nil
}

// createOriginal streams the upload to the backend unmodified and builds
// the primary entry. When tee is non-nil the payload is mirrored into it
// for later decoding.
func (e *BlobExecutor) createOriginal(ctx context.Context, file File, category, entityTag string, tee *bytes.Buffer) (*FileEntry, error) {
	if file == nil {
		return nil, &ValidationError{Field: "file", Reason: "is nil"}
	}
	if strings.TrimSpace(category) == "" {
		return nil, &ValidationError{Field: "category", Reason: "must not be empty"}
	}

	originalName := file.Name()
	ext := strings.ToLower(path.Ext(originalName))
	class := folderOthers
	if imageExtensions[ext] {
		class = folderImages
	}

	id := uuid.NewString()
	name := id + "-" + sanitizeStem(originalName, path.Ext(originalName)) + ext
	location := joinLocation(category, entityTag, class, name)

	rc, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open upload %q: %w", originalName, err)
	}
	defer rc.Close()

	var reader io.Reader = rc
	if tee != nil {
		reader = io.TeeReader(rc, tee)
	}

	start := time.Now()
	if obs := getObserver(); obs != nil {
		obs.OnUploadStart(ctx, originalName, file.Size())
	}

	stored, err := e.store.Store(ctx, location, reader, file.Size(), file.ContentType())
	if err != nil {
		if obs := getObserver(); obs != nil {
			obs.OnUploadError(ctx, originalName, err.Error())
		}
		return nil, err
	}

	size := file.Size()
	if tee != nil {
		size = int64(tee.Len())
	}

	if obs := getObserver(); obs != nil {
		obs.OnUploadEnd(ctx, originalName, size, time.Since(start), true)
	}

	now := time.Now()
	return &FileEntry{
		ID:           id,
		Name:         name,
		OriginalName: originalName,
		Location:     stored,
		Category:     category,
		Size:         size,
		ContentType:  file.ContentType(),
		Extension:    ext,
		Metadata:     map[string]string{},
		UploadedAt:   now,
		LastAccessed: now,
		Variant:      VariantOriginal,
		Provider:     e.name,
	}, nil
}

// renderVariant resizes the decoded source to fit the rendition's box,
// re-encodes it as JPEG and persists it under the rendition folder.
func (e *BlobExecutor) renderVariant(ctx context.Context, src image.Image, spec renditionSpec, primary *FileEntry) (*FileEntry, error) {
	start := time.Now()

	// Fit scales down preserving aspect ratio and never upscales past the
	// source's native size.
	resized := imaging.Fit(src, spec.maxWidth, spec.maxHeight, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(clampQuality(spec.quality))); err != nil {
		return nil, err
	}

	name := strings.TrimSuffix(primary.Name, primary.Extension) + ".jpg"
	location := path.Join(path.Dir(primary.Location), spec.folder, name)

	stored, err := e.store.Store(ctx, location, bytes.NewReader(buf.Bytes()), int64(buf.Len()), RenditionContentType)
	if err != nil {
		return nil, err
	}

	if obs := getObserver(); obs != nil {
		obs.OnVariantGenerated(ctx, spec.folder, stored, int64(buf.Len()), time.Since(start))
	}

	now := time.Now()
	return &FileEntry{
		ID:           uuid.NewString(),
		Name:         name,
		OriginalName: primary.OriginalName,
		Location:     stored,
		Category:     primary.Category,
		Size:         int64(buf.Len()),
		ContentType:  RenditionContentType,
		Extension:    ".jpg",
		Metadata:     map[string]string{},
		UploadedAt:   now,
		LastAccessed: now,
		Variant:      spec.folder,
		Provider:     e.name,
		Relations:    cloneRelations(primary.Relations),
	}, nil
}

type renditionSpec struct {
	folder    string
	maxWidth  int
	maxHeight int
	quality   int
}

// renditionSpecs expands the enabled renditions in a fixed order:
// compressed, thumbnails, then custom sizes as configured. Custom sizes
// with a blank name or non-positive box are ignored.
func renditionSpecs(opts ImageOptions) []renditionSpec {
	var specs []renditionSpec
	if opts.CreateCompressed && opts.CompressedMaxWidth > 0 && opts.CompressedMaxHeight > 0 {
		specs = append(specs, renditionSpec{VariantCompressed, opts.CompressedMaxWidth, opts.CompressedMaxHeight, opts.Quality})
	}
	if opts.CreateThumbnail && opts.ThumbnailMaxWidth > 0 && opts.ThumbnailMaxHeight > 0 {
		specs = append(specs, renditionSpec{VariantThumbnail, opts.ThumbnailMaxWidth, opts.ThumbnailMaxHeight, opts.Quality})
	}
	for _, size := range opts.AdditionalSizes {
		name := strings.TrimSpace(size.Name)
		if name == "" || size.MaxWidth <= 0 || size.MaxHeight <= 0 {
			continue
		}
		specs = append(specs, renditionSpec{sanitizeStem(name, ""), size.MaxWidth, size.MaxHeight, size.Quality})
	}
	return specs
}

func attachAndLink(entry *FileEntry, entity any) error {
	if attacher, ok := entity.(FileAttacher); ok {
		if err := attacher.AttachFile(entry); err != nil {
			return fmt.Errorf("attach file to entity: %w", err)
		}
	}
	return LinkToEntity(entry, entity)
}

func isImageName(name string) bool {
	return imageExtensions[strings.ToLower(path.Ext(name))]
}

func firstTag(tags []string) string {
	if len(tags) > 0 {
		return tags[0]
	}
	return ""
}

// joinLocation builds a forward-slash address, dropping empty segments
// such as an absent entity tag.
func joinLocation(segments ...string) string {
	parts := segments[:0:0]
	for _, s := range segments {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return path.Join(parts...)
}

// sanitizeStem reduces an original file name to characters safe across all
// backend naming rules. Everything outside letters, digits, '-', '_' and
// '.' is dropped; an empty result falls back to "file".
func sanitizeStem(name, ext string) string {
	stem := strings.TrimSuffix(path.Base(name), ext)
	var b strings.Builder
	for _, r := range stem {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '-' || r == '_' || r == '.':
			b.WriteRune(r)
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "file"
	}
	return out
}

func cloneRelations(relations []EntityRelation) []EntityRelation {
	if len(relations) == 0 {
		return nil
	}
	out := make([]EntityRelation, len(relations))
	copy(out, relations)
	return out
}
