package upload

// DefaultQuality is the JPEG quality used when a rendition leaves its
// quality unset (zero or negative).
const DefaultQuality = 75

// SizeSpec configures one custom-named rendition. Name doubles as the
// rendition folder and the variant classification of the resulting entry.
type SizeSpec struct {
	Name      string `json:"name"`
	MaxWidth  int    `json:"maxWidth"`
	MaxHeight int    `json:"maxHeight"`
	Quality   int    `json:"quality"`
}

// ImageOptions configures the variant pipeline. All fields are optional;
// with everything disabled the pipeline stores the original and nothing else.
type ImageOptions struct {
	CreateThumbnail     bool       `json:"createThumbnail"`
	ThumbnailMaxWidth   int        `json:"thumbnailMaxWidth"`
	ThumbnailMaxHeight  int        `json:"thumbnailMaxHeight"`
	CreateCompressed    bool       `json:"createCompressed"`
	CompressedMaxWidth  int        `json:"compressedMaxWidth"`
	CompressedMaxHeight int        `json:"compressedMaxHeight"`
	Quality             int        `json:"quality"`
	AdditionalSizes     []SizeSpec `json:"additionalSizes,omitempty"`
}

// VariantConfigurer is implemented by descriptor payloads that carry an
// image-processing block, so hot-swapped configuration can be delivered to
// a live executor without the executor knowing the payload's full shape.
type VariantConfigurer interface {
	VariantOptions() ImageOptions
}

func (o ImageOptions) enabled() bool {
	return o.CreateThumbnail || o.CreateCompressed || len(o.AdditionalSizes) > 0
}

// clampQuality keeps a configured quality inside the encoder's valid range.
// Out-of-range values are clamped, never rejected; unset values fall back
// to DefaultQuality.
func clampQuality(q int) int {
	switch {
	case q <= 0:
		return DefaultQuality
	case q > 100:
		return 100
	}
	return q
}
