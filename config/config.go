// Package config loads storekit settings from the environment and turns
// them into provider descriptors ready for registration.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"

	"github.com/storekit/storekit/provider"
	"github.com/storekit/storekit/upload"
)

// Config holds the settings for every configurable storage provider plus
// the shared image variant options.
type Config struct {
	DefaultProvider string

	LocalEnabled bool
	LocalRoot    string
	LocalBaseURL string

	S3Enabled   bool
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
	S3Endpoint  string
	S3PathStyle bool
	S3BaseURL   string

	SFTPEnabled       bool
	SFTPHost          string
	SFTPPort          int
	SFTPUser          string
	SFTPPassword      string
	SFTPPrivateKeyPEM string
	SFTPRoot          string
	SFTPBaseURL       string

	MemoryEnabled bool

	Images upload.ImageOptions
}

// LocalOptions is the descriptor payload for the local filesystem provider.
type LocalOptions struct {
	Root    string
	BaseURL string
	Images  upload.ImageOptions
}

// VariantOptions implements upload.VariantConfigurer.
func (o LocalOptions) VariantOptions() upload.ImageOptions { return o.Images }

// S3Options is the descriptor payload for the S3 provider.
type S3Options struct {
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	Endpoint  string
	PathStyle bool
	BaseURL   string
	Images    upload.ImageOptions
}

// VariantOptions implements upload.VariantConfigurer.
func (o S3Options) VariantOptions() upload.ImageOptions { return o.Images }

// SFTPOptions is the descriptor payload for the SFTP provider.
type SFTPOptions struct {
	Host          string
	Port          int
	User          string
	Password      string
	PrivateKeyPEM string
	Root          string
	BaseURL       string
	Images        upload.ImageOptions
}

// VariantOptions implements upload.VariantConfigurer.
func (o SFTPOptions) VariantOptions() upload.ImageOptions { return o.Images }

// MemoryOptions is the descriptor payload for the in-memory provider.
type MemoryOptions struct {
	Images upload.ImageOptions
}

// VariantOptions implements upload.VariantConfigurer.
func (o MemoryOptions) VariantOptions() upload.ImageOptions { return o.Images }

// Load reads configuration from the environment. When envFile is given the
// file is loaded first; a missing file is not an error so deployments can
// rely on real environment variables alone.
func Load(envFile ...string) (*Config, error) {
	if len(envFile) > 0 && envFile[0] != "" {
		if err := godotenv.Load(envFile[0]); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("load env file %s: %w", envFile[0], err)
		}
	}

	sizes, err := ParseSizes(cast.ToString(getOrReturnDefault("STOREKIT_IMAGE_SIZES", "")))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		DefaultProvider: cast.ToString(getOrReturnDefault("STOREKIT_DEFAULT_PROVIDER", "local")),

		LocalEnabled: cast.ToBool(getOrReturnDefault("STOREKIT_LOCAL_ENABLED", true)),
		LocalRoot:    cast.ToString(getOrReturnDefault("STOREKIT_LOCAL_ROOT", "./uploads")),
		LocalBaseURL: cast.ToString(getOrReturnDefault("STOREKIT_LOCAL_BASE_URL", "")),

		S3Enabled:   cast.ToBool(getOrReturnDefault("STOREKIT_S3_ENABLED", false)),
		S3Region:    cast.ToString(getOrReturnDefault("STOREKIT_S3_REGION", "us-east-1")),
		S3Bucket:    cast.ToString(getOrReturnDefault("STOREKIT_S3_BUCKET", "")),
		S3AccessKey: cast.ToString(getOrReturnDefault("STOREKIT_S3_ACCESS_KEY", "")),
		S3SecretKey: cast.ToString(getOrReturnDefault("STOREKIT_S3_SECRET_KEY", "")),
		S3Endpoint:  cast.ToString(getOrReturnDefault("STOREKIT_S3_ENDPOINT", "")),
		S3PathStyle: cast.ToBool(getOrReturnDefault("STOREKIT_S3_PATH_STYLE", false)),
		S3BaseURL:   cast.ToString(getOrReturnDefault("STOREKIT_S3_BASE_URL", "")),

		SFTPEnabled:       cast.ToBool(getOrReturnDefault("STOREKIT_SFTP_ENABLED", false)),
		SFTPHost:          cast.ToString(getOrReturnDefault("STOREKIT_SFTP_HOST", "")),
		SFTPPort:          cast.ToInt(getOrReturnDefault("STOREKIT_SFTP_PORT", 22)),
		SFTPUser:          cast.ToString(getOrReturnDefault("STOREKIT_SFTP_USER", "")),
		SFTPPassword:      cast.ToString(getOrReturnDefault("STOREKIT_SFTP_PASSWORD", "")),
		SFTPPrivateKeyPEM: cast.ToString(getOrReturnDefault("STOREKIT_SFTP_PRIVATE_KEY", "")),
		SFTPRoot:          cast.ToString(getOrReturnDefault("STOREKIT_SFTP_ROOT", "/")),
		SFTPBaseURL:       cast.ToString(getOrReturnDefault("STOREKIT_SFTP_BASE_URL", "")),

		MemoryEnabled: cast.ToBool(getOrReturnDefault("STOREKIT_MEMORY_ENABLED", false)),

		Images: upload.ImageOptions{
			CreateThumbnail:    cast.ToBool(getOrReturnDefault("STOREKIT_THUMBNAIL_ENABLED", true)),
			ThumbnailMaxWidth:  cast.ToInt(getOrReturnDefault("STOREKIT_THUMBNAIL_MAX_WIDTH", 200)),
			ThumbnailMaxHeight: cast.ToInt(getOrReturnDefault("STOREKIT_THUMBNAIL_MAX_HEIGHT", 200)),
			CreateCompressed:   cast.ToBool(getOrReturnDefault("STOREKIT_COMPRESSED_ENABLED", true)),
			CompressedMaxWidth: cast.ToInt(getOrReturnDefault("STOREKIT_COMPRESSED_MAX_WIDTH", 1200)),
			CompressedMaxHeight: cast.ToInt(
				getOrReturnDefault("STOREKIT_COMPRESSED_MAX_HEIGHT", 1200)),
			Quality:         cast.ToInt(getOrReturnDefault("STOREKIT_IMAGE_QUALITY", upload.DefaultQuality)),
			AdditionalSizes: sizes,
		},
	}
	return cfg, nil
}

// Descriptors converts the loaded configuration into provider descriptors
// for the enabled backends. Descriptor IDs double as factory keys.
func (c *Config) Descriptors() []provider.Descriptor {
	var out []provider.Descriptor

	if c.LocalEnabled {
		out = append(out, provider.Descriptor{
			ID:      "local",
			Name:    "Local Disk",
			Type:    "local",
			Default: c.DefaultProvider == "local",
			Options: LocalOptions{Root: c.LocalRoot, BaseURL: c.LocalBaseURL, Images: c.Images},
		})
	}
	if c.S3Enabled {
		out = append(out, provider.Descriptor{
			ID:      "s3",
			Name:    "Amazon S3",
			Type:    "s3",
			Default: c.DefaultProvider == "s3",
			Options: S3Options{
				Region:    c.S3Region,
				Bucket:    c.S3Bucket,
				AccessKey: c.S3AccessKey,
				SecretKey: c.S3SecretKey,
				Endpoint:  c.S3Endpoint,
				PathStyle: c.S3PathStyle,
				BaseURL:   c.S3BaseURL,
				Images:    c.Images,
			},
		})
	}
	if c.SFTPEnabled {
		out = append(out, provider.Descriptor{
			ID:      "sftp",
			Name:    "SFTP",
			Type:    "sftp",
			Default: c.DefaultProvider == "sftp",
			Options: SFTPOptions{
				Host:          c.SFTPHost,
				Port:          c.SFTPPort,
				User:          c.SFTPUser,
				Password:      c.SFTPPassword,
				PrivateKeyPEM: c.SFTPPrivateKeyPEM,
				Root:          c.SFTPRoot,
				BaseURL:       c.SFTPBaseURL,
				Images:        c.Images,
			},
		})
	}
	if c.MemoryEnabled {
		out = append(out, provider.Descriptor{
			ID:      "memory",
			Name:    "In-Memory",
			Type:    "memory",
			Default: c.DefaultProvider == "memory",
			Options: MemoryOptions{Images: c.Images},
		})
	}
	return out
}

// ParseSizes parses a custom size list of the form
// "small:320x240@70,banner:1200x400". The quality suffix is optional and
// falls back to the executor's configured quality when omitted.
func ParseSizes(raw string) ([]upload.SizeSpec, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}

	var specs []upload.SizeSpec
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name, dims, ok := strings.Cut(part, ":")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid size spec %q: want name:WxH[@quality]", part)
		}
		dims, quality, hasQuality := cutQuality(dims)
		w, h, ok := strings.Cut(dims, "x")
		if !ok {
			return nil, fmt.Errorf("invalid size spec %q: want name:WxH[@quality]", part)
		}
		spec := upload.SizeSpec{
			Name:      strings.TrimSpace(name),
			MaxWidth:  cast.ToInt(strings.TrimSpace(w)),
			MaxHeight: cast.ToInt(strings.TrimSpace(h)),
		}
		if spec.MaxWidth <= 0 || spec.MaxHeight <= 0 {
			return nil, fmt.Errorf("invalid size spec %q: dimensions must be positive", part)
		}
		if hasQuality {
			spec.Quality = cast.ToInt(strings.TrimSpace(quality))
		}
		specs = append(specs, spec)
	}
	return specs, nil
}

func cutQuality(dims string) (string, string, bool) {
	return strings.Cut(dims, "@")
}

func getOrReturnDefault(key string, defaultValue any) any {
	val, exists := os.LookupEnv(key)
	if exists {
		return val
	}
	return defaultValue
}
