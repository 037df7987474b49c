// Package storage implements the byte-persistence backends for the upload
// package: local disk, Amazon S3, Google Cloud Storage, Azure Blob, SFTP
// and an in-memory fake, all behind the upload.BlobStore interface.
package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/storekit/storekit/upload"
)

// LocalStore persists blobs on the local filesystem. Every location is
// confined to the configured root; a location that resolves outside it is
// refused with a SecurityError rather than corrected.
type LocalStore struct {
	root    string
	baseURL string
}

// NewLocal creates a local backend rooted at the given directory, with an
// optional base URL for public access.
func NewLocal(root string, baseURL ...string) (*LocalStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, &upload.ConfigurationError{Subject: "local storage", Reason: "root path is required"}
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, &upload.ConfigurationError{Subject: "local storage", Reason: fmt.Sprintf("invalid root path: %v", err)}
	}
	ls := &LocalStore{root: abs}
	if len(baseURL) > 0 {
		ls.baseURL = baseURL[0]
	}
	return ls, nil
}

// resolve maps a forward-slash location onto the filesystem and verifies it
// stays under the root.
func (l *LocalStore) resolve(location string) (string, error) {
	full := filepath.Join(l.root, filepath.FromSlash(location))
	rel, err := filepath.Rel(l.root, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", &upload.SecurityError{Location: location}
	}
	return full, nil
}

// Store saves a blob under the root, creating intermediate directories.
func (l *LocalStore) Store(ctx context.Context, location string, reader io.Reader, size int64, contentType string) (string, error) {
	if location == "" {
		return "", &upload.ValidationError{Field: "location", Reason: "must not be empty"}
	}
	if reader == nil {
		return "", &upload.ValidationError{Field: "reader", Reason: "is nil"}
	}
	if strings.ContainsRune(location, '\x00') {
		return "", &upload.ValidationError{Field: "location", Reason: "contains null byte"}
	}

	full, err := l.resolve(location)
	if err != nil {
		return "", err
	}

	// Refuse to follow a pre-existing symlink at the target.
	if fi, err := os.Lstat(full); err == nil && fi.Mode()&os.ModeSymlink != 0 {
		return "", &upload.SecurityError{Location: location}
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(full)
	if err != nil {
		return "", fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	if _, err := io.Copy(file, contextReader(ctx, reader)); err != nil {
		return "", fmt.Errorf("failed to write file content: %w", err)
	}

	return path.Clean(location), nil
}

// GetReader opens a stored blob for reading.
func (l *LocalStore) GetReader(ctx context.Context, location string) (io.ReadCloser, error) {
	full, err := l.resolve(location)
	if err != nil {
		return nil, err
	}
	file, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &upload.NotFoundError{Location: location}
		}
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}

// Delete removes a stored blob.
func (l *LocalStore) Delete(ctx context.Context, location string) error {
	full, err := l.resolve(location)
	if err != nil {
		return err
	}
	if err := os.Remove(full); err != nil {
		if os.IsNotExist(err) {
			return &upload.NotFoundError{Location: location}
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// Exists reports whether a blob is stored at the location.
func (l *LocalStore) Exists(ctx context.Context, location string) (bool, error) {
	full, err := l.resolve(location)
	if err != nil {
		return false, err
	}
	if _, err := os.Stat(full); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// GetSize returns the stored size of a blob in bytes.
func (l *LocalStore) GetSize(ctx context.Context, location string) (int64, error) {
	full, err := l.resolve(location)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(full)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, &upload.NotFoundError{Location: location}
		}
		return 0, fmt.Errorf("failed to stat file: %w", err)
	}
	return info.Size(), nil
}

// List returns forward-slash locations of every blob under the prefix.
func (l *LocalStore) List(ctx context.Context, prefix string) ([]string, error) {
	var files []string
	err := filepath.Walk(l.root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(l.root, p)
		if err != nil {
			return err
		}
		location := filepath.ToSlash(rel)
		if prefix == "" || strings.HasPrefix(location, prefix) {
			files = append(files, location)
		}
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list files: %w", err)
	}
	return files, nil
}

// GetURL returns the public URL for a location, or an empty string when no
// base URL is configured.
func (l *LocalStore) GetURL(location string) string {
	if l.baseURL == "" {
		return ""
	}
	return strings.TrimSuffix(l.baseURL, "/") + "/" + location
}

// SignedURL is unsupported on the local backend.
func (l *LocalStore) SignedURL(ctx context.Context, location string, expiration time.Duration) (string, error) {
	return "", fmt.Errorf("signed URLs not supported for local storage")
}

// Info returns the root path plus blob count and total size.
func (l *LocalStore) Info(ctx context.Context) (map[string]any, error) {
	info := map[string]any{
		"type":    "local",
		"root":    l.root,
		"baseURL": l.baseURL,
	}
	var totalSize int64
	var count int
	err := filepath.Walk(l.root, func(p string, fi os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !fi.IsDir() {
			totalSize += fi.Size()
			count++
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return info, fmt.Errorf("failed to walk root: %w", err)
	}
	info["totalSize"] = totalSize
	info["fileCount"] = count
	return info, nil
}

// Close is a no-op for local storage.
func (l *LocalStore) Close() error { return nil }
