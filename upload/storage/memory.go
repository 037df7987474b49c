package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/storekit/storekit/upload"
)

// MemoryStore is the in-memory fake backend. Bytes written through it read
// back byte-identical, which makes it the reference double for pipeline
// tests and local development.
type MemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemory creates an empty in-memory backend.
func NewMemory() *MemoryStore {
	return &MemoryStore{blobs: make(map[string][]byte)}
}

func (m *MemoryStore) Store(ctx context.Context, location string, reader io.Reader, size int64, contentType string) (string, error) {
	if location == "" {
		return "", &upload.ValidationError{Field: "location", Reason: "must not be empty"}
	}
	data, err := io.ReadAll(contextReader(ctx, reader))
	if err != nil {
		return "", err
	}
	key := path.Clean(location)
	m.mu.Lock()
	m.blobs[key] = data
	m.mu.Unlock()
	return key, nil
}

func (m *MemoryStore) GetReader(ctx context.Context, location string) (io.ReadCloser, error) {
	m.mu.RLock()
	data, ok := m.blobs[path.Clean(location)]
	m.mu.RUnlock()
	if !ok {
		return nil, &upload.NotFoundError{Location: location}
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *MemoryStore) Delete(ctx context.Context, location string) error {
	key := path.Clean(location)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[key]; !ok {
		return &upload.NotFoundError{Location: location}
	}
	delete(m.blobs, key)
	return nil
}

func (m *MemoryStore) Exists(ctx context.Context, location string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.blobs[path.Clean(location)]
	return ok, nil
}

func (m *MemoryStore) GetSize(ctx context.Context, location string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if data, ok := m.blobs[path.Clean(location)]; ok {
		return int64(len(data)), nil
	}
	return 0, &upload.NotFoundError{Location: location}
}

func (m *MemoryStore) List(ctx context.Context, prefix string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	locations := make([]string, 0, len(m.blobs))
	for location := range m.blobs {
		if prefix == "" || strings.HasPrefix(location, prefix) {
			locations = append(locations, location)
		}
	}
	sort.Strings(locations)
	return locations, nil
}

func (m *MemoryStore) GetURL(location string) string {
	return "memory://" + location
}

func (m *MemoryStore) SignedURL(ctx context.Context, location string, expiration time.Duration) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.blobs[path.Clean(location)]; !ok {
		return "", &upload.NotFoundError{Location: location}
	}
	return fmt.Sprintf("memory://%s?expires=%d", location, int(expiration.Seconds())), nil
}

func (m *MemoryStore) Info(ctx context.Context) (map[string]any, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var totalSize int64
	for _, data := range m.blobs {
		totalSize += int64(len(data))
	}
	return map[string]any{
		"type":      "memory",
		"fileCount": len(m.blobs),
		"totalSize": totalSize,
	}, nil
}

// Close drops all stored blobs.
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	m.blobs = make(map[string][]byte)
	m.mu.Unlock()
	return nil
}
