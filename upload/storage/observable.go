package storage

import (
	"context"
	"io"
	"time"

	"github.com/storekit/storekit/observability"
	"github.com/storekit/storekit/upload"
)

// ObservableStore wraps a BlobStore, reporting every operation to the
// global observability system.
type ObservableStore struct {
	store     upload.BlobStore
	storeType string
}

// NewObservable decorates a BlobStore with observability. storeType tags
// the reported operations ("local", "s3", ...).
func NewObservable(store upload.BlobStore, storeType string) *ObservableStore {
	return &ObservableStore{store: store, storeType: storeType}
}

func (o *ObservableStore) Store(ctx context.Context, location string, reader io.Reader, size int64, contentType string) (string, error) {
	start := time.Now()
	stored, err := o.store.Store(ctx, location, reader, size, contentType)
	observability.GetObserver().OnStorageOperation(ctx, "store", o.storeType, time.Since(start), err == nil)
	return stored, err
}

func (o *ObservableStore) GetReader(ctx context.Context, location string) (io.ReadCloser, error) {
	start := time.Now()
	rc, err := o.store.GetReader(ctx, location)
	observability.GetObserver().OnStorageOperation(ctx, "get_reader", o.storeType, time.Since(start), err == nil)
	return rc, err
}

func (o *ObservableStore) Delete(ctx context.Context, location string) error {
	start := time.Now()
	err := o.store.Delete(ctx, location)
	observability.GetObserver().OnStorageOperation(ctx, "delete", o.storeType, time.Since(start), err == nil)
	return err
}

func (o *ObservableStore) Exists(ctx context.Context, location string) (bool, error) {
	start := time.Now()
	exists, err := o.store.Exists(ctx, location)
	observability.GetObserver().OnStorageOperation(ctx, "exists", o.storeType, time.Since(start), err == nil)
	return exists, err
}

func (o *ObservableStore) GetSize(ctx context.Context, location string) (int64, error) {
	start := time.Now()
	size, err := o.store.GetSize(ctx, location)
	observability.GetObserver().OnStorageOperation(ctx, "get_size", o.storeType, time.Since(start), err == nil)
	return size, err
}

func (o *ObservableStore) List(ctx context.Context, prefix string) ([]string, error) {
	start := time.Now()
	locations, err := o.store.List(ctx, prefix)
	observability.GetObserver().OnStorageOperation(ctx, "list", o.storeType, time.Since(start), err == nil)
	return locations, err
}

func (o *ObservableStore) GetURL(location string) string {
	return o.store.GetURL(location)
}

func (o *ObservableStore) SignedURL(ctx context.Context, location string, expiration time.Duration) (string, error) {
	start := time.Now()
	url, err := o.store.SignedURL(ctx, location, expiration)
	observability.GetObserver().OnStorageOperation(ctx, "signed_url", o.storeType, time.Since(start), err == nil)
	return url, err
}

func (o *ObservableStore) Info(ctx context.Context) (map[string]any, error) {
	return o.store.Info(ctx)
}

func (o *ObservableStore) Close() error {
	return o.store.Close()
}
