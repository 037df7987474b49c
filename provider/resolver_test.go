package provider

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/storekit/storekit/upload"
)

// stubExecutor satisfies upload.Executor for resolution tests; the optional
// options sink records hot-reload deliveries.
type stubExecutor struct {
	name    string
	mu      sync.Mutex
	options []any
}

func (s *stubExecutor) Create(ctx context.Context, file upload.File, category string, entityTag ...string) (*upload.FileEntry, error) {
	return &upload.FileEntry{Provider: s.name}, nil
}

func (s *stubExecutor) CreateForEntity(ctx context.Context, entity any, file upload.File, category string) (*upload.FileEntry, error) {
	return &upload.FileEntry{Provider: s.name}, nil
}

func (s *stubExecutor) CreateWithVariants(ctx context.Context, file upload.File, category string, entityTag ...string) (*upload.FileEntry, []upload.FileEntry, error) {
	return &upload.FileEntry{Provider: s.name}, nil, nil
}

func (s *stubExecutor) CreateForEntityWithVariants(ctx context.Context, entity any, file upload.File, category string) (*upload.FileEntry, []upload.FileEntry, error) {
	return &upload.FileEntry{Provider: s.name}, nil, nil
}

func (s *stubExecutor) Open(ctx context.Context, location string) (io.ReadCloser, error) {
	return nil, &upload.NotFoundError{Location: location}
}

func (s *stubExecutor) Remove(ctx context.Context, location string) error { return nil }

func (s *stubExecutor) UpdateOptions(options any) error {
	s.mu.Lock()
	s.options = append(s.options, options)
	s.mu.Unlock()
	return nil
}

func stubFactory(name string) Factory {
	return func(d Descriptor) (upload.Executor, error) {
		return &stubExecutor{name: name}, nil
	}
}

func providerName(t *testing.T, r *Resolver, d Descriptor) string {
	t.Helper()
	exec, err := r.Resolve(d)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	entry, err := exec.Create(context.Background(), nil, "x")
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	return entry.Provider
}

func TestResolveMatchOrder(t *testing.T) {
	registry := NewRegistry()
	r := NewResolver(registry)
	r.RegisterFactory("special", stubFactory("special"))
	r.RegisterFactory("minio", stubFactory("by-other-id"))
	r.RegisterFactory("azure-blob", stubFactory("by-id"))
	r.RegisterFactory("Azure Blob", stubFactory("by-name"))
	r.RegisterFactory("azure", stubFactory("by-type"))

	// Explicit binding wins over everything, including a matching ID. The
	// descriptor ID is distinct per sub-case: executors are cached by ID,
	// so reusing one would hand back the earlier instance instead of
	// exercising resolution again.
	d := Descriptor{ID: "minio", Name: "Azure Blob", Type: "azure", Binding: "special"}
	if got := providerName(t, r, d); got != "special" {
		t.Errorf("Expected binding match, got %s", got)
	}

	// ID beats name and type.
	d = Descriptor{ID: "azure-blob", Name: "Azure Blob", Type: "azure"}
	if got := providerName(t, r, d); got != "by-id" {
		t.Errorf("Expected ID match, got %s", got)
	}

	// Name beats type.
	d = Descriptor{ID: "other", Name: "Azure Blob", Type: "azure"}
	if got := providerName(t, r, d); got != "by-name" {
		t.Errorf("Expected name match, got %s", got)
	}

	d = Descriptor{ID: "another", Name: "Blob", Type: "azure"}
	if got := providerName(t, r, d); got != "by-type" {
		t.Errorf("Expected type match, got %s", got)
	}
}

func TestResolveSoleFactoryFallback(t *testing.T) {
	registry := NewRegistry()
	r := NewResolver(registry)
	r.RegisterFactory("local", stubFactory("local"))

	d := Descriptor{ID: "anything", Name: "Anything", Type: "unknown"}
	if got := providerName(t, r, d); got != "local" {
		t.Errorf("Expected sole-factory fallback, got %s", got)
	}
}

func TestResolveUnresolvable(t *testing.T) {
	registry := NewRegistry()
	r := NewResolver(registry)
	r.RegisterFactory("local", stubFactory("local"))
	r.RegisterFactory("s3", stubFactory("s3"))

	var confErr *upload.ConfigurationError

	_, err := r.Resolve(Descriptor{ID: "x", Type: "gcs"})
	if !errors.As(err, &confErr) {
		t.Fatalf("Expected ConfigurationError, got %v", err)
	}
	if len(confErr.Known) != 2 {
		t.Errorf("Expected 2 known executors, got %v", confErr.Known)
	}
	if !strings.Contains(err.Error(), "local") || !strings.Contains(err.Error(), "s3") {
		t.Errorf("Expected error to name known executors, got %q", err.Error())
	}

	// Unknown explicit binding fails even when the type would match.
	_, err = r.Resolve(Descriptor{ID: "y", Type: "local", Binding: "nope"})
	if !errors.As(err, &confErr) {
		t.Errorf("Expected ConfigurationError for unknown binding, got %v", err)
	}
}

func TestResolveCachesInstances(t *testing.T) {
	registry := NewRegistry()
	r := NewResolver(registry)
	var built int32
	r.RegisterFactory("local", func(d Descriptor) (upload.Executor, error) {
		atomic.AddInt32(&built, 1)
		return &stubExecutor{name: d.ID}, nil
	})

	d := Descriptor{ID: "local", Type: "local"}
	first, err := r.Resolve(d)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	second, err := r.Resolve(d)
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}
	if first != second {
		t.Error("Expected the same executor instance")
	}
	if built != 1 {
		t.Errorf("Expected factory called once, got %d", built)
	}
}

func TestWithExecutorSerializesPerIdentity(t *testing.T) {
	registry := NewRegistry()
	r := NewResolver(registry)
	r.RegisterFactory("local", stubFactory("local"))
	d := Descriptor{ID: "local", Type: "local"}

	var inFlight, maxInFlight int32
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := r.WithExecutor(context.Background(), d, func(exec upload.Executor) error {
				n := atomic.AddInt32(&inFlight, 1)
				for {
					max := atomic.LoadInt32(&maxInFlight)
					if n <= max || atomic.CompareAndSwapInt32(&maxInFlight, max, n) {
						break
					}
				}
				time.Sleep(time.Millisecond)
				atomic.AddInt32(&inFlight, -1)
				return nil
			})
			if err != nil {
				t.Errorf("WithExecutor failed: %v", err)
			}
		}()
	}
	wg.Wait()

	if maxInFlight != 1 {
		t.Errorf("Expected at most 1 action in flight per identity, observed %d", maxInFlight)
	}
}

func TestWithExecutorDistinctIdentitiesRunConcurrently(t *testing.T) {
	registry := NewRegistry()
	r := NewResolver(registry)
	r.RegisterFactory("local", stubFactory("a"))
	r.RegisterFactory("memory", stubFactory("b"))

	// Hold the lock for "a" while running an action against "b".
	release := make(chan struct{})
	holding := make(chan struct{})
	go func() {
		_ = r.WithExecutor(context.Background(), Descriptor{ID: "local", Type: "local"}, func(exec upload.Executor) error {
			close(holding)
			<-release
			return nil
		})
	}()
	<-holding

	done := make(chan error, 1)
	go func() {
		done <- r.WithExecutor(context.Background(), Descriptor{ID: "memory", Type: "memory"}, func(exec upload.Executor) error {
			return nil
		})
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("WithExecutor failed: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Error("Action against a distinct identity blocked")
	}
	close(release)
}

func TestWithExecutorReleasesLockOnError(t *testing.T) {
	registry := NewRegistry()
	r := NewResolver(registry)
	r.RegisterFactory("local", stubFactory("local"))
	d := Descriptor{ID: "local", Type: "local"}

	wantErr := errors.New("action failed")
	if err := r.WithExecutor(context.Background(), d, func(exec upload.Executor) error {
		return wantErr
	}); !errors.Is(err, wantErr) {
		t.Fatalf("Expected action error, got %v", err)
	}

	// The lock must be free again.
	if err := r.WithExecutor(context.Background(), d, func(exec upload.Executor) error {
		return nil
	}); err != nil {
		t.Errorf("Expected lock released after error, got %v", err)
	}
}

func TestWithExecutorObservesCancellation(t *testing.T) {
	registry := NewRegistry()
	r := NewResolver(registry)
	r.RegisterFactory("local", stubFactory("local"))
	d := Descriptor{ID: "local", Type: "local"}

	holding := make(chan struct{})
	release := make(chan struct{})
	go func() {
		_ = r.WithExecutor(context.Background(), d, func(exec upload.Executor) error {
			close(holding)
			<-release
			return nil
		})
	}()
	<-holding
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := r.WithExecutor(ctx, d, func(exec upload.Executor) error { return nil })
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected DeadlineExceeded while waiting for the lock, got %v", err)
	}
}

func TestWithExecutorResult(t *testing.T) {
	registry := NewRegistry()
	r := NewResolver(registry)
	r.RegisterFactory("local", stubFactory("local"))
	d := Descriptor{ID: "local", Type: "local"}

	got, err := WithExecutorResult(context.Background(), r, d, func(exec upload.Executor) (string, error) {
		entry, err := exec.Create(context.Background(), nil, "x")
		if err != nil {
			return "", err
		}
		return entry.Provider, nil
	})
	if err != nil {
		t.Fatalf("WithExecutorResult failed: %v", err)
	}
	if got != "local" {
		t.Errorf("Expected result local, got %s", got)
	}
}

func TestOptionsHotReloadReachesLiveExecutor(t *testing.T) {
	registry := NewRegistry()
	registry.Register(Descriptor{ID: "local", Type: "local"})
	r := NewResolver(registry)
	r.RegisterFactory("local", stubFactory("local"))

	exec, err := r.Resolve(Descriptor{ID: "local", Type: "local"})
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	opts := upload.ImageOptions{Quality: 55}
	if !registry.TryUpdateOptions("local", opts) {
		t.Fatal("Expected update to succeed")
	}

	stub := exec.(*stubExecutor)
	stub.mu.Lock()
	defer stub.mu.Unlock()
	if len(stub.options) != 1 {
		t.Fatalf("Expected 1 delivered payload, got %d", len(stub.options))
	}
	if got, ok := stub.options[0].(upload.ImageOptions); !ok || got.Quality != 55 {
		t.Errorf("Expected delivered ImageOptions{Quality:55}, got %v", stub.options[0])
	}
}

func TestOptionsHotReloadSkipsUnresolvedDescriptors(t *testing.T) {
	registry := NewRegistry()
	registry.Register(Descriptor{ID: "local", Type: "local"})
	NewResolver(registry)

	// No executor was ever resolved; the update must still succeed.
	if !registry.TryUpdateOptions("local", upload.ImageOptions{Quality: 10}) {
		t.Error("Expected update to succeed with no live executor")
	}
}
