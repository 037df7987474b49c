package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/storekit/storekit/observability"
	"github.com/storekit/storekit/upload"
)

type localPayload struct {
	Root   string
	Images upload.ImageOptions
}

func TestRegistryRegisterUpserts(t *testing.T) {
	r := NewRegistry()
	r.Register(Descriptor{ID: "local", Name: "Local", Type: "local"})
	r.Register(Descriptor{ID: "s3", Name: "S3", Type: "s3"})
	r.Register(Descriptor{ID: "local", Name: "Local Disk", Type: "local"})

	all := r.All()
	if len(all) != 2 {
		t.Fatalf("Expected 2 descriptors, got %d", len(all))
	}
	// Re-registering keeps the original position.
	if all[0].ID != "local" || all[1].ID != "s3" {
		t.Errorf("Expected insertion order [local s3], got [%s %s]", all[0].ID, all[1].ID)
	}
	if all[0].Name != "Local Disk" {
		t.Errorf("Expected replaced descriptor, got name %s", all[0].Name)
	}
}

func TestRegistryByID(t *testing.T) {
	r := NewRegistry()
	r.Register(Descriptor{ID: "local", Type: "local"})

	if _, ok := r.ByID("local"); !ok {
		t.Error("Expected local to be found")
	}
	if _, ok := r.ByID("missing"); ok {
		t.Error("Expected missing to not be found")
	}
}

func TestRegistryDefault(t *testing.T) {
	r := NewRegistry()
	if _, ok := r.Default(); ok {
		t.Error("Expected no default on empty registry")
	}

	r.Register(Descriptor{ID: "a", Type: "local"})
	r.Register(Descriptor{ID: "b", Type: "s3"})
	d, ok := r.Default()
	if !ok || d.ID != "a" {
		t.Errorf("Expected first registered as fallback default, got %s", d.ID)
	}

	r.Register(Descriptor{ID: "c", Type: "sftp", Default: true})
	r.Register(Descriptor{ID: "d", Type: "memory", Default: true})
	d, ok = r.Default()
	if !ok || d.ID != "c" {
		t.Errorf("Expected first flagged default, got %s", d.ID)
	}
}

func TestRegistryTryUpdateOptions(t *testing.T) {
	r := NewRegistry()
	r.Register(Descriptor{ID: "local", Type: "local", Options: localPayload{Root: "/old"}})

	if r.TryUpdateOptions("missing", localPayload{}) {
		t.Error("Expected false for unknown ID")
	}

	var gotID string
	var gotOptions any
	r.OnOptionsUpdate(func(id string, options any) error {
		gotID, gotOptions = id, options
		return nil
	})

	if !r.TryUpdateOptions("local", localPayload{Root: "/new"}) {
		t.Fatal("Expected true for known ID")
	}
	if gotID != "local" {
		t.Errorf("Expected subscriber notified for local, got %q", gotID)
	}
	if payload, ok := gotOptions.(localPayload); !ok || payload.Root != "/new" {
		t.Errorf("Expected subscriber to receive new payload, got %v", gotOptions)
	}

	d, _ := r.ByID("local")
	if payload, ok := d.Options.(localPayload); !ok || payload.Root != "/new" {
		t.Errorf("Expected stored payload replaced, got %v", d.Options)
	}
}

func TestRegistryTryUpdateOptionsSurvivesSubscriberPanic(t *testing.T) {
	r := NewRegistry()
	r.Register(Descriptor{ID: "local", Type: "local"})
	r.OnOptionsUpdate(func(id string, options any) error {
		panic("subscriber bug")
	})
	var notified bool
	r.OnOptionsUpdate(func(id string, options any) error {
		notified = true
		return nil
	})

	if !r.TryUpdateOptions("local", localPayload{Root: "/x"}) {
		t.Fatal("Expected update to succeed despite panicking subscriber")
	}
	if !notified {
		t.Error("Expected later subscribers to still be notified")
	}
}

type reloadRecorder struct {
	mu      sync.Mutex
	reloads []bool
}

func (r *reloadRecorder) OnUploadStart(ctx context.Context, fileName string, fileSize int64) {}
func (r *reloadRecorder) OnUploadEnd(ctx context.Context, fileName string, fileSize int64, duration time.Duration, success bool) {
}
func (r *reloadRecorder) OnUploadError(ctx context.Context, fileName string, error string) {}
func (r *reloadRecorder) OnVariantGenerated(ctx context.Context, kind string, location string, size int64, duration time.Duration) {
}
func (r *reloadRecorder) OnStorageOperation(ctx context.Context, operation string, storageType string, duration time.Duration, success bool) {
}

func (r *reloadRecorder) OnOptionsReload(ctx context.Context, providerID string, success bool) {
	r.mu.Lock()
	r.reloads = append(r.reloads, success)
	r.mu.Unlock()
}

func (r *reloadRecorder) events(t *testing.T) []bool {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]bool, len(r.reloads))
	copy(out, r.reloads)
	return out
}

func TestTryUpdateOptionsReportsReloadOncePerUpdate(t *testing.T) {
	original := observability.GetObserver()
	defer observability.SetObserver(original)
	rec := &reloadRecorder{}
	observability.SetObserver(rec)

	r := NewRegistry()
	r.Register(Descriptor{ID: "local", Type: "local"})

	// No subscribers: still exactly one successful event.
	if !r.TryUpdateOptions("local", localPayload{Root: "/a"}) {
		t.Fatal("Expected update to succeed")
	}
	if got := rec.events(t); len(got) != 1 || !got[0] {
		t.Fatalf("Expected one successful reload event, got %v", got)
	}

	// Two healthy subscribers: one event per update, not per subscriber.
	r.OnOptionsUpdate(func(id string, options any) error { return nil })
	r.OnOptionsUpdate(func(id string, options any) error { return nil })
	if !r.TryUpdateOptions("local", localPayload{Root: "/b"}) {
		t.Fatal("Expected update to succeed")
	}
	if got := rec.events(t); len(got) != 2 || !got[1] {
		t.Fatalf("Expected one successful reload event per update, got %v", got)
	}

	// A failing subscriber marks the single event failed.
	r.OnOptionsUpdate(func(id string, options any) error { return errors.New("delivery failed") })
	if !r.TryUpdateOptions("local", localPayload{Root: "/c"}) {
		t.Fatal("Expected update to succeed despite subscriber error")
	}
	if got := rec.events(t); len(got) != 3 || got[2] {
		t.Fatalf("Expected one failed reload event, got %v", got)
	}

	// An unknown ID emits nothing.
	if r.TryUpdateOptions("missing", localPayload{}) {
		t.Fatal("Expected false for unknown ID")
	}
	if got := rec.events(t); len(got) != 3 {
		t.Fatalf("Expected no event for unknown ID, got %v", got)
	}
}

func TestOptionsTyped(t *testing.T) {
	r := NewRegistry()
	r.Register(Descriptor{ID: "local", Type: "local", Options: localPayload{Root: "/data"}})

	payload, ok := Options[localPayload](r, "local")
	if !ok || payload.Root != "/data" {
		t.Errorf("Expected typed payload, got %v ok=%v", payload, ok)
	}

	if _, ok := Options[string](r, "local"); ok {
		t.Error("Expected false for mismatched payload type")
	}
	if _, ok := Options[localPayload](r, "missing"); ok {
		t.Error("Expected false for unknown ID")
	}
}

func TestRegistryConcurrentAccess(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			id := fmt.Sprintf("p%d", i%5)
			r.Register(Descriptor{ID: id, Type: "local"})
			r.TryUpdateOptions(id, localPayload{Root: "/r"})
			r.All()
			r.Default()
			r.ByID(id)
		}(i)
	}
	wg.Wait()

	if got := len(r.All()); got != 5 {
		t.Errorf("Expected 5 descriptors, got %d", got)
	}
}
