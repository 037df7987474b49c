package provider

import (
	"context"
	"sync"

	"github.com/storekit/storekit/observability"
)

// Registry is the in-process table of backend descriptors. It is safe for
// concurrent use without external synchronization. Descriptors are
// registered at startup and never removed; their configuration payloads
// may be hot-swapped at any time.
type Registry struct {
	mu       sync.RWMutex
	byID     map[string]*Descriptor
	order    []string // insertion order, for GetDefault and All
	onUpdate []func(id string, options any) error
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*Descriptor)}
}

// Register upserts a descriptor keyed by its ID. Registering the same ID
// again replaces the stored descriptor in place, keeping its original
// position in insertion order.
func (r *Registry) Register(d Descriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[d.ID]; !ok {
		r.order = append(r.order, d.ID)
	}
	stored := d
	r.byID[d.ID] = &stored
}

// All returns a snapshot of every registered descriptor in insertion order.
func (r *Registry) All() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.byID[id])
	}
	return out
}

// ByID looks up a descriptor by identity.
func (r *Registry) ByID(id string) (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if d, ok := r.byID[id]; ok {
		return *d, true
	}
	return Descriptor{}, false
}

// Default returns a descriptor flagged default if any exist (first found in
// insertion order), else the first registered descriptor, else nothing.
func (r *Registry) Default() (Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range r.order {
		if d := r.byID[id]; d.Default {
			return *d, true
		}
	}
	if len(r.order) > 0 {
		return *r.byID[r.order[0]], true
	}
	return Descriptor{}, false
}

// TryUpdateOptions replaces the configuration payload for an existing
// descriptor and reports whether the ID was known. After replacing, every
// update subscriber is notified best-effort: a subscriber error or panic
// never affects the update's success. One reload event is emitted per
// update, marked failed when any subscriber errored or panicked.
func (r *Registry) TryUpdateOptions(id string, options any) bool {
	r.mu.Lock()
	d, ok := r.byID[id]
	if ok {
		d.Options = options
	}
	subscribers := r.onUpdate
	r.mu.Unlock()
	if !ok {
		return false
	}

	success := true
	for _, notify := range subscribers {
		func() {
			defer func() {
				if recover() != nil {
					success = false
				}
			}()
			if err := notify(id, options); err != nil {
				success = false
			}
		}()
	}
	observability.GetObserver().OnOptionsReload(context.Background(), id, success)
	return true
}

// OnOptionsUpdate subscribes to configuration hot-swaps. The resolver uses
// this to deliver new options to live executors implementing the
// hot-reload capability.
func (r *Registry) OnOptionsUpdate(fn func(id string, options any) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onUpdate = append(r.onUpdate, fn)
}

// Options fetches a descriptor's configuration payload as a concrete type.
// It reports false if the ID is unknown or the stored payload is not of
// the requested type; no implicit conversion is attempted.
func Options[T any](r *Registry, id string) (T, bool) {
	var zero T
	d, ok := r.ByID(id)
	if !ok {
		return zero, false
	}
	opts, ok := d.Options.(T)
	if !ok {
		return zero, false
	}
	return opts, true
}
