package provider

import (
	"context"
	"sync"

	"github.com/storekit/storekit/upload"
)

// Factory builds an executor for a descriptor. Factories are registered
// against an explicit key at startup, so resolution failures surface at
// registration/wiring time instead of deep inside the first upload.
type Factory func(d Descriptor) (upload.Executor, error)

// Resolver maps descriptors onto live executors and serializes operations
// per descriptor identity. Executors are created once per descriptor and
// live for the process lifetime; configuration hot-swaps reach them
// through the registry's update notifications.
type Resolver struct {
	registry *Registry

	mu        sync.Mutex
	factories map[string]Factory
	keys      []string // factory registration order, for error messages
	instances map[string]upload.Executor
	locks     map[string]chan struct{}
}

// NewResolver creates a resolver bound to the registry and subscribes it
// to configuration hot-swaps.
func NewResolver(registry *Registry) *Resolver {
	r := &Resolver{
		registry:  registry,
		factories: make(map[string]Factory),
		instances: make(map[string]upload.Executor),
		locks:     make(map[string]chan struct{}),
	}
	registry.OnOptionsUpdate(r.deliverOptions)
	return r
}

// RegisterFactory registers an executor factory under a key. Keys are
// matched against a descriptor's binding, ID, name and type tag during
// resolution.
func (r *Resolver) RegisterFactory(key string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.factories[key]; !ok {
		r.keys = append(r.keys, key)
	}
	r.factories[key] = factory
}

// Resolve returns the executor serving the descriptor, creating it on
// first use. Resolution order: the descriptor's explicit binding, then its
// ID, name and type tag against the factory table, then the sole
// registered factory if there is exactly one. Anything else is a
// ConfigurationError naming the descriptor and the known factories.
func (r *Resolver) Resolve(d Descriptor) (upload.Executor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.resolveLocked(d)
}

func (r *Resolver) resolveLocked(d Descriptor) (upload.Executor, error) {
	if exec, ok := r.instances[d.ID]; ok {
		return exec, nil
	}

	factory, err := r.selectFactory(d)
	if err != nil {
		return nil, err
	}
	exec, err := factory(d)
	if err != nil {
		return nil, err
	}
	r.instances[d.ID] = exec
	return exec, nil
}

func (r *Resolver) selectFactory(d Descriptor) (Factory, error) {
	if d.Binding != "" {
		if f, ok := r.factories[d.Binding]; ok {
			return f, nil
		}
		return nil, &upload.ConfigurationError{
			Subject: "provider " + d.ID,
			Reason:  "binding " + d.Binding + " has no registered executor",
			Known:   r.knownKeys(),
		}
	}
	for _, key := range []string{d.ID, d.Name, d.Type} {
		if key == "" {
			continue
		}
		if f, ok := r.factories[key]; ok {
			return f, nil
		}
	}
	if len(r.keys) == 1 {
		return r.factories[r.keys[0]], nil
	}
	return nil, &upload.ConfigurationError{
		Subject: "provider " + d.ID,
		Reason:  "no executor matches type " + d.Type,
		Known:   r.knownKeys(),
	}
}

func (r *Resolver) knownKeys() []string {
	keys := make([]string, len(r.keys))
	copy(keys, r.keys)
	return keys
}

// WithExecutor acquires the descriptor's exclusive lock, resolves the
// executor and runs the action against it. The lock is non-reentrant,
// lazily created, held for the process lifetime, and released on every
// path; at most one action runs per descriptor identity system-wide while
// actions against distinct identities proceed fully concurrently.
func (r *Resolver) WithExecutor(ctx context.Context, d Descriptor, action func(exec upload.Executor) error) error {
	release, err := r.acquire(ctx, d.ID)
	if err != nil {
		return err
	}
	defer release()

	exec, err := r.Resolve(d)
	if err != nil {
		return err
	}
	return action(exec)
}

// WithExecutorResult is WithExecutor for actions that return a value.
func WithExecutorResult[T any](ctx context.Context, r *Resolver, d Descriptor, action func(exec upload.Executor) (T, error)) (T, error) {
	var result T
	err := r.WithExecutor(ctx, d, func(exec upload.Executor) error {
		var actionErr error
		result, actionErr = action(exec)
		return actionErr
	})
	return result, err
}

// acquire takes the per-identity lock, observing cancellation while
// waiting.
func (r *Resolver) acquire(ctx context.Context, id string) (func(), error) {
	r.mu.Lock()
	lock, ok := r.locks[id]
	if !ok {
		lock = make(chan struct{}, 1)
		r.locks[id] = lock
	}
	r.mu.Unlock()

	select {
	case lock <- struct{}{}:
		return func() { <-lock }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// deliverOptions hands a hot-swapped payload to the live executor bound to
// the descriptor, if it exists and implements the hot-reload capability.
func (r *Resolver) deliverOptions(id string, options any) error {
	r.mu.Lock()
	exec := r.instances[id]
	r.mu.Unlock()
	if exec == nil {
		return nil
	}
	reloader, ok := exec.(upload.OptionsReloader)
	if !ok {
		return nil
	}
	return reloader.UpdateOptions(options)
}
