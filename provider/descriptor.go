// Package provider tracks configured storage backends and resolves the
// executor that serves each of them. The registry holds backend
// descriptors and supports hot-swapping their configuration payloads; the
// resolver maps a descriptor onto a concrete executor through an explicit
// factory table and serializes operations per descriptor identity.
//
// Both are constructed explicitly by the process's composition root and
// passed where needed; there is no package-level state.
package provider

// Descriptor describes one configured backend: its identity, a type tag
// naming the backend kind ("local", "s3", "sftp", "memory"), and a
// configuration payload that stays opaque to the registry and resolver.
//
// More than one descriptor may be flagged Default at the same time; the
// registry then returns some flagged one, not a guaranteed pick.
type Descriptor struct {
	ID      string // unique within the registry
	Name    string // display name
	Type    string // backend type tag
	Default bool
	Options any    // backend-specific configuration payload
	Binding string // explicit executor factory key (optional)
}
