package channel

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
)

// Registry maps provider keys to adapter instances. It is created via
// NewRegistry at process start, filled with Register, then frozen; after
// Freeze it is read-only and lookups take no lock.
type Registry struct {
	mu       sync.Mutex
	frozen   atomic.Bool
	adapters map[ProviderKey]MessagingAdapter
	active   ProviderKey
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		adapters: map[ProviderKey]MessagingAdapter{},
	}
}

// ErrRegistryFrozen is returned by Register after Freeze.
var ErrRegistryFrozen = errors.New("registry is frozen")

// Register adds an adapter to the registry.
func (r *Registry) Register(adapter MessagingAdapter) error {
	if adapter == nil {
		return fmt.Errorf("adapter is nil")
	}
	key := NormalizeProviderKey(adapter.Type().String())
	if key == "" {
		return fmt.Errorf("provider key is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen.Load() {
		return ErrRegistryFrozen
	}
	if _, exists := r.adapters[key]; exists {
		return fmt.Errorf("provider already registered: %s", key)
	}
	r.adapters[key] = adapter
	return nil
}

// MustRegister calls Register and panics on error.
func (r *Registry) MustRegister(adapter MessagingAdapter) {
	if err := r.Register(adapter); err != nil {
		panic(err)
	}
}

// Freeze marks the registry read-only and selects the active provider. The
// active key must already be registered.
func (r *Registry) Freeze(active ProviderKey) error {
	key := NormalizeProviderKey(active.String())
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen.Load() {
		return ErrRegistryFrozen
	}
	if _, ok := r.adapters[key]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownProvider, active)
	}
	r.active = key
	r.frozen.Store(true)
	return nil
}

// Frozen reports whether Freeze has been called.
func (r *Registry) Frozen() bool {
	return r.frozen.Load()
}

func (r *Registry) lookup(key ProviderKey) (MessagingAdapter, bool) {
	if r.frozen.Load() {
		adapter, ok := r.adapters[key]
		return adapter, ok
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	adapter, ok := r.adapters[key]
	return adapter, ok
}

// Resolve returns the adapter for key, or an error wrapping
// ErrUnknownProvider.
func (r *Registry) Resolve(key ProviderKey) (MessagingAdapter, error) {
	normalized := NormalizeProviderKey(key.String())
	adapter, ok := r.lookup(normalized)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, key)
	}
	return adapter, nil
}

// Active returns the key selected at Freeze. Empty before Freeze.
func (r *Registry) Active() ProviderKey {
	if r.frozen.Load() {
		return r.active
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// ResolveActive resolves the provider selected by configuration.
func (r *Registry) ResolveActive() (MessagingAdapter, error) {
	active := r.Active()
	if active == "" {
		return nil, fmt.Errorf("%w: no active provider", ErrUnknownProvider)
	}
	return r.Resolve(active)
}

// Types returns all registered provider keys in sorted order.
func (r *Registry) Types() []ProviderKey {
	if !r.frozen.Load() {
		r.mu.Lock()
		defer r.mu.Unlock()
	}
	items := make([]ProviderKey, 0, len(r.adapters))
	for key := range r.adapters {
		items = append(items, key)
	}
	sort.Slice(items, func(i, j int) bool { return items[i] < items[j] })
	return items
}

// GetDescriptor returns the descriptor for the given provider.
func (r *Registry) GetDescriptor(key ProviderKey) (Descriptor, bool) {
	adapter, ok := r.lookup(NormalizeProviderKey(key.String()))
	if !ok {
		return Descriptor{}, false
	}
	return adapter.Descriptor(), true
}

// ListDescriptors returns descriptors for all registered providers.
func (r *Registry) ListDescriptors() []Descriptor {
	keys := r.Types()
	items := make([]Descriptor, 0, len(keys))
	for _, key := range keys {
		if desc, ok := r.GetDescriptor(key); ok {
			items = append(items, desc)
		}
	}
	return items
}
