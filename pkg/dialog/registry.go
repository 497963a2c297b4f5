package dialog

import "sync"

// Registry indexes live dialogs by their full Key, with a PartialKey
// fallback for early dialogs whose remote tag is not yet known.
type Registry struct {
	mu      sync.RWMutex
	byKey   map[Key]*Dialog
	byEarly map[PartialKey]*Dialog
}

// NewRegistry constructs an empty dialog registry.
func NewRegistry() *Registry {
	return &Registry{
		byKey:   make(map[Key]*Dialog),
		byEarly: make(map[PartialKey]*Dialog),
	}
}

// Put indexes d under its current key. Call again after the remote tag is
// learned to move it from the early index to the full index.
func (r *Registry) Put(d *Dialog) {
	key := d.Key()
	r.mu.Lock()
	defer r.mu.Unlock()
	if key.RemoteTag == "" {
		r.byEarly[key.partial()] = d
		return
	}
	r.byKey[key] = d
	delete(r.byEarly, key.partial())
}

// Get looks up a dialog by full key, falling back to the early-dialog
// index when remote_tag is still unknown to the caller (e.g. matching an
// incoming request against a dialog this side created but has not yet
// heard a to-tag for).
func (r *Registry) Get(key Key) (*Dialog, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if d, ok := r.byKey[key]; ok {
		return d, true
	}
	if key.RemoteTag == "" {
		if d, ok := r.byEarly[key.partial()]; ok {
			return d, true
		}
	}
	return nil, false
}

// Remove deletes d from both indices.
func (r *Registry) Remove(d *Dialog) {
	key := d.Key()
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.byKey, key)
	delete(r.byEarly, key.partial())
}

// Len returns the number of dialogs currently indexed (confirmed plus
// early).
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byKey) + len(r.byEarly)
}
