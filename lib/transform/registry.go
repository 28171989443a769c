// Copyright 2026 The Edo Authors
// SPDX-License-Identifier: Apache-2.0

package transform

import (
	"fmt"
	"sort"
	"sync"

	"github.com/edo-build/edo/lib/addr"
)

// Registry maps configuration addresses to the Transform that
// realizes them. It is built once during the configuration/plugin-host
// registration phase, then Frozen: every read after Freeze needs no
// lock beyond the RWMutex's read path, and every Register after Freeze
// fails loudly instead of racing with a running scheduler. Grounded on
// lib/artifact's RefIndex: an RWMutex-guarded map safe for concurrent
// reads with a single, serialized writer.
type Registry struct {
	mu      sync.RWMutex
	frozen  bool
	entries map[string]Transform
}

// NewRegistry returns an empty, unfrozen Registry.
func NewRegistry() *Registry {
	return &Registry{entries: map[string]Transform{}}
}

// Register adds t under a. Returns an error if the registry is
// already frozen or a is already registered.
func (r *Registry) Register(a addr.Addr, t Transform) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return fmt.Errorf("transform: registry is frozen, cannot register %s", a)
	}
	if _, exists := r.entries[a.String()]; exists {
		return fmt.Errorf("transform: %s is already registered", a)
	}
	r.entries[a.String()] = t
	return nil
}

// Freeze makes the registry read-only. Idempotent.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Get returns the Transform registered for a, if any.
func (r *Registry) Get(a addr.Addr) (Transform, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.entries[a.String()]
	return t, ok
}

// Addrs returns every registered address in sorted order.
func (r *Registry) Addrs() []addr.Addr {
	r.mu.RLock()
	defer r.mu.RUnlock()
	raw := make([]string, 0, len(r.entries))
	for k := range r.entries {
		raw = append(raw, k)
	}
	sort.Strings(raw)
	out := make([]addr.Addr, 0, len(raw))
	for _, k := range raw {
		out = append(out, addr.MustParse(k))
	}
	return out
}
