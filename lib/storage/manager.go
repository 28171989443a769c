// Copyright 2026 The Edo Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"context"
	"fmt"
	"io"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/edo-build/edo/lib/artifact"
	"github.com/edo-build/edo/lib/edoerr"
)

// defaultManifestCacheSize bounds the number of parsed manifests the
// Manager keeps warm. A single engine run typically touches a few
// hundred distinct artifacts; this is generous enough to keep the
// working set resident without growing unbounded on a long-lived
// daemon process.
const defaultManifestCacheSize = 1024

// sourceTier is one named entry in the ordered source-tier list.
type sourceTier struct {
	name    string
	backend Backend
}

// Manager orchestrates one mandatory local backend plus up to three
// optional tiers: an ordered, named list of source backends, a single
// build backend, and a single output backend. Tier membership changes
// (AddSource/RemoveSource/SetBuild/SetOutput) take an exclusive lock;
// everything else — artifact reads, safe operations, synchronization —
// holds only a read lock on membership, so concurrent builds never
// block each other on tier bookkeeping.
//
// Manager also keeps an in-process LRU of recently opened manifests,
// keyed by an artifact.Id's canonical string (which embeds its
// content digest, so a cache hit is always the exact artifact asked
// for). This avoids re-reading and re-parsing catalog.json for hot
// artifacts — a dependency resolved repeatedly across many transforms
// in the same run — at the cost of staying correct only for the local
// backend's own manifests: FetchSource and FindBuild read through the
// local backend directly after synchronizing, and only SafeOpen
// consults the cache.
type Manager struct {
	local Backend

	mu      sync.RWMutex
	sources []sourceTier
	build   Backend
	output  Backend

	manifests *lru.Cache[string, artifact.Artifact]
}

// NewManager constructs a Manager around the mandatory local backend.
func NewManager(local Backend) *Manager {
	manifests, err := lru.New[string, artifact.Artifact](defaultManifestCacheSize)
	if err != nil {
		// Only fails for a non-positive size, which the constant above never is.
		panic(fmt.Sprintf("storage: constructing manifest cache: %v", err))
	}
	return &Manager{local: local, manifests: manifests}
}

// AddSource inserts a named source backend. atHead controls whether
// it is consulted before or after the existing source tiers.
func (m *Manager) AddSource(name string, backend Backend, atHead bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	tier := sourceTier{name: name, backend: backend}
	if atHead {
		m.sources = append([]sourceTier{tier}, m.sources...)
		return
	}
	m.sources = append(m.sources, tier)
}

// RemoveSource removes the named source tier, if present.
func (m *Manager) RemoveSource(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, tier := range m.sources {
		if tier.name == name {
			m.sources = append(m.sources[:i], m.sources[i+1:]...)
			return
		}
	}
}

// SetBuild installs (or, with nil, clears) the build tier.
func (m *Manager) SetBuild(backend Backend) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.build = backend
}

// SetOutput installs (or, with nil, clears) the output tier.
func (m *Manager) SetOutput(backend Backend) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.output = backend
}

// Safe operations: local-only, never touch the network.

func (m *Manager) SafeOpen(ctx context.Context, id artifact.Id) (artifact.Artifact, error) {
	key := id.String()
	if a, ok := m.manifests.Get(key); ok {
		return a, nil
	}
	a, err := m.local.Open(ctx, id)
	if err != nil {
		return artifact.Artifact{}, err
	}
	m.manifests.Add(key, a)
	return a, nil
}

func (m *Manager) SafeRead(ctx context.Context, layer artifact.Layer) (io.ReadCloser, error) {
	return m.local.Read(ctx, layer)
}

func (m *Manager) SafeStartLayer(ctx context.Context) (LayerWriter, error) {
	return m.local.StartLayer(ctx)
}

func (m *Manager) SafeSave(ctx context.Context, a artifact.Artifact) error {
	if err := m.local.Save(ctx, a); err != nil {
		return err
	}
	m.manifests.Add(a.Config.Id.String(), a)
	return nil
}

// Unsafe operations: may touch source/build tiers.

// FindSource locates id in the first source tier that has it, without
// downloading anything.
func (m *Manager) FindSource(ctx context.Context, id artifact.Id) (Backend, bool, error) {
	m.mu.RLock()
	sources := append([]sourceTier(nil), m.sources...)
	m.mu.RUnlock()

	for _, tier := range sources {
		ok, err := tier.backend.Has(ctx, id)
		if err != nil {
			return nil, false, fmt.Errorf("storage: checking source %q for %s: %w", tier.name, id, err)
		}
		if ok {
			return tier.backend, true, nil
		}
	}
	return nil, false, nil
}

// FetchSource synchronizes id from the first source tier that has it
// into the local backend, then returns the local artifact.
func (m *Manager) FetchSource(ctx context.Context, id artifact.Id) (artifact.Artifact, error) {
	backend, ok, err := m.FindSource(ctx, id)
	if err != nil {
		return artifact.Artifact{}, err
	}
	if !ok {
		return artifact.Artifact{}, fmt.Errorf("storage: fetch_source %s: %w", id, edoerr.NotFound)
	}
	if err := m.synchronize(ctx, backend, m.local, id); err != nil {
		return artifact.Artifact{}, err
	}
	return m.local.Open(ctx, id)
}

// FindBuild consults the build tier for id. If sync is true and the
// artifact is found, it is downloaded to the local backend (layers
// then manifest, per the synchronization contract) before returning.
func (m *Manager) FindBuild(ctx context.Context, id artifact.Id, sync bool) (artifact.Artifact, bool, error) {
	m.mu.RLock()
	build := m.build
	m.mu.RUnlock()

	if build == nil {
		return artifact.Artifact{}, false, nil
	}
	ok, err := build.Has(ctx, id)
	if err != nil {
		return artifact.Artifact{}, false, fmt.Errorf("storage: checking build tier for %s: %w", id, err)
	}
	if !ok {
		return artifact.Artifact{}, false, nil
	}
	if !sync {
		a, err := build.Open(ctx, id)
		return a, true, err
	}
	if err := m.synchronize(ctx, build, m.local, id); err != nil {
		return artifact.Artifact{}, false, err
	}
	a, err := m.local.Open(ctx, id)
	return a, true, err
}

// UploadBuild copies the local artifact's layers and manifest to the
// build tier, if one is configured.
func (m *Manager) UploadBuild(ctx context.Context, id artifact.Id) error {
	m.mu.RLock()
	build := m.build
	m.mu.RUnlock()

	if build == nil {
		return nil
	}
	return m.synchronize(ctx, m.local, build, id)
}

// PruneLocal removes artifacts in the local backend that share id's
// name/package/version/arch but carry a different digest. The pruned
// siblings' cache entries are invalidated along with them; since the
// cache has no reverse index from name/package/version/arch to the
// full digest-qualified keys it holds, the whole manifest cache is
// purged rather than picking entries out individually.
func (m *Manager) PruneLocal(ctx context.Context, id artifact.Id) error {
	if err := m.local.Prune(ctx, id); err != nil {
		return err
	}
	m.manifests.Purge()
	return nil
}

// PruneLocalAll prunes every duplicate in the local backend.
func (m *Manager) PruneLocalAll(ctx context.Context) error {
	if err := m.local.PruneAll(ctx); err != nil {
		return err
	}
	m.manifests.Purge()
	return nil
}

// PublishOutput copies the local artifact to the output tier, and
// returns an error when no output tier is configured. Output is write-only: nothing is ever read back from it
// by the manager.
func (m *Manager) PublishOutput(ctx context.Context, id artifact.Id) error {
	m.mu.RLock()
	output := m.output
	m.mu.RUnlock()

	if output == nil {
		return fmt.Errorf("storage: publish_output %s: no output tier configured", id)
	}
	return m.synchronize(ctx, m.local, output, id)
}

// synchronize performs the per-layer parallel copy described in
// spec §4.3: for each layer, stream from src to dst and finish it
// there with the same media type and platform, then save the
// manifest. A failure in any layer aborts the whole operation without
// saving the manifest; partially written destination blobs are left
// in place since content addressing makes them inert.
func (m *Manager) synchronize(ctx context.Context, src, dst Backend, id artifact.Id) error {
	a, err := src.Open(ctx, id)
	if err != nil {
		return fmt.Errorf("storage: synchronize %s: opening source: %w", id, err)
	}

	type result struct {
		index int
		layer artifact.Layer
		err   error
	}
	results := make(chan result, len(a.Layers))
	var wg sync.WaitGroup
	for i, layer := range a.Layers {
		wg.Add(1)
		go func(i int, layer artifact.Layer) {
			defer wg.Done()
			finished, err := copyLayer(ctx, src, dst, layer)
			results <- result{index: i, layer: finished, err: err}
		}(i, layer)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	finishedLayers := make([]artifact.Layer, len(a.Layers))
	var firstErr error
	for r := range results {
		if r.err != nil && firstErr == nil {
			firstErr = fmt.Errorf("storage: synchronize %s: layer %d: %w", id, r.index, r.err)
			continue
		}
		finishedLayers[r.index] = r.layer
	}
	if firstErr != nil {
		return firstErr
	}

	a.Layers = finishedLayers
	return dst.Save(ctx, a)
}

func copyLayer(ctx context.Context, src, dst Backend, layer artifact.Layer) (artifact.Layer, error) {
	reader, err := src.Read(ctx, layer)
	if err != nil {
		return artifact.Layer{}, fmt.Errorf("opening reader: %w", err)
	}
	defer reader.Close()

	writer, err := dst.StartLayer(ctx)
	if err != nil {
		return artifact.Layer{}, fmt.Errorf("opening writer: %w", err)
	}
	if _, err := io.Copy(writer, reader); err != nil {
		writer.Abort()
		return artifact.Layer{}, fmt.Errorf("streaming: %w", err)
	}
	finished, err := writer.Finish(layer.MediaType, layer.Platform)
	if err != nil {
		return artifact.Layer{}, fmt.Errorf("finishing: %w", err)
	}
	return finished, nil
}
