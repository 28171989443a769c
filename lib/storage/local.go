// Copyright 2026 The Edo Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/edo-build/edo/lib/artifact"
	"github.com/edo-build/edo/lib/edoerr"
)

// LocalBackend is the default, mandatory backend: blobs live at
// <root>/blobs/blake3/<digest>, one file per layer, and manifests live
// in a single <root>/catalog.json mapping Id.String() to the
// serialized Artifact. Every write to catalog.json is atomic (temp
// file + rename).
type LocalBackend struct {
	root string

	mu      sync.RWMutex
	catalog map[string]artifact.Artifact
}

// catalogFileName is the manifest file at the root of a LocalBackend.
const catalogFileName = "catalog.json"

// blobsDirName and blobsSubdir lay out <root>/blobs/blake3/<digest>.
const (
	blobsDirName = "blobs"
	blobsSubdir  = "blake3"
)

// NewLocalBackend opens (or creates) a local backend rooted at dir.
func NewLocalBackend(dir string) (*LocalBackend, error) {
	if err := os.MkdirAll(filepath.Join(dir, blobsDirName, blobsSubdir), 0o755); err != nil {
		return nil, fmt.Errorf("storage: creating blob directory: %w", err)
	}
	b := &LocalBackend{root: dir, catalog: map[string]artifact.Artifact{}}
	if err := b.loadCatalog(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *LocalBackend) catalogPath() string {
	return filepath.Join(b.root, catalogFileName)
}

func (b *LocalBackend) blobPath(digest string) string {
	return filepath.Join(b.root, blobsDirName, blobsSubdir, digest)
}

func (b *LocalBackend) loadCatalog() error {
	data, err := os.ReadFile(b.catalogPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("storage: reading catalog: %w", err)
	}
	var entries map[string]artifact.Artifact
	if err := json.Unmarshal(data, &entries); err != nil {
		return fmt.Errorf("storage: parsing catalog: %w", err)
	}
	b.catalog = entries
	return nil
}

// saveCatalogLocked writes the catalog atomically. Caller must hold
// b.mu for writing.
func (b *LocalBackend) saveCatalogLocked() error {
	data, err := json.MarshalIndent(b.catalog, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: encoding catalog: %w", err)
	}

	tmpFile, err := os.CreateTemp(b.root, "catalog-*.tmp")
	if err != nil {
		return fmt.Errorf("storage: creating temp catalog file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("storage: writing temp catalog file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("storage: closing temp catalog file: %w", err)
	}
	if err := os.Rename(tmpPath, b.catalogPath()); err != nil {
		return fmt.Errorf("storage: renaming catalog file: %w", err)
	}

	success = true
	return nil
}

func (b *LocalBackend) List(ctx context.Context) ([]artifact.Id, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()

	ids := make([]artifact.Id, 0, len(b.catalog))
	for _, a := range b.catalog {
		ids = append(ids, a.Config.Id)
	}
	return ids, nil
}

func (b *LocalBackend) Has(ctx context.Context, id artifact.Id) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.catalog[id.String()]
	return ok, nil
}

func (b *LocalBackend) Open(ctx context.Context, id artifact.Id) (artifact.Artifact, error) {
	if err := ctx.Err(); err != nil {
		return artifact.Artifact{}, err
	}
	b.mu.RLock()
	a, ok := b.catalog[id.String()]
	b.mu.RUnlock()
	if !ok {
		return artifact.Artifact{}, fmt.Errorf("storage: open %s: %w", id, edoerr.NotFound)
	}
	if err := a.Verify(); err != nil {
		return artifact.Artifact{}, fmt.Errorf("storage: open %s: %w: %w", id, edoerr.InvalidArtifact, err)
	}
	return a, nil
}

func (b *LocalBackend) Save(ctx context.Context, a artifact.Artifact) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := a.Verify(); err != nil {
		return fmt.Errorf("storage: save %s: %w: %w", a.Config.Id, edoerr.InvalidArtifact, err)
	}
	for _, layer := range a.Layers {
		if _, err := os.Stat(b.blobPath(layer.Digest)); err != nil {
			return fmt.Errorf("storage: save %s: layer %s not present: %w", a.Config.Id, layer.Digest, edoerr.Backend)
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.catalog[a.Config.Id.String()] = a
	return b.saveCatalogLocked()
}

func (b *LocalBackend) Del(ctx context.Context, id artifact.Id) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.catalog[id.String()]; !ok {
		return fmt.Errorf("storage: del %s: %w", id, edoerr.NotFound)
	}
	delete(b.catalog, id.String())
	return b.saveCatalogLocked()
}

func (b *LocalBackend) Copy(ctx context.Context, from, to Backend, id artifact.Id) error {
	return copyArtifact(ctx, from, to, id)
}

// copyArtifact implements the deep-copy contract (spec §4.2 `copy`)
// shared by every Backend: open the manifest on from, stream each
// layer's decompressed bytes into to and finish it there with the
// layer's own media type (and so its compression), and save the
// manifest on to only once every layer has finished.
func copyArtifact(ctx context.Context, from, to Backend, id artifact.Id) error {
	a, err := from.Open(ctx, id)
	if err != nil {
		return err
	}
	for i, layer := range a.Layers {
		if err := ctx.Err(); err != nil {
			return err
		}
		reader, err := from.Read(ctx, layer)
		if err != nil {
			return fmt.Errorf("storage: copy %s: reading layer %d: %w", id, i, err)
		}
		writer, err := to.StartLayer(ctx)
		if err != nil {
			reader.Close()
			return fmt.Errorf("storage: copy %s: starting layer %d: %w", id, i, err)
		}
		_, copyErr := io.Copy(writer, reader)
		reader.Close()
		if copyErr != nil {
			writer.Abort()
			return fmt.Errorf("storage: copy %s: copying layer %d: %w", id, i, copyErr)
		}
		// Copy writes the decompressed layer through unchanged, so
		// the destination's finished digest is identical regardless
		// of what compression the destination chooses to apply —
		// Finish hashes raw bytes, not the wire representation.
		if _, err := writer.Finish(layer.MediaType, layer.Platform); err != nil {
			return fmt.Errorf("storage: copy %s: finishing layer %d: %w", id, i, err)
		}
	}
	return to.Save(ctx, a)
}

func (b *LocalBackend) Prune(ctx context.Context, id artifact.Id) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	changed := false
	for key, a := range b.catalog {
		other := a.Config.Id
		if other.Name == id.Name && other.Package == id.Package &&
			other.Version == id.Version && other.Arch == id.Arch &&
			other.Digest != id.Digest {
			delete(b.catalog, key)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return b.saveCatalogLocked()
}

func (b *LocalBackend) PruneAll(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	type key struct{ name, pkg, version, arch string }
	best := map[key]artifact.Id{}
	for _, a := range b.catalog {
		id := a.Config.Id
		k := key{id.Name, id.Package, id.Version, id.Arch}
		if existing, ok := best[k]; !ok || id.Digest > existing.Digest {
			best[k] = id
		}
	}

	changed := false
	for entryKey, a := range b.catalog {
		id := a.Config.Id
		k := key{id.Name, id.Package, id.Version, id.Arch}
		if best[k].Digest != id.Digest {
			delete(b.catalog, entryKey)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return b.saveCatalogLocked()
}

func (b *LocalBackend) Read(ctx context.Context, layer artifact.Layer) (io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, err := os.Open(b.blobPath(layer.Digest))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("storage: read layer %s: %w", layer.Digest, edoerr.NotFound)
		}
		return nil, fmt.Errorf("storage: read layer %s: %w", layer.Digest, err)
	}
	decompressed, err := decompressReader(file, layer.MediaType.Compression())
	if err != nil {
		file.Close()
		return nil, err
	}
	return &closeBoth{inner: decompressed, underlying: file}, nil
}

// closeBoth closes the decompressor and the underlying stream, in
// that order, so the decompressor can flush anything it buffers
// before the underlying file or network object goes away.
type closeBoth struct {
	inner      io.ReadCloser
	underlying io.Closer
}

func (c *closeBoth) Read(p []byte) (int, error) { return c.inner.Read(p) }
func (c *closeBoth) Close() error {
	err := c.inner.Close()
	if underlyingErr := c.underlying.Close(); err == nil {
		err = underlyingErr
	}
	return err
}

func (b *LocalBackend) StartLayer(ctx context.Context) (LayerWriter, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tmpFile, err := os.CreateTemp(filepath.Join(b.root, blobsDirName, blobsSubdir), "layer-*.tmp")
	if err != nil {
		return nil, fmt.Errorf("storage: creating temp blob: %w", err)
	}
	return &localLayerWriter{backend: b, tmp: tmpFile, raw: &bytes.Buffer{}}, nil
}

// localLayerWriter buffers raw bytes in memory (mirroring the
// teacher's own small-artifact fast path) so it can hash them with
// artifact.HashLayer before choosing whether the destination blob
// already exists, then compresses once while streaming to disk.
type localLayerWriter struct {
	backend *LocalBackend
	tmp     *os.File
	raw     *bytes.Buffer
	done    bool
}

func (w *localLayerWriter) Write(p []byte) (int, error) {
	return w.raw.Write(p)
}

func (w *localLayerWriter) Finish(mt artifact.MediaType, platform string) (artifact.Layer, error) {
	if w.done {
		return artifact.Layer{}, fmt.Errorf("storage: layer writer already finished")
	}
	w.done = true
	defer os.Remove(w.tmp.Name())

	raw := w.raw.Bytes()
	digest := artifact.FormatHash(artifact.HashLayer(raw))
	layer := artifact.Layer{MediaType: mt, Digest: digest, Size: int64(len(raw)), Platform: platform}

	finalPath := w.backend.blobPath(digest)
	if _, err := os.Stat(finalPath); err == nil {
		// Identical bytes already stored under this digest — reuse
		// the existing blob (spec §4.2: finish_layer MAY reuse it).
		w.tmp.Close()
		return layer, nil
	}

	compressedWriter, err := compressWriter(w.tmp, mt.Compression())
	if err != nil {
		w.tmp.Close()
		return artifact.Layer{}, err
	}
	if _, err := compressedWriter.Write(raw); err != nil {
		w.tmp.Close()
		return artifact.Layer{}, fmt.Errorf("storage: compressing layer: %w", err)
	}
	if err := compressedWriter.Close(); err != nil {
		w.tmp.Close()
		return artifact.Layer{}, fmt.Errorf("storage: flushing compressed layer: %w", err)
	}
	if err := w.tmp.Close(); err != nil {
		return artifact.Layer{}, fmt.Errorf("storage: closing temp blob: %w", err)
	}
	if err := os.Rename(w.tmp.Name(), finalPath); err != nil {
		return artifact.Layer{}, fmt.Errorf("storage: renaming blob into place: %w", err)
	}
	return layer, nil
}

func (w *localLayerWriter) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	w.tmp.Close()
	return os.Remove(w.tmp.Name())
}
