// Copyright 2026 The Edo Authors
// SPDX-License-Identifier: Apache-2.0

// Package storage implements the artifact storage backend (C2) and
// the tiered storage manager (C3). A Backend is any implementation of
// the capability set in spec §4.2: list/has/open/save/del/copy/prune
// plus streaming layer read/write. LocalBackend is the mandatory
// on-disk implementation every Manager wraps; S3Backend adds a
// networked "unsafe" tier.
package storage

import (
	"context"
	"io"

	"github.com/edo-build/edo/lib/artifact"
)

// Backend is the low-level blob-and-manifest persistence contract.
// Every operation that touches the network or filesystem takes a
// context so callers can bound or cancel it; LocalBackend ignores
// cancellation on its filesystem calls since os does not support it,
// but still honors ctx.Err() at entry.
type Backend interface {
	// List returns every Id currently present.
	List(ctx context.Context) ([]artifact.Id, error)

	// Has reports whether id is present.
	Has(ctx context.Context, id artifact.Id) (bool, error)

	// Open returns the artifact manifest for id.
	Open(ctx context.Context, id artifact.Id) (artifact.Artifact, error)

	// Save persists a as the manifest for its Config.Id, atomically.
	Save(ctx context.Context, a artifact.Artifact) error

	// Del removes id's manifest. Layer blobs it referenced are left in
	// place; a backend may reclaim unreferenced blobs at its own
	// discretion (the local backend does not do so automatically).
	Del(ctx context.Context, id artifact.Id) error

	// Copy deep-copies the artifact at from to to, de-duplicating
	// layer blobs that already exist at the destination.
	Copy(ctx context.Context, from, to Backend, id artifact.Id) error

	// Prune removes every artifact sharing id's Name+Package+Version+
	// Arch but carrying a different Digest.
	Prune(ctx context.Context, id artifact.Id) error

	// PruneAll prunes every duplicate across every stored artifact.
	PruneAll(ctx context.Context) error

	// Read opens a streaming reader over a layer's decompressed bytes.
	Read(ctx context.Context, layer artifact.Layer) (io.ReadCloser, error)

	// StartLayer opens a streaming writer to a temporary blob. The
	// caller writes raw (uncompressed) bytes; FinishLayer compresses,
	// hashes, and commits them.
	StartLayer(ctx context.Context) (LayerWriter, error)
}

// LayerWriter accumulates layer bytes before they are committed to
// the backend. Write accepts raw, uncompressed content; Finish
// compresses it with mt's Compression, hashes the raw bytes with
// artifact.HashLayer, and returns the resulting Layer. Identical raw
// bytes always produce the same Layer.Digest, so a backend may detect
// the blob already exists and skip rewriting it.
type LayerWriter interface {
	io.Writer

	// Finish commits the accumulated bytes as a layer of the given
	// media type and platform tag, returning its descriptor.
	Finish(mt artifact.MediaType, platform string) (artifact.Layer, error)

	// Abort discards the writer without committing anything. Safe to
	// call after Finish as a no-op.
	Abort() error
}
