// Copyright 2026 The Edo Authors
// SPDX-License-Identifier: Apache-2.0

// Package source implements the source-provider contract: fetching
// external bytes into storage and staging them into a build
// environment. GitSource wraps lib/git to fetch a ref; HTTPSource
// fetches a URL directly; LocalSource reads a JSONC-described fixture
// manifest, the same format lib/vendor.LocalVendor catalogs use.
package source

import (
	"context"
	"fmt"
	"io"

	"github.com/edo-build/edo/lib/artifact"
	"github.com/edo-build/edo/lib/edoerr"
	"github.com/edo-build/edo/lib/environment"
	"github.com/edo-build/edo/lib/storage"
)

// Logger is the minimal structured-logging surface every component
// that reports progress depends on, satisfied by *slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Source fetches external content into a storage Manager's local
// backend and stages cached content into an environment. Every
// operation must be idempotent: calling Fetch twice for the same
// provider must not produce two different artifacts.
type Source interface {
	// UniqueId returns a deterministic Id derived from the provider's
	// kind and its normalized inputs, used as the cache key under
	// which Fetch's result is stored.
	UniqueId() artifact.Id

	// Fetch produces bytes, pushes them as one or more layers into
	// the manager's local backend, and returns the resulting
	// artifact. Idempotent: re-fetching identical inputs reproduces
	// the same Id.
	Fetch(ctx context.Context, log Logger, mgr *storage.Manager) (artifact.Artifact, error)

	// Stage writes or unpacks the cached artifact into path within
	// env.
	Stage(ctx context.Context, log Logger, mgr *storage.Manager, env environment.Environment, path string) error
}

// Cache is the default-implemented cache lookup every Source shares:
// consult the local backend for UniqueId first, then the manager's
// source tiers (FetchSource, which leaves a local copy), and only call
// Fetch when neither has it.
func Cache(ctx context.Context, log Logger, mgr *storage.Manager, s Source) (artifact.Artifact, error) {
	id := s.UniqueId()
	a, err := mgr.SafeOpen(ctx, id)
	if err == nil {
		return a, nil
	}
	if a, err := mgr.FetchSource(ctx, id); err == nil {
		return a, nil
	}
	return s.Fetch(ctx, log, mgr)
}

// stageArtifact is the shared unpack/write helper every Source.Stage
// implementation uses once it has a cached artifact: each layer of
// File media type is written verbatim to path, any other layer is
// unpacked there as an archive.
func stageArtifact(ctx context.Context, mgr *storage.Manager, env environment.Environment, a artifact.Artifact, path string) error {
	if len(a.Layers) == 0 {
		return fmt.Errorf("source: stage %s: artifact has no layers", a.Config.Id)
	}
	for _, layer := range a.Layers {
		reader, err := mgr.SafeRead(ctx, layer)
		if err != nil {
			return fmt.Errorf("source: stage %s: %w", a.Config.Id, err)
		}
		stageErr := stageLayer(env, path, layer, reader)
		reader.Close()
		if stageErr != nil {
			return fmt.Errorf("source: stage %s: %w", a.Config.Id, stageErr)
		}
	}
	return nil
}

func stageLayer(env environment.Environment, path string, layer artifact.Layer, r io.Reader) error {
	switch layer.MediaType.Kind() {
	case artifact.KindFile:
		return env.Write(path, r)
	default:
		return env.Unpack(path, r)
	}
}

// errValidationFailed is returned when a source's integrity check
// (e.g. an HTTP source's expected digest) does not match the fetched
// bytes.
var errValidationFailed = fmt.Errorf("source: %w", edoerr.InvalidArtifact)
