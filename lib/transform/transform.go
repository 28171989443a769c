// Copyright 2026 The Edo Authors
// SPDX-License-Identifier: Apache-2.0

// Package transform implements the transform contract (C7): a
// Transform is a single build step — fetch inputs, stage them into an
// environment, run, produce one artifact — and Registry maps the
// configuration addresses the (out of scope) evaluator assigns to the
// Transform instances that realize them. Handle is the bundle of
// shared references (storage, sources, the registry itself, farms)
// every Transform method observes.
package transform

import (
	"context"
	"fmt"

	"github.com/edo-build/edo/lib/addr"
	"github.com/edo-build/edo/lib/artifact"
	"github.com/edo-build/edo/lib/environment"
	"github.com/edo-build/edo/lib/source"
	"github.com/edo-build/edo/lib/storage"
)

// Logger is the minimal structured-logging surface every component
// that reports progress depends on, satisfied by *slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Handle bundles the shared references a Transform's methods need:
// the storage manager for cache lookups and saves, the named sources a
// transform may stage, the registry of every other configured
// transform (used to resolve a dependency's identity), and the farms
// a transform's Environment() address may select.
type Handle struct {
	Storage    *storage.Manager
	Sources    map[string]source.Source
	Transforms *Registry
	Farms      map[string]environment.Farm
}

// Source looks up a named source declared alongside this transform.
func (h *Handle) Source(name string) (source.Source, bool) {
	s, ok := h.Sources[name]
	return s, ok
}

// Farm looks up the farm registered for a.
func (h *Handle) Farm(a addr.Addr) (environment.Farm, bool) {
	f, ok := h.Farms[a.String()]
	return f, ok
}

// StatusKind discriminates the three terminal outcomes a Transform run
// can reach.
type StatusKind int

const (
	StatusSuccess StatusKind = iota
	StatusRetryable
	StatusFailed
)

// Status is the outcome of running a Transform. Exactly one of
// Artifact (on Success) or Err (on Retryable/Failed) is meaningful.
// DebugPath, when non-empty on a non-Success status, names a path
// inside the environment the scheduler should open an interactive
// shell at if the transform CanShell.
type Status struct {
	Kind      StatusKind
	Artifact  artifact.Artifact
	DebugPath string
	Err       error
}

// Success reports a completed build.
func Success(a artifact.Artifact) Status {
	return Status{Kind: StatusSuccess, Artifact: a}
}

// Retryable reports a failure the transform considers safe to retry.
func Retryable(debugPath string, err error) Status {
	return Status{Kind: StatusRetryable, DebugPath: debugPath, Err: err}
}

// Failed reports a definitive failure.
func Failed(debugPath string, err error) Status {
	return Status{Kind: StatusFailed, DebugPath: debugPath, Err: err}
}

// IsSuccess reports whether s represents a completed build.
func (s Status) IsSuccess() bool { return s.Kind == StatusSuccess }

// Transform is a single build operation: fetch inputs, stage them
// into an environment, run, and produce one artifact. Every method
// that can block on I/O takes a context.
type Transform interface {
	// Environment names the farm this transform runs under.
	Environment() addr.Addr

	// Depends lists the transforms that must reach Success before
	// this one may be queued.
	Depends() []addr.Addr

	// UniqueId computes this transform's cache key from inputs
	// observable through h without fetching or running anything: its
	// own configuration, the unique_id of any source it names, and
	// (recursively, via DependencyIds) the UniqueId of each
	// dependency. Two transforms with identical configuration and
	// identical dependency identities must compute the same Id.
	UniqueId(ctx context.Context, h *Handle) (artifact.Id, error)

	// Prepare fetches every source and dependency artifact this
	// transform needs into local storage. Network access is allowed
	// here; Prepare never touches an Environment.
	Prepare(ctx context.Context, log Logger, h *Handle) error

	// Stage hydrates env with the transform's sources and dependency
	// artifacts. Prepare must have already cached everything Stage
	// reads.
	Stage(ctx context.Context, log Logger, h *Handle, env environment.Environment) error

	// Transform performs the build inside env and reports the
	// outcome.
	Transform(ctx context.Context, log Logger, h *Handle, env environment.Environment) Status

	// CanShell reports whether Shell is usable for this transform,
	// typically gated on the underlying Environment's own CanShell.
	CanShell() bool

	// Shell attaches an interactive session to env, used as a debug
	// hook after a Retryable or Failed outcome.
	Shell(ctx context.Context, env environment.Environment) error
}

// DependencyIds resolves the UniqueId of every addr in deps by looking
// each one up in h.Transforms and recursing into its own UniqueId.
// Shared by Transform.UniqueId implementations so the recursive
// identity walk — the mechanism that makes a transform's cache key
// depend on its whole dependency subtree rather than just its own
// configuration — is written once.
func DependencyIds(ctx context.Context, h *Handle, deps []addr.Addr) ([]artifact.Id, error) {
	ids := make([]artifact.Id, 0, len(deps))
	for _, dep := range deps {
		t, ok := h.Transforms.Get(dep)
		if !ok {
			return nil, fmt.Errorf("transform: dependency %s is not registered", dep)
		}
		id, err := t.UniqueId(ctx, h)
		if err != nil {
			return nil, fmt.Errorf("transform: resolving dependency %s: %w", dep, err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
