// Copyright 2026 The Edo Authors
// SPDX-License-Identifier: Apache-2.0

// Package edoerr defines the error taxonomy shared by every core
// subsystem. Each kind is a sentinel error value; call sites wrap it
// with contextual detail using fmt.Errorf("...: %w", Kind) so callers
// can still recover the kind with errors.Is while getting a readable
// message. This mirrors how the rest of the module wraps errors —
// plain fmt.Errorf and errors.Is/As, no annotation library.
package edoerr

import "errors"

// Sentinel error kinds. See spec §7 for the full taxonomy this set
// realizes.
var (
	// NotFound means an artifact, layer, transform, farm, or source
	// address is missing. Local to the operation that looked it up.
	NotFound = errors.New("not found")

	// InvalidArtifact means a manifest failed structural or hash
	// validation. Fatal for the operation; never retried.
	InvalidArtifact = errors.New("invalid artifact")

	// Io wraps an underlying filesystem or network failure.
	// Retryable at the caller's discretion; nothing in this module
	// retries it automatically.
	Io = errors.New("i/o error")

	// Backend wraps an opaque storage backend failure carrying the
	// backend's own message.
	Backend = errors.New("backend error")

	// Cycle means the transform DAG contains a cycle. Fatal,
	// configuration-level.
	Cycle = errors.New("dependency cycle")

	// UnsolvableRequirement means the resolver could not satisfy the
	// requested version constraints. Fatal, surfaced with a
	// human-readable conflict trace.
	UnsolvableRequirement = errors.New("unsolvable requirement")

	// PluginFailure wraps a plugin-originated failure. The component
	// tag should be included by the wrapping fmt.Errorf call.
	PluginFailure = errors.New("plugin failure")

	// TransformRetryable is returned by transforms that failed in a
	// way the transform itself considers safe to retry. The
	// scheduler treats this identically to TransformFailed for the
	// purposes of the current run (see spec §9 Open Questions).
	TransformRetryable = errors.New("transform retryable failure")

	// TransformFailed is returned by transforms that failed
	// definitively.
	TransformFailed = errors.New("transform failed")
)
