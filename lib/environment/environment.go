// Copyright 2026 The Edo Authors
// SPDX-License-Identifier: Apache-2.0

// Package environment defines the execution-context contract (C6)
// transforms run inside: Farm, a shared immutable factory, mints
// per-transform Environment instances that own a filesystem
// namespace, environment variables, and command dispatch. Two
// implementations are provided: LocalFarm runs commands directly on
// the host inside a scratch directory, and SandboxFarm runs them
// inside a bubblewrap sandbox, adapted from the teacher's sandbox
// package (sandbox.Sandbox, sandbox.BwrapBuilder) repurposed from
// agent-worktree isolation to transform execution isolation.
package environment

import (
	"context"
	"io"

	"github.com/edo-build/edo/lib/storage"
)

// Logger is the minimal structured-logging surface an environment
// reports progress through, satisfied by *slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NetworkAccess controls the environment's network namespace.
// Environments default to NetworkNone; Full and Limited must be
// explicitly configured.
type NetworkAccess struct {
	kind  networkKind
	hosts []string
}

type networkKind int

const (
	networkNone networkKind = iota
	networkFull
	networkLimited
)

// NetworkNone disables all network access. This is the default.
func NetworkNone() NetworkAccess { return NetworkAccess{kind: networkNone} }

// NetworkFull grants unrestricted network access.
func NetworkFull() NetworkAccess { return NetworkAccess{kind: networkFull} }

// NetworkLimited records the named hosts as the policy's allow-list.
// SandboxEnvironment runs it under the network-limited profile, which
// shares the host network namespace, and hands the hosts to the
// sandboxed process as EDO_NETWORK_ALLOW. The hosts are not resolved
// and no network-level restriction to them is applied.
func NetworkLimited(hosts ...string) NetworkAccess {
	cp := make([]string, len(hosts))
	copy(cp, hosts)
	return NetworkAccess{kind: networkLimited, hosts: cp}
}

// IsNone reports whether network access is fully disabled.
func (n NetworkAccess) IsNone() bool { return n.kind == networkNone }

// IsFull reports whether network access is unrestricted.
func (n NetworkAccess) IsFull() bool { return n.kind == networkFull }

// Hosts returns the allow-listed hosts for a Limited policy, or nil
// for None/Full.
func (n NetworkAccess) Hosts() []string {
	if n.kind != networkLimited {
		return nil
	}
	cp := make([]string, len(n.hosts))
	copy(cp, n.hosts)
	return cp
}

// Farm is a shared, immutable factory for Environments of one kind.
// Farms are registered once and safe for concurrent use; Create is
// called once per transform execution.
type Farm interface {
	// Setup performs one-time preparation (e.g. pulling a base
	// image) shared across every Environment the farm later creates.
	Setup(ctx context.Context, log Logger, mgr *storage.Manager) error

	// Create mints a new Environment rooted at path. The returned
	// Environment is owned by the caller, which must call Down
	// exactly once after a successful Up.
	Create(ctx context.Context, log Logger, path string) (Environment, error)
}

// Environment is a runnable execution context a transform runs
// inside, created per-transform and torn down before the owning task
// exits.
type Environment interface {
	// Expand resolves path to an absolute path inside the
	// environment's own namespace.
	Expand(path string) (string, error)

	// CreateDir creates a directory inside the environment.
	CreateDir(path string) error

	// SetEnv sets an environment variable visible to commands run
	// inside the environment.
	SetEnv(key, value string)

	// GetEnv returns a previously set environment variable and
	// whether it was present.
	GetEnv(key string) (string, bool)

	// Setup prepares the environment for execution (e.g. unpacking a
	// base image) but does not activate it.
	Setup(ctx context.Context, log Logger, mgr *storage.Manager) error

	// Up activates the environment. Must follow Setup.
	Up(ctx context.Context, log Logger) error

	// Down deactivates the environment. Must be called on every exit
	// path following a successful Up, including failures.
	Down(ctx context.Context, log Logger) error

	// Clean removes scratch state left behind after Down.
	Clean(ctx context.Context, log Logger) error

	// Write streams reader's bytes verbatim to path inside the
	// environment.
	Write(path string, reader io.Reader) error

	// Unpack extracts an archive from reader into path inside the
	// environment.
	Unpack(path string, reader io.Reader) error

	// Read streams path's contents (archiving a directory) to writer.
	Read(path string, writer io.Writer) error

	// Cmd runs a single one-shot command string rooted at path and
	// reports whether it exited successfully.
	Cmd(ctx context.Context, log Logger, id string, path, command string) (bool, error)

	// Run executes a built Command and reports whether it exited
	// successfully.
	Run(ctx context.Context, log Logger, id string, path string, cmd *Command) (bool, error)

	// CanShell reports whether this environment supports an
	// interactive Shell attach.
	CanShell() bool

	// Shell opens an interactive shell rooted at path, attaching the
	// calling process's stdio.
	Shell(ctx context.Context, path string) error
}
