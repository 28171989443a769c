// Copyright 2026 The Edo Authors
// SPDX-License-Identifier: Apache-2.0

package environment

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/term"

	"github.com/edo-build/edo/lib/storage"
	"github.com/edo-build/edo/sandbox"
)

// SandboxFarm mints Environments that run commands inside a
// bubblewrap sandbox, adapted from the teacher's sandbox package
// (sandbox.Sandbox, sandbox.BwrapBuilder, profile-driven mount and
// namespace configuration) repurposed from agent-worktree isolation
// to transform execution isolation. It gives transforms the hermetic
// isolation LocalFarm cannot: no host filesystem visibility beyond
// the explicit mounts in the resolved profile, and a kernel network
// namespace rather than a best-effort convention.
type SandboxFarm struct {
	base   string
	loader *sandbox.ProfileLoader
}

// NewSandboxFarm returns a farm whose environments are created as
// subdirectories of base, each sandboxed per one of the built-in
// profiles (hermetic, hermetic-gpu, network-full, network-limited,
// readonly) selected by the environment's NetworkAccess policy.
func NewSandboxFarm(base string) (*SandboxFarm, error) {
	loader := sandbox.NewProfileLoader()
	if err := loader.LoadDefaults(); err != nil {
		return nil, fmt.Errorf("environment: sandbox farm: %w", err)
	}
	return &SandboxFarm{base: base, loader: loader}, nil
}

func (f *SandboxFarm) Setup(ctx context.Context, log Logger, mgr *storage.Manager) error {
	if err := os.MkdirAll(f.base, 0o755); err != nil {
		return err
	}
	caps := sandbox.DetectCapabilities()
	if !caps.CanRunSandbox() {
		return fmt.Errorf("environment: sandbox farm: %s", caps.SkipReason())
	}
	return nil
}

func (f *SandboxFarm) Create(ctx context.Context, log Logger, path string) (Environment, error) {
	root := filepath.Join(f.base, filepath.Clean("/"+path))
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("environment: sandbox create %s: %w", path, err)
	}
	return &SandboxEnvironment{
		LocalEnvironment: &LocalEnvironment{
			root:    root,
			env:     make(map[string]string),
			network: NetworkNone(),
		},
		farm: f,
	}, nil
}

// SandboxEnvironment wraps LocalEnvironment for its filesystem I/O
// (the sandbox bind-mounts the same root directory at /workspace, so
// host-side Write/Unpack/Read/CreateDir reach the sandboxed process
// without going through bwrap) and overrides command dispatch to run
// inside bubblewrap instead of directly on the host.
type SandboxEnvironment struct {
	*LocalEnvironment
	farm *SandboxFarm
	sb   *sandbox.Sandbox
}

// Expand returns the path as seen from inside the sandbox, where the
// environment root is always mounted at /workspace — not the host
// path LocalEnvironment.Expand would return.
func (e *SandboxEnvironment) Expand(path string) (string, error) {
	return filepath.Join("/workspace", filepath.Clean("/"+path)), nil
}

func (e *SandboxEnvironment) Setup(ctx context.Context, log Logger, mgr *storage.Manager) error {
	if err := e.LocalEnvironment.Setup(ctx, log, mgr); err != nil {
		return err
	}

	profileName := "hermetic"
	var extraEnv map[string]string
	switch {
	case e.network.IsFull():
		profileName = "network-full"
	case len(e.network.Hosts()) > 0:
		profileName = "network-limited"
		extraEnv = map[string]string{"EDO_NETWORK_ALLOW": strings.Join(e.network.Hosts(), ",")}
	}

	profile, err := e.farm.loader.Resolve(profileName)
	if err != nil {
		return fmt.Errorf("environment: sandbox setup: %w", err)
	}

	sb, err := sandbox.New(sandbox.Config{
		Profile:  profile,
		Worktree: e.root,
		ExtraEnv: extraEnv,
	})
	if err != nil {
		return fmt.Errorf("environment: sandbox setup: %w", err)
	}
	e.sb = sb
	return nil
}

func (e *SandboxEnvironment) Cmd(ctx context.Context, log Logger, id string, path, command string) (bool, error) {
	if e.sb == nil {
		return false, fmt.Errorf("environment: sandbox cmd %s: environment not set up", id)
	}
	dir, err := e.Expand(path)
	if err != nil {
		return false, err
	}
	cmd, err := e.sb.Command(ctx, []string{"bash", "-c", "cd " + shQuote(dir) + " && " + command})
	if err != nil {
		return false, fmt.Errorf("environment: sandbox cmd %s: %w", id, err)
	}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	log.Info("running sandboxed command", "id", id, "path", dir)
	if err := cmd.Run(); err != nil {
		if _, ok := sandbox.IsExitError(err); ok {
			return false, nil
		}
		return false, fmt.Errorf("environment: sandbox cmd %s: %w", id, err)
	}
	return true, nil
}

func (e *SandboxEnvironment) Run(ctx context.Context, log Logger, id string, path string, c *Command) (bool, error) {
	if e.sb == nil {
		return false, fmt.Errorf("environment: sandbox run %s: environment not set up", id)
	}
	cmd, err := e.sb.Command(ctx, []string{"bash", "-c", "cd " + shQuote(path) + " && " + c.Script()})
	if err != nil {
		return false, fmt.Errorf("environment: sandbox run %s: %w", id, err)
	}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	log.Info("running sandboxed command script", "id", id, "path", path)
	if err := cmd.Run(); err != nil {
		if _, ok := sandbox.IsExitError(err); ok {
			return false, nil
		}
		return false, fmt.Errorf("environment: sandbox run %s: %w", id, err)
	}
	return true, nil
}

func (e *SandboxEnvironment) CanShell() bool { return e.sb != nil }

// Shell attaches the calling process's stdio to an interactive bwrap
// invocation, switching the terminal to raw mode for the duration so
// the sandboxed shell sees keystrokes uninterpreted, and restoring it
// on return.
func (e *SandboxEnvironment) Shell(ctx context.Context, path string) error {
	if e.sb == nil {
		return fmt.Errorf("environment: sandbox shell: environment not set up")
	}
	dir, err := e.Expand(path)
	if err != nil {
		return err
	}
	cmd, err := e.sb.Command(ctx, []string{"bash", "-c", "cd " + shQuote(dir) + " && exec bash"})
	if err != nil {
		return fmt.Errorf("environment: sandbox shell: %w", err)
	}
	cmd.Stdin = os.Stdin
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		old, err := term.MakeRaw(fd)
		if err == nil {
			defer term.Restore(fd, old)
		}
	}
	return cmd.Run()
}

func shQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
