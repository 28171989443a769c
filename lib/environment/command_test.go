// Copyright 2026 The Edo Authors
// SPDX-License-Identifier: Apache-2.0

package environment

import (
	"context"
	"io"
	"path"
	"strings"
	"testing"

	"github.com/edo-build/edo/lib/storage"
)

type fakeLogger struct{}

func (fakeLogger) Info(msg string, args ...any)  {}
func (fakeLogger) Warn(msg string, args ...any)  {}
func (fakeLogger) Error(msg string, args ...any) {}

// fakeEnvironment records the last Command sent to it, for assertions
// on the rendered script without spawning a real shell.
type fakeEnvironment struct {
	lastScript string
	lastPath   string
	ok         bool
	err        error
}

func (f *fakeEnvironment) Expand(p string) (string, error) { return path.Join("/root", p), nil }
func (f *fakeEnvironment) CreateDir(path string) error     { return nil }
func (f *fakeEnvironment) SetEnv(key, value string)        {}
func (f *fakeEnvironment) GetEnv(key string) (string, bool) { return "", false }
func (f *fakeEnvironment) Setup(ctx context.Context, log Logger, mgr *storage.Manager) error {
	return nil
}
func (f *fakeEnvironment) Up(ctx context.Context, log Logger) error   { return nil }
func (f *fakeEnvironment) Down(ctx context.Context, log Logger) error { return nil }
func (f *fakeEnvironment) Clean(ctx context.Context, log Logger) error { return nil }
func (f *fakeEnvironment) Write(path string, r io.Reader) error       { return nil }
func (f *fakeEnvironment) Unpack(path string, r io.Reader) error      { return nil }
func (f *fakeEnvironment) Read(path string, w io.Writer) error        { return nil }
func (f *fakeEnvironment) Cmd(ctx context.Context, log Logger, id string, path, command string) (bool, error) {
	return true, nil
}
func (f *fakeEnvironment) Run(ctx context.Context, log Logger, id string, path string, c *Command) (bool, error) {
	f.lastPath = path
	f.lastScript = c.Script()
	return f.ok, f.err
}
func (f *fakeEnvironment) CanShell() bool                              { return false }
func (f *fakeEnvironment) Shell(ctx context.Context, path string) error { return nil }

var _ Environment = (*fakeEnvironment)(nil)

func TestCommandScriptBuildsShellLines(t *testing.T) {
	env := &fakeEnvironment{ok: true}
	c := NewCommand("build-curl", env)
	c.Set("prefix", "/opt/curl")
	c.Chdir("{{prefix}}/src")
	c.CreateDir("{{prefix}}/build")
	c.Run("make -j{{jobs}}")
	c.Popd()

	script := c.Script()
	if !strings.HasPrefix(script, "#!/usr/bin/env bash\n") {
		t.Errorf("script missing shebang: %q", script)
	}
	if !strings.Contains(script, "cd /opt/curl/src") {
		t.Errorf("chdir not substituted correctly: %q", script)
	}
	if !strings.Contains(script, "mkdir -p /opt/curl/build") {
		t.Errorf("create_dir not substituted correctly: %q", script)
	}

	// "{{jobs}}" was never Set, so Run's substitution should have
	// latched an error rather than emitting the line verbatim.
	if strings.Contains(script, "{{jobs}}") {
		t.Errorf("expected undefined variable to be dropped from the script, not passed through: %q", script)
	}
	if err := c.Send(context.Background(), fakeLogger{}, "/work"); err == nil {
		t.Error("Send should error on an undefined template variable referenced earlier in the build")
	}
}

func TestCommandSendReportsFailure(t *testing.T) {
	env := &fakeEnvironment{ok: false}
	c := NewCommand("build-curl", env)
	c.Run("false")
	if err := c.Send(context.Background(), fakeLogger{}, "/work"); err == nil {
		t.Error("Send should error when the environment reports failure")
	}
}

func TestCommandSendSucceeds(t *testing.T) {
	env := &fakeEnvironment{ok: true}
	c := NewCommand("build-curl", env)
	c.Run("true")
	if err := c.Send(context.Background(), fakeLogger{}, "/work"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if env.lastPath != "/root/work" {
		t.Errorf("Send did not expand path before Run: got %q", env.lastPath)
	}
}

func TestCommandSendReportsUndefinedVariable(t *testing.T) {
	env := &fakeEnvironment{ok: true}
	c := NewCommand("build-curl", env)
	c.Chdir("{{missing}}")
	if err := c.Send(context.Background(), fakeLogger{}, "/work"); err == nil {
		t.Error("Send should error on an undefined template variable")
	}
	if env.lastScript != "" {
		t.Errorf("Environment.Run should not be invoked once a substitution has failed, got script: %q", env.lastScript)
	}
}
