// Copyright 2026 The Edo Authors
// SPDX-License-Identifier: Apache-2.0

package source

import (
	"context"
	"io"
	"testing"

	"github.com/edo-build/edo/lib/artifact"
	"github.com/edo-build/edo/lib/environment"
	"github.com/edo-build/edo/lib/storage"
)

var (
	_ Source = countingSource{}
	_ Source = GitSource{}
	_ Source = HTTPSource{}
	_ Source = LocalSource{}
)

type testLogger struct{}

func (testLogger) Info(msg string, args ...any)  {}
func (testLogger) Warn(msg string, args ...any)  {}
func (testLogger) Error(msg string, args ...any) {}

func newTestManager(t *testing.T) *storage.Manager {
	t.Helper()
	backend, err := storage.NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalBackend: %v", err)
	}
	return storage.NewManager(backend)
}

// captureEnvironment records every Write/Unpack call so Stage tests
// can assert on staged content without a real Farm.
type captureEnvironment struct {
	environment.Environment
	written  map[string]string
	unpacked map[string]bool
}

func newCaptureEnvironment() *captureEnvironment {
	return &captureEnvironment{written: map[string]string{}, unpacked: map[string]bool{}}
}

func (e *captureEnvironment) Write(path string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	e.written[path] = string(data)
	return nil
}

func (e *captureEnvironment) Unpack(path string, r io.Reader) error {
	e.unpacked[path] = true
	_, err := io.Copy(io.Discard, r)
	return err
}

// countingSource is a minimal Source used to test the shared Cache
// helper without exercising a real provider.
type countingSource struct {
	calls *int
}

func (s countingSource) UniqueId() artifact.Id {
	return artifact.Id{Name: "counting-fixture", Digest: "0000000000000000000000000000000000000000000000000000000000000000"}
}

func (s countingSource) Fetch(ctx context.Context, log Logger, mgr *storage.Manager) (artifact.Artifact, error) {
	*s.calls++
	id := s.UniqueId()
	writer, err := mgr.SafeStartLayer(ctx)
	if err != nil {
		return artifact.Artifact{}, err
	}
	writer.Write([]byte("fixture content"))
	layer, err := writer.Finish(artifact.File(artifact.CompressionNone), "")
	if err != nil {
		return artifact.Artifact{}, err
	}
	a := artifact.NewExternal(id, artifact.Config{}, []artifact.Layer{layer})
	return a, mgr.SafeSave(ctx, a)
}

func (s countingSource) Stage(ctx context.Context, log Logger, mgr *storage.Manager, env environment.Environment, path string) error {
	a, err := Cache(ctx, log, mgr, s)
	if err != nil {
		return err
	}
	return stageArtifact(ctx, mgr, env, a, path)
}

func TestCacheFetchesOnlyOnMiss(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager(t)
	calls := 0
	src := countingSource{calls: &calls}

	if _, err := Cache(ctx, testLogger{}, mgr, src); err != nil {
		t.Fatalf("Cache: %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 fetch, got %d", calls)
	}

	if _, err := Cache(ctx, testLogger{}, mgr, src); err != nil {
		t.Fatalf("Cache (second): %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected cache hit to skip Fetch, got %d calls", calls)
	}
}

func TestStageWritesFileArtifact(t *testing.T) {
	ctx := context.Background()
	mgr := newTestManager(t)
	calls := 0
	src := countingSource{calls: &calls}
	env := newCaptureEnvironment()

	if err := src.Stage(ctx, testLogger{}, mgr, env, "/out/fixture"); err != nil {
		t.Fatalf("Stage: %v", err)
	}
	if env.written["/out/fixture"] != "fixture content" {
		t.Errorf("staged content = %q, want %q", env.written["/out/fixture"], "fixture content")
	}
}
