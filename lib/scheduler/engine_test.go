// Copyright 2026 The Edo Authors
// SPDX-License-Identifier: Apache-2.0

package scheduler

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/edo-build/edo/lib/addr"
	"github.com/edo-build/edo/lib/artifact"
	"github.com/edo-build/edo/lib/environment"
	"github.com/edo-build/edo/lib/storage"
	"github.com/edo-build/edo/lib/transform"
)

type testLogger struct{}

func (testLogger) Info(msg string, args ...any)  {}
func (testLogger) Warn(msg string, args ...any)  {}
func (testLogger) Error(msg string, args ...any) {}

// fakeEnv is a no-op environment.Environment: the fake transforms in
// this file never touch it, they only need Setup/Up/Down to succeed
// so Engine.execute's program-order sequencing runs to completion.
type fakeEnv struct{}

func (fakeEnv) Expand(path string) (string, error)   { return path, nil }
func (fakeEnv) CreateDir(path string) error           { return nil }
func (fakeEnv) SetEnv(key, value string)              {}
func (fakeEnv) GetEnv(key string) (string, bool)      { return "", false }
func (fakeEnv) Setup(ctx context.Context, log environment.Logger, mgr *storage.Manager) error {
	return nil
}
func (fakeEnv) Up(ctx context.Context, log environment.Logger) error   { return nil }
func (fakeEnv) Down(ctx context.Context, log environment.Logger) error { return nil }
func (fakeEnv) Clean(ctx context.Context, log environment.Logger) error {
	return nil
}
func (fakeEnv) Write(path string, reader io.Reader) error  { return nil }
func (fakeEnv) Unpack(path string, reader io.Reader) error { return nil }
func (fakeEnv) Read(path string, writer io.Writer) error   { return nil }
func (fakeEnv) Cmd(ctx context.Context, log environment.Logger, id string, path, command string) (bool, error) {
	return true, nil
}
func (fakeEnv) Run(ctx context.Context, log environment.Logger, id string, path string, cmd *environment.Command) (bool, error) {
	return true, nil
}
func (fakeEnv) CanShell() bool                             { return false }
func (fakeEnv) Shell(ctx context.Context, path string) error { return nil }

var _ environment.Environment = fakeEnv{}

type fakeFarm struct{}

func (fakeFarm) Setup(ctx context.Context, log environment.Logger, mgr *storage.Manager) error {
	return nil
}
func (fakeFarm) Create(ctx context.Context, log environment.Logger, path string) (environment.Environment, error) {
	return fakeEnv{}, nil
}

var _ environment.Farm = fakeFarm{}

// recorder tracks the order Transform() is invoked across goroutines.
type recorder struct {
	mu    sync.Mutex
	order []string
}

func (r *recorder) record(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, name)
}

func (r *recorder) has(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, n := range r.order {
		if n == name {
			return true
		}
	}
	return false
}

// fakeTransform is a configurable transform.Transform: it records
// when it runs and can be made to fail, so tests can assert ordering
// and failure-propagation without a real build.
type fakeTransform struct {
	name     string
	farm     addr.Addr
	deps     []addr.Addr
	id       artifact.Id
	fail     bool
	rec      *recorder
	precheck func() error // run synchronously before recording, to assert predecessor state
}

func (f *fakeTransform) Environment() addr.Addr { return f.farm }
func (f *fakeTransform) Depends() []addr.Addr   { return f.deps }
func (f *fakeTransform) UniqueId(ctx context.Context, h *transform.Handle) (artifact.Id, error) {
	return f.id, nil
}
func (f *fakeTransform) Prepare(ctx context.Context, log transform.Logger, h *transform.Handle) error {
	return nil
}
func (f *fakeTransform) Stage(ctx context.Context, log transform.Logger, h *transform.Handle, env environment.Environment) error {
	return nil
}
func (f *fakeTransform) Transform(ctx context.Context, log transform.Logger, h *transform.Handle, env environment.Environment) transform.Status {
	if f.precheck != nil {
		if err := f.precheck(); err != nil {
			return transform.Failed("", err)
		}
	}
	f.rec.record(f.name)
	if f.fail {
		return transform.Failed("", fmt.Errorf("fakeTransform %s: forced failure", f.name))
	}
	return transform.Success(artifact.Artifact{Config: artifact.Config{Id: f.id}})
}
func (f *fakeTransform) CanShell() bool { return false }
func (f *fakeTransform) Shell(ctx context.Context, env environment.Environment) error {
	return nil
}

func newTestHandle(t *testing.T, r *transform.Registry) *transform.Handle {
	t.Helper()
	backend, err := storage.NewLocalBackend(t.TempDir())
	if err != nil {
		t.Fatalf("NewLocalBackend: %v", err)
	}
	mgr := storage.NewManager(backend)
	farmAddr := addr.MustParse("//farms/local")
	return &transform.Handle{
		Storage:    mgr,
		Transforms: r,
		Farms:      map[string]environment.Farm{farmAddr.String(): fakeFarm{}},
	}
}

func TestEngineRunsLeafBeforeDependent(t *testing.T) {
	r := transform.NewRegistry()
	rec := &recorder{}
	farmAddr := addr.MustParse("//farms/local")
	leafAddr := addr.MustParse("//leaf")
	topAddr := addr.MustParse("//top")

	leaf := &fakeTransform{name: "leaf", farm: farmAddr, id: mustId(t, "leaf"), rec: rec}
	top := &fakeTransform{
		name: "top", farm: farmAddr, deps: []addr.Addr{leafAddr}, id: mustId(t, "top"), rec: rec,
		precheck: func() error {
			if !rec.has("leaf") {
				return fmt.Errorf("top ran before leaf")
			}
			return nil
		},
	}
	if err := r.Register(leafAddr, leaf); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(topAddr, top); err != nil {
		t.Fatalf("Register: %v", err)
	}
	r.Freeze()

	h := newTestHandle(t, r)
	g := NewGraph()
	if _, err := g.Add(h, topAddr); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if err := g.DetectCycles(); err != nil {
		t.Fatalf("DetectCycles: %v", err)
	}

	e := NewEngine(g, h, 4)
	if err := e.Fetch(context.Background(), testLogger{}); err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if err := e.Run(context.Background(), testLogger{}, topAddr); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if !rec.has("leaf") || !rec.has("top") {
		t.Fatalf("expected both leaf and top to run, got %v", rec.order)
	}

	leafIdx, _ := g.IndexOf(leafAddr)
	topIdx, _ := g.IndexOf(topAddr)
	if g.Node(leafIdx).Status() != Success {
		t.Errorf("leaf status = %s, want success", g.Node(leafIdx).Status())
	}
	if g.Node(topIdx).Status() != Success {
		t.Errorf("top status = %s, want success", g.Node(topIdx).Status())
	}
}

func TestEngineFailurePropagatesAndStopsQueueingNewWork(t *testing.T) {
	r := transform.NewRegistry()
	rec := &recorder{}
	farmAddr := addr.MustParse("//farms/local")
	leafAddr := addr.MustParse("//leaf")
	topAddr := addr.MustParse("//top")

	leaf := &fakeTransform{name: "leaf", farm: farmAddr, id: mustId(t, "leaf"), rec: rec, fail: true}
	top := &fakeTransform{name: "top", farm: farmAddr, deps: []addr.Addr{leafAddr}, id: mustId(t, "top"), rec: rec}
	if err := r.Register(leafAddr, leaf); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := r.Register(topAddr, top); err != nil {
		t.Fatalf("Register: %v", err)
	}
	r.Freeze()

	h := newTestHandle(t, r)
	g := NewGraph()
	if _, err := g.Add(h, topAddr); err != nil {
		t.Fatalf("Add: %v", err)
	}

	e := NewEngine(g, h, 4)
	err := e.Run(context.Background(), testLogger{}, topAddr)
	if err == nil {
		t.Fatal("Run should report an error when leaf fails")
	}
	if rec.has("top") {
		t.Error("top should never run: its only dependency failed")
	}

	leafIdx, _ := g.IndexOf(leafAddr)
	topIdx, _ := g.IndexOf(topAddr)
	if g.Node(leafIdx).Status() != Failed {
		t.Errorf("leaf status = %s, want failed", g.Node(leafIdx).Status())
	}
	if g.Node(topIdx).Status() == Success {
		t.Error("top should not reach success")
	}
}

func TestEngineBatchSizeLimitsConcurrency(t *testing.T) {
	r := transform.NewRegistry()
	rec := &recorder{}
	farmAddr := addr.MustParse("//farms/local")

	var mu sync.Mutex
	inflight := 0
	maxInflight := 0
	track := func() {
		mu.Lock()
		inflight++
		if inflight > maxInflight {
			maxInflight = inflight
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		inflight--
		mu.Unlock()
	}

	leaves := make([]addr.Addr, 0, 6)
	for i := 0; i < 6; i++ {
		a := addr.MustParse(fmt.Sprintf("//leaf%d", i))
		leaves = append(leaves, a)
		ft := &fakeTransform{name: a.String(), farm: farmAddr, id: mustId(t, fmt.Sprintf("leaf%d", i)), rec: rec}
		ft.precheck = func() error { track(); return nil }
		if err := r.Register(a, ft); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	topAddr := addr.MustParse("//top")
	if err := r.Register(topAddr, &fakeTransform{name: "top", farm: farmAddr, deps: leaves, id: mustId(t, "top"), rec: rec}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	r.Freeze()

	h := newTestHandle(t, r)
	g := NewGraph()
	if _, err := g.Add(h, topAddr); err != nil {
		t.Fatalf("Add: %v", err)
	}

	e := NewEngine(g, h, 2)
	if err := e.Run(context.Background(), testLogger{}, topAddr); err != nil {
		t.Fatalf("Run: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if maxInflight > 2 {
		t.Errorf("observed %d concurrent transforms, want at most BatchSize=2", maxInflight)
	}
}
