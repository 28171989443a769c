// Copyright 2026 The Edo Authors
// SPDX-License-Identifier: Apache-2.0

package environment

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocalEnvironmentWriteRead(t *testing.T) {
	ctx := context.Background()
	farm := NewLocalFarm(t.TempDir())
	if err := farm.Setup(ctx, fakeLogger{}, nil); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	env, err := farm.Create(ctx, fakeLogger{}, "transform-1")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := env.Setup(ctx, fakeLogger{}, nil); err != nil {
		t.Fatalf("env Setup: %v", err)
	}
	if err := env.Up(ctx, fakeLogger{}); err != nil {
		t.Fatalf("Up: %v", err)
	}
	defer env.Down(ctx, fakeLogger{})

	if err := env.Write("/out.txt", strings.NewReader("hello world")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	var buf bytes.Buffer
	if err := env.Read("/out.txt", &buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	tr := tar.NewReader(&buf)
	hdr, err := tr.Next()
	if err != nil {
		t.Fatalf("tar.Next: %v", err)
	}
	if hdr.Name != "out.txt" {
		t.Errorf("tar entry name = %q, want out.txt", hdr.Name)
	}
	data, _ := io.ReadAll(tr)
	if string(data) != "hello world" {
		t.Errorf("round-tripped content = %q", data)
	}
}

func TestLocalEnvironmentUnpack(t *testing.T) {
	ctx := context.Background()
	farm := NewLocalFarm(t.TempDir())
	env, err := farm.Create(ctx, fakeLogger{}, "transform-2")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := env.Setup(ctx, fakeLogger{}, nil); err != nil {
		t.Fatalf("Setup: %v", err)
	}

	var archive bytes.Buffer
	tw := tar.NewWriter(&archive)
	content := []byte("package body")
	tw.WriteHeader(&tar.Header{Name: "pkg/README", Mode: 0o644, Size: int64(len(content))})
	tw.Write(content)
	tw.Close()

	if err := env.Unpack("/src", &archive); err != nil {
		t.Fatalf("Unpack: %v", err)
	}

	full, _ := env.Expand("/src")
	got, err := os.ReadFile(filepath.Join(full, "pkg/README"))
	if err != nil {
		t.Fatalf("reading unpacked file: %v", err)
	}
	if string(got) != "package body" {
		t.Errorf("unpacked content = %q", got)
	}
}

func TestLocalEnvironmentCmd(t *testing.T) {
	ctx := context.Background()
	farm := NewLocalFarm(t.TempDir())
	env, err := farm.Create(ctx, fakeLogger{}, "transform-3")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := env.Setup(ctx, fakeLogger{}, nil); err != nil {
		t.Fatalf("Setup: %v", err)
	}

	ok, err := env.Cmd(ctx, fakeLogger{}, "t1", "/", "exit 0")
	if err != nil {
		t.Fatalf("Cmd: %v", err)
	}
	if !ok {
		t.Error("Cmd(exit 0) should report success")
	}

	ok, err = env.Cmd(ctx, fakeLogger{}, "t2", "/", "exit 1")
	if err != nil {
		t.Fatalf("Cmd: %v", err)
	}
	if ok {
		t.Error("Cmd(exit 1) should report failure, not an error")
	}
}

func TestLocalEnvironmentClean(t *testing.T) {
	ctx := context.Background()
	farm := NewLocalFarm(t.TempDir())
	env, err := farm.Create(ctx, fakeLogger{}, "transform-4")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := env.Setup(ctx, fakeLogger{}, nil); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	root, _ := env.Expand("/")
	if _, err := os.Stat(root); err != nil {
		t.Fatalf("root should exist after Setup: %v", err)
	}
	if err := env.Clean(ctx, fakeLogger{}); err != nil {
		t.Fatalf("Clean: %v", err)
	}
	if _, err := os.Stat(root); !os.IsNotExist(err) {
		t.Error("Clean should remove the environment root")
	}
}
