// Copyright 2026 The Edo Authors
// SPDX-License-Identifier: Apache-2.0

package engineconfig

import (
	"testing"
)

func TestNewBackendLocal(t *testing.T) {
	tier := &TierConfig{Kind: "local", Local: &LocalTierConfig{Path: t.TempDir()}}
	backend, err := NewBackend(tier)
	if err != nil {
		t.Fatalf("NewBackend: %v", err)
	}
	if backend == nil {
		t.Fatal("NewBackend returned a nil backend for a valid local tier")
	}
}

func TestNewBackendNilTierReturnsNil(t *testing.T) {
	backend, err := NewBackend(nil)
	if err != nil {
		t.Fatalf("NewBackend(nil): %v", err)
	}
	if backend != nil {
		t.Error("NewBackend(nil) should return a nil backend")
	}
}

func TestNewBackendRejectsUnknownKind(t *testing.T) {
	if _, err := NewBackend(&TierConfig{Kind: "weird"}); err == nil {
		t.Fatal("NewBackend should reject an unknown tier kind")
	}
}

func TestNewManagerWithoutTiersUsesLocalCacheRoot(t *testing.T) {
	cfg := Default()
	cfg.CacheRoot = t.TempDir()

	mgr, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if mgr == nil {
		t.Fatal("NewManager returned nil")
	}
}

func TestNewManagerWithLocalBuildTier(t *testing.T) {
	cfg := Default()
	cfg.CacheRoot = t.TempDir()
	cfg.BuildTier = &TierConfig{Kind: "local", Local: &LocalTierConfig{Path: t.TempDir()}}

	mgr, err := NewManager(cfg)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	if mgr == nil {
		t.Fatal("NewManager returned nil")
	}
}
