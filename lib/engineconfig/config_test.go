// Copyright 2026 The Edo Authors
// SPDX-License-Identifier: Apache-2.0

package engineconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "edo.yaml")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestLoadFileAppliesDefaultsAndFileValues(t *testing.T) {
	path := writeConfig(t, `
environment: development
cache_root: /var/cache/edo
default_batch_size: 8
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.CacheRoot != "/var/cache/edo" {
		t.Errorf("CacheRoot = %q, want /var/cache/edo", cfg.CacheRoot)
	}
	if cfg.DefaultBatchSize != 8 {
		t.Errorf("DefaultBatchSize = %d, want 8", cfg.DefaultBatchSize)
	}
}

func TestLoadFileCacheRootEnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
environment: development
cache_root: /var/cache/edo
`)
	t.Setenv("CACHE_ROOT", "/tmp/override-root")

	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.CacheRoot != "/tmp/override-root" {
		t.Errorf("CacheRoot = %q, want CACHE_ROOT env value to win", cfg.CacheRoot)
	}
}

func TestLoadFileAppliesEnvironmentOverrides(t *testing.T) {
	path := writeConfig(t, `
environment: production
default_batch_size: 4
production:
  default_batch_size: 16
  sandbox_profile_dir: /etc/edo/sandbox-profiles
`)
	cfg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	if cfg.DefaultBatchSize != 16 {
		t.Errorf("DefaultBatchSize = %d, want 16 (production override)", cfg.DefaultBatchSize)
	}
	if cfg.SandboxProfileDir != "/etc/edo/sandbox-profiles" {
		t.Errorf("SandboxProfileDir = %q, want override value", cfg.SandboxProfileDir)
	}
}

func TestLoadFailsWithoutEdoConfigEnv(t *testing.T) {
	t.Setenv("EDO_CONFIG", "")
	if _, err := Load(); err == nil {
		t.Fatal("Load should fail when EDO_CONFIG is unset")
	}
}

func TestLoadUsesEdoConfigEnv(t *testing.T) {
	path := writeConfig(t, `
environment: development
cache_root: /var/cache/edo
`)
	t.Setenv("EDO_CONFIG", path)
	t.Setenv("CACHE_ROOT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CacheRoot != "/var/cache/edo" {
		t.Errorf("CacheRoot = %q, want /var/cache/edo", cfg.CacheRoot)
	}
}

func TestValidateRejectsBadBatchSize(t *testing.T) {
	cfg := Default()
	cfg.DefaultBatchSize = 0
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate should reject a batch size below 1")
	}
}

func TestValidateRejectsMissingTierFields(t *testing.T) {
	cfg := Default()
	cfg.BuildTier = &TierConfig{Kind: "s3", S3: &S3TierConfig{}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("Validate should reject an s3 tier missing endpoint/bucket")
	}
}

func TestValidateAcceptsLocalTier(t *testing.T) {
	cfg := Default()
	cfg.BuildTier = &TierConfig{Kind: "local", Local: &LocalTierConfig{Path: "/srv/edo/build"}}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}
