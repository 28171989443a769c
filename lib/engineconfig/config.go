// Copyright 2026 The Edo Authors
// SPDX-License-Identifier: Apache-2.0

// Package engineconfig loads the ambient bootstrap configuration the
// engine itself needs before it can evaluate a single Node: where the
// local cache root lives, the default dispatch batch size, the
// sandbox profile directory, and how to reach the build/output
// storage tiers. This is never a channel for declaring transforms,
// sources, vendors or farms — those are exclusively derived from
// evaluated configuration Nodes.
//
// Configuration loads from a single file named by the EDO_CONFIG
// environment variable, or an explicit path. There is no fallback
// search path and no auto-discovery, mirroring the teacher's
// BUREAU_CONFIG-driven lib/config loader exactly. The one exception is
// CacheRoot: spec.md names CACHE_ROOT as the core's own environment
// interface, so it always wins over whatever the config file says,
// unlike every other field here.
package engineconfig

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Environment identifies the deployment environment a Config section
// applies to.
type Environment string

const (
	Development Environment = "development"
	Staging     Environment = "staging"
	Production  Environment = "production"
)

// Config is the engine's own bootstrap configuration.
type Config struct {
	Environment Environment `yaml:"environment"`

	// CacheRoot is the local backend's root directory. Overridden
	// unconditionally by the CACHE_ROOT environment variable if set.
	CacheRoot string `yaml:"cache_root"`

	// DefaultBatchSize bounds concurrent transform execution when a
	// Node does not specify its own.
	DefaultBatchSize int `yaml:"default_batch_size"`

	// SandboxProfileDir holds named bubblewrap sandbox profiles
	// SandboxFarm environments may select by name.
	SandboxProfileDir string `yaml:"sandbox_profile_dir"`

	// BuildTier and OutputTier configure the shared build cache and
	// publish destination storage.Manager wires up at startup. Either
	// may be nil: the manager then runs with only a local backend.
	BuildTier  *TierConfig `yaml:"build_tier,omitempty"`
	OutputTier *TierConfig `yaml:"output_tier,omitempty"`

	Development *ConfigOverrides `yaml:"development,omitempty"`
	Staging     *ConfigOverrides `yaml:"staging,omitempty"`
	Production  *ConfigOverrides `yaml:"production,omitempty"`
}

// ConfigOverrides holds the fields an environment-specific section
// may override after the base config loads.
type ConfigOverrides struct {
	DefaultBatchSize  *int        `yaml:"default_batch_size,omitempty"`
	SandboxProfileDir *string     `yaml:"sandbox_profile_dir,omitempty"`
	BuildTier         *TierConfig `yaml:"build_tier,omitempty"`
	OutputTier        *TierConfig `yaml:"output_tier,omitempty"`
}

// TierConfig describes one storage.Backend to construct: either the
// local backend rooted elsewhere, or an S3-compatible object store.
type TierConfig struct {
	// Kind is "local" or "s3".
	Kind string `yaml:"kind"`

	// Local is used when Kind == "local".
	Local *LocalTierConfig `yaml:"local,omitempty"`

	// S3 is used when Kind == "s3".
	S3 *S3TierConfig `yaml:"s3,omitempty"`
}

// LocalTierConfig roots a storage.LocalBackend somewhere other than
// CacheRoot, e.g. a shared NFS-mounted build cache.
type LocalTierConfig struct {
	Path string `yaml:"path"`
}

// S3TierConfig configures a storage.S3Backend over any S3-compatible
// object store.
type S3TierConfig struct {
	Endpoint        string `yaml:"endpoint"`
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	AccessKeyId     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UseSSL          bool   `yaml:"use_ssl"`
}

// Default returns the configuration used as a base before the config
// file is loaded. It exists to give every field a sensible zero
// value, not as a fallback: Load still requires EDO_CONFIG to be set.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		Environment:       Development,
		CacheRoot:         filepath.Join(homeDir, ".cache", "edo"),
		DefaultBatchSize:  4,
		SandboxProfileDir: "",
	}
}

// Load loads configuration from the EDO_CONFIG environment variable.
// There is no fallback: if EDO_CONFIG is not set, this fails.
func Load() (*Config, error) {
	path := os.Getenv("EDO_CONFIG")
	if path == "" {
		return nil, fmt.Errorf("engineconfig: EDO_CONFIG environment variable not set; " +
			"set it to the path of your edo.yaml config file")
	}
	return LoadFile(path)
}

// LoadFile loads configuration from an explicit path, applies any
// environment-specific overrides, and then applies CACHE_ROOT if set.
func LoadFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("engineconfig: reading %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("engineconfig: parsing %s: %w", path, err)
	}

	cfg.applyEnvironmentOverrides()

	if root := os.Getenv("CACHE_ROOT"); root != "" {
		cfg.CacheRoot = root
	}

	return cfg, nil
}

func (c *Config) applyEnvironmentOverrides() {
	var overrides *ConfigOverrides
	switch c.Environment {
	case Development:
		overrides = c.Development
	case Staging:
		overrides = c.Staging
	case Production:
		overrides = c.Production
	}
	if overrides == nil {
		return
	}

	if overrides.DefaultBatchSize != nil {
		c.DefaultBatchSize = *overrides.DefaultBatchSize
	}
	if overrides.SandboxProfileDir != nil {
		c.SandboxProfileDir = *overrides.SandboxProfileDir
	}
	if overrides.BuildTier != nil {
		c.BuildTier = overrides.BuildTier
	}
	if overrides.OutputTier != nil {
		c.OutputTier = overrides.OutputTier
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	var errs []error
	if c.Environment != Development && c.Environment != Staging && c.Environment != Production {
		errs = append(errs, fmt.Errorf("engineconfig: invalid environment: %s", c.Environment))
	}
	if c.CacheRoot == "" {
		errs = append(errs, fmt.Errorf("engineconfig: cache_root is required"))
	}
	if c.DefaultBatchSize < 1 {
		errs = append(errs, fmt.Errorf("engineconfig: default_batch_size must be at least 1"))
	}
	for name, tier := range map[string]*TierConfig{"build_tier": c.BuildTier, "output_tier": c.OutputTier} {
		if tier == nil {
			continue
		}
		if err := tier.validate(name); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t *TierConfig) validate(field string) error {
	switch t.Kind {
	case "local":
		if t.Local == nil || t.Local.Path == "" {
			return fmt.Errorf("engineconfig: %s: kind local requires local.path", field)
		}
	case "s3":
		if t.S3 == nil || t.S3.Bucket == "" || t.S3.Endpoint == "" {
			return fmt.Errorf("engineconfig: %s: kind s3 requires s3.endpoint and s3.bucket", field)
		}
	default:
		return fmt.Errorf("engineconfig: %s: unknown kind %q (want local or s3)", field, t.Kind)
	}
	return nil
}
