// Copyright 2026 The Edo Authors
// SPDX-License-Identifier: Apache-2.0

package engineconfig

import (
	"fmt"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/edo-build/edo/lib/storage"
)

// NewBackend constructs the storage.Backend a TierConfig describes.
// Grounded on the same minio.New/credentials.NewStaticV4 wiring the
// example pack's own S3-backed artifact store uses, adapted to
// storage.S3Backend's constructor instead of a bespoke store type.
func NewBackend(t *TierConfig) (storage.Backend, error) {
	if t == nil {
		return nil, nil
	}
	switch t.Kind {
	case "local":
		if t.Local == nil || t.Local.Path == "" {
			return nil, fmt.Errorf("engineconfig: kind local requires local.path")
		}
		return storage.NewLocalBackend(t.Local.Path)
	case "s3":
		if t.S3 == nil {
			return nil, fmt.Errorf("engineconfig: kind s3 requires an s3 section")
		}
		client, err := minio.New(t.S3.Endpoint, &minio.Options{
			Creds:  credentials.NewStaticV4(t.S3.AccessKeyId, t.S3.SecretAccessKey, ""),
			Secure: t.S3.UseSSL,
		})
		if err != nil {
			return nil, fmt.Errorf("engineconfig: constructing s3 client for %s: %w", t.S3.Endpoint, err)
		}
		return storage.NewS3Backend(client, t.S3.Bucket, t.S3.Prefix), nil
	default:
		return nil, fmt.Errorf("engineconfig: unknown tier kind %q", t.Kind)
	}
}

// NewManager builds a storage.Manager from c: a local backend rooted
// at CacheRoot, plus the build and output tiers if configured.
func NewManager(c *Config) (*storage.Manager, error) {
	local, err := storage.NewLocalBackend(c.CacheRoot)
	if err != nil {
		return nil, fmt.Errorf("engineconfig: constructing local backend at %s: %w", c.CacheRoot, err)
	}
	mgr := storage.NewManager(local)

	if c.BuildTier != nil {
		build, err := NewBackend(c.BuildTier)
		if err != nil {
			return nil, fmt.Errorf("engineconfig: build tier: %w", err)
		}
		mgr.SetBuild(build)
	}
	if c.OutputTier != nil {
		output, err := NewBackend(c.OutputTier)
		if err != nil {
			return nil, fmt.Errorf("engineconfig: output tier: %w", err)
		}
		mgr.SetOutput(output)
	}
	return mgr, nil
}
