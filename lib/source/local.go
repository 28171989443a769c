// Copyright 2026 The Edo Authors
// SPDX-License-Identifier: Apache-2.0

package source

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tidwall/jsonc"
	"github.com/zeebo/blake3"

	"github.com/edo-build/edo/lib/artifact"
	"github.com/edo-build/edo/lib/environment"
	"github.com/edo-build/edo/lib/storage"
)

// localManifest is the JSONC-described shape a LocalSource reads:
// which on-disk directory to package and what metadata to attach to
// the resulting artifact. Comments and trailing commas are accepted,
// the same as the teacher's pipeline manifests.
type localManifest struct {
	Name     string   `json:"name"`
	Version  string   `json:"version,omitempty"`
	Root     string   `json:"root"`
	Provides []string `json:"provides,omitempty"`
}

// LocalSource reads a JSONC manifest naming a directory on disk and
// packages it as a single tar layer. It exists for test fixtures and
// offline vendor catalogs (vendor.LocalVendor builds on the same
// manifest format) where cloning a real repository or fetching a real
// URL would be unnecessary ceremony.
type LocalSource struct {
	ManifestPath string
}

// readManifest parses the JSONC manifest and resolves its root to an
// absolute directory. Shared by UniqueId and Fetch so both agree on
// the artifact's identity without reading the file twice in the
// common cache-hit path — UniqueId's read is cheap relative to
// tarring the directory, which only Fetch does.
func (s LocalSource) readManifest() (localManifest, string, error) {
	data, err := os.ReadFile(s.ManifestPath)
	if err != nil {
		return localManifest{}, "", err
	}
	var m localManifest
	if err := json.Unmarshal(jsonc.ToJSON(data), &m); err != nil {
		return localManifest{}, "", fmt.Errorf("parsing manifest: %w", err)
	}
	if m.Root == "" {
		return localManifest{}, "", fmt.Errorf("manifest has no root")
	}
	root := m.Root
	if !filepath.IsAbs(root) {
		root = filepath.Join(filepath.Dir(s.ManifestPath), root)
	}
	return m, root, nil
}

// UniqueId combines the manifest's declared name/version with a
// Blake3 hash of the manifest's absolute path, so two fixtures that
// happen to share a name/version but live at different paths still
// get distinct cache keys. If the manifest cannot be read, UniqueId
// still returns a usable (if generic) Id — Fetch is what surfaces the
// real error.
func (s LocalSource) UniqueId() artifact.Id {
	abs, err := filepath.Abs(s.ManifestPath)
	if err != nil {
		abs = s.ManifestPath
	}
	sum := blake3.Sum256([]byte("local:" + abs))
	digest := hashHex(sum)

	m, _, err := s.readManifest()
	if err != nil || m.Name == "" {
		return artifact.Id{Name: sanitizeName(abs), Digest: digest}
	}
	return artifact.Id{Name: m.Name, Version: m.Version, Digest: digest}
}

// Fetch parses the manifest, tars the directory it names, and saves
// the result to the manager's local backend.
func (s LocalSource) Fetch(ctx context.Context, log Logger, mgr *storage.Manager) (artifact.Artifact, error) {
	m, root, err := s.readManifest()
	if err != nil {
		return artifact.Artifact{}, fmt.Errorf("source: local fetch %s: %w", s.ManifestPath, err)
	}

	log.Info("reading local source", "manifest", s.ManifestPath, "root", root)
	writer, err := mgr.SafeStartLayer(ctx)
	if err != nil {
		return artifact.Artifact{}, fmt.Errorf("source: local fetch %s: %w", s.ManifestPath, err)
	}
	if err := tarDir(writer, root, nil); err != nil {
		writer.Abort()
		return artifact.Artifact{}, fmt.Errorf("source: local fetch %s: %w", s.ManifestPath, err)
	}
	layer, err := writer.Finish(artifact.Tar(artifact.CompressionNone), "")
	if err != nil {
		return artifact.Artifact{}, fmt.Errorf("source: local fetch %s: %w", s.ManifestPath, err)
	}

	id := s.UniqueId()
	a := artifact.NewExternal(id, artifact.Config{
		Provides: m.Provides,
		Metadata: map[string]string{"source": "local", "manifest": s.ManifestPath},
	}, []artifact.Layer{layer})
	if err := mgr.SafeSave(ctx, a); err != nil {
		return artifact.Artifact{}, fmt.Errorf("source: local fetch %s: %w", s.ManifestPath, err)
	}
	return a, nil
}

// Stage unpacks the cached artifact into path within env.
func (s LocalSource) Stage(ctx context.Context, log Logger, mgr *storage.Manager, env environment.Environment, path string) error {
	a, err := Cache(ctx, log, mgr, s)
	if err != nil {
		return err
	}
	return stageArtifact(ctx, mgr, env, a, path)
}
