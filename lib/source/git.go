// Copyright 2026 The Edo Authors
// SPDX-License-Identifier: Apache-2.0

package source

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/edo-build/edo/lib/artifact"
	"github.com/edo-build/edo/lib/environment"
	"github.com/edo-build/edo/lib/git"
	"github.com/edo-build/edo/lib/storage"
)

// GitSource fetches a single ref of a git repository by shelling out
// to the git CLI, the way lib/git.Repository drives "git -C <dir>
// <args>" for workspace management. Ref may be a branch, tag, or
// commit; whatever it names is resolved and checked out, then
// archived into a single tar layer.
type GitSource struct {
	URL string
	Ref string
}

// UniqueId returns an Id whose Digest is the Blake3 hash of
// "git:<url>:<ref>", computable without touching the network — a
// cache hit never has to clone anything.
func (s GitSource) UniqueId() artifact.Id {
	sum := blake3.Sum256([]byte("git:" + s.URL + ":" + s.Ref))
	return artifact.Id{Name: sanitizeName(s.URL), Version: s.Ref, Digest: hashHex(sum)}
}

// Fetch clones Ref into a scratch directory, archives the working
// tree (excluding .git) into a tar layer, and saves the resulting
// external artifact to the manager's local backend.
func (s GitSource) Fetch(ctx context.Context, log Logger, mgr *storage.Manager) (artifact.Artifact, error) {
	tmp, err := os.MkdirTemp("", "edo-git-source-*")
	if err != nil {
		return artifact.Artifact{}, fmt.Errorf("source: git fetch %s: %w", s.URL, err)
	}
	defer os.RemoveAll(tmp)

	repo := git.NewRepository(tmp)
	if _, err := repo.Run(ctx, "init", "-q"); err != nil {
		return artifact.Artifact{}, fmt.Errorf("source: git fetch %s: %w", s.URL, err)
	}
	if _, err := repo.Run(ctx, "remote", "add", "origin", s.URL); err != nil {
		return artifact.Artifact{}, fmt.Errorf("source: git fetch %s: %w", s.URL, err)
	}
	log.Info("fetching git source", "url", s.URL, "ref", s.Ref)
	if _, err := repo.Run(ctx, "fetch", "--depth", "1", "origin", s.Ref); err != nil {
		return artifact.Artifact{}, fmt.Errorf("source: git fetch %s: %w", s.URL, err)
	}
	if _, err := repo.Run(ctx, "checkout", "-q", "FETCH_HEAD"); err != nil {
		return artifact.Artifact{}, fmt.Errorf("source: git fetch %s: %w", s.URL, err)
	}

	writer, err := mgr.SafeStartLayer(ctx)
	if err != nil {
		return artifact.Artifact{}, fmt.Errorf("source: git fetch %s: %w", s.URL, err)
	}
	if err := tarDir(writer, tmp, []string{".git"}); err != nil {
		writer.Abort()
		return artifact.Artifact{}, fmt.Errorf("source: git fetch %s: %w", s.URL, err)
	}
	layer, err := writer.Finish(artifact.Tar(artifact.CompressionZstd), "")
	if err != nil {
		return artifact.Artifact{}, fmt.Errorf("source: git fetch %s: %w", s.URL, err)
	}

	id := s.UniqueId()
	a := artifact.NewExternal(id, artifact.Config{
		Metadata: map[string]string{"source": "git", "url": s.URL, "ref": s.Ref},
	}, []artifact.Layer{layer})
	if err := mgr.SafeSave(ctx, a); err != nil {
		return artifact.Artifact{}, fmt.Errorf("source: git fetch %s: %w", s.URL, err)
	}
	return a, nil
}

// Stage unpacks the cached artifact into path within env.
func (s GitSource) Stage(ctx context.Context, log Logger, mgr *storage.Manager, env environment.Environment, path string) error {
	a, err := Cache(ctx, log, mgr, s)
	if err != nil {
		return err
	}
	return stageArtifact(ctx, mgr, env, a, path)
}

// sanitizeName derives an Id.Name from a source URL or path: the
// final path segment, stripped of a trailing ".git" and any
// characters Id.Name forbids as field separators.
func sanitizeName(raw string) string {
	base := path.Base(strings.TrimSuffix(raw, "/"))
	base = strings.TrimSuffix(base, ".git")
	base = strings.Map(func(r rune) rune {
		if strings.ContainsRune("@:./-", r) {
			return '_'
		}
		return r
	}, base)
	if base == "" {
		return "source"
	}
	return base
}

func hashHex(sum [32]byte) string {
	const hextable = "0123456789abcdef"
	out := make([]byte, 64)
	for i, b := range sum {
		out[i*2] = hextable[b>>4]
		out[i*2+1] = hextable[b&0x0f]
	}
	return string(out)
}

// tarDir writes the contents of dir (excluding the named top-level
// entries) into tw as a tar stream with paths relative to dir.
func tarDir(w io.Writer, dir string, exclude []string) error {
	tw := tar.NewWriter(w)
	defer tw.Close()

	return filepath.Walk(dir, func(full string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, full)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		for _, ex := range exclude {
			if rel == ex || strings.HasPrefix(rel, ex+string(filepath.Separator)) {
				if info.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
		}

		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if info.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.Mode().IsRegular() {
			f, err := os.Open(full)
			if err != nil {
				return err
			}
			defer f.Close()
			if _, err := io.Copy(tw, f); err != nil {
				return err
			}
		}
		return nil
	})
}
