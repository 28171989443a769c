// Copyright 2026 The Edo Authors
// SPDX-License-Identifier: Apache-2.0

package source

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/zeebo/blake3"

	"github.com/edo-build/edo/lib/artifact"
	"github.com/edo-build/edo/lib/environment"
	"github.com/edo-build/edo/lib/netutil"
	"github.com/edo-build/edo/lib/storage"
)

// HTTPSource fetches a single URL over net/http. Digest, if set, is
// the caller-supplied integrity commitment (a hex Blake3 digest of
// the raw downloaded bytes) that Fetch must verify; an empty Digest
// means the URL itself is the only stated identity, and unique_id
// falls back to hashing it, matching Git's untrusted-ref case.
type HTTPSource struct {
	URL    string
	Digest string
}

// UniqueId returns Digest verbatim when the caller supplied one (the
// strongest identity: content pinned before any bytes are fetched);
// otherwise the Blake3 hash of the URL alone.
func (s HTTPSource) UniqueId() artifact.Id {
	digest := s.Digest
	if digest == "" {
		sum := blake3.Sum256([]byte(s.URL))
		digest = hashHex(sum)
	}
	return artifact.Id{Name: sanitizeName(s.URL), Digest: digest}
}

// Fetch downloads the URL, verifies Digest when set, and saves the
// resulting single-layer artifact to the manager's local backend.
// The layer's media type is File, carrying whatever compression
// artifact.Detect inferred from the URL's filename extension — Stage
// writes it out verbatim rather than unpacking an archive, since an
// HTTP download is an opaque blob unless told otherwise.
func (s HTTPSource) Fetch(ctx context.Context, log Logger, mgr *storage.Manager) (artifact.Artifact, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return artifact.Artifact{}, fmt.Errorf("source: http fetch %s: %w", s.URL, err)
	}
	log.Info("fetching http source", "url", s.URL)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return artifact.Artifact{}, fmt.Errorf("source: http fetch %s: %w", s.URL, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return artifact.Artifact{}, fmt.Errorf("source: http fetch %s: status %s: %s", s.URL, resp.Status, netutil.ErrorBody(resp.Body))
	}

	writer, err := mgr.SafeStartLayer(ctx)
	if err != nil {
		return artifact.Artifact{}, fmt.Errorf("source: http fetch %s: %w", s.URL, err)
	}
	hasher := blake3.New()
	if _, err := io.Copy(io.MultiWriter(writer, hasher), resp.Body); err != nil {
		writer.Abort()
		return artifact.Artifact{}, fmt.Errorf("source: http fetch %s: %w", s.URL, err)
	}

	if s.Digest != "" {
		var sum [32]byte
		copy(sum[:], hasher.Sum(nil))
		if hashHex(sum) != s.Digest {
			writer.Abort()
			return artifact.Artifact{}, fmt.Errorf("source: http fetch %s: %w", s.URL, errValidationFailed)
		}
	}

	_, name := pathAndName(s.URL)
	_, compression := artifact.Detect(name)
	layer, err := writer.Finish(artifact.File(compression), "")
	if err != nil {
		return artifact.Artifact{}, fmt.Errorf("source: http fetch %s: %w", s.URL, err)
	}

	id := s.UniqueId()
	a := artifact.NewExternal(id, artifact.Config{
		Metadata: map[string]string{"source": "http", "url": s.URL},
	}, []artifact.Layer{layer})
	if err := mgr.SafeSave(ctx, a); err != nil {
		return artifact.Artifact{}, fmt.Errorf("source: http fetch %s: %w", s.URL, err)
	}
	return a, nil
}

// Stage writes or unpacks the cached artifact into path within env.
func (s HTTPSource) Stage(ctx context.Context, log Logger, mgr *storage.Manager, env environment.Environment, path string) error {
	a, err := Cache(ctx, log, mgr, s)
	if err != nil {
		return err
	}
	return stageArtifact(ctx, mgr, env, a, path)
}

// pathAndName splits a URL into everything before the final slash and
// the final path segment, without pulling in net/url for what is
// really just filename extraction.
func pathAndName(url string) (string, string) {
	for i := len(url) - 1; i >= 0; i-- {
		if url[i] == '/' {
			return url[:i], url[i+1:]
		}
	}
	return "", url
}
