// Copyright 2026 The Edo Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Layer is one hashed, immutable blob belonging to an Artifact.
// Digest is the BLAKE3 hash (layer domain) of the raw, uncompressed
// bytes; Size is the uncompressed byte count. Platform is set only
// for layers whose content is architecture-specific (e.g. a compiled
// binary layer in a multi-arch artifact) and is opaque to the core —
// see SPEC_FULL.md's resolution of the "platform opacity" open
// question.
type Layer struct {
	MediaType MediaType `json:"media_type"`
	Digest    string    `json:"digest"`
	Size      int64     `json:"size"`
	Platform  string    `json:"platform,omitempty"`
}

// layerJSON is Layer's wire shape; MediaType needs custom (un)marshal
// since it is not itself a plain string type.
type layerJSON struct {
	MediaType string `json:"media_type"`
	Digest    string `json:"digest"`
	Size      int64  `json:"size"`
	Platform  string `json:"platform,omitempty"`
}

// MarshalJSON renders Layer with MediaType in its canonical textual
// form.
func (l Layer) MarshalJSON() ([]byte, error) {
	return json.Marshal(layerJSON{
		MediaType: l.MediaType.String(),
		Digest:    l.Digest,
		Size:      l.Size,
		Platform:  l.Platform,
	})
}

// UnmarshalJSON parses Layer's wire shape.
func (l *Layer) UnmarshalJSON(data []byte) error {
	var wire layerJSON
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	mt, err := ParseMediaType(wire.MediaType)
	if err != nil {
		return fmt.Errorf("artifact: layer media type: %w", err)
	}
	l.MediaType = mt
	l.Digest = wire.Digest
	l.Size = wire.Size
	l.Platform = wire.Platform
	return nil
}

// Config is the structured, user-visible content of an artifact: what
// it provides, what it requires, and free-form metadata produced by
// the transform that built it.
type Config struct {
	Id       Id                            `json:"id"`
	Provides []string                      `json:"provides,omitempty"`
	Requires map[string]map[string]string  `json:"requires,omitempty"`
	Metadata map[string]string             `json:"metadata,omitempty"`

	// External marks an artifact whose Id.Digest is provider-derived
	// (a source's unique_id: Blake3 of "git:url:ref", or a caller's
	// HTTP integrity digest) rather than a hash of this artifact's
	// own serialized content. Verify is a no-op for these — their
	// tamper check already happened at fetch time, against the
	// provider's own commitment, not against the catalog entry.
	External bool `json:"external,omitempty"`
}

// Artifact is a complete content-addressed unit: an outer media type
// (ordinarily Manifest), a Config, and an ordered list of Layers.
// config.Id.Digest is the BLAKE3 (config domain) hash of the
// serialized config plus the ordered layer descriptors — see New.
type Artifact struct {
	MediaType MediaType `json:"media_type"`
	Config    Config    `json:"config"`
	Layers    []Layer   `json:"layers"`
}

// New constructs an Artifact from a config (with a zero Digest) and
// an ordered layer list, then finalizes it: computes and fills
// config.Id.Digest. The returned artifact satisfies the invariant
// that config.Id.Digest is the hash of its own serialized content.
func New(config Config, layers []Layer) (Artifact, error) {
	a := Artifact{MediaType: Manifest(), Config: config, Layers: layers}
	digest, err := a.computeDigest()
	if err != nil {
		return Artifact{}, err
	}
	a.Config.Id = a.Config.Id.WithDigest(digest)
	return a, nil
}

// NewExternal constructs an Artifact whose identity is provider-
// derived rather than content-derived: id is used verbatim as
// Config.Id, with no digest recomputed from config or layers. Source
// providers use this, since their unique_id must be computable from
// the provider's inputs alone (so a cache lookup never has to refetch
// just to learn the key it would have produced).
func NewExternal(id Id, config Config, layers []Layer) Artifact {
	config.Id = id
	config.External = true
	return Artifact{MediaType: Manifest(), Config: config, Layers: layers}
}

// Verify recomputes the config digest and reports whether it matches
// config.Id.Digest. Storage backends call this after Open to detect
// corruption or a hand-edited catalog.json (spec §4.2: InvalidArtifact).
// External artifacts skip this: their digest is a provider commitment
// checked at fetch time, not a hash of the stored config.
func (a Artifact) Verify() error {
	if a.Config.External {
		return nil
	}
	digest, err := a.computeDigest()
	if err != nil {
		return err
	}
	if digest != a.Config.Id.Digest {
		return fmt.Errorf("artifact: digest mismatch for %s: computed %s", a.Config.Id, digest)
	}
	return nil
}

// computeDigest hashes the config (with Id.Digest cleared, since the
// digest cannot include itself) concatenated with the ordered layer
// descriptors.
func (a Artifact) computeDigest() (string, error) {
	bare := a.Config
	bare.Id = bare.Id.WithDigest("")

	var buf bytes.Buffer
	encoder := json.NewEncoder(&buf)
	if err := encoder.Encode(bare); err != nil {
		return "", fmt.Errorf("artifact: encoding config for digest: %w", err)
	}
	if err := encoder.Encode(a.Layers); err != nil {
		return "", fmt.Errorf("artifact: encoding layers for digest: %w", err)
	}
	return FormatHash(HashConfig(buf.Bytes())), nil
}
