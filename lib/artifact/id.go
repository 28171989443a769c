// Copyright 2026 The Edo Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"fmt"
	"strings"
)

// reservedNameChars are forbidden in Id.Name because the textual form
// uses them as field separators (`-`, `.`) or because they belong to
// address and URL syntax (`@`, `:`, `/`).
const reservedNameChars = "@:.-/"

// Id identifies a single artifact. Name is required and sanitized;
// Package, Version, and Arch are optional; Digest is the BLAKE3 hex
// digest of the artifact's config. Equality is field-wise — two
// artifacts with different names can share a digest (e.g. both have
// an empty layer list), so Digest alone never identifies an artifact.
type Id struct {
	Name    string
	Package string
	Version string
	Arch    string
	Digest  string
}

// NewId constructs an Id from fields, validating Name.
func NewId(name, pkg, version, arch, digest string) (Id, error) {
	if err := validateName(name); err != nil {
		return Id{}, err
	}
	if digest == "" {
		return Id{}, fmt.Errorf("artifact: id requires a digest")
	}
	return Id{Name: name, Package: pkg, Version: version, Arch: arch, Digest: digest}, nil
}

func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("artifact: id name must not be empty")
	}
	if strings.ContainsAny(name, reservedNameChars) {
		return fmt.Errorf("artifact: id name %q contains a reserved character (one of %q)", name, reservedNameChars)
	}
	return nil
}

// String renders the canonical textual form:
// "[package+]name[-version][.arch]-digest".
func (id Id) String() string {
	var b strings.Builder
	if id.Package != "" {
		b.WriteString(id.Package)
		b.WriteByte('+')
	}
	b.WriteString(id.Name)
	if id.Version != "" {
		b.WriteByte('-')
		b.WriteString(id.Version)
	}
	if id.Arch != "" {
		b.WriteByte('.')
		b.WriteString(id.Arch)
	}
	b.WriteByte('-')
	b.WriteString(id.Digest)
	return b.String()
}

// WithDigest returns a copy of id with Digest replaced. Used after
// recomputing an artifact's config hash (adding or reordering
// layers changes the digest but not the identity fields).
func (id Id) WithDigest(digest string) Id {
	id.Digest = digest
	return id
}

// WithVersion returns a copy of id with Version replaced.
func (id Id) WithVersion(version string) Id {
	id.Version = version
	return id
}

// Equal reports field-wise equality.
func (id Id) Equal(other Id) bool {
	return id == other
}

// ParseId parses the textual form produced by String. The last
// '-'-delimited segment is always the digest. Name holds none of the
// reserved characters, so it ends at the first '-' or '.' of what
// remains. Text after a '.' directly following the name is the arch.
// Text after a '-' is the version, except that a final '.'-delimited
// segment that is not all digits is split off as the arch: "8.4.0"
// stays a version, "8.4.0.x86_64" is version "8.4.0" plus arch
// "x86_64". A purely numeric arch after a version is therefore read
// as part of the version. The optional "pkg+" prefix is split off at
// the first '+'; a package containing '-' or '.' does not round-trip.
func ParseId(text string) (Id, error) {
	if text == "" {
		return Id{}, fmt.Errorf("artifact: cannot parse empty id")
	}

	lastDash := strings.LastIndexByte(text, '-')
	if lastDash < 0 {
		return Id{}, fmt.Errorf("artifact: id %q has no digest separator", text)
	}
	digest := text[lastDash+1:]
	if digest == "" {
		return Id{}, fmt.Errorf("artifact: id %q has an empty digest", text)
	}
	rest := text[:lastDash]

	var version, arch string
	if end := strings.IndexAny(rest, "-."); end >= 0 {
		tail := rest[end+1:]
		if rest[end] == '.' {
			arch = tail
		} else if dot := strings.LastIndexByte(tail, '.'); dot >= 0 && strings.Trim(tail[dot+1:], "0123456789") != "" {
			version, arch = tail[:dot], tail[dot+1:]
		} else {
			version = tail
		}
		rest = rest[:end]
	}

	var pkg string
	name := rest
	if plus := strings.IndexByte(rest, '+'); plus >= 0 {
		pkg = rest[:plus]
		name = rest[plus+1:]
	}

	if err := validateName(name); err != nil {
		return Id{}, err
	}
	return Id{Name: name, Package: pkg, Version: version, Arch: arch, Digest: digest}, nil
}
