// Copyright 2026 The Edo Authors
// SPDX-License-Identifier: Apache-2.0

// Package addr provides the opaque hierarchical identifier used to
// name every object the configuration layer declares — transforms,
// sources, vendors, and farms. Addr is the stable key the resolver,
// scheduler, and transform registry use to refer to configured
// objects without ever inspecting their contents.
//
// Edo never constructs an Addr by composing arbitrary strings inside
// core code — addresses arrive from the (out of scope) configuration
// evaluator and are parsed into this type at the boundary, the same
// parse-once-at-the-edge discipline a typed identifier wrapper is for.
package addr

import (
	"fmt"
	"strings"
)

// Addr is a validated configuration-space address such as
// "//project/component/name". It always starts with "//" and is
// composed of one or more non-empty, slash-separated segments.
//
// Addr is an immutable value type safe for use as a map key. The zero
// value is not valid; use IsZero to check.
type Addr struct {
	path string
}

// Parse validates and wraps a raw address string. Returns an error if
// the string does not start with "//", has an empty segment (e.g. a
// doubled or trailing slash), or has no segments at all.
func Parse(raw string) (Addr, error) {
	if !strings.HasPrefix(raw, "//") {
		return Addr{}, fmt.Errorf("addr: must start with '//': %q", raw)
	}
	rest := raw[2:]
	if rest == "" {
		return Addr{}, fmt.Errorf("addr: empty address")
	}
	for _, segment := range strings.Split(rest, "/") {
		if segment == "" {
			return Addr{}, fmt.Errorf("addr: empty segment in %q", raw)
		}
	}
	return Addr{path: raw}, nil
}

// MustParse is Parse but panics on error. Intended for tests and
// package-level constant addresses, never for data arriving from
// configuration.
func MustParse(raw string) Addr {
	a, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return a
}

// String returns the canonical textual form, e.g. "//project/build".
func (a Addr) String() string { return a.path }

// IsZero reports whether a is the uninitialized zero value.
func (a Addr) IsZero() bool { return a.path == "" }

// Segments returns the address split into its path components,
// excluding the leading "//".
func (a Addr) Segments() []string {
	if a.IsZero() {
		return nil
	}
	return strings.Split(a.path[2:], "/")
}

// Parent returns the address with its final segment removed, and
// false if a has only one segment (no parent).
func (a Addr) Parent() (Addr, bool) {
	segments := a.Segments()
	if len(segments) <= 1 {
		return Addr{}, false
	}
	return Addr{path: "//" + strings.Join(segments[:len(segments)-1], "/")}, true
}

// Join appends a segment to a, returning the resulting address.
func (a Addr) Join(segment string) Addr {
	if a.IsZero() {
		return Addr{path: "//" + segment}
	}
	return Addr{path: a.path + "/" + segment}
}

// MarshalText implements encoding.TextMarshaler so Addr can be used
// directly as a JSON object key or value.
func (a Addr) MarshalText() ([]byte, error) {
	if a.IsZero() {
		return nil, fmt.Errorf("addr: cannot marshal zero value")
	}
	return []byte(a.path), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Addr) UnmarshalText(text []byte) error {
	parsed, err := Parse(string(text))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
