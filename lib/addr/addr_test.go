// Copyright 2026 The Edo Authors
// SPDX-License-Identifier: Apache-2.0

package addr

import "testing"

func TestParse(t *testing.T) {
	tests := []struct {
		raw     string
		wantErr bool
	}{
		{"//project/build", false},
		{"//project", false},
		{"project/build", true},
		{"//", true},
		{"//project//build", true},
		{"//project/", true},
		{"", true},
	}
	for _, tt := range tests {
		got, err := Parse(tt.raw)
		if (err != nil) != tt.wantErr {
			t.Errorf("Parse(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			continue
		}
		if err == nil && got.String() != tt.raw {
			t.Errorf("Parse(%q).String() = %q, want %q", tt.raw, got.String(), tt.raw)
		}
	}
}

func TestParent(t *testing.T) {
	a := MustParse("//project/component/name")
	parent, ok := a.Parent()
	if !ok || parent.String() != "//project/component" {
		t.Errorf("Parent() = %q, %v; want //project/component, true", parent, ok)
	}

	root := MustParse("//project")
	if _, ok := root.Parent(); ok {
		t.Errorf("Parent() on single-segment addr should return false")
	}
}

func TestJoin(t *testing.T) {
	a := MustParse("//project")
	if got := a.Join("build").String(); got != "//project/build" {
		t.Errorf("Join = %q, want //project/build", got)
	}
}

func TestSegments(t *testing.T) {
	a := MustParse("//project/component/name")
	segments := a.Segments()
	want := []string{"project", "component", "name"}
	if len(segments) != len(want) {
		t.Fatalf("Segments() = %v, want %v", segments, want)
	}
	for i := range want {
		if segments[i] != want[i] {
			t.Errorf("Segments()[%d] = %q, want %q", i, segments[i], want[i])
		}
	}
}

func TestMarshalText(t *testing.T) {
	a := MustParse("//project/build")
	text, err := a.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}
	var b Addr
	if err := b.UnmarshalText(text); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if b != a {
		t.Errorf("round trip = %v, want %v", b, a)
	}

	var zero Addr
	if _, err := zero.MarshalText(); err == nil {
		t.Errorf("MarshalText on zero value should error")
	}
}
