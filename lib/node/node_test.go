// Copyright 2026 The Edo Authors
// SPDX-License-Identifier: Apache-2.0

package node

import "testing"

func TestScalarProjections(t *testing.T) {
	s := NewString("hello")
	if v, err := s.AsString(); err != nil || v != "hello" {
		t.Fatalf("AsString() = %q, %v", v, err)
	}
	if _, err := s.AsInt(); err == nil {
		t.Fatalf("AsInt() on a string node should error")
	}

	i := NewInt(42)
	if v, err := i.AsInt(); err != nil || v != 42 {
		t.Fatalf("AsInt() = %d, %v", v, err)
	}

	f := NewFloat(3.5)
	if v, err := f.AsFloat(); err != nil || v != 3.5 {
		t.Fatalf("AsFloat() = %v, %v", v, err)
	}

	b := NewBool(true)
	if v, err := b.AsBool(); err != nil || !v {
		t.Fatalf("AsBool() = %v, %v", v, err)
	}

	ver := NewVersion("1.2.3")
	if v, err := ver.AsVersion(); err != nil || v != "1.2.3" {
		t.Fatalf("AsVersion() = %q, %v", v, err)
	}

	req := NewRequire(">=1.0.0")
	if v, err := req.AsRequire(); err != nil || v != ">=1.0.0" {
		t.Fatalf("AsRequire() = %q, %v", v, err)
	}
}

func TestTableGetAndRequireKeys(t *testing.T) {
	name := NewString("curl")
	version := NewRequire(">=7.0")
	table := NewTable(map[string]*Node{
		"name":    &name,
		"version": &version,
	})

	if err := table.RequireKeys("name", "version"); err != nil {
		t.Fatalf("RequireKeys: %v", err)
	}
	if err := table.RequireKeys("name", "missing"); err == nil {
		t.Fatalf("RequireKeys should fail when a key is absent")
	}

	field, ok := table.Get("name")
	if !ok {
		t.Fatalf("Get(\"name\") not found")
	}
	if v, err := field.AsString(); err != nil || v != "curl" {
		t.Fatalf("Get(\"name\").AsString() = %q, %v", v, err)
	}

	if _, ok := table.Get("absent"); ok {
		t.Fatalf("Get(\"absent\") should return false")
	}

	if err := name.RequireKeys("anything"); err == nil {
		t.Fatalf("RequireKeys on a non-table node should error")
	}
}

func TestList(t *testing.T) {
	l := NewList([]Node{NewString("a"), NewString("b")})
	items, err := l.AsList()
	if err != nil {
		t.Fatalf("AsList: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("AsList() len = %d, want 2", len(items))
	}
	if v, _ := items[0].AsString(); v != "a" {
		t.Errorf("items[0] = %q, want a", v)
	}
}

func TestFromJSON(t *testing.T) {
	decoded := map[string]any{
		"name":    "curl",
		"count":   float64(3),
		"ratio":   float64(1.5),
		"enabled": true,
		"tags":    []any{"a", "b"},
		"nested": map[string]any{
			"inner": "value",
		},
	}

	n, err := FromJSON(decoded)
	if err != nil {
		t.Fatalf("FromJSON: %v", err)
	}
	table, err := n.AsTable()
	if err != nil {
		t.Fatalf("AsTable: %v", err)
	}

	if v, err := table["name"].AsString(); err != nil || v != "curl" {
		t.Errorf("name = %q, %v", v, err)
	}
	if v, err := table["count"].AsInt(); err != nil || v != 3 {
		t.Errorf("count = %d, %v, want KindInt 3", v, err)
	}
	if v, err := table["ratio"].AsFloat(); err != nil || v != 1.5 {
		t.Errorf("ratio = %v, %v", v, err)
	}
	if v, err := table["enabled"].AsBool(); err != nil || !v {
		t.Errorf("enabled = %v, %v", v, err)
	}

	tags, err := table["tags"].AsList()
	if err != nil || len(tags) != 2 {
		t.Errorf("tags = %v, %v", tags, err)
	}

	nested, err := table["nested"].AsTable()
	if err != nil {
		t.Fatalf("nested AsTable: %v", err)
	}
	if v, err := nested["inner"].AsString(); err != nil || v != "value" {
		t.Errorf("nested.inner = %q, %v", v, err)
	}

	if _, err := FromJSON(nil); err == nil {
		t.Errorf("FromJSON(nil) should error")
	}
}
