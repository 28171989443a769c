// Copyright 2026 The Edo Authors
// SPDX-License-Identifier: Apache-2.0

package vendorcache

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/edo-build/edo/lib/clock"
	"github.com/edo-build/edo/lib/vendor"
)

func openTestCache(t *testing.T, ttl time.Duration) *Cache {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cache.sqlite")
	c, err := Open(Config{Path: path, TTL: ttl})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func mustVersion(t *testing.T, s string) vendor.Version {
	t.Helper()
	v, err := vendor.ParseVersion(s)
	if err != nil {
		t.Fatalf("ParseVersion(%q): %v", s, err)
	}
	return v
}

func TestCacheMissThenHit(t *testing.T) {
	ctx := context.Background()
	c := openTestCache(t, time.Hour)

	if _, ok, err := c.Get(ctx, "primary", "libfoo"); err != nil || ok {
		t.Fatalf("expected cold miss, got ok=%v err=%v", ok, err)
	}

	versions := []vendor.Version{mustVersion(t, "1.0.0"), mustVersion(t, "1.2.0")}
	if err := c.Put(ctx, "primary", "libfoo", versions); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok, err := c.Get(ctx, "primary", "libfoo")
	if err != nil || !ok {
		t.Fatalf("expected hit after Put, got ok=%v err=%v", ok, err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d versions, want 2", len(got))
	}
}

func TestCacheExpiresAfterTTL(t *testing.T) {
	ctx := context.Background()
	c := openTestCache(t, -time.Second) // already expired for anything written now

	if err := c.Put(ctx, "primary", "libfoo", []vendor.Version{mustVersion(t, "1.0.0")}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if _, ok, err := c.Get(ctx, "primary", "libfoo"); err != nil || ok {
		t.Fatalf("expected expired entry to miss, got ok=%v err=%v", ok, err)
	}
}

func TestCacheExpiresWhenFakeClockAdvancesPastTTL(t *testing.T) {
	ctx := context.Background()
	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))

	path := filepath.Join(t.TempDir(), "cache.sqlite")
	c, err := Open(Config{Path: path, TTL: time.Minute, Clock: fake})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { c.Close() })

	if err := c.Put(ctx, "primary", "libfoo", []vendor.Version{mustVersion(t, "1.0.0")}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	fake.Advance(30 * time.Second)
	if _, ok, err := c.Get(ctx, "primary", "libfoo"); err != nil || !ok {
		t.Fatalf("expected entry still fresh at half the TTL, got ok=%v err=%v", ok, err)
	}

	fake.Advance(time.Minute)
	if _, ok, err := c.Get(ctx, "primary", "libfoo"); err != nil || ok {
		t.Fatalf("expected entry expired once the fake clock passed the TTL, got ok=%v err=%v", ok, err)
	}
}

func TestCacheOverwritesOnPut(t *testing.T) {
	ctx := context.Background()
	c := openTestCache(t, time.Hour)

	if err := c.Put(ctx, "primary", "libfoo", []vendor.Version{mustVersion(t, "1.0.0")}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := c.Put(ctx, "primary", "libfoo", []vendor.Version{mustVersion(t, "2.0.0")}); err != nil {
		t.Fatalf("Put (overwrite): %v", err)
	}
	got, ok, err := c.Get(ctx, "primary", "libfoo")
	if err != nil || !ok {
		t.Fatalf("expected hit, got ok=%v err=%v", ok, err)
	}
	if len(got) != 1 || got[0].String() != "2.0.0" {
		t.Errorf("got %v, want a single entry 2.0.0", got)
	}
}
