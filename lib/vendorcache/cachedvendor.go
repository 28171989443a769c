// Copyright 2026 The Edo Authors
// SPDX-License-Identifier: Apache-2.0

package vendorcache

import (
	"context"

	"github.com/edo-build/edo/lib/node"
	"github.com/edo-build/edo/lib/vendor"
)

// CachedVendor wraps a vendor.Vendor with a Cache in front of its
// Options calls. Resolve and Dependencies pass straight through to the
// wrapped vendor, since only Options is expensive enough, and stable
// enough between calls, to be worth caching.
type CachedVendor struct {
	Inner vendor.Vendor
	Cache *Cache
}

var _ vendor.Vendor = CachedVendor{}

// Name returns the wrapped vendor's name.
func (v CachedVendor) Name() string { return v.Inner.Name() }

// Options returns the cached version list if a fresh one exists,
// otherwise calls through to the wrapped vendor and refreshes the
// cache. A cache read or write failure is logged and does not prevent
// the call from succeeding — the cache is a performance layer, not a
// source of truth.
func (v CachedVendor) Options(ctx context.Context, name string) ([]vendor.Version, error) {
	vendorName := v.Inner.Name()
	if cached, ok, err := v.Cache.Get(ctx, vendorName, name); err != nil {
		v.Cache.logger.Warn("vendor options cache read failed, falling back to vendor",
			"vendor", vendorName, "package", name, "error", err)
	} else if ok {
		return cached, nil
	}

	versions, err := v.Inner.Options(ctx, name)
	if err != nil {
		return nil, err
	}
	if err := v.Cache.Put(ctx, vendorName, name, versions); err != nil {
		v.Cache.logger.Warn("vendor options cache write failed",
			"vendor", vendorName, "package", name, "error", err)
	}
	return versions, nil
}

// Resolve delegates to the wrapped vendor.
func (v CachedVendor) Resolve(ctx context.Context, name string, version vendor.Version) (node.Node, error) {
	return v.Inner.Resolve(ctx, name, version)
}

// Dependencies delegates to the wrapped vendor.
func (v CachedVendor) Dependencies(ctx context.Context, name string, version vendor.Version) (map[string]vendor.VersionReq, error) {
	return v.Inner.Dependencies(ctx, name, version)
}
