// Copyright 2026 The Edo Authors
// SPDX-License-Identifier: Apache-2.0

// Package vendorcache persists the results of Vendor.Options behind a
// TTL so a resolve pass over a large dependency graph does not refetch
// every package's version list from a remote vendor on every run. It
// sits entirely in front of lib/vendor's Resolver — Options results
// never influence a Lock's content, only how fast BuildPool runs — so
// the cache can be skipped, cleared, or left cold without changing
// what a solve produces, only how quickly it produces it.
//
// The cache is grounded on lib/sqlitepool's pool-of-connections shape,
// but opens modernc.org/sqlite through database/sql directly rather
// than adapting sqlitepool's zombiezen-based API: a cache this small
// needs one long-lived connection, not a pool, and modernc.org/sqlite
// is a pure-Go driver already present in the module's dependency
// graph, avoiding a cgo dependency for what is otherwise a purely
// optional performance layer. TTL expiry is checked against an
// injected lib/clock.Clock rather than time.Now directly, so cache
// expiry can be driven deterministically in tests.
package vendorcache

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite"

	"github.com/edo-build/edo/lib/clock"
	"github.com/edo-build/edo/lib/vendor"
)

// Config holds the parameters for opening a vendor options cache.
type Config struct {
	// Path is the filesystem path to the SQLite database file. Use
	// ":memory:" for an in-memory cache (tests only — the cache does
	// not survive process exit).
	Path string

	// TTL is how long a cached Options result remains valid. Defaults
	// to one hour when zero; a negative TTL makes every entry expired.
	TTL time.Duration

	// Logger receives operational messages. If nil, a no-op logger is
	// used.
	Logger *slog.Logger

	// Clock supplies the current time for TTL checks. If nil,
	// clock.Real() is used. Tests inject clock.Fake() to exercise
	// expiry deterministically, without sleeping.
	Clock clock.Clock
}

// Cache is a persisted, TTL'd store of Vendor.Options results keyed by
// (vendor name, package name). Safe for concurrent use.
type Cache struct {
	db     *sql.DB
	ttl    time.Duration
	logger *slog.Logger
	clock  clock.Clock
	path   string
}

const schema = `
CREATE TABLE IF NOT EXISTS vendor_options (
	vendor     TEXT NOT NULL,
	package    TEXT NOT NULL,
	versions   TEXT NOT NULL,
	cached_at  INTEGER NOT NULL,
	PRIMARY KEY (vendor, package)
)`

// Open creates or opens the cache database at cfg.Path, applying the
// same WAL/busy-timeout pragmas lib/sqlitepool applies, and ensures
// the schema exists.
func Open(cfg Config) (*Cache, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("vendorcache: Path is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = time.Hour
	}
	clk := cfg.Clock
	if clk == nil {
		clk = clock.Real()
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("vendorcache: opening %s: %w", cfg.Path, err)
	}
	// A single connection avoids SQLITE_BUSY between goroutines racing
	// the same process; a resolve pass is read-mostly and short-lived
	// enough that serializing writes through one connection costs
	// nothing noticeable.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("vendorcache: %s: %w", pragma, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("vendorcache: creating schema: %w", err)
	}

	logger.Info("vendor options cache opened", "path", cfg.Path, "ttl", ttl)
	return &Cache{db: db, ttl: ttl, logger: logger, clock: clk, path: cfg.Path}, nil
}

// Close closes the underlying database handle.
func (c *Cache) Close() error {
	if err := c.db.Close(); err != nil {
		return fmt.Errorf("vendorcache: closing %s: %w", c.path, err)
	}
	return nil
}

// Get returns the cached versions for (vendorName, pkg) and true if a
// fresh entry exists, or false if there is no entry or it has expired.
func (c *Cache) Get(ctx context.Context, vendorName, pkg string) ([]vendor.Version, bool, error) {
	var versionsJSON string
	var cachedAt int64
	row := c.db.QueryRowContext(ctx,
		`SELECT versions, cached_at FROM vendor_options WHERE vendor = ? AND package = ?`,
		vendorName, pkg)
	if err := row.Scan(&versionsJSON, &cachedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("vendorcache: get %s/%s: %w", vendorName, pkg, err)
	}
	if c.clock.Now().Sub(time.Unix(cachedAt, 0)) > c.ttl {
		return nil, false, nil
	}

	var raw []string
	if err := json.Unmarshal([]byte(versionsJSON), &raw); err != nil {
		return nil, false, fmt.Errorf("vendorcache: decoding cached versions for %s/%s: %w", vendorName, pkg, err)
	}
	versions := make([]vendor.Version, 0, len(raw))
	for _, s := range raw {
		v, err := vendor.ParseVersion(s)
		if err != nil {
			return nil, false, fmt.Errorf("vendorcache: cached version %q for %s/%s: %w", s, vendorName, pkg, err)
		}
		versions = append(versions, v)
	}
	return versions, true, nil
}

// Put stores versions for (vendorName, pkg), replacing any existing
// entry and resetting its TTL clock.
func (c *Cache) Put(ctx context.Context, vendorName, pkg string, versions []vendor.Version) error {
	raw := make([]string, len(versions))
	for i, v := range versions {
		raw[i] = v.String()
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return fmt.Errorf("vendorcache: encoding versions for %s/%s: %w", vendorName, pkg, err)
	}
	_, err = c.db.ExecContext(ctx, `
		INSERT INTO vendor_options (vendor, package, versions, cached_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(vendor, package) DO UPDATE SET versions = excluded.versions, cached_at = excluded.cached_at
	`, vendorName, pkg, string(data), c.clock.Now().Unix())
	if err != nil {
		return fmt.Errorf("vendorcache: put %s/%s: %w", vendorName, pkg, err)
	}
	return nil
}
