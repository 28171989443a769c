// Copyright 2026 The Edo Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers used across the
// module's package tests.
//
// [RequireReceive], [RequireSend], and [RequireClosed] encapsulate the
// timeout safety valve pattern (select with time.After fallback) so
// that individual tests do not need direct time.After calls, bounding
// waits on goroutine completion channels.
//
// [UniqueID] generates monotonically increasing identifiers for test
// disambiguation, for tests that need distinct addresses or artifact
// names without depending on wall-clock time.
//
// All helpers call t.Fatalf on failure rather than returning errors,
// since test setup failures are not recoverable.
package testutil
