// Copyright 2026 The Edo Authors
// SPDX-License-Identifier: Apache-2.0

// Package artifact defines the OCI-style content-addressed artifact
// model: Id (name/package/version/arch/digest), MediaType (a tagged
// union over compression), Layer (one hashed blob), and Artifact (a
// config plus an ordered list of layers). This is a pure data model
// package — hashing and equality only. The backend that persists
// artifacts and the manager that arranges them into cache tiers live
// in lib/storage, which imports this package.
//
// All digests are BLAKE3 in keyed mode with domain separation between
// layer content and artifact config, so the same bytes hash
// differently depending on what they identify.
package artifact
