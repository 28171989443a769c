// Copyright 2026 The Edo Authors
// SPDX-License-Identifier: Apache-2.0

package source

import "testing"

func TestGitSourceUniqueIdIsDeterministic(t *testing.T) {
	a := GitSource{URL: "https://example.test/curl.git", Ref: "v8.0.0"}
	b := GitSource{URL: "https://example.test/curl.git", Ref: "v8.0.0"}
	if a.UniqueId() != b.UniqueId() {
		t.Error("identical GitSource inputs should produce identical unique_id")
	}

	c := GitSource{URL: "https://example.test/curl.git", Ref: "v8.1.0"}
	if a.UniqueId() == c.UniqueId() {
		t.Error("different refs should produce different unique_id")
	}
}

func TestSanitizeNameStripsGitSuffixAndSeparators(t *testing.T) {
	cases := map[string]string{
		"https://github.com/curl/curl.git": "curl",
		"https://github.com/curl/curl":     "curl",
		"git@github.com:curl/curl.git":     "curl",
	}
	for in, want := range cases {
		if got := sanitizeName(in); got != want {
			t.Errorf("sanitizeName(%q) = %q, want %q", in, got, want)
		}
	}
}
