// Copyright 2026 The Edo Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import "testing"

func TestMediaTypeStringManifest(t *testing.T) {
	if got := Manifest().String(); got != "vnd.edo.artifact.v1.manifest" {
		t.Errorf("Manifest().String() = %q", got)
	}
}

func TestMediaTypeStringWithCompression(t *testing.T) {
	tests := []struct {
		mt   MediaType
		want string
	}{
		{File(CompressionNone), "vnd.edo.artifact.v1.file"},
		{File(CompressionZstd), "vnd.edo.artifact.v1.file.zst"},
		{Tar(CompressionGzip), "vnd.edo.artifact.v1.tar.gz"},
		{Oci(CompressionBzip2), "vnd.edo.artifact.v1.oci.bz2"},
		{Image(CompressionLz), "vnd.edo.artifact.v1.image.lz4"},
		{Zip(CompressionXz), "vnd.edo.artifact.v1.zip.xz"},
		{Custom("wheel", CompressionNone), "vnd.edo.artifact.v1.wheel"},
	}
	for _, tt := range tests {
		if got := tt.mt.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestMediaTypeParseRoundTrip(t *testing.T) {
	tests := []MediaType{
		Manifest(),
		File(CompressionZstd),
		Tar(CompressionGzip),
		Oci(CompressionNone),
		Zip(CompressionXz),
		Custom("wheel", CompressionLz),
	}
	for _, mt := range tests {
		text := mt.String()
		parsed, err := ParseMediaType(text)
		if err != nil {
			t.Fatalf("ParseMediaType(%q): %v", text, err)
		}
		if parsed != mt {
			t.Errorf("round trip %+v -> %q -> %+v", mt, text, parsed)
		}
	}
}

func TestParseMediaTypeRejectsMissingPrefix(t *testing.T) {
	if _, err := ParseMediaType("not-a-media-type"); err == nil {
		t.Error("ParseMediaType should reject a string without the vnd.edo.artifact.v1 prefix")
	}
}

func TestDetect(t *testing.T) {
	tests := []struct {
		name       string
		wantName   string
		wantCompression Compression
	}{
		{"archive.tar.zst", "archive.tar", CompressionZstd},
		{"archive.tar.gz", "archive.tar", CompressionGzip},
		{"archive.tar.gzip", "archive.tar", CompressionGzip},
		{"archive.tar.bz2", "archive.tar", CompressionBzip2},
		{"archive.tar.lz4", "archive.tar", CompressionLz},
		{"archive.tar.xz", "archive.tar", CompressionXz},
		{"plainfile", "plainfile", CompressionNone},
		{"archive.tar", "archive.tar", CompressionNone},
	}
	for _, tt := range tests {
		name, compression := Detect(tt.name)
		if name != tt.wantName || compression != tt.wantCompression {
			t.Errorf("Detect(%q) = (%q, %v), want (%q, %v)", tt.name, name, compression, tt.wantName, tt.wantCompression)
		}
	}
}
