// Copyright 2026 The Edo Authors
// SPDX-License-Identifier: Apache-2.0

package artifact

import (
	"fmt"
	"strings"
)

// Compression identifies the codec a layer's bytes are compressed
// with. None means the layer is stored raw.
type Compression int

const (
	CompressionNone Compression = iota
	CompressionZstd
	CompressionGzip
	CompressionBzip2
	CompressionLz
	CompressionXz
)

// compressionExt maps a Compression to the rendered media-type suffix
// (the "ext" segment of "vnd.edo.artifact.v1.<kind>.<ext>").
var compressionExt = map[Compression]string{
	CompressionZstd:  "zst",
	CompressionGzip:  "gz",
	CompressionBzip2: "bz2",
	CompressionLz:    "lz4",
	CompressionXz:    "xz",
}

// extToCompression recognizes the filename suffixes MediaType.Detect
// classifies. Several extensions map to the same compression (a gzip
// file may be named .gz or, less commonly, .gzip/.gzip2).
var extToCompression = map[string]Compression{
	"zst":    CompressionZstd,
	"gz":     CompressionGzip,
	"gzip":   CompressionGzip,
	"gzip2":  CompressionGzip,
	"bz2":    CompressionBzip2,
	"bzip":   CompressionBzip2,
	"bzip2":  CompressionBzip2,
	"lz4":    CompressionLz,
	"lzma":   CompressionLz,
	"xz":     CompressionXz,
}

func (c Compression) String() string {
	if ext, ok := compressionExt[c]; ok {
		return ext
	}
	return ""
}

// Kind identifies which alternative of the MediaType union a value
// holds.
type Kind int

const (
	KindManifest Kind = iota
	KindFile
	KindTar
	KindOci
	KindImage
	KindZip
	KindCustom
)

var kindName = map[Kind]string{
	KindManifest: "manifest",
	KindFile:     "file",
	KindTar:      "tar",
	KindOci:      "oci",
	KindImage:    "image",
	KindZip:      "zip",
}

// MediaType is a tagged union over artifact content shape: a manifest
// (no compression, since manifests are always the config layer never
// stored as a blob), or one of File/Tar/Oci/Image/Zip/Custom, each
// carrying a Compression. Custom additionally carries a free-form tag
// for plugin-defined content (spec §3: the config evaluator and
// plugin host may introduce media types the core does not interpret).
type MediaType struct {
	kind        Kind
	tag         string
	compression Compression
}

// Manifest is the outer media type of every Artifact's config layer.
func Manifest() MediaType { return MediaType{kind: KindManifest} }

// File, Tar, Oci, Image, and Zip construct the corresponding media
// type carrying the given compression.
func File(c Compression) MediaType  { return MediaType{kind: KindFile, compression: c} }
func Tar(c Compression) MediaType   { return MediaType{kind: KindTar, compression: c} }
func Oci(c Compression) MediaType   { return MediaType{kind: KindOci, compression: c} }
func Image(c Compression) MediaType { return MediaType{kind: KindImage, compression: c} }
func Zip(c Compression) MediaType   { return MediaType{kind: KindZip, compression: c} }

// Custom constructs a plugin-defined media type. tag must be
// non-empty.
func Custom(tag string, c Compression) MediaType {
	return MediaType{kind: KindCustom, tag: tag, compression: c}
}

// Kind reports which alternative m holds.
func (m MediaType) Kind() Kind { return m.kind }

// Compression reports m's compression. KindManifest is always
// CompressionNone.
func (m MediaType) Compression() Compression { return m.compression }

// Tag reports m's custom tag. Empty for every kind but KindCustom.
func (m MediaType) Tag() string { return m.tag }

// String renders the canonical "vnd.edo.artifact.v1.<kind>[.<ext>]"
// form. The version segment ("v1") is part of the format and is
// never altered by compression or kind.
func (m MediaType) String() string {
	const prefix = "vnd.edo.artifact.v1"

	kind := m.tag
	if m.kind != KindCustom {
		kind = kindName[m.kind]
	}

	if m.kind == KindManifest {
		return prefix + "." + kind
	}
	if ext := m.compression.String(); ext != "" {
		return fmt.Sprintf("%s.%s.%s", prefix, kind, ext)
	}
	return fmt.Sprintf("%s.%s", prefix, kind)
}

// Detect classifies a filename suffix into a (stripped name,
// Compression) pair, per spec §4.1: ".zst" → Zstd, ".gz"/".gzip"/
// ".gzip2" → Gzip, ".bz2"/".bzip"/".bzip2" → Bzip2, ".lz4"/".lzma" →
// Lz, ".xz" → Xz. Any other or absent suffix classifies as
// CompressionNone with the name unchanged.
func Detect(name string) (string, Compression) {
	ext := strings.TrimPrefix(extOf(name), ".")
	if compression, ok := extToCompression[strings.ToLower(ext)]; ok {
		return strings.TrimSuffix(name, "."+ext), compression
	}
	return name, CompressionNone
}

func extOf(name string) string {
	dot := strings.LastIndexByte(name, '.')
	if dot < 0 {
		return ""
	}
	return name[dot:]
}

// ParseMediaType parses the textual form produced by String back into
// a MediaType. Unrecognized kind segments become KindCustom with that
// segment as the tag.
func ParseMediaType(text string) (MediaType, error) {
	const prefix = "vnd.edo.artifact.v1."
	if !strings.HasPrefix(text, prefix) {
		return MediaType{}, fmt.Errorf("artifact: media type %q missing %q prefix", text, prefix)
	}
	rest := text[len(prefix):]
	if rest == "" {
		return MediaType{}, fmt.Errorf("artifact: media type %q has no kind segment", text)
	}

	segments := strings.Split(rest, ".")
	kindSegment := segments[0]

	var compression Compression
	if len(segments) > 1 {
		ext := strings.ToLower(segments[len(segments)-1])
		c, ok := extToCompression[ext]
		if !ok {
			return MediaType{}, fmt.Errorf("artifact: media type %q has unrecognized compression suffix %q", text, ext)
		}
		compression = c
	}

	for k, name := range kindName {
		if name == kindSegment {
			if k == KindManifest {
				return Manifest(), nil
			}
			return MediaType{kind: k, compression: compression}, nil
		}
	}
	return Custom(kindSegment, compression), nil
}
