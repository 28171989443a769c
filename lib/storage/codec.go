// Copyright 2026 The Edo Authors
// SPDX-License-Identifier: Apache-2.0

package storage

import (
	"compress/bzip2"
	"compress/gzip"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/edo-build/edo/lib/artifact"
)

// ErrCompressionUnsupported is returned for a Compression this module
// has no codec for. Bzip2 has no writer anywhere in the corpus or the
// standard library, so Bzip2 write attempts return this; Xz has
// neither a reader nor a writer in the corpus, so every Xz operation
// does (see SPEC_FULL.md §9 Open Questions).
var ErrCompressionUnsupported = fmt.Errorf("storage: compression codec unsupported")

// compressWriter wraps w so that bytes written to the returned writer
// are compressed with c before reaching w. Callers must Close the
// returned writer to flush trailing codec state.
func compressWriter(w io.Writer, c artifact.Compression) (io.WriteCloser, error) {
	switch c {
	case artifact.CompressionNone:
		return nopWriteCloser{w}, nil
	case artifact.CompressionZstd:
		return zstd.NewWriter(w)
	case artifact.CompressionGzip:
		return gzip.NewWriter(w), nil
	case artifact.CompressionLz:
		return lz4.NewWriter(w), nil
	case artifact.CompressionBzip2, artifact.CompressionXz:
		return nil, fmt.Errorf("%w: %s", ErrCompressionUnsupported, c)
	default:
		return nil, fmt.Errorf("storage: unknown compression %d", c)
	}
}

// decompressReader wraps r so that reads from the returned reader
// yield decompressed bytes.
func decompressReader(r io.Reader, c artifact.Compression) (io.ReadCloser, error) {
	switch c {
	case artifact.CompressionNone:
		return io.NopCloser(r), nil
	case artifact.CompressionZstd:
		decoder, err := zstd.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("storage: zstd reader: %w", err)
		}
		return decoder.IOReadCloser(), nil
	case artifact.CompressionGzip:
		return gzip.NewReader(r)
	case artifact.CompressionLz:
		return io.NopCloser(lz4.NewReader(r)), nil
	case artifact.CompressionBzip2:
		return io.NopCloser(bzip2.NewReader(r)), nil
	case artifact.CompressionXz:
		return nil, fmt.Errorf("%w: %s", ErrCompressionUnsupported, c)
	default:
		return nil, fmt.Errorf("storage: unknown compression %d", c)
	}
}

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }
