package squashfs

import (
	"github.com/sqfs/squashdelta/internal/compress"
	"github.com/sqfs/squashdelta/internal/mmapfile"
	"github.com/sqfs/squashdelta/internal/squasherr"
)

// ReadCompressionOptions consumes the single metadata block
// immediately following the superblock when sb.HasCompressionOptions()
// is set, returning its decompressed bytes as the decompressor's setup
// options. dc must already be constructed for the image's algorithm id
// (Setup is called with the returned bytes by the caller, after this
// block itself is read with dc in its zero-value, unconfigured state).
// The payload length is algorithm-specific, not a fixed 8 bytes: zstd's
// options block is 4 bytes (compression_level only) and lzma carries no
// options block at all, matching internal/compress/*.go's own Setup
// implementations.
func ReadCompressionOptions(base *mmapfile.Reader, dc compress.Decompressor) ([]byte, error) {
	length, err := compressionOptionsLength(dc.ID())
	if err != nil {
		return nil, err
	}
	if length == 0 {
		return nil, nil
	}

	const superBlockSize = 96
	m := OpenMetadataReader(base, superBlockSize, dc)
	opts, err := m.ReadBytes(length)
	if err != nil {
		return nil, err
	}
	return opts, nil
}

// compressionOptionsLength reports the on-disk size of the
// compression-options metadata block for a given algorithm.
func compressionOptionsLength(id compress.ID) (int, error) {
	switch id {
	case compress.IDZstd:
		return 4, nil
	case compress.IDGzip, compress.IDLZO, compress.IDXZ, compress.IDLZ4:
		return 8, nil
	case compress.IDLZMA:
		return 0, nil
	default:
		return 0, squasherr.Unsupported("no known compression-options layout for this algorithm")
	}
}
