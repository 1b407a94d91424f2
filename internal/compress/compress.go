// Package compress models SquashFS's decompressor capability as a
// closed sum type over the algorithms SquashFS 4.0 supports. Each
// variant is stateless except for options parsed from the image's
// optional compression-options metadata block; cross-image agreement
// on variant is the algorithm-agreement check spec.md calls for.
package compress

import (
	"fmt"

	"github.com/sqfs/squashdelta/internal/squasherr"
)

// ID is the SquashFS on-disk compression algorithm identifier.
type ID uint16

const (
	IDGzip ID = 1
	IDLZMA ID = 2
	IDLZO  ID = 3
	IDXZ   ID = 4
	IDLZ4  ID = 5
	IDZstd ID = 6
)

func (id ID) String() string {
	switch id {
	case IDGzip:
		return "gzip"
	case IDLZMA:
		return "lzma"
	case IDLZO:
		return "lzo"
	case IDXZ:
		return "xz"
	case IDLZ4:
		return "lz4"
	case IDZstd:
		return "zstd"
	default:
		return fmt.Sprintf("unknown(%d)", uint16(id))
	}
}

// Decompressor is the capability the SquashFS core consumes. Exactly
// one Decompressor instance exists per compression algorithm across
// both images in a run; it is shared by reference between the scanner
// and the writer for a given image and used strictly serially.
type Decompressor interface {
	// Setup consumes the image's compression-options metadata block,
	// if any. A nil options slice means the image set no options flag.
	Setup(options []byte) error

	// Reset clears any decompressor-local state between images or
	// between the scan and write passes over the same image.
	Reset()

	// Decompress decompresses src into dst (which must be at least
	// maxDstLen bytes) and returns the number of bytes produced.
	Decompress(dst, src []byte, maxDstLen int) (int, error)

	// ID reports the algorithm identifier, used for the cross-image
	// agreement check and for the patch header's compression field.
	ID() ID
}

// New constructs the Decompressor for a given algorithm id. An
// unrecognized id yields a *squasherr.Error of KindUnsupported.
func New(id ID) (Decompressor, error) {
	switch id {
	case IDGzip:
		return &gzipDecompressor{}, nil
	case IDLZMA:
		return &lzmaDecompressor{}, nil
	case IDLZO:
		return &lzoDecompressor{}, nil
	case IDXZ:
		return &xzDecompressor{}, nil
	case IDLZ4:
		return &lz4Decompressor{}, nil
	case IDZstd:
		return newZstdDecompressor()
	default:
		return nil, squasherr.Unsupported(fmt.Sprintf("compression algorithm %s is not built in", id))
	}
}

// RequireSameAlgorithm enforces the cross-image contract: both images
// must report the same decompressor variant.
func RequireSameAlgorithm(a, b Decompressor) error {
	if a.ID() != b.ID() {
		return squasherr.ConfigMismatch(fmt.Sprintf(
			"source and target use different compressors (%s vs %s)", a.ID(), b.ID()))
	}
	return nil
}
