package compress

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/pierrec/lz4/v4"

	"github.com/sqfs/squashdelta/internal/squasherr"
)

const lz4LegacyVersion uint32 = 1

// lz4Decompressor handles SquashFS's "lz4" compression id. SquashFS
// wraps the legacy LZ4 frame format; pierrec/lz4 reads it directly.
type lz4Decompressor struct {
	highCompression bool
}

func (d *lz4Decompressor) ID() ID { return IDLZ4 }
func (d *lz4Decompressor) Reset() {}

func (d *lz4Decompressor) Setup(options []byte) error {
	if options == nil {
		return squasherr.Format("no compression options found for lz4")
	}
	if len(options) != 8 {
		return squasherr.Formatf("lz4 compression options: expected 8 bytes, got %d", len(options))
	}
	version := binary.LittleEndian.Uint32(options[0:4])
	if version != lz4LegacyVersion {
		return squasherr.Formatf("unsupported lz4 stream version %d", version)
	}
	flags := binary.LittleEndian.Uint32(options[4:8])
	const hcFlag = 1
	if flags&^hcFlag != 0 {
		return squasherr.Format("unknown lz4 flags found")
	}
	d.highCompression = flags&hcFlag != 0
	return nil
}

func (d *lz4Decompressor) Decompress(dst, src []byte, maxDstLen int) (int, error) {
	zr := lz4.NewReader(bytes.NewReader(src))

	w := &boundedWriter{buf: dst[:0], max: maxDstLen}
	n, err := io.Copy(w, zr)
	if err != nil {
		return 0, squasherr.Wrap(squasherr.KindFormat, "lz4 decompression failed", err)
	}
	copy(dst, w.buf)
	return int(n), nil
}
