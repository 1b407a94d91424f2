package compress

import (
	"encoding/binary"

	"github.com/klauspost/compress/zstd"

	"github.com/sqfs/squashdelta/internal/squasherr"
)

const (
	zstdMinLevel uint32 = 1
	zstdMaxLevel uint32 = 22
)

// zstdDecompressor handles SquashFS's "zstd" compression id, grounded
// in klauspost/compress/zstd (the pack's consistent choice for zstd
// across containers-podman, jesseduffield-lazydocker, and the
// diggerhq sparse-archive format).
type zstdDecompressor struct {
	level uint32
	dec   *zstd.Decoder
}

func newZstdDecompressor() (*zstdDecompressor, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, squasherr.Wrap(squasherr.KindIO, "failed to construct zstd decoder", err)
	}
	return &zstdDecompressor{dec: dec}, nil
}

func (d *zstdDecompressor) ID() ID { return IDZstd }
func (d *zstdDecompressor) Reset() {}

func (d *zstdDecompressor) Setup(options []byte) error {
	if options == nil {
		return nil
	}
	if len(options) != 4 {
		return squasherr.Formatf("zstd compression options: expected 4 bytes, got %d", len(options))
	}
	level := binary.LittleEndian.Uint32(options[0:4])
	if level < zstdMinLevel || level > zstdMaxLevel {
		return squasherr.Formatf("zstd compression level %d out of range [%d,%d]", level, zstdMinLevel, zstdMaxLevel)
	}
	d.level = level
	return nil
}

func (d *zstdDecompressor) Decompress(dst, src []byte, maxDstLen int) (int, error) {
	out, err := d.dec.DecodeAll(src, dst[:0])
	if err != nil {
		return 0, squasherr.Wrap(squasherr.KindFormat, "zstd decompression failed", err)
	}
	if len(out) > maxDstLen {
		return 0, squasherr.Format("zstd decompressed output exceeds the declared block size")
	}
	if len(out) > 0 && (len(dst) == 0 || &out[0] != &dst[0]) {
		copy(dst, out)
	}
	return len(out), nil
}
