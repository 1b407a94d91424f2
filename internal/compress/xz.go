package compress

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/ulikunitz/xz"

	"github.com/sqfs/squashdelta/internal/squasherr"
)

// xzFilter mirrors the executable-filter bitset SquashFS's xz options
// block carries (grounded in go-diskfs's CompressorXz.loadOptions).
type xzFilter uint32

const (
	xzFilterX86      xzFilter = 0x1
	xzFilterPowerPC  xzFilter = 0x2
	xzFilterIA64     xzFilter = 0x4
	xzFilterArm      xzFilter = 0x8
	xzFilterArmThumb xzFilter = 0x10
	xzFilterSparc    xzFilter = 0x20
)

// xzDecompressor handles SquashFS's "xz" compression id. The
// dictionary size and executable filters recorded in the options block
// only matter for the encoder; the xz container is self-describing on
// decode, so Setup only validates the options block's shape.
type xzDecompressor struct {
	dictionarySize uint32
	filters        xzFilter
}

func (d *xzDecompressor) ID() ID { return IDXZ }
func (d *xzDecompressor) Reset() {}

func (d *xzDecompressor) Setup(options []byte) error {
	if options == nil {
		return nil
	}
	if len(options) != 8 {
		return squasherr.Formatf("xz compression options: expected 8 bytes, got %d", len(options))
	}
	d.dictionarySize = binary.LittleEndian.Uint32(options[0:4])
	d.filters = xzFilter(binary.LittleEndian.Uint32(options[4:8]))
	return nil
}

func (d *xzDecompressor) Decompress(dst, src []byte, maxDstLen int) (int, error) {
	xr, err := xz.NewReader(bytes.NewReader(src))
	if err != nil {
		return 0, squasherr.Wrap(squasherr.KindFormat, "xz decompression failed", err)
	}

	w := &boundedWriter{buf: dst[:0], max: maxDstLen}
	n, err := io.Copy(w, xr)
	if err != nil {
		return 0, squasherr.Wrap(squasherr.KindFormat, "xz decompression failed", err)
	}
	copy(dst, w.buf)
	return int(n), nil
}
