package compress

import (
	"bytes"
	"io"

	"github.com/ulikunitz/xz/lzma"

	"github.com/sqfs/squashdelta/internal/squasherr"
)

// lzmaDecompressor handles SquashFS's raw-LZMA ("lzma") compression id.
// LZMA has no options block in SquashFS 4.0.
type lzmaDecompressor struct{}

func (d *lzmaDecompressor) Setup(options []byte) error { return nil }
func (d *lzmaDecompressor) Reset()                     {}
func (d *lzmaDecompressor) ID() ID                      { return IDLZMA }

func (d *lzmaDecompressor) Decompress(dst, src []byte, maxDstLen int) (int, error) {
	lr, err := lzma.NewReader(bytes.NewReader(src))
	if err != nil {
		return 0, squasherr.Wrap(squasherr.KindFormat, "lzma decompression failed", err)
	}

	w := &boundedWriter{buf: dst[:0], max: maxDstLen}
	n, err := io.Copy(w, lr)
	if err != nil {
		return 0, squasherr.Wrap(squasherr.KindFormat, "lzma decompression failed", err)
	}
	copy(dst, w.buf)
	return int(n), nil
}
