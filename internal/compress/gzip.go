package compress

import (
	"bytes"
	"compress/zlib"
	"io"

	"github.com/sqfs/squashdelta/internal/squasherr"
)

// gzipDecompressor handles SquashFS's "gzip" compression id, which on
// the wire is a raw zlib (RFC 1950) stream, the same framing
// compress/zlib implements. No third-party zlib binding is warranted
// here; see DESIGN.md.
type gzipDecompressor struct{}

func (d *gzipDecompressor) Setup(options []byte) error { return nil }
func (d *gzipDecompressor) Reset()                     {}
func (d *gzipDecompressor) ID() ID                      { return IDGzip }

func (d *gzipDecompressor) Decompress(dst, src []byte, maxDstLen int) (int, error) {
	zr, err := zlib.NewReader(bytes.NewReader(src))
	if err != nil {
		return 0, squasherr.Wrap(squasherr.KindFormat, "gzip decompression failed", err)
	}
	defer zr.Close()

	buf := dst[:0]
	w := &boundedWriter{buf: buf, max: maxDstLen}
	n, err := io.Copy(w, zr)
	if err != nil {
		return 0, squasherr.Wrap(squasherr.KindFormat, "gzip decompression failed", err)
	}
	copy(dst, w.buf)
	return int(n), nil
}

// boundedWriter accumulates writes into buf (already backed by dst's
// capacity) and refuses once max bytes have been written, matching
// the decompress(dst, src, src_len, max_dst_len) contract from spec.md §4.9.
type boundedWriter struct {
	buf []byte
	max int
}

func (w *boundedWriter) Write(p []byte) (int, error) {
	if len(w.buf)+len(p) > w.max {
		return 0, squasherr.Format("decompressed output exceeds the declared block size")
	}
	w.buf = append(w.buf, p...)
	return len(p), nil
}
