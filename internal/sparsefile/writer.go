// Package sparsefile writes the expanded image as a sparse file:
// regions that used to hold a compressed block become holes (ftruncate
// past them, no data written), and decompressed payloads are appended
// as real data. This mirrors the original tool's SparseFileWriter, with
// hole creation done through unix.Fallocate/ftruncate the way
// posix_fallocate/ftruncate are used on the C side.
package sparsefile

import (
	"io"
	"os"

	"golang.org/x/sys/unix"

	"github.com/sqfs/squashdelta/internal/squasherr"
)

// Writer appends data sequentially to a file, tracking the current
// write offset the way the reference SparseFileWriter does, and can
// punch a hole instead of writing real bytes.
type Writer struct {
	f      *os.File
	offset int64
}

// Create creates path (truncating it if it exists) and, when
// expectedSize is positive, pre-allocates that many bytes the way the
// reference implementation calls posix_fallocate up front. Fallocate
// failures are tolerated (not every filesystem supports it); this only
// affects allocation hints, not correctness.
func Create(path string, expectedSize int64) (*Writer, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o666)
	if err != nil {
		return nil, squasherr.IO("unable to create output file", err)
	}
	if expectedSize > 0 {
		_ = unix.Fallocate(int(f.Fd()), 0, 0, expectedSize)
	}
	return &Writer{f: f}, nil
}

// Offset reports the writer's current logical position.
func (w *Writer) Offset() int64 { return w.offset }

// Write appends data at the current offset.
func (w *Writer) Write(data []byte) error {
	n, err := w.f.Write(data)
	w.offset += int64(n)
	if err != nil {
		return squasherr.IO("write failed", err)
	}
	return nil
}

// WriteHole advances the logical offset by length without writing any
// bytes, extending the file with ftruncate and seeking past the gap so
// the next Write lands after it. The filesystem is left to decide
// whether the resulting range is materialized as a hole.
func (w *Writer) WriteHole(length int64) error {
	past := w.offset + length
	if err := w.f.Truncate(past); err != nil {
		return squasherr.IO("ftruncate failed to extend the sparse file", err)
	}
	if _, err := w.f.Seek(past, io.SeekStart); err != nil {
		return squasherr.IO("seek failed past sparse region", err)
	}
	w.offset = past
	return nil
}

// Close closes the underlying file.
func (w *Writer) Close() error {
	if err := w.f.Close(); err != nil {
		return squasherr.IO("close failed", err)
	}
	return nil
}
