// Package mmapfile provides a read-only, memory-mapped view of a file
// with a cursor and bounded, typed reads. It backs every component
// that walks a SquashFS image: the image is mapped once, read many
// times, and released at the end of the run.
package mmapfile

import (
	"os"

	"golang.org/x/sys/unix"

	"github.com/sqfs/squashdelta/internal/squasherr"
)

// Reader is a memory-mapped read-only view of a file with a cursor.
// Bounds failures surface as *squasherr.Error of Kind KindIO.
//
// A Reader may be cloned with Clone to obtain an independent cursor
// over the same backing mapping without re-mapping the file.
type Reader struct {
	data   []byte // shared mapping; never mutated
	pos    int
	owner  bool // true only for the Reader that performed the mmap
	closed *bool
}

// Open maps path read-only and returns a Reader positioned at offset 0.
func Open(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, squasherr.IO("unable to open file", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, squasherr.IO("unable to stat file", err)
	}
	size := info.Size()
	if size == 0 {
		return nil, squasherr.Format("refusing to map an empty file")
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, squasherr.IO("mmap failed", err)
	}

	closed := false
	return &Reader{data: data, owner: true, closed: &closed}, nil
}

// Clone returns a new Reader sharing this Reader's mapping with its
// own independent cursor, positioned at offset 0.
func (r *Reader) Clone() *Reader {
	return &Reader{data: r.data, owner: false, closed: r.closed}
}

// Close releases the mapping. Only the Reader returned by Open actually
// unmaps; clones are no-ops.
func (r *Reader) Close() error {
	if !r.owner || *r.closed {
		return nil
	}
	*r.closed = true
	if err := unix.Munmap(r.data); err != nil {
		return squasherr.IO("munmap failed", err)
	}
	return nil
}

// Len returns the total length of the mapped file.
func (r *Reader) Len() int { return len(r.data) }

// Pos returns the current cursor position.
func (r *Reader) Pos() int { return r.pos }

// Seek moves the cursor to an absolute offset.
func (r *Reader) Seek(absOffset int) error {
	if absOffset < 0 || absOffset > len(r.data) {
		return squasherr.IO("seek out of range", nil)
	}
	r.pos = absOffset
	return nil
}

// Skip advances the cursor by n bytes (n may be negative).
func (r *Reader) Skip(n int) error {
	return r.Seek(r.pos + n)
}

// Bytes returns a bounded, zero-copy slice of the next n bytes and
// advances the cursor past them. The returned slice aliases the
// mapping and is valid for the lifetime of the Reader.
func (r *Reader) Bytes(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.data) {
		return nil, squasherr.IO("read past end of mapped file", nil)
	}
	b := r.data[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

// PeekBytes is Bytes without advancing the cursor.
func (r *Reader) PeekBytes(n int) ([]byte, error) {
	if n < 0 || r.pos+n > len(r.data) {
		return nil, squasherr.IO("peek past end of mapped file", nil)
	}
	return r.data[r.pos : r.pos+n], nil
}

// BytesAt returns a bounded, zero-copy slice at an absolute offset
// without touching the cursor.
func (r *Reader) BytesAt(offset, n int) ([]byte, error) {
	if offset < 0 || n < 0 || offset+n > len(r.data) {
		return nil, squasherr.IO("read past end of mapped file", nil)
	}
	return r.data[offset : offset+n], nil
}

// ReadU16 reads a little-endian uint16 and advances the cursor.
func (r *Reader) ReadU16() (uint16, error) {
	b, err := r.Bytes(2)
	if err != nil {
		return 0, err
	}
	return uint16(b[0]) | uint16(b[1])<<8, nil
}

// ReadU32 reads a little-endian uint32 and advances the cursor.
func (r *Reader) ReadU32() (uint32, error) {
	b, err := r.Bytes(4)
	if err != nil {
		return 0, err
	}
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24, nil
}

// ReadU64 reads a little-endian uint64 and advances the cursor.
func (r *Reader) ReadU64() (uint64, error) {
	b, err := r.Bytes(8)
	if err != nil {
		return 0, err
	}
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v, nil
}
