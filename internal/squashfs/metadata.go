package squashfs

import (
	"github.com/sqfs/squashdelta/internal/compress"
	"github.com/sqfs/squashdelta/internal/mmapfile"
	"github.com/sqfs/squashdelta/internal/squasherr"
)

// RawBlock is the raw, undecoded form of one metadata block: its
// compressed bytes (or verbatim bytes if uncompressed), the absolute
// offset of the payload immediately following the block's 16-bit
// header, and whether the compressed flag was set. This is what the
// scanner fingerprints without paying for a second decompression.
type RawBlock struct {
	Data       []byte
	Offset     int
	Compressed bool
}

// blockReader reads one metadata block at a time from an absolute
// offset in the image, decompressing on demand. It mirrors
// MetadataBlockReader: a thin layer with no buffering of its own.
type blockReader struct {
	r  *mmapfile.Reader
	dc compress.Decompressor
}

func newBlockReader(base *mmapfile.Reader, offset int, dc compress.Decompressor) *blockReader {
	r := base.Clone()
	_ = r.Seek(offset)
	return &blockReader{r: r, dc: dc}
}

// readRaw reads the next block's header and returns its raw bytes
// without decompressing, advancing the cursor past the block.
func (b *blockReader) readRaw() (RawBlock, error) {
	header, err := b.r.ReadU16()
	if err != nil {
		return RawBlock{}, squasherr.Wrap(squasherr.KindFormat, "unable to read metadata block header", err)
	}

	length := int(header &^ (1 << 15))
	compressed := header&(1<<15) == 0
	if length == 0 {
		return RawBlock{}, squasherr.Format("metadata block declares zero length")
	}

	offset := b.r.Pos()
	data, err := b.r.Bytes(length)
	if err != nil {
		return RawBlock{}, squasherr.Wrap(squasherr.KindFormat, "metadata block payload truncated", err)
	}

	return RawBlock{Data: data, Offset: offset, Compressed: compressed}, nil
}

// read reads the next block and decompresses it into dst, returning
// the number of decompressed bytes produced.
func (b *blockReader) read(dst []byte) (int, error) {
	raw, err := b.readRaw()
	if err != nil {
		return 0, err
	}
	if !raw.Compressed {
		if len(raw.Data) > len(dst) {
			return 0, squasherr.Format("output buffer too small for uncompressed metadata block")
		}
		copy(dst, raw.Data)
		return len(raw.Data), nil
	}
	n, err := b.dc.Decompress(dst, raw.Data, len(dst))
	if err != nil {
		return 0, err
	}
	return n, nil
}

// MetadataReader presents the chain of compressed metadata blocks
// starting at a given absolute offset as one unbounded logical byte
// stream, buffering up to two block's worth of decompressed data the
// way the reference MetadataReader does (double-sized buffer whose
// unread bytes are shifted to the front before the next block is read
// once the write position has passed the halfway mark).
type MetadataReader struct {
	blocks *blockReader

	buf      []byte
	bufStart int // index into buf where unread data begins
	filled   int // number of unread bytes starting at bufStart
	blockNum int
}

// OpenMetadataReader begins a metadata stream at an absolute offset.
func OpenMetadataReader(base *mmapfile.Reader, offset int, dc compress.Decompressor) *MetadataReader {
	return &MetadataReader{
		blocks: newBlockReader(base, offset, dc),
		buf:    make([]byte, 2*MetadataSize),
	}
}

func (m *MetadataReader) pollData() error {
	writeAt := m.bufStart + m.filled
	if writeAt > MetadataSize {
		copy(m.buf, m.buf[m.bufStart:m.bufStart+m.filled])
		m.bufStart = 0
		writeAt = m.filled
	}

	n, err := m.blocks.read(m.buf[writeAt:])
	if err != nil {
		return err
	}
	m.filled += n
	m.blockNum++
	return nil
}

// Peek returns the next length bytes without advancing past them,
// pulling in additional metadata blocks as needed. The returned slice
// aliases the reader's internal buffer and is only valid until the
// next Seek/Peek/Read call.
func (m *MetadataReader) Peek(length int) ([]byte, error) {
	for m.filled < length {
		if err := m.pollData(); err != nil {
			return nil, err
		}
	}
	return m.buf[m.bufStart : m.bufStart+length], nil
}

// Seek advances past length already-peeked bytes.
func (m *MetadataReader) Seek(length int) {
	m.bufStart += length
	m.filled -= length
}

// ReadBytes reads and consumes length bytes in one call.
func (m *MetadataReader) ReadBytes(length int) ([]byte, error) {
	b, err := m.Peek(length)
	if err != nil {
		return nil, err
	}
	out := make([]byte, length)
	copy(out, b)
	m.Seek(length)
	return out, nil
}

// ReadU16/ReadU32/ReadU64 read a little-endian typed value across
// metadata block boundaries and advance past it.
func (m *MetadataReader) ReadU16() (uint16, error) {
	b, err := m.Peek(2)
	if err != nil {
		return 0, err
	}
	v := uint16(b[0]) | uint16(b[1])<<8
	m.Seek(2)
	return v, nil
}

func (m *MetadataReader) ReadU32() (uint32, error) {
	b, err := m.Peek(4)
	if err != nil {
		return 0, err
	}
	v := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	m.Seek(4)
	return v, nil
}

func (m *MetadataReader) ReadU64() (uint64, error) {
	b, err := m.Peek(8)
	if err != nil {
		return 0, err
	}
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	m.Seek(8)
	return v, nil
}

// BlockNum reports the number of metadata blocks consumed so far.
// Calling this mid-block (unread bytes still buffered) indicates the
// caller stopped reading at a position that wasn't a block boundary —
// almost certainly image corruption.
func (m *MetadataReader) BlockNum() (int, error) {
	if m.filled > 0 {
		return 0, squasherr.Format("expected metadata ended mid-block; image likely corrupted")
	}
	return m.blockNum, nil
}

// ReadRawBlocks replays the metadata chain from scratch as a sequence
// of raw (undecoded) blocks, invoking fn for each until fn returns
// false or the underlying read fails. This is what the block scanner
// uses to fingerprint the inode and fragment tables' own metadata
// blocks without paying for a second decompression pass over the
// already-consumed logical stream.
func ReadRawBlocks(base *mmapfile.Reader, offset int, dc compress.Decompressor, fn func(RawBlock) bool) error {
	br := newBlockReader(base, offset, dc)
	for {
		raw, err := br.readRaw()
		if err != nil {
			return err
		}
		if !fn(raw) {
			return nil
		}
	}
}
