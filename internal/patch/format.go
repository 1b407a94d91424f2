// Package patch defines the on-disk, big-endian wire format shared by
// an expanded image's trailer and the final patch file: a fixed header
// followed by a list of block descriptors.
package patch

import (
	"encoding/binary"
	"io"

	"github.com/sqfs/squashdelta/internal/squasherr"
)

// Magic identifies a patch header.
const Magic uint32 = 0x5371CEB4

// HeaderSize is the on-disk size of Header: 4 uint32 fields, packed.
const HeaderSize = 16

// DescriptorSize is the on-disk size of one Descriptor: u64 + u32 + u32.
const DescriptorSize = 16

// Header is the fixed prefix naming how many descriptors follow and
// which compressor produced the blocks they describe.
type Header struct {
	Flags       uint32
	Compression uint32
	BlockCount  uint32
}

// Descriptor locates one unique compressed block's decompressed
// payload in an expanded image and records both lengths needed to
// splice it back into place during reconstruction.
type Descriptor struct {
	Offset             uint64
	Length             uint32
	UncompressedLength uint32
}

// WriteHeader writes h in the big-endian, packed layout spec.md names
// (magic, flags, compression, block_count).
func WriteHeader(w io.Writer, h Header) error {
	var buf [HeaderSize]byte
	binary.BigEndian.PutUint32(buf[0:4], Magic)
	binary.BigEndian.PutUint32(buf[4:8], h.Flags)
	binary.BigEndian.PutUint32(buf[8:12], h.Compression)
	binary.BigEndian.PutUint32(buf[12:16], h.BlockCount)
	if _, err := w.Write(buf[:]); err != nil {
		return squasherr.IO("failed to write patch header", err)
	}
	return nil
}

// ReadHeader reads and validates a Header, rejecting a bad magic.
func ReadHeader(r io.Reader) (Header, error) {
	var buf [HeaderSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Header{}, squasherr.IO("failed to read patch header", err)
	}
	if magic := binary.BigEndian.Uint32(buf[0:4]); magic != Magic {
		return Header{}, squasherr.Format("bad patch header magic")
	}
	return Header{
		Flags:       binary.BigEndian.Uint32(buf[4:8]),
		Compression: binary.BigEndian.Uint32(buf[8:12]),
		BlockCount:  binary.BigEndian.Uint32(buf[12:16]),
	}, nil
}

// WriteDescriptor writes one Descriptor in its packed big-endian form.
func WriteDescriptor(w io.Writer, d Descriptor) error {
	var buf [DescriptorSize]byte
	binary.BigEndian.PutUint64(buf[0:8], d.Offset)
	binary.BigEndian.PutUint32(buf[8:12], d.Length)
	binary.BigEndian.PutUint32(buf[12:16], d.UncompressedLength)
	if _, err := w.Write(buf[:]); err != nil {
		return squasherr.IO("failed to write block descriptor", err)
	}
	return nil
}

// ReadDescriptor reads one Descriptor.
func ReadDescriptor(r io.Reader) (Descriptor, error) {
	var buf [DescriptorSize]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Descriptor{}, squasherr.IO("failed to read block descriptor", err)
	}
	return Descriptor{
		Offset:             binary.BigEndian.Uint64(buf[0:8]),
		Length:             binary.BigEndian.Uint32(buf[8:12]),
		UncompressedLength: binary.BigEndian.Uint32(buf[12:16]),
	}, nil
}
