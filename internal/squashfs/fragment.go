package squashfs

import (
	"github.com/sqfs/squashdelta/internal/compress"
	"github.com/sqfs/squashdelta/internal/mmapfile"
	"github.com/sqfs/squashdelta/internal/squasherr"
)

// fragmentEntrySize is the on-disk size of one squashfs::fragment_entry:
// start_block (le64), size (le32), unused (4 bytes).
const fragmentEntrySize = 8 + 4 + 4

// FragmentEntry is one decoded entry of the fragment table.
type FragmentEntry struct {
	StartBlock   uint64
	Length       uint32 // masked
	Uncompressed bool
}

// FragmentTableReader resolves the fragment table's two-level indirect
// index (a packed array of pointers to metadata blocks, each holding a
// run of fragment entries) and exposes a flat iteration.
type FragmentTableReader struct {
	f          *MetadataReader
	entryNum   uint32
	noEntries  uint32
	StartOffset int // offset of the fragment table's first metadata block
}

// fragmentTableOffset resolves the absolute offset of the fragment
// table's first metadata block. When the image has no fragments, the
// reference tool returns the file length so a subsequent read raises a
// clean EOF instead of misinterpreting unrelated bytes as a pointer.
func fragmentTableOffset(base *mmapfile.Reader, sb SuperBlock) (int, error) {
	if sb.Fragments == 0 {
		return base.Len(), nil
	}
	r := base.Clone()
	if err := r.Seek(int(sb.FragmentTableStart)); err != nil {
		return 0, err
	}
	v, err := r.ReadU64()
	if err != nil {
		return 0, squasherr.Wrap(squasherr.KindFormat, "unable to read fragment table offset", err)
	}
	return int(v), nil
}

// NewFragmentTableReader anchors a reader at the fragment table.
func NewFragmentTableReader(base *mmapfile.Reader, sb SuperBlock, dc compress.Decompressor) (*FragmentTableReader, error) {
	offset, err := fragmentTableOffset(base, sb)
	if err != nil {
		return nil, err
	}
	return &FragmentTableReader{
		f:           OpenMetadataReader(base, offset, dc),
		noEntries:   sb.Fragments,
		StartOffset: offset,
	}, nil
}

// BlockNum reports the number of metadata blocks consumed so far.
func (ft *FragmentTableReader) BlockNum() (int, error) { return ft.f.BlockNum() }

// Next decodes the next fragment entry.
func (ft *FragmentTableReader) Next() (FragmentEntry, error) {
	if ft.entryNum >= ft.noEntries+1 {
		return FragmentEntry{}, squasherr.Format("trying to read past the last fragment entry")
	}

	raw, err := ft.f.ReadBytes(fragmentEntrySize)
	if err != nil {
		return FragmentEntry{}, err
	}

	size := le32Bytes(raw[8:12])
	entry := FragmentEntry{
		StartBlock:   le64Bytes(raw[0:8]),
		Uncompressed: size&blockSizeUncompressedBit != 0,
		Length:       size &^ blockSizeUncompressedBit,
	}

	ft.entryNum++
	return entry, nil
}
