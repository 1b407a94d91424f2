// Package squashfs parses the slice of SquashFS 4.0 structure this
// tool needs: the superblock, the chained metadata-block stream, the
// inode table, and the fragment table. Layouts are grounded directly
// on fs/squashfs/squashfs_fs.h as mirrored in original_source/src/squashfs.hxx.
package squashfs

import (
	"github.com/sqfs/squashdelta/internal/mmapfile"
	"github.com/sqfs/squashdelta/internal/squasherr"
)

// Magic is the fixed SquashFS 4.0 superblock magic value.
const Magic uint32 = 0x73717368

// InvalidFrag marks a file inode as having no fragment tail.
const InvalidFrag uint32 = 0xffffffff

// MetadataSize is the maximum size, in bytes, of one metadata block's
// decompressed payload.
const MetadataSize = 8192

// CompressionOptionsFlag, when set in SuperBlock.Flags, means a
// compression-options metadata block immediately follows the superblock.
const CompressionOptionsFlag uint16 = 1 << 10

// SuperBlock is the fixed 96-byte header at offset 0 of every
// SquashFS 4.0 image.
type SuperBlock struct {
	Magic               uint32
	Inodes              uint32
	MkfsTime            uint32
	BlockSize           uint32
	Fragments           uint32
	Compression         uint16
	BlockLog            uint16
	Flags               uint16
	NoIDs               uint16
	Major               uint16
	Minor               uint16
	RootInode           uint64
	BytesUsed           uint64
	IDTableStart        uint64
	XattrIDTableStart   uint64
	InodeTableStart     uint64
	DirectoryTableStart uint64
	FragmentTableStart  uint64
	LookupTableStart    uint64
}

// sbFieldReader bundles the mmapfile.Reader with an error accumulator
// so the superblock's nineteen-field sequential decode reads as a flat
// list instead of nineteen repeated error checks.
type sbFieldReader struct {
	r   *mmapfile.Reader
	err error
}

func (fr *sbFieldReader) u16() uint16 {
	if fr.err != nil {
		return 0
	}
	v, err := fr.r.ReadU16()
	fr.err = err
	return v
}

func (fr *sbFieldReader) u32() uint32 {
	if fr.err != nil {
		return 0
	}
	v, err := fr.r.ReadU32()
	fr.err = err
	return v
}

func (fr *sbFieldReader) u64() uint64 {
	if fr.err != nil {
		return 0
	}
	v, err := fr.r.ReadU64()
	fr.err = err
	return v
}

// ReadSuperBlock reads and validates the superblock at offset 0.
func ReadSuperBlock(r *mmapfile.Reader) (SuperBlock, error) {
	var sb SuperBlock

	if err := r.Seek(0); err != nil {
		return sb, err
	}

	fr := &sbFieldReader{r: r}
	sb.Magic = fr.u32()
	sb.Inodes = fr.u32()
	sb.MkfsTime = fr.u32()
	sb.BlockSize = fr.u32()
	sb.Fragments = fr.u32()
	sb.Compression = fr.u16()
	sb.BlockLog = fr.u16()
	sb.Flags = fr.u16()
	sb.NoIDs = fr.u16()
	sb.Major = fr.u16()
	sb.Minor = fr.u16()
	sb.RootInode = fr.u64()
	sb.BytesUsed = fr.u64()
	sb.IDTableStart = fr.u64()
	sb.XattrIDTableStart = fr.u64()
	sb.InodeTableStart = fr.u64()
	sb.DirectoryTableStart = fr.u64()
	sb.FragmentTableStart = fr.u64()
	sb.LookupTableStart = fr.u64()
	if fr.err != nil {
		return sb, squasherr.Wrap(squasherr.KindFormat, "unable to read superblock", fr.err)
	}

	if sb.Magic != Magic {
		return sb, squasherr.Format("not a squashfs image: bad magic")
	}
	if sb.Major != 4 || sb.Minor != 0 {
		return sb, squasherr.Formatf("unsupported squashfs version %d.%d (only 4.0 is supported)", sb.Major, sb.Minor)
	}
	if sb.BlockSize != 1<<sb.BlockLog {
		return sb, squasherr.Formatf("inconsistent block size: block_size=%d, 1<<block_log=%d", sb.BlockSize, uint32(1)<<sb.BlockLog)
	}

	return sb, nil
}

// HasCompressionOptions reports whether a compression-options
// metadata block follows the superblock.
func (sb SuperBlock) HasCompressionOptions() bool {
	return sb.Flags&CompressionOptionsFlag != 0
}
