package squashfs

import (
	"github.com/sqfs/squashdelta/internal/compress"
	"github.com/sqfs/squashdelta/internal/mmapfile"
	"github.com/sqfs/squashdelta/internal/squasherr"
)

// Inode type tags, per fs/squashfs/squashfs_fs.h.
const (
	TypeDir      = 1
	TypeReg      = 2
	TypeSymlink  = 3
	TypeBlkDev   = 4
	TypeChrDev   = 5
	TypeFifo     = 6
	TypeSocket   = 7
	TypeLDir     = 8
	TypeLReg     = 9
	TypeLSymlink = 10
	TypeLBlkDev  = 11
	TypeLChrDev  = 12
	TypeLFifo    = 13
	TypeLSocket  = 14
)

// fixed on-disk sizes of the inode bodies that don't have a
// variable-length tail, matching the struct layouts in
// original_source/src/squashfs.hxx exactly (base=16 bytes).
const (
	baseSize = 16 // inode_type, mode, uid, guid, mtime, inode_number
	ipcSize  = baseSize + 4
	lipcSize = ipcSize + 4
	devSize  = ipcSize + 4
	ldevSize = devSize + 4
	dirSize  = baseSize + 4 + 4 + 2 + 2 + 4
	regFixed = baseSize + 4 + 4 + 4 + 4
	lregFixed = baseSize + 8 + 8 + 8 + 4 + 4 + 4 + 4
	symlinkFixed = ipcSize + 4
	ldirFixed = ipcSize + 4 + 4 + 4 + 2 + 2 + 4
	dirIndexSize = 4 + 4 + 4
)

// BlockEntry is one decoded entry of a regular-file inode's block_list.
type BlockEntry struct {
	Length       uint32 // masked, 0 means sparse
	Uncompressed bool
}

// Inode is the subset of a decoded SquashFS inode this tool needs: its
// type tag, its block_list for regular-file variants (nil otherwise),
// and the fields needed to locate a fragment tail.
type Inode struct {
	Type        uint16
	StartBlock  uint64 // reg/lreg: first data block's absolute offset
	Fragment    uint32 // reg/lreg: fragment table index, or InvalidFrag
	FragOffset  uint32
	FileSize    uint64
	BlockList   []BlockEntry
}

// IsFile reports whether this inode carries a data block_list.
func (in Inode) IsFile() bool {
	return in.Type == TypeReg || in.Type == TypeLReg
}

// InodeIterator walks the inode table in on-disk order, starting at
// sb.InodeTableStart, exposing each inode as a tagged Inode.
type InodeIterator struct {
	f         *MetadataReader
	inodeNum  uint32
	noInodes  uint32
	blockSize uint32
	blockLog  uint16
}

// NewInodeIterator anchors an iterator at the superblock's inode table.
func NewInodeIterator(base *mmapfile.Reader, sb SuperBlock, dc compress.Decompressor) *InodeIterator {
	return &InodeIterator{
		f:         OpenMetadataReader(base, int(sb.InodeTableStart), dc),
		noInodes:  sb.Inodes,
		blockSize: sb.BlockSize,
		blockLog:  sb.BlockLog,
	}
}

// BlockNum reports the number of metadata blocks consumed by the inode
// table so far.
func (it *InodeIterator) BlockNum() (int, error) { return it.f.BlockNum() }

// Next decodes the next inode. The superblock's inode count does not
// include a sentinel, but the reference tool allows reading one past
// it defensively; this iterator enforces the same +1 bound.
func (it *InodeIterator) Next() (Inode, error) {
	if it.inodeNum >= it.noInodes+1 {
		return Inode{}, squasherr.Format("trying to read past the last inode")
	}

	header, err := it.f.Peek(baseSize)
	if err != nil {
		return Inode{}, err
	}
	inodeType := le16Bytes(header[0:2])
	if inodeType == 0 || inodeType > TypeLSocket {
		return Inode{}, squasherr.Formatf("invalid inode type %d", inodeType)
	}

	fixedLen, err := fixedBodySize(inodeType)
	if err != nil {
		return Inode{}, err
	}

	body, err := it.f.Peek(fixedLen)
	if err != nil {
		return Inode{}, err
	}

	var in Inode
	in.Type = inodeType

	totalLen := fixedLen
	switch inodeType {
	case TypeReg:
		in.StartBlock = uint64(le32Bytes(body[16:20]))
		in.Fragment = le32Bytes(body[20:24])
		in.FragOffset = le32Bytes(body[24:28])
		in.FileSize = uint64(le32Bytes(body[28:32]))
		blockCount := regBlockCount(uint32(in.FileSize), in.Fragment, it.blockSize, it.blockLog)
		totalLen = fixedLen + int(blockCount)*4

	case TypeLReg:
		// base(16) start_block(8) file_size(8) sparse(8) nlink(4) fragment(4) offset(4) xattr(4)
		in.StartBlock = le64Bytes(body[16:24])
		in.FileSize = le64Bytes(body[24:32])
		in.Fragment = le32Bytes(body[44:48])
		in.FragOffset = le32Bytes(body[48:52])
		blockCount := regBlockCount(uint32(in.FileSize), in.Fragment, it.blockSize, it.blockLog)
		totalLen = fixedLen + int(blockCount)*4

	case TypeSymlink, TypeLSymlink:
		symlinkSize := le32Bytes(body[ipcSize : ipcSize+4])
		totalLen = fixedLen + int(symlinkSize)

	case TypeLDir:
		iCount := le16Bytes(body[ldirFixed-8 : ldirFixed-6])
		totalLen = fixedLen + int(iCount)*dirIndexSize
	}

	body, err = it.f.Peek(totalLen)
	if err != nil {
		return Inode{}, err
	}

	if inodeType == TypeLDir {
		totalLen, err = extendLDirLength(it.f, body, totalLen)
		if err != nil {
			return Inode{}, err
		}
		body, err = it.f.Peek(totalLen)
		if err != nil {
			return Inode{}, err
		}
	}

	if in.IsFile() {
		listStart := fixedLen
		listEnd := totalLen
		for off := listStart; off+4 <= listEnd; off += 4 {
			raw := le32Bytes(body[off : off+4])
			entry := BlockEntry{
				Uncompressed: raw&blockSizeUncompressedBit != 0,
				Length:       raw &^ blockSizeUncompressedBit,
			}
			in.BlockList = append(in.BlockList, entry)
		}
	}

	it.f.Seek(totalLen)
	it.inodeNum++

	return in, nil
}

// blockSizeUncompressedBit is bit 24 of a block_list entry.
const blockSizeUncompressedBit uint32 = 1 << 24

// regBlockCount implements squashfs::inode::reg::block_count /
// lreg::block_count: ceil-division by block size, except when a
// fragment tail is in use, in which case the division is exact
// (file_size >> block_log) because the remainder lives in the fragment.
func regBlockCount(fileSize uint32, fragment uint32, blockSize uint32, blockLog uint16) uint32 {
	blocks := fileSize
	if fragment == InvalidFrag {
		blocks += blockSize - 1
	}
	return blocks >> blockLog
}

// fixedBodySize returns the on-disk size of an inode's fixed-size
// prefix (before any variable-length tail), per inode type.
func fixedBodySize(inodeType uint16) (int, error) {
	switch inodeType {
	case TypeDir:
		return dirSize, nil
	case TypeReg:
		return regFixed, nil
	case TypeSymlink, TypeLSymlink:
		return symlinkFixed, nil
	case TypeBlkDev, TypeChrDev:
		return devSize, nil
	case TypeFifo, TypeSocket:
		return ipcSize, nil
	case TypeLDir:
		return ldirFixed, nil
	case TypeLReg:
		return lregFixed, nil
	case TypeLBlkDev, TypeLChrDev:
		return ldevSize, nil
	case TypeLFifo, TypeLSocket:
		return lipcSize, nil
	default:
		return 0, squasherr.Formatf("invalid inode type %d", inodeType)
	}
}

// extendLDirLength grows totalLen by walking the ldir's i_count
// dir_index records one at a time: each carries its own variable-size
// name trailing it (size field is length-minus-one), so the full
// extent can only be discovered incrementally. Mirrors the growing
// inode_len loop in squashfs.cxx's InodeReader::read().
func extendLDirLength(f *MetadataReader, body []byte, totalLen int) (int, error) {
	iCount := int(le16Bytes(body[ldirFixed-8 : ldirFixed-6]))
	offset := ldirFixed

	for i := 0; i < iCount; i++ {
		idx, err := f.Peek(offset + dirIndexSize)
		if err != nil {
			return 0, err
		}
		size := le32Bytes(idx[offset+8 : offset+12])
		totalLen += int(size) + 1
		offset += dirIndexSize + int(size) + 1

		body, err = f.Peek(totalLen)
		if err != nil {
			return 0, err
		}
		_ = body
	}

	return totalLen, nil
}

func le16Bytes(b []byte) uint16 { return uint16(b[0]) | uint16(b[1])<<8 }
func le32Bytes(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
func le64Bytes(b []byte) uint64 {
	var v uint64
	for i := 7; i >= 0; i-- {
		v = v<<8 | uint64(b[i])
	}
	return v
}
