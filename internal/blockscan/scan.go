// Package blockscan orchestrates the squashfs readers to produce the
// deduplicated list of compressed blocks with fingerprints (spec's
// "block scanner", get_blocks) and the cross-image dedup matcher.
package blockscan

import (
	"sort"

	"github.com/sqfs/squashdelta/internal/compress"
	"github.com/sqfs/squashdelta/internal/mmapfile"
	"github.com/sqfs/squashdelta/internal/squasherr"
	"github.com/sqfs/squashdelta/internal/squashfs"
	"github.com/sqfs/squashdelta/internal/squashhash"
)

// Block is a compressed-block record: where it lives in the source
// image, how long its compressed payload is, and its fingerprint.
// UncompressedLength is left zero by Scan; expand.Write reports each
// block's decompressed length in the patch.Descriptor it returns and
// does not write it back into the Block.
type Block struct {
	Offset             int
	Length             uint32
	UncompressedLength uint32
	Hash               uint32
}

// Result is everything the dedup matcher and the expanded-image writer
// need about one scanned image.
type Result struct {
	SuperBlock     squashfs.SuperBlock
	Decompressor   compress.Decompressor
	DataBlocks     []Block // offset-sorted, deduplicated against itself
	MetadataBlocks []Block
}

// AllBlocks returns the data and metadata block lists concatenated, as
// spec's step 8 describes the scanner's return value.
func (res *Result) AllBlocks() []Block {
	out := make([]Block, 0, len(res.DataBlocks)+len(res.MetadataBlocks))
	out = append(out, res.DataBlocks...)
	out = append(out, res.MetadataBlocks...)
	return out
}

// Scan walks one SquashFS image end to end. prev, when non-nil, is the
// already-scanned sibling image: its block size and decompressor
// establish the cross-image agreement contract (step 1 and step 2 of
// the algorithm).
func Scan(r *mmapfile.Reader, prev *Result) (*Result, error) {
	sb, err := squashfs.ReadSuperBlock(r)
	if err != nil {
		return nil, err
	}

	if prev != nil && sb.BlockSize != prev.SuperBlock.BlockSize {
		return nil, squasherr.Formatf(
			"block size mismatch between images: %d vs %d", sb.BlockSize, prev.SuperBlock.BlockSize)
	}

	dc, err := compress.New(compress.ID(sb.Compression))
	if err != nil {
		return nil, err
	}
	if prev != nil {
		if err := compress.RequireSameAlgorithm(dc, prev.Decompressor); err != nil {
			return nil, err
		}
		dc = prev.Decompressor
	}
	if sb.HasCompressionOptions() {
		opts, err := squashfs.ReadCompressionOptions(r, dc)
		if err != nil {
			return nil, err
		}
		if err := dc.Setup(opts); err != nil {
			return nil, err
		}
	} else if err := dc.Setup(nil); err != nil {
		return nil, err
	}

	res := &Result{SuperBlock: sb, Decompressor: dc}

	pendingData, inodeBlockCount, err := walkInodes(r, sb, dc)
	if err != nil {
		return nil, err
	}

	metaBlocks, err := fingerprintRawBlocks(r, int(sb.InodeTableStart), dc, inodeBlockCount)
	if err != nil {
		return nil, err
	}
	res.MetadataBlocks = append(res.MetadataBlocks, metaBlocks...)

	fragPending, fragStartOffset, fragBlockCount, err := walkFragments(r, sb, dc)
	if err != nil {
		return nil, err
	}
	pendingData = append(pendingData, fragPending...)

	fragMetaBlocks, err := fingerprintRawBlocks(r, fragStartOffset, dc, fragBlockCount)
	if err != nil {
		return nil, err
	}
	res.MetadataBlocks = append(res.MetadataBlocks, fragMetaBlocks...)

	dataBlocks, err := sortHashDedup(r, pendingData)
	if err != nil {
		return nil, err
	}
	res.DataBlocks = dataBlocks

	return res, nil
}

// pendingBlock is a located-but-not-yet-hashed block: offset and
// length are known from structural parsing, the hash is computed in a
// later sequential pass against the mapping.
type pendingBlock struct {
	Offset int
	Length uint32
}

// walkInodes implements step 3: walk every inode, and for file inodes,
// every block_list entry, advancing a per-inode cursor and recording
// compressed, non-sparse entries. It also reports how many metadata
// blocks the inode table occupied, so the raw fingerprinting replay
// (step 4) knows exactly where to stop.
func walkInodes(r *mmapfile.Reader, sb squashfs.SuperBlock, dc compress.Decompressor) ([]pendingBlock, int, error) {
	it := squashfs.NewInodeIterator(r, sb, dc)
	var pending []pendingBlock

	for i := uint32(0); i < sb.Inodes; i++ {
		in, err := it.Next()
		if err != nil {
			return nil, 0, err
		}
		if !in.IsFile() {
			continue
		}

		pos := int(in.StartBlock)
		for _, entry := range in.BlockList {
			before := pos
			pos += int(entry.Length)
			if entry.Length > 0 && !entry.Uncompressed {
				pending = append(pending, pendingBlock{Offset: before, Length: entry.Length})
			}
		}
	}

	blockCount, err := it.BlockNum()
	if err != nil {
		return nil, 0, err
	}

	return pending, blockCount, nil
}

// fingerprintRawBlocks replays blockCount raw metadata blocks starting
// at offset, hashing each compressed payload. Uncompressed blocks are
// excluded from the record set, matching the "Compressed block"
// definition used uniformly for both metadata and data blocks.
func fingerprintRawBlocks(r *mmapfile.Reader, offset int, dc compress.Decompressor, blockCount int) ([]Block, error) {
	if blockCount <= 0 {
		return nil, nil
	}
	var out []Block
	remaining := blockCount

	err := squashfs.ReadRawBlocks(r, offset, dc, func(raw squashfs.RawBlock) bool {
		if remaining <= 0 {
			return false
		}
		remaining--
		if raw.Compressed {
			out = append(out, Block{
				Offset: raw.Offset,
				Length: uint32(len(raw.Data)),
				Hash:   squashhash.Block(raw.Data),
			})
		}
		return remaining > 0
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// walkFragments implements steps 5 and 6: append compressed fragment
// entries to the data-block list, and report the fragment table's own
// metadata-block extent for fingerprinting.
func walkFragments(r *mmapfile.Reader, sb squashfs.SuperBlock, dc compress.Decompressor) ([]pendingBlock, int, int, error) {
	ft, err := squashfs.NewFragmentTableReader(r, sb, dc)
	if err != nil {
		return nil, 0, 0, err
	}

	var pending []pendingBlock
	for i := uint32(0); i < sb.Fragments; i++ {
		entry, err := ft.Next()
		if err != nil {
			return nil, 0, 0, err
		}
		if entry.Length > 0 && !entry.Uncompressed {
			pending = append(pending, pendingBlock{Offset: int(entry.StartBlock), Length: entry.Length})
		}
	}

	blockCount, err := ft.BlockNum()
	if err != nil {
		return nil, 0, 0, err
	}

	return pending, ft.StartOffset, blockCount, nil
}

// sortHashDedup implements step 7: sort by offset, stream-hash
// sequentially against the mapping, and drop consecutive duplicates
// (assumed to share length whenever they share offset).
func sortHashDedup(r *mmapfile.Reader, pending []pendingBlock) ([]Block, error) {
	sort.Slice(pending, func(i, j int) bool { return pending[i].Offset < pending[j].Offset })

	out := make([]Block, 0, len(pending))
	for i, p := range pending {
		if i > 0 && pending[i-1].Offset == p.Offset {
			if pending[i-1].Length != p.Length {
				return nil, squasherr.Format("two blocks share an offset but disagree on length")
			}
			continue
		}

		data, err := r.BytesAt(p.Offset, int(p.Length))
		if err != nil {
			return nil, squasherr.Wrap(squasherr.KindFormat, "compressed block extends past end of image", err)
		}
		out = append(out, Block{
			Offset: p.Offset,
			Length: p.Length,
			Hash:   squashhash.Block(data),
		})
	}

	return out, nil
}
