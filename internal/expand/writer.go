// Package expand produces the expanded image: the original image with
// every unique compressed block punched into a hole and every
// decompressed payload appended, followed by the block-descriptor
// trailer spec.md §4.7 describes.
package expand

import (
	"bytes"
	"sort"

	"github.com/sqfs/squashdelta/internal/blockscan"
	"github.com/sqfs/squashdelta/internal/compress"
	"github.com/sqfs/squashdelta/internal/mmapfile"
	"github.com/sqfs/squashdelta/internal/patch"
	"github.com/sqfs/squashdelta/internal/sparsefile"
	"github.com/sqfs/squashdelta/internal/squasherr"
)

// Write produces the expanded file at outPath: the cover pass (holes
// where unique blocks lived, verbatim bytes everywhere else), the
// payload pass (decompressed bytes appended in list order), and the
// trailer (descriptors followed by the header, so a reader can locate
// it by seeking to end). blocks need not be pre-sorted; Write sorts its
// own copy by offset before asserting the monotonic-position invariant
// the cover pass depends on.
func Write(outPath string, src *mmapfile.Reader, dc compress.Decompressor, blocks []blockscan.Block) ([]patch.Descriptor, error) {
	sorted := make([]blockscan.Block, len(blocks))
	copy(sorted, blocks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Offset < sorted[j].Offset })

	w, err := sparsefile.Create(outPath, int64(src.Len()))
	if err != nil {
		return nil, err
	}
	defer w.Close()

	if err := coverPass(w, src, sorted); err != nil {
		return nil, err
	}

	descriptors, err := payloadPass(w, src, dc, sorted)
	if err != nil {
		return nil, err
	}

	if err := writeTrailer(w, dc.ID(), descriptors); err != nil {
		return nil, err
	}

	return descriptors, nil
}

// coverPass copies everything that isn't a unique compressed block
// verbatim, and punches a hole of the block's compressed size wherever
// one sits. The offset-sorted iteration guarantees the writer's
// position only ever increases, which is what makes each hole land at
// the right spot.
func coverPass(w *sparsefile.Writer, src *mmapfile.Reader, blocks []blockscan.Block) error {
	prevEnd := 0

	for _, b := range blocks {
		if b.Offset < prevEnd {
			return squasherr.Format("block list is not monotonically ordered by offset; cover pass invariant violated")
		}

		if b.Offset > prevEnd {
			verbatim, err := src.BytesAt(prevEnd, b.Offset-prevEnd)
			if err != nil {
				return err
			}
			if err := w.Write(verbatim); err != nil {
				return err
			}
		}

		if err := w.WriteHole(int64(b.Length)); err != nil {
			return err
		}
		prevEnd = b.Offset + int(b.Length)
	}

	if tail := src.Len() - prevEnd; tail > 0 {
		verbatim, err := src.BytesAt(prevEnd, tail)
		if err != nil {
			return err
		}
		if err := w.Write(verbatim); err != nil {
			return err
		}
	}

	return nil
}

// payloadPass decompresses each block's compressed payload (bounded by
// a fixed 1 MiB ceiling; the image's own block size is not consulted)
// and appends it, recording each block's resulting offset and
// decompressed length as a Descriptor.
func payloadPass(w *sparsefile.Writer, src *mmapfile.Reader, dc compress.Decompressor, blocks []blockscan.Block) ([]patch.Descriptor, error) {
	descriptors := make([]patch.Descriptor, 0, len(blocks))

	// The decompressed form of any single block can be at most the
	// image's configured block size; metadata blocks cap out at
	// squashfs.MetadataSize, which is always <= a typical block size,
	// so a generous fixed ceiling covers both without importing the
	// superblock here.
	const maxBlockSize = 1 << 20
	scratch := make([]byte, maxBlockSize)

	for _, b := range blocks {
		compressed, err := src.BytesAt(b.Offset, int(b.Length))
		if err != nil {
			return nil, err
		}

		n, err := dc.Decompress(scratch, compressed, len(scratch))
		if err != nil {
			return nil, err
		}

		offset := w.Offset()
		if err := w.Write(scratch[:n]); err != nil {
			return nil, err
		}

		descriptors = append(descriptors, patch.Descriptor{
			Offset:             uint64(offset),
			Length:             b.Length,
			UncompressedLength: uint32(n),
		})
	}

	return descriptors, nil
}

func writeTrailer(w *sparsefile.Writer, compressionID compress.ID, descriptors []patch.Descriptor) error {
	var buf bytes.Buffer

	for _, d := range descriptors {
		if err := patch.WriteDescriptor(&buf, d); err != nil {
			return err
		}
	}
	if err := patch.WriteHeader(&buf, patch.Header{
		Compression: uint32(compressionID),
		BlockCount:  uint32(len(descriptors)),
	}); err != nil {
		return err
	}

	return w.Write(buf.Bytes())
}
