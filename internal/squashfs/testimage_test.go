package squashfs

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sqfs/squashdelta/internal/mmapfile"
)

// imageBuilder carries the block geometry buildImage uses to assemble a
// byte-exact, minimal SquashFS 4.0 image in memory: a superblock, one
// metadata block holding a single regular file's inode (with a given
// block_list), and no fragments. It exists purely to exercise the
// parsing layer end-to-end without a real mksquashfs-produced fixture.
type imageBuilder struct {
	blockSize uint32
	blockLog  uint16
	data      []byte
}

func newImageBuilder() *imageBuilder {
	return &imageBuilder{blockSize: 131072, blockLog: 17}
}

func zlibCompress(t *testing.T, payload []byte) []byte {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	_, err := zw.Write(payload)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// writeMetadataBlock appends a compressed metadata block (16-bit
// length header, high bit clear) to dst and returns the new slice.
func writeMetadataBlock(t *testing.T, dst []byte, payload []byte) []byte {
	compressed := zlibCompress(t, payload)
	var header [2]byte
	binary.LittleEndian.PutUint16(header[:], uint16(len(compressed)))
	dst = append(dst, header[:]...)
	dst = append(dst, compressed...)
	return dst
}

func encodeRegInode(startBlock, fileSize, fragment, fragOffset uint32, blockList []uint32) []byte {
	buf := make([]byte, regFixed)
	binary.LittleEndian.PutUint16(buf[0:2], TypeReg)
	// mode, uid, guid, mtime, inode_number left zero
	binary.LittleEndian.PutUint32(buf[16:20], startBlock)
	binary.LittleEndian.PutUint32(buf[20:24], fragment)
	binary.LittleEndian.PutUint32(buf[24:28], fragOffset)
	binary.LittleEndian.PutUint32(buf[28:32], fileSize)
	for _, v := range blockList {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], v)
		buf = append(buf, b[:]...)
	}
	return buf
}

// buildImage writes a superblock followed by the inode table (one
// metadata block containing a single reg inode) at a fixed layout,
// returning the complete byte image and the absolute offsets of the
// data blocks the encoded inode's block_list references, one per
// payload. Every block but the last counts as a full block in the
// inode's file_size, so the block count derived from file_size matches
// the number of payloads.
func buildImage(t *testing.T, blockPayloads [][]byte) ([]byte, []int) {
	b := newImageBuilder()

	dataStart := 96 // right after the superblock
	var offsets []int
	data := make([]byte, 0)
	for _, p := range blockPayloads {
		offsets = append(offsets, dataStart+len(data))
		data = append(data, zlibCompress(t, p)...)
	}

	blockList := make([]uint32, len(blockPayloads))
	var fileSize uint32
	for i, p := range blockPayloads {
		compressed := zlibCompress(t, p)
		blockList[i] = uint32(len(compressed))
		if i < len(blockPayloads)-1 {
			fileSize += b.blockSize
		} else {
			fileSize += uint32(len(p))
		}
	}

	inodeBody := encodeRegInode(uint32(dataStart), fileSize, 0xffffffff, 0, blockList)

	inodeTableStart := dataStart + len(data)
	var inodeTable []byte
	inodeTable = writeMetadataBlock(t, inodeTable, inodeBody)

	img := make([]byte, 96)
	binary.LittleEndian.PutUint32(img[0:4], Magic)
	binary.LittleEndian.PutUint32(img[4:8], 1) // inodes
	binary.LittleEndian.PutUint32(img[12:16], b.blockSize)
	binary.LittleEndian.PutUint32(img[16:20], 0) // fragments
	binary.LittleEndian.PutUint16(img[20:22], 1) // compression = gzip
	binary.LittleEndian.PutUint16(img[22:24], b.blockLog)
	binary.LittleEndian.PutUint16(img[28:30], 4) // major
	binary.LittleEndian.PutUint16(img[30:32], 0) // minor
	binary.LittleEndian.PutUint64(img[64:72], uint64(inodeTableStart))

	img = append(img, data...)
	img = append(img, inodeTable...)

	return img, offsets
}

func writeTempImage(t *testing.T, data []byte) string {
	dir := t.TempDir()
	path := filepath.Join(dir, "image.squashfs")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	return path
}

func openTestReader(t *testing.T, data []byte) *mmapfile.Reader {
	path := writeTempImage(t, data)
	r, err := mmapfile.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}
