package blockscan

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqfs/squashdelta/internal/mmapfile"
)

func zlibCompress(t *testing.T, payload []byte) []byte {
	var buf bytes.Buffer
	zw := zlib.NewWriter(&buf)
	_, err := zw.Write(payload)
	require.NoError(t, err)
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

const regFixedSize = 32 // base(16) + start_block(4) + fragment(4) + offset(4) + file_size(4)

// buildSingleFileImage assembles a minimal SquashFS 4.0 image with one
// regular-file inode whose block_list is the compressed form of each
// payload in blockPayloads, gzip-compressed throughout. Every block but
// the last counts as a full 131072-byte block in the inode's file_size,
// so the block count derived from file_size matches the payload count.
func buildSingleFileImage(t *testing.T, blockPayloads [][]byte) []byte {
	dataStart := 96
	var data []byte
	var blockList []uint32
	var fileSize uint32
	for i, p := range blockPayloads {
		compressed := zlibCompress(t, p)
		data = append(data, compressed...)
		blockList = append(blockList, uint32(len(compressed)))
		if i < len(blockPayloads)-1 {
			fileSize += 131072
		} else {
			fileSize += uint32(len(p))
		}
	}

	inodeBody := make([]byte, regFixedSize)
	binary.LittleEndian.PutUint16(inodeBody[0:2], 2) // TypeReg
	binary.LittleEndian.PutUint32(inodeBody[16:20], uint32(dataStart))
	binary.LittleEndian.PutUint32(inodeBody[20:24], 0xffffffff) // no fragment
	binary.LittleEndian.PutUint32(inodeBody[28:32], fileSize)
	for _, v := range blockList {
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], v)
		inodeBody = append(inodeBody, b[:]...)
	}

	compressedInode := zlibCompress(t, inodeBody)
	var inodeTable []byte
	var header [2]byte
	binary.LittleEndian.PutUint16(header[:], uint16(len(compressedInode)))
	inodeTable = append(inodeTable, header[:]...)
	inodeTable = append(inodeTable, compressedInode...)

	inodeTableStart := dataStart + len(data)

	img := make([]byte, 96)
	binary.LittleEndian.PutUint32(img[0:4], 0x73717368) // magic
	binary.LittleEndian.PutUint32(img[4:8], 1)           // inodes
	binary.LittleEndian.PutUint32(img[12:16], 131072)    // block_size
	binary.LittleEndian.PutUint32(img[16:20], 0)         // fragments
	binary.LittleEndian.PutUint16(img[20:22], 1)         // compression = gzip
	binary.LittleEndian.PutUint16(img[22:24], 17)        // block_log
	binary.LittleEndian.PutUint16(img[28:30], 4)         // major
	binary.LittleEndian.PutUint16(img[30:32], 0)         // minor
	binary.LittleEndian.PutUint64(img[64:72], uint64(inodeTableStart))

	img = append(img, data...)
	img = append(img, inodeTable...)

	return img
}

func openImage(t *testing.T, data []byte) *mmapfile.Reader {
	dir := t.TempDir()
	path := filepath.Join(dir, "image.squashfs")
	require.NoError(t, os.WriteFile(path, data, 0o644))
	r, err := mmapfile.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func TestScanFindsDataBlocks(t *testing.T) {
	img := buildSingleFileImage(t, [][]byte{[]byte("alpha payload"), []byte("beta payload")})
	r := openImage(t, img)

	res, err := Scan(r, nil)
	require.NoError(t, err)

	assert.Len(t, res.DataBlocks, 2)
	for _, b := range res.DataBlocks {
		assert.Greater(t, b.Length, uint32(0))
		assert.LessOrEqual(t, b.Offset+int(b.Length), r.Len())
	}
}

func TestScanFingerprintMetadataBlock(t *testing.T) {
	img := buildSingleFileImage(t, [][]byte{[]byte("single block")})
	r := openImage(t, img)

	res, err := Scan(r, nil)
	require.NoError(t, err)

	assert.Len(t, res.MetadataBlocks, 1, "the inode table's one metadata block should be fingerprinted")
}

func TestScanRejectsBlockSizeMismatch(t *testing.T) {
	imgA := buildSingleFileImage(t, [][]byte{[]byte("a")})
	imgB := buildSingleFileImage(t, [][]byte{[]byte("b")})
	binary.LittleEndian.PutUint32(imgB[12:16], 65536)
	binary.LittleEndian.PutUint16(imgB[22:24], 16)

	rA := openImage(t, imgA)
	rB := openImage(t, imgB)

	resA, err := Scan(rA, nil)
	require.NoError(t, err)

	_, err = Scan(rB, resA)
	require.Error(t, err)
}
