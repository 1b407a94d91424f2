package squashfs

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqfs/squashdelta/internal/compress"
)

func TestInodeIteratorReadsRegularFileBlockList(t *testing.T) {
	img, dataOffsets := buildImage(t, [][]byte{[]byte("first block payload"), []byte("second block payload")})
	r := openTestReader(t, img)

	sb, err := ReadSuperBlock(r)
	require.NoError(t, err)

	dc, err := compress.New(compress.IDGzip)
	require.NoError(t, err)

	it := NewInodeIterator(r, sb, dc)
	in, err := it.Next()
	require.NoError(t, err)

	assert.EqualValues(t, TypeReg, in.Type)
	assert.True(t, in.IsFile())
	assert.Len(t, in.BlockList, 2)
	assert.EqualValues(t, dataOffsets[0], in.StartBlock)

	for _, entry := range in.BlockList {
		assert.False(t, entry.Uncompressed)
		assert.Greater(t, entry.Length, uint32(0))
	}
}

func TestRegBlockCountUsesExactDivisionWithFragment(t *testing.T) {
	blockSize := uint32(131072)
	blockLog := uint16(17)

	withFragment := regBlockCount(blockSize+100, 3, blockSize, blockLog)
	assert.EqualValues(t, 1, withFragment)

	withoutFragment := regBlockCount(blockSize+100, InvalidFrag, blockSize, blockLog)
	assert.EqualValues(t, 2, withoutFragment)
}
