package deltarun

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sqfs/squashdelta/internal/patch"
)

func TestDeltaToolArgsPassesSourceAsSecondaryFile(t *testing.T) {
	args := deltaToolArgs("/tmp/src.expanded", "/tmp/tgt.expanded")

	assert.Contains(t, args, "-s")
	assert.Contains(t, args, "/tmp/src.expanded")
	assert.Contains(t, args, "/tmp/tgt.expanded")

	// source must immediately follow -s, per xdelta3's secondary-file flag
	for i, a := range args {
		if a == "-s" {
			require.Less(t, i+1, len(args))
			assert.Equal(t, "/tmp/src.expanded", args[i+1])
		}
	}
}

func TestDeltaToolArgsFixesCompressionAndLevel(t *testing.T) {
	args := deltaToolArgs("/tmp/src.expanded", "/tmp/tgt.expanded")

	assert.Contains(t, args, "-9", "spec.md §9 fixes the delta tool's level at 9")

	// djw must immediately follow -S, per xdelta3's secondary-compressor flag
	for i, a := range args {
		if a == "-S" {
			require.Less(t, i+1, len(args))
			assert.Equal(t, "djw", args[i+1], "spec.md §9 fixes the delta tool's compression at djw")
		}
	}
	assert.Contains(t, args, "-S", "compression djw is contractually part of the patch format")
}

func TestReserveTempPathCreatesAndCleansUp(t *testing.T) {
	dir := t.TempDir()

	path, cleanup, err := reserveTempPath(dir, "sqdelta-test-")
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.Equal(t, dir, filepath.Dir(path))

	cleanup()
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestWritePatchPrefixOrdersHeaderBeforeDescriptors(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "patch.out")
	f, err := os.Create(path)
	require.NoError(t, err)

	descriptors := []patch.Descriptor{
		{Offset: 10, Length: 20, UncompressedLength: 40},
		{Offset: 50, Length: 5, UncompressedLength: 5},
	}
	require.NoError(t, writePatchPrefix(f, 6, descriptors))
	require.NoError(t, f.Close())

	r, err := os.Open(path)
	require.NoError(t, err)
	defer r.Close()

	hdr, err := patch.ReadHeader(r)
	require.NoError(t, err)
	assert.Equal(t, uint32(6), hdr.Compression)
	assert.Equal(t, uint32(2), hdr.BlockCount)

	d0, err := patch.ReadDescriptor(r)
	require.NoError(t, err)
	assert.Equal(t, descriptors[0], d0)

	d1, err := patch.ReadDescriptor(r)
	require.NoError(t, err)
	assert.Equal(t, descriptors[1], d1)
}
