package patch

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHeaderRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	h := Header{Flags: 0, Compression: 5, BlockCount: 42}
	require.NoError(t, WriteHeader(&buf, h))

	got, err := ReadHeader(&buf)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestReadHeaderRejectsBadMagic(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteHeader(&buf, Header{}))
	corrupted := buf.Bytes()
	corrupted[0] ^= 0xff

	_, err := ReadHeader(bytes.NewReader(corrupted))
	require.Error(t, err)
}

func TestDescriptorRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	d := Descriptor{Offset: 123456789, Length: 4096, UncompressedLength: 131072}
	require.NoError(t, WriteDescriptor(&buf, d))

	got, err := ReadDescriptor(&buf)
	require.NoError(t, err)
	assert.Equal(t, d, got)
}
