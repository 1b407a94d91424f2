package squashhash

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMurmur3EmptyInputWithZeroSeed(t *testing.T) {
	// With seed 0 and empty data, every mixing step operates on zero:
	// h1 stays 0 through the finalizer (0^0=0, 0*k=0 throughout).
	assert.Equal(t, uint32(0), Murmur3([]byte{}, 0))
}

func TestMurmur3Deterministic(t *testing.T) {
	data := []byte("squashfs block payload used for dedup fingerprinting")
	first := Murmur3(data, Seed)
	second := Murmur3(data, Seed)
	assert.Equal(t, first, second)
}

func TestMurmur3DistinguishesPayloads(t *testing.T) {
	a := Murmur3([]byte("block contents A"), Seed)
	b := Murmur3([]byte("block contents B"), Seed)
	assert.NotEqual(t, a, b)
}

func TestMurmur3SeedAffectsDigest(t *testing.T) {
	data := []byte("same payload, different seed")
	withZeroSeed := Murmur3(data, 0)
	withOtherSeed := Murmur3(data, 1)
	assert.NotEqual(t, withZeroSeed, withOtherSeed)
}

func TestBlockUsesFixedSeed(t *testing.T) {
	data := []byte("payload")
	assert.Equal(t, Murmur3(data, Seed), Block(data))
}

func TestMurmur3TailLengths(t *testing.T) {
	base := []byte("0123456789ab")
	for tailLen := 0; tailLen < 4; tailLen++ {
		data := base[:8+tailLen]
		got := Murmur3(data, 0)
		assert.NotZero(t, got, "digest for tail length %d should not be zero by coincidence alone", tailLen)
	}
}
