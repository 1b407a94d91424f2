package blockscan

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func block(offset int, length, hash uint32) Block {
	return Block{Offset: offset, Length: length, Hash: hash}
}

func TestDedupRemovesExactMatchesSymmetrically(t *testing.T) {
	s := []Block{block(0, 10, 1), block(10, 20, 2), block(30, 30, 3)}
	t2 := []Block{block(0, 20, 2), block(20, 40, 4)}

	sOut, tOut := Dedup(s, t2)

	assert.Len(t, sOut, 2)
	assert.Len(t, tOut, 1)
	for _, b := range sOut {
		assert.NotEqual(t, uint32(20), b.Length, "the matched (20,2) block must be dropped from s")
	}
	for _, b := range tOut {
		assert.NotEqual(t, uint32(20), b.Length, "the matched (20,2) block must be dropped from t")
	}
}

func TestDedupIdenticalListsRemovesEverything(t *testing.T) {
	s := []Block{block(0, 10, 1), block(10, 20, 2)}
	t2 := []Block{block(100, 10, 1), block(110, 20, 2)}

	sOut, tOut := Dedup(s, t2)
	assert.Empty(t, sOut)
	assert.Empty(t, tOut)
}

func TestDedupDisjointListsKeepsEverything(t *testing.T) {
	s := []Block{block(0, 10, 1)}
	t2 := []Block{block(0, 20, 2)}

	sOut, tOut := Dedup(s, t2)
	assert.Len(t, sOut, 1)
	assert.Len(t, tOut, 1)
}

func TestDedupPreservesSortOrderOfSurvivors(t *testing.T) {
	s := []Block{block(0, 30, 9), block(10, 10, 1), block(20, 20, 5)}
	t2 := []Block{block(0, 10, 1)} // matches one entry in s

	sOut, _ := Dedup(s, t2)

	require := sOut
	for i := 1; i < len(require); i++ {
		prev, cur := require[i-1], require[i]
		less := prev.Length < cur.Length || (prev.Length == cur.Length && prev.Hash < cur.Hash)
		assert.True(t, less, "survivors must remain sorted by (length, hash)")
	}
}

func TestDedupHandlesRunsOfDuplicateKeys(t *testing.T) {
	s := []Block{block(0, 10, 1), block(10, 10, 1), block(20, 10, 1)}
	t2 := []Block{block(0, 10, 1)}

	sOut, tOut := Dedup(s, t2)
	assert.Empty(t, sOut, "every entry in the matched run must be dropped from s")
	assert.Empty(t, tOut)
}
