package blockscan

import "sort"

// SortByLengthHash sorts blocks by (length, hash) ascending, the
// ordering the dedup matcher requires.
func SortByLengthHash(blocks []Block) {
	sort.Slice(blocks, func(i, j int) bool {
		if blocks[i].Length != blocks[j].Length {
			return blocks[i].Length < blocks[j].Length
		}
		return blocks[i].Hash < blocks[j].Hash
	})
}

// Dedup performs the two-pointer merge across both (length, hash)-
// sorted lists, dropping every run of entries that share a (length,
// hash) key on both sides. Mis-identifying distinct blocks sharing a
// fingerprint as duplicates is tolerated (the delta tool still sees
// correct bytes for each); what must never happen is dropping one side
// of a matched run without the other, so both runs are always removed
// together.
//
// The per-image pass that drops duplicate offsets before this merge is
// sortHashDedup in scan.go: the original scanner's initial-dedup loop
// is reported to compare the current element against end(), while
// sortHashDedup compares each element with the previous one.
func Dedup(s, t []Block) (sTrimmed, tTrimmed []Block) {
	SortByLengthHash(s)
	SortByLengthHash(t)

	i, j := 0, 0
	for i < len(s) && j < len(t) {
		switch {
		case s[i].Length < t[j].Length:
			sTrimmed = append(sTrimmed, s[i])
			i++
		case t[j].Length < s[i].Length:
			tTrimmed = append(tTrimmed, t[j])
			j++
		case s[i].Hash < t[j].Hash:
			sTrimmed = append(sTrimmed, s[i])
			i++
		case t[j].Hash < s[i].Hash:
			tTrimmed = append(tTrimmed, t[j])
			j++
		default:
			// matched run: skip every entry in s and t sharing this
			// (length, hash) key without appending any of them.
			length, hash := s[i].Length, s[i].Hash
			for i < len(s) && s[i].Length == length && s[i].Hash == hash {
				i++
			}
			for j < len(t) && t[j].Length == length && t[j].Hash == hash {
				j++
			}
		}
	}
	sTrimmed = append(sTrimmed, s[i:]...)
	tTrimmed = append(tTrimmed, t[j:]...)

	return sTrimmed, tTrimmed
}
