package pagetree

// Find searches for pattern in [from, to) and returns the absolute offset
// of the first match, reading the range in findChunkSize windows with a
// len(pattern)-1 overlap so matches spanning a window boundary aren't
// missed. An empty pattern always reports no match.
func (t *Tree) Find(pattern []byte, from, to uint64) (uint64, bool, error) {
	if len(pattern) == 0 {
		return 0, false, nil
	}

	size := t.Size()
	if to > size {
		to = size
	}
	if from >= to {
		return 0, false, nil
	}

	overlap := uint64(len(pattern) - 1)
	pos := from
	for pos < to {
		windowEnd := pos + findChunkSize + overlap
		if windowEnd > to {
			windowEnd = to
		}

		chunk, err := t.readRange(pos, int(windowEnd-pos))
		if err != nil {
			return 0, false, err
		}
		if idx := indexOf(chunk, pattern); idx >= 0 {
			return pos + uint64(idx), true, nil
		}

		advance := findChunkSize
		if uint64(advance) >= windowEnd-pos {
			break
		}
		pos += uint64(advance)
	}

	return 0, false, nil
}

// FindReverse searches backward from `to` toward `from`, returning the
// offset of the match nearest to `to`. It reads chunks from the end
// backward and matches within each chunk with an overlap of len(data)-1
// bytes so no match spanning a chunk boundary is missed.
func (t *Tree) FindReverse(pattern []byte, from, to uint64) (uint64, bool, error) {
	if len(pattern) == 0 {
		return 0, false, nil
	}

	size := t.Size()
	if to > size {
		to = size
	}
	if from >= to {
		return 0, false, nil
	}

	overlap := uint64(len(pattern) - 1)
	pos := to
	for pos > from {
		windowStart := pos - findChunkSize
		if windowStart < from {
			windowStart = from
		}
		readStart := windowStart
		if readStart > overlap {
			readStart -= overlap
		} else {
			readStart = from
		}
		if readStart < from {
			readStart = from
		}

		chunk, err := t.readRange(readStart, int(pos-readStart))
		if err != nil {
			return 0, false, err
		}
		if idx := lastIndexOf(chunk, pattern); idx >= 0 {
			return readStart + uint64(idx), true, nil
		}

		if windowStart == from {
			break
		}
		pos = windowStart
	}

	return 0, false, nil
}

// indexOf is a scalar naive matcher that compares from the needle's last
// byte backward for an early exit on mismatch.
func indexOf(haystack, needle []byte) int {
	hl, nl := len(haystack), len(needle)
	if nl == 0 || nl > hl {
		return -1
	}
	for i := 0; i <= hl-nl; i++ {
		j := nl - 1
		for j >= 0 && haystack[i+j] == needle[j] {
			j--
		}
		if j < 0 {
			return i
		}
	}
	return -1
}

// lastIndexOf returns the rightmost occurrence of needle in haystack.
func lastIndexOf(haystack, needle []byte) int {
	hl, nl := len(haystack), len(needle)
	if nl == 0 || nl > hl {
		return -1
	}
	for i := hl - nl; i >= 0; i-- {
		j := nl - 1
		for j >= 0 && haystack[i+j] == needle[j] {
			j--
		}
		if j < 0 {
			return i
		}
	}
	return -1
}
