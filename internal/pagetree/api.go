package pagetree

// This file is the accessor surface internal/byteindex programs against to
// maintain the byte-frequency index without reaching into Tree's private
// fields directly. The read-only accessors each take t.mu.RLock for their
// own duration. The three tally mutators (TallyNewLeaf, RetallyLeaf,
// ClearLeafTally) hold t.mu.Lock for their entire read-bytes/install/
// propagate-to-ancestors sequence, not just one step of it: that's what lets
// the background indexer (internal/byteindex.Indexer, racing an ordinary
// Insert/Remove's own synchronous tally of a freshly added leaf) and the
// mutation path never both credit the same leaf to its ancestors.
// TallyNewLeaf in particular re-checks Indexed after taking the lock and
// is a no-op if it lost the race, so only one caller ever tallies a given
// leaf.

// Root returns the tree's root node index, or NoIndex for an empty tree.
func (t *Tree) Root() NodeIndex {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.root
}

// FirstLeaf returns the first leaf in document order, or NoIndex if empty.
func (t *Tree) FirstLeaf() NodeIndex {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.firstLeaf
}

// IsLeaf reports whether idx addresses a leaf node.
func (t *Tree) IsLeaf(idx NodeIndex) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if idx == NoIndex {
		return false
	}
	return t.pool.get(idx).isLeaf()
}

// Children returns idx's left and right children. Both are NoIndex for a
// leaf.
func (t *Tree) Children(idx NodeIndex) (left, right NodeIndex) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := t.pool.get(idx)
	return n.Left, n.Right
}

// Parent returns idx's parent, or NoIndex at the root.
func (t *Tree) Parent(idx NodeIndex) NodeIndex {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pool.get(idx).Parent
}

// Next returns the next leaf in document order after idx, or NoIndex.
func (t *Tree) Next(idx NodeIndex) NodeIndex {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pool.get(idx).Next
}

// NodeSize returns idx's subtree byte size.
func (t *Tree) NodeSize(idx NodeIndex) uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pool.get(idx).Size
}

// Indexed reports whether the byte-frequency index has tallied idx's
// current content.
func (t *Tree) Indexed(idx NodeIndex) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pool.get(idx).Indexed
}

// ByteCount returns a copy of idx's 256-bucket byte counts.
func (t *Tree) ByteCount(idx NodeIndex) [256]uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.pool.get(idx).ByteCount
}

// LeafBytes returns a copy of a leaf's current content, mapping its page on
// demand.
func (t *Tree) LeafBytes(idx NodeIndex) ([]byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	page, err := t.ensurePage(idx)
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(page.Bytes))
	copy(out, page.Bytes)
	return out, nil
}

// ForEachLeaf walks leaves in document order starting at the first leaf,
// stopping early if fn returns false.
func (t *Tree) ForEachLeaf(fn func(idx NodeIndex) bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	t.forEachLeaf(fn)
}

// countLeafLocked reads idx's current bytes and tallies them into a fresh
// 256-bucket count. Must be called with t.mu held.
func (t *Tree) countLeafLocked(idx NodeIndex) ([256]uint64, error) {
	var counts [256]uint64
	page, err := t.ensurePage(idx)
	if err != nil {
		return counts, err
	}
	for _, b := range page.Bytes {
		counts[b]++
	}
	return counts, nil
}

// addToAncestorsLocked walks from idx's parent to the root, adding
// sign*counts[b] to each ancestor's own ByteCount bucket. Must be called
// with t.mu held.
func (t *Tree) addToAncestorsLocked(idx NodeIndex, counts [256]uint64, sign int64) {
	parent := t.pool.get(idx).Parent
	for parent != NoIndex {
		pn := t.pool.get(parent)
		for b, c := range counts {
			if c == 0 {
				continue
			}
			pn.ByteCount[b] = uint64(int64(pn.ByteCount[b]) + sign*int64(c))
		}
		parent = pn.Parent
	}
}

// TallyNewLeaf counts idx's current bytes and, if idx is not already
// indexed, installs the counts and adds them to every ancestor, all under
// one lock acquisition. tallied is false if idx was already indexed by the
// time the lock was acquired — the caller lost the race to tally this leaf
// (to another Apply call or another indexer pass) and must not use counts.
// This is the single atomic claim-and-tally operation both the mutation
// path (byteindex.Index.Apply, on NodeAdded) and the background indexer
// (byteindex.Indexer.Run) go through, so a freshly added leaf is never
// credited to its ancestors twice.
func (t *Tree) TallyNewLeaf(idx NodeIndex) (counts [256]uint64, tallied bool, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.pool.get(idx)
	if n.Indexed {
		return n.ByteCount, false, nil
	}

	counts, err = t.countLeafLocked(idx)
	if err != nil {
		return [256]uint64{}, false, err
	}
	n.ByteCount = counts
	n.Indexed = true
	t.addToAncestorsLocked(idx, counts, 1)
	return counts, true, nil
}

// RetallyLeaf subtracts idx's stale counts from its ancestors, recomputes
// from its current bytes, and adds the fresh counts back, all under one
// lock acquisition.
func (t *Tree) RetallyLeaf(idx NodeIndex) ([256]uint64, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.pool.get(idx)
	t.addToAncestorsLocked(idx, n.ByteCount, -1)

	counts, err := t.countLeafLocked(idx)
	if err != nil {
		return [256]uint64{}, err
	}
	n.ByteCount = counts
	n.Indexed = true
	t.addToAncestorsLocked(idx, counts, 1)
	return counts, nil
}

// ClearLeafTally subtracts idx's counts from its ancestors and zeroes its
// own, all under one lock acquisition.
func (t *Tree) ClearLeafTally(idx NodeIndex) {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.pool.get(idx)
	t.addToAncestorsLocked(idx, n.ByteCount, -1)
	n.ByteCount = [256]uint64{}
	n.Indexed = true
}
