package pagetree

// Insert splices data into the tree at the cursor's position.
// It returns the number of bytes written (always len(data) unless the
// cursor could not be positioned) and the node events the mutation
// produced, which the buffer facade folds into the byte-frequency index
// and republishes to subscribers.
func (t *Tree) Insert(c *Cursor, data []byte) (int, []Event, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cleanupEvents()

	k := len(data)
	if k == 0 {
		return 0, nil, nil
	}

	if t.root == NoIndex {
		// Empty buffer: the new subtree becomes the root.
		root, first, last, err := t.buildInsertedSubtree(data)
		if err != nil {
			return 0, nil, err
		}
		t.root = root
		t.firstLeaf = first
		t.lastLeaf = last
		return k, t.addedEvents(first, last), nil
	}

	leaf := c.leaf
	local := c.local
	if c.pastEnd {
		leaf = t.lastLeaf
		local = t.pool.get(leaf).Size
	}

	node := t.pool.get(leaf)

	// In-place fast path: the leaf already has a Heap page with enough
	// spare reserve to absorb data without reallocating or restructuring
	// the tree.
	if node.Page != nil && node.Page.Heap && node.Page.reserve() >= k {
		page := node.Page
		page.Bytes = append(page.Bytes, make([]byte, k)...)
		copy(page.Bytes[int(local)+k:], page.Bytes[local:len(page.Bytes)-k])
		copy(page.Bytes[local:int(local)+k], data)
		node.Size += uint64(k)
		t.propagateSizeDelta(node.Parent, int64(k))

		c.offset += uint64(k)
		return k, []Event{{Kind: NodeChanged, Node: leaf}}, nil
	}

	// Split path: materialise L[0:o], data, L[o:] into a fresh subtree of
	// freshly-reserved leaves, and graft it in place of L.
	prefix, err := t.leafBytes(leaf, 0, local)
	if err != nil {
		return 0, nil, err
	}
	suffix, err := t.leafBytes(leaf, local, node.Size-local)
	if err != nil {
		return 0, nil, err
	}

	combined := make([]byte, 0, len(prefix)+k+len(suffix))
	combined = append(combined, prefix...)
	combined = append(combined, data...)
	combined = append(combined, suffix...)

	newRoot, newFirst, newLast, err := t.buildInsertedSubtree(combined)
	if err != nil {
		return 0, nil, err
	}

	events := t.replaceLeaf(leaf, newRoot, newFirst, newLast)
	c.offset += uint64(k)
	return k, events, nil
}

// leafBytes returns n bytes of a leaf's content starting at local offset
// off, mapping the page on demand.
func (t *Tree) leafBytes(leaf NodeIndex, off, n uint64) ([]byte, error) {
	if n == 0 {
		return nil, nil
	}
	page, err := t.ensurePage(leaf)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, page.Bytes[off:off+n])
	return out, nil
}

// buildInsertedSubtree builds a fresh chain of heap leaves holding data,
// each sized splitLeafDataSize with a splitLeafReserveSize reserve (a
// configured sub-leaf size of 4 KiB data plus a 2 KiB reserve).
func (t *Tree) buildInsertedSubtree(data []byte) (root, first, last NodeIndex, err error) {
	if len(data) == 0 {
		idx := t.pool.allocate()
		n := t.pool.get(idx)
		n.Page = newHeapPage(nil, splitLeafReserveSize)
		n.Size = 0
		return idx, idx, idx, nil
	}

	var leaves []NodeIndex
	for off := 0; off < len(data); off += splitLeafDataSize {
		end := off + splitLeafDataSize
		if end > len(data) {
			end = len(data)
		}
		idx := t.pool.allocate()
		n := t.pool.get(idx)
		n.Page = newHeapPage(data[off:end], splitLeafReserveSize)
		n.Size = uint64(end - off)
		leaves = append(leaves, idx)
	}

	for i := 0; i+1 < len(leaves); i++ {
		t.linkLeafChain(leaves[i], leaves[i+1])
	}

	root, err = t.buildBalancedFromLeaves(leaves)
	if err != nil {
		return NoIndex, NoIndex, NoIndex, err
	}
	return root, leaves[0], leaves[len(leaves)-1], nil
}

// buildBalancedFromLeaves wraps an already-linked chain of leaf indices
// into a balanced binary tree of fresh internal nodes.
func (t *Tree) buildBalancedFromLeaves(leaves []NodeIndex) (NodeIndex, error) {
	if len(leaves) == 1 {
		return leaves[0], nil
	}
	mid := len(leaves) / 2
	left, err := t.buildBalancedFromLeaves(leaves[:mid])
	if err != nil {
		return NoIndex, err
	}
	right, err := t.buildBalancedFromLeaves(leaves[mid:])
	if err != nil {
		return NoIndex, err
	}

	parent := t.pool.allocate()
	pn := t.pool.get(parent)
	pn.Left = left
	pn.Right = right
	pn.Size = t.pool.get(left).Size + t.pool.get(right).Size
	t.pool.get(left).Parent = parent
	t.pool.get(right).Parent = parent
	return parent, nil
}

// replaceLeaf grafts newRoot (spanning newFirst..newLast) into the tree in
// place of oldLeaf, relinking the leaf chain and the parent pointer,
// tombstoning oldLeaf, and propagating the size delta up the ancestors
// (split path).
func (t *Tree) replaceLeaf(oldLeaf, newRoot, newFirst, newLast NodeIndex) []Event {
	old := t.pool.get(oldLeaf)
	parent := old.Parent
	prev := old.Prev
	next := old.Next

	t.linkLeafChain(prev, newFirst)
	t.linkLeafChain(newLast, next)

	if parent == NoIndex {
		t.root = newRoot
		t.pool.get(newRoot).Parent = NoIndex
	} else {
		pn := t.pool.get(parent)
		if pn.Left == oldLeaf {
			pn.Left = newRoot
		} else {
			pn.Right = newRoot
		}
		t.pool.get(newRoot).Parent = parent
		t.propagateSizeDelta(parent, int64(t.pool.get(newRoot).Size)-int64(old.Size))
	}

	if t.firstLeaf == oldLeaf {
		t.firstLeaf = newFirst
	}
	if t.lastLeaf == oldLeaf {
		t.lastLeaf = newLast
	}

	t.mapped.forget(oldLeaf)
	old.ToDelete = true
	old.Left = NoIndex
	old.Right = NoIndex

	events := t.addedEvents(newFirst, newLast)
	events = append(events, Event{Kind: NodeRemoved, Node: oldLeaf})
	return events
}

func (t *Tree) addedEvents(first, last NodeIndex) []Event {
	var events []Event
	idx := first
	for {
		events = append(events, Event{Kind: NodeAdded, Node: idx})
		if idx == last {
			break
		}
		idx = t.pool.get(idx).Next
	}
	return events
}

// propagateSizeDelta adds delta to idx's size and every ancestor's size.
func (t *Tree) propagateSizeDelta(idx NodeIndex, delta int64) {
	for idx != NoIndex {
		n := t.pool.get(idx)
		n.Size = uint64(int64(n.Size) + delta)
		idx = n.Parent
	}
}
