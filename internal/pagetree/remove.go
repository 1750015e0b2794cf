package pagetree

// Remove deletes up to n bytes starting at the cursor's position. It
// returns the bytes actually removed (written to out if out is
// non-nil), the events produced, and clamps at the end of the document
// rather than erroring.
func (t *Tree) Remove(c *Cursor, n int, out *[]byte) (int, []Event, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.cleanupEvents()

	if n <= 0 || c.pastEnd || t.root == NoIndex {
		return 0, nil, nil
	}

	var events []Event
	removed := 0

	leaf := c.leaf
	local := c.local

	for removed < n && leaf != NoIndex {
		node := t.pool.get(leaf)

		// Copy-on-write: ensure the leaf's page is a mutable heap page
		// before splicing bytes out of it.
		page, err := t.ensurePage(leaf)
		if err != nil {
			return removed, events, err
		}
		if !page.Heap {
			page.toHeap(0)
			node.StorageOffset = nil
			t.mapped.forget(leaf)
		}

		avail := node.Size - local
		want := uint64(n - removed)
		if want > avail {
			want = avail
		}

		if out != nil {
			*out = append(*out, page.Bytes[local:local+want]...)
		}

		page.Bytes = append(page.Bytes[:local], page.Bytes[local+want:]...)
		node.Size -= want
		t.propagateSizeDelta(node.Parent, -int64(want))
		removed += int(want)

		if node.Size == 0 {
			events = append(events, Event{Kind: NodeRemoved, Node: leaf})
		} else {
			events = append(events, Event{Kind: NodeChanged, Node: leaf})
		}

		next := node.Next
		local = 0
		leaf = next
	}

	t.rebalance()

	c.offset = minU64(c.offset, t.sizeLocked())
	return removed, events, nil
}

func minU64(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}

// rebalance walks the tree once, eliminating empty leaves and internal
// nodes with exactly one non-empty child.
func (t *Tree) rebalance() {
	if t.root == NoIndex {
		return
	}

	// Unlink and tombstone zero-size leaves first.
	idx := t.firstLeaf
	for idx != NoIndex {
		n := t.pool.get(idx)
		next := n.Next
		if n.isLeaf() && n.Size == 0 && !n.ToDelete {
			t.unlinkLeaf(idx)
		}
		idx = next
	}

	newRoot := t.collapseSubtree(t.root)
	if newRoot != t.root {
		t.root = newRoot
		if newRoot != NoIndex {
			t.pool.get(newRoot).Parent = NoIndex
		}
	}

	if t.root == NoIndex {
		t.firstLeaf = NoIndex
		t.lastLeaf = NoIndex
	}
}

// unlinkLeaf removes a zero-size leaf from the prev/next chain and marks
// it for reclamation. The caller is responsible for detaching it from its
// parent via collapseSubtree.
func (t *Tree) unlinkLeaf(idx NodeIndex) {
	n := t.pool.get(idx)
	t.linkLeafChain(n.Prev, n.Next)
	if t.firstLeaf == idx {
		t.firstLeaf = n.Next
	}
	if t.lastLeaf == idx {
		t.lastLeaf = n.Prev
	}
	t.mapped.forget(idx)
	n.ToDelete = true
}

// collapseSubtree returns the replacement for idx after eliminating
// internal nodes with exactly one live child. A leaf with ToDelete set is
// reported as absent (NoIndex) to its parent.
func (t *Tree) collapseSubtree(idx NodeIndex) NodeIndex {
	if idx == NoIndex {
		return NoIndex
	}
	n := t.pool.get(idx)
	if n.isLeaf() {
		if n.ToDelete {
			return NoIndex
		}
		return idx
	}

	left := t.collapseSubtree(n.Left)
	right := t.collapseSubtree(n.Right)

	switch {
	case left == NoIndex && right == NoIndex:
		n.ToDelete = true
		return NoIndex
	case left == NoIndex:
		n.ToDelete = true
		t.pool.get(right).Parent = n.Parent
		return right
	case right == NoIndex:
		n.ToDelete = true
		t.pool.get(left).Parent = n.Parent
		return left
	default:
		n.Left = left
		n.Right = right
		t.pool.get(left).Parent = idx
		t.pool.get(right).Parent = idx
		n.Size = t.pool.get(left).Size + t.pool.get(right).Size
		return idx
	}
}

// cleanupEvents reclaims pool slots for every tombstoned node that is no
// longer reachable from the root. Called at the start of the next
// mutating entry point.
func (t *Tree) cleanupEvents() {
	reachable := make(map[NodeIndex]bool)
	var mark func(NodeIndex)
	mark = func(idx NodeIndex) {
		if idx == NoIndex || reachable[idx] {
			return
		}
		reachable[idx] = true
		n := t.pool.get(idx)
		mark(n.Left)
		mark(n.Right)
	}
	mark(t.root)

	for i := range t.pool.nodes {
		idx := NodeIndex(i)
		n := &t.pool.nodes[idx]
		if n.ToDelete && !reachable[idx] {
			t.pool.release(idx)
		}
	}
}
