package pagetree

// Cursor positions a read/insert/remove operation inside the tree. It
// holds the leaf it currently addresses and the local offset within that
// leaf's page.
//
// A Cursor is a snapshot of a position; it must be re-obtained via Seek
// after any mutation, since a mutation may tombstone the leaf it pointed
// at. A cursor must not outlive a structural mutation that could
// tombstone its leaf.
type Cursor struct {
	tree   *Tree
	offset uint64 // absolute offset, used to re-derive leaf/local on demand
	leaf   NodeIndex
	local  uint64
	pastEnd bool
}

// Seek positions a cursor at an absolute byte offset. Offsets past the
// end of the document are clamped to a past-end cursor (reads return 0
// bytes; inserts append).
func (t *Tree) Seek(offset uint64) *Cursor {
	t.mu.Lock()
	defer t.mu.Unlock()

	leaf, _, local, ok := t.findLeafByOffset(offset)
	if !ok {
		return &Cursor{tree: t, offset: offset, pastEnd: true}
	}
	return &Cursor{tree: t, offset: offset, leaf: leaf, local: local}
}

// Offset returns the cursor's absolute byte offset.
func (c *Cursor) Offset() uint64 { return c.offset }

// Leaf returns the node index the cursor currently addresses, or NoIndex
// if positioned past the end of the document.
func (c *Cursor) Leaf() NodeIndex { return c.leaf }

// LocalOffset returns the cursor's offset within its current leaf.
func (c *Cursor) LocalOffset() uint64 { return c.local }

// Read appends up to n bytes starting at the cursor to out, advancing the
// cursor past what was read. Reading at or past the document end returns
// 0 bytes, never an error (InvalidOffset clamps to a
// zero-length read).
func (c *Cursor) Read(n int, out *[]byte) (int, error) {
	c.tree.mu.Lock()
	defer c.tree.mu.Unlock()

	if c.pastEnd || n <= 0 {
		return 0, nil
	}

	read := 0
	leaf := c.leaf
	local := c.local

	for read < n && leaf != NoIndex {
		node := c.tree.pool.get(leaf)
		page, err := c.tree.ensurePage(leaf)
		if err != nil {
			return read, err
		}

		avail := int(node.Size - local)
		want := n - read
		if want > avail {
			want = avail
		}
		*out = append(*out, page.Bytes[local:local+uint64(want)]...)
		read += want
		local += uint64(want)

		if local >= node.Size {
			leaf = node.Next
			local = 0
		}
	}

	c.offset += uint64(read)
	if leaf == NoIndex {
		c.pastEnd = true
		c.leaf = NoIndex
		c.local = 0
	} else {
		c.leaf = leaf
		c.local = local
	}

	return read, nil
}

// readRange is a package-internal convenience used by Find and
// FindReverse: read up to n bytes starting at an absolute offset without
// mutating a caller-held cursor.
func (t *Tree) readRange(offset uint64, n int) ([]byte, error) {
	if n <= 0 {
		return nil, nil
	}
	c := t.Seek(offset)
	var out []byte
	if _, err := c.Read(n, &out); err != nil {
		return nil, err
	}
	return out, nil
}
