package pagetree

// Page is a leaf's in-memory byte region. It is either a read-only copy of
// a disk region (lazily populated, never mutated in place) or a mutable
// heap buffer produced by copy-on-write or by a new insert.
//
// This flattens a two-variant tagged union (a read-only storage copy vs.
// an in-RAM page) into one struct, since Go has no tagged-union storage with
// the same layout guarantees the Rust enum had.
type Page struct {
	// Heap is true once the page has been copy-on-written or was created
	// fresh by an insert; false while it is still a read-only copy of a
	// disk region.
	Heap bool

	// Bytes holds the live content. len(Bytes) is always the logical size
	// of the page. For a Heap page, cap(Bytes)-len(Bytes) is the spare
	// insertion reserve (see the in-place fast path in insert.go).
	Bytes []byte
}

// newDiskCopyPage wraps bytes read from storage. It is never mutated
// directly; mutation always goes through toHeap first.
func newDiskCopyPage(data []byte) *Page {
	return &Page{Heap: false, Bytes: data}
}

// newHeapPage allocates a page with the requested spare reserve.
func newHeapPage(data []byte, reserve int) *Page {
	buf := make([]byte, len(data), len(data)+reserve)
	copy(buf, data)
	return &Page{Heap: true, Bytes: buf}
}

// reserve returns the free capacity available for in-place insertion.
func (p *Page) reserve() int {
	if !p.Heap {
		return 0
	}
	return cap(p.Bytes) - len(p.Bytes)
}

// toHeap converts a read-only disk-copy page into a mutable heap page in
// place, giving it the requested reserve for subsequent in-place edits.
// Used by remove's copy-on-write step.
func (p *Page) toHeap(reserve int) {
	if p.Heap {
		return
	}
	buf := make([]byte, len(p.Bytes), len(p.Bytes)+reserve)
	copy(buf, p.Bytes)
	p.Heap = true
	p.Bytes = buf
}
