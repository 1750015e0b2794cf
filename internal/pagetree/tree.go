package pagetree

import (
	"fmt"
	"io"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/carlerwin/pagetree/internal/common"
)

// Tree is the Paged Tree (PT): a balanced binary tree whose leaves each
// point either at a disk region or at a mutable heap page.
//
// The inner lock (mu) is separate from the buffer facade's outer lock so
// the indexer can read leaves while a UI reader holds the buffer's read
// lock.
type Tree struct {
	mu sync.RWMutex

	pool *nodePool
	root NodeIndex

	firstLeaf NodeIndex
	lastLeaf  NodeIndex

	file     *os.File
	fileMu   sync.RWMutex // guards file independently of mu
	filePath string
	fileMode os.FileMode

	mapped *mappedPageCache

	logger *zap.Logger
}

// Open builds a tree over an existing file on disk: the file is split
// into a balanced tree of leaves sized from the size-class table, each
// recording its storage offset; nothing is read into memory yet.
func Open(path string, logger *zap.Logger) (*Tree, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", common.ErrNotFound, path)
		}
		if os.IsPermission(err) {
			return nil, fmt.Errorf("%w: %s", common.ErrPermissionDenied, path)
		}
		return nil, fmt.Errorf("%w: %v", common.ErrIO, err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("%w: %v", common.ErrIO, err)
	}

	t := &Tree{
		pool:     newNodePool(),
		root:     NoIndex,
		file:     f,
		filePath: path,
		fileMode: info.Mode(),
		mapped:   newMappedPageCache(4096),
		logger:   logger,
	}

	size := uint64(info.Size())
	if size > 0 {
		leafSize := leafSizeFor(size)
		root, first, last, err := t.buildSubtree(0, size, leafSize)
		if err != nil {
			f.Close()
			return nil, err
		}
		t.root = root
		t.firstLeaf = first
		t.lastLeaf = last
	} else {
		t.root = NoIndex
		t.firstLeaf = NoIndex
		t.lastLeaf = NoIndex
	}

	return t, nil
}

// Empty builds a tree with no backing file and no content: the tree has
// no root, and Size() reports 0.
func Empty(logger *zap.Logger) *Tree {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Tree{
		pool:      newNodePool(),
		root:      NoIndex,
		firstLeaf: NoIndex,
		lastLeaf:  NoIndex,
		mapped:    newMappedPageCache(4096),
		logger:    logger,
	}
}

// buildSubtree recursively splits [offset, offset+size) into halves
// rounded to multiples of leafSize, producing a balanced tree of leaves
// with StorageOffset set, linked in document order.
func (t *Tree) buildSubtree(offset, size, leafSize uint64) (root, first, last NodeIndex, err error) {
	if size <= leafSize {
		idx := t.pool.allocate()
		off := offset
		n := t.pool.get(idx)
		n.Size = size
		n.StorageOffset = &off
		n.Left = NoIndex
		n.Right = NoIndex
		return idx, idx, idx, nil
	}

	// Split at the nearest multiple of leafSize to keep leaves uniform.
	half := (size / 2 / leafSize) * leafSize
	if half == 0 {
		half = leafSize
	}
	if half >= size {
		half = size - leafSize
	}

	leftRoot, leftFirst, leftLast, err := t.buildSubtree(offset, half, leafSize)
	if err != nil {
		return NoIndex, NoIndex, NoIndex, err
	}
	rightRoot, rightFirst, rightLast, err := t.buildSubtree(offset+half, size-half, leafSize)
	if err != nil {
		return NoIndex, NoIndex, NoIndex, err
	}

	t.linkLeafChain(leftLast, rightFirst)

	parent := t.pool.allocate()
	pn := t.pool.get(parent)
	pn.Size = size
	pn.Left = leftRoot
	pn.Right = rightRoot
	t.pool.get(leftRoot).Parent = parent
	t.pool.get(rightRoot).Parent = parent

	return parent, leftFirst, rightLast, nil
}

func (t *Tree) linkLeafChain(a, b NodeIndex) {
	if a != NoIndex {
		t.pool.get(a).Next = b
	}
	if b != NoIndex {
		t.pool.get(b).Prev = a
	}
}

// Size returns the document's current length: the root's Size, or 0 for
// an empty tree.
func (t *Tree) Size() uint64 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sizeLocked()
}

func (t *Tree) sizeLocked() uint64 {
	if t.root == NoIndex {
		return 0
	}
	return t.pool.get(t.root).Size
}

// findLeafByOffset descends from the root: off < left.size goes left,
// else goes right with off -= left.size. Returns the leaf index, its
// size, and the local offset within it. ok is false when off is at or
// past the end of the document.
func (t *Tree) findLeafByOffset(off uint64) (leaf NodeIndex, leafSize, localOff uint64, ok bool) {
	if t.root == NoIndex || off >= t.sizeLocked() {
		return NoIndex, 0, 0, false
	}

	idx := t.root
	for {
		n := t.pool.get(idx)
		if n.isLeaf() {
			return idx, n.Size, off, true
		}
		left := t.pool.get(n.Left)
		if off < left.Size {
			idx = n.Left
			continue
		}
		off -= left.Size
		idx = n.Right
	}
}

// ensurePage maps a leaf's page on first touch, reading its bytes from
// storage_offset in readChunkSize-sized chunks so a large leaf read can't
// stall cooperative progress. Must be called with mu held.
func (t *Tree) ensurePage(idx NodeIndex) (*Page, error) {
	n := t.pool.get(idx)
	if n.Page != nil {
		if evicted := t.mapped.touch(idx); len(evicted) > 0 {
			t.evictMapped(evicted)
		}
		return n.Page, nil
	}
	if n.StorageOffset == nil {
		// A leaf with neither Page nor StorageOffset can only be a
		// brand-new empty leaf; treat it as zero bytes.
		n.Page = newHeapPage(nil, 0)
		return n.Page, nil
	}

	data := make([]byte, n.Size)
	if err := t.readChunked(*n.StorageOffset, data); err != nil {
		return nil, err
	}
	n.Page = newDiskCopyPage(data)
	if evicted := t.mapped.touch(idx); len(evicted) > 0 {
		t.evictMapped(evicted)
	}
	return n.Page, nil
}

// evictMapped drops the in-memory copy of read-only leaves the LRU chose
// to reclaim. ensurePage touches the cache for Heap pages too, but this
// skips any Heap page it is handed, so it only ever discards re-readable
// bytes.
func (t *Tree) evictMapped(idxs []NodeIndex) {
	for _, idx := range idxs {
		n := t.pool.get(idx)
		if n.Page != nil && !n.Page.Heap {
			n.Page = nil
		}
	}
}

// readChunked reads len(out) bytes starting at offset, in readChunkSize
// pieces, from the file behind its own lock. It is safe to call while
// t.mu is held, since fileMu is independent.
func (t *Tree) readChunked(offset uint64, out []byte) error {
	t.fileMu.RLock()
	defer t.fileMu.RUnlock()

	if t.file == nil {
		return fmt.Errorf("%w: tree has no backing file", common.ErrIO)
	}

	read := 0
	for read < len(out) {
		n := len(out) - read
		if n > readChunkSize {
			n = readChunkSize
		}
		got, err := t.file.ReadAt(out[read:read+n], int64(offset)+int64(read))
		if got > 0 {
			read += got
		}
		if err != nil {
			if err == io.EOF && read == len(out) {
				break
			}
			return fmt.Errorf("%w: %v", common.ErrIO, err)
		}
	}
	return nil
}

// forEachLeaf walks leaves in document order starting at firstLeaf.
func (t *Tree) forEachLeaf(fn func(idx NodeIndex) bool) {
	idx := t.firstLeaf
	for idx != NoIndex {
		n := t.pool.get(idx)
		if !fn(idx) {
			return
		}
		idx = n.Next
	}
}

// Close releases the tree's file handle.
func (t *Tree) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.file == nil {
		return nil
	}
	err := t.file.Close()
	t.file = nil
	return err
}

var _ io.Closer = (*Tree)(nil)
