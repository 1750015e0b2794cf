package buffer

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/carlerwin/pagetree/internal/changelog"
	"github.com/carlerwin/pagetree/internal/common"
	"github.com/carlerwin/pagetree/internal/pagetree"
)

// Read appends up to n bytes starting at offset to out, consulting the
// per-leaf cache first when the whole request lies inside one cached leaf.
// Reading at or past the document end returns 0 bytes, never an error; the
// offset is clamped rather than rejected.
func (b *Buffer) Read(offset uint64, n int, out *[]byte) (int, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if n <= 0 {
		return 0, nil
	}

	revision := atomic.LoadUint64(&b.revision)
	leaf, local, ok := b.leafFor(offset)
	if ok {
		key := leafCacheKey{leaf: leaf, revision: revision}
		if cached, hit := b.readCache.Get(key); hit {
			if int(local)+n <= len(cached) {
				*out = append(*out, cached[local:int(local)+n]...)
				return n, nil
			}
		} else if bytes, err := b.tree.LeafBytes(leaf); err == nil {
			b.readCache.Add(key, bytes)
		}
	}

	c := b.tree.Seek(offset)
	return c.Read(n, out)
}

// leafFor locates the leaf addressing offset, for the read cache's key.
func (b *Buffer) leafFor(offset uint64) (leaf pagetree.NodeIndex, local uint64, ok bool) {
	if offset >= b.tree.Size() {
		return pagetree.NoIndex, 0, false
	}
	c := b.tree.Seek(offset)
	return c.Leaf(), c.LocalOffset(), true
}

// Readahead is a best-effort hint priming the read cache for [start, end).
func (b *Buffer) Readahead(start, end uint64) {
	if end <= start {
		return
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	revision := atomic.LoadUint64(&b.revision)

	off := start
	for off < end {
		leaf, _, ok := b.leafFor(off)
		if !ok {
			return
		}
		size := b.tree.NodeSize(leaf)
		key := leafCacheKey{leaf: leaf, revision: revision}
		if _, hit := b.readCache.Get(key); !hit {
			if bytes, err := b.tree.LeafBytes(leaf); err == nil {
				b.readCache.Add(key, bytes)
			}
		}
		off += size
		if size == 0 {
			break
		}
	}
}

// Insert splices data at offset. A read-only buffer
// refuses with ErrPermissionDenied.
func (b *Buffer) Insert(offset uint64, data []byte) (int, error) {
	if len(data) == 0 {
		return 0, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.mode == ReadOnly {
		return 0, fmt.Errorf("%w: buffer is read-only", common.ErrPermissionDenied)
	}

	size := b.tree.Size()
	if offset > size {
		offset = size
	}

	c := b.tree.Seek(offset)
	n, events, err := b.tree.Insert(c, data)
	if err != nil {
		return n, err
	}

	b.beginMutation()
	b.log.Append(changelog.Op{Kind: changelog.OpInsert, Offset: offset, Data: append([]byte(nil), data[:n]...)})
	if err := b.applyEvents(events); err != nil {
		return n, err
	}
	return n, nil
}

// Append is insert at size(): equivalent to Insert(Size(), data).
func (b *Buffer) Append(data []byte) (int, error) {
	return b.Insert(b.tree.Size(), data)
}

// Remove deletes up to n bytes starting at offset, writing them to out if
// non-nil. Clamped to the document's bounds rather than
// erroring.
func (b *Buffer) Remove(offset uint64, n int, out *[]byte) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.mode == ReadOnly {
		return 0, fmt.Errorf("%w: buffer is read-only", common.ErrPermissionDenied)
	}

	size := b.tree.Size()
	if offset > size {
		offset = size
	}

	c := b.tree.Seek(offset)
	var removed []byte
	count, events, err := b.tree.Remove(c, n, &removed)
	if err != nil {
		return count, err
	}
	if count == 0 {
		return 0, nil
	}

	b.beginMutation()
	b.log.Append(changelog.Op{Kind: changelog.OpRemove, Offset: offset, Data: removed})
	if err := b.applyEvents(events); err != nil {
		return count, err
	}
	if out != nil {
		*out = append(*out, removed...)
	}
	return count, nil
}

// DeleteContent removes the whole document, [0, size()).
func (b *Buffer) DeleteContent() (int, error) {
	return b.Remove(0, int(b.tree.Size()), nil)
}

// Find searches forward for pattern in [from, to).
func (b *Buffer) Find(pattern []byte, from, to uint64) (uint64, bool, error) {
	return b.tree.Find(pattern, from, to)
}

// FindReverse searches backward for pattern in [from, to).
func (b *Buffer) FindReverse(pattern []byte, from, to uint64) (uint64, bool, error) {
	return b.tree.FindReverse(pattern, from, to)
}

// Undo replays the inversion of the previous log entry and returns the
// resulting cursor offset, or ok=false if there's nothing to undo.
func (b *Buffer) Undo() (uint64, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	op, ok := b.log.Undo()
	if !ok {
		return 0, false, nil
	}
	offset, err := b.replay(op)
	return offset, true, err
}

// Redo replays the next log entry as-is and returns the resulting cursor
// offset, or ok=false if there's nothing to redo.
func (b *Buffer) Redo() (uint64, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	op, ok := b.log.Redo()
	if !ok {
		return 0, false, nil
	}
	offset, err := b.replay(op)
	return offset, true, err
}

// UndoUntilTag undoes entries up to and including the next Tag entry.
// Returns the final cursor offset reached.
func (b *Buffer) UndoUntilTag() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var offset uint64
	var replayErr error
	b.log.UndoUntilTag(func(op changelog.Op) {
		if replayErr != nil {
			return
		}
		offset, replayErr = b.replay(op)
	})
	return offset, replayErr
}

// RedoUntilTag redoes entries up to and including the next Tag entry.
func (b *Buffer) RedoUntilTag() (uint64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	var offset uint64
	var replayErr error
	b.log.RedoUntilTag(func(op changelog.Op) {
		if replayErr != nil {
			return
		}
		offset, replayErr = b.replay(op)
	})
	return offset, replayErr
}

// replay applies a change-log op directly to PT, bypassing Insert/Remove's
// own log.Append since this is a replay, not a new edit, but still
// bumping revision, reindexing and publishing like any mutation. Must be
// called with b.mu held for write.
func (b *Buffer) replay(op changelog.Op) (uint64, error) {
	switch op.Kind {
	case changelog.OpInsert:
		size := b.tree.Size()
		offset := op.Offset
		if offset > size {
			offset = size
		}
		c := b.tree.Seek(offset)
		_, events, err := b.tree.Insert(c, op.Data)
		if err != nil {
			return offset, err
		}
		b.beginMutation()
		if err := b.applyEvents(events); err != nil {
			return offset, err
		}
		return offset + uint64(len(op.Data)), nil

	case changelog.OpRemove:
		size := b.tree.Size()
		offset := op.Offset
		if offset > size {
			offset = size
		}
		c := b.tree.Seek(offset)
		_, events, err := b.tree.Remove(c, len(op.Data), nil)
		if err != nil {
			return offset, err
		}
		b.beginMutation()
		if err := b.applyEvents(events); err != nil {
			return offset, err
		}
		return offset, nil

	case changelog.OpTag:
		if len(op.Cursors) > 0 {
			return op.Cursors[0], nil
		}
		return 0, nil

	default:
		return 0, nil
	}
}

// Tag records a Tag entry with the given cursor/selection offsets.
// Returns false if buffer logging is disabled.
func (b *Buffer) Tag(at time.Time, cursors, selections []uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.log.Tag(at, cursors, selections)
}

// TagOffsetsAt reports the cursor/selection offsets recorded by the Tag
// entry at change-log index i.
func (b *Buffer) TagOffsetsAt(i int) (cursors, selections []uint64, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.log.TagAt(i)
}
