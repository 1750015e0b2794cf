package pagetree

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/carlerwin/pagetree/internal/common"
)

// saveThrottle bounds how many Tree.Save calls may be writing to
// disk at once across the process, so a UI driving many open buffers
// can't saturate disk bandwidth with simultaneous saves. Whether a
// second save of the same buffer can start concurrently is the caller's
// concern, not this package's.
var saveThrottle = semaphore.NewWeighted(4)

// Save writes the document to a sibling temp file and atomically renames
// it over path, then rebinds every leaf to its new on-disk offset.
// activityProbe reports whether the subsystem has seen recent user
// input, in which case Save sleeps briefly between leaves to yield
// bandwidth to interactive reads.
//
// Save holds the tree's lock for its full duration rather than just the
// leaves it touches, trading write availability during a save for a true
// point-in-time snapshot instead of a leaf-by-leaf one.
func (t *Tree) Save(ctx context.Context, path, tmpSuffix string, activityProbe func() bool) error {
	if err := saveThrottle.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("%w: %v", common.ErrIO, err)
	}
	defer saveThrottle.Release(1)

	t.mu.Lock()
	defer t.mu.Unlock()

	var leaves []NodeIndex
	t.forEachLeaf(func(idx NodeIndex) bool {
		leaves = append(leaves, idx)
		return true
	})

	perm := t.fileMode
	if perm == 0 {
		perm = 0o644
	}

	dir := filepath.Dir(path)
	tmpPath := filepath.Join(dir, filepath.Base(path)+tmpSuffix)

	tmp, err := os.OpenFile(tmpPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrIO, err)
	}

	for i, leaf := range leaves {
		if err := ctx.Err(); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("%w: %v", common.ErrAborted, err)
		}

		page, err := t.ensurePage(leaf)
		if err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return err
		}
		if _, err := tmp.Write(page.Bytes); err != nil {
			tmp.Close()
			os.Remove(tmpPath)
			return fmt.Errorf("%w: %v", common.ErrIO, err)
		}

		if i+1 < len(leaves) && activityProbe != nil && activityProbe() {
			time.Sleep(16 * time.Millisecond)
		}
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: %v", common.ErrIO, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: %v", common.ErrIO, err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: %v", common.ErrIO, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: %v", common.ErrIO, err)
	}

	newFile, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrIO, err)
	}

	t.fileMu.Lock()
	if t.file != nil {
		t.file.Close()
	}
	t.file = newFile
	t.filePath = path
	t.fileMu.Unlock()

	t.rebindLeaves(leaves)
	return nil
}

// rebindLeaves updates storage_offset for every leaf that is not holding
// a heap (mutable, unsaved-elsewhere) page; heap leaves keep serving their
// bytes from RAM and are left for a caller-chosen eviction policy rather
// than evicted here.
func (t *Tree) rebindLeaves(leaves []NodeIndex) {
	var offset uint64
	for _, idx := range leaves {
		n := t.pool.get(idx)
		size := n.Size
		if n.Page == nil || !n.Page.Heap {
			off := offset
			n.StorageOffset = &off
		}
		offset += size
	}
}
