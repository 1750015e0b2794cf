package buffer

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/carlerwin/pagetree/internal/activity"
	"github.com/carlerwin/pagetree/internal/common"
)

// tmpSuffix is the default suffix applied to the sibling temp file a save
// writes before renaming it over the original.
const tmpSuffix = ".update"

// Save writes the buffer's current content to its backing path and
// transitions Dirty -> Clean on success (save_to_storage, §4.11).
// It refuses to start if a save is already in flight for this buffer
// (is_syncing) rather than queuing behind it.
func (b *Buffer) Save(ctx context.Context, probe activity.Probe) error {
	b.mu.Lock()
	if b.kind != FileBuffer {
		b.mu.Unlock()
		return fmt.Errorf("%w: directory buffers are not saved", common.ErrIO)
	}
	path := b.path
	b.mu.Unlock()

	if !b.syncing.CompareAndSwap(false, true) {
		return fmt.Errorf("%w: save already in progress for this buffer", common.ErrIO)
	}
	b.saveMu.Lock()
	defer func() {
		b.saveMu.Unlock()
		b.syncing.Store(false)
	}()

	if probe == nil {
		probe = activity.AlwaysIdle
	}

	if err := b.tree.Save(ctx, path, tmpSuffix, probe); err != nil {
		b.logger.Warn("save failed", zap.String("path", path), zap.Error(err))
		return err
	}

	b.changed.Store(false)
	b.logger.Debug("saved buffer", zap.String("path", path))
	return nil
}

// SaveAs saves to a new path and rebinds the buffer's file name to it.
func (b *Buffer) SaveAs(ctx context.Context, path string, probe activity.Probe) error {
	b.SetFileName(path)
	return b.Save(ctx, probe)
}

// Close flushes any in-flight save (blocking until it finishes writing
// rather than abandoning it mid-write), cancels the indexer, drops
// subscribers, and releases the underlying tree. It does not itself start
// a new save; a caller wanting content persisted must Save before Close.
func (b *Buffer) Close() error {
	b.saveMu.Lock()
	b.saveMu.Unlock()

	b.mu.Lock()
	cancel := b.indexCancel
	b.subscribers = make(map[int]Subscriber)
	b.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	return b.tree.Close()
}
