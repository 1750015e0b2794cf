package byteindex

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/carlerwin/pagetree/internal/activity"
	"github.com/carlerwin/pagetree/internal/pagetree"
)

// idleSleep is how long the indexer yields between leaves while the
// activity probe reports the user is idle.
const idleSleep = 2 * time.Millisecond

// activeSleep is the longer yield applied while the activity probe reports
// the user is interacting with the editor.
const activeSleep = 40 * time.Millisecond

// Indexer walks a tree's leaves in document order, computing byte counts
// for any leaf still unindexed. It is a cooperative background task: an
// errgroup.Group carries its single goroutine and its terminal error, and
// a context cancellation is how a caller asks it to stop.
type Indexer struct {
	index   *Index
	tree    *pagetree.Tree
	probe   activity.Probe
	publish func(pagetree.Event)
}

// NewIndexer builds an indexer over index. publish is called for every
// NodeIndexed and the final FullyIndexed event; probe is consulted between
// leaves to decide how long to yield. A nil probe behaves as always-idle.
func NewIndexer(index *Index, tree *pagetree.Tree, probe activity.Probe, publish func(pagetree.Event)) *Indexer {
	if probe == nil {
		probe = activity.AlwaysIdle
	}
	if publish == nil {
		publish = func(pagetree.Event) {}
	}
	return &Indexer{index: index, tree: tree, probe: probe, publish: publish}
}

// Run drives one full pass over the tree's leaves, indexing every leaf that
// isn't already marked indexed, and returns once it either catches up
// (publishing FullyIndexed) or ctx is cancelled. It is meant to be launched
// from an errgroup.Group by the buffer facade, one per open buffer:
//
//	g, ctx := errgroup.WithContext(ctx)
//	g.Go(func() error { return indexer.Run(ctx) })
func (ix *Indexer) Run(ctx context.Context) error {
	var pending []pagetree.NodeIndex

	ix.tree.ForEachLeaf(func(idx pagetree.NodeIndex) bool {
		if !ix.tree.Indexed(idx) {
			pending = append(pending, idx)
		}
		return true
	})

	for _, idx := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}

		// tallyIfUnindexed re-checks Indexed under the tree's lock as part
		// of the tally itself, so a concurrent Apply call that tallied idx
		// first (via the same claim) leaves this a harmless no-op rather
		// than a double-credit.
		if err := ix.index.tallyIfUnindexed(idx); err != nil {
			return err
		}
		ix.publish(pagetree.Event{Kind: pagetree.NodeIndexed, Node: idx})

		if ix.probe() {
			time.Sleep(activeSleep)
		} else {
			time.Sleep(idleSleep)
		}
	}

	ix.publish(pagetree.Event{Kind: pagetree.FullyIndexed})
	return nil
}

// RunLoop repeats Run until ctx is cancelled, re-scanning for leaves that
// Apply marked stale (e.g. NodeChanged retally already handled them inline,
// but a future leaf added by Insert/Remove between passes still needs its
// first tally). Most callers launch this once per buffer lifetime rather
// than calling Run directly.
func RunLoop(ctx context.Context, ix *Indexer, period time.Duration) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			if err := ix.Run(gctx); err != nil {
				return err
			}
			select {
			case <-gctx.Done():
				return gctx.Err()
			case <-ticker.C:
			}
		}
	})
	return g.Wait()
}
