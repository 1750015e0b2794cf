// Package byteindex implements the Byte-Frequency Index (BFI): a
// 256-bucket count of each byte value maintained per leaf and aggregated up
// the tree, powering line numbering ("go to line N" counts '\n') and other
// byte-oriented queries.
package byteindex

import (
	"fmt"

	"github.com/carlerwin/pagetree/internal/common"
	"github.com/carlerwin/pagetree/internal/pagetree"
)

// Index drives the byte-frequency bookkeeping for one tree. It holds no
// counts of its own: every count lives on pagetree.Node.ByteCount, reached
// through the tree's exported accessor API (internal/pagetree/api.go) so
// the index never has to reach into the tree's private fields. The actual
// tally work (read leaf bytes, install counts, propagate to ancestors)
// happens inside the tree under one lock acquisition per leaf
// (TallyNewLeaf/RetallyLeaf/ClearLeafTally) so it can never interleave with
// a concurrent pass of the same leaf by the background Indexer.
type Index struct {
	tree *pagetree.Tree
}

// New wraps a tree for byte-frequency maintenance and queries.
func New(tree *pagetree.Tree) *Index {
	return &Index{tree: tree}
}

// Apply folds a batch of PT node events (as returned by Insert/Remove) into
// the index. It must be called with the same events the mutation
// produced, in order.
func (ix *Index) Apply(events []pagetree.Event) error {
	for _, ev := range events {
		switch ev.Kind {
		case pagetree.NodeAdded:
			if _, _, err := ix.tree.TallyNewLeaf(ev.Node); err != nil {
				return err
			}
		case pagetree.NodeChanged:
			if _, err := ix.tree.RetallyLeaf(ev.Node); err != nil {
				return err
			}
		case pagetree.NodeRemoved:
			ix.tree.ClearLeafTally(ev.Node)
		}
	}
	return nil
}

// tallyIfUnindexed tallies idx if it isn't already indexed, for the
// background Indexer. It goes through the same TallyNewLeaf claim Apply
// uses for NodeAdded, so whichever of the indexer or an ordinary mutation
// gets there first is the only one that ever tallies idx.
func (ix *Index) tallyIfUnindexed(idx pagetree.NodeIndex) error {
	_, _, err := ix.tree.TallyNewLeaf(idx)
	return err
}

// Count returns the root's tally for b across the whole tree. Callers
// needing a guaranteed-fresh count should wait for FullyIndexed before
// calling this after a bulk load.
func (ix *Index) Count(b byte) uint64 {
	root := ix.tree.Root()
	if root == pagetree.NoIndex {
		return 0
	}
	return ix.tree.ByteCount(root)[b]
}

// CountBeforeOffset descends the tree, summing left-subtree counts whenever
// it goes right, then scans linearly inside the destination leaf.
func (ix *Index) CountBeforeOffset(b byte, offset uint64) (uint64, error) {
	root := ix.tree.Root()
	if root == pagetree.NoIndex {
		return 0, nil
	}

	var total uint64
	idx := root
	remaining := offset
	for !ix.tree.IsLeaf(idx) {
		left, right := ix.tree.Children(idx)
		leftSize := ix.tree.NodeSize(left)
		if remaining <= leftSize {
			idx = left
			continue
		}
		total += ix.tree.ByteCount(left)[b]
		remaining -= leftSize
		idx = right
	}

	bytes, err := ix.tree.LeafBytes(idx)
	if err != nil {
		return 0, err
	}
	if remaining > uint64(len(bytes)) {
		remaining = uint64(len(bytes))
	}
	for _, c := range bytes[:remaining] {
		if c == b {
			total++
		}
	}
	return total, nil
}

// NthOccurrenceOffset finds the absolute offset of the n-th occurrence of b,
// with n 1-indexed (n==1 is the first occurrence; n==count(b) is the last),
// descending per: at each internal node, go left if n <= left.count[b], else
// subtract left's count and advance the running offset by left's size
// before going right.
func (ix *Index) NthOccurrenceOffset(b byte, n uint64) (uint64, bool, error) {
	root := ix.tree.Root()
	if root == pagetree.NoIndex {
		return 0, false, nil
	}
	if n < 1 || n > ix.tree.ByteCount(root)[b] {
		return 0, false, nil
	}

	var offset uint64
	idx := root
	remaining := n
	for !ix.tree.IsLeaf(idx) {
		left, right := ix.tree.Children(idx)
		leftCount := ix.tree.ByteCount(left)[b]
		if remaining <= leftCount {
			idx = left
			continue
		}
		remaining -= leftCount
		offset += ix.tree.NodeSize(left)
		idx = right
	}

	bytes, err := ix.tree.LeafBytes(idx)
	if err != nil {
		return 0, false, err
	}
	for i, c := range bytes {
		if c == b {
			remaining--
			if remaining == 0 {
				return offset + uint64(i), true, nil
			}
		}
	}
	return 0, false, fmt.Errorf("%w: byte-frequency index inconsistent with leaf contents", common.ErrCorruptTree)
}

// Stats returns the root's full 256-bucket tally, for debug/CLI display.
func (ix *Index) Stats() [256]uint64 {
	root := ix.tree.Root()
	if root == pagetree.NoIndex {
		return [256]uint64{}
	}
	return ix.tree.ByteCount(root)
}
