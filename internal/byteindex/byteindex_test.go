package byteindex_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/carlerwin/pagetree/internal/activity"
	"github.com/carlerwin/pagetree/internal/byteindex"
	"github.com/carlerwin/pagetree/internal/pagetree"
	"github.com/carlerwin/pagetree/internal/testutil"
)

func setupIndexed(t *testing.T, content []byte) (*pagetree.Tree, *byteindex.Index) {
	t.Helper()
	path := testutil.WriteFile(t, "doc.txt", content)
	tree, err := pagetree.Open(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { tree.Close() })

	ix := byteindex.New(tree)
	var events []pagetree.Event
	tree.ForEachLeaf(func(idx pagetree.NodeIndex) bool {
		events = append(events, pagetree.Event{Kind: pagetree.NodeAdded, Node: idx})
		return true
	})
	require.NoError(t, ix.Apply(events))
	return tree, ix
}

func TestCountAfterFullIndex(t *testing.T) {
	_, ix := setupIndexed(t, []byte("line one\nline two\nline three\n"))
	require.Equal(t, uint64(3), ix.Count('\n'))
}

func TestCountBeforeOffset(t *testing.T) {
	_, ix := setupIndexed(t, []byte("aaabbbccc"))
	n, err := ix.CountBeforeOffset('a', 9)
	require.NoError(t, err)
	require.Equal(t, uint64(3), n)

	n, err = ix.CountBeforeOffset('b', 5)
	require.NoError(t, err)
	require.Equal(t, uint64(2), n)
}

func TestNthOccurrenceOffset(t *testing.T) {
	_, ix := setupIndexed(t, []byte("line one\nline two\nline three\n"))
	off, ok, err := ix.NthOccurrenceOffset('\n', 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(8), off)

	off, ok, err = ix.NthOccurrenceOffset('\n', 2)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(17), off)
}

func TestNthOccurrenceOffsetLastAndPastEnd(t *testing.T) {
	content := []byte(strings.Repeat("abc\n", 10))
	_, ix := setupIndexed(t, content)

	require.Equal(t, uint64(10), ix.Count('\n'))

	off, ok, err := ix.NthOccurrenceOffset('\n', 5)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(19), off)

	off, ok, err = ix.NthOccurrenceOffset('\n', 10)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(39), off)

	_, ok, err = ix.NthOccurrenceOffset('\n', 11)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestNthOccurrenceOffsetOutOfRange(t *testing.T) {
	_, ix := setupIndexed(t, []byte("no newlines here"))
	_, ok, err := ix.NthOccurrenceOffset('\n', 0)
	require.NoError(t, err)
	require.False(t, ok)

	_, ok, err = ix.NthOccurrenceOffset('\n', 1)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestApplySplitInsertEventsUpdateCounts(t *testing.T) {
	tree, ix := setupIndexed(t, []byte("aaaa"))
	leaf := tree.FirstLeaf()
	require.NotEqual(t, pagetree.NoIndex, leaf)

	c := tree.Seek(0)
	_, events, err := tree.Insert(c, []byte("bb"))
	require.NoError(t, err)
	require.NoError(t, ix.Apply(events))

	require.Equal(t, uint64(2), ix.Count('b'))
	require.Equal(t, uint64(4), ix.Count('a'))
}

func TestApplyNodeRemovedClearsContribution(t *testing.T) {
	tree, ix := setupIndexed(t, []byte("aaaa"))
	c := tree.Seek(0)
	_, events, err := tree.Remove(c, 4, nil)
	require.NoError(t, err)
	require.NoError(t, ix.Apply(events))

	require.Equal(t, uint64(0), ix.Count('a'))
}

// TestIndexerRaceAgainstApplyDoesNotDoubleCount drives the background
// Indexer's own tally loop and the mutation path's Apply calls against the
// same tree concurrently. Before TallyNewLeaf claimed each leaf atomically,
// both a Run pass and an Apply(NodeAdded) call could tally the same
// freshly-inserted leaf and double-credit its ancestors.
func TestIndexerRaceAgainstApplyDoesNotDoubleCount(t *testing.T) {
	var initial []byte
	for i := 0; i < 3000; i++ {
		initial = append(initial, []byte(fmt.Sprintf("row %d\n", i))...)
	}
	path := testutil.WriteFile(t, "doc.txt", initial)
	tree, err := pagetree.Open(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { tree.Close() })

	ix := byteindex.New(tree)
	indexer := byteindex.NewIndexer(ix, tree, activity.AlwaysIdle, nil)

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = byteindex.RunLoop(ctx, indexer, time.Millisecond)
	}()

	const writers = 100
	var mu sync.Mutex
	var writeWG sync.WaitGroup
	for i := 0; i < writers; i++ {
		writeWG.Add(1)
		go func(i int) {
			defer writeWG.Done()
			data := []byte(fmt.Sprintf("w%d\n", i))
			mu.Lock()
			size := tree.Size()
			c := tree.Seek((uint64(i) * 131) % (size + 1))
			_, events, err := tree.Insert(c, data)
			mu.Unlock()
			require.NoError(t, err)
			require.NoError(t, ix.Apply(events))
		}(i)
	}
	writeWG.Wait()
	cancel()
	wg.Wait()

	var want uint64
	tree.ForEachLeaf(func(idx pagetree.NodeIndex) bool {
		bytes, err := tree.LeafBytes(idx)
		require.NoError(t, err)
		for _, c := range bytes {
			if c == '\n' {
				want++
			}
		}
		return true
	})
	require.Equal(t, want, ix.Count('\n'))
}

func TestStatsReturnsFullRootTally(t *testing.T) {
	_, ix := setupIndexed(t, []byte("ab"))
	stats := ix.Stats()
	require.Equal(t, uint64(1), stats['a'])
	require.Equal(t, uint64(1), stats['b'])
}
