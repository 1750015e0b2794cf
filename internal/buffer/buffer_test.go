package buffer_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/carlerwin/pagetree/internal/activity"
	"github.com/carlerwin/pagetree/internal/buffer"
	"github.com/carlerwin/pagetree/internal/testutil"
)

func setup(t *testing.T, content []byte) (*buffer.Buffer, func()) {
	t.Helper()
	path := testutil.WriteFile(t, "doc.txt", content)
	b, err := buffer.Open(path, buffer.ReadWrite, buffer.DefaultConfig())
	require.NoError(t, err)
	return b, func() { b.Close() }
}

func TestOpenReportsCleanAndCorrectSize(t *testing.T) {
	b, cleanup := setup(t, []byte("hello world"))
	defer cleanup()

	require.Equal(t, uint64(11), b.Size())
	require.False(t, b.Changed())
	require.Equal(t, uint64(0), b.NrChanges())
}

func TestReadReturnsDocumentBytes(t *testing.T) {
	b, cleanup := setup(t, []byte("hello world"))
	defer cleanup()

	var out []byte
	n, err := b.Read(6, 5, &out)
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.Equal(t, []byte("world"), out)
}

func TestReadPastEndReturnsZero(t *testing.T) {
	b, cleanup := setup(t, []byte("hi"))
	defer cleanup()

	var out []byte
	n, err := b.Read(100, 5, &out)
	require.NoError(t, err)
	require.Equal(t, 0, n)
	require.Empty(t, out)
}

func TestInsertBumpsRevisionAndMarksDirty(t *testing.T) {
	b, cleanup := setup(t, []byte("hello"))
	defer cleanup()

	rev0 := b.Revision()
	n, err := b.Insert(5, []byte(" world"))
	require.NoError(t, err)
	require.Equal(t, 6, n)
	require.True(t, b.Changed())
	require.Greater(t, b.Revision(), rev0)

	var out []byte
	_, err = b.Read(0, int(b.Size()), &out)
	require.NoError(t, err)
	require.Equal(t, []byte("hello world"), out)
}

func TestAppendIsInsertAtSize(t *testing.T) {
	b, cleanup := setup(t, []byte("abc"))
	defer cleanup()

	_, err := b.Append([]byte("def"))
	require.NoError(t, err)

	var out []byte
	_, err = b.Read(0, int(b.Size()), &out)
	require.NoError(t, err)
	require.Equal(t, []byte("abcdef"), out)
}

func TestRemoveAndDeleteContent(t *testing.T) {
	b, cleanup := setup(t, []byte("0123456789"))
	defer cleanup()

	var removed []byte
	n, err := b.Remove(2, 3, &removed)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, []byte("234"), removed)

	n, err = b.DeleteContent()
	require.NoError(t, err)
	require.Equal(t, 7, n)
	require.Equal(t, uint64(0), b.Size())
}

func TestReadOnlyBufferRejectsMutation(t *testing.T) {
	path := testutil.WriteFile(t, "doc.txt", []byte("abc"))
	b, err := buffer.Open(path, buffer.ReadOnly, buffer.DefaultConfig())
	require.NoError(t, err)
	defer b.Close()

	_, err = b.Insert(0, []byte("x"))
	require.Error(t, err)
}

func TestUndoRedoRoundTrip(t *testing.T) {
	b, cleanup := setup(t, []byte("abc"))
	defer cleanup()

	_, err := b.Insert(3, []byte("def"))
	require.NoError(t, err)

	_, ok, err := b.Undo()
	require.NoError(t, err)
	require.True(t, ok)

	var out []byte
	_, err = b.Read(0, int(b.Size()), &out)
	require.NoError(t, err)
	require.Equal(t, []byte("abc"), out)

	_, ok, err = b.Redo()
	require.NoError(t, err)
	require.True(t, ok)

	out = nil
	_, err = b.Read(0, int(b.Size()), &out)
	require.NoError(t, err)
	require.Equal(t, []byte("abcdef"), out)
}

func TestUndoWithNothingToUndo(t *testing.T) {
	b, cleanup := setup(t, []byte("abc"))
	defer cleanup()

	_, ok, err := b.Undo()
	require.NoError(t, err)
	require.False(t, ok)
}

func TestTagCoalescesSameTimestamp(t *testing.T) {
	b, cleanup := setup(t, []byte("abc"))
	defer cleanup()

	now := time.Now()
	require.True(t, b.Tag(now, []uint64{0}, nil))
	require.True(t, b.Tag(now, []uint64{1}, nil))

	cursors, _, ok := b.TagOffsetsAt(0)
	require.True(t, ok)
	require.Equal(t, []uint64{1}, cursors)
}

func TestUndoRedoUntilTagGroupsMultiCursorEdits(t *testing.T) {
	b, err := buffer.Empty("scratch", buffer.ReadWrite, buffer.DefaultConfig())
	require.NoError(t, err)
	defer b.Close()

	t0 := time.Unix(0, 0)
	t1 := time.Unix(1, 0)
	require.True(t, b.Tag(t0, []uint64{0}, nil))
	_, err = b.Insert(0, []byte("A"))
	require.NoError(t, err)
	_, err = b.Insert(1, []byte("B"))
	require.NoError(t, err)
	require.True(t, b.Tag(t1, []uint64{2}, nil))

	var out []byte
	_, err = b.Read(0, int(b.Size()), &out)
	require.NoError(t, err)
	require.Equal(t, []byte("AB"), out)

	_, err = b.UndoUntilTag()
	require.NoError(t, err)
	require.Equal(t, uint64(0), b.Size())

	_, err = b.RedoUntilTag()
	require.NoError(t, err)
	out = nil
	_, err = b.Read(0, int(b.Size()), &out)
	require.NoError(t, err)
	require.Equal(t, []byte("AB"), out)
}

func TestDirectoryBufferIsReadOnlyAndRefusesSave(t *testing.T) {
	b, err := buffer.Directory("/tmp", []byte("a.txt\nb.txt\n"), buffer.DefaultConfig())
	require.NoError(t, err)
	defer b.Close()

	kind, mode := b.Metadata()
	require.Equal(t, buffer.DirectoryBuffer, kind)
	require.Equal(t, buffer.ReadOnly, mode)

	var out []byte
	_, err = b.Read(0, int(b.Size()), &out)
	require.NoError(t, err)
	require.Equal(t, []byte("a.txt\nb.txt\n"), out)

	_, err = b.Insert(0, []byte("x"))
	require.Error(t, err)

	require.Error(t, b.Save(context.Background(), nil))
}

func TestFindAndFindReverse(t *testing.T) {
	b, cleanup := setup(t, []byte("abcabcabc"))
	defer cleanup()

	off, ok, err := b.Find([]byte("abc"), 0, b.Size())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(0), off)

	off, ok, err = b.FindReverse([]byte("abc"), 0, b.Size())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(6), off)
}

// TestConcurrentIndexerMatchesBruteForceCount reproduces the background
// indexer racing ordinary mutations on the same buffer: a sizeable file
// (enough leaves for the indexer to still be mid-pass when inserts land)
// with a live StartIndexer goroutine, hammered by concurrent Inserts, must
// still end up with a byte-frequency count that matches a brute-force scan
// of the final content. Before TallyNewLeaf's atomic claim, the indexer's
// own tally of a freshly added leaf could land alongside Insert's
// synchronous one and double-credit every ancestor.
func TestConcurrentIndexerMatchesBruteForceCount(t *testing.T) {
	var initial []byte
	for i := 0; i < 4000; i++ {
		initial = append(initial, []byte(fmt.Sprintf("line %d\n", i))...)
	}
	b, cleanup := setup(t, initial)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	b.StartIndexer(ctx, activity.AlwaysIdle)

	const writers = 200
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			off := uint64((i * 97) % int(b.Size()))
			_, err := b.Insert(off, []byte(fmt.Sprintf("x%d\n", i)))
			require.NoError(t, err)
		}(i)
	}
	wg.Wait()
	cancel()

	var out []byte
	_, err := b.Read(0, int(b.Size()), &out)
	require.NoError(t, err)

	var want uint64
	for _, c := range out {
		if c == '\n' {
			want++
		}
	}
	require.Equal(t, want, b.Stats()['\n'])
}

func TestSubscribeReceivesEvents(t *testing.T) {
	b, cleanup := setup(t, []byte("abc"))
	defer cleanup()

	var received int
	b.Subscribe(func(ev buffer.BufferEvent) {
		received++
		require.Equal(t, b.ID(), ev.BufferID)
	})

	_, err := b.Insert(0, []byte("x"))
	require.NoError(t, err)
	require.Greater(t, received, 0)
}
