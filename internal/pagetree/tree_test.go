package pagetree_test

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/carlerwin/pagetree/internal/pagetree"
	"github.com/carlerwin/pagetree/internal/testutil"
)

func setupTree(t *testing.T, content []byte) *pagetree.Tree {
	t.Helper()
	path := testutil.WriteFile(t, "doc.txt", content)
	tree, err := pagetree.Open(path, nil)
	require.NoError(t, err)
	t.Cleanup(func() { tree.Close() })
	return tree
}

func readAll(t *testing.T, tree *pagetree.Tree) []byte {
	t.Helper()
	c := tree.Seek(0)
	var out []byte
	_, err := c.Read(int(tree.Size()), &out)
	require.NoError(t, err)
	return out
}

func TestOpenEmptyFile(t *testing.T) {
	tree := setupTree(t, nil)
	require.Equal(t, uint64(0), tree.Size())
	require.Equal(t, pagetree.NoIndex, tree.Root())
}

func TestOpenAndReadRoundTrips(t *testing.T) {
	content := []byte("the quick brown fox jumps over the lazy dog\n")
	tree := setupTree(t, content)
	require.Equal(t, uint64(len(content)), tree.Size())
	require.Equal(t, content, readAll(t, tree))
}

func TestEmptyTreeStartsWithNoRoot(t *testing.T) {
	tree := pagetree.Empty(nil)
	require.Equal(t, uint64(0), tree.Size())
	require.Equal(t, pagetree.NoIndex, tree.Root())
}

func TestInsertIntoEmptyTreeBecomesRoot(t *testing.T) {
	tree := pagetree.Empty(nil)
	c := tree.Seek(0)
	n, events, err := tree.Insert(c, []byte("hello"))
	require.NoError(t, err)
	require.Equal(t, 5, n)
	require.NotEmpty(t, events)
	require.Equal(t, []byte("hello"), readAll(t, tree))
}

func TestInsertMidDocumentSplitsLeaf(t *testing.T) {
	content := bytes.Repeat([]byte("a"), 100)
	tree := setupTree(t, content)
	c := tree.Seek(50)
	_, events, err := tree.Insert(c, []byte("XYZ"))
	require.NoError(t, err)
	require.NotEmpty(t, events)

	want := append(append(append([]byte{}, content[:50]...), "XYZ"...), content[50:]...)
	require.Equal(t, want, readAll(t, tree))
	require.Equal(t, uint64(103), tree.Size())
}

func TestInsertInPlaceFastPath(t *testing.T) {
	tree := pagetree.Empty(nil)
	c := tree.Seek(0)
	_, _, err := tree.Insert(c, []byte("ab"))
	require.NoError(t, err)

	c2 := tree.Seek(2)
	_, _, err = tree.Insert(c2, []byte("cd"))
	require.NoError(t, err)
	require.Equal(t, []byte("abcd"), readAll(t, tree))
}

func TestRemoveMidDocument(t *testing.T) {
	content := []byte("0123456789")
	tree := setupTree(t, content)
	c := tree.Seek(2)
	var out []byte
	n, events, err := tree.Remove(c, 3, &out)
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, []byte("234"), out)
	require.NotEmpty(t, events)
	require.Equal(t, []byte("0156789"), readAll(t, tree))
	require.Equal(t, uint64(7), tree.Size())
}

func TestRemoveClampsAtDocumentEnd(t *testing.T) {
	content := []byte("abc")
	tree := setupTree(t, content)
	c := tree.Seek(1)
	var out []byte
	n, _, err := tree.Remove(c, 100, &out)
	require.NoError(t, err)
	require.Equal(t, 2, n)
	require.Equal(t, []byte("bc"), out)
	require.Equal(t, []byte("a"), readAll(t, tree))
}

func TestRemoveEverythingLeavesEmptyTree(t *testing.T) {
	content := []byte("abc")
	tree := setupTree(t, content)
	c := tree.Seek(0)
	_, _, err := tree.Remove(c, 3, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(0), tree.Size())
	require.Equal(t, pagetree.NoIndex, tree.Root())
}

func TestFindForward(t *testing.T) {
	content := []byte("the quick brown fox jumps over the lazy dog")
	tree := setupTree(t, content)
	off, ok, err := tree.Find([]byte("brown"), 0, tree.Size())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(10), off)
}

func TestFindEmptyNeedleReportsNoMatch(t *testing.T) {
	tree := setupTree(t, []byte("anything"))
	_, ok, err := tree.Find(nil, 0, tree.Size())
	require.NoError(t, err)
	require.False(t, ok)
}

func TestFindReverse(t *testing.T) {
	content := []byte("abcabcabc")
	tree := setupTree(t, content)
	off, ok, err := tree.FindReverse([]byte("abc"), 0, tree.Size())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint64(6), off)
}

func TestSaveRebindsOnDiskLeavesToNewOffsets(t *testing.T) {
	content := bytes.Repeat([]byte("x"), 2<<20)
	path := testutil.WriteFile(t, "big.txt", content)
	tree, err := pagetree.Open(path, nil)
	require.NoError(t, err)
	defer tree.Close()

	c := tree.Seek(1024)
	_, _, err = tree.Insert(c, []byte("YYYY"))
	require.NoError(t, err)
	require.Equal(t, uint64(len(content)+4), tree.Size())

	require.NoError(t, tree.Save(context.Background(), path, ".update", nil))

	reopened, err := pagetree.Open(path, nil)
	require.NoError(t, err)
	defer reopened.Close()

	require.Equal(t, uint64(len(content)+4), reopened.Size())
	got := readAll(t, reopened)
	require.Equal(t, []byte("YYYY"), got[1024:1028])
	require.Equal(t, content[:1024], got[:1024])
	require.Equal(t, content[1024:], got[1028:])
	require.Equal(t, got, readAll(t, tree))
}

func TestLeafChainSizesSumToDocumentSize(t *testing.T) {
	content := bytes.Repeat([]byte("abcdefgh"), 5000)
	tree := setupTree(t, content)

	c := tree.Seek(1234)
	_, _, err := tree.Insert(c, bytes.Repeat([]byte("Z"), 9000))
	require.NoError(t, err)

	c2 := tree.Seek(500)
	_, _, err = tree.Remove(c2, 300, nil)
	require.NoError(t, err)

	var total uint64
	tree.ForEachLeaf(func(idx pagetree.NodeIndex) bool {
		total += tree.NodeSize(idx)
		return true
	})
	require.Equal(t, tree.Size(), total)
}

func TestSaveRoundTripsContent(t *testing.T) {
	content := []byte("save me please")
	tree := setupTree(t, content)

	c := tree.Seek(tree.Size())
	_, _, err := tree.Insert(c, []byte(" and more"))
	require.NoError(t, err)

	path := testutil.TempDir(t) + "/out.txt"
	require.NoError(t, tree.Save(context.Background(), path, ".tmp", nil))
	require.Equal(t, append(append([]byte{}, content...), []byte(" and more")...), readAll(t, tree))
}
