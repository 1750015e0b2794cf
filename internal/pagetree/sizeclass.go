package pagetree

// sizeClassTable picks a target leaf size for a file of the given size:
// small files get small leaves, large files get leaves of up to 1 MiB, and
// files beyond the table get maxLeafSize (16 MiB) leaves. It is a
// package-level table keyed off document size; this package has no Config
// struct.
var sizeClassTable = []struct {
	maxFileSize uint64
	leafSize    uint64
}{
	{maxFileSize: 1 << 10, leafSize: 32},             // <= 1 KiB  -> 32 B leaves
	{maxFileSize: 64 << 10, leafSize: 1 << 10},        // <= 64 KiB -> 1 KiB leaves
	{maxFileSize: 4 << 20, leafSize: 64 << 10},        // <= 4 MiB  -> 64 KiB leaves
	{maxFileSize: 256 << 20, leafSize: 1 << 20},       // <= 256 MiB -> 1 MiB leaves
}

const maxLeafSize uint64 = 16 << 20 // hard cap for files larger than the table

func leafSizeFor(fileSize uint64) uint64 {
	for _, c := range sizeClassTable {
		if fileSize <= c.maxFileSize {
			return c.leafSize
		}
	}
	return maxLeafSize
}

// Defaults for leaves created by the split path on insert:
// a data segment plus a reserve that absorbs subsequent small inserts
// in place without re-splitting.
const (
	splitLeafDataSize    = 4 << 10
	splitLeafReserveSize = 2 << 10
)

// readChunkSize bounds a single disk read so a leaf materialization can't
// stall cooperative progress under memory or scheduling pressure.
const readChunkSize = 32 << 10

// findChunkSize is the window size used by Find/FindReverse.
const findChunkSize = 2 << 20
