// Package buffer implements the buffer facade: the public surface
// callers (the editor core, the CLI) drive. It owns a
// pagetree.Tree, a changelog.Log, a byteindex.Index and a per-leaf read
// cache, and is responsible for keeping all four in step on every
// mutation.
package buffer

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/carlerwin/pagetree/internal/activity"
	"github.com/carlerwin/pagetree/internal/byteindex"
	"github.com/carlerwin/pagetree/internal/changelog"
	"github.com/carlerwin/pagetree/internal/common"
	"github.com/carlerwin/pagetree/internal/pagetree"
	"github.com/google/uuid"
)

// Kind distinguishes a buffer backed by a single file from one standing in
// for a directory listing.
type Kind int

const (
	FileBuffer Kind = iota
	DirectoryBuffer
)

// Mode gates whether mutating operations are permitted.
type Mode int

const (
	ReadWrite Mode = iota
	ReadOnly
)

// Subscriber receives every event a mutation on this buffer produces, in
// generation order, called while the buffer's write section is still
// held. It must not call back into the buffer.
type Subscriber func(BufferEvent)

// BufferEvent wraps a pagetree.Event with the id of the buffer it came
// from, so a subscriber watching several buffers can tell them apart.
type BufferEvent struct {
	BufferID uuid.UUID
	Event    pagetree.Event
}

// leafCacheKey identifies a cached leaf's content by its node index and the
// buffer revision it was captured at, so a stale entry can never be served
// past a mutation: a hit is valid only if the cached revision equals the
// current revision.
type leafCacheKey struct {
	leaf     pagetree.NodeIndex
	revision uint64
}

// Buffer is the buffer facade: identity, file metadata, the mutable tree,
// the change log, the byte-frequency index and the read cache, all behind
// one outer lock. Each buffer is a shared, reference-counted handle
// protected by a single reader/writer lock.
type Buffer struct {
	mu sync.RWMutex

	id   uuid.UUID
	name string
	path string
	kind Kind
	mode Mode

	revision  uint64 // atomic; bumped on every mutating op
	changed   atomic.Bool
	nrChanges uint64

	tree  *pagetree.Tree
	log   *changelog.Log
	index *byteindex.Index

	readCache *lru.Cache[leafCacheKey, []byte]

	subscribers map[int]Subscriber
	nextSubID   int

	logger *zap.Logger

	indexCancel context.CancelFunc

	// saveMu serializes Save's actual disk work; Close blocks on it to let
	// an in-flight save finish before releasing the tree (spec's "flush
	// any pending save"). syncing is the non-blocking is_syncing guard
	// that refuses a second concurrent Save on the same buffer outright
	// rather than queuing behind the first.
	saveMu  sync.Mutex
	syncing atomic.Bool
}

// Config tunes a buffer's ambient resources (pagetree's own size-class
// table governs leaf sizing; this covers the facade's own knobs), with
// DefaultConfig supplying the defaults.
type Config struct {
	ReadCacheLeaves int
	LoggingEnabled  bool
	Logger          *zap.Logger
}

// DefaultConfig mirrors btree.DefaultConfig's role: sane defaults for a
// buffer that isn't explicitly configured.
func DefaultConfig() Config {
	return Config{
		ReadCacheLeaves: 64,
		LoggingEnabled:  true,
		Logger:          zap.NewNop(),
	}
}

// Open builds a buffer over an existing file, per/§6's `open`.
func Open(path string, mode Mode, cfg Config) (*Buffer, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	tree, err := pagetree.Open(path, logger)
	if err != nil {
		return nil, err
	}

	b, err := newBuffer(FileBuffer, path, mode, cfg, tree, logger)
	if err != nil {
		tree.Close()
		return nil, err
	}
	return b, nil
}

// Empty builds an in-memory buffer with no backing file, per/§6's
// `empty`.
func Empty(name string, mode Mode, cfg Config) (*Buffer, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tree := pagetree.Empty(logger)
	return newBuffer(FileBuffer, name, mode, cfg, tree, logger)
}

// Directory builds a read-only buffer hosting a filesystem enumeration's
// rendered listing: the enumeration itself is an external collaborator
// (spec §1's "filesystem enumeration" is explicitly out of scope for the
// core); this only gives that collaborator's output a buffer to live in,
// addressable by the same read/find/subscribe contracts as a file buffer.
// A directory buffer is never dirtied and Save refuses it outright.
func Directory(name string, listing []byte, cfg Config) (*Buffer, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tree := pagetree.Empty(logger)
	b, err := newBuffer(DirectoryBuffer, name, ReadOnly, cfg, tree, logger)
	if err != nil {
		return nil, err
	}
	if len(listing) > 0 {
		c := tree.Seek(0)
		if _, _, err := tree.Insert(c, listing); err != nil {
			return nil, err
		}
	}
	return b, nil
}

func newBuffer(kind Kind, pathOrName string, mode Mode, cfg Config, tree *pagetree.Tree, logger *zap.Logger) (*Buffer, error) {
	cache, err := lru.New[leafCacheKey, []byte](maxInt(cfg.ReadCacheLeaves, 1))
	if err != nil {
		return nil, fmt.Errorf("%w: building read cache: %v", common.ErrIO, err)
	}

	b := &Buffer{
		id:          uuid.New(),
		name:        pathOrName,
		path:        pathOrName,
		kind:        kind,
		mode:        mode,
		tree:        tree,
		log:         changelog.New(cfg.LoggingEnabled, nil),
		readCache:   cache,
		subscribers: make(map[int]Subscriber),
		logger:      logger,
	}
	b.index = byteindex.New(tree)
	return b, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// ID returns the buffer's identity.
func (b *Buffer) ID() uuid.UUID { return b.id }

// Name returns the display name, unless overridden by SetFileName.
func (b *Buffer) Name() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.name
}

// FileName returns the backing path.
func (b *Buffer) FileName() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.path
}

// SetFileName rebinds the buffer's backing path, for "save as" style flows.
func (b *Buffer) SetFileName(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.path = path
}

// Metadata reports the buffer's kind and mode.
func (b *Buffer) Metadata() (Kind, Mode) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.kind, b.mode
}

// Size returns the document's current length.
func (b *Buffer) Size() uint64 {
	return b.tree.Size()
}

// StartOffset and EndOffset expose the buffer's valid offset range.
func (b *Buffer) StartOffset() uint64 { return 0 }

func (b *Buffer) EndOffset() uint64 { return b.tree.Size() }

// NrChanges reports how many mutating operations have landed since open.
func (b *Buffer) NrChanges() uint64 {
	return atomic.LoadUint64(&b.nrChanges)
}

// Revision returns the current revision counter.
func (b *Buffer) Revision() uint64 {
	return atomic.LoadUint64(&b.revision)
}

// Changed reports the buffer's Clean/Dirty state.
func (b *Buffer) Changed() bool {
	return b.changed.Load()
}

// Subscribe registers fn to receive every future event and returns a token
// usable with Unsubscribe. Subscribers are held by a revocable token,
// never a back-reference stored in the buffer.
func (b *Buffer) Subscribe(fn Subscriber) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextSubID
	b.nextSubID++
	b.subscribers[id] = fn
	return id
}

// Unsubscribe revokes a token returned by Subscribe.
func (b *Buffer) Unsubscribe(token int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.subscribers, token)
}

// publish fans events out to subscribers while the write section is still
// held. Must be called with b.mu held for write.
func (b *Buffer) publish(events []pagetree.Event) {
	if len(events) == 0 {
		return
	}
	for _, ev := range events {
		wrapped := BufferEvent{BufferID: b.id, Event: ev}
		for _, fn := range b.subscribers {
			fn(wrapped)
		}
	}
}

// beginMutation bumps the revision and marks the buffer dirty, per contract
// shared by every mutating operation. It does not sweep the read cache: a
// cached leaf is keyed by {leaf, revision} (see leafCacheKey), so bumping
// the revision here is already enough to make every existing entry
// unreachable on its next lookup, without an explicit purge. Must be
// called with b.mu held for write, before driving PT.
func (b *Buffer) beginMutation() {
	atomic.AddUint64(&b.revision, 1)
	atomic.AddUint64(&b.nrChanges, 1)
	b.changed.Store(true)
}

// applyEvents folds PT's returned events into the byte-frequency index and
// publishes them. Must be called with b.mu held for write.
func (b *Buffer) applyEvents(events []pagetree.Event) error {
	if err := b.index.Apply(events); err != nil {
		b.logger.Warn("byte-frequency index update failed", zap.Error(err))
		return err
	}
	b.publish(events)
	return nil
}

// StartIndexer launches the asynchronous byte-frequency indexer for this
// buffer, publishing NodeIndexed/FullyIndexed to subscribers.
// The returned cancel function stops it; Close calls it automatically.
func (b *Buffer) StartIndexer(ctx context.Context, probe activity.Probe) context.CancelFunc {
	ctx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	b.indexCancel = cancel
	b.mu.Unlock()

	indexer := byteindex.NewIndexer(b.index, b.tree, probe, func(ev pagetree.Event) {
		b.mu.RLock()
		subs := make([]Subscriber, 0, len(b.subscribers))
		for _, fn := range b.subscribers {
			subs = append(subs, fn)
		}
		b.mu.RUnlock()
		wrapped := BufferEvent{BufferID: b.id, Event: ev}
		for _, fn := range subs {
			fn(wrapped)
		}
	})

	go func() {
		if err := byteindex.RunLoop(ctx, indexer, 200*time.Millisecond); err != nil && ctx.Err() == nil {
			b.logger.Warn("indexer stopped", zap.Error(err))
		}
	}()
	return cancel
}

// Stats returns the byte-frequency index's root tally, for the CLI's
// `stats` command .
func (b *Buffer) Stats() [256]uint64 {
	return b.index.Stats()
}
