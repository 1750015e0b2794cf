// Package editorcore is the public facade UI, editor-mode and CLI code
// programs against: it assembles the paged tree, buffer facade, change log
// and byte-frequency index layers into one buffer manager, the single
// interface callers open, read, and close documents through.
package editorcore

import (
	"go.uber.org/zap"

	"github.com/carlerwin/pagetree/internal/buffer"
)

// Builder assembles a Buffer step by step instead of requiring one
// constructor call with many positional arguments.
type Builder struct {
	kind     buffer.Kind
	name     string
	fileName string
	mode     buffer.Mode
	logging  bool
	logger   *zap.Logger
	cacheLen int
}

// NewBuilder starts building a buffer of the given kind.
func NewBuilder(kind buffer.Kind) *Builder {
	return &Builder{
		kind:     kind,
		mode:     buffer.ReadWrite,
		logging:  true,
		cacheLen: 64,
	}
}

// WithLogging toggles whether the change log records operations.
func (bb *Builder) WithLogging(enabled bool) *Builder {
	bb.logging = enabled
	return bb
}

// Name sets the buffer's display name.
func (bb *Builder) Name(name string) *Builder {
	bb.name = name
	return bb
}

// FileName sets the backing path, for a File-kind buffer built with Open.
func (bb *Builder) FileName(path string) *Builder {
	bb.fileName = path
	return bb
}

// Mode sets ReadOnly/ReadWrite.
func (bb *Builder) Mode(mode buffer.Mode) *Builder {
	bb.mode = mode
	return bb
}

// WithLogger sets the structured logger threaded through the buffer, the
// save worker and the indexer.
func (bb *Builder) WithLogger(logger *zap.Logger) *Builder {
	bb.logger = logger
	return bb
}

// WithReadCacheLeaves sets how many leaves the per-leaf read cache holds.
func (bb *Builder) WithReadCacheLeaves(n int) *Builder {
	bb.cacheLen = n
	return bb
}

// Build produces the configured buffer: Open if FileName was set, Empty
// otherwise.
func (bb *Builder) Build() (*buffer.Buffer, error) {
	cfg := buffer.Config{
		ReadCacheLeaves: bb.cacheLen,
		LoggingEnabled:  bb.logging,
		Logger:          bb.logger,
	}
	if bb.fileName != "" {
		return buffer.Open(bb.fileName, bb.mode, cfg)
	}
	name := bb.name
	if name == "" {
		name = "untitled"
	}
	return buffer.Empty(name, bb.mode, cfg)
}
