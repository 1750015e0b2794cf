package editorcore

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/carlerwin/pagetree/internal/activity"
	"github.com/carlerwin/pagetree/internal/buffer"
	"github.com/carlerwin/pagetree/internal/common"
)

// Manager owns every open buffer for one editor session and is the single
// entry point UI, editor-mode and CLI code hold onto.
type Manager struct {
	mu      sync.RWMutex
	buffers map[uuid.UUID]*buffer.Buffer
	logger  *zap.Logger
	probe   activity.Probe
}

// NewManager creates an empty manager. A nil logger defaults to a no-op
// logger; a nil probe behaves as always-idle.
func NewManager(logger *zap.Logger, probe activity.Probe) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if probe == nil {
		probe = activity.AlwaysIdle
	}
	return &Manager{
		buffers: make(map[uuid.UUID]*buffer.Buffer),
		logger:  logger,
		probe:   probe,
	}
}

// OpenFile opens path as a read-write buffer, starts its indexer, and
// registers it with the manager.
func (m *Manager) OpenFile(ctx context.Context, path string) (*buffer.Buffer, error) {
	b, err := NewBuilder(buffer.FileBuffer).FileName(path).WithLogger(m.logger).Build()
	if err != nil {
		return nil, err
	}
	m.register(ctx, b)
	return b, nil
}

// OpenReadOnly opens path as a read-only buffer.
func (m *Manager) OpenReadOnly(ctx context.Context, path string) (*buffer.Buffer, error) {
	b, err := NewBuilder(buffer.FileBuffer).FileName(path).Mode(buffer.ReadOnly).WithLogger(m.logger).Build()
	if err != nil {
		return nil, err
	}
	m.register(ctx, b)
	return b, nil
}

// NewEmpty creates a fresh, unsaved buffer named name.
func (m *Manager) NewEmpty(ctx context.Context, name string) (*buffer.Buffer, error) {
	b, err := NewBuilder(buffer.FileBuffer).Name(name).WithLogger(m.logger).Build()
	if err != nil {
		return nil, err
	}
	m.register(ctx, b)
	return b, nil
}

// OpenDirectory wraps a caller-rendered directory listing (produced by the
// out-of-scope filesystem enumeration collaborator) in a read-only buffer
// and registers it like any other buffer.
func (m *Manager) OpenDirectory(ctx context.Context, name string, listing []byte) (*buffer.Buffer, error) {
	cfg := buffer.DefaultConfig()
	cfg.Logger = m.logger
	b, err := buffer.Directory(name, listing, cfg)
	if err != nil {
		return nil, err
	}
	m.register(ctx, b)
	return b, nil
}

func (m *Manager) register(ctx context.Context, b *buffer.Buffer) {
	m.mu.Lock()
	m.buffers[b.ID()] = b
	m.mu.Unlock()
	b.StartIndexer(ctx, m.probe)
}

// Get returns the buffer with the given id, if open.
func (m *Manager) Get(id uuid.UUID) (*buffer.Buffer, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.buffers[id]
	return b, ok
}

// List returns every currently open buffer.
func (m *Manager) List() []*buffer.Buffer {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*buffer.Buffer, 0, len(m.buffers))
	for _, b := range m.buffers {
		out = append(out, b)
	}
	return out
}

// Close saves (if requested), closes, and unregisters a buffer.
func (m *Manager) Close(id uuid.UUID, save bool) error {
	m.mu.Lock()
	b, ok := m.buffers[id]
	if ok {
		delete(m.buffers, id)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: buffer %s", common.ErrNotFound, id)
	}

	if save && b.Changed() {
		if err := b.Save(context.Background(), m.probe); err != nil {
			return err
		}
	}
	return b.Close()
}

// CloseAll closes every open buffer without saving, for process shutdown.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	buffers := make([]*buffer.Buffer, 0, len(m.buffers))
	for _, b := range m.buffers {
		buffers = append(buffers, b)
	}
	m.buffers = make(map[uuid.UUID]*buffer.Buffer)
	m.mu.Unlock()

	for _, b := range buffers {
		if err := b.Close(); err != nil {
			m.logger.Warn("error closing buffer", zap.String("name", b.Name()), zap.Error(err))
		}
	}
}
