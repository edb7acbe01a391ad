package terrain

import (
	"context"
	"sync"

	"chunkloader/internal/world"
)

// Store caches generated terrain so a chunk that unloads and later loads
// again does not need to be regenerated.
type Store interface {
	Load(ctx context.Context, coord world.ChunkCoord) (*Chunk, bool, error)
	Save(ctx context.Context, chunk *Chunk) error
	Delete(ctx context.Context, coord world.ChunkCoord) error
	Len(ctx context.Context) (int, error)
	Close() error
}

type memoryStore struct {
	mu     sync.RWMutex
	chunks map[world.ChunkCoord]*Chunk
}

// NewMemoryStore returns a process-local Store.
func NewMemoryStore() Store {
	return &memoryStore{chunks: make(map[world.ChunkCoord]*Chunk)}
}

func (m *memoryStore) Load(ctx context.Context, coord world.ChunkCoord) (*Chunk, bool, error) {
	m.mu.RLock()
	chunk, ok := m.chunks[coord]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	return cloneChunk(chunk), true, nil
}

func (m *memoryStore) Save(ctx context.Context, chunk *Chunk) error {
	if chunk == nil {
		return nil
	}
	m.mu.Lock()
	m.chunks[chunk.Coord] = cloneChunk(chunk)
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) Delete(ctx context.Context, coord world.ChunkCoord) error {
	m.mu.Lock()
	delete(m.chunks, coord)
	m.mu.Unlock()
	return nil
}

func (m *memoryStore) Len(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.chunks), nil
}

func (m *memoryStore) Close() error {
	return nil
}

func cloneChunk(c *Chunk) *Chunk {
	dup := *c
	dup.Heights = append([]int16(nil), c.Heights...)
	return &dup
}
