package documents

import (
	"context"
	"sync"
	"time"
)

// MemoryRepository is a mutex-guarded Repository for tests and for
// development runs without MongoDB. Last writer wins per subject; UpdatedAt
// strictly increases across successive upserts for the same subject.
type MemoryRepository struct {
	mu    sync.RWMutex
	store map[string]*Document
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{store: make(map[string]*Document)}
}

func (m *MemoryRepository) Upsert(ctx context.Context, sub string, payload []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	prev, ok := m.store[sub]
	if ok {
		if !now.After(prev.UpdatedAt) {
			now = prev.UpdatedAt.Add(time.Nanosecond)
		}
		m.store[sub] = &Document{Sub: sub, Payload: string(payload), CreatedAt: prev.CreatedAt, UpdatedAt: now}
		return nil
	}
	m.store[sub] = &Document{Sub: sub, Payload: string(payload), CreatedAt: now, UpdatedAt: now}
	return nil
}

func (m *MemoryRepository) GetBySub(ctx context.Context, sub string) (*Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.store[sub]
	if !ok {
		return nil, nil
	}
	cp := *d
	return &cp, nil
}
