package users

import (
	"context"
	"sync"
	"time"

	"github.com/appvault/appvault/internal/models"
)

// MemoryUserRepository is a process-local UserRepository for development
// runs without MongoDB and for tests.
type MemoryUserRepository struct {
	mu    sync.RWMutex
	store map[string]*models.User
}

func NewMemoryUserRepository() *MemoryUserRepository {
	return &MemoryUserRepository{store: make(map[string]*models.User)}
}

func (m *MemoryUserRepository) UpsertBySub(ctx context.Context, u *models.User) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	cp := *u
	if prev, ok := m.store[u.Sub]; ok {
		cp.CreatedAt = prev.CreatedAt
	} else {
		cp.CreatedAt = now
	}
	cp.UpdatedAt = now
	m.store[u.Sub] = &cp
	ret := cp
	return &ret, nil
}

func (m *MemoryUserRepository) GetBySub(ctx context.Context, sub string) (*models.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.store[sub]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}
