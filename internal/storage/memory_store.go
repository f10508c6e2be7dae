package storage

import (
	"sync"

	"github.com/samvad-hq/post-archiver/internal/domain"
)

// MemoryStore is a process-local Store for tests and dry runs.
type MemoryStore struct {
	mu    sync.Mutex
	marks map[string]domain.PostID
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{marks: make(map[string]domain.PostID)}
}

func (m *MemoryStore) Read(handle string) (domain.PostID, error) {
	if err := validateHandle(handle); err != nil {
		return domain.NoPostID, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.marks[handle]
	if !ok {
		m.marks[handle] = domain.NoPostID
		return domain.NoPostID, nil
	}
	return id, nil
}

func (m *MemoryStore) Write(handle string, id domain.PostID) (bool, error) {
	if err := validateHandle(handle); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if current, ok := m.marks[handle]; ok && id <= current {
		return false, nil
	}
	m.marks[handle] = id
	return true, nil
}

func (m *MemoryStore) Close() error { return nil }
