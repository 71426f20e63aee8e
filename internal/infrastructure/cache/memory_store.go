package cache

import (
	"context"
	"sync"

	"github.com/tu-usuario/facturador-pro/internal/application/configcache"
)

// MemoryStore implementa configcache.Store en memoria del proceso. Para
// desarrollo y tests; las entradas no sobreviven al reinicio.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]configcache.Entry
}

var _ configcache.Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]configcache.Entry)}
}

func (s *MemoryStore) Load(_ context.Context, key string) (*configcache.Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.entries[key]
	if !ok {
		return nil, nil
	}
	return &entry, nil
}

func (s *MemoryStore) Save(_ context.Context, key string, entry configcache.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = entry
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}
