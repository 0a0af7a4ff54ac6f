package services

import (
	"context"
	"sync"
	"time"

	"hookrunner-server/models"
)

// MemoryHandlerStore is an in-memory HandlerStore. It backs tests and
// storage-less deployments where handlers live only as long as the process.
type MemoryHandlerStore struct {
	mu   sync.Mutex
	rows map[string]models.Handler
}

func NewMemoryHandlerStore() *MemoryHandlerStore {
	return &MemoryHandlerStore{rows: make(map[string]models.Handler)}
}

func (s *MemoryHandlerStore) Save(ctx context.Context, h models.Handler) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	h.SourceKey = GenerateSourceKey(h.URI)
	s.rows[h.URI] = h
	return nil
}

func (s *MemoryHandlerStore) LoadAll(ctx context.Context) ([]models.Handler, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Handler, 0, len(s.rows))
	for _, h := range s.rows {
		out = append(out, h)
	}
	return out, nil
}

func (s *MemoryHandlerStore) LoadSince(ctx context.Context, since time.Time) ([]models.Handler, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Handler{}
	for _, h := range s.rows {
		if h.UpdatedAt.After(since) {
			out = append(out, h)
		}
	}
	return out, nil
}
