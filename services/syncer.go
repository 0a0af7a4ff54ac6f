package services

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RegistrySyncer periodically folds handler rows written by other instances
// (or a previous life of this one) into the in-memory registry, so the
// storage collaborator stays the source of truth. It only absorbs newer
// revisions; local upserts are never rolled back.
type RegistrySyncer struct {
	registry *Registry
	store    HandlerStore
	interval time.Duration
	stopCh   chan struct{}
	wg       sync.WaitGroup
	log      *zap.Logger

	mu       sync.Mutex
	lastSync time.Time
}

func NewRegistrySyncer(registry *Registry, store HandlerStore, interval time.Duration, log *zap.Logger) *RegistrySyncer {
	return &RegistrySyncer{
		registry: registry,
		store:    store,
		interval: interval,
		stopCh:   make(chan struct{}),
		log:      log,
	}
}

func (s *RegistrySyncer) Start() {
	s.mu.Lock()
	s.lastSync = time.Now().UTC()
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.syncOnce()
			case <-s.stopCh:
				return
			}
		}
	}()
}

func (s *RegistrySyncer) Stop() {
	close(s.stopCh)
	s.wg.Wait()
}

func (s *RegistrySyncer) syncOnce() {
	ctx, cancel := context.WithTimeout(context.Background(), s.interval)
	defer cancel()

	s.mu.Lock()
	since := s.lastSync
	s.mu.Unlock()

	// A little overlap beats missing a row written around the boundary;
	// Absorb is idempotent on revision.
	cutoff := time.Now().UTC()
	rows, err := s.store.LoadSince(ctx, since.Add(-s.interval))
	if err != nil {
		s.log.Warn("registry sync failed", zap.Error(err))
		return
	}

	absorbed := 0
	for _, h := range rows {
		if s.registry.Absorb(h) {
			absorbed++
		}
	}
	if absorbed > 0 {
		s.log.Info("registry sync absorbed handlers", zap.Int("count", absorbed))
	}

	s.mu.Lock()
	s.lastSync = cutoff
	s.mu.Unlock()
}
