package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"hookrunner-server/models"
)

// SourceValidator checks handler source before it is accepted. Implemented
// by the sandbox executor.
type SourceValidator interface {
	ValidateSource(source string) error
}

// HandlerStore is the persistence collaborator for handler records. The
// registry holds the live in-memory state; the store is the source of truth
// across restarts.
type HandlerStore interface {
	LoadAll(ctx context.Context) ([]models.Handler, error)
	LoadSince(ctx context.Context, since time.Time) ([]models.Handler, error)
	Save(ctx context.Context, h models.Handler) error
}

// Registry maps URIs to their current handler. Reads return immutable value
// copies; writes go through Upsert, serialized per URI. A nil store keeps
// the registry purely in-memory.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string]models.Handler

	lockMu   sync.Mutex
	uriLocks map[string]*sync.Mutex

	store     HandlerStore
	guard     *AuthGuard
	validator SourceValidator
	log       *zap.Logger
}

// NewRegistry builds an empty registry.
func NewRegistry(store HandlerStore, guard *AuthGuard, validator SourceValidator, log *zap.Logger) *Registry {
	return &Registry{
		handlers:  make(map[string]models.Handler),
		uriLocks:  make(map[string]*sync.Mutex),
		store:     store,
		guard:     guard,
		validator: validator,
		log:       log,
	}
}

// LoadFromStore seeds the in-memory state at boot. Rows that no longer
// validate are skipped with a warning rather than poisoning the registry.
func (r *Registry) LoadFromStore(ctx context.Context) error {
	if r.store == nil {
		return nil
	}
	rows, err := r.store.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("loading handlers: %w", err)
	}

	loaded := 0
	for _, h := range rows {
		if r.Absorb(h) {
			loaded++
		}
	}
	r.log.Info("registry loaded", zap.Int("handlers", loaded), zap.Int("rows", len(rows)))
	return nil
}

// Resolve returns an immutable snapshot of the handler at uri, insulating
// the caller's execution from concurrent upserts.
func (r *Registry) Resolve(uri string) (models.HandlerSnapshot, error) {
	r.mu.RLock()
	h, ok := r.handlers[uri]
	r.mu.RUnlock()
	if !ok {
		return models.HandlerSnapshot{}, &models.NotFoundError{URI: uri}
	}
	return h.Snapshot(), nil
}

// Upsert creates or atomically replaces the handler at uri. Upserts to the
// same URI are mutually exclusive for the whole validate+persist+swap
// sequence; commit order is lock-acquisition order. Readers see either the
// old handler or the new one, never a mix.
func (r *Registry) Upsert(ctx context.Context, uri, source, apiKey string) (int64, error) {
	if uri == "" {
		return 0, &models.ValidationError{Reason: "uri is required"}
	}
	if source == "" {
		return 0, &models.ValidationError{Reason: "code is required"}
	}
	if _, ok := r.guard.VerifyKey(apiKey); !ok {
		return 0, &models.AuthError{Reason: "unknown api key"}
	}

	lock := r.uriLock(uri)
	lock.Lock()
	defer lock.Unlock()

	r.mu.RLock()
	existing, exists := r.handlers[uri]
	r.mu.RUnlock()

	if exists {
		if err := r.guard.Authorize(existing.APIKey, apiKey); err != nil {
			return 0, err
		}
	}

	if err := r.validator.ValidateSource(source); err != nil {
		return 0, err
	}

	now := time.Now().UTC()
	h := models.Handler{
		URI:       uri,
		APIKey:    apiKey,
		Source:    source,
		Revision:  1,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if exists {
		h.Revision = existing.Revision + 1
		h.CreatedAt = existing.CreatedAt
	}

	if r.store != nil {
		if err := r.store.Save(ctx, h); err != nil {
			return 0, fmt.Errorf("persisting handler %s: %w", uri, err)
		}
	}

	r.mu.Lock()
	r.handlers[uri] = h
	r.mu.Unlock()

	r.log.Info("handler upserted",
		zap.String("uri", uri),
		zap.Int64("revision", h.Revision),
		zap.Bool("replaced", exists))
	return h.Revision, nil
}

// Absorb folds an externally-loaded handler row into the registry if it is
// newer than the current entry. Used at boot and by the background syncer;
// rows were validated when written, but are re-checked so a corrupt source
// row cannot enter the live map.
func (r *Registry) Absorb(h models.Handler) bool {
	if err := r.validator.ValidateSource(h.Source); err != nil {
		r.log.Warn("skipping stored handler that no longer validates",
			zap.String("uri", h.URI),
			zap.Error(err))
		return false
	}

	lock := r.uriLock(h.URI)
	lock.Lock()
	defer lock.Unlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	current, exists := r.handlers[h.URI]
	if exists && current.Revision >= h.Revision {
		return false
	}
	r.handlers[h.URI] = h
	return true
}

// OwnedBy lists the handlers registered under the presented key.
func (r *Registry) OwnedBy(apiKey string) []models.HandlerListItem {
	r.mu.RLock()
	defer r.mu.RUnlock()

	items := []models.HandlerListItem{}
	for _, h := range r.handlers {
		if constantTimeEqual(h.APIKey, apiKey) {
			items = append(items, models.HandlerListItem{
				URI:       h.URI,
				Revision:  h.Revision,
				UpdatedAt: h.UpdatedAt,
			})
		}
	}
	return items
}

func (r *Registry) uriLock(uri string) *sync.Mutex {
	r.lockMu.Lock()
	defer r.lockMu.Unlock()
	lock, ok := r.uriLocks[uri]
	if !ok {
		lock = &sync.Mutex{}
		r.uriLocks[uri] = lock
	}
	return lock
}
