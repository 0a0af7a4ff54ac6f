package models

import (
	"time"
)

// Handler represents a client-registered piece of handler code bound to a URI.
// The registry keeps one live Handler per URI; replacement is always whole-value.
type Handler struct {
	URI       string    `json:"uri"`
	APIKey    string    `json:"api_key,omitempty"`
	Source    string    `json:"source,omitempty"`
	SourceKey string    `json:"source_key,omitempty"`
	Revision  int64     `json:"revision"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HandlerSnapshot is an immutable copy of a handler taken at resolve time.
// An in-flight execution works off the snapshot, so a concurrent upsert can
// never change the code or owner under a running invocation.
type HandlerSnapshot struct {
	URI      string
	Owner    string
	Source   string
	Revision int64
}

// Snapshot copies the fields an invocation needs.
func (h *Handler) Snapshot() HandlerSnapshot {
	return HandlerSnapshot{
		URI:      h.URI,
		Owner:    h.APIKey,
		Source:   h.Source,
		Revision: h.Revision,
	}
}

// HandlerListItem represents a handler in list view (without code)
type HandlerListItem struct {
	URI       string    `json:"uri"`
	Revision  int64     `json:"revision"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UpsertHandlerRequest represents the request body for creating or replacing a handler
type UpsertHandlerRequest struct {
	URI    string `json:"uri"`
	Code   string `json:"code"`
	APIKey string `json:"api_key"`
}

// FindHandlerRequest represents an authorized read of a handler's source
type FindHandlerRequest struct {
	URI    string `json:"uri"`
	APIKey string `json:"api_key"`
}

// APIKeyRequest represents a request carrying only an API key
// (list_handlers, verify_key)
type APIKeyRequest struct {
	APIKey string `json:"api_key"`
}
