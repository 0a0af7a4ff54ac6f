package models

import (
	"time"

	"github.com/google/uuid"
)

// InvocationContext is the ephemeral per-request state of one handler
// execution: the resolved snapshot, the raw event payload, and timing.
// Created at dispatch entry, discarded at response emission.
type InvocationContext struct {
	ID        string
	URI       string
	Snapshot  HandlerSnapshot
	Payload   string
	InvokedBy string
	InvokedAt time.Time
}

// NewInvocation builds the context for a single dispatch.
func NewInvocation(snapshot HandlerSnapshot, payload, invokedBy string) *InvocationContext {
	return &InvocationContext{
		ID:        uuid.New().String(),
		URI:       snapshot.URI,
		Snapshot:  snapshot,
		Payload:   payload,
		InvokedBy: invokedBy,
		InvokedAt: time.Now().UTC(),
	}
}

// FailureRecord is the only execution history the host keeps: the most
// recent failure per URI, cached with a TTL for error reporting.
type FailureRecord struct {
	InvocationID string    `json:"invocation_id"`
	URI          string    `json:"uri"`
	Cause        string    `json:"cause"`
	FailedAt     time.Time `json:"failed_at"`
	DurationMs   int64     `json:"duration_ms"`
}
