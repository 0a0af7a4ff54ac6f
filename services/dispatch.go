package services

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"hookrunner-server/models"
	"hookrunner-server/sandbox"
)

// FailureSink records the most recent failure per URI for error reporting.
// Implemented by the Redis service; a nil sink disables recording.
type FailureSink interface {
	RecordFailure(ctx context.Context, rec models.FailureRecord)
	LastFailure(ctx context.Context, uri string) (*models.FailureRecord, error)
}

// Dispatcher is the core's public entry point: resolve the handler, run it
// in the sandbox, and normalize whatever happened into an Envelope. Dispatch
// never fails outward.
type Dispatcher struct {
	registry *Registry
	executor *sandbox.Executor
	failures FailureSink
	log      *zap.Logger
}

// NewDispatcher wires the dispatch pipeline.
func NewDispatcher(registry *Registry, executor *sandbox.Executor, failures FailureSink, log *zap.Logger) *Dispatcher {
	return &Dispatcher{
		registry: registry,
		executor: executor,
		failures: failures,
		log:      log,
	}
}

// Dispatch runs the handler at uri against the raw event payload.
func (d *Dispatcher) Dispatch(ctx context.Context, uri, payload, invokedBy string) models.Envelope {
	snapshot, err := d.registry.Resolve(uri)
	if err != nil {
		return models.Failure(FailureMessage(err))
	}

	inv := models.NewInvocation(snapshot, payload, invokedBy)
	start := time.Now()
	value, err := d.executor.Execute(ctx, inv)
	duration := time.Since(start)

	if err != nil {
		cause := FailureMessage(err)
		d.log.Warn("invocation failed",
			zap.String("invocation_id", inv.ID),
			zap.String("uri", uri),
			zap.String("invoked_by", invokedBy),
			zap.Duration("duration", duration),
			zap.String("cause", cause))
		d.recordFailure(ctx, inv, cause, duration)
		return models.Failure(cause)
	}

	d.log.Info("invocation succeeded",
		zap.String("invocation_id", inv.ID),
		zap.String("uri", uri),
		zap.Duration("duration", duration))
	return models.SuccessWithData(value)
}

func (d *Dispatcher) recordFailure(ctx context.Context, inv *models.InvocationContext, cause string, duration time.Duration) {
	if d.failures == nil {
		return
	}
	d.failures.RecordFailure(ctx, models.FailureRecord{
		InvocationID: inv.ID,
		URI:          inv.URI,
		Cause:        cause,
		FailedAt:     time.Now().UTC(),
		DurationMs:   duration.Milliseconds(),
	})
}

// FailureMessage is the single conversion point from the internal error
// taxonomy to the human-readable causes carried in failure envelopes. No
// raw internal error crosses the boundary.
func FailureMessage(err error) string {
	var authErr *models.AuthError
	if errors.As(err, &authErr) {
		return authErr.Reason
	}

	var valErr *models.ValidationError
	if errors.As(err, &valErr) {
		return "rejected handler source: " + valErr.Reason
	}

	var nfErr *models.NotFoundError
	if errors.As(err, &nfErr) {
		return "no handler at this uri"
	}

	var execErr *models.ExecutionError
	if errors.As(err, &execErr) {
		return execErr.Message
	}

	var capErr *models.CapabilityError
	if errors.As(err, &capErr) {
		return capErr.Error()
	}

	return "internal error"
}
