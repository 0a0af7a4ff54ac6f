package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"hookrunner-server/models"
)

type memoryFailureSink struct {
	mu   sync.Mutex
	recs map[string]models.FailureRecord
}

func newMemoryFailureSink() *memoryFailureSink {
	return &memoryFailureSink{recs: make(map[string]models.FailureRecord)}
}

func (s *memoryFailureSink) RecordFailure(ctx context.Context, rec models.FailureRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recs[rec.URI] = rec
}

func (s *memoryFailureSink) LastFailure(ctx context.Context, uri string) (*models.FailureRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.recs[uri]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func testDispatcher(sink FailureSink) (*Dispatcher, *Registry) {
	r := testRegistry(nil)
	executor := testExecutor()
	return NewDispatcher(r, executor, sink, zap.NewNop()), r
}

func TestDispatchEcho(t *testing.T) {
	t.Parallel()
	d, r := testDispatcher(nil)
	ctx := context.Background()

	_, err := r.Upsert(ctx, "echo", echoSource, "key-alpha")
	require.NoError(t, err)

	env := d.Dispatch(ctx, "echo", "hello", "test")
	assert.True(t, env.Status)
	assert.Equal(t, "hello", env.Data)
}

func TestDispatchUnknownURI(t *testing.T) {
	t.Parallel()
	d, _ := testDispatcher(nil)

	env := d.Dispatch(context.Background(), "missing", "hello", "test")
	assert.False(t, env.Status)
	assert.Equal(t, "no handler at this uri", env.Data)
}

func TestDispatchRuntimeFailureRecorded(t *testing.T) {
	t.Parallel()
	sink := newMemoryFailureSink()
	d, r := testDispatcher(sink)
	ctx := context.Background()

	_, err := r.Upsert(ctx, "broken", `function handle(v) { throw new Error("boom") }`, "key-alpha")
	require.NoError(t, err)

	env := d.Dispatch(ctx, "broken", "hello", "test")
	assert.False(t, env.Status)
	cause, ok := env.Data.(string)
	require.True(t, ok)
	assert.Contains(t, cause, "boom")

	rec, err := sink.LastFailure(ctx, "broken")
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "broken", rec.URI)
	assert.Equal(t, cause, rec.Cause)
	assert.NotEmpty(t, rec.InvocationID)
	assert.False(t, rec.FailedAt.IsZero())
}

func TestDispatchSuccessLeavesNoFailureRecord(t *testing.T) {
	t.Parallel()
	sink := newMemoryFailureSink()
	d, r := testDispatcher(sink)
	ctx := context.Background()

	_, err := r.Upsert(ctx, "echo", echoSource, "key-alpha")
	require.NoError(t, err)

	env := d.Dispatch(ctx, "echo", "hello", "test")
	assert.True(t, env.Status)

	rec, err := sink.LastFailure(ctx, "echo")
	require.NoError(t, err)
	assert.Nil(t, rec)
}

func TestDispatchRunawayHandlerDoesNotStarveOthers(t *testing.T) {
	t.Parallel()
	d, r := testDispatcher(nil)
	ctx := context.Background()

	_, err := r.Upsert(ctx, "runaway", `function handle(v) { while (true) {} }`, "key-alpha")
	require.NoError(t, err)
	_, err = r.Upsert(ctx, "echo", echoSource, "key-alpha")
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		env := d.Dispatch(ctx, "runaway", "x", "test")
		assert.False(t, env.Status)
	}()

	deadline := time.Now().Add(300 * time.Millisecond)
	for time.Now().Before(deadline) {
		env := d.Dispatch(ctx, "echo", "still here", "test")
		require.True(t, env.Status)
	}
	wg.Wait()
}

func TestFailureMessageMapping(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want string
	}{
		{
			name: "auth",
			err:  &models.AuthError{Reason: "unknown api key"},
			want: "unknown api key",
		},
		{
			name: "validation",
			err:  &models.ValidationError{Reason: "uri is required"},
			want: "rejected handler source: uri is required",
		},
		{
			name: "not found",
			err:  &models.NotFoundError{URI: "x"},
			want: "no handler at this uri",
		},
		{
			name: "execution",
			err:  &models.ExecutionError{Kind: models.ExecResourceExceeded, Message: "execution budget exceeded"},
			want: "execution budget exceeded",
		},
		{
			name: "unclassified",
			err:  errors.New("pq: connection refused"),
			want: "internal error",
		},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, FailureMessage(tc.err))
		})
	}
}

func TestFailureMessageCapabilityCarriesContext(t *testing.T) {
	t.Parallel()
	err := &models.CapabilityError{
		Kind:       models.CapTransport,
		Capability: "slack_post",
		Message:    "connection refused",
	}
	msg := FailureMessage(err)
	assert.Contains(t, msg, "slack_post")
	assert.Contains(t, msg, "connection refused")
}
