package capability

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"hookrunner-server/models"
)

type stubMessenger struct {
	calls int
	err   error
}

func (s *stubMessenger) PostMessage(ctx context.Context, channel, text string) error {
	s.calls++
	return s.err
}

type stubTracker struct {
	calls int
	err   error
}

func (s *stubTracker) CreateIssue(ctx context.Context, repo, title, body string) (*Issue, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return &Issue{URL: "https://example.com/42", Title: title, ID: 42}, nil
}

func TestBridgeNames(t *testing.T) {
	t.Parallel()
	b := NewBridge(&stubMessenger{}, &stubTracker{}, zap.NewNop())

	assert.Equal(t, []string{"slack_post", "github_create_issue"}, b.Names())
}

func TestInvokeSlackPost(t *testing.T) {
	t.Parallel()
	messenger := &stubMessenger{}
	b := NewBridge(messenger, &stubTracker{}, zap.NewNop())

	out, err := b.Invoke(context.Background(), "slack_post", []interface{}{"general", "hello"})
	require.NoError(t, err)
	assert.Equal(t, true, out)
	assert.Equal(t, 1, messenger.calls)
}

func TestInvokeGithubCreateIssue(t *testing.T) {
	t.Parallel()
	tracker := &stubTracker{}
	b := NewBridge(&stubMessenger{}, tracker, zap.NewNop())

	out, err := b.Invoke(context.Background(), "github_create_issue", []interface{}{"o/r", "title", "body"})
	require.NoError(t, err)

	m, ok := out.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "https://example.com/42", m["html_url"])
	assert.Equal(t, "title", m["title"])
	assert.Equal(t, int64(42), m["id"])
	assert.Equal(t, 1, tracker.calls)
}

func TestInvokeUnknownName(t *testing.T) {
	t.Parallel()
	messenger := &stubMessenger{}
	tracker := &stubTracker{}
	b := NewBridge(messenger, tracker, zap.NewNop())

	_, err := b.Invoke(context.Background(), "send_email", []interface{}{"a"})
	var capErr *models.CapabilityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, models.CapUnknown, capErr.Kind)
	assert.Equal(t, 0, messenger.calls)
	assert.Equal(t, 0, tracker.calls)
}

func TestInvokeWrongArity(t *testing.T) {
	t.Parallel()
	messenger := &stubMessenger{}
	b := NewBridge(messenger, &stubTracker{}, zap.NewNop())

	_, err := b.Invoke(context.Background(), "slack_post", []interface{}{"general"})
	var capErr *models.CapabilityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, models.CapInvalidArgs, capErr.Kind)
	assert.Equal(t, 0, messenger.calls, "no external call may happen on a malformed invocation")
}

func TestInvokeNonStringArgument(t *testing.T) {
	t.Parallel()
	messenger := &stubMessenger{}
	b := NewBridge(messenger, &stubTracker{}, zap.NewNop())

	_, err := b.Invoke(context.Background(), "slack_post", []interface{}{"general", int64(7)})
	var capErr *models.CapabilityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, models.CapInvalidArgs, capErr.Kind)
	assert.Contains(t, capErr.Message, "message")
	assert.Equal(t, 0, messenger.calls)
}

func TestInvokeTransportFailure(t *testing.T) {
	t.Parallel()
	messenger := &stubMessenger{err: errors.New("connection refused")}
	b := NewBridge(messenger, &stubTracker{}, zap.NewNop())

	_, err := b.Invoke(context.Background(), "slack_post", []interface{}{"general", "hello"})
	var capErr *models.CapabilityError
	require.ErrorAs(t, err, &capErr)
	assert.Equal(t, models.CapTransport, capErr.Kind)
	assert.Equal(t, "slack_post", capErr.Capability)
	assert.Contains(t, capErr.Message, "connection refused")
}
