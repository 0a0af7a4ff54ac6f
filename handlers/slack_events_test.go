package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"hookrunner-server/capability"
	"hookrunner-server/models"
	"hookrunner-server/sandbox"
	"hookrunner-server/services"
)

type stubResolver struct {
	names map[string]string
}

func (r *stubResolver) ConversationName(ctx context.Context, channelID string) (string, error) {
	name, ok := r.names[channelID]
	if !ok {
		return "", errors.New("channel_not_found")
	}
	return name, nil
}

func newSlackTestApp(t *testing.T, resolver ChannelResolver) (*fiber.App, *services.Registry) {
	t.Helper()
	log := zap.NewNop()
	guard := services.NewAuthGuard(map[string]string{"key-alpha": "alpha"})
	budget := sandbox.DefaultBudget()
	budget.Deadline = 500 * time.Millisecond
	bridge := capability.NewBridge(noopMessenger{}, noopTracker{}, log)
	executor := sandbox.NewExecutor(bridge, budget, log)
	registry := services.NewRegistry(nil, guard, executor, log)
	dispatcher := services.NewDispatcher(registry, executor, nil, log)

	app := fiber.New()
	app.Post("/slack_events", NewSlackEventsHandler(dispatcher, resolver, log).HandleEvent)
	return app, registry
}

func postSlackEvent(t *testing.T, app *fiber.App, body interface{}) (*http.Response, []byte) {
	t.Helper()
	encoded, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/slack_events", bytes.NewReader(encoded))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, 5000)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func TestSlackURLVerification(t *testing.T) {
	t.Parallel()
	app, _ := newSlackTestApp(t, &stubResolver{})

	resp, raw := postSlackEvent(t, app, models.SlackEventRequest{
		Type:      "url_verification",
		Challenge: "c0ffee",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var parsed map[string]string
	require.NoError(t, json.Unmarshal(raw, &parsed))
	assert.Equal(t, "c0ffee", parsed["challenge"])
}

func TestSlackMessageRoutedToChannelHandler(t *testing.T) {
	t.Parallel()
	resolver := &stubResolver{names: map[string]string{"C123": "deploys"}}
	app, registry := newSlackTestApp(t, resolver)

	_, err := registry.Upsert(context.Background(), "slack-deploys",
		`function handle(v) { return "saw: " + v }`, "key-alpha")
	require.NoError(t, err)

	_, raw := postSlackEvent(t, app, models.SlackEventRequest{
		Type: "event_callback",
		Event: models.SlackEventInner{
			Type:    "message",
			Channel: "C123",
			User:    "U42",
			Text:    "ship it",
		},
	})

	var env models.Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.True(t, env.Status)
	assert.Equal(t, "saw: ship it", env.Data)
}

func TestSlackMessageUnknownChannel(t *testing.T) {
	t.Parallel()
	app, _ := newSlackTestApp(t, &stubResolver{})

	_, raw := postSlackEvent(t, app, models.SlackEventRequest{
		Type: "event_callback",
		Event: models.SlackEventInner{
			Type:    "message",
			Channel: "C404",
			Text:    "hello",
		},
	})

	var env models.Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.False(t, env.Status)
	assert.Equal(t, "unable to resolve slack channel", env.Data)
}

func TestSlackMessageNoHandlerRegistered(t *testing.T) {
	t.Parallel()
	resolver := &stubResolver{names: map[string]string{"C123": "random"}}
	app, _ := newSlackTestApp(t, resolver)

	_, raw := postSlackEvent(t, app, models.SlackEventRequest{
		Type: "event_callback",
		Event: models.SlackEventInner{
			Type:    "message",
			Channel: "C123",
			Text:    "hello",
		},
	})

	var env models.Envelope
	require.NoError(t, json.Unmarshal(raw, &env))
	assert.False(t, env.Status)
	assert.Equal(t, "no handler at this uri", env.Data)
}
