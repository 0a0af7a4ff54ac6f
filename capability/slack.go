package capability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// DisabledSlackToken turns the Slack integration off entirely; every call
// fails without touching the network.
const DisabledSlackToken = "no-slack"

// SlackClient talks to the Slack Web API. The token is held here and is
// never visible to handler code.
type SlackClient struct {
	baseURL string
	token   string
	client  *http.Client
}

// NewSlackClient builds a client against baseURL (https://slack.com/api in
// production, an httptest server in tests).
func NewSlackClient(baseURL, token string, client *http.Client) *SlackClient {
	return &SlackClient{baseURL: baseURL, token: token, client: client}
}

type slackOKResponse struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

// PostMessage sends text to a channel via chat.postMessage.
func (c *SlackClient) PostMessage(ctx context.Context, channel, text string) error {
	if c.token == DisabledSlackToken {
		return fmt.Errorf("slack integration is disabled")
	}

	body, err := json.Marshal(map[string]string{
		"channel": channel,
		"text":    text,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat.postMessage", bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var parsed slackOKResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("unexpected slack response: %w", err)
	}
	if !parsed.OK {
		return fmt.Errorf("slack rejected the message: %s", parsed.Error)
	}
	return nil
}

type slackConversationInfoResponse struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error,omitempty"`
	Channel struct {
		Name string `json:"name"`
	} `json:"channel"`
}

// ConversationName resolves a channel id to its human name via
// conversations.info. Used by the Slack event ingress to route messages to
// the handler registered for that channel.
func (c *SlackClient) ConversationName(ctx context.Context, channelID string) (string, error) {
	if c.token == DisabledSlackToken {
		return "", fmt.Errorf("slack integration is disabled")
	}

	endpoint := fmt.Sprintf("%s/conversations.info?channel=%s", c.baseURL, url.QueryEscape(channelID))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var parsed slackConversationInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("unexpected slack response: %w", err)
	}
	if !parsed.OK {
		return "", fmt.Errorf("slack rejected the lookup: %s", parsed.Error)
	}
	return parsed.Channel.Name, nil
}
