package models

// SlackEventRequest represents an inbound Slack Events API callback.
// Only message-shaped events are understood; the URL verification handshake
// shares the same endpoint.
type SlackEventRequest struct {
	Token     string          `json:"token"`
	Type      string          `json:"type"`
	Challenge string          `json:"challenge,omitempty"`
	Event     SlackEventInner `json:"event"`
	EventTime int64           `json:"event_time"`
}

// SlackEventInner is the message body of a Slack event.
type SlackEventInner struct {
	Type    string `json:"type"`
	Channel string `json:"channel"`
	User    string `json:"user"`
	Text    string `json:"text"`
	TS      string `json:"ts"`
}
