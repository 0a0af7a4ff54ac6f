package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"hookrunner-server/models"
	"hookrunner-server/services"
)

// ChannelResolver maps a Slack channel id to its human-readable name.
// Implemented by the Slack client.
type ChannelResolver interface {
	ConversationName(ctx context.Context, channelID string) (string, error)
}

// SlackEventsHandler is the Slack Events API ingress. A message in channel
// #foo dispatches the handler registered at "slack-foo" with the message
// text as the payload.
type SlackEventsHandler struct {
	dispatcher *services.Dispatcher
	resolver   ChannelResolver
	log        *zap.Logger
}

func NewSlackEventsHandler(dispatcher *services.Dispatcher, resolver ChannelResolver, log *zap.Logger) *SlackEventsHandler {
	return &SlackEventsHandler{
		dispatcher: dispatcher,
		resolver:   resolver,
		log:        log,
	}
}

// HandleEvent godoc
// @Summary Slack Events API ingress
// @Description Answers url_verification challenges and routes channel messages to slack-<channel> handlers
// @Tags slack
// @Accept json
// @Produce json
// @Success 200 {object} models.Envelope
// @Router /slack_events [post]
func (h *SlackEventsHandler) HandleEvent(c *fiber.Ctx) error {
	var req models.SlackEventRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.Failure("the request contained malformed data"))
	}

	// Slack sends this once when the events URL is configured.
	if req.Type == "url_verification" {
		return c.JSON(fiber.Map{"challenge": req.Challenge})
	}

	name, err := h.resolver.ConversationName(c.Context(), req.Event.Channel)
	if err != nil {
		h.log.Warn("slack channel lookup failed",
			zap.String("channel", req.Event.Channel),
			zap.Error(err))
		return c.JSON(models.Failure("unable to resolve slack channel"))
	}

	uri := "slack-" + name
	envelope := h.dispatcher.Dispatch(c.Context(), uri, req.Event.Text, "slack:"+req.Event.User)
	if !envelope.Status {
		h.log.Warn("slack-triggered invocation failed",
			zap.String("uri", uri),
			zap.Any("cause", envelope.Data))
	}

	return c.JSON(envelope)
}
