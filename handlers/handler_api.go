package handlers

import (
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"hookrunner-server/models"
	"hookrunner-server/services"
)

type HandlerAPI struct {
	registry   *services.Registry
	dispatcher *services.Dispatcher
	guard      *services.AuthGuard
	failures   services.FailureSink
	log        *zap.Logger
}

func NewHandlerAPI(registry *services.Registry, dispatcher *services.Dispatcher, guard *services.AuthGuard, failures services.FailureSink, log *zap.Logger) *HandlerAPI {
	return &HandlerAPI{
		registry:   registry,
		dispatcher: dispatcher,
		guard:      guard,
		failures:   failures,
		log:        log,
	}
}

// Upsert godoc
// @Summary Create or replace a handler
// @Description Register handler code at a URI, authorized by API key
// @Tags handlers
// @Accept json
// @Produce json
// @Param handler body models.UpsertHandlerRequest true "Handler to upsert"
// @Success 200 {object} models.Envelope
// @Router /upsert_handler [post]
func (h *HandlerAPI) Upsert(c *fiber.Ctx) error {
	var req models.UpsertHandlerRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.Failure("the request contained malformed data"))
	}

	revision, err := h.registry.Upsert(c.Context(), req.URI, req.Code, req.APIKey)
	if err != nil {
		return c.JSON(models.Failure(services.FailureMessage(err)))
	}

	return c.JSON(models.SuccessWithData(fiber.Map{"revision": revision}))
}

// Invoke godoc
// @Summary Invoke the handler at a URI
// @Description Run the registered handler with the raw request body as the event payload
// @Tags handlers
// @Accept plain
// @Produce json
// @Param uri path string true "Handler URI"
// @Success 200 {object} models.Envelope
// @Router /h/{uri} [post]
func (h *HandlerAPI) Invoke(c *fiber.Ctx) error {
	uri := c.Params("uri")
	payload := string(c.Body())

	invokedBy := c.IP()
	if invokedBy == "" {
		invokedBy = "anonymous"
	}

	envelope := h.dispatcher.Dispatch(c.Context(), uri, payload, invokedBy)
	return c.JSON(envelope)
}

// Find godoc
// @Summary Read back a handler's source
// @Description Authorized read: the presented API key must own the handler
// @Tags handlers
// @Accept json
// @Produce json
// @Param request body models.FindHandlerRequest true "Handler to find"
// @Success 200 {object} models.Envelope
// @Router /find_handler [post]
func (h *HandlerAPI) Find(c *fiber.Ctx) error {
	var req models.FindHandlerRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.Failure("the request contained malformed data"))
	}

	if _, ok := h.guard.VerifyKey(req.APIKey); !ok {
		return c.JSON(models.Failure("unknown api key"))
	}

	snapshot, err := h.registry.Resolve(req.URI)
	if err != nil {
		return c.JSON(models.Failure(services.FailureMessage(err)))
	}
	if err := h.guard.Authorize(snapshot.Owner, req.APIKey); err != nil {
		return c.JSON(models.Failure(services.FailureMessage(err)))
	}

	return c.JSON(models.SuccessWithData(fiber.Map{
		"uri":      snapshot.URI,
		"code":     snapshot.Source,
		"revision": snapshot.Revision,
	}))
}

// List godoc
// @Summary List handlers owned by an API key
// @Tags handlers
// @Accept json
// @Produce json
// @Param request body models.APIKeyRequest true "API key"
// @Success 200 {object} models.Envelope
// @Router /list_handlers [post]
func (h *HandlerAPI) List(c *fiber.Ctx) error {
	var req models.APIKeyRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.Failure("the request contained malformed data"))
	}

	if _, ok := h.guard.VerifyKey(req.APIKey); !ok {
		return c.JSON(models.Failure("unknown api key"))
	}

	return c.JSON(models.SuccessWithData(h.registry.OwnedBy(req.APIKey)))
}

// VerifyKey godoc
// @Summary Check whether an API key is known
// @Tags handlers
// @Accept json
// @Produce json
// @Param request body models.APIKeyRequest true "API key"
// @Success 200 {object} models.Envelope
// @Router /verify_key [post]
func (h *HandlerAPI) VerifyKey(c *fiber.Ctx) error {
	var req models.APIKeyRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.Failure("the request contained malformed data"))
	}

	tenant, ok := h.guard.VerifyKey(req.APIKey)
	if !ok {
		return c.JSON(models.Failure("unknown api key"))
	}

	return c.JSON(models.SuccessWithData(fiber.Map{"tenant": tenant}))
}

// LastError godoc
// @Summary Most recent failure for a URI
// @Description TTL-bounded; empty success when nothing failed recently
// @Tags handlers
// @Produce json
// @Param uri path string true "Handler URI"
// @Success 200 {object} models.Envelope
// @Router /h/{uri}/last_error [get]
func (h *HandlerAPI) LastError(c *fiber.Ctx) error {
	if h.failures == nil {
		return c.JSON(models.Failure("failure history is unavailable"))
	}

	rec, err := h.failures.LastFailure(c.Context(), c.Params("uri"))
	if err != nil {
		h.log.Warn("failure lookup failed", zap.Error(err))
		return c.JSON(models.Failure("failure history is unavailable"))
	}
	if rec == nil {
		return c.JSON(models.Success())
	}

	return c.JSON(models.SuccessWithData(rec))
}
