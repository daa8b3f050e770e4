package handler

import (
	"context"
	"encoding/json"

	"ai-genbot-gateway/internal/pkg/logger"
	"ai-genbot-gateway/internal/pkg/serverutils"
	"ai-genbot-gateway/pkg/telegram"

	"github.com/gofiber/fiber/v2"
)

// WebhookHandler receives updates pushed by the chat platform.
type WebhookHandler struct {
	dispatch telegram.UpdateHandler
	secret   string
	base     context.Context
	logger   logger.ILogger
}

// NewWebhookHandler dispatches on base rather than the request context so
// that work started by an update outlives the HTTP response.
func NewWebhookHandler(base context.Context, dispatch telegram.UpdateHandler, secret string, log logger.ILogger) *WebhookHandler {
	return &WebhookHandler{
		dispatch: dispatch,
		secret:   secret,
		base:     base,
		logger:   log,
	}
}

// Receive always answers 200 for a well-formed update; the platform would
// otherwise redeliver it.
func (h *WebhookHandler) Receive(c *fiber.Ctx) error {
	var update telegram.Update
	if err := json.Unmarshal(c.Body(), &update); err != nil {
		h.logger.Warn("WEBHOOK", "Malformed update", map[string]interface{}{"error": err.Error()})
		return fiber.NewError(fiber.StatusBadRequest, "malformed update")
	}

	h.dispatch(h.base, update)
	return c.SendStatus(fiber.StatusOK)
}

func (h *WebhookHandler) RegisterRoutes(router fiber.Router) {
	secret := serverutils.WebhookSecretMiddleware(h.secret)
	router.Post("/telegram/webhook", secret, h.Receive)
	router.Post("/telegram/webhook/:secret", secret, h.Receive)
}
