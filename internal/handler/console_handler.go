package handler

import (
	"ai-genbot-gateway/internal/config"
	"ai-genbot-gateway/internal/pkg/logger"
	"ai-genbot-gateway/internal/pkg/serverutils"
	"ai-genbot-gateway/internal/service"
	internalWS "ai-genbot-gateway/internal/websocket"
	"ai-genbot-gateway/pkg/metrics"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// ConsoleHandler serves the admin console: a live feed of job events plus
// the stats and broadcast operations the chat admins also have.
type ConsoleHandler struct {
	admin     service.IAdminService
	jobs      service.IJobService
	collector *metrics.Collector
	hub       *internalWS.Hub
	access    config.AccessConfig
	logger    logger.ILogger
}

func NewConsoleHandler(
	admin service.IAdminService,
	jobs service.IJobService,
	collector *metrics.Collector,
	hub *internalWS.Hub,
	access config.AccessConfig,
	log logger.ILogger,
) *ConsoleHandler {
	return &ConsoleHandler{
		admin:     admin,
		jobs:      jobs,
		collector: collector,
		hub:       hub,
		access:    access,
		logger:    log,
	}
}

// ServeWs upgrades an authenticated request into a job event stream.
func (h *ConsoleHandler) ServeWs(c *fiber.Ctx) error {
	adminID, ok := c.Locals(serverutils.AdminLocal).(int64)
	if !ok {
		return fiber.ErrUnauthorized
	}
	if !websocket.IsWebSocketUpgrade(c) {
		return fiber.ErrUpgradeRequired
	}
	return websocket.New(func(conn *websocket.Conn) {
		h.logger.Info("CONSOLE", "Starting event stream", map[string]interface{}{"adminId": adminID})
		internalWS.ServeWs(h.hub, conn, adminID)
		h.logger.Info("CONSOLE", "Event stream ended", map[string]interface{}{"adminId": adminID})
	})(c)
}

// GetStats returns the usage totals and a queue summary.
func (h *ConsoleHandler) GetStats(c *fiber.Ctx) error {
	totals, err := h.collector.Snapshot(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{
		"usage":    totals,
		"queue":    h.jobs.QueueStatus(c.UserContext()),
		"consoles": h.hub.Connected(),
	})
}

// GetUsers returns the same per-user statistics as /user_stats.
func (h *ConsoleHandler) GetUsers(c *fiber.Ctx) error {
	stats, err := h.admin.UserStats(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"data": stats})
}

// Broadcast messages every known chat user.
func (h *ConsoleHandler) Broadcast(c *fiber.Ctx) error {
	type Request struct {
		Text string `json:"text"`
	}
	var req Request
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	if req.Text == "" {
		return fiber.NewError(fiber.StatusBadRequest, "text is required")
	}

	res, err := h.admin.Broadcast(c.UserContext(), req.Text)
	if err != nil {
		return err
	}
	h.logger.Info("CONSOLE", "Broadcast from console", map[string]interface{}{
		"adminId": c.Locals(serverutils.AdminLocal),
		"sent":    res.Sent,
		"failed":  res.Failed,
	})
	return c.JSON(fiber.Map{"sent": res.Sent, "failed": res.Failed})
}

func (h *ConsoleHandler) RegisterRoutes(router fiber.Router) {
	console := router.Group("/admin")
	console.Use(serverutils.AdminJwtMiddleware(h.access.ConsoleSecret, h.access.AdminIDs))
	console.Get("/stats", h.GetStats)
	console.Get("/users", h.GetUsers)
	console.Post("/broadcast", h.Broadcast)
	console.Get("/events", h.ServeWs)
}
