package controller

import (
	"fmt"
	"strconv"

	"ai-genbot-gateway/internal/constant"
	"ai-genbot-gateway/internal/entity"
	"ai-genbot-gateway/internal/pkg/logger"
	"ai-genbot-gateway/internal/service"
)

type IAdminController interface {
	RegisterRoutes(r *Router)
	Broadcast(c *Context) error
	UserStats(c *Context) error
	Ban(c *Context) error
	Unban(c *Context) error
	SetGlobalSystem(c *Context) error
	Logs(c *Context) error
	Restart(c *Context) error
	UpdateModels(c *Context) error
	Performance(c *Context) error
}

type adminController struct {
	admin  service.IAdminService
	gate   service.IQuotaGate
	logger logger.ILogger
}

func NewAdminController(admin service.IAdminService, gate service.IQuotaGate, log logger.ILogger) IAdminController {
	return &adminController{admin: admin, gate: gate, logger: log}
}

func (ctl *adminController) RegisterRoutes(r *Router) {
	g := r.Group(AdminOnly(ctl.gate))
	g.Command(constant.CmdAdminBroadcast, "", ctl.Broadcast)
	g.Command(constant.CmdAdminUserStats, "", ctl.UserStats)
	g.Command(constant.CmdAdminBan, "", ctl.Ban)
	g.Command(constant.CmdAdminUnban, "", ctl.Unban)
	g.Command(constant.CmdAdminSetGlobal, "", ctl.SetGlobalSystem)
	g.Command(constant.CmdAdminLogs, "", ctl.Logs)
	g.Command(constant.CmdAdminRestart, "", ctl.Restart)
	g.Command(constant.CmdAdminUpdate, "", ctl.UpdateModels)
	g.Command(constant.CmdAdminPerformance, "", ctl.Performance)
}

// Broadcast runs in the background; the admin gets a report when it ends.
func (ctl *adminController) Broadcast(c *Context) error {
	if c.Args == "" {
		return usage(constant.CmdAdminBroadcast + " <text>")
	}
	if err := c.Reply("📣 Broadcasting…"); err != nil {
		return err
	}
	bg := c.Detach()
	go func() {
		res, err := ctl.admin.Broadcast(bg.Ctx(), bg.Args)
		if err != nil {
			ctl.logger.Error("ADMIN", "Broadcast failed", map[string]interface{}{"error": err.Error()})
			_ = bg.Reply("❌ Broadcast failed: " + err.Error())
			return
		}
		_ = bg.Reply(fmt.Sprintf("📣 Broadcast finished: %d sent, %d failed.", res.Sent, res.Failed))
	}()
	return nil
}

func (ctl *adminController) UserStats(c *Context) error {
	stats, err := ctl.admin.UserStats(c.Ctx())
	if err != nil {
		return err
	}
	return c.Reply(service.RenderUserStats(stats))
}

func (ctl *adminController) Ban(c *Context) error {
	userID, err := targetUser(c, constant.CmdAdminBan)
	if err != nil {
		return err
	}
	if err := ctl.admin.Ban(c.Ctx(), userID); err != nil {
		return err
	}
	return c.Reply(fmt.Sprintf("🚫 User %d banned.", userID))
}

func (ctl *adminController) Unban(c *Context) error {
	userID, err := targetUser(c, constant.CmdAdminUnban)
	if err != nil {
		return err
	}
	if err := ctl.admin.Unban(c.Ctx(), userID); err != nil {
		return err
	}
	return c.Reply(fmt.Sprintf("✅ User %d unbanned.", userID))
}

func (ctl *adminController) SetGlobalSystem(c *Context) error {
	if c.Args == "" {
		return usage(constant.CmdAdminSetGlobal + " <text>")
	}
	if err := ctl.admin.SetGlobalSystemPrompt(c.Ctx(), c.Args); err != nil {
		return err
	}
	return c.Reply("✅ Global system message updated.")
}

// Logs takes an optional level and an optional count, in either order.
func (ctl *adminController) Logs(c *Context) error {
	level, limit := "", 0
	for _, f := range c.Fields() {
		if n, err := strconv.Atoi(f); err == nil {
			limit = n
			continue
		}
		level = f
	}
	text, err := ctl.admin.Logs(level, limit)
	if err != nil {
		return err
	}
	return c.Reply(text)
}

func (ctl *adminController) Restart(c *Context) error {
	if err := c.Reply("♻️ Restarting…"); err != nil {
		ctl.logger.Warn("ADMIN", "Failed to acknowledge restart", map[string]interface{}{"error": err.Error()})
	}
	bg := c.Detach()
	go ctl.admin.Restart(bg.Ctx())
	return nil
}

func (ctl *adminController) UpdateModels(c *Context) error {
	summary, err := ctl.admin.UpdateModels(c.Ctx())
	if err != nil {
		return c.Reply("⚠️ " + err.Error() + "\n\n" + summary)
	}
	return c.Reply("🔄 Catalogs refreshed.\n\n" + summary)
}

func (ctl *adminController) Performance(c *Context) error {
	text, err := ctl.admin.Performance(c.Ctx())
	if err != nil {
		return err
	}
	return c.Reply(text)
}

func targetUser(c *Context, command string) (int64, error) {
	fields := c.Fields()
	if len(fields) != 1 {
		return 0, usage(command + " <user id>")
	}
	id, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, entity.NewInputError("%q is not a user id.", fields[0])
	}
	return id, nil
}
