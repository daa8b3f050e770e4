package controller

import (
	"ai-genbot-gateway/internal/config"
	"ai-genbot-gateway/internal/entity"
	"ai-genbot-gateway/internal/pkg/logger"
	"ai-genbot-gateway/internal/service"
)

// UsageCounter is the part of *metrics.Collector the dispatch layer feeds.
type UsageCounter interface {
	CountCommand(command string)
	CountError(kind string)
}

// AccessMiddleware drops updates from denied users. A non-empty allow list
// admits only its members; admins always pass.
func AccessMiddleware(access config.AccessConfig, log logger.ILogger) Middleware {
	admins := idSet(access.AdminIDs)
	allow := idSet(access.AllowIDs)
	deny := idSet(access.DenyIDs)
	return func(next HandlerFunc) HandlerFunc {
		return func(c *Context) error {
			if admins[c.UserID] {
				return next(c)
			}
			if deny[c.UserID] || (len(allow) > 0 && !allow[c.UserID]) {
				log.Debug("DISPATCH", "Update from user without access dropped", map[string]interface{}{
					"userId": c.UserID,
				})
				return nil
			}
			return next(c)
		}
	}
}

// TouchMiddleware keeps the users row and its per-class counters current.
func TouchMiddleware(users service.IUserService, log logger.ILogger) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(c *Context) error {
			if err := users.Touch(c.Ctx(), c.UserID, c.Kind.ModelClass()); err != nil {
				log.Warn("DISPATCH", "Failed to record user activity", map[string]interface{}{
					"userId": c.UserID,
					"error":  err.Error(),
				})
			}
			return next(c)
		}
	}
}

func MetricsMiddleware(counter UsageCounter) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(c *Context) error {
			name := c.Command
			if name == "" && c.Kind != "" {
				name = c.Kind.String()
			}
			if name != "" {
				counter.CountCommand(name)
			}
			err := next(c)
			if err != nil {
				counter.CountError(string(entity.ErrorKindOf(err)))
			}
			return err
		}
	}
}

// AdminOnly rejects non-admins at the boundary.
func AdminOnly(gate service.IQuotaGate) Middleware {
	return func(next HandlerFunc) HandlerFunc {
		return func(c *Context) error {
			if !gate.IsAdmin(c.UserID) {
				return entity.NewInputError("This command is for admins only.")
			}
			return next(c)
		}
	}
}

func idSet(ids []int64) map[int64]bool {
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
