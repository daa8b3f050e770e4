package serverutils

import (
	"errors"

	"ai-genbot-gateway/internal/pkg/logger"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandler renders every unhandled error as {"message": ...}.
func ErrorHandler(log logger.ILogger) fiber.ErrorHandler {
	return func(ctx *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
		}
		if code >= fiber.StatusInternalServerError {
			log.Error("HTTP", "Request failed", map[string]interface{}{
				"path":  ctx.Path(),
				"error": err.Error(),
			})
			return ctx.Status(code).JSON(fiber.Map{"message": "Internal server error"})
		}
		return ctx.Status(code).JSON(fiber.Map{"message": err.Error()})
	}
}
