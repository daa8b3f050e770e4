package serverutils

import (
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

// AdminLocal is the fiber.Ctx local holding the authenticated admin id.
const AdminLocal = "admin_id"

// SecretTokenHeader carries the secret registered with setWebhook.
const SecretTokenHeader = "X-Telegram-Bot-Api-Secret-Token"

// AdminClaims identify a chat admin to the console endpoints.
type AdminClaims struct {
	AdminID int64 `json:"admin_id"`
	jwt.RegisteredClaims
}

// IssueAdminToken signs a console token for adminID.
func IssueAdminToken(secret string, adminID int64, ttl time.Duration) (string, error) {
	claims := AdminClaims{
		AdminID: adminID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprint(adminID),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseAdminToken verifies tokenStr and checks the admin is still listed.
func ParseAdminToken(secret, tokenStr string, adminIDs []int64) (int64, error) {
	claims := &AdminClaims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return 0, fmt.Errorf("invalid token: %w", err)
	}
	for _, id := range adminIDs {
		if id == claims.AdminID {
			return id, nil
		}
	}
	return 0, fmt.Errorf("user %d is not an admin", claims.AdminID)
}

// AdminJwtMiddleware accepts the token from the Authorization header or,
// for browsers opening a websocket, the token query parameter.
func AdminJwtMiddleware(secret string, adminIDs []int64) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		if secret == "" {
			return ctx.Status(fiber.StatusNotFound).JSON(fiber.Map{"message": "Console disabled"})
		}

		tokenStr := ctx.Query("token")
		if tokenStr == "" {
			tokenStr = strings.TrimPrefix(ctx.Get("Authorization"), "Bearer ")
		}
		if tokenStr == "" {
			return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "Missing token"})
		}

		adminID, err := ParseAdminToken(secret, tokenStr, adminIDs)
		if err != nil {
			return ctx.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"message": "Invalid token"})
		}

		ctx.Locals(AdminLocal, adminID)
		return ctx.Next()
	}
}

// WebhookSecretMiddleware rejects webhook calls that do not carry secret.
// An empty secret accepts everything.
func WebhookSecretMiddleware(secret string) fiber.Handler {
	return func(ctx *fiber.Ctx) error {
		if secret == "" {
			return ctx.Next()
		}
		got := ctx.Get(SecretTokenHeader)
		if got == "" {
			got = ctx.Params("secret")
		}
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			return ctx.SendStatus(fiber.StatusUnauthorized)
		}
		return ctx.Next()
	}
}
