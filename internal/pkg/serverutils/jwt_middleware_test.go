package serverutils

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const secret = "console-secret"

func TestAdminTokenRoundTrip(t *testing.T) {
	token, err := IssueAdminToken(secret, 42, time.Hour)
	require.NoError(t, err)

	id, err := ParseAdminToken(secret, token, []int64{1, 42})
	require.NoError(t, err)
	assert.EqualValues(t, 42, id)

	_, err = ParseAdminToken(secret, token, []int64{1})
	assert.Error(t, err, "admin removed from the list")

	_, err = ParseAdminToken("other", token, []int64{42})
	assert.Error(t, err)

	expired, err := IssueAdminToken(secret, 42, -time.Minute)
	require.NoError(t, err)
	_, err = ParseAdminToken(secret, expired, []int64{42})
	assert.Error(t, err)
}

func consoleApp(secret string) *fiber.App {
	app := fiber.New()
	app.Get("/admin/stats", AdminJwtMiddleware(secret, []int64{42}), func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"admin": c.Locals(AdminLocal)})
	})
	return app
}

func TestAdminJwtMiddleware(t *testing.T) {
	app := consoleApp(secret)
	token, err := IssueAdminToken(secret, 42, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/admin/stats", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/admin/stats?token="+token, nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("GET", "/admin/stats", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest("GET", "/admin/stats", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestConsoleDisabledWithoutSecret(t *testing.T) {
	resp, err := consoleApp("").Test(httptest.NewRequest("GET", "/admin/stats", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
}

func TestWebhookSecretMiddleware(t *testing.T) {
	app := fiber.New()
	ok := func(c *fiber.Ctx) error { return c.SendStatus(fiber.StatusOK) }
	app.Post("/hook", WebhookSecretMiddleware("s3cret"), ok)
	app.Post("/hook/:secret", WebhookSecretMiddleware("s3cret"), ok)

	req := httptest.NewRequest("POST", "/hook", nil)
	req.Header.Set(SecretTokenHeader, "s3cret")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("POST", "/hook/s3cret", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("POST", "/hook/wrong", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest("POST", "/hook", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}
