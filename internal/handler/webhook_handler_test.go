package handler

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"ai-genbot-gateway/internal/pkg/logger"
	"ai-genbot-gateway/internal/pkg/serverutils"
	"ai-genbot-gateway/pkg/telegram"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookDispatchesUpdates(t *testing.T) {
	var got []telegram.Update
	dispatch := func(_ context.Context, u telegram.Update) { got = append(got, u) }

	app := fiber.New()
	NewWebhookHandler(context.Background(), dispatch, "s3cret", logger.NewNopLogger()).RegisterRoutes(app)

	body := `{"update_id": 77, "message": {"message_id": 5, "chat": {"id": 9}, "from": {"id": 9}, "text": "/start"}}`
	req := httptest.NewRequest("POST", "/telegram/webhook", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(serverutils.SecretTokenHeader, "s3cret")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	require.Len(t, got, 1)
	assert.EqualValues(t, 77, got[0].UpdateID)
	require.NotNil(t, got[0].Message)
	assert.Equal(t, "/start", got[0].Message.Text)

	req = httptest.NewRequest("POST", "/telegram/webhook", strings.NewReader(body))
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	req = httptest.NewRequest("POST", "/telegram/webhook/s3cret", strings.NewReader("{not json"))
	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.Len(t, got, 1)
}
