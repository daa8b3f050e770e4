package openai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"ai-genbot-gateway/pkg/llm"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChatSendsImagePartsAndModelOverride(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer key", r.Header.Get("Authorization"))

		var body struct {
			Model    string            `json:"model"`
			Messages []json.RawMessage `json:"messages"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "vision-model", body.Model)
		require.Len(t, body.Messages, 2)
		assert.Contains(t, string(body.Messages[1]), `"image_url"`)

		_, _ = io.WriteString(w, `{"choices":[{"message":{"content":"a cat"}}]}`)
	}))
	defer srv.Close()

	p := NewProvider("key", srv.URL, "default-model")
	out, err := p.Chat(context.Background(), []llm.Message{
		{Role: "system", Content: "describe"},
		{Role: "user", Content: "what is this", ImageURLs: []string{"https://x/a.png"}},
	}, llm.WithModel("vision-model"))
	require.NoError(t, err)
	assert.Equal(t, "a cat", out)
}

func TestChatReturnsStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"error":{"message":"slow down"}}`)
	}))
	defer srv.Close()

	_, err := NewProvider("", srv.URL, "m").Generate(context.Background(), "hi")
	var statusErr *llm.StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusTooManyRequests, statusErr.StatusCode)
}

func TestListModelsSorted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/models", r.URL.Path)
		_, _ = io.WriteString(w, `{"data":[{"id":"gpt-4o"},{"id":"claude"},{"id":"gpt-4o-mini"}]}`)
	}))
	defer srv.Close()

	models, err := NewProvider("", srv.URL, "m").ListModels(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"claude", "gpt-4o", "gpt-4o-mini"}, models)
}
