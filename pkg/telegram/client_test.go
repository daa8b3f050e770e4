package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSendMessageDecodesResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		var body map[string]interface{}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "hi", body["text"])
		_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":77,"chat":{"id":5,"type":"private"}}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL, "TOKEN")
	msg, err := c.SendMessage(context.Background(), 5, "hi", SendOptions{})
	require.NoError(t, err)
	assert.Equal(t, int64(77), msg.MessageID)
	assert.Equal(t, int64(5), msg.Chat.ID)
}

func TestEditNotModifiedIsMatchable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"ok":false,"error_code":400,"description":"Bad Request: message is not modified: specified new message content and reply markup are exactly the same"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL, "TOKEN")
	err := c.EditMessageText(context.Background(), 1, 2, "same")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMessageNotModified))

	var reqErr *RequestError
	require.True(t, errors.As(err, &reqErr))
	assert.Equal(t, 400, reqErr.StatusCode)
	assert.False(t, reqErr.Retryable())
}

func TestSendPhotoByURLAndByFile(t *testing.T) {
	var gotMultipart bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
			require.NoError(t, r.ParseMultipartForm(1<<20))
			assert.Equal(t, "9", r.FormValue("chat_id"))
			_, hdr, err := r.FormFile("photo")
			require.NoError(t, err)
			assert.Equal(t, "a.png", hdr.Filename)
			gotMultipart = true
		} else {
			var body map[string]interface{}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			assert.Equal(t, "https://x/a.png", body["photo"])
			assert.Equal(t, "cat in hat", body["caption"])
		}
		_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":1}}`)
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL, "TOKEN")
	_, err := c.SendPhoto(context.Background(), 9, InputFile{URL: "https://x/a.png"}, "cat in hat")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "a.png")
	require.NoError(t, os.WriteFile(path, []byte("png"), 0o600))
	_, err = c.SendPhoto(context.Background(), 9, InputFile{Path: path}, "")
	require.NoError(t, err)
	assert.True(t, gotMultipart)
}

func TestDownloadFileRespectsLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.HasSuffix(r.URL.Path, "/getFile"):
			_, _ = io.WriteString(w, `{"ok":true,"result":{"file_id":"f","file_path":"voice/f.ogg"}}`)
		case strings.HasSuffix(r.URL.Path, "/voice/f.ogg"):
			_, _ = io.WriteString(w, strings.Repeat("x", 64))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.Client(), srv.URL, "TOKEN")
	dst := filepath.Join(t.TempDir(), "f.ogg")

	n, err := c.DownloadFile(context.Background(), "f", dst, 1024)
	require.NoError(t, err)
	assert.Equal(t, int64(64), n)

	_, err = c.DownloadFile(context.Background(), "f", dst, 10)
	assert.Error(t, err)
}

func TestLargestPhoto(t *testing.T) {
	m := &Message{Photo: []PhotoSize{{FileID: "s", Width: 90, Height: 90}, {FileID: "l", Width: 800, Height: 600}, {FileID: "m", Width: 320, Height: 240}}}
	assert.Equal(t, "l", m.LargestPhoto().FileID)
	assert.Nil(t, (&Message{}).LargestPhoto())
}
