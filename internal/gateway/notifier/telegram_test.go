package notifier

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTelegram(baseURL string) *Telegram {
	t := NewTelegram("token", "chat")
	t.baseURL = baseURL
	t.sleep = func(time.Duration) {}
	return t
}

func TestTelegramSendText(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/bottoken/sendMessage", r.URL.Path)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := newTestTelegram(srv.URL).SendText("*hello*")
	require.NoError(t, err)
	assert.Equal(t, "chat", got["chat_id"])
	assert.Equal(t, "*hello*", got["text"])
	assert.Equal(t, "Markdown", got["parse_mode"])
}

func TestTelegramSendTextRetriesThenSucceeds(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	err := newTestTelegram(srv.URL).SendText("msg")
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestTelegramSendTextExhaustsRetries(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := newTestTelegram(srv.URL).SendText("msg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
	assert.Equal(t, 3, calls)
}

func TestTelegramSendTextMissingCredentials(t *testing.T) {
	err := NewTelegram("", "").SendText("msg")
	assert.Error(t, err)
}
