package slack

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/gatekeeper/internal/observability/notify"
)

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Error(t, err, "webhook url is required")
}

func TestFormatMessageIncludesFields(t *testing.T) {
	client, err := NewClient(Config{
		WebhookURL: "https://hooks.slack.com/services/test",
		Channel:    "#security",
		Username:   "bot",
		Timeout:    time.Second,
	})
	require.NoError(t, err)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msg := client.formatMessage(notify.SecurityEvent{
		Kind:       notify.EventAttemptLimitReached,
		Realm:      "accounts",
		Principal:  "alice",
		Host:       "10.0.0.7",
		Detail:     "5 consecutive failures",
		OccurredAt: at,
		Metadata:   map[string]string{"b": "2", "a": "1"},
	})

	assert.Equal(t, "bot", msg["username"])
	assert.Equal(t, "#security", msg["channel"])

	text, ok := msg["text"].(string)
	require.True(t, ok)
	for _, want := range []string{
		"*Security alert* `attempt_limit_reached`",
		"Severity: warning",
		"Realm: accounts",
		"Principal: alice",
		"Host: 10.0.0.7",
		"Detail: 5 consecutive failures",
		"Timestamp: 2026-03-01T12:00:00Z",
	} {
		assert.Contains(t, text, want)
	}
	assert.Less(t, strings.Index(text, "a: 1"), strings.Index(text, "b: 2"), "metadata is sorted")
}

func TestFormatMessageEscapesPrincipal(t *testing.T) {
	client, err := NewClient(Config{WebhookURL: "https://hooks.slack.com/services/test"})
	require.NoError(t, err)

	msg := client.formatMessage(notify.SecurityEvent{Principal: "<!channel> & co"})
	text, ok := msg["text"].(string)
	require.True(t, ok)
	assert.Contains(t, text, "&lt;!channel&gt; &amp; co")
	assert.NotContains(t, msg, "channel")
	assert.Equal(t, "gatekeeper", msg["username"])
}

func TestSendSecurityEventPosts(t *testing.T) {
	got := make(chan map[string]any, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		got <- body
		_, _ = w.Write([]byte("ok"))
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{WebhookURL: srv.URL, Client: srv.Client()})
	require.NoError(t, err)
	require.NoError(t, client.SendSecurityEvent(context.Background(), notify.SecurityEvent{Principal: "alice"}))

	body := <-got
	assert.Contains(t, body["text"], "Principal: alice")
}

func TestSendSecurityEventStopsOnContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{WebhookURL: srv.URL, RetryLimit: 5, Client: srv.Client()})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err = client.SendSecurityEvent(ctx, notify.SecurityEvent{})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
