package pagerduty

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/gatekeeper/internal/observability/notify"
)

func TestNewClientValidation(t *testing.T) {
	_, err := NewClient(Config{})
	assert.Error(t, err, "routing key is required")
}

func TestBuildEventDefaults(t *testing.T) {
	client, err := NewClient(Config{RoutingKey: "key", Timeout: time.Second})
	require.NoError(t, err)

	event := client.buildEvent(notify.SecurityEvent{
		Kind:      notify.EventAttemptLimitReached,
		Realm:     "accounts",
		Principal: "alice",
		Metadata:  map[string]string{"attempts": "5", "realm": "ignored"},
	})

	assert.Equal(t, "trigger", event["event_action"])
	assert.Equal(t, "attempt_limit_reached:accounts:alice", event["dedup_key"])

	payload, ok := event["payload"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, notify.SeverityWarning, payload["severity"])
	assert.Equal(t, "gatekeeper", payload["source"])
	assert.Equal(t, "gatekeeper", payload["component"])
	assert.Equal(t, "attempt_limit_reached for alice in realm accounts", payload["summary"])

	custom, ok := payload["custom_details"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "5", custom["attempts"])
	assert.Equal(t, "accounts", custom["realm"], "metadata never overrides event fields")
}

func TestSendSecurityEventRetries(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body["routing_key"] != "key" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if calls.Add(1) == 1 {
			http.Error(w, "try again", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{RoutingKey: "key", Endpoint: srv.URL, RetryLimit: 1, Client: srv.Client()})
	require.NoError(t, err)
	require.NoError(t, client.SendSecurityEvent(context.Background(), notify.SecurityEvent{Principal: "alice"}))
	assert.Equal(t, int32(2), calls.Load())
}

func TestSendSecurityEventReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "invalid routing key", http.StatusBadRequest)
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(Config{RoutingKey: "key", Endpoint: srv.URL, Client: srv.Client()})
	require.NoError(t, err)
	err = client.SendSecurityEvent(context.Background(), notify.SecurityEvent{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "400")
	assert.Contains(t, err.Error(), "invalid routing key")
}
