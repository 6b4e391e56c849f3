package webhook

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func captureServer(t *testing.T, status int) (*httptest.Server, <-chan map[string]any) {
	t.Helper()

	bodies := make(chan map[string]any, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		raw, err := io.ReadAll(r.Body)
		assert.NoError(t, err)

		var body map[string]any
		assert.NoError(t, json.Unmarshal(raw, &body))
		bodies <- body

		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return server, bodies
}

func TestFormatFor(t *testing.T) {
	assert.Equal(t, FormatDiscord, FormatFor("https://discord.com/api/webhooks/1/abc"))
	assert.Equal(t, FormatSlack, FormatFor("https://hooks.slack.com/services/T/B/X"))
	assert.Equal(t, FormatGeneric, FormatFor("https://example.com/hook"))
}

func TestGenericPayload(t *testing.T) {
	server, bodies := captureServer(t, http.StatusOK)
	n := New(server.URL+"/hook", zerolog.Nop(), WithClock(func() time.Time { return fixedNow }))

	require.NoError(t, n.Send(context.Background(), EventStarted, "hello", Field{"items", 3}))

	body := <-bodies
	assert.Equal(t, "started", body["event"])
	assert.Equal(t, "hello", body["message"])
	assert.InDelta(t, float64(fixedNow.Unix()), body["timestamp"], 0.001)
	assert.Equal(t, map[string]any{"items": float64(3)}, body["details"])
}

func TestDiscordPayload(t *testing.T) {
	server, bodies := captureServer(t, http.StatusNoContent)
	n := New(server.URL+"/api/webhooks/discord", zerolog.Nop(), WithClock(func() time.Time { return fixedNow }))

	n.NotifyCompleted(context.Background(), 10, 4, 1500*time.Millisecond)

	body := <-bodies
	embeds, ok := body["embeds"].([]any)
	require.True(t, ok)
	require.Len(t, embeds, 1)

	embed := embeds[0].(map[string]any)
	assert.Equal(t, "posterarr: Completed", embed["title"])
	assert.Equal(t, "Completed processing 10 items, 4 changed in 1.5s", embed["description"])
	assert.Equal(t, float64(0x2ecc71), embed["color"])
	assert.Equal(t, "2026-03-01T12:00:00Z", embed["timestamp"])

	fields := embed["fields"].([]any)
	require.Len(t, fields, 3)
	assert.Equal(t, map[string]any{"name": "Duration Seconds", "value": "1.5", "inline": true}, fields[2])
}

func TestSlackPayload(t *testing.T) {
	server, bodies := captureServer(t, http.StatusOK)
	n := New(server.URL+"/services/slack", zerolog.Nop(), WithClock(func() time.Time { return fixedNow }))

	n.NotifyError(context.Background(), "plex unreachable")

	body := <-bodies
	attachments := body["attachments"].([]any)
	require.Len(t, attachments, 1)

	att := attachments[0].(map[string]any)
	assert.Equal(t, "#e74c3c", att["color"])
	assert.Equal(t, "Error during processing: plex unreachable", att["text"])
	assert.Equal(t, float64(fixedNow.Unix()), att["ts"])
}

func TestSendFailure(t *testing.T) {
	server, bodies := captureServer(t, http.StatusInternalServerError)
	n := New(server.URL, zerolog.Nop())

	err := n.Send(context.Background(), EventWarning, "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
	<-bodies

	// Notify helpers swallow the error
	n.NotifyStarted(context.Background(), 1, 2)
	<-bodies
}

func TestDisabled(t *testing.T) {
	n := New("", zerolog.Nop())
	assert.False(t, n.Enabled())
	assert.NoError(t, n.Send(context.Background(), EventStarted, "nothing"))

	var nilNotifier *Notifier
	assert.False(t, nilNotifier.Enabled())
}

func TestTitleCase(t *testing.T) {
	assert.Equal(t, "Duration Seconds", titleCase("duration_seconds"))
	assert.Equal(t, "Items", titleCase("items"))
	assert.Equal(t, "", titleCase(""))
}
