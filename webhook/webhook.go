// Package webhook posts run notifications to a generic JSON endpoint,
// a Discord webhook or a Slack incoming webhook. The format is picked from
// the URL.
package webhook

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/s0up4200/posterarr/metrics"
)

// Events
const (
	EventStarted   = "started"
	EventCompleted = "completed"
	EventError     = "error"
	EventWarning   = "warning"
)

// Format is the payload shape sent to the endpoint
type Format string

const (
	FormatGeneric Format = "generic"
	FormatDiscord Format = "discord"
	FormatSlack   Format = "slack"
)

// FormatFor picks the payload format for a webhook URL
func FormatFor(url string) Format {
	lower := strings.ToLower(url)
	switch {
	case strings.Contains(lower, "discord"):
		return FormatDiscord
	case strings.Contains(lower, "slack"):
		return FormatSlack
	default:
		return FormatGeneric
	}
}

// Field is one detail attached to a notification
type Field struct {
	Name  string
	Value any
}

var colors = map[string]int{
	EventStarted:   0x3498db,
	EventCompleted: 0x2ecc71,
	EventError:     0xe74c3c,
	EventWarning:   0xf39c12,
}

const defaultColor = 0x95a5a6

// Option configures a Notifier
type Option func(*Notifier)

// WithHTTPClient replaces the HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(n *Notifier) {
		n.client = hc
	}
}

// WithClock overrides the time source
func WithClock(now func() time.Time) Option {
	return func(n *Notifier) {
		n.now = now
	}
}

// Notifier sends notifications. A Notifier with an empty URL does nothing.
type Notifier struct {
	url    string
	format Format
	client *http.Client
	now    func() time.Time
	logger zerolog.Logger
}

// New creates a notifier for url
func New(url string, logger zerolog.Logger, opts ...Option) *Notifier {
	n := &Notifier{
		url:    url,
		format: FormatFor(url),
		client: &http.Client{Timeout: 10 * time.Second},
		now:    time.Now,
		logger: logger.With().Str("component", "webhook").Logger(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Enabled reports whether a URL is configured
func (n *Notifier) Enabled() bool {
	return n != nil && n.url != ""
}

// Send posts one notification
func (n *Notifier) Send(ctx context.Context, event, message string, fields ...Field) error {
	if !n.Enabled() {
		return nil
	}

	var payload any
	switch n.format {
	case FormatDiscord:
		payload = n.discordPayload(event, message, fields)
	case FormatSlack:
		payload = n.slackPayload(event, message, fields)
	default:
		payload = n.genericPayload(event, message, fields)
	}

	err := n.post(ctx, payload)
	result := "success"
	if err != nil {
		result = "error"
	}
	metrics.WebhookDeliveries.WithLabelValues(event, result).Inc()
	return err
}

// NotifyStarted announces a run
func (n *Notifier) NotifyStarted(ctx context.Context, libraries, items int) {
	n.notify(ctx, EventStarted,
		fmt.Sprintf("Started processing %d items across %d libraries", items, libraries),
		Field{"libraries", libraries},
		Field{"items", items},
	)
}

// NotifyCompleted announces a finished run
func (n *Notifier) NotifyCompleted(ctx context.Context, processed, changed int, duration time.Duration) {
	secs := float64(duration.Round(100*time.Millisecond)) / float64(time.Second)
	n.notify(ctx, EventCompleted,
		fmt.Sprintf("Completed processing %d items, %d changed in %.1fs", processed, changed, secs),
		Field{"processed", processed},
		Field{"changed", changed},
		Field{"duration_seconds", secs},
	)
}

// NotifyError announces a failed run
func (n *Notifier) NotifyError(ctx context.Context, msg string) {
	n.notify(ctx, EventError, "Error during processing: "+msg, Field{"error", msg})
}

func (n *Notifier) notify(ctx context.Context, event, message string, fields ...Field) {
	if err := n.Send(ctx, event, message, fields...); err != nil {
		n.logger.Warn().Err(err).Str("event", event).Msg("Failed to send webhook notification")
	}
}

func (n *Notifier) post(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

type genericPayload struct {
	Event     string         `json:"event"`
	Message   string         `json:"message"`
	Timestamp float64        `json:"timestamp"`
	Details   map[string]any `json:"details"`
}

func (n *Notifier) genericPayload(event, message string, fields []Field) genericPayload {
	details := make(map[string]any, len(fields))
	for _, f := range fields {
		details[f.Name] = f.Value
	}
	return genericPayload{
		Event:     event,
		Message:   message,
		Timestamp: float64(n.now().UnixNano()) / float64(time.Second),
		Details:   details,
	}
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	Color       int            `json:"color"`
	Timestamp   string         `json:"timestamp"`
	Footer      map[string]any `json:"footer"`
	Fields      []discordField `json:"fields,omitempty"`
}

type discordPayload struct {
	Embeds []discordEmbed `json:"embeds"`
}

func (n *Notifier) discordPayload(event, message string, fields []Field) discordPayload {
	color, ok := colors[event]
	if !ok {
		color = defaultColor
	}

	embed := discordEmbed{
		Title:       "posterarr: " + titleCase(event),
		Description: message,
		Color:       color,
		Timestamp:   n.now().UTC().Format(time.RFC3339),
		Footer:      map[string]any{"text": "posterarr notification"},
	}
	for _, f := range fields {
		embed.Fields = append(embed.Fields, discordField{
			Name:   titleCase(f.Name),
			Value:  fmt.Sprint(f.Value),
			Inline: true,
		})
	}
	return discordPayload{Embeds: []discordEmbed{embed}}
}

type slackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

type slackAttachment struct {
	Color  string       `json:"color"`
	Title  string       `json:"title"`
	Text   string       `json:"text"`
	TS     int64        `json:"ts"`
	Fields []slackField `json:"fields,omitempty"`
}

type slackPayload struct {
	Attachments []slackAttachment `json:"attachments"`
}

func (n *Notifier) slackPayload(event, message string, fields []Field) slackPayload {
	color, ok := colors[event]
	if !ok {
		color = defaultColor
	}

	att := slackAttachment{
		Color: fmt.Sprintf("#%06x", color),
		Title: "posterarr: " + titleCase(event),
		Text:  message,
		TS:    n.now().Unix(),
	}
	for _, f := range fields {
		att.Fields = append(att.Fields, slackField{
			Title: titleCase(f.Name),
			Value: fmt.Sprint(f.Value),
			Short: true,
		})
	}
	return slackPayload{Attachments: []slackAttachment{att}}
}

// titleCase turns "duration_seconds" into "Duration Seconds"
func titleCase(s string) string {
	words := strings.Fields(strings.ReplaceAll(s, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
