// Package slack alerts reviewers to flagged captures via Slack incoming
// webhooks.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/seguravida/intake/internal/triage"
)

const httpTimeout = 10 * time.Second

// Notifier sends flagged captures to a Slack webhook.
type Notifier struct {
	webhookURL string
	client     *http.Client
}

// New creates a new Slack notifier. If webhookURL is empty, Send is a no-op.
func New(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: httpTimeout},
	}
}

// Send posts a flagged capture to the configured Slack webhook.
// If no webhook URL is configured, it returns nil immediately.
func (n *Notifier) Send(ctx context.Context, rec *triage.Record, flags []triage.Flag) error {
	if n.webhookURL == "" {
		return nil
	}

	msg := buildMessage(rec, flags)

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("slack: marshal message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("slack: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req) //nolint:gosec // G704: webhookURL is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("slack: post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("slack: webhook returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}

func buildMessage(rec *triage.Record, flags []triage.Flag) map[string]any {
	return map[string]any{
		"blocks": []map[string]any{
			headerBlock(rec),
			{"type": "divider"},
			fieldsBlock(rec, flags),
			{"type": "divider"},
			contextBlock(rec),
		},
	}
}

func headerBlock(rec *triage.Record) map[string]any {
	text := fmt.Sprintf("\U0001f6a9 Flagged capture: %s", rec.Subject.Name)

	return map[string]any{
		"type": "header",
		"text": map[string]any{
			"type": "plain_text",
			"text": text,
		},
	}
}

func fieldsBlock(rec *triage.Record, flags []triage.Flag) map[string]any {
	names := make([]string, 0, len(flags))
	for _, f := range flags {
		names = append(names, string(f))
	}

	fields := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Flags:* %s", strings.Join(names, ", ")),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Card:* %s", rec.Subject.CardNumber),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Heart rate:* %s", valueOrDash(rec.Vitals.HeartRate)),
		},
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("*Pressure:* %s", valueOrDash(rec.Vitals.Pressure)),
		},
	}

	return map[string]any{
		"type":   "section",
		"fields": fields,
	}
}

func contextBlock(rec *triage.Record) map[string]any {
	elements := []map[string]any{
		{
			"type": "mrkdwn",
			"text": fmt.Sprintf("intake • record %s • %s", rec.ID, rec.Timestamp.UTC().Format("2006-01-02 15:04 UTC")),
		},
	}

	return map[string]any{
		"type":     "context",
		"elements": elements,
	}
}

func valueOrDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "n/a"
	}
	return s
}
