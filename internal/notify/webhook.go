// Package notify delivers escalation handoffs to a human-in-the-loop
// endpoint. Delivery is best-effort: the engine fires it in the background
// and failures are logged, never propagated to the request that triggered
// the escalation.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Escalation is the payload delivered to the handoff endpoint.
type Escalation struct {
	// Query is the user query that triggered the escalation.
	Query string `json:"query"`
	// Agents lists the agents whose trust flag reached concern.
	Agents []string `json:"agents"`
}

// Notifier delivers escalations. Implementations must be safe to call from
// multiple goroutines.
type Notifier interface {
	// Notify delivers one escalation. Errors are advisory; callers log and
	// drop them.
	Notify(ctx context.Context, esc Escalation) error
}

// Webhook is a Notifier that POSTs escalations as JSON to a fixed URL.
type Webhook struct {
	// url is the handoff endpoint.
	url string
	// client is the shared HTTP client with a short timeout.
	client *http.Client
}

// NewWebhook constructs a Webhook notifier targeting url.
func NewWebhook(url string) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

// Notify POSTs esc to the webhook URL.
func (w *Webhook) Notify(ctx context.Context, esc Escalation) error {
	payload, err := json.Marshal(esc)
	if err != nil {
		return fmt.Errorf("notify: marshal escalation: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("notify: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("notify: handoff endpoint returned HTTP %d", resp.StatusCode)
	}
	return nil
}

// Noop is a Notifier that silently drops every escalation. Used when no
// handoff endpoint is configured.
type Noop struct{}

// Notify discards the escalation.
func (Noop) Notify(context.Context, Escalation) error { return nil }
