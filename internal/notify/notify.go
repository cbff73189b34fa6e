// Package notify delivers outbound webhook events. Delivery is best-effort:
// a failed or slow webhook is logged and dropped, never retried, and never
// blocks or fails the chat response that triggered it.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"log/slog"

	"github.com/botforge/botcore/internal/logging"
)

// Event names sent in webhook payloads.
const (
	// EventConversationStarted fires on the first message of a conversation.
	EventConversationStarted = "conversation.started"
)

// Payload is the JSON body posted to the webhook endpoint.
type Payload struct {
	Event          string    `json:"event"`
	TenantID       string    `json:"tenantId"`
	ConversationID string    `json:"conversationId"`
	Message        string    `json:"message,omitempty"`
	OccurredAt     time.Time `json:"occurredAt"`
}

// Notifier sends events somewhere. The composer holds one; a nil check is
// not needed because NopNotifier stands in when webhooks are not configured.
type Notifier interface {
	// Notify delivers the event. Implementations must not block beyond a
	// short timeout and must swallow delivery failures.
	Notify(ctx context.Context, p Payload)
}

// NopNotifier discards every event.
type NopNotifier struct{}

// Notify does nothing.
func (NopNotifier) Notify(context.Context, Payload) {}

// WebhookNotifier posts events as JSON to a fixed URL.
type WebhookNotifier struct {
	url    string
	client *http.Client
}

// NewWebhookNotifier constructs a WebhookNotifier for the given URL.
func NewWebhookNotifier(url string) (*WebhookNotifier, error) {
	if url == "" {
		return nil, fmt.Errorf("notify: webhook URL must not be empty")
	}
	return &WebhookNotifier{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}, nil
}

// Notify posts the payload. Failures are logged at warn and dropped.
func (n *WebhookNotifier) Notify(ctx context.Context, p Payload) {
	log := logging.FromContext(ctx)
	if p.OccurredAt.IsZero() {
		p.OccurredAt = time.Now().UTC()
	}

	body, err := json.Marshal(p)
	if err != nil {
		log.Warn("notify: marshal payload", slog.String("error", err.Error()))
		return
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		log.Warn("notify: build request", slog.String("error", err.Error()))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		log.Warn("notify: webhook delivery failed",
			slog.String("event", p.Event),
			slog.String("tenant_id", p.TenantID),
			slog.String("error", err.Error()),
		)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Warn("notify: webhook rejected event",
			slog.String("event", p.Event),
			slog.String("tenant_id", p.TenantID),
			slog.Int("status", resp.StatusCode),
		)
	}
}
