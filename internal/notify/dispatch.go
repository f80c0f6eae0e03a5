package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/flowyard/flowyard/internal/debug"
)

// Payload is the JSON body posted to the webhook for one event.
type Payload struct {
	Type       string    `json:"type"` // "transition", "assignment", "blocked", "unblocked"
	DemandID   int64     `json:"demand_id"`
	ExternalID string    `json:"external_id,omitempty"`
	RefID      int64     `json:"ref_id"`
	At         time.Time `json:"at"`
}

// DispatchResult records the outcome of one notification dispatch.
type DispatchResult struct {
	Channel string `json:"channel"` // "webhook" or "log"
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// Dispatcher delivers event payloads. With a webhook URL configured it posts
// JSON; without one it logs the event and counts that as delivered, so runs
// without a receiver do not accumulate an unbounded pending set.
type Dispatcher struct {
	webhookURL string
	httpClient *http.Client
}

// NewDispatcher creates a dispatcher. webhookURL may be empty.
func NewDispatcher(webhookURL string) *Dispatcher {
	return &Dispatcher{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// Send delivers one payload.
func (d *Dispatcher) Send(ctx context.Context, payload *Payload) DispatchResult {
	if d.webhookURL == "" {
		debug.Logf("notify: [%s] demand %d ref %d at %s\n", payload.Type, payload.DemandID, payload.RefID, payload.At)
		return DispatchResult{Channel: "log", Success: true}
	}

	result := DispatchResult{Channel: "webhook"}
	if err := d.sendWebhook(ctx, payload); err != nil {
		result.Error = err.Error()
		return result
	}
	result.Success = true
	return result
}

func (d *Dispatcher) sendWebhook(ctx context.Context, payload *Payload) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", d.webhookURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "flowyard-notify/1.0")

	resp, err := d.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}
