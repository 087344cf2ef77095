package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// WebhookNotifier posts every DOWN alert as JSON to an operator endpoint.
type WebhookNotifier struct {
	URL    string
	Method string
	Remark string

	// Client is shared with the other notifiers of a Dispatcher; nil uses
	// http.DefaultClient.
	Client *http.Client
}

// webhookPayload mirrors the live "monitor.down" event. The owner's email
// and phone are never included.
type webhookPayload struct {
	Event       string `json:"event"`
	MonitorID   string `json:"monitor_id"`
	MonitorName string `json:"monitor_name"`
	MonitorURL  string `json:"monitor_url"`
	Reason      string `json:"reason,omitempty"`
	DetectedAt  string `json:"detected_at"`
	LocalTime   string `json:"local_time"`
	Remark      string `json:"remark,omitempty"`
}

func (w *WebhookNotifier) Type() string { return "webhook" }

func (w *WebhookNotifier) Validate() error {
	if w.URL == "" {
		return errors.New("webhook: url is required")
	}
	u, err := url.Parse(w.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("webhook: url %q is not an http(s) URL", w.URL)
	}
	switch w.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		return nil
	case "":
		return errors.New("webhook: method is required")
	default:
		return fmt.Errorf("webhook: method %s cannot carry a body", w.Method)
	}
}

func (w *WebhookNotifier) Send(ctx context.Context, event AlertEvent) error {
	body, err := json.Marshal(webhookPayload{
		Event:       "monitor." + event.Type,
		MonitorID:   event.MonitorID,
		MonitorName: event.DisplayName(),
		MonitorURL:  event.Target,
		Reason:      event.Reason,
		DetectedAt:  event.Timestamp.UTC().Format(time.RFC3339),
		LocalTime:   event.LocalTime(),
		Remark:      w.Remark,
	})
	if err != nil {
		return fmt.Errorf("webhook: marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, w.Method, w.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Downwatch-Event", "monitor."+event.Type)

	resp, err := httpClient(w.Client).Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send request: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: %s %s returned %d for monitor %s",
			w.Method, w.URL, resp.StatusCode, event.MonitorID)
	}
	return nil
}

func httpClient(c *http.Client) *http.Client {
	if c == nil {
		return http.DefaultClient
	}
	return c
}
