// Package webhook delivers notifications by POSTing them to the client
// app's notification endpoint, which handles per-user push/in-app fan-in.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/linnemanlabs/solace/internal/notify"
)

const httpTimeout = 10 * time.Second

// Notifier posts notifications to a configured webhook URL.
type Notifier struct {
	url    string
	token  string
	client *http.Client
}

// New creates a webhook notifier. If url is empty, Notify is a no-op.
func New(url, token string) *Notifier {
	return &Notifier{
		url:    url,
		token:  token,
		client: &http.Client{Timeout: httpTimeout},
	}
}

// Notify posts one notification. If no URL is configured, it returns nil
// immediately.
func (n *Notifier) Notify(ctx context.Context, msg *notify.Notification) error {
	if n.url == "" {
		return nil
	}

	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("webhook: marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if n.token != "" {
		req.Header.Set("Authorization", "Bearer "+n.token)
	}

	resp, err := n.client.Do(req) //nolint:gosec // G704: url is from trusted config, not user input
	if err != nil {
		return fmt.Errorf("webhook: post notification: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("webhook: endpoint returned %d: %s", resp.StatusCode, string(respBody))
	}
	return nil
}
