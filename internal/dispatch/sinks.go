package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/trackfleet/logistics-core/internal/domain"
)

// The outbound sinks POST JSON to provider webhooks. The base URL and API
// key come from config; an absent URL means the channel is disabled and the
// corresponding sink is simply not constructed.

// WebhookEmailSink submits emails to the transactional mail provider.
type WebhookEmailSink struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewWebhookEmailSink(baseURL, apiKey string, timeout time.Duration) *WebhookEmailSink {
	return &WebhookEmailSink{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *WebhookEmailSink) Send(ctx context.Context, to, subject, body string) error {
	return postJSON(ctx, s.client, s.baseURL, s.apiKey, map[string]string{
		"to":      to,
		"subject": subject,
		"body":    body,
	})
}

// WebhookSMSSink submits text messages to the SMS gateway.
type WebhookSMSSink struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewWebhookSMSSink(baseURL, apiKey string, timeout time.Duration) *WebhookSMSSink {
	return &WebhookSMSSink{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

func (s *WebhookSMSSink) Send(ctx context.Context, phone, text string) error {
	return postJSON(ctx, s.client, s.baseURL, s.apiKey, map[string]string{
		"to":   phone,
		"text": text,
	})
}

// WebPushSink posts the payload straight to the browser push endpoint
// recorded in the subscription.
type WebPushSink struct {
	client *http.Client
}

func NewWebPushSink(timeout time.Duration) *WebPushSink {
	return &WebPushSink{client: &http.Client{Timeout: timeout}}
}

func (s *WebPushSink) Send(ctx context.Context, sub domain.PushSubscription, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, sub.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create push request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("TTL", "86400")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("push endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("push endpoint status %d", resp.StatusCode)
	}
	return nil
}

func postJSON(ctx context.Context, client *http.Client, url, apiKey string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("provider status %d", resp.StatusCode)
	}
	return nil
}

// compile-time checks
var (
	_ EmailSink = (*WebhookEmailSink)(nil)
	_ SMSSink   = (*WebhookSMSSink)(nil)
	_ PushSink  = (*WebPushSink)(nil)
)
