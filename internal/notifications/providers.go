package notifications

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/fieldserve-io/fieldserve/internal/config"
)

// SMSSender delivers a short text message to an E.164 number.
type SMSSender interface {
	Send(ctx context.Context, toE164, body string) error
}

// PushSender delivers a browser push payload to a recipient.
type PushSender interface {
	Send(ctx context.Context, recipientID int, subject, body string) error
}

// WebhookSMSSender posts SMS payloads to a provider gateway. The actual
// carrier integration lives behind the webhook.
type WebhookSMSSender struct {
	cfg    config.WebhookChannelConfig
	client *http.Client
}

// NewWebhookSMSSender creates an SMS sender backed by an HTTP gateway
func NewWebhookSMSSender(cfg config.WebhookChannelConfig) *WebhookSMSSender {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookSMSSender{cfg: cfg, client: &http.Client{Timeout: timeout}}
}

func (s *WebhookSMSSender) Send(ctx context.Context, toE164, body string) error {
	if !s.cfg.Enabled || s.cfg.URL == "" {
		log.Printf("sms: gateway disabled, dropping message to %s", toE164)
		return nil
	}
	return postJSON(ctx, s.client, s.cfg.URL, s.cfg.Token, map[string]string{
		"to":   toE164,
		"body": body,
	})
}

// WebhookPushSender posts browser push payloads to a push gateway.
type WebhookPushSender struct {
	cfg    config.WebhookChannelConfig
	client *http.Client
}

// NewWebhookPushSender creates a push sender backed by an HTTP gateway
func NewWebhookPushSender(cfg config.WebhookChannelConfig) *WebhookPushSender {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookPushSender{cfg: cfg, client: &http.Client{Timeout: timeout}}
}

func (s *WebhookPushSender) Send(ctx context.Context, recipientID int, subject, body string) error {
	if !s.cfg.Enabled || s.cfg.URL == "" {
		log.Printf("push: gateway disabled, dropping message to employee %d", recipientID)
		return nil
	}
	return postJSON(ctx, s.client, s.cfg.URL, s.cfg.Token, map[string]any{
		"recipient_id": recipientID,
		"subject":      subject,
		"body":         body,
	})
}

func postJSON(ctx context.Context, client *http.Client, url, token string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}
