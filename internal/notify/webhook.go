package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	wterrors "github.com/randalmurphal/wtsync/internal/errors"
	"github.com/randalmurphal/wtsync/internal/sanitize"
)

// Webhook defaults.
const (
	DefaultWebhookTimeout  = 10 * time.Second
	DefaultWebhookRetries  = 3
	defaultWebhookWaitMin  = 200 * time.Millisecond
	defaultWebhookWaitMax  = 5 * time.Second
	webhookUserAgent       = "wtsync-notifier"
	webhookContentTypeJSON = "application/json"
)

// Webhook POSTs events as JSON, retrying connection errors and 5xx/429
// responses with backoff.
type Webhook struct {
	url    string
	client *retryablehttp.Client
	logger *slog.Logger
}

// WebhookOption configures a Webhook.
type WebhookOption func(*Webhook)

// WithWebhookLogger sets the logger.
func WithWebhookLogger(logger *slog.Logger) WebhookOption {
	return func(w *Webhook) {
		w.logger = logger
	}
}

// WithRetries sets how many times a failed delivery is retried.
func WithRetries(n int) WebhookOption {
	return func(w *Webhook) {
		w.client.RetryMax = n
	}
}

// WithBackoff sets the wait bounds between retries.
func WithBackoff(minWait, maxWait time.Duration) WebhookOption {
	return func(w *Webhook) {
		w.client.RetryWaitMin = minWait
		w.client.RetryWaitMax = maxWait
	}
}

// NewWebhook validates rawURL and returns a Webhook targeting it.
func NewWebhook(rawURL string, opts ...WebhookOption) (*Webhook, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, wterrors.NewConfigInvalid("sync.notification_channels",
			fmt.Sprintf("webhook url %q must be an absolute http(s) URL", sanitize.RedactString(rawURL)))
	}

	client := retryablehttp.NewClient()
	client.RetryMax = DefaultWebhookRetries
	client.RetryWaitMin = defaultWebhookWaitMin
	client.RetryWaitMax = defaultWebhookWaitMax
	client.HTTPClient.Timeout = DefaultWebhookTimeout
	client.Logger = nil

	w := &Webhook{url: rawURL, client: client}
	for _, opt := range opts {
		opt(w)
	}
	if w.logger == nil {
		w.logger = slog.Default()
	}
	return w, nil
}

// Notify delivers ev. Non-2xx responses after retries are errors.
func (w *Webhook) Notify(ctx context.Context, ev Event) error {
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal webhook event: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", webhookContentTypeJSON)
	req.Header.Set("User-Agent", webhookUserAgent)

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver webhook: %s", sanitize.RedactString(err.Error()))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	w.logger.Debug("webhook delivered", "sync_id", ev.OperationID, "status", resp.StatusCode)
	return nil
}
