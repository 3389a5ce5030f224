package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"treasury/internal/types"
)

const maxResponseBodyRead = 4096

// WebhookSender POSTs alerts as JSON.
type WebhookSender struct {
	url        types.SecretString
	secret     types.SecretString
	userAgent  string
	httpClient *http.Client
	clock      types.Clock
}

// NewWebhookSender creates a sender for url. When secret is set, each request
// carries a SignatureHeader.
func NewWebhookSender(url, secret types.SecretString, userAgent string, httpClient *http.Client) *WebhookSender {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &WebhookSender{
		url:        url,
		secret:     secret,
		userAgent:  userAgent,
		httpClient: httpClient,
		clock:      types.RealClock{},
	}
}

// Send delivers payload. Any non-2xx status is an error.
func (w *WebhookSender) Send(ctx context.Context, payload types.AlertPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("webhook: encoding payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url.Unmask(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("webhook: creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if w.userAgent != "" {
		req.Header.Set("User-Agent", w.userAgent)
	}
	if w.secret.IsSet() {
		req.Header.Set(SignatureHeader, Sign(body, w.secret.Unmask(), w.clock.Now()))
	}
	if id := types.CorrelationID(ctx); id != "" {
		req.Header.Set("X-Request-Id", id)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: delivering alert %s: %w", payload.ID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyRead))
		return fmt.Errorf("webhook: alert %s rejected with status %d: %s", payload.ID, resp.StatusCode, bytes.TrimSpace(snippet))
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBodyRead))
	return nil
}
