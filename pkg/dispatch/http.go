package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const defaultWebhookTimeout = 30 * time.Second

// HTTPWebhookCaller delivers webhook requests with a bounded timeout. A non-2xx
// response is an error: the caller records the failure on the rule execution.
type HTTPWebhookCaller struct {
	client  *http.Client
	timeout time.Duration
	logger  *slog.Logger
}

func NewHTTPWebhookCaller(logger *slog.Logger) *HTTPWebhookCaller {
	return &HTTPWebhookCaller{
		client:  &http.Client{},
		timeout: defaultWebhookTimeout,
		logger:  logger.With("module", "webhook_dispatcher"),
	}
}

func (c *HTTPWebhookCaller) CallWebhook(ctx context.Context, req WebhookRequest) error {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var bodyReader io.Reader

	if req.Payload != nil {
		body, err := json.Marshal(req.Payload)
		if err != nil {
			return fmt.Errorf("failed to encode webhook payload: %w", err)
		}

		bodyReader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(reqCtx, strings.ToUpper(req.Method), req.URL, bodyReader)
	if err != nil {
		return fmt.Errorf("failed to create webhook request: %w", err)
	}

	if req.Payload != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return fmt.Errorf("webhook request failed: %w", err)
	}

	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook endpoint %s returned status %d", req.URL, resp.StatusCode)
	}

	c.logger.InfoContext(ctx, "Webhook delivered", "url", req.URL, "status", resp.StatusCode)

	return nil
}
