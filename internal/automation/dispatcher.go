package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

const maxResponseSnippet = 512

// Dispatcher POSTs trigger payloads to automation webhook endpoints with a
// bounded timeout. Endpoint failures never propagate to the webhook caller;
// the pipeline records them through the dispatch log.
type Dispatcher struct {
	client *http.Client
	logger *slog.Logger
}

// NewDispatcher creates a dispatcher with the given request timeout.
func NewDispatcher(timeout time.Duration, log *slog.Logger) *Dispatcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{
		client: &http.Client{Timeout: timeout},
		logger: log.With(slog.String("service", "dispatcher")),
	}
}

// DispatchResult is the outcome of one webhook POST.
type DispatchResult struct {
	StatusCode int
	Duration   time.Duration
	Body       string
	Err        error
}

// Succeeded reports whether the endpoint accepted the dispatch.
func (r DispatchResult) Succeeded() bool {
	return r.Err == nil && r.StatusCode >= 200 && r.StatusCode < 300
}

// ErrorDetail renders the failure for the dispatch log, "" on success.
func (r DispatchResult) ErrorDetail() string {
	if r.Err != nil {
		return r.Err.Error()
	}
	if !r.Succeeded() {
		detail := fmt.Sprintf("endpoint returned %d", r.StatusCode)
		if r.Body != "" {
			detail += ": " + r.Body
		}
		return detail
	}
	return ""
}

// Dispatch POSTs payload as JSON to the automation's webhook URL. The secret
// is sent in the X-Webhook-Secret header and, when the URL does not already
// carry one, duplicated as a secret query parameter for endpoints that
// cannot read headers.
func (d *Dispatcher) Dispatch(ctx context.Context, auto Automation, secret string, payload any) DispatchResult {
	body, err := json.Marshal(payload)
	if err != nil {
		return DispatchResult{Err: fmt.Errorf("encode payload: %w", err)}
	}
	target, err := buildTargetURL(auto.WebhookURL, secret)
	if err != nil {
		return DispatchResult{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(body))
	if err != nil {
		return DispatchResult{Err: fmt.Errorf("build request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	if secret != "" {
		req.Header.Set("X-Webhook-Secret", secret)
	}

	start := time.Now()
	resp, err := d.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		d.logger.Warn("dispatch failed",
			slog.String("automation_id", auto.ID),
			slog.Any("error", err))
		return DispatchResult{Duration: elapsed, Err: fmt.Errorf("call endpoint: %w", err)}
	}
	defer resp.Body.Close()

	snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseSnippet))
	result := DispatchResult{
		StatusCode: resp.StatusCode,
		Duration:   elapsed,
		Body:       string(snippet),
	}
	if !result.Succeeded() {
		d.logger.Warn("dispatch rejected",
			slog.String("automation_id", auto.ID),
			slog.Int("status", resp.StatusCode))
	}
	return result
}

func buildTargetURL(rawURL, secret string) (string, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid webhook url: %w", err)
	}
	if secret == "" {
		return parsed.String(), nil
	}
	query := parsed.Query()
	if query.Get("secret") == "" {
		query.Set("secret", secret)
		parsed.RawQuery = query.Encode()
	}
	return parsed.String(), nil
}
