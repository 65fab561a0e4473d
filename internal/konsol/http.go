package konsol

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

	coreconfig "github.com/m3rciful/claimdesk/core/config"
	"github.com/m3rciful/claimdesk/core/logger"
)

const maxErrorBody = 2048

// APIError is a non-2xx provider response.
type APIError struct {
	Endpoint string
	Status   int
	Body     string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("konsol %s: status %d: %s", e.Endpoint, e.Status, e.Body)
}

// HTTPClient talks to the real API. Calls are not retried: a payment request
// that timed out may still have been accepted.
type HTTPClient struct {
	baseURL string
	token   string
	http    *http.Client
}

// NewHTTPClient builds a client from config.
func NewHTTPClient(cfg coreconfig.KonsolConfig) *HTTPClient {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		token:   cfg.Token,
		http:    &http.Client{Timeout: timeout},
	}
}

// CreateContractor registers a payee.
func (c *HTTPClient) CreateContractor(ctx context.Context, req ContractorRequest) (Contractor, error) {
	var out Contractor
	if err := c.post(ctx, "/contractors", req, &out); err != nil {
		return out, err
	}
	if out.ID == "" {
		return out, fmt.Errorf("konsol /contractors: empty id in response")
	}
	return out, nil
}

// CreatePayment creates a payout.
func (c *HTTPClient) CreatePayment(ctx context.Context, req PaymentRequest) (Payment, error) {
	var out Payment
	if err := c.post(ctx, "/payments", req, &out); err != nil {
		return out, err
	}
	if out.ID == "" {
		return out, fmt.Errorf("konsol /payments: empty id in response")
	}
	return out, nil
}

func (c *HTTPClient) post(ctx context.Context, path string, body, out any) (err error) {
	start := time.Now()
	status := 0
	defer func() {
		level := slog.LevelInfo
		if err != nil {
			level = slog.LevelError
		}
		logger.LogEvent(ctx, logger.PAY, level, "konsol.request",
			slog.String("status", logger.Status(err)),
			slog.String("endpoint", path),
			slog.Int("http_status", status),
			slog.Duration("duration", logger.RoundMS(time.Since(start))),
			logger.Err(err),
		)
	}()

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("konsol %s: encode: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("konsol %s: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("konsol %s: %w", path, err)
	}
	defer resp.Body.Close()
	status = resp.StatusCode

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &APIError{Endpoint: path, Status: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("konsol %s: decode: %w", path, err)
	}
	return nil
}
