package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"kila/internal"
	"kila/internal/config"
)

// Client talks to the external invoice validation service. A failed or
// skipped call is not an error for the pipeline: it degrades to the local
// result alone, so Validate encodes semantic failures in
// RemoteResult.Success and reserves the error return for transport-level
// problems worth logging.
type Client struct {
	cfg        config.Config
	httpClient *http.Client
	limiter    *RateLimiter
}

type remotePayload struct {
	Error        string             `json:"error"`
	Message      string             `json:"message"`
	Errors       []internal.Finding `json:"errors"`
	Warnings     []internal.Finding `json:"warnings"`
	Status       internal.Status    `json:"status"`
	ValidationID string             `json:"validation_id"`
}

func NewClient(cfg config.Config) *Client {
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: time.Duration(cfg.RemoteTimeoutMs) * time.Millisecond},
		limiter:    NewRateLimiter(cfg.RemoteRateLimitRPS),
	}
}

// Enabled reports whether an external validator endpoint is configured.
func (c *Client) Enabled() bool {
	return strings.TrimSpace(c.cfg.RemoteValidatorURL) != ""
}

// Validate posts the raw invoice JSON to the external validator and maps its
// response onto a RemoteResult. Free-text error responses go through the
// server-error parser.
func (c *Client) Validate(ctx context.Context, invoice json.RawMessage) (internal.RemoteResult, error) {
	if !c.Enabled() {
		return internal.RemoteResult{Success: false, Message: "validador externo no configurado"}, nil
	}

	status, body, err := c.post(ctx, invoice)
	if err != nil {
		return internal.RemoteResult{Success: false, Message: err.Error()}, err
	}

	var payload remotePayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return internal.RemoteResult{
			Success: false,
			Message: fmt.Sprintf("respuesta no válida del validador externo: status=%d", status),
		}, nil
	}

	if payload.Error != "" {
		parsed := ParseServerError(payload.Error)
		if structural(parsed) {
			return internal.RemoteResult{Success: false, Message: payload.Error}, nil
		}
		return internal.RemoteResult{
			Success:  true,
			Errors:   parsed,
			Warnings: []internal.Finding{},
			Status:   internal.StatusRejected,
			Message:  "La factura tiene errores de validación",
		}, nil
	}

	if status < 200 || status >= 300 {
		message := payload.Message
		if message == "" {
			message = fmt.Sprintf("error del servidor: %d", status)
		}
		return internal.RemoteResult{Success: false, Message: message}, nil
	}

	result := internal.RemoteResult{
		Success:      true,
		ValidationID: payload.ValidationID,
		Errors:       payload.Errors,
		Warnings:     payload.Warnings,
		Status:       payload.Status,
		Message:      payload.Message,
	}
	if result.Errors == nil {
		result.Errors = []internal.Finding{}
	}
	if result.Warnings == nil {
		result.Warnings = []internal.Finding{}
	}
	if result.Status == "" {
		result.Status = deriveStatus(result.Errors, result.Warnings)
	}
	return result, nil
}

func (c *Client) post(ctx context.Context, invoice json.RawMessage) (int, []byte, error) {
	var lastErr error
	for attempt := 1; attempt <= 5; attempt++ {
		c.limiter.WaitTurn()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.RemoteValidatorURL, bytes.NewReader(invoice))
		if err != nil {
			return 0, nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return 0, nil, ctx.Err()
			}
			lastErr = err
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		if readErr != nil {
			lastErr = readErr
			continue
		}

		if isRetryableStatus(resp.StatusCode) && attempt < 5 {
			backoff := time.Duration(250*(1<<(attempt-1))+rand.Intn(100)) * time.Millisecond
			select {
			case <-ctx.Done():
				return 0, nil, ctx.Err()
			case <-time.After(backoff):
			}
			lastErr = fmt.Errorf("validador status %d", resp.StatusCode)
			continue
		}

		return resp.StatusCode, body, nil
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("fallo la solicitud al validador externo")
	}
	return 0, nil, lastErr
}

func isRetryableStatus(status int) bool {
	switch status {
	case 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}

// structural reports whether the parser only produced the raw-string
// fallback, meaning nothing actionable could be extracted.
func structural(findings []internal.Finding) bool {
	return len(findings) == 1 && findings[0].Field == "General"
}

func deriveStatus(errors, warnings []internal.Finding) internal.Status {
	if len(errors) > 0 {
		return internal.StatusRejected
	}
	if len(warnings) > 0 {
		return internal.StatusWarning
	}
	return internal.StatusApproved
}
