package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"lokumail/internal/config"
)

// Tag is one name/value pair attached to an outbound email for provider-side
// correlation.
type Tag struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// SendInput carries everything one send call needs. IdempotencyKey is the
// job id: provider-side idempotency keeps a retry after an ambiguous failure
// from delivering the email twice.
type SendInput struct {
	From           string
	To             []string
	ReplyTo        string
	Subject        string
	HTML           string
	Tags           []Tag
	IdempotencyKey string
}

// SendResult is the provider's acknowledgement of an accepted send.
type SendResult struct {
	MessageID string
}

// SendError is a classified provider failure. Retryable selects between the
// worker's backoff-and-requeue path and a terminal failed status. A zero
// StatusCode means the request never produced a provider response (network
// error, timeout, open circuit breaker); those are always retryable.
type SendError struct {
	StatusCode int
	Message    string
	Retryable  bool
	Err        error
}

func (e *SendError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("resend request failed: %s", e.Message)
	}
	return fmt.Sprintf("resend returned %d: %s", e.StatusCode, e.Message)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

// ResendClient sends transactional email through the Resend REST API.
type ResendClient struct {
	base    *BaseClient
	baseURL string
	apiKey  config.SecretString
}

// DefaultBaseURL is the public Resend API endpoint.
const DefaultBaseURL = "https://api.resend.com"

// NewResendClient creates a Resend API client from configuration.
func NewResendClient(cfg config.ResendConfig) *ResendClient {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	httpClient := &http.Client{Timeout: cfg.Timeout}
	return &ResendClient{
		base:    NewBaseClient(httpClient, "resend", "lokumail/1.0"),
		baseURL: baseURL,
		apiKey:  cfg.APIKey,
	}
}

type resendSendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	ReplyTo string   `json:"reply_to,omitempty"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
	Tags    []Tag    `json:"tags,omitempty"`
}

type resendSendResponse struct {
	ID string `json:"id"`
}

type resendErrorResponse struct {
	Message string `json:"message"`
}

// Send submits one email. On failure it returns a *SendError classifying the
// outcome: 429 and 5xx responses plus transport-level failures are
// retryable, every other provider rejection is permanent.
func (c *ResendClient) Send(ctx context.Context, input SendInput) (*SendResult, error) {
	payload := resendSendRequest{
		From:    input.From,
		To:      input.To,
		ReplyTo: input.ReplyTo,
		Subject: input.Subject,
		HTML:    input.HTML,
		Tags:    input.Tags,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, &SendError{Message: "failed to encode send request", Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return nil, &SendError{Message: "failed to build send request", Err: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey.Unmask())
	req.Header.Set("Content-Type", "application/json")
	if input.IdempotencyKey != "" {
		req.Header.Set("Idempotency-Key", input.IdempotencyKey)
	}

	resp, err := c.base.Do(req)
	if err != nil {
		return nil, &SendError{Message: err.Error(), Retryable: true, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, &SendError{Message: "failed to read send response", Retryable: true, Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		message := fmt.Sprintf("unexpected status %d", resp.StatusCode)
		var errResp resendErrorResponse
		if json.Unmarshal(respBody, &errResp) == nil && errResp.Message != "" {
			message = errResp.Message
		}
		return nil, &SendError{
			StatusCode: resp.StatusCode,
			Message:    message,
			Retryable:  resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500,
		}
	}

	var sendResp resendSendResponse
	if err := json.Unmarshal(respBody, &sendResp); err != nil {
		return nil, &SendError{Message: "failed to decode send response", Err: err}
	}
	return &SendResult{MessageID: sendResp.ID}, nil
}
