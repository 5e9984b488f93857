// Package external provides the anti-corruption layer between the email
// delivery domain and the Resend API. All outbound HTTP calls are routed
// through the BaseClient, which enforces circuit breaking and consistent
// header handling. Retries are deliberately NOT handled here: the delivery
// worker owns the retry schedule at the job level, and a transport-level
// retry loop would re-send emails behind the worker's back and bypass its
// rate limiting.
package external

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sony/gobreaker/v2"
)

// BaseClient wraps an *http.Client and a circuit breaker for outbound
// provider calls. Provider clients embed BaseClient to inherit this behavior.
type BaseClient struct {
	client    *http.Client
	breaker   *gobreaker.CircuitBreaker[*http.Response]
	userAgent string
}

// NewBaseClient creates a BaseClient with the given http client, circuit
// breaker settings name, and user agent string.
func NewBaseClient(httpClient *http.Client, breakerName, userAgent string) *BaseClient {
	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	})

	return &BaseClient{
		client:    httpClient,
		breaker:   cb,
		userAgent: userAgent,
	}
}

// ErrBreakerOpen reports that the circuit breaker refused the call without
// reaching the provider. Callers treat this as a retryable condition.
var ErrBreakerOpen = errors.New("circuit breaker open")

// Do executes the HTTP request through the circuit breaker with the
// User-Agent header injected. Responses with 429 or 5xx status count as
// breaker failures but are still returned to the caller, which owns the
// classification into retryable and permanent outcomes. The caller is
// responsible for closing the response body.
func (c *BaseClient) Do(req *http.Request) (*http.Response, error) {
	if c.userAgent != "" {
		req.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.breaker.Execute(func() (*http.Response, error) {
		r, doErr := c.client.Do(req)
		if doErr != nil {
			return nil, doErr
		}
		if r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests {
			return r, fmt.Errorf("upstream returned %d", r.StatusCode)
		}
		return r, nil
	})
	if err != nil {
		if resp != nil {
			// Status-level failure: recorded by the breaker, classified
			// by the caller.
			return resp, nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %w", ErrBreakerOpen, err)
		}
		return nil, err
	}
	return resp, nil
}
