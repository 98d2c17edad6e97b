package providers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"agriagent/apps/backend/internal/chat"
)

const (
	lookupRetries        = 2
	modelRetries         = 0
	retryInitialInterval = 100 * time.Millisecond
	retryMaxInterval     = time.Second
	maxResponseBytes     = 4 << 20
)

// StatusError is a non-2xx answer from an upstream provider.
type StatusError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s error (%d): %s", e.Provider, e.StatusCode, chat.TruncateForLog(e.Body, 300))
}

func (e *StatusError) retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// doJSON sends the request built by build and returns the body of the first
// 2xx response. Transport errors, 429 and 5xx are retried up to retries extra
// times; other statuses fail immediately.
func doJSON(ctx context.Context, client *http.Client, provider string, retries uint64, build func(ctx context.Context) (*http.Request, error)) ([]byte, error) {
	var body []byte
	operation := func() error {
		request, err := build(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		response, err := client.Do(request)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			// url.Error carries the full URL, which may hold an API key.
			var urlErr *url.Error
			if errors.As(err, &urlErr) {
				err = fmt.Errorf("%s request failed: %w", provider, urlErr.Err)
			}
			return err
		}
		defer response.Body.Close()

		raw, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
		if err != nil {
			return err
		}
		if response.StatusCode < 200 || response.StatusCode >= 300 {
			statusErr := &StatusError{Provider: provider, StatusCode: response.StatusCode, Body: strings.TrimSpace(string(raw))}
			if statusErr.retryable() {
				return statusErr
			}
			return backoff.Permanent(statusErr)
		}
		body = raw
		return nil
	}

	if err := backoff.Retry(operation, newRetryPolicy(ctx, retries)); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && !errors.Is(err, ctxErr) {
			return nil, fmt.Errorf("%s: %w", provider, ctxErr)
		}
		return nil, err
	}
	return body, nil
}

func newRetryPolicy(ctx context.Context, retries uint64) backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = retryInitialInterval
	policy.MaxInterval = retryMaxInterval
	policy.MaxElapsedTime = 0
	return backoff.WithContext(backoff.WithMaxRetries(policy, retries), ctx)
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &http.Client{Timeout: timeout}
}
