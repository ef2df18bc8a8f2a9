package agent

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/ollama/ollama/api"

	"mapforge/pkg/engine/retry"
	"mapforge/pkg/engine/world"
)

const defaultTimeout = 120 * time.Second

// httpClient returns the configured client or one with the request timeout
func httpClient(cfg ClientConfig) *http.Client {
	if cfg.HTTPClient != nil {
		return cfg.HTTPClient
	}
	return &http.Client{Timeout: requestTimeout(cfg)}
}

func requestTimeout(cfg ClientConfig) time.Duration {
	if cfg.Timeout <= 0 {
		return defaultTimeout
	}
	return cfg.Timeout
}

// newRetrier wraps backend calls in the configured policy. The SDKs' own
// retries are switched off so this is the only place attempts are counted.
func newRetrier(cfg ClientConfig) retry.Retrier {
	policy := cfg.Retry
	if policy.MaxAttempts == 0 {
		policy = retry.DefaultPolicy()
	}
	return retry.Retrier{
		Policy:    policy,
		Retryable: world.IsTransient,
		Sleep:     cfg.Sleep,
	}
}

// classify turns an SDK error into an ExternalServiceError, transient for
// rate limits, server errors and transport failures. Cancellation of ctx is
// returned as is.
func classify(ctx context.Context, backend string, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}

	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		e := world.Wrap(world.KindExternalService, err, "%s returned %d", backend, apiErr.StatusCode)
		e.Transient = transientStatus(apiErr.StatusCode)
		return e
	}
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		e := world.Wrap(world.KindExternalService, err, "%s returned %d", backend, statusErr.StatusCode)
		e.Transient = transientStatus(statusErr.StatusCode)
		return e
	}

	e := world.Wrap(world.KindExternalService, err, "request to %s", backend)
	e.Transient = true
	return e
}

// transientStatus: rate limits and server errors are worth retrying, other
// client errors are not
func transientStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}
