// Package httpclient constructs the retryable HTTP clients used for
// remote probes and downloads.
package httpclient

import (
	"log/slog"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/modeldepot/core/internal/observability"
)

// NewRetryClient returns a retryablehttp client configured by the given
// options. Callers that must not retry pass WithRetryMax(0).
func NewRetryClient(opts ...RetryClientOption) *retryablehttp.Client {
	retryClient := retryablehttp.NewClient()

	for _, opt := range opts {
		opt(retryClient)
	}
	return retryClient
}

type RetryClientOption func(rc *retryablehttp.Client)

func WithLogger(logger *observability.CoreLogger) RetryClientOption {
	return func(rc *retryablehttp.Client) {
		rc.Logger = slog.NewLogLogger(logger.Logger.Handler(), slog.LevelDebug)
	}
}

func WithRetryMax(retryMax int) RetryClientOption {
	return func(rc *retryablehttp.Client) {
		rc.RetryMax = retryMax
	}
}

func WithTimeout(timeout time.Duration) RetryClientOption {
	return func(rc *retryablehttp.Client) {
		rc.HTTPClient.Timeout = timeout
	}
}
