// Package sentry_ext wraps the Sentry SDK with a small client that
// deduplicates recently seen errors before sending them.
package sentry_ext

import (
	"errors"
	"log/slog"
	"time"

	"github.com/getsentry/sentry-go"
)

type Params struct {
	// DSN is the Data Source Name for the sentry client. Empty disables
	// sending entirely.
	DSN string
	// AttachStacktrace attaches stack traces to captured events.
	AttachStacktrace bool
	// Release is the version of the application.
	Release string
	// Environment is the environment the application is running in.
	Environment string
	// BeforeSend modifies the event before it is sent to sentry.
	BeforeSend func(*sentry.Event, *sentry.EventHint) *sentry.Event
	// LRUSize is the size of the recent-error cache.
	LRUSize int
}

type Client struct {
	// Recent tracks errors sent to sentry recently so the same error is
	// not reported repeatedly.
	Recent *cache
}

// New initializes the sentry client.
//
// If the DSN is not set, the client is effectively disabled and will not
// send any errors to sentry. If the cache cannot be created, an error is
// logged and nil is returned.
func New(params Params) *Client {
	if params.BeforeSend == nil {
		params.BeforeSend = RemoveLoggerFrames
	}
	if err := sentry.Init(
		sentry.ClientOptions{
			Dsn:              params.DSN,
			AttachStacktrace: params.AttachStacktrace,
			Release:          params.Release,
			BeforeSend:       params.BeforeSend,
			Environment:      params.Environment,
		}); err != nil {
		slog.Error("sentry_ext: New: failed to initialize sentry", "err", err)
	}

	if params.DSN == "" {
		slog.Debug("sentry_ext: New: sentry is disabled, no DSN provided")
	} else {
		slog.Debug("sentry_ext: New: sentry is enabled", "dsn", params.DSN)
	}

	cache, err := newCache(params.LRUSize)
	if err != nil {
		slog.Error("sentry_ext: New: failed to create cache", "err", err)
		return nil
	}

	return &Client{
		Recent: cache,
	}
}

// CaptureException sends an error to sentry as an error-level event
// enriched with the given tags.
func (s *Client) CaptureException(err error, tags map[string]string) {
	if !s.Recent.shouldCapture(err) {
		return
	}

	localHub := sentry.CurrentHub().Clone()
	localHub.ConfigureScope(
		func(scope *sentry.Scope) {
			scope.SetTags(tags)
		},
	)
	localHub.CaptureException(err)
}

// CaptureMessage sends a non-error message to sentry as an info-level
// event enriched with the given tags.
func (s *Client) CaptureMessage(msg string, tags map[string]string) {
	if !s.Recent.shouldCapture(errors.New(msg)) {
		return
	}

	localHub := sentry.CurrentHub().Clone()
	localHub.ConfigureScope(
		func(scope *sentry.Scope) {
			scope.SetTags(tags)
		},
	)
	localHub.CaptureMessage(msg)
}

// Flush waits for buffered events to be sent.
func (s *Client) Flush(timeout time.Duration) bool {
	hub := sentry.CurrentHub()
	return hub.Flush(timeout)
}
