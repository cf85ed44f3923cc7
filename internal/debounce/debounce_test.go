package debounce_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"golang.org/x/time/rate"

	"github.com/modeldepot/core/internal/debounce"
	"github.com/modeldepot/core/internal/observability"
)

func TestNewDebouncer(t *testing.T) {
	logger := observability.NewNoOpLogger()
	debouncer := debounce.NewDebouncer(rate.Every(time.Second), 1, logger)
	assert.NotNil(t, debouncer)
}

func TestDebounceRateLimits(t *testing.T) {
	logger := observability.NewNoOpLogger()
	debouncer := debounce.NewDebouncer(rate.Every(time.Minute), 1, logger)

	count := 0
	debouncer.SetNeedsDebounce()
	debouncer.Debounce(func() { count++ })

	debouncer.SetNeedsDebounce()
	debouncer.Debounce(func() { count++ })

	assert.Equal(t, 1, count)
}

func TestDebounceSkipsWhenClean(t *testing.T) {
	logger := observability.NewNoOpLogger()
	debouncer := debounce.NewDebouncer(rate.Every(time.Millisecond), 10, logger)

	count := 0
	debouncer.Debounce(func() { count++ })

	assert.Equal(t, 0, count)
}

func TestFlushIgnoresRateLimit(t *testing.T) {
	logger := observability.NewNoOpLogger()
	debouncer := debounce.NewDebouncer(rate.Every(time.Minute), 1, logger)

	count := 0
	debouncer.SetNeedsDebounce()
	debouncer.Debounce(func() { count++ })
	debouncer.SetNeedsDebounce()
	debouncer.Flush(func() { count++ })

	assert.Equal(t, 2, count)
}

func TestNilDebouncerIsSafe(t *testing.T) {
	var debouncer *debounce.Debouncer

	debouncer.SetNeedsDebounce()
	debouncer.Debounce(func() { t.Fatal("should not run") })
	debouncer.Flush(func() { t.Fatal("should not run") })
}
