// Package debounce rate-limits repeated work, such as writing progress
// updates that arrive once per chunk.
package debounce

import (
	"golang.org/x/time/rate"

	"github.com/modeldepot/core/internal/observability"
)

// Debouncer invokes a function at most as often as its rate limiter
// allows, and only when marked dirty since the last invocation.
//
// Not safe for concurrent use; each transfer worker owns its own.
type Debouncer struct {
	limiter       *rate.Limiter
	needsDebounce bool
	logger        *observability.CoreLogger
}

func NewDebouncer(
	eventRate rate.Limit,
	burstSize int,
	logger *observability.CoreLogger,
) *Debouncer {
	return &Debouncer{
		limiter: rate.NewLimiter(eventRate, burstSize),
		logger:  logger,
	}
}

// SetNeedsDebounce marks that there is pending work to flush.
func (d *Debouncer) SetNeedsDebounce() {
	if d == nil {
		return
	}
	d.needsDebounce = true
}

func (d *Debouncer) UnsetNeedsDebounce() {
	if d == nil {
		return
	}
	d.needsDebounce = false
}

// Debounce calls f if there is pending work and the rate limiter allows it.
func (d *Debouncer) Debounce(f func()) {
	if d == nil {
		return
	}
	if !d.needsDebounce || !d.limiter.Allow() {
		return
	}
	d.Flush(f)
}

// Flush calls f if there is pending work, regardless of the rate limit.
func (d *Debouncer) Flush(f func()) {
	if d == nil {
		return
	}
	if d.needsDebounce {
		d.logger.Debug("flushing debouncer")
		f()
		d.UnsetNeedsDebounce()
	}
}
