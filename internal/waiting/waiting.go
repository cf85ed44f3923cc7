// Package waiting helps write testable code that sleeps.
package waiting

import (
	"time"
)

// Delay is a duration that some code waits for.
type Delay interface {
	// IsZero returns whether this is a zero-duration delay.
	IsZero() bool

	// Wait returns a channel that is closed after the delay elapses,
	// and a cancel function that must be used if the result is no longer
	// needed.
	Wait() (<-chan struct{}, func())
}

func NewDelay(duration time.Duration) Delay {
	return &realDelay{duration}
}

// NoDelay returns a zero delay.
func NoDelay() Delay {
	return NewDelay(0)
}

type realDelay struct {
	duration time.Duration
}

func (d *realDelay) IsZero() bool {
	return d.duration == 0
}

func (d *realDelay) Wait() (<-chan struct{}, func()) {
	if d.IsZero() {
		return completedDelay(), func() {}
	}

	ch := make(chan struct{})
	cancel := make(chan struct{})

	go func() {
		select {
		case <-time.After(d.duration):
		case <-cancel:
		}
		close(ch)
	}()
	return ch, func() { close(cancel) }
}

func completedDelay() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
