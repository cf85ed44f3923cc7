package sentry_ext

import (
	"reflect"
	"strings"

	"github.com/getsentry/sentry-go"
)

var (
	// loggerPackage is the Go import path for the CoreLogger.
	//
	// Hard-coded to avoid an import cycle. Correctness is checked in a
	// unit test using reflection.
	loggerPackage = "github.com/modeldepot/core/internal/observability"

	// sentryExtPackage is the Go import path for this package.
	sentryExtPackage = reflect.TypeFor[Client]().PkgPath()
)

// RemoveLoggerFrames strips internal logging infrastructure frames from
// the top of each stack trace.
//
// For events captured via CoreLogger.CaptureError and similar methods,
// the stack trace's top frame will then be the caller of the logger
// method rather than the logger itself.
func RemoveLoggerFrames(
	event *sentry.Event,
	hint *sentry.EventHint,
) *sentry.Event {
	for _, exception := range event.Exception {
		if exception.Stacktrace == nil {
			continue
		}

		// Frames are ordered caller-first (caller before callee).
		frames := exception.Stacktrace.Frames
		for len(frames) > 0 && shouldHideFrame(&frames[len(frames)-1]) {
			frames = frames[:len(frames)-1]
		}

		exception.Stacktrace.Frames = frames
	}

	return event
}

// shouldHideFrame reports whether a stack frame should be hidden in Sentry.
//
// Accepts sentry.Frame by pointer as it is a large struct.
func shouldHideFrame(frame *sentry.Frame) bool {
	// Same strategy the Sentry SDK uses to filter out its own frames.
	return strings.HasPrefix(frame.Module, loggerPackage) ||
		strings.HasPrefix(frame.Module, sentryExtPackage)
}
