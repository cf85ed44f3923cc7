package observability_test

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/modeldepot/core/internal/observability"
)

func TestNewTags(t *testing.T) {
	testCases := []struct {
		name   string
		input  []interface{}
		expect observability.Tags
	}{
		{
			name:   "tags from slog.Attr",
			input:  []interface{}{slog.Attr{Key: "key1", Value: slog.Int64Value(123)}},
			expect: observability.Tags{"key1": "123"},
		},
		{
			name:   "tags from string and int",
			input:  []interface{}{"key2", 456},
			expect: observability.Tags{"key2": "456"},
		},
		{
			name: "tags from a mix of slog.Attr, string, and int",
			input: []interface{}{
				slog.Attr{Key: "key3", Value: slog.StringValue("value3")},
				"key4",
				789,
			},
			expect: observability.Tags{"key3": "value3", "key4": "789"},
		},
		{
			name:   "dangling key is dropped",
			input:  []interface{}{slog.Attr{Key: "key5", Value: slog.Int64Value(1)}, "key6"},
			expect: observability.Tags{"key5": "1"},
		},
		{
			name:   "empty input",
			input:  []interface{}{},
			expect: observability.Tags{},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expect, observability.NewTags(tc.input...))
		})
	}
}

func TestCaptureErrorLogs(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.NewCoreLogger(
		slog.New(slog.NewJSONHandler(&buf, nil)),
		&observability.CoreLoggerParams{Tags: observability.Tags{"svc": "transfer"}},
	)

	logger.CaptureError(errors.New("boom"), "key", "value")

	out := buf.String()
	assert.Contains(t, out, "boom")
	assert.Contains(t, out, `"svc":"transfer"`)
	assert.Contains(t, out, `"key":"value"`)
}

func TestWithKeepsSentryAndTags(t *testing.T) {
	var buf bytes.Buffer
	logger := observability.NewCoreLogger(
		slog.New(slog.NewJSONHandler(&buf, nil)),
		&observability.CoreLoggerParams{Tags: observability.Tags{"a": "1"}},
	)

	derived := logger.With("b", "2")
	derived.Info("hello")

	assert.Equal(t, observability.Tags{"a": "1"}, derived.GetTags())
	assert.Contains(t, buf.String(), `"b":"2"`)
}

func TestNewNoOpLogger(t *testing.T) {
	logger := observability.NewNoOpLogger()

	assert.NotNil(t, logger)
	assert.NotNil(t, logger.Logger)
	assert.Equal(t, observability.Tags{}, logger.GetTags())
}
