// Package telemetry defines the logging, metrics and tracing contracts used
// across the advisor runtime, together with clue/OTEL-backed and no-op
// implementations. Packages depend on the small interfaces so tests can run
// without an OTEL pipeline.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type (
	// Logger emits structured log messages with alternating key-value pairs.
	Logger interface {
		Debug(ctx context.Context, msg string, keyvals ...any)
		Info(ctx context.Context, msg string, keyvals ...any)
		Warn(ctx context.Context, msg string, keyvals ...any)
		Error(ctx context.Context, msg string, keyvals ...any)
	}

	// Metrics exposes counter, timer and gauge helpers for runtime
	// instrumentation. Tags alternate key, value.
	Metrics interface {
		IncCounter(name string, value float64, tags ...string)
		RecordTimer(name string, duration time.Duration, tags ...string)
		RecordGauge(name string, value float64, tags ...string)
	}

	// Tracer creates and retrieves spans.
	Tracer interface {
		Start(ctx context.Context, name string, opts ...trace.SpanStartOption) (context.Context, Span)
		Span(ctx context.Context) Span
	}

	// Span is the subset of span behavior the runtime needs.
	Span interface {
		End(opts ...trace.SpanEndOption)
		AddEvent(name string, attrs ...any)
		SetStatus(code codes.Code, description string)
		RecordError(err error, opts ...trace.EventOption)
	}
)

// Counter and timer names recorded by the advisor runtime.
const (
	MetricTurnsStarted       = "advisor_turns_started"
	MetricTurnsCompleted     = "advisor_turns_completed"
	MetricTurnsFailed        = "advisor_turns_failed"
	MetricCallsFinalized     = "advisor_calls_finalized"
	MetricCallsErrored       = "advisor_calls_errored"
	MetricParserFallbacks    = "advisor_parser_fallbacks"
	MetricTurnDuration       = "advisor_turn_duration"
	MetricStreamTokensOutput = "advisor_stream_output_tokens"
)
