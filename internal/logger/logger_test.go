package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/trace"
)

func newBufferLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewTextHandler(&buf, nil)), &buf
}

func TestWithRequestID(t *testing.T) {
	l, buf := newBufferLogger()
	WithRequestID(l, "req-42").Info("hello")
	if !strings.Contains(buf.String(), "request_id=req-42") {
		t.Errorf("log output %q missing request_id", buf.String())
	}
}

func TestWithError(t *testing.T) {
	l, buf := newBufferLogger()
	WithError(l, errors.New("boom")).Info("failed")
	if !strings.Contains(buf.String(), "error=boom") {
		t.Errorf("log output %q missing error", buf.String())
	}
}

func TestWithTrace(t *testing.T) {
	t.Run("no span", func(t *testing.T) {
		l, buf := newBufferLogger()
		WithTrace(context.Background(), l).Info("plain")
		if strings.Contains(buf.String(), "trace_id") {
			t.Errorf("log output %q should not carry trace_id", buf.String())
		}
	})

	t.Run("with span context", func(t *testing.T) {
		traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
		spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
		sc := trace.NewSpanContext(trace.SpanContextConfig{TraceID: traceID, SpanID: spanID})
		ctx := trace.ContextWithSpanContext(context.Background(), sc)

		l, buf := newBufferLogger()
		WithTrace(ctx, l).Info("traced")
		out := buf.String()
		if !strings.Contains(out, "trace_id=4bf92f3577b34da6a3ce929d0e0e4736") {
			t.Errorf("log output %q missing trace_id", out)
		}
		if !strings.Contains(out, "span_id=00f067aa0ba902b7") {
			t.Errorf("log output %q missing span_id", out)
		}
	})
}
