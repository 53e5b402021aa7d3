// Package observe holds the service's OpenTelemetry instruments, the SDK
// provider setup behind /metrics, and the HTTP tracing middleware.
package observe

import (
	"context"

	"github.com/jwebster45206/token-orientation/pkg/orientation"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/jwebster45206/token-orientation"

// Metrics holds the metric instruments for the service. All fields are safe
// for concurrent use.
type Metrics struct {
	// Evaluations counts orientation evaluations. Attributes: source, direction.
	Evaluations metric.Int64Counter

	// Writes counts image writes issued by the gate. Attribute: source.
	Writes metric.Int64Counter

	// Suppressed counts updates skipped because they carried a write token.
	Suppressed metric.Int64Counter

	// WriteErrors counts failed image writes.
	WriteErrors metric.Int64Counter

	// MovesProcessed counts queued moves handled by the worker. Attribute: status.
	MovesProcessed metric.Int64Counter

	// HTTPRequestDuration tracks HTTP request processing time. Attributes: method, path.
	HTTPRequestDuration metric.Float64Histogram
}

var _ orientation.Observer = (*Metrics)(nil)

// NewMetrics creates every instrument from mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.Evaluations, err = m.Int64Counter("orientation.evaluations",
		metric.WithDescription("Orientation evaluations by image source and direction."),
	); err != nil {
		return nil, err
	}
	if met.Writes, err = m.Int64Counter("orientation.writes",
		metric.WithDescription("Image writes issued after an evaluation."),
	); err != nil {
		return nil, err
	}
	if met.Suppressed, err = m.Int64Counter("orientation.suppressed",
		metric.WithDescription("Updates skipped because they were caused by an image write."),
	); err != nil {
		return nil, err
	}
	if met.WriteErrors, err = m.Int64Counter("orientation.write_errors",
		metric.WithDescription("Image writes that failed."),
	); err != nil {
		return nil, err
	}
	if met.MovesProcessed, err = m.Int64Counter("orientation.moves.processed",
		metric.WithDescription("Queued moves processed by the worker by status."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("orientation.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// ObserveResolution records the outcome of one evaluation.
func (m *Metrics) ObserveResolution(ctx context.Context, res orientation.Result) {
	if res.Suppressed {
		m.Suppressed.Add(ctx, 1)
		return
	}
	source := attribute.String("source", string(res.Source))
	m.Evaluations.Add(ctx, 1, metric.WithAttributes(
		source,
		attribute.String("direction", res.Direction.String()),
	))
	if res.Written {
		m.Writes.Add(ctx, 1, metric.WithAttributes(source))
	}
}

// ObserveWriteError records a failed image write.
func (m *Metrics) ObserveWriteError(ctx context.Context, _ string, _ error) {
	m.WriteErrors.Add(ctx, 1)
}

// RecordMove records one dequeued move by outcome: ok, error, requeued or dropped.
func (m *Metrics) RecordMove(ctx context.Context, status string) {
	m.MovesProcessed.Add(ctx, 1, metric.WithAttributes(attribute.String("status", status)))
}
