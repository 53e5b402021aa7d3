// Package orientation picks the image a moving token should show.
//
// Resolution runs in four pure steps (direction, rule, image, world
// fallback) followed by one effectful step: the Gate, which writes the image
// only when it changed and tags the write so the update it triggers is not
// evaluated again.
package orientation

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/jwebster45206/token-orientation/pkg/orientation"

// Request is one movement event to evaluate.
type Request struct {
	EntityID string
	Delta    Delta
	Snapshot Snapshot
	Config   Config
	Current  ImageRef      // image the entity shows right now
	World    WorldDefaults // optional last-resort tier, read only
	Suppress *WriteToken   // token carried by the triggering update, if any
}

// Result describes what an evaluation decided and did.
type Result struct {
	EntityID   string    `json:"entity_id"`
	Direction  Direction `json:"direction"`
	Image      ImageRef  `json:"image,omitempty"`
	Rule       string    `json:"rule,omitempty"`
	RuleIndex  int       `json:"rule_index"`
	Source     Source    `json:"source"`
	Written    bool      `json:"written"`
	Suppressed bool      `json:"suppressed,omitempty"`
}

// Resolved reports whether an image was found.
func (r Result) Resolved() bool {
	return r.Image.IsSet()
}

// Observer receives the outcome of every evaluation.
type Observer interface {
	ObserveResolution(ctx context.Context, res Result)
	ObserveWriteError(ctx context.Context, entityID string, err error)
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine's logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithObserver registers an observer for evaluation outcomes.
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// WithTracer overrides the tracer used for evaluation spans.
func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

// Engine resolves and applies token orientation. It holds no per-entity
// state and is safe for concurrent use as long as its Writer is.
type Engine struct {
	gate     *Gate
	logger   *slog.Logger
	observer Observer
	tracer   trace.Tracer
}

// NewEngine creates an engine that writes images through w.
func NewEngine(w Writer, opts ...Option) *Engine {
	e := &Engine{
		logger: slog.Default(),
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.gate = NewGate(w, e.logger)
	return e
}

// Resolve runs the pure part of an evaluation: direction, rule selection,
// image selection and the optional world tier. It never writes.
func (e *Engine) Resolve(req Request) Result {
	res := Result{
		EntityID:  req.EntityID,
		RuleIndex: DefaultsIndex,
		Source:    SourceNone,
	}
	if req.Delta.Empty() {
		return res
	}
	res.Direction = req.Delta.Direction()
	if res.Direction == None {
		return res
	}

	cfg := req.Config.Normalize()
	rule, idx := SelectRule(cfg, req.Snapshot)
	res.Rule = rule.Name
	res.RuleIndex = idx

	res.Image, res.Source = SelectImage(rule, cfg.Defaults, res.Direction)
	if res.Source == SourceRule && idx == DefaultsIndex {
		res.Source = SourceDefaults
	}

	if !res.Image.IsSet() && req.World != nil {
		if img := req.World.Lookup(req.Snapshot.MovementAction, res.Direction); img.IsSet() {
			res.Image, res.Source = img, SourceWorld
		}
	}
	return res
}

// ResolveAndApply evaluates a movement event and writes the resolved image
// when it differs from the current one. Updates carrying an unconsumed
// WriteToken are skipped entirely. The returned Result is valid even when the
// write fails; the error only reports the failed write.
func (e *Engine) ResolveAndApply(ctx context.Context, req Request) (Result, error) {
	if req.Suppress.Consume() {
		e.logger.Debug("Skipping update caused by our own write",
			"entity_id", req.EntityID,
			"write_token", req.Suppress.ID)
		res := Result{EntityID: req.EntityID, RuleIndex: DefaultsIndex, Source: SourceNone, Suppressed: true}
		e.observe(ctx, res)
		return res, nil
	}

	res := e.Resolve(req)
	if res.Direction == None {
		e.observe(ctx, res)
		return res, nil
	}

	ctx, span := e.tracer.Start(ctx, "orientation.apply", trace.WithAttributes(
		attribute.String("entity.id", req.EntityID),
		attribute.String("orientation.direction", res.Direction.String()),
		attribute.String("orientation.rule", res.Rule),
		attribute.String("orientation.source", string(res.Source)),
	))
	defer span.End()

	e.logger.Debug("Orientation resolved",
		"entity_id", req.EntityID,
		"direction", res.Direction.String(),
		"rule", res.Rule,
		"rule_index", res.RuleIndex,
		"source", res.Source,
		"image", res.Image)

	written, err := e.gate.Apply(ctx, req.EntityID, req.Current, res.Image)
	res.Written = written
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "image write failed")
		if e.observer != nil {
			e.observer.ObserveWriteError(ctx, req.EntityID, err)
		}
		e.observe(ctx, res)
		return res, err
	}
	span.SetAttributes(attribute.Bool("orientation.written", written))

	e.observe(ctx, res)
	return res, nil
}

func (e *Engine) observe(ctx context.Context, res Result) {
	if e.observer != nil {
		e.observer.ObserveResolution(ctx, res)
	}
}
