package arcllm

import "context"

// Span is the minimal capability middleware needs from a trace span:
// attach an event, record an error (setting status ERROR), and close it.
// It is an interface so non-tracing middleware never has to import the
// OTel SDK.
type Span interface {
	AddEvent(name string, fields ...Field)
	RecordError(err error)
	End()
}

// Tracer opens spans. NoopTracer is used whenever no tracing SDK has been
// configured; the OTel middleware (middleware/otel.go) installs a real
// one into the request context so inner middleware picks it up
// transparently without depending on the OTel package.
type Tracer interface {
	Start(ctx context.Context, name string) (context.Context, Span)
}

type noopSpan struct{}

func (noopSpan) AddEvent(string, ...Field) {}
func (noopSpan) RecordError(error)         {}
func (noopSpan) End()                      {}

type noopTracer struct{}

func (noopTracer) Start(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, noopSpan{}
}

// NoopTracer is the zero-cost Tracer used absent any configured SDK.
var NoopTracer Tracer = noopTracer{}

type tracerCtxKey struct{}

// ContextWithTracer installs t so WithSpan (and TracerFromContext) pick it
// up for every nested call. The OTel middleware calls this once at the
// top of the stack.
func ContextWithTracer(ctx context.Context, t Tracer) context.Context {
	return context.WithValue(ctx, tracerCtxKey{}, t)
}

// TracerFromContext returns the tracer installed by ContextWithTracer, or
// NoopTracer if none was installed.
func TracerFromContext(ctx context.Context) Tracer {
	if t, ok := ctx.Value(tracerCtxKey{}).(Tracer); ok && t != nil {
		return t
	}
	return NoopTracer
}

// WithSpan opens a child span named name, runs fn, records any returned
// error as a span event and error status, then closes the span before
// returning fn's error unchanged. This is the scoped-span helper every
// middleware layer uses instead of managing spans by hand.
func WithSpan(ctx context.Context, name string, fn func(ctx context.Context, span Span) error) error {
	ctx, span := TracerFromContext(ctx).Start(ctx, name)
	defer span.End()
	if err := fn(ctx, span); err != nil {
		span.RecordError(err)
		return err
	}
	return nil
}

type purposeCtxKey struct{}

// ContextWithPurpose tags ctx with a free-form call purpose (e.g.
// "agent", "summarization") for log/trace enrichment.
func ContextWithPurpose(ctx context.Context, purpose string) context.Context {
	return context.WithValue(ctx, purposeCtxKey{}, purpose)
}

// PurposeFromContext returns the purpose tagged by ContextWithPurpose, or
// "" if none was set.
func PurposeFromContext(ctx context.Context) string {
	if p, ok := ctx.Value(purposeCtxKey{}).(string); ok {
		return p
	}
	return ""
}
