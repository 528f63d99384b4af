package middleware

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	stdouttrace "go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/arcllm/arcllm"
)

// OTelConfig configures the outermost span and, when an exporter is
// selected, the SDK/exporter stack that ships it (OTLP protocol choice,
// auth headers, batch tuning, resource attributes). Of the TLS fields only
// TLSInsecure is applied to the OTLP exporter; TLSCAFile, TLSClientCert
// and TLSClientKey are not read when the exporter is built.
type OTelConfig struct {
	ServiceName string
	Exporter    string // "otlp" | "console" | "none"
	Endpoint    string
	Protocol    string // "grpc" | "http"

	SamplingRate float64

	AuthHeaders map[string]string

	TLSCAFile        string
	TLSClientCert    string
	TLSClientKey     string
	TLSInsecure      bool

	BatchTimeoutSeconds int
	BatchMaxQueueSize   int
	BatchMaxExportBatch int

	ResourceAttributes map[string]string
}

func (c OTelConfig) Validate() error {
	switch c.Exporter {
	case "otlp", "console", "none", "":
	default:
		return arcllm.NewConfigError("otel", "unknown exporter: "+c.Exporter)
	}
	switch c.Protocol {
	case "grpc", "http", "":
	default:
		return arcllm.NewConfigError("otel", "unknown protocol: "+c.Protocol)
	}
	if c.SamplingRate < 0 || c.SamplingRate > 1 {
		return arcllm.NewConfigError("otel", "sampling_rate must be within [0, 1]")
	}
	return nil
}

// OTel wraps Inner with the outermost root span named "arcllm.invoke",
// populated with GenAI semantic-convention attributes, and installs a
// real Tracer into the request context so every inner middleware's
// WithSpan calls nest under it transparently.
type OTel struct {
	Base
	cfg    OTelConfig
	tracer trace.Tracer
}

// NewOTel builds the SDK/exporter stack described by cfg and returns an
// OTel middleware plus a shutdown func the caller must invoke on process
// exit to flush pending spans. exporter="none" (or unset) installs a
// no-op provider with zero exporter wiring.
func NewOTel(inner arcllm.Provider, cfg OTelConfig) (*OTel, func(context.Context) error, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "arcllm"
	}

	if cfg.Exporter == "none" || cfg.Exporter == "" {
		provider := noop.NewTracerProvider()
		return &OTel{Base: Base{Inner: inner}, cfg: cfg, tracer: provider.Tracer("arcllm")}, func(context.Context) error { return nil }, nil
	}

	exporter, err := buildExporter(cfg)
	if err != nil {
		return nil, nil, err
	}

	attrs := []attribute.KeyValue{attribute.String("service.name", cfg.ServiceName)}
	for k, v := range cfg.ResourceAttributes {
		attrs = append(attrs, attribute.String(k, v))
	}
	res := resource.NewWithAttributes(resource.Default().SchemaURL(), attrs...)

	var batchOpts []sdktrace.BatchSpanProcessorOption
	if cfg.BatchTimeoutSeconds > 0 {
		batchOpts = append(batchOpts, sdktrace.WithBatchTimeout(secondsToDuration(cfg.BatchTimeoutSeconds)))
	}
	if cfg.BatchMaxQueueSize > 0 {
		batchOpts = append(batchOpts, sdktrace.WithMaxQueueSize(cfg.BatchMaxQueueSize))
	}
	if cfg.BatchMaxExportBatch > 0 {
		batchOpts = append(batchOpts, sdktrace.WithMaxExportBatchSize(cfg.BatchMaxExportBatch))
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithBatcher(exporter, batchOpts...),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SamplingRate)),
	}
	tp := sdktrace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)

	return &OTel{Base: Base{Inner: inner}, cfg: cfg, tracer: tp.Tracer("arcllm")}, tp.Shutdown, nil
}

func secondsToDuration(s int) time.Duration { return time.Duration(s) * time.Second }

func buildExporter(cfg OTelConfig) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case "console":
		return stdouttrace.New(stdouttrace.WithPrettyPrint())
	case "otlp":
		if cfg.Protocol == "http" {
			var httpOpts []otlptracehttp.Option
			if cfg.Endpoint != "" {
				httpOpts = append(httpOpts, otlptracehttp.WithEndpoint(cfg.Endpoint))
			}
			if cfg.TLSInsecure {
				httpOpts = append(httpOpts, otlptracehttp.WithInsecure())
			}
			if len(cfg.AuthHeaders) > 0 {
				httpOpts = append(httpOpts, otlptracehttp.WithHeaders(cfg.AuthHeaders))
			}
			return otlptracehttp.New(context.Background(), httpOpts...)
		}
		var grpcOpts []otlptracegrpc.Option
		if cfg.Endpoint != "" {
			grpcOpts = append(grpcOpts, otlptracegrpc.WithEndpoint(cfg.Endpoint))
		}
		if cfg.TLSInsecure {
			grpcOpts = append(grpcOpts, otlptracegrpc.WithInsecure())
		}
		if len(cfg.AuthHeaders) > 0 {
			grpcOpts = append(grpcOpts, otlptracegrpc.WithHeaders(cfg.AuthHeaders))
		}
		return otlptracegrpc.New(context.Background(), grpcOpts...)
	default:
		return nil, arcllm.NewConfigError("otel", fmt.Sprintf("unsupported exporter %q", cfg.Exporter))
	}
}

type otelSpan struct{ span trace.Span }

func (s otelSpan) AddEvent(name string, fields ...arcllm.Field) {
	attrs := make([]attribute.KeyValue, 0, len(fields))
	for _, f := range fields {
		attrs = append(attrs, attribute.String(f.Key, fmt.Sprintf("%v", f.Value)))
	}
	s.span.AddEvent(name, trace.WithAttributes(attrs...))
}

func (s otelSpan) RecordError(err error) {
	s.span.RecordError(err)
	s.span.SetStatus(codes.Error, err.Error())
}

func (s otelSpan) End() { s.span.End() }

type otelTracer struct{ t trace.Tracer }

func (t otelTracer) Start(ctx context.Context, name string) (context.Context, arcllm.Span) {
	ctx, span := t.t.Start(ctx, name)
	return ctx, otelSpan{span: span}
}

func (o *OTel) Invoke(ctx context.Context, req *arcllm.Request) (*arcllm.LLMResponse, error) {
	ctx = arcllm.ContextWithTracer(ctx, otelTracer{t: o.tracer})
	ctx, span := o.tracer.Start(ctx, "arcllm.invoke")
	defer span.End()

	span.SetAttributes(
		attribute.String("gen_ai.system", o.Name()),
		attribute.String("gen_ai.request.model", o.ModelName()),
	)

	resp, err := o.Inner.Invoke(ctx, req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}

	span.SetAttributes(
		attribute.String("gen_ai.response.model", resp.Model),
		attribute.StringSlice("gen_ai.response.finish_reasons", []string{string(resp.StopReason)}),
		attribute.Int("gen_ai.usage.input_tokens", resp.Usage.InputTokens),
		attribute.Int("gen_ai.usage.output_tokens", resp.Usage.OutputTokens),
	)
	return resp, nil
}
