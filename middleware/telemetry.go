package middleware

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/arcllm/arcllm"
)

// TelemetryConfig carries the final, already-resolved pricing used by the
// cost formula. The registry is responsible for set-if-absent injection
// from ModelMetadata before constructing Telemetry — this middleware
// never imports the config package itself.
type TelemetryConfig struct {
	LogLevel arcllm.LogLevel

	CostInputPerMillion      float64
	CostOutputPerMillion     float64
	CostCacheReadPerMillion  float64
	CostCacheWritePerMillion float64
}

func (c TelemetryConfig) Validate() error {
	if !arcllm.ValidLogLevel(c.LogLevel) {
		return arcllm.NewConfigError("telemetry", "invalid log level: "+string(c.LogLevel))
	}
	return nil
}

var (
	metricsOnce sync.Once

	callDuration *prometheus.HistogramVec
	callCost     *prometheus.CounterVec
	callTokens   *prometheus.CounterVec
)

// registerMetrics registers the package's Prometheus collectors exactly
// once per process, so constructing many Telemetry instances (one per
// provider) never panics on duplicate registration.
func registerMetrics(reg prometheus.Registerer) {
	metricsOnce.Do(func() {
		callDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "arcllm",
			Name:      "call_duration_seconds",
			Help:      "Wall-clock duration of a provider invocation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"provider", "model"})

		callCost = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arcllm",
			Name:      "call_cost_usd_total",
			Help:      "Cumulative estimated cost in USD.",
		}, []string{"provider", "model"})

		callTokens = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "arcllm",
			Name:      "call_tokens_total",
			Help:      "Cumulative token counts by kind.",
		}, []string{"provider", "model", "kind"})

		reg.MustRegister(callDuration, callCost, callTokens)
	})
}

// Telemetry times each call and, on success only, emits one structured
// log line plus a matching set of Prometheus observations. A failed
// inner call emits nothing — the error propagates untouched.
type Telemetry struct {
	Base
	cfg    TelemetryConfig
	Logger arcllm.Logger
}

func NewTelemetry(inner arcllm.Provider, cfg TelemetryConfig, logger arcllm.Logger, reg prometheus.Registerer) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = arcllm.NoopLogger{}
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	registerMetrics(reg)
	return &Telemetry{Base: Base{Inner: inner}, cfg: cfg, Logger: logger}, nil
}

// Cost estimates one call's USD cost from its token counts and per-million
// pricing. Absent cache-token counts contribute zero, and the result
// depends only on usage and pricing, so re-running the same call with the
// same inputs reproduces the same value.
func Cost(usage arcllm.Usage, cfg TelemetryConfig) float64 {
	cacheRead := 0
	if usage.CacheReadTokens != nil {
		cacheRead = *usage.CacheReadTokens
	}
	cacheWrite := 0
	if usage.CacheWriteTokens != nil {
		cacheWrite = *usage.CacheWriteTokens
	}
	total := float64(usage.InputTokens)*cfg.CostInputPerMillion +
		float64(usage.OutputTokens)*cfg.CostOutputPerMillion +
		float64(cacheRead)*cfg.CostCacheReadPerMillion +
		float64(cacheWrite)*cfg.CostCacheWritePerMillion
	return total / 1_000_000
}

func (t *Telemetry) Invoke(ctx context.Context, req *arcllm.Request) (*arcllm.LLMResponse, error) {
	correlationID := uuid.NewString()
	start := time.Now()
	resp, err := t.Inner.Invoke(ctx, req)
	if err != nil {
		return nil, err
	}
	duration := time.Since(start)

	cost := Cost(resp.Usage, t.cfg)
	model := resp.Model
	if model == "" {
		model = t.ModelName()
	}

	callDuration.WithLabelValues(t.Name(), model).Observe(duration.Seconds())
	callCost.WithLabelValues(t.Name(), model).Add(cost)
	callTokens.WithLabelValues(t.Name(), model, "input").Add(float64(resp.Usage.InputTokens))
	callTokens.WithLabelValues(t.Name(), model, "output").Add(float64(resp.Usage.OutputTokens))

	fields := []arcllm.Field{
		arcllm.F("correlation_id", correlationID),
		arcllm.F("provider", t.Name()),
		arcllm.F("model", model),
		arcllm.F("duration_ms", duration.Milliseconds()),
		arcllm.F("input_tokens", resp.Usage.InputTokens),
		arcllm.F("output_tokens", resp.Usage.OutputTokens),
		arcllm.F("total_tokens", resp.Usage.TotalTokens),
		arcllm.F("cost_usd", cost),
		arcllm.F("stop_reason", string(resp.StopReason)),
	}
	if resp.Usage.CacheReadTokens != nil {
		fields = append(fields, arcllm.F("cache_read_tokens", *resp.Usage.CacheReadTokens))
	}
	if resp.Usage.CacheWriteTokens != nil {
		fields = append(fields, arcllm.F("cache_write_tokens", *resp.Usage.CacheWriteTokens))
	}

	logAt(t.Logger, t.cfg.LogLevel, ctx, "llm call completed", fields...)
	return resp, nil
}

// logAt dispatches to the Logger method matching level, generalizing the
// closed LogLevel set to a single call site shared by telemetry and
// audit middleware.
func logAt(logger arcllm.Logger, level arcllm.LogLevel, ctx context.Context, msg string, fields ...arcllm.Field) {
	switch level {
	case arcllm.LogDebug:
		logger.Debug(ctx, msg, fields...)
	case arcllm.LogWarning:
		logger.Warn(ctx, msg, fields...)
	case arcllm.LogError:
		logger.Error(ctx, msg, fields...)
	case arcllm.LogCritical:
		logger.Critical(ctx, msg, fields...)
	default:
		logger.Info(ctx, msg, fields...)
	}
}
