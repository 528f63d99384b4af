// Package middleware implements the composable decorator chain around an
// adapter: rate limiting, retry, fallback, telemetry, audit, security
// (PII redaction + signing) and OpenTelemetry, each wrapping an inner
// arcllm.Provider and forwarding to it by default. The registry package
// stacks them in a fixed innermost-first order; shared state (rate-limit
// buckets keyed by provider name) lives at package scope so every
// instance built for the same provider throttles against one bucket.
package middleware

import (
	"context"

	"github.com/arcllm/arcllm"
)

// Base is the transparent wrapper every middleware embeds. Its default
// Invoke forwards unchanged; Name and ModelName delegate to Inner. A
// concrete middleware overrides only what it needs by defining its own
// Invoke method that calls through to Base.Inner.Invoke (directly or via
// a span).
type Base struct {
	Inner arcllm.Provider
}

func (b Base) Name() string                       { return b.Inner.Name() }
func (b Base) ModelName() string                   { return b.Inner.ModelName() }
func (b Base) ModelMetadata() arcllm.ModelMetadata { return b.Inner.ModelMetadata() }

func (b Base) Invoke(ctx context.Context, req *arcllm.Request) (*arcllm.LLMResponse, error) {
	return b.Inner.Invoke(ctx, req)
}

// WithSpan is re-exported for middleware files so they don't need to
// import arcllm directly just for the scoped-span helper.
var WithSpan = arcllm.WithSpan
