package arcllm

import "context"

// Provider is the capability every adapter and every middleware layer
// implements. Middleware wraps an inner Provider and forwards to it by
// default, so the whole stack composes by containment rather than
// inheritance.
type Provider interface {
	// Name is the provider identifier used for rate-limit bucket keys,
	// registry lookups and log fields (e.g. "anthropic", "openai").
	Name() string

	// ModelName is the model this Provider instance was constructed for.
	ModelName() string

	// ModelMetadata returns the pricing/capability view for ModelName, or
	// the zero value if the registry has no entry for it.
	ModelMetadata() ModelMetadata

	// Invoke performs one chat-completion call and returns a normalized
	// response or a taxonomy error (ConfigError/ParseError/APIError/
	// AuthError/ConnectError/TimeoutError).
	Invoke(ctx context.Context, req *Request) (*LLMResponse, error)
}

// ModelMetadata is the capability/pricing view the registry injects into
// telemetry and exposes through Provider.ModelMetadata.
type ModelMetadata struct {
	ContextWindow    int
	MaxOutputTokens  int
	SupportsTools    bool
	SupportsVision   bool
	SupportsThinking bool
	InputModalities  []string

	CostInputPerMillion      float64
	CostOutputPerMillion     float64
	CostCacheReadPerMillion  float64
	CostCacheWritePerMillion float64
}
