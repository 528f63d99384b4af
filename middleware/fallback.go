package middleware

import (
	"context"

	"github.com/arcllm/arcllm"
)

// ProviderFactory constructs a fresh, fully-wrapped Provider for a
// provider name on demand. Fallback never imports the registry package
// directly (that would cycle registry -> middleware -> registry); the
// registry injects this function when it builds the Fallback layer, so
// chain entries are constructed lazily through the registry itself.
type ProviderFactory func(providerName string) (arcllm.Provider, error)

// FallbackConfig is an ordered chain of provider names tried in order
// after Inner (the primary) fails. An empty chain is valid — Fallback
// degenerates to pass-through.
type FallbackConfig struct {
	Chain []string
}

// Fallback tries Inner first; on failure it walks Chain in order,
// constructing each candidate lazily and invoking it once (no retry of
// its own — retry wraps fallback in the fixed stacking order, not the
// reverse). The first success wins. If every candidate also fails, the
// error returned is the *primary*'s original error, never the last
// fallback's — callers always see why the call they actually asked for
// didn't work.
type Fallback struct {
	Base
	cfg     FallbackConfig
	factory ProviderFactory
}

func NewFallback(inner arcllm.Provider, cfg FallbackConfig, factory ProviderFactory) *Fallback {
	return &Fallback{Base: Base{Inner: inner}, cfg: cfg, factory: factory}
}

func (f *Fallback) Invoke(ctx context.Context, req *arcllm.Request) (*arcllm.LLMResponse, error) {
	resp, primaryErr := f.Inner.Invoke(ctx, req)
	if primaryErr == nil {
		return resp, nil
	}
	if len(f.cfg.Chain) == 0 {
		return nil, primaryErr
	}

	for _, name := range f.cfg.Chain {
		candidate, err := f.factory(name)
		if err != nil {
			// Construction failure (e.g. a missing secret) is treated the
			// same as an invocation failure: the chain proceeds to the
			// next entry rather than aborting.
			continue
		}
		resp, err := candidate.Invoke(ctx, req)
		if err == nil {
			return resp, nil
		}
	}
	return nil, primaryErr
}
