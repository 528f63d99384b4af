// Package vault resolves provider API keys: a pluggable Backend (vault,
// Redis, ...) checked first when configured, falling back to an
// environment variable. Backend reads go through a TTL cache with
// concurrent lookups for the same path coalesced into one fetch.
package vault

import (
	"context"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/arcllm/arcllm"
)

// Backend is the pluggable secret store contract.
type Backend interface {
	GetSecret(ctx context.Context, path string) (string, bool, error)
	IsAvailable(ctx context.Context) bool
}

type cacheEntry struct {
	value   string
	expires time.Time // monotonic-backed time.Time (time.Now() carries a monotonic reading)
}

// Resolver resolves a provider's secret: vault backend (if configured and
// a vault_path is set, using a cached value when still fresh) then an
// environment variable, raising ConfigError only when the secret is
// genuinely required and neither source produced one.
type Resolver struct {
	Backend Backend
	TTL     time.Duration

	mu    sync.Mutex
	cache map[string]cacheEntry
	group singleflight.Group
}

// NewResolver builds a Resolver. backend may be nil (env-only resolution).
// A non-positive ttl defaults to 300s.
func NewResolver(backend Backend, ttl time.Duration) *Resolver {
	if ttl <= 0 {
		ttl = 300 * time.Second
	}
	return &Resolver{Backend: backend, TTL: ttl, cache: map[string]cacheEntry{}}
}

// Resolve tries each source in order: vault backend (cache if fresh) ->
// env var -> ConfigError if required and still empty.
func (r *Resolver) Resolve(ctx context.Context, provider, vaultPath, envVar string, required bool) (string, error) {
	if r.Backend != nil && vaultPath != "" && r.Backend.IsAvailable(ctx) {
		if v, ok := r.cached(vaultPath); ok {
			return v, nil
		}
		v, err, _ := r.group.Do(vaultPath, func() (any, error) {
			val, found, err := r.Backend.GetSecret(ctx, vaultPath)
			if err != nil {
				return "", err
			}
			if found {
				r.store(vaultPath, val)
			}
			return val, nil
		})
		if err == nil {
			if s, _ := v.(string); s != "" {
				return s, nil
			}
		}
	}

	if envVar != "" {
		if v := os.Getenv(envVar); v != "" {
			return v, nil
		}
	}

	if required {
		return "", arcllm.NewConfigError("vault", "no secret available for provider "+provider)
	}
	return "", nil
}

func (r *Resolver) cached(path string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.cache[path]
	if !ok || time.Now().After(e.expires) {
		return "", false
	}
	return e.value, true
}

func (r *Resolver) store(path, value string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache[path] = cacheEntry{value: value, expires: time.Now().Add(r.TTL)}
}

// ClearCache drops every cached secret. Test hook, mirroring
// config.ClearCache.
func (r *Resolver) ClearCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache = map[string]cacheEntry{}
}
