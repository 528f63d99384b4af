// Package registry is arcllm's public entry point: LoadModel resolves a
// provider name to its config, adapter implementation and model
// metadata, resolves the provider's secret, and wraps the adapter in the
// fixed middleware stack. Adapter lookup is convention-based
// (adapters.Lookup, fed by each adapter file's init()) — there is no
// mapping dictionary maintained here.
package registry

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/arcllm/arcllm"
	"github.com/arcllm/arcllm/adapters"
	"github.com/arcllm/arcllm/config"
	"github.com/arcllm/arcllm/middleware"
	"github.com/arcllm/arcllm/vault"
)

// LoadOptions is the full set of per-call overrides LoadModel accepts.
// Every Toggle defaults to its zero value (ToggleUnset), meaning "do what
// the global config says" — a caller who only wants a different model
// name can pass an otherwise-empty LoadOptions.
type LoadOptions struct {
	Model string

	RateLimit Toggle
	Fallback  Toggle
	Retry     Toggle
	Audit     Toggle
	Security  Toggle
	Telemetry Toggle
	OTel      Toggle

	Logger     arcllm.Logger
	Registerer prometheus.Registerer
}

var resolver = vault.NewResolver(nil, 0)
var vaultConfigured bool

// LoadModel is the library's public entry point. It validates
// providerName, loads (and caches) the provider's TOML config, resolves
// model_name to the caller's override or the provider's default_model,
// looks up the registered adapter Factory by providerName — a missing
// registration is a ConfigError naming the expected adapter file rather
// than an opaque nil — resolves the secret, constructs the adapter, and
// wraps it in the fixed stack (rate-limit -> fallback -> retry -> audit
// -> security -> telemetry -> OTel, OTel outermost).
func LoadModel(ctx context.Context, providerName string, opts LoadOptions) (arcllm.Provider, error) {
	if err := config.ValidateProviderName(providerName); err != nil {
		return nil, err
	}

	global, err := config.LoadGlobalConfig()
	if err != nil {
		return nil, err
	}
	providerCfg, err := config.LoadProviderConfig(providerName)
	if err != nil {
		return nil, err
	}

	modelName := opts.Model
	if modelName == "" {
		modelName = providerCfg.Provider.DefaultModel
	}
	if modelName == "" {
		if d, ok := global.Defaults[providerName]; ok {
			modelName = d.DefaultModel
		}
	}

	factory, ok := adapters.Lookup(providerName)
	if !ok {
		return nil, arcllm.NewConfigError("registry", fmt.Sprintf(
			"no adapter registered for provider %q (expected an adapters.Register(%q, ...) call in an adapters/*.go file)", providerName, providerName))
	}

	ensureVaultBackend(global)
	secret, err := resolver.Resolve(ctx, providerName, providerCfg.Provider.VaultPath, providerCfg.Provider.APIKeyEnv, providerCfg.Provider.IsAPIKeyRequired())
	if err != nil {
		return nil, err
	}

	metadata := providerCfg.Models[modelName].ToMetadata()
	provider := factory(modelName, providerCfg.Provider.BaseURL, secret, metadata)

	return wrapMiddleware(provider, global, metadata, opts)
}

func ensureVaultBackend(global *config.GlobalConfig) {
	if vaultConfigured {
		return
	}
	vaultConfigured = true
	if global.Vault.Backend == "redis" && global.Vault.Address != "" {
		client := redis.NewClient(&redis.Options{Addr: global.Vault.Address})
		resolver.Backend = vault.NewRedisBackend(client)
	}
	resolver.TTL = time.Duration(global.Vault.TTL()) * time.Second
}

// ClearCache is a testing hook: it drops the config caches, the vault's
// secret cache and the rate-limit bucket registry, so test isolation is
// deterministic across runs.
func ClearCache() {
	config.ClearCache()
	resolver.ClearCache()
	middleware.ResetRateLimitBuckets()
	vaultConfigured = false
	resolver.Backend = nil
}
