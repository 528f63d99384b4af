package registry

import (
	"context"
	"fmt"
	"regexp"

	"github.com/arcllm/arcllm"
	"github.com/arcllm/arcllm/config"
	"github.com/arcllm/arcllm/middleware"
)

// wrapMiddleware applies the fixed innermost-first stacking order:
// rate-limit -> fallback -> retry -> audit -> security -> telemetry ->
// OTel (OTel outermost). Each layer wraps only when (a) its module is
// enabled in global config OR (b) the caller's Toggle forces it on, and
// never when the caller's Toggle forces it off.
func wrapMiddleware(provider arcllm.Provider, global *config.GlobalConfig, metadata arcllm.ModelMetadata, opts LoadOptions) (arcllm.Provider, error) {
	logger := opts.Logger
	if logger == nil {
		logger = arcllm.NoopLogger{}
	}
	registerer := opts.Registerer

	var current arcllm.Provider = provider

	if enabled, settings := opts.RateLimit.resolved(global.Module("rate_limit").Enabled, global.Module("rate_limit").Settings); enabled {
		cfg := middleware.RateLimitConfig{
			RequestsPerMinute: settingFloat(settings, "requests_per_minute", 60),
			BurstCapacity:     settingInt(settings, "burst_capacity", 10),
		}
		rl, err := middleware.NewRateLimit(current, cfg, logger)
		if err != nil {
			return nil, err
		}
		current = rl
	}

	if enabled, settings := opts.Fallback.resolved(global.Module("fallback").Enabled, global.Module("fallback").Settings); enabled {
		chain := settingStringSlice(settings, "chain")
		current = middleware.NewFallback(current, middleware.FallbackConfig{Chain: chain}, fallbackFactory(opts))
	}

	if enabled, settings := opts.Retry.resolved(global.Module("retry").Enabled, global.Module("retry").Settings); enabled {
		cfg := middleware.RetryConfig{
			MaxRetries:     settingInt(settings, "max_retries", 3),
			BackoffBase:    settingFloat(settings, "backoff_base", 0.5),
			MaxWait:        settingFloat(settings, "max_wait", 30.0),
			RetryableCodes: settingIntSlice(settings, "retryable_status_codes"),
		}
		r, err := middleware.NewRetry(current, cfg)
		if err != nil {
			return nil, err
		}
		current = r
	}

	if enabled, settings := opts.Audit.resolved(global.Module("audit").Enabled, global.Module("audit").Settings); enabled {
		cfg := middleware.AuditConfig{
			LogLevel:        arcllm.LogLevel(settingString(settings, "log_level", "INFO")),
			IncludeMessages: settingBool(settings, "include_messages", false),
			IncludeResponse: settingBool(settings, "include_response", false),
		}
		a, err := middleware.NewAudit(current, cfg, logger)
		if err != nil {
			return nil, err
		}
		current = a
	}

	if enabled, settings := opts.Security.resolved(global.Module("security").Enabled, global.Module("security").Settings); enabled {
		cfg := middleware.SecurityConfig{
			SigningEnabled:   settingBool(settings, "signing_enabled", false),
			SigningEnvVar:    settingString(settings, "signing_env", ""),
			SigningAlgorithm: settingString(settings, "signing_algorithm", ""),
		}
		detector, err := piiDetectorFromSettings(settings)
		if err != nil {
			return nil, err
		}
		cfg.Detector = detector
		s, err := middleware.NewSecurity(current, cfg)
		if err != nil {
			return nil, err
		}
		current = s
	}

	if enabled, settings := opts.Telemetry.resolved(global.Module("telemetry").Enabled, global.Module("telemetry").Settings); enabled {
		cfg := middleware.TelemetryConfig{
			LogLevel: arcllm.LogLevel(settingString(settings, "log_level", "INFO")),
			// Set-if-absent pricing injection: an explicit setting in the
			// module config/override takes precedence; otherwise the
			// resolved model's own cost fields fill the gap.
			CostInputPerMillion:      settingFloatOrModel(settings, "cost_input_per_million", metadata.CostInputPerMillion),
			CostOutputPerMillion:     settingFloatOrModel(settings, "cost_output_per_million", metadata.CostOutputPerMillion),
			CostCacheReadPerMillion:  settingFloatOrModel(settings, "cost_cache_read_per_million", metadata.CostCacheReadPerMillion),
			CostCacheWritePerMillion: settingFloatOrModel(settings, "cost_cache_write_per_million", metadata.CostCacheWritePerMillion),
		}
		t, err := middleware.NewTelemetry(current, cfg, logger, registerer)
		if err != nil {
			return nil, err
		}
		current = t
	}

	if enabled, settings := opts.OTel.resolved(global.Module("otel").Enabled, global.Module("otel").Settings); enabled {
		cfg := middleware.OTelConfig{
			ServiceName:  settingString(settings, "service_name", "arcllm"),
			Exporter:     settingString(settings, "exporter", "none"),
			Endpoint:     settingString(settings, "endpoint", ""),
			Protocol:     settingString(settings, "protocol", "grpc"),
			SamplingRate: settingFloat(settings, "sampling_rate", 1.0),
			TLSInsecure:  settingBool(settings, "tls_insecure", false),
		}
		o, _, err := middleware.NewOTel(current, cfg)
		if err != nil {
			return nil, err
		}
		current = o
	}

	return current, nil
}

// piiDetectorFromSettings builds the security module's detector: the
// default pattern set plus any [modules.security.pii_patterns] entries
// (type name -> regex). A malformed regex is a ConfigError; no extra
// patterns returns nil so NewSecurity falls back to the default detector.
func piiDetectorFromSettings(settings map[string]any) (middleware.PiiDetector, error) {
	raw, ok := settings["pii_patterns"].(map[string]any)
	if !ok || len(raw) == 0 {
		return nil, nil
	}
	extra := map[string]*regexp.Regexp{}
	for name, v := range raw {
		s, ok := v.(string)
		if !ok {
			return nil, arcllm.NewConfigError("security", fmt.Sprintf("pii_patterns.%s must be a string", name))
		}
		re, err := regexp.Compile(s)
		if err != nil {
			return nil, arcllm.NewConfigError("security", fmt.Sprintf("pii_patterns.%s is not a valid regex: %v", name, err))
		}
		extra[name] = re
	}
	return middleware.NewRegexPiiDetector(extra), nil
}

// settingFloatOrModel applies the set-if-absent rule: if key is present
// in settings, it wins; otherwise modelValue (from ModelMetadata) fills
// in.
func settingFloatOrModel(settings map[string]any, key string, modelValue float64) float64 {
	if _, present := settings[key]; present {
		return settingFloat(settings, key, modelValue)
	}
	return modelValue
}

// fallbackFactory builds the ProviderFactory the fallback middleware uses
// to construct chain entries lazily, on demand, via this same registry —
// each fallback provider gets its own full middleware stack built from
// its own provider config, not a bare adapter.
func fallbackFactory(opts LoadOptions) middleware.ProviderFactory {
	return func(providerName string) (arcllm.Provider, error) {
		return LoadModel(context.Background(), providerName, LoadOptions{
			Logger:     opts.Logger,
			Registerer: opts.Registerer,
		})
	}
}
