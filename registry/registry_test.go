package registry

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcllm/arcllm"
	"github.com/arcllm/arcllm/adapters"
	"github.com/arcllm/arcllm/middleware"
)

func TestToggleResolved(t *testing.T) {
	configSettings := map[string]any{"max_retries": int64(5)}

	enabled, settings := Toggle{}.resolved(true, configSettings)
	assert.True(t, enabled)
	assert.EqualValues(t, int64(5), settings["max_retries"])

	enabled, _ = Toggle{}.resolved(false, configSettings)
	assert.False(t, enabled, "unset defers to config")

	enabled, _ = Off().resolved(true, configSettings)
	assert.False(t, enabled, "off wins over config")

	enabled, settings = On(map[string]any{"max_retries": int64(1)}).resolved(false, configSettings)
	assert.True(t, enabled, "on wins over config")
	assert.EqualValues(t, int64(1), settings["max_retries"], "caller settings merge over config settings")
}

func TestToggleOnMergePreservesUntouchedConfigKeys(t *testing.T) {
	_, settings := On(map[string]any{"b": 2}).resolved(false, map[string]any{"a": 1, "b": 9})
	assert.Equal(t, 1, settings["a"])
	assert.Equal(t, 2, settings["b"])
}

func TestSettingHelpersHandleTOMLNumericDuality(t *testing.T) {
	m := map[string]any{
		"as_int64":   int64(7),
		"as_float64": 7.5,
		"str":        "x",
		"flag":       true,
		"codes":      []any{int64(429), int64(500)},
		"names":      []any{"a", "b"},
	}
	assert.Equal(t, 7, settingInt(m, "as_int64", 0))
	assert.Equal(t, 7, settingInt(m, "as_float64", 0))
	assert.Equal(t, 7.0, settingFloat(m, "as_int64", 0))
	assert.Equal(t, 7.5, settingFloat(m, "as_float64", 0))
	assert.Equal(t, 3, settingInt(m, "missing", 3))
	assert.Equal(t, "x", settingString(m, "str", ""))
	assert.True(t, settingBool(m, "flag", false))
	assert.Equal(t, []int{429, 500}, settingIntSlice(m, "codes"))
	assert.Equal(t, []string{"a", "b"}, settingStringSlice(m, "names"))
}

func TestSettingFloatOrModelSetIfAbsent(t *testing.T) {
	assert.Equal(t, 9.0, settingFloatOrModel(map[string]any{"cost": 9.0}, "cost", 3.0), "explicit setting wins")
	assert.Equal(t, 3.0, settingFloatOrModel(map[string]any{}, "cost", 3.0), "model pricing fills the gap")
}

func TestPiiDetectorFromSettings(t *testing.T) {
	d, err := piiDetectorFromSettings(map[string]any{})
	require.NoError(t, err)
	assert.Nil(t, d, "no extra patterns means the middleware default")

	d, err = piiDetectorFromSettings(map[string]any{
		"pii_patterns": map[string]any{"BADGE": `\bEMP-\d{6}\b`},
	})
	require.NoError(t, err)
	require.NotNil(t, d)
	assert.Equal(t, "badge [PII:BADGE] here", middleware.Redact(d, "badge EMP-123456 here"))

	_, err = piiDetectorFromSettings(map[string]any{
		"pii_patterns": map[string]any{"BROKEN": `([`},
	})
	require.Error(t, err)
	var cfgErr *arcllm.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestLoadModelRejectsInvalidProviderName(t *testing.T) {
	ClearCache()
	_, err := LoadModel(context.Background(), "../escape", LoadOptions{})
	require.Error(t, err)
	var cfgErr *arcllm.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestLoadModelUnknownProviderIsConfigError(t *testing.T) {
	ClearCache()
	_, err := LoadModel(context.Background(), "unregistered_provider", LoadOptions{})
	require.Error(t, err)
	var cfgErr *arcllm.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestLoadModelMissingRequiredSecretIsConfigError(t *testing.T) {
	ClearCache()
	t.Setenv("ANTHROPIC_API_KEY", "")
	_, err := LoadModel(context.Background(), "anthropic", LoadOptions{})
	require.Error(t, err)
	var cfgErr *arcllm.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestLoadModelOptionalSecretProviderConstructs(t *testing.T) {
	ClearCache()
	defer ClearCache()

	p, err := LoadModel(context.Background(), "ollama", LoadOptions{
		Registerer: prometheus.NewRegistry(),
	})
	require.NoError(t, err, "api_key_required=false providers need no secret")
	assert.Equal(t, "ollama", p.Name())
	assert.Equal(t, "llama3.3", p.ModelName())
}

func TestLoadModelExplicitModelOverridesDefault(t *testing.T) {
	ClearCache()
	defer ClearCache()

	p, err := LoadModel(context.Background(), "ollama", LoadOptions{
		Model:      "llama3.3",
		Registerer: prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	assert.Equal(t, "llama3.3", p.ModelName())
}

func TestLoadModelAllTogglesOffReturnsBareAdapter(t *testing.T) {
	ClearCache()
	defer ClearCache()

	p, err := LoadModel(context.Background(), "ollama", LoadOptions{
		RateLimit: Off(),
		Fallback:  Off(),
		Retry:     Off(),
		Audit:     Off(),
		Security:  Off(),
		Telemetry: Off(),
		OTel:      Off(),
	})
	require.NoError(t, err)

	_, isAdapter := p.(*adapters.OpenAI)
	assert.True(t, isAdapter, "with every toggle off nothing should wrap the adapter")
	assert.Equal(t, "ollama", p.Name())
}

func TestLoadModelExposesModelMetadataPricing(t *testing.T) {
	ClearCache()
	defer ClearCache()

	t.Setenv("MISTRAL_API_KEY", "sk-test")
	p, err := LoadModel(context.Background(), "mistral", LoadOptions{
		Registerer: prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	assert.Equal(t, 2.0, p.ModelMetadata().CostInputPerMillion)
}
