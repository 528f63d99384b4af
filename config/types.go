// Package config loads and validates the TOML documents that describe
// providers and the global module stack. Documents are embedded with the
// package (package-relative discovery, never the caller's working
// directory), decoded with github.com/BurntSushi/toml, validated, and
// cached for the process lifetime.
package config

import "github.com/arcllm/arcllm"

// ProviderSettings is the [provider] table of one provider's document.
type ProviderSettings struct {
	APIFormat          string   `toml:"api_format"`
	BaseURL            string   `toml:"base_url"`
	APIKeyEnv          string   `toml:"api_key_env"`
	APIKeyRequired     *bool    `toml:"api_key_required"`
	DefaultModel       string   `toml:"default_model"`
	DefaultTemperature *float64 `toml:"default_temperature"`
	VaultPath          string   `toml:"vault_path"`
}

// IsAPIKeyRequired defaults to true: absent from the TOML document means
// required.
func (p ProviderSettings) IsAPIKeyRequired() bool {
	if p.APIKeyRequired == nil {
		return true
	}
	return *p.APIKeyRequired
}

// ModelConfig is one [models."<name>"] table; ToMetadata converts it to
// the runtime arcllm.ModelMetadata view.
type ModelConfig struct {
	ContextWindow    int      `toml:"context_window"`
	MaxOutputTokens  int      `toml:"max_output_tokens"`
	SupportsTools    bool     `toml:"supports_tools"`
	SupportsVision   bool     `toml:"supports_vision"`
	SupportsThinking bool     `toml:"supports_thinking"`
	InputModalities  []string `toml:"input_modalities"`

	CostInputPerMillion      float64 `toml:"cost_input_per_million"`
	CostOutputPerMillion     float64 `toml:"cost_output_per_million"`
	CostCacheReadPerMillion  float64 `toml:"cost_cache_read_per_million"`
	CostCacheWritePerMillion float64 `toml:"cost_cache_write_per_million"`
}

// ToMetadata converts the wire representation to the runtime view used by
// Provider.ModelMetadata and the telemetry middleware's pricing injection.
func (m ModelConfig) ToMetadata() arcllm.ModelMetadata {
	return arcllm.ModelMetadata{
		ContextWindow:            m.ContextWindow,
		MaxOutputTokens:          m.MaxOutputTokens,
		SupportsTools:            m.SupportsTools,
		SupportsVision:           m.SupportsVision,
		SupportsThinking:         m.SupportsThinking,
		InputModalities:          m.InputModalities,
		CostInputPerMillion:      m.CostInputPerMillion,
		CostOutputPerMillion:     m.CostOutputPerMillion,
		CostCacheReadPerMillion:  m.CostCacheReadPerMillion,
		CostCacheWritePerMillion: m.CostCacheWritePerMillion,
	}
}

// ProviderConfig is one provider's TOML document: its connection settings
// plus the models it exposes.
type ProviderConfig struct {
	Provider ProviderSettings       `toml:"provider"`
	Models   map[string]ModelConfig `toml:"models"`
}

// ProviderDefaults is one entry under [defaults.<provider>] in the global
// config.
type ProviderDefaults struct {
	DefaultModel string `toml:"default_model"`
}

// VaultConfig is the [vault] table in the global config.
type VaultConfig struct {
	Backend    string `toml:"backend"`
	Address    string `toml:"address"`
	TTLSeconds int    `toml:"cache_ttl_seconds"`
}

// TTL returns the configured cache TTL, defaulting to 300s.
func (v VaultConfig) TTL() int {
	if v.TTLSeconds <= 0 {
		return 300
	}
	return v.TTLSeconds
}

// ModuleConfig is one entry under [modules.<name>]: a free-form mapping a
// module validates itself at construction, plus the enabled flag every
// module table carries.
type ModuleConfig struct {
	Enabled  bool
	Settings map[string]any
}

// GlobalConfig is the top-level global TOML document.
type GlobalConfig struct {
	Defaults map[string]ProviderDefaults `toml:"defaults"`
	Vault    VaultConfig                 `toml:"vault"`
	Modules  map[string]map[string]any   `toml:"modules"`
}

// Module returns the named module's config, extracting "enabled" from the
// raw settings map. A module absent from the document is disabled with an
// empty settings map.
func (g *GlobalConfig) Module(name string) ModuleConfig {
	raw, ok := g.Modules[name]
	if !ok {
		return ModuleConfig{Enabled: false, Settings: map[string]any{}}
	}
	enabled, _ := raw["enabled"].(bool)
	return ModuleConfig{Enabled: enabled, Settings: raw}
}
