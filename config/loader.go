package config

import (
	"fmt"
	"io/fs"
	"net/url"
	"regexp"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/arcllm/arcllm"
)

// providerNameRE is the provider-name grammar, checked before any
// filesystem lookup happens — a directory-traversal boundary, not just
// cosmetic validation.
var providerNameRE = regexp.MustCompile(`^[a-z][a-z0-9_]*$`)

const maxProviderNameLen = 64

// ValidateProviderName rejects anything that isn't a lowercase
// identifier, checked before name is ever used to build a file path.
func ValidateProviderName(name string) error {
	if len(name) == 0 || len(name) > maxProviderNameLen {
		return arcllm.NewConfigError("config", fmt.Sprintf("provider name %q exceeds length bounds", name))
	}
	if !providerNameRE.MatchString(name) {
		return arcllm.NewConfigError("config", fmt.Sprintf("provider name %q does not match ^[a-z][a-z0-9_]*$", name))
	}
	return nil
}

// source is the filesystem config files are read from. It defaults to the
// package-embedded defaults (package-relative discovery, never the
// caller's cwd) and can be swapped for tests via SetSource.
var (
	mu            sync.Mutex
	source        fs.FS = defaultFS
	globalCache   *GlobalConfig
	providerCache = map[string]*ProviderConfig{}
)

// SetSource overrides the filesystem config is loaded from and clears any
// cached documents. Test-only; production code never calls this.
func SetSource(f fs.FS) {
	mu.Lock()
	defer mu.Unlock()
	source = f
	globalCache = nil
	providerCache = map[string]*ProviderConfig{}
}

// ClearCache drops the cached global and per-provider configs. The only
// sanctioned way to observe a config change within one process lifetime;
// production code never calls this either — config is otherwise immutable
// for the process's lifetime.
func ClearCache() {
	mu.Lock()
	defer mu.Unlock()
	globalCache = nil
	providerCache = map[string]*ProviderConfig{}
}

// LoadGlobalConfig loads and validates the global module/defaults/vault
// document, caching the result for the process lifetime.
func LoadGlobalConfig() (*GlobalConfig, error) {
	mu.Lock()
	defer mu.Unlock()
	if globalCache != nil {
		return globalCache, nil
	}
	data, err := fs.ReadFile(source, "global.toml")
	if err != nil {
		return nil, arcllm.NewConfigError("config", "global.toml not found: "+err.Error())
	}
	var cfg GlobalConfig
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, arcllm.NewConfigError("config", "failed to parse global.toml: "+err.Error())
	}
	if err := rejectUnknownKeys("global.toml", md); err != nil {
		return nil, err
	}
	globalCache = &cfg
	return globalCache, nil
}

// LoadProviderConfig loads and validates the named provider's document,
// caching the result. name is validated against the provider-name grammar
// before it ever reaches a filesystem path.
func LoadProviderConfig(name string) (*ProviderConfig, error) {
	if err := ValidateProviderName(name); err != nil {
		return nil, err
	}

	mu.Lock()
	defer mu.Unlock()
	if cfg, ok := providerCache[name]; ok {
		return cfg, nil
	}

	data, err := fs.ReadFile(source, "providers/"+name+".toml")
	if err != nil {
		return nil, arcllm.NewConfigError("config", fmt.Sprintf("provider config for %q not found: %v", name, err))
	}
	var cfg ProviderConfig
	md, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return nil, arcllm.NewConfigError("config", fmt.Sprintf("failed to parse provider config for %q: %v", name, err))
	}
	if err := rejectUnknownKeys("providers/"+name+".toml", md); err != nil {
		return nil, err
	}
	if err := validateProviderConfig(name, &cfg); err != nil {
		return nil, err
	}
	providerCache[name] = &cfg
	return providerCache[name], nil
}

// rejectUnknownKeys turns any key the struct didn't absorb into a
// ConfigError. Module tables decode into a free-form map, so their
// module-specific keys never land here — only genuine typos do.
func rejectUnknownKeys(doc string, md toml.MetaData) error {
	if un := md.Undecoded(); len(un) > 0 {
		return arcllm.NewConfigError("config", fmt.Sprintf("%s: unknown key %q", doc, un[0].String()))
	}
	return nil
}

func validateProviderConfig(name string, cfg *ProviderConfig) error {
	if cfg.Provider.APIFormat == "" {
		return arcllm.NewConfigError("config", fmt.Sprintf("provider %q: missing provider.api_format", name))
	}
	if cfg.Provider.BaseURL == "" {
		return arcllm.NewConfigError("config", fmt.Sprintf("provider %q: missing provider.base_url", name))
	}
	if err := requireHTTPSOrLoopback(cfg.Provider.BaseURL); err != nil {
		return arcllm.NewConfigError("config", fmt.Sprintf("provider %q: %v", name, err))
	}
	return nil
}

// requireHTTPSOrLoopback rejects plaintext base_urls: they must be
// https:// unless they point at a loopback host (local-inference
// providers such as Ollama default to plain HTTP on localhost).
func requireHTTPSOrLoopback(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("base_url %q is not a valid URL: %w", raw, err)
	}
	if u.Scheme == "https" {
		return nil
	}
	if isLoopbackHost(u.Hostname()) {
		return nil
	}
	return fmt.Errorf("base_url %q must use https:// unless it targets a loopback host", raw)
}

func isLoopbackHost(host string) bool {
	switch host {
	case "localhost", "127.0.0.1", "::1":
		return true
	default:
		return false
	}
}
