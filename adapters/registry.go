package adapters

import (
	"sort"
	"sync"

	"github.com/arcllm/arcllm"
)

// Factory constructs a Provider for one wire format given an already
// resolved model, base URL, secret and model-metadata view. Construction
// never touches the vault or config packages itself — the registry
// package resolves those and calls the factory with plain values.
type Factory func(model, baseURL, secret string, metadata arcllm.ModelMetadata) arcllm.Provider

// File layout is the registry: each adapter file registers its own
// factory under its provider name in an init() function, so adding a
// provider variant means adding a file, never editing a central switch
// statement.
var (
	mu         sync.RWMutex
	registered = map[string]Factory{}
)

// Register associates a provider name with its Factory. Every provider's
// TOML config sets api_format to its own provider name (even the nine
// providers that share the OpenAI wire format each register under their
// own name, via openai_variants.go), so the registry package looks
// adapters up by providerName directly — one name, one file, one
// registration. Called from each adapter file's init().
func Register(providerName string, factory Factory) {
	mu.Lock()
	defer mu.Unlock()
	registered[providerName] = factory
}

// Lookup returns the Factory registered for providerName, or false if no
// adapter file has registered one — the caller (registry.LoadModel) turns
// a miss into a ConfigError naming the expected provider.
func Lookup(providerName string) (Factory, bool) {
	mu.RLock()
	defer mu.RUnlock()
	f, ok := registered[providerName]
	return f, ok
}

// KnownFormats returns the sorted list of registered provider names, used
// only to build a helpful ConfigError message on a lookup miss.
func KnownFormats() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(registered))
	for k := range registered {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
