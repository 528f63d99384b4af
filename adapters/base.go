// Package adapters implements the per-provider wire-format translation
// layer: one HTTP client per adapter instance, centralized error mapping,
// and two wire formats (Anthropic's native Messages format and the
// OpenAI-compatible Chat Completions format ten providers share).
// Adapters talk directly over net/http rather than an official provider
// SDK because the contract here is endpoint composition, header
// construction and truncated-body error capture — exactly the knobs the
// official SDKs abstract away.
package adapters

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/arcllm/arcllm"
)

// Base holds the plumbing every adapter shares: the resolved secret, the
// pooled HTTP client, and the model-metadata view. Concrete adapters embed
// Base and own only name, header/body construction, message/tool
// formatting, response/tool-call parsing, usage parsing and stop-reason
// mapping.
type Base struct {
	ProviderName string
	Model        string
	BaseURL      string
	Secret       string
	Metadata     arcllm.ModelMetadata

	HTTPClient *http.Client
}

// NewBase resolves nothing itself — the registry resolves the secret
// before constructing an adapter, so a missing required key fails fast —
// it just wires up a pooled, keep-alive HTTP client shared for the
// adapter's lifetime.
func NewBase(providerName, model, baseURL, secret string, metadata arcllm.ModelMetadata) Base {
	return Base{
		ProviderName: providerName,
		Model:        model,
		BaseURL:      baseURL,
		Secret:       secret,
		Metadata:     metadata,
		HTTPClient: &http.Client{
			Timeout: 120 * time.Second,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

func (b Base) Name() string                         { return b.ProviderName }
func (b Base) ModelName() string                     { return b.Model }
func (b Base) ModelMetadata() arcllm.ModelMetadata   { return b.Metadata }

// Do executes req and classifies any non-2xx response or transport
// failure into the closed error taxonomy, never letting a raw *url.Error
// or http.Response leak to a caller.
func (b Base) Do(ctx context.Context, req *http.Request) (*http.Response, error) {
	resp, err := b.HTTPClient.Do(req.WithContext(ctx))
	if err != nil {
		if ctx.Err() != nil {
			return nil, &arcllm.TimeoutError{Provider: b.ProviderName, Err: err}
		}
		if urlErr, ok := err.(*url.Error); ok && urlErr.Timeout() {
			return nil, &arcllm.TimeoutError{Provider: b.ProviderName, Err: err}
		}
		return nil, &arcllm.ConnectError{Provider: b.ProviderName, Err: err}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &arcllm.AuthError{Provider: b.ProviderName, Message: string(body)}
	}

	return nil, arcllm.NewAPIError(b.ProviderName, resp.StatusCode, string(body), parseRetryAfter(resp.Header.Get("Retry-After")))
}

// parseRetryAfter parses the Retry-After header as a float number of
// seconds. Anything that isn't a plain number — including a well-formed
// HTTP-date — resolves to nil rather than an error; retry middleware
// treats nil as "no hint" and falls back to its own backoff.
func parseRetryAfter(raw string) *float64 {
	if raw == "" {
		return nil
	}
	if f, err := strconv.ParseFloat(raw, 64); err == nil {
		return &f
	}
	return nil
}
