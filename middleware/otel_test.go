package middleware

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcllm/arcllm"
)

func TestOTelConfigValidation(t *testing.T) {
	cases := []struct {
		cfg   OTelConfig
		valid bool
	}{
		{OTelConfig{Exporter: "none", SamplingRate: 1.0}, true},
		{OTelConfig{Exporter: "console", SamplingRate: 0.5}, true},
		{OTelConfig{Exporter: "otlp", Protocol: "grpc", SamplingRate: 0}, true},
		{OTelConfig{Exporter: "jaeger"}, false},
		{OTelConfig{Exporter: "none", Protocol: "udp"}, false},
		{OTelConfig{Exporter: "none", SamplingRate: 1.5}, false},
		{OTelConfig{Exporter: "none", SamplingRate: -0.1}, false},
	}
	for _, c := range cases {
		err := c.cfg.Validate()
		if c.valid {
			assert.NoError(t, err, "%+v", c.cfg)
		} else {
			assert.Error(t, err, "%+v", c.cfg)
		}
	}
}

func TestNewOTelNoneExporterIsPassThrough(t *testing.T) {
	inner := &fnProvider{invoke: func(ctx context.Context, req *arcllm.Request) (*arcllm.LLMResponse, error) {
		return &arcllm.LLMResponse{Content: "ok", StopReason: arcllm.StopEndTurn}, nil
	}}
	o, shutdown, err := NewOTel(inner, OTelConfig{Exporter: "none"})
	require.NoError(t, err)
	defer func() { _ = shutdown(context.Background()) }()

	resp, err := o.Invoke(context.Background(), &arcllm.Request{})
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Content)
}

func TestOTelInstallsTracerForInnerMiddleware(t *testing.T) {
	var sawRealTracer bool
	inner := &fnProvider{invoke: func(ctx context.Context, req *arcllm.Request) (*arcllm.LLMResponse, error) {
		sawRealTracer = arcllm.TracerFromContext(ctx) != arcllm.NoopTracer
		return &arcllm.LLMResponse{}, nil
	}}
	o, shutdown, err := NewOTel(inner, OTelConfig{Exporter: "none"})
	require.NoError(t, err)
	defer func() { _ = shutdown(context.Background()) }()

	_, err = o.Invoke(context.Background(), &arcllm.Request{})
	require.NoError(t, err)
	assert.True(t, sawRealTracer, "inner layers must see the tracer OTel installed into the context")
}

func TestOTelPropagatesInnerError(t *testing.T) {
	inner := &fnProvider{invoke: func(ctx context.Context, req *arcllm.Request) (*arcllm.LLMResponse, error) {
		return nil, arcllm.NewAPIError("acme", 503, "unavailable", nil)
	}}
	o, shutdown, err := NewOTel(inner, OTelConfig{Exporter: "none"})
	require.NoError(t, err)
	defer func() { _ = shutdown(context.Background()) }()

	_, err = o.Invoke(context.Background(), &arcllm.Request{})
	require.Error(t, err)
	var apiErr *arcllm.APIError
	assert.ErrorAs(t, err, &apiErr)
}
