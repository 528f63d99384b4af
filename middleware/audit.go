package middleware

import (
	"context"

	"github.com/arcllm/arcllm"
)

// AuditConfig controls the audit middleware's log level and its two
// opt-in raw-content flags.
type AuditConfig struct {
	LogLevel        arcllm.LogLevel
	IncludeMessages bool
	IncludeResponse bool
}

func (c AuditConfig) Validate() error {
	if !arcllm.ValidLogLevel(c.LogLevel) {
		return arcllm.NewConfigError("audit", "invalid log level: "+string(c.LogLevel))
	}
	return nil
}

// Audit emits a metadata-only log line per call by default — provider,
// model, message count, stop reason, content length, and whether tools
// were offered or returned — never the raw message or response text.
// IncludeMessages/IncludeResponse, when both the flag is true AND the
// logger's own DEBUG level is actually enabled, additionally write the
// raw content at DEBUG: a double opt-in so an accidentally-set flag in a
// production deployment (where DEBUG is normally off) still can't leak
// content.
type Audit struct {
	Base
	cfg    AuditConfig
	Logger arcllm.Logger
}

func NewAudit(inner arcllm.Provider, cfg AuditConfig, logger arcllm.Logger) (*Audit, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = arcllm.NoopLogger{}
	}
	return &Audit{Base: Base{Inner: inner}, cfg: cfg, Logger: logger}, nil
}

func (a *Audit) Invoke(ctx context.Context, req *arcllm.Request) (*arcllm.LLMResponse, error) {
	resp, err := a.Inner.Invoke(ctx, req)
	if err != nil {
		return nil, err
	}

	contentLength := len(resp.Content)

	fields := []arcllm.Field{
		arcllm.F("provider", a.Name()),
		arcllm.F("model", a.ModelName()),
		arcllm.F("message_count", len(req.Messages)),
		arcllm.F("stop_reason", string(resp.StopReason)),
		arcllm.F("content_length", contentLength),
	}
	if req.Tools != nil {
		fields = append(fields, arcllm.F("tools_provided", len(req.Tools)))
	}
	if len(resp.ToolCalls) > 0 {
		fields = append(fields, arcllm.F("tool_calls", len(resp.ToolCalls)))
	}

	logAt(a.Logger, a.cfg.LogLevel, ctx, "llm call audit", fields...)

	// The request this layer sees already passed through any enclosing
	// Security layer's outbound redaction, but the response has not yet
	// flowed back up through its inbound redaction — scrub opt-in raw
	// content with the redactor Security installed into the context (an
	// identity function when security is disabled).
	redact := RedactorFromContext(ctx)
	if a.cfg.IncludeMessages {
		a.Logger.Debug(ctx, "llm call audit: messages", arcllm.F("provider", a.Name()), arcllm.F("messages", req.Messages))
	}
	if a.cfg.IncludeResponse {
		a.Logger.Debug(ctx, "llm call audit: response", arcllm.F("provider", a.Name()), arcllm.F("response_content", redact(resp.Content)))
	}

	return resp, nil
}
