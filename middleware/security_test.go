package middleware

import (
	"context"
	"fmt"
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcllm/arcllm"
)

func TestRegexPiiDetectorDefaultPatterns(t *testing.T) {
	d := NewRegexPiiDetector(nil)
	cases := []struct {
		text    string
		piiType string
	}{
		{"My SSN is 123-45-6789", "SSN"},
		{"card 4111 1111 1111 1111 thanks", "CREDIT_CARD"},
		{"mail me at alice@example.com please", "EMAIL"},
		{"call (555) 123-4567 today", "PHONE"},
		{"server at 192.168.1.10 is down", "IPV4"},
	}
	for _, c := range cases {
		matches := d.Detect(c.text)
		require.NotEmpty(t, matches, c.text)
		assert.Equal(t, c.piiType, matches[0].Type, c.text)
	}
}

func TestRedactReplacesMatchAndDropsOriginal(t *testing.T) {
	d := NewRegexPiiDetector(nil)
	out := Redact(d, "My SSN is 123-45-6789")
	assert.Equal(t, "My SSN is [PII:SSN]", out)
	assert.NotContains(t, out, "123-45-6789")
}

func TestRedactMultipleMatchesPreservesSurroundingText(t *testing.T) {
	d := NewRegexPiiDetector(nil)
	out := Redact(d, "a@b.co wrote from 10.0.0.1 about 111-22-3333")
	assert.Equal(t, "[PII:EMAIL] wrote from [PII:IPV4] about [PII:SSN]", out)
}

func TestDetectResolvesOverlapsByLongerMatch(t *testing.T) {
	short := regexp.MustCompile(`\d{3}-\d{2}`)
	d := NewRegexPiiDetector(map[string]*regexp.Regexp{"SHORT": short})
	matches := d.Detect("123-45-6789")
	require.Len(t, matches, 1)
	assert.Equal(t, "SSN", matches[0].Type, "the longer SSN match wins over the overlapping SHORT one")
}

func TestRegexPiiDetectorExtraPatterns(t *testing.T) {
	d := NewRegexPiiDetector(map[string]*regexp.Regexp{
		"EMPLOYEE_ID": regexp.MustCompile(`\bEMP-\d{6}\b`),
	})
	out := Redact(d, "badge EMP-123456 checked in")
	assert.Equal(t, "badge [PII:EMPLOYEE_ID] checked in", out)
}

func TestSecurityRedactsOutboundBeforeProviderSeesIt(t *testing.T) {
	var seen string
	inner := &fnProvider{invoke: func(ctx context.Context, req *arcllm.Request) (*arcllm.LLMResponse, error) {
		seen = req.Messages[0].Text
		return &arcllm.LLMResponse{Content: "ok"}, nil
	}}
	s, err := NewSecurity(inner, SecurityConfig{})
	require.NoError(t, err)

	req := &arcllm.Request{Messages: []arcllm.Message{{Role: arcllm.RoleUser, Text: "My SSN is 123-45-6789"}}}
	_, err = s.Invoke(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "My SSN is [PII:SSN]", seen)
	assert.Equal(t, "My SSN is 123-45-6789", req.Messages[0].Text, "the caller's own request must not be mutated")
}

func TestSecurityRedactsToolUseArgumentsAndToolResults(t *testing.T) {
	var seen *arcllm.Request
	inner := &fnProvider{invoke: func(ctx context.Context, req *arcllm.Request) (*arcllm.LLMResponse, error) {
		seen = req
		return &arcllm.LLMResponse{}, nil
	}}
	s, err := NewSecurity(inner, SecurityConfig{})
	require.NoError(t, err)

	req := &arcllm.Request{Messages: []arcllm.Message{
		{
			Role: arcllm.RoleAssistant,
			Blocks: []arcllm.ContentBlock{
				{Type: arcllm.ContentToolUse, ToolUseID: "t1", ToolName: "lookup", ToolInput: map[string]any{"query": "ssn 123-45-6789"}},
			},
		},
		{
			Role: arcllm.RoleTool,
			Blocks: []arcllm.ContentBlock{
				{Type: arcllm.ContentToolResult, ToolResultID: "t1", ToolResultContent: "found alice@example.com"},
			},
		},
	}}
	_, err = s.Invoke(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, "ssn [PII:SSN]", seen.Messages[0].Blocks[0].ToolInput["query"])
	assert.Equal(t, "found [PII:EMAIL]", seen.Messages[1].Blocks[0].ToolResultContent)
}

func TestSecurityRedactsInboundResponseContent(t *testing.T) {
	inner := &fnProvider{invoke: func(ctx context.Context, req *arcllm.Request) (*arcllm.LLMResponse, error) {
		return &arcllm.LLMResponse{Content: "reach me at bob@example.com"}, nil
	}}
	s, err := NewSecurity(inner, SecurityConfig{})
	require.NoError(t, err)

	resp, err := s.Invoke(context.Background(), &arcllm.Request{Messages: []arcllm.Message{{Role: arcllm.RoleUser, Text: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, "reach me at [PII:EMAIL]", resp.Content)
}

func TestSecuritySigningIsDeterministic(t *testing.T) {
	t.Setenv("ARCLLM_SIGNING_KEY", "test-key")

	inner := &fnProvider{invoke: func(ctx context.Context, req *arcllm.Request) (*arcllm.LLMResponse, error) {
		return &arcllm.LLMResponse{Content: "ok"}, nil
	}}
	s, err := NewSecurity(inner, SecurityConfig{SigningEnabled: true})
	require.NoError(t, err)

	req := &arcllm.Request{
		Model:    "claude-sonnet",
		Messages: []arcllm.Message{{Role: arcllm.RoleUser, Text: "My SSN is 123-45-6789"}},
	}
	first, err := s.Invoke(context.Background(), req)
	require.NoError(t, err)
	second, err := s.Invoke(context.Background(), req)
	require.NoError(t, err)

	sig1, ok := first.Metadata["request_signature"].(string)
	require.True(t, ok)
	assert.Regexp(t, `^[0-9a-f]{64}$`, sig1, "hex-encoded HMAC-SHA256")
	assert.Equal(t, sig1, second.Metadata["request_signature"])
	assert.Equal(t, "hmac-sha256", first.Metadata["signing_algorithm"])
}

func TestSecuritySignatureCoversRedactedPayload(t *testing.T) {
	t.Setenv("ARCLLM_SIGNING_KEY", "test-key")

	inner := &fnProvider{invoke: func(ctx context.Context, req *arcllm.Request) (*arcllm.LLMResponse, error) {
		return &arcllm.LLMResponse{}, nil
	}}
	s, err := NewSecurity(inner, SecurityConfig{SigningEnabled: true})
	require.NoError(t, err)

	raw := &arcllm.Request{Model: "m", Messages: []arcllm.Message{{Role: arcllm.RoleUser, Text: "SSN 123-45-6789"}}}
	preRedacted := &arcllm.Request{Model: "m", Messages: []arcllm.Message{{Role: arcllm.RoleUser, Text: "SSN [PII:SSN]"}}}

	fromRaw, err := s.Invoke(context.Background(), raw)
	require.NoError(t, err)
	fromRedacted, err := s.Invoke(context.Background(), preRedacted)
	require.NoError(t, err)

	assert.Equal(t, fromRedacted.Metadata["request_signature"], fromRaw.Metadata["request_signature"],
		"signing the raw request must produce the signature of its redacted form")
}

func TestSecuritySkipsSigningOnInnerFailure(t *testing.T) {
	inner := &fnProvider{invoke: func(ctx context.Context, req *arcllm.Request) (*arcllm.LLMResponse, error) {
		return nil, arcllm.NewAPIError("acme", 500, "boom", nil)
	}}
	s, err := NewSecurity(inner, SecurityConfig{SigningEnabled: true})
	require.NoError(t, err)

	_, err = s.Invoke(context.Background(), &arcllm.Request{})
	require.Error(t, err)
	var apiErr *arcllm.APIError
	assert.ErrorAs(t, err, &apiErr)
}

type debugCapturingLogger struct {
	lines []string
}

func (l *debugCapturingLogger) Debug(_ context.Context, msg string, fields ...arcllm.Field) {
	line := msg
	for _, f := range fields {
		line += " " + f.Key + "=" + fmt.Sprintf("%v", f.Value)
	}
	l.lines = append(l.lines, line)
}
func (l *debugCapturingLogger) Info(context.Context, string, ...arcllm.Field)     {}
func (l *debugCapturingLogger) Warn(context.Context, string, ...arcllm.Field)     {}
func (l *debugCapturingLogger) Error(context.Context, string, ...arcllm.Field)    {}
func (l *debugCapturingLogger) Critical(context.Context, string, ...arcllm.Field) {}

// Stacks audit beneath security the way the registry wires them
// (Security.Inner = Audit) and asserts that even with both raw-content
// flags opted in, nothing audit logs carries a raw PII match — the
// request because security redacts it before delegating inward, the
// response because audit scrubs it with the context redactor before the
// inbound redaction pass runs.
func TestAuditBeneathSecurityNeverLogsRawPii(t *testing.T) {
	inner := &fnProvider{invoke: func(ctx context.Context, req *arcllm.Request) (*arcllm.LLMResponse, error) {
		return &arcllm.LLMResponse{Content: "reach alice@example.com or 10.0.0.1", StopReason: arcllm.StopEndTurn}, nil
	}}
	logger := &debugCapturingLogger{}
	a, err := NewAudit(inner, AuditConfig{LogLevel: arcllm.LogInfo, IncludeMessages: true, IncludeResponse: true}, logger)
	require.NoError(t, err)
	s, err := NewSecurity(a, SecurityConfig{})
	require.NoError(t, err)

	req := &arcllm.Request{Messages: []arcllm.Message{{Role: arcllm.RoleUser, Text: "My SSN is 123-45-6789"}}}
	resp, err := s.Invoke(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "reach [PII:EMAIL] or [PII:IPV4]", resp.Content)

	require.Len(t, logger.lines, 2, "both opt-in debug lines fire")
	for _, line := range logger.lines {
		assert.NotContains(t, line, "123-45-6789", line)
		assert.NotContains(t, line, "alice@example.com", line)
		assert.NotContains(t, line, "10.0.0.1", line)
	}
	assert.Contains(t, logger.lines[0], "[PII:SSN]")
	assert.Contains(t, logger.lines[1], "[PII:EMAIL]")
}

func TestRedactorFromContextDefaultsToIdentity(t *testing.T) {
	redact := RedactorFromContext(context.Background())
	assert.Equal(t, "unchanged 123-45-6789", redact("unchanged 123-45-6789"))
}

func TestNewSecurityRejectsECDSAWhenNotCompiledIn(t *testing.T) {
	if ecdsaSigningAvailable {
		t.Skip("built with -tags ecdsa_signing")
	}
	_, err := NewSecurity(&fnProvider{}, SecurityConfig{SigningEnabled: true, SigningAlgorithm: "ecdsa-p256"})
	require.Error(t, err)
	var cfgErr *arcllm.ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}
