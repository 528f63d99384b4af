package middleware

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arcllm/arcllm"
)

type recordingLogger struct {
	infoCalls  []string
	debugCalls []string
	debugArgs  [][]arcllm.Field
}

func (r *recordingLogger) Debug(_ context.Context, msg string, fields ...arcllm.Field) {
	r.debugCalls = append(r.debugCalls, msg)
	r.debugArgs = append(r.debugArgs, fields)
}
func (r *recordingLogger) Info(_ context.Context, msg string, fields ...arcllm.Field) {
	r.infoCalls = append(r.infoCalls, msg)
}
func (r *recordingLogger) Warn(context.Context, string, ...arcllm.Field)     {}
func (r *recordingLogger) Error(context.Context, string, ...arcllm.Field)    {}
func (r *recordingLogger) Critical(context.Context, string, ...arcllm.Field) {}

func TestAuditConfigValidation(t *testing.T) {
	require.NoError(t, AuditConfig{LogLevel: arcllm.LogInfo}.Validate())
	require.Error(t, AuditConfig{LogLevel: "NOPE"}.Validate())
}

func TestAuditEmitsMetadataOnlyByDefault(t *testing.T) {
	logger := &recordingLogger{}
	inner := &fnProvider{invoke: func(ctx context.Context, req *arcllm.Request) (*arcllm.LLMResponse, error) {
		return &arcllm.LLMResponse{Content: "secret content", StopReason: arcllm.StopEndTurn}, nil
	}}
	a, err := NewAudit(inner, AuditConfig{LogLevel: arcllm.LogInfo}, logger)
	require.NoError(t, err)

	req := &arcllm.Request{Messages: []arcllm.Message{{Role: arcllm.RoleUser, Text: "hello"}}}
	_, err = a.Invoke(context.Background(), req)
	require.NoError(t, err)

	assert.Len(t, logger.infoCalls, 1)
	assert.Empty(t, logger.debugCalls, "raw content must never be logged unless an include flag opts in")
}

func TestAuditIncludesRawContentOnlyWhenFlagSet(t *testing.T) {
	logger := &recordingLogger{}
	inner := &fnProvider{invoke: func(ctx context.Context, req *arcllm.Request) (*arcllm.LLMResponse, error) {
		return &arcllm.LLMResponse{Content: "secret content", StopReason: arcllm.StopEndTurn}, nil
	}}
	a, err := NewAudit(inner, AuditConfig{LogLevel: arcllm.LogInfo, IncludeMessages: true, IncludeResponse: true}, logger)
	require.NoError(t, err)

	req := &arcllm.Request{Messages: []arcllm.Message{{Role: arcllm.RoleUser, Text: "hello"}}}
	_, err = a.Invoke(context.Background(), req)
	require.NoError(t, err)

	assert.Len(t, logger.debugCalls, 2)
}

func TestAuditNullContentWithToolCallsHasZeroContentLength(t *testing.T) {
	inner := &fnProvider{invoke: func(ctx context.Context, req *arcllm.Request) (*arcllm.LLMResponse, error) {
		return &arcllm.LLMResponse{
			ToolCalls:  []arcllm.ToolCall{{ID: "t1", Name: "f", Arguments: map[string]any{}}},
			StopReason: arcllm.StopToolUse,
		}, nil
	}}
	capture := &fieldCapturingLogger{fields: map[string]any{}}
	a, err := NewAudit(inner, AuditConfig{LogLevel: arcllm.LogInfo}, capture)
	require.NoError(t, err)

	_, err = a.Invoke(context.Background(), &arcllm.Request{})
	require.NoError(t, err)
	assert.Equal(t, 0, capture.fields["content_length"])
	assert.Equal(t, 1, capture.fields["tool_calls"])
}

type fieldCapturingLogger struct {
	fields map[string]any
}

func (f *fieldCapturingLogger) record(fs []arcllm.Field) {
	for _, field := range fs {
		f.fields[field.Key] = field.Value
	}
}
func (f *fieldCapturingLogger) Debug(_ context.Context, _ string, fs ...arcllm.Field)    { f.record(fs) }
func (f *fieldCapturingLogger) Info(_ context.Context, _ string, fs ...arcllm.Field)     { f.record(fs) }
func (f *fieldCapturingLogger) Warn(_ context.Context, _ string, fs ...arcllm.Field)     { f.record(fs) }
func (f *fieldCapturingLogger) Error(_ context.Context, _ string, fs ...arcllm.Field)    { f.record(fs) }
func (f *fieldCapturingLogger) Critical(_ context.Context, _ string, fs ...arcllm.Field) { f.record(fs) }

func TestAuditSkipsOnInnerError(t *testing.T) {
	logger := &recordingLogger{}
	inner := &fnProvider{invoke: func(ctx context.Context, req *arcllm.Request) (*arcllm.LLMResponse, error) {
		return nil, arcllm.NewAPIError("acme", 500, "boom", nil)
	}}
	a, err := NewAudit(inner, AuditConfig{LogLevel: arcllm.LogInfo}, logger)
	require.NoError(t, err)

	_, err = a.Invoke(context.Background(), &arcllm.Request{})
	require.Error(t, err)
	assert.Empty(t, logger.infoCalls)
}
