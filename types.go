// Package arcllm provides a provider-agnostic chat-completion client: a
// thin adapter per backend wire format, wrapped by a composable middleware
// chain (rate limiting, retry, fallback, telemetry, audit, PII redaction
// and signing, distributed tracing).
package arcllm

import "encoding/json"

// Role is a message's sender role.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ContentBlockType discriminates the ContentBlock union.
type ContentBlockType string

const (
	ContentText       ContentBlockType = "text"
	ContentImage      ContentBlockType = "image"
	ContentToolUse    ContentBlockType = "tool_use"
	ContentToolResult ContentBlockType = "tool_result"
)

// ContentBlock is a tagged union over the four content kinds a message may
// carry. Only the fields relevant to Type are populated; the rest are the
// zero value.
type ContentBlock struct {
	Type ContentBlockType `json:"type"`

	// ContentText
	Text string `json:"text,omitempty"`

	// ContentImage
	ImageURL    string `json:"image_url,omitempty"`
	ImageMIME   string `json:"image_mime,omitempty"`
	ImageBase64 string `json:"image_base64,omitempty"`

	// ContentToolUse
	ToolUseID   string         `json:"tool_use_id,omitempty"`
	ToolName    string         `json:"tool_name,omitempty"`
	ToolInput   map[string]any `json:"tool_input,omitempty"`

	// ContentToolResult. Content may be a plain string or, per provider
	// wire format, a nested list of blocks; callers that need the
	// structured form type-assert ToolResultContent themselves.
	ToolResultID      string `json:"tool_result_id,omitempty"`
	ToolResultContent any    `json:"tool_result_content,omitempty"`
	ToolResultIsError bool   `json:"tool_result_is_error,omitempty"`
}

// Message is one turn in a conversation. Content is either a plain string
// (the common case) or a slice of ContentBlock (multi-part turns: text +
// images, or tool results). Exactly one of the two is populated.
type Message struct {
	Role    Role
	Text    string
	Blocks  []ContentBlock
}

// HasBlocks reports whether this message carries structured content
// instead of a plain string.
func (m Message) HasBlocks() bool { return m.Blocks != nil }

// Tool describes a callable function offered to the model.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
}

// ToolCall is a model-issued invocation of a Tool. Arguments is always a
// parsed mapping by the time an adapter returns it to the caller — never a
// raw JSON string. A provider whose wire format emits arguments as a JSON
// string gets exactly one parse attempt; a parse failure is fatal (see
// ParseError) and is never silently retried or sanitized.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// Usage reports token accounting for one completion. InputTokens,
// OutputTokens and TotalTokens are always present; the rest are optional
// and omitted from JSON when the provider didn't report them.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`

	CacheReadTokens  *int `json:"cache_read_tokens,omitempty"`
	CacheWriteTokens *int `json:"cache_write_tokens,omitempty"`
	ReasoningTokens  *int `json:"reasoning_tokens,omitempty"`
}

// StopReason is the closed set of reasons a completion can end. Any
// provider-specific value outside this set maps to StopEndTurn rather than
// propagating unknown strings.
type StopReason string

const (
	StopEndTurn      StopReason = "end_turn"
	StopToolUse      StopReason = "tool_use"
	StopMaxTokens    StopReason = "max_tokens"
	StopStopSequence StopReason = "stop_sequence"
)

// NormalizeStopReason maps an arbitrary provider string onto the closed
// set, defaulting to StopEndTurn for anything unrecognized.
func NormalizeStopReason(s StopReason) StopReason {
	switch s {
	case StopEndTurn, StopToolUse, StopMaxTokens, StopStopSequence:
		return s
	default:
		return StopEndTurn
	}
}

// LLMResponse is the normalized result of one adapter invocation. Raw
// holds the provider's unmodified decoded body for debugging and is
// deliberately excluded from JSON serialization — it may contain
// pre-redaction content and callers must not log it by default.
type LLMResponse struct {
	Content    string
	Blocks     []ContentBlock
	ToolCalls  []ToolCall
	Usage      Usage
	Model      string
	StopReason StopReason
	Thinking   string
	Metadata   map[string]any

	Raw json.RawMessage `json:"-"`
}

// Request is what a caller hands to a Provider.
type Request struct {
	Messages    []Message
	Tools       []Tool
	ToolChoice  any
	Temperature *float64
	MaxTokens   *int
	Model       string
	Metadata    map[string]any
}
