package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/arcllm/arcllm"
)

// AnthropicVersion is sent on every request; the wire protocol is
// versioned independently of the model.
const AnthropicVersion = "2023-06-01"

// Anthropic implements Provider against the native Anthropic Messages
// API. System messages are collected and concatenated (order preserved)
// into the top-level "system" field; tool-use blocks arrive as native
// maps needing no JSON-string parsing; stop reasons already align with
// the canonical closed set.
type Anthropic struct {
	Base
}

// NewAnthropic constructs an Anthropic adapter. secret must already be
// resolved by the caller (registry) — construction never touches the
// vault itself.
func NewAnthropic(model, baseURL, secret string, metadata arcllm.ModelMetadata) *Anthropic {
	return &Anthropic{Base: NewBase("anthropic", model, baseURL, secret, metadata)}
}

func init() { Register("anthropic", func(model, baseURL, secret string, md arcllm.ModelMetadata) arcllm.Provider {
	return NewAnthropic(model, baseURL, secret, md)
}) }

type anthropicWireMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type anthropicWireTool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

type anthropicRequestBody struct {
	Model       string                 `json:"model"`
	Messages    []anthropicWireMessage `json:"messages"`
	System      string                 `json:"system,omitempty"`
	Tools       []anthropicWireTool    `json:"tools,omitempty"`
	MaxTokens   int                    `json:"max_tokens"`
	Temperature *float64               `json:"temperature,omitempty"`
}

type anthropicContentBlock struct {
	Type     string         `json:"type"`
	Text     string         `json:"text,omitempty"`
	Thinking string         `json:"thinking,omitempty"`
	ID       string         `json:"id,omitempty"`
	Name     string         `json:"name,omitempty"`
	Input    map[string]any `json:"input,omitempty"`

	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   any    `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`
}

type anthropicResponseBody struct {
	Content    []anthropicContentBlock `json:"content"`
	Model      string                  `json:"model"`
	StopReason string                  `json:"stop_reason"`
	Usage      struct {
		InputTokens              int `json:"input_tokens"`
		OutputTokens             int `json:"output_tokens"`
		CacheReadInputTokens     int `json:"cache_read_input_tokens"`
		CacheCreationInputTokens int `json:"cache_creation_input_tokens"`
	} `json:"usage"`
}

func (a *Anthropic) Invoke(ctx context.Context, req *arcllm.Request) (*arcllm.LLMResponse, error) {
	body := a.buildRequestBody(req)
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &arcllm.ParseError{Field: "request body", Err: err}
	}

	httpReq, err := http.NewRequest(http.MethodPost, strings.TrimRight(a.BaseURL, "/")+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, &arcllm.ConnectError{Provider: "anthropic", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("anthropic-version", AnthropicVersion)
	if a.Secret != "" {
		httpReq.Header.Set("x-api-key", a.Secret)
	}

	resp, err := a.Do(ctx, httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &arcllm.ParseError{Field: "response body", Err: err}
	}
	var wire anthropicResponseBody
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, &arcllm.ParseError{Field: "response body", Raw: string(raw), Err: err}
	}

	return a.parseResponse(&wire, raw), nil
}

// buildRequestBody collects and concatenates system messages
// order-preservingly into the top-level system field.
func (a *Anthropic) buildRequestBody(req *arcllm.Request) anthropicRequestBody {
	var systemParts []string
	var wireMessages []anthropicWireMessage

	for _, m := range req.Messages {
		if m.Role == arcllm.RoleSystem {
			systemParts = append(systemParts, m.Text)
			continue
		}
		wireMessages = append(wireMessages, anthropicWireMessage{
			Role:    string(m.Role),
			Content: a.formatContent(m),
		})
	}

	var tools []anthropicWireTool
	for _, t := range req.Tools {
		tools = append(tools, anthropicWireTool{Name: t.Name, Description: t.Description, InputSchema: t.Parameters})
	}

	maxTokens := 4096
	if req.MaxTokens != nil {
		maxTokens = *req.MaxTokens
	} else if a.Metadata.MaxOutputTokens > 0 {
		maxTokens = a.Metadata.MaxOutputTokens
	}

	model := req.Model
	if model == "" {
		model = a.Model
	}

	return anthropicRequestBody{
		Model:       model,
		Messages:    wireMessages,
		System:      strings.Join(systemParts, "\n"),
		Tools:       tools,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	}
}

// formatContent translates a Message into Anthropic's content shape: a
// plain string when the message has no blocks, otherwise a near-identity
// array of content blocks.
func (a *Anthropic) formatContent(m arcllm.Message) any {
	if !m.HasBlocks() {
		return m.Text
	}
	blocks := make([]anthropicContentBlock, 0, len(m.Blocks))
	for _, b := range m.Blocks {
		switch b.Type {
		case arcllm.ContentText:
			blocks = append(blocks, anthropicContentBlock{Type: "text", Text: b.Text})
		case arcllm.ContentToolUse:
			blocks = append(blocks, anthropicContentBlock{Type: "tool_use", ID: b.ToolUseID, Name: b.ToolName, Input: b.ToolInput})
		case arcllm.ContentToolResult:
			blocks = append(blocks, anthropicContentBlock{
				Type:      "tool_result",
				ToolUseID: b.ToolResultID,
				Content:   b.ToolResultContent,
				IsError:   b.ToolResultIsError,
			})
		case arcllm.ContentImage:
			blocks = append(blocks, anthropicContentBlock{Type: "image"})
		}
	}
	return blocks
}

func (a *Anthropic) parseResponse(wire *anthropicResponseBody, raw []byte) *arcllm.LLMResponse {
	var textParts []string
	var thinkingParts []string
	var toolCalls []arcllm.ToolCall
	var blocks []arcllm.ContentBlock

	for _, b := range wire.Content {
		switch b.Type {
		case "text":
			textParts = append(textParts, b.Text)
			blocks = append(blocks, arcllm.ContentBlock{Type: arcllm.ContentText, Text: b.Text})
		case "thinking":
			thinkingParts = append(thinkingParts, b.Thinking)
		case "tool_use":
			// Anthropic hands tool_use.input back as a native map already
			// — no JSON-string parse attempt is ever needed here.
			toolCalls = append(toolCalls, arcllm.ToolCall{ID: b.ID, Name: b.Name, Arguments: b.Input})
			blocks = append(blocks, arcllm.ContentBlock{Type: arcllm.ContentToolUse, ToolUseID: b.ID, ToolName: b.Name, ToolInput: b.Input})
		}
	}

	stop := arcllm.NormalizeStopReason(arcllm.StopReason(wire.StopReason))

	cacheRead := wire.Usage.CacheReadInputTokens
	cacheWrite := wire.Usage.CacheCreationInputTokens
	usage := arcllm.Usage{
		InputTokens:  wire.Usage.InputTokens,
		OutputTokens: wire.Usage.OutputTokens,
		TotalTokens:  wire.Usage.InputTokens + wire.Usage.OutputTokens,
	}
	if cacheRead > 0 {
		usage.CacheReadTokens = &cacheRead
	}
	if cacheWrite > 0 {
		usage.CacheWriteTokens = &cacheWrite
	}

	return &arcllm.LLMResponse{
		Content:    strings.Join(textParts, ""),
		Blocks:     blocks,
		ToolCalls:  toolCalls,
		Usage:      usage,
		Model:      wire.Model,
		StopReason: stop,
		Thinking:   strings.Join(thinkingParts, ""),
		Raw:        json.RawMessage(raw),
	}
}

