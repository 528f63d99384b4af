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

// OpenAI implements Provider against the OpenAI Chat Completions wire
// format. System messages stay inline (no extraction); tool results
// expand one-to-many into separate wire messages; tool-use blocks on an
// outbound assistant message serialize their arguments as a JSON string,
// and an inbound tool-call's arguments get exactly one parse attempt.
//
// quirks lets a thin variant (see openai_variants.go) override the
// tool_choice rewrite and the finish-reason map without duplicating any
// of the translation logic above.
type OpenAI struct {
	Base
	quirks quirks
}

type quirks struct {
	rewriteToolChoice func(choice any) any
	mapFinishReason   func(reason string) arcllm.StopReason
}

func defaultQuirks() quirks {
	return quirks{
		rewriteToolChoice: func(choice any) any { return choice },
		mapFinishReason:   mapOpenAIFinishReason,
	}
}

// NewOpenAI constructs an OpenAI-format adapter. providerName distinguishes
// the rate-limit bucket and log fields (e.g. "groq", "fireworks") from the
// shared "openai" wire format; secret must already be resolved.
func NewOpenAI(providerName, model, baseURL, secret string, metadata arcllm.ModelMetadata) *OpenAI {
	return &OpenAI{Base: NewBase(providerName, model, baseURL, secret, metadata), quirks: defaultQuirks()}
}

func init() {
	Register("openai", func(model, baseURL, secret string, md arcllm.ModelMetadata) arcllm.Provider {
		return NewOpenAI("openai", model, baseURL, secret, md)
	})
}

func mapOpenAIFinishReason(reason string) arcllm.StopReason {
	switch reason {
	case "stop":
		return arcllm.StopEndTurn
	case "tool_calls":
		return arcllm.StopToolUse
	case "length":
		return arcllm.StopMaxTokens
	case "content_filter":
		return arcllm.StopEndTurn
	default:
		return arcllm.StopEndTurn
	}
}

type openaiWireFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

type openaiWireTool struct {
	Type     string             `json:"type"`
	Function openaiWireFunction `json:"function"`
}

type openaiToolCallWire struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type openaiWireMessage struct {
	Role       string               `json:"role"`
	Content    any                  `json:"content,omitempty"`
	ToolCalls  []openaiToolCallWire `json:"tool_calls,omitempty"`
	ToolCallID string               `json:"tool_call_id,omitempty"`
}

type openaiRequestBody struct {
	Model       string              `json:"model"`
	Messages    []openaiWireMessage `json:"messages"`
	Tools       []openaiWireTool    `json:"tools,omitempty"`
	ToolChoice  any                 `json:"tool_choice,omitempty"`
	Temperature *float64            `json:"temperature,omitempty"`
	MaxTokens   *int                `json:"max_tokens,omitempty"`
}

type openaiResponseBody struct {
	Choices []struct {
		Message struct {
			Content   *string              `json:"content"`
			ToolCalls []openaiToolCallWire `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
		CompletionTokensDetails *struct {
			ReasoningTokens int `json:"reasoning_tokens"`
		} `json:"completion_tokens_details"`
	} `json:"usage"`
}

func (o *OpenAI) Invoke(ctx context.Context, req *arcllm.Request) (*arcllm.LLMResponse, error) {
	body, err := o.buildRequestBody(req)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, &arcllm.ParseError{Field: "request body", Err: err}
	}

	httpReq, err := http.NewRequest(http.MethodPost, strings.TrimRight(o.BaseURL, "/")+"/v1/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, &arcllm.ConnectError{Provider: o.ProviderName, Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	// Authorization is conditional: omitted entirely when the resolved
	// secret is empty, the "optional auth" case for local providers.
	if o.Secret != "" {
		httpReq.Header.Set("Authorization", "Bearer "+o.Secret)
	}

	resp, err := o.Do(ctx, httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &arcllm.ParseError{Field: "response body", Err: err}
	}
	var wire openaiResponseBody
	if err := json.Unmarshal(raw, &wire); err != nil {
		return nil, &arcllm.ParseError{Field: "response body", Raw: string(raw), Err: err}
	}

	return o.parseResponse(&wire, raw)
}

func (o *OpenAI) buildRequestBody(req *arcllm.Request) (openaiRequestBody, error) {
	var wireMessages []openaiWireMessage

	for _, m := range req.Messages {
		// Tool-result expansion (one-to-many): a universal message whose
		// role is tool and whose content is a sequence of N tool-result
		// blocks becomes N separate wire messages.
		if m.Role == arcllm.RoleTool && m.HasBlocks() {
			for _, b := range m.Blocks {
				if b.Type != arcllm.ContentToolResult {
					continue
				}
				wireMessages = append(wireMessages, openaiWireMessage{
					Role:       "tool",
					Content:    b.ToolResultContent,
					ToolCallID: b.ToolResultID,
				})
			}
			continue
		}

		wm := openaiWireMessage{Role: string(m.Role)}
		if !m.HasBlocks() {
			wm.Content = m.Text
			wireMessages = append(wireMessages, wm)
			continue
		}

		var textParts []string
		var toolCalls []openaiToolCallWire
		for _, b := range m.Blocks {
			switch b.Type {
			case arcllm.ContentText:
				textParts = append(textParts, b.Text)
			case arcllm.ContentToolUse:
				args, err := json.Marshal(b.ToolInput)
				if err != nil {
					return openaiRequestBody{}, &arcllm.ParseError{Field: "tool_use.arguments", Err: err}
				}
				tc := openaiToolCallWire{ID: b.ToolUseID, Type: "function"}
				tc.Function.Name = b.ToolName
				tc.Function.Arguments = string(args)
				toolCalls = append(toolCalls, tc)
			}
		}
		if len(textParts) > 0 {
			wm.Content = strings.Join(textParts, "")
		}
		wm.ToolCalls = toolCalls
		wireMessages = append(wireMessages, wm)
	}

	var tools []openaiWireTool
	for _, t := range req.Tools {
		tools = append(tools, openaiWireTool{
			Type: "function",
			Function: openaiWireFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	model := req.Model
	if model == "" {
		model = o.Model
	}

	return openaiRequestBody{
		Model:       model,
		Messages:    wireMessages,
		Tools:       tools,
		ToolChoice:  o.quirks.rewriteToolChoice(req.ToolChoice),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	}, nil
}

func (o *OpenAI) parseResponse(wire *openaiResponseBody, raw []byte) (*arcllm.LLMResponse, error) {
	if len(wire.Choices) == 0 {
		return &arcllm.LLMResponse{Usage: arcllm.Usage{}, StopReason: arcllm.StopEndTurn, Raw: json.RawMessage(raw)}, nil
	}
	choice := wire.Choices[0]

	var content string
	if choice.Message.Content != nil {
		content = *choice.Message.Content
	}

	toolCalls, err := o.parseToolCalls(choice.Message.ToolCalls)
	if err != nil {
		return nil, err
	}

	usage := arcllm.Usage{
		InputTokens:  wire.Usage.PromptTokens,
		OutputTokens: wire.Usage.CompletionTokens,
		TotalTokens:  wire.Usage.TotalTokens,
	}
	if wire.Usage.CompletionTokensDetails != nil && wire.Usage.CompletionTokensDetails.ReasoningTokens > 0 {
		rt := wire.Usage.CompletionTokensDetails.ReasoningTokens
		usage.ReasoningTokens = &rt
	}

	return &arcllm.LLMResponse{
		Content:    content,
		ToolCalls:  toolCalls,
		Usage:      usage,
		Model:      wire.Model,
		StopReason: o.quirks.mapFinishReason(choice.FinishReason),
		Raw:        json.RawMessage(raw),
	}, nil
}

// parseToolCalls gives each tool call's arguments string exactly one JSON
// parse attempt. A parse failure is a ParseError carrying the raw string —
// no sanitization, no fallback to an empty map; an empty arguments string
// yields an empty map. Arguments are decoded from the wire as a JSON
// string only: a provider that sends them as an already-parsed object
// fails the response-body decode in Invoke with a ParseError.
func (o *OpenAI) parseToolCalls(wire []openaiToolCallWire) ([]arcllm.ToolCall, error) {
	if len(wire) == 0 {
		return nil, nil
	}
	out := make([]arcllm.ToolCall, 0, len(wire))
	for _, tc := range wire {
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return nil, &arcllm.ParseError{Field: "tool_call.arguments", Raw: tc.Function.Arguments, Err: err}
			}
		}
		out = append(out, arcllm.ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
	}
	return out, nil
}
