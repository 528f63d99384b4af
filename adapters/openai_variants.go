package adapters

import "github.com/arcllm/arcllm"

// This file holds the nine thin OpenAI-format variants: providers that
// reuse the OpenAI Chat Completions translation unchanged except for
// their registered name, plus (Mistral only) two small quirk-map
// overrides. Adding a tenth variant means adding a tenth init() here or
// in its own file, never touching registry.go.
//
// Local-inference variants (ollama) declare api_key_required=false in
// their TOML and default to a loopback base_url; because OpenAI.Invoke
// already omits the Authorization header when the resolved secret is
// empty, no code change is needed for that case either.

func registerPlainVariant(name string) {
	Register(name, func(model, baseURL, secret string, md arcllm.ModelMetadata) arcllm.Provider {
		return NewOpenAI(name, model, baseURL, secret, md)
	})
}

func init() {
	registerPlainVariant("deepseek")
	registerPlainVariant("fireworks")
	registerPlainVariant("groq")
	registerPlainVariant("ollama")
	registerPlainVariant("openrouter")
	registerPlainVariant("perplexity")
	registerPlainVariant("togetherai")
	registerPlainVariant("xai")
}

// Mistral overrides two maps on top of the shared OpenAI translation:
// a tool_choice rewrite ("required" -> "any") and an extended
// finish-reason map (an additional "model_length" -> max_tokens case).
// The extension is deliberately scoped to Mistral alone — no other
// variant shares these overrides.
func init() {
	Register("mistral", func(model, baseURL, secret string, md arcllm.ModelMetadata) arcllm.Provider {
		o := NewOpenAI("mistral", model, baseURL, secret, md)
		o.quirks = quirks{
			rewriteToolChoice: mistralRewriteToolChoice,
			mapFinishReason:   mistralMapFinishReason,
		}
		return o
	})
}

func mistralRewriteToolChoice(choice any) any {
	if s, ok := choice.(string); ok && s == "required" {
		return "any"
	}
	return choice
}

func mistralMapFinishReason(reason string) arcllm.StopReason {
	if reason == "model_length" {
		return arcllm.StopMaxTokens
	}
	return mapOpenAIFinishReason(reason)
}
