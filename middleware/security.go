package middleware

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"os"
	"regexp"
	"sort"

	"github.com/arcllm/arcllm"
)

// PiiMatch is one detected region of personally identifiable information.
type PiiMatch struct {
	Type        string
	Start       int
	End         int
	MatchedText string
}

// PiiDetector is the pluggable detection contract: implementations return
// every match region found in a text, overlap resolution included.
type PiiDetector interface {
	Detect(text string) []PiiMatch
}

type piiPattern struct {
	Type string
	Re   *regexp.Regexp
}

// RegexPiiDetector is the default detector: a compile-once set of regexes
// covering SSN, 16-digit credit cards (optionally spaced/hyphenated),
// email, US phone numbers and IPv4 addresses. Additional patterns may be
// injected via NewRegexPiiDetector's extra argument.
type RegexPiiDetector struct {
	patterns []piiPattern
}

func defaultPiiPatterns() []piiPattern {
	return []piiPattern{
		{Type: "SSN", Re: regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
		{Type: "CREDIT_CARD", Re: regexp.MustCompile(`\b(?:\d[ -]?){15}\d\b`)},
		{Type: "EMAIL", Re: regexp.MustCompile(`\b[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}\b`)},
		{Type: "PHONE", Re: regexp.MustCompile(`\b(?:\+1[ .\-]?)?\(?\d{3}\)?[ .\-]?\d{3}[ .\-]?\d{4}\b`)},
		{Type: "IPV4", Re: regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`)},
	}
}

// NewRegexPiiDetector builds the default detector plus any extra
// caller-supplied patterns, keyed by type name.
func NewRegexPiiDetector(extra map[string]*regexp.Regexp) *RegexPiiDetector {
	patterns := defaultPiiPatterns()
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		patterns = append(patterns, piiPattern{Type: k, Re: extra[k]})
	}
	return &RegexPiiDetector{patterns: patterns}
}

// Detect returns every non-overlapping match across all configured
// patterns. Overlaps are resolved by preferring the longer match (or the
// first-found of equal length).
func (d *RegexPiiDetector) Detect(text string) []PiiMatch {
	var all []PiiMatch
	for _, p := range d.patterns {
		for _, loc := range p.Re.FindAllStringIndex(text, -1) {
			all = append(all, PiiMatch{Type: p.Type, Start: loc[0], End: loc[1], MatchedText: text[loc[0]:loc[1]]})
		}
	}
	return resolveOverlaps(all)
}

func resolveOverlaps(matches []PiiMatch) []PiiMatch {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].Start != matches[j].Start {
			return matches[i].Start < matches[j].Start
		}
		return (matches[i].End - matches[i].Start) > (matches[j].End - matches[j].Start)
	})
	var kept []PiiMatch
	lastEnd := -1
	for _, m := range matches {
		if m.Start < lastEnd {
			// m overlaps the last kept match: keep the longer of the two,
			// the one already kept on a tie.
			last := &kept[len(kept)-1]
			if m.End-m.Start > last.End-last.Start {
				*last = m
				lastEnd = m.End
			}
			continue
		}
		kept = append(kept, m)
		lastEnd = m.End
	}
	return kept
}

// Redact replaces every match the detector finds in text with
// "[PII:<type>]". Matches are applied in descending start order so
// earlier replacements never shift the indices of later ones.
func Redact(detector PiiDetector, text string) string {
	matches := detector.Detect(text)
	if len(matches) == 0 {
		return text
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Start > matches[j].Start })
	out := text
	for _, m := range matches {
		out = out[:m.Start] + "[PII:" + m.Type + "]" + out[m.End:]
	}
	return out
}

type redactorCtxKey struct{}

// ContextWithRedactor installs fn for layers beneath Security to scrub
// text they are about to log themselves.
func ContextWithRedactor(ctx context.Context, fn func(string) string) context.Context {
	return context.WithValue(ctx, redactorCtxKey{}, fn)
}

// RedactorFromContext returns the redactor installed by an enclosing
// Security layer, or the identity function when none is present.
func RedactorFromContext(ctx context.Context) func(string) string {
	if fn, ok := ctx.Value(redactorCtxKey{}).(func(string) string); ok && fn != nil {
		return fn
	}
	return func(s string) string { return s }
}

// SecurityConfig controls the PII detector and the signing phase.
type SecurityConfig struct {
	Detector         PiiDetector
	SigningEnabled   bool
	SigningEnvVar    string // default "ARCLLM_SIGNING_KEY"
	SigningAlgorithm string // "hmac-sha256" (default) or "ecdsa-p256"
}

func (c SecurityConfig) envVar() string {
	if c.SigningEnvVar == "" {
		return "ARCLLM_SIGNING_KEY"
	}
	return c.SigningEnvVar
}

func (c SecurityConfig) algorithm() string {
	if c.SigningAlgorithm == "" {
		return "hmac-sha256"
	}
	return c.SigningAlgorithm
}

// Security runs two phases per call: PII redaction (outbound request,
// then inbound response), then — only after redaction, so the signature
// covers what was actually sent — canonical-payload signing. The
// signature and algorithm name are attached to the response's metadata.
type Security struct {
	Base
	cfg SecurityConfig
}

func NewSecurity(inner arcllm.Provider, cfg SecurityConfig) (*Security, error) {
	if cfg.Detector == nil {
		cfg.Detector = NewRegexPiiDetector(nil)
	}
	if cfg.SigningEnabled && cfg.algorithm() == "ecdsa-p256" && !ecdsaSigningAvailable {
		return nil, arcllm.NewConfigError("security", "ecdsa-p256 signing requested but the optional signing library is not compiled in")
	}
	return &Security{Base: Base{Inner: inner}, cfg: cfg}, nil
}

func (s *Security) Invoke(ctx context.Context, req *arcllm.Request) (*arcllm.LLMResponse, error) {
	redactedReq := s.redactRequest(req)

	// Layers beneath this one (audit in the wired stack) receive the
	// redacted request directly, but they see the response before it
	// flows back up through this layer's inbound redaction. Installing
	// the redactor in the context lets them scrub anything they are
	// about to log, so no audit field ever carries a raw match.
	ctx = ContextWithRedactor(ctx, func(text string) string {
		return Redact(s.cfg.Detector, text)
	})

	resp, err := s.Inner.Invoke(ctx, redactedReq)
	if err != nil {
		return nil, err
	}

	if resp.Content != "" {
		resp.Content = Redact(s.cfg.Detector, resp.Content)
	}

	if s.cfg.SigningEnabled {
		sig, alg, err := s.sign(redactedReq)
		if err != nil {
			return nil, err
		}
		if resp.Metadata == nil {
			resp.Metadata = map[string]any{}
		}
		resp.Metadata["request_signature"] = sig
		resp.Metadata["signing_algorithm"] = alg
	}

	return resp, nil
}

// redactRequest returns a deep-enough copy of req with every text block,
// string tool-result and tool-use argument redacted. The original req is
// never mutated in place — callers upstream of security (e.g. a retry
// loop re-invoking on the same *Request) must not see PII silently
// vanish from their own copy.
func (s *Security) redactRequest(req *arcllm.Request) *arcllm.Request {
	out := *req
	out.Messages = make([]arcllm.Message, len(req.Messages))
	for i, m := range req.Messages {
		out.Messages[i] = s.redactMessage(m)
	}
	return &out
}

func (s *Security) redactMessage(m arcllm.Message) arcllm.Message {
	if !m.HasBlocks() {
		m.Text = Redact(s.cfg.Detector, m.Text)
		return m
	}
	blocks := make([]arcllm.ContentBlock, len(m.Blocks))
	for i, b := range m.Blocks {
		blocks[i] = s.redactBlock(b)
	}
	m.Blocks = blocks
	return m
}

func (s *Security) redactBlock(b arcllm.ContentBlock) arcllm.ContentBlock {
	switch b.Type {
	case arcllm.ContentText:
		b.Text = Redact(s.cfg.Detector, b.Text)
	case arcllm.ContentToolResult:
		if str, ok := b.ToolResultContent.(string); ok {
			b.ToolResultContent = Redact(s.cfg.Detector, str)
		}
	case arcllm.ContentToolUse:
		if b.ToolInput != nil {
			raw, err := json.Marshal(b.ToolInput)
			if err == nil {
				redacted := Redact(s.cfg.Detector, string(raw))
				var reparsed map[string]any
				if json.Unmarshal([]byte(redacted), &reparsed) == nil {
					b.ToolInput = reparsed
				}
			}
		}
	}
	return b
}

// sign produces the canonical byte-encoding of {messages, tools, model}
// and signs it under the configured algorithm. Two invocations over the
// same inputs and key always yield an identical hex signature — the
// canonical serialization is stable because it is built entirely from
// maps and slices, whose keys encoding/json always emits in sorted order.
func (s *Security) sign(req *arcllm.Request) (signature, algorithm string, err error) {
	payload, err := canonicalPayload(req)
	if err != nil {
		return "", "", &arcllm.ParseError{Field: "signing payload", Err: err}
	}

	key := os.Getenv(s.cfg.envVar())

	switch s.cfg.algorithm() {
	case "ecdsa-p256":
		sig, err := ecdsaSign(payload, key)
		return sig, "ecdsa-p256", err
	default:
		mac := hmac.New(sha256.New, []byte(key))
		mac.Write(payload)
		return hex.EncodeToString(mac.Sum(nil)), "hmac-sha256", nil
	}
}

func canonicalPayload(req *arcllm.Request) ([]byte, error) {
	messages := make([]any, len(req.Messages))
	for i, m := range req.Messages {
		messages[i] = messageToMap(m)
	}
	var tools any
	if req.Tools != nil {
		toolList := make([]any, len(req.Tools))
		for i, t := range req.Tools {
			toolList[i] = map[string]any{
				"name":        t.Name,
				"description": t.Description,
				"parameters":  t.Parameters,
			}
		}
		tools = toolList
	}
	return json.Marshal(map[string]any{
		"messages": messages,
		"tools":    tools,
		"model":    req.Model,
	})
}

func messageToMap(m arcllm.Message) map[string]any {
	out := map[string]any{"role": string(m.Role)}
	if !m.HasBlocks() {
		out["content"] = m.Text
		return out
	}
	blocks := make([]any, len(m.Blocks))
	for i, b := range m.Blocks {
		blocks[i] = blockToMap(b)
	}
	out["content"] = blocks
	return out
}

func blockToMap(b arcllm.ContentBlock) map[string]any {
	switch b.Type {
	case arcllm.ContentText:
		return map[string]any{"type": "text", "text": b.Text}
	case arcllm.ContentToolUse:
		return map[string]any{"type": "tool_use", "id": b.ToolUseID, "name": b.ToolName, "input": b.ToolInput}
	case arcllm.ContentToolResult:
		return map[string]any{"type": "tool_result", "tool_use_id": b.ToolResultID, "content": b.ToolResultContent}
	case arcllm.ContentImage:
		return map[string]any{"type": "image", "media_type": b.ImageMIME}
	default:
		return map[string]any{"type": string(b.Type)}
	}
}
