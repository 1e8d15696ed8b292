// Package model provides LLM integration adapters.
//
// Providers live in subpackages (anthropic, openai, google) and all satisfy
// ChatModel. Callers that need structured output pass a ResponseFormat and
// decode the reply with Decode, which tags the outcome as Structured,
// Unstructured or Failure instead of returning loosely typed text.
package model

import (
	"context"
	"encoding/json"
	"strings"
)

// ChatModel defines the interface for LLM chat providers.
//
// Implementations should:
//   - Convert Message values to the provider's wire format.
//   - Request JSON output when format is non-nil.
//   - Report token usage in ChatOut.Usage when the provider returns it.
//   - Respect context cancellation and timeouts.
//   - Wrap HTTP failures in *StatusError so Classify can tag them.
//
// Retries are the caller's job (see graph.Retry); adapters make one attempt.
type ChatModel interface {
	// Chat sends messages to the LLM and returns the response.
	//
	// format is optional. When set, the provider is asked for a JSON object
	// matching format.Schema; providers without native schema support get
	// the instruction through the prompt.
	Chat(ctx context.Context, messages []Message, format *ResponseFormat) (ChatOut, error)
}

// Message represents a single message in an LLM conversation.
type Message struct {
	// Role identifies the message sender. Use the Role* constants.
	Role string

	// Content contains the message text.
	Content string
}

// Standard role constants for LLM conversations.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// ResponseFormat asks the provider for JSON output.
//
// Schema follows JSON Schema conventions:
//
//	model.ResponseFormat{
//	    Name: "queries",
//	    Schema: map[string]any{
//	        "type": "object",
//	        "properties": map[string]any{
//	            "queries": map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
//	        },
//	        "required": []string{"queries"},
//	    },
//	}
type ResponseFormat struct {
	// Name labels the schema for providers that require one.
	Name string

	// Schema is the JSON schema of the expected object. May be nil, in
	// which case any JSON object is accepted.
	Schema map[string]any
}

// Required lists the schema's required top-level keys.
func (f *ResponseFormat) Required() []string {
	if f == nil {
		return nil
	}
	switch v := f.Schema["required"].(type) {
	case []string:
		return v
	case []any:
		keys := make([]string, 0, len(v))
		for _, k := range v {
			if s, ok := k.(string); ok {
				keys = append(keys, s)
			}
		}
		return keys
	}
	return nil
}

// Missing returns the required keys that doc lacks or sets to null. A doc
// that is not a JSON object lacks every key.
func (f *ResponseFormat) Missing(doc []byte) []string {
	required := f.Required()
	if len(required) == 0 {
		return nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(doc, &obj); err != nil {
		return required
	}
	var missing []string
	for _, k := range required {
		v, ok := obj[k]
		if !ok || string(v) == "null" {
			missing = append(missing, k)
		}
	}
	return missing
}

// Usage reports token consumption for one call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

// ChatOut represents the output from an LLM chat completion.
type ChatOut struct {
	// Text contains the LLM's generated response.
	Text string

	// Model is the model that actually answered. With Fallback this may
	// differ from the primary model.
	Model string

	// Usage is zero when the provider did not report it.
	Usage Usage
}

// SplitSystem separates system messages from the conversation. Multiple
// system messages are joined with a blank line.
func SplitSystem(messages []Message) (string, []Message) {
	var system []string
	var rest []Message
	for _, msg := range messages {
		if msg.Role == RoleSystem {
			system = append(system, msg.Content)
			continue
		}
		rest = append(rest, msg)
	}
	return strings.Join(system, "\n\n"), rest
}

// FormatInstruction renders format as a prompt instruction for providers
// without native schema enforcement. It returns "" for a nil format.
func FormatInstruction(format *ResponseFormat) string {
	if format == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString("Respond with a single JSON object and nothing else.")
	if format.Schema != nil {
		if raw, err := json.Marshal(format.Schema); err == nil {
			b.WriteString(" The object must match this JSON schema:\n")
			b.Write(raw)
		}
	}
	return b.String()
}
