// Package google provides a ChatModel adapter for Google's Gemini API.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/dshills/litreview/graph/model"
)

// DefaultModel is used when NewChatModel gets an empty model name.
const DefaultModel = "gemini-2.0-flash"

// ChatModel implements model.ChatModel for Google's Gemini API.
//
// Gemini supports JSON output natively: a ResponseFormat sets the response
// MIME type to application/json and converts the schema to a genai.Schema.
// Blocked prompts and replies surface as *SafetyFilterError.
type ChatModel struct {
	modelName string
	client    googleClient
}

// request is what the adapter sends to the client after conversion.
type request struct {
	system   string
	parts    []genai.Part
	jsonMode bool
	schema   *genai.Schema
}

// googleClient defines the Gemini operations the adapter needs. Tests
// replace it.
type googleClient interface {
	generateContent(ctx context.Context, req request) (model.ChatOut, error)
}

// Option configures a ChatModel.
type Option func(*defaultClient)

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(c *defaultClient) {
		v := float32(t)
		c.temperature = &v
	}
}

// WithMaxTokens caps the output length.
func WithMaxTokens(n int) Option {
	return func(c *defaultClient) {
		if n > 0 {
			c.maxTokens = int32(n)
		}
	}
}

// NewChatModel creates a new Google ChatModel. The SDK client is created on
// first use.
func NewChatModel(apiKey, modelName string, opts ...Option) *ChatModel {
	if modelName == "" {
		modelName = DefaultModel
	}

	c := &defaultClient{apiKey: apiKey, modelName: modelName}
	for _, opt := range opts {
		opt(c)
	}
	return &ChatModel{modelName: modelName, client: c}
}

// Chat implements the model.ChatModel interface.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, format *model.ResponseFormat) (model.ChatOut, error) {
	if ctx.Err() != nil {
		return model.ChatOut{}, ctx.Err()
	}

	system, conversation := model.SplitSystem(messages)
	req := request{system: system, parts: convertMessages(conversation)}
	if len(req.parts) == 0 {
		return model.ChatOut{}, errors.New("google: at least one non-empty message is required")
	}
	if format != nil {
		req.jsonMode = true
		req.schema = convertSchema(format.Schema)
	}

	out, err := m.client.generateContent(ctx, req)
	if err != nil {
		return model.ChatOut{}, translateError(err)
	}
	if out.Model == "" {
		out.Model = m.modelName
	}
	return out, nil
}

// Close releases the underlying SDK client, if one was created.
func (m *ChatModel) Close() error {
	if c, ok := m.client.(*defaultClient); ok {
		return c.close()
	}
	return nil
}

func translateError(err error) error {
	var safetyErr *SafetyFilterError
	if errors.As(err, &safetyErr) {
		return err
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		return &model.StatusError{Provider: "google", StatusCode: apiErr.Code, Err: err}
	}
	return err
}

// defaultClient wraps the official Google Gemini SDK client.
type defaultClient struct {
	apiKey      string
	modelName   string
	temperature *float32
	maxTokens   int32

	mu     sync.Mutex
	client *genai.Client
}

func (c *defaultClient) sdk(ctx context.Context) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return c.client, nil
	}
	if c.apiKey == "" {
		return nil, errors.New("google API key is required")
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(c.apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Google client: %w", err)
	}
	c.client = client
	return client, nil
}

func (c *defaultClient) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil
	}
	err := c.client.Close()
	c.client = nil
	return err
}

func (c *defaultClient) generateContent(ctx context.Context, req request) (model.ChatOut, error) {
	client, err := c.sdk(ctx)
	if err != nil {
		return model.ChatOut{}, err
	}

	genModel := client.GenerativeModel(c.modelName)
	if req.system != "" {
		genModel.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(req.system)}}
	}
	if req.jsonMode {
		genModel.ResponseMIMEType = "application/json"
		genModel.ResponseSchema = req.schema
	}
	if c.temperature != nil {
		genModel.SetTemperature(*c.temperature)
	}
	if c.maxTokens > 0 {
		genModel.SetMaxOutputTokens(c.maxTokens)
	}

	resp, err := genModel.GenerateContent(ctx, req.parts...)
	if err != nil {
		return model.ChatOut{}, fmt.Errorf("google API error: %w", err)
	}
	out, err := convertResponse(resp)
	if err != nil {
		return model.ChatOut{}, err
	}
	out.Model = c.modelName
	return out, nil
}

// convertMessages flattens the conversation into text parts. System
// messages are sent through SystemInstruction instead.
func convertMessages(messages []model.Message) []genai.Part {
	var parts []genai.Part
	for _, msg := range messages {
		if msg.Content != "" {
			parts = append(parts, genai.Text(msg.Content))
		}
	}
	return parts
}

// convertSchema converts a JSON schema map to genai.Schema, recursing
// through object properties and array items.
func convertSchema(schema map[string]any) *genai.Schema {
	if schema == nil {
		return nil
	}

	result := &genai.Schema{Type: genai.TypeObject}
	if typeStr, ok := schema["type"].(string); ok {
		result.Type = convertTypeString(typeStr)
	}
	if desc, ok := schema["description"].(string); ok {
		result.Description = desc
	}

	if props, ok := schema["properties"].(map[string]any); ok {
		result.Properties = make(map[string]*genai.Schema, len(props))
		for key, val := range props {
			if propMap, ok := val.(map[string]any); ok {
				result.Properties[key] = convertSchema(propMap)
			}
		}
	}
	if items, ok := schema["items"].(map[string]any); ok {
		result.Items = convertSchema(items)
	}

	switch required := schema["required"].(type) {
	case []string:
		result.Required = required
	case []any:
		for _, v := range required {
			if s, ok := v.(string); ok {
				result.Required = append(result.Required, s)
			}
		}
	}
	return result
}

// convertResponse extracts text and usage from a Gemini response.
func convertResponse(resp *genai.GenerateContentResponse) (model.ChatOut, error) {
	out := model.ChatOut{}
	if resp == nil {
		return out, errors.New("empty response from Gemini")
	}
	if resp.UsageMetadata != nil {
		out.Usage = model.Usage{
			InputTokens:  int(resp.UsageMetadata.PromptTokenCount),
			OutputTokens: int(resp.UsageMetadata.CandidatesTokenCount),
		}
	}

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
		return out, &SafetyFilterError{
			reason:   resp.PromptFeedback.BlockReason.String(),
			category: blockedCategory(resp.PromptFeedback.SafetyRatings),
		}
	}
	if len(resp.Candidates) == 0 {
		return out, errors.New("no candidates in Gemini response")
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == genai.FinishReasonSafety {
		return out, &SafetyFilterError{
			reason:   candidate.FinishReason.String(),
			category: blockedCategory(candidate.SafetyRatings),
		}
	}
	if candidate.Content == nil {
		return out, nil
	}

	var texts []string
	for _, part := range candidate.Content.Parts {
		if p, ok := part.(genai.Text); ok {
			texts = append(texts, string(p))
		}
	}
	out.Text = strings.Join(texts, "\n")
	return out, nil
}

func blockedCategory(ratings []*genai.SafetyRating) string {
	for _, r := range ratings {
		if r != nil && r.Blocked {
			return r.Category.String()
		}
	}
	return "unknown"
}

// convertTypeString converts a JSON Schema type string to genai.Type constant.
func convertTypeString(typeStr string) genai.Type {
	switch typeStr {
	case "string":
		return genai.TypeString
	case "number":
		return genai.TypeNumber
	case "integer":
		return genai.TypeInteger
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	case "object":
		return genai.TypeObject
	default:
		return genai.TypeUnspecified
	}
}

// SafetyFilterError represents a Google safety filter block.
//
//	var safetyErr *google.SafetyFilterError
//	if errors.As(err, &safetyErr) {
//	    log.Printf("Content blocked: %s", safetyErr.Category())
//	}
type SafetyFilterError struct {
	reason   string
	category string
}

// Error implements the error interface.
func (e *SafetyFilterError) Error() string {
	return "content blocked by safety filter: " + e.category
}

// Category returns the safety category that triggered the block.
func (e *SafetyFilterError) Category() string {
	return e.category
}

// Reason returns why the content was blocked.
func (e *SafetyFilterError) Reason() string {
	return e.reason
}
