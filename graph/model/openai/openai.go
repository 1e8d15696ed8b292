// Package openai provides a ChatModel adapter for OpenAI's chat completions API.
package openai

import (
	"context"
	"errors"
	"strings"

	sdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/dshills/litreview/graph/model"
)

// DefaultModel is used when NewChatModel gets an empty model name.
const DefaultModel = "gpt-4o-mini"

// ChatModel implements model.ChatModel for OpenAI's API.
//
// A ResponseFormat switches the request to JSON object mode and adds the
// schema to the system prompt. Retries are left to the caller.
//
// Example usage:
//
//	m := openai.NewChatModel(os.Getenv("OPENAI_API_KEY"), "gpt-4o")
//	out, err := m.Chat(ctx, messages, &model.ResponseFormat{Name: "findings", Schema: schema})
type ChatModel struct {
	modelName string
	client    openaiClient
}

// openaiClient defines the SDK operations the adapter needs. Tests replace it.
type openaiClient interface {
	createChatCompletion(ctx context.Context, messages []model.Message, jsonMode bool) (model.ChatOut, error)
}

// Option configures a ChatModel.
type Option func(*defaultClient)

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(c *defaultClient) {
		c.temperature = &t
	}
}

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) Option {
	return func(c *defaultClient) {
		if n > 0 {
			c.maxTokens = int64(n)
		}
	}
}

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option {
	return func(c *defaultClient) {
		c.baseURL = url
	}
}

// NewChatModel creates a new OpenAI ChatModel.
func NewChatModel(apiKey, modelName string, opts ...Option) *ChatModel {
	if modelName == "" {
		modelName = DefaultModel
	}

	c := &defaultClient{apiKey: apiKey, modelName: modelName}
	for _, opt := range opts {
		opt(c)
	}
	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey), option.WithMaxRetries(0)}
	if c.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(c.baseURL))
	}
	c.sdk = sdk.NewClient(reqOpts...)

	return &ChatModel{modelName: modelName, client: c}
}

// Chat implements the model.ChatModel interface.
func (m *ChatModel) Chat(ctx context.Context, messages []model.Message, format *model.ResponseFormat) (model.ChatOut, error) {
	if ctx.Err() != nil {
		return model.ChatOut{}, ctx.Err()
	}

	if instr := model.FormatInstruction(format); instr != "" {
		messages = append([]model.Message{{Role: model.RoleSystem, Content: instr}}, messages...)
	}

	out, err := m.client.createChatCompletion(ctx, messages, format != nil)
	if err != nil {
		return model.ChatOut{}, translateError(err)
	}
	if out.Model == "" {
		out.Model = m.modelName
	}
	return out, nil
}

func translateError(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return &model.StatusError{Provider: "openai", StatusCode: apiErr.StatusCode, Err: err}
	}
	return err
}

type defaultClient struct {
	apiKey      string
	modelName   string
	baseURL     string
	temperature *float64
	maxTokens   int64
	sdk         sdk.Client
}

func (c *defaultClient) createChatCompletion(ctx context.Context, messages []model.Message, jsonMode bool) (model.ChatOut, error) {
	if c.apiKey == "" {
		return model.ChatOut{}, errors.New("OpenAI API key is required")
	}

	params := sdk.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.modelName),
		Messages: convertMessages(messages),
	}
	if jsonMode {
		params.ResponseFormat = sdk.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: sdk.Ptr(shared.NewResponseFormatJSONObjectParam()),
		}
	}
	if c.temperature != nil {
		params.Temperature = sdk.Float(*c.temperature)
	}
	if c.maxTokens > 0 {
		params.MaxCompletionTokens = sdk.Int(c.maxTokens)
	}

	completion, err := c.sdk.Chat.Completions.New(ctx, params)
	if err != nil {
		return model.ChatOut{}, err
	}
	if len(completion.Choices) == 0 {
		return model.ChatOut{}, errors.New("no choices in OpenAI response")
	}

	return model.ChatOut{
		Text:  strings.TrimSpace(completion.Choices[0].Message.Content),
		Model: completion.Model,
		Usage: model.Usage{
			InputTokens:  int(completion.Usage.PromptTokens),
			OutputTokens: int(completion.Usage.CompletionTokens),
		},
	}, nil
}

func convertMessages(messages []model.Message) []sdk.ChatCompletionMessageParamUnion {
	out := make([]sdk.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case model.RoleSystem:
			out = append(out, sdk.SystemMessage(msg.Content))
		case model.RoleAssistant:
			out = append(out, sdk.AssistantMessage(msg.Content))
		default:
			out = append(out, sdk.UserMessage(msg.Content))
		}
	}
	return out
}
