// Package anthropic provides a ChatModel adapter for Anthropic's Claude API.
package anthropic

import (
	"context"
	"errors"
	"strings"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/dshills/litreview/graph/model"
)

// DefaultModel is used when NewChatModel gets an empty model name.
const DefaultModel = "claude-3-5-haiku-latest"

// ChatModel implements model.ChatModel for Anthropic's Claude API.
//
// Claude has no JSON response mode, so a ResponseFormat is turned into a
// system prompt instruction and the reply is decoded by model.Decode.
//
// Example usage:
//
//	m := anthropic.NewChatModel(os.Getenv("ANTHROPIC_API_KEY"), "claude-3-5-sonnet-latest")
//	out, err := m.Chat(ctx, []model.Message{{Role: model.RoleUser, Content: "Hi"}}, nil)
type ChatModel struct {
	modelName string
	client    anthropicClient
}

// anthropicClient is the slice of the SDK the adapter uses. Tests replace it.
type anthropicClient interface {
	createMessage(ctx context.Context, systemPrompt string, messages []model.Message) (model.ChatOut, error)
}

// Option configures a ChatModel.
type Option func(*defaultClient)

// WithMaxTokens caps the reply length. The default is 4096.
func WithMaxTokens(n int) Option {
	return func(c *defaultClient) {
		if n > 0 {
			c.maxTokens = int64(n)
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) Option {
	return func(c *defaultClient) {
		c.temperature = &t
	}
}

// NewChatModel creates a new Anthropic ChatModel.
func NewChatModel(apiKey, modelName string, opts ...Option) *ChatModel {
	if modelName == "" {
		modelName = DefaultModel
	}

	c := &defaultClient{
		apiKey:    apiKey,
		modelName: modelName,
		maxTokens: 4096,
		sdk:       sdk.NewClient(option.WithAPIKey(apiKey)),
	}
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

	// Anthropic takes the system prompt as a separate parameter.
	systemPrompt, conversation := model.SplitSystem(messages)
	if instr := model.FormatInstruction(format); instr != "" {
		systemPrompt = strings.TrimSpace(systemPrompt + "\n\n" + instr)
	}
	if len(conversation) == 0 {
		return model.ChatOut{}, errors.New("anthropic: at least one non-system message is required")
	}

	out, err := m.client.createMessage(ctx, systemPrompt, conversation)
	if err != nil {
		return model.ChatOut{}, translateError(err)
	}
	if out.Model == "" {
		out.Model = m.modelName
	}
	return out, nil
}

// translateError wraps SDK HTTP errors in *model.StatusError.
func translateError(err error) error {
	var apiErr *sdk.Error
	if errors.As(err, &apiErr) {
		return &model.StatusError{Provider: "anthropic", StatusCode: apiErr.StatusCode, Err: err}
	}
	return err
}

type defaultClient struct {
	apiKey      string
	modelName   string
	maxTokens   int64
	temperature *float64
	sdk         sdk.Client
}

func (c *defaultClient) createMessage(ctx context.Context, systemPrompt string, messages []model.Message) (model.ChatOut, error) {
	if c.apiKey == "" {
		return model.ChatOut{}, errors.New("anthropic API key is required")
	}

	params := sdk.MessageNewParams{
		Model:     sdk.Model(c.modelName),
		MaxTokens: c.maxTokens,
		Messages:  convertMessages(messages),
	}
	if systemPrompt != "" {
		params.System = []sdk.TextBlockParam{{Text: systemPrompt}}
	}
	if c.temperature != nil {
		params.Temperature = sdk.Float(*c.temperature)
	}

	msg, err := c.sdk.Messages.New(ctx, params)
	if err != nil {
		return model.ChatOut{}, err
	}

	var text strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return model.ChatOut{
		Text:  text.String(),
		Model: string(msg.Model),
		Usage: model.Usage{
			InputTokens:  int(msg.Usage.InputTokens),
			OutputTokens: int(msg.Usage.OutputTokens),
		},
	}, nil
}

func convertMessages(messages []model.Message) []sdk.MessageParam {
	out := make([]sdk.MessageParam, 0, len(messages))
	for _, msg := range messages {
		block := sdk.NewTextBlock(msg.Content)
		if msg.Role == model.RoleAssistant {
			out = append(out, sdk.NewAssistantMessage(block))
		} else {
			out = append(out, sdk.NewUserMessage(block))
		}
	}
	return out
}
