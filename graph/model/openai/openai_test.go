package openai

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dshills/litreview/graph/model"
)

type mockOpenAIClient struct {
	out       model.ChatOut
	err       error
	callCount int
	messages  []model.Message
	jsonMode  bool
}

func (m *mockOpenAIClient) createChatCompletion(ctx context.Context, messages []model.Message, jsonMode bool) (model.ChatOut, error) {
	m.callCount++
	m.messages = messages
	m.jsonMode = jsonMode
	return m.out, m.err
}

func TestChatModel_Construction(t *testing.T) {
	m := NewChatModel("test-api-key", "")
	if m.modelName != DefaultModel {
		t.Errorf("expected default model %q, got %q", DefaultModel, m.modelName)
	}

	m = NewChatModel("k", "gpt-4o", WithTemperature(0.3), WithMaxTokens(512), WithBaseURL("http://localhost:1234/v1"))
	c := m.client.(*defaultClient)
	if *c.temperature != 0.3 || c.maxTokens != 512 || c.baseURL == "" {
		t.Errorf("expected options applied, got %+v", c)
	}
}

func TestChatModel_Chat(t *testing.T) {
	msgs := []model.Message{{Role: model.RoleUser, Content: "hi"}}

	t.Run("plain text", func(t *testing.T) {
		mc := &mockOpenAIClient{out: model.ChatOut{Text: "hello", Model: "gpt-4o-2024"}}
		m := &ChatModel{client: mc, modelName: "gpt-4o"}

		out, err := m.Chat(context.Background(), msgs, nil)
		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if out.Text != "hello" || out.Model != "gpt-4o-2024" {
			t.Errorf("unexpected output %+v", out)
		}
		if mc.jsonMode || len(mc.messages) != 1 {
			t.Errorf("expected no JSON mode and untouched messages, got %v / %+v", mc.jsonMode, mc.messages)
		}
	})

	t.Run("response format enables JSON mode", func(t *testing.T) {
		mc := &mockOpenAIClient{out: model.ChatOut{Text: `{"queries":[]}`}}
		m := &ChatModel{client: mc, modelName: "gpt-4o"}

		out, err := m.Chat(context.Background(), msgs, &model.ResponseFormat{Name: "queries"})
		if err != nil {
			t.Fatalf("Chat: %v", err)
		}
		if !mc.jsonMode {
			t.Error("expected JSON mode")
		}
		if mc.messages[0].Role != model.RoleSystem || !strings.Contains(mc.messages[0].Content, "JSON") {
			t.Errorf("expected JSON instruction first, got %+v", mc.messages[0])
		}
		if out.Model != "gpt-4o" {
			t.Errorf("expected model name fallback, got %q", out.Model)
		}
	})

	t.Run("respects context cancellation", func(t *testing.T) {
		mc := &mockOpenAIClient{}
		m := &ChatModel{client: mc, modelName: "gpt-4o"}
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		if _, err := m.Chat(ctx, msgs, nil); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if mc.callCount != 0 {
			t.Error("expected no API call")
		}
	})

	t.Run("errors pass through for classification", func(t *testing.T) {
		m := &ChatModel{client: &mockOpenAIClient{err: errors.New("You exceeded your current quota")}, modelName: "gpt-4o"}
		_, err := m.Chat(context.Background(), msgs, nil)
		if model.Classify(err) != model.FailureRateLimited {
			t.Errorf("expected rate-limited classification, got %v", err)
		}
	})
}

func TestDefaultClient_RequiresKey(t *testing.T) {
	c := &defaultClient{modelName: "gpt-4o"}
	if _, err := c.createChatCompletion(context.Background(), nil, false); err == nil {
		t.Error("expected missing key error")
	}
}

func TestConvertMessages(t *testing.T) {
	got := convertMessages([]model.Message{
		{Role: model.RoleSystem, Content: "s"},
		{Role: model.RoleUser, Content: "u"},
		{Role: model.RoleAssistant, Content: "a"},
	})
	if len(got) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(got))
	}
	if got[0].OfSystem == nil || got[1].OfUser == nil || got[2].OfAssistant == nil {
		t.Errorf("unexpected message variants %+v", got)
	}
}
