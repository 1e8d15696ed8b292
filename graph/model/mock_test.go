package model

import (
	"context"
	"errors"
	"sync"
	"testing"
)

func TestMockChatModel(t *testing.T) {
	ctx := context.Background()
	msgs := []Message{{Role: RoleUser, Content: "hi"}}

	t.Run("returns responses in order then repeats the last", func(t *testing.T) {
		m := &MockChatModel{Responses: []ChatOut{{Text: "one"}, {Text: "two"}}}
		for _, want := range []string{"one", "two", "two"} {
			out, err := m.Chat(ctx, msgs, nil)
			if err != nil || out.Text != want {
				t.Errorf("expected %q, got %q (%v)", want, out.Text, err)
			}
		}
		m.Reset()
		if m.CallCount() != 0 {
			t.Errorf("expected reset history, got %d", m.CallCount())
		}
		if out, _ := m.Chat(ctx, msgs, nil); out.Text != "one" {
			t.Errorf("expected index reset, got %q", out.Text)
		}
	})

	t.Run("handler takes precedence", func(t *testing.T) {
		m := &MockChatModel{
			Responses: []ChatOut{{Text: "ignored"}},
			Handler: func(messages []Message, f *ResponseFormat) (ChatOut, error) {
				if f != nil {
					return ChatOut{Text: f.Name}, nil
				}
				return ChatOut{}, errors.New("no format")
			},
		}
		out, err := m.Chat(ctx, msgs, &ResponseFormat{Name: "critique"})
		if err != nil || out.Text != "critique" {
			t.Errorf("expected handler output, got %q (%v)", out.Text, err)
		}
		if _, err := m.Chat(ctx, msgs, nil); err == nil {
			t.Error("expected handler error")
		}
	})

	t.Run("error injection and cancellation", func(t *testing.T) {
		m := &MockChatModel{Err: errors.New("api")}
		if _, err := m.Chat(ctx, msgs, nil); err == nil {
			t.Error("expected injected error")
		}

		cctx, cancel := context.WithCancel(ctx)
		cancel()
		if _, err := m.Chat(cctx, msgs, nil); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if m.CallCount() != 1 {
			t.Errorf("expected cancelled call not recorded, got %d", m.CallCount())
		}
	})

	t.Run("concurrent use", func(t *testing.T) {
		m := &MockChatModel{Responses: []ChatOut{{Text: "ok"}}}
		var wg sync.WaitGroup
		for i := 0; i < 20; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = m.Chat(ctx, msgs, nil)
			}()
		}
		wg.Wait()
		if m.CallCount() != 20 {
			t.Errorf("expected 20 calls, got %d", m.CallCount())
		}
	})
}
