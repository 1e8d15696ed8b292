package model

import (
	"context"
	"errors"
	"fmt"
)

// Fallback tries each model in order and returns the first success.
//
// Cancellation stops the chain immediately. Any other failure moves on to
// the next model; the last error is returned when all of them fail.
type Fallback struct {
	models []ChatModel

	// OnFallback, if set, is called before moving past models[i].
	OnFallback func(i int, err error)
}

// NewFallback builds a chain. Nil models are skipped.
func NewFallback(models ...ChatModel) *Fallback {
	f := &Fallback{}
	for _, m := range models {
		if m != nil {
			f.models = append(f.models, m)
		}
	}
	return f
}

// Len returns the number of models in the chain.
func (f *Fallback) Len() int {
	return len(f.models)
}

// Chat implements ChatModel.
func (f *Fallback) Chat(ctx context.Context, messages []Message, format *ResponseFormat) (ChatOut, error) {
	if len(f.models) == 0 {
		return ChatOut{}, errors.New("fallback: no models configured")
	}

	var lastErr error
	for i, m := range f.models {
		out, err := m.Chat(ctx, messages, format)
		if err == nil {
			return out, nil
		}
		lastErr = err
		if Classify(err) == FailureCanceled {
			return ChatOut{}, err
		}
		if i < len(f.models)-1 && f.OnFallback != nil {
			f.OnFallback(i, err)
		}
	}
	if len(f.models) == 1 {
		return ChatOut{}, lastErr
	}
	return ChatOut{}, fmt.Errorf("all %d models failed: %w", len(f.models), lastErr)
}
