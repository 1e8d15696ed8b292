package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dshills/litreview/graph/model"
	"github.com/dshills/litreview/graph/model/anthropic"
	"github.com/dshills/litreview/graph/model/google"
	"github.com/dshills/litreview/graph/model/openai"
	"github.com/dshills/litreview/internal/config"
)

// newChatModel builds the configured provider, wrapped in a fallback chain
// when fallback models are configured. The returned func closes clients
// that hold connections.
func newChatModel(cfg config.LLMConfig, logger zerolog.Logger) (model.ChatModel, func() error, error) {
	if cfg.Provider == "mock" {
		return dryRunModel(), func() error { return nil }, nil
	}

	names := modelNames(cfg)
	models := make([]model.ChatModel, 0, len(names))
	var closers []func() error
	for _, name := range names {
		switch cfg.Provider {
		case "google":
			m := google.NewChatModel(cfg.APIKey, name,
				google.WithTemperature(cfg.Temperature), google.WithMaxTokens(cfg.MaxTokens))
			closers = append(closers, m.Close)
			models = append(models, m)
		case "openai":
			opts := []openai.Option{openai.WithTemperature(cfg.Temperature), openai.WithMaxTokens(cfg.MaxTokens)}
			if cfg.BaseURL != "" {
				opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
			}
			models = append(models, openai.NewChatModel(cfg.APIKey, name, opts...))
		case "anthropic":
			models = append(models, anthropic.NewChatModel(cfg.APIKey, name,
				anthropic.WithTemperature(cfg.Temperature), anthropic.WithMaxTokens(cfg.MaxTokens)))
		default:
			return nil, nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
		}
	}
	closeAll := func() error {
		var errs []error
		for _, c := range closers {
			errs = append(errs, c())
		}
		return errors.Join(errs...)
	}

	if len(models) == 1 {
		return models[0], closeAll, nil
	}
	chain := model.NewFallback(models...)
	chain.OnFallback = func(i int, err error) {
		logger.Warn().Err(err).Str("model", names[i]).Str("next", names[i+1]).Msg("model failed, trying fallback")
	}
	return chain, closeAll, nil
}

// modelNames lists the primary model and its fallbacks, without repeats.
// The Gemini defaults are dropped for other providers so switching
// --provider alone picks that provider's default model.
func modelNames(cfg config.LLMConfig) []string {
	foreign := func(name string) bool {
		return cfg.Provider != "google" && strings.HasPrefix(name, "gemini-")
	}

	var names []string
	seen := map[string]bool{}
	add := func(name string) {
		if foreign(name) || seen[name] {
			return
		}
		seen[name] = true
		names = append(names, name)
	}

	primary := cfg.Model
	if foreign(primary) {
		primary = ""
	}
	seen[primary] = true
	names = append(names, primary)
	for _, name := range cfg.FallbackModels {
		add(name)
	}
	return names
}

// dryRunModel answers every prompt with placeholder content shaped by the
// requested format, so the workflow can be exercised without an API key.
func dryRunModel() *model.MockChatModel {
	return &model.MockChatModel{
		Handler: func(_ []model.Message, format *model.ResponseFormat) (model.ChatOut, error) {
			if format == nil {
				return model.ChatOut{Text: "Placeholder prose written without a language model.", Model: "mock"}, nil
			}
			data, err := json.Marshal(placeholder(format.Schema))
			if err != nil {
				return model.ChatOut{}, err
			}
			return model.ChatOut{Text: string(data), Model: "mock"}, nil
		},
	}
}

// placeholder builds a value matching a JSON schema fragment.
func placeholder(schema map[string]any) any {
	switch schema["type"] {
	case "object":
		out := map[string]any{}
		props, _ := schema["properties"].(map[string]any)
		for name, p := range props {
			sub, _ := p.(map[string]any)
			if name == "queries" {
				// The planner pads an empty plan with topic-derived queries.
				out[name] = []string{}
				continue
			}
			out[name] = placeholder(sub)
		}
		return out
	case "array":
		items, _ := schema["items"].(map[string]any)
		return []any{placeholder(items)}
	case "integer", "number":
		return 10
	case "boolean":
		return true
	default:
		return "placeholder"
	}
}
