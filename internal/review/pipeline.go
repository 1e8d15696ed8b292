package review

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/dshills/litreview/graph"
	"github.com/dshills/litreview/graph/model"
	"github.com/dshills/litreview/internal/config"
	"github.com/dshills/litreview/internal/papers"
	"github.com/dshills/litreview/internal/pdf"
)

// Downloader fetches the PDF of a paper.
type Downloader interface {
	Download(ctx context.Context, p papers.Paper) (pdf.Download, error)
}

// Settings are the tunables the steps read.
type Settings struct {
	MaxPapers          int
	CoherenceThreshold int
	RevisionCeiling    int
	Workers            int
	TopicMinLength     int
	TopicMaxLength     int
	ResultsPerQuery    int
	MaxInputChars      int

	// LLMTimeout bounds a single model call. Zero means no bound.
	LLMTimeout time.Duration

	// Retry is the backoff for every external call. Retryable is filled
	// in per collaborator.
	Retry graph.RetryPolicy

	NodeTimeout time.Duration
	MaxSteps    int
}

// DefaultSettings mirrors the configuration defaults.
func DefaultSettings() Settings {
	return Settings{
		MaxPapers:          3,
		CoherenceThreshold: 7,
		RevisionCeiling:    2,
		Workers:            3,
		TopicMinLength:     3,
		TopicMaxLength:     300,
		ResultsPerQuery:    20,
		MaxInputChars:      100000,
		LLMTimeout:         2 * time.Minute,
		Retry:              graph.RetryPolicy{MaxAttempts: 3, BaseDelay: 2 * time.Second, MaxDelay: 10 * time.Second},
		NodeTimeout:        15 * time.Minute,
		MaxSteps:           100,
	}
}

// SettingsFromConfig extracts Settings from the loaded configuration.
func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		MaxPapers:          cfg.Pipeline.MaxPapers,
		CoherenceThreshold: cfg.Pipeline.CoherenceThreshold,
		RevisionCeiling:    cfg.Pipeline.RevisionCeiling,
		Workers:            cfg.Pipeline.Workers,
		TopicMinLength:     cfg.Pipeline.TopicMinLength,
		TopicMaxLength:     cfg.Pipeline.TopicMaxLength,
		ResultsPerQuery:    cfg.Search.ResultsPerQuery,
		MaxInputChars:      cfg.LLM.MaxInputChars,
		LLMTimeout:         cfg.LLM.Timeout,
		Retry: graph.RetryPolicy{
			MaxAttempts: cfg.Retry.MaxAttempts,
			BaseDelay:   cfg.Retry.BaseDelay,
			MaxDelay:    cfg.Retry.MaxDelay,
		},
		NodeTimeout: cfg.Pipeline.NodeTimeout,
		MaxSteps:    cfg.Pipeline.MaxSteps,
	}
}

// Deps are the collaborators the steps call. Model, Searcher, Downloader
// and Extractor are required; the rest are optional.
type Deps struct {
	Model      model.ChatModel
	Searcher   papers.Searcher
	Downloader Downloader
	Extractor  pdf.Extractor
	Artifacts  *Artifacts
	Settings   Settings
	Logger     zerolog.Logger
	Metrics    *graph.PrometheusMetrics
	Cost       *graph.CostTracker
}

func (d Deps) validate() error {
	switch {
	case d.Model == nil:
		return fmt.Errorf("review: chat model is required")
	case d.Searcher == nil:
		return fmt.Errorf("review: searcher is required")
	case d.Downloader == nil:
		return fmt.Errorf("review: downloader is required")
	case d.Extractor == nil:
		return fmt.Errorf("review: extractor is required")
	}
	return d.Settings.Retry.Validate()
}

// Steps holds the step functions. Each method is a graph node.
type Steps struct {
	deps   Deps
	logger zerolog.Logger
}

func newSteps(deps Deps) *Steps {
	return &Steps{deps: deps, logger: deps.Logger.With().Str("component", "review").Logger()}
}

// retryPolicy returns the configured backoff for operation.
func (st *Steps) retryPolicy(operation string, retryable func(error) bool) graph.RetryPolicy {
	p := st.deps.Settings.Retry
	p.Retryable = retryable
	p.OnRetry = func(attempt int, err error, delay time.Duration) {
		st.deps.Metrics.IncrementRetries(operation, string(model.Classify(err)))
		st.logger.Warn().Err(err).
			Str("operation", operation).
			Int("attempt", attempt).
			Dur("delay", delay).
			Msg("retrying")
	}
	return p
}

// chat sends one prompt with retry and records its usage against the run.
func (st *Steps) chat(ctx context.Context, s State, step string, msgs []model.Message, format *model.ResponseFormat) (model.ChatOut, error) {
	policy := st.retryPolicy("llm:"+step, model.Retryable)
	out, err := graph.Retry(ctx, policy, func(ctx context.Context) (model.ChatOut, error) {
		if st.deps.Settings.LLMTimeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, st.deps.Settings.LLMTimeout)
			defer cancel()
		}
		return st.deps.Model.Chat(ctx, msgs, format)
	})
	if err != nil {
		return out, err
	}

	st.deps.Metrics.RecordTokens(out.Model, out.Usage.InputTokens, out.Usage.OutputTokens)
	cost := st.deps.Cost.RecordLLMCall(s.RunID, step, out.Model, out.Usage.InputTokens, out.Usage.OutputTokens)
	st.logger.Debug().
		Str("run_id", s.RunID).
		Str("step", step).
		Str("model", out.Model).
		Int("tokens_in", out.Usage.InputTokens).
		Int("tokens_out", out.Usage.OutputTokens).
		Float64("cost_usd", cost).
		Msg("llm call")
	return out, nil
}

// ask is chat for a structured reply that must carry format's required
// keys.
func ask[T any](ctx context.Context, st *Steps, s State, step string, msgs []model.Message, format *model.ResponseFormat) model.Result[T] {
	out, err := st.chat(ctx, s, step, msgs, format)
	return model.DecodeFormat[T](out, err, format)
}

// pool returns the fan-out configuration for stage.
func (st *Steps) pool(stage string) graph.Pool {
	return graph.Pool{Workers: st.deps.Settings.Workers, Stage: stage, Metrics: st.deps.Metrics}
}

type namedNode struct {
	id string
	fn graph.NodeFunc[State]
}

// Register adds every step to eng and wires the edges, including the
// critique router.
func (st *Steps) Register(eng *graph.Engine[State]) error {
	nodes := []namedNode{
		{StepProcessInput, st.ProcessInput},
		{StepPlanner, st.Planner},
		{StepSearchArticles, st.SearchArticles},
		{StepArticleDecisions, st.ArticleDecisions},
		{StepDownloadArticles, st.DownloadArticles},
		{StepExtractText, st.ExtractText},
		{StepNormalizeText, st.NormalizeText},
		{StepSemanticSection, st.SemanticSection},
		{StepValidateSections, st.ValidateSections},
		{StepStoreSections, st.StoreSections},
		{StepPaperAnalyzer, st.PaperAnalyzer},
		{StepCrossCompare, st.CrossCompare},
	}
	for _, sec := range DraftOrder {
		nodes = append(nodes, namedNode{sec.Step, st.WriteSection(sec)})
	}
	nodes = append(nodes,
		namedNode{StepAggregatePaper, st.AggregatePaper},
		namedNode{StepCritiquePaper, st.CritiquePaper},
		namedNode{StepRevisePaper, st.RevisePaper},
		namedNode{StepFinalDraft, st.FinalDraft},
	)

	for _, n := range nodes {
		if err := eng.Add(n.id, n.fn); err != nil {
			return err
		}
	}
	if err := eng.StartAt(StepProcessInput); err != nil {
		return err
	}

	for i := 0; i < len(nodes)-1; i++ {
		from, to := nodes[i].id, nodes[i+1].id
		switch from {
		case StepCritiquePaper, StepRevisePaper, StepFinalDraft:
			continue
		}
		if err := eng.Connect(from, to, nil); err != nil {
			return err
		}
	}

	threshold, ceiling := st.deps.Settings.CoherenceThreshold, st.deps.Settings.RevisionCeiling
	edges := []struct {
		from, to string
		when     graph.Predicate[State]
	}{
		{StepCritiquePaper, StepRevisePaper, func(s State) bool { return decideState(s, threshold, ceiling) == DecisionRevise }},
		{StepCritiquePaper, StepFinalDraft, nil},
		{StepRevisePaper, StepCritiquePaper, nil},
	}
	for _, e := range edges {
		if err := eng.Connect(e.from, e.to, e.when); err != nil {
			return err
		}
	}
	return nil
}

// logf formats a progress line for StepLog.
func logf(step, format string, args ...any) []string {
	return []string{step + ": " + fmt.Sprintf(format, args...)}
}
