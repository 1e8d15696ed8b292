package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/litreview/graph"
	"github.com/dshills/litreview/graph/emit"
	"github.com/dshills/litreview/graph/model"
	"github.com/dshills/litreview/graph/store"
	"github.com/dshills/litreview/internal/papers"
	"github.com/dshills/litreview/internal/pdf"
)

// fakeSearcher returns perQuery papers for every query, all with a PDF.
type fakeSearcher struct {
	perQuery int
	err      error

	mu      sync.Mutex
	queries []string
}

func (f *fakeSearcher) Search(_ context.Context, query string, limit int) ([]papers.Paper, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}

	n := min(f.perQuery, limit)
	out := make([]papers.Paper, 0, n)
	for i := 0; i < n; i++ {
		id := fmt.Sprintf("%s-%d", strings.ReplaceAll(query, " ", "_"), i)
		out = append(out, papers.Paper{
			ID:            id,
			Title:         "Paper " + id,
			Year:          2020 + i,
			CitationCount: i * 10,
			PDFURL:        "https://example.org/" + id + ".pdf",
		})
	}
	return out, nil
}

// fakeDownloader "downloads" into a path derived from the paper ID. Papers
// listed in fail are rejected with a permanent error.
type fakeDownloader struct {
	fail map[string]bool
	all  bool
}

func (f *fakeDownloader) Download(_ context.Context, p papers.Paper) (pdf.Download, error) {
	if f.all || f.fail[p.ID] {
		return pdf.Download{}, fmt.Errorf("%w: not a pdf", pdf.ErrInvalidPDF)
	}
	return pdf.Download{PaperID: p.ID, Path: "/papers/" + p.ID + ".pdf", SHA256: "sha-" + p.ID}, nil
}

// fakeExtractor returns a short two-section paper for every path. Papers
// listed in fail, or all of them, cannot be read.
type fakeExtractor struct {
	fail map[string]bool
	all  bool
}

func (f *fakeExtractor) Extract(_ context.Context, path string) (pdf.Extraction, error) {
	id := strings.TrimSuffix(filepath.Base(path), ".pdf")
	if f.all || f.fail[id] {
		return pdf.Extraction{}, fmt.Errorf("%w: no text layer", pdf.ErrNoText)
	}
	return pdf.Extraction{
		Path:   path,
		SHA256: "sha",
		Pages:  3,
		Text:   "Abstract\nA study of " + filepath.Base(path) + ".\n\nIntroduction\nSome  back-\nground.\n",
	}, nil
}

func overloaded() error {
	return &model.StatusError{Provider: "mock", StatusCode: 503, Err: errors.New("overloaded")}
}

// scriptedModel answers every prompt of the pipeline. Critique scores are
// consumed in order, repeating the last one. The fail switches make one
// kind of call fail every time.
type scriptedModel struct {
	scores        []int
	failComparing bool
	failCritique  bool
	// failSection is the key of a draft section whose writer always fails.
	failSection string
	// failAnalysis holds the IDs of papers whose analysis always fails.
	failAnalysis map[string]bool
	// sections replaces the sectioning reply when set.
	sections string

	mu        sync.Mutex
	critiques int
	revisions int
	analyses  map[string]int
}

// sectionsReply renders a sectioning reply with every ontology key.
func sectionsReply(filled map[string]string) string {
	doc := make(map[string]string, len(SectionOntology))
	for _, name := range SectionOntology {
		doc[name] = filled[name]
	}
	b, _ := json.Marshal(doc)
	return string(b)
}

func (m *scriptedModel) handle(msgs []model.Message, format *model.ResponseFormat) (model.ChatOut, error) {
	out := model.ChatOut{Model: "mock", Usage: model.Usage{InputTokens: 100, OutputTokens: 20}}
	user := msgs[len(msgs)-1].Content

	if format == nil {
		if strings.HasPrefix(user, "Revise the following") {
			m.mu.Lock()
			m.revisions++
			out.Text = fmt.Sprintf("# Literature Review\n\nrevised draft %d", m.revisions)
			m.mu.Unlock()
			return out, nil
		}
		if m.failSection != "" && strings.Contains(user, sectionInstructions[m.failSection]) {
			return model.ChatOut{}, overloaded()
		}
		out.Text = "Section text citing (Author, 2021)."
		return out, nil
	}

	switch format.Name {
	case "search_queries":
		out.Text = `{"queries": ["graph networks", "message passing", "graph transformers"]}`
	case "paper_sections":
		out.Text = m.sections
		if out.Text == "" {
			out.Text = sectionsReply(map[string]string{"abstract": "We study graphs.", "introduction": "Graphs matter.", "results": "It works."})
		}
	case "paper_findings":
		for id := range m.failAnalysis {
			if strings.Contains(user, fmt.Sprintf("%q", "Paper "+id)) {
				m.mu.Lock()
				if m.analyses == nil {
					m.analyses = map[string]int{}
				}
				m.analyses[id]++
				m.mu.Unlock()
				return model.ChatOut{}, overloaded()
			}
		}
		out.Text = `{"key_findings": ["finding"], "contributions": ["contribution"], "limitations": [], "future_work": []}`
	case "cross_comparison":
		if m.failComparing {
			return model.ChatOut{}, &model.StatusError{Provider: "mock", StatusCode: 400, Err: errors.New("bad request")}
		}
		out.Text = "```json\n{\"common_methodologies\": [\"GNNs\"], \"divergent_findings\": [], \"unique_contributions\": [], " +
			"\"research_gaps\": [], \"summary\": \"They agree.\"}\n```"
	case "critique":
		m.mu.Lock()
		m.critiques++
		if m.failCritique {
			m.mu.Unlock()
			return model.ChatOut{}, overloaded()
		}
		score := m.scores[min(m.critiques-1, len(m.scores)-1)]
		m.mu.Unlock()
		out.Text = fmt.Sprintf(`{"quality": "fair", "coherence_score": %d, "notes": "tighten the introduction"}`, score)
	default:
		return model.ChatOut{}, fmt.Errorf("unexpected format %q", format.Name)
	}
	return out, nil
}

type harness struct {
	runner     *Runner
	model      *scriptedModel
	searcher   *fakeSearcher
	downloader *fakeDownloader
	extractor  *fakeExtractor
	emitter    *emit.BufferedEmitter
	cost       *graph.CostTracker
	dataDir    string
}

func newHarness(t *testing.T, m *scriptedModel) *harness {
	t.Helper()
	return newHarnessWith(t, m, quickSettings())
}

func newHarnessWith(t *testing.T, m *scriptedModel, settings Settings) *harness {
	t.Helper()

	h := &harness{
		model:      m,
		searcher:   &fakeSearcher{perQuery: 6},
		downloader: &fakeDownloader{},
		extractor:  &fakeExtractor{},
		emitter:    emit.NewBufferedEmitter(0),
		cost:       graph.NewCostTracker(),
		dataDir:    t.TempDir(),
	}
	deps := Deps{
		Model:      &model.MockChatModel{Handler: m.handle},
		Searcher:   h.searcher,
		Downloader: h.downloader,
		Extractor:  h.extractor,
		Artifacts:  NewArtifacts(h.dataDir),
		Settings:   settings,
		Logger:     zerolog.Nop(),
		Cost:       h.cost,
	}

	r, err := NewRunner(deps, store.NewMemStore[State](), h.emitter)
	require.NoError(t, err)
	h.runner = r
	return h
}

func TestNewRunner_RequiresCollaborators(t *testing.T) {
	_, err := NewRunner(Deps{Settings: DefaultSettings()}, store.NewMemStore[State](), nil)
	assert.Error(t, err)

	deps := Deps{
		Model:      &model.MockChatModel{},
		Searcher:   &fakeSearcher{},
		Downloader: &fakeDownloader{},
		Extractor:  &fakeExtractor{},
		Settings:   DefaultSettings(),
	}
	_, err = NewRunner(deps, nil, nil)
	assert.Error(t, err)

	r, err := NewRunner(deps, store.NewMemStore[State](), nil)
	require.NoError(t, err)
	assert.NotNil(t, r)
}

func TestRunner_FullRun(t *testing.T) {
	h := newHarness(t, &scriptedModel{scores: []int{5, 8}})
	ctx := context.Background()

	s, err := h.runner.Full(ctx, "  graph neural networks ")
	require.NoError(t, err)

	assert.NotEmpty(t, s.RunID)
	assert.True(t, s.Done)
	assert.Equal(t, OutcomeCompleted, s.Outcome)
	assert.Equal(t, MilestoneFinal, s.Milestone)
	assert.Equal(t, "", s.Cursor)
	assert.Equal(t, "graph neural networks", s.Topic)

	assert.Len(t, s.SearchQueries, 3)
	assert.Len(t, s.CandidatePapers, 18)
	require.Len(t, s.SelectedPapers, 3)
	for _, p := range s.SelectedPapers {
		assert.True(t, p.HasPDF())
		assert.Equal(t, 50, p.CitationCount)
		assert.Contains(t, s.DownloadedPaths, p.ID)
	}

	assert.Len(t, s.Corpus, 3)
	assert.Len(t, s.Findings, 3)
	require.NotNil(t, s.Comparison)
	assert.Equal(t, "They agree.", s.Comparison.Summary)
	assert.Len(t, s.DraftSections, len(DraftOrder))
	assert.True(t, strings.HasPrefix(s.AggregatedDraft, "# Literature Review: graph neural networks"))

	assert.Equal(t, 1, s.RevisionCount)
	require.NotNil(t, s.Critique)
	assert.Equal(t, 8, s.Critique.CoherenceScore)
	assert.Equal(t, "# Literature Review\n\nrevised draft 1\n", s.FinalDraft)
	assert.Empty(t, s.Errors)

	for _, p := range s.SelectedPapers {
		assert.NotContains(t, s.NormalizedText[p.ID], "back-\n")
	}

	drafts, err := os.ReadDir(filepath.Join(h.dataDir, DirDrafts))
	require.NoError(t, err)
	assert.Len(t, drafts, 1)

	summary := h.runner.Cost(s.RunID)
	assert.Greater(t, summary.Calls, 0)

	ends := h.emitter.GetHistoryWithFilter(s.RunID, emit.HistoryFilter{Msg: emit.MsgRunEnd})
	require.Len(t, ends, 1)
	assert.Equal(t, OutcomeCompleted, ends[0].Meta["outcome"])

	for _, m := range []string{MilestoneSearch, MilestoneSectioning, MilestoneDraft, MilestoneFinal} {
		cp, err := h.runner.LoadMilestone(ctx, s.RunID, m)
		require.NoError(t, err, m)
		assert.Equal(t, s.Topic, cp.Topic)
	}
}

func TestRunner_RevisionCeiling(t *testing.T) {
	h := newHarness(t, &scriptedModel{scores: []int{3}})

	s, err := h.runner.Full(context.Background(), "graph neural networks")
	require.NoError(t, err)

	assert.Equal(t, 2, s.RevisionCount)
	assert.Equal(t, 3, h.model.critiques)
	assert.Equal(t, 2, h.model.revisions)
	assert.Equal(t, "# Literature Review\n\nrevised draft 2\n", s.FinalDraft)
	assert.Equal(t, OutcomeCompleted, s.Outcome)
}

func TestRunner_NoDownloads(t *testing.T) {
	h := newHarness(t, &scriptedModel{scores: []int{8}})
	h.downloader.all = true

	s, err := h.runner.Full(context.Background(), "graph neural networks")
	require.NoError(t, err)

	assert.True(t, s.Done)
	assert.Equal(t, OutcomeNoDownloads, s.Outcome)
	assert.Equal(t, MilestoneSearch, s.Milestone)
	assert.Empty(t, s.SelectedPapers)
	assert.Len(t, s.Errors, 3)
	for _, e := range s.Errors {
		assert.Contains(t, e, "download failed")
	}
	assert.Empty(t, s.FinalDraft)
}

func TestRunner_PartialDownloadsNarrowSelection(t *testing.T) {
	h := newHarness(t, &scriptedModel{scores: []int{8}})
	h.downloader.fail = map[string]bool{"graph_networks-5": true}

	s, err := h.runner.Search(context.Background(), "graph neural networks")
	require.NoError(t, err)

	require.Len(t, s.SelectedPapers, 2)
	for _, p := range s.SelectedPapers {
		assert.NotEqual(t, "graph_networks-5", p.ID)
	}
	assert.Len(t, s.DownloadedPaths, 2)
	assert.Len(t, s.Errors, 1)
}

func TestRunner_NoResults(t *testing.T) {
	h := newHarness(t, &scriptedModel{scores: []int{8}})
	h.searcher.err = &papers.APIError{Source: "test", StatusCode: 400, Message: "bad query"}

	s, err := h.runner.Full(context.Background(), "graph neural networks")
	require.NoError(t, err)

	assert.True(t, s.Done)
	assert.Equal(t, OutcomeNoResults, s.Outcome)
	assert.Len(t, s.Errors, 3)
}

func TestRunner_InvalidTopic(t *testing.T) {
	h := newHarness(t, &scriptedModel{scores: []int{8}})

	_, err := h.runner.Full(context.Background(), "ab")
	require.Error(t, err)

	var pe *PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, StepProcessInput, pe.Step)
	assert.ErrorIs(t, err, ErrValidation)
	assert.Equal(t, 0, h.model.critiques)
}

func TestRunner_SearchThenGenerate(t *testing.T) {
	h := newHarness(t, &scriptedModel{scores: []int{9}})
	ctx := context.Background()

	searched, err := h.runner.Search(ctx, "graph neural networks")
	require.NoError(t, err)
	assert.False(t, searched.Done)
	assert.Equal(t, MilestoneSearch, searched.Milestone)
	assert.Equal(t, StepExtractText, searched.Cursor)
	assert.Empty(t, searched.AggregatedDraft)

	loaded, err := h.runner.Load(ctx, searched.RunID)
	require.NoError(t, err)
	assert.Equal(t, StepExtractText, loaded.Cursor)
	assert.Equal(t, MilestoneSearch, loaded.Milestone)
	assert.False(t, loaded.Done)

	_, err = h.runner.Revise(ctx, searched.RunID)
	assert.ErrorIs(t, err, ErrNoDraft)

	done, err := h.runner.Generate(ctx, searched.RunID)
	require.NoError(t, err)
	assert.Equal(t, searched.RunID, done.RunID)
	assert.True(t, done.Done)
	assert.Equal(t, MilestoneFinal, done.Milestone)
	assert.Equal(t, OutcomeCompleted, done.Outcome)
	assert.Equal(t, 0, done.RevisionCount)
	assert.Equal(t, done.AggregatedDraft, done.FinalDraft)

	again, err := h.runner.Generate(ctx, searched.RunID)
	require.NoError(t, err)
	assert.Equal(t, done.FinalDraft, again.FinalDraft)
	assert.Equal(t, 1, h.model.critiques)
}

func TestRunner_Revise(t *testing.T) {
	h := newHarness(t, &scriptedModel{scores: []int{8, 5, 9}})
	ctx := context.Background()

	first, err := h.runner.Full(ctx, "graph neural networks")
	require.NoError(t, err)
	assert.Equal(t, 0, first.RevisionCount)

	revised, err := h.runner.Revise(ctx, first.RunID)
	require.NoError(t, err)
	assert.True(t, revised.Done)
	assert.Equal(t, 1, revised.RevisionCount)
	assert.Equal(t, OutcomeCompleted, revised.Outcome)
	assert.Equal(t, "# Literature Review\n\nrevised draft 1\n", revised.FinalDraft)
	assert.Equal(t, first.AggregatedDraft, revised.AggregatedDraft)
	assert.Equal(t, 3, h.model.critiques)
}

func TestRunner_FatalComparison(t *testing.T) {
	h := newHarness(t, &scriptedModel{scores: []int{8}, failComparing: true})
	ctx := context.Background()

	s, err := h.runner.Full(ctx, "graph neural networks")
	require.Error(t, err)

	var pe *PipelineError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, StepCrossCompare, pe.Step)
	assert.ErrorIs(t, err, ErrGeneration)
	assert.False(t, s.Done)
	assert.Equal(t, StepCrossCompare, s.Cursor)
	assert.Equal(t, MilestoneSectioning, s.Milestone)
	assert.Len(t, s.Findings, 3)

	loaded, err := h.runner.Load(ctx, s.RunID)
	require.NoError(t, err)
	assert.Equal(t, StepCrossCompare, loaded.Cursor)
	assert.False(t, loaded.Done)

	h.model.failComparing = false
	done, err := h.runner.Generate(ctx, s.RunID)
	require.NoError(t, err)
	assert.True(t, done.Done)
	assert.Equal(t, OutcomeCompleted, done.Outcome)
}

func hasLog(s State, substr string) bool {
	for _, line := range s.StepLog {
		if strings.Contains(line, substr) {
			return true
		}
	}
	return false
}

func TestRunner_CritiqueFailsOpen(t *testing.T) {
	h := newHarness(t, &scriptedModel{scores: []int{3}, failCritique: true})

	s, err := h.runner.Full(context.Background(), "graph neural networks")
	require.NoError(t, err)

	assert.True(t, s.Done)
	assert.Equal(t, OutcomeCompleted, s.Outcome)
	require.NotNil(t, s.Critique)
	assert.True(t, s.Critique.Fallback)
	assert.Equal(t, DefaultSettings().CoherenceThreshold, s.Critique.CoherenceScore)
	assert.Equal(t, 0, s.RevisionCount)
	assert.Equal(t, 1, h.model.critiques)
	assert.Equal(t, 0, h.model.revisions)
	assert.Equal(t, s.AggregatedDraft, s.FinalDraft)
	require.Len(t, s.Errors, 1)
	assert.Contains(t, s.Errors[0], StepCritiquePaper)
}

func TestRunner_FailedSectionGetsPlaceholder(t *testing.T) {
	h := newHarness(t, &scriptedModel{scores: []int{8}, failSection: "methods"})

	s, err := h.runner.Full(context.Background(), "graph neural networks")
	require.NoError(t, err)

	assert.True(t, s.Done)
	assert.Equal(t, OutcomeCompleted, s.Outcome)
	assert.Equal(t, Placeholder("Methods"), s.DraftSections["methods"])
	assert.Contains(t, s.FinalDraft, "## Methods\n\n"+Placeholder("Methods"))
	assert.NotContains(t, s.FinalDraft, Placeholder("Results"))
	require.Len(t, s.Errors, 1)
	assert.Contains(t, s.Errors[0], StepWriteMethods)
}

func TestRunner_SectioningFallsBackToHeadings(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"prose reply", "I could not split this paper into sections."},
		{"every section empty", sectionsReply(nil)},
		{"required keys missing", `{"abstract": "We study graphs.", "results": "It works."}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, &scriptedModel{scores: []int{8}, sections: tt.reply})

			s, err := h.runner.Full(context.Background(), "graph neural networks")
			require.NoError(t, err)

			assert.Equal(t, OutcomeCompleted, s.Outcome)
			require.Len(t, s.Corpus, 3)
			for _, rec := range s.Corpus {
				assert.Contains(t, rec.Sections["abstract"], "A study of "+rec.Paper.ID)
				assert.NotEmpty(t, rec.Sections["introduction"])
			}
			assert.True(t, hasLog(s, "3 by heading detection"), "step log: %v", s.StepLog)
		})
	}
}

func TestRunner_AnalysisExcludesPaperAfterRetries(t *testing.T) {
	settings := quickSettings()
	settings.Retry = graph.RetryPolicy{MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
	h := newHarnessWith(t, &scriptedModel{scores: []int{8}, failAnalysis: map[string]bool{"graph_networks-5": true}}, settings)

	s, err := h.runner.Full(context.Background(), "graph neural networks")
	require.NoError(t, err)

	assert.Equal(t, OutcomeCompleted, s.Outcome)
	assert.Len(t, s.Findings, 2)
	assert.NotContains(t, s.Findings, "graph_networks-5")
	assert.Equal(t, 2, h.model.analyses["graph_networks-5"])
	require.Len(t, s.Errors, 1)
	assert.Contains(t, s.Errors[0], StepPaperAnalyzer)
	assert.Contains(t, s.Errors[0], "graph_networks-5")
}

func TestRunner_ExtractionExcludesPaper(t *testing.T) {
	h := newHarness(t, &scriptedModel{scores: []int{8}})
	h.extractor.fail = map[string]bool{"message_passing-5": true}

	s, err := h.runner.Full(context.Background(), "graph neural networks")
	require.NoError(t, err)

	assert.Equal(t, OutcomeCompleted, s.Outcome)
	assert.Len(t, s.ExtractedText, 2)
	assert.NotContains(t, s.ExtractedText, "message_passing-5")
	require.Len(t, s.Corpus, 2)
	for _, rec := range s.Corpus {
		assert.NotEqual(t, "message_passing-5", rec.Paper.ID)
	}
	require.Len(t, s.Errors, 1)
	assert.Contains(t, s.Errors[0], StepExtractText)
	assert.Contains(t, s.Errors[0], pdf.ErrNoText.Error())
}

func TestRunner_EarlyOutcomes(t *testing.T) {
	tests := []struct {
		name  string
		setup func(h *harness)
		want  string
	}{
		{
			name:  "nothing extractable",
			setup: func(h *harness) { h.extractor.all = true },
			want:  OutcomeNoExtractions,
		},
		{
			name: "no usable sections",
			setup: func(h *harness) {
				h.model.sections = sectionsReply(map[string]string{"abstract": "We study graphs.", "references": "[1] A."})
			},
			want: OutcomeNoUsableSections,
		},
		{
			name: "nothing analyzable",
			setup: func(h *harness) {
				h.model.failAnalysis = map[string]bool{"graph_networks-5": true, "graph_transformers-5": true, "message_passing-5": true}
			},
			want: OutcomeNoAnalyzablePapers,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, &scriptedModel{scores: []int{8}})
			tt.setup(h)

			s, err := h.runner.Full(context.Background(), "graph neural networks")
			require.NoError(t, err)

			assert.True(t, s.Done)
			assert.Equal(t, tt.want, s.Outcome)
			assert.Empty(t, s.AggregatedDraft)
			assert.Empty(t, s.FinalDraft)
			assert.NotEmpty(t, s.Errors)
			assert.Equal(t, 0, h.model.critiques)

			ends := h.emitter.GetHistoryWithFilter(s.RunID, emit.HistoryFilter{Msg: emit.MsgRunEnd})
			require.Len(t, ends, 1)
			assert.Equal(t, tt.want, ends[0].Meta["outcome"])
		})
	}
}

func TestRunner_ListAndDelete(t *testing.T) {
	h := newHarness(t, &scriptedModel{scores: []int{8}})
	ctx := context.Background()

	a, err := h.runner.Search(ctx, "graph neural networks")
	require.NoError(t, err)
	b, err := h.runner.Full(ctx, "protein folding")
	require.NoError(t, err)

	runs, err := h.runner.List(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)

	byID := map[string]RunInfo{}
	for _, r := range runs {
		byID[r.RunID] = r
	}
	assert.Equal(t, "graph neural networks", byID[a.RunID].Topic)
	assert.Equal(t, MilestoneSearch, byID[a.RunID].Milestone)
	assert.False(t, byID[a.RunID].Done)
	assert.Equal(t, OutcomeCompleted, byID[b.RunID].Outcome)
	assert.True(t, byID[b.RunID].Done)

	require.NoError(t, h.runner.Delete(ctx, b.RunID))
	assert.Equal(t, 0, h.runner.Cost(b.RunID).Calls)

	_, err = h.runner.Load(ctx, b.RunID)
	assert.ErrorIs(t, err, ErrRunNotFound)
	assert.ErrorIs(t, h.runner.Delete(ctx, b.RunID), ErrRunNotFound)

	runs, err = h.runner.List(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

func TestRunner_UnknownStopStep(t *testing.T) {
	h := newHarness(t, &scriptedModel{scores: []int{8}})
	_, err := h.runner.Run(context.Background(), State{Topic: "graph neural networks"}, "nope")
	assert.Error(t, err)
}

func TestRunner_CancelledContext(t *testing.T) {
	h := newHarness(t, &scriptedModel{scores: []int{8}})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := h.runner.Full(ctx, "graph neural networks")
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled))
}
