package review

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/dshills/litreview/graph"
	"github.com/dshills/litreview/graph/model"
	"github.com/dshills/litreview/internal/papers"
	"github.com/dshills/litreview/internal/pdf"
)

const (
	minQueries = 3
	maxQueries = 6
)

var validate = validator.New()

// ProcessInput trims and validates the topic.
func (st *Steps) ProcessInput(_ context.Context, s State) graph.NodeResult[State] {
	topic := strings.TrimSpace(s.Topic)
	lo, hi := st.deps.Settings.TopicMinLength, st.deps.Settings.TopicMaxLength

	if err := validate.Var(topic, fmt.Sprintf("required,min=%d,max=%d", lo, hi)); err != nil {
		return graph.NodeResult[State]{Err: stepErr(ErrValidation, StepProcessInput, "",
			fmt.Errorf("topic must be between %d and %d characters", lo, hi))}
	}

	return graph.NodeResult[State]{Delta: State{
		Topic:   topic,
		StepLog: logf(StepProcessInput, "topic accepted: %q", topic),
	}}
}

type queryPlan struct {
	Queries []string `json:"queries"`
}

// Planner asks the model for search queries and normalizes the answer to
// between 3 and 6 distinct queries.
func (st *Steps) Planner(ctx context.Context, s State) graph.NodeResult[State] {
	res := ask[queryPlan](ctx, st, s, StepPlanner, plannerPrompt(s.Topic), queriesFormat)

	var raw []string
	switch res.Kind {
	case model.Structured:
		raw = res.Value.Queries
	case model.Unstructured:
		raw = splitQueryLines(res.Text)
	default:
		return graph.NodeResult[State]{Err: stepErr(ErrGeneration, StepPlanner, "", res.Err)}
	}

	queries := PlanQueries(s.Topic, raw)
	return graph.NodeResult[State]{Delta: State{
		SearchQueries: queries,
		StepLog:       logf(StepPlanner, "generated %d search queries", len(queries)),
	}}
}

var listMarkerRe = regexp.MustCompile(`^\s*(?:[-*\x{2022}]|\d+[.)])\s*`)

// splitQueryLines turns a free-text reply into candidate queries, one per
// line, stripped of list markers and quotes. A reply that is JSON of the
// wrong shape yields its strings when it is a plain array and nothing
// otherwise; JSON text is never used as a query.
func splitQueryLines(text string) []string {
	if doc, ok := jsonReply(text); ok {
		var list []string
		if err := json.Unmarshal([]byte(doc), &list); err == nil {
			return list
		}
		return nil
	}

	var out []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "```") || (line != "" && strings.ContainsRune("{}[]", rune(line[0]))) {
			continue
		}
		line = listMarkerRe.ReplaceAllString(line, "")
		line = strings.Trim(strings.TrimSpace(line), "\"'`")
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// jsonReply returns the JSON document of a reply that is nothing but JSON,
// bare or fenced.
func jsonReply(text string) (string, bool) {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") && !strings.HasPrefix(trimmed, "[") && !strings.HasPrefix(trimmed, "```") {
		return "", false
	}
	doc, ok := model.ExtractJSON(trimmed)
	if !ok || !json.Valid([]byte(doc)) {
		return "", false
	}
	return doc, true
}

// PlanQueries de-duplicates raw case-insensitively, keeps at most 6, and
// pads with topic-derived queries until there are at least 3.
func PlanQueries(topic string, raw []string) []string {
	seen := map[string]bool{}
	var out []string
	add := func(q string) {
		q = strings.Join(strings.Fields(q), " ")
		key := strings.ToLower(q)
		if q == "" || seen[key] || len(out) >= maxQueries {
			return
		}
		seen[key] = true
		out = append(out, q)
	}

	for _, q := range raw {
		add(q)
	}
	for _, q := range []string{topic, topic + " survey", topic + " review"} {
		if len(out) >= minQueries {
			break
		}
		add(q)
	}
	return out
}

// SearchArticles runs every query and merges the results, first
// occurrence of a paper ID wins. A failed query is recorded and skipped.
func (st *Steps) SearchArticles(ctx context.Context, s State) graph.NodeResult[State] {
	var (
		candidates = []papers.Paper{}
		seen       = map[string]bool{}
		errs       []string
		failed     int
	)

	for _, q := range s.SearchQueries {
		found, err := graph.Retry(ctx, st.retryPolicy("search", papers.IsRetryable), func(ctx context.Context) ([]papers.Paper, error) {
			return st.deps.Searcher.Search(ctx, q, st.deps.Settings.ResultsPerQuery)
		})
		if err != nil {
			failed++
			errs = append(errs, stepErr(ErrSearch, StepSearchArticles, "", fmt.Errorf("query %q: %w", q, err)).Error())
			st.logger.Warn().Err(err).Str("query", q).Msg("search query failed")
			continue
		}
		for _, p := range found {
			if p.ID == "" || seen[p.ID] {
				continue
			}
			seen[p.ID] = true
			candidates = append(candidates, p)
		}
	}

	return graph.NodeResult[State]{Delta: State{
		CandidatePapers: candidates,
		Errors:          errs,
		StepLog: logf(StepSearchArticles, "found %d unique papers from %d of %d queries",
			len(candidates), len(s.SearchQueries)-failed, len(s.SearchQueries)),
	}}
}

// SelectPapers keeps candidates with a PDF link, ranks them by citations,
// then year (both descending), then ID, and returns the top n.
func SelectPapers(candidates []papers.Paper, n int) []papers.Paper {
	out := []papers.Paper{}
	for _, p := range candidates {
		if p.HasPDF() {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.CitationCount != b.CitationCount {
			return a.CitationCount > b.CitationCount
		}
		if a.Year != b.Year {
			return a.Year > b.Year
		}
		return a.ID < b.ID
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

// ArticleDecisions selects the papers to download. With nothing to
// download the run ends.
func (st *Steps) ArticleDecisions(_ context.Context, s State) graph.NodeResult[State] {
	selected := SelectPapers(s.CandidatePapers, st.deps.Settings.MaxPapers)
	if len(selected) == 0 {
		return graph.NodeResult[State]{
			Delta: State{
				SelectedPapers: selected,
				Outcome:        OutcomeNoResults,
				StepLog:        logf(StepArticleDecisions, "no candidate papers with an open-access PDF"),
			},
			Route: graph.Stop(),
		}
	}

	titles := make([]string, len(selected))
	for i, p := range selected {
		titles[i] = p.Title
	}
	st.logger.Info().Strs("titles", titles).Msg("papers selected")

	return graph.NodeResult[State]{Delta: State{
		SelectedPapers: selected,
		StepLog:        logf(StepArticleDecisions, "selected %d of %d candidates", len(selected), len(s.CandidatePapers)),
	}}
}

// DownloadArticles fetches the selected PDFs in parallel and narrows the
// selection to the papers that downloaded.
func (st *Steps) DownloadArticles(ctx context.Context, s State) graph.NodeResult[State] {
	outcomes := graph.FanOut(ctx, st.pool("download"), s.SelectedPapers,
		func(p papers.Paper) string { return p.ID },
		func(ctx context.Context, p papers.Paper) (pdf.Download, error) {
			return graph.Retry(ctx, st.retryPolicy("download", pdf.IsRetryable), func(ctx context.Context) (pdf.Download, error) {
				return st.deps.Downloader.Download(ctx, p)
			})
		})

	ok, failed := graph.Split(outcomes)
	paths := make(map[string]string, len(ok))
	for _, o := range ok {
		paths[o.Key] = o.Value.Path
	}
	var errs []string
	for _, o := range failed {
		errs = append(errs, stepErr(ErrDownload, StepDownloadArticles, o.Key, o.Err).Error())
	}

	kept := []papers.Paper{}
	for _, p := range s.SelectedPapers {
		if _, ok := paths[p.ID]; ok {
			kept = append(kept, p)
		}
	}

	delta := State{
		SelectedPapers:  kept,
		DownloadedPaths: paths,
		Errors:          errs,
		StepLog:         logf(StepDownloadArticles, "downloaded %d of %d papers", len(kept), len(s.SelectedPapers)),
	}
	if len(kept) == 0 {
		delta.Outcome = OutcomeNoDownloads
		return graph.NodeResult[State]{Delta: delta, Route: graph.Stop()}
	}

	if path, err := st.deps.Artifacts.WriteMetadata(s.Topic, kept, paths); err != nil {
		st.logger.Warn().Err(err).Msg("failed to write paper metadata")
	} else if path != "" {
		st.logger.Debug().Str("path", path).Msg("paper metadata written")
	}
	return graph.NodeResult[State]{Delta: delta}
}
