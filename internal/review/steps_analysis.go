package review

import (
	"context"
	"fmt"
	"strings"

	"github.com/dshills/litreview/graph"
	"github.com/dshills/litreview/graph/model"
)

// PaperAnalyzer extracts findings from every paper in the corpus. A reply
// that does not match the schema is kept verbatim as a single finding.
func (st *Steps) PaperAnalyzer(ctx context.Context, s State) graph.NodeResult[State] {
	outcomes := graph.FanOut(ctx, st.pool("analyze"), s.Corpus,
		func(rec PaperRecord) string { return rec.Paper.ID },
		func(ctx context.Context, rec PaperRecord) (Findings, error) {
			res := ask[Findings](ctx, st, s, StepPaperAnalyzer, analysisPrompt(rec), findingsFormat)
			switch res.Kind {
			case model.Structured:
				if !res.Value.Empty() {
					return res.Value, nil
				}
				return Findings{}, fmt.Errorf("model returned no findings")
			case model.Unstructured:
				text := strings.TrimSpace(res.Text)
				if text == "" {
					return Findings{}, fmt.Errorf("model returned an empty reply")
				}
				return Findings{KeyFindings: []string{text}}, nil
			default:
				return Findings{}, res.Err
			}
		})

	ok, failed := graph.Split(outcomes)
	findings := make(map[string]Findings, len(ok))
	for _, o := range ok {
		findings[o.Key] = o.Value
	}
	var errs []string
	for _, o := range failed {
		errs = append(errs, stepErr(ErrGeneration, StepPaperAnalyzer, o.Key, o.Err).Error())
	}

	for _, rec := range s.Corpus {
		f, ok := findings[rec.Paper.ID]
		if !ok {
			continue
		}
		if _, err := st.deps.Artifacts.WriteAnalysis(rec, f); err != nil {
			st.logger.Warn().Err(err).Str("paper_id", rec.Paper.ID).Msg("failed to write analysis artifact")
		}
	}

	delta := State{
		Findings: findings,
		Errors:   errs,
		StepLog:  logf(StepPaperAnalyzer, "analyzed %d of %d papers", len(findings), len(s.Corpus)),
	}
	if len(findings) == 0 {
		delta.Outcome = OutcomeNoAnalyzablePapers
		return graph.NodeResult[State]{Delta: delta, Route: graph.Stop()}
	}
	return graph.NodeResult[State]{Delta: delta}
}

// CrossCompare synthesizes the findings of all analyzed papers.
func (st *Steps) CrossCompare(ctx context.Context, s State) graph.NodeResult[State] {
	res := ask[Comparison](ctx, st, s, StepCrossCompare, comparisonPrompt(s.Topic, s.Corpus, s.Findings), comparisonFormat)

	var cmp Comparison
	switch res.Kind {
	case model.Structured:
		cmp = res.Value
	case model.Unstructured:
		cmp = Comparison{Summary: strings.TrimSpace(res.Text)}
	default:
		return graph.NodeResult[State]{Err: stepErr(ErrGeneration, StepCrossCompare, "", res.Err)}
	}

	if _, err := st.deps.Artifacts.WriteComparison(s.Topic, cmp); err != nil {
		st.logger.Warn().Err(err).Msg("failed to write comparison artifact")
	}

	return graph.NodeResult[State]{Delta: State{
		Comparison: &cmp,
		StepLog:    logf(StepCrossCompare, "compared %d papers (%s reply)", len(s.Findings), res.Kind),
	}}
}
