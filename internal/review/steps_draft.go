package review

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/dshills/litreview/graph"
	"github.com/dshills/litreview/graph/model"
)

// Placeholder is the body written for a section whose generation failed.
func Placeholder(title string) string {
	return fmt.Sprintf("[%s section unavailable: generation failed]", title)
}

// WriteSection returns the step that writes one draft section. A failed
// call leaves a placeholder so the draft is always complete.
func (st *Steps) WriteSection(sec DraftSection) graph.NodeFunc[State] {
	return func(ctx context.Context, s State) graph.NodeResult[State] {
		out, err := st.chat(ctx, s, sec.Step, sectionPrompt(sec, s), nil)
		body := strings.TrimSpace(out.Text)

		delta := State{}
		if err != nil || body == "" {
			if err == nil {
				err = fmt.Errorf("empty reply")
			}
			body = Placeholder(sec.Title)
			delta.Errors = []string{stepErr(ErrGeneration, sec.Step, "", err).Error()}
			delta.StepLog = logf(sec.Step, "%s unavailable, placeholder written", strings.ToLower(sec.Title))
		} else {
			delta.StepLog = logf(sec.Step, "wrote %s (%d words)", strings.ToLower(sec.Title), len(strings.Fields(body)))
		}
		delta.DraftSections = map[string]string{sec.Key: body}
		return graph.NodeResult[State]{Delta: delta}
	}
}

// Aggregate assembles the draft sections in their fixed order under
// Markdown headings. Missing sections get a placeholder.
func Aggregate(topic string, sections map[string]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Literature Review: %s\n", topic)
	for _, sec := range DraftOrder {
		body := strings.TrimSpace(sections[sec.Key])
		if body == "" {
			body = Placeholder(sec.Title)
		}
		fmt.Fprintf(&b, "\n## %s\n\n%s\n", sec.Title, body)
	}
	return b.String()
}

// AggregatePaper joins the draft sections into one document.
func (st *Steps) AggregatePaper(_ context.Context, s State) graph.NodeResult[State] {
	draft := Aggregate(s.Topic, s.DraftSections)
	return graph.NodeResult[State]{Delta: State{
		AggregatedDraft: draft,
		StepLog:         logf(StepAggregatePaper, "assembled draft (%d words)", len(strings.Fields(draft))),
	}}
}

type critiqueReply struct {
	Quality        string   `json:"quality"`
	CoherenceScore *float64 `json:"coherence_score"`
	Notes          string   `json:"notes"`
}

// rated reports whether the reply carries a score on the 1..10 scale. Zero
// or below means the model did not rate the draft.
func (r critiqueReply) rated() bool {
	return r.CoherenceScore != nil && *r.CoherenceScore > 0
}

// ClampScore rounds a score to the nearest integer in 1..10.
func ClampScore(score float64) int {
	if math.IsNaN(score) {
		return 1
	}
	n := int(math.Round(score))
	if n < 1 {
		return 1
	}
	if n > 10 {
		return 10
	}
	return n
}

// CritiquePaper scores the current draft. When the model cannot be used the
// critique falls back to a neutral score equal to the threshold, which
// finalizes the draft.
func (st *Steps) CritiquePaper(ctx context.Context, s State) graph.NodeResult[State] {
	res := ask[critiqueReply](ctx, st, s, StepCritiquePaper, critiquePrompt(s.Topic, s.CurrentDraft()), critiqueFormat).
		Require(critiqueReply.rated)

	var (
		c    Critique
		errs []string
	)
	if res.Kind == model.Structured {
		c = Critique{
			Quality:        strings.TrimSpace(res.Value.Quality),
			CoherenceScore: ClampScore(*res.Value.CoherenceScore),
			Notes:          strings.TrimSpace(res.Value.Notes),
		}
	} else {
		reason := "reply did not match the critique schema"
		if res.Kind == model.Failure {
			reason = res.Err.Error()
			errs = []string{stepErr(ErrGeneration, StepCritiquePaper, "", res.Err).Error()}
		}
		c = Critique{
			Quality:        "unrated",
			CoherenceScore: st.deps.Settings.CoherenceThreshold,
			Notes:          "critique unavailable: " + reason,
			Fallback:       true,
		}
	}

	decision := Decide(c.CoherenceScore, s.RevisionCount, st.deps.Settings.CoherenceThreshold, st.deps.Settings.RevisionCeiling)
	return graph.NodeResult[State]{Delta: State{
		Critique: &c,
		Errors:   errs,
		StepLog: logf(StepCritiquePaper, "coherence %d/10 (%s), revision %d of %d: %s",
			c.CoherenceScore, c.Quality, s.RevisionCount, st.deps.Settings.RevisionCeiling, decision),
	}}
}

// RevisePaper rewrites the current draft following the critique notes. The
// revision count always advances so the loop terminates even when every
// revision fails.
func (st *Steps) RevisePaper(ctx context.Context, s State) graph.NodeResult[State] {
	notes := ""
	if s.Critique != nil {
		notes = s.Critique.Notes
	}

	out, err := st.chat(ctx, s, StepRevisePaper, revisionPrompt(s.Topic, s.CurrentDraft(), notes), nil)
	revised := strings.TrimSpace(out.Text)

	delta := State{RevisionCount: s.RevisionCount + 1}
	if err != nil || revised == "" {
		if err == nil {
			err = fmt.Errorf("empty reply")
		}
		delta.Errors = []string{stepErr(ErrGeneration, StepRevisePaper, "", err).Error()}
		delta.StepLog = logf(StepRevisePaper, "revision %d failed, keeping previous draft", delta.RevisionCount)
		return graph.NodeResult[State]{Delta: delta}
	}

	delta.RevisedDraft = revised + "\n"
	delta.StepLog = logf(StepRevisePaper, "revision %d complete (%d words)", delta.RevisionCount, len(strings.Fields(revised)))
	return graph.NodeResult[State]{Delta: delta}
}

// FinalDraft publishes the current draft and ends the run.
func (st *Steps) FinalDraft(_ context.Context, s State) graph.NodeResult[State] {
	final := s.CurrentDraft()

	path, err := st.deps.Artifacts.WriteDraft(s.Topic, final)
	if err != nil {
		st.logger.Warn().Err(err).Msg("failed to write draft")
	}

	line := fmt.Sprintf("final draft ready after %d revision(s)", s.RevisionCount)
	if path != "" {
		line += ", saved to " + path
	}
	return graph.NodeResult[State]{
		Delta: State{FinalDraft: final, StepLog: logf(StepFinalDraft, "%s", line)},
		Route: graph.Stop(),
	}
}
