package review

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/dshills/litreview/graph"
	"github.com/dshills/litreview/graph/model"
	"github.com/dshills/litreview/internal/papers"
	"github.com/dshills/litreview/internal/pdf"
)

// ExtractText pulls the text out of every downloaded PDF.
func (st *Steps) ExtractText(ctx context.Context, s State) graph.NodeResult[State] {
	var todo []papers.Paper
	for _, p := range s.SelectedPapers {
		if _, ok := s.DownloadedPaths[p.ID]; ok {
			todo = append(todo, p)
		}
	}

	outcomes := graph.FanOut(ctx, st.pool("extract"), todo,
		func(p papers.Paper) string { return p.ID },
		func(ctx context.Context, p papers.Paper) (pdf.Extraction, error) {
			return st.deps.Extractor.Extract(ctx, s.DownloadedPaths[p.ID])
		})

	ok, failed := graph.Split(outcomes)
	texts := make(map[string]string, len(ok))
	hashes := make(map[string]string, len(ok))
	meta := make(map[string]map[string]string, len(ok))
	for _, o := range ok {
		texts[o.Key] = o.Value.Text
		hashes[o.Key] = o.Value.SHA256
		if len(o.Value.Metadata) > 0 {
			meta[o.Key] = o.Value.Metadata
		}
	}
	var errs []string
	for _, o := range failed {
		errs = append(errs, stepErr(ErrExtraction, StepExtractText, o.Key, o.Err).Error())
	}

	delta := State{
		ExtractedText: texts,
		PDFHashes:     hashes,
		PDFMetadata:   meta,
		Errors:        errs,
		StepLog:       logf(StepExtractText, "extracted text from %d of %d papers", len(texts), len(todo)),
	}
	if len(texts) == 0 {
		delta.Outcome = OutcomeNoExtractions
		return graph.NodeResult[State]{Delta: delta, Route: graph.Stop()}
	}
	return graph.NodeResult[State]{Delta: delta}
}

// NormalizeText cleans the extracted text of every paper.
func (st *Steps) NormalizeText(_ context.Context, s State) graph.NodeResult[State] {
	normalized := make(map[string]string, len(s.ExtractedText))
	for id, text := range s.ExtractedText {
		normalized[id] = pdf.Normalize(text)
	}

	for _, p := range s.SelectedPapers {
		text, ok := normalized[p.ID]
		if !ok {
			continue
		}
		src := pdf.Extraction{
			Path:     s.DownloadedPaths[p.ID],
			SHA256:   s.PDFHashes[p.ID],
			Text:     s.ExtractedText[p.ID],
			Metadata: s.PDFMetadata[p.ID],
		}
		if _, err := st.deps.Artifacts.WriteExtraction(p, src, text); err != nil {
			st.logger.Warn().Err(err).Str("paper_id", p.ID).Msg("failed to write extraction artifact")
		}
	}

	return graph.NodeResult[State]{Delta: State{
		NormalizedText: normalized,
		StepLog:        logf(StepNormalizeText, "normalized %d texts", len(normalized)),
	}}
}

type sectioned struct {
	sections  map[string]string
	heuristic bool
}

// SemanticSection splits each paper into the section ontology with the
// model, falling back to heading detection when the reply is unusable.
func (st *Steps) SemanticSection(ctx context.Context, s State) graph.NodeResult[State] {
	ids := sortedKeys(s.NormalizedText)

	outcomes := graph.FanOut(ctx, st.pool("section"), ids,
		func(id string) string { return id },
		func(ctx context.Context, id string) (sectioned, error) {
			text := truncateRunes(s.NormalizedText[id], st.deps.Settings.MaxInputChars)
			res := ask[map[string]any](ctx, st, s, StepSemanticSection, sectioningPrompt(text), sectionsFormat)
			if res.Kind == model.Structured {
				if secs, ok := ontologySections(res.Value); ok {
					return sectioned{sections: secs}, nil
				}
			}
			if res.Kind == model.Failure {
				st.logger.Warn().Err(res.Err).Str("paper_id", id).Msg("sectioning call failed, using heuristic")
			}
			return sectioned{sections: HeuristicSections(s.NormalizedText[id]), heuristic: true}, nil
		})

	sections := make(map[string]map[string]string, len(outcomes))
	heuristic := 0
	for _, o := range outcomes {
		sections[o.Key] = o.Value.sections
		if o.Value.heuristic {
			heuristic++
		}
	}

	return graph.NodeResult[State]{Delta: State{
		Sections: sections,
		StepLog: logf(StepSemanticSection, "sectioned %d papers (%d by model, %d by heading detection)",
			len(sections), len(sections)-heuristic, heuristic),
	}}
}

// ontologySections keeps the ontology keys of a model reply. It reports
// false when every section is empty.
func ontologySections(raw map[string]any) (map[string]string, bool) {
	out := make(map[string]string, len(SectionOntology))
	nonEmpty := false
	for _, name := range SectionOntology {
		var text string
		switch v := raw[name].(type) {
		case string:
			text = v
		case []any:
			parts := make([]string, 0, len(v))
			for _, p := range v {
				parts = append(parts, fmt.Sprint(p))
			}
			text = strings.Join(parts, "\n")
		}
		text = strings.TrimSpace(text)
		out[name] = text
		if text != "" {
			nonEmpty = true
		}
	}
	return out, nonEmpty
}

// Usable reports whether a sectioned paper has an abstract and at least
// one body section.
func Usable(sections map[string]string) bool {
	if strings.TrimSpace(sections["abstract"]) == "" {
		return false
	}
	for _, name := range bodySections {
		if strings.TrimSpace(sections[name]) != "" {
			return true
		}
	}
	return false
}

// ValidateSections keeps the papers whose sections are usable.
func (st *Steps) ValidateSections(_ context.Context, s State) graph.NodeResult[State] {
	kept := []string{}
	var errs []string
	for _, id := range sortedKeys(s.Sections) {
		if Usable(s.Sections[id]) {
			kept = append(kept, id)
			continue
		}
		errs = append(errs, stepErr(ErrExtraction, StepValidateSections, id,
			fmt.Errorf("missing abstract or body sections")).Error())
	}

	delta := State{
		AnalysisSet: kept,
		Errors:      errs,
		StepLog:     logf(StepValidateSections, "%d of %d papers have usable sections", len(kept), len(s.Sections)),
	}
	if len(kept) == 0 {
		delta.Outcome = OutcomeNoUsableSections
		return graph.NodeResult[State]{Delta: delta, Route: graph.Stop()}
	}
	return graph.NodeResult[State]{Delta: delta}
}

// StoreSections reshapes the validated papers into the corpus, ordered by
// paper ID.
func (st *Steps) StoreSections(_ context.Context, s State) graph.NodeResult[State] {
	byID := make(map[string]papers.Paper, len(s.SelectedPapers))
	for _, p := range s.SelectedPapers {
		byID[p.ID] = p
	}

	ids := append([]string(nil), s.AnalysisSet...)
	sort.Strings(ids)

	corpus := make([]PaperRecord, 0, len(ids))
	for _, id := range ids {
		p, ok := byID[id]
		if !ok {
			p = papers.Paper{ID: id}
		}
		corpus = append(corpus, PaperRecord{Paper: p, Sections: s.Sections[id]})
	}

	return graph.NodeResult[State]{Delta: State{
		Corpus:  corpus,
		StepLog: logf(StepStoreSections, "stored sections for %d papers", len(corpus)),
	}}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// truncateRunes cuts s to at most n runes. n <= 0 disables the limit.
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}
