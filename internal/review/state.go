// Package review implements the literature-review workflow: the state it
// accumulates, the steps that produce it, the critique/revision router, and
// the Runner that drives the graph engine through its milestones.
package review

import (
	"maps"

	"github.com/dshills/litreview/internal/papers"
)

// Step identifiers. They are also the graph node IDs.
const (
	StepProcessInput      = "process_input"
	StepPlanner           = "planner"
	StepSearchArticles    = "search_articles"
	StepArticleDecisions  = "article_decisions"
	StepDownloadArticles  = "download_articles"
	StepExtractText       = "extract_text"
	StepNormalizeText     = "normalize_text"
	StepSemanticSection   = "semantic_section"
	StepValidateSections  = "validate_sections"
	StepStoreSections     = "store_sections"
	StepPaperAnalyzer     = "paper_analyzer"
	StepCrossCompare      = "cross_compare"
	StepWriteAbstract     = "write_abstract"
	StepWriteIntroduction = "write_introduction"
	StepWriteMethods      = "write_methods"
	StepWriteResults      = "write_results"
	StepWriteConclusion   = "write_conclusion"
	StepWriteReferences   = "write_references"
	StepAggregatePaper    = "aggregate_paper"
	StepCritiquePaper     = "critique_paper"
	StepRevisePaper       = "revise_paper"
	StepFinalDraft        = "final_draft"
)

// Milestones reached by a run, in order.
const (
	MilestoneSearch     = "search-complete"
	MilestoneSectioning = "sectioning-complete"
	MilestoneDraft      = "draft-complete"
	MilestoneFinal      = "final-complete"
)

// milestoneAfter maps the step that completes a milestone to its name.
var milestoneAfter = map[string]string{
	StepDownloadArticles: MilestoneSearch,
	StepStoreSections:    MilestoneSectioning,
	StepAggregatePaper:   MilestoneDraft,
	StepFinalDraft:       MilestoneFinal,
}

// Outcomes recorded when a run ends.
const (
	OutcomeCompleted          = "completed"
	OutcomeNoResults          = "no results"
	OutcomeNoDownloads        = "no downloadable papers"
	OutcomeNoExtractions      = "no extractable papers"
	OutcomeNoUsableSections   = "no papers with usable sections"
	OutcomeNoAnalyzablePapers = "no analyzable papers"
)

// SectionOntology lists the section names a paper is split into.
var SectionOntology = []string{
	"abstract",
	"introduction",
	"related_work",
	"methodology",
	"experiments",
	"results",
	"discussion",
	"conclusion",
	"references",
}

// bodySections are the sections that count as paper content when
// validating a sectioned paper.
var bodySections = []string{
	"introduction",
	"related_work",
	"methodology",
	"experiments",
	"results",
	"discussion",
	"conclusion",
}

// DraftSection is one section of the generated review.
type DraftSection struct {
	Key   string
	Title string
	Step  string
}

// DraftOrder is the fixed order of sections in the aggregated draft.
var DraftOrder = []DraftSection{
	{Key: "abstract", Title: "Abstract", Step: StepWriteAbstract},
	{Key: "introduction", Title: "Introduction", Step: StepWriteIntroduction},
	{Key: "methods", Title: "Methods", Step: StepWriteMethods},
	{Key: "results", Title: "Results", Step: StepWriteResults},
	{Key: "conclusion", Title: "Conclusion", Step: StepWriteConclusion},
	{Key: "references", Title: "References", Step: StepWriteReferences},
}

// PaperRecord is a selected paper together with its validated sections.
type PaperRecord struct {
	Paper    papers.Paper      `json:"paper" yaml:"paper"`
	Sections map[string]string `json:"sections" yaml:"sections"`
}

// Findings are the per-paper insights extracted by paper_analyzer.
type Findings struct {
	KeyFindings   []string `json:"key_findings" yaml:"key_findings"`
	Contributions []string `json:"contributions" yaml:"contributions"`
	Limitations   []string `json:"limitations" yaml:"limitations"`
	FutureWork    []string `json:"future_work" yaml:"future_work"`
}

// Empty reports whether no finding of any kind is present.
func (f Findings) Empty() bool {
	return len(f.KeyFindings) == 0 && len(f.Contributions) == 0 &&
		len(f.Limitations) == 0 && len(f.FutureWork) == 0
}

// Comparison is the cross-paper synthesis.
type Comparison struct {
	CommonMethodologies []string `json:"common_methodologies" yaml:"common_methodologies"`
	DivergentFindings   []string `json:"divergent_findings" yaml:"divergent_findings"`
	UniqueContributions []string `json:"unique_contributions" yaml:"unique_contributions"`
	ResearchGaps        []string `json:"research_gaps" yaml:"research_gaps"`
	Summary             string   `json:"summary" yaml:"summary"`
}

// Critique is the evaluation of the current draft.
type Critique struct {
	Quality        string `json:"quality" yaml:"quality"`
	CoherenceScore int    `json:"coherence_score" yaml:"coherence_score"`
	Notes          string `json:"notes" yaml:"notes"`

	// Fallback marks a neutral critique substituted for a failed call.
	Fallback bool `json:"fallback,omitempty" yaml:"fallback,omitempty"`
}

// State is the record threaded through every step of a run.
//
// Steps return a partial State holding only the fields they own; Reduce
// merges it into the accumulated state.
type State struct {
	// Written by the Runner only.
	RunID     string `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	Cursor    string `json:"cursor,omitempty" yaml:"cursor,omitempty"`
	Milestone string `json:"milestone,omitempty" yaml:"milestone,omitempty"`
	Done      bool   `json:"done,omitempty" yaml:"done,omitempty"`

	// Outcome is set by a step that ends the run early, or by the Runner
	// when the run completes.
	Outcome string `json:"outcome,omitempty" yaml:"outcome,omitempty"`

	Topic           string                       `json:"topic" yaml:"topic"`
	SearchQueries   []string                     `json:"search_queries,omitempty" yaml:"search_queries,omitempty"`
	CandidatePapers []papers.Paper               `json:"candidate_papers,omitempty" yaml:"candidate_papers,omitempty"`
	SelectedPapers  []papers.Paper               `json:"selected_papers,omitempty" yaml:"selected_papers,omitempty"`
	DownloadedPaths map[string]string            `json:"downloaded_paths,omitempty" yaml:"downloaded_paths,omitempty"`
	PDFHashes       map[string]string            `json:"pdf_hashes,omitempty" yaml:"pdf_hashes,omitempty"`
	PDFMetadata     map[string]map[string]string `json:"pdf_metadata,omitempty" yaml:"pdf_metadata,omitempty"`
	ExtractedText   map[string]string            `json:"extracted_text,omitempty" yaml:"-"`
	NormalizedText  map[string]string            `json:"normalized_text,omitempty" yaml:"-"`
	Sections        map[string]map[string]string `json:"sections,omitempty" yaml:"-"`
	AnalysisSet     []string                     `json:"analysis_set,omitempty" yaml:"analysis_set,omitempty"`
	Corpus          []PaperRecord                `json:"corpus,omitempty" yaml:"-"`
	Findings        map[string]Findings          `json:"findings,omitempty" yaml:"findings,omitempty"`
	Comparison      *Comparison                  `json:"comparison,omitempty" yaml:"comparison,omitempty"`
	DraftSections   map[string]string            `json:"draft_sections,omitempty" yaml:"-"`
	AggregatedDraft string                       `json:"aggregated_draft,omitempty" yaml:"-"`
	RevisedDraft    string                       `json:"revised_draft,omitempty" yaml:"-"`
	Critique        *Critique                    `json:"critique,omitempty" yaml:"critique,omitempty"`
	RevisionCount   int                          `json:"revision_count" yaml:"revision_count"`
	FinalDraft      string                       `json:"final_draft,omitempty" yaml:"final_draft,omitempty"`

	// Append-only diagnostics.
	StepLog []string `json:"step_log,omitempty" yaml:"step_log,omitempty"`
	Errors  []string `json:"errors,omitempty" yaml:"errors,omitempty"`
}

// CurrentDraft is the latest revision if any, else the aggregated draft.
func (s State) CurrentDraft() string {
	if s.RevisedDraft != "" {
		return s.RevisedDraft
	}
	return s.AggregatedDraft
}

// Reduce merges delta into prev.
//
// Scalars replace when non-zero, slices and maps replace when non-nil (a
// non-nil empty value narrows a field to empty), DraftSections merges key
// by key, and StepLog and Errors append. prev is never mutated; every map
// and slice in the result is a fresh copy.
func Reduce(prev, delta State) State {
	out := prev

	replaceString(&out.RunID, delta.RunID)
	replaceString(&out.Cursor, delta.Cursor)
	replaceString(&out.Milestone, delta.Milestone)
	replaceString(&out.Outcome, delta.Outcome)
	replaceString(&out.Topic, delta.Topic)
	replaceString(&out.AggregatedDraft, delta.AggregatedDraft)
	replaceString(&out.RevisedDraft, delta.RevisedDraft)
	replaceString(&out.FinalDraft, delta.FinalDraft)
	if delta.Done {
		out.Done = true
	}
	if delta.RevisionCount != 0 {
		out.RevisionCount = delta.RevisionCount
	}

	out.SearchQueries = pick(prev.SearchQueries, delta.SearchQueries)
	out.CandidatePapers = pick(prev.CandidatePapers, delta.CandidatePapers)
	out.SelectedPapers = pick(prev.SelectedPapers, delta.SelectedPapers)
	out.AnalysisSet = pick(prev.AnalysisSet, delta.AnalysisSet)
	out.Corpus = pickRecords(prev.Corpus, delta.Corpus)

	out.DownloadedPaths = pickMap(prev.DownloadedPaths, delta.DownloadedPaths)
	out.PDFHashes = pickMap(prev.PDFHashes, delta.PDFHashes)
	out.PDFMetadata = pickNested(prev.PDFMetadata, delta.PDFMetadata)
	out.ExtractedText = pickMap(prev.ExtractedText, delta.ExtractedText)
	out.NormalizedText = pickMap(prev.NormalizedText, delta.NormalizedText)
	out.Findings = pickMap(prev.Findings, delta.Findings)
	out.Sections = pickNested(prev.Sections, delta.Sections)

	if delta.Comparison != nil {
		c := *delta.Comparison
		out.Comparison = &c
	} else if prev.Comparison != nil {
		c := *prev.Comparison
		out.Comparison = &c
	}
	if delta.Critique != nil {
		c := *delta.Critique
		out.Critique = &c
	} else if prev.Critique != nil {
		c := *prev.Critique
		out.Critique = &c
	}

	if prev.DraftSections != nil || delta.DraftSections != nil {
		merged := make(map[string]string, len(prev.DraftSections)+len(delta.DraftSections))
		maps.Copy(merged, prev.DraftSections)
		maps.Copy(merged, delta.DraftSections)
		out.DraftSections = merged
	}

	out.StepLog = concat(prev.StepLog, delta.StepLog)
	out.Errors = concat(prev.Errors, delta.Errors)

	return out
}

func replaceString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func pick[T any](prev, delta []T) []T {
	src := prev
	if delta != nil {
		src = delta
	}
	if src == nil {
		return nil
	}
	return append(make([]T, 0, len(src)), src...)
}

func pickMap[V any](prev, delta map[string]V) map[string]V {
	src := prev
	if delta != nil {
		src = delta
	}
	if src == nil {
		return nil
	}
	return maps.Clone(src)
}

func pickNested(prev, delta map[string]map[string]string) map[string]map[string]string {
	src := prev
	if delta != nil {
		src = delta
	}
	if src == nil {
		return nil
	}
	out := make(map[string]map[string]string, len(src))
	for id, secs := range src {
		out[id] = maps.Clone(secs)
	}
	return out
}

func pickRecords(prev, delta []PaperRecord) []PaperRecord {
	src := prev
	if delta != nil {
		src = delta
	}
	if src == nil {
		return nil
	}
	out := make([]PaperRecord, len(src))
	for i, r := range src {
		out[i] = PaperRecord{Paper: clonePaper(r.Paper), Sections: maps.Clone(r.Sections)}
	}
	return out
}

func clonePaper(p papers.Paper) papers.Paper {
	if p.Authors != nil {
		p.Authors = append([]string(nil), p.Authors...)
	}
	return p
}

func concat(prev, delta []string) []string {
	if prev == nil && delta == nil {
		return nil
	}
	out := make([]string, 0, len(prev)+len(delta))
	out = append(out, prev...)
	return append(out, delta...)
}
