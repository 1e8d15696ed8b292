package review

import (
	"fmt"
	"strings"

	"github.com/dshills/litreview/graph/model"
	"github.com/dshills/litreview/internal/papers"
)

const systemPrompt = "You are an expert research assistant helping to write a literature review. " +
	"Be precise, cite only the papers you are given, and never invent results."

func stringArray() map[string]any {
	return map[string]any{"type": "array", "items": map[string]any{"type": "string"}}
}

var queriesFormat = &model.ResponseFormat{
	Name: "search_queries",
	Schema: map[string]any{
		"type":       "object",
		"properties": map[string]any{"queries": stringArray()},
		"required":   []string{"queries"},
	},
}

var sectionsFormat = func() *model.ResponseFormat {
	props := make(map[string]any, len(SectionOntology))
	for _, name := range SectionOntology {
		props[name] = map[string]any{"type": "string"}
	}
	return &model.ResponseFormat{
		Name:   "paper_sections",
		Schema: map[string]any{"type": "object", "properties": props, "required": SectionOntology},
	}
}()

var findingsFormat = &model.ResponseFormat{
	Name: "paper_findings",
	Schema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"key_findings":  stringArray(),
			"contributions": stringArray(),
			"limitations":   stringArray(),
			"future_work":   stringArray(),
		},
		"required": []string{"key_findings", "contributions", "limitations", "future_work"},
	},
}

var comparisonFormat = &model.ResponseFormat{
	Name: "cross_comparison",
	Schema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"common_methodologies": stringArray(),
			"divergent_findings":   stringArray(),
			"unique_contributions": stringArray(),
			"research_gaps":        stringArray(),
			"summary":              map[string]any{"type": "string"},
		},
		"required": []string{"common_methodologies", "divergent_findings", "unique_contributions", "research_gaps", "summary"},
	},
}

var critiqueFormat = &model.ResponseFormat{
	Name: "critique",
	Schema: map[string]any{
		"type": "object",
		"properties": map[string]any{
			"quality":         map[string]any{"type": "string"},
			"coherence_score": map[string]any{"type": "integer"},
			"notes":           map[string]any{"type": "string"},
		},
		"required": []string{"quality", "coherence_score", "notes"},
	},
}

func messages(user string) []model.Message {
	return []model.Message{
		{Role: model.RoleSystem, Content: systemPrompt},
		{Role: model.RoleUser, Content: user},
	}
}

func plannerPrompt(topic string) []model.Message {
	return messages(fmt.Sprintf(`Plan a literature search on the topic %q.

Propose between 3 and 6 distinct search queries for an academic search engine.
Cover the core topic, important synonyms, and closely related sub-areas.
Return a JSON object {"queries": [...]}.`, topic))
}

func sectioningPrompt(text string) []model.Message {
	return messages(fmt.Sprintf(`You are an expert at parsing research papers. Given the full text of a paper, divide it into logical sections.
Return ONLY a JSON object with these keys, each containing the exact text that belongs to that section.
Do not summarize or rephrase. If a section is missing, use an empty string.

Keys: %s

Text:
%s`, strings.Join(SectionOntology, ", "), text))
}

func analysisPrompt(rec PaperRecord) []model.Message {
	var b strings.Builder
	for _, name := range SectionOntology {
		if body := rec.Sections[name]; body != "" && name != "references" {
			fmt.Fprintf(&b, "## %s\n%s\n\n", name, body)
		}
	}
	return messages(fmt.Sprintf(`You are analyzing the research paper %q.

Paper sections:
%s
Extract:
1. key_findings: 3-5 main findings
2. contributions: the main contributions
3. limitations: any stated limitations
4. future_work: suggested future research`, rec.Paper.Title, b.String()))
}

func comparisonPrompt(topic string, corpus []PaperRecord, findings map[string]Findings) []model.Message {
	return messages(fmt.Sprintf(`Compare the following research papers on the topic %q.

Papers analysis:
%s
Cover common methodologies, divergent findings or contradictions, the unique
contribution of each paper, and the research gaps they reveal. Finish with a
short summary.`, topic, describeFindings(corpus, findings)))
}

var sectionInstructions = map[string]string{
	"abstract":     "Write the Abstract section: at most 150 words summarizing the scope, the reviewed papers and their key findings.",
	"introduction": "Write the Introduction section: motivate the topic, state why it matters, and outline the review.",
	"methods":      "Write the Methods section: compare the methodologies used across the papers, highlighting similarities, differences and innovative approaches.",
	"results":      "Write the Results section: synthesize the main results across papers, identifying consistent findings and contradictions.",
	"conclusion":   "Write the Conclusion section: discuss implications, limitations and future research directions.",
	"references":   "Write the References section: list every reviewed paper in APA 7th edition format, one per line.",
}

func sectionPrompt(sec DraftSection, s State) []model.Message {
	var cmp string
	if s.Comparison != nil {
		cmp = describeComparison(*s.Comparison)
	}
	return messages(fmt.Sprintf(`You are writing a literature review on %q.

%s
Return only the section body as plain Markdown text, without the section heading.

Papers:
%s
Per-paper analysis:
%s
Cross-paper comparison:
%s`, s.Topic, sectionInstructions[sec.Key], describePapers(s.Corpus), describeFindings(s.Corpus, s.Findings), cmp))
}

func critiquePrompt(topic, draft string) []model.Message {
	return messages(fmt.Sprintf(`Critique the following literature review draft on %q.

Assess structure, coherence, accuracy with respect to the cited papers, and
clarity. Give an overall quality label (poor, fair, good or excellent), a
coherence_score from 1 to 10, and concrete notes on what to improve.

Draft:
%s`, topic, draft))
}

func revisionPrompt(topic, draft, notes string) []model.Message {
	return messages(fmt.Sprintf(`Revise the following literature review draft on %q.

Address every point of the reviewer notes while keeping the section headings
and all references. Return the complete revised draft in Markdown.

Reviewer notes:
%s

Draft:
%s`, topic, notes, draft))
}

func describePapers(corpus []PaperRecord) string {
	var b strings.Builder
	for i, rec := range corpus {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, citation(rec.Paper))
	}
	return b.String()
}

// citation renders the metadata an APA reference needs.
func citation(p papers.Paper) string {
	parts := []string{}
	if len(p.Authors) > 0 {
		parts = append(parts, strings.Join(p.Authors, ", "))
	}
	if p.Year > 0 {
		parts = append(parts, fmt.Sprintf("(%d)", p.Year))
	}
	parts = append(parts, p.Title)
	if p.Venue != "" {
		parts = append(parts, p.Venue)
	}
	if p.URL != "" {
		parts = append(parts, p.URL)
	}
	return strings.Join(parts, ". ")
}

func describeFindings(corpus []PaperRecord, findings map[string]Findings) string {
	var b strings.Builder
	for _, rec := range corpus {
		f, ok := findings[rec.Paper.ID]
		if !ok {
			continue
		}
		fmt.Fprintf(&b, "### %s\n", rec.Paper.Title)
		writeList(&b, "Key findings", f.KeyFindings)
		writeList(&b, "Contributions", f.Contributions)
		writeList(&b, "Limitations", f.Limitations)
		writeList(&b, "Future work", f.FutureWork)
		b.WriteString("\n")
	}
	return b.String()
}

func describeComparison(c Comparison) string {
	var b strings.Builder
	writeList(&b, "Common methodologies", c.CommonMethodologies)
	writeList(&b, "Divergent findings", c.DivergentFindings)
	writeList(&b, "Unique contributions", c.UniqueContributions)
	writeList(&b, "Research gaps", c.ResearchGaps)
	if c.Summary != "" {
		fmt.Fprintf(&b, "Summary: %s\n", c.Summary)
	}
	return b.String()
}

func writeList(b *strings.Builder, label string, items []string) {
	if len(items) == 0 {
		return
	}
	fmt.Fprintf(b, "%s:\n", label)
	for _, it := range items {
		fmt.Fprintf(b, "- %s\n", it)
	}
}
