package review

import (
	"regexp"
	"strings"
)

// headingRe matches a short line that looks like a section heading, with
// optional arabic ("3.", "3.1") or roman ("IV.") numbering.
var headingRe = regexp.MustCompile(`^(?:(?:\d+(?:\.\d+)*|[IVXLC]+)\.?\s+)?([A-Za-z][A-Za-z &\-]{2,50}?)\s*:?$`)

// inlineAbstractRe matches "Abstract: text" or "Abstract - text" on one line.
var inlineAbstractRe = regexp.MustCompile(`(?i)^abstract\s*[:.\-\x{2014}]\s*(.+)$`)

var headingAliases = map[string]string{
	"abstract":               "abstract",
	"summary":                "abstract",
	"introduction":           "introduction",
	"background":             "related_work",
	"related work":           "related_work",
	"related works":          "related_work",
	"literature review":      "related_work",
	"prior work":             "related_work",
	"method":                 "methodology",
	"methods":                "methodology",
	"methodology":            "methodology",
	"approach":               "methodology",
	"materials and methods":  "methodology",
	"proposed method":        "methodology",
	"experiments":            "experiments",
	"experiment":             "experiments",
	"experimental setup":     "experiments",
	"experimental results":   "results",
	"evaluation":             "experiments",
	"results":                "results",
	"findings":               "results",
	"results and discussion": "results",
	"discussion":             "discussion",
	"conclusion":             "conclusion",
	"conclusions":            "conclusion",
	"concluding remarks":     "conclusion",
	"references":             "references",
	"bibliography":           "references",
}

// HeuristicSections splits normalized paper text into the section ontology
// by detecting heading lines. Text under an unrecognized heading stays with
// the current section. When no abstract heading is found, the first
// paragraph becomes the abstract. Every ontology key is present in the
// result; missing sections are empty.
func HeuristicSections(text string) map[string]string {
	out := make(map[string]string, len(SectionOntology))
	for _, name := range SectionOntology {
		out[name] = ""
	}

	bodies := map[string][]string{}
	var preamble []string
	current := ""

	for _, line := range strings.Split(text, "\n") {
		trimmed := strings.TrimSpace(line)

		if m := inlineAbstractRe.FindStringSubmatch(trimmed); m != nil && bodies["abstract"] == nil {
			current = "abstract"
			bodies[current] = []string{m[1]}
			continue
		}
		if name, ok := headingName(trimmed); ok {
			current = name
			if bodies[current] == nil {
				bodies[current] = []string{}
			}
			continue
		}
		if current == "" {
			preamble = append(preamble, line)
			continue
		}
		bodies[current] = append(bodies[current], line)
	}

	for name, lines := range bodies {
		out[name] = strings.TrimSpace(strings.Join(lines, "\n"))
	}
	if out["abstract"] == "" {
		out["abstract"] = firstParagraph(strings.Join(preamble, "\n"))
		if out["abstract"] == "" && current == "" {
			out["abstract"] = firstParagraph(text)
		}
	}
	return out
}

func headingName(line string) (string, bool) {
	if line == "" || len(line) > 60 {
		return "", false
	}
	m := headingRe.FindStringSubmatch(line)
	if m == nil {
		return "", false
	}
	name, ok := headingAliases[strings.ToLower(strings.Join(strings.Fields(m[1]), " "))]
	return name, ok
}

// firstParagraph returns the first blank-line separated block of text,
// skipping a leading title line when the block is a single short line.
func firstParagraph(text string) string {
	var paras []string
	for _, p := range strings.Split(strings.TrimSpace(text), "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			paras = append(paras, p)
		}
	}
	for i, p := range paras {
		if i < len(paras)-1 && !strings.Contains(p, "\n") && len(strings.Fields(p)) <= 15 {
			continue
		}
		return p
	}
	return ""
}
