package review

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dshills/litreview/internal/papers"
	"github.com/dshills/litreview/internal/pdf"
)

// Artifacts writes human-readable run outputs under a data directory:
//
//	papers/          downloaded PDFs and <topic>_metadata.json
//	extracted_text/  one JSON file per paper with hash, stats and text
//	analysis/        per-paper findings and cross_paper_comparison.json
//	drafts/          <topic>_review_draft_<timestamp>.md
//
// All methods are no-ops on a nil receiver.
type Artifacts struct {
	root string
	now  func() time.Time
}

// NewArtifacts returns an Artifacts rooted at dataDir.
func NewArtifacts(dataDir string) *Artifacts {
	return &Artifacts{root: dataDir, now: time.Now}
}

// Artifact subdirectories.
const (
	DirPapers    = "papers"
	DirExtracted = "extracted_text"
	DirAnalysis  = "analysis"
	DirDrafts    = "drafts"
)

var artifactDirs = []string{DirPapers, DirExtracted, DirAnalysis, DirDrafts}

// Dir returns the path of subdirectory kind.
func (a *Artifacts) Dir(kind string) string {
	if a == nil {
		return ""
	}
	return filepath.Join(a.root, kind)
}

// Init creates the artifact directories.
func (a *Artifacts) Init() error {
	if a == nil {
		return nil
	}
	for _, d := range artifactDirs {
		if err := os.MkdirAll(a.Dir(d), 0o755); err != nil {
			return fmt.Errorf("create %s: %w", d, err)
		}
	}
	return nil
}

// Clean removes every artifact directory and its content.
func (a *Artifacts) Clean() error {
	if a == nil {
		return nil
	}
	for _, d := range artifactDirs {
		if err := os.RemoveAll(a.Dir(d)); err != nil {
			return fmt.Errorf("remove %s: %w", d, err)
		}
	}
	return nil
}

type paperMetadata struct {
	Topic     string         `json:"topic"`
	Generated time.Time      `json:"generated"`
	Papers    []paperWithPDF `json:"papers"`
}

type paperWithPDF struct {
	papers.Paper
	LocalPath string `json:"local_path"`
}

// WriteMetadata records the downloaded papers of a topic.
func (a *Artifacts) WriteMetadata(topic string, ps []papers.Paper, paths map[string]string) (string, error) {
	if a == nil {
		return "", nil
	}
	md := paperMetadata{Topic: topic, Generated: a.now().UTC()}
	for _, p := range ps {
		md.Papers = append(md.Papers, paperWithPDF{Paper: p, LocalPath: paths[p.ID]})
	}
	return a.writeJSON(DirPapers, pdf.SanitizeFilename(topic+"_metadata.json"), md)
}

type extractionRecord struct {
	PaperID         string            `json:"paper_id"`
	Title           string            `json:"title"`
	SourcePDF       string            `json:"source_pdf"`
	SHA256          string            `json:"sha256"`
	Metadata        map[string]string `json:"pdf_metadata,omitempty"`
	RawChars        int               `json:"raw_chars"`
	NormalizedChars int               `json:"normalized_chars"`
	Words           int               `json:"words"`
	Text            string            `json:"text"`
}

// WriteExtraction records the normalized text of a paper together with the
// source file, its hash and document metadata from src.
func (a *Artifacts) WriteExtraction(p papers.Paper, src pdf.Extraction, normalized string) (string, error) {
	if a == nil {
		return "", nil
	}
	rec := extractionRecord{
		PaperID:         p.ID,
		Title:           p.Title,
		SourcePDF:       src.Path,
		SHA256:          src.SHA256,
		Metadata:        src.Metadata,
		RawChars:        len([]rune(src.Text)),
		NormalizedChars: len([]rune(normalized)),
		Words:           len(strings.Fields(normalized)),
		Text:            normalized,
	}
	return a.writeJSON(DirExtracted, paperFile(p, ".json"), rec)
}

type analysisRecord struct {
	PaperID  string            `json:"paper_id"`
	Title    string            `json:"title"`
	Year     int               `json:"year,omitempty"`
	Sections map[string]string `json:"sections,omitempty"`
	Findings Findings          `json:"findings"`
}

// WriteAnalysis records the findings of a paper.
func (a *Artifacts) WriteAnalysis(rec PaperRecord, f Findings) (string, error) {
	if a == nil {
		return "", nil
	}
	return a.writeJSON(DirAnalysis, paperFile(rec.Paper, "_analysis.json"), analysisRecord{
		PaperID:  rec.Paper.ID,
		Title:    rec.Paper.Title,
		Year:     rec.Paper.Year,
		Sections: rec.Sections,
		Findings: f,
	})
}

// WriteComparison records the cross-paper comparison.
func (a *Artifacts) WriteComparison(topic string, c Comparison) (string, error) {
	if a == nil {
		return "", nil
	}
	return a.writeJSON(DirAnalysis, "cross_paper_comparison.json", struct {
		Topic string `json:"topic"`
		Comparison
	}{topic, c})
}

// WriteDraft saves a draft as Markdown with a timestamped name.
func (a *Artifacts) WriteDraft(topic, draft string) (string, error) {
	if a == nil {
		return "", nil
	}
	name := pdf.SanitizeFilename(fmt.Sprintf("%s_review_draft_%s.md", topic, a.now().Format("20060102_150405")))
	return a.write(DirDrafts, name, []byte(draft))
}

func paperFile(p papers.Paper, suffix string) string {
	return pdf.SanitizeFilename(p.Title + "_" + p.ID + suffix)
}

func (a *Artifacts) writeJSON(kind, name string, v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal %s: %w", name, err)
	}
	return a.write(kind, name, append(data, '\n'))
}

// write replaces dir/name atomically.
func (a *Artifacts) write(kind, name string, data []byte) (string, error) {
	dir := a.Dir(kind)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", kind, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // already renamed on success

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", name, err)
	}
	dest := filepath.Join(dir, name)
	if err := os.Rename(tmp.Name(), dest); err != nil {
		return "", fmt.Errorf("rename %s: %w", name, err)
	}
	return dest, nil
}
