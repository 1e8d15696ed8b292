package pdf

import (
	"context"
	"fmt"
	"strings"

	lpdf "github.com/ledongthuc/pdf"
	"github.com/rs/zerolog"
)

// Extraction is the text pulled from one PDF.
type Extraction struct {
	Path   string `json:"pdf_path"`
	SHA256 string `json:"file_hash"`
	Pages  int    `json:"pages"`
	Text   string `json:"raw_text"`

	// Metadata holds the non-empty entries of the document information
	// dictionary under the keys of infoKeys.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// infoKeys maps document information entries to metadata keys.
var infoKeys = map[string]string{
	"Title":        "title",
	"Author":       "author",
	"Subject":      "subject",
	"Keywords":     "keywords",
	"Creator":      "creator",
	"Producer":     "producer",
	"CreationDate": "creation_date",
	"ModDate":      "modification_date",
}

// infoMetadata reads the information dictionary of r. It returns nil when
// the document has none.
func infoMetadata(r *lpdf.Reader) map[string]string {
	info := r.Trailer().Key("Info")
	if info.Kind() != lpdf.Dict {
		return nil
	}
	var out map[string]string
	for _, key := range info.Keys() {
		name, ok := infoKeys[key]
		if !ok {
			continue
		}
		var text string
		switch v := info.Key(key); v.Kind() {
		case lpdf.String:
			text = v.Text()
		case lpdf.Name:
			text = v.Name()
		}
		if text = strings.TrimSpace(text); text == "" {
			continue
		}
		if out == nil {
			out = make(map[string]string, len(infoKeys))
		}
		out[name] = text
	}
	return out
}

// Extractor pulls plain text out of a PDF file.
type Extractor interface {
	Extract(ctx context.Context, path string) (Extraction, error)
}

// TextExtractor implements Extractor with github.com/ledongthuc/pdf.
type TextExtractor struct {
	logger zerolog.Logger
}

var _ Extractor = (*TextExtractor)(nil)

// NewTextExtractor creates a TextExtractor.
func NewTextExtractor(logger zerolog.Logger) *TextExtractor {
	return &TextExtractor{logger: logger.With().Str("component", "extractor").Logger()}
}

// Extract validates path, then concatenates the text of every page with a
// blank line between pages. Pages without text are skipped.
func (e *TextExtractor) Extract(ctx context.Context, path string) (ext Extraction, err error) {
	if err := ctx.Err(); err != nil {
		return Extraction{}, err
	}
	if err := Validate(path); err != nil {
		return Extraction{}, err
	}

	sum, err := HashFile(path)
	if err != nil {
		return Extraction{}, err
	}

	// The parser panics on some malformed files.
	defer func() {
		if r := recover(); r != nil {
			ext = Extraction{}
			err = fmt.Errorf("%w: parser panic: %v", ErrInvalidPDF, r)
		}
	}()

	f, r, err := lpdf.Open(path)
	if err != nil {
		return Extraction{}, fmt.Errorf("%w: %v", ErrInvalidPDF, err)
	}
	defer f.Close()

	var pages []string
	total := r.NumPage()
	for i := 1; i <= total; i++ {
		if err := ctx.Err(); err != nil {
			return Extraction{}, err
		}
		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, perr := page.GetPlainText(nil)
		if perr != nil {
			e.logger.Debug().Err(perr).Int("page", i).Str("path", path).Msg("page extraction failed")
			continue
		}
		if strings.TrimSpace(text) == "" {
			e.logger.Debug().Int("page", i).Str("path", path).Msg("page has no extractable text")
			continue
		}
		pages = append(pages, text)
	}
	if len(pages) == 0 {
		return Extraction{}, ErrNoText
	}

	ext = Extraction{Path: path, SHA256: sum, Pages: total, Text: strings.Join(pages, "\n\n"), Metadata: infoMetadata(r)}
	e.logger.Debug().Str("path", path).Int("pages", len(pages)).Int("chars", len(ext.Text)).Msg("extracted text")
	return ext, nil
}
