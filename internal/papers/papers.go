// Package papers defines the bibliographic record used throughout the review
// pipeline and the Searcher interface implemented by search backends.
package papers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
)

// Paper is one bibliographic search result.
type Paper struct {
	ID            string   `json:"id" yaml:"id"`
	Title         string   `json:"title" yaml:"title"`
	Abstract      string   `json:"abstract,omitempty" yaml:"abstract,omitempty"`
	PDFURL        string   `json:"pdf_url,omitempty" yaml:"pdf_url,omitempty"`
	URL           string   `json:"url,omitempty" yaml:"url,omitempty"`
	Year          int      `json:"year,omitempty" yaml:"year,omitempty"`
	Authors       []string `json:"authors,omitempty" yaml:"authors,omitempty"`
	Venue         string   `json:"venue,omitempty" yaml:"venue,omitempty"`
	CitationCount int      `json:"citation_count" yaml:"citation_count"`
}

// HasPDF reports whether the paper has an open-access PDF link.
func (p Paper) HasPDF() bool {
	return p.PDFURL != ""
}

// Searcher queries a bibliographic index.
type Searcher interface {
	// Search returns at most limit papers for query, in the index's
	// relevance order.
	Search(ctx context.Context, query string, limit int) ([]Paper, error)
}

// APIError is returned when the search backend answers with a non-2xx status.
type APIError struct {
	Source     string
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Source, e.StatusCode, e.Message)
}

// Retryable reports whether the request may succeed if repeated.
func (e *APIError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsRetryable reports whether err is worth retrying. Transport errors are
// retried; API errors only for 429 and 5xx.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return true
}
