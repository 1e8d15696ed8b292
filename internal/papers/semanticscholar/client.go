// Package semanticscholar implements papers.Searcher against the Semantic
// Scholar Graph API.
package semanticscholar

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/dshills/litreview/internal/papers"
)

const (
	// DefaultBaseURL is the base URL for the Semantic Scholar Graph API.
	DefaultBaseURL = "https://api.semanticscholar.org/graph/v1"

	// DefaultTimeout is the default HTTP request timeout.
	DefaultTimeout = 30 * time.Second

	// DefaultMaxResults caps the limit sent to the API.
	DefaultMaxResults = 100

	// DefaultCacheTTL is how long identical searches are served from memory.
	DefaultCacheTTL = 15 * time.Minute

	apiKeyHeader = "x-api-key"
	userAgent    = "litreview/1.0 (academic literature review)"
	paperFields  = "paperId,title,abstract,url,openAccessPdf,year,authors,venue,citationCount"
	sourceName   = "Semantic Scholar"
)

// Config contains configuration options for the client.
type Config struct {
	// BaseURL defaults to DefaultBaseURL.
	BaseURL string

	// APIKey is optional. Without it the client is limited to one request
	// per second.
	APIKey string

	// Timeout defaults to DefaultTimeout.
	Timeout time.Duration

	// RateLimit is requests per second. Zero means 1 without a key and
	// 10 with one.
	RateLimit float64

	// CacheTTL defaults to DefaultCacheTTL. Negative disables caching.
	CacheTTL time.Duration
}

// Client implements papers.Searcher for Semantic Scholar.
type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	cache   *cache.Cache
	logger  zerolog.Logger
}

var _ papers.Searcher = (*Client)(nil)

// NewClient creates a client with defaults applied to cfg.
func NewClient(cfg Config, logger zerolog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 1
		if cfg.APIKey != "" {
			cfg.RateLimit = 10
		}
	}
	if cfg.CacheTTL == 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}

	c := &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		logger:  logger.With().Str("component", "semanticscholar").Logger(),
	}
	if cfg.CacheTTL > 0 {
		c.cache = cache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	}
	return c
}

// Search queries /paper/search. Results keep the API's relevance order.
// Entries without a paper ID are dropped.
func (c *Client) Search(ctx context.Context, query string, limit int) ([]papers.Paper, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("empty query")
	}
	if limit <= 0 || limit > DefaultMaxResults {
		limit = DefaultMaxResults
	}

	key := strconv.Itoa(limit) + "|" + strings.ToLower(query)
	if c.cache != nil {
		if hit, ok := c.cache.Get(key); ok {
			c.logger.Debug().Str("query", query).Msg("search cache hit")
			return clonePapers(hit.([]papers.Paper)), nil
		}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqURL, err := c.searchURL(query, limit)
	if err != nil {
		return nil, fmt.Errorf("building search URL: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if c.cfg.APIKey != "" {
		req.Header.Set(apiKeyHeader, c.cfg.APIKey)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if err := handleErrorResponse(resp); err != nil {
		return nil, err
	}

	// Limit body to 10MB.
	var body searchResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 10<<20)).Decode(&body); err != nil {
		return nil, fmt.Errorf("decoding response: %w", err)
	}

	result := convertPapers(body.Data)
	c.logger.Debug().
		Str("query", query).
		Int("results", len(result)).
		Dur("duration", time.Since(start)).
		Msg("search completed")

	if c.cache != nil {
		c.cache.SetDefault(key, clonePapers(result))
	}
	return result, nil
}

func (c *Client) searchURL(query string, limit int) (string, error) {
	base, err := url.Parse(c.cfg.BaseURL)
	if err != nil {
		return "", err
	}
	u := base.JoinPath("paper", "search")
	q := u.Query()
	q.Set("query", query)
	q.Set("limit", strconv.Itoa(limit))
	q.Set("fields", paperFields)
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func handleErrorResponse(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &papers.APIError{Source: sourceName, StatusCode: resp.StatusCode, Message: "failed to read error response"}
	}

	message := strings.TrimSpace(string(body))
	var errResp errorResponse
	if json.Unmarshal(body, &errResp) == nil {
		if errResp.Error != "" {
			message = errResp.Error
		} else if errResp.Message != "" {
			message = errResp.Message
		}
	}
	if message == "" {
		message = http.StatusText(resp.StatusCode)
	}
	return &papers.APIError{Source: sourceName, StatusCode: resp.StatusCode, Message: message}
}

func convertPapers(results []paperResult) []papers.Paper {
	out := make([]papers.Paper, 0, len(results))
	for _, r := range results {
		if r.PaperID == "" {
			continue
		}
		p := papers.Paper{
			ID:    r.PaperID,
			Title: strings.TrimSpace(r.Title),
			URL:   r.URL,
			Venue: r.Venue,
		}
		if p.Title == "" {
			p.Title = "Untitled"
		}
		if r.Abstract != nil {
			p.Abstract = *r.Abstract
		}
		if r.Year != nil {
			p.Year = *r.Year
		}
		if r.CitationCount != nil {
			p.CitationCount = *r.CitationCount
		}
		if r.OpenAccessPDF != nil {
			p.PDFURL = r.OpenAccessPDF.URL
		}
		for _, a := range r.Authors {
			if a.Name != "" {
				p.Authors = append(p.Authors, a.Name)
			}
		}
		out = append(out, p)
	}
	return out
}

func clonePapers(in []papers.Paper) []papers.Paper {
	out := make([]papers.Paper, len(in))
	for i, p := range in {
		if p.Authors != nil {
			p.Authors = append([]string(nil), p.Authors...)
		}
		out[i] = p
	}
	return out
}
