package semanticscholar

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/litreview/internal/papers"
)

const searchBody = `{
  "total": 3, "offset": 0,
  "data": [
    {"paperId": "p1", "title": "Graph Networks", "abstract": "A study.", "url": "https://s2/p1",
     "year": 2021, "venue": "NeurIPS", "citationCount": 42,
     "authors": [{"authorId": "a1", "name": "Ada"}, {"authorId": "a2", "name": "Bob"}],
     "openAccessPdf": {"url": "https://arxiv.org/pdf/p1.pdf", "status": "GREEN"}},
    {"paperId": "p2", "title": "", "abstract": null, "year": null, "citationCount": null, "authors": [], "openAccessPdf": null},
    {"paperId": "", "title": "no id"}
  ]
}`

func newTestClient(t *testing.T, handler http.HandlerFunc, cfg Config) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg.BaseURL = srv.URL
	if cfg.RateLimit == 0 {
		cfg.RateLimit = 1000
	}
	return NewClient(cfg, zerolog.Nop())
}

func TestNewClient(t *testing.T) {
	t.Run("defaults without key", func(t *testing.T) {
		c := NewClient(Config{}, zerolog.Nop())
		assert.Equal(t, DefaultBaseURL, c.cfg.BaseURL)
		assert.Equal(t, DefaultTimeout, c.cfg.Timeout)
		assert.Equal(t, 1.0, c.cfg.RateLimit)
		assert.NotNil(t, c.cache)
	})

	t.Run("higher rate with key", func(t *testing.T) {
		c := NewClient(Config{APIKey: "k"}, zerolog.Nop())
		assert.Equal(t, 10.0, c.cfg.RateLimit)
	})

	t.Run("negative TTL disables the cache", func(t *testing.T) {
		c := NewClient(Config{CacheTTL: -1}, zerolog.Nop())
		assert.Nil(t, c.cache)
	})
}

func TestClient_Search(t *testing.T) {
	t.Run("converts results and sends the key", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/paper/search", r.URL.Path)
			assert.Equal(t, "graph neural networks", r.URL.Query().Get("query"))
			assert.Equal(t, "5", r.URL.Query().Get("limit"))
			assert.Contains(t, r.URL.Query().Get("fields"), "openAccessPdf")
			assert.Equal(t, "secret", r.Header.Get("x-api-key"))
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(searchBody))
		}, Config{APIKey: "secret"})

		got, err := c.Search(context.Background(), "graph neural networks", 5)
		require.NoError(t, err)
		require.Len(t, got, 2)

		assert.Equal(t, papers.Paper{
			ID: "p1", Title: "Graph Networks", Abstract: "A study.", URL: "https://s2/p1",
			PDFURL: "https://arxiv.org/pdf/p1.pdf", Year: 2021, Venue: "NeurIPS",
			CitationCount: 42, Authors: []string{"Ada", "Bob"},
		}, got[0])
		assert.Equal(t, "p2", got[1].ID)
		assert.Equal(t, "Untitled", got[1].Title)
		assert.False(t, got[1].HasPDF())
	})

	t.Run("omits the key header without a key", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			assert.Empty(t, r.Header.Get("x-api-key"))
			_, _ = w.Write([]byte(`{"data": []}`))
		}, Config{})

		got, err := c.Search(context.Background(), "x", 10)
		require.NoError(t, err)
		assert.Empty(t, got)
	})

	t.Run("caches identical queries", func(t *testing.T) {
		var hits int32
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			atomic.AddInt32(&hits, 1)
			_, _ = w.Write([]byte(searchBody))
		}, Config{})

		first, err := c.Search(context.Background(), "Topic", 10)
		require.NoError(t, err)
		first[0].Authors[0] = "mutated"

		second, err := c.Search(context.Background(), "topic", 10)
		require.NoError(t, err)
		assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
		assert.Equal(t, "Ada", second[0].Authors[0])
	})

	t.Run("rate limit errors are retryable API errors", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusTooManyRequests)
			_, _ = w.Write([]byte(`{"message": "Too Many Requests"}`))
		}, Config{})

		_, err := c.Search(context.Background(), "x", 10)
		var apiErr *papers.APIError
		require.True(t, errors.As(err, &apiErr))
		assert.Equal(t, http.StatusTooManyRequests, apiErr.StatusCode)
		assert.Equal(t, "Too Many Requests", apiErr.Message)
		assert.True(t, papers.IsRetryable(err))
	})

	t.Run("bad requests are not retryable", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte("bad query"))
		}, Config{})

		_, err := c.Search(context.Background(), "x", 10)
		require.Error(t, err)
		assert.False(t, papers.IsRetryable(err))
		assert.Contains(t, err.Error(), "bad query")
	})

	t.Run("malformed body", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte("{not json"))
		}, Config{})

		_, err := c.Search(context.Background(), "x", 10)
		assert.ErrorContains(t, err, "decoding response")
	})

	t.Run("empty query", func(t *testing.T) {
		c := NewClient(Config{}, zerolog.Nop())
		_, err := c.Search(context.Background(), "  ", 10)
		assert.Error(t, err)
	})

	t.Run("rate limiter honours cancellation", func(t *testing.T) {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"data": []}`))
		}, Config{RateLimit: 0.001, CacheTTL: -1})

		_, err := c.Search(context.Background(), "first", 10)
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		_, err = c.Search(ctx, "second", 10)
		assert.Error(t, err)
	})
}
