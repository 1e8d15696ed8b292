package pdf

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/dshills/litreview/internal/papers"
)

const (
	// DefaultMaxBytes caps a single download.
	DefaultMaxBytes int64 = 50 << 20

	// DefaultDownloadTimeout bounds one HTTP download.
	DefaultDownloadTimeout = 60 * time.Second

	defaultUserAgent = "Mozilla/5.0 (compatible; litreview/1.0)"
)

var (
	// ErrBlockedAddress is returned when a PDF URL resolves to a private,
	// loopback or link-local address.
	ErrBlockedAddress = errors.New("address not allowed")

	// ErrTooLarge is returned when a download exceeds the size limit.
	ErrTooLarge = errors.New("download exceeds size limit")
)

// StatusError is returned for non-2xx download responses.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("download %s: status %d", e.URL, e.StatusCode)
}

// Retryable reports whether the request may succeed if repeated.
func (e *StatusError) Retryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// IsRetryable reports whether a download error is worth another attempt.
// Invalid content, blocked addresses and 4xx responses are permanent.
func IsRetryable(err error) bool {
	switch {
	case err == nil,
		errors.Is(err, context.Canceled),
		errors.Is(err, ErrInvalidPDF),
		errors.Is(err, ErrBlockedAddress),
		errors.Is(err, ErrTooLarge):
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Retryable()
	}
	return true
}

// DownloaderConfig configures a Downloader.
type DownloaderConfig struct {
	// Dir is where PDFs are written. It is created if missing.
	Dir string

	// Timeout defaults to DefaultDownloadTimeout.
	Timeout time.Duration

	// MaxBytes defaults to DefaultMaxBytes.
	MaxBytes int64

	// UserAgent is sent with every request.
	UserAgent string

	// AllowPrivate disables the private network guard. Tests only.
	AllowPrivate bool
}

// Download describes a PDF on disk.
type Download struct {
	PaperID string `json:"paper_id"`
	Path    string `json:"path"`
	SHA256  string `json:"sha256"`
	Bytes   int64  `json:"bytes"`
	Reused  bool   `json:"reused"`
}

// Downloader fetches open-access PDFs.
//
// Files are named after the sanitized paper title plus its ID. A valid file
// already on disk is reused; an invalid one is replaced. Content that does
// not start with %PDF is deleted and reported as ErrInvalidPDF.
type Downloader struct {
	cfg    DownloaderConfig
	client *http.Client
	logger zerolog.Logger
}

// NewDownloader creates a downloader with defaults applied to cfg.
func NewDownloader(cfg DownloaderConfig, logger zerolog.Logger) *Downloader {
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultDownloadTimeout
	}
	if cfg.MaxBytes == 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = defaultUserAgent
	}

	dialer := &net.Dialer{Timeout: 30 * time.Second}
	if !cfg.AllowPrivate {
		dialer.Control = guardAddress
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dialer.DialContext
	transport.Proxy = nil

	return &Downloader{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout, Transport: transport},
		logger: logger.With().Str("component", "downloader").Logger(),
	}
}

// Path returns where the PDF for p is stored.
func (d *Downloader) Path(p papers.Paper) string {
	return filepath.Join(d.cfg.Dir, SanitizeFilename(p.Title+"_"+p.ID+".pdf"))
}

// Download fetches p.PDFURL, or reuses a valid existing file.
func (d *Downloader) Download(ctx context.Context, p papers.Paper) (Download, error) {
	if p.PDFURL == "" {
		return Download{}, fmt.Errorf("paper %s has no PDF URL", p.ID)
	}
	u, err := url.Parse(p.PDFURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return Download{}, fmt.Errorf("%w: unsupported URL %q", ErrBlockedAddress, p.PDFURL)
	}
	if err := os.MkdirAll(d.cfg.Dir, 0o755); err != nil {
		return Download{}, fmt.Errorf("creating download dir: %w", err)
	}

	dest := d.Path(p)
	if _, statErr := os.Stat(dest); statErr == nil {
		if Validate(dest) == nil {
			return d.reuse(p, dest)
		}
		d.logger.Warn().Str("paper_id", p.ID).Str("path", dest).Msg("existing file is not a valid PDF, re-downloading")
		if err := os.Remove(dest); err != nil {
			return Download{}, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.PDFURL, nil)
	if err != nil {
		return Download{}, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", d.cfg.UserAgent)
	req.Header.Set("Accept", "application/pdf,*/*;q=0.8")

	resp, err := d.client.Do(req)
	if err != nil {
		return Download{}, fmt.Errorf("downloading %s: %w", p.PDFURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return Download{}, &StatusError{URL: p.PDFURL, StatusCode: resp.StatusCode}
	}

	dl, err := d.write(resp.Body, dest)
	if err != nil {
		return Download{}, err
	}
	dl.PaperID = p.ID
	d.logger.Info().Str("paper_id", p.ID).Int64("bytes", dl.Bytes).Str("path", dest).Msg("downloaded PDF")
	return dl, nil
}

func (d *Downloader) reuse(p papers.Paper, dest string) (Download, error) {
	info, err := os.Stat(dest)
	if err != nil {
		return Download{}, err
	}
	sum, err := HashFile(dest)
	if err != nil {
		return Download{}, err
	}
	d.logger.Info().Str("paper_id", p.ID).Str("path", dest).Msg("valid PDF already exists")
	return Download{PaperID: p.ID, Path: dest, SHA256: sum, Bytes: info.Size(), Reused: true}, nil
}

// write streams body into a temp file next to dest, checks the header and
// renames it into place.
func (d *Downloader) write(body io.Reader, dest string) (Download, error) {
	br := bufio.NewReader(body)
	header, _ := br.Peek(len(pdfMagic))
	if string(header) != string(pdfMagic) {
		return Download{}, fmt.Errorf("%w: response does not start with %%PDF", ErrInvalidPDF)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".download-*.pdf")
	if err != nil {
		return Download{}, err
	}
	tmpName := tmp.Name()
	cleanup := func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}

	h := sha256.New()
	n, err := io.Copy(io.MultiWriter(tmp, h), io.LimitReader(br, d.cfg.MaxBytes+1))
	if err != nil {
		cleanup()
		return Download{}, fmt.Errorf("writing PDF: %w", err)
	}
	if n > d.cfg.MaxBytes {
		cleanup()
		return Download{}, ErrTooLarge
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return Download{}, err
	}
	if err := os.Rename(tmpName, dest); err != nil {
		_ = os.Remove(tmpName)
		return Download{}, err
	}
	return Download{Path: dest, SHA256: hex.EncodeToString(h.Sum(nil)), Bytes: n}, nil
}

// guardAddress rejects connections to non-public addresses. It runs after
// DNS resolution, so redirects and rebinding are covered too.
func guardAddress(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return err
	}
	ip := net.ParseIP(host)
	if ip == nil || !isPublic(ip) {
		return fmt.Errorf("%w: %s", ErrBlockedAddress, host)
	}
	return nil
}

func isPublic(ip net.IP) bool {
	return !(ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() || ip.IsMulticast())
}
