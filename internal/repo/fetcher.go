package repo

import (
	"bufio"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	internalerrors "github.com/olegiv/drfeedback-go/internal/errors"
	"github.com/patrickmn/go-cache"
)

const (
	// defaultTimeout bounds a single fetch attempt.
	defaultTimeout = 30 * time.Second
	// defaultMaxAttempts is the default number of fetch attempts.
	defaultMaxAttempts = 3
	// defaultBackoff is the wait before the second attempt; it doubles after.
	defaultBackoff = 1 * time.Second
	// maxIndexBytes limits the downloaded index (compressed and decompressed).
	maxIndexBytes = 64 * 1024 * 1024
	// maxErrorBody is how much of a failed response is kept in StatusError.
	maxErrorBody = 512
)

// ErrIndexTooLarge is returned when the index, compressed or decompressed,
// exceeds the download limit.
var ErrIndexTooLarge = errors.New("package index too large")

// StatusError represents a non-200 response from the repository.
type StatusError struct {
	StatusCode int
	Body       string // first 512 bytes
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("repository returned HTTP %d: %s", e.StatusCode, e.Body)
}

// Fetcher downloads the gzip-compressed package index and caches the parsed
// result per URL.
type Fetcher struct {
	url         string
	httpClient  *http.Client
	maxAttempts int
	maxBytes    int64
	backoff     time.Duration
	cacheTTL    time.Duration
	cache       *cache.Cache
}

// Option configures Fetcher behavior.
type Option func(*Fetcher)

// WithHTTPClient replaces the HTTP client (proxy, transport, timeout).
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		f.httpClient = c
	}
}

// WithMaxAttempts sets how many times a fetch is tried before giving up.
func WithMaxAttempts(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxAttempts = n
		}
	}
}

// WithBackoff sets the initial wait between attempts.
func WithBackoff(d time.Duration) Option {
	return func(f *Fetcher) {
		f.backoff = d
	}
}

// WithCacheTTL keeps a fetched index for d. Zero disables caching.
func WithCacheTTL(d time.Duration) Option {
	return func(f *Fetcher) {
		f.cacheTTL = d
	}
}

// NewFetcher creates a fetcher for the index at rawURL.
func NewFetcher(rawURL string, opts ...Option) (*Fetcher, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, internalerrors.Wrapf(err, "invalid package index URL")
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("package index URL must use http or https scheme, got: %q", u.Scheme)
	}

	f := &Fetcher{
		url:         rawURL,
		httpClient:  &http.Client{Timeout: defaultTimeout},
		maxAttempts: defaultMaxAttempts,
		maxBytes:    maxIndexBytes,
		backoff:     defaultBackoff,
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.cacheTTL > 0 {
		f.cache = cache.New(f.cacheTTL, 2*f.cacheTTL)
	}
	return f, nil
}

// NewHTTPClient builds the client used for index downloads, optionally
// through an HTTP(S) proxy.
func NewHTTPClient(proxyURL string, timeout time.Duration) (*http.Client, error) {
	if proxyURL == "" {
		return &http.Client{Timeout: timeout}, nil
	}

	parsed, err := url.Parse(proxyURL)
	if err != nil {
		return nil, internalerrors.Wrapf(err, "invalid proxy URL")
	}

	// Validate proxy URL scheme for security
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("proxy URL must use http or https scheme, got: %s", parsed.Scheme)
	}

	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyURL(parsed),
		},
		Timeout: timeout,
	}, nil
}

// Source returns the index URL with any embedded credentials redacted.
func (f *Fetcher) Source() string {
	return internalerrors.SanitizeString(f.url)
}

// Packages returns the repository index, from cache when fresh.
func (f *Fetcher) Packages(ctx context.Context) ([]Package, error) {
	if f.cache != nil {
		if cached, ok := f.cache.Get(f.url); ok {
			return cached.([]Package), nil
		}
	}

	pkgs, err := retryWithBackoff(ctx, f.maxAttempts, f.backoff, func() ([]Package, error) {
		return f.fetch(ctx)
	})
	if err != nil {
		return nil, internalerrors.Wrapf(err, "failed to fetch package index from %s", f.Source())
	}

	if f.cache != nil {
		f.cache.Set(f.url, pkgs, cache.DefaultExpiration)
	}
	return pkgs, nil
}

// fetch performs one download attempt.
func (f *Fetcher) fetch(ctx context.Context) ([]Package, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, permanent(fmt.Errorf("failed to create request: %w", err))
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		statusErr := &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, statusErr
		}
		return nil, permanent(statusErr)
	}

	body, err := decompress(capped(resp.Body, f.maxBytes))
	if err != nil {
		return nil, permanent(err)
	}

	pkgs, err := Parse(capped(body, f.maxBytes))
	if err != nil {
		return nil, permanent(err)
	}
	return pkgs, nil
}

// decompress unwraps a gzip stream. Bodies without the gzip magic are
// returned as-is, which covers transports that already decoded a
// Content-Encoding: gzip response.
func decompress(r io.Reader) (io.Reader, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(2)
	if err != nil {
		if err == io.EOF {
			return br, nil
		}
		return nil, fmt.Errorf("failed to read package index: %w", err)
	}
	if magic[0] != 0x1f || magic[1] != 0x8b {
		return br, nil
	}

	gz, err := gzip.NewReader(br)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress package index: %w", err)
	}
	return gz, nil
}

// cappedReader fails with ErrIndexTooLarge once more than limit bytes were read.
type cappedReader struct {
	r     io.Reader
	n     int64
	limit int64
}

// capped reads at most limit+1 bytes from r so an oversized index is
// reported instead of being cut off.
func capped(r io.Reader, limit int64) io.Reader {
	return &cappedReader{r: io.LimitReader(r, limit+1), limit: limit}
}

func (c *cappedReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	if c.n > c.limit {
		return n, fmt.Errorf("%w: more than %d bytes", ErrIndexTooLarge, c.limit)
	}
	return n, err
}
