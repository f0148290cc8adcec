package sources

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/html/charset"

	"github.com/pauljones0/production-scout/internal/models"
	"github.com/pauljones0/production-scout/internal/util"
)

const (
	defaultHTTPTimeout = 30 * time.Second
	defaultUserAgent   = "production-scout/1.0 (+https://github.com/pauljones0/production-scout)"
	maxBodyBytes       = 10 << 20
)

// Fetcher downloads the document at a URL.
type Fetcher interface {
	Fetch(ctx context.Context, target string) ([]byte, error)
}

// FetchError describes a failed download. Adapters turn it into a
// *models.RetrievalError for their source.
type FetchError struct {
	URL        string
	StatusCode int
	Reason     models.RetrievalReason
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status code %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// temporary reports whether another attempt could succeed.
func (e *FetchError) temporary() bool {
	if e.Reason != models.ReasonUnreachable {
		return false
	}
	return e.StatusCode == 0 || e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// HTTPFetcher fetches pages with a plain HTTP client, retrying transient failures.
type HTTPFetcher struct {
	client     *http.Client
	userAgent  string
	maxRetries int
	baseDelay  time.Duration
}

type HTTPOption func(*HTTPFetcher)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(f *HTTPFetcher) { f.client = c }
}

// WithRetry sets how many times a transient failure is retried and the first backoff delay.
func WithRetry(maxRetries int, baseDelay time.Duration) HTTPOption {
	return func(f *HTTPFetcher) {
		f.maxRetries = maxRetries
		f.baseDelay = baseDelay
	}
}

func NewHTTPFetcher(opts ...HTTPOption) *HTTPFetcher {
	f := &HTTPFetcher{
		client: &http.Client{
			Timeout: defaultHTTPTimeout,
		},
		userAgent:  defaultUserAgent,
		maxRetries: 2,
		baseDelay:  time.Second,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch returns the body of target decoded to UTF-8.
func (f *HTTPFetcher) Fetch(ctx context.Context, target string) ([]byte, error) {
	if _, err := parseHTTPURL(target); err != nil {
		return nil, &FetchError{URL: target, Reason: models.ReasonUnreachable, Err: err}
	}

	var body []byte
	err := util.RetryWithBackoff(ctx, f.maxRetries, f.baseDelay, func(attempt int) error {
		b, err := f.fetchOnce(ctx, target)
		if err == nil {
			body = b
			return nil
		}
		var fe *FetchError
		if errors.As(err, &fe) && !fe.temporary() {
			return util.Permanent(err)
		}
		slog.Warn("Fetch attempt failed", "url", target, "attempt", attempt+1, "error", err)
		return err
	})
	if err != nil {
		var fe *FetchError
		if errors.As(err, &fe) {
			return nil, err
		}
		return nil, &FetchError{URL: target, Reason: models.ReasonUnreachable, Err: err}
	}
	return body, nil
}

func (f *HTTPFetcher) fetchOnce(ctx context.Context, target string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, &FetchError{URL: target, Reason: models.ReasonUnreachable, Err: err}
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/json;q=0.9,*/*;q=0.8")

	res, err := f.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: target, Reason: models.ReasonUnreachable, Err: err}
	}
	defer res.Body.Close()

	switch {
	case res.StatusCode == http.StatusUnauthorized || res.StatusCode == http.StatusForbidden:
		return nil, &FetchError{URL: target, StatusCode: res.StatusCode, Reason: models.ReasonAuth}
	case res.StatusCode != http.StatusOK:
		return nil, &FetchError{URL: target, StatusCode: res.StatusCode, Reason: models.ReasonUnreachable}
	}

	reader, err := charset.NewReader(io.LimitReader(res.Body, maxBodyBytes), res.Header.Get("Content-Type"))
	if errors.Is(err, io.EOF) {
		// charset sniffing reports an empty body as EOF.
		return []byte{}, nil
	}
	if err != nil {
		return nil, &FetchError{URL: target, Reason: models.ReasonParse, Err: fmt.Errorf("decode charset: %w", err)}
	}
	body, err := io.ReadAll(reader)
	if err != nil {
		return nil, &FetchError{URL: target, Reason: models.ReasonUnreachable, Err: fmt.Errorf("read body: %w", err)}
	}
	return body, nil
}

// Restrict wraps f so only http(s) URLs on the allowed domains are fetched.
func Restrict(f Fetcher, allowed []string) Fetcher {
	return &allowlistFetcher{next: f, allowed: allowed}
}

type allowlistFetcher struct {
	next    Fetcher
	allowed []string
}

func (a *allowlistFetcher) Fetch(ctx context.Context, target string) ([]byte, error) {
	u, err := parseHTTPURL(target)
	if err != nil {
		return nil, &FetchError{URL: target, Reason: models.ReasonUnreachable, Err: err}
	}
	if !util.HostAllowed(u.Hostname(), a.allowed) {
		return nil, &FetchError{
			URL:    target,
			Reason: models.ReasonUnreachable,
			Err:    fmt.Errorf("security violation: URL hostname %s is not in allowlist", u.Hostname()),
		}
	}
	return a.next.Fetch(ctx, target)
}

func parseHTTPURL(target string) (*url.URL, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("failed to parse URL %s: %w", target, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid URL scheme %s: only http and https allowed", u.Scheme)
	}
	return u, nil
}
