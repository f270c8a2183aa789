package fetcher

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "tome/1.0 (+https://github.com/dshills/tome)"

	// MaxBodyBytes caps a single fetched document
	MaxBodyBytes = 64 << 20
)

var (
	// ErrNotFound is returned for 404 and 410 responses
	ErrNotFound = errors.New("document not found")
	// ErrUnsupportedContentType is returned for responses that are not
	// markdown or plain text
	ErrUnsupportedContentType = errors.New("unsupported content type")
)

// allowedContentTypes are the media types accepted as documentation
var allowedContentTypes = map[string]bool{
	"text/markdown":   true,
	"text/plain":      true,
	"text/x-markdown": true,
}

// TransientError is a failure that may succeed on retry: a network error, a
// 429 or a 5xx response
type TransientError struct {
	URL        string
	StatusCode int // 0 for network errors
	Err        error
}

func (e *TransientError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("transient fetch failure for %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("transient fetch failure for %s: %v", e.URL, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is worth retrying
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

// Document is a fetched text document
type Document struct {
	URL         string // Final URL after redirects
	ContentType string
	Content     string
}

// Config holds fetcher settings
type Config struct {
	Timeout   time.Duration
	UserAgent string
	Retry     RetryConfig
}

// Fetcher retrieves documentation text over HTTP
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	retry      RetryConfig
	logger     *slog.Logger
}

// New creates a fetcher. Zero config fields take their defaults.
func New(cfg Config, logger *slog.Logger) *Fetcher {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Retry.MaxRetries <= 0 {
		cfg.Retry = DefaultRetryConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Fetcher{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		userAgent: cfg.UserAgent,
		retry:     cfg.Retry,
		logger:    logger,
	}
}

// Fetch downloads a markdown or plain-text document, retrying transient
// failures with exponential backoff
func (f *Fetcher) Fetch(ctx context.Context, url string) (*Document, error) {
	attempt := 0
	return retryWithBackoff(ctx, f.retry, func() (*Document, error) {
		attempt++
		doc, err := f.fetchOnce(ctx, url)
		if err != nil && IsTransient(err) {
			f.logger.Warn("fetch failed", "url", url, "attempt", attempt, "error", err)
		}
		return doc, err
	})
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) (*Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/markdown, text/plain;q=0.9, */*;q=0.1")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, &TransientError{URL: url, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	switch {
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return nil, fmt.Errorf("%s: %w", url, ErrNotFound)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, &TransientError{URL: url, StatusCode: resp.StatusCode}
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if !isTextContent(contentType) {
		return nil, fmt.Errorf("%s: %w %q", url, ErrUnsupportedContentType, contentType)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBodyBytes+1))
	if err != nil {
		return nil, &TransientError{URL: url, Err: err}
	}
	if len(body) > MaxBodyBytes {
		return nil, fmt.Errorf("%s: document exceeds %d bytes", url, MaxBodyBytes)
	}
	if !utf8.Valid(body) {
		return nil, fmt.Errorf("%s: %w: body is not valid UTF-8", url, ErrUnsupportedContentType)
	}

	return &Document{
		URL:         resp.Request.URL.String(),
		ContentType: contentType,
		Content:     string(body),
	}, nil
}

// isTextContent reports whether a Content-Type header names an allowed
// media type, ignoring parameters such as charset
func isTextContent(contentType string) bool {
	if contentType == "" {
		return false
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	}
	return allowedContentTypes[strings.ToLower(mediaType)]
}
