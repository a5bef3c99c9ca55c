package feed

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"vea/internal/domain"
	"vea/internal/ratelimiter"

	"github.com/mmcdole/gofeed"
)

const (
	DefaultTimeout      = 20 * time.Second
	DefaultRetries      = 2
	DefaultRetryBackoff = 500 * time.Millisecond

	userAgent = "Mozilla/5.0 (compatible; vea/1.0; +https://github.com/vea)"
)

type Options struct {
	// Timeout bounds the network work of one source fetch including retries.
	Timeout      time.Duration
	Retries      int
	RetryBackoff time.Duration
	UserAgent    string
	HTTPClient   *http.Client
	Limiter      *ratelimiter.RateLimiter
}

type Fetcher struct {
	client       *http.Client
	limiter      *ratelimiter.RateLimiter
	timeout      time.Duration
	retries      int
	retryBackoff time.Duration
	userAgent    string
	log          *slog.Logger
}

func NewFetcher(opts Options, log *slog.Logger) *Fetcher {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	client := opts.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	ua := strings.TrimSpace(opts.UserAgent)
	if ua == "" {
		ua = userAgent
	}

	return &Fetcher{
		client:       client,
		limiter:      opts.Limiter,
		timeout:      timeout,
		retries:      max(opts.Retries, 0),
		retryBackoff: max(opts.RetryBackoff, 0),
		userAgent:    ua,
		log:          log,
	}
}

// Fetch downloads and parses one feed. Any failure is returned as *FetchError.
//
// The timeout bounds the network work and retry backoff of this source only.
// Waiting for a turn on a shared host is not charged to it.
func (f *Fetcher) Fetch(
	ctx context.Context,
	source domain.FeedSource,
) ([]*gofeed.Item, error) {
	feedURL := strings.TrimSpace(source.URL)

	u, err := url.Parse(feedURL)
	if err != nil {
		return nil, &FetchError{Source: source.Name, URL: feedURL, Err: fmt.Errorf("parse URL: %w", err)}
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &FetchError{Source: source.Name, URL: feedURL, Err: errors.New("URL must be absolute http(s)")}
	}

	parse := parseSyndicationFeed
	requestURL := feedURL

	if ok, slug := isTelegramChannelURL(feedURL); ok {
		parse = parseTelegramChannelPage
		requestURL = TelegramChannelCanonicalURL(slug)
	}

	var (
		lastErr   error
		remaining = f.timeout
	)

	for attempt := range f.retries + 1 {
		if attempt > 0 {
			backoff := f.retryBackoff * time.Duration(1<<(attempt-1))
			if backoff >= remaining {
				break
			}

			f.log.DebugContext(ctx, "Retrying feed fetch",
				"source", source.Name,
				"feedURL", feedURL,
				"attempt", attempt,
				"backoff", backoff,
				"error", lastErr)

			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return nil, &FetchError{
					Source: source.Name,
					URL:    feedURL,
					Err:    errors.Join(lastErr, ctx.Err()),
				}
			}

			remaining -= backoff
		}

		if err = f.limiter.Wait(ctx, u.Host); err != nil {
			return nil, &FetchError{Source: source.Name, URL: feedURL, Err: errors.Join(lastErr, err)}
		}

		started := time.Now()

		items, attemptErr := f.fetchWithin(ctx, remaining, requestURL, parse)
		if attemptErr == nil {
			return items, nil
		}

		remaining -= time.Since(started)
		lastErr = attemptErr

		if remaining <= 0 || !isRetryable(ctx, attemptErr) {
			break
		}
	}

	return nil, &FetchError{Source: source.Name, URL: feedURL, Err: lastErr}
}

func (f *Fetcher) fetchWithin(
	ctx context.Context,
	budget time.Duration,
	feedURL string,
	parse func(io.Reader) ([]*gofeed.Item, error),
) ([]*gofeed.Item, error) {
	ctx, cancel := context.WithTimeout(ctx, budget)
	defer cancel()

	return f.fetchOnce(ctx, feedURL, parse)
}

func (f *Fetcher) fetchOnce(
	ctx context.Context,
	feedURL string,
	parse func(io.Reader) ([]*gofeed.Item, error),
) ([]*gofeed.Item, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml;q=0.9, */*;q=0.8")

	resp, err := f.client.Do(req) //nolint:gosec // URL comes from configuration
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer func() {
		if err = resp.Body.Close(); err != nil {
			f.log.ErrorContext(ctx, "Failed to close response body",
				"error", err,
				"feedURL", feedURL,
				"operation", "fetchOnce")
		}
	}()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("do request: %w", &StatusError{Code: resp.StatusCode})
	}

	return parse(resp.Body)
}

// parseSyndicationFeed handles RSS, Atom and JSON Feed documents.
func parseSyndicationFeed(r io.Reader) ([]*gofeed.Item, error) {
	// gofeed parsers keep per-document state, so every fetch gets its own.
	parsed, err := gofeed.NewParser().Parse(r)
	if err != nil {
		return nil, &parseError{err: err}
	}

	return parsed.Items, nil
}

func isRetryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil {
		return false
	}

	var pe *parseError
	if errors.As(err, &pe) {
		return false
	}

	var se *StatusError
	if errors.As(err, &se) {
		return se.retryable()
	}

	var ue *url.Error
	if errors.As(err, &ue) {
		return true
	}

	return false
}
