package scraper

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

const defaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// Fetcher retrieves the HTML of a page
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// HTTPFetcher fetches pages with a plain HTTP GET. Requests are spaced by
// the configured interval; failures are returned without retrying.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
	limiter   *rate.Limiter
}

// NewHTTPFetcher creates an HTTPFetcher. A zero interval disables pacing.
func NewHTTPFetcher(timeout, interval time.Duration, userAgent string) *HTTPFetcher {
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &HTTPFetcher{
		client: &http.Client{
			Timeout: timeout,
		},
		userAgent: userAgent,
		limiter:   rate.NewLimiter(limit, 1),
	}
}

// Fetch implements Fetcher
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return "", err
	}

	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "pl-PL,pl;q=0.9,en;q=0.8")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("HTTP %d: %s", resp.StatusCode, resp.Status)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}

	return string(body), nil
}

// FetcherOptions selects and configures a Fetcher
type FetcherOptions struct {
	// Mode is one of "http", "browser" or "scrapingbee"
	Mode           string
	Timeout        time.Duration
	Interval       time.Duration
	UserAgent      string
	Headless       bool
	ScrapingBeeKey string
}

// NewFetcher builds the Fetcher for opts.Mode. The returned stop func
// releases any browser the fetcher holds and is safe to call always.
func NewFetcher(opts FetcherOptions) (Fetcher, func(), error) {
	switch opts.Mode {
	case "http", "":
		return NewHTTPFetcher(opts.Timeout, opts.Interval, opts.UserAgent), func() {}, nil
	case "browser":
		f := NewBrowserFetcher(opts.Headless, opts.Timeout, opts.Interval)
		if err := f.Start(); err != nil {
			return nil, nil, fmt.Errorf("failed to start browser: %w", err)
		}
		return f, f.Stop, nil
	case "scrapingbee":
		if opts.ScrapingBeeKey == "" {
			return nil, nil, fmt.Errorf("scrapingbee fetch needs an API key")
		}
		return NewScrapingBeeFetcher(opts.ScrapingBeeKey, opts.Interval, DefaultListingOptions()), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unknown fetch mode %q", opts.Mode)
	}
}
