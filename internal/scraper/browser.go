package scraper

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/chromedp/chromedp"
	"golang.org/x/time/rate"
)

// BrowserFetcher uses headless Chrome to load pages whose parameters are
// rendered client side
type BrowserFetcher struct {
	allocCtx context.Context
	cancel   context.CancelFunc
	headless bool
	timeout  time.Duration
	limiter  *rate.Limiter
}

// NewBrowserFetcher creates a new browser-based fetcher. Start must be
// called before Fetch.
func NewBrowserFetcher(headless bool, timeout, interval time.Duration) *BrowserFetcher {
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}
	return &BrowserFetcher{
		headless: headless,
		timeout:  timeout,
		limiter:  rate.NewLimiter(limit, 1),
	}
}

// Start initializes the browser
func (f *BrowserFetcher) Start() error {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", f.headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("disable-extensions", true),
		chromedp.WindowSize(1920, 1080),
		chromedp.UserAgent(defaultUserAgent),
	)

	f.allocCtx, f.cancel = chromedp.NewExecAllocator(context.Background(), opts...)
	return nil
}

// Stop closes the browser
func (f *BrowserFetcher) Stop() {
	if f.cancel != nil {
		f.cancel()
	}
}

// Fetch implements Fetcher
func (f *BrowserFetcher) Fetch(ctx context.Context, url string) (string, error) {
	if f.allocCtx == nil {
		return "", errors.New("browser not started")
	}
	if err := f.limiter.Wait(ctx); err != nil {
		return "", err
	}

	// Create a new browser tab for this page
	taskCtx, cancel := chromedp.NewContext(f.allocCtx)
	defer cancel()

	taskCtx, cancel = context.WithTimeout(taskCtx, f.timeout)
	defer cancel()

	// Stop the tab if the caller gives up first
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var html string
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		chromedp.OuterHTML("html", &html),
	)
	if err != nil {
		return "", fmt.Errorf("navigation failed: %w", err)
	}

	log.Printf("Page loaded, URL: %s, HTML length: %d", url, len(html))
	return html, nil
}
