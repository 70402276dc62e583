package provider

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/chromedp/chromedp"

	"hotel-rate-monitor/internal/ratelimit"
)

// Fetcher returns the HTML of a page
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"

// HTTPFetcher downloads pages with browser-like headers
type HTTPFetcher struct {
	req       *requester
	userAgent string
}

// NewHTTPFetcher creates a plain HTTP page fetcher. breaker and limiter may be nil.
func NewHTTPFetcher(name, userAgent string, timeout, retryDelay time.Duration, breaker *CircuitBreaker, limiter *ratelimit.WindowLimiter) *HTTPFetcher {
	if userAgent == "" {
		userAgent = browserUserAgent
	}
	return &HTTPFetcher{
		req:       newRequester(name, timeout, retryDelay, breaker, limiter),
		userAgent: userAgent,
	}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	body, err := f.req.get(ctx, "fetch page", url, f.applyBrowserHeaders)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (f *HTTPFetcher) applyBrowserHeaders(req *http.Request) {
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9,tr;q=0.8")
	req.Header.Set("DNT", "1")
	req.Header.Set("Upgrade-Insecure-Requests", "1")
	req.Header.Set("Sec-Fetch-Site", "none")
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	req.Header.Set("Sec-Fetch-Dest", "document")
}

// BrowserFetcher renders pages in headless Chrome for sites that build prices client-side
type BrowserFetcher struct {
	name         string
	execPath     string
	userAgent    string
	waitSelector string
	settle       time.Duration
	breaker      *CircuitBreaker
	limiter      *ratelimit.WindowLimiter
}

// NewBrowserFetcher creates a chromedp fetcher. An empty execPath uses the default Chrome lookup.
func NewBrowserFetcher(name, execPath, userAgent, waitSelector string, breaker *CircuitBreaker, limiter *ratelimit.WindowLimiter) *BrowserFetcher {
	if userAgent == "" {
		userAgent = browserUserAgent
	}
	if waitSelector == "" {
		waitSelector = "body"
	}
	return &BrowserFetcher{
		name:         name,
		execPath:     execPath,
		userAgent:    userAgent,
		waitSelector: waitSelector,
		settle:       2 * time.Second,
		breaker:      breaker,
		limiter:      limiter,
	}
}

func (f *BrowserFetcher) Fetch(ctx context.Context, url string) (string, error) {
	const op = "render page"
	if !f.breaker.CanProceed() {
		return "", &ProviderError{Op: op, Provider: f.name, Err: fmt.Errorf("%w: circuit breaker open", ErrUnavailable)}
	}
	if err := waitForBudget(ctx, f.limiter, op, f.name); err != nil {
		return "", err
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(f.userAgent),
	)
	if f.execPath != "" {
		opts = append(opts, chromedp.ExecPath(f.execPath))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()
	browserCtx, cancel := chromedp.NewContext(allocCtx)
	defer cancel()

	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.WaitVisible(f.waitSelector, chromedp.ByQuery),
		chromedp.Sleep(f.settle),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() != nil {
			return "", &ProviderError{Op: op, Provider: f.name, Err: fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())}
		}
		f.breaker.RecordFailure(0)
		return "", &ProviderError{Op: op, Provider: f.name, Err: fmt.Errorf("%w: %v", ErrUnavailable, err), temporary: true}
	}
	f.breaker.RecordSuccess()
	return html, nil
}
