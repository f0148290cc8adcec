package sources

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/playwright-community/playwright-go"

	"github.com/pauljones0/production-scout/internal/models"
)

const defaultRenderTimeout = 45 * time.Second

// ChromedpFetcher renders pages in headless Chrome, for listings that are
// filled in by scripts after load.
type ChromedpFetcher struct {
	allocOpts []chromedp.ExecAllocatorOption
	timeout   time.Duration
}

func NewChromedpFetcher() *ChromedpFetcher {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.UserAgent(defaultUserAgent),
	)
	return &ChromedpFetcher{allocOpts: opts, timeout: defaultRenderTimeout}
}

// Fetch returns the rendered outer HTML of target.
func (f *ChromedpFetcher) Fetch(ctx context.Context, target string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, f.allocOpts...)
	defer cancelAlloc()
	taskCtx, cancelTask := chromedp.NewContext(allocCtx)
	defer cancelTask()

	var html string
	err := chromedp.Run(taskCtx,
		chromedp.Navigate(target),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return nil, &FetchError{URL: target, Reason: models.ReasonUnreachable, Err: fmt.Errorf("chromedp render: %w", err)}
	}
	return []byte(html), nil
}

// PlaywrightFetcher renders pages with Playwright's Chromium. The browser is
// started on first use and shared until Close.
type PlaywrightFetcher struct {
	mu      sync.Mutex
	pw      *playwright.Playwright
	browser playwright.Browser
	timeout time.Duration
}

func NewPlaywrightFetcher() *PlaywrightFetcher {
	return &PlaywrightFetcher{timeout: defaultRenderTimeout}
}

func (f *PlaywrightFetcher) start() (playwright.Browser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.browser != nil {
		return f.browser, nil
	}
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("start playwright: %w", err)
	}
	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
	})
	if err != nil {
		_ = pw.Stop()
		return nil, fmt.Errorf("launch chromium: %w", err)
	}
	f.pw = pw
	f.browser = browser
	return browser, nil
}

// Fetch returns the page content of target once the network is idle.
func (f *PlaywrightFetcher) Fetch(ctx context.Context, target string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, &FetchError{URL: target, Reason: models.ReasonUnreachable, Err: err}
	}
	browser, err := f.start()
	if err != nil {
		return nil, &FetchError{URL: target, Reason: models.ReasonUnreachable, Err: err}
	}

	page, err := browser.NewPage(playwright.BrowserNewPageOptions{
		UserAgent: playwright.String(defaultUserAgent),
	})
	if err != nil {
		return nil, &FetchError{URL: target, Reason: models.ReasonUnreachable, Err: fmt.Errorf("new page: %w", err)}
	}
	defer page.Close()

	timeout := f.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout {
			timeout = remaining
		}
	}
	_, err = page.Goto(target, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
		Timeout:   playwright.Float(float64(timeout.Milliseconds())),
	})
	if err != nil {
		return nil, &FetchError{URL: target, Reason: models.ReasonUnreachable, Err: fmt.Errorf("playwright goto: %w", err)}
	}
	html, err := page.Content()
	if err != nil {
		return nil, &FetchError{URL: target, Reason: models.ReasonParse, Err: fmt.Errorf("playwright content: %w", err)}
	}
	return []byte(html), nil
}

// Close shuts the browser down if it was started.
func (f *PlaywrightFetcher) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.browser == nil {
		return nil
	}
	if err := f.browser.Close(); err != nil {
		return fmt.Errorf("close browser: %w", err)
	}
	f.browser = nil
	if err := f.pw.Stop(); err != nil {
		return fmt.Errorf("stop playwright: %w", err)
	}
	return nil
}
