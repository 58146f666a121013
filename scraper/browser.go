package scraper

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/chromedp/chromedp"

	"imoveis-importer/utils"
)

// BrowserFetcher renders pages in headless Chrome for sources whose listings
// only appear after scripts run. It satisfies Fetcher.
type BrowserFetcher struct {
	allocCtx    context.Context
	cancelAlloc context.CancelFunc
	browserCtx  context.Context
	cancelTab   context.CancelFunc

	timeout time.Duration
	settle  time.Duration
	retry   utils.RetryConfig
	logger  *utils.Logger
}

// BrowserOptions configures a BrowserFetcher.
type BrowserOptions struct {
	ChromeBin string
	UserAgent string
	Timeout   time.Duration
	// Settle is how long to wait after navigation for late content.
	Settle time.Duration
	Retry  utils.RetryConfig
}

// NewBrowserFetcher starts a headless browser. Call Close when done.
func NewBrowserFetcher(opts BrowserOptions, logger *utils.Logger) *BrowserFetcher {
	chromeBin := opts.ChromeBin
	if chromeBin == "" {
		chromeBin = findChromeBinary()
	}
	logger.Info("[browser] Using browser binary: %q", chromeBin)

	userAgent := opts.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-setuid-sandbox", true),
		chromedp.Flag("lang", "pt-BR"),
		chromedp.UserAgent(userAgent),
	)
	if chromeBin != "" {
		allocOpts = append(allocOpts, chromedp.ExecPath(chromeBin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), allocOpts...)
	// Suppress chromedp log noise
	browserCtx, cancelTab := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))

	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}
	if opts.Settle <= 0 {
		opts.Settle = 3 * time.Second
	}
	return &BrowserFetcher{
		allocCtx:    allocCtx,
		cancelAlloc: cancelAlloc,
		browserCtx:  browserCtx,
		cancelTab:   cancelTab,
		timeout:     opts.Timeout,
		settle:      opts.Settle,
		retry:       opts.Retry,
		logger:      logger,
	}
}

// Fetch navigates to url and returns the rendered DOM. Navigation failures are
// reported as *NetworkError; the browser does not expose the HTTP status.
func (b *BrowserFetcher) Fetch(ctx context.Context, url string) (*Response, error) {
	return utils.Retry(ctx, b.retry, "render "+url, retryable[*Response], func() (*Response, error) {
		return b.render(ctx, url)
	})
}

func (b *BrowserFetcher) render(ctx context.Context, url string) (*Response, error) {
	tabCtx, cancel := chromedp.NewContext(b.browserCtx)
	defer cancel()
	tabCtx, cancelTimeout := context.WithTimeout(tabCtx, b.timeout)
	defer cancelTimeout()

	// Tie the tab to the caller's context as well as the browser's.
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var html, finalURL string
	err := chromedp.Run(tabCtx,
		chromedp.Navigate(url),
		chromedp.Sleep(b.settle),
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
		chromedp.Sleep(b.settle/2),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &NetworkError{URL: url, Err: fmt.Errorf("chromedp: %w", err)}
	}
	if finalURL == "" {
		finalURL = url
	}
	return &Response{
		URL:         finalURL,
		Status:      200,
		Body:        []byte(html),
		ContentType: "text/html; charset=utf-8",
	}, nil
}

// Close shuts the browser down.
func (b *BrowserFetcher) Close() {
	b.cancelTab()
	b.cancelAlloc()
}

// findChromeBinary locates a Chrome/Chromium binary.
func findChromeBinary() string {
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/google-chrome",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
		"/opt/google/chrome/google-chrome",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
