package scraper

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/net/html/charset"

	"imoveis-importer/models"
	"imoveis-importer/utils"
)

const (
	maxPageBytes         = 10 << 20
	defaultMaxImageBytes = 15 << 20
	defaultUserAgent     = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36"
)

// Response is a fetched page.
type Response struct {
	URL         string
	Status      int
	Body        []byte
	ContentType string
}

// Text returns the body decoded to UTF-8 using the declared or sniffed charset.
// Broker sites still serve ISO-8859-1 now and then.
func (r *Response) Text() string {
	rd, err := charset.NewReader(bytes.NewReader(r.Body), r.ContentType)
	if err != nil {
		return string(r.Body)
	}
	decoded, err := io.ReadAll(rd)
	if err != nil {
		return string(r.Body)
	}
	return string(decoded)
}

// Fetcher retrieves a page for the crawler.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Response, error)
}

// FetcherOptions configures HTTPFetcher. Zero values get sensible defaults.
type FetcherOptions struct {
	UserAgent     string
	PageTimeout   time.Duration
	ImageTimeout  time.Duration
	MaxImageBytes int64
	// Retry is the bounded policy applied to every request. A zero value means a single attempt.
	Retry  utils.RetryConfig
	Client *http.Client
}

// HTTPFetcher fetches server-rendered pages and images over plain HTTP with
// browser-like headers. It also serves as the image Downloader.
type HTTPFetcher struct {
	client        *http.Client
	userAgent     string
	pageTimeout   time.Duration
	imageTimeout  time.Duration
	maxImageBytes int64
	retry         utils.RetryConfig
}

// NewHTTPFetcher creates an HTTPFetcher.
func NewHTTPFetcher(opts FetcherOptions) *HTTPFetcher {
	f := &HTTPFetcher{
		client:        opts.Client,
		userAgent:     opts.UserAgent,
		pageTimeout:   opts.PageTimeout,
		imageTimeout:  opts.ImageTimeout,
		maxImageBytes: opts.MaxImageBytes,
		retry:         opts.Retry,
	}
	if f.client == nil {
		f.client = &http.Client{}
	}
	if f.userAgent == "" {
		f.userAgent = defaultUserAgent
	}
	if f.pageTimeout <= 0 {
		f.pageTimeout = 30 * time.Second
	}
	if f.imageTimeout <= 0 {
		f.imageTimeout = 20 * time.Second
	}
	if f.maxImageBytes <= 0 {
		f.maxImageBytes = defaultMaxImageBytes
	}
	return f
}

// Fetch GETs url. Transport failures come back as *NetworkError and non-2xx
// statuses as *HTTPError, after the retry policy has given up.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*Response, error) {
	return utils.Retry(ctx, f.retry, "GET "+url, retryable[*Response], func() (*Response, error) {
		return f.get(ctx, url, f.pageTimeout, "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8", maxPageBytes, false)
	})
}

// Download fetches an image, refusing bodies larger than the configured cap.
func (f *HTTPFetcher) Download(ctx context.Context, url string) (*models.ImageAsset, error) {
	resp, err := utils.Retry(ctx, f.retry, "GET "+url, retryable[*Response], func() (*Response, error) {
		return f.get(ctx, url, f.imageTimeout, "image/avif,image/webp,image/*,*/*;q=0.8", f.maxImageBytes, true)
	})
	if err != nil {
		return nil, err
	}
	return &models.ImageAsset{SourceURL: url, Data: resp.Body, ContentType: resp.ContentType}, nil
}

func retryable[T any](_ T, err error) bool {
	return isTransient(err)
}

func (f *HTTPFetcher) get(ctx context.Context, url string, timeout time.Duration, accept string, maxBytes int64, strict bool) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", url, err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", accept)
	req.Header.Set("Accept-Language", "pt-BR,pt;q=0.9,en-US;q=0.8,en;q=0.7")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &HTTPError{URL: url, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, &NetworkError{URL: url, Err: err}
	}
	if int64(len(body)) > maxBytes {
		if strict {
			return nil, fmt.Errorf("%s: body exceeds %d bytes", url, maxBytes)
		}
		body = body[:maxBytes]
	}

	return &Response{
		URL:         resp.Request.URL.String(),
		Status:      resp.StatusCode,
		Body:        body,
		ContentType: resp.Header.Get("Content-Type"),
	}, nil
}
