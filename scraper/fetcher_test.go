package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"imoveis-importer/utils"
)

func fastRetry(attempts int) utils.RetryConfig {
	return utils.RetryConfig{MaxAttempts: attempts, BaseDelay: time.Millisecond, MaxDelay: 2 * time.Millisecond}
}

func TestFetchSendsBrowserHeaders(t *testing.T) {
	var gotUA, gotLang string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		gotLang = r.Header.Get("Accept-Language")
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte("<h1>ok</h1>"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(FetcherOptions{Retry: fastRetry(1)})
	resp, err := f.Fetch(context.Background(), srv.URL+"/imoveis/1")
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "<h1>ok</h1>", resp.Text())
	assert.Contains(t, gotUA, "Mozilla/5.0")
	assert.True(t, strings.HasPrefix(gotLang, "pt-BR"), "Accept-Language = %q", gotLang)
}

func TestFetchRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) <= 2 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("finally"))
	}))
	defer srv.Close()

	f := NewHTTPFetcher(FetcherOptions{Retry: fastRetry(3)})
	resp, err := f.Fetch(context.Background(), srv.URL)
	require.NoError(t, err)
	assert.Equal(t, "finally", string(resp.Body))
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchRetriesTooManyRequestsUntilExhausted(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(FetcherOptions{Retry: fastRetry(2)})
	_, err := f.Fetch(context.Background(), srv.URL)

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusTooManyRequests, httpErr.Status)
	assert.Equal(t, int32(2), calls.Load())
}

func TestFetchDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	f := NewHTTPFetcher(FetcherOptions{Retry: fastRetry(3)})
	_, err := f.Fetch(context.Background(), srv.URL+"/imovel/removido")

	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.Status)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	f := NewHTTPFetcher(FetcherOptions{Retry: fastRetry(2)})
	_, err := f.Fetch(context.Background(), url)

	var netErr *NetworkError
	require.ErrorAs(t, err, &netErr)
	assert.Equal(t, url, netErr.URL)
}

func TestFetchStopsOnCancelledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f := NewHTTPFetcher(FetcherOptions{Retry: fastRetry(5)})
	_, err := f.Fetch(ctx, srv.URL)
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.Canceled), "got %v", err)
}

func TestResponseTextDecodesLatin1(t *testing.T) {
	resp := &Response{
		Body:        []byte("<h1>S\xedtio em Ibi\xfana - SP</h1>"),
		ContentType: "text/html; charset=iso-8859-1",
	}
	assert.Equal(t, "<h1>Sítio em Ibiúna - SP</h1>", resp.Text())
}

func TestDownload(t *testing.T) {
	jpeg := append([]byte{0xFF, 0xD8, 0xFF, 0xE0}, make([]byte, 2048)...)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(jpeg)
	}))
	defer srv.Close()

	t.Run("within cap", func(t *testing.T) {
		f := NewHTTPFetcher(FetcherOptions{Retry: fastRetry(1)})
		asset, err := f.Download(context.Background(), srv.URL+"/fotos/1.jpg")
		require.NoError(t, err)
		assert.Equal(t, "image/jpeg", asset.ContentType)
		assert.Equal(t, jpeg, asset.Data)
		assert.Equal(t, srv.URL+"/fotos/1.jpg", asset.SourceURL)
	})

	t.Run("over cap", func(t *testing.T) {
		f := NewHTTPFetcher(FetcherOptions{Retry: fastRetry(1), MaxImageBytes: 1024})
		_, err := f.Download(context.Background(), srv.URL+"/fotos/1.jpg")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exceeds 1024 bytes")
	})
}
