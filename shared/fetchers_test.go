package shared

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistrarServer(t *testing.T) *httptest.Server {
	t.Helper()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/listing":
			assert.Equal(t, "no-cache", r.Header.Get("Cache-Control"))
			assert.Contains(t, r.Header.Get("User-Agent"), "Mozilla/5.0")
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte(`<select><option>IREDA Limited</option></select>`))
		case "/search":
			body, _ := io.ReadAll(r.Body)
			assert.Equal(t, http.MethodPost, r.Method)
			assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
			w.Header().Set("Content-Type", "application/json")
			w.Write(body)
		default:
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte("maintenance"))
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestStandardFetcher(t *testing.T) {
	server := newRegistrarServer(t)
	fetcher := NewStandardFetcher(NewHTTPClientFactory(5*time.Second).CreateOptimizedHTTPClient(0), 0)
	ctx := context.Background()

	response, err := fetcher.Get(ctx, server.URL+"/listing", map[string]string{"Cache-Control": "no-cache"})
	require.NoError(t, err)
	assert.True(t, response.OK())
	assert.Contains(t, string(response.Body), "IREDA Limited")
	assert.Equal(t, "text/html", response.ContentType)

	response, err = fetcher.Post(ctx, server.URL+"/search", "application/json", []byte(`{"pan":"ABCDE1234F"}`), nil)
	require.NoError(t, err)
	assert.Equal(t, `{"pan":"ABCDE1234F"}`, string(response.Body))

	response, err = fetcher.Get(ctx, server.URL+"/missing", nil)
	require.NoError(t, err, "non-200 responses are not transport errors")
	assert.False(t, response.OK())
	assert.Equal(t, http.StatusServiceUnavailable, response.StatusCode)
}

func TestStandardFetcherRetriesTransportErrors(t *testing.T) {
	var attempts atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if attempts.Add(1) == 1 {
			hijacker, ok := w.(http.Hijacker)
			require.True(t, ok)
			conn, _, err := hijacker.Hijack()
			require.NoError(t, err)
			conn.Close()
			return
		}
		w.Write([]byte("ok"))
	}))
	defer server.Close()

	fetcher := NewStandardFetcher(&http.Client{Timeout: 5 * time.Second}, 1)
	fetcher.backoff = 10 * time.Millisecond

	response, err := fetcher.Get(context.Background(), server.URL, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", string(response.Body))
	assert.Equal(t, int32(2), attempts.Load())
}

func TestStandardFetcherGivesUpOnCancelledContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer server.Close()

	fetcher := NewStandardFetcher(&http.Client{}, 3)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := fetcher.Get(ctx, server.URL, nil)
	require.Error(t, err)
	assert.True(t, IsRetryableError(err))
}

func TestCollyFetcher(t *testing.T) {
	server := newRegistrarServer(t)
	fetcher := NewCollyFetcher(5 * time.Second)
	ctx := context.Background()

	response, err := fetcher.Get(ctx, server.URL+"/listing", map[string]string{"Cache-Control": "no-cache"})
	require.NoError(t, err)
	assert.True(t, response.OK())
	assert.Contains(t, string(response.Body), "IREDA Limited")

	response, err = fetcher.Post(ctx, server.URL+"/search", "application/json", []byte(`{"AppNo":"1"}`), nil)
	require.NoError(t, err)
	assert.Equal(t, `{"AppNo":"1"}`, string(response.Body))

	response, err = fetcher.Get(ctx, server.URL+"/missing", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, response.StatusCode)

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	_, err = fetcher.Get(cancelled, server.URL+"/listing", nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCollyFetcherStopsOnCancel(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-release:
		}
	}))
	defer server.Close()
	defer close(release)

	fetcher := NewCollyFetcher(10 * time.Second)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	_, err := fetcher.Get(ctx, server.URL+"/slow", nil)

	require.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestBrowserFetcherRejectsPost(t *testing.T) {
	fetcher := NewBrowserFetcher(time.Second, "")
	_, err := fetcher.Post(context.Background(), "https://kosmic.kfintech.com/ipostatus/", "application/json", nil, nil)
	assert.ErrorIs(t, err, ErrBrowserPostUnsupported)
}

func TestRateLimiterSpacesRequests(t *testing.T) {
	limiter := NewHTTPRequestRateLimiter(50 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, limiter.Wait(ctx))
	assert.Less(t, time.Since(start), 20*time.Millisecond, "first request is not delayed")

	require.NoError(t, limiter.Wait(ctx))
	require.NoError(t, limiter.Wait(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, int64(3), limiter.GetRequestCount())

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	assert.ErrorIs(t, limiter.Wait(cancelled), context.Canceled)
}
