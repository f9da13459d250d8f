package shared

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

const browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

// maxResponseBytes caps registrar responses; portal pages are well under this
const maxResponseBytes = 4 << 20

// FetchResponse is the status and body of a registrar HTTP exchange
type FetchResponse struct {
	StatusCode  int
	Body        []byte
	ContentType string
}

// OK reports a 200 response
func (r *FetchResponse) OK() bool {
	return r != nil && r.StatusCode == http.StatusOK
}

// HTTPFetcher is the outbound HTTP collaborator used by adapters and the discovery poller.
// Non-200 responses are returned without error; only transport failures return an error.
type HTTPFetcher interface {
	Get(ctx context.Context, url string, headers map[string]string) (*FetchResponse, error)
	Post(ctx context.Context, url, contentType string, body []byte, headers map[string]string) (*FetchResponse, error)
}

// HTTPClientFactory creates HTTP clients with standardized configuration
type HTTPClientFactory struct {
	defaultTimeout time.Duration
	mutex          sync.RWMutex
	clients        map[string]*http.Client
}

// NewHTTPClientFactory creates a new HTTP client factory
func NewHTTPClientFactory(defaultTimeout time.Duration) *HTTPClientFactory {
	return &HTTPClientFactory{
		defaultTimeout: defaultTimeout,
		clients:        make(map[string]*http.Client),
	}
}

// CreateOptimizedHTTPClient returns a pooled client for the given timeout, creating it on first use
func (f *HTTPClientFactory) CreateOptimizedHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = f.defaultTimeout
	}

	clientKey := fmt.Sprintf("timeout_%d", timeout.Milliseconds())

	f.mutex.RLock()
	if client, exists := f.clients[clientKey]; exists {
		f.mutex.RUnlock()
		return client
	}
	f.mutex.RUnlock()

	f.mutex.Lock()
	defer f.mutex.Unlock()
	if client, exists := f.clients[clientKey]; exists {
		return client
	}

	client := &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:          50,
			MaxIdleConnsPerHost:   5,
			IdleConnTimeout:       90 * time.Second,
			TLSHandshakeTimeout:   10 * time.Second,
			ResponseHeaderTimeout: timeout,
			ExpectContinueTimeout: 1 * time.Second,
		},
	}
	f.clients[clientKey] = client

	logrus.WithFields(logrus.Fields{
		"component":  "HTTPClientFactory",
		"timeout":    timeout,
		"client_key": clientKey,
	}).Debug("Created new optimized HTTP client")

	return client
}

// CleanupAllClients closes idle connections of every cached client
func (f *HTTPClientFactory) CleanupAllClients() {
	f.mutex.Lock()
	defer f.mutex.Unlock()

	for key, client := range f.clients {
		if transport, ok := client.Transport.(*http.Transport); ok {
			transport.CloseIdleConnections()
		}
		delete(f.clients, key)
	}

	logrus.WithField("component", "HTTPClientFactory").Debug("Cleaned up all cached HTTP clients")
}

// SetBrowserLikeHeaders configures HTTP request headers to mimic browser behavior
func SetBrowserLikeHeaders(request *http.Request, acceptHeader string) {
	request.Header.Set("User-Agent", browserUserAgent)
	request.Header.Set("Accept", acceptHeader)
	request.Header.Set("Accept-Language", "en-US,en;q=0.9")
	request.Header.Set("Cache-Control", "no-cache")
}

// StandardFetcher implements HTTPFetcher on net/http with retry on transport errors
type StandardFetcher struct {
	client     *http.Client
	maxRetries int
	backoff    time.Duration
}

// NewStandardFetcher creates a fetcher around client
func NewStandardFetcher(client *http.Client, maxRetries int) *StandardFetcher {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &StandardFetcher{client: client, maxRetries: maxRetries, backoff: time.Second}
}

func (f *StandardFetcher) Get(ctx context.Context, url string, headers map[string]string) (*FetchResponse, error) {
	return f.do(ctx, http.MethodGet, url, "", nil, headers)
}

func (f *StandardFetcher) Post(ctx context.Context, url, contentType string, body []byte, headers map[string]string) (*FetchResponse, error) {
	return f.do(ctx, http.MethodPost, url, contentType, body, headers)
}

func (f *StandardFetcher) do(ctx context.Context, method, url, contentType string, body []byte, headers map[string]string) (*FetchResponse, error) {
	logger := logrus.WithFields(logrus.Fields{
		"component": "StandardFetcher",
		"method":    method,
		"url":       url,
	})

	var lastErr error
	for attempt := 0; attempt <= f.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * f.backoff
			logger.WithFields(logrus.Fields{
				"attempt":          attempt + 1,
				"backoff_duration": backoff,
			}).Debug("Retrying HTTP request after backoff")

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		var reader io.Reader
		if body != nil {
			reader = bytes.NewReader(body)
		}
		request, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return nil, fmt.Errorf("failed to build request: %w", err)
		}
		SetBrowserLikeHeaders(request, "text/html,application/json;q=0.9,*/*;q=0.8")
		if contentType != "" {
			request.Header.Set("Content-Type", contentType)
		}
		for key, value := range headers {
			request.Header.Set(key, value)
		}

		response, err := f.client.Do(request)
		if err != nil {
			lastErr = fmt.Errorf("attempt %d failed with network error: %w", attempt+1, err)
			logger.WithError(lastErr).Debug("HTTP request failed with network error")
			if ctx.Err() != nil {
				break
			}
			continue
		}

		data, err := io.ReadAll(io.LimitReader(response.Body, maxResponseBytes))
		response.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("attempt %d failed reading body: %w", attempt+1, err)
			continue
		}

		logger.WithFields(logrus.Fields{
			"attempt":     attempt + 1,
			"status_code": response.StatusCode,
		}).Debug("HTTP request completed")

		return &FetchResponse{
			StatusCode:  response.StatusCode,
			Body:        data,
			ContentType: response.Header.Get("Content-Type"),
		}, nil
	}

	return nil, fmt.Errorf("HTTP %s %s failed after %d attempts: %w", method, url, f.maxRetries+1, lastErr)
}
