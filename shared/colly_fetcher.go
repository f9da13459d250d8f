package shared

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/sirupsen/logrus"
)

// CollyFetcher implements HTTPFetcher on a colly collector. A fresh collector is
// built per request so concurrent registrar polls never share callbacks.
type CollyFetcher struct {
	timeout time.Duration
}

// NewCollyFetcher creates a colly-backed fetcher with the given per-request timeout
func NewCollyFetcher(timeout time.Duration) *CollyFetcher {
	return &CollyFetcher{timeout: timeout}
}

func (f *CollyFetcher) Get(ctx context.Context, url string, headers map[string]string) (*FetchResponse, error) {
	return f.request(ctx, http.MethodGet, url, "", nil, headers)
}

func (f *CollyFetcher) Post(ctx context.Context, url, contentType string, body []byte, headers map[string]string) (*FetchResponse, error) {
	return f.request(ctx, http.MethodPost, url, contentType, body, headers)
}

func (f *CollyFetcher) request(ctx context.Context, method, url, contentType string, body []byte, headers map[string]string) (*FetchResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	timeout := f.timeout
	if deadline, ok := ctx.Deadline(); ok {
		if remaining := time.Until(deadline); remaining < timeout || timeout <= 0 {
			timeout = remaining
		}
	}
	if timeout <= 0 {
		return nil, context.DeadlineExceeded
	}

	c := colly.NewCollector(
		colly.UserAgent(browserUserAgent),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
		colly.StdlibContext(ctx),
	)
	c.SetRequestTimeout(timeout)
	c.ParseHTTPErrorResponse = true

	var result *FetchResponse
	c.OnResponse(func(r *colly.Response) {
		result = &FetchResponse{
			StatusCode: r.StatusCode,
			Body:       r.Body,
		}
		if r.Headers != nil {
			result.ContentType = r.Headers.Get("Content-Type")
		}
	})

	hdr := http.Header{}
	hdr.Set("Accept", "text/html,application/xhtml+xml,application/json;q=0.9,*/*;q=0.8")
	hdr.Set("Accept-Language", "en-US,en;q=0.9")
	if contentType != "" {
		hdr.Set("Content-Type", contentType)
	}
	for key, value := range headers {
		hdr.Set(key, value)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	if err := c.Request(method, url, reader, nil, hdr); err != nil {
		logrus.WithFields(logrus.Fields{
			"component": "CollyFetcher",
			"method":    method,
			"url":       url,
		}).WithError(err).Debug("Collector request failed")
		return nil, fmt.Errorf("colly %s %s: %w", method, url, err)
	}
	if result == nil {
		return nil, fmt.Errorf("colly %s %s: no response received", method, url)
	}

	return result, nil
}
