package shared

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/sirupsen/logrus"
)

// ErrBrowserPostUnsupported is returned when a form submission is attempted through the headless browser
var ErrBrowserPostUnsupported = errors.New("headless browser fetcher only supports GET")

// BrowserFetcher renders JS-driven registrar portals (e.g. KFintech's kosmic SPA)
// in headless Chrome and returns the resulting DOM as the response body.
type BrowserFetcher struct {
	timeout     time.Duration
	waitFor     string
	settleDelay time.Duration
}

// NewBrowserFetcher creates a fetcher that waits for waitSelector to be present before capturing the page
func NewBrowserFetcher(timeout time.Duration, waitSelector string) *BrowserFetcher {
	if waitSelector == "" {
		waitSelector = "select"
	}
	return &BrowserFetcher{
		timeout:     timeout,
		waitFor:     waitSelector,
		settleDelay: 2 * time.Second,
	}
}

func (f *BrowserFetcher) Get(ctx context.Context, url string, headers map[string]string) (*FetchResponse, error) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-images", true),
		chromedp.Flag("mute-audio", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.UserAgent(browserUserAgent),
	)

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	defer cancelAlloc()

	browserCtx, cancelBrowser := chromedp.NewContext(allocCtx)
	defer cancelBrowser()

	browserCtx, cancelTimeout := context.WithTimeout(browserCtx, f.timeout)
	defer cancelTimeout()

	var html string
	err := chromedp.Run(browserCtx,
		chromedp.Navigate(url),
		chromedp.WaitReady(f.waitFor, chromedp.ByQuery),
		chromedp.Sleep(f.settleDelay),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"component": "BrowserFetcher",
			"url":       url,
		}).WithError(err).Warn("Headless render failed")
		return nil, fmt.Errorf("headless render of %s: %w", url, err)
	}

	return &FetchResponse{
		StatusCode:  http.StatusOK,
		Body:        []byte(html),
		ContentType: "text/html",
	}, nil
}

func (f *BrowserFetcher) Post(ctx context.Context, url, contentType string, body []byte, headers map[string]string) (*FetchResponse, error) {
	return nil, ErrBrowserPostUnsupported
}
