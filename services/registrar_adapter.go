package services

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/fenilmodi00/ipo-allotment/models"
	"github.com/fenilmodi00/ipo-allotment/shared"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

var panRegex = regexp.MustCompile(`^[A-Z]{5}[0-9]{4}[A-Z]$`)

const (
	invalidPANMessage        = "Invalid PAN format. Please enter a valid 10-character PAN (e.g., ABCDE1234F)"
	invalidAppNumberMessage  = "Invalid application number. It must be between 6 and 20 characters."
	registrarFailureMessage  = "Unable to fetch allotment status. Please try again later or check the official registrar website."
	recordNotFoundMessage    = "No application found for these details. Please verify your PAN and application number."
	minApplicationNumberSize = 6
	maxApplicationNumberSize = 20
)

// IsValidPAN reports whether pan is a well-formed PAN.
// A serial of 0000 is never issued, so such values are rejected as well.
func IsValidPAN(pan string) bool {
	return panRegex.MatchString(pan) && pan[5:9] != "0000"
}

// RegistrarAdapter queries one registrar for allotment results.
// CheckAllotment never returns an error: every failure maps to a result status.
type RegistrarAdapter interface {
	Name() models.RegistrarType
	CheckAllotment(ctx context.Context, params models.AllotmentCheckParams) models.AllotmentResult
}

// AdapterOptions carries the collaborators shared by every registrar adapter
type AdapterOptions struct {
	Fetcher  shared.HTTPFetcher
	BaseURL  string // overrides the registrar endpoint host, used by tests
	Timeout  time.Duration
	MinDelay time.Duration
	Clock    func() time.Time
}

// BaseRegistrarAdapter centralises validation, parsing and outbound calls for adapters
type BaseRegistrarAdapter struct {
	registrar models.RegistrarType
	baseURL   string
	fetcher   shared.HTTPFetcher
	limiter   *shared.HTTPRequestRateLimiter
	timeout   time.Duration
	clock     func() time.Time
	utility   *UtilityService
	logger    *logrus.Entry
}

func newBaseRegistrarAdapter(registrar models.RegistrarType, defaultBaseURL string, opts AdapterOptions) BaseRegistrarAdapter {
	baseURL := defaultBaseURL
	if opts.BaseURL != "" {
		baseURL = strings.TrimRight(opts.BaseURL, "/")
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	return BaseRegistrarAdapter{
		registrar: registrar,
		baseURL:   baseURL,
		fetcher:   opts.Fetcher,
		limiter:   shared.NewHTTPRequestRateLimiter(opts.MinDelay),
		timeout:   timeout,
		clock:     clock,
		utility:   NewUtilityService(),
		logger: logrus.WithFields(logrus.Fields{
			"component": "RegistrarAdapter",
			"registrar": registrar,
		}),
	}
}

func (b *BaseRegistrarAdapter) Name() models.RegistrarType {
	return b.registrar
}

// ValidatePAN checks the PAN format
func (b *BaseRegistrarAdapter) ValidatePAN(pan string) bool {
	return IsValidPAN(pan)
}

// ValidateApplicationNumber applies the 6-20 character sanity check
func (b *BaseRegistrarAdapter) ValidateApplicationNumber(appNo string) bool {
	return len(appNo) >= minApplicationNumberSize && len(appNo) <= maxApplicationNumberSize
}

// validateInput returns an INVALID_DETAILS result when params cannot be sent to the registrar
func (b *BaseRegistrarAdapter) validateInput(params models.AllotmentCheckParams) (models.AllotmentResult, bool) {
	if !b.ValidatePAN(params.PAN) {
		return b.newResult(params, models.StatusInvalidDetails, invalidPANMessage), false
	}
	if params.ApplicationNumber != "" && !b.ValidateApplicationNumber(params.ApplicationNumber) {
		return b.newResult(params, models.StatusInvalidDetails, invalidAppNumberMessage), false
	}
	return models.AllotmentResult{}, true
}

// SanitizeText cleans text scraped from registrar HTML
func (b *BaseRegistrarAdapter) SanitizeText(text string) string {
	return b.utility.SanitizeHTMLText(text)
}

// ParseNumber parses an Indian-format integer, defaulting to zero
func (b *BaseRegistrarAdapter) ParseNumber(text string) int {
	value, _ := b.utility.ParseIndianNumber(text)
	return value
}

// ParseAmount parses a rupee amount, defaulting to zero
func (b *BaseRegistrarAdapter) ParseAmount(text string) decimal.Decimal {
	value, _ := b.utility.ParseAmount(text)
	return value
}

func (b *BaseRegistrarAdapter) newResult(params models.AllotmentCheckParams, status models.AllotmentStatus, message string) models.AllotmentResult {
	result := models.AllotmentResult{
		Status:            status,
		IPOID:             params.IPOID,
		IPOName:           "Unknown IPO",
		ApplicationNumber: params.ApplicationNumber,
		CheckedAt:         b.clock().UnixMilli(),
		Message:           message,
	}
	if result.Message == "" {
		result.Message = DefaultStatusMessage(result)
	}
	return result
}

// errorResult builds the generic ERROR result; raw is kept for diagnostics only
func (b *BaseRegistrarAdapter) errorResult(params models.AllotmentCheckParams, err error, raw string) models.AllotmentResult {
	b.logger.WithFields(logrus.Fields{
		"ipo_id":    params.IPOID,
		"retryable": shared.IsRetryableError(err),
	}).WithError(err).Warn("Registrar lookup failed")

	result := b.newResult(params, models.StatusError, registrarFailureMessage)
	result.RawData = raw
	return result
}

// allottedResult guarantees non-nil numeric fields on ALLOTTED results
func (b *BaseRegistrarAdapter) allottedResult(params models.AllotmentCheckParams, shares int, blocked, refund decimal.Decimal) models.AllotmentResult {
	result := b.newResult(params, models.StatusAllotted, "")
	result.SharesAllotted = &shares
	result.AmountBlocked = &blocked
	result.RefundAmount = &refund
	result.Message = DefaultStatusMessage(result)
	return result
}

// post sends a request through the rate limiter under the adapter's timeout
func (b *BaseRegistrarAdapter) post(ctx context.Context, path, contentType string, body []byte, headers map[string]string) (*shared.FetchResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	if err := b.limiter.Wait(ctx); err != nil {
		return nil, shared.WrapError(err, shared.ErrorCategoryTimeout, shared.CodeRegistrarUnavailable, string(b.registrar), "rate_limit", true)
	}

	url := b.baseURL + path
	response, err := b.fetcher.Post(ctx, url, contentType, body, headers)
	if err != nil {
		return nil, shared.WrapError(err, shared.ErrorCategoryNetwork, shared.CodeRegistrarUnavailable, string(b.registrar), "post", true)
	}
	if !response.OK() {
		return response, shared.NewServiceError(shared.ErrorCategoryNetwork, shared.CodeRegistrarUnavailable,
			fmt.Sprintf("registrar responded with status %d", response.StatusCode), string(b.registrar), "post", response.StatusCode >= 500, nil)
	}
	return response, nil
}

// ExtractLabelValues collects "label | value" pairs from table rows and definition lists.
// Labels are lowercased with trailing colons removed.
func (b *BaseRegistrarAdapter) ExtractLabelValues(doc *goquery.Document) map[string]string {
	fields := make(map[string]string)
	add := func(label, value string) {
		label = strings.ToLower(strings.TrimRight(b.SanitizeText(label), ": "))
		if label == "" {
			return
		}
		if _, exists := fields[label]; !exists {
			fields[label] = b.SanitizeText(value)
		}
	}

	doc.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.Find("th, td")
		if cells.Length() >= 2 {
			add(cells.Eq(0).Text(), cells.Eq(1).Text())
		}
	})
	doc.Find("dt").Each(func(_ int, term *goquery.Selection) {
		add(term.Text(), term.NextFiltered("dd").Text())
	})

	return fields
}

// lookupField returns the value of the first label, in sorted order, containing every keyword
func lookupField(fields map[string]string, keywords ...string) (string, bool) {
	labels := make([]string, 0, len(fields))
	for label := range fields {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	for _, label := range labels {
		matched := true
		for _, keyword := range keywords {
			if !strings.Contains(label, keyword) {
				matched = false
				break
			}
		}
		if matched {
			return fields[label], true
		}
	}
	return "", false
}

// lookupFirst tries each keyword set in priority order
func lookupFirst(fields map[string]string, candidates ...[]string) (string, bool) {
	for _, keywords := range candidates {
		if value, ok := lookupField(fields, keywords...); ok {
			return value, true
		}
	}
	return "", false
}

// ClassifyOutcome maps free registrar text to a status; ok is false when nothing recognisable was found
func (b *BaseRegistrarAdapter) ClassifyOutcome(text string) (models.AllotmentStatus, bool) {
	text = strings.ToLower(text)

	patterns := []struct {
		status   models.AllotmentStatus
		keywords []string
	}{
		{models.StatusInvalidDetails, []string{"invalid pan", "invalid application", "no record found", "record not found", "details not found", "no data found"}},
		{models.StatusNotAllotted, []string{"not allotted", "non-allottee", "non allottee", "not been allotted", "no shares allotted", "non-allotte"}},
		{models.StatusResultNotPublished, []string{"not yet published", "not published", "yet to be finalised", "yet to be finalized", "not yet available", "awaited"}},
		{models.StatusPending, []string{"under process", "in progress", "processing"}},
		{models.StatusAllotted, []string{"allotted", "alloted", "allotment of"}},
	}

	for _, pattern := range patterns {
		for _, keyword := range pattern.keywords {
			if strings.Contains(text, keyword) {
				return pattern.status, true
			}
		}
	}
	return "", false
}

// resultFromFields turns label/value pairs plus the page text into a normalized result
func (b *BaseRegistrarAdapter) resultFromFields(params models.AllotmentCheckParams, fields map[string]string, pageText, raw string) models.AllotmentResult {
	sharesText, hasShares := lookupFirst(fields,
		[]string{"allot", "share"}, []string{"allot", "securit"}, []string{"allot", "qty"},
		[]string{"allotted"}, []string{"alloted"})
	shares, sharesParsed := b.utility.ParseIndianNumber(sharesText)

	// A parsed share count is the registrar's outcome; free text only decides without one.
	// Remarks such as "refund for securities not allotted" appear on allotted pages too.
	status, classified := b.ClassifyOutcome(pageText)
	switch {
	case hasShares && sharesParsed:
		if shares == 0 {
			status = models.StatusNotAllotted
		} else {
			status = models.StatusAllotted
		}
	case !classified:
		return b.errorResult(params, shared.NewServiceError(shared.ErrorCategoryProcessing, shared.CodeParseFailure,
			"no recognisable allotment outcome", string(b.registrar), "parse", false, nil), raw)
	}

	var result models.AllotmentResult
	switch status {
	case models.StatusAllotted:
		blockedText, _ := lookupFirst(fields, []string{"block"}, []string{"adjusted", "amount"}, []string{"amount", "paid"})
		refundText, _ := lookupField(fields, "refund")
		result = b.allottedResult(params, shares, b.ParseAmount(blockedText), b.ParseAmount(refundText))
	case models.StatusInvalidDetails:
		result = b.newResult(params, status, recordNotFoundMessage)
	default:
		result = b.newResult(params, status, "")
	}

	if appNo, ok := lookupFirst(fields, []string{"application", "no"}, []string{"application", "number"}); ok && appNo != "" {
		result.ApplicationNumber = appNo
	}
	if dpID, ok := lookupField(fields, "dp id"); ok {
		result.DPID = dpID
	}
	if clientID, ok := lookupField(fields, "client id"); ok {
		result.ClientID = clientID
	}
	result.RawData = raw
	return result
}

// parseHTMLResult parses a registrar HTML fragment into a result
func (b *BaseRegistrarAdapter) parseHTMLResult(params models.AllotmentCheckParams, markup string) models.AllotmentResult {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return b.errorResult(params, shared.WrapError(err, shared.ErrorCategoryProcessing, shared.CodeParseFailure, string(b.registrar), "parse", false), markup)
	}

	fields := b.ExtractLabelValues(doc)
	return b.resultFromFields(params, fields, doc.Text(), markup)
}

// recoverToError converts a panic in registrar parsing into an ERROR result
func (b *BaseRegistrarAdapter) recoverToError(params models.AllotmentCheckParams, result *models.AllotmentResult) {
	if r := recover(); r != nil {
		*result = b.errorResult(params, fmt.Errorf("panic while checking allotment: %v", r), "")
	}
}
