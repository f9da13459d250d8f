package services

import (
	"html"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AllotmentDateLayout is the display format used for master-directory allotment dates
const AllotmentDateLayout = "02 Jan 2006"

var (
	nonAlnumSpaceRegex  = regexp.MustCompile(`[^a-z0-9\s]`)
	nonAlnumRegex       = regexp.MustCompile(`[^a-z0-9]+`)
	whitespaceRegex     = regexp.MustCompile(`\s+`)
	htmlTagRegex        = regexp.MustCompile(`<[^>]*>`)
	currencyRegex       = regexp.MustCompile(`[₹$,\s]|Rs\.?|INR`)
	firstNumberRegex    = regexp.MustCompile(`\d+(\.\d+)?`)
	placeholderRegex    = regexp.MustCompile(`(?i)select|choose|click|---`)
	legalSuffixes       = []string{" ltd.", " ltd", " limited", " pvt.", " pvt", " private", " ipo"}
	allotmentDateLayout = []string{
		AllotmentDateLayout,
		"2 Jan 2006",
		"02 January 2006",
		"Jan 2, 2006",
		"January 2, 2006",
		"02-Jan-2006",
		"02-01-2006",
		"02/01/2006",
		"2006-01-02",
	}
)

// UtilityService provides text normalization and registrar-response parsing helpers
type UtilityService struct{}

// NewUtilityService creates a new utility service instance
func NewUtilityService() *UtilityService {
	return &UtilityService{}
}

// NormalizeIPOName normalizes an IPO name for matching.
// Lowercases, strips trailing legal suffixes (repeatedly, so "xyz pvt ltd" -> "xyz") and punctuation.
func (s *UtilityService) NormalizeIPOName(name string) string {
	normalized := strings.ToLower(strings.TrimSpace(name))

	for trimmed := true; trimmed; {
		trimmed = false
		for _, suffix := range legalSuffixes {
			if strings.HasSuffix(normalized, suffix) {
				normalized = strings.TrimSpace(strings.TrimSuffix(normalized, suffix))
				trimmed = true
			}
		}
	}

	normalized = nonAlnumSpaceRegex.ReplaceAllString(normalized, "")
	normalized = whitespaceRegex.ReplaceAllString(normalized, " ")

	return strings.TrimSpace(normalized)
}

// GenerateSlug generates a URL-friendly id fragment from an IPO name
func (s *UtilityService) GenerateSlug(name string) string {
	slug := nonAlnumRegex.ReplaceAllString(s.NormalizeIPOName(name), "-")
	return strings.Trim(slug, "-")
}

// NamesMatch reports whether two IPO names refer to the same issue.
// Normalized names are compared by containment in either direction; names
// shorter than four characters after normalization never match anything.
func (s *UtilityService) NamesMatch(a, b string) bool {
	na, nb := s.NormalizeIPOName(a), s.NormalizeIPOName(b)
	if len(na) < 4 || len(nb) < 4 {
		return false
	}
	return strings.Contains(na, nb) || strings.Contains(nb, na)
}

// SanitizeHTMLText decodes entities, strips tags and collapses whitespace
func (s *UtilityService) SanitizeHTMLText(text string) string {
	if text == "" {
		return ""
	}

	text = htmlTagRegex.ReplaceAllString(text, " ")
	text = html.UnescapeString(text)
	text = strings.ReplaceAll(text, "\u00a0", " ")
	text = whitespaceRegex.ReplaceAllString(text, " ")

	return strings.TrimSpace(text)
}

// ParseIndianNumber parses an integer such as "1,00,000" or "₹ 2,250"; ok is false if no digits are present
func (s *UtilityService) ParseIndianNumber(text string) (int, bool) {
	match := firstNumberRegex.FindString(currencyRegex.ReplaceAllString(text, ""))
	if match == "" {
		return 0, false
	}
	if dot := strings.IndexByte(match, '.'); dot >= 0 {
		match = match[:dot]
	}

	value, err := strconv.Atoi(match)
	if err != nil || value < 0 {
		return 0, false
	}
	return value, true
}

// ParseAmount parses a rupee amount into a non-negative decimal
func (s *UtilityService) ParseAmount(text string) (decimal.Decimal, bool) {
	match := firstNumberRegex.FindString(currencyRegex.ReplaceAllString(text, ""))
	if match == "" {
		return decimal.Zero, false
	}

	value, err := decimal.NewFromString(match)
	if err != nil || value.IsNegative() {
		return decimal.Zero, false
	}
	return value, true
}

// ParseAllotmentDate parses a master-directory or registrar date string
func (s *UtilityService) ParseAllotmentDate(dateStr string) (time.Time, bool) {
	dateStr = whitespaceRegex.ReplaceAllString(strings.TrimSpace(dateStr), " ")
	if s.IsNotAvailable(dateStr) {
		return time.Time{}, false
	}

	for _, layout := range allotmentDateLayout {
		if t, err := time.ParseInLocation(layout, dateStr, time.Local); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// FormatAllotmentDate renders t in the directory's display format
func (s *UtilityService) FormatAllotmentDate(t time.Time) string {
	return t.Format(AllotmentDateLayout)
}

// IsPlaceholderOption detects "Select IPO", "-- choose --" style dropdown entries
func (s *UtilityService) IsPlaceholderOption(text string) bool {
	text = strings.TrimSpace(text)
	return text == "" || placeholderRegex.MatchString(text)
}

// IsPlausibleIPOName filters scraped names before they become directory entries
func (s *UtilityService) IsPlausibleIPOName(name string) bool {
	name = strings.TrimSpace(name)
	return len(name) > 5 && !strings.Contains(strings.ToLower(name), "sample")
}

// IsNotAvailable checks if a value indicates "not available"
func (s *UtilityService) IsNotAvailable(text string) bool {
	text = strings.ToLower(strings.TrimSpace(text))

	notAvailableValues := []string{
		"tba", "to be announced", "tbd", "n/a", "na",
		"not available", "awaited", "--", "-", "", "nil", "null",
	}

	for _, na := range notAvailableValues {
		if text == na {
			return true
		}
	}
	return false
}
