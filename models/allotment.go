package models

import (
	"github.com/shopspring/decimal"
)

// RegistrarType identifies the registrar that publishes allotment results for an IPO
type RegistrarType string

const (
	RegistrarLinkIntime RegistrarType = "link-intime"
	RegistrarKFintech   RegistrarType = "kfintech"
	RegistrarBigshare   RegistrarType = "bigshare"
	RegistrarMaashitla  RegistrarType = "maashitla"
	RegistrarUnknown    RegistrarType = "unknown"
)

// AllotmentStatus is the normalized outcome of an allotment check
type AllotmentStatus string

const (
	StatusAllotted           AllotmentStatus = "ALLOTTED"
	StatusNotAllotted        AllotmentStatus = "NOT_ALLOTTED"
	StatusPending            AllotmentStatus = "PENDING"
	StatusInvalidDetails     AllotmentStatus = "INVALID_DETAILS"
	StatusResultNotPublished AllotmentStatus = "RESULT_NOT_PUBLISHED"
	StatusError              AllotmentStatus = "ERROR"
)

// PublicationStatus tracks whether a registrar has published results for an IPO.
// Transitions only move forward: UPCOMING -> PENDING -> PUBLISHED.
type PublicationStatus string

const (
	PublicationUpcoming  PublicationStatus = "UPCOMING"
	PublicationPending   PublicationStatus = "PENDING"
	PublicationPublished PublicationStatus = "PUBLISHED"
)

// Rank orders publication states; unknown values rank below UPCOMING
func (s PublicationStatus) Rank() int {
	switch s {
	case PublicationUpcoming:
		return 1
	case PublicationPending:
		return 2
	case PublicationPublished:
		return 3
	default:
		return 0
	}
}

// IsValid reports whether s is one of the known publication states
func (s PublicationStatus) IsValid() bool {
	return s.Rank() > 0
}

// AllotmentCheckParams is the input of a single allotment check
type AllotmentCheckParams struct {
	IPOID             string `json:"ipo_id"`
	PAN               string `json:"pan"`
	ApplicationNumber string `json:"application_number,omitempty"`

	// CompanyCode is the registrar's own identifier for the issue, filled from the directory
	CompanyCode string `json:"-"`
}

// RegistrarCompanyCode returns the code the registrar portal keys the issue on,
// falling back to the directory id when no code is known
func (p AllotmentCheckParams) RegistrarCompanyCode() string {
	if p.CompanyCode != "" {
		return p.CompanyCode
	}
	return p.IPOID
}

// AllotmentResult is the registrar-agnostic allotment outcome.
// A produced result is never mutated; callers replace cached values instead.
type AllotmentResult struct {
	Status            AllotmentStatus  `json:"status"`
	IPOID             string           `json:"ipo_id"`
	IPOName           string           `json:"ipo_name"`
	ApplicationNumber string           `json:"application_number,omitempty"`
	SharesAllotted    *int             `json:"shares_allotted,omitempty"`
	AmountBlocked     *decimal.Decimal `json:"amount_blocked,omitempty"`
	RefundAmount      *decimal.Decimal `json:"refund_amount,omitempty"`
	DPID              string           `json:"dp_id,omitempty"`
	ClientID          string           `json:"client_id,omitempty"`
	CheckedAt         int64            `json:"checked_at"` // epoch milliseconds
	Message           string           `json:"message"`

	// RawData carries the registrar response for diagnostics only
	RawData string `json:"-"`
}

// IPOMasterEntry maps an IPO to its registrar and publication state
type IPOMasterEntry struct {
	ID              string            `json:"id"`
	Name            string            `json:"name"`
	Symbol          string            `json:"symbol"`
	Registrar       RegistrarType     `json:"registrar"`
	RegistrarURL    string            `json:"registrar_url"`
	AllotmentDate   string            `json:"allotment_date"`
	AllotmentStatus PublicationStatus `json:"allotment_status"`
	CompanyCode     string            `json:"company_code,omitempty"`
	LastChecked     *int64            `json:"last_checked,omitempty"` // epoch milliseconds
}

// AllotmentHistory is an append-only record of a completed registrar check.
// PANHash is always a SHA-256 digest, never the raw PAN.
type AllotmentHistory struct {
	ID        string          `json:"id"`
	IPOID     string          `json:"ipo_id"`
	IPOName   string          `json:"ipo_name"`
	PANHash   string          `json:"pan_hash"`
	Result    AllotmentResult `json:"result"`
	Timestamp int64           `json:"timestamp"`
}

// RegistrarInfo describes a registrar resolved from free text
type RegistrarInfo struct {
	Name string        `json:"name"`
	Type RegistrarType `json:"type"`
	URL  string        `json:"url"`
}
