package models

import "time"

// Routing keys for allotment discovery events
const (
	EventAllotmentPublished = "allotment.published"
	EventIPODiscovered      = "ipo.discovered"
)

// AllotmentPublishedEvent is emitted when a PENDING IPO flips to PUBLISHED
type AllotmentPublishedEvent struct {
	IPOID      string        `json:"ipo_id"`
	IPOName    string        `json:"ipo_name"`
	Registrar  RegistrarType `json:"registrar"`
	Source     string        `json:"source"` // "portal" or "schedule"
	OccurredAt time.Time     `json:"occurred_at"`
}

// IPODiscoveredEvent is emitted when a registrar portal lists an IPO the directory did not know
type IPODiscoveredEvent struct {
	IPOID        string        `json:"ipo_id"`
	IPOName      string        `json:"ipo_name"`
	Registrar    RegistrarType `json:"registrar"`
	RegistrarURL string        `json:"registrar_url"`
	OccurredAt   time.Time     `json:"occurred_at"`
}
