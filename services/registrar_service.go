package services

import (
	"net/url"
	"strings"

	"github.com/fenilmodi00/ipo-allotment/models"
)

var registrarNames = map[models.RegistrarType]string{
	models.RegistrarLinkIntime: "Link Intime",
	models.RegistrarKFintech:   "KFintech",
	models.RegistrarBigshare:   "Bigshare Services",
	models.RegistrarMaashitla:  "Maashitla Securities",
}

// allotment portals shown to users
var registrarURLs = map[models.RegistrarType]string{
	models.RegistrarLinkIntime: "https://linkintime.co.in/initial_offer/public-issues.html",
	models.RegistrarKFintech:   "https://kosmic.kfintech.com/ipostatus/",
	models.RegistrarBigshare:   "https://www.bigshareonline.com/ipo_Allotment.html",
	models.RegistrarMaashitla:  "https://maashitla.com/allotment-status",
}

// pages whose IPO dropdown lists the issues a registrar currently serves
var discoveryURLs = map[models.RegistrarType]string{
	models.RegistrarLinkIntime: "https://linkintime.co.in/MIPO/Ipoallotment.html",
	models.RegistrarKFintech:   "https://kosmic.kfintech.com/ipostatus/",
	models.RegistrarBigshare:   "https://www.bigshareonline.com/ipo_Allotment.html",
}

// RegistrarService resolves free-text registrar names and registrar portal URLs
type RegistrarService struct{}

// NewRegistrarService creates a registrar directory
func NewRegistrarService() *RegistrarService {
	return &RegistrarService{}
}

// Identify maps a raw registrar name such as "Link Intime India Pvt Ltd" to a registrar.
// Unrecognised names fall back to the unknown type with a web search URL.
func (s *RegistrarService) Identify(rawName string) models.RegistrarInfo {
	lowerName := strings.ToLower(rawName)

	switch {
	case strings.Contains(lowerName, "link") && strings.Contains(lowerName, "intime"):
		return s.Info(models.RegistrarLinkIntime)
	case strings.Contains(lowerName, "kfin"), strings.Contains(lowerName, "kosmic"), strings.Contains(lowerName, "karvy"):
		return s.Info(models.RegistrarKFintech)
	case strings.Contains(lowerName, "bigshare"):
		return s.Info(models.RegistrarBigshare)
	case strings.Contains(lowerName, "maashitla"):
		return s.Info(models.RegistrarMaashitla)
	}

	name := strings.TrimSpace(rawName)
	if name == "" {
		name = "Unknown Registrar"
	}
	return models.RegistrarInfo{
		Name: name,
		Type: models.RegistrarUnknown,
		URL:  "https://www.google.com/search?q=" + url.QueryEscape(rawName+" allotment status"),
	}
}

// Info returns display name and portal URL for a registrar type
func (s *RegistrarService) Info(registrar models.RegistrarType) models.RegistrarInfo {
	name, exists := registrarNames[registrar]
	if !exists {
		name = string(registrar)
	}
	return models.RegistrarInfo{
		Name: name,
		Type: registrar,
		URL:  registrarURLs[registrar],
	}
}

// URL returns the allotment portal for registrar, or "" if unknown
func (s *RegistrarService) URL(registrar models.RegistrarType) string {
	return registrarURLs[registrar]
}

// DiscoveryURL returns the listing page polled for registrar, or "" if it is not polled
func (s *RegistrarService) DiscoveryURL(registrar models.RegistrarType) string {
	return discoveryURLs[registrar]
}

// DiscoverableRegistrars lists registrars with a listing page, in polling order
func (s *RegistrarService) DiscoverableRegistrars() []models.RegistrarType {
	return []models.RegistrarType{
		models.RegistrarLinkIntime,
		models.RegistrarKFintech,
		models.RegistrarBigshare,
	}
}
