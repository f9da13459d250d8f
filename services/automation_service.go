package services

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/fenilmodi00/ipo-allotment/models"
	"github.com/fenilmodi00/ipo-allotment/shared"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	sourcePortal    = "portal"
	sourceSchedule  = "schedule"
	sourceSimulated = "simulated"
)

// defaultSimulatedDiscoveries stand in for a real detector when a portal cannot be read
func defaultSimulatedDiscoveries() map[models.RegistrarType][]string {
	return map[models.RegistrarType][]string{
		models.RegistrarLinkIntime: {"Tata Technologies Ltd", "Gandhar Oil Refinery"},
		models.RegistrarKFintech:   {"IREDA Limited", "Fedbank Financial Services"},
		models.RegistrarBigshare:   {"DOMS Industries Limited"},
	}
}

// RegistrarSyncResult describes what one registrar poll changed
type RegistrarSyncResult struct {
	Registrar  models.RegistrarType `json:"registrar"`
	Source     string               `json:"source"` // "portal" or "simulated"
	NamesFound int                  `json:"names_found"`
	Published  []string             `json:"published"`
	Discovered []string             `json:"discovered"`
	Error      string               `json:"error,omitempty"`
}

// SyncReport summarises one discovery run
type SyncReport struct {
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt time.Time             `json:"finished_at"`
	Skipped    bool                  `json:"skipped"`
	Registrars []RegistrarSyncResult `json:"registrars"`
}

// AutomationService polls registrar portals and reconciles their IPO listings
// against the master directory. Runs are non-reentrant.
type AutomationService struct {
	master         *IPOMasterService
	registrars     *RegistrarService
	defaultFetcher shared.HTTPFetcher
	fetchers       map[models.RegistrarType]shared.HTTPFetcher
	publisher      shared.EventPublisher
	utility        *UtilityService
	timeout        time.Duration
	clock          func() time.Time
	simulated      map[models.RegistrarType][]string
	running        atomic.Bool
	lastReport     *SyncReport
	reportMutex    sync.RWMutex
	metrics        *shared.ServiceMetrics
	logger         *logrus.Entry
}

// NewAutomationService creates a discovery poller that fetches portals through fetcher
func NewAutomationService(master *IPOMasterService, registrars *RegistrarService, fetcher shared.HTTPFetcher, publisher shared.EventPublisher, timeout time.Duration) *AutomationService {
	if publisher == nil {
		publisher = shared.NoopPublisher{}
	}
	if timeout <= 0 {
		timeout = 12 * time.Second
	}
	return &AutomationService{
		master:         master,
		registrars:     registrars,
		defaultFetcher: fetcher,
		fetchers:       make(map[models.RegistrarType]shared.HTTPFetcher),
		publisher:      publisher,
		utility:        NewUtilityService(),
		timeout:        timeout,
		clock:          time.Now,
		simulated:      defaultSimulatedDiscoveries(),
		metrics:        shared.NewServiceMetrics("Automation_Service"),
		logger:         logrus.WithField("component", "AutomationService"),
	}
}

// SetFetcher overrides the fetcher for one registrar, e.g. a headless browser for JS portals
func (s *AutomationService) SetFetcher(registrar models.RegistrarType, fetcher shared.HTTPFetcher) {
	s.fetchers[registrar] = fetcher
}

// SetClock overrides the time source used by the date-driven fallback
func (s *AutomationService) SetClock(clock func() time.Time) {
	s.clock = clock
}

// SetSimulatedDiscoveries replaces the names registered when a portal cannot be read
func (s *AutomationService) SetSimulatedDiscoveries(names map[models.RegistrarType][]string) {
	s.simulated = names
}

// Metrics exposes sync counters for the admin surface
func (s *AutomationService) Metrics() *shared.ServiceMetrics {
	return s.metrics
}

// IsRunning reports whether a sync is in flight
func (s *AutomationService) IsRunning() bool {
	return s.running.Load()
}

// LastReport returns the report of the most recent completed sync, or nil
func (s *AutomationService) LastReport() *SyncReport {
	s.reportMutex.RLock()
	defer s.reportMutex.RUnlock()
	return s.lastReport
}

// SyncAllotmentStatuses polls every discoverable registrar concurrently.
// If a sync is already running the call returns immediately with Skipped set.
func (s *AutomationService) SyncAllotmentStatuses(ctx context.Context) *SyncReport {
	if !s.running.CompareAndSwap(false, true) {
		s.logger.Debug("Allotment sync already running, skipping")
		return &SyncReport{StartedAt: s.clock(), FinishedAt: s.clock(), Skipped: true}
	}
	defer s.running.Store(false)

	start := time.Now()
	report := &SyncReport{StartedAt: s.clock()}
	registrars := s.registrars.DiscoverableRegistrars()
	results := make([]RegistrarSyncResult, len(registrars))

	s.logger.WithField("registrars", len(registrars)).Info("Starting allotment automation sync")

	var group errgroup.Group
	for i, registrar := range registrars {
		group.Go(func() error {
			results[i] = s.syncRegistrar(ctx, registrar)
			return nil
		})
	}
	_ = group.Wait()

	report.Registrars = results
	report.FinishedAt = s.clock()

	published, discovered := 0, 0
	for _, result := range results {
		published += len(result.Published)
		discovered += len(result.Discovered)
	}
	s.metrics.RecordRequest(true, time.Since(start))
	s.metrics.AddCustomCounter("published_flips", int64(published))
	s.metrics.AddCustomCounter("discovered_ipos", int64(discovered))

	s.reportMutex.Lock()
	s.lastReport = report
	s.reportMutex.Unlock()

	s.logger.WithFields(logrus.Fields{
		"published":  published,
		"discovered": discovered,
		"duration":   time.Since(start),
	}).Info("Allotment automation sync complete")

	return report
}

func (s *AutomationService) fetcherFor(registrar models.RegistrarType) shared.HTTPFetcher {
	if fetcher, exists := s.fetchers[registrar]; exists {
		return fetcher
	}
	return s.defaultFetcher
}

// syncRegistrar polls one portal; any failure degrades to simulated discovery
func (s *AutomationService) syncRegistrar(ctx context.Context, registrar models.RegistrarType) (result RegistrarSyncResult) {
	url := s.registrars.DiscoveryURL(registrar)
	logger := s.logger.WithFields(logrus.Fields{
		"registrar": registrar,
		"url":       url,
	})

	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic while syncing %s: %v", registrar, r)
			logger.WithError(err).Error("Registrar sync panicked")
			result = s.simulateDiscovery(ctx, registrar, url, err)
		}
	}()

	logger.Debug("Polling registrar portal")

	names, err := s.fetchIPONames(ctx, registrar, url)
	if err != nil {
		logger.WithError(err).Warn("Registrar portal unavailable, using simulated discovery")
		return s.simulateDiscovery(ctx, registrar, url, err)
	}
	if len(names) == 0 {
		logger.Warn("Registrar portal listed no IPO names")
	}

	return s.reconcile(ctx, registrar, url, names)
}

func (s *AutomationService) fetchIPONames(ctx context.Context, registrar models.RegistrarType, url string) ([]string, error) {
	fetcher := s.fetcherFor(registrar)
	if fetcher == nil || url == "" {
		return nil, fmt.Errorf("no discovery source configured for %s", registrar)
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	response, err := fetcher.Get(ctx, url, map[string]string{"Cache-Control": "no-cache"})
	if err != nil {
		return nil, shared.WrapError(err, shared.ErrorCategoryNetwork, shared.CodeRegistrarUnavailable, "AutomationService", "fetch", true)
	}
	if !response.OK() {
		return nil, shared.NewServiceError(shared.ErrorCategoryNetwork, shared.CodeRegistrarUnavailable,
			fmt.Sprintf("portal responded with status %d", response.StatusCode), "AutomationService", "fetch", true, nil)
	}

	return s.ExtractIPONames(response.Body)
}

// ExtractIPONames returns the distinct non-placeholder <option> texts of a portal page
func (s *AutomationService) ExtractIPONames(body []byte) ([]string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, shared.WrapError(err, shared.ErrorCategoryProcessing, shared.CodeParseFailure, "AutomationService", "parse", false)
	}

	seen := make(map[string]bool)
	names := make([]string, 0)
	doc.Find("option").Each(func(_ int, option *goquery.Selection) {
		name := s.utility.SanitizeHTMLText(option.Text())
		if s.utility.IsPlaceholderOption(name) || seen[name] {
			return
		}
		seen[name] = true
		names = append(names, name)
	})
	return names, nil
}

// reconcile flips matching PENDING entries and registers unknown plausible names
func (s *AutomationService) reconcile(ctx context.Context, registrar models.RegistrarType, url string, names []string) RegistrarSyncResult {
	result := RegistrarSyncResult{
		Registrar:  registrar,
		Source:     sourcePortal,
		NamesFound: len(names),
		Published:  []string{},
		Discovered: []string{},
	}

	for _, entry := range s.master.GetIPOsByRegistrar(registrar, models.PublicationPending) {
		for _, name := range names {
			if !s.utility.NamesMatch(name, entry.Name) {
				continue
			}
			if s.publish(ctx, entry, sourcePortal) {
				result.Published = append(result.Published, entry.ID)
			}
			break
		}
	}

	known := s.master.GetAllIPOs()
	for _, name := range names {
		if !s.utility.IsPlausibleIPOName(name) || s.matchesKnown(name, known) {
			continue
		}
		if entry, created := s.master.registerDynamic(name, registrar, url, ""); created {
			s.announceDiscovery(ctx, entry)
			result.Discovered = append(result.Discovered, entry.ID)
			known = append(known, entry)
		}
	}

	return result
}

func (s *AutomationService) matchesKnown(name string, known []models.IPOMasterEntry) bool {
	for _, entry := range known {
		if s.utility.NamesMatch(name, entry.Name) {
			return true
		}
	}
	return false
}

// simulateDiscovery publishes PENDING entries whose allotment date has passed and
// registers the registrar's placeholder discoveries
func (s *AutomationService) simulateDiscovery(ctx context.Context, registrar models.RegistrarType, url string, cause error) RegistrarSyncResult {
	s.metrics.IncrementCustomCounter("simulated_fallbacks")

	result := RegistrarSyncResult{
		Registrar:  registrar,
		Source:     sourceSimulated,
		Published:  []string{},
		Discovered: []string{},
	}
	if cause != nil {
		result.Error = cause.Error()
	}

	now := s.clock()
	for _, entry := range s.master.GetIPOsByRegistrar(registrar, models.PublicationPending) {
		allotmentDate, ok := s.utility.ParseAllotmentDate(entry.AllotmentDate)
		if !ok || now.Before(allotmentDate) {
			continue
		}
		if s.publish(ctx, entry, sourceSchedule) {
			result.Published = append(result.Published, entry.ID)
		}
	}

	for _, name := range s.simulated[registrar] {
		if entry, created := s.master.registerDynamic(name, registrar, url, ""); created {
			s.announceDiscovery(ctx, entry)
			result.Discovered = append(result.Discovered, entry.ID)
		}
	}

	return result
}

// publish flips entry to PUBLISHED and emits an event when the state changed
func (s *AutomationService) publish(ctx context.Context, entry models.IPOMasterEntry, source string) bool {
	changed, _ := s.master.transitionStatus(entry.ID, models.PublicationPublished)
	if !changed {
		return false
	}

	s.logger.WithFields(logrus.Fields{
		"ipo_id":   entry.ID,
		"ipo_name": entry.Name,
		"source":   source,
	}).Info("Allotment results discovered as published")

	s.emit(ctx, models.EventAllotmentPublished, models.AllotmentPublishedEvent{
		IPOID:      entry.ID,
		IPOName:    entry.Name,
		Registrar:  entry.Registrar,
		Source:     source,
		OccurredAt: s.clock(),
	})
	return true
}

func (s *AutomationService) announceDiscovery(ctx context.Context, entry models.IPOMasterEntry) {
	s.emit(ctx, models.EventIPODiscovered, models.IPODiscoveredEvent{
		IPOID:        entry.ID,
		IPOName:      entry.Name,
		Registrar:    entry.Registrar,
		RegistrarURL: entry.RegistrarURL,
		OccurredAt:   s.clock(),
	})
}

func (s *AutomationService) emit(ctx context.Context, routingKey string, event interface{}) {
	if err := s.publisher.Publish(ctx, routingKey, event); err != nil {
		s.logger.WithField("routing_key", routingKey).WithError(err).Warn("Failed to publish discovery event")
	}
}
