package services

import (
	"context"
	"fmt"
	"time"

	"github.com/fenilmodi00/ipo-allotment/models"
	"github.com/fenilmodi00/ipo-allotment/shared"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

const (
	unknownIPOName     = "Unknown"
	ipoNotFoundMessage = "IPO not found in our database."
)

// AllotmentService is the single entry point for allotment checks.
// It validates the identity, consults the master directory, serves cached results
// and otherwise routes to the registrar adapter, recording a hashed history trail.
type AllotmentService struct {
	master  *IPOMasterService
	factory *RegistrarFactory
	cache   *AllotmentCache
	history *HistoryStore
	hasher  shared.IdentityHasher
	group   singleflight.Group
	clock   func() time.Time
	metrics *shared.ServiceMetrics
	logger  *logrus.Entry
}

// NewAllotmentService wires the resolution service to its collaborators
func NewAllotmentService(master *IPOMasterService, factory *RegistrarFactory, cache *AllotmentCache, history *HistoryStore, hasher shared.IdentityHasher) *AllotmentService {
	if hasher == nil {
		hasher = shared.NewSHA256Hasher()
	}
	return &AllotmentService{
		master:  master,
		factory: factory,
		cache:   cache,
		history: history,
		hasher:  hasher,
		clock:   time.Now,
		metrics: shared.NewServiceMetrics("Allotment_Service"),
		logger:  logrus.WithField("component", "AllotmentService"),
	}
}

// SetClock overrides the time source used to stamp results
func (s *AllotmentService) SetClock(clock func() time.Time) {
	s.clock = clock
}

// Metrics exposes request counters for the admin surface
func (s *AllotmentService) Metrics() *shared.ServiceMetrics {
	return s.metrics
}

// Cache exposes the result cache to maintenance jobs
func (s *AllotmentService) Cache() *AllotmentCache {
	return s.cache
}

// CheckAllotment resolves the allotment outcome for params. It never fails:
// every outcome, including internal failures, is expressed as a result status.
func (s *AllotmentService) CheckAllotment(ctx context.Context, params models.AllotmentCheckParams) models.AllotmentResult {
	start := time.Now()
	result := s.resolve(ctx, params)

	s.metrics.RecordRequest(result.Status != models.StatusError, time.Since(start))
	s.metrics.IncrementCustomCounter("status_" + string(result.Status))
	return result
}

func (s *AllotmentService) resolve(ctx context.Context, params models.AllotmentCheckParams) models.AllotmentResult {
	if !IsValidPAN(params.PAN) {
		return s.terminal(params.IPOID, unknownIPOName, models.StatusInvalidDetails, invalidPANMessage)
	}

	entry, found := s.master.GetIPO(params.IPOID)
	if !found {
		return s.terminal(params.IPOID, unknownIPOName, models.StatusError, ipoNotFoundMessage)
	}

	if entry.AllotmentStatus != models.PublicationPublished {
		return s.terminal(entry.ID, entry.Name, models.StatusResultNotPublished,
			fmt.Sprintf("Allotment results will be published on %s. Please check back later.", entry.AllotmentDate))
	}

	panHash := s.hasher.Hash(params.PAN)
	key := CacheKey(entry.ID, panHash)
	logger := s.logger.WithFields(logrus.Fields{
		"ipo_id":    entry.ID,
		"registrar": entry.Registrar,
		"pan_hash":  shared.HashPrefix(panHash),
	})

	if cached, ok := s.cache.Get(key); ok {
		s.metrics.IncrementCustomCounter("cache_hits")
		logger.Debug("Returning cached allotment result")
		return cached
	}

	if !s.factory.IsSupported(entry.Registrar) {
		return s.terminal(entry.ID, entry.Name, models.StatusError,
			fmt.Sprintf("%s registrar is not yet supported. Please check on the official registrar website.", entry.Registrar))
	}

	// Concurrent first-time requests for the same key share one registrar round-trip.
	value, _, _ := s.group.Do(key, func() (interface{}, error) {
		if cached, ok := s.cache.Get(key); ok {
			return cached, nil
		}
		return s.fetchFromRegistrar(context.WithoutCancel(ctx), entry, params, panHash, key, logger), nil
	})
	// Coalesced callers each get their own copy of the shared result.
	return cloneResult(value.(models.AllotmentResult))
}

func (s *AllotmentService) fetchFromRegistrar(ctx context.Context, entry models.IPOMasterEntry, params models.AllotmentCheckParams, panHash, key string, logger *logrus.Entry) models.AllotmentResult {
	adapter, err := s.factory.Resolve(entry.Registrar)
	if err != nil {
		logger.WithError(err).Error("Failed to resolve registrar adapter")
		return s.terminal(entry.ID, entry.Name, models.StatusError, registrarFailureMessage)
	}

	s.metrics.IncrementCustomCounter("adapter_calls")
	result, err := invokeAdapter(ctx, adapter, models.AllotmentCheckParams{
		IPOID:             entry.ID,
		PAN:               params.PAN,
		ApplicationNumber: params.ApplicationNumber,
		CompanyCode:       entry.CompanyCode,
	})
	now := s.clock()
	s.master.MarkChecked(entry.ID, now)

	if err != nil {
		logger.WithError(err).Error("Registrar adapter failed")
		return s.terminal(entry.ID, entry.Name, models.StatusError, registrarFailureMessage)
	}

	result.IPOID = entry.ID
	result.IPOName = entry.Name
	if result.CheckedAt == 0 {
		result.CheckedAt = now.UnixMilli()
	}
	if result.Message == "" {
		result.Message = DefaultStatusMessage(result)
	}

	logger = logger.WithField("status", result.Status)

	// Failures and input rejections are not remembered: a retry or a corrected
	// application number must reach the registrar again.
	if result.Status == models.StatusError || result.Status == models.StatusInvalidDetails {
		logger.Info("Registrar check completed without a cacheable outcome")
		return result
	}

	s.cache.Set(key, result)
	s.history.Append(ctx, models.AllotmentHistory{
		ID:        uuid.NewString(),
		IPOID:     entry.ID,
		IPOName:   entry.Name,
		PANHash:   panHash,
		Result:    result,
		Timestamp: now.UnixMilli(),
	})

	logger.Info("Allotment check completed")
	return result
}

// invokeAdapter calls the adapter and turns a panic into an error
func invokeAdapter(ctx context.Context, adapter RegistrarAdapter, params models.AllotmentCheckParams) (result models.AllotmentResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("adapter %s panicked: %v", adapter.Name(), r)
		}
	}()
	return adapter.CheckAllotment(ctx, params), nil
}

func (s *AllotmentService) terminal(ipoID, ipoName string, status models.AllotmentStatus, message string) models.AllotmentResult {
	return models.AllotmentResult{
		Status:    status,
		IPOID:     ipoID,
		IPOName:   ipoName,
		CheckedAt: s.clock().UnixMilli(),
		Message:   message,
	}
}

// GetHistory returns the history entries recorded for pan, oldest first
func (s *AllotmentService) GetHistory(ctx context.Context, pan string) []models.AllotmentHistory {
	return s.history.FindByPANHash(s.hasher.Hash(pan))
}

// ClearHistory wipes the history log
func (s *AllotmentService) ClearHistory(ctx context.Context) error {
	s.logger.Info("Clearing allotment history")
	return s.history.Clear(ctx)
}

// GetStatusMessage returns the result's own message or a default for its status
func (s *AllotmentService) GetStatusMessage(result models.AllotmentResult) string {
	if result.Message != "" {
		return result.Message
	}
	return DefaultStatusMessage(result)
}

// DefaultStatusMessage is the user-facing message for a status when none was provided
func DefaultStatusMessage(result models.AllotmentResult) string {
	switch result.Status {
	case models.StatusAllotted:
		shares := 0
		if result.SharesAllotted != nil {
			shares = *result.SharesAllotted
		}
		return fmt.Sprintf("Congratulations! You have been allotted %d shares.", shares)
	case models.StatusNotAllotted:
		return "You have not been allotted shares. Refund will be processed soon."
	case models.StatusPending:
		return "Allotment is still in progress. Please check back later."
	case models.StatusInvalidDetails:
		return "Invalid PAN or Application Number. Please verify your details."
	case models.StatusResultNotPublished:
		return "Allotment results are not yet published."
	default:
		return "Unable to fetch allotment status."
	}
}
