package services

import (
	"context"
	"sync"
	"time"

	"github.com/fenilmodi00/ipo-allotment/models"
	"github.com/fenilmodi00/ipo-allotment/shared"
	"github.com/sirupsen/logrus"
)

// HistoryPersistence stores the history log outside the process
type HistoryPersistence interface {
	AppendHistory(ctx context.Context, entry models.AllotmentHistory, limit int) error
	LoadHistory(ctx context.Context, limit int) ([]models.AllotmentHistory, error)
	ClearHistory(ctx context.Context) error
}

// HistoryStore is a bounded, append-only log of completed registrar checks.
// When full, the oldest entry is evicted first.
type HistoryStore struct {
	mutex       sync.RWMutex
	entries     []models.AllotmentHistory
	limit       int
	persistence HistoryPersistence
	logger      *logrus.Entry
}

// NewHistoryStore creates a history log retaining at most limit entries
func NewHistoryStore(limit int) *HistoryStore {
	if limit <= 0 {
		limit = 50
	}
	return &HistoryStore{
		entries: make([]models.AllotmentHistory, 0, limit),
		limit:   limit,
		logger:  logrus.WithField("component", "HistoryStore"),
	}
}

// SetPersistence enables write-through persistence of history entries
func (h *HistoryStore) SetPersistence(persistence HistoryPersistence) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.persistence = persistence
}

// Limit returns the maximum number of retained entries
func (h *HistoryStore) Limit() int {
	return h.limit
}

// Append adds entry, evicting the oldest entries beyond the limit
func (h *HistoryStore) Append(ctx context.Context, entry models.AllotmentHistory) {
	entry.Result = cloneResult(entry.Result)

	h.mutex.Lock()
	h.entries = append(h.entries, entry)
	if overflow := len(h.entries) - h.limit; overflow > 0 {
		trimmed := make([]models.AllotmentHistory, h.limit)
		copy(trimmed, h.entries[overflow:])
		h.entries = trimmed
	}
	persistence := h.persistence
	h.mutex.Unlock()

	if persistence == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := persistence.AppendHistory(ctx, entry, h.limit); err != nil {
		h.logger.WithField("history_id", entry.ID).WithError(err).Error("Failed to persist history entry")
	}
}

func cloneHistory(entry models.AllotmentHistory) models.AllotmentHistory {
	entry.Result = cloneResult(entry.Result)
	return entry
}

// FindByPANHash returns the entries recorded for one identity hash, oldest first
func (h *HistoryStore) FindByPANHash(panHash string) []models.AllotmentHistory {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	result := make([]models.AllotmentHistory, 0)
	for _, entry := range h.entries {
		if entry.PANHash == panHash {
			result = append(result, cloneHistory(entry))
		}
	}
	return result
}

// All returns a copy of the log, oldest first
func (h *HistoryStore) All() []models.AllotmentHistory {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	result := make([]models.AllotmentHistory, len(h.entries))
	for i, entry := range h.entries {
		result[i] = cloneHistory(entry)
	}
	return result
}

// Len returns the number of retained entries
func (h *HistoryStore) Len() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.entries)
}

// Clear wipes the log in memory and in storage
func (h *HistoryStore) Clear(ctx context.Context) error {
	h.mutex.Lock()
	h.entries = make([]models.AllotmentHistory, 0, h.limit)
	persistence := h.persistence
	h.mutex.Unlock()

	if persistence == nil {
		return nil
	}
	if err := persistence.ClearHistory(ctx); err != nil {
		return shared.WrapError(err, shared.ErrorCategoryDatabase, shared.CodePersistenceFailure, "HistoryStore", "clear", true)
	}
	return nil
}

// Load replaces the in-memory log with the most recent persisted entries
func (h *HistoryStore) Load(ctx context.Context) error {
	h.mutex.RLock()
	persistence := h.persistence
	h.mutex.RUnlock()
	if persistence == nil {
		return nil
	}

	stored, err := persistence.LoadHistory(ctx, h.limit)
	if err != nil {
		return shared.WrapError(err, shared.ErrorCategoryDatabase, shared.CodePersistenceFailure, "HistoryStore", "load", true)
	}
	if len(stored) > h.limit {
		stored = stored[len(stored)-h.limit:]
	}

	h.mutex.Lock()
	h.entries = append(make([]models.AllotmentHistory, 0, h.limit), stored...)
	h.mutex.Unlock()

	h.logger.WithField("entries", len(stored)).Info("Hydrated allotment history from storage")
	return nil
}
