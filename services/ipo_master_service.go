package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/fenilmodi00/ipo-allotment/models"
	"github.com/fenilmodi00/ipo-allotment/shared"
	"github.com/sirupsen/logrus"
)

const (
	dynamicIDPrefix = "dyn-"
	dynamicSymbol   = "AUTO"
)

// MasterPersistence stores master-directory entries outside the process
type MasterPersistence interface {
	UpsertIPO(ctx context.Context, entry models.IPOMasterEntry) error
	LoadIPOs(ctx context.Context) ([]models.IPOMasterEntry, error)
}

// DefaultSeedEntries returns the IPOs the directory starts with
func DefaultSeedEntries() []models.IPOMasterEntry {
	kfintech := "https://kosmic.kfintech.com/ipostatus/"
	linkIntime := "https://linkintime.co.in/MIPO/Ipoallotment.html"
	bigshare := "https://www.bigshareonline.com/ipo_Allotment.html"

	return []models.IPOMasterEntry{
		{ID: "azad-eng", Name: "Azad Engineering Limited", Symbol: "AZAD", Registrar: models.RegistrarKFintech, RegistrarURL: kfintech, AllotmentDate: "26 Dec 2025", AllotmentStatus: models.PublicationPublished},
		{ID: "innova-captab", Name: "Innova Captab Limited", Symbol: "INNOVA", Registrar: models.RegistrarKFintech, RegistrarURL: kfintech, AllotmentDate: "27 Dec 2025", AllotmentStatus: models.PublicationPublished},
		{ID: "suraj-estate", Name: "Suraj Estate Developers", Symbol: "SURAJ", Registrar: models.RegistrarLinkIntime, RegistrarURL: linkIntime, AllotmentDate: "21 Dec 2025", AllotmentStatus: models.PublicationPublished},
		{ID: "muthoot-mf", Name: "Muthoot Microfin Limited", Symbol: "MUTHOOTMF", Registrar: models.RegistrarKFintech, RegistrarURL: kfintech, AllotmentDate: "22 Dec 2025", AllotmentStatus: models.PublicationPublished},
		{ID: "happy-forgings", Name: "Happy Forgings Limited", Symbol: "HAPPY", Registrar: models.RegistrarLinkIntime, RegistrarURL: linkIntime, AllotmentDate: "22 Dec 2025", AllotmentStatus: models.PublicationPublished},
		{ID: "motisons-jewel", Name: "Motisons Jewellers Limited", Symbol: "MOTISONS", Registrar: models.RegistrarLinkIntime, RegistrarURL: linkIntime, AllotmentDate: "22 Dec 2025", AllotmentStatus: models.PublicationPublished},
		{ID: "rbz-jewellers", Name: "RBZ Jewellers Limited", Symbol: "RBZJEWEL", Registrar: models.RegistrarBigshare, RegistrarURL: bigshare, AllotmentDate: "24 Dec 2025", AllotmentStatus: models.PublicationPublished},
		{ID: "nova-tech", Name: "Nova Tech Systems", Symbol: "NOVA", Registrar: models.RegistrarKFintech, RegistrarURL: kfintech, AllotmentDate: "05 Jan 2026", AllotmentStatus: models.PublicationPending},
	}
}

// IPOMasterService is the authoritative IPO -> registrar -> publication-state directory.
// Entries are never deleted and their publication state only moves forward.
type IPOMasterService struct {
	mutex       sync.RWMutex
	entries     []models.IPOMasterEntry
	index       map[string]int
	persistence MasterPersistence
	utility     *UtilityService
	clock       func() time.Time
	logger      *logrus.Entry
}

// NewIPOMasterService creates a directory holding a copy of seed
func NewIPOMasterService(seed []models.IPOMasterEntry) *IPOMasterService {
	s := &IPOMasterService{
		entries: make([]models.IPOMasterEntry, 0, len(seed)),
		index:   make(map[string]int, len(seed)),
		utility: NewUtilityService(),
		clock:   time.Now,
		logger:  logrus.WithField("component", "IPOMasterService"),
	}
	for _, entry := range seed {
		if _, exists := s.index[entry.ID]; exists {
			continue
		}
		s.index[entry.ID] = len(s.entries)
		s.entries = append(s.entries, cloneEntry(entry))
	}
	return s
}

// SetPersistence enables write-through persistence of directory changes
func (s *IPOMasterService) SetPersistence(persistence MasterPersistence) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.persistence = persistence
}

// SetClock overrides the time source used for dynamic entry dates
func (s *IPOMasterService) SetClock(clock func() time.Time) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.clock = clock
}

func cloneEntry(entry models.IPOMasterEntry) models.IPOMasterEntry {
	if entry.LastChecked != nil {
		checked := *entry.LastChecked
		entry.LastChecked = &checked
	}
	return entry
}

// cloneResult copies the result's pointer fields so stored snapshots never alias a caller's value
func cloneResult(result models.AllotmentResult) models.AllotmentResult {
	if result.SharesAllotted != nil {
		shares := *result.SharesAllotted
		result.SharesAllotted = &shares
	}
	if result.AmountBlocked != nil {
		blocked := *result.AmountBlocked
		result.AmountBlocked = &blocked
	}
	if result.RefundAmount != nil {
		refund := *result.RefundAmount
		result.RefundAmount = &refund
	}
	return result
}

// GetIPO returns a copy of the entry for ipoID
func (s *IPOMasterService) GetIPO(ipoID string) (models.IPOMasterEntry, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	i, exists := s.index[ipoID]
	if !exists {
		return models.IPOMasterEntry{}, false
	}
	return cloneEntry(s.entries[i]), true
}

// GetAllIPOs returns a copy of every entry in insertion order
func (s *IPOMasterService) GetAllIPOs() []models.IPOMasterEntry {
	return s.filter(func(models.IPOMasterEntry) bool { return true })
}

// GetPublishedAllotments returns entries whose results are published
func (s *IPOMasterService) GetPublishedAllotments() []models.IPOMasterEntry {
	return s.filter(func(e models.IPOMasterEntry) bool {
		return e.AllotmentStatus == models.PublicationPublished
	})
}

// GetIPOsByRegistrar returns entries for registrar; an empty status matches any state
func (s *IPOMasterService) GetIPOsByRegistrar(registrar models.RegistrarType, status models.PublicationStatus) []models.IPOMasterEntry {
	return s.filter(func(e models.IPOMasterEntry) bool {
		return e.Registrar == registrar && (status == "" || e.AllotmentStatus == status)
	})
}

func (s *IPOMasterService) filter(keep func(models.IPOMasterEntry) bool) []models.IPOMasterEntry {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	result := make([]models.IPOMasterEntry, 0, len(s.entries))
	for _, entry := range s.entries {
		if keep(entry) {
			result = append(result, cloneEntry(entry))
		}
	}
	return result
}

// UpdateAllotmentStatus moves ipoID to status. It returns false only for an unknown id;
// backward transitions are ignored.
func (s *IPOMasterService) UpdateAllotmentStatus(ipoID string, status models.PublicationStatus) bool {
	_, known := s.transitionStatus(ipoID, status)
	return known
}

// transitionStatus reports whether the entry changed and whether ipoID exists
func (s *IPOMasterService) transitionStatus(ipoID string, status models.PublicationStatus) (changed bool, known bool) {
	logger := s.logger.WithFields(logrus.Fields{"ipo_id": ipoID, "status": status})

	s.mutex.Lock()
	i, exists := s.index[ipoID]
	if !exists {
		s.mutex.Unlock()
		logger.Debug("Status update for unknown IPO ignored")
		return false, false
	}
	current := s.entries[i].AllotmentStatus
	if !status.IsValid() || status.Rank() <= current.Rank() {
		s.mutex.Unlock()
		if status.Rank() < current.Rank() {
			logger.WithField("current_status", current).Warn("Refusing to move allotment status backwards")
		}
		return false, true
	}
	s.entries[i].AllotmentStatus = status
	updated := cloneEntry(s.entries[i])
	persistence := s.persistence
	s.mutex.Unlock()

	logger.WithField("previous_status", current).Info("Allotment status updated")
	s.persist(persistence, updated)
	return true, true
}

// RegisterDynamicIPO adds a newly discovered IPO as PUBLISHED.
// It returns false when an entry with the same name (any case) or slug already exists.
func (s *IPOMasterService) RegisterDynamicIPO(name string, registrar models.RegistrarType, registrarURL string) bool {
	_, created := s.registerDynamic(name, registrar, registrarURL, "")
	return created
}

// RegisterIPOWithCode is RegisterDynamicIPO for an issue whose registrar company code is known
func (s *IPOMasterService) RegisterIPOWithCode(name string, registrar models.RegistrarType, registrarURL, companyCode string) (models.IPOMasterEntry, bool) {
	return s.registerDynamic(name, registrar, registrarURL, strings.TrimSpace(companyCode))
}

func (s *IPOMasterService) registerDynamic(name string, registrar models.RegistrarType, registrarURL, companyCode string) (models.IPOMasterEntry, bool) {
	name = strings.TrimSpace(name)
	slug := s.utility.GenerateSlug(name)
	if slug == "" {
		return models.IPOMasterEntry{}, false
	}

	s.mutex.Lock()
	for _, existing := range s.entries {
		if strings.EqualFold(existing.Name, name) ||
			existing.ID == slug ||
			existing.ID == dynamicIDPrefix+slug ||
			s.utility.GenerateSlug(existing.Name) == slug {
			s.mutex.Unlock()
			return models.IPOMasterEntry{}, false
		}
	}

	entry := models.IPOMasterEntry{
		ID:              dynamicIDPrefix + slug,
		Name:            name,
		Symbol:          dynamicSymbol,
		Registrar:       registrar,
		RegistrarURL:    registrarURL,
		CompanyCode:     companyCode,
		AllotmentDate:   s.utility.FormatAllotmentDate(s.clock()),
		AllotmentStatus: models.PublicationPublished,
	}
	s.index[entry.ID] = len(s.entries)
	s.entries = append(s.entries, entry)
	persistence := s.persistence
	s.mutex.Unlock()

	s.logger.WithFields(logrus.Fields{
		"ipo_id":    entry.ID,
		"ipo_name":  entry.Name,
		"registrar": registrar,
	}).Info("Registered newly discovered IPO")

	s.persist(persistence, entry)
	return cloneEntry(entry), true
}

// MarkChecked records the time of the latest resolution attempt for ipoID
func (s *IPOMasterService) MarkChecked(ipoID string, checkedAt time.Time) bool {
	s.mutex.Lock()
	i, exists := s.index[ipoID]
	if !exists {
		s.mutex.Unlock()
		return false
	}
	millis := checkedAt.UnixMilli()
	s.entries[i].LastChecked = &millis
	s.mutex.Unlock()
	return true
}

// Load merges persisted entries into the directory. Persisted state wins only
// when it is at least as far along as the in-memory state.
func (s *IPOMasterService) Load(ctx context.Context) error {
	s.mutex.RLock()
	persistence := s.persistence
	s.mutex.RUnlock()
	if persistence == nil {
		return nil
	}

	stored, err := persistence.LoadIPOs(ctx)
	if err != nil {
		return shared.WrapError(err, shared.ErrorCategoryDatabase, shared.CodePersistenceFailure, "IPOMasterService", "load", true)
	}

	s.mutex.Lock()
	var added, advanced int
	var unsaved []models.IPOMasterEntry
	seen := make(map[string]bool, len(stored))
	for _, entry := range stored {
		seen[entry.ID] = true
		i, exists := s.index[entry.ID]
		if !exists {
			s.index[entry.ID] = len(s.entries)
			s.entries = append(s.entries, cloneEntry(entry))
			added++
			continue
		}
		switch current := s.entries[i].AllotmentStatus; {
		case entry.AllotmentStatus.Rank() > current.Rank():
			s.entries[i].AllotmentStatus = entry.AllotmentStatus
			advanced++
		case entry.AllotmentStatus.Rank() < current.Rank():
			unsaved = append(unsaved, cloneEntry(s.entries[i]))
		}
		if entry.LastChecked != nil {
			checked := *entry.LastChecked
			s.entries[i].LastChecked = &checked
		}
		if s.entries[i].CompanyCode == "" {
			s.entries[i].CompanyCode = entry.CompanyCode
		}
	}
	for _, entry := range s.entries {
		if !seen[entry.ID] {
			unsaved = append(unsaved, cloneEntry(entry))
		}
	}
	s.mutex.Unlock()

	for _, entry := range unsaved {
		s.persist(persistence, entry)
	}

	s.logger.WithFields(logrus.Fields{
		"stored_entries": len(stored),
		"added":          added,
		"advanced":       advanced,
		"seeded":         len(unsaved),
	}).Info("Hydrated IPO master directory from storage")
	return nil
}

func (s *IPOMasterService) persist(persistence MasterPersistence, entry models.IPOMasterEntry) {
	if persistence == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := persistence.UpsertIPO(ctx, entry); err != nil {
		s.logger.WithField("ipo_id", entry.ID).WithError(err).Error("Failed to persist IPO master entry")
	}
}
