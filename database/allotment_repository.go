package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/fenilmodi00/ipo-allotment/models"
	"github.com/fenilmodi00/ipo-allotment/shared"
	"github.com/sirupsen/logrus"
)

// AllotmentRepository persists the master directory and the check history in PostgreSQL
type AllotmentRepository struct {
	db     *sql.DB
	logger *logrus.Entry
}

// NewAllotmentRepository creates a repository backed by db
func NewAllotmentRepository(db *sql.DB) *AllotmentRepository {
	return &AllotmentRepository{
		db:     db,
		logger: logrus.WithField("component", "AllotmentRepository"),
	}
}

func persistenceError(err error, operation string) error {
	return shared.WrapError(err, shared.ErrorCategoryDatabase, shared.CodePersistenceFailure, "AllotmentRepository", operation, true)
}

// UpsertIPO inserts or updates a master directory entry. The stored publication state
// never moves backwards even if a stale writer races a newer one.
func (r *AllotmentRepository) UpsertIPO(ctx context.Context, entry models.IPOMasterEntry) error {
	query := `
		INSERT INTO ipo_master (id, name, symbol, registrar, registrar_url, allotment_date, allotment_status, last_checked, company_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			symbol = EXCLUDED.symbol,
			registrar = EXCLUDED.registrar,
			registrar_url = EXCLUDED.registrar_url,
			allotment_date = EXCLUDED.allotment_date,
			allotment_status = CASE
				WHEN ipo_master.allotment_status = 'PUBLISHED' THEN ipo_master.allotment_status
				WHEN ipo_master.allotment_status = 'PENDING' AND EXCLUDED.allotment_status = 'UPCOMING' THEN ipo_master.allotment_status
				ELSE EXCLUDED.allotment_status
			END,
			last_checked = COALESCE(EXCLUDED.last_checked, ipo_master.last_checked),
			company_code = COALESCE(NULLIF(EXCLUDED.company_code, ''), ipo_master.company_code),
			updated_at = NOW()`

	var lastChecked sql.NullInt64
	if entry.LastChecked != nil {
		lastChecked = sql.NullInt64{Int64: *entry.LastChecked, Valid: true}
	}

	_, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.Name, entry.Symbol, string(entry.Registrar), entry.RegistrarURL,
		entry.AllotmentDate, string(entry.AllotmentStatus), lastChecked, entry.CompanyCode)
	if err != nil {
		return persistenceError(err, "upsert_ipo")
	}
	return nil
}

// LoadIPOs returns every stored master directory entry in creation order
func (r *AllotmentRepository) LoadIPOs(ctx context.Context) ([]models.IPOMasterEntry, error) {
	query := `
		SELECT id, name, symbol, registrar, registrar_url, allotment_date, allotment_status, last_checked, company_code
		FROM ipo_master
		ORDER BY created_at, id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, persistenceError(err, "load_ipos")
	}
	defer rows.Close()

	var entries []models.IPOMasterEntry
	for rows.Next() {
		var entry models.IPOMasterEntry
		var registrar, status string
		var lastChecked sql.NullInt64

		if err := rows.Scan(&entry.ID, &entry.Name, &entry.Symbol, &registrar, &entry.RegistrarURL,
			&entry.AllotmentDate, &status, &lastChecked, &entry.CompanyCode); err != nil {
			return nil, persistenceError(err, "scan_ipo")
		}

		entry.Registrar = models.RegistrarType(registrar)
		entry.AllotmentStatus = models.PublicationStatus(status)
		if lastChecked.Valid {
			checked := lastChecked.Int64
			entry.LastChecked = &checked
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, persistenceError(err, "load_ipos")
	}
	return entries, nil
}

// AppendHistory stores entry and trims the log to the newest limit rows
func (r *AllotmentRepository) AppendHistory(ctx context.Context, entry models.AllotmentHistory, limit int) error {
	result, err := json.Marshal(entry.Result)
	if err != nil {
		return shared.WrapError(err, shared.ErrorCategoryProcessing, shared.CodePersistenceFailure, "AllotmentRepository", "encode_history", false)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return persistenceError(err, "append_history")
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO allotment_history (id, ipo_id, ipo_name, pan_hash, result, checked_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING`,
		entry.ID, entry.IPOID, entry.IPOName, entry.PANHash, result, entry.Timestamp)
	if err != nil {
		return persistenceError(err, "append_history")
	}

	if limit > 0 {
		_, err = tx.ExecContext(ctx, `
			DELETE FROM allotment_history
			WHERE seq NOT IN (SELECT seq FROM allotment_history ORDER BY seq DESC LIMIT $1)`, limit)
		if err != nil {
			return persistenceError(err, "trim_history")
		}
	}

	if err := tx.Commit(); err != nil {
		return persistenceError(err, "append_history")
	}
	return nil
}

// LoadHistory returns the newest limit history entries, oldest first
func (r *AllotmentRepository) LoadHistory(ctx context.Context, limit int) ([]models.AllotmentHistory, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("history limit must be positive, got %d", limit)
	}

	query := `
		SELECT id, ipo_id, ipo_name, pan_hash, result, checked_at FROM (
			SELECT seq, id, ipo_id, ipo_name, pan_hash, result, checked_at
			FROM allotment_history
			ORDER BY seq DESC
			LIMIT $1
		) newest
		ORDER BY seq ASC`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, persistenceError(err, "load_history")
	}
	defer rows.Close()

	var entries []models.AllotmentHistory
	for rows.Next() {
		var entry models.AllotmentHistory
		var result []byte

		if err := rows.Scan(&entry.ID, &entry.IPOID, &entry.IPOName, &entry.PANHash, &result, &entry.Timestamp); err != nil {
			return nil, persistenceError(err, "scan_history")
		}
		if err := json.Unmarshal(result, &entry.Result); err != nil {
			r.logger.WithField("history_id", entry.ID).WithError(err).Warn("Skipping history entry with unreadable result")
			continue
		}
		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, persistenceError(err, "load_history")
	}
	return entries, nil
}

// ClearHistory deletes every history row
func (r *AllotmentRepository) ClearHistory(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM allotment_history`); err != nil {
		return persistenceError(err, "clear_history")
	}
	return nil
}
