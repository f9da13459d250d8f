package database

import (
	"context"
	"fmt"
	"os"
	"testing"

	"github.com/fenilmodi00/ipo-allotment/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupRepository connects to TEST_DATABASE_URL and resets the allotment tables
func setupRepository(t *testing.T) *AllotmentRepository {
	t.Helper()

	dbURL := os.Getenv("TEST_DATABASE_URL")
	if dbURL == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping database tests")
	}

	require.NoError(t, Connect(dbURL))
	t.Cleanup(Close)
	require.NoError(t, Migrate("schema.sql"))

	_, err := DB.Exec(`TRUNCATE ipo_master, allotment_history`)
	require.NoError(t, err)

	return NewAllotmentRepository(DB)
}

func TestRepositoryUpsertKeepsStatusForward(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	entry := models.IPOMasterEntry{
		ID:              "nova-tech",
		Name:            "Nova Tech Systems",
		Symbol:          "NOVA",
		Registrar:       models.RegistrarKFintech,
		AllotmentDate:   "05 Jan 2026",
		AllotmentStatus: models.PublicationPublished,
		CompanyCode:     "NOVA01",
	}
	require.NoError(t, repo.UpsertIPO(ctx, entry))

	entry.AllotmentStatus = models.PublicationPending
	entry.CompanyCode = ""
	checked := int64(1766916000000)
	entry.LastChecked = &checked
	require.NoError(t, repo.UpsertIPO(ctx, entry))

	entries, err := repo.LoadIPOs(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.PublicationPublished, entries[0].AllotmentStatus)
	require.NotNil(t, entries[0].LastChecked)
	assert.Equal(t, checked, *entries[0].LastChecked)
	assert.Equal(t, "NOVA01", entries[0].CompanyCode)
}

func TestRepositoryHistoryIsBounded(t *testing.T) {
	repo := setupRepository(t)
	ctx := context.Background()

	shares := 50
	blocked := decimal.NewFromInt(15000)
	for i := 0; i < 5; i++ {
		require.NoError(t, repo.AppendHistory(ctx, models.AllotmentHistory{
			ID:      uuid.NewString(),
			IPOID:   "azad-eng",
			IPOName: "Azad Engineering Limited",
			PANHash: fmt.Sprintf("%064d", i),
			Result: models.AllotmentResult{
				Status:         models.StatusAllotted,
				SharesAllotted: &shares,
				AmountBlocked:  &blocked,
			},
			Timestamp: int64(i),
		}, 3))
	}

	entries, err := repo.LoadHistory(ctx, 10)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, int64(2), entries[0].Timestamp)
	assert.Equal(t, int64(4), entries[2].Timestamp)
	require.NotNil(t, entries[2].Result.AmountBlocked)
	assert.True(t, blocked.Equal(*entries[2].Result.AmountBlocked))

	require.NoError(t, repo.ClearHistory(ctx))
	entries, err = repo.LoadHistory(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}
