package models

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublicationStatusOrdering(t *testing.T) {
	assert.Less(t, PublicationUpcoming.Rank(), PublicationPending.Rank())
	assert.Less(t, PublicationPending.Rank(), PublicationPublished.Rank())

	assert.True(t, PublicationPublished.IsValid())
	assert.False(t, PublicationStatus("LISTED").IsValid())
	assert.False(t, PublicationStatus("").IsValid())
}

func TestAllotmentResultJSON(t *testing.T) {
	shares := 50
	blocked := decimal.RequireFromString("14925.50")
	result := AllotmentResult{
		Status:         StatusAllotted,
		IPOID:          "azad-eng",
		SharesAllotted: &shares,
		AmountBlocked:  &blocked,
		CheckedAt:      1766916000000,
		RawData:        "<html>registrar page</html>",
	}

	encoded, err := json.Marshal(result)
	require.NoError(t, err)

	var fields map[string]interface{}
	require.NoError(t, json.Unmarshal(encoded, &fields))
	assert.Equal(t, "ALLOTTED", fields["status"])
	assert.Equal(t, "14925.5", fields["amount_blocked"])
	assert.NotContains(t, fields, "RawData")
	assert.NotContains(t, fields, "refund_amount")
}
