package database

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSQLStatements(t *testing.T) {
	content := `
-- directory
CREATE TABLE IF NOT EXISTS a (
    id INT PRIMARY KEY,
    name TEXT
);

CREATE INDEX IF NOT EXISTS idx_a_name ON a (name);
-- trailing statement without a terminator
SELECT 1`

	statements := parseSQLStatements(content)
	assert.Equal(t, []string{
		"CREATE TABLE IF NOT EXISTS a ( id INT PRIMARY KEY, name TEXT )",
		"CREATE INDEX IF NOT EXISTS idx_a_name ON a (name)",
		"SELECT 1",
	}, statements)
}

func TestSchemaFileParses(t *testing.T) {
	content, err := os.ReadFile("schema.sql")
	require.NoError(t, err)

	statements := parseSQLStatements(string(content))
	require.Len(t, statements, 5)
	assert.True(t, strings.HasPrefix(statements[0], "CREATE TABLE IF NOT EXISTS ipo_master"))
	assert.True(t, strings.HasPrefix(statements[1], "ALTER TABLE ipo_master ADD COLUMN IF NOT EXISTS company_code"))
	assert.True(t, strings.HasPrefix(statements[3], "CREATE TABLE IF NOT EXISTS allotment_history"))
}

func TestMigrateRequiresConnection(t *testing.T) {
	previous := DB
	DB = nil
	defer func() { DB = previous }()

	assert.Error(t, Migrate("schema.sql"))
}
