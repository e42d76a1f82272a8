package database

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStatements(t *testing.T) {
	src := `-- leading comment
CREATE TABLE a (
    id INT
);

-- second
CREATE TABLE b (id INT);
INSERT INTO b VALUES (1)`

	got := SplitStatements(src)
	require.Len(t, got, 3)
	assert.True(t, strings.HasPrefix(got[0], "CREATE TABLE a ("))
	assert.False(t, strings.HasSuffix(got[0], ";"))
	assert.Equal(t, "CREATE TABLE b (id INT)", got[1])
	assert.Equal(t, "INSERT INTO b VALUES (1)", got[2])
}

func TestEmbeddedMigrations(t *testing.T) {
	entries, err := migrationFiles.ReadDir("migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	var all strings.Builder
	for _, e := range entries {
		body, err := migrationFiles.ReadFile("migrations/" + e.Name())
		require.NoError(t, err)
		stmts := SplitStatements(string(body))
		assert.NotEmpty(t, stmts, e.Name())
		all.Write(body)
	}
	schema := all.String()
	for _, table := range []string{"users", "refresh_tokens", "event_categories", "time_slots", "bookings"} {
		assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS "+table+" ")
	}
	assert.Contains(t, schema, "UNIQUE KEY uq_bookings_active (user_id, time_slot_id, active_marker)")
	assert.Contains(t, schema, "REFERENCES time_slots (id) ON DELETE CASCADE")
}

func TestDSN(t *testing.T) {
	dsn := DSN("app", "secret", "db", "3306", "booking")
	assert.True(t, strings.HasPrefix(dsn, "app:secret@tcp(db:3306)/booking?"))
	assert.Contains(t, dsn, "parseTime=true")
	assert.Contains(t, dsn, "charset=utf8mb4")
}
