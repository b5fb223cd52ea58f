package migrations

import (
	"io/fs"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(files, "sql")
	require.NoError(t, err)

	ups := map[string]bool{}
	downs := map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Errorf("unexpected file %s", name)
		}
	}
	assert.Equal(t, ups, downs)

	var versions []string
	for v := range ups {
		versions = append(versions, v)
	}
	sort.Strings(versions)
	assert.Equal(t, []string{"000001_create_screenings", "000002_create_bookings"}, versions)
}

func TestBookingsMigrationMatchesLedgerColumns(t *testing.T) {
	raw, err := fs.ReadFile(files, "sql/000002_create_bookings.up.sql")
	require.NoError(t, err)
	for _, column := range []string{"booking_id", "user_id", "screening_id", "seat_ids", "hold_token", "status", "cancelled_at"} {
		assert.Contains(t, string(raw), column)
	}
}
