package storage

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// newTestDB opens a migrated SQLite database in a temp directory
func newTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(context.Background(), SQLite, filepath.Join(t.TempDir(), "casework.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, Migrate(db))
	return db
}

func TestParseDialect(t *testing.T) {
	testCases := []struct {
		in      string
		want    Dialect
		wantErr bool
	}{
		{"postgres", Postgres, false},
		{" Postgres ", Postgres, false},
		{"sqlite", SQLite, false},
		{"mysql", "", true},
		{"", "", true},
	}

	for _, tc := range testCases {
		t.Run(tc.in, func(t *testing.T) {
			got, err := ParseDialect(tc.in)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestRebind(t *testing.T) {
	q := "UPDATE cases SET current_state = ? WHERE id = ? AND current_state = ?"

	pg := Wrap(nil, Postgres)
	require.Equal(t, "UPDATE cases SET current_state = $1 WHERE id = $2 AND current_state = $3", pg.Rebind(q))

	lite := Wrap(nil, SQLite)
	require.Equal(t, q, lite.Rebind(q))
}

func TestOpenRequiresURL(t *testing.T) {
	_, err := Open(context.Background(), SQLite, "  ")
	require.Error(t, err)
}

func TestMigrateIsIdempotent(t *testing.T) {
	db := newTestDB(t)
	require.NoError(t, Migrate(db))

	m, err := NewMigrator(db)
	require.NoError(t, err)
	version, dirty, err := m.Version()
	require.NoError(t, err)
	require.False(t, dirty)
	require.Equal(t, uint(1), version)
}
