package store

import (
	"path/filepath"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openDryRunDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(
		sqlite.Open(filepath.Join(t.TempDir(), "dry.db")),
		&gorm.Config{DryRun: true, Logger: logger.Discard},
	)
	require.NoError(t, err)

	return db
}

func TestPrimaryKeyOf(t *testing.T) {
	db := openDryRunDB(t)

	tests := []struct {
		name     string
		entity   any
		explicit bool
	}{
		{name: "new run", entity: &Run{TestName: "fresh"}, explicit: false},
		{name: "run with key", entity: &Run{ID: 7}, explicit: true},
		{name: "ingested file", entity: &IngestedFile{ID: 3}, explicit: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, column, explicit, err := primaryKeyOf(db, tt.entity)
			require.NoError(t, err)
			assert.Equal(t, "id", column)
			assert.Equal(t, tt.explicit, explicit)
		})
	}

	table, _, _, err := primaryKeyOf(db, &Run{})
	require.NoError(t, err)
	assert.Equal(t, "runs", table)
}

func TestSyncSequenceStatement(t *testing.T) {
	db := openDryRunDB(t)

	sql := db.ToSQL(func(tx *gorm.DB) *gorm.DB {
		return syncSequence(tx, "runs", "id")
	})

	assert.Contains(t, sql, "SELECT setval(pg_get_serial_sequence(")
	assert.Contains(t, sql, "runs")
	assert.Contains(t, sql, "MAX(`id`)")
	assert.Contains(t, sql, "FROM `runs`")
	assert.Contains(t, sql, ", false)")
}
