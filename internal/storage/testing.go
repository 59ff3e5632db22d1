package storage

import (
	"testing"
)

// NewTestDB opens a migrated in-memory database that is closed when the
// test ends. It is exported for use in other package tests.
func NewTestDB(t testing.TB) *DB {
	t.Helper()

	config := DefaultConfig(":memory:")
	config.AutoMigrate = true
	db, err := Open(config)
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}
