package database

import (
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

// OpenTest opens a migrated database file inside t.TempDir() and closes it on cleanup
func OpenTest(t testing.TB) *DB {
	t.Helper()

	logger := zap.NewNop()
	db, err := New(Config{
		Path:         filepath.Join(t.TempDir(), "approval_test.db"),
		MaxOpenConns: 8,
		MaxIdleConns: 8,
	}, logger)
	if err != nil {
		t.Fatalf("open test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err := NewMigrator(db, logger).RunMigrations(""); err != nil {
		t.Fatalf("migrate test database: %v", err)
	}
	return db
}
