// Package storagetest provides a migrated SQLite database for tests of
// packages built on the storage layer.
package storagetest

import (
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/cuongbtq/report-autofill/internal/storage"
	"github.com/cuongbtq/report-autofill/shared/database"
)

// OpenDB opens a migrated SQLite database in t.TempDir() and registers cleanup
func OpenDB(t testing.TB) *sqlx.DB {
	t.Helper()

	client, err := database.NewClient(&database.Config{
		Driver: database.DriverSQLite,
		Path:   filepath.Join(t.TempDir(), "test.db"),
	}, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("open test sqlite: %v", err)
	}
	t.Cleanup(func() {
		_ = client.Close()
	})

	if err := storage.RunMigrations(client.GetDB()); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	return client.GetDB()
}
