// Package testutil provides fixtures shared by package tests.
package testutil

import (
	"path/filepath"
	"testing"

	"lambari-service/internal/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// OpenSQLite returns a migrated catalog database backed by a temp file.
func OpenSQLite(t *testing.T) *gorm.DB {
	t.Helper()
	return OpenSQLiteFile(t, filepath.Join(t.TempDir(), "catalog.db"))
}

// OpenSQLiteFile opens (and migrates) the database at path. Several handles
// may be opened on one path to observe what another handle wrote.
func OpenSQLiteFile(t *testing.T, path string) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		SkipDefaultTransaction: true,
		TranslateError:         true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	// SQLite takes one writer; queue goroutines on a single connection
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&models.Brand{}, &models.Category{}, &models.Product{}); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	t.Cleanup(func() { sqlDB.Close() })
	return db
}
