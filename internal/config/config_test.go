package config

import (
	"testing"
	"time"

	"lambari-service/internal/importer"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"DATABASE_URL", "PORT", "IMPORT_WORKERS", "IMPORT_SESSION_TTL", "IMPORT_COMMIT_LOCK_TTL", "IMPORT_DEFAULT_BRAND", "CORS_ALLOWED_ORIGINS"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 1, cfg.Workers)
	assert.Equal(t, time.Hour, cfg.SessionTTL)
	assert.Equal(t, 2*time.Minute, cfg.CommitLockTTL)
	assert.Equal(t, int64(importer.DefaultMaxUploadBytes), cfg.MaxUploadBytes)
	assert.Equal(t, importer.DefaultBrandName, cfg.DefaultBrand)
	assert.Equal(t, importer.DefaultCategoryType, cfg.DefaultCategoryType)
	assert.NotEmpty(t, cfg.CORSAllowedOrigins)
	assert.Contains(t, cfg.DSN(), "dbname=")
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://lambari@db:5432/catalog")
	t.Setenv("IMPORT_WORKERS", "4")
	t.Setenv("IMPORT_SESSION_TTL", "30m")
	t.Setenv("IMPORT_COMMIT_LOCK_TTL", "45s")
	t.Setenv("IMPORT_ROWS_PER_SECOND", "25")
	t.Setenv("IMPORT_DEFAULT_BRAND", "Genérica")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://admin.lambari.com.br, ,https://loja.lambari.com.br")

	cfg := Load()

	assert.Equal(t, "postgres://lambari@db:5432/catalog", cfg.DSN())
	assert.Equal(t, 4, cfg.Workers)
	assert.Equal(t, 30*time.Minute, cfg.SessionTTL)
	assert.Equal(t, 45*time.Second, cfg.CommitLockTTL)
	assert.Equal(t, 25.0, cfg.RowsPerSecond)
	assert.Equal(t, "Genérica", cfg.DefaultBrand)
	assert.Equal(t, []string{"https://admin.lambari.com.br", "https://loja.lambari.com.br"}, cfg.CORSAllowedOrigins)

	opts := cfg.ImportOptions()
	assert.Equal(t, 4, opts.Workers)
	assert.Equal(t, 25.0, opts.RowsPerSecond)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("IMPORT_WORKERS", "-2")
	t.Setenv("IMPORT_SESSION_TTL", "soon")
	t.Setenv("IMPORT_MAX_UPLOAD_BYTES", "lots")

	cfg := Load()

	assert.Equal(t, 1, cfg.Workers)
	assert.Equal(t, time.Hour, cfg.SessionTTL)
	assert.Equal(t, int64(importer.DefaultMaxUploadBytes), cfg.MaxUploadBytes)
}
