package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"lambari-service/internal/importer"
	"lambari-service/internal/models"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Config struct {
	// Database
	DatabaseURL string
	DBHost      string
	DBPort      int
	DBUser      string
	DBPassword  string
	DBName      string
	DBSSLMode   string

	// Redis
	RedisURL string

	// NATS
	NATSURL string

	// Server
	Port               string
	Environment        string
	CORSAllowedOrigins []string

	// Import
	MaxUploadBytes      int64
	SessionTTL          time.Duration
	CommitLockTTL       time.Duration
	Workers             int
	RepositoryTimeout   time.Duration
	RowsPerSecond       float64
	DefaultBrand        string
	DefaultCategoryType string
	BrandColor          string
	BrandTextColor      string
}

func Load() *Config {
	dbPort, _ := strconv.Atoi(getEnv("DB_PORT", "5432"))

	return &Config{
		// Database
		DatabaseURL: getEnv("DATABASE_URL", ""),
		DBHost:      getEnv("DB_HOST", "localhost"),
		DBPort:      dbPort,
		DBUser:      getEnv("DB_USER", "postgres"),
		DBPassword:  getEnv("DB_PASSWORD", "postgres"),
		DBName:      getEnv("DB_NAME", "lambari_db"),
		DBSSLMode:   getEnv("DB_SSLMODE", "disable"),

		// Redis and NATS are optional; empty disables them
		RedisURL: getEnv("REDIS_URL", ""),
		NATSURL:  getEnv("NATS_URL", ""),

		// Server
		Port:               getEnv("PORT", "8080"),
		Environment:        getEnv("ENVIRONMENT", "development"),
		CORSAllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000", "http://localhost:5173"}),

		// Import
		MaxUploadBytes:      getEnvInt64("IMPORT_MAX_UPLOAD_BYTES", importer.DefaultMaxUploadBytes),
		SessionTTL:          getEnvDuration("IMPORT_SESSION_TTL", time.Hour),
		CommitLockTTL:       getEnvDuration("IMPORT_COMMIT_LOCK_TTL", 2*time.Minute),
		Workers:             getEnvInt("IMPORT_WORKERS", 1),
		RepositoryTimeout:   getEnvDuration("IMPORT_REPOSITORY_TIMEOUT", importer.DefaultCallTimeout),
		RowsPerSecond:       getEnvFloat("IMPORT_ROWS_PER_SECOND", 0),
		DefaultBrand:        getEnv("IMPORT_DEFAULT_BRAND", importer.DefaultBrandName),
		DefaultCategoryType: getEnv("IMPORT_DEFAULT_CATEGORY_TYPE", importer.DefaultCategoryType),
		BrandColor:          getEnv("IMPORT_BRAND_COLOR", importer.DefaultBrandColor),
		BrandTextColor:      getEnv("IMPORT_BRAND_TEXT_COLOR", importer.DefaultBrandTextColor),
	}
}

// DSN prefers DATABASE_URL and falls back to the discrete DB_* settings.
func (c *Config) DSN() string {
	if c.DatabaseURL != "" {
		return c.DatabaseURL
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBUser, c.DBPassword, c.DBName, c.DBSSLMode)
}

// ImportOptions maps the import settings onto orchestrator options.
func (c *Config) ImportOptions() importer.Options {
	return importer.Options{
		Workers:        c.Workers,
		RowsPerSecond:  c.RowsPerSecond,
		CallTimeout:    c.RepositoryTimeout,
		BrandColor:     c.BrandColor,
		BrandTextColor: c.BrandTextColor,
		CategoryType:   c.DefaultCategoryType,
	}
}

func InitDB(cfg *Config) (*gorm.DB, error) {
	var logLevel logger.LogLevel
	if cfg.Environment == "production" {
		logLevel = logger.Error
	} else {
		logLevel = logger.Warn
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	logrus.Info("Running auto-migrations...")
	if err := db.AutoMigrate(
		&models.Brand{},
		&models.Category{},
		&models.Product{},
	); err != nil {
		errStr := err.Error()
		if strings.Contains(errStr, "does not exist") && strings.Contains(errStr, "constraint") {
			logrus.Warnf("Migration constraint warning (safe to ignore): %v", err)
		} else {
			return nil, fmt.Errorf("failed to run auto-migrations: %w", err)
		}
	}
	logrus.Info("Auto-migrations completed successfully")

	return db, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(os.Getenv(key)); err == nil && value > 0 {
		return value
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value, err := strconv.ParseInt(os.Getenv(key), 10, 64); err == nil && value > 0 {
		return value
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(os.Getenv(key), 64); err == nil && value >= 0 {
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(os.Getenv(key)); err == nil && value > 0 {
		return value
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
