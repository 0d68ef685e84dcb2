package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/medhubvn/stocksheet/internal/models"
)

// Config holds all application configuration
type Config struct {
	NodeEnv   string
	Port      string
	JWTSecret string

	Sheets   SheetsConfig
	Sync     SyncConfig
	Database DatabaseConfig
}

// SheetsConfig holds the Google Sheets connection and source layout
type SheetsConfig struct {
	CredentialsFile string
	SpreadsheetID   string
	Sources         []models.SourceSchema
}

// SyncConfig holds reconciliation loop tuning
type SyncConfig struct {
	PollInterval   time.Duration // period of the reconciliation loop
	DebounceWindow time.Duration // minimum gap between two record-level broadcasts
	RemoteTimeout  time.Duration // per remote call; timeout degrades, never crashes
	SessionTTL     time.Duration // 0 disables edit-session expiry
	ChangeLogLimit int           // in-memory change-log retention
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	Database string
	Alter    bool
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	jwtSecret := os.Getenv("JWT_SECRET")
	if jwtSecret == "" {
		return nil, fmt.Errorf("JWT_SECRET is required")
	}

	spreadsheetID := os.Getenv("SPREADSHEET_ID")
	if spreadsheetID == "" {
		return nil, fmt.Errorf("SPREADSHEET_ID is required")
	}

	sources, err := parseSources(getEnv("SHEET_SOURCES", "a=Kho1,b=Kho2"))
	if err != nil {
		return nil, err
	}

	return &Config{
		NodeEnv:   getEnv("NODE_ENV", "development"),
		Port:      getEnv("PORT", "3002"),
		JWTSecret: jwtSecret,
		Sheets: SheetsConfig{
			CredentialsFile: getEnv("GOOGLE_CREDENTIALS_FILE", "credentials.json"),
			SpreadsheetID:   spreadsheetID,
			Sources:         sources,
		},
		Sync: SyncConfig{
			PollInterval:   getDuration("SYNC_POLL_INTERVAL", 30*time.Second),
			DebounceWindow: getDuration("SYNC_DEBOUNCE_WINDOW", 10*time.Second),
			RemoteTimeout:  getDuration("SHEETS_TIMEOUT", 15*time.Second),
			SessionTTL:     getDuration("EDIT_SESSION_TTL", 0),
			ChangeLogLimit: getInt("CHANGELOG_RETENTION", 1000),
		},
		Database: DatabaseConfig{
			Host:     getEnv("PG_HOST", "localhost"),
			Port:     getEnv("PG_PORT", "5432"),
			Username: getEnv("PG_USERNAME", "postgres"),
			Password: os.Getenv("PG_PASSWORD"),
			Database: getEnv("PG_DATABASE", "stocksheet"),
			Alter:    getEnv("DB_ALTER", "false") == "true",
		},
	}, nil
}

// parseSources turns "a=Kho1,b=Kho2" into resolved source schemas.
// The key before '=' is both the source name and the record id prefix.
func parseSources(raw string) ([]models.SourceSchema, error) {
	parts := strings.Split(raw, ",")
	sources := make([]models.SourceSchema, 0, len(parts))
	seen := make(map[string]bool)

	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 || kv[0] == "" || kv[1] == "" {
			return nil, fmt.Errorf("invalid SHEET_SOURCES entry %q (want name=TabName)", part)
		}
		name := strings.TrimSpace(kv[0])
		if seen[name] {
			return nil, fmt.Errorf("duplicate source name %q in SHEET_SOURCES", name)
		}
		seen[name] = true
		sources = append(sources, models.SourceSchema{
			Name:      name,
			SheetName: strings.TrimSpace(kv[1]),
			HeaderRow: 1,
			Aliases:   models.DefaultHeaderAliases,
		})
	}

	if len(sources) == 0 {
		return nil, fmt.Errorf("SHEET_SOURCES defines no sources")
	}
	return sources, nil
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDuration parses a duration env var, falling back on bad or missing values
func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// getInt parses an integer env var with a default
func getInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
