package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                string
	DatabaseURL         string
	JWTSecret           string
	EncryptionKey       string
	GoogleClientID      string
	GoogleClientSecret  string
	GoogleProjectID     string
	GooglePubSubTopic   string
	GoogleCredentials   string
	FirebaseCredentials string

	// Inbox scan tuning
	ScanPageSize         int
	ScanBatchSize        int
	ScanBatchDelay       time.Duration
	ScanMaxConcurrency   int
	ScanDefaultMaxEmails int

	// Contact policy
	RequireReview          bool
	NoReplyAfterDays       []int
	TombstoneRetentionDays int

	CRMConnectors []CRMConnectorConfig
}

// CRMConnectorConfig is one CRM target, parsed from CRM_CONNECTORS as
// semicolon-separated "name,baseURL,apiKey" entries.
type CRMConnectorConfig struct {
	Name    string
	BaseURL string
	APIKey  string
}

func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	return &Config{
		Port:                getEnv("PORT", "8080"),
		DatabaseURL:         getEnv("DATABASE_URL", "host=localhost user=postgres password=postgres dbname=crmsync port=5432 sslmode=disable"),
		JWTSecret:           getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		EncryptionKey:       getEnv("ENCRYPTION_KEY", ""),
		GoogleClientID:      getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret:  getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleProjectID:     getEnv("GOOGLE_PROJECT_ID", ""),
		GooglePubSubTopic:   getEnv("GOOGLE_PUBSUB_TOPIC", "mailbox-updates"),
		GoogleCredentials:   getEnv("GOOGLE_CREDENTIALS_FILE", ""),
		FirebaseCredentials: getEnv("FIREBASE_CREDENTIALS_FILE", ""),

		ScanPageSize:         getEnvInt("SCAN_PAGE_SIZE", 100),
		ScanBatchSize:        getEnvInt("SCAN_BATCH_SIZE", 20),
		ScanBatchDelay:       getEnvDuration("SCAN_BATCH_DELAY", 500*time.Millisecond),
		ScanMaxConcurrency:   getEnvInt("SCAN_MAX_CONCURRENCY", 10),
		ScanDefaultMaxEmails: getEnvInt("SCAN_DEFAULT_MAX_EMAILS", 1000),

		RequireReview:          getEnvBool("REQUIRE_REVIEW", false),
		NoReplyAfterDays:       getEnvIntList("NO_REPLY_AFTER_DAYS", []int{3, 7, 14}),
		TombstoneRetentionDays: getEnvInt("TOMBSTONE_RETENTION_DAYS", 0),

		CRMConnectors: getEnvConnectorList("CRM_CONNECTORS"),
	}
}

func getEnvConnectorList(key string) []CRMConnectorConfig {
	value := os.Getenv(key)
	if value == "" {
		return nil
	}
	var out []CRMConnectorConfig
	for _, entry := range strings.Split(value, ";") {
		parts := strings.Split(strings.TrimSpace(entry), ",")
		if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
			continue
		}
		cfg := CRMConnectorConfig{Name: parts[0], BaseURL: parts[1]}
		if len(parts) > 2 {
			cfg.APIKey = parts[2]
		}
		out = append(out, cfg)
	}
	return out
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvIntList(key string, defaultValue []int) []int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []int
	for _, part := range strings.Split(value, ",") {
		if parsed, err := strconv.Atoi(strings.TrimSpace(part)); err == nil {
			out = append(out, parsed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
