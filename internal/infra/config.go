package infra

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	LedgerDriverSheet    = "sheet"
	LedgerDriverPostgres = "postgres"

	ArchiveDriverSheet = "sheet"
	ArchiveDriverS3    = "s3"
	ArchiveDriverLocal = "local"
	ArchiveDriverNone  = "none"
)

// Config represents application configuration loaded from environment variables.
type Config struct {
	AppEnv           string
	Port             string
	HTTPReadTimeout  time.Duration
	HTTPWriteTimeout time.Duration
	HTTPIdleTimeout  time.Duration
	RateLimitPerMin  int
	CORSOrigins      []string

	ArkAPIKey       string
	ArkBaseURL      string
	DefaultModel    string
	ProviderTimeout time.Duration

	LedgerDriver    string
	AppsScriptURL   string
	DatabaseURL     string
	LedgerTimeout   time.Duration
	SourceURLFormat string

	ArchiveDriver string
	S3Endpoint    string
	S3Region      string
	S3Bucket      string
	S3AccessKey   string
	S3SecretKey   string
	StoragePath   string

	RedisURL     string
	TickLockTTL  time.Duration
	TickSchedule string

	MaxConcurrent      int
	DispatchWorkers    int
	MaxArchiveAttempts int
}

// LoadConfig loads configuration from environment variables and applies defaults where needed.
// Missing provider or ledger endpoints are not rejected here: the dispatcher reports them as
// configuration errors per tick so the API can still serve health and intake diagnostics.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		AppEnv:           getEnv("APP_ENV", "development"),
		Port:             getEnv("PORT", "8080"),
		HTTPReadTimeout:  time.Second * time.Duration(getEnvInt("HTTP_READ_TIMEOUT_SECONDS", 15)),
		HTTPWriteTimeout: time.Second * time.Duration(getEnvInt("HTTP_WRITE_TIMEOUT_SECONDS", 90)),
		HTTPIdleTimeout:  time.Second * time.Duration(getEnvInt("HTTP_IDLE_TIMEOUT_SECONDS", 60)),
		RateLimitPerMin:  getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		CORSOrigins:      splitList(getEnv("CORS_ALLOWED_ORIGINS", "*")),

		ArkAPIKey:       strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		ArkBaseURL:      strings.TrimSpace(os.Getenv("ARK_BASE_URL")),
		DefaultModel:    getEnv("SEEDANCE_MODEL_ID", "seedance-1-0-pro-fast-251015"),
		ProviderTimeout: time.Second * time.Duration(getEnvInt("PROVIDER_TIMEOUT_SECONDS", 20)),

		LedgerDriver:    strings.ToLower(getEnv("LEDGER_DRIVER", LedgerDriverSheet)),
		AppsScriptURL:   strings.TrimSpace(os.Getenv("APPS_SCRIPT_BASE_URL")),
		DatabaseURL:     strings.TrimSpace(os.Getenv("DATABASE_URL")),
		LedgerTimeout:   time.Second * time.Duration(getEnvInt("LEDGER_TIMEOUT_SECONDS", 15)),
		SourceURLFormat: getEnv("SOURCE_IMAGE_URL_TEMPLATE", "https://drive.google.com/uc?export=download&id=%s"),

		ArchiveDriver: strings.ToLower(getEnv("ARCHIVE_DRIVER", ArchiveDriverSheet)),
		S3Endpoint:    os.Getenv("S3_ENDPOINT"),
		S3Region:      getEnv("S3_REGION", "us-east-1"),
		S3Bucket:      os.Getenv("S3_BUCKET"),
		S3AccessKey:   os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:   os.Getenv("S3_SECRET_KEY"),
		StoragePath:   getEnv("STORAGE_PATH", "./storage"),

		RedisURL:     strings.TrimSpace(os.Getenv("REDIS_URL")),
		TickLockTTL:  time.Second * time.Duration(getEnvInt("TICK_LOCK_TTL_SECONDS", 60)),
		TickSchedule: getEnv("TICK_SCHEDULE", "@every 5s"),

		MaxConcurrent:      getEnvInt("MAX_CONCURRENT", 5),
		DispatchWorkers:    getEnvInt("DISPATCH_WORKERS", 4),
		MaxArchiveAttempts: getEnvInt("MAX_ARCHIVE_ATTEMPTS", 3),
	}

	switch cfg.LedgerDriver {
	case LedgerDriverSheet, LedgerDriverPostgres:
	default:
		return nil, fmt.Errorf("LEDGER_DRIVER %q is not supported", cfg.LedgerDriver)
	}
	switch cfg.ArchiveDriver {
	case ArchiveDriverSheet, ArchiveDriverS3, ArchiveDriverLocal, ArchiveDriverNone:
	default:
		return nil, fmt.Errorf("ARCHIVE_DRIVER %q is not supported", cfg.ArchiveDriver)
	}
	if cfg.LedgerDriver == LedgerDriverPostgres && cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required for the postgres ledger")
	}
	if cfg.MaxConcurrent < 1 {
		return nil, fmt.Errorf("MAX_CONCURRENT must be positive")
	}
	if cfg.DispatchWorkers < 1 {
		cfg.DispatchWorkers = 1
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if item := strings.TrimSpace(part); item != "" {
			out = append(out, item)
		}
	}
	return out
}
