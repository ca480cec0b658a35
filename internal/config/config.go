package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Google Cloud
	Project             string
	Location            string
	StagingBucket       string
	CredentialsPath     string
	ServiceAccountEmail string

	// Generation
	GeminiAPIKey string
	GeminiModel  string

	// RAG behaviour
	RAGTopK           int
	ReadyPollAttempts int
	ReadyPollInterval time.Duration
	RAGCallTimeout    time.Duration
	IngestOnUpload    bool
	RiskRulesFile     string
	RiskMatchPolicy   string
	UnidocLicenseKey  string
	MaxUploadBytes    int64
	SummaryCacheTTL   time.Duration
	RedisAddr         string
	RedisPassword     string

	// Service
	DatabaseURL string
	HTTPPort    string
	LogLevel    string
	LogFormat   string
}

// Load reads the process environment (and .env if present) and validates it.
// The returned Config is treated as read-only for the life of the process.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}
	return fromEnv()
}

func fromEnv() (*Config, error) {
	var errs []error

	cfg := &Config{
		Project:             getEnv("GCP_PROJECT", ""),
		Location:            getEnv("GCP_LOCATION", ""),
		StagingBucket:       strings.TrimRight(getEnv("STAGING_BUCKET", ""), "/"),
		CredentialsPath:     getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		ServiceAccountEmail: getEnv("SERVICE_ACCOUNT_EMAIL", ""),
		GeminiAPIKey:        getEnv("GEMINI_API_KEY", ""),
		GeminiModel:         getEnv("GEMINI_MODEL", "gemini-2.0-flash-001"),
		RiskRulesFile:       getEnv("RISK_RULES_FILE", ""),
		RiskMatchPolicy:     getEnv("RISK_MATCH_POLICY", ""),
		UnidocLicenseKey:    getEnv("UNIDOC_LICENSE_KEY", ""),
		RedisAddr:           getEnv("REDIS_ADDR", ""),
		RedisPassword:       getEnv("REDIS_PASSWORD", ""),
		DatabaseURL:         getEnv("DATABASE_URL", "legal_rag.db"),
		HTTPPort:            getEnv("HTTP_PORT", "8080"),
		LogLevel:            getEnv("LOG_LEVEL", "INFO"),
		LogFormat:           getEnv("LOG_FORMAT", "text"),
	}

	var err error
	if cfg.RAGTopK, err = getEnvAsInt("RAG_TOP_K", 4); err != nil {
		errs = append(errs, err)
	}
	if cfg.ReadyPollAttempts, err = getEnvAsInt("RAG_READY_POLL_ATTEMPTS", 3); err != nil {
		errs = append(errs, err)
	}
	if cfg.ReadyPollInterval, err = getEnvAsDuration("RAG_READY_POLL_INTERVAL", 2*time.Second); err != nil {
		errs = append(errs, err)
	}
	if cfg.RAGCallTimeout, err = getEnvAsDuration("RAG_CALL_TIMEOUT", 60*time.Second); err != nil {
		errs = append(errs, err)
	}
	if cfg.IngestOnUpload, err = getEnvAsBool("RAG_INGEST_ON_UPLOAD", true); err != nil {
		errs = append(errs, err)
	}
	if cfg.SummaryCacheTTL, err = getEnvAsDuration("SUMMARY_CACHE_TTL", time.Hour); err != nil {
		errs = append(errs, err)
	}
	maxMB, err := getEnvAsInt("MAX_UPLOAD_MB", 25)
	if err != nil {
		errs = append(errs, err)
	}
	cfg.MaxUploadBytes = int64(maxMB) << 20

	if err := cfg.Validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

// Validate checks required settings and value ranges.
func (c *Config) Validate() error {
	var errs []error
	if c.Project == "" {
		errs = append(errs, errors.New("GCP_PROJECT environment variable is required"))
	}
	if c.Location == "" {
		errs = append(errs, errors.New("GCP_LOCATION environment variable is required"))
	}
	switch {
	case c.StagingBucket == "":
		errs = append(errs, errors.New("STAGING_BUCKET environment variable is required"))
	case !strings.HasPrefix(c.StagingBucket, "gs://") && !strings.HasPrefix(c.StagingBucket, "file://"):
		errs = append(errs, fmt.Errorf("STAGING_BUCKET must start with gs:// or file://, got %q", c.StagingBucket))
	}
	if c.CredentialsPath != "" {
		if info, err := os.Stat(c.CredentialsPath); err != nil || info.IsDir() {
			errs = append(errs, fmt.Errorf("GOOGLE_APPLICATION_CREDENTIALS is set to %q, but the file was not found", c.CredentialsPath))
		}
	}
	if c.ReadyPollAttempts < 1 {
		errs = append(errs, errors.New("RAG_READY_POLL_ATTEMPTS must be at least 1"))
	}
	if c.RAGTopK < 1 {
		errs = append(errs, errors.New("RAG_TOP_K must be at least 1"))
	}
	if c.RAGCallTimeout <= 0 {
		errs = append(errs, errors.New("RAG_CALL_TIMEOUT must be positive"))
	}
	if c.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_MB must be positive"))
	}
	switch c.RiskMatchPolicy {
	case "", "all", "first":
	default:
		errs = append(errs, fmt.Errorf("RISK_MATCH_POLICY must be \"all\" or \"first\", got %q", c.RiskMatchPolicy))
	}
	return errors.Join(errs...)
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) (int, error) {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q", key, valueStr)
	}
	return value, nil
}

func getEnvAsBool(key string, defaultValue bool) (bool, error) {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return false, fmt.Errorf("%s: invalid boolean %q", key, valueStr)
	}
	return value, nil
}

func getEnvAsDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue, nil
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q", key, valueStr)
	}
	return value, nil
}
