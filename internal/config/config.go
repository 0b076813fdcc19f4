package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/kurihiro0119/order-import-sync/internal/domain"
)

// Config holds the application configuration
type Config struct {
	// Backend
	BackendURL   string
	BackendToken string
	Username     string
	Password     string
	SessionFile  string
	SessionTTL   time.Duration
	LoginPath    string
	ImportPath   string
	ListPath     string
	ConfirmPath  string
	Timeout      time.Duration
	RateLimit    float64
	RateBurst    int
	TargetName   string
	TargetParams map[string]string

	// Reconciliation
	KnownStatuses      domain.StatusSet
	EligibleStatuses   domain.StatusSet
	ListFilterStatuses domain.StatusSet
	ListLookback       time.Duration
	PollMaxAttempts    int
	PollInterval       time.Duration
	PollPageSize       int
	AbortOnNoConverge  bool
	PageSize           int
	PageSafetyCap      int
	ConfirmChunkSize   int

	// Artifact source
	ArtifactSource  string // "local" or "s3"
	ArtifactDir     string
	ArtifactPattern string
	S3Endpoint      string
	S3Bucket        string
	S3Prefix        string
	S3AccessKey     string
	S3SecretKey     string
	S3Region        string

	// Storage
	StorageType string // "sqlite" or "postgres"
	SQLitePath  string
	PostgresURL string

	// API Server
	APIPort string
	APIHost string

	// CLI
	APIEndpoint string

	// Logging
	LogLevel string
	LogFile  string
}

// Load loads the configuration from environment variables.
// Files are read with godotenv first; a missing default .env is ignored.
func Load(files ...string) (*Config, error) {
	if len(files) > 0 && files[0] != "" {
		if err := godotenv.Load(files...); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else {
		_ = godotenv.Load()
	}

	p := &parser{}
	cfg := &Config{
		BackendURL:   strings.TrimSuffix(getEnv("BACKEND_URL", ""), "/"),
		BackendToken: getEnv("BACKEND_TOKEN", ""),
		Username:     getEnv("BACKEND_USERNAME", ""),
		Password:     getEnv("BACKEND_PASSWORD", ""),
		SessionFile:  getEnv("SESSION_FILE", "./.session.json"),
		SessionTTL:   p.duration("SESSION_TTL", 12*time.Hour),
		LoginPath:    getEnv("LOGIN_PATH", "/user/login"),
		ImportPath:   getEnv("IMPORT_PATH", "/orderManagement/orderInfo/import"),
		ListPath:     getEnv("LIST_PATH", "/orderManagement/orderInfo/list"),
		ConfirmPath:  getEnv("CONFIRM_PATH", "/orderManagement/orderInfo/batchConfirm"),
		Timeout:      p.duration("BACKEND_TIMEOUT", 30*time.Second),
		RateLimit:    p.float("BACKEND_RATE_LIMIT", 5),
		RateBurst:    p.int("BACKEND_RATE_BURST", 1),
		TargetName:   getEnv("TARGET_NAME", "default"),
		TargetParams: p.params("TARGET_PARAMS"),

		KnownStatuses:      p.statuses("KNOWN_STATUSES", "0,1,2,3,4"),
		EligibleStatuses:   p.statuses("ELIGIBLE_STATUSES", "0,1,2"),
		ListFilterStatuses: p.statuses("LIST_FILTER_STATUSES", ""),
		ListLookback:       p.duration("LIST_LOOKBACK", 0),
		PollMaxAttempts:    p.int("POLL_MAX_ATTEMPTS", 10),
		PollInterval:       p.duration("POLL_INTERVAL", 5*time.Second),
		PollPageSize:       p.int("POLL_PAGE_SIZE", 500),
		AbortOnNoConverge:  p.bool("ABORT_ON_CONVERGENCE_TIMEOUT", false),
		PageSize:           p.int("PAGE_SIZE", 100),
		PageSafetyCap:      p.int("PAGE_SAFETY_CAP", 50),
		ConfirmChunkSize:   p.int("CONFIRM_CHUNK_SIZE", 500),

		ArtifactSource:  getEnv("ARTIFACT_SOURCE", "local"),
		ArtifactDir:     getEnv("ARTIFACT_DIR", "./reports"),
		ArtifactPattern: getEnv("ARTIFACT_PATTERN", "*"),
		S3Endpoint:      getEnv("ARTIFACT_S3_ENDPOINT", ""),
		S3Bucket:        getEnv("ARTIFACT_S3_BUCKET", ""),
		S3Prefix:        getEnv("ARTIFACT_S3_PREFIX", ""),
		S3AccessKey:     getEnv("ARTIFACT_S3_ACCESS_KEY", ""),
		S3SecretKey:     getEnv("ARTIFACT_S3_SECRET_KEY", ""),
		S3Region:        getEnv("ARTIFACT_S3_REGION", ""),

		StorageType: getEnv("STORAGE_TYPE", "sqlite"),
		SQLitePath:  getEnv("SQLITE_PATH", "./runs.db"),
		PostgresURL: getEnv("POSTGRES_URL", ""),
		APIPort:     getEnv("API_PORT", "8080"),
		APIHost:     getEnv("API_HOST", "localhost"),
		APIEndpoint: getEnv("API_ENDPOINT", "http://localhost:8080"),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogFile:  getEnv("LOG_FILE", ""),
	}
	if p.err != nil {
		return nil, p.err
	}
	return cfg, nil
}

// getEnv returns the value of an environment variable or a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parser keeps the first typed-value error so Load can report it once
type parser struct {
	err error
}

func (p *parser) fail(key, value, want string) {
	if p.err == nil {
		p.err = &ConfigError{Field: key, Message: fmt.Sprintf("%q is not a valid %s", value, want)}
	}
}

func (p *parser) int(key string, defaultValue int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		p.fail(key, raw, "integer")
		return defaultValue
	}
	return n
}

func (p *parser) float(key string, defaultValue float64) float64 {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		p.fail(key, raw, "number")
		return defaultValue
	}
	return f
}

func (p *parser) bool(key string, defaultValue bool) bool {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		p.fail(key, raw, "boolean")
		return defaultValue
	}
	return b
}

func (p *parser) duration(key string, defaultValue time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		p.fail(key, raw, "duration")
		return defaultValue
	}
	return d
}

func (p *parser) statuses(key, defaultValue string) domain.StatusSet {
	raw := getEnv(key, defaultValue)
	set, err := domain.ParseStatusSet(raw)
	if err != nil {
		p.fail(key, raw, "status list")
		return domain.NewStatusSet()
	}
	return set
}

// params parses "shopType=1,shopId=42"
func (p *parser) params(key string) map[string]string {
	out := make(map[string]string)
	raw := getEnv(key, "")
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		k, v, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(k) == "" {
			p.fail(key, pair, "key=value pair")
			continue
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.BackendURL == "" {
		return &ConfigError{Field: "BACKEND_URL", Message: "backend URL is required"}
	}
	if c.BackendToken == "" && (c.Username == "" || c.Password == "") {
		return &ConfigError{Field: "BACKEND_TOKEN", Message: "either a token or BACKEND_USERNAME and BACKEND_PASSWORD are required"}
	}
	if len(c.KnownStatuses) == 0 {
		return &ConfigError{Field: "KNOWN_STATUSES", Message: "at least one status is required"}
	}
	if !c.EligibleStatuses.SubsetOf(c.KnownStatuses) {
		return &ConfigError{Field: "ELIGIBLE_STATUSES", Message: fmt.Sprintf("must be a subset of KNOWN_STATUSES (%s)", c.KnownStatuses)}
	}
	if c.PollMaxAttempts < 1 {
		return &ConfigError{Field: "POLL_MAX_ATTEMPTS", Message: "must be at least 1"}
	}
	if c.PollInterval < 0 {
		return &ConfigError{Field: "POLL_INTERVAL", Message: "must not be negative"}
	}
	if c.PollPageSize < 1 || c.PageSize < 1 {
		return &ConfigError{Field: "PAGE_SIZE", Message: "page sizes must be positive"}
	}
	if c.PageSafetyCap < 1 {
		return &ConfigError{Field: "PAGE_SAFETY_CAP", Message: "must be at least 1"}
	}
	if c.ConfirmChunkSize < 0 {
		return &ConfigError{Field: "CONFIRM_CHUNK_SIZE", Message: "must not be negative"}
	}
	if c.RateLimit <= 0 || c.RateBurst < 1 {
		return &ConfigError{Field: "BACKEND_RATE_LIMIT", Message: "rate limit and burst must be positive"}
	}
	switch c.ArtifactSource {
	case "local":
		if c.ArtifactDir == "" {
			return &ConfigError{Field: "ARTIFACT_DIR", Message: "artifact directory is required when ARTIFACT_SOURCE is 'local'"}
		}
	case "s3":
		if c.S3Endpoint == "" || c.S3Bucket == "" {
			return &ConfigError{Field: "ARTIFACT_S3_BUCKET", Message: "endpoint and bucket are required when ARTIFACT_SOURCE is 's3'"}
		}
	default:
		return &ConfigError{Field: "ARTIFACT_SOURCE", Message: "must be 'local' or 's3'"}
	}
	return c.ValidateStorage()
}

// ValidateStorage validates only the ledger settings, for commands that never call the backend
func (c *Config) ValidateStorage() error {
	if c.StorageType != "sqlite" && c.StorageType != "postgres" {
		return &ConfigError{Field: "STORAGE_TYPE", Message: "must be 'sqlite' or 'postgres'"}
	}
	if c.StorageType == "postgres" && c.PostgresURL == "" {
		return &ConfigError{Field: "POSTGRES_URL", Message: "PostgreSQL URL is required when STORAGE_TYPE is 'postgres'"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}
