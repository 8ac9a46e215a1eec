package config

import (
	"fmt"
	"math"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for ekaya-renewals.
// Configuration can come from YAML file (config.yaml) or environment variables.
// Environment variables always override YAML values for fields that support both.
// Secrets (passwords, keys) must only come from environment variables.
type Config struct {
	// Server configuration
	BindAddr string `yaml:"bind_addr" env:"BIND_ADDR" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env:"PORT" env-default:"3480"`
	Env      string `yaml:"env" env:"ENVIRONMENT" env-default:"local"`
	BaseURL  string `yaml:"base_url" env:"BASE_URL" env-default:""` // Auto-derived from Port if empty
	Version  string `yaml:"-"`                                      // Set at load time, not from config

	// TLS configuration (optional - if both provided, server uses HTTPS)
	TLSCertPath string `yaml:"tls_cert_path" env:"TLS_CERT_PATH" env-default:""`
	TLSKeyPath  string `yaml:"tls_key_path" env:"TLS_KEY_PATH" env-default:""`

	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	AI       AIConfig       `yaml:"ai"`
	OCR      OCRConfig      `yaml:"ocr"`
	Pipeline PipelineConfig `yaml:"pipeline"`
	Patterns PatternsConfig `yaml:"patterns"`
	Credits  CreditsConfig  `yaml:"credits"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Inbox    InboxConfig    `yaml:"inbox"`
	Notify   NotifyConfig   `yaml:"notify"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// DatabaseConfig holds PostgreSQL database configuration.
type DatabaseConfig struct {
	Host           string `yaml:"host" env:"PGHOST" env-default:"localhost"`
	Port           int    `yaml:"port" env:"PGPORT" env-default:"5432"`
	User           string `yaml:"user" env:"PGUSER" env-default:"ekaya"`
	Password       string `yaml:"-" env:"PGPASSWORD"` // Secret - not in YAML
	Database       string `yaml:"database" env:"PGDATABASE" env-default:"ekaya_renewals"`
	MaxConnections int32  `yaml:"max_connections" env:"PGMAX_CONNECTIONS" env-default:"25"`
	MaxIdleConns   int32  `yaml:"max_idle_conns" env:"PGMAX_IDLE_CONNS" env-default:"5"`
	SSLMode        string `yaml:"ssl_mode" env:"PGSSLMODE" env-default:"disable"`
	MigrationsPath string `yaml:"migrations_path" env:"MIGRATIONS_PATH" env-default:"./migrations"`
}

// RedisConfig holds Redis configuration. Redis is optional; an empty Host
// disables the distributed analysis lock.
type RedisConfig struct {
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:""`
	Port     int    `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"-" env:"REDIS_PASSWORD"` // Secret - not in YAML
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
	// LockTTL bounds how long a crashed instance can hold a contract lock.
	LockTTL time.Duration `yaml:"lock_ttl" env:"REDIS_LOCK_TTL" env-default:"3m"`
}

// AIConfig configures the semantic analysis provider.
type AIConfig struct {
	// Provider is "openai" (any OpenAI-compatible endpoint) or "anthropic".
	Provider    string  `yaml:"provider" env:"AI_PROVIDER" env-default:"openai"`
	BaseURL     string  `yaml:"base_url" env:"AI_BASE_URL" env-default:""`
	Model       string  `yaml:"model" env:"AI_MODEL" env-default:""`
	APIKey      string  `yaml:"-" env:"AI_API_KEY"` // Secret - not in YAML
	MaxTokens   int     `yaml:"max_tokens" env:"AI_MAX_TOKENS" env-default:"2048"`
	Temperature float64 `yaml:"temperature" env:"AI_TEMPERATURE" env-default:"0"`
	JSONMode    bool    `yaml:"json_mode" env:"AI_JSON_MODE" env-default:"true"`

	Timeout       time.Duration `yaml:"timeout" env:"AI_TIMEOUT" env-default:"2m"`
	MaxAttempts   int           `yaml:"max_attempts" env:"AI_MAX_ATTEMPTS" env-default:"3"`
	MaxInputChars int           `yaml:"max_input_chars" env:"AI_MAX_INPUT_CHARS" env-default:"60000"`
	CacheTTL      time.Duration `yaml:"cache_ttl" env:"AI_CACHE_TTL" env-default:"720h"`

	RequestsPerMinute float64 `yaml:"requests_per_minute" env:"AI_REQUESTS_PER_MINUTE" env-default:"60"`
	Burst             int     `yaml:"burst" env:"AI_BURST" env-default:"5"`

	CircuitBreakerThreshold  int           `yaml:"circuit_breaker_threshold" env:"AI_CIRCUIT_BREAKER_THRESHOLD" env-default:"5"`
	CircuitBreakerResetAfter time.Duration `yaml:"circuit_breaker_reset_after" env:"AI_CIRCUIT_BREAKER_RESET_AFTER" env-default:"30s"`
}

// IsAvailable returns true if a provider is configured.
func (c *AIConfig) IsAvailable() bool {
	if c.Model == "" {
		return false
	}
	if strings.EqualFold(c.Provider, "anthropic") {
		return c.APIKey != ""
	}
	return c.BaseURL != ""
}

// OCRConfig configures text extraction.
type OCRConfig struct {
	TesseractLanguages string        `yaml:"tesseract_languages" env:"OCR_TESSERACT_LANGUAGES" env-default:"eng+fra"`
	Timeout            time.Duration `yaml:"timeout" env:"OCR_TIMEOUT" env-default:"10m"`
	// StorageRoot is the directory contract file paths are resolved against.
	StorageRoot string `yaml:"storage_root" env:"OCR_STORAGE_ROOT" env-default:"./data/contracts"`

	DocumentAI DocumentAIConfig `yaml:"documentai"`
}

// DocumentAIConfig configures Google Document AI. It is enabled only when
// project, location and processor are all set.
type DocumentAIConfig struct {
	ProjectID       string `yaml:"project_id" env:"DOCUMENTAI_PROJECT_ID" env-default:""`
	Location        string `yaml:"location" env:"DOCUMENTAI_LOCATION" env-default:"eu"`
	ProcessorID     string `yaml:"processor_id" env:"DOCUMENTAI_PROCESSOR_ID" env-default:""`
	CredentialsFile string `yaml:"-" env:"DOCUMENTAI_CREDENTIALS_FILE"` // Secret - not in YAML
	// HandleImages routes images to Document AI instead of Tesseract.
	HandleImages bool `yaml:"handle_images" env:"DOCUMENTAI_HANDLE_IMAGES" env-default:"false"`
}

// IsAvailable returns true if Document AI is configured.
func (c *DocumentAIConfig) IsAvailable() bool {
	return c.ProjectID != "" && c.Location != "" && c.ProcessorID != ""
}

// PipelineConfig holds the consolidation blend and task scheduling knobs.
type PipelineConfig struct {
	CommitThreshold  float64 `yaml:"commit_threshold" env:"PIPELINE_COMMIT_THRESHOLD" env-default:"0.7"`
	OCRWeight        float64 `yaml:"ocr_weight" env:"PIPELINE_OCR_WEIGHT" env-default:"0.6"`
	PatternWeight    float64 `yaml:"pattern_weight" env:"PIPELINE_PATTERN_WEIGHT" env-default:"0.4"`
	LowOCRConfidence float64 `yaml:"low_ocr_confidence" env:"PIPELINE_LOW_OCR_CONFIDENCE" env-default:"70"`
	// AutoAI dispatches a non-forced analysis after extraction when the owner has credits.
	AutoAI bool `yaml:"auto_ai" env:"PIPELINE_AUTO_AI" env-default:"false"`
	// StaleProcessingAfter lets a reprocess take over a record stuck in processing.
	StaleProcessingAfter  time.Duration `yaml:"stale_processing_after" env:"PIPELINE_STALE_PROCESSING_AFTER" env-default:"30m"`
	ExtractionParallelism int           `yaml:"extraction_parallelism" env:"PIPELINE_EXTRACTION_PARALLELISM" env-default:"4"`
	AIParallelism         int           `yaml:"ai_parallelism" env:"PIPELINE_AI_PARALLELISM" env-default:"1"`
}

// PatternsConfig holds rule-based analyzer settings.
type PatternsConfig struct {
	// RulesFile overrides the embedded rule library.
	RulesFile       string  `yaml:"rules_file" env:"PATTERNS_RULES_FILE" env-default:""`
	DateFloor       float64 `yaml:"date_floor" env:"PATTERNS_DATE_FLOOR" env-default:"0.6"`
	AmountFloor     float64 `yaml:"amount_floor" env:"PATTERNS_AMOUNT_FLOOR" env-default:"0.5"`
	NoticeFloor     float64 `yaml:"notice_floor" env:"PATTERNS_NOTICE_FLOOR" env-default:"0.6"`
	DayFirst        bool    `yaml:"day_first" env:"PATTERNS_DAY_FIRST" env-default:"true"`
	DefaultCurrency string  `yaml:"default_currency" env:"PATTERNS_DEFAULT_CURRENCY" env-default:"EUR"`
}

// CreditsConfig holds credit ledger defaults.
type CreditsConfig struct {
	DefaultMonthlyLimit int `yaml:"default_monthly_limit" env:"CREDITS_DEFAULT_MONTHLY_LIMIT" env-default:"10"`
}

// AlertsConfig holds alert scheduling settings.
type AlertsConfig struct {
	// WarningOffsetsStr is a comma-separated list of renewal_warning day offsets.
	WarningOffsetsStr string `yaml:"warning_offsets" env:"ALERTS_WARNING_OFFSETS" env-default:"90,30,7"`
	// SweepSchedule is a six-field cron spec (with seconds).
	SweepSchedule string `yaml:"sweep_schedule" env:"ALERTS_SWEEP_SCHEDULE" env-default:"0 0 6 * * *"`

	// WarningOffsets is parsed from WarningOffsetsStr (not from config file).
	WarningOffsets []int `yaml:"-"`
}

// InboxConfig configures the directory watcher.
type InboxConfig struct {
	Enabled bool   `yaml:"enabled" env:"INBOX_ENABLED" env-default:"false"`
	Dir     string `yaml:"dir" env:"INBOX_DIR" env-default:"./data/inbox"`
}

// NotifyConfig configures alert delivery. An empty NATSURL logs alerts only.
type NotifyConfig struct {
	NATSURL string `yaml:"nats_url" env:"NOTIFY_NATS_URL" env-default:""`
	Subject string `yaml:"subject" env:"NOTIFY_SUBJECT" env-default:"renewals.alerts"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"METRICS_ENABLED" env-default:"true"`
	Path    string `yaml:"path" env:"METRICS_PATH" env-default:"/metrics"`
}

// Load reads configuration from config.yaml with environment variable overrides.
// The version parameter is injected at build time and set on the returned Config.
// Secrets (PGPASSWORD, AI_API_KEY, REDIS_PASSWORD) must come from environment
// variables (yaml:"-" fields).
func Load(version string) (*Config, error) {
	return LoadFile("config.yaml", version)
}

// LoadFile is Load with an explicit path. A missing file falls back to
// environment variables and defaults.
func LoadFile(path, version string) (*Config, error) {
	cfg := &Config{
		Version: version,
	}

	if _, err := os.Stat(path); err == nil {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment: %w", err)
		}
	}

	if err := cfg.parseComplexFields(); err != nil {
		return nil, fmt.Errorf("failed to parse config fields: %w", err)
	}

	if err := cfg.validateTLS(); err != nil {
		return nil, fmt.Errorf("invalid TLS configuration: %w", err)
	}

	if err := cfg.validatePipeline(); err != nil {
		return nil, fmt.Errorf("invalid pipeline configuration: %w", err)
	}

	// Auto-derive BaseURL from Port if not explicitly set
	if cfg.BaseURL == "" {
		scheme := "http"
		if cfg.TLSCertPath != "" {
			scheme = "https"
		}
		cfg.BaseURL = (&url.URL{
			Scheme: scheme,
			Host:   "localhost:" + cfg.Port,
		}).String()
	}

	return cfg, nil
}

// parseComplexFields handles fields that need post-processing after loading.
func (c *Config) parseComplexFields() error {
	offsets, err := parseOffsets(c.Alerts.WarningOffsetsStr)
	if err != nil {
		return fmt.Errorf("alerts.warning_offsets: %w", err)
	}
	c.Alerts.WarningOffsets = offsets
	return nil
}

// validateTLS ensures TLS configuration is valid if provided.
// Both cert and key must be provided together, and files must exist.
func (c *Config) validateTLS() error {
	certSet := c.TLSCertPath != ""
	keySet := c.TLSKeyPath != ""

	if certSet != keySet {
		return fmt.Errorf("both tls_cert_path and tls_key_path must be provided together")
	}

	if certSet {
		if _, err := os.Stat(c.TLSCertPath); err != nil {
			return fmt.Errorf("TLS cert file does not exist: %w", err)
		}
		if _, err := os.Stat(c.TLSKeyPath); err != nil {
			return fmt.Errorf("TLS key file does not exist: %w", err)
		}
	}

	return nil
}

func (c *Config) validatePipeline() error {
	p := c.Pipeline
	if p.CommitThreshold <= 0 || p.CommitThreshold > 1 {
		return fmt.Errorf("commit_threshold must be in (0, 1], got %v", p.CommitThreshold)
	}
	if p.OCRWeight < 0 || p.PatternWeight < 0 {
		return fmt.Errorf("weights must not be negative")
	}
	if math.Abs(p.OCRWeight+p.PatternWeight-1) > 1e-9 {
		return fmt.Errorf("ocr_weight + pattern_weight must equal 1, got %v", p.OCRWeight+p.PatternWeight)
	}
	if p.ExtractionParallelism < 1 || p.AIParallelism < 1 {
		return fmt.Errorf("parallelism must be at least 1")
	}
	if c.AI.MaxAttempts < 1 {
		return fmt.Errorf("ai.max_attempts must be at least 1")
	}
	if c.Credits.DefaultMonthlyLimit < 0 {
		return fmt.Errorf("credits.default_monthly_limit must not be negative")
	}
	return nil
}

// parseOffsets parses "90,30,7" into day offsets. Offsets must be positive.
func parseOffsets(value string) ([]int, error) {
	var offsets []int
	for _, part := range strings.Split(value, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid offset %q", part)
		}
		if n <= 0 {
			return nil, fmt.Errorf("offset must be positive, got %d", n)
		}
		offsets = append(offsets, n)
	}
	return offsets, nil
}

// ConnectionString returns a PostgreSQL connection string.
func (c *DatabaseConfig) ConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// URL returns the database as a postgres:// URL, the form golang-migrate expects.
func (c *DatabaseConfig) URL() string {
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:     "/" + c.Database,
		RawQuery: "sslmode=" + url.QueryEscape(c.SSLMode),
	}
	return u.String()
}
