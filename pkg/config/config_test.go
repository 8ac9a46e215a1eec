package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadFile_EnvOverridesYAML(t *testing.T) {
	path := writeConfig(t, `
port: "3480"
env: "test"
database:
  host: "db.example.com"
  port: 5432
  user: "testuser"
  database: "testdb"
ai:
  provider: "anthropic"
  model: "claude-test"
pipeline:
  auto_ai: true
`)
	os.Unsetenv("PGHOST")
	os.Unsetenv("BASE_URL")
	t.Setenv("PORT", "4480")
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("AI_API_KEY", "sk-test")

	cfg, err := LoadFile(path, "test-version")
	require.NoError(t, err)

	assert.Equal(t, "4480", cfg.Port)
	assert.Equal(t, "production", cfg.Env)
	assert.Equal(t, "test-version", cfg.Version)
	assert.Equal(t, "http://localhost:4480", cfg.BaseURL)
	assert.Equal(t, "db.example.com", cfg.Database.Host)
	assert.Equal(t, "sk-test", cfg.AI.APIKey)
	assert.True(t, cfg.AI.IsAvailable())
	assert.True(t, cfg.Pipeline.AutoAI)
}

func TestLoadFile_Defaults(t *testing.T) {
	cfg, err := LoadFile(writeConfig(t, "env: test\n"), "v")
	require.NoError(t, err)

	assert.Equal(t, 0.7, cfg.Pipeline.CommitThreshold)
	assert.Equal(t, 0.6, cfg.Pipeline.OCRWeight)
	assert.Equal(t, 0.4, cfg.Pipeline.PatternWeight)
	assert.Equal(t, 30*time.Minute, cfg.Pipeline.StaleProcessingAfter)
	assert.Equal(t, 2*time.Minute, cfg.AI.Timeout)
	assert.Equal(t, 720*time.Hour, cfg.AI.CacheTTL)
	assert.Equal(t, 3, cfg.AI.MaxAttempts)
	assert.Equal(t, 10*time.Minute, cfg.OCR.Timeout)
	assert.Equal(t, 10, cfg.Credits.DefaultMonthlyLimit)
	assert.Equal(t, []int{90, 30, 7}, cfg.Alerts.WarningOffsets)
	assert.Equal(t, "0 0 6 * * *", cfg.Alerts.SweepSchedule)
	assert.False(t, cfg.OCR.DocumentAI.IsAvailable())
	assert.Empty(t, cfg.Redis.Host)
}

func TestLoadFile_MissingFileUsesEnvironment(t *testing.T) {
	t.Setenv("PGDATABASE", "from_env")

	cfg, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"), "v")
	require.NoError(t, err)
	assert.Equal(t, "from_env", cfg.Database.Database)
}

func TestLoadFile_BaseURLExplicit(t *testing.T) {
	os.Unsetenv("BASE_URL")
	cfg, err := LoadFile(writeConfig(t, `base_url: "https://renewals.example.com"`), "v")
	require.NoError(t, err)
	assert.Equal(t, "https://renewals.example.com", cfg.BaseURL)
}

func TestLoadFile_InvalidPipeline(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"zero threshold", "pipeline:\n  commit_threshold: 0\n"},
		{"threshold above one", "pipeline:\n  commit_threshold: 1.5\n"},
		{"weights do not sum to one", "pipeline:\n  ocr_weight: 0.5\n  pattern_weight: 0.4\n"},
		{"negative weight", "pipeline:\n  ocr_weight: 1.2\n  pattern_weight: -0.2\n"},
		{"no parallelism", "pipeline:\n  ai_parallelism: 0\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFile(writeConfig(t, tt.yaml), "v")
			assert.ErrorContains(t, err, "invalid pipeline configuration")
		})
	}
}

func TestLoadFile_InvalidOffsets(t *testing.T) {
	_, err := LoadFile(writeConfig(t, "alerts:\n  warning_offsets: \"90,abc\"\n"), "v")
	assert.ErrorContains(t, err, "warning_offsets")

	_, err = LoadFile(writeConfig(t, "alerts:\n  warning_offsets: \"90,-3\"\n"), "v")
	assert.ErrorContains(t, err, "positive")
}

func TestValidateTLS(t *testing.T) {
	dir := t.TempDir()
	cert := filepath.Join(dir, "cert.pem")
	key := filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(cert, []byte("cert"), 0o600))
	require.NoError(t, os.WriteFile(key, []byte("key"), 0o600))

	tests := []struct {
		name    string
		cert    string
		key     string
		wantErr string
	}{
		{"none", "", "", ""},
		{"both", cert, key, ""},
		{"only cert", cert, "", "must be provided together"},
		{"only key", "", key, "must be provided together"},
		{"missing cert", filepath.Join(dir, "nope.pem"), key, "cert file does not exist"},
		{"missing key", cert, filepath.Join(dir, "nope.pem"), "key file does not exist"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &Config{TLSCertPath: tt.cert, TLSKeyPath: tt.key}
			err := c.validateTLS()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLoadFile_TLSSetsHTTPSBaseURL(t *testing.T) {
	dir := t.TempDir()
	cert := filepath.Join(dir, "cert.pem")
	key := filepath.Join(dir, "key.pem")
	require.NoError(t, os.WriteFile(cert, []byte("cert"), 0o600))
	require.NoError(t, os.WriteFile(key, []byte("key"), 0o600))
	os.Unsetenv("BASE_URL")
	t.Setenv("TLS_CERT_PATH", cert)
	t.Setenv("TLS_KEY_PATH", key)
	t.Setenv("PORT", "8443")

	cfg, err := LoadFile(writeConfig(t, "env: test\n"), "v")
	require.NoError(t, err)
	assert.Equal(t, "https://localhost:8443", cfg.BaseURL)
}

func TestAIConfig_IsAvailable(t *testing.T) {
	assert.False(t, (&AIConfig{Provider: "openai", Model: "m"}).IsAvailable())
	assert.True(t, (&AIConfig{Provider: "openai", Model: "m", BaseURL: "http://localhost:11434/v1"}).IsAvailable())
	assert.False(t, (&AIConfig{Provider: "anthropic", Model: "m"}).IsAvailable())
	assert.True(t, (&AIConfig{Provider: "Anthropic", Model: "m", APIKey: "k"}).IsAvailable())
	assert.False(t, (&AIConfig{Provider: "anthropic", APIKey: "k"}).IsAvailable())
}

func TestDatabaseConfig_URL(t *testing.T) {
	c := &DatabaseConfig{Host: "db", Port: 5433, User: "u", Password: "p@ss", Database: "renewals", SSLMode: "disable"}
	assert.Equal(t, "postgres://u:p%40ss@db:5433/renewals?sslmode=disable", c.URL())
	assert.Equal(t, "host=db port=5433 user=u password=p@ss dbname=renewals sslmode=disable", c.ConnectionString())
}
