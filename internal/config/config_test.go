package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// clearEnv unsets every variable LoadFromEnv reads so tests are hermetic.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"TARGET_DB_PATH", "BOOTSTRAP_SQL_FILE", "LOG_DB_PATH", "LISTEN_ADDR",
		"LOG_LEVEL", "ENV", "SYSTEM_PROMPT", "REPORT_CRON", "REPORT_PERIOD_DAYS",
		"LLM_BASE_URL", "LLM_API_KEY", "LLM_MODEL", "LLM_TIMEOUT", "LLM_RPS", "LLM_BURST",
		"JWT_SECRET", "AUTH_API_KEY", "AUTH_API_KEY_HEADER", "AUTH_NAME_CLAIM",
		"EVAL_WORKERS", "QUESTION_TIMEOUT", "RATE_LIMIT_RPS", "RATE_LIMIT_BURST",
		"CORS_ALLOWED_ORIGINS",
	} {
		t.Setenv(key, "")
		require.NoError(t, os.Unsetenv(key))
	}
}

func TestLoadFromEnv_Defaults(t *testing.T) {
	clearEnv(t)
	t.Setenv("LLM_BASE_URL", "http://localhost:8000/v1")
	t.Setenv("LLM_MODEL", "test-model")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "sqlpilot_log.sqlite", cfg.LogDBPath)
	assert.Equal(t, ":8080", cfg.ListenAddr)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 1, cfg.EvalWorkers)
	assert.Equal(t, 2*time.Minute, cfg.QuestionTimeout)
	assert.Equal(t, "0 9 * * 1", cfg.ReportCron)
	assert.Equal(t, 7, cfg.ReportPeriodDays)
	assert.Equal(t, float64(100), cfg.RateLimitRPS)
	assert.Equal(t, []string{"*"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, "X-API-Key", cfg.Auth.APIKeyHeader)
	assert.Equal(t, "email", cfg.Auth.NameClaim)
	assert.False(t, cfg.IsProduction())

	// Missing auth and target DB are warnings, not errors.
	assert.NotEmpty(t, cfg.Warnings)
}

func TestLoadFromEnv_MissingLLMConfigFails(t *testing.T) {
	clearEnv(t)

	_, err := LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LLM_BASE_URL")

	t.Setenv("LLM_BASE_URL", "http://localhost:8000/v1")
	_, err = LoadFromEnv()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LLM_MODEL")
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("LLM_BASE_URL", "http://localhost:8000/v1")
	t.Setenv("LLM_MODEL", "test-model")
	t.Setenv("LLM_TIMEOUT", "30s")
	t.Setenv("EVAL_WORKERS", "8")
	t.Setenv("QUESTION_TIMEOUT", "45s")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
	assert.Equal(t, 8, cfg.EvalWorkers)
	assert.Equal(t, 45*time.Second, cfg.QuestionTimeout)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	assert.Equal(t, []string{"https://a.example.com", "https://b.example.com"}, cfg.CORSAllowedOrigins)
}

func TestLoadFromEnv_ProductionValidation(t *testing.T) {
	clearEnv(t)
	t.Setenv("LLM_BASE_URL", "http://localhost:8000/v1")
	t.Setenv("LLM_MODEL", "test-model")
	t.Setenv("ENV", "production")

	_, err := LoadFromEnv()
	require.Error(t, err, "production requires auth")

	t.Setenv("JWT_SECRET", "super-secret")
	_, err = LoadFromEnv()
	require.Error(t, err, "production forbids CORS wildcard")

	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com")
	cfg, err := LoadFromEnv()
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
}

func TestSlogLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"bogus":   slog.LevelInfo,
	}
	for in, want := range cases {
		cfg := &Config{LogLevel: in}
		assert.Equal(t, want, cfg.SlogLevel(), in)
	}
}

func TestLoadDotEnv(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# comment\nLLM_MODEL=dotenv-model\nLLM_BASE_URL=\"http://quoted:8000/v1\"\n\nBROKEN LINE\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	// Real env takes precedence over .env values.
	t.Setenv("LLM_MODEL", "env-model")

	require.NoError(t, LoadDotEnv(path))
	assert.Equal(t, "env-model", os.Getenv("LLM_MODEL"))
	assert.Equal(t, "http://quoted:8000/v1", os.Getenv("LLM_BASE_URL"))

	t.Run("missing_file_is_not_an_error", func(t *testing.T) {
		assert.NoError(t, LoadDotEnv(filepath.Join(dir, "nope.env")))
	})
}
