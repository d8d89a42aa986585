// Package config handles application configuration and environment loading.
package config

import (
	"bufio"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// LLMConfig holds completion-endpoint settings for the generator and
// refiner.
type LLMConfig struct {
	BaseURL string        // OpenAI-compatible endpoint base (e.g. https://api.openai.com/v1)
	APIKey  string        // bearer token (optional for local endpoints)
	Model   string        // model identifier
	Timeout time.Duration // per-request timeout (default 60s)
	RPS     float64       // client-side sustained requests per second (default 2)
	Burst   int           // client-side burst capacity (default 4)
}

// Validate checks that the LLM configuration is usable.
func (l *LLMConfig) Validate() error {
	if l.BaseURL == "" {
		return fmt.Errorf("LLM_BASE_URL must be set")
	}
	if l.Model == "" {
		return fmt.Errorf("LLM_MODEL must be set")
	}
	return nil
}

// AuthConfig holds API authentication configuration.
type AuthConfig struct {
	JWTSecret    string // HS256 shared secret for bearer JWT auth
	APIKey       string // static API key accepted alongside JWTs (optional)
	APIKeyHeader string // header name for API keys (default: X-API-Key)
	NameClaim    string // JWT claim for the caller name (default: "email")
}

// Enabled returns true when any credential verification is configured.
func (a *AuthConfig) Enabled() bool {
	return a.JWTSecret != "" || a.APIKey != ""
}

// Config holds configuration for the pipeline server and eval tooling.
type Config struct {
	TargetDBPath  string // DuckDB database file; empty runs in-memory
	BootstrapSQL  string // optional SQL file executed against the target at startup
	LogDBPath     string // SQLite query log file (default "sqlpilot_log.sqlite")
	ListenAddr    string // HTTP listen address (default ":8080")
	LogLevel      string // log level: debug, info, warn, error (default "info")
	Env           string // environment: "development" (default) or "production"
	SystemPrompt  string // override for the generator's system instruction
	EvalWorkers   int    // batch parallelism bound (default 1, sequential)
	QuestionTimeout time.Duration // per-question deadline (default 2m, 0 disables)

	// Scheduled metrics report.
	ReportCron       string // cron spec (default "0 9 * * 1", Monday 09:00)
	ReportPeriodDays int    // window length in days (default 7)

	// HTTP rate limiting.
	RateLimitRPS   float64 // sustained requests per second (default 100)
	RateLimitBurst int     // burst capacity (default 200)

	// CORS.
	CORSAllowedOrigins []string // allowed origins for CORS (default: ["*"])

	LLM  LLMConfig
	Auth AuthConfig

	// Warnings collects non-fatal warnings generated during config loading.
	// These are logged by the caller after the logger is initialised.
	Warnings []string
}

// SlogLevel maps the LogLevel string to an slog.Level.
func (c *Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// IsProduction returns true when running in production mode.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// LoadFromEnv loads configuration from environment variables.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		TargetDBPath: os.Getenv("TARGET_DB_PATH"),
		BootstrapSQL: os.Getenv("BOOTSTRAP_SQL_FILE"),
		LogDBPath:    os.Getenv("LOG_DB_PATH"),
		ListenAddr:   os.Getenv("LISTEN_ADDR"),
		LogLevel:     os.Getenv("LOG_LEVEL"),
		Env:          os.Getenv("ENV"),
		SystemPrompt: os.Getenv("SYSTEM_PROMPT"),
		ReportCron:   os.Getenv("REPORT_CRON"),
	}

	cfg.LLM = LLMConfig{
		BaseURL: os.Getenv("LLM_BASE_URL"),
		APIKey:  os.Getenv("LLM_API_KEY"),
		Model:   os.Getenv("LLM_MODEL"),
	}
	if v := os.Getenv("LLM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.LLM.Timeout = d
		}
	}
	if v := os.Getenv("LLM_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.LLM.RPS = f
		}
	}
	if v := os.Getenv("LLM_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.LLM.Burst = n
		}
	}

	cfg.Auth = AuthConfig{
		JWTSecret:    os.Getenv("JWT_SECRET"),
		APIKey:       os.Getenv("AUTH_API_KEY"),
		APIKeyHeader: os.Getenv("AUTH_API_KEY_HEADER"),
		NameClaim:    os.Getenv("AUTH_NAME_CLAIM"),
	}

	if v := os.Getenv("EVAL_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.EvalWorkers = n
		}
	}
	if v := os.Getenv("QUESTION_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.QuestionTimeout = d
		}
	}
	if v := os.Getenv("REPORT_PERIOD_DAYS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.ReportPeriodDays = n
		}
	}
	if v := os.Getenv("RATE_LIMIT_RPS"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RateLimitRPS = f
		}
	}
	if v := os.Getenv("RATE_LIMIT_BURST"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.RateLimitBurst = n
		}
	}
	if v := os.Getenv("CORS_ALLOWED_ORIGINS"); v != "" {
		origins := strings.Split(v, ",")
		for i := range origins {
			origins[i] = strings.TrimSpace(origins[i])
		}
		cfg.CORSAllowedOrigins = origins
	}

	// Defaults
	if cfg.LogDBPath == "" {
		cfg.LogDBPath = "sqlpilot_log.sqlite"
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.EvalWorkers <= 0 {
		cfg.EvalWorkers = 1
	}
	if cfg.QuestionTimeout == 0 {
		cfg.QuestionTimeout = 2 * time.Minute
	}
	if cfg.ReportCron == "" {
		cfg.ReportCron = "0 9 * * 1"
	}
	if cfg.ReportPeriodDays <= 0 {
		cfg.ReportPeriodDays = 7
	}
	if cfg.RateLimitRPS == 0 {
		cfg.RateLimitRPS = 100
	}
	if cfg.RateLimitBurst == 0 {
		cfg.RateLimitBurst = 200
	}
	if len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"*"}
	}
	if cfg.Auth.APIKeyHeader == "" {
		cfg.Auth.APIKeyHeader = "X-API-Key"
	}
	if cfg.Auth.NameClaim == "" {
		cfg.Auth.NameClaim = "email"
	}

	if err := cfg.LLM.Validate(); err != nil {
		return nil, err
	}
	if !cfg.Auth.Enabled() {
		cfg.Warnings = append(cfg.Warnings, "no auth configured (set JWT_SECRET or AUTH_API_KEY); all callers are anonymous")
	}
	if cfg.TargetDBPath == "" {
		cfg.Warnings = append(cfg.Warnings, "TARGET_DB_PATH not set; using an in-memory DuckDB that is lost on restart")
	}

	// Production mode: insecure defaults are fatal errors.
	if cfg.IsProduction() {
		if !cfg.Auth.Enabled() {
			return nil, fmt.Errorf("auth must be configured in production (set JWT_SECRET or AUTH_API_KEY)")
		}
		if len(cfg.CORSAllowedOrigins) == 1 && cfg.CORSAllowedOrigins[0] == "*" {
			return nil, fmt.Errorf("CORS wildcard (*) is not allowed in production (ENV=production)")
		}
	}

	return cfg, nil
}

// LoadDotEnv reads a .env file and sets any variables not already in the
// environment. Lines must be in KEY=VALUE format. Comments (#) and blank
// lines are skipped.
func LoadDotEnv(path string) error {
	f, err := os.Open(path) //nolint:gosec // path is caller-controlled
	if err != nil {
		if os.IsNotExist(err) {
			return nil // .env not found is not an error
		}
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close() //nolint:errcheck

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		value = stripQuotes(strings.TrimSpace(value))
		// Only set if not already in the environment (env vars take precedence)
		if os.Getenv(key) == "" {
			if err := os.Setenv(key, value); err != nil {
				return fmt.Errorf("setenv %s: %w", key, err)
			}
		}
	}
	return scanner.Err()
}

// stripQuotes removes surrounding double or single quotes from a value.
// Only strips if both the first and last characters are matching quotes.
func stripQuotes(s string) string {
	if len(s) >= 2 {
		if (s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'') {
			return s[1 : len(s)-1]
		}
	}
	return s
}
