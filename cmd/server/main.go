// Command server runs the NL-to-SQL pipeline HTTP API.
package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	_ "github.com/mattn/go-sqlite3"
	"github.com/robfig/cron/v3"

	"sqlpilot/internal/app"
	"sqlpilot/internal/config"
	internaldb "sqlpilot/internal/db"
	"sqlpilot/internal/middleware"
)

func main() {
	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	if err := config.LoadDotEnv(".env"); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger := newLogger(cfg)
	slog.SetDefault(logger)
	for _, warning := range cfg.Warnings {
		logger.Warn(warning)
	}

	// Target DuckDB the generated SQL runs against. An empty path opens an
	// in-memory database.
	targetDB, err := sql.Open("duckdb", cfg.TargetDBPath)
	if err != nil {
		return fmt.Errorf("open target database: %w", err)
	}
	defer targetDB.Close() //nolint:errcheck

	if cfg.BootstrapSQL != "" {
		if err := bootstrapTarget(targetDB, cfg.BootstrapSQL); err != nil {
			return err
		}
		logger.Info("target database bootstrapped", "file", cfg.BootstrapSQL)
	}

	// Query log: single-writer pool plus a read pool, WAL mode.
	writeDB, readDB, err := internaldb.OpenSQLitePair(cfg.LogDBPath, 4)
	if err != nil {
		return fmt.Errorf("open query log: %w", err)
	}
	defer writeDB.Close() //nolint:errcheck
	defer readDB.Close()  //nolint:errcheck

	if err := internaldb.RunMigrations(writeDB); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	a, err := app.New(app.Deps{
		Cfg:      cfg,
		TargetDB: targetDB,
		WriteDB:  writeDB,
		ReadDB:   readDB,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("wire application: %w", err)
	}

	authMW, err := middleware.Auth(middleware.AuthConfig{
		JWTSecret:    cfg.Auth.JWTSecret,
		APIKey:       cfg.Auth.APIKey,
		APIKeyHeader: cfg.Auth.APIKeyHeader,
		NameClaim:    cfg.Auth.NameClaim,
	})
	if err != nil {
		return fmt.Errorf("configure auth: %w", err)
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(chimw.Logger)
	r.Use(chimw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSAllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Authorization", "Content-Type", cfg.Auth.APIKeyHeader, "X-User-ID"},
		MaxAge:         300,
	}))
	r.Use(middleware.RateLimiter(middleware.RateLimitConfig{
		RequestsPerSecond: cfg.RateLimitRPS,
		Burst:             cfg.RateLimitBurst,
	}))
	r.Mount("/", a.Handler.Routes(authMW))

	// Scheduled report, printed to the log on the configured cron spec.
	var scheduler *cron.Cron
	if a.Services.Report != nil {
		a.Services.Report.SetHealthURL(localHealthURL(cfg.ListenAddr))
		scheduler = cron.New()
		_, err := scheduler.AddFunc(cfg.ReportCron, func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			text, err := a.Services.Report.Generate(ctx, cfg.ReportPeriodDays)
			if err != nil {
				logger.Error("scheduled report failed", "error", err)
				return
			}
			fmt.Println(text)
		})
		if err != nil {
			return fmt.Errorf("schedule report (%q): %w", cfg.ReportCron, err)
		}
		scheduler.Start()
		defer scheduler.Stop()
		logger.Info("report scheduled", "cron", cfg.ReportCron, "period_days", cfg.ReportPeriodDays)
	}

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("HTTP API listening", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.SlogLevel()}
	if cfg.IsProduction() {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// bootstrapTarget executes the bootstrap SQL file against the target
// database, typically CREATE TABLE ... AS SELECT statements loading demo
// data.
func bootstrapTarget(db *sql.DB, path string) error {
	script, err := os.ReadFile(path) //nolint:gosec // operator-supplied path
	if err != nil {
		return fmt.Errorf("read bootstrap sql: %w", err)
	}
	if _, err := db.Exec(string(script)); err != nil {
		return fmt.Errorf("run bootstrap sql: %w", err)
	}
	return nil
}

// localHealthURL derives the loopback health endpoint from the listen
// address for the report uptime probe.
func localHealthURL(addr string) string {
	if strings.HasPrefix(addr, ":") {
		addr = "127.0.0.1" + addr
	}
	return "http://" + addr + "/healthz"
}
