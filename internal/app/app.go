// Package app provides application-level wiring and dependency injection.
package app

import (
	"database/sql"
	"log/slog"

	"sqlpilot/internal/api"
	"sqlpilot/internal/batch"
	"sqlpilot/internal/config"
	"sqlpilot/internal/db/repository"
	"sqlpilot/internal/domain"
	"sqlpilot/internal/engine"
	"sqlpilot/internal/llm"
	"sqlpilot/internal/pipeline"
	"sqlpilot/internal/service/eval"
	"sqlpilot/internal/service/report"
)

// Deps holds the external dependencies that main() must provide: database
// handles, config, and the logger. Opening and closing them stays with the
// caller.
type Deps struct {
	Cfg      *config.Config
	TargetDB *sql.DB // DuckDB handle queries run against
	WriteDB  *sql.DB // SQLite query log, single writer
	ReadDB   *sql.DB // SQLite query log, read pool
	Logger   *slog.Logger
}

// Services groups the service pointers the API handler and CLI need.
type Services struct {
	Pipeline *pipeline.Orchestrator
	Runner   *batch.Runner
	Eval     *eval.Service
	Report   *report.Service
}

// App holds the fully-wired application.
type App struct {
	Services Services
	Handler  *api.Handler
	LogRepo  domain.QueryLogRepository
}

// New wires the LLM client, executor, pipeline, and services from the
// provided deps.
func New(deps Deps) (*App, error) {
	cfg := deps.Cfg
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	client, err := llm.NewClient(llm.Config{
		BaseURL: cfg.LLM.BaseURL,
		APIKey:  cfg.LLM.APIKey,
		Model:   cfg.LLM.Model,
		Timeout: cfg.LLM.Timeout,
		RPS:     cfg.LLM.RPS,
		Burst:   cfg.LLM.Burst,
	}, logger)
	if err != nil {
		return nil, err
	}

	executor := engine.NewDuckDBExecutor(deps.TargetDB, logger)

	orc := pipeline.NewOrchestrator(client, executor, client, logger)
	if cfg.SystemPrompt != "" {
		orc.SetSystemInstruction(cfg.SystemPrompt)
	}

	runner := batch.NewRunner(orc, logger)
	runner.SetWorkers(cfg.EvalWorkers)
	runner.SetTimeout(cfg.QuestionTimeout)

	var logRepo domain.QueryLogRepository
	evalSvc := eval.NewService(runner, logger)
	var reportSvc *report.Service
	if deps.WriteDB != nil {
		repo := repository.NewQueryLogRepo(deps.WriteDB, deps.ReadDB)
		logRepo = repo
		evalSvc.SetRepository(repo)
		reportSvc = report.NewService(repo, logger)
	}

	handler := api.NewHandler(orc, evalSvc, reportSvc, logRepo, logger)

	return &App{
		Services: Services{
			Pipeline: orc,
			Runner:   runner,
			Eval:     evalSvc,
			Report:   reportSvc,
		},
		Handler: handler,
		LogRepo: logRepo,
	}, nil
}
