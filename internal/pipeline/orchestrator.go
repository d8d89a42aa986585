// Package pipeline sequences SQL generation, execution, and one bounded
// refinement attempt into a single terminal outcome per question.
package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"sqlpilot/internal/domain"
)

// DefaultSystemInstruction is used when no instruction is configured.
const DefaultSystemInstruction = "You are a SQL assistant. Translate the user's question into a single SQL statement for the target database. Return only SQL."

// Orchestrator drives one question through generate and execute, then on
// failure refine and execute once more. Every collaborator failure is
// captured into the outcome; RunOne never returns an error.
type Orchestrator struct {
	generator domain.Generator
	executor  domain.Executor
	refiner   domain.Refiner

	fetcher     domain.ContextFetcher
	instruction string
	logger      *slog.Logger
}

// NewOrchestrator creates an Orchestrator over the three collaborators.
func NewOrchestrator(gen domain.Generator, exec domain.Executor, ref domain.Refiner, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		generator:   gen,
		executor:    exec,
		refiner:     ref,
		instruction: DefaultSystemInstruction,
		logger:      logger,
	}
}

// SetContextFetcher configures optional context enrichment.
// This is optional; if not called, questions run without extra context.
func (o *Orchestrator) SetContextFetcher(f domain.ContextFetcher) {
	o.fetcher = f
}

// SetSystemInstruction overrides the generator's system instruction.
func (o *Orchestrator) SetSystemInstruction(instruction string) {
	if strings.TrimSpace(instruction) != "" {
		o.instruction = instruction
	}
}

// RunOne produces exactly one outcome for the question. contextBlob is
// caller-supplied enrichment; when empty and a fetcher is configured, the
// fetcher is consulted (its failure is tolerated).
func (o *Orchestrator) RunOne(ctx context.Context, question, contextBlob string) *domain.Outcome {
	out := &domain.Outcome{
		Question: question,
		AskedAt:  time.Now().UTC(),
	}
	if u, ok := domain.UserFromContext(ctx); ok {
		name := u.Name
		out.UserID = &name
	}

	instruction := o.instruction
	if blob := o.resolveContext(ctx, question, contextBlob); blob != "" {
		instruction = instruction + "\n\nContext:\n" + blob
	}

	// GENERATING
	initialSQL, err := o.generator.Generate(ctx, question, instruction)
	if err != nil {
		o.logger.Warn("generation failed", "error", err)
		msg := err.Error()
		out.Status = domain.StatusError
		out.Error = &msg
		return out
	}
	now := time.Now().UTC()
	out.InitialSQL = &initialSQL
	out.GeneratedAt = &now

	// EXECUTING_INITIAL
	rows, execErr := o.execute(ctx, out, initialSQL)
	if execErr == nil {
		out.Status = domain.StatusSuccess
		out.FinalSQL = out.InitialSQL
		out.Rows = rows
		return out
	}
	o.logger.Debug("initial execution failed, refining", "error", execErr)

	// Refinement happens exactly once.
	refinement, refErr := o.refiner.Refine(ctx, initialSQL, question, execErr.Error())
	if refErr != nil {
		o.logger.Warn("refinement failed", "error", refErr)
		msg := refErr.Error()
		out.Status = domain.StatusFailed
		out.Error = &msg
		return out
	}
	refinedSQL := refinement.SQL
	out.RefinedSQL = &refinedSQL
	out.Confidence = refinement.Confidence

	// EXECUTING_REFINED
	rows, execErr = o.execute(ctx, out, refinedSQL)
	if execErr != nil {
		o.logger.Warn("refined execution failed", "error", execErr)
		msg := execErr.Error()
		out.Status = domain.StatusFailed
		out.Error = &msg
		return out
	}
	out.Status = domain.StatusRefinedSuccess
	out.FinalSQL = out.RefinedSQL
	out.Rows = rows
	return out
}

// execute runs one attempt and stamps the execution timestamp whether or
// not the attempt succeeded. A nil row set on success is normalised to an
// empty one so successful outcomes always carry rows.
func (o *Orchestrator) execute(ctx context.Context, out *domain.Outcome, sqlText string) ([]domain.Row, error) {
	rows, err := o.executor.Execute(ctx, sqlText)
	now := time.Now().UTC()
	out.ExecutedAt = &now
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []domain.Row{}
	}
	return rows, nil
}

func (o *Orchestrator) resolveContext(ctx context.Context, question, contextBlob string) string {
	if contextBlob != "" {
		return contextBlob
	}
	if o.fetcher == nil {
		return ""
	}
	blob, err := o.fetcher.FetchContext(ctx, question)
	if err != nil {
		o.logger.Warn("context fetch failed, continuing without context", "error", err)
		return ""
	}
	return blob
}
