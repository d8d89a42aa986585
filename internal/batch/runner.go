// Package batch drives the pipeline orchestrator over an ordered collection
// of questions, tolerating per-question failures without aborting the batch.
package batch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"sqlpilot/internal/domain"
)

// Orchestrator is the single-question pipeline the runner drives.
// Implemented by pipeline.Orchestrator.
type Orchestrator interface {
	RunOne(ctx context.Context, question, contextBlob string) *domain.Outcome
}

// Question is one unit of batch work: the question text plus optional
// caller-supplied context and a category label for metrics breakdowns.
type Question struct {
	Text     string
	Context  string
	Category string
}

// Runner iterates questions through the orchestrator and collects one
// outcome per question, in input order. Questions share no mutable state;
// a misbehaving collaborator can panic or stall without taking the batch
// down with it.
type Runner struct {
	orc     Orchestrator
	workers int
	timeout time.Duration
	logger  *slog.Logger
}

// NewRunner creates a sequential Runner. Use SetWorkers for bounded
// parallelism and SetTimeout for a per-question deadline.
func NewRunner(orc Orchestrator, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{orc: orc, workers: 1, logger: logger}
}

// SetWorkers bounds batch parallelism. Values below 1 mean sequential.
func (r *Runner) SetWorkers(n int) {
	if n < 1 {
		n = 1
	}
	r.workers = n
}

// SetTimeout applies a deadline around each question's whole orchestrator
// invocation. Zero disables the deadline.
func (r *Runner) SetTimeout(d time.Duration) {
	r.timeout = d
}

// Run produces a BatchResult of exactly len(questions) outcomes in input
// order, regardless of completion order or per-question failures.
func (r *Runner) Run(ctx context.Context, questions []Question) domain.BatchResult {
	runID := uuid.NewString()
	logger := r.logger.With("run_id", runID)
	logger.Info("batch started", "questions", len(questions), "workers", r.workers)

	start := time.Now()
	results := make(domain.BatchResult, len(questions))

	if r.workers <= 1 {
		for i, q := range questions {
			results[i] = r.runOne(ctx, q)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(r.workers)
		for i, q := range questions {
			g.Go(func() error {
				results[i] = r.runOne(ctx, q)
				return nil
			})
		}
		_ = g.Wait() // workers never return errors; failures live in the outcomes
	}

	var failed int
	for _, out := range results {
		if !out.Status.Succeeded() {
			failed++
		}
	}
	logger.Info("batch complete",
		"questions", len(questions),
		"failed", failed,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return results
}

// runOne wraps a single invocation with the per-question deadline. An
// in-flight question is not cancelled mid-stage; on timeout its goroutine
// is left to drain and a timeout outcome is recorded in its place.
func (r *Runner) runOne(ctx context.Context, q Question) *domain.Outcome {
	if r.timeout <= 0 {
		return r.invoke(ctx, q)
	}

	tctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	done := make(chan *domain.Outcome, 1)
	go func() {
		done <- r.invoke(tctx, q)
	}()

	select {
	case out := <-done:
		return out
	case <-tctx.Done():
		r.logger.Warn("question timed out", "timeout", r.timeout)
		return errorOutcome(q, fmt.Sprintf("question timed out after %s", r.timeout))
	}
}

// invoke calls the orchestrator, converting a panic (contract violation by
// a misbehaving collaborator) into a synthesized error outcome.
func (r *Runner) invoke(ctx context.Context, q Question) (out *domain.Outcome) {
	defer func() {
		if rec := recover(); rec != nil {
			msg := fmt.Sprintf("panic: %v", rec)
			r.logger.Error("pipeline panicked", "question", q.Text, "error", msg)
			out = errorOutcome(q, msg)
		}
	}()

	out = r.orc.RunOne(ctx, q.Text, q.Context)
	if out == nil {
		return errorOutcome(q, "orchestrator returned no outcome")
	}
	if q.Category != "" && out.Category == nil {
		category := q.Category
		out.Category = &category
	}
	return out
}

func errorOutcome(q Question, msg string) *domain.Outcome {
	out := &domain.Outcome{
		Question: q.Text,
		Status:   domain.StatusError,
		Error:    &msg,
		AskedAt:  time.Now().UTC(),
	}
	if q.Category != "" {
		category := q.Category
		out.Category = &category
	}
	return out
}
