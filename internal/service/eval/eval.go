// Package eval runs question sets through the pipeline in batch and
// persists the outcomes for later aggregation.
package eval

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"sqlpilot/internal/batch"
	"sqlpilot/internal/domain"
	"sqlpilot/internal/metrics"
)

// Runner executes a question set and returns one outcome per question.
// Implemented by batch.Runner.
type Runner interface {
	Run(ctx context.Context, questions []batch.Question) domain.BatchResult
}

// Service loads question sets, runs them through the pipeline, and writes
// results back out. Persistence is optional so ad-hoc CLI runs work without
// a query log database.
type Service struct {
	runner Runner
	repo   domain.QueryLogRepository
	logger *slog.Logger
}

// NewService creates an eval Service.
func NewService(runner Runner, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{runner: runner, logger: logger.With("component", "eval")}
}

// SetRepository configures query log persistence for eval outcomes.
// This is optional. If not called, outcomes are only returned to the caller.
func (s *Service) SetRepository(repo domain.QueryLogRepository) {
	s.repo = repo
}

// Run executes the question set and persists each outcome when a repository
// is configured. Persistence failures are logged and do not fail the run.
func (s *Service) Run(ctx context.Context, questions []batch.Question) (domain.BatchResult, error) {
	if len(questions) == 0 {
		return nil, domain.ErrValidation("question set is empty")
	}

	results := s.runner.Run(ctx, questions)

	if s.repo != nil {
		persisted := 0
		for _, out := range results {
			if out == nil {
				continue
			}
			if _, err := s.repo.Insert(ctx, out.Record()); err != nil {
				s.logger.Warn("failed to persist eval outcome",
					"question", out.Question, "error", err)
				continue
			}
			persisted++
		}
		s.logger.Info("eval outcomes persisted", "persisted", persisted, "total", len(results))
	}

	return results, nil
}

// Summarize aggregates a batch result over the window spanned by its
// asked-at timestamps.
func (s *Service) Summarize(results domain.BatchResult) *metrics.Snapshot {
	var start, end time.Time
	for _, out := range results {
		if out == nil {
			continue
		}
		if start.IsZero() || out.AskedAt.Before(start) {
			start = out.AskedAt
		}
		if out.AskedAt.After(end) {
			end = out.AskedAt
		}
	}
	// The window upper bound is exclusive, so nudge it past the last record.
	end = end.Add(time.Millisecond)
	return metrics.NewAggregator(s.logger).SnapshotOutcomes(results, start, end)
}

// LoadQuestionsCSV parses a question set. The header row must contain a
// "question" column; "context" and "category" columns are optional. Rows
// with a blank question are skipped.
func LoadQuestionsCSV(r io.Reader) ([]batch.Question, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, domain.ErrValidation("question file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	cols := map[string]int{}
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	qIdx, ok := cols["question"]
	if !ok {
		return nil, domain.ErrValidation("question file has no %q column", "question")
	}
	ctxIdx, hasCtx := cols["context"]
	catIdx, hasCat := cols["category"]

	field := func(row []string, idx int) string {
		if idx < len(row) {
			return strings.TrimSpace(row[idx])
		}
		return ""
	}

	var questions []batch.Question
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}
		q := batch.Question{Text: field(row, qIdx)}
		if q.Text == "" {
			continue
		}
		if hasCtx {
			q.Context = field(row, ctxIdx)
		}
		if hasCat {
			q.Category = field(row, catIdx)
		}
		questions = append(questions, q)
	}
	return questions, nil
}

// resultHeader is the column layout of a results CSV, one flat row per
// outcome in input order.
var resultHeader = []string{
	"question", "category", "user_id", "status",
	"initial_sql", "refined_sql", "final_sql", "error",
	"rows_returned", "confidence",
	"asked_at", "generated_at", "executed_at",
}

// WriteResultsCSV writes one row per outcome, preserving batch order.
func WriteResultsCSV(w io.Writer, results domain.BatchResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(resultHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, out := range results {
		if out == nil {
			continue
		}
		rec := out.Record()
		row := []string{
			rec.Question,
			strPtr(rec.Category),
			strPtr(rec.UserID),
			string(rec.Status),
			strPtr(rec.InitialSQL),
			strPtr(rec.RefinedSQL),
			strPtr(rec.FinalSQL),
			strPtr(rec.Error),
			intPtr(rec.RowsReturned),
			floatPtr(rec.Confidence),
			timePtr(rec.AskedAt),
			timePtr(rec.GeneratedAt),
			timePtr(rec.ExecutedAt),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func strPtr(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}

func intPtr(v *int64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatInt(*v, 10)
}

func floatPtr(v *float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v, 'f', -1, 64)
}

func timePtr(v *time.Time) string {
	if v == nil {
		return ""
	}
	return v.UTC().Format(time.RFC3339Nano)
}
