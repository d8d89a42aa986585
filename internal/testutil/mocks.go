// Package testutil provides shared function-field mocks for the domain
// ports. A mock whose function field is unset panics on use, so tests fail
// loudly on unexpected calls.
package testutil

import (
	"context"

	"sqlpilot/internal/domain"
)

// === Generator mock ===

// MockGenerator implements domain.Generator for testing.
type MockGenerator struct {
	GenerateFn func(ctx context.Context, question, systemInstruction string) (string, error)
}

// Generate implements the interface method for testing.
func (m *MockGenerator) Generate(ctx context.Context, question, systemInstruction string) (string, error) {
	if m.GenerateFn != nil {
		return m.GenerateFn(ctx, question, systemInstruction)
	}
	panic("unexpected call to MockGenerator.Generate")
}

var _ domain.Generator = (*MockGenerator)(nil)

// === Executor mock ===

// MockExecutor implements domain.Executor for testing.
type MockExecutor struct {
	ExecuteFn func(ctx context.Context, sqlText string) ([]domain.Row, error)
}

// Execute implements the interface method for testing.
func (m *MockExecutor) Execute(ctx context.Context, sqlText string) ([]domain.Row, error) {
	if m.ExecuteFn != nil {
		return m.ExecuteFn(ctx, sqlText)
	}
	panic("unexpected call to MockExecutor.Execute")
}

var _ domain.Executor = (*MockExecutor)(nil)

// === Refiner mock ===

// MockRefiner implements domain.Refiner for testing.
type MockRefiner struct {
	RefineFn func(ctx context.Context, failedSQL, question, executionError string) (*domain.Refinement, error)
}

// Refine implements the interface method for testing.
func (m *MockRefiner) Refine(ctx context.Context, failedSQL, question, executionError string) (*domain.Refinement, error) {
	if m.RefineFn != nil {
		return m.RefineFn(ctx, failedSQL, question, executionError)
	}
	panic("unexpected call to MockRefiner.Refine")
}

var _ domain.Refiner = (*MockRefiner)(nil)

// === ContextFetcher mock ===

// MockContextFetcher implements domain.ContextFetcher for testing.
type MockContextFetcher struct {
	FetchContextFn func(ctx context.Context, question string) (string, error)
}

// FetchContext implements the interface method for testing.
func (m *MockContextFetcher) FetchContext(ctx context.Context, question string) (string, error) {
	if m.FetchContextFn != nil {
		return m.FetchContextFn(ctx, question)
	}
	panic("unexpected call to MockContextFetcher.FetchContext")
}

var _ domain.ContextFetcher = (*MockContextFetcher)(nil)

// === Query log repository mock ===

// MockQueryLogRepo implements domain.QueryLogRepository for testing.
type MockQueryLogRepo struct {
	InsertFn     func(ctx context.Context, rec *domain.QueryRecord) (*domain.QueryRecord, error)
	ListWindowFn func(ctx context.Context, filter domain.RecordFilter) ([]domain.QueryRecord, int64, error)
}

// Insert implements the interface method for testing.
func (m *MockQueryLogRepo) Insert(ctx context.Context, rec *domain.QueryRecord) (*domain.QueryRecord, error) {
	if m.InsertFn != nil {
		return m.InsertFn(ctx, rec)
	}
	panic("unexpected call to MockQueryLogRepo.Insert")
}

// ListWindow implements the interface method for testing.
func (m *MockQueryLogRepo) ListWindow(ctx context.Context, filter domain.RecordFilter) ([]domain.QueryRecord, int64, error) {
	if m.ListWindowFn != nil {
		return m.ListWindowFn(ctx, filter)
	}
	panic("unexpected call to MockQueryLogRepo.ListWindow")
}

var _ domain.QueryLogRepository = (*MockQueryLogRepo)(nil)
