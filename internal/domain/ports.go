package domain

import "context"

// Generator produces a candidate SQL statement for a natural-language
// question. Implemented by llm.Client.
type Generator interface {
	Generate(ctx context.Context, question, systemInstruction string) (string, error)
}

// Executor runs a SQL statement against the target database.
// Implemented by engine.DuckDBExecutor. Failures carry a message usable
// by the refiner.
type Executor interface {
	Execute(ctx context.Context, sqlText string) ([]Row, error)
}

// Refinement is a corrected SQL candidate with the refiner's optional
// self-reported confidence.
type Refinement struct {
	SQL        string
	Confidence *float64
}

// Refiner corrects a previously failed SQL candidate using the original
// question and the execution error. Implemented by llm.Client.
type Refiner interface {
	Refine(ctx context.Context, failedSQL, question, executionError string) (*Refinement, error)
}

// ContextFetcher retrieves optional schema or business context for a
// question. An empty result or an error must never prevent the pipeline
// from running.
type ContextFetcher interface {
	FetchContext(ctx context.Context, question string) (string, error)
}

// QueryLogRepository persists pipeline outcomes and serves windowed reads
// for aggregation and history listing.
type QueryLogRepository interface {
	Insert(ctx context.Context, rec *QueryRecord) (*QueryRecord, error)
	ListWindow(ctx context.Context, filter RecordFilter) ([]QueryRecord, int64, error)
}
