// Package engine implements the Executor port over a DuckDB database.
package engine

import (
	"context"
	"database/sql"
	"log/slog"
	"strings"
	"time"

	"sqlpilot/internal/domain"
)

// DuckDBExecutor runs SQL statements against a DuckDB handle and returns
// column-keyed rows. Driver failures surface as domain.ExecutionError with
// the driver message intact, since the refiner consumes it verbatim.
type DuckDBExecutor struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewDuckDBExecutor creates an executor over db.
func NewDuckDBExecutor(db *sql.DB, logger *slog.Logger) *DuckDBExecutor {
	if logger == nil {
		logger = slog.Default()
	}
	return &DuckDBExecutor{db: db, logger: logger}
}

var _ domain.Executor = (*DuckDBExecutor)(nil)

// Execute runs sqlText and scans the full result set.
func (e *DuckDBExecutor) Execute(ctx context.Context, sqlText string) ([]domain.Row, error) {
	if strings.TrimSpace(sqlText) == "" {
		return nil, domain.ErrExecution("sql statement is empty")
	}

	start := time.Now()
	rows, err := e.db.QueryContext(ctx, sqlText)
	if err != nil {
		return nil, domain.ErrExecution("%s", err.Error())
	}
	defer rows.Close() //nolint:errcheck

	result, err := scanRows(rows)
	if err != nil {
		return nil, domain.ErrExecution("scan results: %v", err)
	}

	e.logger.Debug("query executed",
		"rows", len(result),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result, nil
}

func scanRows(rows *sql.Rows) ([]domain.Row, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	result := []domain.Row{}
	for rows.Next() {
		vals := make([]interface{}, len(cols))
		ptrs := make([]interface{}, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		row := make(domain.Row, len(cols))
		for i, v := range vals {
			// Convert byte slices to strings for JSON serialization
			if b, ok := v.([]byte); ok {
				row[cols[i]] = string(b)
			} else {
				row[cols[i]] = v
			}
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
