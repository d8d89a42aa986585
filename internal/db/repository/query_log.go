// Package repository provides SQL-backed implementations of the domain
// repository ports.
package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"sqlpilot/internal/domain"
)

// QueryLogRepo persists pipeline outcomes in the query_log table. Writes go
// through the single-writer pool; reads use the read pool.
type QueryLogRepo struct {
	writeDB *sql.DB
	readDB  *sql.DB
}

// NewQueryLogRepo creates a QueryLogRepo over a write/read pool pair.
// readDB may be nil, in which case reads share the write pool.
func NewQueryLogRepo(writeDB, readDB *sql.DB) *QueryLogRepo {
	if readDB == nil {
		readDB = writeDB
	}
	return &QueryLogRepo{writeDB: writeDB, readDB: readDB}
}

var _ domain.QueryLogRepository = (*QueryLogRepo)(nil)

const queryLogColumns = `id, user_id, category, question, initial_sql, refined_sql, final_sql,
	status, error, rows_returned, confidence, asked_at, generated_at, executed_at, created_at`

// Insert stores one record and returns it with its assigned id.
func (r *QueryLogRepo) Insert(ctx context.Context, rec *domain.QueryRecord) (*domain.QueryRecord, error) {
	res, err := r.writeDB.ExecContext(ctx, `
		INSERT INTO query_log (
			user_id, category, question, initial_sql, refined_sql, final_sql,
			status, error, rows_returned, confidence, asked_at, generated_at, executed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.UserID, rec.Category, rec.Question,
		rec.InitialSQL, rec.RefinedSQL, rec.FinalSQL,
		string(rec.Status), rec.Error, rec.RowsReturned, rec.Confidence,
		rec.AskedAt, rec.GeneratedAt, rec.ExecutedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("insert query log record: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("query log record id: %w", err)
	}
	return r.GetByID(ctx, id)
}

// GetByID returns a single record.
func (r *QueryLogRepo) GetByID(ctx context.Context, id int64) (*domain.QueryRecord, error) {
	row := r.readDB.QueryRowContext(ctx,
		`SELECT `+queryLogColumns+` FROM query_log WHERE id = ?`, id)
	rec, err := scanRecord(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("query log record %d not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("get query log record: %w", err)
	}
	return rec, nil
}

// ListWindow returns records matching the filter ordered by asked_at, plus
// the total matching count for pagination.
func (r *QueryLogRepo) ListWindow(ctx context.Context, filter domain.RecordFilter) ([]domain.QueryRecord, int64, error) {
	var conds []string
	var args []interface{}

	if filter.UserID != nil {
		conds = append(conds, "user_id = ?")
		args = append(args, *filter.UserID)
	}
	if filter.Status != nil {
		conds = append(conds, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.From != nil {
		conds = append(conds, "asked_at >= ?")
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		conds = append(conds, "asked_at < ?")
		args = append(args, *filter.To)
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int64
	if err := r.readDB.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM query_log"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count query log records: %w", err)
	}

	listArgs := append(append([]interface{}{}, args...), filter.Page.Limit(), filter.Page.Start())
	rows, err := r.readDB.QueryContext(ctx,
		`SELECT `+queryLogColumns+` FROM query_log`+where+
			` ORDER BY asked_at, id LIMIT ? OFFSET ?`, listArgs...)
	if err != nil {
		return nil, 0, fmt.Errorf("list query log records: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var records []domain.QueryRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan query log record: %w", err)
		}
		records = append(records, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanRecord(row rowScanner) (*domain.QueryRecord, error) {
	var rec domain.QueryRecord
	var (
		userID, category, initialSQL, refinedSQL, finalSQL, errMsg sql.NullString
		rowsReturned                                               sql.NullInt64
		confidence                                                 sql.NullFloat64
		askedAt, generatedAt, executedAt                           sql.NullTime
		status                                                     string
	)

	err := row.Scan(
		&rec.ID, &userID, &category, &rec.Question,
		&initialSQL, &refinedSQL, &finalSQL,
		&status, &errMsg, &rowsReturned, &confidence,
		&askedAt, &generatedAt, &executedAt, &rec.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Status = domain.Status(status)
	rec.UserID = nullStr(userID)
	rec.Category = nullStr(category)
	rec.InitialSQL = nullStr(initialSQL)
	rec.RefinedSQL = nullStr(refinedSQL)
	rec.FinalSQL = nullStr(finalSQL)
	rec.Error = nullStr(errMsg)
	if rowsReturned.Valid {
		rec.RowsReturned = &rowsReturned.Int64
	}
	if confidence.Valid {
		rec.Confidence = &confidence.Float64
	}
	rec.AskedAt = nullTimePtr(askedAt)
	rec.GeneratedAt = nullTimePtr(generatedAt)
	rec.ExecutedAt = nullTimePtr(executedAt)
	return &rec, nil
}

func nullStr(v sql.NullString) *string {
	if !v.Valid {
		return nil
	}
	s := v.String
	return &s
}

func nullTimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
