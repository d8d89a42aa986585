package domain

import "time"

// QueryRecord is a persisted query log entry, the flattened form of an
// Outcome as stored in the metastore and consumed by the aggregator.
// Timestamps are pointers because records ingested from external stores may
// be missing any of them; the aggregator excludes such records per-statistic.
type QueryRecord struct {
	ID           int64
	UserID       *string
	Category     *string
	Question     string
	InitialSQL   *string
	RefinedSQL   *string
	FinalSQL     *string
	Status       Status
	Error        *string
	RowsReturned *int64
	Confidence   *float64
	AskedAt      *time.Time
	GeneratedAt  *time.Time
	ExecutedAt   *time.Time
	CreatedAt    time.Time
}

// Failed reports whether the record represents a failed or errored run.
func (r *QueryRecord) Failed() bool {
	return r.Status == StatusFailed || r.Status == StatusError
}

// RecordFilter holds filter parameters for listing query log records.
type RecordFilter struct {
	UserID *string
	Status *Status
	From   *time.Time
	To     *time.Time
	Page   PageRequest
}
