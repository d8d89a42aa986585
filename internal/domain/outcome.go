package domain

import (
	"fmt"
	"time"
)

// Status is the terminal state of one question's pass through the pipeline.
type Status string

const (
	// StatusSuccess means the first candidate executed cleanly.
	StatusSuccess Status = "success"
	// StatusRefinedSuccess means the initial candidate failed but the
	// refined one executed cleanly.
	StatusRefinedSuccess Status = "refined_success"
	// StatusFailed means both execution attempts (or the refinement
	// itself) failed.
	StatusFailed Status = "failed"
	// StatusError means the pipeline never reached execution: generation
	// failed, or a collaborator violated its contract.
	StatusError Status = "error"
)

// Succeeded reports whether the status carries a final SQL and rows.
func (s Status) Succeeded() bool {
	return s == StatusSuccess || s == StatusRefinedSuccess
}

// Row is a single result row keyed by column name.
type Row map[string]interface{}

// Outcome is the terminal, fully-determined result of running one question
// through the generate-refine-execute pipeline. Optional fields are nil
// when the stage that would populate them was never traversed.
type Outcome struct {
	Question string
	UserID   *string
	Category *string

	InitialSQL *string // first candidate, set once generation succeeds
	RefinedSQL *string // set only when a refinement attempt produced a candidate
	FinalSQL   *string // the SQL judged successful; nil unless Status.Succeeded()

	Status Status
	Error  *string // last error message for failed/error outcomes
	Rows   []Row   // result set; nil unless Status.Succeeded()

	// Confidence is the refiner's self-reported score, when it gave one.
	Confidence *float64

	AskedAt     time.Time
	GeneratedAt *time.Time
	ExecutedAt  *time.Time
}

// BatchResult is an ordered sequence of outcomes, one per input question,
// in input order.
type BatchResult []*Outcome

// Validate checks the field-presence invariants that tie optional fields
// to the terminal status.
func (o *Outcome) Validate() error {
	switch o.Status {
	case StatusSuccess, StatusRefinedSuccess, StatusFailed, StatusError:
	default:
		return fmt.Errorf("unknown status %q", o.Status)
	}
	if o.Status.Succeeded() != (o.FinalSQL != nil) {
		return fmt.Errorf("final sql must be present iff status is success or refined_success (status=%s)", o.Status)
	}
	if o.Status.Succeeded() && o.Rows == nil {
		return fmt.Errorf("rows must be present on a %s outcome", o.Status)
	}
	if !o.Status.Succeeded() && o.Rows != nil {
		return fmt.Errorf("rows must be absent on a %s outcome", o.Status)
	}
	if o.Status == StatusRefinedSuccess && o.RefinedSQL == nil {
		return fmt.Errorf("refined sql must be present on a refined_success outcome")
	}
	if o.Status == StatusSuccess && o.RefinedSQL != nil {
		return fmt.Errorf("refined sql must be absent on a success outcome")
	}
	if (o.Status == StatusFailed || o.Status == StatusError) && o.Error == nil {
		return fmt.Errorf("error message must be present on a %s outcome", o.Status)
	}
	if o.GeneratedAt != nil && o.GeneratedAt.Before(o.AskedAt) {
		return fmt.Errorf("generated-at precedes asked-at")
	}
	if o.ExecutedAt != nil && o.GeneratedAt == nil {
		return fmt.Errorf("executed-at set without generated-at")
	}
	if o.ExecutedAt != nil && o.ExecutedAt.Before(*o.GeneratedAt) {
		return fmt.Errorf("executed-at precedes generated-at")
	}
	return nil
}

// Record flattens the outcome into a persistable query log record.
func (o *Outcome) Record() *QueryRecord {
	asked := o.AskedAt
	rec := &QueryRecord{
		UserID:      o.UserID,
		Category:    o.Category,
		Question:    o.Question,
		InitialSQL:  o.InitialSQL,
		RefinedSQL:  o.RefinedSQL,
		FinalSQL:    o.FinalSQL,
		Status:      o.Status,
		Error:       o.Error,
		Confidence:  o.Confidence,
		AskedAt:     &asked,
		GeneratedAt: o.GeneratedAt,
		ExecutedAt:  o.ExecutedAt,
	}
	if o.Rows != nil {
		n := int64(len(o.Rows))
		rec.RowsReturned = &n
	}
	return rec
}
