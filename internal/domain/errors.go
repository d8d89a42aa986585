// Package domain defines core types, interfaces, and errors for the
// NL-to-SQL pipeline.
package domain

import "fmt"

// GenerationError indicates the SQL generator failed to produce a candidate.
type GenerationError struct {
	Message string
}

func (e *GenerationError) Error() string { return e.Message }

// ExecutionError indicates a SQL statement failed against the target
// database. The message is passed verbatim to the refiner.
type ExecutionError struct {
	Message string
}

func (e *ExecutionError) Error() string { return e.Message }

// RefinementError indicates the refiner failed to produce a corrected
// candidate for a previously failed SQL statement.
type RefinementError struct {
	Message string
}

func (e *RefinementError) Error() string { return e.Message }

// ValidationError indicates invalid input.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// DataQualityError indicates a malformed record encountered during
// aggregation. It is non-fatal: the record is skipped and counted.
type DataQualityError struct {
	Message string
}

func (e *DataQualityError) Error() string { return e.Message }

// ErrGeneration creates a GenerationError with a formatted message.
func ErrGeneration(format string, args ...interface{}) *GenerationError {
	return &GenerationError{Message: fmt.Sprintf(format, args...)}
}

// ErrExecution creates an ExecutionError with a formatted message.
func ErrExecution(format string, args ...interface{}) *ExecutionError {
	return &ExecutionError{Message: fmt.Sprintf(format, args...)}
}

// ErrRefinement creates a RefinementError with a formatted message.
func ErrRefinement(format string, args ...interface{}) *RefinementError {
	return &RefinementError{Message: fmt.Sprintf(format, args...)}
}

// ErrValidation creates a ValidationError with a formatted message.
func ErrValidation(format string, args ...interface{}) *ValidationError {
	return &ValidationError{Message: fmt.Sprintf(format, args...)}
}

// ErrDataQuality creates a DataQualityError with a formatted message.
func ErrDataQuality(format string, args ...interface{}) *DataQualityError {
	return &DataQualityError{Message: fmt.Sprintf(format, args...)}
}
