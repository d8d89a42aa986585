package api

import (
	"errors"
	"net/http"

	"sqlpilot/internal/domain"
)

// httpStatusFromDomainError maps domain errors to HTTP status codes.
func httpStatusFromDomainError(err error) int {
	var validation *domain.ValidationError
	var generation *domain.GenerationError
	var execution *domain.ExecutionError
	var refinement *domain.RefinementError
	var quality *domain.DataQualityError

	switch {
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &quality):
		return http.StatusUnprocessableEntity
	case errors.As(err, &generation), errors.As(err, &refinement):
		return http.StatusBadGateway
	case errors.As(err, &execution):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
