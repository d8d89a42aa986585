// Package api provides the HTTP handlers for the NL-to-SQL REST API.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"sqlpilot/internal/batch"
	"sqlpilot/internal/domain"
	"sqlpilot/internal/service/eval"
	"sqlpilot/internal/service/report"
)

// Pipeline runs a single question through the generate-execute-refine loop.
// Implemented by pipeline.Orchestrator.
type Pipeline interface {
	RunOne(ctx context.Context, question, contextBlob string) *domain.Outcome
}

// Handler implements the REST endpoints.
type Handler struct {
	pipeline Pipeline
	eval     *eval.Service
	report   *report.Service
	repo     domain.QueryLogRepository
	logger   *slog.Logger
}

// NewHandler creates an API Handler. repo may be nil, in which case query
// outcomes are not persisted and history/metrics endpoints return 503.
func NewHandler(pipeline Pipeline, evalSvc *eval.Service, reportSvc *report.Service, repo domain.QueryLogRepository, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		pipeline: pipeline,
		eval:     evalSvc,
		report:   reportSvc,
		repo:     repo,
		logger:   logger.With("component", "api"),
	}
}

// Routes mounts all endpoints on a fresh router. authMW guards the /v1
// routes and may be nil; /healthz is always public. Other cross-cutting
// middleware (request IDs, rate limiting, CORS) is attached by the caller.
func (h *Handler) Routes(authMW func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Get("/healthz", h.health)
	r.Route("/v1", func(r chi.Router) {
		if authMW != nil {
			r.Use(authMW)
		}
		r.Post("/query", h.runQuery)
		r.Post("/eval", h.runEval)
		r.Get("/metrics", h.getMetrics)
		r.Get("/report", h.getReport)
		r.Get("/history", h.listHistory)
	})
	return r
}

type queryRequest struct {
	Question string `json:"question"`
	Context  string `json:"context,omitempty"`
}

// queryResponse mirrors the persisted record shape. Rows are present only
// on success; a zero-row result is an empty array, not null.
type queryResponse struct {
	Question    string       `json:"question"`
	UserID      *string      `json:"user_id,omitempty"`
	Category    *string      `json:"category,omitempty"`
	InitialSQL  *string      `json:"initial_sql"`
	RefinedSQL  *string      `json:"refined_sql"`
	FinalSQL    *string      `json:"final_sql"`
	Status      string       `json:"pipeline_status"`
	Error       *string      `json:"error"`
	Rows        []domain.Row `json:"rows"`
	Confidence  *float64     `json:"confidence,omitempty"`
	AskedAt     time.Time    `json:"asked_at"`
	GeneratedAt *time.Time   `json:"generated_at,omitempty"`
	ExecutedAt  *time.Time   `json:"executed_at,omitempty"`
}

func outcomeToAPI(out *domain.Outcome) queryResponse {
	return queryResponse{
		Question:    out.Question,
		UserID:      out.UserID,
		Category:    out.Category,
		InitialSQL:  out.InitialSQL,
		RefinedSQL:  out.RefinedSQL,
		FinalSQL:    out.FinalSQL,
		Status:      string(out.Status),
		Error:       out.Error,
		Rows:        out.Rows,
		Confidence:  out.Confidence,
		AskedAt:     out.AskedAt,
		GeneratedAt: out.GeneratedAt,
		ExecutedAt:  out.ExecutedAt,
	}
}

// runQuery handles POST /v1/query. Pipeline failures are reported in the
// outcome body with a 200 status; the request itself succeeded.
func (h *Handler) runQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.ErrValidation("invalid request body: %v", err))
		return
	}
	if req.Question == "" {
		h.writeError(w, domain.ErrValidation("question is required"))
		return
	}

	out := h.pipeline.RunOne(r.Context(), req.Question, req.Context)
	if out == nil {
		h.writeError(w, domain.ErrValidation("pipeline returned no outcome"))
		return
	}

	if h.repo != nil {
		if _, err := h.repo.Insert(r.Context(), out.Record()); err != nil {
			h.logger.Warn("failed to persist query outcome", "error", err)
		}
	}

	h.writeJSON(w, http.StatusOK, outcomeToAPI(out))
}

type evalRequest struct {
	Questions []evalQuestion `json:"questions"`
}

type evalQuestion struct {
	Question string `json:"question"`
	Context  string `json:"context,omitempty"`
	Category string `json:"category,omitempty"`
}

type evalResponse struct {
	Results []queryResponse `json:"results"`
	Summary interface{}     `json:"summary"`
}

// runEval handles POST /v1/eval.
func (h *Handler) runEval(w http.ResponseWriter, r *http.Request) {
	var req evalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, domain.ErrValidation("invalid request body: %v", err))
		return
	}

	questions := make([]batch.Question, 0, len(req.Questions))
	for _, q := range req.Questions {
		questions = append(questions, batch.Question{Text: q.Question, Context: q.Context, Category: q.Category})
	}

	results, err := h.eval.Run(r.Context(), questions)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := evalResponse{Results: make([]queryResponse, 0, len(results)), Summary: h.eval.Summarize(results)}
	for _, out := range results {
		if out == nil {
			continue
		}
		resp.Results = append(resp.Results, outcomeToAPI(out))
	}
	h.writeJSON(w, http.StatusOK, resp)
}

// getMetrics handles GET /v1/metrics. The window defaults to the 7 days
// ending now; start and end accept RFC 3339 timestamps.
func (h *Handler) getMetrics(w http.ResponseWriter, r *http.Request) {
	if h.report == nil {
		h.writeUnavailable(w)
		return
	}

	end := time.Now().UTC()
	start := end.AddDate(0, 0, -7)
	if v := r.URL.Query().Get("end"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			h.writeError(w, domain.ErrValidation("invalid end timestamp: %v", err))
			return
		}
		end = t
	}
	if v := r.URL.Query().Get("start"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			h.writeError(w, domain.ErrValidation("invalid start timestamp: %v", err))
			return
		}
		start = t
	}
	if !start.Before(end) {
		h.writeError(w, domain.ErrValidation("start must be before end"))
		return
	}

	snap, err := h.report.Collect(r.Context(), start, end)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, snap)
}

// getReport handles GET /v1/report, returning the plain-text report for
// the window spanning the requested number of days.
func (h *Handler) getReport(w http.ResponseWriter, r *http.Request) {
	if h.report == nil {
		h.writeUnavailable(w)
		return
	}

	days := 7
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			h.writeError(w, domain.ErrValidation("days must be a positive integer"))
			return
		}
		days = n
	}

	text, err := h.report.Generate(r.Context(), days)
	if err != nil {
		h.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(text))
}

type historyResponse struct {
	Records    []recordResponse `json:"records"`
	TotalCount int64            `json:"total_count"`
}

type recordResponse struct {
	ID           int64      `json:"id"`
	Question     string     `json:"question"`
	UserID       *string    `json:"user_id,omitempty"`
	Category     *string    `json:"category,omitempty"`
	InitialSQL   *string    `json:"initial_sql,omitempty"`
	RefinedSQL   *string    `json:"refined_sql,omitempty"`
	FinalSQL     *string    `json:"final_sql,omitempty"`
	Status       string     `json:"pipeline_status"`
	Error        *string    `json:"error,omitempty"`
	RowsReturned *int64     `json:"rows_returned,omitempty"`
	Confidence   *float64   `json:"confidence,omitempty"`
	AskedAt      *time.Time `json:"asked_at,omitempty"`
	GeneratedAt  *time.Time `json:"generated_at,omitempty"`
	ExecutedAt   *time.Time `json:"executed_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// listHistory handles GET /v1/history with optional user_id, status, from,
// to, max_results, and offset parameters.
func (h *Handler) listHistory(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		h.writeUnavailable(w)
		return
	}

	q := r.URL.Query()
	filter := domain.RecordFilter{}
	if v := q.Get("user_id"); v != "" {
		filter.UserID = &v
	}
	if v := q.Get("status"); v != "" {
		st := domain.Status(v)
		switch st {
		case domain.StatusSuccess, domain.StatusRefinedSuccess, domain.StatusFailed, domain.StatusError:
			filter.Status = &st
		default:
			h.writeError(w, domain.ErrValidation("unknown status %q", v))
			return
		}
	}
	if v := q.Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			h.writeError(w, domain.ErrValidation("invalid from timestamp: %v", err))
			return
		}
		filter.From = &t
	}
	if v := q.Get("to"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			h.writeError(w, domain.ErrValidation("invalid to timestamp: %v", err))
			return
		}
		filter.To = &t
	}
	if v := q.Get("max_results"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			h.writeError(w, domain.ErrValidation("max_results must be an integer"))
			return
		}
		filter.Page.MaxResults = n
	}
	if v := q.Get("offset"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			h.writeError(w, domain.ErrValidation("offset must be an integer"))
			return
		}
		filter.Page.Offset = n
	}

	records, total, err := h.repo.ListWindow(r.Context(), filter)
	if err != nil {
		h.writeError(w, err)
		return
	}

	resp := historyResponse{Records: make([]recordResponse, 0, len(records)), TotalCount: total}
	for _, rec := range records {
		resp.Records = append(resp.Records, recordResponse{
			ID:           rec.ID,
			Question:     rec.Question,
			UserID:       rec.UserID,
			Category:     rec.Category,
			InitialSQL:   rec.InitialSQL,
			RefinedSQL:   rec.RefinedSQL,
			FinalSQL:     rec.FinalSQL,
			Status:       string(rec.Status),
			Error:        rec.Error,
			RowsReturned: rec.RowsReturned,
			Confidence:   rec.Confidence,
			AskedAt:      rec.AskedAt,
			GeneratedAt:  rec.GeneratedAt,
			ExecutedAt:   rec.ExecutedAt,
			CreatedAt:    rec.CreatedAt,
		})
	}
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := httpStatusFromDomainError(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("request failed", "error", err)
	}
	h.writeJSON(w, status, map[string]interface{}{
		"code":    status,
		"message": err.Error(),
	})
}

func (h *Handler) writeUnavailable(w http.ResponseWriter) {
	h.writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
		"code":    http.StatusServiceUnavailable,
		"message": "query log is not configured",
	})
}
