// Package handler holds the HTTP handlers for the analysis endpoints.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/kiranshivaraju/aianalysis/internal/api/response"
	"github.com/kiranshivaraju/aianalysis/internal/jobs"
	"github.com/kiranshivaraju/aianalysis/pkg/models"
)

const maxRecordIDLen = 128

// Analyzer is the part of the job orchestrator the handlers depend on.
type Analyzer interface {
	QueueIfNeeded(ctx context.Context, req jobs.QueueRequest) (uuid.UUID, bool, error)
	GetOrGenerateBoth(ctx context.Context, req jobs.SyncRequest) (*jobs.SyncResult, error)
	GetJob(ctx context.Context, id uuid.UUID) (*models.AnalysisJob, error)
}

type paramsBody struct {
	Temperature *float64 `json:"temperature"`
	MaxTokens   *int     `json:"max_tokens"`
}

func (p paramsBody) params() models.ParamOverrides {
	return models.ParamOverrides{Temperature: p.Temperature, MaxTokens: p.MaxTokens}
}

func (p paramsBody) validate() string {
	if p.Temperature != nil && (*p.Temperature < 0 || *p.Temperature > 2) {
		return "temperature must be between 0 and 2"
	}
	if p.MaxTokens != nil && (*p.MaxTokens < 1 || *p.MaxTokens > 8192) {
		return "max_tokens must be between 1 and 8192"
	}
	return ""
}

type queueResponse struct {
	JobID  *uuid.UUID `json:"job_id,omitempty"`
	Queued bool       `json:"queued"`
}

// NewQueueHandler returns an http.HandlerFunc for
// POST /api/v1/records/{recordID}/analysis.
func NewQueueHandler(a Analyzer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recordID, ok := recordIDParam(w, r)
		if !ok {
			return
		}

		var req struct {
			paramsBody
			Force bool `json:"force"`
		}
		if !decodeOptional(w, r, &req) {
			return
		}
		if msg := req.validate(); msg != "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", msg, nil)
			return
		}

		jobID, queued, err := a.QueueIfNeeded(r.Context(), jobs.QueueRequest{
			RecordID: recordID,
			Params:   req.params(),
			Force:    req.Force,
		})
		if err != nil {
			writeJobError(w, err)
			return
		}
		if !queued {
			response.JSON(w, queueResponse{Queued: false})
			return
		}
		response.Accepted(w, queueResponse{JobID: &jobID, Queued: true})
	}
}

// NewSyncHandler returns an http.HandlerFunc for
// POST /api/v1/records/{recordID}/analysis/sync. The body may carry the
// question and answer; when it does not they are loaded from the record.
func NewSyncHandler(a Analyzer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		recordID, ok := recordIDParam(w, r)
		if !ok {
			return
		}

		var req struct {
			paramsBody
			Question      *models.Question `json:"question"`
			StudentAnswer string           `json:"student_answer"`
		}
		if !decodeOptional(w, r, &req) {
			return
		}
		if msg := req.validate(); msg != "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", msg, nil)
			return
		}
		if req.Question != nil && strings.TrimSpace(req.Question.Prompt) == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "question.prompt is required", nil)
			return
		}
		if req.Question != nil && req.StudentAnswer == "" {
			response.Error(w, http.StatusBadRequest, "INVALID_REQUEST",
				"student_answer is required when question is given", nil)
			return
		}

		res, err := a.GetOrGenerateBoth(r.Context(), jobs.SyncRequest{
			RecordID:      recordID,
			Question:      req.Question,
			StudentAnswer: req.StudentAnswer,
			Params:        req.params(),
		})
		if err != nil {
			writeJobError(w, err)
			return
		}
		response.JSON(w, res)
	}
}

// NewGetJobHandler returns an http.HandlerFunc for
// GET /api/v1/analysis/jobs/{jobID}.
func NewGetJobHandler(a Analyzer) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobID, err := uuid.Parse(chi.URLParam(r, "jobID"))
		if err != nil {
			response.Error(w, http.StatusBadRequest, "INVALID_JOB_ID", "Invalid job ID", nil)
			return
		}

		job, err := a.GetJob(r.Context(), jobID)
		if err != nil {
			writeJobError(w, err)
			return
		}
		response.JSON(w, job)
	}
}

func recordIDParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := strings.TrimSpace(chi.URLParam(r, "recordID"))
	if id == "" || len(id) > maxRecordIDLen {
		response.Error(w, http.StatusBadRequest, "INVALID_RECORD_ID", "Invalid record ID", nil)
		return "", false
	}
	return id, true
}

// decodeOptional decodes a JSON body into v. An empty body is allowed.
func decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || errors.Is(err, io.EOF) {
		return true
	}
	response.Error(w, http.StatusBadRequest, "INVALID_REQUEST", "Invalid JSON body", nil)
	return false
}

func writeJobError(w http.ResponseWriter, err error) {
	var genErr *jobs.GenerationError
	switch {
	case errors.Is(err, jobs.ErrRecordNotFound):
		response.Error(w, http.StatusNotFound, "RECORD_NOT_FOUND", "Learning record not found", nil)
	case errors.Is(err, jobs.ErrJobNotFound):
		response.Error(w, http.StatusNotFound, "JOB_NOT_FOUND", "Analysis job not found", nil)
	case errors.Is(err, jobs.ErrGenerationInProgress):
		response.Error(w, http.StatusConflict, "GENERATION_IN_PROGRESS",
			"Analysis for this record is already being generated", nil)
	case errors.As(err, &genErr):
		response.Error(w, http.StatusBadGateway, "GENERATION_FAILED", genErr.Error(), map[string]any{
			"field":    genErr.Field,
			"attempts": genErr.Attempts,
		})
	default:
		slog.Error("analysis request failed", "error", err)
		response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR",
			"An unexpected error occurred", nil)
	}
}
