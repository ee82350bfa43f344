/*
handlers.go - HTTP API handlers for the reconciliation engine

PURPOSE:
  Exposes the RAP reconciliation engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Runs:
    POST   /api/runs                   Trigger a reconciliation run (202)
    GET    /api/runs                   Run history (?course_id=&limit=)
    GET    /api/runs/{runID}           Run record with report

  Courses:
    GET    /api/courses                Courses visible to the token
    GET    /api/courses/{courseID}/assessments
                                       Timed-assessment snapshot
    GET    /api/courses/{courseID}/assessments/{assessmentID}/overrides/{userID}
                                       Current override for one pair

  Health:
    GET    /api/health                 Liveness probe

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Run, course, quiz, or override not found
  - 409: A run is already active for the course
  - 502: The LMS rejected or failed an upstream call
  - 503: Shutting down

SECURITY NOTE:
  Currently NO authentication or authorization. The API is meant to sit
  on an operator's workstation or behind an institutional proxy.

SEE ALSO:
  - dto.go: Request/response data structures
  - runner.go: Background run coordination
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/adapt/rap-engine/canvas"
	"github.com/adapt/rap-engine/rap"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// CourseLister lists the LMS courses available to the operator. Both the
// live Canvas client and the in-memory fake satisfy it.
type CourseLister interface {
	ListCourses(ctx context.Context) ([]canvas.Course, error)
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Runner  *Runner
	State   rap.StateStore
	Client  rap.LMSClient
	Courses CourseLister
	Logger  *zap.Logger
}

// NewHandler creates a handler around the run coordinator and its stores.
func NewHandler(runner *Runner, state rap.StateStore, client rap.LMSClient, courses CourseLister, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Runner:  runner,
		State:   state,
		Client:  client,
		Courses: courses,
		Logger:  logger,
	}
}

// =============================================================================
// RUN HANDLERS
// =============================================================================

// TriggerRun starts a reconciliation run for one course.
// POST /api/runs
func (h *Handler) TriggerRun(w http.ResponseWriter, r *http.Request) {
	var req TriggerRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.CourseID == "" {
		writeError(w, http.StatusBadRequest, "course_id is required", nil)
		return
	}

	runID, err := h.Runner.Trigger(r.Context(), rap.CourseID(req.CourseID), req.ReplaceManual, req.DryRun)
	switch {
	case errors.Is(err, rap.ErrRunActive):
		writeError(w, http.StatusConflict, "A run is already active for this course", err)
		return
	case errors.Is(err, ErrShuttingDown):
		writeError(w, http.StatusServiceUnavailable, "Server is shutting down", err)
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, "Failed to start run", err)
		return
	}

	writeJSON(w, http.StatusAccepted, TriggerRunResponse{
		RunID:    runID,
		CourseID: req.CourseID,
		Status:   string(rap.RunPending),
	})
}

// GetRun returns one run record, report included once finished.
// GET /api/runs/{runID}
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")

	rec, err := h.State.Run(r.Context(), runID)
	if errors.Is(err, rap.ErrRunNotFound) {
		writeError(w, http.StatusNotFound, "Run not found", err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load run", err)
		return
	}

	writeJSON(w, http.StatusOK, toRunDTO(rec))
}

// ListRuns returns run history, most recent first.
// GET /api/runs?course_id=&limit=
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	course := rap.CourseID(r.URL.Query().Get("course_id"))

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer", err)
			return
		}
		limit = n
	}

	records, err := h.State.Runs(r.Context(), course, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list runs", err)
		return
	}

	dtos := make([]RunDTO, len(records))
	for i, rec := range records {
		dtos[i] = toRunDTO(rec)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// COURSE HANDLERS
// =============================================================================

// ListCourses returns the LMS courses visible to the configured token.
// GET /api/courses
func (h *Handler) ListCourses(w http.ResponseWriter, r *http.Request) {
	courses, err := h.Courses.ListCourses(r.Context())
	if err != nil {
		writeError(w, lmsStatus(err), "Failed to list courses", err)
		return
	}

	dtos := make([]CourseDTO, len(courses))
	for i, c := range courses {
		dtos[i] = CourseDTO{
			ID:   string(c.ID),
			Name: c.Name,
			Code: c.Code,
			Term: c.Term,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListAssessments returns the course's assessments with their current
// override snapshots.
// GET /api/courses/{courseID}/assessments
func (h *Handler) ListAssessments(w http.ResponseWriter, r *http.Request) {
	course := rap.CourseID(chi.URLParam(r, "courseID"))

	assessments, err := h.Client.ListTimedAssessments(r.Context(), course)
	if err != nil {
		writeError(w, lmsStatus(err), "Failed to list assessments", err)
		return
	}

	dtos := make([]AssessmentDTO, len(assessments))
	for i, a := range assessments {
		dtos[i] = toAssessmentDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetOverride returns the current override for one (assessment, student)
// pair, in total minutes.
// GET /api/courses/{courseID}/assessments/{assessmentID}/overrides/{userID}
func (h *Handler) GetOverride(w http.ResponseWriter, r *http.Request) {
	course := rap.CourseID(chi.URLParam(r, "courseID"))
	assessment := rap.AssessmentID(chi.URLParam(r, "assessmentID"))
	user := rap.CanvasUserID(chi.URLParam(r, "userID"))

	minutes, found, err := h.Client.GetOverride(r.Context(), course, assessment, user)
	if err != nil {
		writeError(w, lmsStatus(err), "Failed to read override", err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "No override set for this student", nil)
		return
	}

	writeJSON(w, http.StatusOK, OverrideDTO{
		AssessmentID: string(assessment),
		UserID:       string(user),
		TotalMinutes: minutes,
	})
}

// =============================================================================
// HEALTH
// =============================================================================

// Health is the liveness probe.
// GET /api/health
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// =============================================================================
// HELPERS
// =============================================================================

// lmsStatus maps an upstream LMS failure to a response status: missing
// resources stay 404, everything else surfaces as a bad gateway.
func lmsStatus(err error) int {
	if canvas.IsNotFound(err) {
		return http.StatusNotFound
	}
	return http.StatusBadGateway
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
