/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

The reconciliation report is the one exception: it is returned as-is
(rap.ReconciliationReport carries its own JSON tags) so the API report
matches what the store persisted.

SEE ALSO:
  - handlers.go: Uses these types
  - rap/report.go: The embedded report type
*/
package api

import (
	"time"

	"github.com/adapt/rap-engine/rap"
)

// =============================================================================
// RUN TYPES
// =============================================================================

// TriggerRunRequest asks for a reconciliation run on one course.
type TriggerRunRequest struct {
	CourseID string `json:"course_id"`

	// ReplaceManual confirms replacement of manual instructor overrides.
	ReplaceManual bool `json:"replace_manual,omitempty"`

	// DryRun computes and reports without writing to the LMS.
	DryRun bool `json:"dry_run,omitempty"`
}

// TriggerRunResponse acknowledges an accepted run.
type TriggerRunResponse struct {
	RunID    string `json:"run_id"`
	CourseID string `json:"course_id"`
	Status   string `json:"status"`
}

// RunDTO represents a run record in API responses.
type RunDTO struct {
	ID         string                    `json:"id"`
	CourseID   string                    `json:"course_id"`
	Status     string                    `json:"status"`
	DryRun     bool                      `json:"dry_run,omitempty"`
	StartedAt  string                    `json:"started_at"`
	FinishedAt string                    `json:"finished_at,omitempty"`
	Error      string                    `json:"error,omitempty"`
	Report     *rap.ReconciliationReport `json:"report,omitempty"`
}

func toRunDTO(rec *rap.RunRecord) RunDTO {
	dto := RunDTO{
		ID:        rec.ID,
		CourseID:  string(rec.Course),
		Status:    string(rec.Status),
		DryRun:    rec.DryRun,
		StartedAt: rec.StartedAt.Format(time.RFC3339),
		Error:     rec.Error,
		Report:    rec.Report,
	}
	if !rec.FinishedAt.IsZero() {
		dto.FinishedAt = rec.FinishedAt.Format(time.RFC3339)
	}
	return dto
}

// =============================================================================
// COURSE AND ASSESSMENT TYPES
// =============================================================================

// CourseDTO represents one LMS course in API responses.
type CourseDTO struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Code string `json:"code,omitempty"`
	Term string `json:"term,omitempty"`
}

// AssessmentDTO represents one assessment with its override snapshot.
type AssessmentDTO struct {
	ID               string         `json:"id"`
	Name             string         `json:"name"`
	Timed            bool           `json:"timed"`
	TimeLimitMinutes *int           `json:"time_limit_minutes,omitempty"`
	Published        bool           `json:"published"`
	Overrides        map[string]int `json:"overrides,omitempty"`
}

func toAssessmentDTO(a rap.Assessment) AssessmentDTO {
	dto := AssessmentDTO{
		ID:               string(a.ID),
		Name:             a.Name,
		Timed:            a.Timed(),
		TimeLimitMinutes: a.BaseTimeLimitMinutes,
		Published:        a.Published,
	}
	if len(a.ExistingOverrides) > 0 {
		dto.Overrides = make(map[string]int, len(a.ExistingOverrides))
		for user, minutes := range a.ExistingOverrides {
			dto.Overrides[string(user)] = minutes
		}
	}
	return dto
}

// OverrideDTO represents one current override, in total minutes.
type OverrideDTO struct {
	AssessmentID string `json:"assessment_id"`
	UserID       string `json:"user_id"`
	TotalMinutes int    `json:"total_minutes"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
