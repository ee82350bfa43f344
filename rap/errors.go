/*
errors.go - Centralized error taxonomy for the reconciliation engine

PURPOSE:
  All engine error types in one place. The taxonomy mirrors the pipeline:
  extraction errors, resolution conflicts, and apply failures are
  recoverable and degrade to report entries; only a structurally invalid
  tabular source (or a failed collaborator snapshot) aborts a run.

ERROR CATEGORIES:
  1. Extraction errors - malformed source rows/documents, skip-and-continue
  2. Resolution conflicts - contradictory authoritative data, reported,
     never auto-resolved
  3. Apply failures - external LMS call failed, retry is a re-run
  4. Run errors - structural/environmental failures that abort a run

  Match failures (unmatched, ambiguous) are not Go errors: they are tagged
  MatchOutcome variants (see match.go), so downstream stages cannot
  mistake an unresolved record for a resolved one.

USAGE:
  if errors.Is(err, rap.ErrMissingColumns) {
      // tabular source rejected wholesale, nothing was processed
  }

SEE ALSO:
  - report.go: Where recoverable errors accumulate
  - reconcile.go: Which failures abort a run
*/
package rap

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrMissingColumns is returned when the tabular source lacks one of
	// its fixed required columns. No row can be trusted, so the whole run
	// aborts before any record is processed.
	ErrMissingColumns = errors.New("tabular source missing required columns")

	// ErrSubUnitMultiplier is returned when a source value implies less
	// time than standard. Malformed input, never silently clamped.
	ErrSubUnitMultiplier = errors.New("extension multiplier below 1.0")

	// ErrNoSources is returned when a run is triggered with nothing to
	// extract.
	ErrNoSources = errors.New("no record sources configured")

	// ErrRunActive is returned when a run is triggered for a course that
	// already has one in flight.
	ErrRunActive = errors.New("reconciliation already running for course")

	// ErrRunNotFound is returned when a run record lookup misses.
	ErrRunNotFound = errors.New("run not found")
)

// =============================================================================
// EXTRACTION ERRORS - Malformed source rows and documents
// =============================================================================

// ExtractionError describes one malformed row or document. Extraction
// continues past it; the error lands in the run report.
type ExtractionError struct {
	Source SourceKind `json:"source_kind"`

	// Origin names the file the failure came from.
	Origin string `json:"origin"`

	// Row is the 1-based data row for tabular sources, 0 for documents.
	Row int `json:"row,omitempty"`

	Reason string `json:"reason"`

	// Err categorizes the failure for errors.Is, e.g. ErrSubUnitMultiplier.
	Err error `json:"-"`
}

func (e *ExtractionError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("%s: row %d: %s", e.Origin, e.Row, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Origin, e.Reason)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// =============================================================================
// RESOLUTION CONFLICTS - Contradictory authoritative data
// =============================================================================

// ResolutionConflict records contradictory same-kind values for one
// student. The student gets no factor this run; the operator resolves the
// source data instead of the engine guessing.
type ResolutionConflict struct {
	CanvasUserID CanvasUserID `json:"canvas_user_id"`
	DisplayName  string       `json:"display_name,omitempty"`
	Source       SourceKind   `json:"source_kind"`

	// Values holds the disagreeing multipliers, most recent first.
	Values []string `json:"values"`

	// Records is the full provenance behind the conflict.
	Records []RapRecord `json:"records"`

	Reason string `json:"reason"`
}

func (c *ResolutionConflict) Error() string {
	return fmt.Sprintf("conflicting %s records for %s: %v", c.Source, c.CanvasUserID, c.Values)
}

// =============================================================================
// APPLY FAILURES - External LMS call failed
// =============================================================================

// ApplyFailure wraps an LMS error for one (student, assessment) pair. The
// pair is recorded as failed and the remaining pairs continue.
type ApplyFailure struct {
	Assessment   AssessmentID
	CanvasUserID CanvasUserID
	Err          error
}

func (e *ApplyFailure) Error() string {
	return fmt.Sprintf("set override on %s for %s: %v", e.Assessment, e.CanvasUserID, e.Err)
}

func (e *ApplyFailure) Unwrap() error { return e.Err }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsStructural returns true if the error invalidates an entire source
// rather than a single row or document.
func IsStructural(err error) bool {
	return errors.Is(err, ErrMissingColumns)
}

// IsNotFound returns true if the error indicates a missing run record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrRunNotFound)
}
