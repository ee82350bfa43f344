/*
report.go - The reconciliation run report

PURPOSE:
  One structure accumulating everything a run produced: extraction
  errors, match outcomes, resolution conflicts, and apply results. The
  presentation layer (HTTP API, CLI) reads this and nothing else. Purely
  additive; no business logic lives here.

SEE ALSO:
  - reconcile.go: Fills the report stage by stage
*/
package rap

import "time"

// ReconciliationReport is the consumable record of one run.
type ReconciliationReport struct {
	RunID     string    `json:"run_id"`
	Course    CourseID  `json:"course_id"`
	DryRun    bool      `json:"dry_run,omitempty"`
	StartedAt time.Time `json:"started_at"`
	// FinishedAt is set by Finalize.
	FinishedAt time.Time `json:"finished_at"`

	Extraction []ExtractionError    `json:"extraction_errors,omitempty"`
	Matches    []MatchOutcome       `json:"matches,omitempty"`
	Conflicts  []ResolutionConflict `json:"conflicts,omitempty"`
	Results    []ApplyResult        `json:"results,omitempty"`

	Summary Summary `json:"summary"`
}

// Summary is the per-outcome tally, computed at finalization.
type Summary struct {
	Records           int `json:"records"`
	ExtractionErrors  int `json:"extraction_errors"`
	Matched           int `json:"matched"`
	Unmatched         int `json:"unmatched"`
	Ambiguous         int `json:"ambiguous"`
	ResolvedStudents  int `json:"resolved_students"`
	Conflicts         int `json:"conflicts"`
	Applied           int `json:"applied"`
	Unchanged         int `json:"unchanged"`
	SkippedUntimed    int `json:"skipped_untimed"`
	SkippedUnresolved int `json:"skipped_unresolved"`
	ApplyConflicts    int `json:"apply_conflicts"`
	Failed            int `json:"failed"`
}

// NewReport starts an empty report for one run.
func NewReport(runID string, course CourseID, startedAt time.Time) *ReconciliationReport {
	return &ReconciliationReport{RunID: runID, Course: course, StartedAt: startedAt}
}

func (r *ReconciliationReport) AddExtractionErrors(errs ...ExtractionError) {
	r.Extraction = append(r.Extraction, errs...)
}

func (r *ReconciliationReport) AddMatches(outcomes ...MatchOutcome) {
	r.Matches = append(r.Matches, outcomes...)
}

func (r *ReconciliationReport) AddConflicts(conflicts ...ResolutionConflict) {
	r.Conflicts = append(r.Conflicts, conflicts...)
}

func (r *ReconciliationReport) AddResults(results ...ApplyResult) {
	r.Results = append(r.Results, results...)
}

// Finalize stamps the finish time and tallies the summary.
func (r *ReconciliationReport) Finalize(finishedAt time.Time, resolvedStudents int) {
	r.FinishedAt = finishedAt

	s := Summary{
		Records:          len(r.Matches),
		ExtractionErrors: len(r.Extraction),
		ResolvedStudents: resolvedStudents,
		Conflicts:        len(r.Conflicts),
	}
	for _, m := range r.Matches {
		switch m.Status {
		case MatchMatched:
			s.Matched++
		case MatchUnmatched:
			s.Unmatched++
		case MatchAmbiguous:
			s.Ambiguous++
		}
	}
	for _, res := range r.Results {
		switch res.Outcome {
		case OutcomeApplied:
			s.Applied++
		case OutcomeUnchanged:
			s.Unchanged++
		case OutcomeSkippedUntimed:
			s.SkippedUntimed++
		case OutcomeSkippedUnresolved:
			s.SkippedUnresolved++
		case OutcomeConflict:
			s.ApplyConflicts++
		case OutcomeFailed:
			s.Failed++
		}
	}
	r.Summary = s
}

// NeedsAttention reports whether the run left anything for the operator:
// failures to re-run, conflicts to resolve, or records that never matched.
func (r *ReconciliationReport) NeedsAttention() bool {
	s := r.Summary
	return s.Failed > 0 || s.Conflicts > 0 || s.ApplyConflicts > 0 ||
		s.Unmatched > 0 || s.Ambiguous > 0 || s.ExtractionErrors > 0
}
