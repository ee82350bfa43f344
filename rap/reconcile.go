/*
reconcile.go - One-run orchestration

PURPOSE:
  Drives a full reconciliation run end to end:

    1. Fetch the roster snapshot (collaborator)
    2. Extract every configured source into normalized records
    3. Match records onto the roster
    4. Resolve per-student factors and conflicts
    5. Snapshot the course's assessments, overrides included (collaborator)
    6. Load the engine's previously-applied overrides (state store)
    7. Apply, bounded-concurrently
    8. Persist applied overrides and the run record
    9. Finalize the report

  Stages 2-4 and 7 degrade on per-record problems: everything recoverable
  becomes a report entry and the run continues. A structurally invalid
  tabular source, or a failed roster/assessment/state snapshot, aborts the
  run - with no trustworthy input there is nothing to degrade to.

RUN RECORDS:
  The reconciler writes the run lifecycle (running -> completed|failed)
  through the state store, so one-shot CLI runs and API-triggered runs
  share the same history.

SEE ALSO:
  - apply.go: Stage 7
  - store.go: The persistence contract
*/
package rap

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// =============================================================================
// COLLABORATOR INTERFACES
// =============================================================================

// RosterProvider returns the enrolled students for a course. The engine
// consumes the roster; fetching and caching belong to the implementation.
type RosterProvider interface {
	Roster(ctx context.Context, course CourseID) ([]Student, error)
}

// RecordSource extracts normalized records from one RAP source. A non-nil
// error means the source is structurally unusable and the run must abort;
// per-row and per-document problems come back as ExtractionErrors instead.
type RecordSource interface {
	Extract(now time.Time) ([]RapRecord, []ExtractionError, error)
}

// =============================================================================
// RECONCILER
// =============================================================================

// Reconciler wires the collaborators for reconciliation runs. All fields
// except Concurrency, Logger, and Now are required.
type Reconciler struct {
	Roster RosterProvider
	Client LMSClient
	State  StateStore

	// Concurrency bounds the applier's parallel LMS calls.
	Concurrency int

	Logger *zap.Logger

	// Now is replaceable in tests; defaults to time.Now.
	Now func() time.Time
}

// RunInput triggers one reconciliation run.
type RunInput struct {
	// RunID is assigned when empty.
	RunID string

	Course  CourseID
	Sources []RecordSource

	// ReplaceManual confirms replacement of manual instructor overrides.
	ReplaceManual bool

	// DryRun computes and reports without LMS writes or override-state
	// persistence. The run record is still written, flagged dry-run.
	DryRun bool
}

// Run executes one reconciliation run and returns its report. The report
// is non-nil exactly when the error is nil; aborted runs leave a failed
// run record behind.
func (r *Reconciler) Run(ctx context.Context, in RunInput) (*ReconciliationReport, error) {
	if in.Course == "" {
		return nil, fmt.Errorf("run: course id required")
	}
	if len(in.Sources) == 0 {
		return nil, fmt.Errorf("run for %s: %w", in.Course, ErrNoSources)
	}

	runID := in.RunID
	if runID == "" {
		runID = uuid.NewString()
	}
	startedAt := r.now()
	logger := r.logger().With(zap.String("run_id", runID), zap.String("course", string(in.Course)))

	rec := &RunRecord{
		ID:        runID,
		Course:    in.Course,
		Status:    RunRunning,
		DryRun:    in.DryRun,
		StartedAt: startedAt,
	}
	if err := r.State.SaveRun(ctx, rec); err != nil {
		return nil, fmt.Errorf("record run start: %w", err)
	}

	report, err := r.run(ctx, in, runID, startedAt, logger)
	if err != nil {
		rec.Status = RunFailed
		rec.Error = err.Error()
		rec.FinishedAt = r.now()
		if uerr := r.State.UpdateRun(ctx, rec); uerr != nil {
			logger.Warn("record run failure", zap.Error(uerr))
		}
		return nil, err
	}

	rec.Status = RunCompleted
	rec.FinishedAt = report.FinishedAt
	rec.Report = report
	if uerr := r.State.UpdateRun(ctx, rec); uerr != nil {
		logger.Warn("record run completion", zap.Error(uerr))
	}
	return report, nil
}

func (r *Reconciler) run(ctx context.Context, in RunInput, runID string, startedAt time.Time, logger *zap.Logger) (*ReconciliationReport, error) {
	report := NewReport(runID, in.Course, startedAt)
	report.DryRun = in.DryRun

	roster, err := r.Roster.Roster(ctx, in.Course)
	if err != nil {
		return nil, fmt.Errorf("fetch roster for %s: %w", in.Course, err)
	}

	var records []RapRecord
	for _, src := range in.Sources {
		recs, extErrs, err := src.Extract(startedAt)
		if err != nil {
			return nil, fmt.Errorf("extract: %w", err)
		}
		records = append(records, recs...)
		report.AddExtractionErrors(extErrs...)
	}

	outcomes := Match(records, roster)
	report.AddMatches(outcomes...)

	factors, conflicts := Resolve(outcomes)
	report.AddConflicts(conflicts...)

	assessments, err := r.Client.ListTimedAssessments(ctx, in.Course)
	if err != nil {
		return nil, fmt.Errorf("snapshot assessments for %s: %w", in.Course, err)
	}

	prior, err := r.State.AppliedOverrides(ctx, in.Course)
	if err != nil {
		return nil, fmt.Errorf("load applied overrides for %s: %w", in.Course, err)
	}

	applier := &Applier{Client: r.Client, Concurrency: r.Concurrency, Logger: r.logger()}
	results := applier.Apply(ctx, ApplyInput{
		Course:        in.Course,
		Assessments:   assessments,
		Factors:       factors,
		Students:      matchedStudents(outcomes),
		Prior:         prior,
		ReplaceManual: in.ReplaceManual,
		DryRun:        in.DryRun,
	})
	report.AddResults(results...)

	if !in.DryRun {
		r.persistApplied(ctx, in.Course, runID, factors, results, logger)
	}

	report.Finalize(r.now(), len(factors))
	logger.Info("reconciliation finished",
		zap.Int("records", report.Summary.Records),
		zap.Int("applied", report.Summary.Applied),
		zap.Int("unchanged", report.Summary.Unchanged),
		zap.Int("conflicts", report.Summary.Conflicts+report.Summary.ApplyConflicts),
		zap.Int("failed", report.Summary.Failed))
	return report, nil
}

// persistApplied records every written override so the next run can tell
// this engine's values from manual edits. A failed save degrades to a
// warning: the worst case is a conflict report where a rewrite would have
// happened, which errs on the side the whole design errs on.
func (r *Reconciler) persistApplied(ctx context.Context, course CourseID, runID string, factors map[CanvasUserID]AccommodationFactor, results []ApplyResult, logger *zap.Logger) {
	appliedAt := r.now()
	for _, res := range results {
		if res.Outcome != OutcomeApplied {
			continue
		}
		ov := AppliedOverride{
			Course:       course,
			Assessment:   res.Assessment,
			CanvasUserID: res.CanvasUserID,
			Minutes:      res.TargetMinutes,
			Multiplier:   factors[res.CanvasUserID].Multiplier,
			RunID:        runID,
			AppliedAt:    appliedAt,
		}
		if err := r.State.SaveOverride(ctx, ov); err != nil {
			logger.Warn("record applied override",
				zap.String("assessment", string(res.Assessment)),
				zap.String("user", string(res.CanvasUserID)),
				zap.Error(err))
		}
	}
}

// matchedStudents returns the unique matched students in first-seen order.
// They are the apply scope: students suppressed by a resolution conflict
// stay in scope and surface as skipped_unresolved per pair.
func matchedStudents(outcomes []MatchOutcome) []Student {
	seen := make(map[CanvasUserID]bool)
	var students []Student
	for _, out := range outcomes {
		if out.Status != MatchMatched || seen[out.Student.CanvasUserID] {
			continue
		}
		seen[out.Student.CanvasUserID] = true
		students = append(students, *out.Student)
	}
	return students
}

func (r *Reconciler) now() time.Time {
	if r.Now != nil {
		return r.Now()
	}
	return time.Now()
}

func (r *Reconciler) logger() *zap.Logger {
	if r.Logger != nil {
		return r.Logger
	}
	return zap.NewNop()
}
