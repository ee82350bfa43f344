package rap_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/adapt/rap-engine/rap"
	"github.com/adapt/rap-engine/rap/store"
)

// =============================================================================
// STUB COLLABORATORS
// =============================================================================

type stubRoster struct {
	students []rap.Student
	err      error
}

func (s stubRoster) Roster(ctx context.Context, course rap.CourseID) ([]rap.Student, error) {
	return s.students, s.err
}

type stubSource struct {
	records []rap.RapRecord
	errs    []rap.ExtractionError
	err     error
}

func (s stubSource) Extract(now time.Time) ([]rap.RapRecord, []rap.ExtractionError, error) {
	return s.records, s.errs, s.err
}

func newReconciler(lms *fakeLMS, roster stubRoster) (*rap.Reconciler, *store.Memory) {
	state := store.NewMemory()
	r := &rap.Reconciler{
		Roster: roster,
		Client: lms,
		State:  state,
		Now:    func() time.Time { return t0 },
	}
	return r, state
}

// =============================================================================
// FULL RUNS
// =============================================================================

func TestReconciler_Run_EndToEnd(t *testing.T) {
	// GIVEN: Three enrolled students, a CSV source with one clean row, one
	//        unknown identifier, and a same-kind disagreement, plus a
	//        legacy source with one record and one extraction error
	// WHEN: Running against one timed and one untimed assessment
	// THEN: Every degradation lands in the report and only clean factors
	//       reach the LMS
	roster := stubRoster{students: []rap.Student{
		student("u-1", "3201234", "Alex Cave"),
		student("u-2", "3209999", "Morgan Reid"),
		student("u-3", "3208888", "Rory Lim"),
	}}
	lms := newFakeLMS(
		timedAssessment("a-1", "Midterm", 60, nil),
		untimedAssessment("a-2", "Essay"),
	)
	csv := stubSource{records: []rap.RapRecord{
		csvRecord("3201234", "1.25", t0),
		csvRecord("1111111", "1.25", t0),
		csvRecord("3209999", "1.5", t0),
		csvRecord("3209999", "2", t0.Add(time.Minute)),
	}}
	legacy := stubSource{
		records: []rap.RapRecord{pdfRecord("Rory Lim", "1.5", t0)},
		errs: []rap.ExtractionError{{
			Source: rap.SourceLegacyPDF,
			Origin: "torn-scan.txt",
			Reason: "no extension statement found",
		}},
	}
	r, state := newReconciler(lms, roster)

	report, err := r.Run(context.Background(), rap.RunInput{
		RunID:   "run-1",
		Course:  "course-1",
		Sources: []rap.RecordSource{csv, legacy},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	s := report.Summary
	if s.Records != 5 || s.ExtractionErrors != 1 {
		t.Errorf("records = %d, extraction errors = %d, want 5 and 1", s.Records, s.ExtractionErrors)
	}
	if s.Matched != 4 || s.Unmatched != 1 || s.Ambiguous != 0 {
		t.Errorf("matched/unmatched/ambiguous = %d/%d/%d, want 4/1/0", s.Matched, s.Unmatched, s.Ambiguous)
	}
	if s.ResolvedStudents != 2 || s.Conflicts != 1 {
		t.Errorf("resolved = %d, conflicts = %d, want 2 and 1", s.ResolvedStudents, s.Conflicts)
	}
	if s.Applied != 2 || s.SkippedUnresolved != 1 || s.SkippedUntimed != 3 {
		t.Errorf("applied/unresolved/untimed = %d/%d/%d, want 2/1/3", s.Applied, s.SkippedUnresolved, s.SkippedUntimed)
	}
	if !report.NeedsAttention() {
		t.Error("report with conflicts and unmatched records must need attention")
	}

	// Morgan's conflict suppresses the factor but keeps the pair visible.
	if res := findResult(t, report.Results, "a-1", "u-2"); res.Outcome != rap.OutcomeSkippedUnresolved {
		t.Errorf("conflicted student outcome = %s, want skipped_unresolved", res.Outcome)
	}

	// Applied overrides are persisted for the next run's stale detection.
	prior, err := state.AppliedOverrides(context.Background(), "course-1")
	if err != nil {
		t.Fatalf("applied overrides: %v", err)
	}
	if len(prior) != 2 {
		t.Fatalf("persisted overrides = %d, want 2", len(prior))
	}
	ov := prior[rap.OverrideKey{Assessment: "a-1", User: "u-1"}]
	if ov.Minutes != 75 || ov.RunID != "run-1" {
		t.Errorf("persisted override = %+v, want 75 min from run-1", ov)
	}

	rec, err := state.Run(context.Background(), "run-1")
	if err != nil {
		t.Fatalf("run record: %v", err)
	}
	if rec.Status != rap.RunCompleted || rec.Report == nil {
		t.Errorf("run record status = %s, report nil = %v, want completed with report", rec.Status, rec.Report == nil)
	}
}

func TestReconciler_SecondRun_AllUnchanged(t *testing.T) {
	// GIVEN: A completed run whose writes the LMS retains
	// WHEN: Running again with identical sources
	// THEN: Every pair reports unchanged and nothing is written
	roster := stubRoster{students: []rap.Student{student("u-1", "3201234", "Alex Cave")}}
	lms := newFakeLMS(timedAssessment("a-1", "Midterm", 60, nil))
	src := stubSource{records: []rap.RapRecord{csvRecord("3201234", "1.25", t0)}}
	r, _ := newReconciler(lms, roster)

	first, err := r.Run(context.Background(), rap.RunInput{RunID: "run-1", Course: "course-1", Sources: []rap.RecordSource{src}})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	if first.Summary.Applied != 1 {
		t.Fatalf("first run applied = %d, want 1", first.Summary.Applied)
	}

	second, err := r.Run(context.Background(), rap.RunInput{RunID: "run-2", Course: "course-1", Sources: []rap.RecordSource{src}})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	if second.Summary.Applied != 0 || second.Summary.Unchanged != 1 {
		t.Errorf("second run applied/unchanged = %d/%d, want 0/1",
			second.Summary.Applied, second.Summary.Unchanged)
	}
	if calls := lms.setCalls(); len(calls) != 1 {
		t.Errorf("total writes across both runs = %d, want 1", len(calls))
	}
}

func TestReconciler_RaisedFactor_SupersedesOwnWrite(t *testing.T) {
	// GIVEN: A run that wrote 72 minutes at factor 1.2
	// WHEN: The factor rises to 1.25 and the engine runs again
	// THEN: The stale 72 is replaced with 75 without operator confirmation
	roster := stubRoster{students: []rap.Student{student("u-1", "3201234", "Alex Cave")}}
	lms := newFakeLMS(timedAssessment("a-1", "Midterm", 60, nil))
	r, _ := newReconciler(lms, roster)

	_, err := r.Run(context.Background(), rap.RunInput{
		RunID:   "run-1",
		Course:  "course-1",
		Sources: []rap.RecordSource{stubSource{records: []rap.RapRecord{csvRecord("3201234", "1.2", t0)}}},
	})
	if err != nil {
		t.Fatalf("first run: %v", err)
	}

	report, err := r.Run(context.Background(), rap.RunInput{
		RunID:   "run-2",
		Course:  "course-1",
		Sources: []rap.RecordSource{stubSource{records: []rap.RapRecord{csvRecord("3201234", "1.25", t0.Add(time.Hour))}}},
	})
	if err != nil {
		t.Fatalf("second run: %v", err)
	}

	if report.Summary.Applied != 1 || report.Summary.ApplyConflicts != 0 {
		t.Fatalf("applied/conflicts = %d/%d, want 1/0", report.Summary.Applied, report.Summary.ApplyConflicts)
	}
	calls := lms.setCalls()
	if len(calls) != 2 || calls[1].minutes != 75 {
		t.Errorf("writes = %+v, want 72 then 75", calls)
	}
}

// =============================================================================
// ABORTS AND DEGRADATION BOUNDARIES
// =============================================================================

func TestReconciler_StructuralSourceError_RunFails(t *testing.T) {
	// GIVEN: A tabular source missing required columns
	// WHEN: Running
	// THEN: The run aborts, the error is identifiable, and the run record
	//       is marked failed
	roster := stubRoster{students: []rap.Student{student("u-1", "3201234", "Alex Cave")}}
	lms := newFakeLMS(timedAssessment("a-1", "Midterm", 60, nil))
	broken := stubSource{err: fmt.Errorf("export.csv: %w: u_exam_time", rap.ErrMissingColumns)}
	r, state := newReconciler(lms, roster)

	_, err := r.Run(context.Background(), rap.RunInput{RunID: "run-1", Course: "course-1", Sources: []rap.RecordSource{broken}})
	if !errors.Is(err, rap.ErrMissingColumns) {
		t.Fatalf("err = %v, want ErrMissingColumns", err)
	}

	rec, rerr := state.Run(context.Background(), "run-1")
	if rerr != nil {
		t.Fatalf("run record: %v", rerr)
	}
	if rec.Status != rap.RunFailed || rec.Error == "" {
		t.Errorf("run record = %s (%q), want failed with message", rec.Status, rec.Error)
	}
	if calls := lms.setCalls(); len(calls) != 0 {
		t.Errorf("writes = %+v, want none after abort", calls)
	}
}

func TestReconciler_RosterFailure_RunFails(t *testing.T) {
	// GIVEN: The roster fetch fails
	// WHEN: Running
	// THEN: The run aborts rather than matching against nothing
	lms := newFakeLMS(timedAssessment("a-1", "Midterm", 60, nil))
	roster := stubRoster{err: errors.New("401 unauthorized")}
	r, state := newReconciler(lms, roster)

	_, err := r.Run(context.Background(), rap.RunInput{
		RunID:   "run-1",
		Course:  "course-1",
		Sources: []rap.RecordSource{stubSource{records: []rap.RapRecord{csvRecord("3201234", "1.25", t0)}}},
	})
	if err == nil || !strings.Contains(err.Error(), "fetch roster") {
		t.Fatalf("err = %v, want roster fetch failure", err)
	}

	rec, rerr := state.Run(context.Background(), "run-1")
	if rerr != nil {
		t.Fatalf("run record: %v", rerr)
	}
	if rec.Status != rap.RunFailed {
		t.Errorf("run record status = %s, want failed", rec.Status)
	}
}

func TestReconciler_NoSources_Rejected(t *testing.T) {
	// GIVEN: A run request with no sources configured
	// WHEN: Running
	// THEN: ErrNoSources before any run record exists
	lms := newFakeLMS()
	r, state := newReconciler(lms, stubRoster{})

	_, err := r.Run(context.Background(), rap.RunInput{Course: "course-1"})
	if !errors.Is(err, rap.ErrNoSources) {
		t.Fatalf("err = %v, want ErrNoSources", err)
	}

	runs, rerr := state.Runs(context.Background(), "", 0)
	if rerr != nil {
		t.Fatalf("runs: %v", rerr)
	}
	if len(runs) != 0 {
		t.Errorf("run records = %d, want none for a rejected request", len(runs))
	}
}

func TestReconciler_DryRun_NoStatePersisted(t *testing.T) {
	// GIVEN: A pair the engine would write
	// WHEN: Running with DryRun
	// THEN: The report shows the would-be write, the LMS and override
	//       state stay untouched, and the run record is flagged dry-run
	roster := stubRoster{students: []rap.Student{student("u-1", "3201234", "Alex Cave")}}
	lms := newFakeLMS(timedAssessment("a-1", "Midterm", 60, nil))
	src := stubSource{records: []rap.RapRecord{csvRecord("3201234", "1.25", t0)}}
	r, state := newReconciler(lms, roster)

	report, err := r.Run(context.Background(), rap.RunInput{
		RunID:   "run-1",
		Course:  "course-1",
		Sources: []rap.RecordSource{src},
		DryRun:  true,
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if !report.DryRun || report.Summary.Applied != 1 {
		t.Errorf("dry run report applied = %d (dry=%v), want 1 would-be write", report.Summary.Applied, report.DryRun)
	}
	if calls := lms.setCalls(); len(calls) != 0 {
		t.Errorf("writes = %+v, want none in dry run", calls)
	}
	prior, perr := state.AppliedOverrides(context.Background(), "course-1")
	if perr != nil {
		t.Fatalf("applied overrides: %v", perr)
	}
	if len(prior) != 0 {
		t.Errorf("persisted overrides = %d, want none in dry run", len(prior))
	}
	rec, rerr := state.Run(context.Background(), "run-1")
	if rerr != nil {
		t.Fatalf("run record: %v", rerr)
	}
	if !rec.DryRun || rec.Status != rap.RunCompleted {
		t.Errorf("run record dry=%v status=%s, want dry-run completed", rec.DryRun, rec.Status)
	}
}
