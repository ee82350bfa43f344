/*
apply.go - Idempotent override application

PURPOSE:
  Turns resolved factors into per-student time-limit overrides on the
  LMS. The applier is the only stage with side effects, and every side
  effect is guarded: it never writes a value already in place, never
  writes below an assessment's base limit, and never silently replaces a
  value an instructor set by hand.

DECISION TABLE per (student, assessment) pair:
  no base time limit            -> skipped_untimed
  no resolved factor            -> skipped_unresolved
  no current override           -> write target        (applied)
  current == target             -> no write            (unchanged)
  current == previously applied -> write target        (applied; stale value
                                                        this engine wrote)
  anything else                 -> conflict, no write  (manual edit wins
                                                        unless ReplaceManual)

  target = ceil(base × multiplier), computed in exact decimal.

CONCURRENCY:
  Pairs are an explicit task list submitted to a bounded worker pool.
  Results land in a pre-sized slice indexed by task, so output order is
  deterministic regardless of scheduling. LMS failures are captured per
  pair, never returned from the pool; a cancelled context marks the
  untouched pairs failed.

SEE ALSO:
  - resolve.go: Produces the factor map
  - reconcile.go: Loads the prior-override state and persists results
*/
package rap

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// DefaultApplyConcurrency bounds parallel LMS calls when the applier is
// not configured otherwise. Kept low to respect LMS rate limits.
const DefaultApplyConcurrency = 4

// =============================================================================
// LMS CLIENT INTERFACE - Implemented by the canvas package
// =============================================================================

// LMSClient is the engine's view of the external LMS. Authentication,
// pagination, and transport retry live behind this interface.
type LMSClient interface {
	// ListTimedAssessments returns the course's assessments with a fresh
	// per-student override snapshot. Untimed assessments may be included;
	// the applier skips them.
	ListTimedAssessments(ctx context.Context, course CourseID) ([]Assessment, error)

	// GetOverride reads the current override for one pair. found is false
	// when no override is set.
	GetOverride(ctx context.Context, course CourseID, assessment AssessmentID, user CanvasUserID) (minutes int, found bool, err error)

	// SetOverride sets the total time limit for one pair.
	SetOverride(ctx context.Context, course CourseID, assessment AssessmentID, user CanvasUserID, minutes int) error
}

// =============================================================================
// APPLIER
// =============================================================================

// Applier issues idempotent override updates through an LMSClient.
type Applier struct {
	Client LMSClient

	// Concurrency bounds parallel LMS calls; DefaultApplyConcurrency if
	// zero or negative.
	Concurrency int

	// Logger defaults to a nop logger.
	Logger *zap.Logger
}

// ApplyInput carries everything one apply pass needs. The core takes all
// inputs explicitly; nothing ambient.
type ApplyInput struct {
	Course CourseID

	// Assessments is the immutable snapshot for this run, overrides
	// included.
	Assessments []Assessment

	// Factors is the resolver's output.
	Factors map[CanvasUserID]AccommodationFactor

	// Students scopes the pass: every (assessment, student) pair gets a
	// terminal outcome. Students without a factor (e.g. suppressed by a
	// resolution conflict) report skipped_unresolved.
	Students []Student

	// Prior maps pair -> override this engine wrote in an earlier run.
	Prior map[OverrideKey]AppliedOverride

	// ReplaceManual lets the operator confirm replacement of manual
	// instructor overrides.
	ReplaceManual bool

	// DryRun computes every outcome without issuing writes.
	DryRun bool
}

type applyJob struct {
	index      int
	assessment Assessment
	student    Student
}

// Apply processes every (assessment, student) pair and returns one
// terminal ApplyResult per pair, in (assessment, student) input order.
func (a *Applier) Apply(ctx context.Context, in ApplyInput) []ApplyResult {
	jobs := make([]applyJob, 0, len(in.Assessments)*len(in.Students))
	for _, assessment := range in.Assessments {
		for _, student := range in.Students {
			jobs = append(jobs, applyJob{index: len(jobs), assessment: assessment, student: student})
		}
	}

	results := make([]ApplyResult, len(jobs))

	limit := a.Concurrency
	if limit <= 0 {
		limit = DefaultApplyConcurrency
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, job := range jobs {
		job := job
		g.Go(func() error {
			results[job.index] = a.applyPair(gctx, in, job)
			return nil
		})
	}
	_ = g.Wait() // failures are captured per pair, never returned

	return results
}

func (a *Applier) applyPair(ctx context.Context, in ApplyInput, job applyJob) ApplyResult {
	res := ApplyResult{
		Assessment:     job.assessment.ID,
		AssessmentName: job.assessment.Name,
		CanvasUserID:   job.student.CanvasUserID,
	}

	if err := ctx.Err(); err != nil {
		res.Outcome = OutcomeFailed
		res.Reason = fmt.Sprintf("run cancelled: %v", err)
		return res
	}

	if !job.assessment.Timed() {
		res.Outcome = OutcomeSkippedUntimed
		return res
	}

	factor, ok := in.Factors[job.student.CanvasUserID]
	if !ok {
		res.Outcome = OutcomeSkippedUnresolved
		res.Reason = "no resolved accommodation factor"
		return res
	}

	base := *job.assessment.BaseTimeLimitMinutes
	res.TargetMinutes = TargetMinutes(base, factor.Multiplier)

	current, exists := job.assessment.ExistingOverrides[job.student.CanvasUserID]
	switch {
	case !exists:
		return a.write(ctx, in, job, res, "")

	case current == res.TargetMinutes:
		res.Outcome = OutcomeUnchanged
		return res

	case a.wroteBefore(in, job, current):
		return a.write(ctx, in, job, res,
			fmt.Sprintf("superseding previously applied %d min", current))

	case in.ReplaceManual:
		return a.write(ctx, in, job, res,
			fmt.Sprintf("manual override %d min replaced on operator confirmation", current))

	default:
		res.Outcome = OutcomeConflict
		res.Reason = fmt.Sprintf("manual override %d min differs from computed %d min", current, res.TargetMinutes)
		a.logger().Warn("manual override conflict",
			zap.String("assessment", string(job.assessment.ID)),
			zap.String("user", string(job.student.CanvasUserID)),
			zap.Int("current", current),
			zap.Int("target", res.TargetMinutes))
		return res
	}
}

// wroteBefore reports whether the current override equals a value this
// engine applied in an earlier run, i.e. a stale computed value that is
// safe to supersede.
func (a *Applier) wroteBefore(in ApplyInput, job applyJob, current int) bool {
	prior, ok := in.Prior[OverrideKey{Assessment: job.assessment.ID, User: job.student.CanvasUserID}]
	return ok && prior.Minutes == current
}

func (a *Applier) write(ctx context.Context, in ApplyInput, job applyJob, res ApplyResult, note string) ApplyResult {
	if in.DryRun {
		res.Outcome = OutcomeApplied
		res.Reason = joinReason("dry run, no write issued", note)
		return res
	}

	err := a.Client.SetOverride(ctx, in.Course, job.assessment.ID, job.student.CanvasUserID, res.TargetMinutes)
	if err != nil {
		failure := &ApplyFailure{
			Assessment:   job.assessment.ID,
			CanvasUserID: job.student.CanvasUserID,
			Err:          err,
		}
		res.Outcome = OutcomeFailed
		res.Reason = failure.Error()
		a.logger().Warn("override write failed",
			zap.String("assessment", string(job.assessment.ID)),
			zap.String("user", string(job.student.CanvasUserID)),
			zap.Error(err))
		return res
	}

	res.Outcome = OutcomeApplied
	res.Reason = note
	a.logger().Debug("override applied",
		zap.String("assessment", string(job.assessment.ID)),
		zap.String("user", string(job.student.CanvasUserID)),
		zap.Int("minutes", res.TargetMinutes))
	return res
}

func (a *Applier) logger() *zap.Logger {
	if a.Logger != nil {
		return a.Logger
	}
	return zap.NewNop()
}

func joinReason(parts ...string) string {
	out := ""
	for _, p := range parts {
		if p == "" {
			continue
		}
		if out != "" {
			out += "; "
		}
		out += p
	}
	return out
}
