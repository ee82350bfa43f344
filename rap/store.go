/*
store.go - Persistence interfaces for engine state

PURPOSE:
  Defines what the engine needs persisted between runs. Two concerns:

  1. Applied overrides - the values this engine wrote to the LMS. The
     applier reads these back to tell its own stale values (safe to
     supersede) apart from manual instructor edits (never overwritten
     silently). Losing this state is safe in the conservative direction:
     a stale value then shows up as a conflict for the operator instead
     of being rewritten automatically.

  2. Run records - trigger-to-completion lifecycle of each run, with the
     finished report attached for later inspection.

CONTRACT:
  - SaveOverride upserts on (course, assessment, user): the latest applied
    value per pair is what stale detection compares against.
  - SaveRun upserts by ID: the coordinator records a pending run before
    the reconciler re-saves it as running. UpdateRun replaces an existing
    record only; it and Run return ErrRunNotFound when the ID is missing.
  - Implementations must be safe for concurrent use.

IMPLEMENTATIONS:
  - store/sqlite: durable store for production
  - rap/store: in-memory store for tests and demo mode

SEE ALSO:
  - reconcile.go: The only writer
  - api: Reads run records for the operator
*/
package rap

import "context"

// OverrideStore persists what the engine wrote to the LMS.
type OverrideStore interface {
	// AppliedOverrides returns the latest engine-written override per
	// (assessment, user) pair for a course.
	AppliedOverrides(ctx context.Context, course CourseID) (map[OverrideKey]AppliedOverride, error)

	// SaveOverride upserts one applied override.
	SaveOverride(ctx context.Context, ov AppliedOverride) error
}

// RunStore persists run lifecycle records.
type RunStore interface {
	SaveRun(ctx context.Context, rec *RunRecord) error
	UpdateRun(ctx context.Context, rec *RunRecord) error

	// Run returns one run record or ErrRunNotFound.
	Run(ctx context.Context, id string) (*RunRecord, error)

	// Runs returns a course's run records, most recent first. A zero
	// limit means no limit; an empty course means all courses.
	Runs(ctx context.Context, course CourseID, limit int) ([]*RunRecord, error)
}

// StateStore is the full persistence surface the reconciler needs.
type StateStore interface {
	OverrideStore
	RunStore
}
