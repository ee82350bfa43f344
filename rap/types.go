/*
Package rap provides the RAP reconciliation and application engine.

PURPOSE:
  This package contains the core types and algorithms for reconciling
  student extra-time accommodation records (Reasonable Adjustment Plans)
  against a course roster and applying the resulting time extensions to
  timed assessments in an external LMS. Whether records arrive from the
  current tabular export or from legacy per-student documents, the same
  pipeline matches, resolves, and applies them.

KEY CONCEPTS IN THIS FILE (types.go):
  - RapRecord: A normalized accommodation record from one source
  - Student: A roster entry (read-only snapshot per run)
  - AccommodationFactor: The resolved per-student extension multiplier
  - Assessment: A timed assessment with its current override snapshot
  - ApplyResult: The terminal outcome for one (student, assessment) pair
  - AppliedOverride / RunRecord: State persisted between runs

DESIGN PRINCIPLES:
  1. Immutability: RapRecords are never modified after extraction
  2. Precision: decimal.Decimal for multipliers, no floating point
  3. Type Safety: Distinct ID types prevent mixing course/assessment/user IDs
  4. Explicitness: every stage output is a tagged variant, never a nullable
     field a later stage could misread as resolved

USAGE:
  rec := rap.RapRecord{
      SourceStudentID: "3201234",
      Multiplier:      rap.MustMultiplier("1.25"),
      Source:          rap.SourceCSV,
  }
  outcomes := rap.Match([]rap.RapRecord{rec}, roster)
  factors, conflicts := rap.Resolve(outcomes)

SEE ALSO:
  - match.go: Roster matching with identifier canonicalization
  - resolve.go: Duplicate merging and conflict rules
  - apply.go: Idempotent override application
  - report.go: The run report consumed by the presentation layer
*/
package rap

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type CourseID string
type AssessmentID string

// CanvasUserID is the LMS's opaque stable identifier for a student. It is
// the key every derived structure is indexed by; institutional IDs exist
// only to join source records onto the roster.
type CanvasUserID string

// =============================================================================
// SOURCE KINDS
// =============================================================================

// SourceKind identifies which ingestion path produced a RapRecord. The
// resolver's priority rule depends on it: CSV supersedes LEGACY_PDF.
type SourceKind string

const (
	SourceCSV       SourceKind = "CSV"        // Current tabular export
	SourceLegacyPDF SourceKind = "LEGACY_PDF" // Text extracted from per-student documents
)

// =============================================================================
// MULTIPLIERS
// =============================================================================

// minMultiplier is the floor for any extension multiplier. A record
// implying less time than standard is malformed input, never clamped.
var minMultiplier = decimal.NewFromInt(1)

// ValidMultiplier reports whether m is an acceptable extension multiplier.
func ValidMultiplier(m decimal.Decimal) bool {
	return m.GreaterThanOrEqual(minMultiplier)
}

// MustMultiplier parses a decimal multiplier or panics. Test and fixture
// helper; production parsing goes through the extract package.
func MustMultiplier(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(fmt.Sprintf("rap: bad multiplier literal %q: %v", s, err))
	}
	return d
}

// TargetMinutes computes the accommodated time limit for a base limit and
// multiplier: ceil(base × multiplier). With multiplier ≥ 1 the result can
// never fall below base.
func TargetMinutes(baseMinutes int, multiplier decimal.Decimal) int {
	target := decimal.NewFromInt(int64(baseMinutes)).Mul(multiplier).Ceil()
	return int(target.IntPart())
}

// =============================================================================
// RAP RECORD - Normalized accommodation record from one source
// =============================================================================

// RapRecord is one extracted accommodation entry, already normalized to the
// shared unit (an extension multiplier) at the extraction boundary. Later
// stages never see the source's original unit. Immutable once created.
type RapRecord struct {
	// SourceStudentID is the identifier exactly as the source gave it,
	// not yet validated against the roster. Empty for legacy documents
	// that carry no student number.
	SourceStudentID string `json:"source_student_id,omitempty"`

	// RawName is used only for legacy name-based matching.
	RawName string `json:"raw_name,omitempty"`

	// Multiplier is the normalized extension factor, always ≥ 1.0.
	Multiplier decimal.Decimal `json:"multiplier"`

	Source     SourceKind `json:"source_kind"`
	IngestedAt time.Time  `json:"ingested_at"`

	// Origin names the row or document this record came from, for audit.
	Origin string `json:"origin,omitempty"`

	// RequestedFor carries the tabular export's free-text "requested for"
	// column. Audit only; never used in matching or resolution.
	RequestedFor string `json:"requested_for,omitempty"`
}

// =============================================================================
// STUDENT - Roster entry
// =============================================================================

// Student is an enrolled student as reported by the LMS roster. The engine
// treats the roster as a read-only snapshot for the duration of a run.
type Student struct {
	CanvasUserID    CanvasUserID `json:"canvas_user_id"`
	InstitutionalID string       `json:"institutional_id"`
	DisplayName     string       `json:"display_name"`
}

// =============================================================================
// ACCOMMODATION FACTOR - Resolved per-student multiplier
// =============================================================================

// AccommodationFactor is the authoritative extension multiplier for one
// student in one run. Derived and recomputed every run; the raw RAP input
// stays the ground truth, this is a cache of the last resolution.
type AccommodationFactor struct {
	CanvasUserID CanvasUserID    `json:"canvas_user_id"`
	Multiplier   decimal.Decimal `json:"multiplier"`

	// Provenance lists the record(s) that produced this factor.
	Provenance []RapRecord `json:"provenance"`
}

// =============================================================================
// ASSESSMENT - Timed assessment with override snapshot
// =============================================================================

// Assessment is one LMS assessment as read at the start of an apply pass.
// ExistingOverrides is the fresh per-student override snapshot; comparing
// against it (rather than re-reading mid-run) keeps conflict detection
// consistent.
type Assessment struct {
	ID   AssessmentID `json:"id"`
	Name string       `json:"name"`

	// BaseTimeLimitMinutes is nil for untimed assessments, which are
	// skipped rather than given an override.
	BaseTimeLimitMinutes *int `json:"base_time_limit_minutes"`

	Published bool `json:"published"`

	// ExistingOverrides maps student → total time limit minutes currently
	// set on the LMS.
	ExistingOverrides map[CanvasUserID]int `json:"existing_overrides,omitempty"`
}

// Timed reports whether the assessment has a base time limit to extend.
func (a Assessment) Timed() bool {
	return a.BaseTimeLimitMinutes != nil && *a.BaseTimeLimitMinutes > 0
}

// =============================================================================
// APPLY RESULTS - Terminal outcome per (student, assessment) pair
// =============================================================================

// ApplyOutcome is the terminal state of one pair. Every pair transitions
// exactly once per run: pending → outcome.
type ApplyOutcome string

const (
	OutcomeApplied           ApplyOutcome = "applied"            // Override written
	OutcomeUnchanged         ApplyOutcome = "unchanged"          // Already at target, no write issued
	OutcomeSkippedUntimed    ApplyOutcome = "skipped_untimed"    // Assessment has no base time limit
	OutcomeSkippedUnresolved ApplyOutcome = "skipped_unresolved" // Student has no resolved factor
	OutcomeConflict          ApplyOutcome = "conflict"           // Manual override differs, not overwritten
	OutcomeFailed            ApplyOutcome = "failed"             // LMS call failed, retry via re-run
)

// ApplyResult records the outcome for one (student, assessment) pair.
type ApplyResult struct {
	Assessment     AssessmentID `json:"assessment_id"`
	AssessmentName string       `json:"assessment_name,omitempty"`
	CanvasUserID   CanvasUserID `json:"canvas_user_id"`
	Outcome        ApplyOutcome `json:"outcome"`

	// TargetMinutes is the computed accommodated limit. Zero for pairs
	// skipped before computation.
	TargetMinutes int `json:"target_minutes,omitempty"`

	Reason string `json:"reason,omitempty"`
}

// =============================================================================
// PERSISTED STATE - What the engine wrote in earlier runs
// =============================================================================

// OverrideKey identifies one (assessment, student) override.
type OverrideKey struct {
	Assessment AssessmentID
	User       CanvasUserID
}

// AppliedOverride records an override this engine wrote. The applier reads
// these back to distinguish its own stale values (safe to overwrite) from
// manual instructor edits (never overwritten silently).
type AppliedOverride struct {
	Course       CourseID        `json:"course_id"`
	Assessment   AssessmentID    `json:"assessment_id"`
	CanvasUserID CanvasUserID    `json:"canvas_user_id"`
	Minutes      int             `json:"minutes"`
	Multiplier   decimal.Decimal `json:"multiplier"`
	RunID        string          `json:"run_id"`
	AppliedAt    time.Time       `json:"applied_at"`
}

// Key returns the override's (assessment, student) key.
func (o AppliedOverride) Key() OverrideKey {
	return OverrideKey{Assessment: o.Assessment, User: o.CanvasUserID}
}

// =============================================================================
// RUN RECORDS - Reconciliation run lifecycle
// =============================================================================

type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
)

// RunRecord tracks one reconciliation run from trigger to completion.
type RunRecord struct {
	ID         string                `json:"id"`
	Course     CourseID              `json:"course_id"`
	Status     RunStatus             `json:"status"`
	DryRun     bool                  `json:"dry_run,omitempty"`
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt time.Time             `json:"finished_at,omitempty"`
	Error      string                `json:"error,omitempty"`
	Report     *ReconciliationReport `json:"report,omitempty"`
}
