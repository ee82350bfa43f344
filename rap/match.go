/*
match.go - Roster matching with identifier canonicalization

PURPOSE:
  Resolves each extracted RapRecord to exactly one enrolled Student, or
  flags it unresolved. Matching never guesses: a record that cannot be
  pinned to exactly one student is reported, not dropped and not assigned
  to a best candidate.

MATCHING ORDER:
  1. Identifier: canonicalized SourceStudentID against canonicalized
     roster InstitutionalID. O(1) against a prebuilt index.
  2. Name fallback (records without an identifier only): case-insensitive,
     whitespace-normalized full name against roster DisplayName. A name
     shared by more than one student is AMBIGUOUS, never auto-resolved.

CANONICALIZATION:
  Institutional identifiers appear inconsistently across systems: the LMS
  reports "c3201234" where the RAP export writes "3201234". Both sides are
  canonicalized (trim, lowercase, drop a single leading letter when the
  remainder is all digits) before comparison.

OUTCOME VARIANTS:
  Every record yields exactly one MatchOutcome tagged matched, unmatched,
  or ambiguous. Downstream stages switch on the tag; there is no nullable
  student field to misread.

SEE ALSO:
  - resolve.go: Consumes matched outcomes only
  - report.go: Accumulates all outcomes for audit
*/
package rap

import (
	"fmt"
	"strings"
	"unicode"
)

// =============================================================================
// MATCH OUTCOMES - Tagged variants
// =============================================================================

type MatchStatus string

const (
	MatchMatched   MatchStatus = "matched"
	MatchUnmatched MatchStatus = "unmatched"
	MatchAmbiguous MatchStatus = "ambiguous"
)

// MatchOutcome pairs one record with its resolution. Student is set only
// when Status is matched; Candidates only when ambiguous.
type MatchOutcome struct {
	Record     RapRecord   `json:"record"`
	Status     MatchStatus `json:"status"`
	Student    *Student    `json:"student,omitempty"`
	Candidates []Student   `json:"candidates,omitempty"`
	Reason     string      `json:"reason,omitempty"`
}

// =============================================================================
// ROSTER INDEX - Prebuilt lookup structures
// =============================================================================

// RosterIndex indexes one roster snapshot for matching. Build once per
// run; the roster is immutable for the run's duration.
type RosterIndex struct {
	byID   map[string]*Student
	byName map[string][]*Student
}

// NewRosterIndex builds the identifier and name indexes for a roster.
func NewRosterIndex(roster []Student) *RosterIndex {
	idx := &RosterIndex{
		byID:   make(map[string]*Student, len(roster)),
		byName: make(map[string][]*Student),
	}
	for i := range roster {
		s := &roster[i]
		if id := CanonicalID(s.InstitutionalID); id != "" {
			idx.byID[id] = s
		}
		if name := NormalizeName(s.DisplayName); name != "" {
			idx.byName[name] = append(idx.byName[name], s)
		}
	}
	return idx
}

// Match resolves a batch of records against the index. Deterministic and
// idempotent: the same records against the same roster always yield the
// same outcomes, in input order.
func (idx *RosterIndex) Match(records []RapRecord) []MatchOutcome {
	outcomes := make([]MatchOutcome, 0, len(records))
	for _, rec := range records {
		outcomes = append(outcomes, idx.matchOne(rec))
	}
	return outcomes
}

func (idx *RosterIndex) matchOne(rec RapRecord) MatchOutcome {
	if id := CanonicalID(rec.SourceStudentID); id != "" {
		if s, ok := idx.byID[id]; ok {
			return MatchOutcome{Record: rec, Status: MatchMatched, Student: s}
		}
		// An identifier was given but is not on the roster. The name
		// fallback is reserved for records with no identifier at all;
		// guessing by name here would hide a bad identifier.
		return MatchOutcome{
			Record: rec,
			Status: MatchUnmatched,
			Reason: fmt.Sprintf("identifier %q not on roster", rec.SourceStudentID),
		}
	}

	name := NormalizeName(rec.RawName)
	if name == "" {
		return MatchOutcome{
			Record: rec,
			Status: MatchUnmatched,
			Reason: "record carries neither identifier nor name",
		}
	}

	candidates := idx.byName[name]
	switch len(candidates) {
	case 0:
		return MatchOutcome{
			Record: rec,
			Status: MatchUnmatched,
			Reason: fmt.Sprintf("name %q not on roster", rec.RawName),
		}
	case 1:
		return MatchOutcome{Record: rec, Status: MatchMatched, Student: candidates[0]}
	default:
		shared := make([]Student, len(candidates))
		for i, c := range candidates {
			shared[i] = *c
		}
		return MatchOutcome{
			Record:     rec,
			Status:     MatchAmbiguous,
			Candidates: shared,
			Reason:     fmt.Sprintf("%d roster students share the name %q", len(candidates), rec.RawName),
		}
	}
}

// Match is the single-shot form: builds the index and matches in one call.
func Match(records []RapRecord, roster []Student) []MatchOutcome {
	return NewRosterIndex(roster).Match(records)
}

// =============================================================================
// KEY NORMALIZATION
// =============================================================================

// CanonicalID canonicalizes an institutional identifier for joining:
// trim, lowercase, and strip a single leading letter when everything after
// it is digits ("c3201234" and "3201234" refer to the same student).
func CanonicalID(id string) string {
	id = strings.ToLower(strings.TrimSpace(id))
	if len(id) > 1 && unicode.IsLetter(rune(id[0])) && allDigits(id[1:]) {
		id = id[1:]
	}
	return id
}

// NormalizeName lowercases and whitespace-normalizes a full name.
func NormalizeName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
