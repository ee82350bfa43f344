/*
resolve.go - Duplicate merging and conflict rules

PURPOSE:
  Merges possibly-duplicate matched records into exactly one
  AccommodationFactor per student, or a ResolutionConflict when the
  sources contradict each other.

RESOLUTION POLICY:
  1. One record: its multiplier is authoritative.
  2. Mixed kinds: CSV beats LEGACY_PDF outright. The tabular export is the
     current source of truth; legacy documents survive only as fallback.
  3. Within the preferred kind: the most recently ingested record wins,
     but if records of that kind disagree beyond a negligible tolerance
     the student gets a CONFLICT and no factor. Contradictory
     authoritative data is an operator problem, not a tie-break.

KEY INSIGHT:
  Resolution is a pure function of its input. No clock, no store, no
  side effects: running it twice on identical input yields identical
  output, which is what makes the whole pipeline re-runnable.

SEE ALSO:
  - match.go: Produces the outcomes consumed here
  - apply.go: Consumes the factor map
*/
package rap

import (
	"sort"

	"github.com/shopspring/decimal"
)

// conflictTolerance is the largest same-kind disagreement still treated
// as agreement. Values come from exact decimal parsing, so this only
// matters when two representations of one grant differ in precision.
var conflictTolerance = decimal.RequireFromString("0.001")

// Resolve merges matched records into one factor per student. Unmatched
// and ambiguous outcomes never contribute. The conflict list is sorted by
// student ID so identical input yields identical output.
func Resolve(outcomes []MatchOutcome) (map[CanvasUserID]AccommodationFactor, []ResolutionConflict) {
	type group struct {
		student *Student
		records []RapRecord
	}

	groups := make(map[CanvasUserID]*group)
	order := make([]CanvasUserID, 0, len(outcomes))
	for _, out := range outcomes {
		if out.Status != MatchMatched {
			continue
		}
		id := out.Student.CanvasUserID
		g, ok := groups[id]
		if !ok {
			g = &group{student: out.Student}
			groups[id] = g
			order = append(order, id)
		}
		g.records = append(g.records, out.Record)
	}

	factors := make(map[CanvasUserID]AccommodationFactor, len(groups))
	var conflicts []ResolutionConflict

	for _, id := range order {
		g := groups[id]
		preferred := preferredRecords(g.records)

		if spread(preferred).GreaterThan(conflictTolerance) {
			conflicts = append(conflicts, newConflict(g.student, preferred,
				"records of the same kind disagree"))
			continue
		}

		chosen := preferred[0]
		if !ValidMultiplier(chosen.Multiplier) {
			conflicts = append(conflicts, newConflict(g.student, preferred,
				"resolved multiplier below 1.0"))
			continue
		}

		factors[id] = AccommodationFactor{
			CanvasUserID: id,
			Multiplier:   chosen.Multiplier,
			Provenance:   preferred,
		}
	}

	sort.Slice(conflicts, func(i, j int) bool {
		return conflicts[i].CanvasUserID < conflicts[j].CanvasUserID
	})
	return factors, conflicts
}

// preferredRecords narrows a student's records to the winning source kind
// and orders them most recently ingested first. The sort is stable so
// equal timestamps preserve input order.
func preferredRecords(records []RapRecord) []RapRecord {
	preferred := make([]RapRecord, 0, len(records))
	for _, r := range records {
		if r.Source == SourceCSV {
			preferred = append(preferred, r)
		}
	}
	if len(preferred) == 0 {
		preferred = append(preferred, records...)
	}
	sort.SliceStable(preferred, func(i, j int) bool {
		return preferred[i].IngestedAt.After(preferred[j].IngestedAt)
	})
	return preferred
}

// spread returns max-min of the records' multipliers.
func spread(records []RapRecord) decimal.Decimal {
	min, max := records[0].Multiplier, records[0].Multiplier
	for _, r := range records[1:] {
		if r.Multiplier.LessThan(min) {
			min = r.Multiplier
		}
		if r.Multiplier.GreaterThan(max) {
			max = r.Multiplier
		}
	}
	return max.Sub(min)
}

func newConflict(student *Student, records []RapRecord, reason string) ResolutionConflict {
	values := make([]string, 0, len(records))
	seen := make(map[string]bool)
	for _, r := range records {
		v := r.Multiplier.String()
		if !seen[v] {
			seen[v] = true
			values = append(values, v)
		}
	}
	return ResolutionConflict{
		CanvasUserID: student.CanvasUserID,
		DisplayName:  student.DisplayName,
		Source:       records[0].Source,
		Values:       values,
		Records:      records,
		Reason:       reason,
	}
}
