/*
Package extract turns raw RAP sources into normalized records.

PURPOSE:
  Two extractors cover the two ways accommodation data arrives: the
  institutional tabular export (tabular.go) and legacy per-student
  documents reduced to plain text (legacy.go). Both emit rap.RapRecord
  with the extra-time value already converted to an extension multiplier,
  so no later stage ever sees the source's original unit.

KEY CONCEPTS IN THIS FILE (normalize.go):
  - NormalizeTimeValue: The one place percentage/duration forms become a
    multiplier
  - MinutesPerHourMultiplier: The legacy "Extra time N mins per hour" form

DESIGN PRINCIPLES:
  1. Convert exactly once, at the boundary
  2. Exact decimal arithmetic; no floats in the multiplier path
  3. A value implying less than standard time is malformed input, never
     clamped

SEE ALSO:
  - tabular.go: CSV export extraction
  - legacy.go: Legacy document extraction
*/
package extract

import (
	"fmt"
	"strings"

	"github.com/adapt/rap-engine/rap"
	"github.com/shopspring/decimal"
)

var (
	one         = decimal.NewFromInt(1)
	percentBase = decimal.NewFromInt(100)
	hourMinutes = decimal.NewFromInt(60)

	// directCutoff separates bare multipliers from bare percentages. No
	// real accommodation multiplies time by more than 10; export rows
	// above it are percentages that lost their % sign.
	directCutoff = decimal.NewFromInt(10)
)

// NormalizeTimeValue converts a raw exam-time value from the tabular
// export into an extension multiplier. Accepted forms:
//
//	"125%"  percentage of standard time -> 1.25
//	"1.25"  direct multiplier (bare values up to 10)
//	"125"   bare percentage (bare values above 10) -> 1.25
//
// Anything non-numeric, and any form converting to a multiplier below
// 1.0, is malformed.
func NormalizeTimeValue(raw string) (decimal.Decimal, error) {
	v := strings.TrimSpace(raw)
	if v == "" {
		return decimal.Decimal{}, fmt.Errorf("empty time value")
	}

	percent := strings.HasSuffix(v, "%")
	if percent {
		v = strings.TrimSpace(strings.TrimSuffix(v, "%"))
	}

	n, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("time value %q is not numeric", raw)
	}

	if percent || n.GreaterThan(directCutoff) {
		n = n.Div(percentBase)
	}

	if !rap.ValidMultiplier(n) {
		return decimal.Decimal{}, fmt.Errorf("%w: %q converts to %s", rap.ErrSubUnitMultiplier, raw, n)
	}
	return n, nil
}

// MinutesPerHourMultiplier converts a legacy extra-time grant of N minutes
// per hour into a multiplier: 1 + N/60.
func MinutesPerHourMultiplier(minutes int) (decimal.Decimal, error) {
	if minutes < 0 {
		return decimal.Decimal{}, fmt.Errorf("negative extra time: %d mins per hour", minutes)
	}
	return one.Add(decimal.NewFromInt(int64(minutes)).Div(hourMinutes)), nil
}
