/*
tabular.go - Tabular RAP export extraction

PURPOSE:
  Extracts RapRecords from the institutional RAP CSV export. The export
  carries three fixed columns: the student identifier, the requested exam
  time (percentage or multiplier, normalized here), and a free-text
  "requested for" field kept for audit only.

FAILURE MODEL:
  A file missing any required column is structurally unusable and rejects
  wholesale (rap.ErrMissingColumns) before row-level extraction begins -
  no row can be trusted when the shape is wrong. Everything at row level
  (empty identifier, unparseable time value, ragged row) degrades to an
  ExtractionError tagged with the row number, and extraction continues.

SEE ALSO:
  - normalize.go: Unit conversion
  - legacy.go: The other extractor
*/
package extract

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/adapt/rap-engine/rap"
)

// Required columns of the RAP export, fixed names.
const (
	colStudentID    = "u_student_id"
	colExamTime     = "u_exam_time"
	colRequestedFor = "u_requested_for1"
)

// TabularSource extracts records from a RAP CSV export file.
type TabularSource struct {
	// Path to the export file.
	Path string
}

var _ rap.RecordSource = (*TabularSource)(nil)

// Extract opens the export and parses it. A missing file or missing
// required columns is a structural failure.
func (s *TabularSource) Extract(now time.Time) ([]rap.RapRecord, []rap.ExtractionError, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("open tabular source: %w", err)
	}
	defer f.Close()

	return ExtractTabular(f, s.Path, now)
}

// ExtractTabular parses one RAP CSV export. origin names the source in
// record provenance and error messages. All returned records carry the
// same IngestedAt stamp.
func ExtractTabular(r io.Reader, origin string, now time.Time) ([]rap.RapRecord, []rap.ExtractionError, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1 // ragged rows are row-level problems, not structural
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("%s: read header: %w", origin, err)
	}
	if err := requireColumns(header, colStudentID, colExamTime, colRequestedFor); err != nil {
		return nil, nil, fmt.Errorf("%s: %w", origin, err)
	}
	idx := headerIndex(header)

	var (
		records []rap.RapRecord
		extErrs []rap.ExtractionError
	)
	line := 1
	for {
		line++
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			extErrs = append(extErrs, rowError(origin, line, fmt.Sprintf("unreadable row: %v", err), err))
			continue
		}

		get := func(name string) string {
			i, ok := idx[name]
			if !ok || i >= len(rec) {
				return ""
			}
			return rec[i]
		}

		id := strings.TrimSpace(get(colStudentID))
		if id == "" {
			extErrs = append(extErrs, rowError(origin, line, "student identifier is empty", nil))
			continue
		}

		multiplier, err := NormalizeTimeValue(get(colExamTime))
		if err != nil {
			extErrs = append(extErrs, rowError(origin, line, fmt.Sprintf("exam time: %v", err), err))
			continue
		}

		records = append(records, rap.RapRecord{
			SourceStudentID: id,
			Multiplier:      multiplier,
			Source:          rap.SourceCSV,
			IngestedAt:      now,
			Origin:          fmt.Sprintf("%s line %d", origin, line),
			RequestedFor:    strings.TrimSpace(get(colRequestedFor)),
		})
	}

	return records, extErrs, nil
}

func rowError(origin string, row int, reason string, err error) rap.ExtractionError {
	return rap.ExtractionError{
		Source: rap.SourceCSV,
		Origin: origin,
		Row:    row,
		Reason: reason,
		Err:    err,
	}
}

// requireColumns rejects a header missing any required column.
func requireColumns(header []string, required ...string) error {
	have := make(map[string]bool, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		have[strings.ToLower(strings.TrimSpace(h))] = true
	}
	var missing []string
	for _, name := range required {
		if !have[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", rap.ErrMissingColumns, strings.Join(missing, ", "))
	}
	return nil
}

func headerIndex(header []string) map[string]int {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		idx[strings.ToLower(strings.TrimSpace(h))] = i
	}
	return idx
}
