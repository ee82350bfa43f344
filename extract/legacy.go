/*
legacy.go - Legacy per-student RAP document extraction

PURPOSE:
  Extracts RapRecords from legacy RAP documents, one student per document,
  already reduced to plain text by the external text-extraction
  collaborator. Pattern matching locates the student (a name, with a
  7-digit student number when the document carries one) and the grant
  ("Extra time N mins per hour").

FAILURE MODEL:
  All-or-nothing per document: a document where either the student or the
  grant cannot be located produces one ExtractionError naming the
  document and no record - a half-parsed accommodation is worse than
  none. Other documents in the batch continue.

SEE ALSO:
  - normalize.go: Minutes-per-hour conversion
  - tabular.go: The current export format that superseded this one
*/
package extract

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/adapt/rap-engine/rap"
)

// Document is one legacy RAP document as plain text.
type Document struct {
	Name string
	Text string
}

// LegacySource extracts records from a batch of legacy documents.
type LegacySource struct {
	Documents []Document
}

var _ rap.RecordSource = (*LegacySource)(nil)

var (
	// First name, uppercase surname (hyphens allowed), 7-digit student
	// number. The number convention predates the tabular export.
	legacyIdentityPattern = regexp.MustCompile(`(\w+)\s*([A-Z][-A-Z]{1,}?)\s*(\d{7})`)

	// Name without a student number. Stricter about the first name than
	// the identity pattern: with no digits anchoring the match, title
	// case is what separates "Alex CAVE" from document boilerplate.
	legacyNamePattern = regexp.MustCompile(`([A-Z][a-z]+)\s+([A-Z][-A-Z]+)\b`)

	legacyGrantPattern = regexp.MustCompile(`Extra time (\d+) mins? per hour`)
)

// Extract parses every document in the batch. Legacy extraction has no
// structural failure mode; the error return exists to satisfy
// rap.RecordSource and is always nil.
func (s *LegacySource) Extract(now time.Time) ([]rap.RapRecord, []rap.ExtractionError, error) {
	var (
		records []rap.RapRecord
		extErrs []rap.ExtractionError
	)
	for _, doc := range s.Documents {
		rec, extErr := extractDocument(doc, now)
		if extErr != nil {
			extErrs = append(extErrs, *extErr)
			continue
		}
		records = append(records, rec)
	}
	return records, extErrs, nil
}

func extractDocument(doc Document, now time.Time) (rap.RapRecord, *rap.ExtractionError) {
	grant := legacyGrantPattern.FindStringSubmatch(doc.Text)
	if grant == nil {
		return rap.RapRecord{}, documentError(doc, "no extra-time statement found", nil)
	}
	extraMinutes, err := strconv.Atoi(grant[1])
	if err != nil {
		return rap.RapRecord{}, documentError(doc, fmt.Sprintf("extra-time amount %q: %v", grant[1], err), err)
	}
	multiplier, err := MinutesPerHourMultiplier(extraMinutes)
	if err != nil {
		return rap.RapRecord{}, documentError(doc, err.Error(), err)
	}

	rec := rap.RapRecord{
		Multiplier: multiplier,
		Source:     rap.SourceLegacyPDF,
		IngestedAt: now,
		Origin:     doc.Name,
	}
	if m := legacyIdentityPattern.FindStringSubmatch(doc.Text); m != nil {
		rec.RawName = m[1] + " " + m[2]
		rec.SourceStudentID = m[3]
	} else if m := legacyNamePattern.FindStringSubmatch(doc.Text); m != nil {
		rec.RawName = m[1] + " " + m[2]
	} else {
		return rap.RapRecord{}, documentError(doc, "no student name found", nil)
	}
	return rec, nil
}

func documentError(doc Document, reason string, err error) *rap.ExtractionError {
	return &rap.ExtractionError{
		Source: rap.SourceLegacyPDF,
		Origin: doc.Name,
		Reason: reason,
		Err:    err,
	}
}

// LoadDocumentsDir reads every .txt file in dir as one Document. The
// text-extraction collaborator writes its output there; anything else in
// the directory is ignored.
func LoadDocumentsDir(dir string) ([]Document, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read documents dir: %w", err)
	}

	var docs []Document
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".txt") {
			continue
		}
		text, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, fmt.Errorf("read document %s: %w", e.Name(), err)
		}
		docs = append(docs, Document{Name: e.Name(), Text: string(text)})
	}
	return docs, nil
}
