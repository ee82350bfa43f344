package extract_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/adapt/rap-engine/extract"
	"github.com/adapt/rap-engine/rap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const numberedDoc = `Reasonable Adjustment Plan

John DOE 3472571

Adjustments granted for all timed assessments.
Extra time 30 mins per hour
`

const nameOnlyDoc = `Reasonable Adjustment Plan

Alex CAVE

Extra time 20 mins per hour
`

func TestLegacy_DocumentWithStudentNumber(t *testing.T) {
	src := &extract.LegacySource{Documents: []extract.Document{
		{Name: "doe.txt", Text: numberedDoc},
	}}

	records, extErrs, err := src.Extract(now)
	require.NoError(t, err)
	require.Empty(t, extErrs)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, "3472571", rec.SourceStudentID)
	assert.Equal(t, "John DOE", rec.RawName)
	assert.Equal(t, rap.SourceLegacyPDF, rec.Source)
	assert.Equal(t, "doe.txt", rec.Origin)
	assert.True(t, rec.Multiplier.Equal(rap.MustMultiplier("1.5")), "multiplier = %s", rec.Multiplier)
}

func TestLegacy_NameOnlyDocument(t *testing.T) {
	src := &extract.LegacySource{Documents: []extract.Document{
		{Name: "cave.txt", Text: nameOnlyDoc},
	}}

	records, extErrs, err := src.Extract(now)
	require.NoError(t, err)
	require.Empty(t, extErrs)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Empty(t, rec.SourceStudentID)
	assert.Equal(t, "Alex CAVE", rec.RawName)

	// 20 mins per hour is a third extra.
	want := rap.MustMultiplier("4").Div(rap.MustMultiplier("3"))
	assert.True(t, rec.Multiplier.Sub(want).Abs().LessThan(rap.MustMultiplier("0.0000000001")),
		"multiplier = %s", rec.Multiplier)
}

func TestLegacy_MissingGrant_AllOrNothing(t *testing.T) {
	src := &extract.LegacySource{Documents: []extract.Document{
		{Name: "torn.txt", Text: "Reasonable Adjustment Plan\n\nAlex CAVE\n\n(second page missing)"},
	}}

	records, extErrs, err := src.Extract(now)
	require.NoError(t, err)
	assert.Empty(t, records)
	require.Len(t, extErrs, 1)
	assert.Equal(t, "torn.txt", extErrs[0].Origin)
	assert.Contains(t, extErrs[0].Reason, "extra-time statement")
}

func TestLegacy_MissingName_AllOrNothing(t *testing.T) {
	src := &extract.LegacySource{Documents: []extract.Document{
		{Name: "redacted.txt", Text: "details redacted\nExtra time 30 mins per hour\n"},
	}}

	records, extErrs, err := src.Extract(now)
	require.NoError(t, err)
	assert.Empty(t, records)
	require.Len(t, extErrs, 1)
	assert.Contains(t, extErrs[0].Reason, "name")
}

func TestLegacy_MixedBatchContinues(t *testing.T) {
	src := &extract.LegacySource{Documents: []extract.Document{
		{Name: "doe.txt", Text: numberedDoc},
		{Name: "torn.txt", Text: "unreadable scan"},
		{Name: "cave.txt", Text: nameOnlyDoc},
	}}

	records, extErrs, err := src.Extract(now)
	require.NoError(t, err)
	assert.Len(t, records, 2)
	require.Len(t, extErrs, 1)
	assert.Equal(t, "torn.txt", extErrs[0].Origin)
}

func TestLegacy_SingularMinuteForm(t *testing.T) {
	src := &extract.LegacySource{Documents: []extract.Document{
		{Name: "short.txt", Text: "Pat LEE 3409876\nExtra time 6 min per hour\n"},
	}}

	records, extErrs, err := src.Extract(now)
	require.NoError(t, err)
	require.Empty(t, extErrs)
	require.Len(t, records, 1)
	assert.True(t, records[0].Multiplier.Equal(rap.MustMultiplier("1.1")), "multiplier = %s", records[0].Multiplier)
}

func TestLoadDocumentsDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "doe.txt"), []byte(numberedDoc), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cave.txt"), []byte(nameOnlyDoc), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "raw-scan.pdf"), []byte("%PDF-1.4"), 0o644))

	docs, err := extract.LoadDocumentsDir(dir)
	require.NoError(t, err)
	require.Len(t, docs, 2, "only .txt files are documents")
	for _, doc := range docs {
		assert.NotEmpty(t, doc.Text)
	}
}
