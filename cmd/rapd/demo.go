/*
demo.go - seeded fixtures for `rapd serve --demo`

PURPOSE:
  One realistic course against the in-memory LMS fake, with RAP sources
  that exercise every reconciliation outcome: a clean tabular grant, a
  percentage-form multiplier, a legacy document grant, an unmatched
  student id, and an untimed quiz.

  The demo sources run through the real extractors, so what the API
  reports here is exactly what a production export would produce.
*/
package main

import (
	"strings"
	"time"

	"github.com/adapt/rap-engine/api"
	"github.com/adapt/rap-engine/canvas"
	"github.com/adapt/rap-engine/extract"
	"github.com/adapt/rap-engine/rap"
)

const demoCourse = rap.CourseID("1101")

// demoCSV mirrors the production export layout. Student 9999999 is not
// on the roster and surfaces as unmatched in every demo run.
const demoCSV = `u_student_id,u_exam_time,u_requested_for1
3201234,1.25,Timed assessments
3218805,150%,Timed assessments
9999999,1.25,Timed assessments
`

const demoLegacyDoc = `Student Support Plan

Prepared for John DOE 3472571 following the assessment adjustment
review. Agreed adjustments: Extra time 30 mins per hour for all timed
examinations. Plan to be reviewed annually.
`

func seedDemo(fake *canvas.Fake) {
	fake.AddCourse(canvas.Course{
		ID:   demoCourse,
		Name: "Intro to Databases",
		Code: "CS2550",
		Term: "2026 Autumn",
	})
	fake.SetRoster(demoCourse, []rap.Student{
		{CanvasUserID: "801", InstitutionalID: "c3201234", DisplayName: "Alex Cave"},
		{CanvasUserID: "802", InstitutionalID: "3218805", DisplayName: "Morgan Reed"},
		{CanvasUserID: "803", InstitutionalID: "c3472571", DisplayName: "John Doe"},
	})
	fake.AddAssessments(demoCourse,
		rap.Assessment{
			ID:                   "9101",
			Name:                 "Week 5 Quiz",
			BaseTimeLimitMinutes: intp(45),
			Published:            true,
			ExistingOverrides:    map[rap.CanvasUserID]int{},
		},
		rap.Assessment{
			ID:                   "9102",
			Name:                 "Final Exam",
			BaseTimeLimitMinutes: intp(120),
			Published:            true,
			ExistingOverrides:    map[rap.CanvasUserID]int{},
		},
		rap.Assessment{
			ID:                "9103",
			Name:              "Module Feedback Survey",
			Published:         true,
			ExistingOverrides: map[rap.CanvasUserID]int{},
		},
	)
}

// demoSources feeds the fixture CSV and legacy document through the real
// extractors for any requested course.
func demoSources() api.SourceFactory {
	return func(course rap.CourseID) ([]rap.RecordSource, error) {
		return []rap.RecordSource{
			demoTabular{},
			&extract.LegacySource{Documents: []extract.Document{
				{Name: "rap-john-doe.txt", Text: demoLegacyDoc},
			}},
		}, nil
	}
}

type demoTabular struct{}

func (demoTabular) Extract(now time.Time) ([]rap.RapRecord, []rap.ExtractionError, error) {
	return extract.ExtractTabular(strings.NewReader(demoCSV), "demo-export.csv", now)
}

func intp(v int) *int { return &v }
