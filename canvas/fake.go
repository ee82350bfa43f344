/*
fake.go - In-memory Canvas double

Backs demo mode and handler tests with the same interfaces the real
client implements. Writes mutate the fake's own assessment snapshot, so
a second reconciliation run observes the first run's overrides exactly
as it would against a live instance.
*/
package canvas

import (
	"context"
	"sync"

	"github.com/adapt/rap-engine/rap"
)

var (
	_ rap.RosterProvider = (*Fake)(nil)
	_ rap.LMSClient      = (*Fake)(nil)
)

// FakeWrite records one SetOverride call, in total minutes.
type FakeWrite struct {
	Course     rap.CourseID
	Assessment rap.AssessmentID
	User       rap.CanvasUserID
	Minutes    int
}

// Fake is an in-memory stand-in for a Canvas instance.
type Fake struct {
	mu          sync.Mutex
	courses     []Course
	roster      map[rap.CourseID][]rap.Student
	assessments map[rap.CourseID][]rap.Assessment
	writes      []FakeWrite

	rosterErr map[rap.CourseID]error
	setErr    map[rap.OverrideKey]error
}

// NewFake returns an empty fake. Seed it with AddCourse, SetRoster, and
// AddAssessments before use.
func NewFake() *Fake {
	return &Fake{
		roster:      make(map[rap.CourseID][]rap.Student),
		assessments: make(map[rap.CourseID][]rap.Assessment),
		rosterErr:   make(map[rap.CourseID]error),
		setErr:      make(map[rap.OverrideKey]error),
	}
}

// =============================================================================
// SEEDING
// =============================================================================

// AddCourse registers a course in the teacher course listing.
func (f *Fake) AddCourse(course Course) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.courses = append(f.courses, course)
}

// SetRoster replaces the enrollment list for a course.
func (f *Fake) SetRoster(course rap.CourseID, students []rap.Student) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.roster[course] = append([]rap.Student(nil), students...)
}

// AddAssessments appends assessments to a course.
func (f *Fake) AddAssessments(course rap.CourseID, assessments ...rap.Assessment) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range assessments {
		f.assessments[course] = append(f.assessments[course], copyAssessment(a))
	}
}

// FailRoster makes Roster return err for one course.
func (f *Fake) FailRoster(course rap.CourseID, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rosterErr[course] = err
}

// FailSetOverride makes SetOverride return err for one pair.
func (f *Fake) FailSetOverride(assessment rap.AssessmentID, user rap.CanvasUserID, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.setErr[rap.OverrideKey{Assessment: assessment, User: user}] = err
}

// Writes returns every SetOverride call in order.
func (f *Fake) Writes() []FakeWrite {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]FakeWrite(nil), f.writes...)
}

// =============================================================================
// ENGINE INTERFACES
// =============================================================================

// ListCourses returns the seeded course list.
func (f *Fake) ListCourses(ctx context.Context) ([]Course, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Course(nil), f.courses...), nil
}

// Roster returns the seeded enrollments for a course.
func (f *Fake) Roster(ctx context.Context, course rap.CourseID) ([]rap.Student, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.rosterErr[course]; err != nil {
		return nil, err
	}
	return append([]rap.Student(nil), f.roster[course]...), nil
}

// ListTimedAssessments returns deep copies of the course's assessments,
// overrides included, so callers cannot mutate the fake's state behind
// its back.
func (f *Fake) ListTimedAssessments(ctx context.Context, course rap.CourseID) ([]rap.Assessment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := f.assessments[course]
	out := make([]rap.Assessment, 0, len(stored))
	for _, a := range stored {
		out = append(out, copyAssessment(a))
	}
	return out, nil
}

// GetOverride reads the current override for one pair, in total minutes.
func (f *Fake) GetOverride(ctx context.Context, course rap.CourseID, assessment rap.AssessmentID, user rap.CanvasUserID) (int, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, a := range f.assessments[course] {
		if a.ID != assessment {
			continue
		}
		minutes, found := a.ExistingOverrides[user]
		return minutes, found, nil
	}
	return 0, false, newAPIError("fetch quiz", 404, "quiz not found")
}

// SetOverride records the write and mutates the stored snapshot.
func (f *Fake) SetOverride(ctx context.Context, course rap.CourseID, assessment rap.AssessmentID, user rap.CanvasUserID, minutes int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.setErr[rap.OverrideKey{Assessment: assessment, User: user}]; err != nil {
		return err
	}
	for i := range f.assessments[course] {
		a := &f.assessments[course][i]
		if a.ID != assessment {
			continue
		}
		if a.ExistingOverrides == nil {
			a.ExistingOverrides = make(map[rap.CanvasUserID]int)
		}
		a.ExistingOverrides[user] = minutes
		f.writes = append(f.writes, FakeWrite{Course: course, Assessment: assessment, User: user, Minutes: minutes})
		return nil
	}
	return newAPIError("set quiz extension", 404, "quiz not found")
}

// copyAssessment clones an assessment including its override map and base
// limit pointer.
func copyAssessment(a rap.Assessment) rap.Assessment {
	out := a
	if a.BaseTimeLimitMinutes != nil {
		base := *a.BaseTimeLimitMinutes
		out.BaseTimeLimitMinutes = &base
	}
	if a.ExistingOverrides != nil {
		out.ExistingOverrides = make(map[rap.CanvasUserID]int, len(a.ExistingOverrides))
		for k, v := range a.ExistingOverrides {
			out.ExistingOverrides[k] = v
		}
	}
	return out
}
