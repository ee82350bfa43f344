package canvas

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/tidwall/gjson"

	"github.com/adapt/rap-engine/rap"
)

func newTestClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()
	client, err := New(server.URL, "test-token", WithHTTPClient(server.Client()))
	if err != nil {
		t.Fatal(err)
	}
	return client
}

// --- Construction ---

func TestNew_RequiresBaseURLAndToken(t *testing.T) {
	if _, err := New("", "token"); err == nil {
		t.Error("expected error for empty base URL")
	}
	if _, err := New("https://canvas.example.edu", ""); err == nil {
		t.Error("expected error for empty token")
	}
	client, err := New("https://canvas.example.edu/", "token")
	if err != nil {
		t.Fatal(err)
	}
	if client.baseURL != "https://canvas.example.edu" {
		t.Errorf("baseURL = %q, want trailing slash trimmed", client.baseURL)
	}
}

// --- Roster ---

func TestRoster_PaginatesAndMapsStudents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/courses/1234/enrollments" {
			http.NotFound(w, r)
			return
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("Authorization = %q", got)
		}
		if r.URL.Query().Get("page") == "2" {
			fmt.Fprint(w, `[{"user":{"id":503,"sis_user_id":"c3472571","name":"John Doe"}}]`)
			return
		}
		next := fmt.Sprintf("http://%s%s?page=2", r.Host, r.URL.Path)
		w.Header().Set("Link", fmt.Sprintf(`<%s>; rel="current", <%s>; rel="next"`, r.URL.String(), next))
		fmt.Fprint(w, `[
			{"user":{"id":501,"sis_user_id":"c3201234","name":"Alex Cave"}},
			{"user":{"id":502,"sis_user_id":"3218805","name":"Morgan Reed"}}
		]`)
	}))
	defer server.Close()

	students, err := newTestClient(t, server).Roster(context.Background(), "1234")
	if err != nil {
		t.Fatalf("Roster: %v", err)
	}
	if len(students) != 3 {
		t.Fatalf("got %d students, want 3 across both pages", len(students))
	}
	first := students[0]
	if first.CanvasUserID != "501" || first.InstitutionalID != "c3201234" || first.DisplayName != "Alex Cave" {
		t.Errorf("unexpected first student: %+v", first)
	}
	if students[2].InstitutionalID != "c3472571" {
		t.Errorf("second page not followed: %+v", students[2])
	}
}

func TestRoster_Unauthorized(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		fmt.Fprint(w, `{"errors":[{"message":"Invalid access token."}]}`)
	}))
	defer server.Close()

	_, err := newTestClient(t, server).Roster(context.Background(), "1234")
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsUnauthorized(err) {
		t.Errorf("expected IsUnauthorized, got: %v", err)
	}
	if IsNotFound(err) {
		t.Error("401 should not read as not found")
	}
	if !strings.Contains(err.Error(), "Invalid access token") {
		t.Errorf("error should carry the Canvas message, got: %v", err)
	}
}

// --- Assessments ---

func TestListTimedAssessments_QuizSnapshot(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/courses/1234/assignments":
			fmt.Fprint(w, `[
				{"id":9001,"name":"Midterm","published":true,"is_quiz_assignment":true,"quiz_id":77},
				{"id":9002,"name":"Essay","published":true,"is_quiz_assignment":false},
				{"id":9003,"name":"Draft quiz","published":false,"is_quiz_assignment":true,"quiz_id":78}
			]`)
		case "/api/v1/courses/1234/quizzes/77":
			fmt.Fprint(w, `{"id":77,"title":"Midterm","time_limit":60}`)
		case "/api/v1/courses/1234/quizzes/77/extensions":
			fmt.Fprint(w, `{"quiz_extensions":[{"quiz_id":77,"user_id":501,"extra_time":15}]}`)
		default:
			t.Errorf("unexpected request: %s", r.URL.Path)
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	assessments, err := newTestClient(t, server).ListTimedAssessments(context.Background(), "1234")
	if err != nil {
		t.Fatalf("ListTimedAssessments: %v", err)
	}
	if len(assessments) != 1 {
		t.Fatalf("got %d assessments, want only the published quiz-backed one", len(assessments))
	}
	a := assessments[0]
	if a.ID != "77" || a.Name != "Midterm" || !a.Timed() || *a.BaseTimeLimitMinutes != 60 {
		t.Errorf("unexpected assessment: %+v", a)
	}
	if got := a.ExistingOverrides["501"]; got != 75 {
		t.Errorf("override for 501 = %d total min, want base 60 + extra 15", got)
	}
}

func TestListTimedAssessments_UntimedQuizIncluded(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/courses/1234/assignments":
			fmt.Fprint(w, `[{"id":9001,"name":"Survey","published":true,"is_quiz_assignment":true,"quiz_id":79}]`)
		case "/api/v1/courses/1234/quizzes/79":
			fmt.Fprint(w, `{"id":79,"title":"Survey","time_limit":null}`)
		default:
			t.Errorf("unexpected request: %s", r.URL.Path)
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	assessments, err := newTestClient(t, server).ListTimedAssessments(context.Background(), "1234")
	if err != nil {
		t.Fatalf("ListTimedAssessments: %v", err)
	}
	if len(assessments) != 1 {
		t.Fatalf("got %d assessments, want the untimed quiz included", len(assessments))
	}
	if assessments[0].Timed() {
		t.Error("quiz with null time_limit should be untimed")
	}
}

// --- Overrides ---

func TestSetOverride_TranslatesTotalToExtra(t *testing.T) {
	var posted []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/v1/courses/1234/quizzes/77" && r.Method == http.MethodGet:
			fmt.Fprint(w, `{"id":77,"time_limit":60}`)
		case r.URL.Path == "/api/v1/courses/1234/quizzes/77/extensions" && r.Method == http.MethodPost:
			if got := r.Header.Get("Content-Type"); got != "application/json" {
				t.Errorf("Content-Type = %q", got)
			}
			posted, _ = io.ReadAll(r.Body)
			fmt.Fprint(w, `{"quiz_extensions":[{"quiz_id":77,"user_id":501,"extra_time":15}]}`)
		default:
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	err := newTestClient(t, server).SetOverride(context.Background(), "1234", "77", "501", 75)
	if err != nil {
		t.Fatalf("SetOverride: %v", err)
	}
	if got := gjson.GetBytes(posted, "quiz_extensions.0.user_id").Int(); got != 501 {
		t.Errorf("posted user_id = %d, want 501", got)
	}
	if got := gjson.GetBytes(posted, "quiz_extensions.0.extra_time").Int(); got != 15 {
		t.Errorf("posted extra_time = %d, want 75 total - 60 base", got)
	}
}

func TestSetOverride_BelowBaseRejected(t *testing.T) {
	var postHit bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			postHit = true
		}
		fmt.Fprint(w, `{"id":77,"time_limit":60}`)
	}))
	defer server.Close()

	err := newTestClient(t, server).SetOverride(context.Background(), "1234", "77", "501", 50)
	if err == nil {
		t.Fatal("expected error for total below base")
	}
	if !strings.Contains(err.Error(), "below") {
		t.Errorf("unexpected error: %v", err)
	}
	if postHit {
		t.Error("no write should be issued for a below-base total")
	}
}

func TestSetOverride_NonNumericUserRejected(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
	}))
	defer server.Close()

	err := newTestClient(t, server).SetOverride(context.Background(), "1234", "77", "not-a-number", 75)
	if err == nil {
		t.Fatal("expected error for non-numeric user id")
	}
}

func TestGetOverride(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/courses/1234/quizzes/77":
			fmt.Fprint(w, `{"id":77,"time_limit":60}`)
		case "/api/v1/courses/1234/quizzes/77/extensions":
			fmt.Fprint(w, `{"quiz_extensions":[{"quiz_id":77,"user_id":501,"extra_time":15}]}`)
		default:
			t.Errorf("unexpected request: %s", r.URL.Path)
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := newTestClient(t, server)

	minutes, found, err := client.GetOverride(context.Background(), "1234", "77", "501")
	if err != nil {
		t.Fatalf("GetOverride: %v", err)
	}
	if !found || minutes != 75 {
		t.Errorf("got (%d, %v), want (75, true)", minutes, found)
	}

	_, found, err = client.GetOverride(context.Background(), "1234", "77", "502")
	if err != nil {
		t.Fatalf("GetOverride: %v", err)
	}
	if found {
		t.Error("user without an extension should report found=false")
	}
}

// --- Courses ---

func TestListCourses_SkipsDeleted(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/courses" {
			http.NotFound(w, r)
			return
		}
		fmt.Fprint(w, `[
			{"id":1234,"name":"Systems Programming","course_code":"CS2850","workflow_state":"available","term":{"name":"2026 Spring"}},
			{"id":1235,"name":"Old Course","course_code":"CS1000","workflow_state":"deleted"}
		]`)
	}))
	defer server.Close()

	courses, err := newTestClient(t, server).ListCourses(context.Background())
	if err != nil {
		t.Fatalf("ListCourses: %v", err)
	}
	if len(courses) != 1 {
		t.Fatalf("got %d courses, want deleted one skipped", len(courses))
	}
	c := courses[0]
	if c.ID != rap.CourseID("1234") || c.Code != "CS2850" || c.Term != "2026 Spring" {
		t.Errorf("unexpected course: %+v", c)
	}
}

// --- Pagination header parsing ---

func TestNextPageURL(t *testing.T) {
	cases := []struct {
		name   string
		header string
		want   string
	}{
		{
			name: "canvas style header",
			header: `<https://c.edu/api/v1/courses/1/enrollments?page=1>; rel="current",` +
				`<https://c.edu/api/v1/courses/1/enrollments?page=2>; rel="next",` +
				`<https://c.edu/api/v1/courses/1/enrollments?page=9>; rel="last"`,
			want: "https://c.edu/api/v1/courses/1/enrollments?page=2",
		},
		{
			name:   "last page",
			header: `<https://c.edu/api/v1/courses/1/enrollments?page=9>; rel="current"`,
			want:   "",
		},
		{
			name:   "no header",
			header: "",
			want:   "",
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := nextPageURL(tc.header); got != tc.want {
				t.Errorf("nextPageURL(%q) = %q, want %q", tc.header, got, tc.want)
			}
		})
	}
}
