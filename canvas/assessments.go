/*
assessments.go - Timed assessment snapshot and override writes

Canvas models a timed quiz as an assignment shell pointing at a quiz
object that carries the time limit, and stores a per-student extension
as EXTRA minutes on top of that limit. The engine works in total
minutes, so reads here add the base back on and writes subtract it off.
*/
package canvas

import (
	"context"
	"fmt"
	"strconv"

	"github.com/tidwall/gjson"
	"go.uber.org/zap"

	"github.com/adapt/rap-engine/rap"
)

// quizExtensionsRequest is the write shape Canvas expects on
// POST /courses/{course}/quizzes/{quiz}/extensions.
type quizExtensionsRequest struct {
	QuizExtensions []quizExtension `json:"quiz_extensions"`
}

type quizExtension struct {
	UserID    int `json:"user_id"`
	ExtraTime int `json:"extra_time"`
}

// ListTimedAssessments returns the course's published quiz-backed
// assessments with a fresh per-student override snapshot. Quizzes with
// no time limit are included as untimed so the run report can account
// for them.
func (c *Client) ListTimedAssessments(ctx context.Context, course rap.CourseID) ([]rap.Assessment, error) {
	url := fmt.Sprintf("%s/api/v1/courses/%s/assignments?per_page=%d", c.baseURL, course, c.pageSize)
	rows, err := c.getPaginated(ctx, "list assignments", url)
	if err != nil {
		return nil, err
	}

	var assessments []rap.Assessment
	for _, row := range rows {
		if !row.Get("published").Bool() || !row.Get("is_quiz_assignment").Bool() {
			continue
		}
		quizID := row.Get("quiz_id")
		if !quizID.Exists() || quizID.Type == gjson.Null {
			continue
		}
		a, err := c.quizAssessment(ctx, course, rap.AssessmentID(quizID.String()), row.Get("name").String())
		if err != nil {
			return nil, err
		}
		assessments = append(assessments, a)
	}
	c.log.Debug("assessments snapshotted",
		zap.String("course", string(course)),
		zap.Int("assessments", len(assessments)))
	return assessments, nil
}

// quizAssessment fetches one quiz and, when it is timed, its current
// extensions.
func (c *Client) quizAssessment(ctx context.Context, course rap.CourseID, quiz rap.AssessmentID, name string) (rap.Assessment, error) {
	payload, err := c.get(ctx, "fetch quiz",
		fmt.Sprintf("%s/api/v1/courses/%s/quizzes/%s", c.baseURL, course, quiz))
	if err != nil {
		return rap.Assessment{}, err
	}

	a := rap.Assessment{ID: quiz, Name: name, Published: true}
	if a.Name == "" {
		a.Name = gjson.GetBytes(payload, "title").String()
	}
	limit := gjson.GetBytes(payload, "time_limit")
	if !limit.Exists() || limit.Type == gjson.Null || limit.Int() <= 0 {
		return a, nil
	}
	base := int(limit.Int())
	a.BaseTimeLimitMinutes = &base

	a.ExistingOverrides, err = c.overrideSnapshot(ctx, course, quiz, base)
	if err != nil {
		return rap.Assessment{}, err
	}
	return a, nil
}

// overrideSnapshot reads the quiz's extensions and converts extra minutes
// into total minutes.
func (c *Client) overrideSnapshot(ctx context.Context, course rap.CourseID, quiz rap.AssessmentID, baseMinutes int) (map[rap.CanvasUserID]int, error) {
	payload, err := c.get(ctx, "fetch quiz extensions",
		fmt.Sprintf("%s/api/v1/courses/%s/quizzes/%s/extensions", c.baseURL, course, quiz))
	if err != nil {
		return nil, err
	}

	overrides := make(map[rap.CanvasUserID]int)
	for _, ext := range gjson.GetBytes(payload, "quiz_extensions").Array() {
		user := ext.Get("user_id")
		extra := ext.Get("extra_time")
		if !user.Exists() || !extra.Exists() {
			continue
		}
		overrides[rap.CanvasUserID(user.String())] = baseMinutes + int(extra.Int())
	}
	return overrides, nil
}

// quizTimeLimit returns the quiz's base time limit in minutes, zero when
// the quiz is untimed.
func (c *Client) quizTimeLimit(ctx context.Context, course rap.CourseID, quiz rap.AssessmentID) (int, error) {
	payload, err := c.get(ctx, "fetch quiz",
		fmt.Sprintf("%s/api/v1/courses/%s/quizzes/%s", c.baseURL, course, quiz))
	if err != nil {
		return 0, err
	}
	limit := gjson.GetBytes(payload, "time_limit")
	if !limit.Exists() || limit.Type == gjson.Null {
		return 0, nil
	}
	return int(limit.Int()), nil
}

// GetOverride reads the current override for one pair, in total minutes.
func (c *Client) GetOverride(ctx context.Context, course rap.CourseID, assessment rap.AssessmentID, user rap.CanvasUserID) (int, bool, error) {
	base, err := c.quizTimeLimit(ctx, course, assessment)
	if err != nil {
		return 0, false, err
	}
	snapshot, err := c.overrideSnapshot(ctx, course, assessment, base)
	if err != nil {
		return 0, false, err
	}
	minutes, found := snapshot[user]
	return minutes, found, nil
}

// SetOverride sets the total time limit for one pair. The quiz's base
// limit is re-read at write time so the stored extra stays correct even
// if the limit changed since the snapshot.
func (c *Client) SetOverride(ctx context.Context, course rap.CourseID, assessment rap.AssessmentID, user rap.CanvasUserID, minutes int) error {
	userID, err := strconv.Atoi(string(user))
	if err != nil {
		return fmt.Errorf("set quiz extension: user id %q is not a numeric Canvas id", user)
	}
	base, err := c.quizTimeLimit(ctx, course, assessment)
	if err != nil {
		return err
	}
	extra := minutes - base
	if extra < 0 {
		return fmt.Errorf("set quiz extension: %d min is below the %d min base limit", minutes, base)
	}

	body := quizExtensionsRequest{
		QuizExtensions: []quizExtension{{UserID: userID, ExtraTime: extra}},
	}
	url := fmt.Sprintf("%s/api/v1/courses/%s/quizzes/%s/extensions", c.baseURL, course, assessment)
	if _, err := c.postJSON(ctx, "set quiz extension", url, body); err != nil {
		return err
	}
	c.log.Debug("override written",
		zap.String("course", string(course)),
		zap.String("quiz", string(assessment)),
		zap.String("user", string(user)),
		zap.Int("total_minutes", minutes),
		zap.Int("extra_minutes", extra))
	return nil
}
