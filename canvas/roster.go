package canvas

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/adapt/rap-engine/rap"
)

// Roster returns the course's active student enrollments. Canvas reports
// the institutional identifier as the enrolled user's sis_user_id, often
// with a letter prefix the matcher strips during canonicalization.
func (c *Client) Roster(ctx context.Context, course rap.CourseID) ([]rap.Student, error) {
	url := fmt.Sprintf("%s/api/v1/courses/%s/enrollments?type[]=StudentEnrollment&state[]=active&per_page=%d",
		c.baseURL, course, c.pageSize)
	rows, err := c.getPaginated(ctx, "list enrollments", url)
	if err != nil {
		return nil, err
	}

	students := make([]rap.Student, 0, len(rows))
	for _, row := range rows {
		user := row.Get("user")
		if !user.Exists() {
			continue
		}
		students = append(students, rap.Student{
			CanvasUserID:    rap.CanvasUserID(user.Get("id").String()),
			InstitutionalID: user.Get("sis_user_id").String(),
			DisplayName:     user.Get("name").String(),
		})
	}
	c.log.Debug("roster fetched",
		zap.String("course", string(course)),
		zap.Int("students", len(students)))
	return students, nil
}
