package canvas

import (
	"context"
	"fmt"

	"github.com/adapt/rap-engine/rap"
)

// Course is one Canvas course the token's owner teaches.
type Course struct {
	ID   rap.CourseID `json:"id"`
	Name string       `json:"name"`
	Code string       `json:"course_code"`
	Term string       `json:"term,omitempty"`
}

// ListCourses returns the courses the authenticated user holds a teacher
// enrollment in, skipping deleted ones.
func (c *Client) ListCourses(ctx context.Context) ([]Course, error) {
	url := fmt.Sprintf("%s/api/v1/courses?enrollment_type=teacher&include[]=term&per_page=%d",
		c.baseURL, c.pageSize)
	rows, err := c.getPaginated(ctx, "list courses", url)
	if err != nil {
		return nil, err
	}

	courses := make([]Course, 0, len(rows))
	for _, row := range rows {
		if row.Get("workflow_state").String() == "deleted" {
			continue
		}
		courses = append(courses, Course{
			ID:   rap.CourseID(row.Get("id").String()),
			Name: row.Get("name").String(),
			Code: row.Get("course_code").String(),
			Term: row.Get("term.name").String(),
		})
	}
	return courses, nil
}
