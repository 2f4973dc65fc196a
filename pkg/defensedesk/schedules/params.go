package schedules

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
)

const dateLayout = "2006-01-02"

// parseDate accepts YYYY-MM-DD (midnight in loc) or RFC 3339. With
// endOfDay a date-only value moves to the following midnight so the
// whole day is included.
func parseDate(value string, loc *time.Location, endOfDay bool) (time.Time, error) {
	if t, err := time.ParseInLocation(dateLayout, value, loc); err == nil {
		if endOfDay {
			t = t.AddDate(0, 0, 1)
		}
		return t.UTC(), nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: use YYYY-MM-DD or RFC 3339", value)
	}
	return t.UTC(), nil
}

// DateRange reads the optional start_date and end_date query parameters
func DateRange(c *gin.Context, loc *time.Location) (from, to *time.Time, err error) {
	if v := c.Query("start_date"); v != "" {
		t, err := parseDate(v, loc, false)
		if err != nil {
			return nil, nil, err
		}
		from = &t
	}
	if v := c.Query("end_date"); v != "" {
		t, err := parseDate(v, loc, true)
		if err != nil {
			return nil, nil, err
		}
		to = &t
	}
	return from, to, nil
}

// OptionalID reads an optional positive integer query parameter
func OptionalID(c *gin.Context, name string) (*uint, error) {
	v := c.Query(name)
	if v == "" {
		return nil, nil
	}
	id, err := strconv.ParseUint(v, 10, 32)
	if err != nil || id == 0 {
		return nil, fmt.Errorf("invalid %s", name)
	}
	u := uint(id)
	return &u, nil
}
