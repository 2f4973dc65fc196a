package scheduling

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/envisys/defensedesk/pkg/defensedesk/models"
)

// ErrForbidden is returned when the caller's role may not perform an action.
// Role checks themselves live in the HTTP layer.
var ErrForbidden = errors.New("forbidden")

// TimeRangeError reports a window whose start is not before its end
type TimeRangeError struct {
	StartAt time.Time
	EndAt   time.Time
}

func (e *TimeRangeError) Error() string {
	return "End time must be after start time"
}

// Conflict describes an existing schedule that blocks a candidate window
type Conflict struct {
	ID        uint      `json:"id"`
	GroupID   uint      `json:"group_id"`
	GroupName string    `json:"group_name"`
	StartAt   time.Time `json:"start_at"`
	EndAt     time.Time `json:"end_at"`
	Location  string    `json:"location"`
}

// Message renders the conflict for humans
func (c Conflict) Message() string {
	return fmt.Sprintf("Group %s has schedule from %s to %s",
		c.GroupName, c.StartAt.Format(time.RFC3339), c.EndAt.Format(time.RFC3339))
}

// ConflictFromSchedule converts a schedule with its group loaded
func ConflictFromSchedule(s models.DefenseSchedule) Conflict {
	return Conflict{
		ID:        s.ID,
		GroupID:   s.GroupID,
		GroupName: s.Group.Name,
		StartAt:   s.StartAt.UTC(),
		EndAt:     s.EndAt.UTC(),
		Location:  s.Location,
	}
}

// ConflictsFromSchedules converts a slice of schedules. Never returns nil.
func ConflictsFromSchedules(schedules []models.DefenseSchedule) []Conflict {
	out := make([]Conflict, len(schedules))
	for i, s := range schedules {
		out[i] = ConflictFromSchedule(s)
	}
	return out
}

// ConflictError is returned when a window overlaps schedules that share
// an adviser or panel member with the candidate group.
type ConflictError struct {
	Conflicts []Conflict
}

func (e *ConflictError) Error() string {
	msgs := make([]string, len(e.Conflicts))
	for i, c := range e.Conflicts {
		msgs[i] = c.Message()
	}
	return "Scheduling conflict detected: " + strings.Join(msgs, "; ")
}

// IDs returns the ids of the conflicting schedules
func (e *ConflictError) IDs() []uint {
	ids := make([]uint, len(e.Conflicts))
	for i, c := range e.Conflicts {
		ids[i] = c.ID
	}
	return ids
}

// NotFoundError reports an unknown group, schedule or user
type NotFoundError struct {
	Resource string
	ID       uint
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Resource, e.ID)
}

// IsNotFound reports whether err is a NotFoundError
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}
