package scheduling

import (
	"context"
	"time"

	"github.com/envisys/defensedesk/pkg/defensedesk/models"
	"gorm.io/gorm"
)

// Availability is the result of a dry-run conflict check
type Availability struct {
	Available bool       `json:"available"`
	Conflicts []Conflict `json:"conflicts"`
}

// Validator is the gate every schedule write passes through
type Validator struct {
	detector *Detector
}

// NewValidator creates a validator around detector
func NewValidator(detector *Detector) *Validator {
	if detector == nil {
		detector = NewDetector()
	}
	return &Validator{detector: detector}
}

// CheckRange fails with TimeRangeError unless startAt < endAt
func CheckRange(startAt, endAt time.Time) error {
	if !startAt.Before(endAt) {
		return &TimeRangeError{StartAt: startAt, EndAt: endAt}
	}
	return nil
}

// Validate returns nil, a TimeRangeError or a ConflictError
func (v *Validator) Validate(ctx context.Context, db *gorm.DB, group *models.Group, startAt, endAt time.Time, excludeID uint) error {
	if err := CheckRange(startAt, endAt); err != nil {
		return err
	}

	conflicts, err := v.detector.FindConflicts(ctx, db, group, startAt, endAt, excludeID)
	if err != nil {
		return err
	}
	if len(conflicts) > 0 {
		return &ConflictError{Conflicts: ConflictsFromSchedules(conflicts)}
	}
	return nil
}

// Availability runs the same checks without failing on conflicts.
// A malformed range is still an error.
func (v *Validator) Availability(ctx context.Context, db *gorm.DB, group *models.Group, startAt, endAt time.Time, excludeID uint) (*Availability, error) {
	err := v.Validate(ctx, db, group, startAt, endAt, excludeID)
	if err == nil {
		return &Availability{Available: true, Conflicts: []Conflict{}}, nil
	}
	if ce, ok := err.(*ConflictError); ok {
		return &Availability{Available: false, Conflicts: ce.Conflicts}, nil
	}
	return nil, err
}
