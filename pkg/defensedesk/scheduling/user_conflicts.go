package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/envisys/defensedesk/pkg/defensedesk/models"
	"gorm.io/gorm"
)

// UserConflict pairs one of a user's schedules with the user's other
// schedules that overlap it
type UserConflict struct {
	Schedule  models.DefenseSchedule `json:"schedule"`
	Conflicts []Conflict             `json:"conflicts"`
}

// userGroupIDs returns the groups where userID is adviser or on the panel
func userGroupIDs(ctx context.Context, db *gorm.DB, userID uint) ([]uint, error) {
	var advised []uint
	if err := db.WithContext(ctx).Model(&models.Group{}).
		Where("adviser_id = ?", userID).Pluck("id", &advised).Error; err != nil {
		return nil, err
	}

	var paneled []uint
	if err := db.WithContext(ctx).Table("group_panels").
		Where("user_id = ?", userID).Pluck("group_id", &paneled).Error; err != nil {
		return nil, err
	}

	return append(advised, paneled...), nil
}

// UserSchedules returns every schedule of the groups the user advises or
// sits on the panel of, ascending by start time
func (s *Service) UserSchedules(ctx context.Context, userID uint) ([]models.DefenseSchedule, error) {
	groupIDs, err := userGroupIDs(ctx, s.db, userID)
	if err != nil {
		return nil, err
	}
	schedules := []models.DefenseSchedule{}
	if len(groupIDs) == 0 {
		return schedules, nil
	}
	err = s.db.WithContext(ctx).Preload("Group").
		Where("group_id IN ?", normalizeKeys(groupIDs)).
		Order("start_at ASC, id ASC").
		Find(&schedules).Error
	if err != nil {
		return nil, err
	}
	return schedules, nil
}

// UserConflicts finds clashes among a user's own commitments. The bounds
// select which of the user's schedules are reported, the same way List
// applies them; conflicts are searched among all of the user's schedules.
func (s *Service) UserConflicts(ctx context.Context, userID uint, from, to *time.Time) ([]UserConflict, error) {
	var user models.User
	err := s.db.WithContext(ctx).First(&user, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &NotFoundError{Resource: "user", ID: userID}
	}
	if err != nil {
		return nil, err
	}

	all, err := s.UserSchedules(ctx, userID)
	if err != nil {
		return nil, err
	}

	result := []UserConflict{}
	for _, sched := range all {
		if from != nil && sched.StartAt.Before(*from) {
			continue
		}
		if to != nil && sched.EndAt.After(*to) {
			continue
		}

		var clashes []models.DefenseSchedule
		for _, other := range all {
			// all is sorted by start, nothing later can overlap
			if !other.StartAt.Before(sched.EndAt) {
				break
			}
			if other.ID != sched.ID && other.Overlaps(sched.StartAt, sched.EndAt) {
				clashes = append(clashes, other)
			}
		}
		if len(clashes) > 0 {
			result = append(result, UserConflict{
				Schedule:  sched,
				Conflicts: ConflictsFromSchedules(clashes),
			})
		}
	}
	return result, nil
}
