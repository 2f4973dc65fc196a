package scheduling

import (
	"context"
	"time"

	"github.com/envisys/defensedesk/pkg/defensedesk/models"
	"gorm.io/gorm"
)

// Detector finds existing schedules that would double-book a group's
// adviser or panel members. It holds no state and takes no locks.
type Detector struct{}

// NewDetector creates a conflict detector
func NewDetector() *Detector {
	return &Detector{}
}

// Overlapping returns every schedule intersecting [startAt, endAt),
// skipping excludeID when non-zero, with owning group and panel loaded.
func (d *Detector) Overlapping(ctx context.Context, db *gorm.DB, startAt, endAt time.Time, excludeID uint) ([]models.DefenseSchedule, error) {
	query := db.WithContext(ctx).
		Preload("Group.Panels").
		Where("start_at < ? AND end_at > ?", endAt.UTC(), startAt.UTC())
	if excludeID > 0 {
		query = query.Where("id <> ?", excludeID)
	}

	var schedules []models.DefenseSchedule
	if err := query.Order("start_at ASC, id ASC").Find(&schedules).Error; err != nil {
		return nil, err
	}
	return schedules, nil
}

// FindConflicts returns the schedules overlapping the window whose group
// shares a resource identity with group. The group's panel must be loaded.
// The time overlap is resolved by the database and resource identity in
// memory: a set intersection does not fit a range index.
func (d *Detector) FindConflicts(ctx context.Context, db *gorm.DB, group *models.Group, startAt, endAt time.Time, excludeID uint) ([]models.DefenseSchedule, error) {
	if group.AdviserID == nil && len(group.Panels) == 0 {
		return []models.DefenseSchedule{}, nil
	}

	overlapping, err := d.Overlapping(ctx, db, startAt, endAt, excludeID)
	if err != nil {
		return nil, err
	}

	conflicts := make([]models.DefenseSchedule, 0, len(overlapping))
	for _, s := range overlapping {
		if group.SharesResourceWith(s.Group) {
			conflicts = append(conflicts, s)
		}
	}
	return conflicts, nil
}
