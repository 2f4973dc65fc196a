package scheduling

import (
	"context"
	"errors"

	"github.com/envisys/defensedesk/pkg/defensedesk/models"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ResourceChange describes a new adviser and/or panel for a group.
// Only the parts flagged with Set* are applied.
type ResourceChange struct {
	SetAdviser bool
	AdviserID  *uint
	SetPanel   bool
	PanelIDs   []uint
}

// ReassignResources changes a group's adviser or panel. The group's
// existing schedules are re-checked against the new resources while the
// group and both its old and new resources are locked; any clash rejects
// the change with a ConflictError.
func (s *Service) ReassignResources(ctx context.Context, groupID uint, change ResourceChange) (*models.Group, error) {
	var panels []models.User
	var incoming []uint
	if change.SetAdviser && change.AdviserID != nil {
		incoming = append(incoming, *change.AdviserID)
	}
	if change.SetPanel {
		panels = []models.User{}
		if ids := normalizeKeys(change.PanelIDs); len(ids) > 0 {
			if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&panels).Error; err != nil {
				return nil, err
			}
			if len(panels) != len(ids) {
				return nil, &NotFoundError{Resource: "user", ID: missingID(ids, panels)}
			}
			incoming = append(incoming, ids...)
		}
	}

	var next models.Group
	_, err := s.lockGroup(ctx, groupID, incoming, func(tx *gorm.DB, current *models.Group) error {
		next = *current
		if change.SetAdviser {
			next.AdviserID = change.AdviserID
		}
		if change.SetPanel {
			next.Panels = panels
		}

		var own []models.DefenseSchedule
		if err := tx.Where("group_id = ?", groupID).Order("start_at ASC, id ASC").Find(&own).Error; err != nil {
			return err
		}

		var clashes []Conflict
		seen := make(map[uint]struct{})
		for _, sched := range own {
			found, err := s.validator.detector.FindConflicts(ctx, tx, &next, sched.StartAt, sched.EndAt, sched.ID)
			if err != nil {
				return err
			}
			for _, c := range found {
				if _, ok := seen[c.ID]; ok {
					continue
				}
				seen[c.ID] = struct{}{}
				clashes = append(clashes, ConflictFromSchedule(c))
			}
		}
		if len(clashes) > 0 {
			return &ConflictError{Conflicts: clashes}
		}

		if change.SetAdviser {
			if err := tx.Model(&models.Group{}).Where("id = ?", groupID).Update("adviser_id", change.AdviserID).Error; err != nil {
				return err
			}
		}
		if change.SetPanel {
			if err := tx.Model(&models.Group{ID: groupID}).Association("Panels").Replace(next.Panels); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.logWriteError(err, logrus.Fields{"group_id": groupID})
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"group_id":  groupID,
		"resources": next.ResourceIDs(),
	}).Info("Group resources reassigned")
	return s.loadGroup(ctx, s.db, groupID)
}

func missingID(want []uint, got []models.User) uint {
	have := make(map[uint]struct{}, len(got))
	for _, u := range got {
		have[u.ID] = struct{}{}
	}
	for _, id := range want {
		if _, ok := have[id]; !ok {
			return id
		}
	}
	return 0
}

// DeleteGroup soft-deletes a group together with its schedules, panel
// assignments and student memberships. The group lock keeps a booking for
// it from landing after the schedules are removed.
func (s *Service) DeleteGroup(ctx context.Context, groupID uint) error {
	err := s.lock.WithinLock(ctx, s.db, []LockKey{groupKey(groupID)}, func(tx *gorm.DB) error {
		var group models.Group
		if err := tx.First(&group, groupID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return &NotFoundError{Resource: "group", ID: groupID}
			}
			return err
		}
		if err := tx.Where("group_id = ?", groupID).Delete(&models.DefenseSchedule{}).Error; err != nil {
			return err
		}
		if err := tx.Where("group_id = ?", groupID).Delete(&models.GroupMembership{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&group).Association("Panels").Clear(); err != nil {
			return err
		}
		return tx.Delete(&group).Error
	})
	if err != nil {
		return err
	}
	s.logger.WithField("group_id", groupID).Info("Group deleted")
	return nil
}
