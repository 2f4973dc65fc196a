package scheduling

import (
	"context"
	"errors"
	"time"

	"github.com/envisys/defensedesk/pkg/defensedesk/models"
	"github.com/envisys/defensedesk/pkg/defensedesk/notify"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// CreateInput holds the fields of a new defense schedule
type CreateInput struct {
	GroupID     uint
	StartAt     time.Time
	EndAt       time.Time
	Location    string
	CreatedByID *uint
}

// UpdateInput holds the fields to change; nil fields keep their value
type UpdateInput struct {
	GroupID  *uint
	StartAt  *time.Time
	EndAt    *time.Time
	Location *string
}

// ListFilter narrows List. The date bounds are applied independently
// (start_at >= StartFrom, end_at <= EndTo); this is not an overlap test.
type ListFilter struct {
	GroupID   *uint
	StartFrom *time.Time
	EndTo     *time.Time
}

// AvailabilityInput describes a hypothetical booking
type AvailabilityInput struct {
	GroupID   uint
	StartAt   time.Time
	EndAt     time.Time
	ExcludeID uint
}

// Service owns every read and write of defense schedules
type Service struct {
	db         *gorm.DB
	validator  *Validator
	lock       ResourceLock
	dispatcher notify.Dispatcher
	logger     *logrus.Entry
}

// Option configures a Service
type Option func(*Service)

// WithResourceLock sets how concurrent writers are serialized
func WithResourceLock(l ResourceLock) Option {
	return func(s *Service) { s.lock = l }
}

// WithDispatcher sets the notification dispatcher used after a booking
func WithDispatcher(d notify.Dispatcher) Option {
	return func(s *Service) { s.dispatcher = d }
}

// WithLogger sets the logger
func WithLogger(l *logrus.Entry) Option {
	return func(s *Service) { s.logger = l }
}

// NewService creates a scheduling service
func NewService(db *gorm.DB, opts ...Option) *Service {
	s := &Service{
		db:         db,
		validator:  NewValidator(NewDetector()),
		lock:       NewLocalLock(),
		dispatcher: notify.Nop{},
		logger:     logrus.WithField("component", "scheduling"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Validator returns the validator used by the service
func (s *Service) Validator() *Validator {
	return s.validator
}

func (s *Service) loadGroup(ctx context.Context, db *gorm.DB, id uint) (*models.Group, error) {
	var group models.Group
	err := db.WithContext(ctx).Preload("Panels").Preload("Members").First(&group, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &NotFoundError{Resource: "group", ID: id}
	}
	if err != nil {
		return nil, err
	}
	return &group, nil
}

// maxLockAttempts bounds how often lockGroup retakes its locks after the
// group's adviser or panel changed underneath it
const maxLockAttempts = 3

// errResourcesChanged is returned when the group kept changing while
// lockGroup was retaking its locks
var errResourcesChanged = errors.New("group adviser or panel changed concurrently, retry the request")

// lockGroup runs fn under the locks of the group and of its adviser and
// panel, plus extra user ids. The group passed to fn is reloaded inside the
// lock. If a reassignment committed after the keys were chosen, the locks
// are released and taken again for the new resources.
func (s *Service) lockGroup(ctx context.Context, groupID uint, extra []uint, fn func(tx *gorm.DB, group *models.Group) error) (*models.Group, error) {
	group, err := s.loadGroup(ctx, s.db, groupID)
	if err != nil {
		return nil, err
	}

	for attempt := 1; ; attempt++ {
		ids := append(group.ResourceIDs(), extra...)
		keys := append(userKeys(ids), groupKey(groupID))

		var locked *models.Group
		err = s.lock.WithinLock(ctx, s.db, keys, func(tx *gorm.DB) error {
			fresh, err := s.loadGroup(ctx, tx, groupID)
			if err != nil {
				return err
			}
			if !containsAll(ids, fresh.ResourceIDs()) {
				group = fresh
				return errResourcesChanged
			}
			locked = fresh
			return fn(tx, fresh)
		})
		if errors.Is(err, errResourcesChanged) && attempt < maxLockAttempts {
			s.logger.WithFields(logrus.Fields{
				"group_id": groupID,
				"attempt":  attempt,
			}).Debug("Group resources changed, retaking locks")
			continue
		}
		if err != nil {
			return nil, err
		}
		return locked, nil
	}
}

func containsAll(set, ids []uint) bool {
	have := make(map[uint]struct{}, len(set))
	for _, id := range set {
		have[id] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := have[id]; !ok {
			return false
		}
	}
	return true
}

// Get returns a schedule with its group loaded
func (s *Service) Get(ctx context.Context, id uint) (*models.DefenseSchedule, error) {
	var schedule models.DefenseSchedule
	err := s.db.WithContext(ctx).Preload("Group").First(&schedule, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &NotFoundError{Resource: "schedule", ID: id}
	}
	if err != nil {
		return nil, err
	}
	return &schedule, nil
}

// List returns schedules ascending by start time
func (s *Service) List(ctx context.Context, f ListFilter) ([]models.DefenseSchedule, error) {
	query := s.db.WithContext(ctx).Preload("Group")
	if f.GroupID != nil {
		query = query.Where("group_id = ?", *f.GroupID)
	}
	if f.StartFrom != nil {
		query = query.Where("start_at >= ?", f.StartFrom.UTC())
	}
	if f.EndTo != nil {
		query = query.Where("end_at <= ?", f.EndTo.UTC())
	}

	schedules := []models.DefenseSchedule{}
	if err := query.Order("start_at ASC, id ASC").Find(&schedules).Error; err != nil {
		return nil, err
	}
	return schedules, nil
}

// Create validates and books a defense. The conflict scan and the insert
// share one transaction held under the group's resource locks.
func (s *Service) Create(ctx context.Context, in CreateInput) (*models.DefenseSchedule, error) {
	startAt, endAt := in.StartAt.UTC(), in.EndAt.UTC()
	if err := CheckRange(startAt, endAt); err != nil {
		return nil, err
	}

	schedule := models.DefenseSchedule{
		GroupID:     in.GroupID,
		StartAt:     startAt,
		EndAt:       endAt,
		Location:    in.Location,
		CreatedByID: in.CreatedByID,
	}

	group, err := s.lockGroup(ctx, in.GroupID, nil, func(tx *gorm.DB, group *models.Group) error {
		if err := s.validator.Validate(ctx, tx, group, startAt, endAt, 0); err != nil {
			return err
		}
		return tx.Omit(clause.Associations).Create(&schedule).Error
	})
	if err != nil {
		s.logWriteError(err, logrus.Fields{"group_id": in.GroupID})
		return nil, err
	}

	schedule.Group = *group
	s.logger.WithFields(logrus.Fields{
		"schedule_id": schedule.ID,
		"group_id":    group.ID,
		"start_at":    startAt,
		"end_at":      endAt,
	}).Info("Defense schedule created")

	s.notifyCreated(ctx, schedule, group)
	return &schedule, nil
}

// Update re-validates the merged values, ignoring the schedule itself
func (s *Service) Update(ctx context.Context, id uint, in UpdateInput) (*models.DefenseSchedule, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	merged := applyUpdate(*current, in)
	if err := CheckRange(merged.StartAt, merged.EndAt); err != nil {
		return nil, err
	}

	group, err := s.lockGroup(ctx, merged.GroupID, nil, func(tx *gorm.DB, group *models.Group) error {
		if err := s.validator.Validate(ctx, tx, group, merged.StartAt, merged.EndAt, id); err != nil {
			return err
		}
		res := tx.Model(&models.DefenseSchedule{}).Where("id = ?", id).Updates(map[string]interface{}{
			"group_id": merged.GroupID,
			"start_at": merged.StartAt,
			"end_at":   merged.EndAt,
			"location": merged.Location,
		})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return &NotFoundError{Resource: "schedule", ID: id}
		}
		return nil
	})
	if err != nil {
		s.logWriteError(err, logrus.Fields{"schedule_id": id, "group_id": merged.GroupID})
		return nil, err
	}

	merged.Group = *group
	s.logger.WithFields(logrus.Fields{
		"schedule_id": id,
		"group_id":    group.ID,
	}).Info("Defense schedule updated")
	return &merged, nil
}

// Delete removes a schedule. Freeing a slot cannot create a conflict, so
// nothing else is re-checked.
func (s *Service) Delete(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&models.DefenseSchedule{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &NotFoundError{Resource: "schedule", ID: id}
	}
	s.logger.WithField("schedule_id", id).Info("Defense schedule deleted")
	return nil
}

// CheckAvailability reports conflicts for a hypothetical booking without
// writing anything
func (s *Service) CheckAvailability(ctx context.Context, in AvailabilityInput) (*Availability, error) {
	group, err := s.loadGroup(ctx, s.db, in.GroupID)
	if err != nil {
		return nil, err
	}
	return s.validator.Availability(ctx, s.db, group, in.StartAt.UTC(), in.EndAt.UTC(), in.ExcludeID)
}

// ValidateUpdate reports whether applying in to schedule id would succeed,
// without saving
func (s *Service) ValidateUpdate(ctx context.Context, id uint, in UpdateInput) (*Availability, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	merged := applyUpdate(*current, in)

	group, err := s.loadGroup(ctx, s.db, merged.GroupID)
	if err != nil {
		return nil, err
	}
	return s.validator.Availability(ctx, s.db, group, merged.StartAt, merged.EndAt, id)
}

func applyUpdate(s models.DefenseSchedule, in UpdateInput) models.DefenseSchedule {
	if in.GroupID != nil {
		s.GroupID = *in.GroupID
	}
	if in.StartAt != nil {
		s.StartAt = *in.StartAt
	}
	if in.EndAt != nil {
		s.EndAt = *in.EndAt
	}
	if in.Location != nil {
		s.Location = *in.Location
	}
	s.StartAt = s.StartAt.UTC()
	s.EndAt = s.EndAt.UTC()
	return s
}

func (s *Service) logWriteError(err error, fields logrus.Fields) {
	var tre *TimeRangeError
	var ce *ConflictError
	switch {
	case errors.As(err, &tre), IsNotFound(err):
		return
	case errors.As(err, &ce):
		s.logger.WithFields(fields).WithField("conflicting_ids", ce.IDs()).Info("Defense schedule rejected")
	default:
		// Includes check-constraint trips, which the validator should have prevented
		s.logger.WithFields(fields).WithError(err).Error("Defense schedule write failed")
	}
}

func (s *Service) notifyCreated(ctx context.Context, schedule models.DefenseSchedule, group *models.Group) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.WithField("panic", r).Error("Notification dispatch panicked")
		}
	}()

	if err := s.dispatcher.Dispatch(ctx, notify.ScheduleCreated(schedule, *group)); err != nil {
		s.logger.WithError(err).WithField("schedule_id", schedule.ID).Warn("Failed to dispatch schedule notification")
	}
}
