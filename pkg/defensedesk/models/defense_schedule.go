package models

import "time"

// DefenseSchedule is a booked defense slot for a group. The check
// constraint keeps start_at < end_at even for writes that bypass the
// scheduling service.
type DefenseSchedule struct {
	ID          uint      `gorm:"primarykey" json:"id"`
	GroupID     uint      `gorm:"not null;index" json:"group"`
	StartAt     time.Time `gorm:"not null;index" json:"start_at"`
	EndAt       time.Time `gorm:"not null;check:chk_defense_schedules_window,start_at < end_at" json:"end_at"`
	Location    string    `gorm:"size:256" json:"location"`
	CreatedByID *uint     `json:"created_by"`
	CreatedAt   time.Time `gorm:"<-:create" json:"created_at"`

	// Relationships
	Group     Group `gorm:"foreignKey:GroupID" json:"-"`
	CreatedBy *User `gorm:"foreignKey:CreatedByID" json:"-"`
}

// Overlaps reports whether the schedule intersects [start, end).
// Touching endpoints do not overlap.
func (s DefenseSchedule) Overlaps(start, end time.Time) bool {
	return s.StartAt.Before(end) && s.EndAt.After(start)
}
