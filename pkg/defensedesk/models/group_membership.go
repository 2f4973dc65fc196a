package models

import "time"

// GroupMembership links a student to their group. The unique index on
// UserID keeps a student in at most one group.
type GroupMembership struct {
	ID        uint      `gorm:"primarykey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_membership_user" json:"user_id"`
	GroupID   uint      `gorm:"not null;index" json:"group_id"`

	// Relationships
	User  User  `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Group Group `gorm:"foreignKey:GroupID" json:"-"`
}
