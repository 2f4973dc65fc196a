package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// Role is the business role of a user. It decides which resource slot
// (adviser or panel) the user can occupy on a group.
type Role string

const (
	RoleStudent Role = "STUDENT"
	RoleAdviser Role = "ADVISER"
	RolePanel   Role = "PANEL"
	RoleAdmin   Role = "ADMIN"
)

// Valid reports whether r is one of the known roles
func (r Role) Valid() bool {
	switch r {
	case RoleStudent, RoleAdviser, RolePanel, RoleAdmin:
		return true
	}
	return false
}

// User represents a user in the system
type User struct {
	ID           uint           `gorm:"primarykey" json:"id"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	DeletedAt    gorm.DeletedAt `gorm:"index" json:"-"`
	Email        string         `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string         `json:"-"`
	FirstName    string         `gorm:"size:64" json:"first_name"`
	LastName     string         `gorm:"size:64" json:"last_name"`
	Role         Role           `gorm:"type:varchar(16);not null;default:'STUDENT'" json:"role"`
	Active       bool           `gorm:"default:true" json:"active"`

	// Relationships
	Membership *GroupMembership `gorm:"foreignKey:UserID" json:"membership,omitempty"`
}

// FullName returns the display name, falling back to the email
func (u User) FullName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Email
	}
	return name
}
