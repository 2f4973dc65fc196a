package models

import (
	"time"

	"gorm.io/gorm"
)

// GroupStatus is the approval state of a thesis group
type GroupStatus string

const (
	GroupStatusPending  GroupStatus = "PENDING"
	GroupStatusApproved GroupStatus = "APPROVED"
	GroupStatusRejected GroupStatus = "REJECTED"
)

// Valid reports whether s is one of the known statuses
func (s GroupStatus) Valid() bool {
	switch s {
	case GroupStatusPending, GroupStatusApproved, GroupStatusRejected:
		return true
	}
	return false
}

// Group represents a thesis group. The adviser and the panel are the
// scarce resources that defense schedules must not double-book.
type Group struct {
	ID        uint           `gorm:"primarykey" json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
	Name      string         `gorm:"size:128;not null" json:"name"`
	Status    GroupStatus    `gorm:"type:varchar(16);not null;default:'PENDING'" json:"status"`
	AdviserID *uint          `gorm:"index" json:"adviser_id"`

	// Relationships
	Adviser *User             `gorm:"foreignKey:AdviserID" json:"adviser,omitempty"`
	Panels  []User            `gorm:"many2many:group_panels" json:"panels,omitempty"`
	Members []GroupMembership `gorm:"foreignKey:GroupID" json:"members,omitempty"`
}

// PanelIDs returns the IDs of the loaded panel members
func (g Group) PanelIDs() []uint {
	ids := make([]uint, len(g.Panels))
	for i, p := range g.Panels {
		ids[i] = p.ID
	}
	return ids
}

// ResourceIDs returns the user IDs whose time this group consumes when it
// books a defense: the adviser (if any) followed by the panel members.
func (g Group) ResourceIDs() []uint {
	ids := make([]uint, 0, len(g.Panels)+1)
	if g.AdviserID != nil {
		ids = append(ids, *g.AdviserID)
	}
	return append(ids, g.PanelIDs()...)
}

// SharesResourceWith reports whether both groups have the same adviser or
// at least one panel member in common. Panels must be loaded on both sides.
// Shared student members do not count.
func (g Group) SharesResourceWith(other Group) bool {
	if g.AdviserID != nil && other.AdviserID != nil && *g.AdviserID == *other.AdviserID {
		return true
	}
	if len(g.Panels) == 0 || len(other.Panels) == 0 {
		return false
	}
	panel := make(map[uint]struct{}, len(g.Panels))
	for _, p := range g.Panels {
		panel[p.ID] = struct{}{}
	}
	for _, p := range other.Panels {
		if _, ok := panel[p.ID]; ok {
			return true
		}
	}
	return false
}

// HasResource reports whether userID is the adviser or on the panel
func (g Group) HasResource(userID uint) bool {
	for _, id := range g.ResourceIDs() {
		if id == userID {
			return true
		}
	}
	return false
}
