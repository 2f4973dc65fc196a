package models

import "gorm.io/gorm"

// AllModels returns all models for migration
// Note: User must be migrated first as the group and schedule tables reference it
func AllModels() []interface{} {
	return []interface{}{
		&User{},
		&Group{},
		&GroupMembership{},
		&DefenseSchedule{},
	}
}

// AutoMigrate runs GORM auto-migration for all models
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(AllModels()...)
}
