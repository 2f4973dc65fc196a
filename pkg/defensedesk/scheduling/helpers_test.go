package scheduling

import (
	"fmt"
	"testing"
	"time"

	"github.com/envisys/defensedesk/pkg/defensedesk/database"
	"github.com/envisys/defensedesk/pkg/defensedesk/models"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// day7 is the reference day used by the booking scenarios
var day7 = time.Date(2026, 3, 7, 0, 0, 0, 0, time.UTC)

func at(hour int) time.Time {
	return day7.Add(time.Duration(hour) * time.Hour)
}

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := database.Open(database.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to run migrations: %v", err)
	}
	return db
}

func createTestUser(t *testing.T, db *gorm.DB, email string, role models.Role) models.User {
	user := models.User{Email: email, FirstName: "Test", LastName: string(role), Role: role}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func createTestGroup(t *testing.T, db *gorm.DB, name string, adviser *models.User, panels ...models.User) models.Group {
	group := models.Group{Name: name, Panels: panels}
	if adviser != nil {
		group.AdviserID = &adviser.ID
	}
	require.NoError(t, db.Create(&group).Error)
	return group
}

func createTestSchedule(t *testing.T, db *gorm.DB, group models.Group, start, end time.Time) models.DefenseSchedule {
	schedule := models.DefenseSchedule{GroupID: group.ID, StartAt: start, EndAt: end, Location: fmt.Sprintf("Room %d", group.ID)}
	require.NoError(t, db.Omit("Group", "CreatedBy").Create(&schedule).Error)
	return schedule
}

func loadGroup(t *testing.T, db *gorm.DB, id uint) *models.Group {
	var group models.Group
	require.NoError(t, db.Preload("Panels").First(&group, id).Error)
	return &group
}

func countSchedules(t *testing.T, db *gorm.DB) int64 {
	var n int64
	require.NoError(t, db.Model(&models.DefenseSchedule{}).Count(&n).Error)
	return n
}
