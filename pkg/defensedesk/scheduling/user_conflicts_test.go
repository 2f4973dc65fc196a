package scheduling

import (
	"context"
	"testing"

	"github.com/envisys/defensedesk/pkg/defensedesk/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUserSchedules(t *testing.T) {
	db := setupTestDB(t)
	u := createTestUser(t, db, "u@test.com", models.RoleAdviser)
	y := createTestUser(t, db, "y@test.com", models.RoleAdviser)
	advised := createTestGroup(t, db, "Advised", &u)
	paneled := createTestGroup(t, db, "Paneled", &y, u)
	unrelated := createTestGroup(t, db, "Unrelated", &y)

	s2 := createTestSchedule(t, db, advised, at(13), at(14))
	s1 := createTestSchedule(t, db, paneled, at(9), at(10))
	createTestSchedule(t, db, unrelated, at(15), at(16))

	list, err := NewService(db).UserSchedules(context.Background(), u.ID)
	require.NoError(t, err)
	assert.Equal(t, []uint{s1.ID, s2.ID}, scheduleIDs(list))

	list, err = NewService(db).UserSchedules(context.Background(), 999)
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)
}

func TestUserConflictsCrossRole(t *testing.T) {
	db := setupTestDB(t)
	u := createTestUser(t, db, "u@test.com", models.RoleAdviser)
	y := createTestUser(t, db, "y@test.com", models.RoleAdviser)
	advised := createTestGroup(t, db, "Advised", &u)
	paneled := createTestGroup(t, db, "Paneled", &y, u)

	// The write path allows this: the groups share no adviser and no panel member
	a := createTestSchedule(t, db, advised, at(10), at(12))
	b := createTestSchedule(t, db, paneled, at(11), at(13))
	createTestSchedule(t, db, advised, at(14), at(15))

	svc := NewService(db)
	result, err := svc.UserConflicts(context.Background(), u.ID, nil, nil)
	require.NoError(t, err)
	require.Len(t, result, 2)

	assert.Equal(t, a.ID, result[0].Schedule.ID)
	require.Len(t, result[0].Conflicts, 1)
	assert.Equal(t, b.ID, result[0].Conflicts[0].ID)
	assert.Equal(t, "Paneled", result[0].Conflicts[0].GroupName)

	assert.Equal(t, b.ID, result[1].Schedule.ID)
	assert.Equal(t, a.ID, result[1].Conflicts[0].ID)

	t.Run("bounds select reported schedules", func(t *testing.T) {
		from := at(11)
		result, err := svc.UserConflicts(context.Background(), u.ID, &from, nil)
		require.NoError(t, err)
		require.Len(t, result, 1)
		assert.Equal(t, b.ID, result[0].Schedule.ID)
		assert.Equal(t, a.ID, result[0].Conflicts[0].ID, "conflicts are searched outside the bounds")

		to := at(12)
		result, err = svc.UserConflicts(context.Background(), u.ID, nil, &to)
		require.NoError(t, err)
		require.Len(t, result, 1)
		assert.Equal(t, a.ID, result[0].Schedule.ID)
	})

	t.Run("other users see nothing", func(t *testing.T) {
		result, err := svc.UserConflicts(context.Background(), y.ID, nil, nil)
		require.NoError(t, err)
		assert.NotNil(t, result)
		assert.Empty(t, result)
	})
}

func TestUserConflictsUnknownUser(t *testing.T) {
	db := setupTestDB(t)
	_, err := NewService(db).UserConflicts(context.Background(), 404, nil, nil)
	assert.True(t, IsNotFound(err))
}
