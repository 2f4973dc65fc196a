package scheduling

import (
	"context"
	"testing"

	"github.com/envisys/defensedesk/pkg/defensedesk/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scheduleIDs(schedules []models.DefenseSchedule) []uint {
	ids := make([]uint, len(schedules))
	for i, s := range schedules {
		ids[i] = s.ID
	}
	return ids
}

func TestOverlappingIgnoresTouchingWindows(t *testing.T) {
	db := setupTestDB(t)
	adviser := createTestUser(t, db, "adviser@test.com", models.RoleAdviser)
	group := createTestGroup(t, db, "Group A", &adviser)

	before := createTestSchedule(t, db, group, at(8), at(10))
	inside := createTestSchedule(t, db, group, at(10), at(11))
	straddle := createTestSchedule(t, db, group, at(11), at(13))
	createTestSchedule(t, db, group, at(12), at(14))

	got, err := NewDetector().Overlapping(context.Background(), db, at(10), at(12), 0)
	require.NoError(t, err)

	assert.Equal(t, []uint{inside.ID, straddle.ID}, scheduleIDs(got))
	assert.NotContains(t, scheduleIDs(got), before.ID)
}

func TestOverlappingExcludesID(t *testing.T) {
	db := setupTestDB(t)
	group := createTestGroup(t, db, "Group A", nil)
	s := createTestSchedule(t, db, group, at(10), at(12))

	got, err := NewDetector().Overlapping(context.Background(), db, at(10), at(12), s.ID)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestFindConflictsSharedAdviser(t *testing.T) {
	db := setupTestDB(t)
	adviserX := createTestUser(t, db, "x@test.com", models.RoleAdviser)
	adviserY := createTestUser(t, db, "y@test.com", models.RoleAdviser)
	groupA := createTestGroup(t, db, "Group A", &adviserX)
	groupB := createTestGroup(t, db, "Group B", &adviserX)
	groupC := createTestGroup(t, db, "Group C", &adviserY)

	existing := createTestSchedule(t, db, groupA, at(10), at(12))
	d := NewDetector()

	conflicts, err := d.FindConflicts(context.Background(), db, loadGroup(t, db, groupB.ID), at(11), at(13), 0)
	require.NoError(t, err)
	require.Len(t, conflicts, 1)
	assert.Equal(t, existing.ID, conflicts[0].ID)
	assert.Equal(t, "Group A", conflicts[0].Group.Name)

	conflicts, err = d.FindConflicts(context.Background(), db, loadGroup(t, db, groupC.ID), at(11), at(13), 0)
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}

func TestFindConflictsSharedPanel(t *testing.T) {
	db := setupTestDB(t)
	adviser1 := createTestUser(t, db, "a1@test.com", models.RoleAdviser)
	adviser2 := createTestUser(t, db, "a2@test.com", models.RoleAdviser)
	panel1 := createTestUser(t, db, "p1@test.com", models.RolePanel)
	panel2 := createTestUser(t, db, "p2@test.com", models.RolePanel)
	group1 := createTestGroup(t, db, "Group 1", &adviser1, panel1)
	group2 := createTestGroup(t, db, "Group 2", &adviser2, panel1, panel2)
	group3 := createTestGroup(t, db, "Group 3", &adviser2, panel2)

	createTestSchedule(t, db, group1, at(9), at(11))
	d := NewDetector()

	conflicts, err := d.FindConflicts(context.Background(), db, loadGroup(t, db, group2.ID), at(10), at(12), 0)
	require.NoError(t, err)
	assert.Len(t, conflicts, 1)

	conflicts, err = d.FindConflicts(context.Background(), db, loadGroup(t, db, group3.ID), at(10), at(12), 0)
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}

func TestFindConflictsSharedStudentIsNotAConflict(t *testing.T) {
	db := setupTestDB(t)
	adviser1 := createTestUser(t, db, "a1@test.com", models.RoleAdviser)
	adviser2 := createTestUser(t, db, "a2@test.com", models.RoleAdviser)
	group1 := createTestGroup(t, db, "Group 1", &adviser1)
	group2 := createTestGroup(t, db, "Group 2", &adviser2)

	createTestSchedule(t, db, group1, at(9), at(11))

	conflicts, err := NewDetector().FindConflicts(context.Background(), db, loadGroup(t, db, group2.ID), at(9), at(11), 0)
	require.NoError(t, err)
	assert.Empty(t, conflicts)
}

func TestFindConflictsWithoutResources(t *testing.T) {
	db := setupTestDB(t)
	group1 := createTestGroup(t, db, "Group 1", nil)
	group2 := createTestGroup(t, db, "Group 2", nil)
	createTestSchedule(t, db, group1, at(9), at(11))

	conflicts, err := NewDetector().FindConflicts(context.Background(), db, loadGroup(t, db, group2.ID), at(9), at(11), 0)
	require.NoError(t, err)
	assert.NotNil(t, conflicts)
	assert.Empty(t, conflicts)
}
