package groups

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/envisys/defensedesk/pkg/defensedesk/auth"
	"github.com/envisys/defensedesk/pkg/defensedesk/database"
	"github.com/envisys/defensedesk/pkg/defensedesk/models"
	"github.com/envisys/defensedesk/pkg/defensedesk/scheduling"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := database.Open(database.DriverSQLite, ":memory:")
	if err != nil {
		t.Fatalf("Failed to connect to test database: %v", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}
	return db
}

func createTestUser(t *testing.T, db *gorm.DB, email string, role models.Role) models.User {
	user := models.User{Email: email, FirstName: "Test", LastName: string(role), Role: role}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return user
}

func setupTestRouter(db *gorm.DB) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	handler := NewHandler(db, scheduling.NewService(db))

	groups := r.Group("/groups")
	groups.Use(auth.AuthMiddleware())
	handler.RegisterRoutes(groups)
	handler.RegisterMemberRoutes(groups)

	return r
}

func getAuthHeader(user models.User) string {
	token, _ := auth.GenerateToken(user.ID, user.Email, string(user.Role))
	return "Bearer " + token
}

func do(r *gin.Engine, user models.User, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req, _ := http.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", getAuthHeader(user))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func decodeGroup(t *testing.T, resp *httptest.ResponseRecorder) GroupResponse {
	var g GroupResponse
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &g), resp.Body.String())
	return g
}

func TestCreateGroup(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	adviser := createTestUser(t, db, "adv@test.com", models.RoleAdviser)
	panel := createTestUser(t, db, "panel@test.com", models.RolePanel)
	student := createTestUser(t, db, "s@test.com", models.RoleStudent)

	resp := do(router, adviser, "POST", "/groups", CreateGroupRequest{
		Name:      "Thesis A",
		PanelIDs:  []uint{panel.ID},
		MemberIDs: []uint{student.ID},
	})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())

	g := decodeGroup(t, resp)
	assert.Equal(t, "Thesis A", g.Name)
	assert.Equal(t, "PENDING", g.Status)
	require.NotNil(t, g.Adviser, "creating adviser becomes the adviser")
	assert.Equal(t, adviser.ID, g.Adviser.ID)
	require.Len(t, g.Panels, 1)
	assert.Equal(t, panel.ID, g.Panels[0].ID)
	assert.Equal(t, 1, g.MemberCount)

	t.Run("student already in a group", func(t *testing.T) {
		resp := do(router, adviser, "POST", "/groups", CreateGroupRequest{Name: "Thesis B", MemberIDs: []uint{student.ID}})
		assert.Equal(t, http.StatusConflict, resp.Code)
	})

	t.Run("wrong role for panel", func(t *testing.T) {
		resp := do(router, adviser, "POST", "/groups", CreateGroupRequest{Name: "Thesis C", PanelIDs: []uint{adviser.ID}})
		assert.Equal(t, http.StatusBadRequest, resp.Code)
	})

	t.Run("unknown user", func(t *testing.T) {
		resp := do(router, adviser, "POST", "/groups", CreateGroupRequest{Name: "Thesis D", PanelIDs: []uint{999}})
		assert.Equal(t, http.StatusNotFound, resp.Code)
	})

	t.Run("students cannot create groups", func(t *testing.T) {
		resp := do(router, student, "POST", "/groups", CreateGroupRequest{Name: "Mine"})
		assert.Equal(t, http.StatusForbidden, resp.Code)
	})
}

func TestListAndGetGroups(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	adviser := createTestUser(t, db, "adv@test.com", models.RoleAdviser)
	student := createTestUser(t, db, "s@test.com", models.RoleStudent)

	mine := models.Group{Name: "Alpha", AdviserID: &adviser.ID}
	other := models.Group{Name: "Beta"}
	require.NoError(t, db.Create(&mine).Error)
	require.NoError(t, db.Create(&other).Error)
	require.NoError(t, db.Model(&other).Update("status", models.GroupStatusApproved).Error)

	list := func(user models.User, query string) []GroupResponse {
		resp := do(router, user, "GET", "/groups"+query, nil)
		require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
		var groups []GroupResponse
		require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &groups))
		return groups
	}

	assert.Len(t, list(student, ""), 2)
	assert.Len(t, list(student, "?status=approved"), 1)

	groups := list(adviser, "?mine=true")
	require.Len(t, groups, 1)
	assert.Equal(t, "Alpha", groups[0].Name)
	assert.Empty(t, list(student, "?mine=true"))

	resp := do(router, student, "GET", fmt.Sprintf("/groups/%d", mine.ID), nil)
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, adviser.ID, decodeGroup(t, resp).Adviser.ID)

	assert.Equal(t, http.StatusNotFound, do(router, student, "GET", "/groups/999", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(router, student, "GET", "/groups/abc", nil).Code)
}

func TestUpdateGroup(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	adviser := createTestUser(t, db, "adv@test.com", models.RoleAdviser)
	admin := createTestUser(t, db, "admin@test.com", models.RoleAdmin)
	group := models.Group{Name: "Alpha", AdviserID: &adviser.ID}
	require.NoError(t, db.Create(&group).Error)
	path := fmt.Sprintf("/groups/%d", group.ID)

	name := "Alpha Prime"
	resp := do(router, adviser, "PUT", path, UpdateGroupRequest{Name: &name})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	assert.Equal(t, "Alpha Prime", decodeGroup(t, resp).Name)

	status := "approved"
	assert.Equal(t, http.StatusForbidden, do(router, adviser, "PUT", path, UpdateGroupRequest{Status: &status}).Code)

	resp = do(router, admin, "PUT", path, UpdateGroupRequest{Status: &status})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Equal(t, "APPROVED", decodeGroup(t, resp).Status)

	bogus := "archived"
	assert.Equal(t, http.StatusBadRequest, do(router, admin, "PUT", path, UpdateGroupRequest{Status: &bogus}).Code)
}

func TestMembers(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	adviser := createTestUser(t, db, "adv@test.com", models.RoleAdviser)
	student := createTestUser(t, db, "s@test.com", models.RoleStudent)
	a := models.Group{Name: "Alpha"}
	b := models.Group{Name: "Beta"}
	require.NoError(t, db.Create(&a).Error)
	require.NoError(t, db.Create(&b).Error)

	resp := do(router, adviser, "POST", fmt.Sprintf("/groups/%d/members", a.ID), AddMemberRequest{UserID: student.ID})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	assert.Equal(t, 1, decodeGroup(t, resp).MemberCount)

	resp = do(router, adviser, "POST", fmt.Sprintf("/groups/%d/members", b.ID), AddMemberRequest{UserID: student.ID})
	assert.Equal(t, http.StatusConflict, resp.Code)

	resp = do(router, adviser, "POST", fmt.Sprintf("/groups/%d/members", b.ID), AddMemberRequest{UserID: adviser.ID})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = do(router, adviser, "DELETE", fmt.Sprintf("/groups/%d/members/%d", a.ID, student.ID), nil)
	assert.Equal(t, http.StatusNoContent, resp.Code)
	resp = do(router, adviser, "DELETE", fmt.Sprintf("/groups/%d/members/%d", a.ID, student.ID), nil)
	assert.Equal(t, http.StatusNotFound, resp.Code)

	// Free again, so the second group can take them
	resp = do(router, adviser, "POST", fmt.Sprintf("/groups/%d/members", b.ID), AddMemberRequest{UserID: student.ID})
	assert.Equal(t, http.StatusCreated, resp.Code)
}

func TestSetAdviserAndPanel(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	admin := createTestUser(t, db, "admin@test.com", models.RoleAdmin)
	x := createTestUser(t, db, "x@test.com", models.RoleAdviser)
	y := createTestUser(t, db, "y@test.com", models.RoleAdviser)
	p := createTestUser(t, db, "p@test.com", models.RolePanel)

	a := models.Group{Name: "Alpha", AdviserID: &x.ID}
	b := models.Group{Name: "Beta", AdviserID: &y.ID}
	require.NoError(t, db.Create(&a).Error)
	require.NoError(t, db.Create(&b).Error)

	day := time.Date(2026, 3, 7, 10, 0, 0, 0, time.UTC)
	for _, s := range []models.DefenseSchedule{
		{GroupID: a.ID, StartAt: day, EndAt: day.Add(2 * time.Hour)},
		{GroupID: b.ID, StartAt: day.Add(time.Hour), EndAt: day.Add(3 * time.Hour)},
	} {
		require.NoError(t, db.Omit("Group", "CreatedBy").Create(&s).Error)
	}

	resp := do(router, admin, "PUT", fmt.Sprintf("/groups/%d/adviser", b.ID), SetAdviserRequest{AdviserID: &x.ID})
	require.Equal(t, http.StatusConflict, resp.Code, resp.Body.String())
	var body struct {
		Conflicts []scheduling.Conflict `json:"conflicting_schedules"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &body))
	require.Len(t, body.Conflicts, 1)
	assert.Equal(t, "Alpha", body.Conflicts[0].GroupName)

	resp = do(router, admin, "PUT", fmt.Sprintf("/groups/%d/adviser", b.ID), SetAdviserRequest{AdviserID: &p.ID})
	assert.Equal(t, http.StatusBadRequest, resp.Code)

	resp = do(router, admin, "PUT", fmt.Sprintf("/groups/%d/panel", a.ID), SetPanelRequest{PanelIDs: []uint{p.ID}})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	require.Len(t, decodeGroup(t, resp).Panels, 1)

	resp = do(router, admin, "PUT", fmt.Sprintf("/groups/%d/panel", b.ID), SetPanelRequest{PanelIDs: []uint{p.ID}})
	assert.Equal(t, http.StatusConflict, resp.Code, "p is already on Alpha's overlapping defense")

	resp = do(router, admin, "PUT", fmt.Sprintf("/groups/%d/adviser", a.ID), SetAdviserRequest{})
	require.Equal(t, http.StatusOK, resp.Code)
	assert.Nil(t, decodeGroup(t, resp).Adviser)
}

func TestDeleteGroupRemovesSchedules(t *testing.T) {
	db := setupTestDB(t)
	router := setupTestRouter(db)
	adviser := createTestUser(t, db, "adv@test.com", models.RoleAdviser)
	group := models.Group{Name: "Alpha", AdviserID: &adviser.ID}
	require.NoError(t, db.Create(&group).Error)

	start := time.Date(2026, 3, 7, 10, 0, 0, 0, time.UTC)
	sched := models.DefenseSchedule{GroupID: group.ID, StartAt: start, EndAt: start.Add(time.Hour)}
	require.NoError(t, db.Omit("Group", "CreatedBy").Create(&sched).Error)

	resp := do(router, adviser, "DELETE", fmt.Sprintf("/groups/%d", group.ID), nil)
	require.Equal(t, http.StatusNoContent, resp.Code, resp.Body.String())

	var n int64
	db.Model(&models.DefenseSchedule{}).Count(&n)
	assert.Equal(t, int64(0), n)

	assert.Equal(t, http.StatusNotFound, do(router, adviser, "DELETE", fmt.Sprintf("/groups/%d", group.ID), nil).Code)
}
