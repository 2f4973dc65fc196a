package admin

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/envisys/defensedesk/pkg/defensedesk/auth"
	"github.com/envisys/defensedesk/pkg/defensedesk/models"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	sqlDB, _ := db.DB()
	sqlDB.SetMaxOpenConns(1)

	if err := models.AutoMigrate(db); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}

	return db
}

// setupTestRouter mounts the admin routes as adminID
func setupTestRouter(db *gorm.DB, adminID uint) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	rg := r.Group("/admin", func(c *gin.Context) {
		c.Set(auth.ContextKeyUserID, adminID)
		c.Set(auth.ContextKeyRole, string(models.RoleAdmin))
	})
	NewHandler(db).RegisterRoutes(rg)
	return r
}

func createTestUser(t *testing.T, db *gorm.DB, email, first string, role models.Role) *models.User {
	hashedPassword, _ := auth.HashPassword("password123")
	user := &models.User{
		Email:        email,
		FirstName:    first,
		LastName:     "Tester",
		PasswordHash: hashedPassword,
		Role:         role,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}
	return user
}

func doJSON(r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestListUsers(t *testing.T) {
	db := setupTestDB(t)
	admin := createTestUser(t, db, "admin@test.com", "Admin", models.RoleAdmin)
	createTestUser(t, db, "john@test.com", "John", models.RoleAdviser)
	createTestUser(t, db, "jane@test.com", "Jane", models.RolePanel)
	r := setupTestRouter(db, admin.ID)

	tests := []struct {
		query string
		want  int
	}{
		{"", 3},
		{"?q=john", 1},
		{"?role=panel", 1},
		{"?role=STUDENT", 0},
		{"?active=true", 3},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			w := doJSON(r, "GET", "/admin/users"+tt.query, nil)
			require.Equal(t, http.StatusOK, w.Code)

			var users []UserResponse
			require.NoError(t, json.Unmarshal(w.Body.Bytes(), &users))
			assert.Len(t, users, tt.want)
		})
	}

	assert.Equal(t, http.StatusBadRequest, doJSON(r, "GET", "/admin/users?active=maybe", nil).Code)
}

func TestCreateUser(t *testing.T) {
	db := setupTestDB(t)
	admin := createTestUser(t, db, "admin@test.com", "Admin", models.RoleAdmin)
	r := setupTestRouter(db, admin.ID)

	w := doJSON(r, "POST", "/admin/users", CreateUserRequest{
		Email:     "Panel@Test.com",
		Password:  "password123",
		FirstName: "Pat",
		Role:      "panel",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp UserResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "panel@test.com", resp.Email)
	assert.Equal(t, "PANEL", resp.Role)
	assert.True(t, resp.Active)

	var stored models.User
	require.NoError(t, db.First(&stored, resp.ID).Error)
	assert.True(t, auth.CheckPassword("password123", stored.PasswordHash))

	t.Run("duplicate email", func(t *testing.T) {
		w := doJSON(r, "POST", "/admin/users", CreateUserRequest{
			Email: "panel@test.com", Password: "password123", FirstName: "Pat", Role: "PANEL",
		})
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("unknown role", func(t *testing.T) {
		w := doJSON(r, "POST", "/admin/users", CreateUserRequest{
			Email: "x@test.com", Password: "password123", FirstName: "X", Role: "DEAN",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("short password", func(t *testing.T) {
		w := doJSON(r, "POST", "/admin/users", CreateUserRequest{
			Email: "y@test.com", Password: "short", FirstName: "Y", Role: "STUDENT",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestGetUser(t *testing.T) {
	db := setupTestDB(t)
	admin := createTestUser(t, db, "admin@test.com", "Admin", models.RoleAdmin)
	adviser := createTestUser(t, db, "adv@test.com", "Ada", models.RoleAdviser)
	require.NoError(t, db.Create(&models.Group{Name: "G1", AdviserID: &adviser.ID}).Error)
	require.NoError(t, db.Create(&models.Group{Name: "G2", AdviserID: &adviser.ID}).Error)
	r := setupTestRouter(db, admin.ID)

	w := doJSON(r, "GET", fmt.Sprintf("/admin/users/%d", adviser.ID), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp UserResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, adviser.Email, resp.Email)
	assert.Equal(t, int64(2), resp.AdvisedGroups)
	assert.Equal(t, int64(0), resp.PanelGroups)

	assert.Equal(t, http.StatusNotFound, doJSON(r, "GET", "/admin/users/999", nil).Code)
	assert.Equal(t, http.StatusBadRequest, doJSON(r, "GET", "/admin/users/abc", nil).Code)
}

func TestUpdateUser(t *testing.T) {
	db := setupTestDB(t)
	admin := createTestUser(t, db, "admin@test.com", "Admin", models.RoleAdmin)
	user := createTestUser(t, db, "user@test.com", "Sam", models.RoleStudent)
	r := setupTestRouter(db, admin.ID)
	path := fmt.Sprintf("/admin/users/%d", user.ID)

	name := "Samantha"
	w := doJSON(r, "PUT", path, UpdateUserRequest{FirstName: &name})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var resp UserResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Samantha", resp.FirstName)

	t.Run("role is immutable", func(t *testing.T) {
		role := "ADVISER"
		w := doJSON(r, "PUT", path, UpdateUserRequest{Role: &role})
		assert.Equal(t, http.StatusBadRequest, w.Code)

		same := "student"
		w = doJSON(r, "PUT", path, UpdateUserRequest{Role: &same})
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("cannot deactivate yourself", func(t *testing.T) {
		inactive := false
		w := doJSON(r, "PUT", fmt.Sprintf("/admin/users/%d", admin.ID), UpdateUserRequest{Active: &inactive})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestDeactivateUser(t *testing.T) {
	db := setupTestDB(t)
	admin := createTestUser(t, db, "admin@test.com", "Admin", models.RoleAdmin)
	user := createTestUser(t, db, "user@test.com", "Sam", models.RolePanel)
	r := setupTestRouter(db, admin.ID)

	w := doJSON(r, "DELETE", fmt.Sprintf("/admin/users/%d", user.ID), nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var resp UserResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Active)

	var stored models.User
	require.NoError(t, db.First(&stored, user.ID).Error, "deactivated users are kept")
	assert.False(t, stored.Active)

	assert.Equal(t, http.StatusBadRequest, doJSON(r, "DELETE", fmt.Sprintf("/admin/users/%d", admin.ID), nil).Code)
	assert.Equal(t, http.StatusNotFound, doJSON(r, "DELETE", "/admin/users/999", nil).Code)
}

func TestGetStats(t *testing.T) {
	db := setupTestDB(t)
	admin := createTestUser(t, db, "admin@test.com", "Admin", models.RoleAdmin)
	adviser := createTestUser(t, db, "adv@test.com", "Ada", models.RoleAdviser)
	createTestUser(t, db, "s1@test.com", "S1", models.RoleStudent)
	createTestUser(t, db, "s2@test.com", "S2", models.RoleStudent)

	group := models.Group{Name: "G1", AdviserID: &adviser.ID}
	require.NoError(t, db.Create(&group).Error)
	require.NoError(t, db.Model(&group).Update("status", models.GroupStatusApproved).Error)

	now := time.Now().UTC()
	past := models.DefenseSchedule{GroupID: group.ID, StartAt: now.Add(-48 * time.Hour), EndAt: now.Add(-47 * time.Hour)}
	future := models.DefenseSchedule{GroupID: group.ID, StartAt: now.Add(48 * time.Hour), EndAt: now.Add(49 * time.Hour)}
	require.NoError(t, db.Omit("Group", "CreatedBy").Create(&past).Error)
	require.NoError(t, db.Omit("Group", "CreatedBy").Create(&future).Error)

	r := setupTestRouter(db, admin.ID)
	w := doJSON(r, "GET", "/admin/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var stats StatsResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, int64(4), stats.TotalUsers)
	assert.Equal(t, int64(2), stats.UsersByRole["STUDENT"])
	assert.Equal(t, int64(1), stats.UsersByRole["ADMIN"])
	assert.Equal(t, int64(1), stats.TotalGroups)
	assert.Equal(t, int64(1), stats.GroupsByStatus["APPROVED"])
	assert.Equal(t, int64(2), stats.TotalSchedules)
	assert.Equal(t, int64(1), stats.UpcomingSchedules)
}
