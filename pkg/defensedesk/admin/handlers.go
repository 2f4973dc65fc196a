package admin

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/envisys/defensedesk/pkg/defensedesk/auth"
	"github.com/envisys/defensedesk/pkg/defensedesk/logging"
	"github.com/envisys/defensedesk/pkg/defensedesk/models"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Handler handles admin requests
type Handler struct {
	db *gorm.DB
}

// NewHandler creates a new admin handler
func NewHandler(db *gorm.DB) *Handler {
	return &Handler{db: db}
}

// UserResponse represents user data in admin responses
type UserResponse struct {
	ID            uint   `json:"id"`
	Email         string `json:"email"`
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Role          string `json:"role"`
	Active        bool   `json:"active"`
	CreatedAt     string `json:"created_at"`
	AdvisedGroups int64  `json:"advised_groups"`
	PanelGroups   int64  `json:"panel_groups"`
}

// CreateUserRequest represents the request to create a user
type CreateUserRequest struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=8"`
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name"`
	Role      string `json:"role" binding:"required"`
}

// UpdateUserRequest represents the request to update a user. The role
// cannot be changed once the user exists.
type UpdateUserRequest struct {
	FirstName *string `json:"first_name"`
	LastName  *string `json:"last_name"`
	Active    *bool   `json:"active"`
	Role      *string `json:"role"`
}

// StatsResponse represents system statistics
type StatsResponse struct {
	TotalUsers        int64            `json:"total_users"`
	ActiveUsers       int64            `json:"active_users"`
	UsersByRole       map[string]int64 `json:"users_by_role"`
	TotalGroups       int64            `json:"total_groups"`
	GroupsByStatus    map[string]int64 `json:"groups_by_status"`
	TotalSchedules    int64            `json:"total_schedules"`
	UpcomingSchedules int64            `json:"upcoming_schedules"`
}

func (h *Handler) toResponse(user models.User) UserResponse {
	var advised, paneled int64
	h.db.Model(&models.Group{}).Where("adviser_id = ?", user.ID).Count(&advised)
	h.db.Table("group_panels").Where("user_id = ?", user.ID).Count(&paneled)

	return UserResponse{
		ID:            user.ID,
		Email:         user.Email,
		FirstName:     user.FirstName,
		LastName:      user.LastName,
		Role:          string(user.Role),
		Active:        user.Active,
		CreatedAt:     user.CreatedAt.UTC().Format(time.RFC3339),
		AdvisedGroups: advised,
		PanelGroups:   paneled,
	}
}

// ListUsers returns all users
// @Summary List users
// @Description List users, optionally filtered by role, activity or a search term
// @Tags admin
// @Produce json
// @Param q query string false "Search email or name"
// @Param role query string false "STUDENT, ADVISER, PANEL or ADMIN"
// @Param active query bool false "Only active or inactive users"
// @Success 200 {array} UserResponse
// @Security BearerAuth
// @Router /admin/users [get]
func (h *Handler) ListUsers(c *gin.Context) {
	var users []models.User

	query := h.db.Order("created_at DESC, id DESC")

	if search := c.Query("q"); search != "" {
		like := "%" + search + "%"
		query = query.Where("email LIKE ? OR first_name LIKE ? OR last_name LIKE ?", like, like, like)
	}

	if role := c.Query("role"); role != "" {
		query = query.Where("role = ?", strings.ToUpper(role))
	}

	if active := c.Query("active"); active != "" {
		b, err := strconv.ParseBool(active)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid active filter"})
			return
		}
		query = query.Where("active = ?", b)
	}

	if err := query.Find(&users).Error; err != nil {
		logging.FromContext(c).WithError(err).Error("Failed to fetch users")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to fetch users"})
		return
	}

	responses := make([]UserResponse, len(users))
	for i, user := range users {
		responses[i] = h.toResponse(user)
	}

	c.JSON(http.StatusOK, responses)
}

// CreateUser creates an account with a fixed role
// @Summary Create user
// @Tags admin
// @Accept json
// @Produce json
// @Param request body CreateUserRequest true "User details"
// @Success 201 {object} UserResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 409 {object} map[string]string "Email already registered"
// @Security BearerAuth
// @Router /admin/users [post]
func (h *Handler) CreateUser(c *gin.Context) {
	var req CreateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	role := models.Role(strings.ToUpper(req.Role))
	if !role.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid role"})
		return
	}

	email := strings.ToLower(req.Email)
	var existing models.User
	if err := h.db.Unscoped().Where("email = ?", email).First(&existing).Error; err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Email already registered"})
		return
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process password"})
		return
	}

	user := models.User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Role:         role,
		Active:       true,
	}
	if err := h.db.Create(&user).Error; err != nil {
		logging.FromContext(c).WithError(err).Error("Failed to create user")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create user"})
		return
	}

	logging.FromContext(c).WithFields(logrus.Fields{
		"user_id": user.ID,
		"role":    user.Role,
	}).Info("User created")
	c.JSON(http.StatusCreated, h.toResponse(user))
}

// GetUser returns a single user by ID
// @Summary Get user
// @Tags admin
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {object} UserResponse
// @Failure 404 {object} map[string]string "User not found"
// @Security BearerAuth
// @Router /admin/users/{id} [get]
func (h *Handler) GetUser(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	var user models.User
	if err := h.db.First(&user, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	c.JSON(http.StatusOK, h.toResponse(user))
}

// UpdateUser updates a user's name or activity
// @Summary Update user
// @Tags admin
// @Accept json
// @Produce json
// @Param id path int true "User ID"
// @Param request body UpdateUserRequest true "Fields to change"
// @Success 200 {object} UserResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 404 {object} map[string]string "User not found"
// @Security BearerAuth
// @Router /admin/users/{id} [put]
func (h *Handler) UpdateUser(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	var user models.User
	if err := h.db.First(&user, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	var req UpdateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.Role != nil && models.Role(strings.ToUpper(*req.Role)) != user.Role {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Role cannot be changed"})
		return
	}

	currentUserID, _ := auth.GetUserID(c)
	if uint(id) == currentUserID && req.Active != nil && !*req.Active {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot deactivate yourself"})
		return
	}

	updates := make(map[string]interface{})
	if req.FirstName != nil {
		updates["first_name"] = *req.FirstName
	}
	if req.LastName != nil {
		updates["last_name"] = *req.LastName
	}
	if req.Active != nil {
		updates["active"] = *req.Active
	}

	if len(updates) > 0 {
		if err := h.db.Model(&user).Updates(updates).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update user"})
			return
		}
	}

	h.db.First(&user, id)
	c.JSON(http.StatusOK, h.toResponse(user))
}

// DeactivateUser disables an account. Users are never hard-deleted so
// group assignments and schedule authorship stay intact.
// @Summary Deactivate user
// @Tags admin
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {object} UserResponse
// @Failure 400 {object} map[string]string "Cannot deactivate yourself"
// @Failure 404 {object} map[string]string "User not found"
// @Security BearerAuth
// @Router /admin/users/{id} [delete]
func (h *Handler) DeactivateUser(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	currentUserID, _ := auth.GetUserID(c)
	if uint(id) == currentUserID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Cannot deactivate yourself"})
		return
	}

	var user models.User
	if err := h.db.First(&user, id).Error; err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}

	if err := h.db.Model(&user).Update("active", false).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to deactivate user"})
		return
	}
	user.Active = false

	logging.FromContext(c).WithField("user_id", user.ID).Info("User deactivated")
	c.JSON(http.StatusOK, h.toResponse(user))
}

// GetStats returns system-wide statistics
// @Summary System statistics
// @Tags admin
// @Produce json
// @Success 200 {object} StatsResponse
// @Security BearerAuth
// @Router /admin/stats [get]
func (h *Handler) GetStats(c *gin.Context) {
	stats := StatsResponse{
		UsersByRole:    make(map[string]int64),
		GroupsByStatus: make(map[string]int64),
	}

	h.db.Model(&models.User{}).Count(&stats.TotalUsers)
	h.db.Model(&models.User{}).Where("active = ?", true).Count(&stats.ActiveUsers)
	h.db.Model(&models.Group{}).Count(&stats.TotalGroups)
	h.db.Model(&models.DefenseSchedule{}).Count(&stats.TotalSchedules)
	h.db.Model(&models.DefenseSchedule{}).Where("start_at >= ?", time.Now().UTC()).Count(&stats.UpcomingSchedules)

	for _, role := range []models.Role{models.RoleStudent, models.RoleAdviser, models.RolePanel, models.RoleAdmin} {
		var n int64
		h.db.Model(&models.User{}).Where("role = ?", role).Count(&n)
		stats.UsersByRole[string(role)] = n
	}
	for _, status := range []models.GroupStatus{models.GroupStatusPending, models.GroupStatusApproved, models.GroupStatusRejected} {
		var n int64
		h.db.Model(&models.Group{}).Where("status = ?", status).Count(&n)
		stats.GroupsByStatus[string(status)] = n
	}

	c.JSON(http.StatusOK, stats)
}

// RegisterRoutes registers admin routes on the given router group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/stats", h.GetStats)
	rg.GET("/users", h.ListUsers)
	rg.POST("/users", h.CreateUser)
	rg.GET("/users/:id", h.GetUser)
	rg.PUT("/users/:id", h.UpdateUser)
	rg.DELETE("/users/:id", h.DeactivateUser)
}
