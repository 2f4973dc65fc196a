package groups

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/envisys/defensedesk/pkg/defensedesk/auth"
	"github.com/envisys/defensedesk/pkg/defensedesk/logging"
	"github.com/envisys/defensedesk/pkg/defensedesk/models"
	"github.com/envisys/defensedesk/pkg/defensedesk/scheduling"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Handler handles group-related requests
type Handler struct {
	db      *gorm.DB
	service *scheduling.Service
}

// NewHandler creates a new groups handler
func NewHandler(db *gorm.DB, service *scheduling.Service) *Handler {
	return &Handler{db: db, service: service}
}

// CreateGroupRequest represents the request to create a group
type CreateGroupRequest struct {
	Name      string `json:"name" binding:"required,max=128"`
	AdviserID *uint  `json:"adviser_id"`
	PanelIDs  []uint `json:"panel_ids"`
	MemberIDs []uint `json:"member_ids"`
}

// UpdateGroupRequest represents the request to update a group
type UpdateGroupRequest struct {
	Name   *string `json:"name" binding:"omitempty,max=128"`
	Status *string `json:"status"`
}

// UserSummary is the compact user shape embedded in group responses
type UserSummary struct {
	ID    uint   `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// GroupResponse represents a group in API responses
type GroupResponse struct {
	ID          uint          `json:"id"`
	Name        string        `json:"name"`
	Status      string        `json:"status"`
	Adviser     *UserSummary  `json:"adviser"`
	Panels      []UserSummary `json:"panels"`
	Members     []UserSummary `json:"members"`
	MemberCount int           `json:"member_count"`
}

func summarize(u models.User) UserSummary {
	return UserSummary{ID: u.ID, Email: u.Email, Name: u.FullName(), Role: string(u.Role)}
}

func toResponse(g models.Group) GroupResponse {
	resp := GroupResponse{
		ID:          g.ID,
		Name:        g.Name,
		Status:      string(g.Status),
		Panels:      make([]UserSummary, len(g.Panels)),
		Members:     make([]UserSummary, len(g.Members)),
		MemberCount: len(g.Members),
	}
	if g.Adviser != nil {
		adviser := summarize(*g.Adviser)
		resp.Adviser = &adviser
	}
	for i, p := range g.Panels {
		resp.Panels[i] = summarize(p)
	}
	for i, m := range g.Members {
		resp.Members[i] = summarize(m.User)
	}
	return resp
}

func (h *Handler) preloaded() *gorm.DB {
	return h.db.Preload("Adviser").Preload("Panels").Preload("Members.User")
}

func (h *Handler) load(id uint) (*models.Group, error) {
	var group models.Group
	if err := h.preloaded().First(&group, id).Error; err != nil {
		return nil, err
	}
	return &group, nil
}

func parseID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		return 0, false
	}
	return uint(id), true
}

// checkRoles verifies each id belongs to an active user holding role
func (h *Handler) checkRoles(ids []uint, role models.Role) error {
	if len(ids) == 0 {
		return nil
	}
	var users []models.User
	if err := h.db.Where("id IN ?", ids).Find(&users).Error; err != nil {
		return err
	}
	byID := make(map[uint]models.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	for _, id := range ids {
		u, ok := byID[id]
		if !ok {
			return &roleError{msg: "User " + strconv.FormatUint(uint64(id), 10) + " not found", status: http.StatusNotFound}
		}
		if u.Role != role {
			return &roleError{msg: u.Email + " is not a " + strings.ToLower(string(role)), status: http.StatusBadRequest}
		}
		if !u.Active {
			return &roleError{msg: u.Email + " is deactivated", status: http.StatusBadRequest}
		}
	}
	return nil
}

type roleError struct {
	msg    string
	status int
}

func (e *roleError) Error() string { return e.msg }

// writeError maps service and validation errors to responses
func writeError(c *gin.Context, err error, fallback string) {
	var re *roleError
	var ce *scheduling.ConflictError
	switch {
	case errors.As(err, &re):
		c.JSON(re.status, gin.H{"error": re.msg})
	case errors.As(err, &ce):
		c.JSON(http.StatusConflict, gin.H{
			"error":                 ce.Error(),
			"conflicting_schedules": ce.Conflicts,
		})
	case scheduling.IsNotFound(err), errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": notFoundMessage(err)})
	default:
		logging.FromContext(c).WithError(err).Error(fallback)
		c.JSON(http.StatusInternalServerError, gin.H{"error": fallback})
	}
}

func notFoundMessage(err error) string {
	var nf *scheduling.NotFoundError
	if errors.As(err, &nf) && nf.Resource != "group" {
		return strings.ToUpper(nf.Resource[:1]) + nf.Resource[1:] + " not found"
	}
	return "Group not found"
}

// List returns groups
// @Summary List groups
// @Description List thesis groups with adviser, panel and members
// @Tags groups
// @Produce json
// @Param status query string false "PENDING, APPROVED or REJECTED"
// @Param mine query bool false "Only groups the caller advises, sits on the panel of, or belongs to"
// @Success 200 {array} GroupResponse
// @Security BearerAuth
// @Router /groups [get]
func (h *Handler) List(c *gin.Context) {
	query := h.preloaded().Order("name ASC, id ASC")

	if status := c.Query("status"); status != "" {
		query = query.Where("status = ?", strings.ToUpper(status))
	}

	if c.Query("mine") == "true" {
		userID, _ := auth.GetUserID(c)
		query = query.Where(
			"adviser_id = ? OR id IN (?) OR id IN (?)",
			userID,
			h.db.Table("group_panels").Select("group_id").Where("user_id = ?", userID),
			h.db.Model(&models.GroupMembership{}).Select("group_id").Where("user_id = ?", userID),
		)
	}

	var groups []models.Group
	if err := query.Find(&groups).Error; err != nil {
		writeError(c, err, "Failed to fetch groups")
		return
	}

	resp := make([]GroupResponse, len(groups))
	for i, g := range groups {
		resp[i] = toResponse(g)
	}
	c.JSON(http.StatusOK, resp)
}

// Get returns a single group
// @Summary Get a group
// @Tags groups
// @Produce json
// @Param id path int true "Group ID"
// @Success 200 {object} GroupResponse
// @Failure 404 {object} map[string]string "Group not found"
// @Security BearerAuth
// @Router /groups/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid group ID"})
		return
	}

	group, err := h.load(id)
	if err != nil {
		writeError(c, err, "Failed to fetch group")
		return
	}
	c.JSON(http.StatusOK, toResponse(*group))
}

// Create creates a group. An adviser creating a group without naming an
// adviser becomes its adviser.
// @Summary Create a group
// @Tags groups
// @Accept json
// @Produce json
// @Param request body CreateGroupRequest true "Group details"
// @Success 201 {object} GroupResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 409 {object} map[string]string "Student already in a group"
// @Security BearerAuth
// @Router /groups [post]
func (h *Handler) Create(c *gin.Context) {
	var req CreateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.AdviserID == nil {
		if role, _ := auth.GetRole(c); role == models.RoleAdviser {
			userID, _ := auth.GetUserID(c)
			req.AdviserID = &userID
		}
	}

	if req.AdviserID != nil {
		if err := h.checkRoles([]uint{*req.AdviserID}, models.RoleAdviser); err != nil {
			writeError(c, err, "Failed to create group")
			return
		}
	}
	if err := h.checkRoles(req.PanelIDs, models.RolePanel); err != nil {
		writeError(c, err, "Failed to create group")
		return
	}
	if err := h.checkRoles(req.MemberIDs, models.RoleStudent); err != nil {
		writeError(c, err, "Failed to create group")
		return
	}

	var taken int64
	if len(req.MemberIDs) > 0 {
		h.db.Model(&models.GroupMembership{}).Where("user_id IN ?", req.MemberIDs).Count(&taken)
	}
	if taken > 0 {
		c.JSON(http.StatusConflict, gin.H{"error": "Student is already in a group"})
		return
	}

	group := models.Group{
		Name:      req.Name,
		Status:    models.GroupStatusPending,
		AdviserID: req.AdviserID,
	}
	err := h.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Panels", "Members", "Adviser").Create(&group).Error; err != nil {
			return err
		}
		if len(req.PanelIDs) > 0 {
			var panels []models.User
			if err := tx.Where("id IN ?", req.PanelIDs).Find(&panels).Error; err != nil {
				return err
			}
			if err := tx.Model(&group).Association("Panels").Append(panels); err != nil {
				return err
			}
		}
		for _, uid := range req.MemberIDs {
			if err := tx.Create(&models.GroupMembership{UserID: uid, GroupID: group.ID}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		writeError(c, err, "Failed to create group")
		return
	}

	logging.FromContext(c).WithFields(logrus.Fields{
		"group_id": group.ID,
		"name":     group.Name,
	}).Info("Group created")

	created, err := h.load(group.ID)
	if err != nil {
		writeError(c, err, "Failed to fetch group")
		return
	}
	c.JSON(http.StatusCreated, toResponse(*created))
}

// Update renames a group or changes its status. Only admins approve.
// @Summary Update a group
// @Tags groups
// @Accept json
// @Produce json
// @Param id path int true "Group ID"
// @Param request body UpdateGroupRequest true "Fields to change"
// @Success 200 {object} GroupResponse
// @Failure 400 {object} map[string]string "Validation error"
// @Failure 403 {object} map[string]string "Admin required for status"
// @Failure 404 {object} map[string]string "Group not found"
// @Security BearerAuth
// @Router /groups/{id} [put]
func (h *Handler) Update(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid group ID"})
		return
	}

	var req UpdateGroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	group, err := h.load(id)
	if err != nil {
		writeError(c, err, "Failed to fetch group")
		return
	}

	updates := make(map[string]interface{})
	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Name cannot be empty"})
			return
		}
		updates["name"] = *req.Name
	}
	if req.Status != nil {
		if role, _ := auth.GetRole(c); role != models.RoleAdmin {
			c.JSON(http.StatusForbidden, gin.H{"error": "Only admins can change group status"})
			return
		}
		status := models.GroupStatus(strings.ToUpper(*req.Status))
		if !status.Valid() {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status"})
			return
		}
		updates["status"] = status
	}

	if len(updates) > 0 {
		if err := h.db.Model(&models.Group{}).Where("id = ?", group.ID).Updates(updates).Error; err != nil {
			writeError(c, err, "Failed to update group")
			return
		}
	}

	updated, err := h.load(id)
	if err != nil {
		writeError(c, err, "Failed to fetch group")
		return
	}
	c.JSON(http.StatusOK, toResponse(*updated))
}

// Delete removes a group and its schedules
// @Summary Delete a group
// @Tags groups
// @Param id path int true "Group ID"
// @Success 204
// @Failure 404 {object} map[string]string "Group not found"
// @Security BearerAuth
// @Router /groups/{id} [delete]
func (h *Handler) Delete(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid group ID"})
		return
	}

	if err := h.service.DeleteGroup(c.Request.Context(), id); err != nil {
		writeError(c, err, "Failed to delete group")
		return
	}
	c.Status(http.StatusNoContent)
}

// RegisterRoutes registers group routes. Reads are open to any
// authenticated user; writes need an adviser or admin.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	write := auth.RequireRole(models.RoleAdviser, models.RoleAdmin)

	rg.GET("", h.List)
	rg.GET("/:id", h.Get)
	rg.POST("", write, h.Create)
	rg.PUT("/:id", write, h.Update)
	rg.DELETE("/:id", write, h.Delete)
}
