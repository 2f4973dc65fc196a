package schedules

import (
	"net/http"
	"strconv"
	"time"

	"github.com/envisys/defensedesk/pkg/defensedesk/auth"
	"github.com/envisys/defensedesk/pkg/defensedesk/models"
	"github.com/envisys/defensedesk/pkg/defensedesk/scheduling"
	"github.com/gin-gonic/gin"
)

// Handler serves the defense schedule API
type Handler struct {
	service *scheduling.Service
	loc     *time.Location
}

// NewHandler creates a schedules handler. loc interprets date-only
// query parameters; nil means UTC.
func NewHandler(service *scheduling.Service, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{service: service, loc: loc}
}

// CreateScheduleRequest represents the request to book a defense
type CreateScheduleRequest struct {
	Group    uint      `json:"group" binding:"required"`
	StartAt  time.Time `json:"start_at" binding:"required"`
	EndAt    time.Time `json:"end_at" binding:"required"`
	Location string    `json:"location" binding:"max=256"`
}

// UpdateScheduleRequest represents a partial update; omitted fields keep
// their stored value
type UpdateScheduleRequest struct {
	Group    *uint      `json:"group"`
	StartAt  *time.Time `json:"start_at"`
	EndAt    *time.Time `json:"end_at"`
	Location *string    `json:"location" binding:"omitempty,max=256"`
}

// AvailabilityRequest describes a hypothetical booking
type AvailabilityRequest struct {
	Group     uint      `json:"group" binding:"required"`
	StartAt   time.Time `json:"start_at" binding:"required"`
	EndAt     time.Time `json:"end_at" binding:"required"`
	ExcludeID uint      `json:"exclude_id"`
}

// ScheduleResponse represents a defense schedule in API responses
type ScheduleResponse struct {
	ID        uint      `json:"id"`
	Group     uint      `json:"group"`
	GroupName string    `json:"group_name"`
	StartAt   time.Time `json:"start_at"`
	EndAt     time.Time `json:"end_at"`
	Location  string    `json:"location"`
	CreatedBy *uint     `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// AvailabilityResponse is returned by check-availability
type AvailabilityResponse struct {
	Available bool                  `json:"available"`
	Conflicts []scheduling.Conflict `json:"conflicts"`
	Message   string                `json:"message"`
}

// ValidateUpdateResponse is returned by validate-update
type ValidateUpdateResponse struct {
	ValidUpdate bool                  `json:"valid_update"`
	Conflicts   []scheduling.Conflict `json:"conflicts"`
	Message     string                `json:"message"`
}

// UserConflictEntry is one of the caller's schedules with its clashes
type UserConflictEntry struct {
	Schedule  ScheduleResponse      `json:"schedule"`
	Conflicts []scheduling.Conflict `json:"conflicts"`
}

// UserConflictsResponse is returned by user-conflicts
type UserConflictsResponse struct {
	HasConflicts bool                `json:"has_conflicts"`
	Conflicts    []UserConflictEntry `json:"conflicts"`
}

// NewScheduleResponse converts a schedule with its group loaded
func NewScheduleResponse(s models.DefenseSchedule) ScheduleResponse {
	return ScheduleResponse{
		ID:        s.ID,
		Group:     s.GroupID,
		GroupName: s.Group.Name,
		StartAt:   s.StartAt.UTC(),
		EndAt:     s.EndAt.UTC(),
		Location:  s.Location,
		CreatedBy: s.CreatedByID,
		CreatedAt: s.CreatedAt.UTC(),
	}
}

func availabilityMessage(a *scheduling.Availability) string {
	if a.Available {
		return "Time slot is available"
	}
	return (&scheduling.ConflictError{Conflicts: a.Conflicts}).Error()
}

func parseID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid schedule ID"})
		return 0, false
	}
	return uint(id), true
}

// ListFilter reads group_id, start_date and end_date. The bounds are
// independent: start_at >= start_date and end_at <= end_date.
func (h *Handler) ListFilter(c *gin.Context) (scheduling.ListFilter, bool) {
	groupID, err := OptionalID(c, "group_id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return scheduling.ListFilter{}, false
	}
	from, to, err := DateRange(c, h.loc)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return scheduling.ListFilter{}, false
	}
	return scheduling.ListFilter{GroupID: groupID, StartFrom: from, EndTo: to}, true
}

// List returns schedules
// @Summary List defense schedules
// @Description Ascending by start time. start_date and end_date bound start_at and end_at independently.
// @Tags schedules
// @Produce json
// @Param group_id query int false "Group ID"
// @Param start_date query string false "YYYY-MM-DD or RFC 3339"
// @Param end_date query string false "YYYY-MM-DD (whole day) or RFC 3339"
// @Success 200 {array} ScheduleResponse
// @Security BearerAuth
// @Router /schedules [get]
func (h *Handler) List(c *gin.Context) {
	filter, ok := h.ListFilter(c)
	if !ok {
		return
	}

	list, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		WriteError(c, err)
		return
	}

	resp := make([]ScheduleResponse, len(list))
	for i, s := range list {
		resp[i] = NewScheduleResponse(s)
	}
	c.JSON(http.StatusOK, resp)
}

// Get returns one schedule
// @Summary Get a defense schedule
// @Tags schedules
// @Produce json
// @Param id path int true "Schedule ID"
// @Success 200 {object} ScheduleResponse
// @Failure 404 {object} map[string]string "Schedule not found"
// @Security BearerAuth
// @Router /schedules/{id} [get]
func (h *Handler) Get(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	s, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewScheduleResponse(*s))
}

// Create books a defense
// @Summary Create a defense schedule
// @Description Fails with time_validation when end_at <= start_at, or with conflicts when the group's adviser or a panel member is already booked
// @Tags schedules
// @Accept json
// @Produce json
// @Param request body CreateScheduleRequest true "Schedule"
// @Success 201 {object} ScheduleResponse
// @Failure 400 {object} map[string]interface{} "time_validation or conflicts"
// @Failure 403 {object} map[string]string "Insufficient permissions"
// @Failure 404 {object} map[string]string "Group not found"
// @Security BearerAuth
// @Router /schedules [post]
func (h *Handler) Create(c *gin.Context) {
	var req CreateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	in := scheduling.CreateInput{
		GroupID:  req.Group,
		StartAt:  req.StartAt,
		EndAt:    req.EndAt,
		Location: req.Location,
	}
	if userID, ok := auth.GetUserID(c); ok {
		in.CreatedByID = &userID
	}

	s, err := h.service.Create(c.Request.Context(), in)
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusCreated, NewScheduleResponse(*s))
}

// Update changes a schedule, re-validating it against everything but itself
// @Summary Update a defense schedule
// @Tags schedules
// @Accept json
// @Produce json
// @Param id path int true "Schedule ID"
// @Param request body UpdateScheduleRequest true "Fields to change"
// @Success 200 {object} ScheduleResponse
// @Failure 400 {object} map[string]interface{} "time_validation or conflicts"
// @Failure 403 {object} map[string]string "Insufficient permissions"
// @Failure 404 {object} map[string]string "Schedule or group not found"
// @Security BearerAuth
// @Router /schedules/{id} [put]
func (h *Handler) Update(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req UpdateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	s, err := h.service.Update(c.Request.Context(), id, toUpdateInput(req))
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, NewScheduleResponse(*s))
}

func toUpdateInput(req UpdateScheduleRequest) scheduling.UpdateInput {
	return scheduling.UpdateInput{
		GroupID:  req.Group,
		StartAt:  req.StartAt,
		EndAt:    req.EndAt,
		Location: req.Location,
	}
}

// Delete removes a schedule
// @Summary Delete a defense schedule
// @Tags schedules
// @Param id path int true "Schedule ID"
// @Success 204
// @Failure 403 {object} map[string]string "Insufficient permissions"
// @Failure 404 {object} map[string]string "Schedule not found"
// @Security BearerAuth
// @Router /schedules/{id} [delete]
func (h *Handler) Delete(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), id); err != nil {
		WriteError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// CheckAvailability previews conflicts without booking
// @Summary Check availability
// @Description Dry run of create; nothing is saved
// @Tags schedules
// @Accept json
// @Produce json
// @Param request body AvailabilityRequest true "Hypothetical schedule"
// @Success 200 {object} AvailabilityResponse
// @Failure 400 {object} map[string]string "time_validation"
// @Failure 404 {object} map[string]string "Group not found"
// @Security BearerAuth
// @Router /schedules/check-availability [post]
func (h *Handler) CheckAvailability(c *gin.Context) {
	var req AvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	avail, err := h.service.CheckAvailability(c.Request.Context(), scheduling.AvailabilityInput{
		GroupID:   req.Group,
		StartAt:   req.StartAt,
		EndAt:     req.EndAt,
		ExcludeID: req.ExcludeID,
	})
	if err != nil {
		WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, AvailabilityResponse{
		Available: avail.Available,
		Conflicts: avail.Conflicts,
		Message:   availabilityMessage(avail),
	})
}

// ValidateUpdate previews an update without saving it
// @Summary Validate an update
// @Tags schedules
// @Accept json
// @Produce json
// @Param id path int true "Schedule ID"
// @Param request body UpdateScheduleRequest true "Pending values"
// @Success 200 {object} ValidateUpdateResponse
// @Failure 400 {object} map[string]string "time_validation"
// @Failure 404 {object} map[string]string "Schedule or group not found"
// @Security BearerAuth
// @Router /schedules/{id}/validate-update [post]
func (h *Handler) ValidateUpdate(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req UpdateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	avail, err := h.service.ValidateUpdate(c.Request.Context(), id, toUpdateInput(req))
	if err != nil {
		WriteError(c, err)
		return
	}

	c.JSON(http.StatusOK, ValidateUpdateResponse{
		ValidUpdate: avail.Available,
		Conflicts:   avail.Conflicts,
		Message:     availabilityMessage(avail),
	})
}

// UserConflicts lists clashes among the caller's own commitments as
// adviser or panel member. Admins may pass user_id to inspect someone else.
// @Summary Current user's conflicts
// @Tags schedules
// @Produce json
// @Param start_date query string false "YYYY-MM-DD or RFC 3339"
// @Param end_date query string false "YYYY-MM-DD (whole day) or RFC 3339"
// @Param user_id query int false "Admin only"
// @Success 200 {object} UserConflictsResponse
// @Security BearerAuth
// @Router /schedules/user-conflicts [get]
func (h *Handler) UserConflicts(c *gin.Context) {
	userID, _ := auth.GetUserID(c)

	other, err := OptionalID(c, "user_id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if other != nil && *other != userID {
		if role, _ := auth.GetRole(c); role != models.RoleAdmin {
			WriteError(c, scheduling.ErrForbidden)
			return
		}
		userID = *other
	}

	from, to, err := DateRange(c, h.loc)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	found, err := h.service.UserConflicts(c.Request.Context(), userID, from, to)
	if err != nil {
		WriteError(c, err)
		return
	}

	entries := make([]UserConflictEntry, len(found))
	for i, uc := range found {
		entries[i] = UserConflictEntry{
			Schedule:  NewScheduleResponse(uc.Schedule),
			Conflicts: uc.Conflicts,
		}
	}
	c.JSON(http.StatusOK, UserConflictsResponse{
		HasConflicts: len(entries) > 0,
		Conflicts:    entries,
	})
}

// RegisterRoutes registers schedule routes on an authenticated group.
// Mutations need an adviser, panel member or admin.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	write := auth.RequireRole(models.RoleAdviser, models.RolePanel, models.RoleAdmin)

	rg.GET("", h.List)
	rg.POST("", write, h.Create)
	rg.POST("/check-availability", h.CheckAvailability)
	rg.GET("/user-conflicts", h.UserConflicts)
	rg.GET("/:id", h.Get)
	rg.PUT("/:id", write, h.Update)
	rg.PATCH("/:id", write, h.Update)
	rg.DELETE("/:id", write, h.Delete)
	rg.POST("/:id/validate-update", h.ValidateUpdate)
}
