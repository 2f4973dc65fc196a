package groups

import (
	"net/http"

	"github.com/envisys/defensedesk/pkg/defensedesk/auth"
	"github.com/envisys/defensedesk/pkg/defensedesk/logging"
	"github.com/envisys/defensedesk/pkg/defensedesk/models"
	"github.com/envisys/defensedesk/pkg/defensedesk/scheduling"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AddMemberRequest represents a request to add a student to a group
type AddMemberRequest struct {
	UserID uint `json:"user_id" binding:"required"`
}

// SetAdviserRequest assigns or clears (null) the adviser
type SetAdviserRequest struct {
	AdviserID *uint `json:"adviser_id"`
}

// SetPanelRequest replaces the panel
type SetPanelRequest struct {
	PanelIDs []uint `json:"panel_ids"`
}

// AddMember adds a student to a group
// @Summary Add a student
// @Tags groups
// @Accept json
// @Produce json
// @Param id path int true "Group ID"
// @Param request body AddMemberRequest true "Student"
// @Success 201 {object} GroupResponse
// @Failure 400 {object} map[string]string "Not a student"
// @Failure 404 {object} map[string]string "Group or user not found"
// @Failure 409 {object} map[string]string "Student already in a group"
// @Security BearerAuth
// @Router /groups/{id}/members [post]
func (h *Handler) AddMember(c *gin.Context) {
	groupID, ok := parseID(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid group ID"})
		return
	}

	var req AddMemberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if _, err := h.load(groupID); err != nil {
		writeError(c, err, "Failed to fetch group")
		return
	}
	if err := h.checkRoles([]uint{req.UserID}, models.RoleStudent); err != nil {
		writeError(c, err, "Failed to add member")
		return
	}

	var existing models.GroupMembership
	if err := h.db.Where("user_id = ?", req.UserID).First(&existing).Error; err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "Student is already in a group"})
		return
	}

	if err := h.db.Create(&models.GroupMembership{UserID: req.UserID, GroupID: groupID}).Error; err != nil {
		writeError(c, err, "Failed to add member")
		return
	}

	logging.FromContext(c).WithFields(logrus.Fields{
		"group_id": groupID,
		"user_id":  req.UserID,
	}).Info("Student added to group")

	group, err := h.load(groupID)
	if err != nil {
		writeError(c, err, "Failed to fetch group")
		return
	}
	c.JSON(http.StatusCreated, toResponse(*group))
}

// RemoveMember removes a student from a group
// @Summary Remove a student
// @Tags groups
// @Param id path int true "Group ID"
// @Param userId path int true "User ID"
// @Success 204
// @Failure 404 {object} map[string]string "Member not found"
// @Security BearerAuth
// @Router /groups/{id}/members/{userId} [delete]
func (h *Handler) RemoveMember(c *gin.Context) {
	groupID, ok := parseID(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid group ID"})
		return
	}
	userID, ok := parseID(c, "userId")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}

	res := h.db.Where("group_id = ? AND user_id = ?", groupID, userID).Delete(&models.GroupMembership{})
	if res.Error != nil {
		writeError(c, res.Error, "Failed to remove member")
		return
	}
	if res.RowsAffected == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "Member not found"})
		return
	}
	c.Status(http.StatusNoContent)
}

// SetAdviser assigns the group's adviser. Existing schedules are
// re-checked against the new adviser's other defenses.
// @Summary Assign adviser
// @Tags groups
// @Accept json
// @Produce json
// @Param id path int true "Group ID"
// @Param request body SetAdviserRequest true "Adviser, or null to clear"
// @Success 200 {object} GroupResponse
// @Failure 400 {object} map[string]string "Not an adviser"
// @Failure 409 {object} map[string]interface{} "Existing schedules would clash"
// @Security BearerAuth
// @Router /groups/{id}/adviser [put]
func (h *Handler) SetAdviser(c *gin.Context) {
	groupID, ok := parseID(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid group ID"})
		return
	}

	var req SetAdviserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.AdviserID != nil {
		if err := h.checkRoles([]uint{*req.AdviserID}, models.RoleAdviser); err != nil {
			writeError(c, err, "Failed to assign adviser")
			return
		}
	}

	h.reassign(c, groupID, scheduling.ResourceChange{SetAdviser: true, AdviserID: req.AdviserID})
}

// SetPanel replaces the group's panel
// @Summary Assign panel
// @Tags groups
// @Accept json
// @Produce json
// @Param id path int true "Group ID"
// @Param request body SetPanelRequest true "Panel member ids"
// @Success 200 {object} GroupResponse
// @Failure 400 {object} map[string]string "Not a panel member"
// @Failure 409 {object} map[string]interface{} "Existing schedules would clash"
// @Security BearerAuth
// @Router /groups/{id}/panel [put]
func (h *Handler) SetPanel(c *gin.Context) {
	groupID, ok := parseID(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid group ID"})
		return
	}

	var req SetPanelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.checkRoles(req.PanelIDs, models.RolePanel); err != nil {
		writeError(c, err, "Failed to assign panel")
		return
	}

	h.reassign(c, groupID, scheduling.ResourceChange{SetPanel: true, PanelIDs: req.PanelIDs})
}

func (h *Handler) reassign(c *gin.Context, groupID uint, change scheduling.ResourceChange) {
	if _, err := h.service.ReassignResources(c.Request.Context(), groupID, change); err != nil {
		writeError(c, err, "Failed to update group resources")
		return
	}

	group, err := h.load(groupID)
	if err != nil {
		writeError(c, err, "Failed to fetch group")
		return
	}
	c.JSON(http.StatusOK, toResponse(*group))
}

// RegisterMemberRoutes registers member and resource routes
func (h *Handler) RegisterMemberRoutes(rg *gin.RouterGroup) {
	write := auth.RequireRole(models.RoleAdviser, models.RoleAdmin)

	rg.POST("/:id/members", write, h.AddMember)
	rg.DELETE("/:id/members/:userId", write, h.RemoveMember)
	rg.PUT("/:id/adviser", write, h.SetAdviser)
	rg.PUT("/:id/panel", write, h.SetPanel)
}
