package schedules

import (
	"errors"
	"net/http"

	"github.com/envisys/defensedesk/pkg/defensedesk/logging"
	"github.com/envisys/defensedesk/pkg/defensedesk/scheduling"
	"github.com/gin-gonic/gin"
)

// WriteError maps scheduling errors to the API's error bodies:
// 400 time_validation, 400 conflicts, 404 and 403; anything else is a
// logged 500.
func WriteError(c *gin.Context, err error) {
	var tre *scheduling.TimeRangeError
	var ce *scheduling.ConflictError
	var nf *scheduling.NotFoundError

	switch {
	case errors.As(err, &tre):
		c.JSON(http.StatusBadRequest, gin.H{"time_validation": tre.Error()})
	case errors.As(err, &ce):
		c.JSON(http.StatusBadRequest, gin.H{
			"conflicts":             ce.Error(),
			"conflicting_schedules": ce.Conflicts,
		})
	case errors.As(err, &nf):
		c.JSON(http.StatusNotFound, gin.H{"error": nf.Error()})
	case errors.Is(err, scheduling.ErrForbidden):
		c.JSON(http.StatusForbidden, gin.H{"error": "Insufficient permissions"})
	default:
		logging.FromContext(c).WithError(err).Error("Schedule request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
