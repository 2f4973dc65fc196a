package export

import (
	"bytes"
	"net/http"
	"strings"
	"time"

	"github.com/envisys/defensedesk/pkg/defensedesk/scheduling"
	"github.com/envisys/defensedesk/pkg/defensedesk/schedules"
	"github.com/gin-gonic/gin"
)

const (
	contentTypeCSV  = "text/csv; charset=utf-8"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// Handler handles schedule exports
type Handler struct {
	service *scheduling.Service
	loc     *time.Location
}

// NewHandler creates a new export handler. loc is used for date-only
// filters and for rendering times in CSV and XLSX.
func NewHandler(service *scheduling.Service, loc *time.Location) *Handler {
	if loc == nil {
		loc = time.UTC
	}
	return &Handler{service: service, loc: loc}
}

// Export writes the filtered schedules as JSON, CSV or XLSX
// @Summary Export defense schedules
// @Description Same filters as the list endpoint
// @Tags schedules
// @Produce json
// @Produce text/csv
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param format query string false "json (default), csv or xlsx"
// @Param group_id query int false "Group ID"
// @Param start_date query string false "YYYY-MM-DD or RFC 3339"
// @Param end_date query string false "YYYY-MM-DD (whole day) or RFC 3339"
// @Param download query bool false "Send as attachment"
// @Success 200 {array} Row
// @Failure 400 {object} map[string]string "Invalid filter or format"
// @Security BearerAuth
// @Router /schedules/export [get]
func (h *Handler) Export(c *gin.Context) {
	format := strings.ToLower(c.DefaultQuery("format", "json"))
	if format != "json" && format != "csv" && format != "xlsx" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unsupported format; use json, csv or xlsx"})
		return
	}

	groupID, err := schedules.OptionalID(c, "group_id")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	from, to, err := schedules.DateRange(c, h.loc)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	list, err := h.service.List(c.Request.Context(), scheduling.ListFilter{GroupID: groupID, StartFrom: from, EndTo: to})
	if err != nil {
		schedules.WriteError(c, err)
		return
	}
	rows := Rows(list)

	if c.Query("download") == "true" {
		c.Header("Content-Disposition", "attachment; filename=defense-schedules."+format)
	}

	switch format {
	case "csv":
		var buf bytes.Buffer
		if err := WriteCSV(&buf, rows, h.loc); err != nil {
			schedules.WriteError(c, err)
			return
		}
		c.Data(http.StatusOK, contentTypeCSV, buf.Bytes())
	case "xlsx":
		var buf bytes.Buffer
		if err := WriteXLSX(&buf, rows, h.loc); err != nil {
			schedules.WriteError(c, err)
			return
		}
		c.Data(http.StatusOK, contentTypeXLSX, buf.Bytes())
	default:
		c.JSON(http.StatusOK, rows)
	}
}

// RegisterRoutes registers export routes on the schedules group
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/export", h.Export)
}
