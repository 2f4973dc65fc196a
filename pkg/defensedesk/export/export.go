package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/envisys/defensedesk/pkg/defensedesk/models"
	"github.com/xuri/excelize/v2"
)

// SheetName is the worksheet holding the exported schedules
const SheetName = "Defenses"

// Header is the column order of CSV and XLSX exports
var Header = []string{"ID", "Group ID", "Group", "Start", "End", "Duration (min)", "Location"}

// Row is one exported defense schedule
type Row struct {
	ID        uint      `json:"id"`
	GroupID   uint      `json:"group"`
	GroupName string    `json:"group_name"`
	StartAt   time.Time `json:"start_at"`
	EndAt     time.Time `json:"end_at"`
	Minutes   int       `json:"duration_minutes"`
	Location  string    `json:"location"`
}

// Rows converts schedules (with groups loaded) into export rows
func Rows(schedules []models.DefenseSchedule) []Row {
	rows := make([]Row, len(schedules))
	for i, s := range schedules {
		rows[i] = Row{
			ID:        s.ID,
			GroupID:   s.GroupID,
			GroupName: s.Group.Name,
			StartAt:   s.StartAt.UTC(),
			EndAt:     s.EndAt.UTC(),
			Minutes:   int(s.EndAt.Sub(s.StartAt) / time.Minute),
			Location:  s.Location,
		}
	}
	return rows
}

func (r Row) fields(loc *time.Location) []string {
	return []string{
		strconv.FormatUint(uint64(r.ID), 10),
		strconv.FormatUint(uint64(r.GroupID), 10),
		r.GroupName,
		r.StartAt.In(loc).Format(time.RFC3339),
		r.EndAt.In(loc).Format(time.RFC3339),
		strconv.Itoa(r.Minutes),
		r.Location,
	}
}

// WriteCSV writes rows as CSV with a header line. Times are rendered in loc.
func WriteCSV(w io.Writer, rows []Row, loc *time.Location) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return err
	}
	for _, r := range rows {
		if err := cw.Write(r.fields(loc)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes rows to a single-sheet workbook
func WriteXLSX(w io.Writer, rows []Row, loc *time.Location) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return err
	}

	header := make([]interface{}, len(Header))
	for i, h := range Header {
		header[i] = h
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return err
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	lastCol, err := excelize.ColumnNumberToName(len(Header))
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(SheetName, "A1", lastCol+"1", bold); err != nil {
		return err
	}

	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []interface{}{
			r.ID,
			r.GroupID,
			r.GroupName,
			r.StartAt.In(loc).Format(time.RFC3339),
			r.EndAt.In(loc).Format(time.RFC3339),
			r.Minutes,
			r.Location,
		}
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return fmt.Errorf("row %d: %w", i+1, err)
		}
	}

	if err := f.SetColWidth(SheetName, "C", "E", 26); err != nil {
		return err
	}
	return f.Write(w)
}
