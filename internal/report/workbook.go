package report

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/your-org/attendsense/internal/models"
)

const (
	RosterSheet = "Roster"
	EventsSheet = "Events"

	ContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	timeLayout  = "2006-01-02 15:04:05"
)

var (
	rosterHeader = []string{"Person ID", "Name", "Present", "First Seen", "Last Seen"}
	rosterWidths = []float64{20, 28, 10, 22, 22}
	eventsHeader = []string{"Event ID", "Person ID", "Name", "Event Time", "Confidence", "Camera", "Received At"}
	eventsWidths = []float64{10, 20, 28, 22, 12, 18, 22}
)

// BuildWorkbook renders the roster and the audit events as an XLSX file.
// Times are written in UTC.
func BuildWorkbook(roster []models.PresenceStatus, events []models.Sighting) ([]byte, error) {
	f := excelize.NewFile()

	rosterIdx, err := f.NewSheet(RosterSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create sheet %s: %w", RosterSheet, err)
	}
	if _, err := f.NewSheet(EventsSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("create sheet %s: %w", EventsSheet, err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		f.Close()
		return nil, fmt.Errorf("delete default sheet: %w", err)
	}
	f.SetActiveSheet(rosterIdx)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("create header style: %w", err)
	}

	rosterRows := make([][]interface{}, 0, len(roster))
	for _, st := range roster {
		present := "No"
		if st.Present {
			present = "Yes"
		}
		rosterRows = append(rosterRows, []interface{}{
			st.PersonID, st.Name, present, formatTime(st.FirstSeen), formatTime(st.LastSeen),
		})
	}
	if err := writeSheet(f, RosterSheet, rosterHeader, rosterWidths, rosterRows, headerStyle); err != nil {
		f.Close()
		return nil, err
	}

	eventRows := make([][]interface{}, 0, len(events))
	for _, ev := range events {
		eventRows = append(eventRows, []interface{}{
			ev.ID, ev.PersonID, ev.Name, formatTime(ev.EventTimestamp), ev.Confidence, ev.CameraID, formatTime(ev.ReceivedAt),
		})
	}
	if err := writeSheet(f, EventsSheet, eventsHeader, eventsWidths, eventRows, headerStyle); err != nil {
		f.Close()
		return nil, err
	}

	// File must stay open while writing.
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeSheet(f *excelize.File, sheet string, header []string, widths []float64, rows [][]interface{}, headerStyle int) error {
	for col, title := range header {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("header cell: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, title); err != nil {
			return fmt.Errorf("set header %s!%s: %w", sheet, cell, err)
		}
		if err := f.SetCellStyle(sheet, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("style header %s!%s: %w", sheet, cell, err)
		}
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return fmt.Errorf("column name: %w", err)
		}
		if err := f.SetColWidth(sheet, name, name, widths[col]); err != nil {
			return fmt.Errorf("set width %s!%s: %w", sheet, name, err)
		}
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fmt.Errorf("row cell: %w", err)
		}
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			return fmt.Errorf("write %s row %d: %w", sheet, i+2, err)
		}
	}

	if err := f.SetPanes(sheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("freeze %s header: %w", sheet, err)
	}
	return nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}
