package service

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ammar0101/campus-security-system/internal/domain/entity"
	"github.com/xuri/excelize/v2"
)

const exportSheet = "Incidents"

// ExportRow est une ligne d'export ; le déclarant des incidents anonymes
// n'y figure pas.
type ExportRow struct {
	ID           string     `json:"id"`
	Type         string     `json:"type"`
	Status       string     `json:"status"`
	Priority     string     `json:"priority"`
	Location     string     `json:"location"`
	Reporter     string     `json:"reporter"`
	AssignedTo   string     `json:"assignedTo,omitempty"`
	ResponseTime *float64   `json:"responseTime,omitempty"`
	CreatedAt    time.Time  `json:"createdAt"`
	ResolvedAt   *time.Time `json:"resolvedAt,omitempty"`
}

var exportHeaders = []string{
	"Incident ID", "Type", "Status", "Priority", "Location",
	"Reporter", "Assigned To", "Response Time (min)", "Created At", "Resolved At",
}

var exportWidths = []float64{32, 20, 14, 10, 36, 24, 32, 20, 22, 22}

func exportRows(items []entity.Incident) []ExportRow {
	rows := make([]ExportRow, 0, len(items))
	for _, inc := range items {
		reporter := "Anonymous"
		if !inc.IsAnonymous {
			reporter = inc.ReporterName
		}
		rows = append(rows, ExportRow{
			ID:           inc.ID,
			Type:         string(inc.Type),
			Status:       string(inc.Status),
			Priority:     string(inc.Priority),
			Location:     inc.LocationLabel,
			Reporter:     reporter,
			AssignedTo:   inc.AssignedTo,
			ResponseTime: inc.ResponseTime,
			CreatedAt:    inc.CreatedAt,
			ResolvedAt:   inc.ResolvedAt,
		})
	}
	return rows
}

func incidentsJSON(rows []ExportRow) ([]byte, error) {
	data, err := json.MarshalIndent(map[string]interface{}{"incidents": rows, "count": len(rows)}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode export: %w", err)
	}
	return data, nil
}

func incidentsWorkbook(rows []ExportRow) ([]byte, error) {
	f := excelize.NewFile()
	// WriteTo exige un fichier encore ouvert
	fail := func(msg string, err error) ([]byte, error) {
		f.Close()
		return nil, fmt.Errorf("%s: %w", msg, err)
	}

	index, err := f.NewSheet(exportSheet)
	if err != nil {
		return fail("failed to create sheet", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#FDE9E7"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fail("failed to create header style", err)
	}

	for col, header := range exportHeaders {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fail("failed to convert coordinates", err)
		}
		if err := f.SetCellValue(exportSheet, cell, header); err != nil {
			return fail("failed to set header cell", err)
		}
		if err := f.SetCellStyle(exportSheet, cell, cell, headerStyle); err != nil {
			return fail("failed to set header style", err)
		}
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return fail("failed to convert column number", err)
		}
		if err := f.SetColWidth(exportSheet, name, name, exportWidths[col]); err != nil {
			return fail("failed to set column width", err)
		}
	}

	for i, r := range rows {
		values := []interface{}{
			r.ID, r.Type, r.Status, r.Priority, r.Location, r.Reporter, r.AssignedTo,
			nil, r.CreatedAt.Format(time.RFC3339), nil,
		}
		if r.ResponseTime != nil {
			values[7] = *r.ResponseTime
		}
		if r.ResolvedAt != nil {
			values[9] = r.ResolvedAt.Format(time.RFC3339)
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return fail("failed to convert coordinates", err)
		}
		if err := f.SetSheetRow(exportSheet, cell, &values); err != nil {
			return fail(fmt.Sprintf("failed to write row %d", i+2), err)
		}
	}

	if err := f.SetPanes(exportSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fail("failed to freeze panes", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return fail("failed to write workbook", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close workbook: %w", err)
	}
	return buf.Bytes(), nil
}
