package services

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
)

var orderExportHeaders = []string{
	"Reference", "Entry date", "Customer", "Device", "Serial number",
	"State", "Quote", "Parts waiting", "Technician", "Priority", "Warranty",
}

// ExportTile writes the orders of an opened tile to a workbook.
func (s *DashboardService) ExportTile(ctx context.Context, actor Actor, tile Tile) (*excelize.File, string, error) {
	orders, err := s.Orders(ctx, actor, tile)
	if err != nil {
		return nil, "", err
	}

	f := excelize.NewFile()
	sheet := "Repairs"
	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, "", err
	}

	header, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "bottom", Color: "000000", Style: 1},
		},
	})
	for i, h := range orderExportHeaders {
		col, _ := excelize.ColumnNumberToName(i + 1)
		cell := col + "1"
		f.SetCellValue(sheet, cell, h)
		f.SetCellStyle(sheet, cell, cell, header)
	}

	for i, o := range orders {
		row := i + 2
		customer := partnerName(o.Partner)
		tech := ""
		if o.TechnicianEmployee != nil {
			tech = o.TechnicianEmployee.Name
		}
		parts := "No"
		if o.PartsWaiting {
			parts = "Yes"
		}
		f.SetCellValue(sheet, fmt.Sprintf("A%d", row), o.Name)
		f.SetCellValue(sheet, fmt.Sprintf("B%d", row), o.EntryDate.Format("2006-01-02"))
		f.SetCellValue(sheet, fmt.Sprintf("C%d", row), customer)
		f.SetCellValue(sheet, fmt.Sprintf("D%d", row), o.DeviceLabel())
		f.SetCellValue(sheet, fmt.Sprintf("E%d", row), o.SerialNumber)
		f.SetCellValue(sheet, fmt.Sprintf("F%d", row), string(o.State))
		f.SetCellValue(sheet, fmt.Sprintf("G%d", row), string(o.QuoteState))
		f.SetCellValue(sheet, fmt.Sprintf("H%d", row), parts)
		f.SetCellValue(sheet, fmt.Sprintf("I%d", row), tech)
		f.SetCellValue(sheet, fmt.Sprintf("J%d", row), priorityLabel(o.Priority))
		f.SetCellValue(sheet, fmt.Sprintf("K%d", row), warrantyLabel(o.Warranty))
	}

	widths := []float64{14, 12, 24, 28, 18, 14, 12, 12, 18, 10, 10}
	for i, w := range widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		f.SetColWidth(sheet, col, col, w)
	}

	filename := fmt.Sprintf("repairs_%s_%s.xlsx", tile, s.Now().Format("20060102"))
	return f, filename, nil
}
