package dashboard

import (
	"bytes"
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/garyjia/invoicebot/internal/models"
)

const exportSheet = "Invoices"

var exportHeader = []interface{}{"ID", "Vendor", "Amount", "Currency", "DateCreated", "DueDate", "Status"}

// ExportXLSX renders invoices as a single-sheet workbook
func ExportXLSX(invoices []models.Invoice) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", exportSheet); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#E0E7FF"}},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}
	amountStyle, err := f.NewStyle(&excelize.Style{NumFmt: 4}) // #,##0.00
	if err != nil {
		return nil, fmt.Errorf("failed to create amount style: %w", err)
	}

	if err := f.SetSheetRow(exportSheet, "A1", &exportHeader); err != nil {
		return nil, fmt.Errorf("failed to write header: %w", err)
	}
	if err := f.SetCellStyle(exportSheet, "A1", "G1", headerStyle); err != nil {
		return nil, fmt.Errorf("failed to style header: %w", err)
	}

	for i, inv := range invoices {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := []interface{}{inv.ID, inv.Vendor, inv.Amount, inv.Currency, inv.DateCreated, inv.DueDate, string(inv.Status)}
		if err := f.SetSheetRow(exportSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	if len(invoices) > 0 {
		last := fmt.Sprintf("C%d", len(invoices)+1)
		if err := f.SetCellStyle(exportSheet, "C2", last, amountStyle); err != nil {
			return nil, fmt.Errorf("failed to style amounts: %w", err)
		}
	}
	if err := f.SetColWidth(exportSheet, "A", "B", 24); err != nil {
		return nil, err
	}
	if err := f.SetColWidth(exportSheet, "C", "G", 14); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}
