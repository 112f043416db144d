// Package export renders combined requests as spreadsheets.
package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/procurement-tracker/internal/application/port"
	"github.com/garyjia/procurement-tracker/internal/domain/entity"
)

const (
	// DefaultSheetName is used when no lot sheet name is configured
	DefaultSheetName = "Lots"
	itemsSheetName   = "Items"

	// lot table starts below the summary block
	lotHeaderRow = 6
)

var lotHeaders = []string{"Lot", "Reference", "Title", "Department", "Status", "Items", "Total", "Currency"}

var itemHeaders = []string{"Lot", "Line", "Description", "Quantity", "Unit Price", "Total"}

// LotScheduleWriter implements port.LotExporter with excelize
type LotScheduleWriter struct {
	sheetName string
	logger    *zap.Logger
}

// NewLotScheduleWriter creates a writer; empty sheetName uses DefaultSheetName
func NewLotScheduleWriter(sheetName string, logger *zap.Logger) *LotScheduleWriter {
	if sheetName == "" || sheetName == itemsSheetName {
		sheetName = DefaultSheetName
	}
	return &LotScheduleWriter{sheetName: sheetName, logger: logger}
}

// WriteLots writes a workbook with a lot summary sheet and an item sheet
func (lw *LotScheduleWriter) WriteLots(w io.Writer, view *entity.CombinedView) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", lw.sheetName); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}
	if _, err := f.NewSheet(itemsSheetName); err != nil {
		return fmt.Errorf("failed to create items sheet: %w", err)
	}

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create style: %w", err)
	}

	sheet := lw.sheetName
	lw.setCell(f, sheet, "A1", "Combined Request")
	lw.setCell(f, sheet, "B1", view.Reference)
	lw.setCell(f, sheet, "A2", "Title")
	lw.setCell(f, sheet, "B2", view.Title)
	lw.setCell(f, sheet, "A3", "Created")
	lw.setCell(f, sheet, "B3", view.CreatedAt.Format("2006-01-02 15:04"))
	lw.setCell(f, sheet, "A4", "Lots")
	lw.setCell(f, sheet, "B4", view.LotsCount)
	_ = f.SetCellStyle(sheet, "A1", "A4", bold)

	lw.writeRow(f, sheet, lotHeaderRow, toAny(lotHeaders))
	_ = f.SetRowStyle(sheet, lotHeaderRow, lotHeaderRow, bold)

	lw.writeRow(f, itemsSheetName, 1, toAny(itemHeaders))
	_ = f.SetRowStyle(itemsSheetName, 1, 1, bold)

	row := lotHeaderRow + 1
	itemRow := 2
	for _, lot := range view.Lots {
		lotNumber := 0
		if lot.LotNumber != nil {
			lotNumber = *lot.LotNumber
		}
		lw.writeRow(f, sheet, row, []any{
			lotNumber,
			lot.Reference,
			lot.Title,
			lot.DepartmentID,
			lot.Status.String(),
			len(lot.Items),
			lot.TotalEstimated.InexactFloat64(),
			lot.Currency,
		})
		row++

		for _, item := range lot.Items {
			lw.writeRow(f, itemsSheetName, itemRow, []any{
				lotNumber,
				item.Position,
				item.Description,
				item.Quantity,
				item.UnitPrice.InexactFloat64(),
				item.TotalPrice.InexactFloat64(),
			})
			itemRow++
		}
	}

	totalLabel, _ := excelize.CoordinatesToCellName(6, row)
	totalCell, _ := excelize.CoordinatesToCellName(7, row)
	lw.setCell(f, sheet, totalLabel, "Total")
	lw.setCell(f, sheet, totalCell, view.TotalValue.InexactFloat64())
	_ = f.SetCellStyle(sheet, totalLabel, totalCell, bold)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	lw.logger.Info("Lot schedule exported",
		zap.String("reference", view.Reference),
		zap.Int("lots", view.LotsCount),
		zap.Int("items", itemRow-2))
	return nil
}

func (lw *LotScheduleWriter) writeRow(f *excelize.File, sheet string, row int, values []any) {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		lw.logger.Warn("Invalid row", zap.Int("row", row), zap.Error(err))
		return
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		lw.logger.Warn("Failed to write row",
			zap.String("sheet", sheet),
			zap.Int("row", row),
			zap.Error(err))
	}
}

// setCell sets a cell value, logging instead of failing the export
func (lw *LotScheduleWriter) setCell(f *excelize.File, sheet, cell string, value any) {
	if err := f.SetCellValue(sheet, cell, value); err != nil {
		lw.logger.Warn("Failed to set cell value",
			zap.String("sheet", sheet),
			zap.String("cell", cell),
			zap.Error(err))
	}
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}

// Verify interface compliance
var _ port.LotExporter = (*LotScheduleWriter)(nil)
