// Package xlsxexport renders the support inbox as an Excel workbook.
package xlsxexport

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"portalchat/internal/model"
)

const SupportSheet = "Support"

var supportHeaders = []string{"ID", "User ID", "Thread ID", "Timestamp", "Read", "Content"}

// WriteSupportMessages writes one row per message, in the order given.
func WriteSupportMessages(w io.Writer, messages []model.SupportMessage) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(SupportSheet)
	if err != nil {
		return fmt.Errorf("create sheet failed: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("delete default sheet failed: %w", err)
	}

	for i, header := range supportHeaders {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := f.SetCellValue(SupportSheet, cell, header); err != nil {
			return fmt.Errorf("write header failed: %w", err)
		}
	}

	for i, m := range messages {
		row := []interface{}{
			m.ID,
			m.UserID,
			m.ThreadID,
			m.Timestamp.UTC().Format(time.RFC3339),
			m.IsRead,
			m.Content,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(SupportSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d failed: %w", i+2, err)
		}
	}

	if err := f.SetColWidth(SupportSheet, "F", "F", 80); err != nil {
		return fmt.Errorf("set column width failed: %w", err)
	}
	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook failed: %w", err)
	}
	return nil
}
