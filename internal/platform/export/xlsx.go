package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

type sheet struct {
	name   string
	header []string
	rows   [][]string
}

// WriteWorkbook writes one sheet per table with the same columns as the CSV
// files.
func WriteWorkbook(w io.Writer, snap *Snapshot) error {
	sheets := []sheet{
		{name: "Patients", header: PatientHeader},
		{name: "Ledger", header: TransactionHeader},
		{name: "Stock", header: StockHeader},
	}
	for _, p := range snap.Patients {
		sheets[0].rows = append(sheets[0].rows, patientRow(p))
	}
	for _, tx := range snap.Transactions {
		sheets[1].rows = append(sheets[1].rows, transactionRow(tx))
	}
	for _, item := range snap.Stock {
		sheets[2].rows = append(sheets[2].rows, stockRow(item))
	}

	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", s.name); err != nil {
				return fmt.Errorf("rename sheet: %w", err)
			}
		} else if _, err := f.NewSheet(s.name); err != nil {
			return fmt.Errorf("create sheet %s: %w", s.name, err)
		}
		if err := writeSheetRow(f, s.name, 1, s.header); err != nil {
			return err
		}
		last, err := excelize.CoordinatesToCellName(len(s.header), 1)
		if err != nil {
			return err
		}
		if err := f.SetCellStyle(s.name, "A1", last, headerStyle); err != nil {
			return fmt.Errorf("set header style: %w", err)
		}
		for r, row := range s.rows {
			if err := writeSheetRow(f, s.name, r+2, row); err != nil {
				return err
			}
		}
		if err := f.SetPanes(s.name, &excelize.Panes{
			Freeze:      true,
			YSplit:      1,
			TopLeftCell: "A2",
			ActivePane:  "bottomLeft",
		}); err != nil {
			return fmt.Errorf("freeze header of %s: %w", s.name, err)
		}
	}
	f.SetActiveSheet(0)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeSheetRow(f *excelize.File, sheetName string, row int, values []string) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	cells := make([]interface{}, len(values))
	for i, v := range values {
		cells[i] = v
	}
	if err := f.SetSheetRow(sheetName, cell, &cells); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheetName, row, err)
	}
	return nil
}
