package exporter

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/xuri/excelize/v2"

	"mdwarehouse/internal/config"
	"mdwarehouse/internal/panel"
)

// WritePanelXLSX writes a panel to a workbook with one sheet. The first
// column holds the dates, null cells are left blank.
func (w *CSVWriter) WritePanelXLSX(filePath, sheet string, p *panel.Panel) error {
	fullPath := w.resolvePath(filePath)
	if sheet == "" {
		sheet = "Sheet1"
	}

	w.logger.Info("Writing XLSX file",
		slog.String("file_path", filePath),
		slog.String("full_path", fullPath),
		slog.Int("rows", p.Len()),
		slog.Int("columns", p.Width()))

	if err := os.MkdirAll(filepath.Dir(fullPath), config.DirPermissions); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	if sheet != "Sheet1" {
		if err := f.SetSheetName("Sheet1", sheet); err != nil {
			return fmt.Errorf("failed to name sheet: %w", err)
		}
	}

	sw, err := f.NewStreamWriter(sheet)
	if err != nil {
		return fmt.Errorf("failed to open sheet stream: %w", err)
	}

	cols := p.Columns()
	header := make([]interface{}, 0, len(cols)+1)
	header = append(header, panel.IndexHeader)
	for _, c := range cols {
		header = append(header, c)
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	for i, d := range p.Dates() {
		row := make([]interface{}, len(cols)+1)
		row[0] = formatDate(d)
		for j := range cols {
			if v := p.At(i, j); !panel.IsNull(v) {
				row[j+1] = v
			}
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i, err)
		}
	}

	if err := sw.Flush(); err != nil {
		return fmt.Errorf("failed to flush sheet: %w", err)
	}
	if err := f.SaveAs(fullPath); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}
