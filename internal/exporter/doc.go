// Package exporter writes warehouse data to files meant for people and
// spreadsheet tools rather than for the warehouse itself.
//
// CSVWriter covers plain CSV files (headers, append, streaming, optional
// UTF-8 BOM), wide panel CSVs and single-sheet XLSX workbooks built with
// excelize. The delisted registry and the market-status series are also
// saved through it.
//
// Example usage:
//
//	w := exporter.NewCSVWriter(layout, logger)
//	err := w.WritePanelCSV("close.csv", p, 4)
//	err = w.WritePanelXLSX("close.xlsx", "close", p)
package exporter
