package exporter

import (
	"strconv"
	"time"

	"mdwarehouse/internal/config"
	"mdwarehouse/internal/panel"
)

// formatCell formats a panel value for export. Null cells are empty;
// a negative precision keeps the shortest exact representation.
func formatCell(v float64, precision int) string {
	if panel.IsNull(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'f', precision, 64)
}

// formatDate formats a row date
func formatDate(d time.Time) string {
	return d.Format(config.DateLayout)
}
