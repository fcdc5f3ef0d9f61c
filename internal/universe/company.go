package universe

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"

	apperrors "mdwarehouse/internal/errors"
	"mdwarehouse/internal/exporter"
	"mdwarehouse/internal/provider"
)

var companyHeader = []string{
	"ticker", "name", "market", "locale", "primary_exchange", "type", "currency",
	"cik", "list_date", "sic_code", "sic_description", "market_cap", "total_employees",
}

// CompanyTable is the company reference table. Rows are only ever
// appended, so a profile keeps the values of the run that first saw it.
type CompanyTable struct {
	rows    []provider.CompanyInfo
	tickers map[string]struct{}
}

// Len returns the number of companies
func (t *CompanyTable) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rows)
}

// Has reports whether ticker already has a row
func (t *CompanyTable) Has(ticker string) bool {
	if t == nil {
		return false
	}
	_, ok := t.tickers[ticker]
	return ok
}

// Rows returns the companies in file order
func (t *CompanyTable) Rows() []provider.CompanyInfo {
	if t == nil {
		return nil
	}
	return append([]provider.CompanyInfo(nil), t.rows...)
}

// Missing returns the tickers without a row, sorted
func (t *CompanyTable) Missing(tickers []string) []string {
	seen := make(map[string]struct{}, len(tickers))
	var out []string
	for _, ticker := range tickers {
		if _, dup := seen[ticker]; dup || t.Has(ticker) {
			continue
		}
		seen[ticker] = struct{}{}
		out = append(out, ticker)
	}
	sort.Strings(out)
	return out
}

func (t *CompanyTable) add(info provider.CompanyInfo) bool {
	if t.tickers == nil {
		t.tickers = make(map[string]struct{})
	}
	if _, dup := t.tickers[info.Ticker]; dup {
		return false
	}
	t.tickers[info.Ticker] = struct{}{}
	t.rows = append(t.rows, info)
	return true
}

// AppendCompanies adds the profiles of unseen tickers to the table at
// path, creating the file with its header when it does not exist yet.
// It returns the number of rows written.
func AppendCompanies(path string, table *CompanyTable, infos []provider.CompanyInfo, logger *slog.Logger) (int, error) {
	if table == nil {
		table = &CompanyTable{}
	}
	fresh := table.Len() == 0

	var records [][]string
	for _, info := range infos {
		if table.add(info) {
			records = append(records, companyRecord(info))
		}
	}
	if len(records) == 0 {
		return 0, nil
	}

	w := exporter.NewCSVWriter(nil, logger)
	var err error
	if _, statErr := os.Stat(path); fresh || os.IsNotExist(statErr) {
		err = w.WriteSimpleCSV(path, companyHeader, table.recordsFrom(0))
	} else {
		err = w.AppendToCSV(path, records)
	}
	if err != nil {
		return 0, apperrors.NewStorageError("failed to save company table", err).WithContext("path", path)
	}
	return len(records), nil
}

func (t *CompanyTable) recordsFrom(i int) [][]string {
	out := make([][]string, 0, len(t.rows)-i)
	for _, info := range t.rows[i:] {
		out = append(out, companyRecord(info))
	}
	return out
}

func companyRecord(c provider.CompanyInfo) []string {
	return []string{
		c.Ticker, c.Name, c.Market, c.Locale, c.PrimaryExchange, c.Type, c.Currency,
		c.CIK, c.ListDate, c.SIC, c.SICDescription, formatNumber(c.MarketCap), formatNumber(c.Employees),
	}
}

func formatNumber(v float64) string {
	if v == 0 {
		return ""
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// LoadCompanies reads a table written by AppendCompanies. A missing file
// is an empty table.
func LoadCompanies(path string) (*CompanyTable, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &CompanyTable{}, nil
	}
	if err != nil {
		return nil, apperrors.NewStorageError("failed to read company table", err).WithContext("path", path)
	}

	cr := csv.NewReader(bytes.NewReader(data))
	cr.FieldsPerRecord = -1
	records, err := cr.ReadAll()
	if err != nil {
		return nil, apperrors.NewParsingError("invalid company table", err).WithContext("path", path)
	}

	t := &CompanyTable{}
	for i, rec := range records {
		if i == 0 && len(rec) > 0 && rec[0] == companyHeader[0] {
			continue
		}
		if len(rec) != len(companyHeader) {
			return nil, apperrors.NewParsingError(fmt.Sprintf("line %d: expected %d fields", i+1, len(companyHeader)), nil)
		}
		info := provider.CompanyInfo{
			Ticker: rec[0], Name: rec[1], Market: rec[2], Locale: rec[3],
			PrimaryExchange: rec[4], Type: rec[5], Currency: rec[6], CIK: rec[7],
			ListDate: rec[8], SIC: rec[9], SICDescription: rec[10],
		}
		if info.MarketCap, err = parseNumber(rec[11]); err != nil {
			return nil, apperrors.NewParsingError(fmt.Sprintf("line %d: invalid market_cap", i+1), err)
		}
		if info.Employees, err = parseNumber(rec[12]); err != nil {
			return nil, apperrors.NewParsingError(fmt.Sprintf("line %d: invalid total_employees", i+1), err)
		}
		t.add(info)
	}
	return t, nil
}

func parseNumber(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}
