package panel

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"
)

// DateLayout is the layout of the date column
const DateLayout = "2006-01-02"

// IndexHeader is the name of the first column of an encoded panel
const IndexHeader = "date"

// WriteCSV encodes the panel as "date,<entity>..." rows. Null cells are
// written empty so re-encoding the same panel is byte-identical.
func (p *Panel) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)

	header := make([]string, 0, len(p.columns)+1)
	header = append(header, IndexHeader)
	header = append(header, p.columns...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	record := make([]string, len(p.columns)+1)
	for i, d := range p.dates {
		record[0] = d.Format(DateLayout)
		for j := range p.columns {
			record[j+1] = FormatValue(p.values[i][j])
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// ReadCSV decodes a panel written by WriteCSV
func ReadCSV(r io.Reader) (*Panel, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err == io.EOF {
		return Empty(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if len(header) == 0 || header[0] != IndexHeader {
		return nil, fmt.Errorf("unexpected panel header %v", header)
	}
	columns := append([]string(nil), header[1:]...)

	var rows []Row
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		date, err := time.Parse(DateLayout, record[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: invalid date %q: %w", line, record[0], err)
		}
		values := make(map[string]float64, len(columns))
		for j, cell := range record[1:] {
			v, err := ParseValue(cell)
			if err != nil {
				return nil, fmt.Errorf("line %d column %s: %w", line, columns[j], err)
			}
			values[columns[j]] = v
		}
		rows = append(rows, Row{Date: date, Values: values})
	}

	// keep the stored column order rather than the sorted union
	dates := make([]time.Time, len(rows))
	for i, r := range rows {
		dates[i] = r.Date
	}
	p := New(dates, columns)
	for _, r := range rows {
		i, _ := p.RowIndex(r.Date)
		for c, v := range r.Values {
			p.values[i][p.index[c]] = v
		}
	}
	return p, nil
}

// Encode returns the CSV encoding of the panel
func (p *Panel) Encode() ([]byte, error) {
	var buf bytes.Buffer
	if err := p.WriteCSV(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Decode parses the output of Encode
func Decode(data []byte) (*Panel, error) {
	return ReadCSV(bytes.NewReader(data))
}

// FormatValue renders a cell; null is the empty string
func FormatValue(v float64) string {
	if IsNull(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}

// ParseValue parses a cell. Empty, "nan" and "None" are null; "True" and
// "False" (any case) are 1 and 0 so boolean universe files load as numbers.
func ParseValue(cell string) (float64, error) {
	switch cell {
	case "", "nan", "NaN", "None", "null":
		return Null(), nil
	case "True", "true", "TRUE":
		return 1, nil
	case "False", "false", "FALSE":
		return 0, nil
	}
	v, err := strconv.ParseFloat(cell, 64)
	if err != nil {
		return Null(), fmt.Errorf("invalid value %q", cell)
	}
	return v, nil
}
