package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
	"gopkg.in/yaml.v2"

	"mdwarehouse/internal/config"
	apperrors "mdwarehouse/internal/errors"
)

// registryDocument is the YAML registry document:
//
//	stacks:
//	  us_stock:
//	    items:
//	      close: {path: [price, close], kind: ohlc}
type registryDocument struct {
	Stacks map[string]struct {
		Items map[string]struct {
			Path []string `yaml:"path"`
			Kind string   `yaml:"kind"`
		} `yaml:"items"`
	} `yaml:"stacks"`
}

// Load builds a registry from one or more definition files. YAML files may
// declare any number of stacks; an .xlsx workbook declares the stack named
// after the file, e.g. "us_stock.xlsx".
func Load(layout *config.Layout, files ...string) (*Registry, error) {
	var items []Item
	for _, file := range files {
		var loaded []Item
		var err error

		switch strings.ToLower(filepath.Ext(file)) {
		case ".yaml", ".yml":
			loaded, err = LoadYAML(file)
		case ".xlsx":
			stack := strings.TrimSuffix(filepath.Base(file), filepath.Ext(file))
			loaded, err = LoadWorkbook(stack, file)
		default:
			err = apperrors.NewConfigError(fmt.Sprintf("unsupported registry file %s", file), nil)
		}
		if err != nil {
			return nil, err
		}
		items = append(items, loaded...)
	}
	return New(layout, items)
}

// LoadYAML reads registry entries from a YAML document
func LoadYAML(path string) ([]Item, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, apperrors.NewConfigError("failed to read registry file", err).WithContext("path", path)
	}

	var doc registryDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, apperrors.NewConfigError("failed to parse registry file", err).WithContext("path", path)
	}

	var items []Item
	for stack, s := range doc.Stacks {
		for name, entry := range s.Items {
			kind, err := ParseKind(entry.Kind)
			if err != nil {
				return nil, apperrors.NewConfigError(fmt.Sprintf("item %s/%s", stack, name), err)
			}
			items = append(items, Item{Stack: stack, Name: name, Path: entry.Path, Kind: kind})
		}
	}
	return items, nil
}

// LoadWorkbook reads registry entries from the first sheet of an xlsx
// workbook. The header row names the columns: "item" (or the first column)
// holds the item name, "type" or "kind" holds the kind, and every other
// column holds one path component, in column order.
func LoadWorkbook(stack, path string) ([]Item, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, apperrors.NewConfigError("failed to open registry workbook", err).WithContext("path", path)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, apperrors.NewConfigError("registry workbook has no sheets", nil).WithContext("path", path)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, apperrors.NewConfigError("failed to read registry workbook", err).WithContext("path", path)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	nameCol, kindCol := 0, -1
	for i, h := range rows[0] {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "item", "name":
			nameCol = i
		case "type", "kind":
			kindCol = i
		}
	}
	var pathCols []int
	for i := range rows[0] {
		if i != nameCol && i != kindCol {
			pathCols = append(pathCols, i)
		}
	}

	var items []Item
	for _, row := range rows[1:] {
		name := cell(row, nameCol)
		if name == "" {
			continue
		}
		var parts []string
		for _, c := range pathCols {
			if v := cell(row, c); v != "" {
				parts = append(parts, v)
			}
		}
		kind, err := ParseKind(cell(row, kindCol))
		if err != nil {
			return nil, apperrors.NewConfigError(fmt.Sprintf("item %s/%s", stack, name), err)
		}
		items = append(items, Item{Stack: stack, Name: name, Path: parts, Kind: kind})
	}
	return items, nil
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}
