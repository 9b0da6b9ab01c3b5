// Package leases reads rent rolls from spreadsheets into lease records.
package leases

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Required input columns. Names are matched exactly, including case.
const (
	ColumnTenant      = "Tenant"
	ColumnLeaseStart  = "Lease Start"
	ColumnLeaseEnd    = "Lease End"
	ColumnPassingRent = "Passing Rent (AED/year)"
	ColumnMarketRent  = "Market Rent (AED/year)"
)

// RequiredColumns lists every column a rent roll must carry
var RequiredColumns = []string{
	ColumnTenant,
	ColumnLeaseStart,
	ColumnLeaseEnd,
	ColumnPassingRent,
	ColumnMarketRent,
}

// Format identifies the encoding of an uploaded rent roll
type Format string

const (
	FormatExcel Format = "excel"
	FormatCSV   Format = "csv"
)

// ErrUnsupportedFormat is returned for files that are neither xlsx nor csv
var ErrUnsupportedFormat = errors.New("unsupported rent roll format")

// DetectFormat picks a Format from a file name extension
func DetectFormat(filename string) (Format, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx", ".xlsm":
		return FormatExcel, nil
	case ".csv":
		return FormatCSV, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, filename)
	}
}

// SchemaError reports required columns missing from the header row. No rows
// are read when it is returned.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("missing columns: %s (required: %s)",
		strings.Join(e.Missing, ", "), strings.Join(RequiredColumns, ", "))
}

// ParseError reports a cell that could not be interpreted. Row is the
// 1-based spreadsheet row, counting the header.
type ParseError struct {
	Row    int
	Column string
	Value  string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("row %d, column %q: cannot parse %q: %v", e.Row, e.Column, e.Value, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// columnIndex maps each required column to its position in header
func columnIndex(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		if _, seen := index[name]; !seen {
			index[name] = i
		}
	}

	var missing []string
	for _, col := range RequiredColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return nil, &SchemaError{Missing: missing}
	}

	return index, nil
}
