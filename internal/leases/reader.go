package leases

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"lease-cashflow/cashflow-backend/internal/projection"
)

// Read parses a rent roll in the given format
func Read(r io.Reader, format Format) ([]projection.LeaseRecord, error) {
	switch format {
	case FormatExcel:
		return ReadExcel(r)
	case FormatCSV:
		return ReadCSV(r)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}
}

// ReadExcel parses the first sheet of an xlsx workbook. The first row is the
// header; date cells are read as raw serial numbers.
func ReadExcel(r io.Reader) ([]projection.LeaseRecord, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, errors.New("workbook has no sheets")
	}

	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %q: %w", sheets[0], err)
	}

	return parseTable(rows)
}

// ReadCSV parses a comma separated rent roll with a header row
func ReadCSV(r io.Reader) ([]projection.LeaseRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}

	if len(rows) > 0 && len(rows[0]) > 0 {
		rows[0][0] = strings.TrimPrefix(rows[0][0], "\ufeff")
	}

	return parseTable(rows)
}

// parseTable converts header + data rows into lease records. The first
// unparseable cell aborts the whole table.
func parseTable(rows [][]string) ([]projection.LeaseRecord, error) {
	if len(rows) == 0 {
		return nil, &SchemaError{Missing: append([]string(nil), RequiredColumns...)}
	}

	index, err := columnIndex(rows[0])
	if err != nil {
		return nil, err
	}

	records := make([]projection.LeaseRecord, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if blank(row) {
			continue
		}

		record, err := parseRow(row, index, i+2)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}

	return records, nil
}

func parseRow(row []string, index map[string]int, rowNum int) (projection.LeaseRecord, error) {
	cell := func(col string) string {
		i := index[col]
		if i < len(row) {
			return row[i]
		}
		return ""
	}

	record := projection.LeaseRecord{
		TenantID: cell(ColumnTenant),
	}

	var err error
	if record.LeaseStart, err = ParseDate(cell(ColumnLeaseStart)); err != nil {
		return record, &ParseError{Row: rowNum, Column: ColumnLeaseStart, Value: cell(ColumnLeaseStart), Err: err}
	}
	if record.LeaseEnd, err = ParseDate(cell(ColumnLeaseEnd)); err != nil {
		return record, &ParseError{Row: rowNum, Column: ColumnLeaseEnd, Value: cell(ColumnLeaseEnd), Err: err}
	}
	if record.PassingRent, err = ParseAmount(cell(ColumnPassingRent)); err != nil {
		return record, &ParseError{Row: rowNum, Column: ColumnPassingRent, Value: cell(ColumnPassingRent), Err: err}
	}
	if record.MarketRent, err = ParseAmount(cell(ColumnMarketRent)); err != nil {
		return record, &ParseError{Row: rowNum, Column: ColumnMarketRent, Value: cell(ColumnMarketRent), Err: err}
	}

	return record, nil
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
