package export

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"lease-cashflow/cashflow-backend/internal/projection"
)

// ExportFormat represents supported export formats
type ExportFormat string

const (
	ExportFormatCSV   ExportFormat = "csv"
	ExportFormatExcel ExportFormat = "excel"
	ExportFormatPDF   ExportFormat = "pdf"
	ExportFormatJSON  ExportFormat = "json"
)

// ParseExportFormat validates a user supplied format name
func ParseExportFormat(s string) (ExportFormat, error) {
	switch f := ExportFormat(strings.ToLower(s)); f {
	case ExportFormatCSV, ExportFormatExcel, ExportFormatPDF, ExportFormatJSON:
		return f, nil
	case "xlsx":
		return ExportFormatExcel, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

// ContentType returns the MIME type of the format
func (f ExportFormat) ContentType() string {
	switch f {
	case ExportFormatExcel:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	case ExportFormatCSV:
		return "text/csv"
	case ExportFormatPDF:
		return "application/pdf"
	default:
		return "application/json"
	}
}

// FileName returns the download name for a cash flow in this format
func (f ExportFormat) FileName() string {
	switch f {
	case ExportFormatExcel:
		return "10_year_cash_flow.xlsx"
	case ExportFormatCSV:
		return "10_year_cash_flow.csv"
	case ExportFormatPDF:
		return "10_year_cash_flow.pdf"
	default:
		return "10_year_cash_flow.json"
	}
}

// GridDocument is the JSON rendering of a cash flow grid. Rows are arrays in
// column order so the year columns stay chronological.
type GridDocument struct {
	ValuationDate     string          `json:"valuation_date"`
	EscalationPercent float64         `json:"escalation_percent"`
	Rounding          string          `json:"rounding"`
	Columns           []string        `json:"columns"`
	Rows              [][]interface{} `json:"rows"`
	Totals            []float64       `json:"totals"`
}

// NewGridDocument converts a grid to its JSON rendering
func NewGridDocument(grid *projection.Grid) GridDocument {
	doc := GridDocument{
		ValuationDate:     grid.ValuationDate.Format("2006-01-02"),
		EscalationPercent: grid.EscalationRate * 100,
		Rounding:          string(grid.Rounding),
		Columns:           grid.Columns(),
		Rows:              make([][]interface{}, 0, len(grid.Rows)),
	}

	for _, row := range grid.Rows {
		values := make([]interface{}, 0, len(row.Cells)+1)
		values = append(values, row.TenantID)
		for _, cell := range row.Cells {
			values = append(values, cell.Value())
		}
		doc.Rows = append(doc.Rows, values)
	}

	for _, total := range grid.YearTotals() {
		doc.Totals = append(doc.Totals, total.InexactFloat64())
	}

	return doc
}

// WriteGrid renders grid to w in the requested format
func WriteGrid(w io.Writer, grid *projection.Grid, format ExportFormat) error {
	columns := grid.Columns()
	rows := grid.Records()

	switch format {
	case ExportFormatExcel:
		exporter := NewExcelExporter(DefaultExcelOptions())
		defer exporter.Close()

		if err := exporter.WriteHeader(columns); err != nil {
			return err
		}
		if err := exporter.WriteRows(rows, columns); err != nil {
			return err
		}
		return exporter.WriteTo(w)

	case ExportFormatCSV:
		exporter := NewCSVExporter(w, DefaultCSVOptions())
		if err := exporter.WriteMapRows(rows, columns); err != nil {
			return err
		}
		return exporter.Flush()

	case ExportFormatPDF:
		opts := DefaultPDFOptions()
		opts.Subtitle = fmt.Sprintf("Valuation date %s, escalation %s%% per year",
			grid.ValuationDate.Format("2006-01-02"),
			strconv.FormatFloat(grid.EscalationRate*100, 'f', -1, 64))

		generator := NewPDFGenerator(opts)
		if err := generator.GenerateTable(columns, rows); err != nil {
			return fmt.Errorf("failed to render pdf: %w", err)
		}
		generator.AddSummaryRow(columns, totalsRow(grid), rows)
		return generator.WriteTo(w)

	case ExportFormatJSON:
		return json.NewEncoder(w).Encode(NewGridDocument(grid))

	default:
		return fmt.Errorf("unsupported export format %q", format)
	}
}

func totalsRow(grid *projection.Grid) map[string]interface{} {
	row := map[string]interface{}{projection.TenantColumn: "Total"}
	labels := grid.Horizon.Labels()
	for i, total := range grid.YearTotals() {
		row[labels[i]] = total.InexactFloat64()
	}
	return row
}

var amountPrinter = message.NewPrinter(language.English)

// formatThousands renders an amount with two decimals and comma separators
func formatThousands(v float64) string {
	return amountPrinter.Sprintf("%.2f", v)
}
