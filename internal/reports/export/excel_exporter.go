package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// ExcelExporter writes tabular data to an xlsx workbook
type ExcelExporter struct {
	file        *excelize.File
	options     ExcelOptions
	numberStyle int
}

// ExcelOptions configures Excel export behavior
type ExcelOptions struct {
	SheetName     string            `json:"sheet_name"`
	IncludeHeader bool              `json:"include_header"`
	FreezeHeader  bool              `json:"freeze_header"`
	NumberFormat  string            `json:"number_format"`
	HeaderStyle   *ExcelStyleConfig `json:"header_style,omitempty"`
	AutoWidth     bool              `json:"auto_width"`
}

// ExcelStyleConfig defines style for cells
type ExcelStyleConfig struct {
	FontBold  bool   `json:"font_bold"`
	FontSize  int    `json:"font_size"`
	FontColor string `json:"font_color"`
	FillColor string `json:"fill_color"`
	Alignment string `json:"alignment"` // left, center, right
	Border    bool   `json:"border"`
}

// DefaultExcelOptions returns default Excel export options
func DefaultExcelOptions() ExcelOptions {
	return ExcelOptions{
		SheetName:     "Cash Flow",
		IncludeHeader: true,
		FreezeHeader:  true,
		NumberFormat:  "#,##0.00",
		AutoWidth:     true,
		HeaderStyle: &ExcelStyleConfig{
			FontBold:  true,
			FontSize:  11,
			FillColor: "4472C4",
			FontColor: "FFFFFF",
			Alignment: "center",
			Border:    true,
		},
	}
}

// NewExcelExporter creates a workbook whose default sheet is renamed to
// options.SheetName
func NewExcelExporter(options ExcelOptions) *ExcelExporter {
	file := excelize.NewFile()
	file.SetSheetName("Sheet1", options.SheetName)

	return &ExcelExporter{
		file:    file,
		options: options,
	}
}

// WriteHeader writes the header row with styling
func (e *ExcelExporter) WriteHeader(columns []string) error {
	if !e.options.IncludeHeader {
		return nil
	}

	sheet := e.options.SheetName

	headerStyleID := 0
	if e.options.HeaderStyle != nil {
		style, err := e.createStyle(e.options.HeaderStyle)
		if err != nil {
			return fmt.Errorf("failed to create header style: %w", err)
		}
		headerStyleID = style
	}

	for i, col := range columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := e.file.SetCellValue(sheet, cell, col); err != nil {
			return fmt.Errorf("failed to write header cell %s: %w", cell, err)
		}
		if headerStyleID > 0 {
			e.file.SetCellStyle(sheet, cell, cell, headerStyleID)
		}
	}

	if e.options.FreezeHeader {
		e.file.SetPanes(sheet, &excelize.Panes{
			Freeze:      true,
			YSplit:      1,
			TopLeftCell: "A2",
			ActivePane:  "bottomLeft",
		})
	}

	return nil
}

// WriteRows writes data rows below the header, one map per row keyed by
// column name
func (e *ExcelExporter) WriteRows(rows []map[string]interface{}, columns []string) error {
	sheet := e.options.SheetName
	startRow := 1
	if e.options.IncludeHeader {
		startRow = 2
	}

	columnWidths := make(map[int]float64)
	for i, col := range columns {
		columnWidths[i] = estimateCellWidth(col)
	}

	for rowIdx, row := range rows {
		rowNum := startRow + rowIdx

		for colIdx, colName := range columns {
			cell, _ := excelize.CoordinatesToCellName(colIdx+1, rowNum)
			val := row[colName]

			if err := e.setCellValue(sheet, cell, val); err != nil {
				return fmt.Errorf("failed to set cell value: %w", err)
			}

			if e.options.AutoWidth {
				if width := estimateCellWidth(val); width > columnWidths[colIdx] {
					columnWidths[colIdx] = width
				}
			}
		}
	}

	if e.options.AutoWidth {
		for colIdx, width := range columnWidths {
			colName, _ := excelize.ColumnNumberToName(colIdx + 1)
			// Min width 10, max width 50
			if width < 10 {
				width = 10
			}
			if width > 50 {
				width = 50
			}
			e.file.SetColWidth(sheet, colName, colName, width)
		}
	}

	return nil
}

// WriteTo writes the Excel file to a writer
func (e *ExcelExporter) WriteTo(w io.Writer) error {
	return e.file.Write(w)
}

// Close closes the Excel file
func (e *ExcelExporter) Close() error {
	return e.file.Close()
}

// createStyle creates an Excel style from config
func (e *ExcelExporter) createStyle(config *ExcelStyleConfig) (int, error) {
	style := &excelize.Style{
		Font: &excelize.Font{
			Bold:  config.FontBold,
			Size:  float64(config.FontSize),
			Color: config.FontColor,
		},
	}

	if config.FillColor != "" {
		style.Fill = excelize.Fill{
			Type:    "pattern",
			Pattern: 1,
			Color:   []string{config.FillColor},
		}
	}

	switch config.Alignment {
	case "left", "center", "right":
		style.Alignment = &excelize.Alignment{Horizontal: config.Alignment}
	}

	if config.Border {
		style.Border = []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
		}
	}

	return e.file.NewStyle(style)
}

// setCellValue sets a cell value; floats get the configured number format
// and integers are left unformatted
func (e *ExcelExporter) setCellValue(sheet, cell string, val interface{}) error {
	switch v := val.(type) {
	case nil:
		return e.file.SetCellValue(sheet, cell, "")
	case float32, float64:
		if err := e.file.SetCellValue(sheet, cell, v); err != nil {
			return err
		}
		if e.options.NumberFormat == "" {
			return nil
		}
		style, err := e.style(&e.numberStyle, &excelize.Style{CustomNumFmt: &e.options.NumberFormat})
		if err != nil {
			return err
		}
		return e.file.SetCellStyle(sheet, cell, cell, style)
	default:
		return e.file.SetCellValue(sheet, cell, v)
	}
}

// style lazily registers a style once per workbook
func (e *ExcelExporter) style(id *int, s *excelize.Style) (int, error) {
	if *id > 0 {
		return *id, nil
	}
	created, err := e.file.NewStyle(s)
	if err != nil {
		return 0, fmt.Errorf("failed to create style: %w", err)
	}
	*id = created
	return created, nil
}

// estimateCellWidth estimates the display width of a cell value
func estimateCellWidth(val interface{}) float64 {
	if val == nil {
		return 0
	}
	// Rough estimate: 1 character = 1 unit width, plus padding
	return float64(len(fmt.Sprintf("%v", val))) * 1.2
}
