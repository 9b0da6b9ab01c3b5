package leases

import (
	"fmt"
	"io"
	"time"

	"lease-cashflow/cashflow-backend/internal/projection"
	"lease-cashflow/cashflow-backend/internal/reports/export"
)

// SampleSheetName is the sheet of the downloadable template workbook
const SampleSheetName = "Sample Data"

// SampleRecords returns the three-tenant rent roll offered as a template
func SampleRecords() []projection.LeaseRecord {
	d := func(y int, m time.Month, day int) time.Time {
		return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
	}

	return []projection.LeaseRecord{
		{TenantID: "Tenant A", LeaseStart: d(2023, 1, 1), LeaseEnd: d(2027, 12, 31), PassingRent: 100000, MarketRent: 120000},
		{TenantID: "Tenant B", LeaseStart: d(2024, 6, 1), LeaseEnd: d(2029, 5, 31), PassingRent: 120000, MarketRent: 140000},
		{TenantID: "Tenant C", LeaseStart: d(2025, 1, 1), LeaseEnd: d(2035, 12, 31), PassingRent: 90000, MarketRent: 95000},
	}
}

// WriteSampleWorkbook writes the template workbook with the required header
// and the sample rent roll. Dates are written as ISO text.
func WriteSampleWorkbook(w io.Writer) error {
	opts := export.DefaultExcelOptions()
	opts.SheetName = SampleSheetName
	opts.NumberFormat = ""

	exporter := export.NewExcelExporter(opts)
	defer exporter.Close()

	if err := exporter.WriteHeader(RequiredColumns); err != nil {
		return fmt.Errorf("failed to write sample header: %w", err)
	}

	samples := SampleRecords()
	rows := make([]map[string]interface{}, 0, len(samples))
	for _, r := range samples {
		rows = append(rows, map[string]interface{}{
			ColumnTenant:      r.TenantID,
			ColumnLeaseStart:  r.LeaseStart.Format("2006-01-02"),
			ColumnLeaseEnd:    r.LeaseEnd.Format("2006-01-02"),
			ColumnPassingRent: int64(r.PassingRent),
			ColumnMarketRent:  int64(r.MarketRent),
		})
	}

	if err := exporter.WriteRows(rows, RequiredColumns); err != nil {
		return fmt.Errorf("failed to write sample rows: %w", err)
	}

	return exporter.WriteTo(w)
}
