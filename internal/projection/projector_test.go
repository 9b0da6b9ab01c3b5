package projection

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func amount(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return d
}

func cellFor(t *testing.T, grid *Grid, row, year int) Cell {
	t.Helper()
	for i, y := range grid.Horizon {
		if y.Year == year {
			return grid.Rows[row].Cells[i]
		}
	}
	t.Fatalf("year %d not in horizon %v", year, grid.Horizon.Years())
	return Cell{}
}

func TestProject_InTermThenReversion(t *testing.T) {
	records := []LeaseRecord{{
		TenantID:    "Tenant A",
		LeaseStart:  date(2023, 1, 1),
		LeaseEnd:    date(2027, 12, 31),
		PassingRent: 100000,
		MarketRent:  120000,
	}}

	grid := Project(records, date(2025, 3, 15), 0, DefaultOptions())

	c2025 := cellFor(t, grid, 0, 2025)
	assert.Equal(t, RegimeInTerm, c2025.Regime)
	assert.True(t, amount(t, "100000.00").Equal(c2025.Amount))

	c2028 := cellFor(t, grid, 0, 2028)
	assert.Equal(t, RegimeReversion, c2028.Regime)
	assert.True(t, amount(t, "120000.00").Equal(c2028.Amount))
}

func TestProject_MidYearExpiry(t *testing.T) {
	records := []LeaseRecord{{
		TenantID:    "Tenant B",
		LeaseStart:  date(2020, 1, 1),
		LeaseEnd:    date(2025, 6, 30),
		PassingRent: 100000,
		MarketRent:  110000,
	}}

	grid := Project(records, date(2025, 1, 1), 0.10, DefaultOptions())

	c2025 := cellFor(t, grid, 0, 2025)
	assert.Equal(t, RegimeInTerm, c2025.Regime)
	assert.Equal(t, "49589.04", c2025.Amount.StringFixed(2))

	// the year after expiry is fully in reversion, escalated from the valuation year
	c2026 := cellFor(t, grid, 0, 2026)
	assert.Equal(t, RegimeReversion, c2026.Regime)
	assert.Equal(t, "121000.00", c2026.Amount.StringFixed(2))
}

func TestProject_StartsAfterHorizon(t *testing.T) {
	records := []LeaseRecord{{
		TenantID:    "Tenant C",
		LeaseStart:  date(2040, 1, 1),
		LeaseEnd:    date(2050, 12, 31),
		PassingRent: 90000,
		MarketRent:  95000,
	}}

	grid := Project(records, date(2025, 1, 1), 0.05, DefaultOptions())

	require.Len(t, grid.Rows[0].Cells, HorizonYears)
	for _, cell := range grid.Rows[0].Cells {
		assert.Equal(t, RegimeNotStarted, cell.Regime)
		assert.True(t, cell.Amount.IsZero())
		assert.Equal(t, 0, cell.Value())
	}
}

func TestProject_ExpiredBeforeHorizon(t *testing.T) {
	records := []LeaseRecord{{
		TenantID:    "Tenant D",
		LeaseStart:  date(2010, 1, 1),
		LeaseEnd:    date(2015, 12, 31),
		PassingRent: 80000,
		MarketRent:  95000,
	}}

	grid := Project(records, date(2025, 1, 1), 0.05, DefaultOptions())

	cell := grid.Rows[0].Cells[3]
	assert.Equal(t, 2028, grid.Horizon[3].Year)
	assert.Equal(t, RegimeReversion, cell.Regime)
	// 95000 * 1.05^3 = 109974.375
	assert.Equal(t, "109974.38", cell.Amount.StringFixed(2))
}

func TestProject_GridShape(t *testing.T) {
	records := []LeaseRecord{
		{TenantID: "Tenant B", LeaseStart: date(2024, 6, 1), LeaseEnd: date(2029, 5, 31), PassingRent: 120000, MarketRent: 140000},
		{TenantID: "Tenant A", LeaseStart: date(2023, 1, 1), LeaseEnd: date(2027, 12, 31), PassingRent: 100000, MarketRent: 120000},
		{TenantID: "Tenant A", LeaseStart: date(2025, 1, 1), LeaseEnd: date(2035, 12, 31), PassingRent: 90000, MarketRent: 95000},
	}

	grid := Project(records, date(2025, 7, 1), 0.03, DefaultOptions())

	require.Len(t, grid.Rows, len(records))
	for i, row := range grid.Rows {
		assert.Equal(t, records[i].TenantID, row.TenantID)
		assert.Len(t, row.Cells, HorizonYears)
	}

	assert.Equal(t, []string{"Tenant", "2025", "2026", "2027", "2028", "2029", "2030", "2031", "2032", "2033", "2034"}, grid.Columns())
	assert.Equal(t, date(2025, 7, 1), grid.ValuationDate)
}

func TestProject_EmptyInput(t *testing.T) {
	grid := Project(nil, date(2025, 1, 1), 0, DefaultOptions())

	assert.Empty(t, grid.Rows)
	assert.Len(t, grid.Horizon, HorizonYears)
}

func TestProjectYear_FullYearHasNoProration(t *testing.T) {
	lease := LeaseRecord{LeaseStart: date(2020, 1, 1), LeaseEnd: date(2040, 12, 31), PassingRent: 100000, MarketRent: 1}
	horizon := NewHorizon(date(2025, 1, 1))

	for _, year := range horizon {
		cell := ProjectYear(lease, year, 0.05, RoundHalfEven)
		assert.Equal(t, RegimeInTerm, cell.Regime)
		assert.True(t, Round(Escalate(100000, 0.05, year.Offset), RoundHalfEven).Equal(cell.Amount), "year %d", year.Year)
	}

	assert.Equal(t, "110250.00", ProjectYear(lease, horizon[2], 0.05, RoundHalfEven).Amount.StringFixed(2))
	assert.Equal(t, "115762.50", ProjectYear(lease, horizon[3], 0.05, RoundHalfEven).Amount.StringFixed(2))
}

func TestProjectYear_ProrationIsLinearInDays(t *testing.T) {
	year := NewHorizon(date(2025, 1, 1))[0]

	tenDays := LeaseRecord{LeaseStart: date(2025, 1, 1), LeaseEnd: date(2025, 1, 10), PassingRent: 36500}
	twentyDays := LeaseRecord{LeaseStart: date(2025, 1, 1), LeaseEnd: date(2025, 1, 20), PassingRent: 36500}

	a := ProjectYear(tenDays, year, 0, RoundHalfEven)
	b := ProjectYear(twentyDays, year, 0, RoundHalfEven)

	assert.Equal(t, "1000.00", a.Amount.StringFixed(2))
	assert.Equal(t, "2000.00", b.Amount.StringFixed(2))
	assert.True(t, a.Amount.Mul(decimal.NewFromInt(2)).Equal(b.Amount))
}

func TestProjectYear_LeaseStartingMidYear(t *testing.T) {
	year := NewHorizon(date(2025, 1, 1))[0]
	lease := LeaseRecord{LeaseStart: date(2025, 8, 3), LeaseEnd: date(2030, 12, 31), PassingRent: 100000}

	cell := ProjectYear(lease, year, 0, RoundHalfEven)

	// Aug 3 .. Dec 31 inclusive
	assert.Equal(t, RegimeInTerm, cell.Regime)
	assert.Equal(t, "41369.86", cell.Amount.StringFixed(2))
}

func TestProjectYear_LeapYear(t *testing.T) {
	year := NewHorizon(date(2028, 1, 1))[0]
	require.Equal(t, 366, year.DaysInYear())

	lease := LeaseRecord{LeaseStart: date(2027, 1, 1), LeaseEnd: date(2028, 8, 1), PassingRent: 100000}

	// Jan 1 .. Aug 1 2028 covers 214 days
	cell := ProjectYear(lease, year, 0, RoundHalfEven)
	assert.Equal(t, "58469.95", cell.Amount.StringFixed(2))
}

func TestProjectYear_SingleDayLease(t *testing.T) {
	year := NewHorizon(date(2025, 1, 1))[0]
	lease := LeaseRecord{LeaseStart: date(2025, 5, 5), LeaseEnd: date(2025, 5, 5), PassingRent: 36500}

	cell := ProjectYear(lease, year, 0, RoundHalfEven)
	assert.Equal(t, "100.00", cell.Amount.StringFixed(2))
}

func TestProjectYear_BoundaryDates(t *testing.T) {
	year := NewHorizon(date(2025, 1, 1))[0]

	t.Run("ends on the first day of the year", func(t *testing.T) {
		lease := LeaseRecord{LeaseStart: date(2020, 1, 1), LeaseEnd: date(2025, 1, 1), PassingRent: 36500, MarketRent: 50000}
		cell := ProjectYear(lease, year, 0, RoundHalfEven)
		assert.Equal(t, RegimeInTerm, cell.Regime)
		assert.Equal(t, "100.00", cell.Amount.StringFixed(2))
	})

	t.Run("ends on the last day of the previous year", func(t *testing.T) {
		lease := LeaseRecord{LeaseStart: date(2020, 1, 1), LeaseEnd: date(2024, 12, 31), PassingRent: 36500, MarketRent: 50000}
		cell := ProjectYear(lease, year, 0, RoundHalfEven)
		assert.Equal(t, RegimeReversion, cell.Regime)
		assert.Equal(t, "50000.00", cell.Amount.StringFixed(2))
	})

	t.Run("starts on the last day of the year", func(t *testing.T) {
		lease := LeaseRecord{LeaseStart: date(2025, 12, 31), LeaseEnd: date(2030, 1, 1), PassingRent: 36500}
		cell := ProjectYear(lease, year, 0, RoundHalfEven)
		assert.Equal(t, RegimeInTerm, cell.Regime)
		assert.Equal(t, "100.00", cell.Amount.StringFixed(2))
	})

	t.Run("starts on the first day of the next year", func(t *testing.T) {
		lease := LeaseRecord{LeaseStart: date(2026, 1, 1), LeaseEnd: date(2030, 1, 1), PassingRent: 36500}
		cell := ProjectYear(lease, year, 0, RoundHalfEven)
		assert.Equal(t, RegimeNotStarted, cell.Regime)
	})

	t.Run("time of day is ignored", func(t *testing.T) {
		lease := LeaseRecord{
			LeaseStart:  time.Date(2025, 1, 1, 18, 30, 0, 0, time.UTC),
			LeaseEnd:    time.Date(2025, 1, 10, 6, 0, 0, 0, time.UTC),
			PassingRent: 36500,
		}
		cell := ProjectYear(lease, year, 0, RoundHalfEven)
		assert.Equal(t, "1000.00", cell.Amount.StringFixed(2))
	})
}

func TestProjectLease_EscalationIsMonotonic(t *testing.T) {
	horizon := NewHorizon(date(2025, 1, 1))

	inTerm := LeaseRecord{LeaseStart: date(2000, 1, 1), LeaseEnd: date(2100, 1, 1), PassingRent: 87654.32}
	reverted := LeaseRecord{LeaseStart: date(2000, 1, 1), LeaseEnd: date(2001, 1, 1), MarketRent: 12345.67}

	for _, rate := range []float64{0, 0.001, 0.025, 0.1, 0.2} {
		for _, lease := range []LeaseRecord{inTerm, reverted} {
			cells := ProjectLease(lease, horizon, rate, RoundHalfEven)
			for i := 1; i < len(cells); i++ {
				assert.True(t, cells[i].Amount.GreaterThanOrEqual(cells[i-1].Amount),
					"rate %v offset %d: %s < %s", rate, i, cells[i].Amount, cells[i-1].Amount)
			}
		}
	}
}

func TestProjectLease_ReversionEscalatesFromValuationYear(t *testing.T) {
	horizon := NewHorizon(date(2025, 1, 1))
	lease := LeaseRecord{LeaseStart: date(2020, 1, 1), LeaseEnd: date(2027, 12, 31), PassingRent: 100000, MarketRent: 120000}

	cells := ProjectLease(lease, horizon, 0.10, RoundHalfEven)

	// first reversion year is offset 3, escalated three times not zero
	assert.Equal(t, RegimeInTerm, cells[2].Regime)
	assert.Equal(t, RegimeReversion, cells[3].Regime)
	assert.Equal(t, "159720.00", cells[3].Amount.StringFixed(2))
}

func TestRound_Modes(t *testing.T) {
	tests := []struct {
		in       float64
		halfEven string
		halfUp   string
	}{
		{0.125, "0.12", "0.13"},
		{0.375, "0.38", "0.38"},
		{0.135, "0.14", "0.14"},
		// stored below the half cent, as Python's round sees them
		{1.005, "1.00", "1.00"},
		{1.015, "1.01", "1.01"},
		{2.675, "2.67", "2.67"},
		{-2.675, "-2.67", "-2.67"},
		{109974.37500000001, "109974.38", "109974.38"},
		{49589.04109589041, "49589.04", "49589.04"},
		{1e20, "100000000000000000000.00", "100000000000000000000.00"},
		{0, "0.00", "0.00"},
		{math.NaN(), "0.00", "0.00"},
		{math.Inf(1), "0.00", "0.00"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%v", tt.in), func(t *testing.T) {
			assert.Equal(t, tt.halfEven, Round(tt.in, RoundHalfEven).StringFixed(2))
			assert.Equal(t, tt.halfUp, Round(tt.in, RoundHalfUp).StringFixed(2))
		})
	}
}

func TestProjectLease_NonFiniteDoesNotPanic(t *testing.T) {
	horizon := NewHorizon(date(2025, 1, 1))
	lease := LeaseRecord{LeaseStart: date(2020, 1, 1), LeaseEnd: date(2027, 12, 31), PassingRent: math.NaN(), MarketRent: math.Inf(1)}

	assert.NotPanics(t, func() {
		cells := ProjectLease(lease, horizon, 0.05, RoundHalfEven)
		assert.True(t, cells[0].Amount.IsZero())
	})
}

func TestCheckFinite(t *testing.T) {
	horizon := NewHorizon(date(2025, 1, 1))
	ok := LeaseRecord{TenantID: "A", PassingRent: 100000, MarketRent: 120000}

	assert.NoError(t, CheckFinite(ok, horizon, 0.05))
	assert.ErrorIs(t, CheckFinite(LeaseRecord{TenantID: "B", PassingRent: math.NaN()}, horizon, 0.05), ErrNonFiniteAmount)
	assert.ErrorIs(t, CheckFinite(LeaseRecord{TenantID: "C", MarketRent: math.Inf(-1)}, horizon, 0), ErrNonFiniteAmount)
	assert.ErrorIs(t, CheckFinite(ok, horizon, math.NaN()), ErrNonFiniteAmount)

	// finite on input, overflows once escalated
	huge := LeaseRecord{TenantID: "D", PassingRent: 1e308, MarketRent: 1e308}
	assert.NoError(t, CheckFinite(huge, horizon, 0))
	assert.ErrorIs(t, CheckFinite(huge, horizon, 0.20), ErrNonFiniteAmount)
}

func TestProjectConcurrent_NonFiniteRent(t *testing.T) {
	records := []LeaseRecord{
		{TenantID: "A", LeaseStart: date(2020, 1, 1), LeaseEnd: date(2030, 12, 31), PassingRent: 100000, MarketRent: 110000},
		{TenantID: "B", LeaseStart: date(2020, 1, 1), LeaseEnd: date(2030, 12, 31), PassingRent: 1e308, MarketRent: 1e308},
	}

	grid, err := ProjectConcurrent(context.Background(), records, date(2025, 1, 1), 0.20, Options{Workers: 2})
	assert.ErrorIs(t, err, ErrNonFiniteAmount)
	assert.Contains(t, err.Error(), `"B"`)
	assert.Nil(t, grid)
}

func TestParseRoundingMode(t *testing.T) {
	mode, err := ParseRoundingMode("")
	require.NoError(t, err)
	assert.Equal(t, RoundHalfEven, mode)

	mode, err = ParseRoundingMode("half_up")
	require.NoError(t, err)
	assert.Equal(t, RoundHalfUp, mode)

	_, err = ParseRoundingMode("ceiling")
	assert.Error(t, err)
}

func TestProjectConcurrent_MatchesSequential(t *testing.T) {
	var records []LeaseRecord
	for i := 0; i < 200; i++ {
		records = append(records, LeaseRecord{
			TenantID:    fmt.Sprintf("Unit %03d", i),
			LeaseStart:  date(2018+i%12, time.Month(1+i%12), 1+i%28),
			LeaseEnd:    date(2024+i%9, time.Month(1+(i*7)%12), 1+(i*3)%28),
			PassingRent: float64(50000 + i*137),
			MarketRent:  float64(60000 + i*91),
		})
	}

	opts := Options{Rounding: RoundHalfUp, Workers: 8}
	want := Project(records, date(2025, 1, 1), 0.04, opts)

	got, err := ProjectConcurrent(context.Background(), records, date(2025, 1, 1), 0.04, opts)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestProjectConcurrent_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	records := []LeaseRecord{{TenantID: "x", LeaseStart: date(2025, 1, 1), LeaseEnd: date(2026, 1, 1), PassingRent: 1}}

	grid, err := ProjectConcurrent(ctx, records, date(2025, 1, 1), 0, DefaultOptions())
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, grid)
}

func TestGrid_RecordsAndTotals(t *testing.T) {
	records := []LeaseRecord{
		{TenantID: "A", LeaseStart: date(2023, 1, 1), LeaseEnd: date(2025, 12, 31), PassingRent: 1000, MarketRent: 2000},
		{TenantID: "B", LeaseStart: date(2026, 1, 1), LeaseEnd: date(2040, 12, 31), PassingRent: 3000, MarketRent: 4000},
	}

	grid := Project(records, date(2025, 1, 1), 0, DefaultOptions())

	rows := grid.Records()
	require.Len(t, rows, 2)
	assert.Equal(t, "A", rows[0][TenantColumn])
	assert.Equal(t, 1000.0, rows[0]["2025"])
	assert.Equal(t, 2000.0, rows[0]["2026"])
	assert.Equal(t, 0, rows[1]["2025"])
	assert.Equal(t, 3000.0, rows[1]["2026"])

	totals := grid.YearTotals()
	assert.Equal(t, "1000.00", totals[0].StringFixed(2))
	assert.Equal(t, "5000.00", totals[1].StringFixed(2))
}
