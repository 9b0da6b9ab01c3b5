package projection

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// TenantColumn is the first column of every cash flow grid
const TenantColumn = "Tenant"

// LeaseRecord is one unit of the rent roll
type LeaseRecord struct {
	TenantID    string    `json:"tenant_id"`
	LeaseStart  time.Time `json:"lease_start"`
	LeaseEnd    time.Time `json:"lease_end"`
	PassingRent float64   `json:"passing_rent"`
	MarketRent  float64   `json:"market_rent"`
}

// Regime identifies which rent governs a unit in a given year
type Regime string

const (
	RegimeNotStarted Regime = "not_started"
	RegimeInTerm     Regime = "in_term"
	RegimeReversion  Regime = "reversion"
)

// RoundingMode selects how cell amounts are rounded to cents
type RoundingMode string

const (
	// RoundHalfEven rounds ties to the even cent (banker's rounding)
	RoundHalfEven RoundingMode = "half_even"
	// RoundHalfUp rounds ties away from zero
	RoundHalfUp RoundingMode = "half_up"
)

// ParseRoundingMode maps a configuration value to a RoundingMode.
// An empty value selects RoundHalfEven.
func ParseRoundingMode(s string) (RoundingMode, error) {
	switch RoundingMode(s) {
	case "", RoundHalfEven:
		return RoundHalfEven, nil
	case RoundHalfUp:
		return RoundHalfUp, nil
	default:
		return "", fmt.Errorf("unknown rounding mode %q", s)
	}
}

// Cell is the rent owed by one unit in one projection year
type Cell struct {
	Amount decimal.Decimal `json:"amount"`
	Regime Regime          `json:"regime"`
}

// IsZero reports whether the unit had not started in the year
func (c Cell) IsZero() bool {
	return c.Regime == RegimeNotStarted
}

// Value returns the cell as written to tabular output: the integer 0 for
// years before occupancy, otherwise the rounded amount.
func (c Cell) Value() interface{} {
	if c.IsZero() {
		return 0
	}
	return c.Amount.InexactFloat64()
}

// GridRow is the projected cash flow of one lease record
type GridRow struct {
	TenantID string `json:"tenant_id"`
	Cells    []Cell `json:"cells"`
}

// Grid is the full cash flow: one row per lease record, one column per
// horizon year
type Grid struct {
	ValuationDate  time.Time    `json:"valuation_date"`
	EscalationRate float64      `json:"escalation_rate"`
	Rounding       RoundingMode `json:"rounding"`
	Horizon        Horizon      `json:"horizon"`
	Rows           []GridRow    `json:"rows"`
}

// Columns returns the tenant column followed by the horizon year labels
func (g *Grid) Columns() []string {
	return append([]string{TenantColumn}, g.Horizon.Labels()...)
}

// Records flattens the grid into rows keyed by column name, the shape the
// tabular exporters consume
func (g *Grid) Records() []map[string]interface{} {
	labels := g.Horizon.Labels()

	records := make([]map[string]interface{}, 0, len(g.Rows))
	for _, row := range g.Rows {
		record := make(map[string]interface{}, len(labels)+1)
		record[TenantColumn] = row.TenantID
		for i, cell := range row.Cells {
			record[labels[i]] = cell.Value()
		}
		records = append(records, record)
	}

	return records
}

// YearTotals sums every row per horizon year
func (g *Grid) YearTotals() []decimal.Decimal {
	totals := make([]decimal.Decimal, len(g.Horizon))
	for _, row := range g.Rows {
		for i, cell := range row.Cells {
			totals[i] = totals[i].Add(cell.Amount)
		}
	}
	return totals
}
