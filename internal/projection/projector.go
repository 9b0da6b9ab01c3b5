package projection

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

// Options tunes a projection run
type Options struct {
	Rounding RoundingMode
	// Workers bounds the goroutines used by ProjectConcurrent; <= 0 leaves
	// it unbounded
	Workers int
}

// DefaultOptions returns banker's rounding, matching the reference spreadsheet
func DefaultOptions() Options {
	return Options{
		Rounding: RoundHalfEven,
		Workers:  4,
	}
}

// ErrNonFiniteAmount is returned when a rent escalates to NaN or infinity
var ErrNonFiniteAmount = errors.New("amount is not a finite number")

// Round rounds an amount to cents using the given mode. The exact binary
// value of amount is rounded, so 2.675 (stored as 2.67499...) gives 2.67.
// Non-finite amounts round to zero.
func Round(amount float64, mode RoundingMode) decimal.Decimal {
	if math.IsNaN(amount) || math.IsInf(amount, 0) {
		return decimal.Zero
	}
	d := exactDecimal(amount)
	if mode == RoundHalfUp {
		return d.Round(2)
	}
	return d.RoundBank(2)
}

// exactDecimal expands a finite float64 into the decimal it represents
// exactly, mant * 2^exp.
func exactDecimal(x float64) decimal.Decimal {
	frac, exp := math.Frexp(x)
	mant := big.NewInt(int64(frac * (1 << 53)))
	exp -= 53

	if exp >= 0 {
		return decimal.NewFromBigInt(mant.Lsh(mant, uint(exp)), 0)
	}
	pow5 := new(big.Int).Exp(big.NewInt(5), big.NewInt(int64(-exp)), nil)
	return decimal.NewFromBigInt(mant.Mul(mant, pow5), int32(exp))
}

// Escalate compounds an annual amount by rate over offset years
func Escalate(amount, rate float64, offset int) float64 {
	return amount * math.Pow(1+rate, float64(offset))
}

// ProjectYear computes the rent owed by a lease in a single projection year.
//
// The three regimes are evaluated in priority order: a lease that ended
// before the year starts is in reversion at the escalated market rent, a
// lease that starts after the year ends owes nothing, and anything else is
// in term at the escalated passing rent pro-rated by the days covered.
// Escalation is always indexed by the year's offset from the valuation
// year, for both regimes.
func ProjectYear(lease LeaseRecord, year ProjectionYear, rate float64, mode RoundingMode) Cell {
	start := Date(lease.LeaseStart)
	end := Date(lease.LeaseEnd)

	if end.Before(year.Start) {
		return Cell{
			Amount: Round(Escalate(lease.MarketRent, rate, year.Offset), mode),
			Regime: RegimeReversion,
		}
	}

	if start.After(year.End) {
		return Cell{Amount: decimal.Zero, Regime: RegimeNotStarted}
	}

	periodStart := maxTime(year.Start, start)
	periodEnd := minTime(year.End, end)
	daysCovered := daysBetween(periodStart, periodEnd) + 1

	annual := Escalate(lease.PassingRent, rate, year.Offset)
	prorated := annual * (float64(daysCovered) / float64(year.DaysInYear()))

	return Cell{
		Amount: Round(prorated, mode),
		Regime: RegimeInTerm,
	}
}

// ProjectLease computes one cell per horizon year, in horizon order
func ProjectLease(lease LeaseRecord, horizon Horizon, rate float64, mode RoundingMode) []Cell {
	cells := make([]Cell, len(horizon))
	for i, year := range horizon {
		cells[i] = ProjectYear(lease, year, rate, mode)
	}
	return cells
}

// Project builds the cash flow grid for records, preserving input order
func Project(records []LeaseRecord, valuationDate time.Time, rate float64, opts Options) *Grid {
	grid := newGrid(records, valuationDate, rate, opts)
	for i, lease := range records {
		grid.Rows[i] = GridRow{
			TenantID: lease.TenantID,
			Cells:    ProjectLease(lease, grid.Horizon, rate, grid.Rounding),
		}
	}
	return grid
}

// CheckFinite reports ErrNonFiniteAmount if either rent of lease leaves the
// float range anywhere in horizon. |1+rate|^offset is monotonic in offset,
// so the first and last years bound every cell.
func CheckFinite(lease LeaseRecord, horizon Horizon, rate float64) error {
	if len(horizon) == 0 {
		return nil
	}
	offsets := []int{horizon[0].Offset, horizon[len(horizon)-1].Offset}
	for _, rent := range []float64{lease.PassingRent, lease.MarketRent} {
		for _, offset := range offsets {
			v := Escalate(rent, rate, offset)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return fmt.Errorf("tenant %q: %w", lease.TenantID, ErrNonFiniteAmount)
			}
		}
	}
	return nil
}

// ProjectConcurrent is Project with rows spread over opts.Workers goroutines.
// It fails when ctx is cancelled or a row fails CheckFinite, in which case
// no grid is returned.
func ProjectConcurrent(ctx context.Context, records []LeaseRecord, valuationDate time.Time, rate float64, opts Options) (*Grid, error) {
	grid := newGrid(records, valuationDate, rate, opts)

	g, ctx := errgroup.WithContext(ctx)
	if opts.Workers > 0 {
		g.SetLimit(opts.Workers)
	}

	for i := range records {
		i := i
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			lease := records[i]
			if err := CheckFinite(lease, grid.Horizon, rate); err != nil {
				return err
			}
			grid.Rows[i] = GridRow{
				TenantID: lease.TenantID,
				Cells:    ProjectLease(lease, grid.Horizon, rate, grid.Rounding),
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return grid, nil
}

func newGrid(records []LeaseRecord, valuationDate time.Time, rate float64, opts Options) *Grid {
	mode := opts.Rounding
	if mode == "" {
		mode = RoundHalfEven
	}

	return &Grid{
		ValuationDate:  Date(valuationDate),
		EscalationRate: rate,
		Rounding:       mode,
		Horizon:        NewHorizon(valuationDate),
		Rows:           make([]GridRow, len(records)),
	}
}

func maxTime(a, b time.Time) time.Time {
	if a.After(b) {
		return a
	}
	return b
}

func minTime(a, b time.Time) time.Time {
	if a.Before(b) {
		return a
	}
	return b
}
