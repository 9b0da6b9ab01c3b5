package projection

import (
	"strconv"
	"time"
)

// HorizonYears is the fixed length of every projection horizon
const HorizonYears = 10

// ProjectionYear is one calendar year of the horizon
type ProjectionYear struct {
	Year   int       `json:"year"`
	Offset int       `json:"offset"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
}

// Label returns the 4-digit year used as the column header
func (y ProjectionYear) Label() string {
	return strconv.Itoa(y.Year)
}

// DaysInYear returns 365 or 366, counting Start and End inclusively
func (y ProjectionYear) DaysInYear() int {
	return daysBetween(y.Start, y.End) + 1
}

// Horizon is the ordered list of projection years starting at the valuation year
type Horizon []ProjectionYear

// NewHorizon generates HorizonYears consecutive calendar years beginning with
// the year of the valuation date. Only the year component is used.
func NewHorizon(valuationDate time.Time) Horizon {
	first := valuationDate.Year()

	horizon := make(Horizon, 0, HorizonYears)
	for i := 0; i < HorizonYears; i++ {
		year := first + i
		horizon = append(horizon, ProjectionYear{
			Year:   year,
			Offset: i,
			Start:  time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC),
			End:    time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC),
		})
	}

	return horizon
}

// Years returns the calendar years of the horizon in order
func (h Horizon) Years() []int {
	years := make([]int, len(h))
	for i, y := range h {
		years[i] = y.Year
	}
	return years
}

// Labels returns the column labels of the horizon in order
func (h Horizon) Labels() []string {
	labels := make([]string, len(h))
	for i, y := range h {
		labels[i] = y.Label()
	}
	return labels
}

// Date truncates t to its calendar day in UTC, keeping the wall-clock date
func Date(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// daysBetween returns the whole calendar days from a to b
func daysBetween(a, b time.Time) int {
	return int(Date(b).Sub(Date(a)).Hours() / 24)
}
