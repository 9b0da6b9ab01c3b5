package leases

import (
	"errors"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"lease-cashflow/cashflow-backend/internal/projection"
)

// dateLayouts are tried in order for textual dates
var dateLayouts = []string{
	"2006-01-02",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	time.RFC3339,
	"2006/01/02",
	"01/02/2006",
	"1/2/2006",
	"02-Jan-2006",
	"2-Jan-2006",
	"02 Jan 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"20060102",
}

var (
	errEmpty      = errors.New("value is empty")
	errDateFormat = errors.New("unrecognised date format")
	errNonFinite  = errors.New("value is not a finite number")
)

// ParseDate interprets a cell as a calendar date. Excel serial numbers are
// accepted alongside the textual layouts above. Time of day is dropped.
func ParseDate(raw string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return time.Time{}, errEmpty
	}

	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return projection.Date(t), nil
		}
	}

	if serial, err := strconv.ParseFloat(s, 64); err == nil && isFinite(serial) {
		t, err := excelize.ExcelDateToTime(serial, false)
		if err != nil {
			return time.Time{}, err
		}
		return projection.Date(t), nil
	}

	return time.Time{}, errDateFormat
}

// ParseAmount interprets a cell as an annual rent. Thousands separators are
// ignored.
func ParseAmount(raw string) (float64, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, errEmpty
	}
	s = strings.ReplaceAll(s, ",", "")
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if !isFinite(v) {
		return 0, errNonFinite
	}
	return v, nil
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
