package projection

import (
	"fmt"
	"strings"
)

// ValidationMode decides what happens to semantically inconsistent records
type ValidationMode string

const (
	// ValidationLenient projects inconsistent records as-is
	ValidationLenient ValidationMode = "lenient"
	// ValidationStrict rejects the whole run on the first inconsistent record
	ValidationStrict ValidationMode = "strict"
)

// ParseValidationMode maps a configuration value to a ValidationMode.
// An empty value selects ValidationLenient.
func ParseValidationMode(s string) (ValidationMode, error) {
	switch ValidationMode(s) {
	case "", ValidationLenient:
		return ValidationLenient, nil
	case ValidationStrict:
		return ValidationStrict, nil
	default:
		return "", fmt.Errorf("unknown validation mode %q", s)
	}
}

// ValidationError describes one inconsistency in the input
type ValidationError struct {
	Row     int    `json:"row"`
	Tenant  string `json:"tenant,omitempty"`
	Field   string `json:"field"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

func (e ValidationError) Error() string {
	if e.Row > 0 {
		return fmt.Sprintf("row %d (%s): %s: %s", e.Row, e.Tenant, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationErrors collects every inconsistency found in a run
type ValidationErrors []ValidationError

func (errs ValidationErrors) Error() string {
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return fmt.Sprintf("%d validation error(s): %s", len(errs), strings.Join(msgs, "; "))
}

// Validate checks records and the escalation rate for inputs the projector
// would compute without complaint but which make no financial sense. Rows
// are numbered from 1 in input order.
func Validate(records []LeaseRecord, rate float64) ValidationErrors {
	var errs ValidationErrors

	if rate < 0 {
		errs = append(errs, ValidationError{
			Field:   "escalation_rate",
			Message: fmt.Sprintf("must not be negative, got %g", rate),
			Code:    "NEGATIVE_ESCALATION",
		})
	}

	for i, r := range records {
		row := i + 1
		if Date(r.LeaseEnd).Before(Date(r.LeaseStart)) {
			errs = append(errs, ValidationError{
				Row:     row,
				Tenant:  r.TenantID,
				Field:   "lease_end",
				Message: fmt.Sprintf("lease ends %s before it starts %s", r.LeaseEnd.Format("2006-01-02"), r.LeaseStart.Format("2006-01-02")),
				Code:    "LEASE_END_BEFORE_START",
			})
		}
		if r.PassingRent < 0 {
			errs = append(errs, ValidationError{
				Row:     row,
				Tenant:  r.TenantID,
				Field:   "passing_rent",
				Message: fmt.Sprintf("must not be negative, got %g", r.PassingRent),
				Code:    "NEGATIVE_RENT",
			})
		}
		if r.MarketRent < 0 {
			errs = append(errs, ValidationError{
				Row:     row,
				Tenant:  r.TenantID,
				Field:   "market_rent",
				Message: fmt.Sprintf("must not be negative, got %g", r.MarketRent),
				Code:    "NEGATIVE_RENT",
			})
		}
	}

	return errs
}
