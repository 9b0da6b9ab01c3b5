// Package cashflow runs rent roll projections, keeps their history and
// serves them over HTTP.
package cashflow

import (
	"errors"
	"io"
	"time"

	"github.com/google/uuid"

	"lease-cashflow/cashflow-backend/internal/leases"
	"lease-cashflow/cashflow-backend/internal/projection"
	"lease-cashflow/cashflow-backend/internal/reports/export"
)

var (
	// ErrRunNotFound is returned when no projection run has the given ID
	ErrRunNotFound = errors.New("projection run not found")
	// ErrInvalidParameter wraps rejected run parameters
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrArchiveDisabled is returned when no archive bucket is configured
	ErrArchiveDisabled = errors.New("archive storage is not configured")
)

// ProjectionRequest carries one uploaded rent roll and its run parameters
type ProjectionRequest struct {
	SourceName        string
	Format            leases.Format
	Body              io.Reader
	ValuationDate     time.Time
	EscalationPercent float64
	// Empty values fall back to the configured defaults
	Rounding       string
	ValidationMode string
}

// ProjectionRun is a completed projection and the parameters that produced it
type ProjectionRun struct {
	ID                uuid.UUID                   `json:"id"`
	SourceName        string                      `json:"source_name"`
	ValuationDate     time.Time                   `json:"valuation_date"`
	EscalationPercent float64                     `json:"escalation_percent"`
	Rounding          projection.RoundingMode     `json:"rounding"`
	ValidationMode    projection.ValidationMode   `json:"validation_mode"`
	Warnings          projection.ValidationErrors `json:"warnings,omitempty"`
	RowCount          int                         `json:"row_count"`
	Grid              *projection.Grid            `json:"-"`
	ArchiveKey        *string                     `json:"archive_key,omitempty"`
	CreatedAt         time.Time                   `json:"created_at"`
}

// ArchiveResult locates an export uploaded to object storage
type ArchiveResult struct {
	RunID     uuid.UUID           `json:"run_id"`
	Format    export.ExportFormat `json:"format"`
	Bucket    string              `json:"bucket"`
	Key       string              `json:"key"`
	URL       string              `json:"url"`
	ExpiresAt time.Time           `json:"expires_at"`
}

// RunResponse is the API representation of a run
type RunResponse struct {
	*ProjectionRun
	ValuationDate string               `json:"valuation_date"`
	CashFlow      *export.GridDocument `json:"cash_flow,omitempty"`
}

// RunListResponse is returned by GET /projections
type RunListResponse struct {
	Runs  []*RunResponse `json:"runs"`
	Count int            `json:"count"`
}

// NewRunResponse renders a run, including its grid when loaded
func NewRunResponse(run *ProjectionRun) *RunResponse {
	resp := &RunResponse{
		ProjectionRun: run,
		ValuationDate: run.ValuationDate.Format("2006-01-02"),
	}
	if run.Grid != nil {
		doc := export.NewGridDocument(run.Grid)
		resp.CashFlow = &doc
	}
	return resp
}
