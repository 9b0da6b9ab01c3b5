package cashflow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"lease-cashflow/cashflow-backend/internal/config"
	"lease-cashflow/cashflow-backend/internal/leases"
	"lease-cashflow/cashflow-backend/internal/metrics"
	"lease-cashflow/cashflow-backend/internal/projection"
	"lease-cashflow/cashflow-backend/internal/reports/export"
	"lease-cashflow/cashflow-backend/pkg/storage"
)

const defaultListLimit = 50

// Service provides business logic for cash flow projections
type Service struct {
	repo       Repository
	store      storage.S3Client
	metrics    *metrics.Metrics
	projection config.ProjectionConfig
	storage    config.StorageConfig
	logger     *zap.Logger
	now        func() time.Time
}

// NewService creates a new cash flow service. store may be nil, in which
// case ArchiveRun returns ErrArchiveDisabled.
func NewService(repo Repository, store storage.S3Client, m *metrics.Metrics, cfg *config.Config, logger *zap.Logger) *Service {
	return &Service{
		repo:       repo,
		store:      store,
		metrics:    m,
		projection: cfg.Projection,
		storage:    cfg.Storage,
		logger:     logger,
		now:        time.Now,
	}
}

// RunProjection parses a rent roll, projects it and stores the run. Any
// error leaves nothing behind.
func (s *Service) RunProjection(ctx context.Context, req *ProjectionRequest) (*ProjectionRun, error) {
	start := time.Now()

	run, err := s.runProjection(ctx, req)
	if err != nil {
		s.metrics.RecordRun(outcomeOf(err), 0, time.Since(start))
		return nil, err
	}

	s.metrics.RecordRun(metrics.OutcomeSuccess, run.RowCount, time.Since(start))

	s.logger.Info("Projection run completed",
		zap.String("run_id", run.ID.String()),
		zap.String("source", run.SourceName),
		zap.Int("rows", run.RowCount),
		zap.Int("warnings", len(run.Warnings)),
		zap.Duration("duration", time.Since(start)))

	return run, nil
}

func (s *Service) runProjection(ctx context.Context, req *ProjectionRequest) (*ProjectionRun, error) {
	if req.ValuationDate.IsZero() {
		return nil, fmt.Errorf("%w: valuation date is required", ErrInvalidParameter)
	}
	if p := req.EscalationPercent; !(p >= 0 && p <= s.projection.MaxEscalationPercent) {
		return nil, fmt.Errorf("%w: escalation percent %g outside [0, %g]",
			ErrInvalidParameter, req.EscalationPercent, s.projection.MaxEscalationPercent)
	}

	rounding, err := projection.ParseRoundingMode(firstNonEmpty(req.Rounding, s.projection.RoundingMode))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParameter, err)
	}
	mode, err := projection.ParseValidationMode(firstNonEmpty(req.ValidationMode, s.projection.ValidationMode))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParameter, err)
	}

	records, err := leases.Read(req.Body, req.Format)
	if err != nil {
		return nil, fmt.Errorf("failed to read rent roll: %w", err)
	}

	rate := req.EscalationPercent / 100

	issues := projection.Validate(records, rate)
	if len(issues) > 0 {
		if mode == projection.ValidationStrict {
			return nil, fmt.Errorf("rent roll rejected: %w", issues)
		}
		s.metrics.RecordValidationWarnings(len(issues))
		for _, issue := range issues {
			s.logger.Warn("Inconsistent lease record projected as-is",
				zap.Int("row", issue.Row),
				zap.String("tenant", issue.Tenant),
				zap.String("code", issue.Code),
				zap.String("message", issue.Message))
		}
	}

	grid, err := projection.ProjectConcurrent(ctx, records, req.ValuationDate, rate, projection.Options{
		Rounding: rounding,
		Workers:  s.projection.Workers,
	})
	if errors.Is(err, projection.ErrNonFiniteAmount) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidParameter, err)
	}
	if err != nil {
		return nil, fmt.Errorf("projection cancelled: %w", err)
	}

	run := &ProjectionRun{
		ID:                uuid.New(),
		SourceName:        req.SourceName,
		ValuationDate:     grid.ValuationDate,
		EscalationPercent: req.EscalationPercent,
		Rounding:          rounding,
		ValidationMode:    mode,
		Warnings:          issues,
		RowCount:          len(grid.Rows),
		Grid:              grid,
		CreatedAt:         s.now().UTC(),
	}

	if err := s.repo.CreateRun(ctx, run); err != nil {
		return nil, fmt.Errorf("failed to save projection run: %w", err)
	}

	return run, nil
}

// GetRun retrieves a projection run by ID
func (s *Service) GetRun(ctx context.Context, id uuid.UUID) (*ProjectionRun, error) {
	return s.repo.GetRun(ctx, id)
}

// ListRuns returns the most recent runs, newest first
func (s *Service) ListRuns(ctx context.Context, limit int) ([]*ProjectionRun, error) {
	if limit <= 0 || limit > 500 {
		limit = defaultListLimit
	}
	return s.repo.ListRuns(ctx, limit)
}

// ExportRun renders a stored run to w
func (s *Service) ExportRun(ctx context.Context, id uuid.UUID, format export.ExportFormat, w io.Writer) error {
	run, err := s.repo.GetRun(ctx, id)
	if err != nil {
		return err
	}

	if err := export.WriteGrid(w, run.Grid, format); err != nil {
		return fmt.Errorf("failed to export run %s: %w", id, err)
	}

	s.metrics.RecordExport(string(format))
	return nil
}

// ArchiveRun uploads an export of the run to object storage and returns a
// presigned download link
func (s *Service) ArchiveRun(ctx context.Context, id uuid.UUID, format export.ExportFormat) (*ArchiveResult, error) {
	if s.store == nil || s.storage.Bucket == "" {
		return nil, ErrArchiveDisabled
	}

	var buf bytes.Buffer
	if err := s.ExportRun(ctx, id, format, &buf); err != nil {
		return nil, err
	}

	key := path.Join(s.storage.Prefix, id.String(), format.FileName())
	if err := s.store.Upload(ctx, s.storage.Bucket, key, format.ContentType(), &buf); err != nil {
		return nil, fmt.Errorf("failed to archive run %s: %w", id, err)
	}

	if err := s.repo.SetArchiveKey(ctx, id, key); err != nil {
		return nil, err
	}

	ttl := s.storage.PresignTTL
	url, err := s.store.GetPresignedURL(ctx, s.storage.Bucket, key, ttl)
	if err != nil {
		return nil, fmt.Errorf("failed to sign archive link: %w", err)
	}

	s.logger.Info("Projection run archived",
		zap.String("run_id", id.String()),
		zap.String("bucket", s.storage.Bucket),
		zap.String("key", key))

	return &ArchiveResult{
		RunID:     id,
		Format:    format,
		Bucket:    s.storage.Bucket,
		Key:       key,
		URL:       url,
		ExpiresAt: s.now().UTC().Add(ttl),
	}, nil
}

// PurgeRuns deletes runs created more than maxAge ago along with their
// archived exports. Archive deletions that fail are logged and skipped.
func (s *Service) PurgeRuns(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := s.now().UTC().Add(-maxAge)

	deleted, err := s.repo.DeleteRunsBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	for _, run := range deleted {
		if run.ArchiveKey == nil || s.store == nil {
			continue
		}
		if err := s.store.Delete(ctx, s.storage.Bucket, *run.ArchiveKey); err != nil {
			s.logger.Warn("Failed to delete archived export",
				zap.String("run_id", run.ID.String()),
				zap.String("key", *run.ArchiveKey),
				zap.Error(err))
		}
	}

	s.logger.Info("Purged projection runs",
		zap.Time("cutoff", cutoff),
		zap.Int("deleted", len(deleted)))

	return len(deleted), nil
}

func outcomeOf(err error) string {
	var schemaErr *leases.SchemaError
	var parseErr *leases.ParseError
	var issues projection.ValidationErrors

	switch {
	case errors.As(err, &schemaErr):
		return metrics.OutcomeSchemaError
	case errors.As(err, &parseErr):
		return metrics.OutcomeParseError
	case errors.As(err, &issues), errors.Is(err, ErrInvalidParameter), errors.Is(err, leases.ErrUnsupportedFormat):
		return metrics.OutcomeInvalidInput
	default:
		return metrics.OutcomeError
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
