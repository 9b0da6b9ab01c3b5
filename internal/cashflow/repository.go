package cashflow

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"lease-cashflow/cashflow-backend/internal/projection"
	"lease-cashflow/cashflow-backend/migrations"
)

// Repository defines the interface for projection run storage
type Repository interface {
	CreateRun(ctx context.Context, run *ProjectionRun) error
	GetRun(ctx context.Context, id uuid.UUID) (*ProjectionRun, error)
	// ListRuns returns the newest runs first, without their grids
	ListRuns(ctx context.Context, limit int) ([]*ProjectionRun, error)
	SetArchiveKey(ctx context.Context, id uuid.UUID, key string) error
	// DeleteRunsBefore removes runs created before cutoff and returns them,
	// without their grids
	DeleteRunsBefore(ctx context.Context, cutoff time.Time) ([]*ProjectionRun, error)
}

// =====================================================
// PostgreSQL
// =====================================================

// PostgresRepository implements Repository using PostgreSQL
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(db *sqlx.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// Migrate applies the embedded schema. Every script is idempotent.
func (r *PostgresRepository) Migrate(ctx context.Context) error {
	scripts, err := migrations.Scripts()
	if err != nil {
		return err
	}

	for _, script := range scripts {
		if _, err := r.db.ExecContext(ctx, script.SQL); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", script.Name, err)
		}
	}

	return nil
}

type runRow struct {
	ID                uuid.UUID      `db:"id"`
	SourceName        string         `db:"source_name"`
	ValuationDate     time.Time      `db:"valuation_date"`
	EscalationPercent float64        `db:"escalation_percent"`
	Rounding          string         `db:"rounding"`
	ValidationMode    string         `db:"validation_mode"`
	Warnings          []byte         `db:"warnings"`
	RowCount          int            `db:"row_count"`
	Grid              []byte         `db:"grid"`
	ArchiveKey        sql.NullString `db:"archive_key"`
	CreatedAt         time.Time      `db:"created_at"`
}

func (r runRow) toRun() (*ProjectionRun, error) {
	run := &ProjectionRun{
		ID:                r.ID,
		SourceName:        r.SourceName,
		ValuationDate:     projection.Date(r.ValuationDate),
		EscalationPercent: r.EscalationPercent,
		Rounding:          projection.RoundingMode(r.Rounding),
		ValidationMode:    projection.ValidationMode(r.ValidationMode),
		RowCount:          r.RowCount,
		CreatedAt:         r.CreatedAt,
	}
	if r.ArchiveKey.Valid {
		run.ArchiveKey = &r.ArchiveKey.String
	}

	if len(r.Warnings) > 0 {
		if err := json.Unmarshal(r.Warnings, &run.Warnings); err != nil {
			return nil, fmt.Errorf("failed to unmarshal warnings: %w", err)
		}
	}
	if len(r.Grid) > 0 {
		var grid projection.Grid
		if err := json.Unmarshal(r.Grid, &grid); err != nil {
			return nil, fmt.Errorf("failed to unmarshal grid: %w", err)
		}
		run.Grid = &grid
	}

	return run, nil
}

func (r *PostgresRepository) CreateRun(ctx context.Context, run *ProjectionRun) error {
	gridJSON, err := json.Marshal(run.Grid)
	if err != nil {
		return fmt.Errorf("failed to marshal grid: %w", err)
	}
	warningsJSON, err := json.Marshal(run.Warnings)
	if err != nil {
		return fmt.Errorf("failed to marshal warnings: %w", err)
	}

	query := `
		INSERT INTO projection_runs (
			id, source_name, valuation_date, escalation_percent, rounding,
			validation_mode, warnings, row_count, grid, created_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10
		)
	`

	_, err = r.db.ExecContext(ctx, query,
		run.ID, run.SourceName, run.ValuationDate, run.EscalationPercent, string(run.Rounding),
		string(run.ValidationMode), warningsJSON, run.RowCount, gridJSON, run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create projection run: %w", err)
	}

	return nil
}

func (r *PostgresRepository) GetRun(ctx context.Context, id uuid.UUID) (*ProjectionRun, error) {
	query := `
		SELECT id, source_name, valuation_date, escalation_percent, rounding,
			   validation_mode, warnings, row_count, grid, archive_key, created_at
		FROM projection_runs
		WHERE id = $1
	`

	var row runRow
	if err := r.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to get projection run: %w", err)
	}

	return row.toRun()
}

func (r *PostgresRepository) ListRuns(ctx context.Context, limit int) ([]*ProjectionRun, error) {
	query := `
		SELECT id, source_name, valuation_date, escalation_percent, rounding,
			   validation_mode, warnings, row_count, archive_key, created_at
		FROM projection_runs
		ORDER BY created_at DESC
		LIMIT $1
	`

	var rows []runRow
	if err := r.db.SelectContext(ctx, &rows, query, limit); err != nil {
		return nil, fmt.Errorf("failed to list projection runs: %w", err)
	}

	runs := make([]*ProjectionRun, 0, len(rows))
	for _, row := range rows {
		run, err := row.toRun()
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, nil
}

func (r *PostgresRepository) SetArchiveKey(ctx context.Context, id uuid.UUID, key string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE projection_runs SET archive_key = $2 WHERE id = $1`, id, key)
	if err != nil {
		return fmt.Errorf("failed to update archive key: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update archive key: %w", err)
	}
	if affected == 0 {
		return ErrRunNotFound
	}

	return nil
}

func (r *PostgresRepository) DeleteRunsBefore(ctx context.Context, cutoff time.Time) ([]*ProjectionRun, error) {
	query := `
		DELETE FROM projection_runs
		WHERE created_at < $1
		RETURNING id, source_name, valuation_date, escalation_percent, rounding,
				  validation_mode, warnings, row_count, archive_key, created_at
	`

	var rows []runRow
	if err := r.db.SelectContext(ctx, &rows, query, cutoff); err != nil {
		return nil, fmt.Errorf("failed to delete projection runs: %w", err)
	}

	runs := make([]*ProjectionRun, 0, len(rows))
	for _, row := range rows {
		run, err := row.toRun()
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, nil
}

// =====================================================
// In-memory
// =====================================================

// MemoryRepository keeps runs in process memory. It is used when no
// database is configured.
type MemoryRepository struct {
	mu   sync.RWMutex
	runs map[uuid.UUID]*ProjectionRun
}

// NewMemoryRepository creates an empty in-memory repository
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{runs: make(map[uuid.UUID]*ProjectionRun)}
}

func (r *MemoryRepository) CreateRun(ctx context.Context, run *ProjectionRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.runs[run.ID]; exists {
		return fmt.Errorf("failed to create projection run: duplicate id %s", run.ID)
	}
	stored := *run
	r.runs[run.ID] = &stored
	return nil
}

func (r *MemoryRepository) GetRun(ctx context.Context, id uuid.UUID) (*ProjectionRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	run, ok := r.runs[id]
	if !ok {
		return nil, ErrRunNotFound
	}
	copied := *run
	return &copied, nil
}

func (r *MemoryRepository) ListRuns(ctx context.Context, limit int) ([]*ProjectionRun, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	runs := make([]*ProjectionRun, 0, len(r.runs))
	for _, run := range r.runs {
		copied := *run
		copied.Grid = nil
		runs = append(runs, &copied)
	}

	sort.Slice(runs, func(i, j int) bool {
		return runs[i].CreatedAt.After(runs[j].CreatedAt)
	})

	if limit > 0 && len(runs) > limit {
		runs = runs[:limit]
	}
	return runs, nil
}

func (r *MemoryRepository) SetArchiveKey(ctx context.Context, id uuid.UUID, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	run, ok := r.runs[id]
	if !ok {
		return ErrRunNotFound
	}
	run.ArchiveKey = &key
	return nil
}

func (r *MemoryRepository) DeleteRunsBefore(ctx context.Context, cutoff time.Time) ([]*ProjectionRun, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var deleted []*ProjectionRun
	for id, run := range r.runs {
		if run.CreatedAt.Before(cutoff) {
			copied := *run
			copied.Grid = nil
			deleted = append(deleted, &copied)
			delete(r.runs, id)
		}
	}
	return deleted, nil
}
