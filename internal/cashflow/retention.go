package cashflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// RetentionManager purges old projection runs on a cron schedule
type RetentionManager struct {
	service  *Service
	logger   *zap.Logger
	cron     *cron.Cron
	schedule string
	maxAge   time.Duration
	timeout  time.Duration

	mu      sync.Mutex
	running bool
}

// NewRetentionManager creates a manager that deletes runs older than
// retentionDays each time schedule fires. schedule uses the standard
// five-field cron syntax.
func NewRetentionManager(service *Service, logger *zap.Logger, schedule string, retentionDays int) (*RetentionManager, error) {
	if retentionDays <= 0 {
		return nil, fmt.Errorf("retention days must be positive, got %d", retentionDays)
	}
	if _, err := cron.ParseStandard(schedule); err != nil {
		return nil, fmt.Errorf("invalid retention schedule %q: %w", schedule, err)
	}

	return &RetentionManager{
		service:  service,
		logger:   logger,
		cron:     cron.New(),
		schedule: schedule,
		maxAge:   time.Duration(retentionDays) * 24 * time.Hour,
		timeout:  5 * time.Minute,
	}, nil
}

// Start registers the purge job and starts the scheduler
func (m *RetentionManager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return fmt.Errorf("retention manager already running")
	}

	if _, err := m.cron.AddFunc(m.schedule, m.purge); err != nil {
		return fmt.Errorf("failed to add retention job: %w", err)
	}
	m.cron.Start()
	m.running = true

	m.logger.Info("Retention manager started",
		zap.String("schedule", m.schedule),
		zap.Duration("max_age", m.maxAge))

	return nil
}

// Stop stops the scheduler and waits for a running purge to finish
func (m *RetentionManager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.running {
		return
	}

	ctx := m.cron.Stop()
	<-ctx.Done()
	m.running = false

	m.logger.Info("Retention manager stopped")
}

func (m *RetentionManager) purge() {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	if _, err := m.service.PurgeRuns(ctx, m.maxAge); err != nil {
		m.logger.Error("Retention purge failed", zap.Error(err))
	}
}
