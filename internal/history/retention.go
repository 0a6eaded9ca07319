package history

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Retention prunes old history rows on a cron schedule.
type Retention struct {
	store     *Store
	olderThan time.Duration
	cron      *cron.Cron

	logger   Logger
	loggerMu sync.RWMutex
}

// NewRetention schedules pruning of rows older than olderThan.
//
// Parameters:
//   - store: history store to prune
//   - schedule: standard five-field cron spec, e.g. "15 3 * * *"
//   - olderThan: retention period
//
// Returns:
//   - *Retention: job ready to Run
//   - error: ErrInvalidRetention or a schedule parse error
func NewRetention(store *Store, schedule string, olderThan time.Duration) (*Retention, error) {
	if olderThan <= 0 {
		return nil, ErrInvalidRetention
	}

	r := &Retention{
		store:     store,
		olderThan: olderThan,
		cron:      cron.New(),
		logger:    noopLogger{},
	}

	if _, err := r.cron.AddFunc(schedule, r.prune); err != nil {
		return nil, fmt.Errorf("history: invalid cleanup schedule %q: %w", schedule, err)
	}
	return r, nil
}

// SetLogger sets the logger for prune results.
func (r *Retention) SetLogger(logger Logger) {
	if logger == nil {
		logger = noopLogger{}
	}
	r.loggerMu.Lock()
	r.logger = logger
	r.loggerMu.Unlock()
}

func (r *Retention) getLogger() Logger {
	r.loggerMu.RLock()
	defer r.loggerMu.RUnlock()
	return r.logger
}

// RunOnce prunes immediately.
//
// Returns:
//   - int64: number of rows deleted
func (r *Retention) RunOnce(ctx context.Context) (int64, error) {
	return r.store.Prune(ctx, r.olderThan)
}

// Run prunes once, then on every scheduled tick until ctx is cancelled.
// It waits for a running prune to finish before returning.
func (r *Retention) Run(ctx context.Context) error {
	if _, err := r.RunOnce(ctx); err != nil {
		return fmt.Errorf("initial history prune: %w", err)
	}

	r.cron.Start()
	<-ctx.Done()
	<-r.cron.Stop().Done()
	return nil
}

// prune is the scheduled job.
func (r *Retention) prune() {
	n, err := r.RunOnce(context.Background())
	if err != nil {
		r.getLogger().Error("pruning state history failed", "error", err)
		return
	}
	r.getLogger().Info("pruned state history", "deleted", n, "older_than", r.olderThan.String())
}
