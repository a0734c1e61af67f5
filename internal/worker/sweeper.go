package worker

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cinema-reservation/internal/usecase"

	"go.uber.org/zap"
)

// SweeperConfig contains configuration for the expiry sweeper
type SweeperConfig struct {
	// Interval between sweeps
	Interval time.Duration
	// Timeout bounds a single sweep
	Timeout time.Duration
}

func DefaultSweeperConfig() *SweeperConfig {
	return &SweeperConfig{
		Interval: 60 * time.Second,
		Timeout:  30 * time.Second,
	}
}

// ExpirySweeper periodically expires lapsed holds. A failed or panicking sweep
// is logged and the next tick runs as usual.
type ExpirySweeper struct {
	sweeper usecase.HoldSweeper
	lease   Lease
	config  *SweeperConfig
	log     *zap.Logger
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool

	// Stats
	runs            int64
	skipped         int64
	expiredHolds    int64
	expiredPayments int64
	lastRunTime     time.Time
	lastError       string
}

// NewExpirySweeper creates a sweeper. lease may be nil, in which case every
// instance sweeps.
func NewExpirySweeper(sweeper usecase.HoldSweeper, lease Lease, config *SweeperConfig, log *zap.Logger) *ExpirySweeper {
	if config == nil {
		config = DefaultSweeperConfig()
	}
	if config.Timeout <= 0 {
		config.Timeout = config.Interval
	}

	return &ExpirySweeper{
		sweeper: sweeper,
		lease:   lease,
		config:  config,
		log:     log.With(zap.String("worker", "expiry_sweeper")),
		stopCh:  make(chan struct{}),
	}
}

func (w *ExpirySweeper) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("expiry sweeper already running")
	}
	w.running = true
	w.mu.Unlock()

	w.log.Info("Starting expiry sweeper", zap.Duration("interval", w.config.Interval))

	w.wg.Add(1)
	go w.loop(ctx)

	return nil
}

func (w *ExpirySweeper) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	w.log.Info("Stopping expiry sweeper")
	close(w.stopCh)
	w.wg.Wait()

	if w.lease != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := w.lease.Release(ctx); err != nil {
			w.log.Warn("Failed to release sweeper lease", zap.Error(err))
		}
	}
	w.log.Info("Expiry sweeper stopped")
}

func (w *ExpirySweeper) loop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.config.Interval)
	defer ticker.Stop()

	// Run immediately on start
	w.RunOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-ticker.C:
			w.RunOnce(ctx)
		}
	}
}

// RunOnce performs a single sweep if this instance holds the lease.
func (w *ExpirySweeper) RunOnce(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			w.log.Error("Expiry sweep panicked", zap.Any("panic", rec), zap.Stack("stack"))
			w.record(nil, fmt.Errorf("panic: %v", rec))
		}
	}()

	ctx, cancel := context.WithTimeout(ctx, w.config.Timeout)
	defer cancel()

	if w.lease != nil {
		leader, err := w.lease.Acquire(ctx)
		if err != nil {
			w.log.Warn("Sweeper lease unavailable, skipping", zap.Error(err))
			w.skip()
			return
		}
		if !leader {
			w.skip()
			return
		}
	}

	result, err := w.sweeper.ExpireHolds(ctx)
	if err != nil {
		w.log.Error("Expiry sweep failed", zap.Error(err))
	}
	w.record(result, err)
}

func (w *ExpirySweeper) skip() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.skipped++
}

func (w *ExpirySweeper) record(result *usecase.SweepResult, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.runs++
	w.lastRunTime = time.Now()
	if err != nil {
		w.lastError = err.Error()
		return
	}
	w.lastError = ""
	if result != nil {
		w.expiredHolds += result.Holds
		w.expiredPayments += result.Payments
	}
}

// Stats returns sweeper statistics
func (w *ExpirySweeper) Stats() *SweeperStats {
	w.mu.Lock()
	defer w.mu.Unlock()

	return &SweeperStats{
		IsRunning:       w.running,
		Runs:            w.runs,
		Skipped:         w.skipped,
		ExpiredHolds:    w.expiredHolds,
		ExpiredPayments: w.expiredPayments,
		LastRunTime:     w.lastRunTime,
		LastError:       w.lastError,
	}
}

// SweeperStats contains sweeper statistics
type SweeperStats struct {
	IsRunning       bool      `json:"is_running"`
	Runs            int64     `json:"runs"`
	Skipped         int64     `json:"skipped"`
	ExpiredHolds    int64     `json:"expired_holds"`
	ExpiredPayments int64     `json:"expired_payments"`
	LastRunTime     time.Time `json:"last_run_time"`
	LastError       string    `json:"last_error,omitempty"`
}
