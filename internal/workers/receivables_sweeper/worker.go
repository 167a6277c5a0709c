// Package receivables_sweeper periodically folds pending receivables
// into every custodial account, so balances reported to users reflect
// funds deposited from outside the bot.
package receivables_sweeper

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/xnotip/tipbot_service/internal/domain/entities"
)

// AccountLister enumerates the custodial accounts
type AccountLister interface {
	ListAll(ctx context.Context) ([]*entities.Account, error)
}

// Sweeper receives pending funds for one address
type Sweeper interface {
	SweepReceivables(ctx context.Context, address string) error
}

// Config holds worker configuration
type Config struct {
	Schedule   string // cron expression
	RunTimeout time.Duration
}

// DefaultConfig returns default worker configuration
func DefaultConfig() *Config {
	return &Config{
		Schedule:   "*/15 * * * *",
		RunTimeout: 10 * time.Minute,
	}
}

// Worker sweeps receivables on a fixed schedule
type Worker struct {
	accounts AccountLister
	sweeper  Sweeper
	config   *Config
	logger   *zap.Logger
	cron     *cron.Cron
}

// NewWorker creates a new receivables sweeper worker
func NewWorker(accounts AccountLister, sweeper Sweeper, config *Config, logger *zap.Logger) *Worker {
	if config == nil {
		config = DefaultConfig()
	}
	if config.Schedule == "" {
		config.Schedule = DefaultConfig().Schedule
	}
	if config.RunTimeout <= 0 {
		config.RunTimeout = DefaultConfig().RunTimeout
	}
	return &Worker{
		accounts: accounts,
		sweeper:  sweeper,
		config:   config,
		logger:   logger,
	}
}

// Start schedules the sweeps. The first run happens immediately.
func (w *Worker) Start(ctx context.Context) error {
	w.cron = cron.New()
	_, err := w.cron.AddFunc(w.config.Schedule, func() {
		w.RunOnce(ctx)
	})
	if err != nil {
		return err
	}

	w.logger.Info("Starting receivables sweeper", zap.String("schedule", w.config.Schedule))
	go w.RunOnce(ctx)
	w.cron.Start()
	return nil
}

// Stop halts the schedule and waits for a running sweep to finish.
func (w *Worker) Stop() {
	if w.cron == nil {
		return
	}
	stopCtx := w.cron.Stop()
	<-stopCtx.Done()
	w.logger.Info("Receivables sweeper stopped")
}

// RunOnce sweeps every custodial account. A failing account is logged
// and skipped; the rest of the pass continues.
func (w *Worker) RunOnce(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, w.config.RunTimeout)
	defer cancel()

	accounts, err := w.accounts.ListAll(runCtx)
	if err != nil {
		w.logger.Error("Failed to list accounts for sweep", zap.Error(err))
		return
	}

	swept := 0
	for _, account := range accounts {
		if runCtx.Err() != nil {
			w.logger.Warn("Sweep pass interrupted",
				zap.Int("swept", swept), zap.Int("total", len(accounts)))
			return
		}
		if err := w.sweeper.SweepReceivables(runCtx, account.LedgerAddress); err != nil {
			w.logger.Error("Sweep failed for account",
				zap.String("address", account.LedgerAddress), zap.Error(err))
			continue
		}
		swept++
	}

	w.logger.Info("Sweep pass complete", zap.Int("accounts", swept))
}
