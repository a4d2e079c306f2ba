// Package sweep runs the periodic background jobs: offline detection, stuck
// execution timeout, and notification reminders. Every job is idempotent and
// re-checks current state, so a sweep racing a heartbeat is harmless.
package sweep

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/homelabcmd/homelabcmd/pkg/infra/logger"
	"github.com/homelabcmd/homelabcmd/pkg/notify"
	"github.com/homelabcmd/homelabcmd/pkg/service"
)

// Config holds the sweep thresholds and intervals.
type Config struct {
	// OfflineThreshold is how long a server may go without a heartbeat
	// before it is marked offline.
	OfflineThreshold time.Duration
	// OfflineInterval is how often the offline sweep runs.
	OfflineInterval time.Duration
	// ExecutionTimeout is how long an action may sit executing without a
	// result before it is failed.
	ExecutionTimeout time.Duration
	// ReminderInterval is how often notification cooldowns are re-checked.
	ReminderInterval time.Duration
}

func DefaultConfig() Config {
	return Config{
		OfflineThreshold: 180 * time.Second,
		OfflineInterval:  60 * time.Second,
		ExecutionTimeout: time.Hour,
		ReminderInterval: 5 * time.Minute,
	}
}

// Runner schedules the sweeps on a shared cron. Jobs skip a tick if the
// previous run is still going.
type Runner struct {
	cron *cron.Cron
	cfg  Config

	heartbeats *service.HeartbeatService
	actions    *service.ActionService
	dispatcher *notify.Dispatcher
}

func NewRunner(cfg Config, heartbeats *service.HeartbeatService, actions *service.ActionService, dispatcher *notify.Dispatcher) *Runner {
	return &Runner{
		cron: cron.New(cron.WithChain(
			cron.SkipIfStillRunning(cron.DiscardLogger),
			cron.Recover(cron.DiscardLogger),
		)),
		cfg:        cfg,
		heartbeats: heartbeats,
		actions:    actions,
		dispatcher: dispatcher,
	}
}

// Start registers the jobs and begins the scheduler.
func (r *Runner) Start(ctx context.Context) error {
	if _, err := r.cron.AddFunc(every(r.cfg.OfflineInterval), func() { r.offlineSweep(ctx) }); err != nil {
		return err
	}
	if _, err := r.cron.AddFunc(every(r.cfg.OfflineInterval), func() { r.stuckSweep(ctx) }); err != nil {
		return err
	}
	if r.dispatcher != nil {
		if _, err := r.cron.AddFunc(every(r.cfg.ReminderInterval), func() { r.reminderSweep(ctx) }); err != nil {
			return err
		}
	}

	r.cron.Start()
	logger.Info("sweeps started",
		"offline_threshold", r.cfg.OfflineThreshold.String(),
		"execution_timeout", r.cfg.ExecutionTimeout.String())
	return nil
}

// Stop halts the scheduler and waits for running jobs to finish.
func (r *Runner) Stop() {
	<-r.cron.Stop().Done()
}

func (r *Runner) offlineSweep(ctx context.Context) {
	marked, err := r.heartbeats.MarkStaleOffline(ctx, r.cfg.OfflineThreshold)
	if err != nil {
		logger.Error("offline sweep", "error", err)
		return
	}
	if marked > 0 {
		logger.Info("offline sweep", "marked_offline", marked)
	}
}

func (r *Runner) stuckSweep(ctx context.Context) {
	failed, err := r.actions.FailStuckExecuting(ctx, r.cfg.ExecutionTimeout)
	if err != nil {
		logger.Error("stuck execution sweep", "error", err)
		return
	}
	if failed > 0 {
		logger.Info("stuck execution sweep", "failed", failed)
	}
}

func (r *Runner) reminderSweep(ctx context.Context) {
	if sent := r.dispatcher.SweepReminders(ctx); sent > 0 {
		logger.Info("reminder sweep", "sent", sent)
	}
}

func every(d time.Duration) string {
	if d <= 0 {
		d = time.Minute
	}
	return "@every " + d.String()
}
