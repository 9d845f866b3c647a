package channelsync

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/casaolivo/bnb-server/internal/config"
	"github.com/casaolivo/bnb-server/internal/logger"
)

const (
	holdExpirySchedule = "@every 5m"
	jobTimeout         = 5 * time.Minute
)

// HoldExpirer releases lapsed payment holds.
type HoldExpirer interface {
	ExpireHolds(ctx context.Context) (int, error)
}

// cronLogger adapts our logger to cron.Logger.
type cronLogger struct {
	log *logger.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.log.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.log.Error(msg, append([]interface{}{"error", err}, keysAndValues...)...)
}

// Scheduler runs the periodic sync and hold expiry jobs in-process.
type Scheduler struct {
	cron   *cron.Cron
	logger *logger.Logger
}

func NewScheduler(cfg *config.Config, syncer *Syncer, holds HoldExpirer, log *logger.Logger) (*Scheduler, error) {
	log = log.WithComponent("scheduler")
	c := cron.New(
		cron.WithLocation(cfg.Location()),
		cron.WithLogger(cronLogger{log: log}),
		cron.WithChain(cron.Recover(cronLogger{log: log}), cron.SkipIfStillRunning(cronLogger{log: log})),
	)

	if holds != nil {
		if _, err := c.AddFunc(holdExpirySchedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
			defer cancel()
			n, err := holds.ExpireHolds(ctx)
			if err != nil {
				log.Error("hold expiry failed", "error", err.Error())
				return
			}
			if n > 0 {
				log.Info("expired payment holds", "count", n)
			}
		}); err != nil {
			return nil, fmt.Errorf("failed to schedule hold expiry: %w", err)
		}
	}

	if cfg.SmoobuSyncEnabled && syncer != nil && syncer.Enabled() {
		if _, err := c.AddFunc(cfg.SmoobuSyncSchedule, func() {
			ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
			defer cancel()
			// Run logs its own outcome.
			_, _ = syncer.Run(ctx, TriggerSchedule)
		}); err != nil {
			return nil, fmt.Errorf("invalid SMOOBU_SYNC_SCHEDULE %q: %w", cfg.SmoobuSyncSchedule, err)
		}
		log.Info("channel sync scheduled", "schedule", cfg.SmoobuSyncSchedule)
	}

	return &Scheduler{cron: c, logger: log}, nil
}

func (s *Scheduler) Start() {
	s.logger.Info("starting scheduler", "jobs", len(s.cron.Entries()))
	s.cron.Start()
}

// Stop waits for running jobs to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("scheduler stopped")
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out")
	}
}
