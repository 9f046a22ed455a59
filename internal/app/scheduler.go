/**
 * @description
 * Cron scheduler for portal housekeeping. The only job today removes expired
 * sessions so their Views and bearer tokens do not outlive them.
 */
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// SessionSweeper deletes expired sessions. *SessionManager implements it.
type SessionSweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// Scheduler manages the cron jobs.
type Scheduler struct {
	cron          *cron.Cron
	sweeper       SessionSweeper
	sweepSchedule string
	logger        *slog.Logger
}

// NewScheduler creates a new scheduler instance.
func NewScheduler(sweeper SessionSweeper, sweepSchedule string, logger *slog.Logger) *Scheduler {
	cronLogger := cron.PrintfLogger(slog.NewLogLogger(logger.Handler(), slog.LevelInfo))
	c := cron.New(cron.WithChain(cron.Recover(cronLogger)))

	return &Scheduler{
		cron:          c,
		sweeper:       sweeper,
		sweepSchedule: sweepSchedule,
		logger:        logger,
	}
}

// Start registers the jobs and starts the cron scheduler.
func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.sweepSchedule, s.SweepSessions); err != nil {
		s.logger.Error("failed to schedule session sweep job", "schedule", s.sweepSchedule, "error", err)
		return err
	}
	s.logger.Info("scheduled session sweep job", "schedule", s.sweepSchedule)

	s.cron.Start()
	return nil
}

// Stop gracefully stops the cron scheduler.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

// SweepSessions removes expired sessions.
func (s *Scheduler) SweepSessions() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	removed, err := s.sweeper.SweepExpired(ctx)
	if err != nil {
		s.logger.Error("failed to sweep expired sessions", "error", err)
		return
	}
	if removed > 0 {
		s.logger.Info("expired sessions removed", "count", removed)
	}
}
