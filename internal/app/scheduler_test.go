package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
)

type sweeperStub struct {
	calls   int
	removed int
	err     error
}

func (s *sweeperStub) SweepExpired(ctx context.Context) (int, error) {
	s.calls++
	return s.removed, s.err
}

func newTestScheduler(sweeper SessionSweeper, schedule string) *Scheduler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewScheduler(sweeper, schedule, logger)
}

func TestScheduler_SweepSessionsCallsSweeper(t *testing.T) {
	sweeper := &sweeperStub{removed: 3}
	scheduler := newTestScheduler(sweeper, "@every 5m")

	scheduler.SweepSessions()

	if sweeper.calls != 1 {
		t.Fatalf("expected one sweep, got %d", sweeper.calls)
	}
}

func TestScheduler_SweepSessionsSurvivesErrors(t *testing.T) {
	sweeper := &sweeperStub{err: errors.New("db down")}
	scheduler := newTestScheduler(sweeper, "@every 5m")

	scheduler.SweepSessions()

	if sweeper.calls != 1 {
		t.Fatalf("expected one sweep, got %d", sweeper.calls)
	}
}

func TestScheduler_StartRejectsInvalidSchedule(t *testing.T) {
	scheduler := newTestScheduler(&sweeperStub{}, "not a schedule")

	if err := scheduler.Start(); err == nil {
		t.Fatal("expected invalid schedule to be rejected")
	}
}

func TestScheduler_StartAndStop(t *testing.T) {
	scheduler := newTestScheduler(&sweeperStub{}, "@every 1h")

	if err := scheduler.Start(); err != nil {
		t.Fatalf("unexpected start error: %v", err)
	}
	<-scheduler.Stop().Done()
}
