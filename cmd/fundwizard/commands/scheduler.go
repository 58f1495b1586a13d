package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// screenRetention is how long a resolved confirmation screen stays
// readable through the API.
const screenRetention = 30 * time.Minute

// scheduler runs the periodic sweeps of a running app.
type scheduler struct {
	cron *cron.Cron
	app  *app
}

func newScheduler(a *app) *scheduler {
	return &scheduler{cron: cron.New(cron.WithSeconds()), app: a}
}

// register adds the session sweep and, for a SQL backing, the expired draft
// sweep.
func (s *scheduler) register() error {
	sc := s.app.cfg.Schedule
	if _, err := s.cron.AddFunc(sc.SessionSweepCron, s.sweepSessions); err != nil {
		return fmt.Errorf("register session sweep: %w", err)
	}
	if s.app.sql != nil {
		if _, err := s.cron.AddFunc(sc.DraftSweepCron, s.sweepDrafts); err != nil {
			return fmt.Errorf("register draft sweep: %w", err)
		}
	}
	return nil
}

func (s *scheduler) start() {
	s.cron.Start()
	s.app.logger.Info("scheduler started", zap.Int("jobs", len(s.cron.Entries())))
}

// stop waits for running jobs up to ctx.
func (s *scheduler) stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
	s.app.logger.Info("scheduler stopped")
}

func (s *scheduler) sweepSessions() {
	sessions := s.app.wizards.Sweep(s.app.cfg.Schedule.SessionIdle)
	screens := s.app.server.SweepScreens(screenRetention)
	if sessions > 0 || screens > 0 {
		s.app.logger.Info("idle wizard state forgotten", zap.Int("sessions", sessions), zap.Int("screens", screens))
	}
}

func (s *scheduler) sweepDrafts() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	n, err := s.app.sql.Sweep(ctx)
	if err != nil {
		s.app.logger.Error("draft sweep failed", zap.Error(err))
		return
	}
	if n > 0 {
		s.app.logger.Info("expired drafts purged", zap.Int64("rows", n))
	}
}
