// Nightowl - Metro Area Event Aggregation and Ranking
// Copyright 2026 Nightowl Contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/nightowl-live/nightowl

package pipeline

import (
	"context"
	"time"

	"github.com/nightowl-live/nightowl/internal/logging"
)

// Scheduler triggers runs on a cron schedule. It runs as a supervised
// service; a run that overlaps a still-executing one is skipped via
// ErrRunInProgress rather than queued.
type Scheduler struct {
	runner   *Runner
	schedule *Schedule
	now      func() time.Time
}

// NewScheduler parses the cron expression and builds the service. An
// empty expression returns a nil scheduler; callers skip supervision.
func NewScheduler(runner *Runner, expr string, now func() time.Time) (*Scheduler, error) {
	if expr == "" {
		return nil, nil
	}
	schedule, err := ParseSchedule(expr)
	if err != nil {
		return nil, err
	}
	if now == nil {
		now = time.Now
	}
	return &Scheduler{runner: runner, schedule: schedule, now: now}, nil
}

// Serve fires runs at each scheduled instant until the context is
// cancelled.
func (s *Scheduler) Serve(ctx context.Context) error {
	for {
		next := s.schedule.Next(s.now())
		logging.Info().Time("next_run", next).Msg("Pipeline run scheduled")

		timer := time.NewTimer(next.Sub(s.now()))
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		if _, err := s.runner.Run(ctx); err != nil {
			// ErrRunInProgress means a triggered run is still going;
			// the scheduled one is intentionally dropped.
			logging.Warn().Err(err).Msg("Scheduled pipeline run not started")
		}
	}
}

func (s *Scheduler) String() string {
	return "pipeline-scheduler"
}
