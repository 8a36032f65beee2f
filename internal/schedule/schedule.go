// Package schedule starts imports periodically for a rolling date range.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/goodsign/monday"
	"github.com/jakopako/bankpull/internal/settings"
	"github.com/jakopako/bankpull/internal/types"
	"github.com/jakopako/bankpull/internal/workflow"
	"github.com/robfig/cron"
)

// Starter starts a detached import run.
type Starter interface {
	Start(ctx context.Context, dr types.DateRange) (string, error)
}

// LookbackRange returns the range covering the days days up to and
// including now, formatted with layout in the given locale.
func LookbackRange(now time.Time, days int, layout, locale string) types.DateRange {
	if days < 1 {
		days = 1
	}
	start := now.AddDate(0, 0, -(days - 1))
	l := monday.Locale(locale)
	return types.DateRange{
		Start: monday.Format(start, layout, l),
		End:   monday.Format(now, layout, l),
	}
}

// Scheduler triggers an import whenever its cron expression fires.
type Scheduler struct {
	starter  Starter
	settings func() settings.ScheduleSettings
	now      func() time.Time
	cron     *cron.Cron
	logger   *slog.Logger
}

func New(starter Starter, s func() settings.ScheduleSettings) *Scheduler {
	return &Scheduler{
		starter:  starter,
		settings: s,
		now:      time.Now,
		logger:   slog.With(slog.String("component", "schedule")),
	}
}

// Start schedules imports until ctx is done. It returns without doing
// anything if no cron expression is configured. Cron expressions have
// six fields starting with the seconds, e.g. "0 0 6 * * *".
func (s *Scheduler) Start(ctx context.Context) error {
	cfg := s.settings()
	if cfg.Cron == "" {
		s.logger.Info("no schedule configured")
		return nil
	}
	sched, err := cron.Parse(cfg.Cron)
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", cfg.Cron, err)
	}
	s.cron = cron.New()
	s.cron.Schedule(sched, cron.FuncJob(func() { s.Trigger(ctx) }))
	s.cron.Start()
	s.logger.Info("import scheduled", slog.String("cron", cfg.Cron), slog.Time("next", sched.Next(s.now())))
	go func() {
		<-ctx.Done()
		s.cron.Stop()
	}()
	return nil
}

// Trigger starts an import for the configured lookback period. A run
// that is already in progress is left alone.
func (s *Scheduler) Trigger(ctx context.Context) {
	cfg := s.settings()
	dr := LookbackRange(s.now(), cfg.LookbackDays, cfg.DateLayout, cfg.Locale)
	id, err := s.starter.Start(ctx, dr)
	if errors.Is(err, workflow.ErrRunInProgress) {
		s.logger.Warn("skipping scheduled import, an import is already running")
		return
	}
	if err != nil {
		s.logger.Error("failed to start scheduled import", slog.String("err", err.Error()))
		return
	}
	s.logger.Info("scheduled import started", slog.String("run", id), slog.String("start", dr.Start), slog.String("end", dr.End))
}
