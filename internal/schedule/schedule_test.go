package schedule

import (
	"context"
	"testing"
	"time"

	"github.com/jakopako/bankpull/internal/settings"
	"github.com/jakopako/bankpull/internal/types"
	"github.com/jakopako/bankpull/internal/workflow"
)

type fakeStarter struct {
	ranges []types.DateRange
	err    error
}

func (f *fakeStarter) Start(ctx context.Context, dr types.DateRange) (string, error) {
	f.ranges = append(f.ranges, dr)
	return "run", f.err
}

func TestLookbackRange(t *testing.T) {
	now := time.Date(2024, 3, 5, 6, 0, 0, 0, time.UTC)
	tests := []struct {
		days     int
		layout   string
		locale   string
		expected types.DateRange
	}{
		{7, "02/01/2006", "en_US", types.DateRange{Start: "28/02/2024", End: "05/03/2024"}},
		{1, "02/01/2006", "en_US", types.DateRange{Start: "05/03/2024", End: "05/03/2024"}},
		{0, "2006-01-02", "en_US", types.DateRange{Start: "2024-03-05", End: "2024-03-05"}},
		{5, "2 January 2006", "de_DE", types.DateRange{Start: "1 März 2024", End: "5 März 2024"}},
	}
	for _, tt := range tests {
		got := LookbackRange(now, tt.days, tt.layout, tt.locale)
		if got != tt.expected {
			t.Errorf("LookbackRange(%d, %q, %q) = %+v; want %+v", tt.days, tt.layout, tt.locale, got, tt.expected)
		}
	}
}

func TestTrigger(t *testing.T) {
	starter := &fakeStarter{}
	s := New(starter, func() settings.ScheduleSettings {
		return settings.ScheduleSettings{LookbackDays: 2, DateLayout: "02/01/2006", Locale: "en_US"}
	})
	s.now = func() time.Time { return time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC) }

	s.Trigger(context.Background())
	if len(starter.ranges) != 1 {
		t.Fatalf("expected one run to be started, got %d", len(starter.ranges))
	}
	if expected := (types.DateRange{Start: "30/01/2024", End: "31/01/2024"}); starter.ranges[0] != expected {
		t.Fatalf("expected %+v, got %+v", expected, starter.ranges[0])
	}

	// an overlapping run is only logged
	starter.err = workflow.ErrRunInProgress
	s.Trigger(context.Background())
	if len(starter.ranges) != 2 {
		t.Fatalf("expected a second start attempt, got %d", len(starter.ranges))
	}
}

func TestStartDisabled(t *testing.T) {
	s := New(&fakeStarter{}, func() settings.ScheduleSettings { return settings.ScheduleSettings{} })
	if err := s.Start(context.Background()); err != nil {
		t.Fatalf("got unexpected error: %v", err)
	}
	if s.cron != nil {
		t.Fatalf("expected no cron to be started")
	}
}

func TestStartInvalidCron(t *testing.T) {
	s := New(&fakeStarter{}, func() settings.ScheduleSettings { return settings.ScheduleSettings{Cron: "every day"} })
	if err := s.Start(context.Background()); err == nil {
		t.Fatalf("expected an error for an invalid expression")
	}
}

func TestStartStopsWithContext(t *testing.T) {
	s := New(&fakeStarter{}, func() settings.ScheduleSettings { return settings.ScheduleSettings{Cron: "0 0 6 * * *"} })
	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		t.Fatalf("got unexpected error: %v", err)
	}
	if entries := s.cron.Entries(); len(entries) != 1 {
		t.Fatalf("expected one scheduled entry, got %d", len(entries))
	}
	cancel()
}
