package sweep

import (
	"context"
	"time"

	"github.com/Vortex-technology1/talko-task-manager/internal/models"

	"github.com/sirupsen/logrus"
)

// Schedule drives the sweeps on wall-clock timers in one process.
type Schedule struct {
	Sweeper *Sweeper
	// Interval paces the overdue and reminder sweeps.
	Interval time.Duration
	// ScheduledInterval paces scheduled task activation and the repair of
	// stalled processes.
	ScheduledInterval time.Duration
	// ReportHour is the local hour the daily report goes out. Weekly
	// reports follow on Mondays.
	ReportHour int
	Location   *time.Location
	Now        func() time.Time
	Log        *logrus.Logger

	lastReport string
}

const reportPoll = time.Minute

// Run blocks until ctx is cancelled.
func (s *Schedule) Run(ctx context.Context) error {
	if s.Now == nil {
		s.Now = time.Now
	}
	if s.Location == nil {
		s.Location = time.UTC
	}
	if s.Interval <= 0 {
		s.Interval = 5 * time.Minute
	}
	if s.ScheduledInterval <= 0 {
		s.ScheduledInterval = 15 * time.Minute
	}
	sweeps := time.NewTicker(s.Interval)
	defer sweeps.Stop()
	scheduled := time.NewTicker(s.ScheduledInterval)
	defer scheduled.Stop()
	reports := time.NewTicker(reportPoll)
	defer reports.Stop()

	s.Log.WithFields(logrus.Fields{
		"interval": s.Interval.String(), "scheduledInterval": s.ScheduledInterval.String(), "reportHour": s.ReportHour,
	}).Info("schedule: started")

	// catch up right away instead of waiting a full interval
	s.run(ctx, KindOverdue, KindReminder, KindScheduledTasks, KindStalledProcesses)
	s.run(ctx, s.dueReports(s.Now())...)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-sweeps.C:
			s.run(ctx, KindOverdue, KindReminder)
		case <-scheduled.C:
			s.run(ctx, KindScheduledTasks, KindStalledProcesses)
		case <-reports.C:
			s.run(ctx, s.dueReports(s.Now())...)
		}
	}
}

func (s *Schedule) run(ctx context.Context, kinds ...string) {
	for _, k := range kinds {
		if ctx.Err() != nil {
			return
		}
		if _, err := s.Sweeper.Run(ctx, k); err != nil {
			s.Log.WithField("sweep", k).WithError(err).Error("schedule: sweep failed")
		}
	}
}

// dueReports returns the report kinds to run at now, at most once per local
// day.
func (s *Schedule) dueReports(now time.Time) []string {
	local := now.In(s.Location)
	today := local.Format(models.DateLayout)
	if local.Hour() != s.ReportHour || s.lastReport == today {
		return nil
	}
	s.lastReport = today
	kinds := []string{KindDailyReport}
	if local.Weekday() == time.Monday {
		kinds = append(kinds, KindWeeklyReport)
	}
	return kinds
}
