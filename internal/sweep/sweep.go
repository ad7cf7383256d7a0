// Package sweep runs the periodic jobs: overdue detection with escalation,
// deadline reminders, scheduled-task activation, repair of processes stuck
// between steps and the daily and weekly reports. Every notice is claimed in the store before it is sent, so
// overlapping or repeated runs deliver it at most once.
package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Vortex-technology1/talko-task-manager/internal/models"
	"github.com/Vortex-technology1/talko-task-manager/internal/notify"
	"github.com/Vortex-technology1/talko-task-manager/internal/store"

	"github.com/sirupsen/logrus"
)

// Sweep kinds.
const (
	KindOverdue          = "overdue"
	KindReminder         = "reminder"
	KindScheduledTasks   = "scheduledTasks"
	KindStalledProcesses = "stalledProcesses"
	KindDailyReport      = "dailyReport"
	KindWeeklyReport     = "weeklyReport"
)

// Kinds lists every sweep in the order the scheduler registers them.
var Kinds = []string{KindOverdue, KindReminder, KindScheduledTasks, KindStalledProcesses, KindDailyReport, KindWeeklyReport}

var ErrUnknownKind = errors.New("sweep: unknown kind")

// Stats summarizes one run across all companies.
type Stats struct {
	Kind      string `json:"kind"`
	Companies int    `json:"companies"`
	Checked   int    `json:"checked"`
	Notified  int    `json:"notified"`
	Escalated int    `json:"escalated"`
	Activated int    `json:"activated"`
	Failed    int    `json:"failed"`
}

type Options struct {
	Store    store.Store
	Notifier *notify.Notifier
	// Processes backs the stalled-process sweep, which is a no-op without it.
	Processes Processes
	Location  *time.Location
	Now       func() time.Time
	Log       *logrus.Logger
}

type Sweeper struct {
	store     store.Store
	notifier  *notify.Notifier
	processes Processes
	loc       *time.Location
	now       func() time.Time
	log       *logrus.Logger
}

func New(o Options) *Sweeper {
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Log == nil {
		o.Log = logrus.StandardLogger()
	}
	return &Sweeper{store: o.Store, notifier: o.Notifier, processes: o.Processes, loc: o.Location, now: o.Now, log: o.Log}
}

type companyFunc func(ctx context.Context, c models.Company, now time.Time, st *Stats) error

// Run executes one sweep over every company. A failing company is logged
// and counted; the rest are still processed.
func (s *Sweeper) Run(ctx context.Context, kind string) (Stats, error) {
	var fn companyFunc
	switch kind {
	case KindOverdue:
		fn = s.overdue
	case KindReminder:
		fn = s.reminders
	case KindScheduledTasks:
		fn = s.scheduledTasks
	case KindStalledProcesses:
		fn = s.stalledProcesses
	case KindDailyReport:
		fn = s.dailyReport
	case KindWeeklyReport:
		fn = s.weeklyReport
	default:
		return Stats{}, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	st := Stats{Kind: kind}
	companies, err := s.store.ListCompanies(ctx)
	if err != nil {
		return st, fmt.Errorf("list companies: %w", err)
	}
	now := s.now()
	for _, c := range companies {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		st.Companies++
		if err := fn(ctx, c, now, &st); err != nil {
			st.Failed++
			s.log.WithFields(logrus.Fields{"sweep": kind, "company": c.ID}).WithError(err).Error("sweep: company failed")
		}
	}
	s.log.WithFields(logrus.Fields{
		"sweep": kind, "companies": st.Companies, "checked": st.Checked,
		"notified": st.Notified, "escalated": st.Escalated, "activated": st.Activated, "failed": st.Failed,
	}).Info("sweep: done")
	return st, nil
}

func (s *Sweeper) notify(ctx context.Context, ev notify.Event) notify.Report {
	if s.notifier == nil {
		return notify.Report{}
	}
	return s.notifier.Notify(ctx, ev)
}
