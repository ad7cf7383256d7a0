package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/Vortex-technology1/talko-task-manager/internal/models"
	"github.com/Vortex-technology1/talko-task-manager/internal/notify"
	"github.com/Vortex-technology1/talko-task-manager/internal/store"

	"github.com/sirupsen/logrus"
)

// ReminderTolerance is the half-width, in minutes, of the window around each
// reminder offset.
const ReminderTolerance = 3

func (s *Sweeper) reminders(ctx context.Context, c models.Company, now time.Time, st *Stats) error {
	open, err := s.store.ListTasks(ctx, c.ID, store.TaskFilter{Statuses: store.OpenStatuses})
	if err != nil {
		return fmt.Errorf("list open tasks: %w", err)
	}
	for i := range open {
		t := &open[i]
		deadline, ok := t.DeadlineAt()
		if !ok {
			continue
		}
		until := deadline.Sub(now)
		if until < 0 {
			continue
		}
		st.Checked++
		for _, off := range DueOffsets(t, until) {
			claimed, err := s.store.ClaimReminder(ctx, c.ID, t.ID, off, now.UnixMilli())
			if err != nil {
				s.log.WithFields(logrus.Fields{"sweep": KindReminder, "company": c.ID, "task": t.ID, "offset": off}).
					WithError(err).Warn("sweep: claim reminder")
				st.Failed++
				continue
			}
			if !claimed {
				continue
			}
			s.notify(ctx, notify.Event{Kind: notify.KindReminder, CompanyID: c.ID, Task: t, Offset: off, Now: now})
			st.Notified++
		}
	}
	return nil
}

// DueOffsets returns the reminder offsets whose window contains until and
// that have not been sent yet. Windows are closed at both ends.
func DueOffsets(t *models.Task, until time.Duration) []int {
	var due []int
	for _, off := range t.ReminderOffsets() {
		lo := time.Duration(off-ReminderTolerance) * time.Minute
		hi := time.Duration(off+ReminderTolerance) * time.Minute
		if until < lo || until > hi {
			continue
		}
		if t.HasSentReminder(off) {
			continue
		}
		due = append(due, off)
	}
	return due
}
