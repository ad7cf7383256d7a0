package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/Vortex-technology1/talko-task-manager/internal/models"
	"github.com/Vortex-technology1/talko-task-manager/internal/notify"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

func (s *Sweeper) scheduledTasks(ctx context.Context, c models.Company, now time.Time, st *Stats) error {
	due, err := s.store.ListDueScheduledTasks(ctx, c.ID, now.UnixMilli())
	if err != nil {
		return fmt.Errorf("list scheduled tasks: %w", err)
	}
	for _, sched := range due {
		st.Checked++
		log := s.log.WithFields(logrus.Fields{"sweep": KindScheduledTasks, "company": c.ID, "scheduled": sched.ID})
		claimed, err := s.store.ClaimScheduledTask(ctx, c.ID, sched.ID)
		if err != nil {
			log.WithError(err).Warn("sweep: claim scheduled task")
			st.Failed++
			continue
		}
		if !claimed {
			continue
		}
		t, err := s.materialize(sched, now)
		if err != nil {
			log.WithError(err).Error("sweep: bad scheduled task")
			st.Failed++
			continue
		}
		if err := s.store.PutTask(ctx, t); err != nil {
			log.WithError(err).Error("sweep: scheduled task claimed but not written")
			st.Failed++
			continue
		}
		st.Activated++
		s.notify(ctx, notify.Event{Kind: notify.KindNewTask, CompanyID: c.ID, Task: &t, Now: now})
	}
	return nil
}

func (s *Sweeper) materialize(sched models.ScheduledTask, now time.Time) (models.Task, error) {
	t := sched.TaskData
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.CompanyID = sched.CompanyID
	t.ScheduledTaskID = sched.ID
	t.Status = models.StatusNew
	t.Source = models.SourceSchedule
	if t.Priority == "" {
		t.Priority = models.PriorityMedium
	}
	t.IsAutoGenerated = true
	t.CreatedAt = now.UnixMilli()
	t.CreatedDate = now.In(s.loc).Format(models.DateLayout)
	t.UpdatedAt = now.UnixMilli()

	date := t.DeadlineDate
	if date == "" {
		date = now.In(s.loc).Format(models.DateLayout)
	}
	at, err := models.ParseDeadline(date, t.DeadlineTime, s.loc)
	if err != nil {
		return models.Task{}, fmt.Errorf("deadline %q %q: %w", date, t.DeadlineTime, err)
	}
	t.SetDeadline(at, s.loc)
	return t, nil
}
