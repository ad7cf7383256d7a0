package sweep

import (
	"context"
	"fmt"
	"time"

	"github.com/Vortex-technology1/talko-task-manager/internal/models"
	"github.com/Vortex-technology1/talko-task-manager/internal/notify"
	"github.com/Vortex-technology1/talko-task-manager/internal/store"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// EscalationGrace is how long an escalation follow-up task has to be done.
const EscalationGrace = 2 * time.Hour

func (s *Sweeper) overdue(ctx context.Context, c models.Company, now time.Time, st *Stats) error {
	open, err := s.store.ListTasks(ctx, c.ID, store.TaskFilter{Statuses: store.OpenStatuses})
	if err != nil {
		return fmt.Errorf("list open tasks: %w", err)
	}
	nowMs := now.UnixMilli()
	for i := range open {
		t := &open[i]
		deadline, ok := t.DeadlineAt()
		if !ok || !now.After(deadline) {
			continue
		}
		st.Checked++
		log := s.log.WithFields(logrus.Fields{"sweep": KindOverdue, "company": c.ID, "task": t.ID})

		if !t.OverdueNotified {
			claimed, err := s.store.ClaimOverdueNotice(ctx, c.ID, t.ID, nowMs)
			if err != nil {
				log.WithError(err).Warn("sweep: claim overdue notice")
				st.Failed++
			} else if claimed {
				s.notify(ctx, notify.Event{Kind: notify.KindOverdue, CompanyID: c.ID, Task: t, Now: now})
				st.Notified++
			}
		}

		if !escalationDue(t, deadline, now) {
			continue
		}
		claimed, err := s.store.ClaimEscalation(ctx, c.ID, t.ID, nowMs)
		if err != nil {
			log.WithError(err).Warn("sweep: claim escalation")
			st.Failed++
			continue
		}
		if !claimed {
			continue
		}
		follow, err := s.escalate(ctx, *t, now)
		if err != nil {
			log.WithError(err).Error("sweep: escalation claimed but follow-up not written")
			st.Failed++
			continue
		}
		log.WithField("follow_up", follow.ID).Info("sweep: escalated")
		st.Escalated++
	}
	return nil
}

func escalationDue(t *models.Task, deadline, now time.Time) bool {
	if !t.EscalationEnabled || t.Escalated || t.EscalationMinutes <= 0 {
		return false
	}
	return !now.Before(deadline.Add(time.Duration(t.EscalationMinutes) * time.Minute))
}

// escalate writes the follow-up task for an overdue one and tells its assignee.
func (s *Sweeper) escalate(ctx context.Context, t models.Task, now time.Time) (*models.Task, error) {
	desc := "⚠️ ESCALATION: the previous task was not done in time."
	if t.Description != "" {
		desc += "\n\n" + t.Description
	}
	f := models.Task{
		ID:              uuid.NewString(),
		CompanyID:       t.CompanyID,
		Title:           "🔄 Repeat: " + t.Title,
		Description:     desc,
		Instruction:     t.Instruction,
		ExpectedResult:  t.ExpectedResult,
		Function:        t.Function,
		AssigneeID:      t.AssigneeID,
		AssigneeName:    t.AssigneeName,
		CreatorID:       t.CreatorID,
		CreatorName:     t.CreatorName,
		Status:          models.StatusNew,
		Priority:        models.PriorityHigh,
		Source:          models.SourceEscalated,
		ProcessID:       t.ProcessID,
		ProcessStep:     t.ProcessStep,
		ProcessObject:   t.ProcessObject,
		LeadID:          t.LeadID,
		ParentTaskID:    t.ID,
		IsAutoGenerated: true,
		IsEscalation:    true,
		CreatedAt:       now.UnixMilli(),
		CreatedDate:     now.In(s.loc).Format(models.DateLayout),
		UpdatedAt:       now.UnixMilli(),
	}
	f.SetDeadline(now.Add(EscalationGrace), s.loc)
	if err := s.store.PutTask(ctx, f); err != nil {
		return nil, err
	}
	s.notify(ctx, notify.Event{Kind: notify.KindEscalated, CompanyID: f.CompanyID, Task: &f, Now: now})
	return &f, nil
}
