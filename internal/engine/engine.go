// Package engine advances multi-step processes: when the task of the active
// step is completed it records the result, moves the cursor and activates the
// next step's task, exactly once per step.
package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Vortex-technology1/talko-task-manager/internal/balancer"
	"github.com/Vortex-technology1/talko-task-manager/internal/models"
	"github.com/Vortex-technology1/talko-task-manager/internal/notify"
	"github.com/Vortex-technology1/talko-task-manager/internal/store"

	"github.com/sirupsen/logrus"
)

// DefaultLeadSLAMinutes is the first-step deadline of a lead process whose
// step declares no duration.
const DefaultLeadSLAMinutes = 15

type Options struct {
	Store        store.Store
	Balancer     *balancer.Balancer
	Notifier     *notify.Notifier
	Location     *time.Location
	Now          func() time.Time
	Log          *logrus.Logger
	LeadTemplate string
	LeadSLA      int
}

type Engine struct {
	store        store.Store
	balancer     *balancer.Balancer
	notifier     *notify.Notifier
	loc          *time.Location
	now          func() time.Time
	log          *logrus.Logger
	leadTemplate string
	leadSLA      int
}

func New(o Options) *Engine {
	if o.Location == nil {
		o.Location = time.UTC
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Log == nil {
		o.Log = logrus.StandardLogger()
	}
	if o.Balancer == nil {
		o.Balancer = balancer.New(o.Store, o.Location, o.Now)
	}
	if o.LeadSLA <= 0 {
		o.LeadSLA = DefaultLeadSLAMinutes
	}
	return &Engine{
		store:        o.Store,
		balancer:     o.Balancer,
		notifier:     o.Notifier,
		loc:          o.Location,
		now:          o.Now,
		log:          o.Log,
		leadTemplate: o.LeadTemplate,
		leadSLA:      o.LeadSLA,
	}
}

// Result describes what one status change did to its process.
type Result struct {
	Advanced  bool
	Completed bool
	// Created is false when the next step's task already existed.
	Created  bool
	Process  *models.Process
	NextTask *models.Task
}

// OnTaskStatusChanged reacts to a task becoming done. Changes that are not a
// completion, tasks outside a process, stale steps and already-finished
// processes are no-ops. Only a lost transaction budget or a store failure is
// returned as an error; a failed next-step activation is logged and returned
// so the caller can redeliver or replay.
func (e *Engine) OnTaskStatusChanged(ctx context.Context, before, after models.Task) (Result, error) {
	if after.ProcessID == "" || after.Status != models.StatusDone || before.Status == models.StatusDone {
		return Result{}, nil
	}
	log := e.log.WithFields(logrus.Fields{
		"company": after.CompanyID, "process": after.ProcessID, "step": after.ProcessStep, "task": after.ID,
	})

	current, err := e.store.GetProcess(ctx, after.CompanyID, after.ProcessID)
	if errors.Is(err, store.ErrNotFound) {
		log.Warn("engine: process not found")
		return Result{}, nil
	}
	if err != nil {
		return Result{}, fmt.Errorf("load process: %w", err)
	}
	tmpl, err := e.store.GetTemplate(ctx, after.CompanyID, current.TemplateID)
	if err != nil {
		return Result{}, fmt.Errorf("load template %s: %w", current.TemplateID, err)
	}

	now := e.now()
	completedBy := after.CompletedBy
	if completedBy == "" {
		completedBy = after.AssigneeID
	}
	completedByName := after.AssigneeName
	if completedBy != after.AssigneeID {
		if u, err := e.store.GetUser(ctx, after.CompanyID, completedBy); err == nil {
			completedByName = u.DisplayName()
		}
	}
	completedAt := after.CompletedAt
	if completedAt == 0 {
		completedAt = now.UnixMilli()
	}

	p, err := e.store.AdvanceProcess(ctx, after.CompanyID, after.ProcessID, after.ID, func(p *models.Process) error {
		if p.Status != models.ProcessActive || after.ProcessStep != p.CurrentStep {
			return store.ErrPrecondition
		}
		step := models.Step{Function: after.Function, Title: after.Title}
		if p.CurrentStep < len(tmpl.Steps) {
			step = tmpl.Steps[p.CurrentStep]
		}
		p.StepResults = append(p.StepResults, models.StepResult{
			Step:            p.CurrentStep,
			Function:        step.Function,
			Title:           step.DisplayTitle(),
			CompletedBy:     completedBy,
			CompletedByName: completedByName,
			CompletedAt:     completedAt,
			TaskID:          after.ID,
			Result:          after.CompletionComment,
			TrackedMinutes:  after.TrackedMinutes,
		})
		p.History = append(p.History, models.HistoryEntry{
			Step:            p.CurrentStep,
			StepTitle:       step.DisplayTitle(),
			CompletedAt:     completedAt,
			CompletedBy:     completedBy,
			CompletedByName: completedByName,
			TaskID:          after.ID,
		})
		p.CurrentStep++
		if p.CurrentStep >= len(tmpl.Steps) {
			p.Status = models.ProcessCompleted
			p.CompletedAt = now.UnixMilli()
		}
		return nil
	})
	switch {
	case errors.Is(err, store.ErrPrecondition):
		log.Debug("engine: stale or duplicate completion, skipping")
		return Result{}, nil
	case errors.Is(err, store.ErrConflict):
		log.WithError(err).Error("engine: advancement retry budget exhausted, replay needed")
		return Result{}, err
	case err != nil:
		return Result{}, fmt.Errorf("advance process: %w", err)
	}

	res := Result{Advanced: true, Process: p}
	if p.Status == models.ProcessCompleted {
		res.Completed = true
		log.Info("engine: process completed")
		e.notify(ctx, notify.Event{
			Kind: notify.KindProcessCompleted, CompanyID: p.CompanyID, Process: p,
			StepCount: len(tmpl.Steps), Now: now,
		})
		return res, nil
	}

	next, created, err := e.activate(ctx, p, tmpl, "")
	if err != nil {
		log.WithError(err).WithField("next_step", p.CurrentStep).
			Error("engine: next step activation failed, replay needed")
		return res, err
	}
	res.NextTask, res.Created = next, created
	return res, nil
}

// Replay reports what ActivateStep did to a process.
type Replay struct {
	Process *models.Process `json:"process"`
	// Task is the open task of the current step after the replay.
	Task      *models.Task `json:"task"`
	Created   bool         `json:"created"`
	Advanced  bool         `json:"advanced"`
	Completed bool         `json:"completed"`
}

// ActivateStep repairs a process stuck between steps. A current-step task
// that is done but was never advanced on is advanced now; a missing
// current-step task is created. An open task is returned untouched. Running
// it twice changes nothing.
func (e *Engine) ActivateStep(ctx context.Context, companyID, processID string) (Replay, error) {
	// a lost race against a live advancement is retried once on a fresh read
	for attempt := 0; ; attempt++ {
		p, err := e.store.GetProcess(ctx, companyID, processID)
		if err != nil {
			return Replay{}, err
		}
		if p.Status != models.ProcessActive {
			return Replay{Process: p}, fmt.Errorf("process %s is %s: %w", processID, p.Status, store.ErrPrecondition)
		}
		step := p.CurrentStep
		tasks, err := e.store.ListTasks(ctx, companyID, store.TaskFilter{ProcessID: processID, ProcessStep: &step})
		if err != nil {
			return Replay{}, err
		}

		var stalled *models.Task
		for i := range tasks {
			t := tasks[i]
			if t.Status != models.StatusDone {
				return Replay{Process: p, Task: &t}, nil
			}
			if t.ProcessAdvancedAt == 0 && stalled == nil {
				stalled = &t
			}
		}

		if stalled != nil {
			before := *stalled
			before.Status = models.StatusProgress
			res, err := e.OnTaskStatusChanged(ctx, before, *stalled)
			if err != nil {
				return Replay{Process: res.Process, Task: res.NextTask, Created: res.Created, Advanced: res.Advanced}, err
			}
			if res.Advanced {
				e.log.WithFields(logrus.Fields{"company": companyID, "process": processID, "step": step, "task": stalled.ID}).
					Info("engine: stalled completion advanced")
				return Replay{
					Process: res.Process, Task: res.NextTask, Created: res.Created,
					Advanced: true, Completed: res.Completed,
				}, nil
			}
			if attempt == 0 {
				continue
			}
			return Replay{Process: p}, fmt.Errorf("process %s step %d: %w", processID, step, store.ErrConflict)
		}

		tmpl, err := e.store.GetTemplate(ctx, companyID, p.TemplateID)
		if err != nil {
			return Replay{Process: p}, fmt.Errorf("load template %s: %w", p.TemplateID, err)
		}
		t, created, err := e.activate(ctx, p, tmpl, "")
		if err != nil {
			return Replay{Process: p}, err
		}
		return Replay{Process: p, Task: t, Created: created}, nil
	}
}

func (e *Engine) notify(ctx context.Context, ev notify.Event) {
	if e.notifier != nil {
		e.notifier.Notify(ctx, ev)
	}
}
