package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Vortex-technology1/talko-task-manager/internal/models"
	"github.com/Vortex-technology1/talko-task-manager/internal/notify"
	"github.com/Vortex-technology1/talko-task-manager/internal/store"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrEmptyTemplate is returned when a process is started from a template
// without steps.
var ErrEmptyTemplate = errors.New("engine: template has no steps")

// Minutes assumed for a step without SLA or estimate when back-calculating
// from a process deadline.
const defaultStepMinutes = 60

// StartRequest starts a process from a template, by id or by name.
type StartRequest struct {
	CompanyID    string
	TemplateID   string
	TemplateName string
	ObjectName   string
	LeadID       string
	Deadline     string
	CreatedBy    string
	// Preamble is prepended to the first step's instruction.
	Preamble string
}

// StartProcess creates the process at step 0 and activates its first task.
func (e *Engine) StartProcess(ctx context.Context, req StartRequest) (*models.Process, *models.Task, error) {
	var (
		tmpl *models.ProcessTemplate
		err  error
	)
	if req.TemplateID != "" {
		tmpl, err = e.store.GetTemplate(ctx, req.CompanyID, req.TemplateID)
	} else {
		tmpl, err = e.store.FindTemplateByName(ctx, req.CompanyID, req.TemplateName)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("load template: %w", err)
	}
	if len(tmpl.Steps) == 0 {
		return nil, nil, fmt.Errorf("%w: %s", ErrEmptyTemplate, tmpl.Name)
	}

	now := e.now()
	p := &models.Process{
		ID:          uuid.NewString(),
		CompanyID:   req.CompanyID,
		Name:        tmpl.Name,
		TemplateID:  tmpl.ID,
		ObjectName:  req.ObjectName,
		LeadID:      req.LeadID,
		Status:      models.ProcessActive,
		CurrentStep: 0,
		StepResults: []models.StepResult{},
		History:     []models.HistoryEntry{},
		Deadline:    req.Deadline,
		CreatedBy:   req.CreatedBy,
		CreatedAt:   now.UnixMilli(),
	}
	if err := e.store.PutProcess(ctx, *p); err != nil {
		return nil, nil, fmt.Errorf("put process: %w", err)
	}
	e.log.WithFields(logrus.Fields{"company": p.CompanyID, "process": p.ID, "template": tmpl.Name}).
		Info("engine: process started")

	t, _, err := e.activate(ctx, p, tmpl, req.Preamble)
	if err != nil {
		return p, nil, err
	}
	return p, t, nil
}

// StepTaskID is the id of the task activated for step idx of a process. It
// is derived from both so that activating a step again finds the same task.
func StepTaskID(processID string, idx int) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("process/%s/step/%d", processID, idx))).String()
}

// activate writes the task for p.CurrentStep and notifies its assignee and
// the managers. If the step's task already exists it is returned as is and
// nobody is notified again.
func (e *Engine) activate(ctx context.Context, p *models.Process, tmpl *models.ProcessTemplate, preamble string) (*models.Task, bool, error) {
	idx := p.CurrentStep
	if idx < 0 || idx >= len(tmpl.Steps) {
		return nil, false, fmt.Errorf("process %s: step %d out of range (%d steps)", p.ID, idx, len(tmpl.Steps))
	}
	step := tmpl.Steps[idx]
	now := e.now()
	id := StepTaskID(p.ID, idx)

	existing, err := e.store.GetTask(ctx, p.CompanyID, id)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, false, fmt.Errorf("load step task: %w", err)
	}

	assigneeID, assigneeName, err := e.assignee(ctx, p.CompanyID, step)
	if err != nil {
		return nil, false, err
	}

	instruction := BuildInstruction(p.StepResults, step.Instruction)
	if preamble != "" {
		instruction = strings.TrimSpace(preamble + "\n\n" + instruction)
	}

	title := step.DisplayTitle()
	if p.ObjectName != "" {
		title = fmt.Sprintf("%s (%s)", title, p.ObjectName)
	}
	source, priority := models.SourceProcess, models.PriorityMedium
	escalate, escalateAfter := false, 0
	if p.LeadID != "" {
		source = models.SourceLead
		if idx == 0 {
			priority, escalate, escalateAfter = models.PriorityHigh, true, step.SLAMinutes
			if escalateAfter == 0 {
				escalateAfter = e.leadSLA
			}
		}
	}

	t := models.Task{
		ID:                id,
		CompanyID:         p.CompanyID,
		Title:             title,
		Description:       instruction,
		Instruction:       instruction,
		ExpectedResult:    step.ExpectedResult,
		Function:          step.Function,
		AssigneeID:        assigneeID,
		AssigneeName:      assigneeName,
		CreatorID:         p.CreatedBy,
		Status:            models.StatusNew,
		Priority:          priority,
		Source:            source,
		EstimatedMinutes:  step.DurationMinutes(),
		ProcessID:         p.ID,
		ProcessStep:       idx,
		ProcessObject:     p.ObjectName,
		LeadID:            p.LeadID,
		RequireReview:     step.Checkpoint,
		IsAutoGenerated:   true,
		EscalationEnabled: escalate,
		EscalationMinutes: escalateAfter,
		CreatedAt:         now.UnixMilli(),
		CreatedDate:       now.In(e.loc).Format(models.DateLayout),
		UpdatedAt:         now.UnixMilli(),
	}
	t.SetDeadline(e.StepDeadline(p, tmpl, idx, now), e.loc)

	created, err := e.store.CreateTask(ctx, t)
	if err != nil {
		return nil, false, fmt.Errorf("create step task: %w", err)
	}
	if !created {
		// a concurrent activation wrote it first
		existing, err := e.store.GetTask(ctx, p.CompanyID, id)
		if err != nil {
			return nil, false, fmt.Errorf("load step task: %w", err)
		}
		return existing, false, nil
	}
	e.log.WithFields(logrus.Fields{
		"company": p.CompanyID, "process": p.ID, "step": idx, "task": t.ID, "assignee": assigneeID,
	}).Info("engine: step activated")

	e.notify(ctx, notify.Event{
		Kind: notify.KindStepActivated, CompanyID: p.CompanyID, Task: &t, Process: p,
		Step: step, StepCount: len(tmpl.Steps), Now: now,
	})
	return &t, true, nil
}

func (e *Engine) assignee(ctx context.Context, companyID string, step models.Step) (string, string, error) {
	if step.Function == "" {
		return "", "", nil
	}
	fn, err := e.store.FindFunctionByName(ctx, companyID, step.Function)
	if errors.Is(err, store.ErrNotFound) {
		return "", "", nil
	}
	if err != nil {
		return "", "", fmt.Errorf("find function %q: %w", step.Function, err)
	}
	id, err := e.balancer.Assign(ctx, companyID, *fn, step.SmartAssignEnabled())
	if err != nil || id == "" {
		return "", "", err
	}
	u, err := e.store.GetUser(ctx, companyID, id)
	if err != nil {
		return id, "", nil
	}
	return id, u.DisplayName(), nil
}

// StepDeadline picks the deadline of step idx:
//  1. with a process deadline, its 18:00 minus the durations of the steps
//     after idx, but never earlier than now+24h;
//  2. the step's SLA or estimated duration from now (for the first step of a
//     lead process without either, the lead SLA);
//  3. now+24h.
func (e *Engine) StepDeadline(p *models.Process, tmpl *models.ProcessTemplate, idx int, now time.Time) time.Time {
	if p.Deadline != "" {
		if end, err := models.ParseDeadline(p.Deadline, models.DefaultDeadlineTime, e.loc); err == nil {
			remaining := 0
			for _, s := range tmpl.Steps[idx+1:] {
				d := s.DurationMinutes()
				if d == 0 {
					d = defaultStepMinutes
				}
				remaining += d
			}
			at := end.Add(-time.Duration(remaining) * time.Minute)
			if floor := now.Add(24 * time.Hour); at.Before(floor) {
				return floor
			}
			return at
		}
	}
	d := tmpl.Steps[idx].DurationMinutes()
	if d == 0 && idx == 0 && p.LeadID != "" {
		d = e.leadSLA
	}
	if d > 0 {
		return now.Add(time.Duration(d) * time.Minute)
	}
	return now.Add(24 * time.Hour)
}

// BuildInstruction prefixes own with the results of earlier steps, oldest
// first. Steps without a result are left out.
func BuildInstruction(results []models.StepResult, own string) string {
	var b strings.Builder
	for _, r := range results {
		if strings.TrimSpace(r.Result) == "" {
			continue
		}
		if b.Len() == 0 {
			b.WriteString("📋 Context from previous steps:\n")
		}
		fmt.Fprintf(&b, "• Step %d. %s", r.Step+1, r.Title)
		if r.CompletedByName != "" {
			fmt.Fprintf(&b, " (%s)", r.CompletedByName)
		}
		fmt.Fprintf(&b, ": %s\n", strings.TrimSpace(r.Result))
	}
	if b.Len() == 0 {
		return own
	}
	if own != "" {
		b.WriteString("\n")
		b.WriteString(own)
	}
	return strings.TrimRight(b.String(), "\n")
}
