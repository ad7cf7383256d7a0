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

// ErrUnauthorized is returned when a lead carries the wrong company API key.
var ErrUnauthorized = errors.New("engine: invalid api key")

// Lead statuses.
const (
	LeadNew       = "new"
	LeadInProcess = "in_process"
)

// LeadRequest is one submitted contact.
type LeadRequest struct {
	CompanyID       string `json:"companyId"`
	APIKey          string `json:"apiKey"`
	Name            string `json:"name"`
	Phone           string `json:"phone"`
	Email           string `json:"email"`
	Source          string `json:"source"`
	Message         string `json:"message"`
	ProcessTemplate string `json:"processTemplate"`
}

type LeadResult struct {
	Lead    models.Lead
	Process *models.Process
	Task    *models.Task
}

// ReceiveLead stores a lead and turns it into work: a process from the lead
// template when one exists, otherwise a single call-back task.
func (e *Engine) ReceiveLead(ctx context.Context, req LeadRequest) (*LeadResult, error) {
	company, err := e.store.GetCompany(ctx, req.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("load company %s: %w", req.CompanyID, err)
	}
	if company.WebhookAPIKey != "" && company.WebhookAPIKey != req.APIKey {
		return nil, ErrUnauthorized
	}

	now := e.now()
	lead := models.Lead{
		ID:        uuid.NewString(),
		CompanyID: company.ID,
		Name:      strings.TrimSpace(req.Name),
		Phone:     strings.TrimSpace(req.Phone),
		Email:     strings.TrimSpace(req.Email),
		Source:    req.Source,
		Message:   req.Message,
		Status:    LeadNew,
		CreatedAt: now.UnixMilli(),
	}
	if lead.Name == "" {
		lead.Name = "Unnamed lead"
	}
	log := e.log.WithFields(logrus.Fields{"company": company.ID, "lead": lead.ID})
	res := &LeadResult{}

	tmplName := req.ProcessTemplate
	if tmplName == "" {
		tmplName = e.leadTemplate
	}
	tmpl, err := e.findTemplate(ctx, company.ID, tmplName)
	if err != nil {
		return nil, err
	}
	if tmpl != nil && len(tmpl.Steps) > 0 {
		p, t, err := e.StartProcess(ctx, StartRequest{
			CompanyID:  company.ID,
			TemplateID: tmpl.ID,
			ObjectName: lead.Name,
			LeadID:     lead.ID,
			Preamble:   contactBlock(lead),
		})
		if err != nil && p == nil {
			return nil, err
		}
		if err != nil {
			log.WithError(err).Error("engine: lead process started but first step failed")
		}
		lead.ProcessID = p.ID
		lead.Status = LeadInProcess
		res.Process, res.Task = p, t
	} else {
		t, err := e.callbackTask(ctx, lead, now)
		if err != nil {
			return nil, err
		}
		res.Task = t
	}

	if err := e.store.PutLead(ctx, lead); err != nil {
		return nil, fmt.Errorf("put lead: %w", err)
	}
	res.Lead = lead
	log.Info("engine: lead received")

	e.notify(ctx, notify.Event{Kind: notify.KindLeadReceived, CompanyID: company.ID, Lead: &lead, Now: now})
	return res, nil
}

func (e *Engine) findTemplate(ctx context.Context, companyID, name string) (*models.ProcessTemplate, error) {
	if name == "" {
		return nil, nil
	}
	tmpl, err := e.store.FindTemplateByName(ctx, companyID, name)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find template %q: %w", name, err)
	}
	return tmpl, nil
}

// callbackTask is the fallback when no lead template exists: the first
// member of the first function calls the lead back within the lead SLA.
func (e *Engine) callbackTask(ctx context.Context, lead models.Lead, now time.Time) (*models.Task, error) {
	fns, err := e.store.ListFunctions(ctx, lead.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("list functions: %w", err)
	}
	var fnName, assigneeID, assigneeName string
	if len(fns) > 0 {
		fnName = fns[0].Name
		if len(fns[0].AssigneeIDs) > 0 {
			assigneeID = fns[0].AssigneeIDs[0]
		}
	}
	if assigneeID != "" {
		if u, err := e.store.GetUser(ctx, lead.CompanyID, assigneeID); err == nil {
			assigneeName = u.DisplayName()
		}
	}

	t := models.Task{
		ID:                uuid.NewString(),
		CompanyID:         lead.CompanyID,
		Title:             "📞 Call back: " + lead.Name,
		Description:       contactBlock(lead),
		Function:          fnName,
		AssigneeID:        assigneeID,
		AssigneeName:      assigneeName,
		Status:            models.StatusNew,
		Priority:          models.PriorityHigh,
		Source:            models.SourceLead,
		LeadID:            lead.ID,
		IsAutoGenerated:   true,
		EscalationEnabled: true,
		EscalationMinutes: e.leadSLA,
		CreatedAt:         now.UnixMilli(),
		CreatedDate:       now.In(e.loc).Format(models.DateLayout),
		UpdatedAt:         now.UnixMilli(),
	}
	t.SetDeadline(now.Add(time.Duration(e.leadSLA)*time.Minute), e.loc)
	if err := e.store.PutTask(ctx, t); err != nil {
		return nil, fmt.Errorf("put callback task: %w", err)
	}
	e.notify(ctx, notify.Event{Kind: notify.KindNewTask, CompanyID: t.CompanyID, Task: &t, Now: now})
	return &t, nil
}

func contactBlock(l models.Lead) string {
	var b strings.Builder
	b.WriteString("👤 Contact: " + l.Name + "\n")
	if l.Phone != "" {
		b.WriteString("📞 " + l.Phone + "\n")
	}
	if l.Email != "" {
		b.WriteString("📧 " + l.Email + "\n")
	}
	if l.Source != "" {
		b.WriteString("🔗 Source: " + l.Source + "\n")
	}
	if l.Message != "" {
		b.WriteString("💬 " + l.Message + "\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
