// Package tasks implements task creation and the done/progress/postpone/
// details transitions triggered from chat buttons or the HTTP API.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Vortex-technology1/talko-task-manager/internal/actions"
	"github.com/Vortex-technology1/talko-task-manager/internal/balancer"
	"github.com/Vortex-technology1/talko-task-manager/internal/models"
	"github.com/Vortex-technology1/talko-task-manager/internal/notify"
	"github.com/Vortex-technology1/talko-task-manager/internal/store"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// ErrInvalidTask rejects a create request that cannot produce a task.
var ErrInvalidTask = errors.New("tasks: invalid task")

// EventPublisher forwards lifecycle changes to whoever drives the process
// engine (Kafka in production, an inline handler in tests and local runs).
type EventPublisher interface {
	TaskCreated(ctx context.Context, t models.Task) error
	TaskStatusChanged(ctx context.Context, before, after models.Task) error
}

type Options struct {
	Store    store.Store
	Balancer *balancer.Balancer
	Notifier *notify.Notifier
	Events   EventPublisher
	// Fallback handles an event in-process when Events fails to publish it.
	Fallback EventPublisher
	Location *time.Location
	Now      func() time.Time
	Log      *logrus.Logger
}

type Service struct {
	store    store.Store
	balancer *balancer.Balancer
	notifier *notify.Notifier
	events   EventPublisher
	fallback EventPublisher
	loc      *time.Location
	now      func() time.Time
	log      *logrus.Logger
}

func New(o Options) *Service {
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
	return &Service{
		store:    o.Store,
		balancer: o.Balancer,
		notifier: o.Notifier,
		events:   o.Events,
		fallback: o.Fallback,
		loc:      o.Location,
		now:      o.Now,
		log:      o.Log,
	}
}

// CreateRequest is the payload of createTask. Empty fields take defaults:
// today's date, 18:00, medium priority, the requester as assignee.
type CreateRequest struct {
	CompanyID         string `json:"-"`
	RequesterID       string `json:"-"`
	Title             string `json:"title"`
	Description       string `json:"description"`
	ExpectedResult    string `json:"expectedResult"`
	Function          string `json:"function"`
	AssigneeID        string `json:"assigneeId"`
	Priority          string `json:"priority"`
	DeadlineDate      string `json:"deadlineDate"`
	DeadlineTime      string `json:"deadlineTime"`
	Reminders         []int  `json:"reminders"`
	EscalationEnabled bool   `json:"escalationEnabled"`
	EscalationMinutes int    `json:"escalationMinutes"`
	RequireReview     bool   `json:"requireReview"`
	Source            string `json:"-"`
}

// Create persists a new task and publishes TaskCreated. The assignee is, in
// order: the explicit AssigneeID, the least-loaded member of Function, the
// function head or first member, the requester.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Task, error) {
	req.Title = strings.TrimSpace(req.Title)
	if req.Title == "" {
		return nil, fmt.Errorf("%w: empty title", ErrInvalidTask)
	}
	requester, err := s.store.GetUser(ctx, req.CompanyID, req.RequesterID)
	if err != nil {
		return nil, fmt.Errorf("load requester %s: %w", req.RequesterID, err)
	}

	assigneeID := req.AssigneeID
	if assigneeID == "" && req.Function != "" {
		assigneeID, err = s.AssigneeForFunction(ctx, req.CompanyID, req.Function, true)
		if err != nil {
			return nil, err
		}
	}
	if assigneeID == "" {
		assigneeID = requester.ID
	}
	assignee, err := s.store.GetUser(ctx, req.CompanyID, assigneeID)
	if err != nil {
		return nil, fmt.Errorf("load assignee %s: %w", assigneeID, err)
	}

	now := s.now()
	date := req.DeadlineDate
	if date == "" {
		date = now.In(s.loc).Format(models.DateLayout)
	}
	at, err := models.ParseDeadline(date, req.DeadlineTime, s.loc)
	if err != nil {
		return nil, fmt.Errorf("%w: deadline %q %q", ErrInvalidTask, date, req.DeadlineTime)
	}

	priority := req.Priority
	switch priority {
	case models.PriorityLow, models.PriorityMedium, models.PriorityHigh:
	default:
		priority = models.PriorityMedium
	}
	source := req.Source
	if source == "" {
		source = models.SourceAPI
	}

	t := models.Task{
		ID:                uuid.NewString(),
		CompanyID:         req.CompanyID,
		Title:             req.Title,
		Description:       req.Description,
		ExpectedResult:    req.ExpectedResult,
		Function:          req.Function,
		AssigneeID:        assignee.ID,
		AssigneeName:      assignee.DisplayName(),
		CreatorID:         requester.ID,
		CreatorName:       requester.DisplayName(),
		Status:            models.StatusNew,
		Priority:          priority,
		Source:            source,
		Reminders:         req.Reminders,
		EscalationEnabled: req.EscalationEnabled,
		EscalationMinutes: req.EscalationMinutes,
		RequireReview:     req.RequireReview,
		NotifyOnComplete:  []string{requester.ID},
		NotifyOnReminder:  []string{requester.ID},
		CreatedAt:         now.UnixMilli(),
		CreatedDate:       now.In(s.loc).Format(models.DateLayout),
		UpdatedAt:         now.UnixMilli(),
	}
	t.SetDeadline(at, s.loc)

	if err := s.store.PutTask(ctx, t); err != nil {
		return nil, fmt.Errorf("put task: %w", err)
	}
	s.log.WithFields(logrus.Fields{"company": t.CompanyID, "task": t.ID, "assignee": t.AssigneeID}).
		Info("tasks: created")

	if s.events == nil {
		s.NotifyCreated(ctx, t)
	} else if err := s.events.TaskCreated(ctx, t); err != nil {
		log := s.log.WithFields(logrus.Fields{"company": t.CompanyID, "task": t.ID})
		log.WithError(err).Warn("tasks: publish created, handling inline")
		if s.fallback == nil {
			s.NotifyCreated(ctx, t)
		} else if err := s.fallback.TaskCreated(ctx, t); err != nil {
			log.WithError(err).Error("tasks: inline created handling failed")
		}
	}
	return &t, nil
}

// AssigneeForFunction resolves who gets work for a function by name. With
// smart set and more than one member the balancer decides; otherwise the
// head, then the first member. It returns "" for unknown or empty functions.
func (s *Service) AssigneeForFunction(ctx context.Context, companyID, name string, smart bool) (string, error) {
	fn, err := s.store.FindFunctionByName(ctx, companyID, name)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("find function %q: %w", name, err)
	}
	return s.balancer.Assign(ctx, companyID, *fn, smart)
}

// NotifyCreated sends the new-task message unless the assignee created the
// task for themselves.
func (s *Service) NotifyCreated(ctx context.Context, t models.Task) {
	if s.notifier == nil || t.AssigneeID == "" || t.AssigneeID == t.CreatorID {
		return
	}
	s.notifier.Notify(ctx, notify.Event{Kind: notify.KindNewTask, CompanyID: t.CompanyID, Task: &t, Now: s.now()})
}

// TransitionRequest asks for one action on one task.
type TransitionRequest struct {
	CompanyID      string
	TaskID         string
	Action         actions.Action
	ActorID        string
	Comment        string
	TrackedMinutes int
	Source         string
}

// Outcome reports what a transition did. AlreadyInState is set when the
// action was a no-op because the task already was where it would lead.
type Outcome struct {
	Task           models.Task
	Changed        bool
	AlreadyInState bool
}

func (s *Service) Transition(ctx context.Context, req TransitionRequest) (Outcome, error) {
	before, err := s.store.GetTask(ctx, req.CompanyID, req.TaskID)
	if err != nil {
		return Outcome{}, err
	}
	log := s.log.WithFields(logrus.Fields{"company": req.CompanyID, "task": req.TaskID, "action": req.Action.String()})

	switch req.Action {
	case actions.Details:
		return Outcome{Task: *before}, nil
	case actions.Done:
		return s.complete(ctx, req, *before, log)
	case actions.Progress:
		ok, err := s.store.StartTask(ctx, req.CompanyID, req.TaskID, s.now().UnixMilli())
		if err != nil {
			return Outcome{}, err
		}
		if !ok {
			return Outcome{Task: *before, AlreadyInState: true}, nil
		}
		after, err := s.store.GetTask(ctx, req.CompanyID, req.TaskID)
		if err != nil {
			return Outcome{}, err
		}
		s.publishChange(ctx, *before, *after, log)
		return Outcome{Task: *after, Changed: true}, nil
	case actions.Postpone:
		if before.Status == models.StatusDone {
			return Outcome{Task: *before, AlreadyInState: true}, nil
		}
		d, err := s.postponed(*before)
		if err != nil {
			return Outcome{}, err
		}
		if err := s.store.PostponeTask(ctx, req.CompanyID, req.TaskID, d, s.now().UnixMilli()); err != nil {
			return Outcome{}, err
		}
		after, err := s.store.GetTask(ctx, req.CompanyID, req.TaskID)
		if err != nil {
			return Outcome{}, err
		}
		log.WithField("deadline", d.Date).Info("tasks: postponed")
		return Outcome{Task: *after, Changed: true}, nil
	}
	return Outcome{}, fmt.Errorf("%w: %s", actions.ErrInvalidAction, req.Action)
}

func (s *Service) complete(ctx context.Context, req TransitionRequest, before models.Task, log *logrus.Entry) (Outcome, error) {
	now := s.now()
	by := req.ActorID
	if by == "" {
		by = before.AssigneeID
	}
	source := req.Source
	if source == "" {
		source = models.SourceAPI
	}
	ok, err := s.store.CompleteTask(ctx, req.CompanyID, req.TaskID, store.Completion{
		At:             now.UnixMilli(),
		Date:           now.In(s.loc).Format(models.DateLayout),
		By:             by,
		Source:         source,
		Comment:        req.Comment,
		TrackedMinutes: req.TrackedMinutes,
	})
	if err != nil {
		return Outcome{}, err
	}
	if !ok {
		return Outcome{Task: before, AlreadyInState: true}, nil
	}
	after, err := s.store.GetTask(ctx, req.CompanyID, req.TaskID)
	if err != nil {
		return Outcome{}, err
	}
	log.Info("tasks: completed")

	if s.notifier != nil {
		s.notifier.Notify(ctx, notify.Event{
			Kind: notify.KindTaskCompleted, CompanyID: req.CompanyID, Task: after, ActorID: by, Now: now,
		})
	}
	s.publishChange(ctx, before, *after, log)
	return Outcome{Task: *after, Changed: true}, nil
}

// postponed moves the deadline date one day forward, keeping the time of
// day. A task without a date is moved to tomorrow.
func (s *Service) postponed(t models.Task) (store.Deadline, error) {
	clock := t.DeadlineTime
	if clock == "" {
		clock = models.DefaultDeadlineTime
	}
	var date string
	if t.DeadlineDate == "" {
		date = s.now().In(s.loc).AddDate(0, 0, 1).Format(models.DateLayout)
	} else {
		d, err := time.ParseInLocation(models.DateLayout, t.DeadlineDate, s.loc)
		if err != nil {
			return store.Deadline{}, fmt.Errorf("task %s has bad deadline date %q: %w", t.ID, t.DeadlineDate, err)
		}
		date = d.AddDate(0, 0, 1).Format(models.DateLayout)
	}
	at, err := models.ParseDeadline(date, clock, s.loc)
	if err != nil {
		return store.Deadline{}, err
	}
	return store.Deadline{Date: date, Clock: clock, Instant: at.UnixMilli()}, nil
}

// publishChange hands a committed transition to the event transport. When
// publishing fails the fallback runs the same handling in-process; if that
// fails too the stalled-process sweep picks the completion up later.
func (s *Service) publishChange(ctx context.Context, before, after models.Task, log *logrus.Entry) {
	if s.events == nil {
		return
	}
	err := s.events.TaskStatusChanged(ctx, before, after)
	if err == nil {
		return
	}
	if s.fallback == nil {
		log.WithError(err).Error("tasks: publish status change")
		return
	}
	log.WithError(err).Warn("tasks: publish status change, handling inline")
	if err := s.fallback.TaskStatusChanged(ctx, before, after); err != nil {
		log.WithError(err).Error("tasks: inline status change handling failed")
	}
}

// OpenTasks lists a user's open tasks ordered as stored.
func (s *Service) OpenTasks(ctx context.Context, companyID, userID string, limit int) ([]models.Task, error) {
	return s.store.ListTasks(ctx, companyID, store.TaskFilter{
		AssigneeID: userID,
		Statuses:   store.OpenStatuses,
		Limit:      limit,
	})
}

// DueToday returns open tasks of the user due today or earlier.
func (s *Service) DueToday(ctx context.Context, companyID, userID string, limit int) ([]models.Task, error) {
	open, err := s.OpenTasks(ctx, companyID, userID, 0)
	if err != nil {
		return nil, err
	}
	today := s.now().In(s.loc).Format(models.DateLayout)
	return filterTasks(open, limit, func(t models.Task) bool {
		return t.DeadlineDate != "" && t.DeadlineDate <= today
	}), nil
}

// Overdue returns open tasks of the user whose deadline instant has passed.
func (s *Service) Overdue(ctx context.Context, companyID, userID string, limit int) ([]models.Task, error) {
	open, err := s.OpenTasks(ctx, companyID, userID, 0)
	if err != nil {
		return nil, err
	}
	now := s.now()
	return filterTasks(open, limit, func(t models.Task) bool {
		at, ok := t.DeadlineAt()
		return ok && at.Before(now)
	}), nil
}

// Load is a member's open and overdue task counts.
type Load struct {
	User    models.User
	Open    int
	Overdue int
}

// TeamLoad counts open and overdue tasks per company member.
func (s *Service) TeamLoad(ctx context.Context, companyID string) ([]Load, error) {
	users, err := s.store.ListUsers(ctx, companyID)
	if err != nil {
		return nil, err
	}
	open, err := s.store.ListTasks(ctx, companyID, store.TaskFilter{Statuses: store.OpenStatuses})
	if err != nil {
		return nil, err
	}
	now := s.now()
	idx := make(map[string]int, len(users))
	out := make([]Load, len(users))
	for i, u := range users {
		idx[u.ID] = i
		out[i].User = u
	}
	for _, t := range open {
		i, ok := idx[t.AssigneeID]
		if !ok {
			continue
		}
		out[i].Open++
		if at, ok := t.DeadlineAt(); ok && at.Before(now) {
			out[i].Overdue++
		}
	}
	return out, nil
}

func filterTasks(in []models.Task, limit int, keep func(models.Task) bool) []models.Task {
	out := make([]models.Task, 0, len(in))
	for _, t := range in {
		if !keep(t) {
			continue
		}
		out = append(out, t)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out
}
