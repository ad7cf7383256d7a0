// Package notify turns domain events into chat messages. Every event kind maps
// to zero or more routes; a route resolves its recipients and renders the
// text they get. Delivery is best-effort and isolated per recipient.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/Vortex-technology1/talko-task-manager/internal/email"
	"github.com/Vortex-technology1/talko-task-manager/internal/models"
	"github.com/Vortex-technology1/talko-task-manager/internal/store"

	"github.com/sirupsen/logrus"
)

type Kind string

const (
	KindNewTask          Kind = "new_task"
	KindTaskCompleted    Kind = "task_completed"
	KindStepActivated    Kind = "step_activated"
	KindProcessCompleted Kind = "process_completed"
	KindOverdue          Kind = "overdue"
	KindEscalated        Kind = "escalated"
	KindReminder         Kind = "reminder"
	KindLeadReceived     Kind = "lead_received"
)

// Event carries whatever the renderers of its Kind need.
type Event struct {
	Kind      Kind
	CompanyID string
	Task      *models.Task
	Process   *models.Process
	Step      models.Step
	StepCount int
	Lead      *models.Lead
	// ActorID is the user who caused the event (e.g. the completer).
	ActorID string
	// Offset is the reminder offset in minutes.
	Offset int
	Now    time.Time
}

// Directory resolves users; the store satisfies it.
type Directory interface {
	GetUser(ctx context.Context, companyID, userID string) (*models.User, error)
	ListManagers(ctx context.Context, companyID string) ([]models.User, error)
}

// Resolver returns recipient user ids for an event. It never returns nil.
type Resolver func(ctx context.Context, dir Directory, e Event) ([]string, error)

// Render produces the text one route sends.
type Render func(e Event, loc *time.Location) string

type route struct {
	resolve Resolver
	render  Render
	buttons bool
}

var routes = map[Kind][]route{
	KindNewTask:       {{Assignee, renderNewTask, true}},
	KindTaskCompleted: {{CompletionWatchers, renderTaskCompleted, false}},
	KindStepActivated: {
		{Assignee, renderStepActivated, true},
		{ManagersExceptAssignee, renderProcessProgress, false},
	},
	KindProcessCompleted: {{Managers, renderProcessCompleted, false}},
	KindOverdue: {
		{Assignee, renderOverdue, true},
		{ManagersExceptAssignee, renderOverdueForManager, true},
	},
	KindEscalated: {{Assignee, renderEscalated, true}},
	KindReminder: {
		{Assignee, renderReminder, true},
		{ReminderWatchers, renderReminderControl, false},
	},
	KindLeadReceived: {{Managers, renderLead, false}},
}

// Report counts the outcome of one fan-out.
type Report struct {
	Sent    int
	Skipped int
	Failed  int
}

func (r *Report) add(o Report) {
	r.Sent += o.Sent
	r.Skipped += o.Skipped
	r.Failed += o.Failed
}

type Notifier struct {
	dir  Directory
	out  Dispatcher
	mail email.Sender
	loc  *time.Location
	log  *logrus.Logger
}

// New builds a Notifier. mail may be nil, in which case reports go to chat only.
func New(dir Directory, out Dispatcher, mail email.Sender, loc *time.Location, log *logrus.Logger) *Notifier {
	if loc == nil {
		loc = time.UTC
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Notifier{dir: dir, out: out, mail: mail, loc: loc, log: log}
}

// Notify fans an event out to every route of its kind. Failures are logged
// and counted; they never stop delivery to the remaining recipients.
func (n *Notifier) Notify(ctx context.Context, e Event) Report {
	var rep Report
	if e.Now.IsZero() {
		e.Now = time.Now()
	}
	for _, r := range routes[e.Kind] {
		ids, err := r.resolve(ctx, n.dir, e)
		if err != nil {
			n.log.WithFields(logrus.Fields{"company": e.CompanyID, "event": e.Kind}).
				WithError(err).Warn("notify: resolve recipients")
			rep.Failed++
			continue
		}
		text := r.render(e, n.loc)
		var rows [][]Button
		if r.buttons && e.Task != nil {
			rows = TaskButtons(e.CompanyID, e.Task.ID)
		}
		for _, id := range dedupe(ids) {
			rep.add(n.deliver(ctx, e.CompanyID, id, string(e.Kind), text, rows))
		}
	}
	return rep
}

// SendToUser delivers free text to one user, with optional buttons.
func (n *Notifier) SendToUser(ctx context.Context, companyID, userID, text string, rows [][]Button) Report {
	return n.deliver(ctx, companyID, userID, "direct", text, rows)
}

// SendReport sends text to every manager accepted by include, and mails it
// to those with an e-mail address when a mail sender is configured.
func (n *Notifier) SendReport(ctx context.Context, companyID, subject, text string, include func(models.User) bool) Report {
	var rep Report
	managers, err := n.dir.ListManagers(ctx, companyID)
	if err != nil {
		n.log.WithField("company", companyID).WithError(err).Warn("notify: list managers for report")
		rep.Failed++
		return rep
	}
	for _, m := range managers {
		if include != nil && !include(m) {
			continue
		}
		rep.add(n.deliverTo(ctx, m, "report", text, nil))
		if n.mail != nil && m.Email != "" {
			if err := n.mail.Send(ctx, m.Email, subject, stripTags(text)); err != nil {
				n.log.WithFields(logrus.Fields{"company": companyID, "recipient": m.ID}).
					WithError(err).Warn("notify: report e-mail failed")
				rep.Failed++
			} else {
				rep.Sent++
			}
		}
	}
	return rep
}

func (n *Notifier) deliver(ctx context.Context, companyID, userID, kind, text string, rows [][]Button) Report {
	u, err := n.dir.GetUser(ctx, companyID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return Report{Skipped: 1}
		}
		n.log.WithFields(logrus.Fields{"company": companyID, "recipient": userID, "event": kind}).
			WithError(err).Warn("notify: load recipient")
		return Report{Failed: 1}
	}
	return n.deliverTo(ctx, *u, kind, text, rows)
}

func (n *Notifier) deliverTo(ctx context.Context, u models.User, kind, text string, rows [][]Button) Report {
	if u.TelegramChatID == "" {
		return Report{Skipped: 1}
	}
	chat := ChatRef(u.TelegramChatID)
	var err error
	if len(rows) > 0 {
		_, err = n.out.SendWithActions(ctx, chat, text, rows)
	} else {
		_, err = n.out.SendText(ctx, chat, text)
	}
	if err != nil {
		n.log.WithFields(logrus.Fields{"company": u.CompanyID, "recipient": u.ID, "event": kind}).
			WithError(err).Warn("notify: delivery failed")
		return Report{Failed: 1}
	}
	return Report{Sent: 1}
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}
