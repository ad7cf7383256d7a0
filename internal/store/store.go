package store

import (
	"context"
	"errors"

	"github.com/Vortex-technology1/talko-task-manager/internal/models"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("store: not found")
	// ErrPrecondition aborts a transaction without writing anything.
	ErrPrecondition = errors.New("store: precondition failed")
	// ErrConflict is returned when a transaction kept losing races until its
	// retry budget ran out.
	ErrConflict = errors.New("store: transaction conflict")
)

// DefaultTxAttempts is the number of times a transaction is re-run on
// conflict before ErrConflict is returned.
const DefaultTxAttempts = 5

// TaskFilter narrows ListTasks. Zero values mean "any".
type TaskFilter struct {
	Statuses   []string
	Function   string
	AssigneeID string
	ProcessID  string
	// ProcessStep is only applied when ProcessID is set.
	ProcessStep *int
	Limit       int
}

// Completion carries the metadata stamped on a task when it is marked done.
type Completion struct {
	At             int64
	Date           string
	By             string
	Source         string
	Comment        string
	TrackedMinutes int
}

// Deadline is the triple of deadline fields written on postponement.
type Deadline struct {
	Date    string
	Clock   string
	Instant int64
}

// AdvanceFunc mutates a process inside a transaction. Returning
// ErrPrecondition aborts the transaction as a no-op.
type AdvanceFunc func(p *models.Process) error

// Store is the company-scoped document store the services depend on.
type Store interface {
	PutCompany(ctx context.Context, c models.Company) error
	GetCompany(ctx context.Context, companyID string) (*models.Company, error)
	ListCompanies(ctx context.Context) ([]models.Company, error)

	PutUser(ctx context.Context, u models.User) error
	GetUser(ctx context.Context, companyID, userID string) (*models.User, error)
	ListUsers(ctx context.Context, companyID string) ([]models.User, error)
	ListManagers(ctx context.Context, companyID string) ([]models.User, error)
	FindUserByChatID(ctx context.Context, chatID string) (*models.User, error)
	FindUserByTelegramCode(ctx context.Context, code string) (*models.User, error)
	LinkTelegram(ctx context.Context, companyID, userID, chatID, telegramUserID string) error

	PutFunction(ctx context.Context, f models.Function) error
	FindFunctionByName(ctx context.Context, companyID, name string) (*models.Function, error)
	ListFunctions(ctx context.Context, companyID string) ([]models.Function, error)

	PutTemplate(ctx context.Context, t models.ProcessTemplate) error
	GetTemplate(ctx context.Context, companyID, templateID string) (*models.ProcessTemplate, error)
	FindTemplateByName(ctx context.Context, companyID, name string) (*models.ProcessTemplate, error)

	PutTask(ctx context.Context, t models.Task) error
	// CreateTask writes t only if no task with its id exists. It reports
	// false when one already did.
	CreateTask(ctx context.Context, t models.Task) (bool, error)
	GetTask(ctx context.Context, companyID, taskID string) (*models.Task, error)
	ListTasks(ctx context.Context, companyID string, f TaskFilter) ([]models.Task, error)
	// CompleteTask moves a task to done unless it already is. It reports
	// false when the task was already done.
	CompleteTask(ctx context.Context, companyID, taskID string, c Completion) (bool, error)
	// StartTask moves a task from new to progress. It reports false when the
	// task was not new.
	StartTask(ctx context.Context, companyID, taskID string, nowMs int64) (bool, error)
	// PostponeTask rewrites the deadline and resets overdue/reminder flags.
	PostponeTask(ctx context.Context, companyID, taskID string, d Deadline, nowMs int64) error
	ClaimOverdueNotice(ctx context.Context, companyID, taskID string, nowMs int64) (bool, error)
	ClaimEscalation(ctx context.Context, companyID, taskID string, nowMs int64) (bool, error)
	ClaimReminder(ctx context.Context, companyID, taskID string, offset int, nowMs int64) (bool, error)

	PutProcess(ctx context.Context, p models.Process) error
	GetProcess(ctx context.Context, companyID, processID string) (*models.Process, error)
	ListProcesses(ctx context.Context, companyID, status string) ([]models.Process, error)
	// AdvanceProcess runs apply against a fresh read of the process and
	// commits the result together with a process_advanced_at stamp on taskID,
	// atomically. Lost races are retried up to the store's attempt budget.
	AdvanceProcess(ctx context.Context, companyID, processID, taskID string, apply AdvanceFunc) (*models.Process, error)

	PutLead(ctx context.Context, l models.Lead) error

	PutScheduledTask(ctx context.Context, s models.ScheduledTask) error
	ListDueScheduledTasks(ctx context.Context, companyID string, nowMs int64) ([]models.ScheduledTask, error)
	ClaimScheduledTask(ctx context.Context, companyID, scheduledID string) (bool, error)
}

func (f TaskFilter) matches(t models.Task) bool {
	if len(f.Statuses) > 0 && !contains(f.Statuses, t.Status) {
		return false
	}
	if f.Function != "" && t.Function != f.Function {
		return false
	}
	if f.AssigneeID != "" && t.AssigneeID != f.AssigneeID {
		return false
	}
	if f.ProcessID != "" {
		if t.ProcessID != f.ProcessID {
			return false
		}
		if f.ProcessStep != nil && t.ProcessStep != *f.ProcessStep {
			return false
		}
	}
	return true
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

// OpenStatuses are the non-terminal statuses swept and balanced on.
var OpenStatuses = []string{models.StatusNew, models.StatusProgress}
