package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/Vortex-technology1/talko-task-manager/internal/models"
)

// MemoryStore is a process-local Store. Every read returns a copy, so
// callers can never mutate stored state behind the store's back.
type MemoryStore struct {
	mu        sync.Mutex
	companies map[string]models.Company
	users     map[string]map[string]models.User
	functions map[string]map[string]models.Function
	templates map[string]map[string]models.ProcessTemplate
	tasks     map[string]map[string]models.Task
	processes map[string]map[string]models.Process
	leads     map[string]map[string]models.Lead
	scheduled map[string]map[string]models.ScheduledTask
	taskOrder map[string][]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		companies: map[string]models.Company{},
		users:     map[string]map[string]models.User{},
		functions: map[string]map[string]models.Function{},
		templates: map[string]map[string]models.ProcessTemplate{},
		tasks:     map[string]map[string]models.Task{},
		processes: map[string]map[string]models.Process{},
		leads:     map[string]map[string]models.Lead{},
		scheduled: map[string]map[string]models.ScheduledTask{},
		taskOrder: map[string][]string{},
	}
}

func bucket[T any](m map[string]map[string]T, companyID string) map[string]T {
	b, ok := m[companyID]
	if !ok {
		b = map[string]T{}
		m[companyID] = b
	}
	return b
}

func cloneStrings(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}

func cloneInts(s []int) []int {
	if s == nil {
		return nil
	}
	return append([]int(nil), s...)
}

func cloneTask(t models.Task) models.Task {
	t.Reminders = cloneInts(t.Reminders)
	t.SentReminders = cloneInts(t.SentReminders)
	t.NotifyOnComplete = cloneStrings(t.NotifyOnComplete)
	t.NotifyOnReminder = cloneStrings(t.NotifyOnReminder)
	return t
}

func cloneProcess(p models.Process) models.Process {
	p.StepResults = append([]models.StepResult(nil), p.StepResults...)
	p.History = append([]models.HistoryEntry(nil), p.History...)
	return p
}

func cloneTemplate(t models.ProcessTemplate) models.ProcessTemplate {
	t.Steps = append([]models.Step(nil), t.Steps...)
	return t
}

func cloneFunction(f models.Function) models.Function {
	f.AssigneeIDs = cloneStrings(f.AssigneeIDs)
	return f
}

// ----- companies -----

func (m *MemoryStore) PutCompany(_ context.Context, c models.Company) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.companies[c.ID] = c
	return nil
}

func (m *MemoryStore) GetCompany(_ context.Context, companyID string) (*models.Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.companies[companyID]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (m *MemoryStore) ListCompanies(_ context.Context) ([]models.Company, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Company, 0, len(m.companies))
	for _, c := range m.companies {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ----- users -----

func (m *MemoryStore) PutUser(_ context.Context, u models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket(m.users, u.CompanyID)[u.ID] = u
	return nil
}

func (m *MemoryStore) GetUser(_ context.Context, companyID, userID string) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[companyID][userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (m *MemoryStore) sortedUsers(companyID string) []models.User {
	out := make([]models.User, 0, len(m.users[companyID]))
	for _, u := range m.users[companyID] {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MemoryStore) ListUsers(_ context.Context, companyID string) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedUsers(companyID), nil
}

func (m *MemoryStore) ListManagers(_ context.Context, companyID string) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.User
	for _, u := range m.sortedUsers(companyID) {
		if u.IsManager() {
			out = append(out, u)
		}
	}
	return out, nil
}

func (m *MemoryStore) findUser(match func(models.User) bool) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.users))
	for id := range m.users {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, cid := range ids {
		for _, u := range m.sortedUsers(cid) {
			if match(u) {
				return &u, nil
			}
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) FindUserByChatID(_ context.Context, chatID string) (*models.User, error) {
	return m.findUser(func(u models.User) bool { return chatID != "" && u.TelegramChatID == chatID })
}

func (m *MemoryStore) FindUserByTelegramCode(_ context.Context, code string) (*models.User, error) {
	return m.findUser(func(u models.User) bool { return code != "" && u.TelegramCode == code })
}

func (m *MemoryStore) LinkTelegram(_ context.Context, companyID, userID, chatID, telegramUserID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[companyID][userID]
	if !ok {
		return ErrNotFound
	}
	u.TelegramChatID = chatID
	u.TelegramUserID = telegramUserID
	u.TelegramCode = ""
	m.users[companyID][userID] = u
	return nil
}

// ----- functions & templates -----

func (m *MemoryStore) PutFunction(_ context.Context, f models.Function) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket(m.functions, f.CompanyID)[f.ID] = cloneFunction(f)
	return nil
}

func (m *MemoryStore) sortedFunctions(companyID string) []models.Function {
	out := make([]models.Function, 0, len(m.functions[companyID]))
	for _, f := range m.functions[companyID] {
		out = append(out, cloneFunction(f))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *MemoryStore) FindFunctionByName(_ context.Context, companyID, name string) (*models.Function, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.sortedFunctions(companyID) {
		if f.Name == name {
			return &f, nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) ListFunctions(_ context.Context, companyID string) ([]models.Function, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sortedFunctions(companyID), nil
}

func (m *MemoryStore) PutTemplate(_ context.Context, t models.ProcessTemplate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket(m.templates, t.CompanyID)[t.ID] = cloneTemplate(t)
	return nil
}

func (m *MemoryStore) GetTemplate(_ context.Context, companyID, templateID string) (*models.ProcessTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.templates[companyID][templateID]
	if !ok {
		return nil, ErrNotFound
	}
	t = cloneTemplate(t)
	return &t, nil
}

func (m *MemoryStore) FindTemplateByName(_ context.Context, companyID, name string) (*models.ProcessTemplate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.templates[companyID]))
	for id := range m.templates[companyID] {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		t := m.templates[companyID][id]
		if t.Name == name {
			t = cloneTemplate(t)
			return &t, nil
		}
	}
	return nil, ErrNotFound
}

// ----- tasks -----

func (m *MemoryStore) PutTask(_ context.Context, t models.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := bucket(m.tasks, t.CompanyID)
	if _, exists := b[t.ID]; !exists {
		m.taskOrder[t.CompanyID] = append(m.taskOrder[t.CompanyID], t.ID)
	}
	b[t.ID] = cloneTask(t)
	return nil
}

func (m *MemoryStore) CreateTask(_ context.Context, t models.Task) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := bucket(m.tasks, t.CompanyID)
	if _, exists := b[t.ID]; exists {
		return false, nil
	}
	m.taskOrder[t.CompanyID] = append(m.taskOrder[t.CompanyID], t.ID)
	b[t.ID] = cloneTask(t)
	return true, nil
}

func (m *MemoryStore) GetTask(_ context.Context, companyID, taskID string) (*models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[companyID][taskID]
	if !ok {
		return nil, ErrNotFound
	}
	t = cloneTask(t)
	return &t, nil
}

// ListTasks returns tasks in insertion order.
func (m *MemoryStore) ListTasks(_ context.Context, companyID string, f TaskFilter) ([]models.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Task
	for _, id := range m.taskOrder[companyID] {
		t := m.tasks[companyID][id]
		if !f.matches(t) {
			continue
		}
		out = append(out, cloneTask(t))
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

// mutateTask applies fn to a stored task; fn returns false to leave it as is.
func (m *MemoryStore) mutateTask(companyID, taskID string, fn func(t *models.Task) bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tasks[companyID][taskID]
	if !ok {
		return false, ErrNotFound
	}
	t = cloneTask(t)
	if !fn(&t) {
		return false, nil
	}
	m.tasks[companyID][taskID] = t
	return true, nil
}

func (m *MemoryStore) CompleteTask(_ context.Context, companyID, taskID string, c Completion) (bool, error) {
	return m.mutateTask(companyID, taskID, func(t *models.Task) bool {
		if t.Status == models.StatusDone {
			return false
		}
		t.Status = models.StatusDone
		t.CompletedAt = c.At
		t.CompletedDate = c.Date
		t.CompletedBy = c.By
		t.CompletionSource = c.Source
		t.CompletionComment = c.Comment
		t.TrackedMinutes = c.TrackedMinutes
		t.UpdatedAt = c.At
		return true
	})
}

func (m *MemoryStore) StartTask(_ context.Context, companyID, taskID string, nowMs int64) (bool, error) {
	return m.mutateTask(companyID, taskID, func(t *models.Task) bool {
		if t.Status != models.StatusNew {
			return false
		}
		t.Status = models.StatusProgress
		t.UpdatedAt = nowMs
		return true
	})
}

func (m *MemoryStore) PostponeTask(_ context.Context, companyID, taskID string, d Deadline, nowMs int64) error {
	_, err := m.mutateTask(companyID, taskID, func(t *models.Task) bool {
		t.DeadlineDate = d.Date
		t.DeadlineTime = d.Clock
		t.Deadline = d.Instant
		t.OverdueNotified = false
		t.OverdueNotifiedAt = 0
		t.SentReminders = nil
		t.UpdatedAt = nowMs
		return true
	})
	return err
}

func (m *MemoryStore) ClaimOverdueNotice(_ context.Context, companyID, taskID string, nowMs int64) (bool, error) {
	return m.mutateTask(companyID, taskID, func(t *models.Task) bool {
		if t.OverdueNotified {
			return false
		}
		t.OverdueNotified = true
		t.OverdueNotifiedAt = nowMs
		t.UpdatedAt = nowMs
		return true
	})
}

func (m *MemoryStore) ClaimEscalation(_ context.Context, companyID, taskID string, nowMs int64) (bool, error) {
	return m.mutateTask(companyID, taskID, func(t *models.Task) bool {
		if t.Escalated {
			return false
		}
		t.Escalated = true
		t.EscalatedAt = nowMs
		t.UpdatedAt = nowMs
		return true
	})
}

func (m *MemoryStore) ClaimReminder(_ context.Context, companyID, taskID string, offset int, nowMs int64) (bool, error) {
	return m.mutateTask(companyID, taskID, func(t *models.Task) bool {
		if t.HasSentReminder(offset) {
			return false
		}
		t.SentReminders = append(t.SentReminders, offset)
		t.UpdatedAt = nowMs
		return true
	})
}

// ----- processes -----

func (m *MemoryStore) PutProcess(_ context.Context, p models.Process) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket(m.processes, p.CompanyID)[p.ID] = cloneProcess(p)
	return nil
}

func (m *MemoryStore) GetProcess(_ context.Context, companyID, processID string) (*models.Process, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.processes[companyID][processID]
	if !ok {
		return nil, ErrNotFound
	}
	p = cloneProcess(p)
	return &p, nil
}

func (m *MemoryStore) ListProcesses(_ context.Context, companyID, status string) ([]models.Process, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Process
	for _, p := range m.processes[companyID] {
		if status == "" || p.Status == status {
			out = append(out, cloneProcess(p))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// AdvanceProcess holds the store lock for the whole read-apply-write, so
// there is never a conflict to retry.
func (m *MemoryStore) AdvanceProcess(
	_ context.Context,
	companyID, processID, taskID string,
	apply AdvanceFunc,
) (*models.Process, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.processes[companyID][processID]
	if !ok {
		return nil, ErrNotFound
	}
	t, ok := m.tasks[companyID][taskID]
	if !ok {
		return nil, ErrNotFound
	}
	next := cloneProcess(p)
	if err := apply(&next); err != nil {
		return nil, err
	}
	next.Version = p.Version + 1
	m.processes[companyID][processID] = next

	t = cloneTask(t)
	t.ProcessAdvancedAt = time.Now().UnixMilli()
	m.tasks[companyID][taskID] = t

	out := cloneProcess(next)
	return &out, nil
}

// ----- leads & scheduled tasks -----

func (m *MemoryStore) PutLead(_ context.Context, l models.Lead) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket(m.leads, l.CompanyID)[l.ID] = l
	return nil
}

// Lead returns a stored lead; used by tests and the CLI.
func (m *MemoryStore) Lead(companyID, leadID string) (models.Lead, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.leads[companyID][leadID]
	return l, ok
}

func (m *MemoryStore) PutScheduledTask(_ context.Context, s models.ScheduledTask) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket(m.scheduled, s.CompanyID)[s.ID] = s
	return nil
}

func (m *MemoryStore) ListDueScheduledTasks(_ context.Context, companyID string, nowMs int64) ([]models.ScheduledTask, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.ScheduledTask
	for _, s := range m.scheduled[companyID] {
		if !s.Activated && s.ActivateAt <= nowMs {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *MemoryStore) ClaimScheduledTask(_ context.Context, companyID, scheduledID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scheduled[companyID][scheduledID]
	if !ok {
		return false, ErrNotFound
	}
	if s.Activated {
		return false, nil
	}
	s.Activated = true
	m.scheduled[companyID][scheduledID] = s
	return true, nil
}

var _ Store = (*MemoryStore)(nil)
var _ Store = (*DynamoStore)(nil)
