package engine

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Vortex-technology1/talko-task-manager/internal/models"
	"github.com/Vortex-technology1/talko-task-manager/internal/notify"
	"github.com/Vortex-technology1/talko-task-manager/internal/notify/notifytest"
	"github.com/Vortex-technology1/talko-task-manager/internal/store"

	"github.com/sirupsen/logrus"
)

type fixture struct {
	eng *Engine
	st  *store.MemoryStore
	rec *notifytest.Recorder
	now time.Time
	loc *time.Location
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	loc, err := time.LoadLocation("Europe/Kyiv")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	log := logrus.New()
	log.SetOutput(io.Discard)
	ctx := context.Background()

	st := store.NewMemoryStore()
	must := func(err error) {
		t.Helper()
		if err != nil {
			t.Fatal(err)
		}
	}
	must(st.PutCompany(ctx, models.Company{ID: "c1", Name: "Acme"}))
	for _, u := range []models.User{
		{ID: "boss", CompanyID: "c1", Name: "Olena", Role: models.RoleOwner, TelegramChatID: "100"},
		{ID: "A", CompanyID: "c1", Name: "Andrii", Role: models.RoleEmployee, TelegramChatID: "201"},
		{ID: "B", CompanyID: "c1", Name: "Bohdan", Role: models.RoleEmployee, TelegramChatID: "202"},
		{ID: "C", CompanyID: "c1", Name: "Kateryna", Role: models.RoleEmployee, TelegramChatID: "203"},
	} {
		must(st.PutUser(ctx, u))
	}
	must(st.PutFunction(ctx, models.Function{ID: "f1", CompanyID: "c1", Name: "Sales", AssigneeIDs: []string{"A", "B"}}))
	must(st.PutFunction(ctx, models.Function{ID: "f2", CompanyID: "c1", Name: "Support", AssigneeIDs: []string{"C"}}))
	must(st.PutTemplate(ctx, models.ProcessTemplate{ID: "lead-tpl", CompanyID: "c1", Name: "Lead processing", Steps: []models.Step{
		{Function: "Sales", Title: "Qualify", SLAMinutes: 15},
		{Function: "Support", Title: "Onboard", EstimatedTime: 60, Instruction: "Set up the account."},
	}}))

	now := time.Date(2026, 3, 2, 10, 0, 0, 0, loc)
	rec := notifytest.New()
	eng := New(Options{
		Store:        st,
		Notifier:     notify.New(st, rec, nil, loc, log),
		Location:     loc,
		Now:          func() time.Time { return now },
		Log:          log,
		LeadTemplate: "Lead processing",
	})
	return &fixture{eng: eng, st: st, rec: rec, now: now, loc: loc}
}

// complete marks a task done in the store and returns the before/after pair
// a TaskStatusChanged event would carry.
func (f *fixture) complete(t *testing.T, taskID, comment string) (models.Task, models.Task) {
	t.Helper()
	ctx := context.Background()
	before, err := f.st.GetTask(ctx, "c1", taskID)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.st.CompleteTask(ctx, "c1", taskID, store.Completion{
		At: f.now.UnixMilli(), Date: "2026-03-02", By: before.AssigneeID, Comment: comment,
	}); err != nil {
		t.Fatal(err)
	}
	after, err := f.st.GetTask(ctx, "c1", taskID)
	if err != nil {
		t.Fatal(err)
	}
	return *before, *after
}

func (f *fixture) processTasks(t *testing.T, processID string) []models.Task {
	t.Helper()
	ts, err := f.st.ListTasks(context.Background(), "c1", store.TaskFilter{ProcessID: processID})
	if err != nil {
		t.Fatal(err)
	}
	return ts
}

func TestLeadScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.eng.ReceiveLead(ctx, LeadRequest{CompanyID: "c1", Name: "Ivan", Phone: "+380501112233"})
	if err != nil {
		t.Fatalf("receive lead: %v", err)
	}
	first := res.Task
	if first == nil || first.AssigneeID != "A" {
		t.Fatalf("first task = %+v", first)
	}
	if first.Deadline != f.now.Add(15*time.Minute).UnixMilli() {
		t.Fatalf("first deadline = %v", time.UnixMilli(first.Deadline))
	}
	if !strings.Contains(first.Instruction, "+380501112233") {
		t.Fatalf("contact block missing: %q", first.Instruction)
	}
	if l, ok := f.st.Lead("c1", res.Lead.ID); !ok || l.ProcessID != res.Process.ID || l.Status != LeadInProcess {
		t.Fatalf("lead = %+v", l)
	}

	before, after := f.complete(t, first.ID, "Wants the premium plan")
	out, err := f.eng.OnTaskStatusChanged(ctx, before, after)
	if err != nil {
		t.Fatalf("advance: %v", err)
	}
	next := out.NextTask
	if !out.Advanced || next == nil {
		t.Fatalf("expected advancement, got %+v", out)
	}
	if next.AssigneeID != "C" || next.ProcessStep != 1 {
		t.Fatalf("next task = %+v", next)
	}
	if next.Deadline != f.now.Add(60*time.Minute).UnixMilli() {
		t.Fatalf("next deadline = %v", time.UnixMilli(next.Deadline))
	}
	ctxAt := strings.Index(next.Instruction, "Wants the premium plan")
	ownAt := strings.Index(next.Instruction, "Set up the account.")
	if ctxAt < 0 || ownAt < 0 || ctxAt > ownAt {
		t.Fatalf("instruction not prefixed with previous result: %q", next.Instruction)
	}

	p, _ := f.st.GetProcess(ctx, "c1", res.Process.ID)
	if p.CurrentStep != 1 || len(p.StepResults) != 1 || len(p.History) != 1 {
		t.Fatalf("process = %+v", p)
	}
	done, _ := f.st.GetTask(ctx, "c1", first.ID)
	if done.ProcessAdvancedAt == 0 {
		t.Fatal("completed task not stamped")
	}
}

func TestRedeliveredCompletionIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, first, err := f.eng.StartProcess(ctx, StartRequest{CompanyID: "c1", TemplateName: "Lead processing", CreatedBy: "boss"})
	if err != nil {
		t.Fatal(err)
	}
	before, after := f.complete(t, first.ID, "ok")

	if _, err := f.eng.OnTaskStatusChanged(ctx, before, after); err != nil {
		t.Fatal(err)
	}
	again, err := f.eng.OnTaskStatusChanged(ctx, before, after)
	if err != nil {
		t.Fatalf("redelivery: %v", err)
	}
	if again.Advanced {
		t.Fatal("redelivery advanced the process")
	}

	got, _ := f.st.GetProcess(ctx, "c1", p.ID)
	if got.CurrentStep != 1 || len(got.StepResults) != 1 || len(got.History) != 1 {
		t.Fatalf("process after redelivery = %+v", got)
	}
	if n := len(f.processTasks(t, p.ID)); n != 2 {
		t.Fatalf("expected 2 tasks, got %d", n)
	}
}

func TestIgnoresNonCompletionChanges(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, first, err := f.eng.StartProcess(ctx, StartRequest{CompanyID: "c1", TemplateName: "Lead processing"})
	if err != nil {
		t.Fatal(err)
	}
	started := *first
	started.Status = models.StatusProgress
	if out, err := f.eng.OnTaskStatusChanged(ctx, *first, started); err != nil || out.Advanced {
		t.Fatalf("progress change advanced: %+v %v", out, err)
	}
	plain := models.Task{ID: "x", CompanyID: "c1", Status: models.StatusDone}
	if out, err := f.eng.OnTaskStatusChanged(ctx, models.Task{}, plain); err != nil || out.Advanced {
		t.Fatalf("task without process advanced: %+v %v", out, err)
	}
}

func TestProcessCompletesAfterLastStep(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.st.PutTemplate(ctx, models.ProcessTemplate{ID: "three", CompanyID: "c1", Name: "Three", Steps: []models.Step{
		{Function: "Support", Title: "One"}, {Function: "Support", Title: "Two"}, {Function: "Sales", Title: "Three"},
	}}); err != nil {
		t.Fatal(err)
	}
	p, task, err := f.eng.StartProcess(ctx, StartRequest{CompanyID: "c1", TemplateID: "three", ObjectName: "Order 7"})
	if err != nil {
		t.Fatal(err)
	}

	completions := 0
	for task != nil {
		f.rec.Reset()
		before, after := f.complete(t, task.ID, "")
		out, err := f.eng.OnTaskStatusChanged(ctx, before, after)
		if err != nil {
			t.Fatalf("advance: %v", err)
		}
		for _, m := range f.rec.Sent() {
			if strings.Contains(m.Text, "Process completed") {
				completions++
			}
		}
		if out.Completed && out.NextTask != nil {
			t.Fatal("completed process activated another step")
		}
		task = out.NextTask
	}

	if n := len(f.processTasks(t, p.ID)); n != 3 {
		t.Fatalf("expected 3 tasks, got %d", n)
	}
	if completions != 1 {
		t.Fatalf("expected one completion message, got %d", completions)
	}
	got, _ := f.st.GetProcess(ctx, "c1", p.ID)
	if got.Status != models.ProcessCompleted || got.CurrentStep != 3 || got.CompletedAt == 0 {
		t.Fatalf("process = %+v", got)
	}
}

func TestConcurrentCompletionAdvancesOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, first, err := f.eng.StartProcess(ctx, StartRequest{CompanyID: "c1", TemplateName: "Lead processing"})
	if err != nil {
		t.Fatal(err)
	}
	before, after := f.complete(t, first.ID, "ok")

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		advanced int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := f.eng.OnTaskStatusChanged(ctx, before, after)
			if err != nil {
				t.Errorf("advance: %v", err)
				return
			}
			if out.Advanced {
				mu.Lock()
				advanced++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if advanced != 1 {
		t.Fatalf("expected exactly one advancement, got %d", advanced)
	}
	step := 1
	next, _ := f.st.ListTasks(ctx, "c1", store.TaskFilter{ProcessID: p.ID, ProcessStep: &step})
	if len(next) != 1 {
		t.Fatalf("expected one step-2 task, got %d", len(next))
	}
}

func TestStepDeadline(t *testing.T) {
	f := newFixture(t)
	tmpl := &models.ProcessTemplate{Steps: []models.Step{
		{SLAMinutes: 30}, {}, {EstimatedTime: 120},
	}}

	t.Run("back-calculated from process deadline", func(t *testing.T) {
		p := &models.Process{Deadline: "2026-03-10"}
		got := f.eng.StepDeadline(p, tmpl, 0, f.now)
		want := time.Date(2026, 3, 10, 15, 0, 0, 0, f.loc)
		if !got.Equal(want) {
			t.Fatalf("got %v, want %v", got, want)
		}
	})
	t.Run("floored at one day from now", func(t *testing.T) {
		p := &models.Process{Deadline: "2026-03-02"}
		if got := f.eng.StepDeadline(p, tmpl, 0, f.now); !got.Equal(f.now.Add(24 * time.Hour)) {
			t.Fatalf("got %v", got)
		}
	})
	t.Run("step duration", func(t *testing.T) {
		if got := f.eng.StepDeadline(&models.Process{}, tmpl, 2, f.now); !got.Equal(f.now.Add(2 * time.Hour)) {
			t.Fatalf("got %v", got)
		}
	})
	t.Run("default day", func(t *testing.T) {
		if got := f.eng.StepDeadline(&models.Process{}, tmpl, 1, f.now); !got.Equal(f.now.Add(24 * time.Hour)) {
			t.Fatalf("got %v", got)
		}
	})
	t.Run("lead first step", func(t *testing.T) {
		bare := &models.ProcessTemplate{Steps: []models.Step{{}}}
		if got := f.eng.StepDeadline(&models.Process{LeadID: "l1"}, bare, 0, f.now); !got.Equal(f.now.Add(15 * time.Minute)) {
			t.Fatalf("got %v", got)
		}
	})
}

func TestBuildInstruction(t *testing.T) {
	got := BuildInstruction([]models.StepResult{
		{Step: 0, Title: "Qualify", CompletedByName: "Andrii", Result: "Budget 5k"},
		{Step: 1, Title: "Call", Result: "  "},
		{Step: 2, Title: "Offer", Result: "Sent"},
	}, "Sign the contract.")
	want := "📋 Context from previous steps:\n" +
		"• Step 1. Qualify (Andrii): Budget 5k\n" +
		"• Step 3. Offer: Sent\n" +
		"\nSign the contract."
	if got != want {
		t.Fatalf("got:\n%s\nwant:\n%s", got, want)
	}
	if BuildInstruction(nil, "own") != "own" {
		t.Fatal("instruction without context changed")
	}
}

func TestLeadFallbackAndAPIKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.st.PutCompany(ctx, models.Company{ID: "c1", WebhookAPIKey: "secret"}); err != nil {
		t.Fatal(err)
	}
	if _, err := f.eng.ReceiveLead(ctx, LeadRequest{CompanyID: "c1", APIKey: "wrong", Name: "x"}); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
	if _, err := f.eng.ReceiveLead(ctx, LeadRequest{CompanyID: "nope", Name: "x"}); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	res, err := f.eng.ReceiveLead(ctx, LeadRequest{CompanyID: "c1", APIKey: "secret", Name: "Maria", ProcessTemplate: "Missing"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Process != nil || res.Task == nil || !res.Task.EscalationEnabled {
		t.Fatalf("expected fallback task, got %+v", res)
	}
	if res.Task.Deadline != f.now.Add(15*time.Minute).UnixMilli() {
		t.Fatalf("fallback deadline = %v", time.UnixMilli(res.Task.Deadline))
	}
	if len(f.rec.SentTo("100")) == 0 {
		t.Fatal("managers not told about the lead")
	}
}

func TestReplayAdvancesStalledCompletion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p, first, err := f.eng.StartProcess(ctx, StartRequest{CompanyID: "c1", TemplateName: "Lead processing"})
	if err != nil {
		t.Fatal(err)
	}
	// done in the store, status-change event never handled
	f.complete(t, first.ID, "Budget 5k")

	rp, err := f.eng.ActivateStep(ctx, "c1", p.ID)
	if err != nil {
		t.Fatalf("replay: %v", err)
	}
	if !rp.Advanced || !rp.Created || rp.Task == nil || rp.Task.ProcessStep != 1 {
		t.Fatalf("replay = %+v", rp)
	}
	if rp.Task.ID == first.ID || rp.Task.Status != models.StatusNew {
		t.Fatalf("replay returned the completed task: %+v", rp.Task)
	}
	got, _ := f.st.GetProcess(ctx, "c1", p.ID)
	if got.CurrentStep != 1 || len(got.StepResults) != 1 || got.StepResults[0].Result != "Budget 5k" {
		t.Fatalf("process = %+v", got)
	}

	f.rec.Reset()
	again, err := f.eng.ActivateStep(ctx, "c1", p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if again.Advanced || again.Created || again.Task == nil || again.Task.ID != rp.Task.ID {
		t.Fatalf("second replay = %+v", again)
	}
	if n := len(f.processTasks(t, p.ID)); n != 2 {
		t.Fatalf("expected 2 tasks, got %d", n)
	}
	if len(f.rec.Sent()) != 0 {
		t.Fatalf("second replay notified: %+v", f.rec.Sent())
	}
}

func TestActivateStepRecreatesMissingTask(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	if err := f.st.PutProcess(ctx, models.Process{
		ID: "p9", CompanyID: "c1", TemplateID: "lead-tpl", Status: models.ProcessActive, CurrentStep: 1,
	}); err != nil {
		t.Fatal(err)
	}

	rp, err := f.eng.ActivateStep(ctx, "c1", "p9")
	if err != nil {
		t.Fatal(err)
	}
	if !rp.Created || rp.Advanced || rp.Task.ID != StepTaskID("p9", 1) || rp.Task.AssigneeID != "C" {
		t.Fatalf("replay = %+v", rp)
	}
	// the lost event arriving late finds the same task
	again, err := f.eng.ActivateStep(ctx, "c1", "p9")
	if err != nil || again.Created || again.Task.ID != rp.Task.ID {
		t.Fatalf("second replay = %+v, %v", again, err)
	}
}

// conflictStore loses every advancement race.
type conflictStore struct {
	*store.MemoryStore
	conflict bool
}

func (c *conflictStore) AdvanceProcess(ctx context.Context, companyID, processID, taskID string, apply store.AdvanceFunc) (*models.Process, error) {
	if c.conflict {
		return nil, store.ErrConflict
	}
	return c.MemoryStore.AdvanceProcess(ctx, companyID, processID, taskID, apply)
}

func TestAdvanceConflictIsReturnedAndReplayable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	cs := &conflictStore{MemoryStore: f.st, conflict: true}
	log := logrus.New()
	log.SetOutput(io.Discard)
	eng := New(Options{Store: cs, Location: f.loc, Now: func() time.Time { return f.now }, Log: log})

	p, first, err := eng.StartProcess(ctx, StartRequest{CompanyID: "c1", TemplateName: "Lead processing"})
	if err != nil {
		t.Fatal(err)
	}
	before, after := f.complete(t, first.ID, "ok")
	if _, err := eng.OnTaskStatusChanged(ctx, before, after); !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	if got, _ := f.st.GetProcess(ctx, "c1", p.ID); got.CurrentStep != 0 {
		t.Fatalf("conflicting advance moved the process: %+v", got)
	}

	cs.conflict = false
	rp, err := eng.ActivateStep(ctx, "c1", p.ID)
	if err != nil || !rp.Advanced || rp.Task == nil || rp.Task.ProcessStep != 1 {
		t.Fatalf("replay = %+v, %v", rp, err)
	}
}

func TestNewWithoutLoggerDoesNotPanic(t *testing.T) {
	f := newFixture(t)
	eng := New(Options{Store: f.st})
	if _, _, err := eng.StartProcess(context.Background(), StartRequest{CompanyID: "c1", TemplateName: "Lead processing"}); err != nil {
		t.Fatal(err)
	}
}
