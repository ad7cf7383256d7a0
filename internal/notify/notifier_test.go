package notify_test

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/Vortex-technology1/talko-task-manager/internal/models"
	"github.com/Vortex-technology1/talko-task-manager/internal/notify"
	"github.com/Vortex-technology1/talko-task-manager/internal/notify/notifytest"
	"github.com/Vortex-technology1/talko-task-manager/internal/store"

	"github.com/sirupsen/logrus"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type mailbox struct {
	to   []string
	body []string
	err  error
}

func (m *mailbox) Send(_ context.Context, to, _, body string) error {
	if m.err != nil {
		return m.err
	}
	m.to = append(m.to, to)
	m.body = append(m.body, body)
	return nil
}

func seedUsers(t *testing.T, st *store.MemoryStore) {
	t.Helper()
	ctx := context.Background()
	for _, u := range []models.User{
		{ID: "boss", CompanyID: "c1", Name: "Olena", Role: models.RoleOwner, TelegramChatID: "100", Email: "boss@example.com"},
		{ID: "mgr", CompanyID: "c1", Name: "Ivan", Role: models.RoleManager, TelegramChatID: "200"},
		{ID: "emp", CompanyID: "c1", Name: "Petro", Role: models.RoleEmployee, TelegramChatID: "300"},
		{ID: "nochat", CompanyID: "c1", Name: "Anna", Role: models.RoleEmployee},
	} {
		if err := st.PutUser(ctx, u); err != nil {
			t.Fatalf("put user: %v", err)
		}
	}
}

func newNotifier(t *testing.T, mail *mailbox) (*notify.Notifier, *notifytest.Recorder) {
	t.Helper()
	st := store.NewMemoryStore()
	seedUsers(t, st)
	rec := notifytest.New()
	var n *notify.Notifier
	if mail != nil {
		n = notify.New(st, rec, mail, time.UTC, quietLogger())
	} else {
		n = notify.New(st, rec, nil, time.UTC, quietLogger())
	}
	return n, rec
}

func TestOverdueGoesToAssigneeAndOtherManagers(t *testing.T) {
	n, rec := newNotifier(t, nil)
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)
	task := &models.Task{ID: "t1", CompanyID: "c1", Title: "Call <client>", AssigneeID: "mgr", AssigneeName: "Ivan"}
	task.SetDeadline(now.Add(-90*time.Minute), time.UTC)

	rep := n.Notify(context.Background(), notify.Event{Kind: notify.KindOverdue, CompanyID: "c1", Task: task, Now: now})

	if rep.Sent != 2 || rep.Failed != 0 {
		t.Fatalf("unexpected report %+v", rep)
	}
	if got := rec.SentTo("200"); len(got) != 1 || !strings.Contains(got[0].Text, "OVERDUE") {
		t.Fatalf("assignee message: %+v", got)
	}
	if !strings.Contains(rec.SentTo("200")[0].Text, "Call &lt;client&gt;") {
		t.Fatalf("title not escaped: %q", rec.SentTo("200")[0].Text)
	}
	if !strings.Contains(rec.SentTo("200")[0].Text, "1 h 30 min") {
		t.Fatalf("overdue duration missing: %q", rec.SentTo("200")[0].Text)
	}
	if got := rec.SentTo("100"); len(got) != 1 || len(got[0].Rows) != 2 {
		t.Fatalf("manager message: %+v", got)
	}
}

func TestDeliveryFailureDoesNotStopFanOut(t *testing.T) {
	n, rec := newNotifier(t, nil)
	rec.Fail("100")
	lead := &models.Lead{ID: "l1", CompanyID: "c1", Name: "Maria", Phone: "+380"}

	rep := n.Notify(context.Background(), notify.Event{Kind: notify.KindLeadReceived, CompanyID: "c1", Lead: lead})

	if rep.Sent != 1 || rep.Failed != 1 {
		t.Fatalf("unexpected report %+v", rep)
	}
	if len(rec.SentTo("200")) != 1 {
		t.Fatal("second manager should still be notified")
	}
}

func TestCompletionSkipsCompleter(t *testing.T) {
	n, rec := newNotifier(t, nil)
	task := &models.Task{
		ID: "t1", CompanyID: "c1", Title: "Report", AssigneeID: "emp",
		NotifyOnComplete: []string{"boss", "emp", "boss", "ghost"},
	}

	rep := n.Notify(context.Background(), notify.Event{Kind: notify.KindTaskCompleted, CompanyID: "c1", Task: task, ActorID: "emp"})

	if rep.Sent != 1 || rep.Skipped != 1 {
		t.Fatalf("unexpected report %+v", rep)
	}
	if len(rec.SentTo("300")) != 0 {
		t.Fatal("completer must not be notified")
	}
}

func TestUserWithoutChatIsSkipped(t *testing.T) {
	n, rec := newNotifier(t, nil)
	task := &models.Task{ID: "t1", CompanyID: "c1", Title: "x", AssigneeID: "nochat"}

	rep := n.Notify(context.Background(), notify.Event{Kind: notify.KindNewTask, CompanyID: "c1", Task: task})

	if rep.Skipped != 1 || len(rec.Sent()) != 0 {
		t.Fatalf("unexpected report %+v", rep)
	}
}

func TestNewTaskCarriesButtons(t *testing.T) {
	n, rec := newNotifier(t, nil)
	task := &models.Task{ID: "t9", CompanyID: "c1", Title: "x", AssigneeID: "emp"}

	n.Notify(context.Background(), notify.Event{Kind: notify.KindNewTask, CompanyID: "c1", Task: task})

	msgs := rec.SentTo("300")
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if got := msgs[0].Rows[0][0].Trigger.Payload(); got != "done:c1:t9" {
		t.Fatalf("done payload = %q", got)
	}
}

func TestReportMailsManagers(t *testing.T) {
	mail := &mailbox{}
	n, rec := newNotifier(t, mail)

	rep := n.SendReport(context.Background(), "c1", "Daily", "<b>3</b> done", func(u models.User) bool { return u.ID == "boss" })

	if rep.Sent != 2 {
		t.Fatalf("unexpected report %+v", rep)
	}
	if len(rec.SentTo("100")) != 1 || len(rec.SentTo("200")) != 0 {
		t.Fatal("report should only go to included managers")
	}
	if len(mail.to) != 1 || mail.body[0] != "3 done" {
		t.Fatalf("mail = %+v", mail)
	}
}

func TestReportMailFailureCounted(t *testing.T) {
	mail := &mailbox{err: errors.New("ses down")}
	n, _ := newNotifier(t, mail)

	rep := n.SendReport(context.Background(), "c1", "Daily", "x", nil)

	if rep.Failed != 1 || rep.Sent != 2 {
		t.Fatalf("unexpected report %+v", rep)
	}
}

func TestNewWithoutLoggerDoesNotPanic(t *testing.T) {
	st := store.NewMemoryStore()
	seedUsers(t, st)
	rec := notifytest.New()
	rec.Fail("100")
	n := notify.New(st, rec, nil, nil, nil)

	lead := &models.Lead{ID: "l1", CompanyID: "c1", Name: "Maria"}
	if rep := n.Notify(context.Background(), notify.Event{Kind: notify.KindLeadReceived, CompanyID: "c1", Lead: lead}); rep.Failed != 1 {
		t.Fatalf("unexpected report %+v", rep)
	}
}
