package httpapi_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Vortex-technology1/talko-task-manager/internal/models"
	"github.com/Vortex-technology1/talko-task-manager/internal/store"
)

func callbackUpdate(chat, data string, msgID int) string {
	return fmt.Sprintf(`{"update_id":1,"callback_query":{"id":"cb-1","data":%q,"from":{"id":%s,"first_name":"T"},"message":{"message_id":%d,"chat":{"id":%s}}}}`,
		data, chat, msgID, chat)
}

func messageUpdate(chat, text string) string {
	return fmt.Sprintf(`{"update_id":2,"message":{"message_id":9,"text":%q,"from":{"id":%s,"first_name":"T"},"chat":{"id":%s}}}`,
		text, chat, chat)
}

func (s *server) webhook(t *testing.T, body string) int {
	t.Helper()
	w, _ := s.do(t, http.MethodPost, "/telegram/webhook", "", body)
	return w.Code
}

func TestCallbackDoneEditsMessage(t *testing.T) {
	s := newServer(t)
	s.putTask(t, models.Task{ID: "t1", Title: "Call supplier", AssigneeID: "A", CreatorID: "boss"})

	if code := s.webhook(t, callbackUpdate("201", "done:c1:t1", 55)); code != http.StatusOK {
		t.Fatalf("status %d", code)
	}
	acks := s.rec.Acks()
	if len(acks) != 1 || acks[0].Ref != "cb-1" || acks[0].Text != "✅ Done" {
		t.Fatalf("acks = %+v", acks)
	}
	edits := s.rec.Edits()
	if len(edits) != 1 || edits[0].Ref != 55 || !strings.Contains(edits[0].Text, "Completed") || len(edits[0].Rows) != 0 {
		t.Fatalf("edits = %+v", edits)
	}
	task, err := s.st.GetTask(context.Background(), "c1", "t1")
	if err != nil {
		t.Fatal(err)
	}
	if task.Status != models.StatusDone || task.CompletedBy != "A" || task.CompletionSource != models.SourceTelegram {
		t.Fatalf("task = %+v", task)
	}

	// a second press only acknowledges
	s.webhook(t, callbackUpdate("201", "done:c1:t1", 55))
	if acks := s.rec.Acks(); len(acks) != 2 || acks[1].Text != "Already done" {
		t.Fatalf("acks = %+v", acks)
	}
}

func TestCallbackPostponeKeepsButtons(t *testing.T) {
	s := newServer(t)
	s.putTask(t, models.Task{ID: "t1", Title: "Call supplier", AssigneeID: "A"})

	s.webhook(t, callbackUpdate("201", "postpone:c1:t1", 56))
	acks := s.rec.Acks()
	if len(acks) != 1 || acks[0].Text != "🔄 Moved to 2026-03-03" {
		t.Fatalf("acks = %+v", acks)
	}
	edits := s.rec.Edits()
	if len(edits) != 1 || len(edits[0].Rows) != 2 {
		t.Fatalf("edits = %+v", edits)
	}
}

func TestCallbackFromForeignChatIsRejected(t *testing.T) {
	s := newServer(t)
	s.putTask(t, models.Task{ID: "t1", Title: "Call supplier", AssigneeID: "A"})

	s.webhook(t, callbackUpdate("777", "done:c1:t1", 1))
	s.webhook(t, callbackUpdate("201", "garbage", 1))

	acks := s.rec.Acks()
	if len(acks) != 2 || !strings.Contains(acks[0].Text, "not linked") || !strings.Contains(acks[1].Text, "Unknown") {
		t.Fatalf("acks = %+v", acks)
	}
	task, _ := s.st.GetTask(context.Background(), "c1", "t1")
	if task.Status != models.StatusNew {
		t.Fatalf("task changed to %s", task.Status)
	}
}

func TestQuickTaskFromMessage(t *testing.T) {
	s := newServer(t)
	s.webhook(t, messageUpdate("201", "Call the supplier @Bohdan tomorrow at 11:00 !!!"))

	all, err := s.st.ListTasks(context.Background(), "c1", store.TaskFilter{})
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 {
		t.Fatalf("tasks = %d, want 1", len(all))
	}
	got := all[0]
	if got.Title != "Call the supplier" || got.AssigneeID != "B" || got.CreatorID != "A" {
		t.Fatalf("task = %+v", got)
	}
	if got.DeadlineDate != "2026-03-03" || got.DeadlineTime != "11:00" || got.Priority != models.PriorityHigh {
		t.Fatalf("task deadline/priority = %s %s %s", got.DeadlineDate, got.DeadlineTime, got.Priority)
	}
	if got.Source != models.SourceTelegram {
		t.Fatalf("source = %s", got.Source)
	}

	confirm := s.rec.SentTo("201")
	if len(confirm) != 1 || !strings.Contains(confirm[0].Text, "Task created") || len(confirm[0].Rows) == 0 {
		t.Fatalf("confirmation = %+v", confirm)
	}
	if n := len(s.rec.SentTo("202")); n != 1 {
		t.Fatalf("assignee got %d messages, want 1", n)
	}
}

func TestQuickTaskUnknownMention(t *testing.T) {
	s := newServer(t)
	s.webhook(t, messageUpdate("201", "Fix the door @Zorro"))

	all, _ := s.st.ListTasks(context.Background(), "c1", store.TaskFilter{})
	if len(all) != 0 {
		t.Fatalf("tasks = %d, want 0", len(all))
	}
	if msgs := s.rec.SentTo("201"); len(msgs) != 1 || !strings.Contains(msgs[0].Text, "@Zorro") {
		t.Fatalf("reply = %+v", msgs)
	}
}

func TestStartLinksChat(t *testing.T) {
	s := newServer(t)
	s.webhook(t, messageUpdate("999", "/start link-me"))

	u, err := s.st.FindUserByChatID(context.Background(), "999")
	if err != nil {
		t.Fatalf("chat not linked: %v", err)
	}
	if u.ID != "X" {
		t.Fatalf("linked user = %s", u.ID)
	}
	if msgs := s.rec.SentTo("999"); len(msgs) != 1 || !strings.Contains(msgs[0].Text, "Linked") {
		t.Fatalf("reply = %+v", msgs)
	}
}

func TestUnlinkedChatGetsHint(t *testing.T) {
	s := newServer(t)
	s.webhook(t, messageUpdate("555", "/today"))
	if msgs := s.rec.SentTo("555"); len(msgs) != 1 || !strings.Contains(msgs[0].Text, "not linked") {
		t.Fatalf("reply = %+v", msgs)
	}
}

func TestOverdueCommandSendsButtons(t *testing.T) {
	s := newServer(t)
	late := models.Task{ID: "t1", Title: "Late one", AssigneeID: "A", CompanyID: "c1", Status: models.StatusNew}
	late.SetDeadline(s.now.Add(-3*time.Hour), s.loc)
	if err := s.st.PutTask(context.Background(), late); err != nil {
		t.Fatal(err)
	}

	s.webhook(t, messageUpdate("201", "/overdue"))
	msgs := s.rec.SentTo("201")
	if len(msgs) != 1 || len(msgs[0].Rows) != 2 || !strings.Contains(msgs[0].Text, "Late one") {
		t.Fatalf("reply = %+v", msgs)
	}
}

func TestTodayCommandSendsButtons(t *testing.T) {
	s := newServer(t)
	s.webhook(t, messageUpdate("201", "/today"))
	if msgs := s.rec.SentTo("201"); len(msgs) != 1 || !strings.Contains(msgs[0].Text, "Nothing due today") || len(msgs[0].Rows) != 0 {
		t.Fatalf("empty reply = %+v", msgs)
	}

	s.rec.Reset()
	for _, id := range []string{"t1", "t2"} {
		due := models.Task{ID: id, Title: "Call " + id, AssigneeID: "A", CompanyID: "c1", Status: models.StatusNew}
		due.SetDeadline(s.now.Add(2*time.Hour), s.loc)
		if err := s.st.PutTask(context.Background(), due); err != nil {
			t.Fatal(err)
		}
	}
	s.webhook(t, messageUpdate("201", "/today"))
	msgs := s.rec.SentTo("201")
	if len(msgs) != 2 {
		t.Fatalf("expected one card per task, got %+v", msgs)
	}
	for _, m := range msgs {
		if len(m.Rows) != 2 || !strings.Contains(m.Text, "Call t") {
			t.Fatalf("card = %+v", m)
		}
	}
}

func TestTeamCommandIsForManagers(t *testing.T) {
	s := newServer(t)
	s.webhook(t, messageUpdate("201", "/team"))
	s.webhook(t, messageUpdate("100", "/team"))

	if msgs := s.rec.SentTo("201"); len(msgs) != 1 || !strings.Contains(msgs[0].Text, "Only managers") {
		t.Fatalf("employee reply = %+v", msgs)
	}
	if msgs := s.rec.SentTo("100"); len(msgs) != 1 || !strings.Contains(msgs[0].Text, "Andrii: 0 open") {
		t.Fatalf("manager reply = %+v", msgs)
	}
}

func TestWebhookSecretAndUnsupportedUpdates(t *testing.T) {
	s := newServer(t)
	if code := s.webhook(t, `{"update_id":3,"edited_message":{}}`); code != http.StatusOK {
		t.Fatalf("unsupported update: status %d", code)
	}
	if code := s.webhook(t, `{not json`); code != http.StatusBadRequest {
		t.Fatalf("malformed update: status %d", code)
	}

	s.app.WebhookSecret = "s3cret"
	req := httptest.NewRequest(http.MethodPost, "/telegram/webhook", strings.NewReader(messageUpdate("201", "/help")))
	w := httptest.NewRecorder()
	s.h.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("missing secret: status %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodPost, "/telegram/webhook", strings.NewReader(messageUpdate("201", "/help")))
	req.Header.Set("X-Telegram-Bot-Api-Secret-Token", "s3cret")
	w = httptest.NewRecorder()
	s.h.ServeHTTP(w, req)
	if w.Code != http.StatusOK || len(s.rec.SentTo("201")) != 1 {
		t.Fatalf("with secret: status %d, replies %d", w.Code, len(s.rec.SentTo("201")))
	}
}
