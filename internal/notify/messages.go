package notify

import (
	"fmt"
	"html"
	"regexp"
	"strings"
	"time"

	"github.com/Vortex-technology1/talko-task-manager/internal/models"
)

const descriptionLimit = 500

var esc = html.EscapeString

func renderNewTask(e Event, _ *time.Location) string {
	t := e.Task
	var b strings.Builder
	fmt.Fprintf(&b, "📋 <b>New %s</b>\n\n📌 <b>%s</b>\n", strings.ToLower(t.Kind()), esc(t.Title))
	if t.DeadlineDate != "" {
		fmt.Fprintf(&b, "📅 Deadline: %s %s\n", t.DeadlineDate, t.DeadlineTime)
	}
	if t.CreatorName != "" {
		fmt.Fprintf(&b, "👤 From: %s\n", esc(t.CreatorName))
	}
	if t.ExpectedResult != "" {
		fmt.Fprintf(&b, "\n🎯 Expected result:\n%s\n", esc(t.ExpectedResult))
	}
	if t.Description != "" {
		fmt.Fprintf(&b, "\n📝 %s\n", esc(truncate(t.Description, descriptionLimit)))
	}
	return b.String()
}

func renderTaskCompleted(e Event, loc *time.Location) string {
	t := e.Task
	var b strings.Builder
	fmt.Fprintf(&b, "✅ <b>Task completed</b>\n\n📌 %s\n", esc(t.Title))
	if t.AssigneeName != "" {
		fmt.Fprintf(&b, "👤 Assignee: %s\n", esc(t.AssigneeName))
	}
	at := e.Now
	if t.CompletedAt != 0 {
		at = time.UnixMilli(t.CompletedAt)
	}
	fmt.Fprintf(&b, "🕐 %s\n", at.In(loc).Format("2006-01-02 15:04"))
	if t.CompletionComment != "" {
		fmt.Fprintf(&b, "💬 %s\n", esc(t.CompletionComment))
	}
	return b.String()
}

func renderStepActivated(e Event, _ *time.Location) string {
	t := e.Task
	var b strings.Builder
	b.WriteString("🔔 <b>New process step</b>\n\n")
	fmt.Fprintf(&b, "📋 %s\n", processLabel(e.Process))
	fmt.Fprintf(&b, "📍 Step %d/%d: <b>%s</b>\n", t.ProcessStep+1, e.StepCount, esc(e.Step.DisplayTitle()))
	if t.DeadlineDate != "" {
		fmt.Fprintf(&b, "⏰ Deadline: %s %s\n", t.DeadlineDate, t.DeadlineTime)
	}
	if t.ExpectedResult != "" {
		fmt.Fprintf(&b, "\n🎯 Expected result:\n%s\n", esc(t.ExpectedResult))
	}
	if e.Step.ControlQuestion != "" {
		fmt.Fprintf(&b, "\n❓ %s\n", esc(e.Step.ControlQuestion))
	}
	return b.String()
}

func renderProcessProgress(e Event, _ *time.Location) string {
	t := e.Task
	var b strings.Builder
	b.WriteString("📊 <b>Process progress</b>\n\n")
	fmt.Fprintf(&b, "📋 %s\n", processLabel(e.Process))
	if t.ProcessStep > 0 {
		fmt.Fprintf(&b, "✅ Step %d completed\n", t.ProcessStep)
	}
	fmt.Fprintf(&b, "▶️ Step %d/%d: %s\n", t.ProcessStep+1, e.StepCount, esc(e.Step.DisplayTitle()))
	name := t.AssigneeName
	if name == "" {
		name = "unassigned"
	}
	fmt.Fprintf(&b, "👤 %s\n", esc(name))
	return b.String()
}

func renderProcessCompleted(e Event, _ *time.Location) string {
	return fmt.Sprintf("✅ <b>Process completed</b>\n\n📋 %s\n🎉 All %d steps done\n",
		processLabel(e.Process), e.StepCount)
}

func renderOverdue(e Event, _ *time.Location) string {
	t := e.Task
	return fmt.Sprintf("⚠️ <b>OVERDUE</b>\n\n%s: <b>%s</b>\n⏰ Deadline: %s %s\n⌛ Overdue by %s\n",
		t.Kind(), esc(t.Title), t.DeadlineDate, t.DeadlineTime, overdueBy(t, e.Now))
}

func renderOverdueForManager(e Event, _ *time.Location) string {
	t := e.Task
	name := t.AssigneeName
	if name == "" {
		name = "unassigned"
	}
	return fmt.Sprintf("⚠️ <b>Task overdue</b>\n\n%s: %s\n👤 %s\n⌛ +%s\n",
		t.Kind(), esc(t.Title), esc(name), overdueBy(t, e.Now))
}

func renderEscalated(e Event, _ *time.Location) string {
	t := e.Task
	return fmt.Sprintf("🔄 <b>Escalation</b>\n\n📌 <b>%s</b>\n⏰ Deadline: %s %s\n",
		esc(t.Title), t.DeadlineDate, t.DeadlineTime)
}

func renderReminder(e Event, _ *time.Location) string {
	t := e.Task
	return fmt.Sprintf("⏰ <b>Reminder</b>\n\n%s: <b>%s</b>\n⏳ Time left: %s\n",
		t.Kind(), esc(t.Title), durationLabel(e.Offset))
}

func renderReminderControl(e Event, _ *time.Location) string {
	t := e.Task
	return fmt.Sprintf("⏰ Control: <b>%s</b>\n👤 %s\n⏳ %s left\n",
		esc(t.Title), esc(t.AssigneeName), durationLabel(e.Offset))
}

func renderLead(e Event, _ *time.Location) string {
	l := e.Lead
	var b strings.Builder
	fmt.Fprintf(&b, "🔔 <b>New lead</b>\n\n👤 %s\n", esc(l.Name))
	if l.Phone != "" {
		fmt.Fprintf(&b, "📞 %s\n", esc(l.Phone))
	}
	if l.Email != "" {
		fmt.Fprintf(&b, "📧 %s\n", esc(l.Email))
	}
	if l.Source != "" {
		fmt.Fprintf(&b, "🔗 %s\n", esc(l.Source))
	}
	if l.Message != "" {
		fmt.Fprintf(&b, "💬 %s\n", esc(truncate(l.Message, descriptionLimit)))
	}
	return b.String()
}

func processLabel(p *models.Process) string {
	if p == nil {
		return ""
	}
	if p.ObjectName != "" {
		return fmt.Sprintf("<b>%s</b> [%s]", esc(p.Name), esc(p.ObjectName))
	}
	return "<b>" + esc(p.Name) + "</b>"
}

func overdueBy(t *models.Task, now time.Time) string {
	at, ok := t.DeadlineAt()
	if !ok || now.Before(at) {
		return "0 min"
	}
	return durationLabel(int(now.Sub(at) / time.Minute))
}

func durationLabel(min int) string {
	switch {
	case min >= 60 && min%60 == 0:
		return fmt.Sprintf("%d h", min/60)
	case min >= 60:
		return fmt.Sprintf("%d h %d min", min/60, min%60)
	default:
		return fmt.Sprintf("%d min", min)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}

var tagRE = regexp.MustCompile(`<[^>]+>`)

// stripTags turns a chat message into plain text for e-mail bodies.
func stripTags(s string) string {
	return html.UnescapeString(tagRE.ReplaceAllString(s, ""))
}
