package notify

import (
	"fmt"
	"strings"

	"github.com/Vortex-technology1/talko-task-manager/internal/models"
)

var statusLabels = map[string]string{
	models.StatusNew:      "🆕 new",
	models.StatusProgress: "🚀 in progress",
	models.StatusReview:   "👀 in review",
	models.StatusDone:     "✅ done",
}

// TaskSummary is the short card shown when a task message is edited in place.
func TaskSummary(t models.Task) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📌 <b>%s</b>\n", esc(t.Title))
	if t.DeadlineDate != "" {
		fmt.Fprintf(&b, "📅 Deadline: %s %s\n", t.DeadlineDate, t.DeadlineTime)
	}
	if l, ok := statusLabels[t.Status]; ok {
		fmt.Fprintf(&b, "Status: %s\n", l)
	}
	return b.String()
}

// TaskDetails is the full card sent for the details action.
func TaskDetails(t models.Task) string {
	var b strings.Builder
	b.WriteString(TaskSummary(t))
	fmt.Fprintf(&b, "⚡ Priority: %s\n", t.Priority)
	if t.AssigneeName != "" {
		fmt.Fprintf(&b, "👤 Assignee: %s\n", esc(t.AssigneeName))
	}
	if t.CreatorName != "" {
		fmt.Fprintf(&b, "✍️ From: %s\n", esc(t.CreatorName))
	}
	if t.Function != "" {
		fmt.Fprintf(&b, "🏷 Function: %s\n", esc(t.Function))
	}
	if t.Instruction != "" {
		fmt.Fprintf(&b, "\n📖 Instruction:\n%s\n", esc(t.Instruction))
	}
	if t.ExpectedResult != "" {
		fmt.Fprintf(&b, "\n🎯 Expected result:\n%s\n", esc(t.ExpectedResult))
	}
	if t.Description != "" {
		fmt.Fprintf(&b, "\n📝 %s\n", esc(truncate(t.Description, descriptionLimit)))
	}
	return b.String()
}
