package notify

import (
	"context"

	"github.com/Vortex-technology1/talko-task-manager/internal/actions"
)

// ChatRef addresses a chat on the remote client.
type ChatRef string

// MessageRef addresses a message previously sent to a chat.
type MessageRef int64

// Button is one labeled inline trigger.
type Button struct {
	Label   string
	Trigger actions.Trigger
}

// Dispatcher delivers rendered text to the chat client.
type Dispatcher interface {
	SendText(ctx context.Context, chat ChatRef, text string) (MessageRef, error)
	SendWithActions(ctx context.Context, chat ChatRef, text string, rows [][]Button) (MessageRef, error)
	EditMessage(ctx context.Context, chat ChatRef, msg MessageRef, text string, rows [][]Button) error
	AcknowledgeAction(ctx context.Context, actionRef, text string) error
}

// TaskButtons is the standard 2x2 keyboard attached to task messages.
func TaskButtons(companyID, taskID string) [][]Button {
	b := func(label string, a actions.Action) Button {
		return Button{Label: label, Trigger: actions.Trigger{Action: a, CompanyID: companyID, TaskID: taskID}}
	}
	return [][]Button{
		{b("✅ Done", actions.Done), b("🔄 +1 day", actions.Postpone)},
		{b("📎 Details", actions.Details), b("🚀 Start", actions.Progress)},
	}
}
