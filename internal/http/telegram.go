package httpapi

import (
	"context"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"strings"

	"github.com/Vortex-technology1/talko-task-manager/internal/actions"
	"github.com/Vortex-technology1/talko-task-manager/internal/models"
	"github.com/Vortex-technology1/talko-task-manager/internal/notify"
	"github.com/Vortex-technology1/talko-task-manager/internal/store"
	"github.com/Vortex-technology1/talko-task-manager/internal/tasks"
	"github.com/Vortex-technology1/talko-task-manager/internal/telegram"

	"github.com/sirupsen/logrus"
)

const (
	secretHeader = "X-Telegram-Bot-Api-Secret-Token"
	botListLimit = 10
)

const helpText = "ℹ️ Send a message to create a task, e.g.\n" +
	"<i>Call the supplier @Andrii tomorrow at 11:00 !!!</i>\n\n" +
	"/today - tasks due today\n/overdue - overdue tasks\n/team - team load"

// telegramWebhook answers 200 for everything it parsed, including updates
// it ignores, so Telegram does not redeliver them.
func (a *App) telegramWebhook(w http.ResponseWriter, r *http.Request) {
	if a.WebhookSecret != "" && r.Header.Get(secretHeader) != a.WebhookSecret {
		writeError(w, http.StatusUnauthorized, "invalid secret")
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body")
		return
	}
	u, err := telegram.ParseUpdate(body)
	switch {
	case errors.Is(err, telegram.ErrUnsupportedUpdate):
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
		return
	case err != nil:
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	log := a.Log.WithFields(logrus.Fields{"update": u.ID, "chat": u.ChatID})
	if u.IsCallback() {
		a.handleCallback(r.Context(), u, log)
	} else {
		a.handleMessage(r.Context(), u, log)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (a *App) reply(ctx context.Context, chat string, text string, rows [][]notify.Button, log *logrus.Entry) {
	var err error
	if len(rows) > 0 {
		_, err = a.Bot.SendWithActions(ctx, notify.ChatRef(chat), text, rows)
	} else {
		_, err = a.Bot.SendText(ctx, notify.ChatRef(chat), text)
	}
	if err != nil {
		log.WithError(err).Warn("bot: reply failed")
	}
}

func (a *App) handleCallback(ctx context.Context, u telegram.Update, log *logrus.Entry) {
	ack := ""
	defer func() {
		if err := a.Bot.AcknowledgeAction(ctx, u.CallbackID, ack); err != nil {
			log.WithError(err).Warn("bot: acknowledge failed")
		}
	}()

	trig, err := actions.ParseTrigger(u.CallbackData)
	if err != nil {
		ack = "⚠️ Unknown action"
		return
	}
	user, err := a.Store.FindUserByChatID(ctx, u.ChatID)
	if err != nil || user.CompanyID != trig.CompanyID {
		ack = "⚠️ This chat is not linked to the company"
		return
	}
	log = log.WithFields(logrus.Fields{"company": trig.CompanyID, "task": trig.TaskID, "action": trig.Action.String()})

	out, err := a.Tasks.Transition(ctx, tasks.TransitionRequest{
		CompanyID: trig.CompanyID,
		TaskID:    trig.TaskID,
		Action:    trig.Action,
		ActorID:   user.ID,
		Source:    models.SourceTelegram,
	})
	if errors.Is(err, store.ErrNotFound) {
		ack = "⚠️ Task not found"
		return
	}
	if err != nil {
		log.WithError(err).Error("bot: transition failed")
		ack = "⚠️ Something went wrong, try again"
		return
	}

	chat, msg := notify.ChatRef(u.ChatID), notify.MessageRef(u.MessageID)
	edit := func(text string, rows [][]notify.Button) {
		if err := a.Bot.EditMessage(ctx, chat, msg, text, rows); err != nil {
			log.WithError(err).Warn("bot: edit failed")
		}
	}
	buttons := notify.TaskButtons(trig.CompanyID, trig.TaskID)

	switch trig.Action {
	case actions.Details:
		a.reply(ctx, u.ChatID, notify.TaskDetails(out.Task), buttons, log)
	case actions.Done:
		if out.AlreadyInState {
			ack = "Already done"
		} else {
			ack = "✅ Done"
		}
		edit("✅ <b>Completed</b>\n\n"+notify.TaskSummary(out.Task), nil)
	case actions.Postpone:
		if out.AlreadyInState {
			ack = "Task is already done"
			return
		}
		ack = fmt.Sprintf("🔄 Moved to %s", out.Task.DeadlineDate)
		edit(notify.TaskSummary(out.Task), buttons)
	case actions.Progress:
		if out.AlreadyInState {
			ack = "Already started"
			return
		}
		ack = "🚀 Started"
		edit(notify.TaskSummary(out.Task), buttons)
	}
}

func (a *App) handleMessage(ctx context.Context, u telegram.Update, log *logrus.Entry) {
	text := strings.TrimSpace(u.Text)
	if text == "" {
		return
	}
	cmd, arg := splitCommand(text)

	if cmd == "/start" && arg != "" {
		a.linkChat(ctx, u, arg, log)
		return
	}

	user, err := a.Store.FindUserByChatID(ctx, u.ChatID)
	if errors.Is(err, store.ErrNotFound) {
		a.reply(ctx, u.ChatID, "🔗 This chat is not linked yet. Open your profile and send <code>/start &lt;code&gt;</code> here.", nil, log)
		return
	}
	if err != nil {
		log.WithError(err).Error("bot: resolve chat")
		return
	}
	log = log.WithFields(logrus.Fields{"company": user.CompanyID, "user": user.ID})

	switch cmd {
	case "/start", "/help":
		a.reply(ctx, u.ChatID, fmt.Sprintf("👋 Hi, %s!\n\n%s", html.EscapeString(user.DisplayName()), helpText), nil, log)
	case "/today":
		list, err := a.Tasks.DueToday(ctx, user.CompanyID, user.ID, botListLimit)
		if err != nil {
			log.WithError(err).Error("bot: today")
			return
		}
		a.taskCards(ctx, u.ChatID, "📅 ", "🎉 Nothing due today", list, log)
	case "/overdue":
		list, err := a.Tasks.Overdue(ctx, user.CompanyID, user.ID, botListLimit)
		if err != nil {
			log.WithError(err).Error("bot: overdue")
			return
		}
		a.taskCards(ctx, u.ChatID, "⚠️ ", "🎉 No overdue tasks", list, log)
	case "/team":
		a.teamReply(ctx, u.ChatID, *user, log)
	case "":
		a.quickTask(ctx, u.ChatID, *user, text, log)
	default:
		a.reply(ctx, u.ChatID, "🤔 Unknown command.\n\n"+helpText, nil, log)
	}
}

// taskCards sends one card with action buttons per task, or empty when there
// are none.
func (a *App) taskCards(ctx context.Context, chat, mark, empty string, list []models.Task, log *logrus.Entry) {
	if len(list) == 0 {
		a.reply(ctx, chat, empty, nil, log)
		return
	}
	for _, t := range list {
		a.reply(ctx, chat, mark+notify.TaskSummary(t), notify.TaskButtons(t.CompanyID, t.ID), log)
	}
}

// splitCommand returns ("/cmd", "rest") for commands and ("", "") otherwise.
// A "@botname" suffix on the command is dropped.
func splitCommand(text string) (string, string) {
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}
	cmd, rest, _ := strings.Cut(text, " ")
	cmd, _, _ = strings.Cut(cmd, "@")
	return strings.ToLower(cmd), strings.TrimSpace(rest)
}

func (a *App) linkChat(ctx context.Context, u telegram.Update, code string, log *logrus.Entry) {
	user, err := a.Store.FindUserByTelegramCode(ctx, code)
	if errors.Is(err, store.ErrNotFound) {
		a.reply(ctx, u.ChatID, "❌ Invalid or expired code", nil, log)
		return
	}
	if err != nil {
		log.WithError(err).Error("bot: find link code")
		return
	}
	if err := a.Store.LinkTelegram(ctx, user.CompanyID, user.ID, u.ChatID, u.FromID); err != nil {
		log.WithError(err).Error("bot: link chat")
		a.reply(ctx, u.ChatID, "⚠️ Could not link this chat, try again", nil, log)
		return
	}
	log.WithFields(logrus.Fields{"company": user.CompanyID, "user": user.ID}).Info("bot: chat linked")
	a.reply(ctx, u.ChatID, fmt.Sprintf("✅ Linked, %s!\n\n%s", html.EscapeString(user.DisplayName()), helpText), nil, log)
}

func (a *App) teamReply(ctx context.Context, chat string, user models.User, log *logrus.Entry) {
	if !user.IsManager() {
		a.reply(ctx, chat, "🔒 Only managers can see the team load", nil, log)
		return
	}
	loads, err := a.Tasks.TeamLoad(ctx, user.CompanyID)
	if err != nil {
		log.WithError(err).Error("bot: team load")
		return
	}
	var b strings.Builder
	b.WriteString("👥 <b>Team load</b>\n\n")
	for _, l := range loads {
		mark := "🟢"
		if l.Overdue > 0 {
			mark = "🔴"
		}
		fmt.Fprintf(&b, "%s %s: %d open, %d overdue\n", mark, html.EscapeString(l.User.DisplayName()), l.Open, l.Overdue)
	}
	a.reply(ctx, chat, b.String(), nil, log)
}

func (a *App) quickTask(ctx context.Context, chat string, user models.User, text string, log *logrus.Entry) {
	q := tasks.ParseQuick(text, a.now(), a.Location)
	if q.Title == "" {
		a.reply(ctx, chat, "✏️ The task needs a title", nil, log)
		return
	}
	req := tasks.CreateRequest{
		CompanyID:    user.CompanyID,
		RequesterID:  user.ID,
		Title:        q.Title,
		Priority:     q.Priority,
		DeadlineDate: q.DeadlineDate,
		DeadlineTime: q.DeadlineTime,
		Source:       models.SourceTelegram,
	}
	if q.Mention != "" {
		users, err := a.Store.ListUsers(ctx, user.CompanyID)
		if err != nil {
			log.WithError(err).Error("bot: list users")
			return
		}
		match, ok := tasks.MatchUser(users, q.Mention)
		if !ok {
			a.reply(ctx, chat, fmt.Sprintf("❓ No one matches @%s", html.EscapeString(q.Mention)), nil, log)
			return
		}
		req.AssigneeID = match.ID
	}

	t, err := a.Tasks.Create(ctx, req)
	if err != nil {
		log.WithError(err).Error("bot: create task")
		a.reply(ctx, chat, "⚠️ Could not create the task", nil, log)
		return
	}
	msg := "✅ <b>Task created</b>\n\n" + notify.TaskSummary(*t)
	if t.AssigneeID != user.ID {
		msg += fmt.Sprintf("👤 Assignee: %s\n", html.EscapeString(t.AssigneeName))
	}
	a.reply(ctx, chat, msg, notify.TaskButtons(t.CompanyID, t.ID), log)
}
