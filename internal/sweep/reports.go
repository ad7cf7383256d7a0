package sweep

import (
	"context"
	"errors"
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"github.com/Vortex-technology1/talko-task-manager/internal/models"
	"github.com/Vortex-technology1/talko-task-manager/internal/store"

	"github.com/sirupsen/logrus"
)

const (
	topPeople       = 5
	weeklyPeople    = 3
	personalDigestN = 10
)

var errNoNotifier = errors.New("sweep: reports need a notifier")

// PersonCount pairs a user with a task count.
type PersonCount struct {
	Name  string
	Count int
}

type DailySummary struct {
	Date               string
	DueToday           int
	CompletedYesterday int
	Overdue            int
	ActiveProcesses    int
	Top                []PersonCount
}

// BuildDaily summarizes the company's tasks for the morning report. Top
// ranks people by tasks completed yesterday.
func BuildDaily(tasks []models.Task, users []models.User, active int, now time.Time, loc *time.Location) DailySummary {
	local := now.In(loc)
	today := local.Format(models.DateLayout)
	yesterday := local.AddDate(0, 0, -1).Format(models.DateLayout)

	sum := DailySummary{Date: today, ActiveProcesses: active}
	done := map[string]int{}
	for _, t := range tasks {
		switch {
		case t.IsOpen():
			if t.DeadlineDate == today {
				sum.DueToday++
			}
			if at, ok := t.DeadlineAt(); ok && at.Before(now) {
				sum.Overdue++
			}
		case t.Status == models.StatusDone && t.CompletedDate == yesterday:
			sum.CompletedYesterday++
			by := t.CompletedBy
			if by == "" {
				by = t.AssigneeID
			}
			done[by]++
		}
	}
	sum.Top = rank(done, users, topPeople)
	return sum
}

type WeeklySummary struct {
	From               string
	To                 string
	Created            int
	Completed          int
	Overdue            int
	ProcessesCompleted int
	AvgCompletionHours float64
	// Efficiency is the share of completed tasks done by their deadline, in percent.
	Efficiency int
	Best       []PersonCount
	Attention  []PersonCount
}

// BuildWeekly summarizes the seven days before now.
func BuildWeekly(tasks []models.Task, users []models.User, processes []models.Process, now time.Time, loc *time.Location) WeeklySummary {
	from := now.Add(-7 * 24 * time.Hour)
	fromMs, nowMs := from.UnixMilli(), now.UnixMilli()
	in := func(ms int64) bool { return ms >= fromMs && ms < nowMs }

	sum := WeeklySummary{
		From: from.In(loc).Format(models.DateLayout),
		To:   now.In(loc).Format(models.DateLayout),
	}
	done, late := map[string]int{}, map[string]int{}
	var hours float64
	onTime := 0
	for _, t := range tasks {
		if in(t.CreatedAt) {
			sum.Created++
		}
		if t.Status == models.StatusDone && in(t.CompletedAt) {
			sum.Completed++
			done[t.AssigneeID]++
			if t.CreatedAt > 0 && t.CompletedAt > t.CreatedAt {
				hours += float64(t.CompletedAt-t.CreatedAt) / float64(time.Hour/time.Millisecond)
			}
			if t.Deadline == 0 || t.CompletedAt <= t.Deadline {
				onTime++
			}
		}
		if t.IsOpen() {
			if at, ok := t.DeadlineAt(); ok && at.Before(now) {
				sum.Overdue++
				late[t.AssigneeID]++
			}
		}
	}
	for _, p := range processes {
		if p.Status == models.ProcessCompleted && in(p.CompletedAt) {
			sum.ProcessesCompleted++
		}
	}
	if sum.Completed > 0 {
		sum.AvgCompletionHours = hours / float64(sum.Completed)
		sum.Efficiency = onTime * 100 / sum.Completed
	}
	sum.Best = rank(done, users, weeklyPeople)
	sum.Attention = rank(late, users, weeklyPeople)
	return sum
}

// rank returns up to n users with the highest non-zero counts, ties by name.
func rank(counts map[string]int, users []models.User, n int) []PersonCount {
	names := make(map[string]string, len(users))
	for _, u := range users {
		names[u.ID] = u.DisplayName()
	}
	out := make([]PersonCount, 0, len(counts))
	for id, c := range counts {
		name, ok := names[id]
		if !ok || c == 0 {
			continue
		}
		out = append(out, PersonCount{Name: name, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func (s *Sweeper) dailyReport(ctx context.Context, c models.Company, now time.Time, st *Stats) error {
	if s.notifier == nil {
		return errNoNotifier
	}
	tasks, err := s.store.ListTasks(ctx, c.ID, store.TaskFilter{})
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}
	users, err := s.store.ListUsers(ctx, c.ID)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	active, err := s.store.ListProcesses(ctx, c.ID, models.ProcessActive)
	if err != nil {
		return fmt.Errorf("list processes: %w", err)
	}
	st.Checked += len(tasks)

	if !c.DailyReportDisabled {
		sum := BuildDaily(tasks, users, len(active), now, s.loc)
		rep := s.notifier.SendReport(ctx, c.ID, "Daily report "+sum.Date, RenderDaily(c, sum),
			func(u models.User) bool { return !u.DailyReportDisabled })
		st.Notified += rep.Sent
		st.Failed += rep.Failed
	}

	if c.PersonalDailyOff || !isWeekday(now.In(s.loc)) {
		return nil
	}
	for _, u := range users {
		if u.TelegramChatID == "" || u.PersonalDailyOff {
			continue
		}
		mine := personalTasks(tasks, u.ID, now, s.loc)
		if len(mine) == 0 {
			continue
		}
		rep := s.notifier.SendToUser(ctx, c.ID, u.ID, RenderDigest(u, mine, now), nil)
		st.Notified += rep.Sent
		st.Failed += rep.Failed
	}
	return nil
}

func (s *Sweeper) weeklyReport(ctx context.Context, c models.Company, now time.Time, st *Stats) error {
	if s.notifier == nil {
		return errNoNotifier
	}
	if c.WeeklyReportDisabled {
		return nil
	}
	tasks, err := s.store.ListTasks(ctx, c.ID, store.TaskFilter{})
	if err != nil {
		return fmt.Errorf("list tasks: %w", err)
	}
	users, err := s.store.ListUsers(ctx, c.ID)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	procs, err := s.store.ListProcesses(ctx, c.ID, models.ProcessCompleted)
	if err != nil {
		return fmt.Errorf("list processes: %w", err)
	}
	st.Checked += len(tasks)

	sum := BuildWeekly(tasks, users, procs, now, s.loc)
	rep := s.notifier.SendReport(ctx, c.ID, fmt.Sprintf("Weekly report %s to %s", sum.From, sum.To), RenderWeekly(c, sum),
		func(u models.User) bool { return !u.WeeklyReportDisabled })
	st.Notified += rep.Sent
	st.Failed += rep.Failed
	s.log.WithFields(logrus.Fields{"sweep": KindWeeklyReport, "company": c.ID, "sent": rep.Sent}).Debug("sweep: weekly report sent")
	return nil
}

func isWeekday(t time.Time) bool {
	wd := t.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// personalTasks returns a user's open tasks due today or already overdue.
func personalTasks(tasks []models.Task, userID string, now time.Time, loc *time.Location) []models.Task {
	today := now.In(loc).Format(models.DateLayout)
	var out []models.Task
	for _, t := range tasks {
		if t.AssigneeID != userID || !t.IsOpen() || t.DeadlineDate == "" || t.DeadlineDate > today {
			continue
		}
		out = append(out, t)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Deadline < out[j].Deadline })
	return out
}

func RenderDaily(c models.Company, s DailySummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 <b>Daily report</b> %s\n", s.Date)
	if c.Name != "" {
		fmt.Fprintf(&b, "🏢 %s\n", html.EscapeString(c.Name))
	}
	fmt.Fprintf(&b, "\n📅 Due today: %d\n✅ Completed yesterday: %d\n⚠️ Overdue: %d\n🔄 Active processes: %d\n",
		s.DueToday, s.CompletedYesterday, s.Overdue, s.ActiveProcesses)
	writePeople(&b, "\n🏆 Top yesterday:\n", s.Top)
	return b.String()
}

func RenderWeekly(c models.Company, s WeeklySummary) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📈 <b>Weekly report</b> %s to %s\n", s.From, s.To)
	if c.Name != "" {
		fmt.Fprintf(&b, "🏢 %s\n", html.EscapeString(c.Name))
	}
	fmt.Fprintf(&b, "\n➕ Created: %d\n✅ Completed: %d\n⚠️ Overdue: %d\n🏁 Processes completed: %d\n",
		s.Created, s.Completed, s.Overdue, s.ProcessesCompleted)
	fmt.Fprintf(&b, "⏱ Avg completion: %.1f h\n🎯 Efficiency: %d%%\n", s.AvgCompletionHours, s.Efficiency)
	writePeople(&b, "\n🏆 Best:\n", s.Best)
	writePeople(&b, "\n🔍 Needs attention:\n", s.Attention)
	return b.String()
}

func RenderDigest(u models.User, tasks []models.Task, now time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "☀️ Good morning, %s!\n\n📋 <b>Your tasks for today</b> (%d):\n", html.EscapeString(u.DisplayName()), len(tasks))
	for i, t := range tasks {
		if i == personalDigestN {
			fmt.Fprintf(&b, "… and %d more\n", len(tasks)-personalDigestN)
			break
		}
		mark := "•"
		if at, ok := t.DeadlineAt(); ok && at.Before(now) {
			mark = "⚠️"
		}
		fmt.Fprintf(&b, "%s %s (%s)\n", mark, html.EscapeString(t.Title), t.DeadlineTime)
	}
	return b.String()
}

func writePeople(b *strings.Builder, header string, people []PersonCount) {
	if len(people) == 0 {
		return
	}
	b.WriteString(header)
	for i, p := range people {
		fmt.Fprintf(b, "%d. %s: %d\n", i+1, html.EscapeString(p.Name), p.Count)
	}
}
