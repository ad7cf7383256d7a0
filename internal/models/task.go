package models

import "time"

// Task statuses.
const (
	StatusNew      = "new"
	StatusProgress = "progress"
	StatusReview   = "review"
	StatusDone     = "done"
)

// Task priorities.
const (
	PriorityLow    = "low"
	PriorityMedium = "medium"
	PriorityHigh   = "high"
)

// Task sources.
const (
	SourceTelegram  = "telegram"
	SourceAPI       = "api"
	SourceProcess   = "process"
	SourceLead      = "lead"
	SourceSchedule  = "schedule"
	SourceEscalated = "escalation"
)

// DefaultDeadlineTime is used when a task is created without a time of day.
const DefaultDeadlineTime = "18:00"

// DefaultReminders are the minutes-before-deadline offsets used when a task
// does not configure its own.
var DefaultReminders = []int{60, 15}

type Task struct {
	// Keys
	ID        string `dynamodbav:"id" json:"id"`
	CompanyID string `dynamodbav:"company_id" json:"company_id"`

	// Business
	Title          string `dynamodbav:"title" json:"title"`
	Description    string `dynamodbav:"description" json:"description"`
	Instruction    string `dynamodbav:"instruction" json:"instruction"`
	ExpectedResult string `dynamodbav:"expected_result" json:"expected_result"`
	Function       string `dynamodbav:"function" json:"function"`
	AssigneeID     string `dynamodbav:"assignee_id" json:"assignee_id"`
	AssigneeName   string `dynamodbav:"assignee_name" json:"assignee_name"`
	CreatorID      string `dynamodbav:"creator_id" json:"creator_id"`
	CreatorName    string `dynamodbav:"creator_name" json:"creator_name"`
	Status         string `dynamodbav:"status" json:"status"`
	Priority       string `dynamodbav:"priority" json:"priority"`
	Source         string `dynamodbav:"source" json:"source"`

	// Deadline: date and time of day in the company time zone, plus the
	// resolved instant (epoch ms, 0 when the task has no deadline).
	DeadlineDate     string `dynamodbav:"deadline_date" json:"deadline_date"`
	DeadlineTime     string `dynamodbav:"deadline_time" json:"deadline_time"`
	Deadline         int64  `dynamodbav:"deadline" json:"deadline"`
	EstimatedMinutes int    `dynamodbav:"estimated_minutes" json:"estimated_minutes"`

	// Process / lead linkage
	ProcessID       string `dynamodbav:"process_id" json:"process_id,omitempty"`
	ProcessStep     int    `dynamodbav:"process_step" json:"process_step"`
	ProcessObject   string `dynamodbav:"process_object" json:"process_object,omitempty"`
	LeadID          string `dynamodbav:"lead_id" json:"lead_id,omitempty"`
	ParentTaskID    string `dynamodbav:"parent_task_id" json:"parent_task_id,omitempty"`
	ScheduledTaskID string `dynamodbav:"scheduled_task_id" json:"scheduled_task_id,omitempty"`
	RequireReview   bool   `dynamodbav:"require_review" json:"require_review"`
	IsAutoGenerated bool   `dynamodbav:"is_auto_generated" json:"is_auto_generated"`

	// Escalation / reminder bookkeeping
	IsEscalation      bool  `dynamodbav:"is_escalation" json:"is_escalation"`
	EscalationEnabled bool  `dynamodbav:"escalation_enabled" json:"escalation_enabled"`
	EscalationMinutes int   `dynamodbav:"escalation_minutes" json:"escalation_minutes"`
	Escalated         bool  `dynamodbav:"escalated" json:"escalated"`
	EscalatedAt       int64 `dynamodbav:"escalated_at" json:"escalated_at"`
	OverdueNotified   bool  `dynamodbav:"overdue_notified" json:"overdue_notified"`
	OverdueNotifiedAt int64 `dynamodbav:"overdue_notified_at" json:"overdue_notified_at"`
	Reminders         []int `dynamodbav:"reminders" json:"reminders,omitempty"`
	SentReminders     []int `dynamodbav:"sent_reminders,numberset,omitempty" json:"sent_reminders,omitempty"`

	NotifyOnComplete []string `dynamodbav:"notify_on_complete" json:"notify_on_complete"`
	NotifyOnReminder []string `dynamodbav:"notify_on_reminder" json:"notify_on_reminder"`

	// Completion
	CompletedAt       int64  `dynamodbav:"completed_at" json:"completed_at"`
	CompletedDate     string `dynamodbav:"completed_date" json:"completed_date"`
	CompletedBy       string `dynamodbav:"completed_by" json:"completed_by"`
	CompletionSource  string `dynamodbav:"completion_source" json:"completion_source"`
	CompletionComment string `dynamodbav:"completion_comment" json:"completion_comment"`
	TrackedMinutes    int    `dynamodbav:"tracked_minutes" json:"tracked_minutes"`
	ProcessAdvancedAt int64  `dynamodbav:"process_advanced_at" json:"process_advanced_at"`

	// Timestamps (epoch ms)
	CreatedAt   int64  `dynamodbav:"created_at" json:"created_at"`
	CreatedDate string `dynamodbav:"created_date" json:"created_date"`
	UpdatedAt   int64  `dynamodbav:"updated_at" json:"updated_at"`
}

// IsOpen reports whether the task still counts as outstanding work.
func (t Task) IsOpen() bool {
	return t.Status == StatusNew || t.Status == StatusProgress
}

// DeadlineAt returns the deadline instant and whether one is set.
func (t Task) DeadlineAt() (time.Time, bool) {
	if t.Deadline == 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(t.Deadline), true
}

// ReminderOffsets returns the configured reminder offsets or the defaults.
func (t Task) ReminderOffsets() []int {
	if len(t.Reminders) == 0 {
		return DefaultReminders
	}
	return t.Reminders
}

// HasSentReminder reports whether the reminder for offset was already sent.
func (t Task) HasSentReminder(offset int) bool {
	for _, s := range t.SentReminders {
		if s == offset {
			return true
		}
	}
	return false
}

// Kind is a short label used in notification texts.
func (t Task) Kind() string {
	switch {
	case t.ProcessID != "":
		return "Process"
	case t.ScheduledTaskID != "":
		return "Scheduled"
	default:
		return "Task"
	}
}

// SetDeadline stamps the deadline fields from an instant rendered in loc.
func (t *Task) SetDeadline(at time.Time, loc *time.Location) {
	local := at.In(loc)
	t.DeadlineDate = local.Format(DateLayout)
	t.DeadlineTime = local.Format(ClockLayout)
	t.Deadline = at.UnixMilli()
}

// Layouts used for the date and time-of-day string fields.
const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

// ParseDeadline combines a date and an optional time of day in loc. An empty
// clock falls back to DefaultDeadlineTime.
func ParseDeadline(date, clock string, loc *time.Location) (time.Time, error) {
	if clock == "" {
		clock = DefaultDeadlineTime
	}
	return time.ParseInLocation(DateLayout+" "+ClockLayout, date+" "+clock, loc)
}
