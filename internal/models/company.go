package models

// User roles.
const (
	RoleOwner    = "owner"
	RoleManager  = "manager"
	RoleEmployee = "employee"
)

type Company struct {
	ID                   string `dynamodbav:"id" json:"id"`
	Name                 string `dynamodbav:"name" json:"name"`
	WebhookAPIKey        string `dynamodbav:"webhook_api_key" json:"-"`
	DailyReportDisabled  bool   `dynamodbav:"daily_report_disabled" json:"daily_report_disabled"`
	WeeklyReportDisabled bool   `dynamodbav:"weekly_report_disabled" json:"weekly_report_disabled"`
	PersonalDailyOff     bool   `dynamodbav:"personal_daily_off" json:"personal_daily_off"`
}

type User struct {
	ID                   string `dynamodbav:"id" json:"id"`
	CompanyID            string `dynamodbav:"company_id" json:"company_id"`
	Name                 string `dynamodbav:"name" json:"name"`
	Email                string `dynamodbav:"email" json:"email"`
	Role                 string `dynamodbav:"role" json:"role"`
	TelegramChatID       string `dynamodbav:"telegram_chat_id" json:"telegram_chat_id,omitempty"`
	TelegramUserID       string `dynamodbav:"telegram_user_id" json:"telegram_user_id,omitempty"`
	TelegramCode         string `dynamodbav:"telegram_code" json:"-"`
	DailyReportDisabled  bool   `dynamodbav:"daily_report_disabled" json:"daily_report_disabled"`
	WeeklyReportDisabled bool   `dynamodbav:"weekly_report_disabled" json:"weekly_report_disabled"`
	PersonalDailyOff     bool   `dynamodbav:"personal_daily_off" json:"personal_daily_off"`
}

// DisplayName prefers the name and falls back to the e-mail address.
func (u User) DisplayName() string {
	if u.Name != "" {
		return u.Name
	}
	return u.Email
}

func (u User) IsManager() bool {
	return u.Role == RoleOwner || u.Role == RoleManager
}

// Function is a named pool of eligible assignees. Tasks reference it by name.
type Function struct {
	ID          string   `dynamodbav:"id" json:"id" yaml:"id"`
	CompanyID   string   `dynamodbav:"company_id" json:"company_id" yaml:"-"`
	Name        string   `dynamodbav:"name" json:"name" yaml:"name"`
	AssigneeIDs []string `dynamodbav:"assignee_ids" json:"assignee_ids" yaml:"assigneeIds"`
	HeadID      string   `dynamodbav:"head_id" json:"head_id,omitempty" yaml:"headId"`
}

type Lead struct {
	ID        string `dynamodbav:"id" json:"id"`
	CompanyID string `dynamodbav:"company_id" json:"company_id"`
	Name      string `dynamodbav:"name" json:"name"`
	Phone     string `dynamodbav:"phone" json:"phone"`
	Email     string `dynamodbav:"email" json:"email"`
	Source    string `dynamodbav:"source" json:"source"`
	Message   string `dynamodbav:"message" json:"message"`
	Status    string `dynamodbav:"status" json:"status"`
	ProcessID string `dynamodbav:"process_id" json:"process_id,omitempty"`
	CreatedAt int64  `dynamodbav:"created_at" json:"created_at"`
}

// ScheduledTask holds a task body that is materialized at ActivateAt.
type ScheduledTask struct {
	ID         string `dynamodbav:"id" json:"id"`
	CompanyID  string `dynamodbav:"company_id" json:"company_id"`
	ActivateAt int64  `dynamodbav:"activate_at" json:"activate_at"`
	Activated  bool   `dynamodbav:"activated" json:"activated"`
	TaskData   Task   `dynamodbav:"task_data" json:"task_data"`
}
