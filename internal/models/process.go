package models

// Process statuses.
const (
	ProcessActive    = "active"
	ProcessCompleted = "completed"
)

// Process is a running instance of a ProcessTemplate. Progress is an
// append-only log (StepResults, History) plus the CurrentStep cursor.
type Process struct {
	ID          string         `dynamodbav:"id" json:"id"`
	CompanyID   string         `dynamodbav:"company_id" json:"company_id"`
	Name        string         `dynamodbav:"name" json:"name"`
	TemplateID  string         `dynamodbav:"template_id" json:"template_id"`
	ObjectName  string         `dynamodbav:"object_name" json:"object_name"`
	LeadID      string         `dynamodbav:"lead_id" json:"lead_id,omitempty"`
	Status      string         `dynamodbav:"status" json:"status"`
	CurrentStep int            `dynamodbav:"current_step" json:"current_step"`
	StepResults []StepResult   `dynamodbav:"step_results" json:"step_results"`
	History     []HistoryEntry `dynamodbav:"history" json:"history"`
	// Deadline is an optional overall due date (YYYY-MM-DD).
	Deadline    string `dynamodbav:"deadline" json:"deadline,omitempty"`
	CreatedBy   string `dynamodbav:"created_by" json:"created_by"`
	CreatedAt   int64  `dynamodbav:"created_at" json:"created_at"`
	CompletedAt int64  `dynamodbav:"completed_at" json:"completed_at"`
	// Version is bumped on every write and guards optimistic transactions.
	Version int64 `dynamodbav:"version" json:"version"`
}

// StepResult is appended once per completed step and forms the context
// chain for later steps.
type StepResult struct {
	Step            int    `dynamodbav:"step" json:"step"`
	Function        string `dynamodbav:"function" json:"function"`
	Title           string `dynamodbav:"title" json:"title"`
	CompletedBy     string `dynamodbav:"completed_by" json:"completed_by"`
	CompletedByName string `dynamodbav:"completed_by_name" json:"completed_by_name"`
	CompletedAt     int64  `dynamodbav:"completed_at" json:"completed_at"`
	TaskID          string `dynamodbav:"task_id" json:"task_id"`
	Result          string `dynamodbav:"result" json:"result"`
	TrackedMinutes  int    `dynamodbav:"tracked_minutes" json:"tracked_minutes"`
}

type HistoryEntry struct {
	Step            int    `dynamodbav:"step" json:"step"`
	StepTitle       string `dynamodbav:"step_title" json:"step_title"`
	CompletedAt     int64  `dynamodbav:"completed_at" json:"completed_at"`
	CompletedBy     string `dynamodbav:"completed_by" json:"completed_by"`
	CompletedByName string `dynamodbav:"completed_by_name" json:"completed_by_name"`
	TaskID          string `dynamodbav:"task_id" json:"task_id"`
}

// ProcessTemplate is read-only from the engine's point of view.
type ProcessTemplate struct {
	ID        string `dynamodbav:"id" json:"id" yaml:"id"`
	CompanyID string `dynamodbav:"company_id" json:"company_id" yaml:"-"`
	Name      string `dynamodbav:"name" json:"name" yaml:"name"`
	Steps     []Step `dynamodbav:"steps" json:"steps" yaml:"steps"`
}

type Step struct {
	Function        string `dynamodbav:"function" json:"function" yaml:"function"`
	Title           string `dynamodbav:"title" json:"title" yaml:"title"`
	Instruction     string `dynamodbav:"instruction" json:"instruction" yaml:"instruction"`
	ExpectedResult  string `dynamodbav:"expected_result" json:"expected_result" yaml:"expectedResult"`
	SLAMinutes      int    `dynamodbav:"sla_minutes" json:"sla_minutes" yaml:"slaMinutes"`
	EstimatedTime   int    `dynamodbav:"estimated_time" json:"estimated_time" yaml:"estimatedTime"`
	SmartAssign     *bool  `dynamodbav:"smart_assign" json:"smart_assign,omitempty" yaml:"smartAssign"`
	Checkpoint      bool   `dynamodbav:"checkpoint" json:"checkpoint" yaml:"checkpoint"`
	ControlQuestion string `dynamodbav:"control_question" json:"control_question" yaml:"controlQuestion"`
}

// DisplayTitle falls back to the function name for untitled steps.
func (s Step) DisplayTitle() string {
	if s.Title != "" {
		return s.Title
	}
	return s.Function
}

// DurationMinutes returns the declared SLA, else the estimated time, else 0.
func (s Step) DurationMinutes() int {
	if s.SLAMinutes > 0 {
		return s.SLAMinutes
	}
	if s.EstimatedTime > 0 {
		return s.EstimatedTime
	}
	return 0
}

// SmartAssignEnabled is true unless the step explicitly disables it.
func (s Step) SmartAssignEnabled() bool {
	return s.SmartAssign == nil || *s.SmartAssign
}
