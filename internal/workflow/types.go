package workflow

import (
	"time"
)

// TaskStatus is the lifecycle state of a single task.
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskReady     TaskStatus = "ready"
	TaskRunning   TaskStatus = "running"
	TaskCompleted TaskStatus = "completed"
	TaskFailed    TaskStatus = "failed"
	TaskCancelled TaskStatus = "cancelled"
)

// Terminal reports whether the status is a terminal state.
func (s TaskStatus) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed || s == TaskCancelled
}

// Status is the aggregate lifecycle state of a workflow.
type Status string

const (
	StatusCreated   Status = "created"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Terminal reports whether the workflow has finished.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// TaskSpec is the caller-supplied definition of a task inside a workflow
// submission. IDs are assigned at graph construction; dependencies refer to
// task names within the same submission.
type TaskSpec struct {
	Name         string `json:"name"`
	AgentType    string `json:"agent_type"`
	Action       string `json:"action"`
	Parameters   Params `json:"parameters,omitempty"`
	Dependencies []string `json:"dependencies,omitempty"`
	TimeoutSecs  int    `json:"timeout_seconds,omitempty"`
	MaxRetries   int    `json:"max_retries,omitempty"`
	Optional     bool   `json:"optional,omitempty"`
}

// Task is a single unit of work owned by one TaskGraph. All mutation goes
// through the Scheduler, which serializes transitions per workflow.
type Task struct {
	ID           string
	Name         string
	AgentType    string
	Action       string
	Parameters   Params
	Dependencies []string
	Timeout      time.Duration
	MaxRetries   int
	Optional     bool

	Status     TaskStatus
	RetryCount int
	LastError  string

	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
}

// Definition is a caller-supplied workflow submission.
type Definition struct {
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Tasks       []TaskSpec `json:"tasks"`
}

// Workflow holds the execution state of one submitted workflow.
type Workflow struct {
	ID          string
	Name        string
	Description string
	Status      Status
	CreatedBy   string

	CreatedAt   time.Time
	StartedAt   time.Time
	CompletedAt time.Time
}

// TaskView is the externally visible snapshot of one task, returned by the
// control API.
type TaskView struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	AgentType    string     `json:"agent_type"`
	Action       string     `json:"action"`
	Status       TaskStatus `json:"status"`
	Dependencies []string   `json:"dependencies,omitempty"`
	RetryCount   int        `json:"retry_count"`
	Optional     bool       `json:"optional,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
	StartedAt    *time.Time `json:"started_at,omitempty"`
	CompletedAt  *time.Time `json:"completed_at,omitempty"`
}

// Progress summarizes workflow completion for progress events and the
// control API.
type Progress struct {
	WorkflowID string  `json:"workflow_id"`
	Status     Status  `json:"status"`
	Total      int     `json:"total_tasks"`
	Completed  int     `json:"completed_tasks"`
	Failed     int     `json:"failed_tasks"`
	Running    int     `json:"running_tasks"`
	Percentage float64 `json:"progress_percentage"`
}
