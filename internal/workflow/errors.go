package workflow

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrCycleDetected is returned when a workflow's dependency relation
	// contains a cycle. Construction-time, never retried.
	ErrCycleDetected = errors.New("cycle detected")

	// ErrDanglingDependency is returned when a task references a dependency
	// that is not part of the same workflow.
	ErrDanglingDependency = errors.New("dangling dependency")

	// ErrTimeoutExceeded marks a task invocation that did not return before
	// its deadline.
	ErrTimeoutExceeded = errors.New("timeout exceeded")

	// ErrWorkflowAborted is recorded on tasks cancelled because a required
	// task failed permanently.
	ErrWorkflowAborted = errors.New("workflow aborted")

	// ErrNotFound is returned for unknown workflow IDs.
	ErrNotFound = errors.New("workflow not found")

	// ErrConflict is returned when an operation is invalid for the
	// workflow's current state, e.g. starting an already-running workflow.
	ErrConflict = errors.New("workflow state conflict")

	// ErrTooManyWorkflows is returned when the concurrent workflow limit is
	// reached.
	ErrTooManyWorkflows = errors.New("maximum concurrent workflows reached")
)

// CycleError carries the task IDs involved in a detected cycle.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("cycle detected involving tasks: %s", strings.Join(e.Path, " -> "))
}

func (e *CycleError) Unwrap() error { return ErrCycleDetected }

// DanglingError identifies a dependency reference to a task missing from the
// graph.
type DanglingError struct {
	TaskID string
	DepID  string
}

func (e *DanglingError) Error() string {
	return fmt.Sprintf("task %s depends on unknown task %s", e.TaskID, e.DepID)
}

func (e *DanglingError) Unwrap() error { return ErrDanglingDependency }

// InvocationError wraps an agent invocation failure for one attempt.
type InvocationError struct {
	AgentType string
	Action    string
	Err       error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("agent %s action %s: %v", e.AgentType, e.Action, e.Err)
}

func (e *InvocationError) Unwrap() error { return e.Err }
