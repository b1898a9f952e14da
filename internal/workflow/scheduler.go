package workflow

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/helixmesh/orchestrator/internal/metrics"
	"github.com/helixmesh/orchestrator/internal/realtime"
)

// EventSink receives every engine event. The real-time engine satisfies it;
// tests substitute a recorder.
type EventSink interface {
	PublishEvent(eventType, room string, data map[string]any)
}

// RoomFor returns the broadcast room carrying a workflow's events.
func RoomFor(workflowID string) string { return "workflow_" + workflowID }

// AgentRoom carries agent_status_update events for all workflows.
const AgentRoom = "agents"

// Config holds scheduler tuning knobs.
type Config struct {
	MaxConcurrentWorkflows int
	WorkerPoolSize         int
	RetentionWindow        time.Duration
	BackoffBase            time.Duration
	BackoffCap             time.Duration
	DefaultTaskTimeout     time.Duration
	DefaultMaxRetries      int
}

// DefaultConfig returns the scheduler defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentWorkflows: 10,
		WorkerPoolSize:         20,
		RetentionWindow:        30 * time.Minute,
		BackoffBase:            time.Second,
		BackoffCap:             30 * time.Second,
		DefaultTaskTimeout:     5 * time.Minute,
		DefaultMaxRetries:      3,
	}
}

// run couples one workflow with its graph and execution context. Its mutex
// serializes every state transition for the workflow, so concurrent task
// completions never race on the ready-set computation.
type run struct {
	mu     sync.Mutex
	wf     *Workflow
	graph  *Graph
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	finishedAt time.Time
}

// Scheduler owns all workflow state and drives task execution through a
// bounded worker pool. It is the single writer of task and workflow state.
type Scheduler struct {
	cfg    Config
	exec   *Executor
	sink   EventSink
	logger *zap.Logger

	mu       sync.RWMutex
	active   map[string]*run
	retained map[string]*run

	slots    chan struct{}
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewScheduler creates a scheduler and starts its retention sweeper.
func NewScheduler(cfg Config, exec *Executor, sink EventSink, logger *zap.Logger) *Scheduler {
	def := DefaultConfig()
	if cfg.MaxConcurrentWorkflows <= 0 {
		cfg.MaxConcurrentWorkflows = def.MaxConcurrentWorkflows
	}
	if cfg.WorkerPoolSize <= 0 {
		cfg.WorkerPoolSize = def.WorkerPoolSize
	}
	if cfg.RetentionWindow <= 0 {
		cfg.RetentionWindow = def.RetentionWindow
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = def.BackoffBase
	}
	if cfg.BackoffCap <= 0 {
		cfg.BackoffCap = def.BackoffCap
	}
	if cfg.DefaultTaskTimeout <= 0 {
		cfg.DefaultTaskTimeout = def.DefaultTaskTimeout
	}
	if cfg.DefaultMaxRetries < 0 {
		cfg.DefaultMaxRetries = def.DefaultMaxRetries
	}

	s := &Scheduler{
		cfg:      cfg,
		exec:     exec,
		sink:     sink,
		logger:   logger,
		active:   make(map[string]*run),
		retained: make(map[string]*run),
		slots:    make(chan struct{}, cfg.WorkerPoolSize),
		stopCh:   make(chan struct{}),
	}
	go s.sweepLoop()
	return s
}

// Stop halts the retention sweeper. In-flight workflows keep running.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Create validates the definition, builds the task graph and registers the
// workflow in the created state. Task IDs are the submitted task names,
// which must be unique within the workflow; dependencies reference them.
func (s *Scheduler) Create(def Definition, createdBy string) (string, error) {
	if strings.TrimSpace(def.Name) == "" {
		return "", fmt.Errorf("workflow name required")
	}
	if len(def.Tasks) == 0 {
		return "", fmt.Errorf("workflow requires at least one task")
	}

	now := time.Now()
	tasks := make([]*Task, 0, len(def.Tasks))
	seen := make(map[string]bool, len(def.Tasks))
	for _, spec := range def.Tasks {
		name := strings.TrimSpace(spec.Name)
		if name == "" {
			return "", fmt.Errorf("task name required")
		}
		if seen[name] {
			return "", fmt.Errorf("duplicate task name %q", name)
		}
		seen[name] = true

		timeout := time.Duration(spec.TimeoutSecs) * time.Second
		if timeout <= 0 {
			timeout = s.cfg.DefaultTaskTimeout
		}
		retries := spec.MaxRetries
		if retries == 0 {
			retries = s.cfg.DefaultMaxRetries
		} else if retries < 0 {
			// Explicit opt-out: a single attempt with no retries.
			retries = 0
		}
		tasks = append(tasks, &Task{
			ID:           name,
			Name:         name,
			AgentType:    spec.AgentType,
			Action:       spec.Action,
			Parameters:   spec.Parameters,
			Dependencies: spec.Dependencies,
			Timeout:      timeout,
			MaxRetries:   retries,
			Optional:     spec.Optional,
			Status:       TaskPending,
			CreatedAt:    now,
		})
	}

	graph, err := NewGraph(tasks)
	if err != nil {
		return "", err
	}

	r := &run{
		wf: &Workflow{
			ID:          uuid.NewString(),
			Name:        def.Name,
			Description: def.Description,
			Status:      StatusCreated,
			CreatedBy:   createdBy,
			CreatedAt:   now,
		},
		graph: graph,
		done:  make(chan struct{}),
	}

	s.mu.Lock()
	if len(s.active) >= s.cfg.MaxConcurrentWorkflows {
		s.mu.Unlock()
		return "", ErrTooManyWorkflows
	}
	s.active[r.wf.ID] = r
	total := len(s.active) + len(s.retained)
	s.mu.Unlock()

	metrics.WorkflowsCreated.Inc()
	metrics.WorkflowsActive.Set(float64(total))
	s.logger.Info("Workflow created",
		zap.String("workflow_id", r.wf.ID),
		zap.String("name", def.Name),
		zap.Int("tasks", len(tasks)),
	)
	return r.wf.ID, nil
}

// Start transitions the workflow to running and dispatches its initial
// ready set.
func (s *Scheduler) Start(id string) error {
	r := s.lookup(id)
	if r == nil {
		return ErrNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.wf.Status != StatusCreated {
		return fmt.Errorf("start workflow %s in state %s: %w", id, r.wf.Status, ErrConflict)
	}
	r.wf.Status = StatusRunning
	r.wf.StartedAt = time.Now()
	r.ctx, r.cancel = context.WithCancel(context.Background())

	metrics.WorkflowsStarted.Inc()
	s.logger.Info("Workflow started", zap.String("workflow_id", id))

	s.emitProgressLocked(r)
	s.dispatchLocked(r)
	return nil
}

// Cancel marks the workflow cancelled, transitions every non-terminal task
// to cancelled and emits exactly one terminal workflow_progress event.
func (s *Scheduler) Cancel(id string) error {
	r := s.lookup(id)
	if r == nil {
		return ErrNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.wf.Status.Terminal() {
		return fmt.Errorf("cancel workflow %s in state %s: %w", id, r.wf.Status, ErrConflict)
	}
	s.logger.Info("Workflow cancelled", zap.String("workflow_id", id))
	s.abortLocked(r, StatusCancelled, "")
	return nil
}

// Tasks returns the current task snapshots, including last-error on failed
// tasks, so polling clients can recover without the real-time channel.
func (s *Scheduler) Tasks(id string) ([]TaskView, error) {
	r := s.lookup(id)
	if r == nil {
		return nil, ErrNotFound
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]TaskView, 0, r.graph.Len())
	for _, t := range r.graph.Tasks() {
		out = append(out, taskView(t))
	}
	return out, nil
}

// Progress returns the workflow's aggregate progress.
func (s *Scheduler) Progress(id string) (Progress, error) {
	r := s.lookup(id)
	if r == nil {
		return Progress{}, ErrNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return s.progressLocked(r), nil
}

// WorkflowView is the control-API snapshot of one workflow.
type WorkflowView struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Status      Status     `json:"status"`
	CreatedBy   string     `json:"created_by,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Progress    Progress   `json:"progress"`
}

// Get returns one workflow's view.
func (s *Scheduler) Get(id string) (WorkflowView, error) {
	r := s.lookup(id)
	if r == nil {
		return WorkflowView{}, ErrNotFound
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return s.viewLocked(r), nil
}

// List returns every retained workflow, newest first.
func (s *Scheduler) List() []WorkflowView {
	s.mu.RLock()
	runs := make([]*run, 0, len(s.active)+len(s.retained))
	for _, r := range s.active {
		runs = append(runs, r)
	}
	for _, r := range s.retained {
		runs = append(runs, r)
	}
	s.mu.RUnlock()

	out := make([]WorkflowView, 0, len(runs))
	for _, r := range runs {
		r.mu.Lock()
		out = append(out, s.viewLocked(r))
		r.mu.Unlock()
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].CreatedAt.After(out[i].CreatedAt) {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out
}

// Wait blocks until the workflow reaches a terminal state or ctx ends.
func (s *Scheduler) Wait(ctx context.Context, id string) error {
	r := s.lookup(id)
	if r == nil {
		return ErrNotFound
	}
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ActiveCount returns the number of non-terminal workflows.
func (s *Scheduler) ActiveCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.active)
}

func (s *Scheduler) lookup(id string) *run {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if r, ok := s.active[id]; ok {
		return r
	}
	return s.retained[id]
}

// dispatchLocked moves every ready task to the ready state and hands it to
// the worker pool, in graph insertion order. Caller holds r.mu.
func (s *Scheduler) dispatchLocked(r *run) {
	for _, t := range r.graph.Ready() {
		t.Status = TaskReady
		s.emitTaskLocked(r, t)
		go s.runTask(r, t)
	}
}

// runTask drives one task through its attempts. Only the invocation runs
// outside r.mu; every state transition is made under it.
func (s *Scheduler) runTask(r *run, t *Task) {
	select {
	case s.slots <- struct{}{}:
		defer func() { <-s.slots }()
	case <-r.ctx.Done():
		return
	}

	for {
		r.mu.Lock()
		if r.wf.Status.Terminal() || t.Status != TaskReady {
			r.mu.Unlock()
			return
		}
		t.Status = TaskRunning
		if t.StartedAt.IsZero() {
			t.StartedAt = time.Now()
		}
		s.emitTaskLocked(r, t)
		s.emitAgentLocked(r, t, "busy")
		s.emitProgressLocked(r)
		r.mu.Unlock()

		out, err := s.exec.Attempt(r.ctx, t)
		if err == nil {
			s.completeTask(r, t, out)
			return
		}
		if r.ctx.Err() != nil {
			// Workflow cancelled or failed elsewhere; the abort path owns
			// the task's terminal transition.
			return
		}

		r.mu.Lock()
		if r.wf.Status.Terminal() {
			r.mu.Unlock()
			return
		}
		t.LastError = err.Error()
		if t.RetryCount < t.MaxRetries {
			t.RetryCount++
			t.Status = TaskReady
			metrics.TaskRetries.Inc()
			s.emitTaskLocked(r, t)
			s.emitProgressLocked(r)
			r.mu.Unlock()

			delay := Backoff(s.cfg.BackoffBase, s.cfg.BackoffCap, t.RetryCount)
			s.logger.Info("Retrying task",
				zap.String("workflow_id", r.wf.ID),
				zap.String("task_id", t.ID),
				zap.Int("retry", t.RetryCount),
				zap.Duration("backoff", delay),
			)
			select {
			case <-time.After(delay):
			case <-r.ctx.Done():
				return
			}
			continue
		}

		// Retries exhausted.
		t.Status = TaskFailed
		t.CompletedAt = time.Now()
		s.emitTaskLocked(r, t)
		s.emitAgentLocked(r, t, "idle")
		metrics.RecordTaskFinished(t.AgentType, string(TaskFailed), time.Since(t.StartedAt).Seconds())
		s.logger.Warn("Task failed permanently",
			zap.String("workflow_id", r.wf.ID),
			zap.String("task_id", t.ID),
			zap.String("error", t.LastError),
		)

		if t.Optional {
			// Failure is not fatal; release dependents so the rest of the
			// graph keeps moving.
			r.graph.MarkCompleted(t.ID)
			s.dispatchLocked(r)
			if !s.maybeFinishLocked(r) {
				s.emitProgressLocked(r)
			}
		} else {
			s.abortLocked(r, StatusFailed, t.ID)
		}
		r.mu.Unlock()
		return
	}
}

// completeTask records a successful attempt, releases dependents and
// dispatches newly ready tasks.
func (s *Scheduler) completeTask(r *run, t *Task, out map[string]any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.wf.Status.Terminal() || t.Status != TaskRunning {
		// Late result after cancellation; discard.
		return
	}
	t.Status = TaskCompleted
	t.CompletedAt = time.Now()
	t.LastError = ""
	r.graph.MarkCompleted(t.ID)
	s.emitTaskLocked(r, t)
	s.emitAgentLocked(r, t, "idle")
	metrics.RecordTaskFinished(t.AgentType, string(TaskCompleted), time.Since(t.StartedAt).Seconds())
	_ = out

	s.dispatchLocked(r)
	if !s.maybeFinishLocked(r) {
		s.emitProgressLocked(r)
	}
}

// abortLocked drives the workflow to a terminal status, transitions every
// non-terminal task to cancelled and emits the single terminal
// workflow_progress event. Caller holds r.mu.
func (s *Scheduler) abortLocked(r *run, status Status, failedTaskID string) {
	r.wf.Status = status
	r.wf.CompletedAt = time.Now()
	for _, t := range r.graph.Tasks() {
		if t.Status.Terminal() {
			continue
		}
		t.Status = TaskCancelled
		t.CompletedAt = r.wf.CompletedAt
		if status == StatusFailed && t.LastError == "" {
			t.LastError = ErrWorkflowAborted.Error()
		}
		s.emitTaskLocked(r, t)
	}
	if r.cancel != nil {
		r.cancel()
	}
	if failedTaskID != "" {
		s.logger.Warn("Workflow failed",
			zap.String("workflow_id", r.wf.ID),
			zap.String("failed_task", failedTaskID),
		)
	}
	s.emitProgressLocked(r)
	s.finishLocked(r)
}

// maybeFinishLocked completes the workflow when no non-terminal task
// remains. Returns true when the workflow reached a terminal state (the
// terminal progress event is emitted inside). Caller holds r.mu.
func (s *Scheduler) maybeFinishLocked(r *run) bool {
	if r.wf.Status.Terminal() {
		return true
	}
	for _, t := range r.graph.Tasks() {
		if !t.Status.Terminal() {
			return false
		}
	}
	r.wf.Status = StatusCompleted
	r.wf.CompletedAt = time.Now()
	if r.cancel != nil {
		r.cancel()
	}
	s.logger.Info("Workflow completed", zap.String("workflow_id", r.wf.ID))
	s.emitProgressLocked(r)
	s.finishLocked(r)
	return true
}

// finishLocked moves the run into the retention map and records metrics.
func (s *Scheduler) finishLocked(r *run) {
	r.finishedAt = time.Now()
	var dur float64
	if !r.wf.StartedAt.IsZero() {
		dur = r.wf.CompletedAt.Sub(r.wf.StartedAt).Seconds()
	}
	metrics.RecordWorkflowFinished(string(r.wf.Status), dur)

	s.mu.Lock()
	delete(s.active, r.wf.ID)
	s.retained[r.wf.ID] = r
	s.mu.Unlock()

	close(r.done)
}

// sweepLoop evicts retained workflows past the retention window.
func (s *Scheduler) sweepLoop() {
	interval := s.cfg.RetentionWindow / 4
	if interval < time.Second {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopCh:
			return
		case now := <-ticker.C:
			s.mu.Lock()
			for id, r := range s.retained {
				if now.Sub(r.finishedAt) > s.cfg.RetentionWindow {
					delete(s.retained, id)
				}
			}
			total := len(s.active) + len(s.retained)
			s.mu.Unlock()
			metrics.WorkflowsActive.Set(float64(total))
		}
	}
}

func (s *Scheduler) progressLocked(r *run) Progress {
	var completed, failed, running int
	for _, t := range r.graph.Tasks() {
		switch t.Status {
		case TaskCompleted:
			completed++
		case TaskFailed:
			failed++
		case TaskRunning:
			running++
		}
	}
	total := r.graph.Len()
	pct := 0.0
	if total > 0 {
		pct = float64(completed) / float64(total) * 100
	}
	return Progress{
		WorkflowID: r.wf.ID,
		Status:     r.wf.Status,
		Total:      total,
		Completed:  completed,
		Failed:     failed,
		Running:    running,
		Percentage: pct,
	}
}

func (s *Scheduler) viewLocked(r *run) WorkflowView {
	v := WorkflowView{
		ID:          r.wf.ID,
		Name:        r.wf.Name,
		Description: r.wf.Description,
		Status:      r.wf.Status,
		CreatedBy:   r.wf.CreatedBy,
		CreatedAt:   r.wf.CreatedAt,
		Progress:    s.progressLocked(r),
	}
	if !r.wf.StartedAt.IsZero() {
		t := r.wf.StartedAt
		v.StartedAt = &t
	}
	if !r.wf.CompletedAt.IsZero() {
		t := r.wf.CompletedAt
		v.CompletedAt = &t
	}
	return v
}

func taskView(t *Task) TaskView {
	v := TaskView{
		ID:           t.ID,
		Name:         t.Name,
		AgentType:    t.AgentType,
		Action:       t.Action,
		Status:       t.Status,
		Dependencies: t.Dependencies,
		RetryCount:   t.RetryCount,
		Optional:     t.Optional,
		LastError:    t.LastError,
	}
	if !t.StartedAt.IsZero() {
		ts := t.StartedAt
		v.StartedAt = &ts
	}
	if !t.CompletedAt.IsZero() {
		ts := t.CompletedAt
		v.CompletedAt = &ts
	}
	return v
}

func (s *Scheduler) emitTaskLocked(r *run, t *Task) {
	data := map[string]any{
		"workflow_id": r.wf.ID,
		"task_id":     t.ID,
		"task_name":   t.Name,
		"agent_type":  t.AgentType,
		"status":      string(t.Status),
		"retry_count": t.RetryCount,
	}
	if t.LastError != "" {
		data["error"] = t.LastError
	}
	s.sink.PublishEvent(realtime.EventTaskStatusUpdate, RoomFor(r.wf.ID), data)
}

func (s *Scheduler) emitProgressLocked(r *run) {
	p := s.progressLocked(r)
	s.sink.PublishEvent(realtime.EventWorkflowProgress, RoomFor(r.wf.ID), map[string]any{
		"workflow_id":         p.WorkflowID,
		"status":              string(p.Status),
		"total_tasks":         p.Total,
		"completed_tasks":     p.Completed,
		"failed_tasks":        p.Failed,
		"running_tasks":       p.Running,
		"progress_percentage": p.Percentage,
	})
}

func (s *Scheduler) emitAgentLocked(r *run, t *Task, state string) {
	s.sink.PublishEvent(realtime.EventAgentStatusUpdate, AgentRoom, map[string]any{
		"workflow_id": r.wf.ID,
		"task_id":     t.ID,
		"agent_type":  t.AgentType,
		"action":      t.Action,
		"state":       state,
	})
}
