package health

import (
	"context"
	"fmt"
	"time"

	"github.com/helixmesh/orchestrator/internal/realtime"
	"github.com/helixmesh/orchestrator/internal/workflow"
)

// SchedulerChecker reports scheduler load against its concurrency limit.
type SchedulerChecker struct {
	sched *workflow.Scheduler
	limit int
}

func NewSchedulerChecker(sched *workflow.Scheduler, limit int) *SchedulerChecker {
	return &SchedulerChecker{sched: sched, limit: limit}
}

func (c *SchedulerChecker) Name() string           { return "scheduler" }
func (c *SchedulerChecker) IsCritical() bool       { return true }
func (c *SchedulerChecker) Timeout() time.Duration { return 2 * time.Second }

func (c *SchedulerChecker) Check(ctx context.Context) CheckResult {
	active := c.sched.ActiveCount()
	res := CheckResult{
		Status: StatusHealthy,
		Details: map[string]any{
			"active_workflows": active,
			"limit":            c.limit,
		},
	}
	if c.limit > 0 && active >= c.limit {
		res.Status = StatusDegraded
		res.Message = fmt.Sprintf("at concurrency limit (%d)", c.limit)
	}
	return res
}

// RealtimeChecker reports the event engine's delivery health.
type RealtimeChecker struct {
	engine *realtime.Engine
}

func NewRealtimeChecker(engine *realtime.Engine) *RealtimeChecker {
	return &RealtimeChecker{engine: engine}
}

func (c *RealtimeChecker) Name() string           { return "realtime" }
func (c *RealtimeChecker) IsCritical() bool       { return true }
func (c *RealtimeChecker) Timeout() time.Duration { return 2 * time.Second }

func (c *RealtimeChecker) Check(ctx context.Context) CheckResult {
	stats := c.engine.Stats()
	res := CheckResult{
		Status: StatusHealthy,
		Details: map[string]any{
			"connections":   stats.Connections,
			"rooms":         stats.Rooms,
			"events_sent":   stats.EventsSent,
			"events_failed": stats.EventsFailed,
			"success_rate":  stats.SuccessRate,
		},
	}
	if stats.EventsSent+stats.EventsFailed > 100 && stats.SuccessRate < 50 {
		res.Status = StatusDegraded
		res.Message = fmt.Sprintf("event delivery success rate %.1f%%", stats.SuccessRate)
	}
	return res
}

// MirrorChecker pings the Redis event mirror. The mirror is optional, so
// failures degrade rather than fail readiness.
type MirrorChecker struct {
	mirror *realtime.Mirror
}

func NewMirrorChecker(mirror *realtime.Mirror) *MirrorChecker {
	return &MirrorChecker{mirror: mirror}
}

func (c *MirrorChecker) Name() string           { return "redis_mirror" }
func (c *MirrorChecker) IsCritical() bool       { return false }
func (c *MirrorChecker) Timeout() time.Duration { return 3 * time.Second }

func (c *MirrorChecker) Check(ctx context.Context) CheckResult {
	if err := c.mirror.Ping(ctx); err != nil {
		return CheckResult{
			Status: StatusUnhealthy,
			Error:  err.Error(),
		}
	}
	return CheckResult{Status: StatusHealthy}
}
