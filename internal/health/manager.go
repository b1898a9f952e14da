package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Manager runs registered checkers on demand and aggregates their results.
type Manager struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	logger   *zap.Logger
}

// NewManager creates an empty health manager.
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		checkers: make(map[string]Checker),
		logger:   logger,
	}
}

// RegisterChecker adds a health check. Names must be unique.
func (m *Manager) RegisterChecker(c Checker) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.checkers[c.Name()]; exists {
		return fmt.Errorf("health checker %q already registered", c.Name())
	}
	m.checkers[c.Name()] = c
	m.logger.Info("Health checker registered", zap.String("checker", c.Name()))
	return nil
}

// UnregisterChecker removes a health check.
func (m *Manager) UnregisterChecker(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.checkers, name)
}

// runAll executes every checker concurrently under its own timeout.
func (m *Manager) runAll(ctx context.Context) map[string]CheckResult {
	m.mu.RLock()
	checkers := make([]Checker, 0, len(m.checkers))
	for _, c := range m.checkers {
		checkers = append(checkers, c)
	}
	m.mu.RUnlock()

	results := make(map[string]CheckResult, len(checkers))
	var wg sync.WaitGroup
	var resMu sync.Mutex
	for _, c := range checkers {
		wg.Add(1)
		go func(c Checker) {
			defer wg.Done()
			cctx, cancel := context.WithTimeout(ctx, c.Timeout())
			defer cancel()
			start := time.Now()
			res := c.Check(cctx)
			res.Duration = time.Since(start)
			res.Timestamp = time.Now()
			res.Component = c.Name()
			res.Critical = c.IsCritical()
			resMu.Lock()
			results[c.Name()] = res
			resMu.Unlock()
		}(c)
	}
	wg.Wait()
	return results
}

// GetOverallHealth aggregates all checks into one status. Any failing
// critical check is unhealthy; a failing non-critical check degrades.
func (m *Manager) GetOverallHealth(ctx context.Context) OverallHealth {
	start := time.Now()
	results := m.runAll(ctx)

	overall := OverallHealth{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Ready:     true,
		Live:      true,
	}
	for name, res := range results {
		switch res.Status {
		case StatusUnhealthy:
			if res.Critical {
				overall.Status = StatusUnhealthy
				overall.Ready = false
				overall.Message = fmt.Sprintf("%s unhealthy", name)
			} else if overall.Status == StatusHealthy {
				overall.Status = StatusDegraded
				overall.Degraded = true
			}
		case StatusDegraded:
			if overall.Status == StatusHealthy {
				overall.Status = StatusDegraded
				overall.Degraded = true
			}
		}
	}
	overall.Duration = time.Since(start)
	return overall
}

// GetDetailedHealth returns the aggregate plus per-component results.
func (m *Manager) GetDetailedHealth(ctx context.Context) DetailedHealth {
	start := time.Now()
	results := m.runAll(ctx)

	detailed := DetailedHealth{Checks: results}
	detailed.Overall = OverallHealth{
		Status:    StatusHealthy,
		Timestamp: time.Now(),
		Ready:     true,
		Live:      true,
	}
	for name, res := range results {
		switch res.Status {
		case StatusUnhealthy:
			if res.Critical {
				detailed.Overall.Status = StatusUnhealthy
				detailed.Overall.Ready = false
				detailed.Overall.Message = fmt.Sprintf("%s unhealthy", name)
			} else if detailed.Overall.Status == StatusHealthy {
				detailed.Overall.Status = StatusDegraded
				detailed.Overall.Degraded = true
			}
		case StatusDegraded:
			if detailed.Overall.Status == StatusHealthy {
				detailed.Overall.Status = StatusDegraded
				detailed.Overall.Degraded = true
			}
		}
	}
	detailed.Overall.Duration = time.Since(start)
	return detailed
}

// IsReady reports whether all critical checks pass.
func (m *Manager) IsReady(ctx context.Context) bool {
	return m.GetOverallHealth(ctx).Ready
}

// IsLive reports process liveness. The process serving the request is live.
func (m *Manager) IsLive(ctx context.Context) bool {
	return true
}
