// Package schedule runs named periodic tasks with crash/restart-safe
// interval tracking. The scheduler is poll-driven: nothing fires until
// the caller invokes CheckAndRun, which keeps the pipeline
// deterministic under test.
package schedule

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nidhogg/vigil/internal/clock"
	"github.com/nidhogg/vigil/internal/statestore"
	"go.uber.org/zap"
)

// StateKey is the statestore key scheduler snapshots live under.
const StateKey = "scheduler"

// persistedTask is the durable subset of a task.
type persistedTask struct {
	LastRun float64 `json:"last_run"` // unix seconds, 0 = never
	Enabled bool    `json:"enabled"`
}

// Scheduler holds registered tasks and persists their last-run
// timestamps so intervals survive process restarts.
type Scheduler struct {
	store    statestore.Store
	stateKey string
	clock    clock.Clock

	mu     sync.Mutex
	tasks  map[string]*Task
	order  []string // registration order; Go maps don't iterate stably
	saved  map[string]persistedTask
	logger *zap.Logger
}

// New creates a scheduler and restores persisted state. Missing or
// corrupt state starts fresh rather than blocking startup.
func New(store statestore.Store, stateKey string, clk clock.Clock, logger *zap.Logger) *Scheduler {
	if stateKey == "" {
		stateKey = StateKey
	}
	s := &Scheduler{
		store:    store,
		stateKey: stateKey,
		clock:    clk,
		tasks:    make(map[string]*Task),
		saved:    make(map[string]persistedTask),
		logger:   logger,
	}
	s.loadState()
	return s
}

func (s *Scheduler) loadState() {
	if s.store == nil {
		return
	}
	ctx := context.Background()
	restored, err := statestore.LoadJSON(ctx, s.store, s.stateKey, func(data []byte) error {
		return json.Unmarshal(data, &s.saved)
	})
	if err != nil {
		s.logger.Warn("scheduler state unavailable, starting fresh", zap.Error(err))
		return
	}
	if restored {
		s.logger.Info("scheduler state restored", zap.Int("tasks", len(s.saved)))
	}
}

// Register inserts or replaces the task under name. If persisted state
// exists for the name, the task inherits its last-run timestamp.
func (s *Scheduler) Register(name string, interval time.Duration, cb Callback, enabled bool, description string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	task := &Task{
		Name:        name,
		Interval:    interval,
		Enabled:     enabled,
		Description: description,
		Callback:    cb,
	}
	if prev, ok := s.saved[name]; ok && prev.LastRun > 0 {
		sec := int64(prev.LastRun)
		nsec := int64((prev.LastRun - float64(sec)) * float64(time.Second))
		task.lastRun = time.Unix(sec, nsec)
	}

	if _, exists := s.tasks[name]; !exists {
		s.order = append(s.order, name)
	}
	s.tasks[name] = task
	s.logger.Debug("task registered",
		zap.String("task", name),
		zap.Duration("interval", interval),
		zap.Bool("enabled", enabled))
}

// Unregister removes a task, reporting whether it existed.
func (s *Scheduler) Unregister(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[name]; !ok {
		return false
	}
	delete(s.tasks, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
	return true
}

// Enable turns a task on, reporting whether it existed.
func (s *Scheduler) Enable(name string) bool { return s.setEnabled(name, true) }

// Disable turns a task off, reporting whether it existed.
func (s *Scheduler) Disable(name string) bool { return s.setEnabled(name, false) }

func (s *Scheduler) setEnabled(name string, enabled bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[name]
	if !ok {
		return false
	}
	t.Enabled = enabled
	return true
}

// CheckAndRun executes every due task in registration order and
// returns the per-task results. State is persisted only when at least
// one task actually ran.
func (s *Scheduler) CheckAndRun(ctx context.Context) map[string]Result {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	results := make(map[string]Result)
	for _, name := range s.order {
		task := s.tasks[name]
		if !task.due(now) {
			continue
		}
		res := task.run(now)
		results[name] = res
		if res.Success {
			s.logger.Debug("task ran", zap.String("task", name))
		} else {
			s.logger.Warn("task failed",
				zap.String("task", name),
				zap.String("error", res.Error))
		}
	}

	if len(results) > 0 {
		s.saveStateLocked(ctx)
	}
	return results
}

func (s *Scheduler) saveStateLocked(ctx context.Context) {
	if s.store == nil {
		return
	}
	state := make(map[string]persistedTask, len(s.tasks))
	for name, task := range s.tasks {
		var last float64
		if !task.lastRun.IsZero() {
			last = float64(task.lastRun.UnixNano()) / float64(time.Second)
		}
		state[name] = persistedTask{LastRun: last, Enabled: task.Enabled}
	}
	data, err := json.Marshal(state)
	if err != nil {
		s.logger.Warn("scheduler state marshal failed", zap.Error(err))
		return
	}
	if err := s.store.Save(ctx, s.stateKey, data); err != nil {
		s.logger.Warn("scheduler state save failed", zap.Error(err))
	}
}

// TaskStatus is the reportable view of one task.
type TaskStatus struct {
	Enabled         bool    `json:"enabled"`
	IntervalSeconds int     `json:"interval_seconds"`
	IntervalHuman   string  `json:"interval_human"`
	Description     string  `json:"description"`
	LastRun         string  `json:"last_run,omitempty"` // RFC3339, empty = never
	NextInSeconds   float64 `json:"next_in_seconds"`
	NextInHuman     string  `json:"next_in_human"`
}

// Status reports every registered task.
func (s *Scheduler) Status() map[string]TaskStatus {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	status := make(map[string]TaskStatus, len(s.tasks))
	for name, task := range s.tasks {
		next := task.untilNext(now)
		ts := TaskStatus{
			Enabled:         task.Enabled,
			IntervalSeconds: int(task.Interval.Seconds()),
			IntervalHuman:   FormatInterval(task.Interval),
			Description:     task.Description,
			NextInSeconds:   next.Seconds(),
			NextInHuman:     FormatInterval(next),
		}
		if !task.lastRun.IsZero() {
			ts.LastRun = task.lastRun.Format(time.RFC3339)
		}
		status[name] = ts
	}
	return status
}
