package schedule

import (
	"fmt"
	"time"
)

// Callback is a scheduled task body. Both a returned error and a panic
// count as a failed run.
type Callback func() (any, error)

// Task is a named periodic job.
type Task struct {
	Name        string
	Interval    time.Duration
	Enabled     bool
	Description string
	Callback    Callback

	lastRun time.Time // zero = never ran
}

// LastRun returns when the task last completed successfully, or the
// zero time if it never has.
func (t *Task) LastRun() time.Time { return t.lastRun }

// due reports whether the task should run at the given time.
func (t *Task) due(now time.Time) bool {
	if !t.Enabled {
		return false
	}
	if t.lastRun.IsZero() {
		return true
	}
	return now.Sub(t.lastRun) >= t.Interval
}

// untilNext returns how long until the task is next due; 0 if it has
// never run or is overdue.
func (t *Task) untilNext(now time.Time) time.Duration {
	if t.lastRun.IsZero() {
		return 0
	}
	remaining := t.Interval - now.Sub(t.lastRun)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Result is the outcome of one task execution.
type Result struct {
	Success bool   `json:"success"`
	Result  any    `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
}

// run executes the callback, converting errors and panics into a
// failure Result. lastRun advances only on success, so a failing task
// is retried on the very next poll instead of waiting a full interval.
func (t *Task) run(now time.Time) (res Result) {
	defer func() {
		if r := recover(); r != nil {
			res = Result{Success: false, Error: fmt.Sprintf("panic: %v", r)}
		}
	}()

	out, err := t.Callback()
	if err != nil {
		return Result{Success: false, Error: err.Error()}
	}
	t.lastRun = now
	return Result{Success: true, Result: out}
}

// FormatInterval renders a duration the way task status displays it:
// "45s", "5m", "2h", "2h30m".
func FormatInterval(d time.Duration) string {
	seconds := int(d.Seconds())
	switch {
	case seconds < 60:
		return fmt.Sprintf("%ds", seconds)
	case seconds < 3600:
		return fmt.Sprintf("%dm", seconds/60)
	default:
		h := seconds / 3600
		m := (seconds % 3600) / 60
		if m == 0 {
			return fmt.Sprintf("%dh", h)
		}
		return fmt.Sprintf("%dh%dm", h, m)
	}
}
