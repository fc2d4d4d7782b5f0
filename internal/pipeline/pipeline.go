// Package pipeline wires the triage loop together: poll sources,
// filter each event through habituation, route the survivors to a
// single action, execute it, then poll the scheduler. One Tick is one
// pass; Run drives Ticks on an interval for callers that want a loop.
package pipeline

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nidhogg/vigil/internal/attention"
	"github.com/nidhogg/vigil/internal/circadian"
	"github.com/nidhogg/vigil/internal/decision"
	"github.com/nidhogg/vigil/internal/event"
	"github.com/nidhogg/vigil/internal/notify"
	"github.com/nidhogg/vigil/internal/schedule"
	"github.com/nidhogg/vigil/internal/timelog"
	"go.uber.org/zap"
)

// Suppression records one event the filter held back.
type Suppression struct {
	Source string `json:"source"`
	Reason string `json:"reason"`
}

// TickReport is the outcome of one pipeline pass.
type TickReport struct {
	EventsSeen   int                        `json:"events_seen"`
	EventsPassed int                        `json:"events_passed"`
	Suppressed   []Suppression              `json:"suppressed,omitempty"`
	Action       decision.Action            `json:"action"`
	ExecResult   decision.ExecResult        `json:"exec_result"`
	Scheduler    map[string]schedule.Result `json:"scheduler,omitempty"`
	Timestamp    time.Time                  `json:"timestamp"`
}

// Pipeline owns the triage components. Circadian, mailbox, and timelog
// are optional collaborators; the pipeline degrades without them.
type Pipeline struct {
	filter    *attention.Filter
	router    *decision.Router
	scheduler *schedule.Scheduler
	rhythm    *circadian.Rhythm
	mailbox   *notify.Queue
	timelog   *timelog.Log

	mu      sync.Mutex
	sources []event.Source

	ticks  uint64
	logger *zap.Logger
}

// New assembles a pipeline. rhythm, mailbox, and tlog may be nil.
func New(
	filter *attention.Filter,
	router *decision.Router,
	scheduler *schedule.Scheduler,
	rhythm *circadian.Rhythm,
	mailbox *notify.Queue,
	tlog *timelog.Log,
	logger *zap.Logger,
) *Pipeline {
	return &Pipeline{
		filter:    filter,
		router:    router,
		scheduler: scheduler,
		rhythm:    rhythm,
		mailbox:   mailbox,
		timelog:   tlog,
		logger:    logger,
	}
}

// AddSource registers an event source polled on every Tick.
func (p *Pipeline) AddSource(src event.Source) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sources = append(p.sources, src)
}

// Filter exposes the habituation filter (for the API surface).
func (p *Pipeline) Filter() *attention.Filter { return p.filter }

// Scheduler exposes the periodic scheduler.
func (p *Pipeline) Scheduler() *schedule.Scheduler { return p.scheduler }

// Rhythm exposes the circadian rhythm; may be nil.
func (p *Pipeline) Rhythm() *circadian.Rhythm { return p.rhythm }

// Mailbox exposes the notification queue; may be nil.
func (p *Pipeline) Mailbox() *notify.Queue { return p.mailbox }

// Timelog exposes the task-duration log; may be nil.
func (p *Pipeline) Timelog() *timelog.Log { return p.timelog }

// Ticks returns how many passes have completed.
func (p *Pipeline) Ticks() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ticks
}

// Tick runs one full pass: poll sources, ingest, poll scheduler.
func (p *Pipeline) Tick(ctx context.Context) TickReport {
	p.mu.Lock()
	sources := make([]event.Source, len(p.sources))
	copy(sources, p.sources)
	p.mu.Unlock()

	var events []event.Event
	for _, src := range sources {
		evs, err := src.Check(ctx)
		if err != nil {
			// A broken source must not stall triage.
			p.logger.Warn("source check failed",
				zap.String("source", src.Name()),
				zap.Error(err))
			continue
		}
		events = append(events, evs...)
	}

	return p.Ingest(ctx, events)
}

// Ingest runs one pass over a caller-supplied batch: filter, route,
// execute, then poll the scheduler.
func (p *Pipeline) Ingest(ctx context.Context, events []event.Event) TickReport {
	report := TickReport{EventsSeen: len(events), Timestamp: time.Now()}

	var passed []event.Event
	for _, e := range events {
		notifyMe, reason := p.filter.ShouldNotify(e.Source, e.Magnitude())
		if !notifyMe {
			report.Suppressed = append(report.Suppressed, Suppression{Source: e.Source, Reason: reason})
			continue
		}
		passed = append(passed, e)
		p.pushEventNotification(ctx, e, reason)
	}
	report.EventsPassed = len(passed)

	report.Action = p.router.Decide(passed)
	report.ExecResult = p.executeTimed(ctx, report.Action)
	report.Scheduler = p.scheduler.CheckAndRun(ctx)

	p.mu.Lock()
	p.ticks++
	p.mu.Unlock()

	p.logger.Debug("pipeline tick",
		zap.Int("seen", report.EventsSeen),
		zap.Int("passed", report.EventsPassed),
		zap.String("action", report.Action.Name),
		zap.Int("scheduler_ran", len(report.Scheduler)))
	return report
}

// executeTimed brackets action execution with timelog entries when a
// timelog is attached.
func (p *Pipeline) executeTimed(ctx context.Context, action decision.Action) decision.ExecResult {
	if p.timelog != nil {
		if _, err := p.timelog.StartTask(ctx, action.Name); err != nil {
			p.logger.Warn("timelog start failed", zap.Error(err))
		}
	}

	res := action.Execute()

	if p.timelog != nil {
		note := res.Status
		if res.Error != "" {
			note = fmt.Sprintf("error: %s", res.Error)
		}
		if _, _, err := p.timelog.EndTask(ctx, note); err != nil {
			p.logger.Warn("timelog end failed", zap.Error(err))
		}
	}
	return res
}

// pushEventNotification mirrors a passing event into the mailbox.
func (p *Pipeline) pushEventNotification(ctx context.Context, e event.Event, reason string) {
	if p.mailbox == nil {
		return
	}
	msg := fmt.Sprintf("%s: %s", e.Source, e.Content)
	_, err := p.mailbox.Push(ctx, "alert", msg, notifyPriority(e.Priority), map[string]any{
		"event_type": e.Type,
		"reason":     reason,
	})
	if err != nil {
		p.logger.Warn("event notification push failed", zap.Error(err))
	}
}

// notifyPriority maps a 1-10 event priority onto mailbox levels.
func notifyPriority(p int) string {
	switch {
	case p >= 9:
		return "urgent"
	case p >= 7:
		return "high"
	case p >= 4:
		return "normal"
	default:
		return "low"
	}
}

// RegisterBuiltinTasks installs the standing maintenance tasks:
// a circadian check and a daily summary notification.
func (p *Pipeline) RegisterBuiltinTasks(circadianEvery, summaryEvery time.Duration) {
	if p.rhythm != nil {
		p.scheduler.Register("circadian_check", circadianEvery, func() (any, error) {
			up := p.rhythm.CheckAndUpdate(context.Background())
			if up.Changed && p.mailbox != nil {
				msg := fmt.Sprintf("Mode changed to %s: %s", up.Meta.Name, up.Meta.Description)
				if _, err := p.mailbox.Push(context.Background(), "suggestion", msg, "normal", nil); err != nil {
					return nil, err
				}
			}
			return string(up.Mode), nil
		}, true, "Update circadian mode and surface suggestions")
	}

	if p.mailbox != nil {
		p.scheduler.Register("daily_summary", summaryEvery, func() (any, error) {
			msg := fmt.Sprintf("Pipeline alive: %d ticks processed", p.Ticks())
			if _, err := p.mailbox.Push(context.Background(), "system", msg, "low", nil); err != nil {
				return nil, err
			}
			return nil, nil
		}, true, "Periodic health summary")
	}
}

// Run drives Tick on a fixed interval until the context is canceled.
// The core stays poll-driven; this loop is just a convenience for the
// daemon.
func (p *Pipeline) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	p.logger.Info("pipeline loop started", zap.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("pipeline loop stopped")
			return
		case <-ticker.C:
			p.Tick(ctx)
		}
	}
}
