package pipeline

import (
	"context"
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/nidhogg/vigil/internal/attention"
	"github.com/nidhogg/vigil/internal/clock"
	"github.com/nidhogg/vigil/internal/decision"
	"github.com/nidhogg/vigil/internal/event"
	"github.com/nidhogg/vigil/internal/notify"
	"github.com/nidhogg/vigil/internal/schedule"
	"github.com/nidhogg/vigil/internal/statestore"
	"go.uber.org/zap"
)

type memStore struct {
	data map[string][]byte
}

func newMemStore() *memStore { return &memStore{data: make(map[string][]byte)} }

func (m *memStore) Load(_ context.Context, key string) ([]byte, error) {
	if d, ok := m.data[key]; ok {
		return d, nil
	}
	return nil, statestore.ErrNotFound
}

func (m *memStore) Save(_ context.Context, key string, data []byte) error {
	m.data[key] = data
	return nil
}

type stubSource struct {
	name   string
	events []event.Event
	err    error
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Check(context.Context) ([]event.Event, error) {
	return s.events, s.err
}

func newTestPipeline(t *testing.T, withMailbox bool) (*Pipeline, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(time.Unix(1_700_000_000, 0))
	logger := zap.NewNop()

	filter := attention.NewFilter(attention.Config{
		BaseThreshold: 10,
		Cooldown:      60 * time.Second,
		OrientingMult: 2,
	}, clk, logger)
	router := decision.NewRouter(nil, rand.New(rand.NewSource(7)), logger)
	sched := schedule.New(newMemStore(), "", clk, logger)

	var mailbox *notify.Queue
	if withMailbox {
		mailbox = notify.NewQueue(newMemStore(), 0, logger)
	}
	return New(filter, router, sched, nil, mailbox, nil, logger), clk
}

func mkEvent(source string, priority int, magnitude float64) event.Event {
	e := event.New(source, "motion", "something moved", priority)
	e.RawData["magnitude"] = magnitude
	return e
}

func TestIngestFiltersAndRoutes(t *testing.T) {
	p, _ := newTestPipeline(t, false)

	report := p.Ingest(context.Background(), []event.Event{
		mkEvent("cam", 8, 25), // orienting, passes
		mkEvent("door", 3, 2), // below threshold, suppressed
	})

	if report.EventsSeen != 2 || report.EventsPassed != 1 {
		t.Fatalf("seen=%d passed=%d, want 2/1", report.EventsSeen, report.EventsPassed)
	}
	if len(report.Suppressed) != 1 || report.Suppressed[0].Source != "door" {
		t.Fatalf("suppressed %+v, want door", report.Suppressed)
	}
	if report.Action.Name != "process_event" {
		t.Fatalf("action %q, want process_event", report.Action.Name)
	}
	if report.ExecResult.Status != "ok" {
		t.Fatalf("exec result %+v", report.ExecResult)
	}
}

func TestIngestEmptyBatchPicksActivity(t *testing.T) {
	p, _ := newTestPipeline(t, false)

	report := p.Ingest(context.Background(), nil)
	if report.Action.Name == "" || report.Action.Name == "process_event" {
		t.Fatalf("idle tick chose %q, want an autonomous activity", report.Action.Name)
	}
}

func TestTickPollsSourcesAndSurvivesSourceError(t *testing.T) {
	p, _ := newTestPipeline(t, false)
	p.AddSource(&stubSource{name: "broken", err: errors.New("offline")})
	p.AddSource(&stubSource{name: "cam", events: []event.Event{mkEvent("cam", 9, 30)}})

	report := p.Tick(context.Background())
	if report.EventsSeen != 1 || report.EventsPassed != 1 {
		t.Fatalf("seen=%d passed=%d, want 1/1 despite broken source", report.EventsSeen, report.EventsPassed)
	}
}

func TestTickPollsScheduler(t *testing.T) {
	p, clk := newTestPipeline(t, false)

	ran := 0
	p.Scheduler().Register("health", 30*time.Second, func() (any, error) {
		ran++
		return nil, nil
	}, true, "")

	ctx := context.Background()
	p.Ingest(ctx, nil)
	p.Ingest(ctx, nil) // within interval: no re-run
	if ran != 1 {
		t.Fatalf("task ran %d times, want 1", ran)
	}

	clk.Advance(30 * time.Second)
	report := p.Ingest(ctx, nil)
	if ran != 2 {
		t.Fatalf("task ran %d times after interval, want 2", ran)
	}
	if res, ok := report.Scheduler["health"]; !ok || !res.Success {
		t.Fatalf("scheduler results %+v", report.Scheduler)
	}
}

func TestPassingEventLandsInMailbox(t *testing.T) {
	p, _ := newTestPipeline(t, true)
	ctx := context.Background()

	p.Ingest(ctx, []event.Event{mkEvent("cam", 9, 30)})

	unread := p.Mailbox().Unread(ctx)
	if len(unread) != 1 {
		t.Fatalf("mailbox has %d entries, want 1", len(unread))
	}
	if unread[0].Type != "alert" || unread[0].Priority != "urgent" {
		t.Fatalf("notification %+v, want urgent alert", unread[0])
	}

	// Suppressed events stay out of the mailbox.
	p.Ingest(ctx, []event.Event{mkEvent("cam", 3, 2)})
	if got := len(p.Mailbox().Unread(ctx)); got != 1 {
		t.Fatalf("mailbox has %d entries after suppressed event, want 1", got)
	}
}

func TestBuiltinSummaryTask(t *testing.T) {
	p, clk := newTestPipeline(t, true)
	p.RegisterBuiltinTasks(time.Minute, time.Hour)

	ctx := context.Background()
	p.Ingest(ctx, nil) // first poll runs the summary immediately

	found := false
	for _, n := range p.Mailbox().Unread(ctx) {
		if n.Type == "system" {
			found = true
		}
	}
	if !found {
		t.Fatal("daily summary notification missing")
	}

	clk.Advance(time.Hour)
	p.Ingest(ctx, nil)
	count := 0
	for _, n := range p.Mailbox().Unread(ctx) {
		if n.Type == "system" {
			count++
		}
	}
	if count != 2 {
		t.Fatalf("got %d summary notifications, want 2", count)
	}
}

func TestTicksCounter(t *testing.T) {
	p, _ := newTestPipeline(t, false)
	ctx := context.Background()
	p.Ingest(ctx, nil)
	p.Ingest(ctx, nil)
	if p.Ticks() != 2 {
		t.Fatalf("ticks = %d, want 2", p.Ticks())
	}
}
