package decision

import (
	"errors"
	"math/rand"
	"strings"
	"testing"

	"github.com/nidhogg/vigil/internal/event"
	"go.uber.org/zap"
)

func newTestRouter(activities []Activity) *Router {
	return NewRouter(activities, rand.New(rand.NewSource(42)), zap.NewNop())
}

func TestDecidePicksHighestPriority(t *testing.T) {
	r := newTestRouter(nil)

	events := []event.Event{
		event.New("a", "message", "low", 3),
		event.New("b", "message", "high", 9),
		event.New("c", "message", "mid", 5),
	}

	action := r.Decide(events)
	if action.Name != "process_event" {
		t.Fatalf("got action %q, want process_event", action.Name)
	}
	if !strings.Contains(action.Description, "from b") {
		t.Fatalf("description %q does not reference highest-priority source", action.Description)
	}
	picked, ok := action.Params["event"].(event.Event)
	if !ok || picked.Priority != 9 {
		t.Fatalf("picked event %+v, want priority 9", action.Params["event"])
	}
}

func TestDecideStableOnPriorityTies(t *testing.T) {
	r := newTestRouter(nil)

	events := []event.Event{
		event.New("first", "message", "x", 7),
		event.New("second", "message", "y", 7),
	}

	action := r.Decide(events)
	if !strings.Contains(action.Description, "from first") {
		t.Fatalf("tie broken against original order: %q", action.Description)
	}
}

func TestDecideUsesRegisteredHandler(t *testing.T) {
	r := newTestRouter(nil)
	r.RegisterHandler("cam", func(e event.Event) Action {
		return Action{Name: "investigate", Description: "Look at " + e.Source}
	})

	action := r.Decide([]event.Event{event.New("cam", "motion", "blob", 8)})
	if action.Name != "investigate" || action.Description != "Look at cam" {
		t.Fatalf("handler not used: %+v", action)
	}
}

func TestDecideTruncatesLongContent(t *testing.T) {
	r := newTestRouter(nil)

	long := strings.Repeat("x", 500)
	action := r.Decide([]event.Event{event.New("feed", "message", long, 5)})
	if strings.Count(action.Description, "x") != 80 {
		t.Fatalf("content not truncated to 80 runes: %d chars", strings.Count(action.Description, "x"))
	}
}

func TestEmptyBatchDrawsActivity(t *testing.T) {
	activities := []Activity{
		{Name: "alpha", Description: "A", Weight: 1},
		{Name: "beta", Description: "B", Weight: 3},
	}
	r := newTestRouter(activities)

	counts := map[string]int{}
	for i := 0; i < 2000; i++ {
		a := r.Decide(nil)
		if a.Name != "alpha" && a.Name != "beta" {
			t.Fatalf("drew unknown activity %q", a.Name)
		}
		counts[a.Name]++
	}

	// beta carries 3x the weight; allow generous slack.
	if counts["beta"] < 2*counts["alpha"] {
		t.Fatalf("weighted draw off: %v", counts)
	}
}

func TestWeightDefaultsToOne(t *testing.T) {
	activities := []Activity{
		{Name: "weighted", Description: "", Weight: 0}, // treated as 1.0
		{Name: "other", Description: "", Weight: 1},
	}
	r := newTestRouter(activities)

	counts := map[string]int{}
	for i := 0; i < 2000; i++ {
		counts[r.ChooseAutonomousActivity().Name]++
	}
	if counts["weighted"] == 0 || counts["other"] == 0 {
		t.Fatalf("zero-weight activity should default to 1.0: %v", counts)
	}
}

func TestEmptyActivityListNeverErrors(t *testing.T) {
	r := &Router{rng: rand.New(rand.NewSource(1)), logger: zap.NewNop()}
	a := r.ChooseAutonomousActivity()
	if a.Name != "idle" {
		t.Fatalf("got %q, want built-in idle", a.Name)
	}
}

func TestExecuteReportsHandlerResult(t *testing.T) {
	a := Action{
		Name:   "greet",
		Params: map[string]any{"who": "world"},
		Handler: func(params map[string]any) (any, error) {
			return "hello " + params["who"].(string), nil
		},
	}
	res := a.Execute()
	if res.Status != "ok" || res.Result != "hello world" || res.Action != "greet" {
		t.Fatalf("got %+v", res)
	}
}

func TestExecuteCatchesFailure(t *testing.T) {
	a := Action{
		Name: "fail",
		Handler: func(map[string]any) (any, error) {
			return nil, errors.New("nope")
		},
	}
	res := a.Execute()
	if res.Status != "error" || res.Error != "nope" {
		t.Fatalf("got %+v, want error result", res)
	}

	p := Action{
		Name:    "panic",
		Handler: func(map[string]any) (any, error) { panic("ouch") },
	}
	res = p.Execute()
	if res.Status != "error" || !strings.Contains(res.Error, "ouch") {
		t.Fatalf("got %+v, want recovered panic", res)
	}
}

func TestExecuteNoHandlerIsOK(t *testing.T) {
	res := Action{Name: "noop"}.Execute()
	if res.Status != "ok" || res.Action != "noop" {
		t.Fatalf("got %+v, want ok no-op", res)
	}
}
