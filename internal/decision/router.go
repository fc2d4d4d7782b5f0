// Package decision maps a batch of filtered events to exactly one
// action, falling back to weighted-random autonomous behavior when
// nothing demands attention.
package decision

import (
	"fmt"
	"math/rand"
	"sort"

	"github.com/nidhogg/vigil/internal/event"
	"go.uber.org/zap"
)

// maxContentPreview bounds the content excerpt embedded in the default
// action description so it stays readable in logs and chat.
const maxContentPreview = 80

// Activity is one entry in the idle-time behavior list.
type Activity struct {
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Weight      float64 `json:"weight"` // <= 0 means the default 1.0
}

// DefaultActivities is the built-in idle behavior list.
func DefaultActivities() []Activity {
	return []Activity{
		{Name: "memory_review", Description: "Review and consolidate memories", Weight: 2.0},
		{Name: "research", Description: "Research topics of interest", Weight: 2.0},
		{Name: "write_notes", Description: "Write observations to notes", Weight: 1.0},
		{Name: "daily_summary", Description: "Generate daily event summary", Weight: 1.0},
		{Name: "idle", Description: "Rest (do nothing)", Weight: 0.5},
	}
}

// Handler converts the selected event into an action.
type Handler func(event.Event) Action

// Router picks one action per batch of events.
type Router struct {
	activities []Activity
	handlers   map[string]Handler // event source -> handler
	rng        *rand.Rand
	logger     *zap.Logger
}

// NewRouter creates a router. A nil or empty activities list falls
// back to DefaultActivities; a nil rng gets an unseeded source.
func NewRouter(activities []Activity, rng *rand.Rand, logger *zap.Logger) *Router {
	if len(activities) == 0 {
		activities = DefaultActivities()
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Router{
		activities: activities,
		handlers:   make(map[string]Handler),
		rng:        rng,
		logger:     logger,
	}
}

// RegisterHandler routes events from the named source to h.
func (r *Router) RegisterHandler(source string, h Handler) {
	r.handlers[source] = h
}

// Decide maps a batch of events to one action. Empty batches delegate
// to ChooseAutonomousActivity; otherwise the highest-priority event
// wins, ties keeping their original order.
func (r *Router) Decide(events []event.Event) Action {
	if len(events) == 0 {
		return r.ChooseAutonomousActivity()
	}

	sorted := make([]event.Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Priority > sorted[j].Priority
	})
	top := sorted[0]

	r.logger.Debug("routing event batch",
		zap.Int("events", len(events)),
		zap.String("top_source", top.Source),
		zap.Int("top_priority", top.Priority))

	if h, ok := r.handlers[top.Source]; ok {
		return h(top)
	}

	return Action{
		Name:        "process_event",
		Description: fmt.Sprintf("Process event from %s: %s", top.Source, truncate(top.Content, maxContentPreview)),
		Params:      map[string]any{"event": top},
	}
}

// ChooseAutonomousActivity draws one activity from the configured list,
// weighted. Never fails: an empty list yields the built-in idle action.
func (r *Router) ChooseAutonomousActivity() Action {
	if len(r.activities) == 0 {
		return Action{Name: "idle", Description: "Rest (do nothing)"}
	}

	total := 0.0
	weights := make([]float64, len(r.activities))
	for i, a := range r.activities {
		w := a.Weight
		if w <= 0 {
			w = 1.0
		}
		weights[i] = w
		total += w
	}

	draw := r.rng.Float64() * total
	idx := len(r.activities) - 1
	for i, w := range weights {
		if draw < w {
			idx = i
			break
		}
		draw -= w
	}

	chosen := r.activities[idx]
	r.logger.Debug("autonomous activity chosen", zap.String("activity", chosen.Name))
	return Action{Name: chosen.Name, Description: chosen.Description}
}

// truncate cuts s to at most n runes.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
