// Package circadian maps time of day to behavioral modes, loosely
// modeled on human cortisol/melatonin cycles. The pipeline consults
// the current mode when choosing idle-time behavior.
package circadian

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nidhogg/vigil/internal/clock"
	"github.com/nidhogg/vigil/internal/statestore"
	"go.uber.org/zap"
)

// StateKey is the statestore key circadian snapshots live under.
const StateKey = "circadian"

// maxHistory caps the retained mode-transition history.
const maxHistory = 20

// Mode is a time-of-day behavioral mode.
type Mode string

const (
	Morning   Mode = "morning"   // 06-12: information gathering
	Afternoon Mode = "afternoon" // 12-18: focused work
	Evening   Mode = "evening"   // 18-24: reflection and review
	Night     Mode = "night"     // 00-06: memory consolidation
)

// ModeForHour maps an hour (0-23) to its mode.
func ModeForHour(hour int) Mode {
	switch {
	case hour >= 6 && hour < 12:
		return Morning
	case hour >= 12 && hour < 18:
		return Afternoon
	case hour >= 18:
		return Evening
	default:
		return Night
	}
}

// Meta describes how a mode presents itself.
type Meta struct {
	Name        string `json:"name"`
	Icon        string `json:"icon"`
	Description string `json:"description"`
	EnergyLevel string `json:"energy_level"`
}

// Suggestion is one recommended action for a mode.
type Suggestion struct {
	Type     string `json:"type"`
	Message  string `json:"message"`
	Priority string `json:"priority"`
}

func defaultMeta() map[Mode]Meta {
	return map[Mode]Meta{
		Morning:   {Name: "Morning", Icon: "🌅", Description: "Information gathering and external checks", EnergyLevel: "rising"},
		Afternoon: {Name: "Afternoon", Icon: "☀️", Description: "Deep work and implementation", EnergyLevel: "peak"},
		Evening:   {Name: "Evening", Icon: "🌆", Description: "Reflection and organizing", EnergyLevel: "declining"},
		Night:     {Name: "Night", Icon: "🌙", Description: "Memory consolidation and quiet thought", EnergyLevel: "low"},
	}
}

// DefaultSuggestions returns the built-in per-mode suggestions.
func DefaultSuggestions() map[Mode][]Suggestion {
	return map[Mode][]Suggestion{
		Morning: {
			{Type: "check_inputs", Message: "Check incoming messages and notifications", Priority: "high"},
			{Type: "review", Message: "Review overnight events", Priority: "normal"},
		},
		Afternoon: {
			{Type: "work", Message: "Continue active tasks", Priority: "high"},
			{Type: "create", Message: "Focus on creative work", Priority: "normal"},
		},
		Evening: {
			{Type: "reflect", Message: "Reflect on today's activities", Priority: "high"},
			{Type: "organize", Message: "Organize notes and records", Priority: "normal"},
		},
		Night: {
			{Type: "consolidate", Message: "Run memory consolidation", Priority: "high"},
			{Type: "rest", Message: "Reduce activity level", Priority: "low"},
		},
	}
}

// DefaultActivities returns the built-in per-mode activity names.
func DefaultActivities() map[Mode][]string {
	return map[Mode][]string{
		Morning:   {"Check notifications", "Review agenda", "Process inbox"},
		Afternoon: {"Deep work", "Problem solving", "Implementation"},
		Evening:   {"Daily review", "Note taking", "Planning tomorrow"},
		Night:     {"Memory consolidation", "Background processing", "Quiet reflection"},
	}
}

// Transition records one mode change.
type Transition struct {
	From      Mode      `json:"from,omitempty"`
	To        Mode      `json:"to"`
	Timestamp time.Time `json:"timestamp"`
}

type persistedState struct {
	CurrentMode    Mode         `json:"current_mode,omitempty"`
	LastModeChange time.Time    `json:"last_mode_change,omitempty"`
	ModeHistory    []Transition `json:"mode_history,omitempty"`
}

// Rhythm tracks the current mode and its transitions.
type Rhythm struct {
	store       statestore.Store
	clock       clock.Clock
	suggestions map[Mode][]Suggestion
	activities  map[Mode][]string
	meta        map[Mode]Meta

	mu          sync.Mutex
	currentMode Mode // empty until first CheckAndUpdate
	lastChange  time.Time
	history     []Transition
	logger      *zap.Logger
}

// New creates a rhythm and restores persisted mode state; corrupt or
// missing state starts fresh.
func New(store statestore.Store, clk clock.Clock, logger *zap.Logger) *Rhythm {
	r := &Rhythm{
		store:       store,
		clock:       clk,
		suggestions: DefaultSuggestions(),
		activities:  DefaultActivities(),
		meta:        defaultMeta(),
		logger:      logger,
	}
	r.loadState()
	return r
}

// SetSuggestions overrides the per-mode suggestion lists.
func (r *Rhythm) SetSuggestions(s map[Mode][]Suggestion) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.suggestions = s
}

// SetActivities overrides the per-mode activity lists.
func (r *Rhythm) SetActivities(a map[Mode][]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.activities = a
}

func (r *Rhythm) loadState() {
	if r.store == nil {
		return
	}
	var st persistedState
	restored, err := statestore.LoadJSON(context.Background(), r.store, StateKey, func(data []byte) error {
		return json.Unmarshal(data, &st)
	})
	if err != nil {
		r.logger.Warn("circadian state unavailable, starting fresh", zap.Error(err))
		return
	}
	if restored {
		r.currentMode = st.CurrentMode
		r.lastChange = st.LastModeChange
		r.history = st.ModeHistory
	}
}

func (r *Rhythm) saveStateLocked(ctx context.Context) {
	if r.store == nil {
		return
	}
	data, err := json.Marshal(persistedState{
		CurrentMode:    r.currentMode,
		LastModeChange: r.lastChange,
		ModeHistory:    r.history,
	})
	if err != nil {
		r.logger.Warn("circadian state marshal failed", zap.Error(err))
		return
	}
	if err := r.store.Save(ctx, StateKey, data); err != nil {
		r.logger.Warn("circadian state save failed", zap.Error(err))
	}
}

// Update is the result of CheckAndUpdate.
type Update struct {
	Mode        Mode         `json:"mode"`
	Meta        Meta         `json:"meta"`
	Suggestions []Suggestion `json:"suggestions"`
	Activities  []string     `json:"activities"`
	Changed     bool         `json:"changed"`
	OldMode     Mode         `json:"old_mode,omitempty"`
	Timestamp   time.Time    `json:"timestamp"`
}

// CheckAndUpdate recomputes the mode from the clock, recording and
// persisting the transition when it changed.
func (r *Rhythm) CheckAndUpdate(ctx context.Context) Update {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	mode := ModeForHour(now.Hour())

	up := Update{
		Mode:        mode,
		Meta:        r.meta[mode],
		Suggestions: r.suggestions[mode],
		Activities:  r.activities[mode],
		Timestamp:   now,
	}

	if r.currentMode != mode {
		up.Changed = true
		up.OldMode = r.currentMode
		r.history = append(r.history, Transition{From: r.currentMode, To: mode, Timestamp: now})
		if len(r.history) > maxHistory {
			r.history = r.history[len(r.history)-maxHistory:]
		}
		r.currentMode = mode
		r.lastChange = now
		r.saveStateLocked(ctx)
		r.logger.Info("circadian mode changed",
			zap.String("from", string(up.OldMode)),
			zap.String("to", string(mode)))
	}
	return up
}

// Status summarizes the rhythm. Computes the mode first if it was
// never checked.
type Status struct {
	Mode        Mode      `json:"mode"`
	Name        string    `json:"name"`
	Icon        string    `json:"icon"`
	Description string    `json:"description"`
	EnergyLevel string    `json:"energy_level"`
	LastChange  time.Time `json:"last_change,omitempty"`
	Activities  []string  `json:"activities"`
}

// Status reports the current mode and its metadata.
func (r *Rhythm) Status(ctx context.Context) Status {
	r.mu.Lock()
	unset := r.currentMode == ""
	r.mu.Unlock()
	if unset {
		r.CheckAndUpdate(ctx)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	meta := r.meta[r.currentMode]
	return Status{
		Mode:        r.currentMode,
		Name:        meta.Name,
		Icon:        meta.Icon,
		Description: meta.Description,
		EnergyLevel: meta.EnergyLevel,
		LastChange:  r.lastChange,
		Activities:  r.activities[r.currentMode],
	}
}

// History returns a copy of the recorded transitions.
func (r *Rhythm) History() []Transition {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Transition, len(r.history))
	copy(out, r.history)
	return out
}
