// Package attention implements the habituation filter that decides
// which stimuli deserve downstream reasoning.
//
// Three mechanisms borrowed from human attention interact, evaluated
// in strict priority order per stimulus:
//
//   - Orienting response: abnormally large stimuli always notify.
//   - Cooldown: a source that just notified is suppressed for a while.
//   - Habituation: a source seen too often in the recent window needs
//     a higher magnitude to notify.
package attention

import (
	"fmt"
	"sync"
	"time"

	"github.com/nidhogg/vigil/internal/clock"
	"go.uber.org/zap"
)

// Config holds the filter tuning knobs. Zero fields are replaced with
// the corresponding DefaultConfig values at construction.
type Config struct {
	// Cooldown is the minimum gap between notifications from the
	// same source.
	Cooldown time.Duration `json:"cooldown_seconds"`
	// Window is how far back stimuli count toward habituation.
	Window time.Duration `json:"window_seconds"`
	// HabituateCount is how many stimuli in the window it takes to
	// habituate a source.
	HabituateCount int `json:"habituate_count"`
	// HabituatedMult scales the threshold once habituated.
	HabituatedMult float64 `json:"habituated_mult"`
	// OrientingMult scales the threshold for the always-notify
	// orienting response.
	OrientingMult float64 `json:"orienting_mult"`
	// BaseThreshold is the magnitude a fresh source must reach.
	BaseThreshold float64 `json:"base_threshold"`
}

// DefaultConfig returns the standard tuning.
func DefaultConfig() Config {
	return Config{
		Cooldown:       60 * time.Second,
		Window:         300 * time.Second,
		HabituateCount: 3,
		HabituatedMult: 2.0,
		OrientingMult:  2.0,
		BaseThreshold:  15.0,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Cooldown <= 0 {
		c.Cooldown = d.Cooldown
	}
	if c.Window <= 0 {
		c.Window = d.Window
	}
	if c.HabituateCount <= 0 {
		c.HabituateCount = d.HabituateCount
	}
	if c.HabituatedMult <= 0 {
		c.HabituatedMult = d.HabituatedMult
	}
	if c.OrientingMult <= 0 {
		c.OrientingMult = d.OrientingMult
	}
	if c.BaseThreshold <= 0 {
		c.BaseThreshold = d.BaseThreshold
	}
	return c
}

// sourceState is the per-source filter state: when the source last
// notified and its recent stimulus history. Sources never interact.
type sourceState struct {
	lastNotify time.Time // zero = never notified
	history    stimulusHistory
}

// Filter applies the habituation rules. Safe for concurrent use; a
// single mutex covers the whole filter, which is fine at the sub-hertz
// call rates this sits at.
type Filter struct {
	cfg    Config
	clock  clock.Clock
	mu     sync.Mutex
	states map[string]*sourceState
	logger *zap.Logger
}

// NewFilter creates a filter with the given tuning and clock.
func NewFilter(cfg Config, clk clock.Clock, logger *zap.Logger) *Filter {
	return &Filter{
		cfg:    cfg.withDefaults(),
		clock:  clk,
		states: make(map[string]*sourceState),
		logger: logger,
	}
}

// Config returns the effective tuning after defaults were applied.
func (f *Filter) Config() Config { return f.cfg }

// ShouldNotify evaluates one stimulus and reports whether it should
// trigger a notification, with a human-readable reason. Downstream
// code and logs branch on the reason's leading word, so the
// "Orienting" / "Cooldown" / "habituated" / "alert" / "Below
// threshold" vocabulary is part of the contract.
func (f *Filter) ShouldNotify(source string, value float64) (bool, string) {
	f.mu.Lock()
	defer f.mu.Unlock()

	now := f.clock.Now()
	st, ok := f.states[source]
	if !ok {
		st = &sourceState{}
		f.states[source] = st
	}

	notify, reason := f.evaluate(st, now, value)
	f.logger.Debug("stimulus evaluated",
		zap.String("source", source),
		zap.Float64("value", value),
		zap.Bool("notify", notify),
		zap.String("reason", reason))
	return notify, reason
}

func (f *Filter) evaluate(st *sourceState, now time.Time, value float64) (bool, string) {
	// Orienting response: abnormally large stimulus always notifies,
	// regardless of cooldown or habituation, and restarts the cooldown.
	orienting := f.cfg.BaseThreshold * f.cfg.OrientingMult
	if value >= orienting {
		st.lastNotify = now
		st.history.append(now)
		return true, fmt.Sprintf("Orienting response (value=%.1f >= %.1f)", value, orienting)
	}

	// Cooldown: the source already triggered recently. The stimulus is
	// still recorded so habituation counting is unaffected.
	if !st.lastNotify.IsZero() {
		since := now.Sub(st.lastNotify)
		if since < f.cfg.Cooldown {
			st.history.append(now)
			return false, fmt.Sprintf("Cooldown (%.0fs < %.0fs)",
				since.Seconds(), f.cfg.Cooldown.Seconds())
		}
	}

	st.history.prune(now, f.cfg.Window)

	threshold := f.cfg.BaseThreshold
	habituated := st.history.len() >= f.cfg.HabituateCount
	if habituated {
		threshold *= f.cfg.HabituatedMult
	}

	if value >= threshold {
		st.lastNotify = now
		st.history.append(now)
		state := "alert"
		if habituated {
			state = "habituated"
		}
		return true, fmt.Sprintf("Motion (%s, value=%.1f >= threshold=%.1f)", state, value, threshold)
	}

	st.history.append(now)
	return false, fmt.Sprintf("Below threshold (%.1f < %.1f)", value, threshold)
}

// Reset clears the state of one source. Unknown sources are a no-op.
func (f *Filter) Reset(source string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.states, source)
}

// ResetAll clears every source.
func (f *Filter) ResetAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.states = make(map[string]*sourceState)
}

// Sources returns the number of sources with live state.
func (f *Filter) Sources() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.states)
}
