// Package event defines the normalized event model produced by input
// sources and consumed by the triage pipeline.
package event

import (
	"context"
	"time"
)

// Event is a single observation from an input source. The pipeline
// never mutates an Event after construction.
type Event struct {
	Source    string         `json:"source"`
	Type      string         `json:"type"` // mention, reply, message, motion, ...
	Content   string         `json:"content"`
	Author    string         `json:"author,omitempty"`
	URL       string         `json:"url,omitempty"`
	Priority  int            `json:"priority"` // 1-10, higher = more important
	RawData   map[string]any `json:"raw_data,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// New constructs an Event with defaults applied: priority clamped to
// 1..10, timestamp filled with now, RawData never nil.
func New(source, etype, content string, priority int) Event {
	return Event{
		Source:    source,
		Type:      etype,
		Content:   content,
		Priority:  ClampPriority(priority),
		RawData:   map[string]any{},
		Timestamp: time.Now(),
	}
}

// ClampPriority forces a priority into the 1..10 range.
func ClampPriority(p int) int {
	if p < 1 {
		return 1
	}
	if p > 10 {
		return 10
	}
	return p
}

// Magnitude returns the stimulus magnitude used for habituation
// filtering: raw_data["magnitude"] when it is numeric, otherwise the
// priority as a float.
func (e Event) Magnitude() float64 {
	if e.RawData != nil {
		switch v := e.RawData["magnitude"].(type) {
		case float64:
			return v
		case float32:
			return float64(v)
		case int:
			return float64(v)
		case int64:
			return float64(v)
		}
	}
	return float64(e.Priority)
}

// Source produces events for the pipeline. Implementations live
// outside the core (camera adapters, mailbox pollers, webhooks).
type Source interface {
	Name() string
	Check(ctx context.Context) ([]Event, error)
}
