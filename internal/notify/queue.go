// Package notify is a persistent, non-destructive notification
// mailbox: background tasks push, the agent reads at its own pace, and
// nothing disappears until explicitly marked read.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nidhogg/vigil/internal/statestore"
	"go.uber.org/zap"
)

// Statestore keys for the queue and the most recent notification.
const (
	QueueKey  = "notifications_queue"
	LatestKey = "notifications_latest"
)

// DefaultMaxQueue bounds how many notifications are retained.
const DefaultMaxQueue = 50

// Notification is one mailbox entry.
type Notification struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Type      string         `json:"type"`     // message, alert, info, system, schedule, suggestion
	Message   string         `json:"message"`
	Priority  string         `json:"priority"` // urgent, high, normal, low
	Data      map[string]any `json:"data,omitempty"`
	Read      bool           `json:"read"`
}

var icons = map[string]string{
	"message":    "💬",
	"alert":      "🚨",
	"info":       "ℹ️",
	"system":     "⚙️",
	"schedule":   "⏰",
	"suggestion": "💡",
}

var priorityMarks = map[string]string{
	"urgent": "‼️",
	"high":   "❗",
	"normal": "",
	"low":    "·",
}

// Sink receives a copy of every pushed notification (chat delivery,
// webhooks). Delivery failures are logged, never propagated.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, n Notification) error
}

// Queue is the mailbox. Backed by a statestore, so it runs identically
// on the file store or Redis.
type Queue struct {
	store    statestore.Store
	maxQueue int
	sinks    []Sink
	mu       sync.Mutex
	logger   *zap.Logger
}

// NewQueue creates a mailbox over the given store. maxQueue <= 0 means
// DefaultMaxQueue.
func NewQueue(store statestore.Store, maxQueue int, logger *zap.Logger) *Queue {
	if maxQueue <= 0 {
		maxQueue = DefaultMaxQueue
	}
	return &Queue{store: store, maxQueue: maxQueue, logger: logger}
}

// AddSink registers a delivery sink for future pushes.
func (q *Queue) AddSink(s Sink) {
	q.mu.Lock()
	q.sinks = append(q.sinks, s)
	q.mu.Unlock()
}

// Push appends a notification, updates the latest marker, trims the
// queue to its cap, and fans out to sinks.
func (q *Queue) Push(ctx context.Context, ntype, message, priority string, data map[string]any) (Notification, error) {
	if priority == "" {
		priority = "normal"
	}
	n := Notification{
		ID:        uuid.New().String(),
		Timestamp: time.Now(),
		Type:      ntype,
		Message:   message,
		Priority:  priority,
		Data:      data,
	}

	q.mu.Lock()
	queue := q.loadQueue(ctx)
	queue = append(queue, n)
	if len(queue) > q.maxQueue {
		queue = queue[len(queue)-q.maxQueue:]
	}
	err := q.saveQueue(ctx, queue)
	if err == nil {
		if data, merr := json.Marshal(n); merr == nil {
			if serr := q.store.Save(ctx, LatestKey, data); serr != nil {
				q.logger.Warn("latest notification save failed", zap.Error(serr))
			}
		}
	}
	sinks := make([]Sink, len(q.sinks))
	copy(sinks, q.sinks)
	q.mu.Unlock()

	if err != nil {
		return Notification{}, fmt.Errorf("push notification: %w", err)
	}

	for _, s := range sinks {
		if derr := s.Deliver(ctx, n); derr != nil {
			q.logger.Warn("notification delivery failed",
				zap.String("sink", s.Name()),
				zap.Error(derr))
		}
	}

	q.logger.Debug("notification pushed",
		zap.String("type", ntype),
		zap.String("priority", priority))
	return n, nil
}

// Unread returns the notifications not yet marked read, oldest first.
func (q *Queue) Unread(ctx context.Context) []Notification {
	q.mu.Lock()
	defer q.mu.Unlock()
	var unread []Notification
	for _, n := range q.loadQueue(ctx) {
		if !n.Read {
			unread = append(unread, n)
		}
	}
	return unread
}

// Latest returns the most recent notification, or false if none.
func (q *Queue) Latest(ctx context.Context) (Notification, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	var n Notification
	restored, err := statestore.LoadJSON(ctx, q.store, LatestKey, func(data []byte) error {
		return json.Unmarshal(data, &n)
	})
	if err != nil || !restored {
		return Notification{}, false
	}
	return n, true
}

// MarkAllRead flags every queued notification as read.
func (q *Queue) MarkAllRead(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	queue := q.loadQueue(ctx)
	for i := range queue {
		queue[i].Read = true
	}
	return q.saveQueue(ctx, queue)
}

// Format renders notifications for display; nil means unread.
func (q *Queue) Format(ctx context.Context, ns []Notification) string {
	if ns == nil {
		ns = q.Unread(ctx)
	}
	if len(ns) == 0 {
		return "No notifications"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Notifications (%d):", len(ns))
	for _, n := range ns {
		icon, ok := icons[n.Type]
		if !ok {
			icon = "📌"
		}
		fmt.Fprintf(&b, "\n  %s%s [%s] %s",
			priorityMarks[n.Priority], icon, n.Timestamp.Format("15:04"), n.Message)
	}
	return b.String()
}

func (q *Queue) loadQueue(ctx context.Context) []Notification {
	var queue []Notification
	restored, err := statestore.LoadJSON(ctx, q.store, QueueKey, func(data []byte) error {
		return json.Unmarshal(data, &queue)
	})
	if err != nil {
		q.logger.Warn("notification queue unavailable, starting empty", zap.Error(err))
		return nil
	}
	if !restored {
		return nil
	}
	return queue
}

func (q *Queue) saveQueue(ctx context.Context, queue []Notification) error {
	data, err := json.Marshal(queue)
	if err != nil {
		return err
	}
	return q.store.Save(ctx, QueueKey, data)
}
