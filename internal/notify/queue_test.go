package notify

import (
	"context"
	"errors"
	"strings"
	"testing"

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

func TestPushAndUnread(t *testing.T) {
	q := NewQueue(newMemStore(), 0, zap.NewNop())
	ctx := context.Background()

	n, err := q.Push(ctx, "alert", "motion at door", "high", map[string]any{"value": 22.5})
	if err != nil {
		t.Fatalf("push: %v", err)
	}
	if n.ID == "" || n.Priority != "high" || n.Read {
		t.Fatalf("unexpected notification %+v", n)
	}

	unread := q.Unread(ctx)
	if len(unread) != 1 || unread[0].Message != "motion at door" {
		t.Fatalf("unread %+v, want one entry", unread)
	}

	latest, ok := q.Latest(ctx)
	if !ok || latest.ID != n.ID {
		t.Fatalf("latest %+v, want pushed notification", latest)
	}
}

func TestMarkAllRead(t *testing.T) {
	q := NewQueue(newMemStore(), 0, zap.NewNop())
	ctx := context.Background()

	q.Push(ctx, "info", "one", "", nil)
	q.Push(ctx, "info", "two", "", nil)

	if err := q.MarkAllRead(ctx); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if unread := q.Unread(ctx); len(unread) != 0 {
		t.Fatalf("got %d unread after MarkAllRead, want 0", len(unread))
	}

	// Non-destructive: latest still available.
	if latest, ok := q.Latest(ctx); !ok || latest.Message != "two" {
		t.Fatalf("latest lost after mark-read: %+v", latest)
	}
}

func TestQueueTrimsOldest(t *testing.T) {
	q := NewQueue(newMemStore(), 3, zap.NewNop())
	ctx := context.Background()

	for _, msg := range []string{"a", "b", "c", "d", "e"} {
		q.Push(ctx, "info", msg, "", nil)
	}

	unread := q.Unread(ctx)
	if len(unread) != 3 {
		t.Fatalf("queue holds %d, want cap 3", len(unread))
	}
	if unread[0].Message != "c" || unread[2].Message != "e" {
		t.Fatalf("oldest not trimmed: %+v", unread)
	}
}

func TestFormat(t *testing.T) {
	q := NewQueue(newMemStore(), 0, zap.NewNop())
	ctx := context.Background()

	if got := q.Format(ctx, nil); got != "No notifications" {
		t.Fatalf("empty format = %q", got)
	}

	q.Push(ctx, "alert", "perimeter breach", "urgent", nil)
	out := q.Format(ctx, nil)
	if !strings.Contains(out, "Notifications (1):") || !strings.Contains(out, "perimeter breach") {
		t.Fatalf("format output %q", out)
	}
}

type flakySink struct {
	delivered []Notification
	fail      bool
}

func (s *flakySink) Name() string { return "flaky" }

func (s *flakySink) Deliver(_ context.Context, n Notification) error {
	if s.fail {
		return errors.New("offline")
	}
	s.delivered = append(s.delivered, n)
	return nil
}

func TestSinkFanout(t *testing.T) {
	q := NewQueue(newMemStore(), 0, zap.NewNop())
	ctx := context.Background()

	good := &flakySink{}
	bad := &flakySink{fail: true}
	q.AddSink(bad)
	q.AddSink(good)

	// A failing sink must not block the push or the other sink.
	if _, err := q.Push(ctx, "message", "hello", "", nil); err != nil {
		t.Fatalf("push with failing sink: %v", err)
	}
	if len(good.delivered) != 1 {
		t.Fatalf("good sink delivered %d, want 1", len(good.delivered))
	}
}

func TestCorruptQueueStartsEmpty(t *testing.T) {
	store := newMemStore()
	store.data[QueueKey] = []byte("!!")

	q := NewQueue(store, 0, zap.NewNop())
	ctx := context.Background()
	if unread := q.Unread(ctx); len(unread) != 0 {
		t.Fatalf("corrupt queue yielded %d entries", len(unread))
	}

	// And pushing works again afterwards.
	if _, err := q.Push(ctx, "info", "fresh", "", nil); err != nil {
		t.Fatalf("push after corrupt state: %v", err)
	}
	if len(q.Unread(ctx)) != 1 {
		t.Fatal("queue did not recover from corrupt state")
	}
}
