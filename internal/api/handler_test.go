package api

import (
	"bytes"
	"context"
	"encoding/json"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/nidhogg/vigil/internal/attention"
	"github.com/nidhogg/vigil/internal/circadian"
	"github.com/nidhogg/vigil/internal/clock"
	"github.com/nidhogg/vigil/internal/decision"
	"github.com/nidhogg/vigil/internal/notify"
	"github.com/nidhogg/vigil/internal/pipeline"
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

// newTestHandler wires a Handler with in-memory deps (no Redis/Postgres).
func newTestHandler(t *testing.T) (*Handler, http.Handler) {
	t.Helper()
	logger := zap.NewNop()
	clk := clock.NewManual(time.Date(2026, 8, 23, 9, 0, 0, 0, time.Local))

	filter := attention.NewFilter(attention.Config{
		BaseThreshold: 10,
		Cooldown:      60 * time.Second,
		OrientingMult: 2,
	}, clk, logger)
	router := decision.NewRouter(nil, rand.New(rand.NewSource(3)), logger)
	sched := schedule.New(newMemStore(), "", clk, logger)
	rhythm := circadian.New(newMemStore(), clk, logger)
	mailbox := notify.NewQueue(newMemStore(), 0, logger)

	pipe := pipeline.New(filter, router, sched, rhythm, mailbox, nil, logger)
	h := NewHandler(pipe, logger)
	return h, h.Router()
}

func postJSON(t *testing.T, ts *httptest.Server, path string, body interface{}) *http.Response {
	t.Helper()
	b, _ := json.Marshal(body)
	resp, err := http.Post(ts.URL+path, "application/json", bytes.NewReader(b))
	if err != nil {
		t.Fatalf("POST %s: %v", path, err)
	}
	return resp
}

func getJSON(t *testing.T, ts *httptest.Server, path string) *http.Response {
	t.Helper()
	resp, err := http.Get(ts.URL + path)
	if err != nil {
		t.Fatalf("GET %s: %v", path, err)
	}
	return resp
}

func decodeJSON(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func TestHealthCheck(t *testing.T) {
	_, router := newTestHandler(t)
	ts := httptest.NewServer(router)
	defer ts.Close()

	resp := getJSON(t, ts, "/api/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d, want 200", resp.StatusCode)
	}
	var body map[string]string
	decodeJSON(t, resp, &body)
	if body["status"] != "ok" {
		t.Fatalf("body %v", body)
	}
}

func TestIngestEvents(t *testing.T) {
	_, router := newTestHandler(t)
	ts := httptest.NewServer(router)
	defer ts.Close()

	resp := postJSON(t, ts, "/api/events", map[string]any{
		"events": []map[string]any{
			{"source": "cam", "type": "motion", "content": "blob", "priority": 9,
				"raw_data": map[string]any{"magnitude": 30.0}},
			{"source": "door", "type": "motion", "content": "creak", "priority": 2,
				"raw_data": map[string]any{"magnitude": 1.0}},
		},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d, want 200", resp.StatusCode)
	}

	var report pipeline.TickReport
	decodeJSON(t, resp, &report)
	if report.EventsSeen != 2 || report.EventsPassed != 1 {
		t.Fatalf("report %+v, want 2 seen / 1 passed", report)
	}
	if report.Action.Name != "process_event" {
		t.Fatalf("action %q", report.Action.Name)
	}
}

func TestFilterCheckAndReset(t *testing.T) {
	_, router := newTestHandler(t)
	ts := httptest.NewServer(router)
	defer ts.Close()

	resp := postJSON(t, ts, "/api/filter/check", map[string]any{"source": "cam", "value": 25.0})
	var out struct {
		Notify bool   `json:"notify"`
		Reason string `json:"reason"`
	}
	decodeJSON(t, resp, &out)
	if !out.Notify {
		t.Fatalf("got %+v, want orienting notify", out)
	}

	// Cooldown now active.
	resp = postJSON(t, ts, "/api/filter/check", map[string]any{"source": "cam", "value": 12.0})
	decodeJSON(t, resp, &out)
	if out.Notify {
		t.Fatalf("got %+v, want cooldown suppression", out)
	}

	// Reset clears the cooldown.
	resp = postJSON(t, ts, "/api/filter/reset", map[string]any{"source": "cam"})
	resp.Body.Close()
	resp = postJSON(t, ts, "/api/filter/check", map[string]any{"source": "cam", "value": 12.0})
	decodeJSON(t, resp, &out)
	if !out.Notify {
		t.Fatalf("got %+v, want notify after reset", out)
	}
}

func TestSchedulerEndpoints(t *testing.T) {
	h, router := newTestHandler(t)
	ts := httptest.NewServer(router)
	defer ts.Close()

	h.pipe.Scheduler().Register("sync", time.Minute, func() (any, error) { return nil, nil }, true, "test task")

	resp := getJSON(t, ts, "/api/scheduler/status")
	var status map[string]schedule.TaskStatus
	decodeJSON(t, resp, &status)
	if st, ok := status["sync"]; !ok || !st.Enabled {
		t.Fatalf("status %+v", status)
	}

	resp = postJSON(t, ts, "/api/scheduler/tasks/sync/disable", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("disable status %d", resp.StatusCode)
	}
	resp.Body.Close()

	resp = postJSON(t, ts, "/api/scheduler/tasks/missing/enable", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("enable of unknown task: status %d, want 404", resp.StatusCode)
	}
	resp.Body.Close()
}

func TestCircadianEndpoint(t *testing.T) {
	_, router := newTestHandler(t)
	ts := httptest.NewServer(router)
	defer ts.Close()

	resp := getJSON(t, ts, "/api/circadian")
	var status circadian.Status
	decodeJSON(t, resp, &status)
	if status.Mode != circadian.Morning {
		t.Fatalf("mode %q at 09:00, want morning", status.Mode)
	}
}

func TestNotificationEndpoints(t *testing.T) {
	_, router := newTestHandler(t)
	ts := httptest.NewServer(router)
	defer ts.Close()

	resp := postJSON(t, ts, "/api/notifications", map[string]any{
		"type": "info", "message": "hello", "priority": "normal",
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("push status %d, want 201", resp.StatusCode)
	}
	resp.Body.Close()

	resp = getJSON(t, ts, "/api/notifications")
	var out struct {
		Unread    []notify.Notification `json:"unread"`
		Formatted string                `json:"formatted"`
	}
	decodeJSON(t, resp, &out)
	if len(out.Unread) != 1 || out.Unread[0].Message != "hello" {
		t.Fatalf("unread %+v", out.Unread)
	}

	resp = postJSON(t, ts, "/api/notifications/read", nil)
	resp.Body.Close()
	resp = getJSON(t, ts, "/api/notifications")
	decodeJSON(t, resp, &out)
	if len(out.Unread) != 0 {
		t.Fatalf("unread after mark-read: %+v", out.Unread)
	}
}

func TestTimelogUnavailable(t *testing.T) {
	_, router := newTestHandler(t)
	ts := httptest.NewServer(router)
	defer ts.Close()

	resp := getJSON(t, ts, "/api/timelog")
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status %d, want 503 without postgres", resp.StatusCode)
	}
	resp.Body.Close()
}
