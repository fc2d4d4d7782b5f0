// Package api exposes the triage pipeline over HTTP.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nidhogg/vigil/internal/event"
	"github.com/nidhogg/vigil/internal/pipeline"
	"go.uber.org/zap"
)

// Handler holds dependencies for HTTP handlers.
type Handler struct {
	pipe   *pipeline.Pipeline
	logger *zap.Logger
}

// NewHandler creates a new API handler over the pipeline.
func NewHandler(pipe *pipeline.Pipeline, logger *zap.Logger) *Handler {
	return &Handler{pipe: pipe, logger: logger}
}

// Router builds the chi router with all routes.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.healthCheck)
		r.Get("/status", h.status)

		// Event ingestion and filter introspection
		r.Post("/events", h.ingestEvents)
		r.Post("/filter/check", h.checkFilter)
		r.Post("/filter/reset", h.resetFilter)

		// Scheduler routes
		r.Get("/scheduler/status", h.schedulerStatus)
		r.Post("/scheduler/tasks/{name}/enable", h.enableTask)
		r.Post("/scheduler/tasks/{name}/disable", h.disableTask)

		// Circadian routes
		r.Get("/circadian", h.circadianStatus)

		// Notification routes
		r.Get("/notifications", h.listNotifications)
		r.Post("/notifications", h.pushNotification)
		r.Post("/notifications/read", h.markNotificationsRead)

		// Timelog routes
		r.Get("/timelog", h.timelogStatus)
		r.Post("/timelog/start", h.timelogStart)
		r.Post("/timelog/checkpoint", h.timelogCheckpoint)
		r.Post("/timelog/end", h.timelogEnd)
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": "vigil"})
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	status := map[string]any{
		"ticks":          h.pipe.Ticks(),
		"filter_sources": h.pipe.Filter().Sources(),
		"scheduler":      h.pipe.Scheduler().Status(),
	}
	if rhythm := h.pipe.Rhythm(); rhythm != nil {
		status["circadian"] = rhythm.Status(r.Context())
	}
	writeJSON(w, http.StatusOK, status)
}

type ingestRequest struct {
	Events []incomingEvent `json:"events"`
}

type incomingEvent struct {
	Source   string         `json:"source"`
	Type     string         `json:"type"`
	Content  string         `json:"content"`
	Author   string         `json:"author,omitempty"`
	URL      string         `json:"url,omitempty"`
	Priority int            `json:"priority"`
	RawData  map[string]any `json:"raw_data,omitempty"`
}

func (h *Handler) ingestEvents(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	events := make([]event.Event, 0, len(req.Events))
	for _, in := range req.Events {
		e := event.New(in.Source, in.Type, in.Content, in.Priority)
		e.Author = in.Author
		e.URL = in.URL
		for k, v := range in.RawData {
			e.RawData[k] = v
		}
		events = append(events, e)
	}

	report := h.pipe.Ingest(r.Context(), events)
	writeJSON(w, http.StatusOK, report)
}

type filterCheckRequest struct {
	Source string  `json:"source"`
	Value  float64 `json:"value"`
}

func (h *Handler) checkFilter(w http.ResponseWriter, r *http.Request) {
	var req filterCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	notify, reason := h.pipe.Filter().ShouldNotify(req.Source, req.Value)
	writeJSON(w, http.StatusOK, map[string]any{"notify": notify, "reason": reason})
}

type filterResetRequest struct {
	Source string `json:"source"` // empty = reset everything
}

func (h *Handler) resetFilter(w http.ResponseWriter, r *http.Request) {
	var req filterResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if req.Source == "" {
		h.pipe.Filter().ResetAll()
	} else {
		h.pipe.Filter().Reset(req.Source)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) schedulerStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.pipe.Scheduler().Status())
}

func (h *Handler) enableTask(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !h.pipe.Scheduler().Enable(name) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "task": name})
}

func (h *Handler) disableTask(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	if !h.pipe.Scheduler().Disable(name) {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "task not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "task": name})
}

func (h *Handler) circadianStatus(w http.ResponseWriter, r *http.Request) {
	rhythm := h.pipe.Rhythm()
	if rhythm == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "circadian not initialized"})
		return
	}
	writeJSON(w, http.StatusOK, rhythm.Status(r.Context()))
}

func (h *Handler) listNotifications(w http.ResponseWriter, r *http.Request) {
	mailbox := h.pipe.Mailbox()
	if mailbox == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "mailbox not initialized"})
		return
	}
	unread := mailbox.Unread(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{
		"unread":    unread,
		"formatted": mailbox.Format(r.Context(), unread),
	})
}

type pushNotificationRequest struct {
	Type     string         `json:"type"`
	Message  string         `json:"message"`
	Priority string         `json:"priority"`
	Data     map[string]any `json:"data,omitempty"`
}

func (h *Handler) pushNotification(w http.ResponseWriter, r *http.Request) {
	mailbox := h.pipe.Mailbox()
	if mailbox == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "mailbox not initialized"})
		return
	}
	var req pushNotificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	n, err := mailbox.Push(r.Context(), req.Type, req.Message, req.Priority, req.Data)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

func (h *Handler) markNotificationsRead(w http.ResponseWriter, r *http.Request) {
	mailbox := h.pipe.Mailbox()
	if mailbox == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "mailbox not initialized"})
		return
	}
	if err := mailbox.MarkAllRead(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) timelogStatus(w http.ResponseWriter, r *http.Request) {
	tlog := h.pipe.Timelog()
	if tlog == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "timelog not initialized"})
		return
	}
	status, err := tlog.Status(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, status)
}

type timelogRequest struct {
	Task string `json:"task,omitempty"`
	Note string `json:"note,omitempty"`
}

func (h *Handler) timelogStart(w http.ResponseWriter, r *http.Request) {
	tlog := h.pipe.Timelog()
	if tlog == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "timelog not initialized"})
		return
	}
	var req timelogRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	cur, err := tlog.StartTask(r.Context(), req.Task)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, cur)
}

func (h *Handler) timelogCheckpoint(w http.ResponseWriter, r *http.Request) {
	tlog := h.pipe.Timelog()
	if tlog == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "timelog not initialized"})
		return
	}
	var req timelogRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	cur, ok, err := tlog.Checkpoint(r.Context(), req.Note)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no task running"})
		return
	}
	writeJSON(w, http.StatusOK, cur)
}

func (h *Handler) timelogEnd(w http.ResponseWriter, r *http.Request) {
	tlog := h.pipe.Timelog()
	if tlog == nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "timelog not initialized"})
		return
	}
	var req timelogRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	entry, ok, err := tlog.EndTask(r.Context(), req.Note)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": err.Error()})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no task running"})
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
