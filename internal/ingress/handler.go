// Package ingress is the HTTP API through which the task application hands
// events to the dispatcher.
package ingress

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"zulipnotify/internal/event"
	"zulipnotify/internal/storage"
	"zulipnotify/internal/zulip"
	"zulipnotify/pkg/logx"
)

const maxBodyBytes = 1 << 20

// Notifier is implemented by *zulip.Dispatcher.
type Notifier interface {
	NotifyUser(ctx context.Context, user zulip.User, eventName string, data zulip.EventData) error
	NotifyProject(ctx context.Context, project storage.Project, eventName string, data zulip.EventData) error
}

// ProjectWriter records project names seen in requests.
type ProjectWriter interface {
	PutProject(ctx context.Context, p storage.Project) error
}

type HandlerDeps struct {
	Notifier Notifier
	Projects ProjectWriter
	// Token returns the bearer token required on /v1 routes. Empty disables auth.
	Token func() string

	Metrics     http.Handler
	MetricsPath string

	Log logx.Logger
}

type handler struct {
	notifier Notifier
	projects ProjectWriter
	token    func() string
	log      logx.Logger
}

type subjectRef struct {
	ID   event.ID `json:"id"`
	Name string   `json:"name,omitempty"`
}

type notifyRequest struct {
	User      *subjectRef  `json:"user,omitempty"`
	Project   *subjectRef  `json:"project,omitempty"`
	EventName string       `json:"event_name"`
	EventData event.Data   `json:"event_data"`
	Actor     *zulip.Actor `json:"actor,omitempty"`
}

// NewHandler returns the API router.
func NewHandler(d HandlerDeps) http.Handler {
	log := d.Log
	if log.IsZero() {
		log = logx.Nop()
	}
	h := &handler{
		notifier: d.Notifier,
		projects: d.Projects,
		token:    d.Token,
		log:      log,
	}

	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	router.Route("/v1/notify", func(r chi.Router) {
		r.Use(h.tokenAuth)
		r.Post("/user", h.handleUser)
		r.Post("/project", h.handleProject)
	})
	if d.Metrics != nil {
		path := strings.TrimSpace(d.MetricsPath)
		if path == "" {
			path = "/metrics"
		}
		router.Method(http.MethodGet, path, d.Metrics)
	}
	return router
}

func (h *handler) handleUser(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	if req.User == nil || req.User.ID <= 0 {
		http.Error(w, "user.id required", http.StatusBadRequest)
		return
	}

	ctx := h.prepare(r.Context(), req)
	if err := h.notifier.NotifyUser(ctx, zulip.User{ID: int64(req.User.ID)}, req.EventName, req.EventData); err != nil {
		h.log.Warn("notify user failed", logx.Int64("user_id", int64(req.User.ID)), logx.String("event", req.EventName), logx.Err(err))
		http.Error(w, "notify failed", http.StatusInternalServerError)
		return
	}
	accepted(w)
}

func (h *handler) handleProject(w http.ResponseWriter, r *http.Request) {
	req, ok := h.decode(w, r)
	if !ok {
		return
	}
	if req.Project == nil || req.Project.ID <= 0 {
		http.Error(w, "project.id required", http.StatusBadRequest)
		return
	}

	ctx := h.prepare(r.Context(), req)
	project := storage.Project{ID: int64(req.Project.ID), Name: req.Project.Name}
	if err := h.notifier.NotifyProject(ctx, project, req.EventName, req.EventData); err != nil {
		h.log.Warn("notify project failed", logx.Int64("project_id", project.ID), logx.String("event", req.EventName), logx.Err(err))
		http.Error(w, "notify failed", http.StatusInternalServerError)
		return
	}
	accepted(w)
}

func (h *handler) decode(w http.ResponseWriter, r *http.Request) (notifyRequest, bool) {
	var req notifyRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, "request body too large", http.StatusRequestEntityTooLarge)
			return req, false
		}
		http.Error(w, "invalid json", http.StatusBadRequest)
		return req, false
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		http.Error(w, "invalid json: trailing data", http.StatusBadRequest)
		return req, false
	}
	req.EventName = strings.TrimSpace(req.EventName)
	if req.EventName == "" {
		http.Error(w, "event_name required", http.StatusBadRequest)
		return req, false
	}
	return req, true
}

// prepare puts the actor on ctx and records any project names the request
// carries, so per-task project lookups resolve.
func (h *handler) prepare(ctx context.Context, req notifyRequest) context.Context {
	if req.Actor != nil {
		ctx = zulip.WithActor(ctx, *req.Actor)
	}
	if h.projects == nil {
		return ctx
	}

	seen := map[int64]string{}
	if req.Project != nil && req.Project.ID > 0 && req.Project.Name != "" {
		seen[int64(req.Project.ID)] = req.Project.Name
	}
	tasks := append([]event.Task{req.EventData.Task}, req.EventData.Tasks...)
	for _, t := range tasks {
		if t.ProjectID > 0 && t.ProjectName != "" {
			if _, ok := seen[int64(t.ProjectID)]; !ok {
				seen[int64(t.ProjectID)] = t.ProjectName
			}
		}
	}
	for id, name := range seen {
		if err := h.projects.PutProject(ctx, storage.Project{ID: id, Name: name}); err != nil {
			h.log.Warn("record project failed", logx.Int64("project_id", id), logx.Err(err))
		}
	}
	return ctx
}

func (h *handler) tokenAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tok := ""
		if h.token != nil {
			tok = strings.TrimSpace(h.token())
		}
		if tok == "" {
			next.ServeHTTP(w, r)
			return
		}
		const p = "Bearer "
		if ah := r.Header.Get("Authorization"); strings.HasPrefix(ah, p) && strings.TrimSpace(strings.TrimPrefix(ah, p)) == tok {
			next.ServeHTTP(w, r)
			return
		}
		unauthorized(w)
	})
}

func accepted(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_, _ = w.Write([]byte(`{"status":"accepted"}` + "\n"))
}

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}
