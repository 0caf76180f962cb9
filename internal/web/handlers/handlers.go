package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/foxzi/castmail/internal/web/config"
	"github.com/foxzi/castmail/internal/web/history"
	"github.com/foxzi/castmail/internal/web/metrics"
	"github.com/foxzi/castmail/internal/web/middleware"
	"github.com/foxzi/castmail/internal/web/session"
	"github.com/foxzi/castmail/internal/web/views"
)

// Pinger checks that the backend answers
type Pinger interface {
	Ping(ctx context.Context) error
}

type Handlers struct {
	cfg      *config.Config
	views    *views.Engine
	registry *session.Registry
	history  *history.Storage
	metrics  *metrics.Metrics
	backend  Pinger
	logger   *slog.Logger
	now      func() time.Time
}

func New(cfg *config.Config, engine *views.Engine, registry *session.Registry, hist *history.Storage, m *metrics.Metrics, backend Pinger, logger *slog.Logger) *Handlers {
	return &Handlers{
		cfg:      cfg,
		views:    engine,
		registry: registry,
		history:  hist,
		metrics:  m,
		backend:  backend,
		logger:   logger,
		now:      time.Now,
	}
}

// layout is the data every page shares with layout.html
type layout struct {
	Title       string
	Nav         string
	Flashes     []session.Flash
	AuthEnabled bool
}

func (h *Handlers) layout(sess *session.Session, title, nav string) layout {
	return layout{
		Title:       title,
		Nav:         nav,
		Flashes:     sess.Flashes(),
		AuthEnabled: h.cfg.Auth.Enabled(),
	}
}

// Health check. With ?deep=1 the backend is pinged as well.
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("deep") != "1" {
		h.json(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	if err := h.backend.Ping(ctx); err != nil {
		h.logger.Warn("backend health check failed", "error", err)
		h.json(w, http.StatusServiceUnavailable, map[string]string{
			"status":  "degraded",
			"backend": err.Error(),
		})
		return
	}
	h.json(w, http.StatusOK, map[string]string{"status": "ok", "backend": "ok"})
}

// NotFound sends unknown paths back to the dashboard
func (h *Handlers) NotFound(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusFound)
}

func (h *Handlers) session(r *http.Request) *session.Session {
	return middleware.FromContext(r.Context())
}

func (h *Handlers) render(w http.ResponseWriter, status int, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	var buf bytes.Buffer
	if err := h.views.Render(&buf, name, data); err != nil {
		h.error(w, http.StatusInternalServerError, "failed to render page", "template", name, "error", err)
		return
	}
	w.WriteHeader(status)
	w.Write(buf.Bytes())
}

func (h *Handlers) json(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to encode response", "error", err)
	}
}

func (h *Handlers) error(w http.ResponseWriter, status int, message string, args ...any) {
	h.logger.Error(message, append([]any{"status", status}, args...)...)
	http.Error(w, http.StatusText(status), status)
}
