package handlers

import (
	"bytes"
	"encoding/json"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/csrf"

	"github.com/foxzi/broadcast/internal/composer"
	"github.com/foxzi/broadcast/internal/group"
	"github.com/foxzi/broadcast/internal/web/session"
	"github.com/foxzi/broadcast/internal/web/views"
)

const pageTitle = "Group Broadcast"

type Handlers struct {
	catalog  *group.Catalog
	sessions *session.Store
	// sender serves the JSON API; form sessions carry their own
	sender composer.Sender
	views  *views.Engine
	logger *slog.Logger
}

func New(catalog *group.Catalog, sessions *session.Store, sender composer.Sender, views *views.Engine, logger *slog.Logger) *Handlers {
	return &Handlers{
		catalog:  catalog,
		sessions: sessions,
		sender:   sender,
		views:    views,
		logger:   logger,
	}
}

// Health check
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type page struct {
	Title     string
	CSRFField template.HTML
	CSRFToken string
	Snapshot  composer.Snapshot
}

func (h *Handlers) newPage(r *http.Request, snap composer.Snapshot) page {
	return page{
		Title:     pageTitle,
		CSRFField: csrf.TemplateField(r),
		CSRFToken: csrf.Token(r),
		Snapshot:  snap,
	}
}

// render buffers the page so a template error never leaves a half-written response
func (h *Handlers) render(w http.ResponseWriter, name string, data any) {
	var buf bytes.Buffer
	if err := h.views.Render(&buf, name, data); err != nil {
		h.logger.Error("failed to render template", "template", name, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.Write(buf.Bytes())
}

// backToForm ends every form post with a redirect to the form (post/redirect/get)
func backToForm(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

type errorResponse struct {
	Error string `json:"error"`
}

// sendJSON sends a JSON response
func sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// sendError sends an error response
func sendError(w http.ResponseWriter, status int, message string) {
	sendJSON(w, status, errorResponse{Error: message})
}
