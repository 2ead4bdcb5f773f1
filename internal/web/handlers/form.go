package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/foxzi/broadcast/internal/composer"
	"github.com/foxzi/broadcast/internal/metrics"
)

// Form actions posted with the draft
const (
	ActionSend      = "send"
	ActionSelectAll = "select_all"
	ActionClearAll  = "clear_all"
	ActionSave      = "save"
)

// Index renders the composer form for the caller's session
func (h *Handlers) Index(w http.ResponseWriter, r *http.Request) {
	h.render(w, "index", h.newPage(r, h.sessions.Snapshot(r)))
}

// Draft saves the posted message and selection, then runs the chosen action
func (h *Handlers) Draft(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	action := r.PostForm.Get("action")
	switch action {
	case ActionSend, ActionSelectAll, ActionClearAll, ActionSave, "":
	default:
		http.Error(w, "unknown action", http.StatusBadRequest)
		return
	}

	c := h.sessions.Composer(w, r)
	c.SetMessage(r.PostForm.Get("message"))
	c.SetSelection(r.PostForm["groups"])

	switch action {
	case ActionSend:
		if _, err := c.RequestSend(); err != nil {
			metrics.ObserveValidation(err)
			if errors.Is(err, composer.ErrBusy) {
				h.logger.Info("send requested while a broadcast is in flight")
			}
		}
	case ActionSelectAll:
		c.ToggleAll(true)
	case ActionClearAll:
		c.ToggleAll(false)
	}

	backToForm(w, r)
}

// Toggle flips one group in the selection. A posted "checked" value sets
// the membership instead, so repeating the request is harmless.
func (h *Handlers) Toggle(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !h.catalog.Has(id) {
		http.NotFound(w, r)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}

	var checked *bool
	if v := r.PostForm.Get("checked"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			http.Error(w, "invalid checked value", http.StatusBadRequest)
			return
		}
		checked = &b
	}

	c := h.sessions.Composer(w, r)
	if checked != nil {
		c.SetSelected(id, *checked)
	} else {
		c.Toggle(id)
	}

	if wantsJSON(r) {
		sendJSON(w, http.StatusOK, map[string]int{
			"selected": len(c.Selected()),
			"total":    h.catalog.Len(),
		})
		return
	}
	backToForm(w, r)
}

// Confirm sends the staged broadcast. The request blocks until the webhook answers.
func (h *Handlers) Confirm(w http.ResponseWriter, r *http.Request) {
	c, ok := h.sessions.Lookup(r)
	if !ok {
		h.logger.Debug("confirmation without a session")
		backToForm(w, r)
		return
	}

	// Once confirmed, the send runs to completion even if the browser goes away
	_, err := c.ConfirmSend(context.WithoutCancel(r.Context()))
	switch {
	case errors.Is(err, composer.ErrBusy):
		h.logger.Info("confirmation ignored, broadcast already in flight")
	case errors.Is(err, composer.ErrNotConfirming):
		h.logger.Debug("confirmation without a pending send")
	}

	backToForm(w, r)
}

// Cancel closes the confirmation step
func (h *Handlers) Cancel(w http.ResponseWriter, r *http.Request) {
	if c, ok := h.sessions.Lookup(r); ok {
		c.CancelConfirmation()
	}
	backToForm(w, r)
}
