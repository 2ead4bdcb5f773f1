package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/foxzi/broadcast/internal/composer"
	"github.com/foxzi/broadcast/internal/metrics"
	"github.com/foxzi/broadcast/internal/webhook"
)

const maxRequestBody = 1 << 20

// BroadcastRequest is the JSON body of POST /api/v1/broadcast
type BroadcastRequest struct {
	Message string   `json:"message"`
	Groups  []string `json:"groups"`
}

// BroadcastResponse is returned when the webhook accepted the broadcast
type BroadcastResponse struct {
	Status   string          `json:"status"`
	Groups   int             `json:"groups"`
	Response json.RawMessage `json:"response,omitempty"`
}

// APIGroups lists the catalog
func (h *Handlers) APIGroups(w http.ResponseWriter, r *http.Request) {
	sendJSON(w, http.StatusOK, h.catalog.All())
}

// APIBroadcast sends a message in one step, without the confirmation dialog
func (h *Handlers) APIBroadcast(w http.ResponseWriter, r *http.Request) {
	var req BroadcastRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		sendError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}

	if strings.TrimSpace(req.Message) == "" {
		rejectAPI(w, metrics.ReasonNoMessage, composer.MsgNoMessage)
		return
	}
	if len(req.Groups) == 0 {
		rejectAPI(w, metrics.ReasonNoGroups, composer.MsgNoGroups)
		return
	}
	if unknown := h.catalog.Unknown(req.Groups); len(unknown) > 0 {
		rejectAPI(w, metrics.ReasonUnknownGroup, "unknown group(s): "+strings.Join(unknown, ", "))
		return
	}

	resp, err := h.sender.Broadcast(context.WithoutCancel(r.Context()), req.Message, req.Groups)
	if err != nil {
		if errors.Is(err, webhook.ErrEmptyInput) {
			sendError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Warn("api broadcast failed", "groups", len(req.Groups), "error", err)
		sendError(w, http.StatusBadGateway, "Send failed: "+err.Error())
		return
	}

	h.logger.Info("api broadcast sent", "groups", len(req.Groups))
	sendJSON(w, http.StatusOK, BroadcastResponse{
		Status:   "sent",
		Groups:   len(req.Groups),
		Response: resp,
	})
}

func rejectAPI(w http.ResponseWriter, reason, message string) {
	metrics.IncValidationError(reason)
	metrics.IncRejected()
	sendError(w, http.StatusBadRequest, message)
}
