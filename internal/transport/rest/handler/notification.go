package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"medchat/internal/model"
	"medchat/internal/relay"
)

// NotificationHandler serves the notifier's HTTP surface
type NotificationHandler struct {
	gateway *relay.Gateway
	logger  zerolog.Logger
}

// NewNotificationHandler creates a new notification handler
func NewNotificationHandler(gateway *relay.Gateway, logger zerolog.Logger) *NotificationHandler {
	return &NotificationHandler{gateway: gateway, logger: logger}
}

// Send handles POST /notification/send, the HTTP path into the same gateway the broker feeds
func (h *NotificationHandler) Send(w http.ResponseWriter, r *http.Request) {
	var n model.Notification
	if err := decode(r, &n); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now().UTC()
	}

	if err := h.gateway.Deliver(r.Context(), &n); err != nil {
		if errors.Is(err, relay.ErrInvalidNotification) {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.logger.Error().Err(err).Str("user_id", n.UserID).Msg("failed to queue notification")
		writeError(w, http.StatusServiceUnavailable, "notification could not be queued")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "sent"})
}

// Pending handles GET /notifications/pending?userId=
func (h *NotificationHandler) Pending(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		writeError(w, http.StatusBadRequest, "userId is required")
		return
	}

	items, err := h.gateway.Pending(r.Context(), userID)
	if err != nil {
		h.logger.Error().Err(err).Str("user_id", userID).Msg("failed to read inbox")
		writeError(w, http.StatusServiceUnavailable, "notifications unavailable")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"notifications": items})
}
