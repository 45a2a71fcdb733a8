package handler

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"medchat/internal/service"
)

// MessageHandler handles message endpoints
type MessageHandler struct {
	chatSvc *service.ChatService
	logger  zerolog.Logger
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(chatSvc *service.ChatService, logger zerolog.Logger) *MessageHandler {
	return &MessageHandler{chatSvc: chatSvc, logger: logger}
}

// SendMessageRequest is the request body for posting a message
type SendMessageRequest struct {
	RoomID      string `json:"roomId"`
	Sender      string `json:"sender"`
	Username    string `json:"username"`
	Text        string `json:"text"`
	ClientMsgID string `json:"clientMsgId,omitempty"`
}

// Send handles POST /chat/messages
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msg, err := h.chatSvc.SendMessage(r.Context(), service.SendMessageInput{
		RoomID:      req.RoomID,
		Sender:      req.Sender,
		Username:    req.Username,
		Text:        req.Text,
		ClientMsgID: req.ClientMsgID,
	}, "rest")
	if err != nil {
		writeServiceError(w, h.logger, err, http.StatusForbidden)
		return
	}

	writeJSON(w, http.StatusCreated, msg)
}

// List handles GET /chat/room/{roomId}?username=
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	roomID := mux.Vars(r)["roomId"]
	username := r.URL.Query().Get("username")

	messages, err := h.chatSvc.Rooms().ListMessages(r.Context(), roomID, username)
	if err != nil {
		writeServiceError(w, h.logger, err, http.StatusForbidden)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"messages": messages})
}
