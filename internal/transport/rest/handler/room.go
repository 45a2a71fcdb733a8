package handler

import (
	"net/http"

	"github.com/rs/zerolog"

	"medchat/internal/service"
)

// RoomHandler handles room lifecycle and membership endpoints
type RoomHandler struct {
	chatSvc *service.ChatService
	logger  zerolog.Logger
}

// NewRoomHandler creates a new room handler
func NewRoomHandler(chatSvc *service.ChatService, logger zerolog.Logger) *RoomHandler {
	return &RoomHandler{chatSvc: chatSvc, logger: logger}
}

// CreateRoomRequest is the request body for creating a general room
type CreateRoomRequest struct {
	RoomName string `json:"roomName"`
	Username string `json:"username"`
}

// MembershipRequest is the request body for join, leave and delete
type MembershipRequest struct {
	RoomID   string `json:"roomId"`
	Username string `json:"username"`
}

// Create handles POST /chat/createRoom
func (h *RoomHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	room, err := h.chatSvc.CreateGeneralRoom(r.Context(), req.Username, req.RoomName)
	if err != nil {
		writeServiceError(w, h.logger, err, http.StatusForbidden)
		return
	}

	writeJSON(w, http.StatusCreated, room)
}

// Join handles POST /chat/joinRoom
func (h *RoomHandler) Join(w http.ResponseWriter, r *http.Request) {
	var req MembershipRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	room, err := h.chatSvc.JoinRoom(r.Context(), req.RoomID, req.Username)
	if err != nil {
		writeServiceError(w, h.logger, err, http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, room)
}

// Leave handles POST /chat/leaveRoom
func (h *RoomHandler) Leave(w http.ResponseWriter, r *http.Request) {
	var req MembershipRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	room, err := h.chatSvc.LeaveRoom(r.Context(), req.RoomID, req.Username)
	if err != nil {
		writeServiceError(w, h.logger, err, http.StatusBadRequest)
		return
	}

	writeJSON(w, http.StatusOK, room)
}

// Delete handles POST /chat/deleteRoom
func (h *RoomHandler) Delete(w http.ResponseWriter, r *http.Request) {
	var req MembershipRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.chatSvc.DeleteRoom(r.Context(), req.RoomID, req.Username); err != nil {
		writeServiceError(w, h.logger, err, http.StatusForbidden)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "room deleted", "roomId": req.RoomID})
}

// List handles GET /chat/rooms?username=
func (h *RoomHandler) List(w http.ResponseWriter, r *http.Request) {
	rooms, err := h.chatSvc.Rooms().RoomsForMember(r.Context(), r.URL.Query().Get("username"))
	if err != nil {
		writeServiceError(w, h.logger, err, http.StatusForbidden)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"rooms": rooms})
}
