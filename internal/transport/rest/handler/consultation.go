package handler

import (
	"net/http"

	"github.com/rs/zerolog"

	"medchat/internal/service"
)

// ConsultationHandler handles doctor-patient room endpoints
type ConsultationHandler struct {
	chatSvc *service.ChatService
	logger  zerolog.Logger
}

// NewConsultationHandler creates a new consultation handler
func NewConsultationHandler(chatSvc *service.ChatService, logger zerolog.Logger) *ConsultationHandler {
	return &ConsultationHandler{chatSvc: chatSvc, logger: logger}
}

// ConsultationRequest identifies a doctor/patient pair
type ConsultationRequest struct {
	DoctorID        string `json:"doctorId"`
	PatientID       string `json:"patientId"`
	DoctorUsername  string `json:"doctorUsername"`
	PatientUsername string `json:"patientUsername"`
}

// CompleteRequest is the request body for closing a consultation
type CompleteRequest struct {
	RoomID   string `json:"roomId"`
	DoctorID string `json:"doctorId"`
}

func (req ConsultationRequest) input() service.CreateConsultationInput {
	return service.CreateConsultationInput{
		DoctorID:        req.DoctorID,
		PatientID:       req.PatientID,
		DoctorUsername:  req.DoctorUsername,
		PatientUsername: req.PatientUsername,
	}
}

// Create handles POST /chat/doctor-patient/create
func (h *ConsultationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req ConsultationRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	room, err := h.chatSvc.CreateDoctorPatientRoom(r.Context(), req.input())
	if err != nil {
		writeServiceError(w, h.logger, err, http.StatusForbidden)
		return
	}

	writeJSON(w, http.StatusCreated, room)
}

// Get handles GET /chat/doctor-patient/room
func (h *ConsultationHandler) Get(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	req := ConsultationRequest{
		DoctorID:        q.Get("doctorId"),
		PatientID:       q.Get("patientId"),
		DoctorUsername:  q.Get("doctorUsername"),
		PatientUsername: q.Get("patientUsername"),
	}

	room, err := h.chatSvc.Rooms().FindDoctorPatientRoom(r.Context(), req.input())
	if err != nil {
		writeServiceError(w, h.logger, err, http.StatusForbidden)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"room": room})
}

// PatientRoom handles GET /chat/patient/room
func (h *ConsultationHandler) PatientRoom(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	room, err := h.chatSvc.Rooms().FindPatientRoom(r.Context(), q.Get("patientId"), q.Get("patientUsername"))
	if err != nil {
		writeServiceError(w, h.logger, err, http.StatusForbidden)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"room": room})
}

// Complete handles POST /chat/consultation/complete
func (h *ConsultationHandler) Complete(w http.ResponseWriter, r *http.Request) {
	var req CompleteRequest
	if err := decode(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	room, err := h.chatSvc.CompleteConsultation(r.Context(), req.RoomID, req.DoctorID)
	if err != nil {
		writeServiceError(w, h.logger, err, http.StatusForbidden)
		return
	}

	writeJSON(w, http.StatusOK, room)
}
