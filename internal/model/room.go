package model

import "time"

type RoomType string

const (
	RoomGeneral       RoomType = "general"
	RoomDoctorPatient RoomType = "doctor_patient"
	RoomDoctorDoctor  RoomType = "doctor_doctor"
)

// ConsultationStatus is the lifecycle state of a doctor_patient room
type ConsultationStatus string

const (
	ConsultationActive    ConsultationStatus = "active"
	ConsultationCompleted ConsultationStatus = "completed"
	ConsultationCancelled ConsultationStatus = "cancelled" // no operation moves a room here yet
)

// CanTransitionTo reports whether a consultation may move from s to next.
// Completed and cancelled are terminal.
func (s ConsultationStatus) CanTransitionTo(next ConsultationStatus) bool {
	if s != ConsultationActive {
		return false
	}
	return next == ConsultationCompleted || next == ConsultationCancelled
}

type DoctorPatientInfo struct {
	DoctorID         string             `json:"doctorId" bson:"doctorId"`
	PatientID        string             `json:"patientId" bson:"patientId"`
	ConsultationDate time.Time          `json:"consultationDate" bson:"consultationDate"`
	Status           ConsultationStatus `json:"status" bson:"status"`
}

// Room is a conversation aggregate with its embedded message history
type Room struct {
	ID                string             `json:"_id" bson:"_id"`
	RoomName          string             `json:"roomName" bson:"roomName"`
	RoomType          RoomType           `json:"roomType" bson:"roomType"`
	Members           []string           `json:"members" bson:"members"`
	MemberIDs         []string           `json:"memberIds" bson:"memberIds"` // advisory, not kept in sync with Members
	Creator           string             `json:"creator" bson:"creator"`
	CreatorID         string             `json:"creatorId,omitempty" bson:"creatorId,omitempty"`
	DoctorPatientInfo *DoctorPatientInfo `json:"doctorPatientInfo,omitempty" bson:"doctorPatientInfo,omitempty"`
	Messages          []Message          `json:"messages" bson:"messages"`
	CreatedAt         time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt         time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// HasMember reports whether username is in the member list
func (r *Room) HasMember(username string) bool {
	for _, m := range r.Members {
		if m == username {
			return true
		}
	}
	return false
}

// IsActiveConsultation is true for doctor_patient rooms still open for chat
func (r *Room) IsActiveConsultation() bool {
	return r.RoomType == RoomDoctorPatient &&
		r.DoctorPatientInfo != nil &&
		r.DoctorPatientInfo.Status == ConsultationActive
}

// Clone returns a deep copy so callers never share slices with a store
func (r *Room) Clone() *Room {
	c := *r
	c.Members = append([]string(nil), r.Members...)
	c.MemberIDs = append([]string(nil), r.MemberIDs...)
	c.Messages = append([]Message(nil), r.Messages...)
	if r.DoctorPatientInfo != nil {
		info := *r.DoctorPatientInfo
		c.DoctorPatientInfo = &info
	}
	return &c
}
