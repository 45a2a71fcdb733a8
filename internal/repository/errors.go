package repository

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound                    = errors.New("room not found")
	ErrAlreadyMember               = errors.New("user already a member")
	ErrNotMember                   = errors.New("user not a member")
	ErrDuplicateMessage            = errors.New("message already stored")
	ErrDuplicateActiveConsultation = errors.New("active consultation already exists")
	ErrStatusConflict              = errors.New("consultation status changed concurrently")
)

// DuplicateConsultationError carries the id of the room that blocks creation
type DuplicateConsultationError struct {
	RoomID string
}

func (e *DuplicateConsultationError) Error() string {
	return fmt.Sprintf("%s: room %s", ErrDuplicateActiveConsultation.Error(), e.RoomID)
}

func (e *DuplicateConsultationError) Unwrap() error {
	return ErrDuplicateActiveConsultation
}
