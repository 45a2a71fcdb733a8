package service

import (
	"errors"
	"fmt"
)

// Domain failures are returned as these sentinels (or wrap them);
// handlers map them to status codes with errors.Is.
var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrRoomNotFound    = errors.New("room not found")
	ErrForbidden       = errors.New("forbidden")
	ErrConflict        = errors.New("conflict")
	ErrAlreadyMember   = errors.New("user is already a member of this room")
	ErrNotMember       = errors.New("you must join the room first")
	ErrInvalidRoomType = errors.New("operation not valid for this room type")
	ErrInvalidState    = errors.New("consultation is already closed")
	ErrUnavailable     = errors.New("storage unavailable")
)

// ConflictError reports an existing active consultation for a doctor/patient pair
type ConflictError struct {
	RoomID string
}

func (e *ConflictError) Error() string {
	return "chat room already exists for this doctor-patient pair"
}

func (e *ConflictError) Unwrap() error {
	return ErrConflict
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
