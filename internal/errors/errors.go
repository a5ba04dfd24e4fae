package errors

import "errors"

var (
	ErrSessionNotFound  = errors.New("session not found")
	ErrDuplicateSession = errors.New("session already registered")

	ErrEventNotFound = errors.New("event not found")
	ErrAlreadyInRoom = errors.New("session already admitted to another room")

	ErrEmptySelection    = errors.New("no seats selected")
	ErrNoHeldReservation = errors.New("no reservation held")
	ErrSeatsUnavailable  = errors.New("some seats are no longer available")
	ErrReservationFailed = errors.New("reservation failed")
	ErrPurchaseFailed    = errors.New("purchase failed")
)
