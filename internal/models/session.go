package models

import (
	"sort"
	"sync"
	"time"
)

// Session is the in-memory record for one live client connection. The
// embedded mutex guards EventID, the seat sets and ReservedAt; every
// component that reads or writes those fields must hold it. Locks are
// always acquired session first, then room directory.
type Session struct {
	sync.Mutex

	ID             string
	EventID        string
	PendingSeatIDs map[int64]struct{}
	HeldSeatIDs    []int64
	ReservedAt     *time.Time

	// HoldGeneration increments on every grant. An expiry callback
	// captures it when armed and must no-op on mismatch: the hold it
	// was armed for has been superseded by a newer grant.
	HoldGeneration uint64
}

func NewSession(id string) *Session {
	return &Session{
		ID:             id,
		PendingSeatIDs: make(map[int64]struct{}),
	}
}

// HasHold reports whether the session currently holds a reservation batch.
// Callers must hold the session lock.
func (s *Session) HasHold() bool {
	return len(s.HeldSeatIDs) > 0
}

// PendingSeats returns a sorted snapshot of the tentatively picked seats.
// Callers must hold the session lock.
func (s *Session) PendingSeats() []int64 {
	seats := make([]int64, 0, len(s.PendingSeatIDs))
	for id := range s.PendingSeatIDs {
		seats = append(seats, id)
	}
	sort.Slice(seats, func(i, j int) bool { return seats[i] < seats[j] })
	return seats
}

// ClearPending drops all tentative seat picks. Callers must hold the
// session lock.
func (s *Session) ClearPending() {
	s.PendingSeatIDs = make(map[int64]struct{})
}
