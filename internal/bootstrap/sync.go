// Package bootstrap seeds the room directory from the external store at
// startup. A failed fetch is non-fatal: the process starts with an empty
// directory and rooms are created lazily on first entry.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/openvenue/seatfloor/internal/store"
	"github.com/openvenue/seatfloor/pkg/logger"
)

type EventLister interface {
	ListEvents(ctx context.Context) ([]store.Event, error)
}

type RoomCreator interface {
	EnsureRoom(eventID string)
}

// Sync fetches the full event list and creates a room for every event not
// yet known. Existing rooms keep their live membership untouched.
func Sync(ctx context.Context, lister EventLister, rooms RoomCreator, l logger.Logger) error {
	events, err := lister.ListEvents(ctx)
	if err != nil {
		return fmt.Errorf("failed to fetch event list: %w", err)
	}

	for _, ev := range events {
		rooms.EnsureRoom(ev.ID)
	}

	l.Infof(ctx, "Bootstrap sync seeded %d event room(s)", len(events))

	return nil
}
