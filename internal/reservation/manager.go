// Package reservation drives the hold lifecycle for seat batches: grant
// with expiry timer, purchase, and compensating release on expiry or
// disconnect. It never touches room membership directly, only through the
// directory's API.
package reservation

import (
	"context"
	stderrors "errors"
	"fmt"
	"sort"
	"time"

	kafka "github.com/openvenue/seatfloor/internal/delivery/kafka"
	"github.com/openvenue/seatfloor/internal/errors"
	"github.com/openvenue/seatfloor/internal/models"
	"github.com/openvenue/seatfloor/internal/registry"
	"github.com/openvenue/seatfloor/internal/store"
	"github.com/openvenue/seatfloor/pkg/logger"
)

// Gateway is the slice of the external store the manager needs. Calls are
// single bounded attempts; any non-success is a hard failure of that one
// attempt.
type Gateway interface {
	ReserveSeats(ctx context.Context, seatIDs []int64) error
	BuySeats(ctx context.Context, seatIDs []int64) error
	ReleaseSeats(ctx context.Context, seatIDs []int64) error
}

type Broadcaster interface {
	ToAll(msg models.ServerMessage)
	ToSession(sessionID string, msg models.ServerMessage)
}

type RoomDirectory interface {
	Leave(ctx context.Context, sessionID, reason string) (string, bool)
}

type Manager struct {
	reg    *registry.Registry
	gw     Gateway
	fan    Broadcaster
	rooms  RoomDirectory
	prod   kafka.Producer
	timers *timerRegistry

	ttl   time.Duration
	retry time.Duration
	l     logger.Logger
}

func NewManager(
	reg *registry.Registry,
	gw Gateway,
	fan Broadcaster,
	rooms RoomDirectory,
	prod kafka.Producer,
	ttl time.Duration,
	retry time.Duration,
	l logger.Logger,
) *Manager {
	return &Manager{
		reg:    reg,
		gw:     gw,
		fan:    fan,
		rooms:  rooms,
		prod:   prod,
		timers: newTimerRegistry(),
		ttl:    ttl,
		retry:  retry,
		l:      l,
	}
}

// TTL is the fixed hold duration granted to every reservation.
func (m *Manager) TTL() time.Duration {
	return m.ttl
}

// Reserve validates the batch against the store and on success grants the
// hold: pending picks are cleared, the batch becomes held, and a single
// expiry timer is armed. The session lock is held across the gateway call
// so no other operation can observe or mutate this session's reservation
// state between the store's confirmation and the local update.
func (m *Manager) Reserve(ctx context.Context, sessionID string, seatIDs []int64) ([]int64, time.Duration, error) {
	seatIDs = dedupe(seatIDs)
	if len(seatIDs) == 0 {
		return nil, 0, errors.ErrEmptySelection
	}

	ss, err := m.reg.Get(sessionID)
	if err != nil {
		return nil, 0, err
	}

	ss.Lock()
	defer ss.Unlock()

	// A fresh grant replaces any prior hold, but only once the old batch
	// is confirmed released; the store would otherwise keep stale seats
	// in reserved status forever.
	if ss.HasHold() {
		if err := m.releaseHeldLocked(ctx, ss, "replaced"); err != nil {
			return nil, 0, fmt.Errorf("%w: %v", errors.ErrReservationFailed, err)
		}
	}

	if err := m.gw.ReserveSeats(ctx, seatIDs); err != nil {
		if stderrors.Is(err, store.ErrConflict) {
			return nil, 0, errors.ErrSeatsUnavailable
		}
		m.l.Errorf(ctx, "reservation.Manager.Reserve: %v", err)
		return nil, 0, fmt.Errorf("%w: %v", errors.ErrReservationFailed, err)
	}

	now := time.Now()
	ss.ClearPending()
	ss.HeldSeatIDs = seatIDs
	ss.ReservedAt = &now
	ss.HoldGeneration++
	gen := ss.HoldGeneration
	eventID := ss.EventID

	m.timers.Arm(sessionID, m.ttl, func(id string) { m.expire(id, gen) })

	m.fan.ToAll(models.ServerMessage{
		Name: models.MsgSeatsUpdated,
		Data: models.SeatsUpdatedPayload{SeatIDs: seatIDs, Status: models.SeatStatusReserved},
	})

	m.l.Infof(ctx, "Session %s reserved %d seat(s) for event %s, expires in %s",
		sessionID, len(seatIDs), eventID, m.ttl)

	if m.prod != nil {
		if err := m.prod.PublishSeatsReserved(ctx, kafka.SeatsReservedEvent{
			SessionID: sessionID,
			EventID:   eventID,
			SeatIDs:   seatIDs,
			ExpiresAt: now.Add(m.ttl),
		}); err != nil {
			m.l.Errorf(ctx, "reservation.Manager.Reserve: publish: %v", err)
		}
	}

	return seatIDs, m.ttl, nil
}

// Buy finalizes the held batch through the store. On success the expiry
// timer is canceled and the hold cleared; on failure the hold remains
// until it expires naturally or the purchase is retried.
func (m *Manager) Buy(ctx context.Context, sessionID string) ([]int64, error) {
	ss, err := m.reg.Get(sessionID)
	if err != nil {
		return nil, err
	}

	ss.Lock()
	defer ss.Unlock()

	if !ss.HasHold() {
		return nil, errors.ErrNoHeldReservation
	}

	seats := append([]int64(nil), ss.HeldSeatIDs...)
	if err := m.gw.BuySeats(ctx, seats); err != nil {
		m.l.Errorf(ctx, "reservation.Manager.Buy: %v", err)
		return nil, fmt.Errorf("%w: %v", errors.ErrPurchaseFailed, err)
	}

	m.timers.Cancel(sessionID)
	ss.HeldSeatIDs = nil
	ss.ReservedAt = nil
	eventID := ss.EventID

	m.fan.ToAll(models.ServerMessage{
		Name: models.MsgSeatsUpdated,
		Data: models.SeatsUpdatedPayload{SeatIDs: seats, Status: models.SeatStatusSold},
	})

	m.l.Infof(ctx, "Session %s bought %d seat(s) for event %s", sessionID, len(seats), eventID)

	if m.prod != nil {
		if err := m.prod.PublishSeatsSold(ctx, kafka.SeatsSoldEvent{
			SessionID: sessionID,
			EventID:   eventID,
			SeatIDs:   seats,
		}); err != nil {
			m.l.Errorf(ctx, "reservation.Manager.Buy: publish: %v", err)
		}
	}

	return seats, nil
}

// expire is the timer callback for the grant identified by gen. A
// purchase that completed first has already cleared the hold; a
// re-reservation has bumped the generation. Either way this must no-op:
// canceling a timer cannot reach a callback that has already started
// and is waiting on the session lock, so the callback itself has to
// prove it still acts on the batch it was armed for.
func (m *Manager) expire(sessionID string, gen uint64) {
	ctx := context.Background()

	ss, err := m.reg.Get(sessionID)
	if err != nil {
		return
	}

	ss.Lock()
	defer ss.Unlock()

	if !ss.HasHold() || ss.HoldGeneration != gen {
		return
	}

	seats := append([]int64(nil), ss.HeldSeatIDs...)
	if err := m.gw.ReleaseSeats(ctx, seats); err != nil {
		if !stderrors.Is(err, store.ErrConflict) {
			// Transport failure: keep the hold and retry later rather
			// than let the store keep seats reserved that we no longer
			// track.
			m.l.Errorf(ctx, "reservation.Manager.expire: release failed, retrying in %s: %v", m.retry, err)
			m.timers.Arm(sessionID, m.retry, func(id string) { m.expire(id, gen) })
			return
		}
		// Conflict: the store no longer has this batch reserved, so a
		// retry can never succeed. Drop the local hold.
		m.l.Warnf(ctx, "reservation.Manager.expire: store rejected release, dropping hold: %v", err)
	}

	ss.HeldSeatIDs = nil
	ss.ReservedAt = nil
	eventID := ss.EventID

	m.fan.ToAll(models.ServerMessage{
		Name: models.MsgSeatsUpdated,
		Data: models.SeatsUpdatedPayload{SeatIDs: seats, Status: models.SeatStatusAvailable},
	})
	m.fan.ToSession(sessionID, models.ServerMessage{
		Name: models.MsgReservationExpired,
		Data: models.ReservationExpiredPayload{SeatIDs: seats, Message: "Your seat reservation has expired"},
	})

	m.l.Infof(ctx, "Reservation expired for session %s, released %d seat(s)", sessionID, len(seats))

	if m.prod != nil {
		if err := m.prod.PublishSeatsReleased(ctx, kafka.SeatsReleasedEvent{
			SessionID: sessionID,
			EventID:   eventID,
			SeatIDs:   seats,
			Reason:    "expired",
		}); err != nil {
			m.l.Errorf(ctx, "reservation.Manager.expire: publish: %v", err)
		}
	}
}

// HandleDisconnect runs the full cleanup sequence for a closed
// connection: release the held batch, then evict the session from its
// room or queue, then destroy the record. The order matters so no other
// session observes an intermediate state.
func (m *Manager) HandleDisconnect(ctx context.Context, sessionID string) {
	m.timers.Cancel(sessionID)

	if ss, err := m.reg.Get(sessionID); err == nil {
		ss.Lock()
		if ss.HasHold() {
			if err := m.releaseHeldLocked(ctx, ss, "disconnected"); err != nil {
				// The session is going away regardless. Retry the
				// release once in the background; beyond that the seats
				// stay reserved downstream until the store expires them.
				seats := append([]int64(nil), ss.HeldSeatIDs...)
				m.l.Errorf(ctx, "reservation.Manager.HandleDisconnect: release failed: %v", err)
				m.scheduleOrphanRelease(seats)
			}
		}
		ss.Unlock()
	}

	m.rooms.Leave(ctx, sessionID, "disconnected")
	m.reg.Destroy(ctx, sessionID)
}

// releaseHeldLocked releases the session's held batch through the store
// and, on confirmation, clears the hold and broadcasts the seats as
// available again. Callers hold the session lock.
func (m *Manager) releaseHeldLocked(ctx context.Context, ss *models.Session, reason string) error {
	seats := append([]int64(nil), ss.HeldSeatIDs...)

	if err := m.gw.ReleaseSeats(ctx, seats); err != nil && !stderrors.Is(err, store.ErrConflict) {
		return err
	}

	m.timers.Cancel(ss.ID)
	ss.HeldSeatIDs = nil
	ss.ReservedAt = nil

	m.fan.ToAll(models.ServerMessage{
		Name: models.MsgSeatsUpdated,
		Data: models.SeatsUpdatedPayload{SeatIDs: seats, Status: models.SeatStatusAvailable},
	})

	if m.prod != nil {
		if err := m.prod.PublishSeatsReleased(ctx, kafka.SeatsReleasedEvent{
			SessionID: ss.ID,
			EventID:   ss.EventID,
			SeatIDs:   seats,
			Reason:    reason,
		}); err != nil {
			m.l.Errorf(ctx, "reservation.Manager.releaseHeldLocked: publish: %v", err)
		}
	}

	return nil
}

// scheduleOrphanRelease retries a release whose session is already gone.
// One delayed attempt; after that the store's own hygiene has to pick the
// seats up.
func (m *Manager) scheduleOrphanRelease(seats []int64) {
	time.AfterFunc(m.retry, func() {
		ctx := context.Background()
		if err := m.gw.ReleaseSeats(ctx, seats); err != nil {
			m.l.Errorf(ctx, "reservation.Manager.scheduleOrphanRelease: %v", err)
			return
		}
		m.fan.ToAll(models.ServerMessage{
			Name: models.MsgSeatsUpdated,
			Data: models.SeatsUpdatedPayload{SeatIDs: seats, Status: models.SeatStatusAvailable},
		})
	})
}

func dedupe(seatIDs []int64) []int64 {
	seen := make(map[int64]struct{}, len(seatIDs))
	out := make([]int64, 0, len(seatIDs))
	for _, id := range seatIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
