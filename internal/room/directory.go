// Package room owns event rooms and their admission queues. The capacity
// invariant (never more active sessions than room capacity) and the FIFO
// promotion order are enforced here and nowhere else: no other component
// mutates room membership or queue order.
package room

import (
	"context"
	stderrors "errors"
	"sort"
	"sync"

	kafka "github.com/openvenue/seatfloor/internal/delivery/kafka"
	"github.com/openvenue/seatfloor/internal/errors"
	"github.com/openvenue/seatfloor/internal/models"
	"github.com/openvenue/seatfloor/internal/store"
	"github.com/openvenue/seatfloor/pkg/logger"
)

// Fanout is the subset of broadcast operations the directory drives.
type Fanout interface {
	JoinRoom(eventID, sessionID string)
	LeaveRoom(eventID, sessionID string)
	JoinQueue(eventID, sessionID string)
	LeaveQueue(eventID, sessionID string)
	ToRoom(eventID string, msg models.ServerMessage)
	ToSession(sessionID string, msg models.ServerMessage)
}

// EventChecker validates event existence against the external store.
type EventChecker interface {
	GetEvent(ctx context.Context, id string) (*store.Event, error)
}

type eventRoom struct {
	capacity int
	active   map[string]struct{}
}

// EnterOutput is the outcome of an admission attempt.
type EnterOutput struct {
	EventID          string
	Admitted         bool
	Position         int      // 1-based, set when queued
	ActiveSessionIDs []string // set when admitted
}

// Directory is the per-event record of capacity, admitted sessions and
// waiting lines. A single mutex guards rooms and queues together so that
// admission, leave and promotion are one critical section; promoting into
// a full room is structurally impossible.
type Directory struct {
	mu      sync.Mutex
	rooms   map[string]*eventRoom
	queues  map[string][]string // FIFO, insertion order is promotion order
	active  map[string]string   // sessionID -> eventID
	waiting map[string]string   // sessionID -> eventID

	defaultCap int
	fan        Fanout
	events     EventChecker
	prod       kafka.Producer
	l          logger.Logger
}

func NewDirectory(defaultCap int, fan Fanout, events EventChecker, prod kafka.Producer, l logger.Logger) *Directory {
	return &Directory{
		rooms:      make(map[string]*eventRoom),
		queues:     make(map[string][]string),
		active:     make(map[string]string),
		waiting:    make(map[string]string),
		defaultCap: defaultCap,
		fan:        fan,
		events:     events,
		prod:       prod,
		l:          l,
	}
}

// EnsureRoom creates an empty room with the default capacity if the event
// is not yet known. Live membership of an existing room is never touched.
func (d *Directory) EnsureRoom(eventID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ensureRoomLocked(eventID)
}

func (d *Directory) ensureRoomLocked(eventID string) *eventRoom {
	if r, ok := d.rooms[eventID]; ok {
		return r
	}
	r := &eventRoom{
		capacity: d.defaultCap,
		active:   make(map[string]struct{}),
	}
	d.rooms[eventID] = r
	return r
}

// AdmitOrQueue admits the session into the event's room if capacity
// allows, otherwise appends it to the wait queue. Re-entering the room or
// queue the session is already in is a no-op that reports the current
// state again.
func (d *Directory) AdmitOrQueue(ctx context.Context, sessionID, eventID string) (*EnterOutput, error) {
	d.mu.Lock()

	if cur, ok := d.active[sessionID]; ok {
		if cur == eventID {
			out := &EnterOutput{
				EventID:          eventID,
				Admitted:         true,
				ActiveSessionIDs: d.activeIDsLocked(eventID),
			}
			d.mu.Unlock()
			return out, nil
		}
		d.mu.Unlock()
		return nil, errors.ErrAlreadyInRoom
	}
	if cur, ok := d.waiting[sessionID]; ok {
		if cur == eventID {
			out := &EnterOutput{
				EventID:  eventID,
				Position: d.positionLocked(eventID, sessionID),
			}
			d.mu.Unlock()
			return out, nil
		}
		d.mu.Unlock()
		return nil, errors.ErrAlreadyInRoom
	}

	r, ok := d.rooms[eventID]
	if !ok {
		// Unknown event: validate against the store before creating the
		// room lazily. The gateway round trip must not block the lock.
		d.mu.Unlock()
		if _, err := d.events.GetEvent(ctx, eventID); err != nil {
			if stderrors.Is(err, store.ErrNotFound) {
				return nil, errors.ErrEventNotFound
			}
			return nil, err
		}
		d.mu.Lock()
		r = d.ensureRoomLocked(eventID)
	}

	if len(r.active) < r.capacity {
		r.active[sessionID] = struct{}{}
		d.active[sessionID] = eventID
		d.fan.JoinRoom(eventID, sessionID)

		snapshot := d.activeIDsLocked(eventID)
		d.fan.ToRoom(eventID, models.ServerMessage{
			Name: models.MsgUserJoinedEvent,
			Data: models.RoomMembershipPayload{EventID: eventID, ActiveSessionIDs: snapshot},
		})
		d.mu.Unlock()

		d.l.Infof(ctx, "Session %s admitted to event %s (%d/%d active)",
			sessionID, eventID, len(snapshot), r.capacity)

		return &EnterOutput{EventID: eventID, Admitted: true, ActiveSessionIDs: snapshot}, nil
	}

	d.queues[eventID] = append(d.queues[eventID], sessionID)
	d.waiting[sessionID] = eventID
	d.fan.JoinQueue(eventID, sessionID)
	pos := len(d.queues[eventID])
	d.mu.Unlock()

	d.l.Infof(ctx, "Session %s queued for event %s at position %d", sessionID, eventID, pos)

	if d.prod != nil {
		if err := d.prod.PublishQueueJoined(ctx, kafka.QueueJoinedEvent{
			SessionID: sessionID,
			EventID:   eventID,
			Position:  pos,
		}); err != nil {
			d.l.Errorf(ctx, "room.Directory.AdmitOrQueue: publish queue joined: %v", err)
		}
	}

	return &EnterOutput{EventID: eventID, Position: pos}, nil
}

// Leave removes the session from its room or wait queue. Leaving a room
// triggers promotion of waiting sessions; leaving a queue renumbers the
// remaining waiters. A session that is neither active nor waiting is a
// no-op. The departed event id is returned when something changed.
func (d *Directory) Leave(ctx context.Context, sessionID, reason string) (string, bool) {
	d.mu.Lock()

	if eventID, ok := d.active[sessionID]; ok {
		r := d.rooms[eventID]
		delete(r.active, sessionID)
		delete(d.active, sessionID)
		d.fan.LeaveRoom(eventID, sessionID)

		d.fan.ToRoom(eventID, models.ServerMessage{
			Name: models.MsgUserLeftEvent,
			Data: models.RoomMembershipPayload{EventID: eventID, ActiveSessionIDs: d.activeIDsLocked(eventID)},
		})

		promoted := d.promoteLocked(eventID)
		d.mu.Unlock()

		d.l.Infof(ctx, "Session %s left event %s (%s), promoted %d waiter(s)",
			sessionID, eventID, reason, len(promoted))

		if d.prod != nil {
			for _, id := range promoted {
				if err := d.prod.PublishQueuePromoted(ctx, kafka.QueuePromotedEvent{
					SessionID: id,
					EventID:   eventID,
				}); err != nil {
					d.l.Errorf(ctx, "room.Directory.Leave: publish queue promoted: %v", err)
				}
			}
		}

		return eventID, true
	}

	if eventID, ok := d.waiting[sessionID]; ok {
		d.removeWaiterLocked(eventID, sessionID)
		d.fan.LeaveQueue(eventID, sessionID)
		d.notifyPositionsLocked(eventID)
		d.mu.Unlock()

		d.l.Infof(ctx, "Session %s left queue for event %s (%s)", sessionID, eventID, reason)

		if d.prod != nil {
			if err := d.prod.PublishQueueLeft(ctx, kafka.QueueLeftEvent{
				SessionID: sessionID,
				EventID:   eventID,
				Reason:    reason,
			}); err != nil {
				d.l.Errorf(ctx, "room.Directory.Leave: publish queue left: %v", err)
			}
		}

		return eventID, true
	}

	d.mu.Unlock()
	return "", false
}

// PromoteNext fills spare room capacity from the head of the event's wait
// queue. Promotion is only ever triggered by departures: seat releases do
// not free room slots, room slots are about presence, not seat holds.
func (d *Directory) PromoteNext(ctx context.Context, eventID string) {
	d.mu.Lock()
	promoted := d.promoteLocked(eventID)
	d.mu.Unlock()

	if d.prod != nil {
		for _, id := range promoted {
			if err := d.prod.PublishQueuePromoted(ctx, kafka.QueuePromotedEvent{
				SessionID: id,
				EventID:   eventID,
			}); err != nil {
				d.l.Errorf(ctx, "room.Directory.PromoteNext: publish queue promoted: %v", err)
			}
		}
	}
}

// promoteLocked pops queue heads in strict FIFO order while the room has
// spare capacity, then renumbers the remaining waiters. The queue is
// deleted once drained. Callers hold d.mu.
func (d *Directory) promoteLocked(eventID string) []string {
	r, ok := d.rooms[eventID]
	if !ok {
		return nil
	}

	var promoted []string
	queue := d.queues[eventID]
	for len(queue) > 0 && len(r.active) < r.capacity {
		head := queue[0]
		queue = queue[1:]
		delete(d.waiting, head)

		r.active[head] = struct{}{}
		d.active[head] = eventID
		d.fan.LeaveQueue(eventID, head)
		d.fan.JoinRoom(eventID, head)

		d.fan.ToSession(head, models.ServerMessage{
			Name: models.MsgQueuePromoted,
			Data: models.QueuePromotedPayload{EventID: eventID},
		})
		d.fan.ToRoom(eventID, models.ServerMessage{
			Name: models.MsgUserJoinedEvent,
			Data: models.RoomMembershipPayload{EventID: eventID, ActiveSessionIDs: d.activeIDsLocked(eventID)},
		})

		promoted = append(promoted, head)
	}

	if len(queue) == 0 {
		delete(d.queues, eventID)
	} else {
		d.queues[eventID] = queue
		if len(promoted) > 0 {
			d.notifyPositionsLocked(eventID)
		}
	}

	return promoted
}

func (d *Directory) removeWaiterLocked(eventID, sessionID string) {
	queue := d.queues[eventID]
	for i, id := range queue {
		if id == sessionID {
			queue = append(queue[:i], queue[i+1:]...)
			break
		}
	}
	delete(d.waiting, sessionID)

	if len(queue) == 0 {
		delete(d.queues, eventID)
	} else {
		d.queues[eventID] = queue
	}
}

func (d *Directory) notifyPositionsLocked(eventID string) {
	for i, id := range d.queues[eventID] {
		d.fan.ToSession(id, models.ServerMessage{
			Name: models.MsgQueuePositionUpdate,
			Data: models.QueuePositionPayload{EventID: eventID, Position: i + 1},
		})
	}
}

func (d *Directory) positionLocked(eventID, sessionID string) int {
	for i, id := range d.queues[eventID] {
		if id == sessionID {
			return i + 1
		}
	}
	return 0
}

func (d *Directory) activeIDsLocked(eventID string) []string {
	r, ok := d.rooms[eventID]
	if !ok {
		return nil
	}
	ids := make([]string, 0, len(r.active))
	for id := range r.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// ActiveSessions returns a sorted snapshot of the event room's members.
func (d *Directory) ActiveSessions(eventID string) []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.activeIDsLocked(eventID)
}

// CurrentEvent reports the room the session is active in, if any.
func (d *Directory) CurrentEvent(sessionID string) (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	eventID, ok := d.active[sessionID]
	return eventID, ok
}

// QueueLength reports the number of waiters for the event; the queue is
// deleted the moment it empties, so zero also means "no queue".
func (d *Directory) QueueLength(eventID string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.queues[eventID])
}

// RoomCount reports how many rooms the directory holds.
func (d *Directory) RoomCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.rooms)
}
