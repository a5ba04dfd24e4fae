package fanout

import (
	"sync"

	"github.com/openvenue/seatfloor/internal/models"
)

// Sink is the delivery end of one connected session. Implementations must
// not block: the websocket client buffers outbound frames and drops the
// connection itself when the buffer overflows.
type Sink interface {
	Send(msg models.ServerMessage)
}

// Fanout routes server messages to connected sessions through two levels of
// addressing per event: the room channel (admitted sessions) and the queue
// channel (waiting sessions). Membership is maintained exclusively by the
// room directory; the websocket layer only registers and unregisters sinks.
type Fanout struct {
	mu     sync.RWMutex
	sinks  map[string]Sink
	rooms  map[string]map[string]struct{}
	queues map[string]map[string]struct{}
}

func New() *Fanout {
	return &Fanout{
		sinks:  make(map[string]Sink),
		rooms:  make(map[string]map[string]struct{}),
		queues: make(map[string]map[string]struct{}),
	}
}

func (f *Fanout) Register(sessionID string, sink Sink) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinks[sessionID] = sink
}

func (f *Fanout) Unregister(sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sinks, sessionID)
}

func (f *Fanout) JoinRoom(eventID, sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.rooms[eventID]; !ok {
		f.rooms[eventID] = make(map[string]struct{})
	}
	f.rooms[eventID][sessionID] = struct{}{}
}

func (f *Fanout) LeaveRoom(eventID, sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	members, ok := f.rooms[eventID]
	if !ok {
		return
	}
	delete(members, sessionID)
	if len(members) == 0 {
		delete(f.rooms, eventID)
	}
}

func (f *Fanout) JoinQueue(eventID, sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.queues[eventID]; !ok {
		f.queues[eventID] = make(map[string]struct{})
	}
	f.queues[eventID][sessionID] = struct{}{}
}

func (f *Fanout) LeaveQueue(eventID, sessionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	waiters, ok := f.queues[eventID]
	if !ok {
		return
	}
	delete(waiters, sessionID)
	if len(waiters) == 0 {
		delete(f.queues, eventID)
	}
}

// ToRoom delivers to every session currently admitted to the event's room.
func (f *Fanout) ToRoom(eventID string, msg models.ServerMessage) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for id := range f.rooms[eventID] {
		if sink, ok := f.sinks[id]; ok {
			sink.Send(msg)
		}
	}
}

// ToQueue delivers to every session waiting on the event's queue.
func (f *Fanout) ToQueue(eventID string, msg models.ServerMessage) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for id := range f.queues[eventID] {
		if sink, ok := f.sinks[id]; ok {
			sink.Send(msg)
		}
	}
}

func (f *Fanout) ToSession(sessionID string, msg models.ServerMessage) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	if sink, ok := f.sinks[sessionID]; ok {
		sink.Send(msg)
	}
}

// ToAll delivers to every connected session regardless of admission state.
// Seat status is public: anyone viewing an event's seat map sees updates.
func (f *Fanout) ToAll(msg models.ServerMessage) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	for _, sink := range f.sinks {
		sink.Send(msg)
	}
}
