package kafka

import "time"

const (
	TopicQueueJoined   = "queue.joined"
	TopicQueuePromoted = "queue.promoted"
	TopicQueueLeft     = "queue.left"

	TopicSeatsReserved = "seats.reserved"
	TopicSeatsSold     = "seats.sold"
	TopicSeatsReleased = "seats.released"
)

type QueueJoinedEvent struct {
	SessionID string    `json:"session_id"`
	EventID   string    `json:"event_id"`
	Position  int       `json:"position"`
	Timestamp time.Time `json:"timestamp"`
}

type QueuePromotedEvent struct {
	SessionID string    `json:"session_id"`
	EventID   string    `json:"event_id"`
	Timestamp time.Time `json:"timestamp"`
}

type QueueLeftEvent struct {
	SessionID string    `json:"session_id"`
	EventID   string    `json:"event_id"`
	Reason    string    `json:"reason"` // user_left, disconnected
	Timestamp time.Time `json:"timestamp"`
}

type SeatsReservedEvent struct {
	SessionID string    `json:"session_id"`
	EventID   string    `json:"event_id"`
	SeatIDs   []int64   `json:"seat_ids"`
	ExpiresAt time.Time `json:"expires_at"`
	Timestamp time.Time `json:"timestamp"`
}

type SeatsSoldEvent struct {
	SessionID string    `json:"session_id"`
	EventID   string    `json:"event_id"`
	SeatIDs   []int64   `json:"seat_ids"`
	Timestamp time.Time `json:"timestamp"`
}

type SeatsReleasedEvent struct {
	SessionID string    `json:"session_id"`
	EventID   string    `json:"event_id"`
	SeatIDs   []int64   `json:"seat_ids"`
	Reason    string    `json:"reason"` // expired, disconnected, replaced
	Timestamp time.Time `json:"timestamp"`
}
