package models

import "encoding/json"

// Wire protocol: every frame is {"name": "...", "data": {...}}.

// Client -> server message names.
const (
	MsgEnterEvent   = "enterEvent"
	MsgLeaveEvent   = "leaveEvent"
	MsgSelectSeat   = "selectSeat"
	MsgRemoveSeat   = "removeSeat"
	MsgReserveSeats = "reserveSeats"
	MsgBuySeats     = "buySeats"
)

// Server -> client message names.
const (
	MsgEnterEventSuccess   = "enterEventSuccess"
	MsgEnterEventError     = "enterEventError"
	MsgEnterQueue          = "enterQueue"
	MsgQueuePositionUpdate = "queuePositionUpdate"
	MsgQueuePromoted       = "queuePromoted"
	MsgUserJoinedEvent     = "userJoinedEvent"
	MsgUserLeftEvent       = "userLeftEvent"
	MsgSeatsUpdated        = "seatsUpdated"
	MsgReserveSuccess      = "reserveSuccess"
	MsgReserveError        = "reserveError"
	MsgBuySuccess          = "buySuccess"
	MsgBuyError            = "buyError"
	MsgReservationExpired  = "reservationExpired"
)

type ClientMessage struct {
	Name string          `json:"name"`
	Data json.RawMessage `json:"data"`
}

type ServerMessage struct {
	Name string `json:"name"`
	Data any    `json:"data"`
}

type EnterEventPayload struct {
	EventID string `json:"eventId"`
}

type SeatPayload struct {
	SeatID int64 `json:"seatId"`
}

type ReserveSeatsPayload struct {
	SeatIDs []int64 `json:"seatIds"`
}

type EnterEventSuccessPayload struct {
	EventID          string   `json:"eventId"`
	ActiveSessionIDs []string `json:"activeSessionIds"`
}

type EnterQueuePayload struct {
	EventID  string `json:"eventId"`
	Position int    `json:"position"`
}

type QueuePositionPayload struct {
	EventID  string `json:"eventId"`
	Position int    `json:"position"`
}

type QueuePromotedPayload struct {
	EventID string `json:"eventId"`
}

type RoomMembershipPayload struct {
	EventID          string   `json:"eventId"`
	ActiveSessionIDs []string `json:"activeSessionIds"`
}

type SeatsUpdatedPayload struct {
	SeatIDs []int64    `json:"seatIds"`
	Status  SeatStatus `json:"status"`
}

type ReserveSuccessPayload struct {
	SeatIDs     []int64 `json:"seatIds"`
	ExpiresInMs int64   `json:"expiresInMs"`
}

type BuySuccessPayload struct {
	SeatIDs []int64 `json:"seatIds"`
}

type ReservationExpiredPayload struct {
	SeatIDs []int64 `json:"seatIds"`
	Message string  `json:"message"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
