package ws

import (
	"context"
	"encoding/json"
	stderrors "errors"

	"github.com/openvenue/seatfloor/internal/errors"
	"github.com/openvenue/seatfloor/internal/models"
)

func (s *Server) dispatch(ctx context.Context, ss *models.Session, msg models.ClientMessage) {
	switch msg.Name {
	case models.MsgEnterEvent:
		s.handleEnterEvent(ctx, ss, msg.Data)
	case models.MsgLeaveEvent:
		s.handleLeaveEvent(ctx, ss)
	case models.MsgSelectSeat:
		s.handleSelectSeat(ctx, ss, msg.Data)
	case models.MsgRemoveSeat:
		s.handleRemoveSeat(ctx, ss, msg.Data)
	case models.MsgReserveSeats:
		s.handleReserveSeats(ctx, ss, msg.Data)
	case models.MsgBuySeats:
		s.handleBuySeats(ctx, ss)
	default:
		s.l.Debugf(ctx, "ws.Server.dispatch: %s: unknown message %q", ss.ID, msg.Name)
	}
}

func (s *Server) handleEnterEvent(ctx context.Context, ss *models.Session, data json.RawMessage) {
	var p models.EnterEventPayload
	if err := json.Unmarshal(data, &p); err != nil || p.EventID == "" {
		s.sendError(ss.ID, models.MsgEnterEventError, "eventId is required")
		return
	}

	// Moving between events implies leaving the current one first.
	ss.Lock()
	current := ss.EventID
	ss.Unlock()
	if current != "" && current != p.EventID {
		s.rooms.Leave(ctx, ss.ID, "switched_event")
		ss.Lock()
		ss.EventID = ""
		ss.ClearPending()
		ss.Unlock()
	}

	out, err := s.rooms.AdmitOrQueue(ctx, ss.ID, p.EventID)
	if err != nil {
		switch {
		case stderrors.Is(err, errors.ErrEventNotFound):
			s.sendError(ss.ID, models.MsgEnterEventError, "Event not found")
		default:
			s.l.Errorf(ctx, "ws.Server.handleEnterEvent: %v", err)
			s.sendError(ss.ID, models.MsgEnterEventError, "Unable to enter event, please try again")
		}
		return
	}

	ss.Lock()
	ss.EventID = p.EventID
	ss.Unlock()

	if out.Admitted {
		s.fan.ToSession(ss.ID, models.ServerMessage{
			Name: models.MsgEnterEventSuccess,
			Data: models.EnterEventSuccessPayload{
				EventID:          out.EventID,
				ActiveSessionIDs: out.ActiveSessionIDs,
			},
		})
		return
	}

	s.fan.ToSession(ss.ID, models.ServerMessage{
		Name: models.MsgEnterQueue,
		Data: models.EnterQueuePayload{EventID: out.EventID, Position: out.Position},
	})
}

func (s *Server) handleLeaveEvent(ctx context.Context, ss *models.Session) {
	s.rooms.Leave(ctx, ss.ID, "user_left")

	ss.Lock()
	ss.EventID = ""
	ss.ClearPending()
	ss.Unlock()
}

func (s *Server) handleSelectSeat(ctx context.Context, ss *models.Session, data json.RawMessage) {
	var p models.SeatPayload
	if err := json.Unmarshal(data, &p); err != nil {
		s.l.Warnf(ctx, "ws.Server.handleSelectSeat: %s: %v", ss.ID, err)
		return
	}

	if err := s.reg.AddPendingSeat(ss.ID, p.SeatID); err != nil {
		s.l.Warnf(ctx, "ws.Server.handleSelectSeat: %v", err)
	}
}

func (s *Server) handleRemoveSeat(ctx context.Context, ss *models.Session, data json.RawMessage) {
	var p models.SeatPayload
	if err := json.Unmarshal(data, &p); err != nil {
		s.l.Warnf(ctx, "ws.Server.handleRemoveSeat: %s: %v", ss.ID, err)
		return
	}

	if err := s.reg.RemovePendingSeat(ss.ID, p.SeatID); err != nil {
		s.l.Warnf(ctx, "ws.Server.handleRemoveSeat: %v", err)
	}
}

func (s *Server) handleReserveSeats(ctx context.Context, ss *models.Session, data json.RawMessage) {
	var p models.ReserveSeatsPayload
	if err := json.Unmarshal(data, &p); err != nil {
		s.sendError(ss.ID, models.MsgReserveError, "seatIds are required")
		return
	}

	seats, ttl, err := s.resv.Reserve(ctx, ss.ID, p.SeatIDs)
	if err != nil {
		switch {
		case stderrors.Is(err, errors.ErrEmptySelection):
			s.sendError(ss.ID, models.MsgReserveError, "No seats selected")
		case stderrors.Is(err, errors.ErrSeatsUnavailable):
			s.sendError(ss.ID, models.MsgReserveError, "Some seats are no longer available")
		default:
			s.l.Errorf(ctx, "ws.Server.handleReserveSeats: %v", err)
			s.sendError(ss.ID, models.MsgReserveError, "Reservation failed, please try again")
		}
		return
	}

	s.fan.ToSession(ss.ID, models.ServerMessage{
		Name: models.MsgReserveSuccess,
		Data: models.ReserveSuccessPayload{SeatIDs: seats, ExpiresInMs: ttl.Milliseconds()},
	})
}

func (s *Server) handleBuySeats(ctx context.Context, ss *models.Session) {
	seats, err := s.resv.Buy(ctx, ss.ID)
	if err != nil {
		switch {
		case stderrors.Is(err, errors.ErrNoHeldReservation):
			s.sendError(ss.ID, models.MsgBuyError, "No reservation to purchase")
		default:
			s.l.Errorf(ctx, "ws.Server.handleBuySeats: %v", err)
			s.sendError(ss.ID, models.MsgBuyError, "Purchase failed, please try again")
		}
		return
	}

	s.fan.ToSession(ss.ID, models.ServerMessage{
		Name: models.MsgBuySuccess,
		Data: models.BuySuccessPayload{SeatIDs: seats},
	})
}

func (s *Server) sendError(sessionID, name, message string) {
	s.fan.ToSession(sessionID, models.ServerMessage{
		Name: name,
		Data: models.ErrorPayload{Message: message},
	})
}
