package ws

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openvenue/seatfloor/config"
	"github.com/openvenue/seatfloor/internal/fanout"
	"github.com/openvenue/seatfloor/internal/models"
	"github.com/openvenue/seatfloor/internal/registry"
	"github.com/openvenue/seatfloor/internal/reservation"
	"github.com/openvenue/seatfloor/internal/room"
	"github.com/openvenue/seatfloor/internal/store"
	"github.com/openvenue/seatfloor/pkg/logger"
)

// fakeSeatStore mimics the external store's REST surface: one event,
// per-seat status transitions with all-or-nothing batches.
type fakeSeatStore struct {
	mu    sync.Mutex
	seats map[int64]models.SeatStatus
}

func newFakeSeatStore() *fakeSeatStore {
	return &fakeSeatStore{seats: make(map[int64]models.SeatStatus)}
}

func (s *fakeSeatStore) status(id int64) models.SeatStatus {
	if st, ok := s.seats[id]; ok {
		return st
	}
	return models.SeatStatusAvailable
}

func (s *fakeSeatStore) transition(w http.ResponseWriter, r *http.Request, from, to models.SeatStatus) {
	var body struct {
		SeatIDs []int64 `json:"seat_ids"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, id := range body.SeatIDs {
		if s.status(id) != from {
			w.WriteHeader(http.StatusUnprocessableEntity)
			json.NewEncoder(w).Encode(map[string]string{"error": "seat is not " + string(from)})
			return
		}
	}
	for _, id := range body.SeatIDs {
		s.seats[id] = to
	}
	w.WriteHeader(http.StatusOK)
}

func (s *fakeSeatStore) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /event", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"id":1,"title":"Concert","seats_count":50}]}`))
	})
	mux.HandleFunc("GET /event/1", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":{"id":1,"title":"Concert","seats_count":50}}`))
	})
	mux.HandleFunc("GET /event/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	mux.HandleFunc("POST /seats/reserve", func(w http.ResponseWriter, r *http.Request) {
		s.transition(w, r, models.SeatStatusAvailable, models.SeatStatusReserved)
	})
	mux.HandleFunc("POST /seats/buy", func(w http.ResponseWriter, r *http.Request) {
		s.transition(w, r, models.SeatStatusReserved, models.SeatStatusSold)
	})
	mux.HandleFunc("POST /seats/release", func(w http.ResponseWriter, r *http.Request) {
		s.transition(w, r, models.SeatStatusReserved, models.SeatStatusAvailable)
	})
	return mux
}

func newTestStack(t *testing.T, capacity int) (*httptest.Server, *fakeSeatStore) {
	t.Helper()

	seatStore := newFakeSeatStore()
	storeSrv := httptest.NewServer(seatStore.handler())
	t.Cleanup(storeSrv.Close)

	l := logger.InitializeTestZapLogger()
	storeCli := store.NewClient(config.StoreConfig{
		BaseURL: storeSrv.URL,
		Timeout: time.Second,
	}, l)

	fan := fanout.New()
	reg := registry.New(l)
	rooms := room.NewDirectory(capacity, fan, storeCli, nil, l)
	resv := reservation.NewManager(reg, storeCli, fan, rooms, nil, 5*time.Minute, time.Minute, l)

	srv := httptest.NewServer(NewServer(reg, rooms, resv, fan, l))
	t.Cleanup(srv.Close)

	return srv, seatStore
}

func dialWS(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func sendMsg(t *testing.T, conn *websocket.Conn, name string, data any) {
	t.Helper()
	payload, err := json.Marshal(data)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(models.ClientMessage{Name: name, Data: payload}))
}

// readUntil discards frames until one with the wanted name arrives.
func readUntil(t *testing.T, conn *websocket.Conn, name string) json.RawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var f models.ClientMessage
		require.NoError(t, conn.ReadJSON(&f), "waiting for %q", name)
		if f.Name == name {
			return f.Data
		}
	}
}

func TestFullAdmissionAndPurchaseFlow(t *testing.T) {
	srv, seatStore := newTestStack(t, 2)

	// Two sessions fill the room.
	c1 := dialWS(t, srv)
	sendMsg(t, c1, models.MsgEnterEvent, models.EnterEventPayload{EventID: "1"})
	var enter models.EnterEventSuccessPayload
	require.NoError(t, json.Unmarshal(readUntil(t, c1, models.MsgEnterEventSuccess), &enter))
	assert.Equal(t, "1", enter.EventID)
	assert.Len(t, enter.ActiveSessionIDs, 1)

	c2 := dialWS(t, srv)
	sendMsg(t, c2, models.MsgEnterEvent, models.EnterEventPayload{EventID: "1"})
	require.NoError(t, json.Unmarshal(readUntil(t, c2, models.MsgEnterEventSuccess), &enter))
	assert.Len(t, enter.ActiveSessionIDs, 2)

	// The room is full: the third session waits at position 1.
	c3 := dialWS(t, srv)
	sendMsg(t, c3, models.MsgEnterEvent, models.EnterEventPayload{EventID: "1"})
	var queued models.EnterQueuePayload
	require.NoError(t, json.Unmarshal(readUntil(t, c3, models.MsgEnterQueue), &queued))
	assert.Equal(t, 1, queued.Position)

	// c2 reserves a batch; everyone connected sees the status change.
	sendMsg(t, c2, models.MsgSelectSeat, models.SeatPayload{SeatID: 7})
	sendMsg(t, c2, models.MsgSelectSeat, models.SeatPayload{SeatID: 8})
	sendMsg(t, c2, models.MsgReserveSeats, models.ReserveSeatsPayload{SeatIDs: []int64{7, 8}})

	var reserved models.ReserveSuccessPayload
	require.NoError(t, json.Unmarshal(readUntil(t, c2, models.MsgReserveSuccess), &reserved))
	assert.Equal(t, []int64{7, 8}, reserved.SeatIDs)
	assert.Equal(t, (5 * time.Minute).Milliseconds(), reserved.ExpiresInMs)

	var update models.SeatsUpdatedPayload
	require.NoError(t, json.Unmarshal(readUntil(t, c1, models.MsgSeatsUpdated), &update))
	assert.Equal(t, []int64{7, 8}, update.SeatIDs)
	assert.Equal(t, models.SeatStatusReserved, update.Status)

	// A competing reservation for an overlapping batch is refused whole.
	sendMsg(t, c1, models.MsgReserveSeats, models.ReserveSeatsPayload{SeatIDs: []int64{8, 9}})
	var errPayload models.ErrorPayload
	require.NoError(t, json.Unmarshal(readUntil(t, c1, models.MsgReserveError), &errPayload))
	assert.Equal(t, "Some seats are no longer available", errPayload.Message)
	seatStore.mu.Lock()
	assert.Equal(t, models.SeatStatusAvailable, seatStore.status(9))
	seatStore.mu.Unlock()

	// c2 buys. The batch is sold for good.
	sendMsg(t, c2, models.MsgBuySeats, struct{}{})
	var bought models.BuySuccessPayload
	require.NoError(t, json.Unmarshal(readUntil(t, c2, models.MsgBuySuccess), &bought))
	assert.Equal(t, []int64{7, 8}, bought.SeatIDs)

	require.NoError(t, json.Unmarshal(readUntil(t, c1, models.MsgSeatsUpdated), &update))
	assert.Equal(t, models.SeatStatusSold, update.Status)

	seatStore.mu.Lock()
	assert.Equal(t, models.SeatStatusSold, seatStore.status(7))
	assert.Equal(t, models.SeatStatusSold, seatStore.status(8))
	seatStore.mu.Unlock()

	// c1 disconnects; the freed slot promotes c3 from the queue.
	c1.Close()
	readUntil(t, c3, models.MsgQueuePromoted)
	require.NoError(t, json.Unmarshal(readUntil(t, c2, models.MsgUserJoinedEvent), &enter))
}

func TestEnterUnknownEvent(t *testing.T) {
	srv, _ := newTestStack(t, 2)

	c := dialWS(t, srv)
	sendMsg(t, c, models.MsgEnterEvent, models.EnterEventPayload{EventID: "999"})

	var errPayload models.ErrorPayload
	require.NoError(t, json.Unmarshal(readUntil(t, c, models.MsgEnterEventError), &errPayload))
	assert.Equal(t, "Event not found", errPayload.Message)
}

func TestEnterEventMissingID(t *testing.T) {
	srv, _ := newTestStack(t, 2)

	c := dialWS(t, srv)
	sendMsg(t, c, models.MsgEnterEvent, struct{}{})

	var errPayload models.ErrorPayload
	require.NoError(t, json.Unmarshal(readUntil(t, c, models.MsgEnterEventError), &errPayload))
	assert.Equal(t, "eventId is required", errPayload.Message)
}

func TestReserveWithoutSeats(t *testing.T) {
	srv, _ := newTestStack(t, 2)

	c := dialWS(t, srv)
	sendMsg(t, c, models.MsgEnterEvent, models.EnterEventPayload{EventID: "1"})
	readUntil(t, c, models.MsgEnterEventSuccess)

	sendMsg(t, c, models.MsgReserveSeats, models.ReserveSeatsPayload{SeatIDs: nil})
	var errPayload models.ErrorPayload
	require.NoError(t, json.Unmarshal(readUntil(t, c, models.MsgReserveError), &errPayload))
	assert.Equal(t, "No seats selected", errPayload.Message)
}

func TestBuyWithoutReservation(t *testing.T) {
	srv, _ := newTestStack(t, 2)

	c := dialWS(t, srv)
	sendMsg(t, c, models.MsgEnterEvent, models.EnterEventPayload{EventID: "1"})
	readUntil(t, c, models.MsgEnterEventSuccess)

	sendMsg(t, c, models.MsgBuySeats, struct{}{})
	var errPayload models.ErrorPayload
	require.NoError(t, json.Unmarshal(readUntil(t, c, models.MsgBuyError), &errPayload))
	assert.Equal(t, "No reservation to purchase", errPayload.Message)
}

func TestDisconnectReleasesReservation(t *testing.T) {
	srv, seatStore := newTestStack(t, 2)

	c1 := dialWS(t, srv)
	sendMsg(t, c1, models.MsgEnterEvent, models.EnterEventPayload{EventID: "1"})
	readUntil(t, c1, models.MsgEnterEventSuccess)

	sendMsg(t, c1, models.MsgReserveSeats, models.ReserveSeatsPayload{SeatIDs: []int64{3}})
	readUntil(t, c1, models.MsgReserveSuccess)

	c2 := dialWS(t, srv)
	sendMsg(t, c2, models.MsgEnterEvent, models.EnterEventPayload{EventID: "1"})
	readUntil(t, c2, models.MsgEnterEventSuccess)

	c1.Close()

	// The dropped session's hold goes back to available for everyone.
	var update models.SeatsUpdatedPayload
	for {
		require.NoError(t, json.Unmarshal(readUntil(t, c2, models.MsgSeatsUpdated), &update))
		if update.Status == models.SeatStatusAvailable {
			break
		}
	}
	assert.Equal(t, []int64{3}, update.SeatIDs)

	assert.Eventually(t, func() bool {
		seatStore.mu.Lock()
		defer seatStore.mu.Unlock()
		return seatStore.status(3) == models.SeatStatusAvailable
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSwitchingEventsLeavesFirstRoom(t *testing.T) {
	srv, _ := newTestStack(t, 1)

	c1 := dialWS(t, srv)
	sendMsg(t, c1, models.MsgEnterEvent, models.EnterEventPayload{EventID: "1"})
	readUntil(t, c1, models.MsgEnterEventSuccess)

	c2 := dialWS(t, srv)
	sendMsg(t, c2, models.MsgEnterEvent, models.EnterEventPayload{EventID: "1"})
	readUntil(t, c2, models.MsgEnterQueue)

	// c1 leaves; the waiter takes the slot.
	sendMsg(t, c1, models.MsgLeaveEvent, struct{}{})
	readUntil(t, c2, models.MsgQueuePromoted)
}
