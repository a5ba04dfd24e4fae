// Simulates a crowd of websocket clients hammering one event: everyone
// enters, picks a couple of seats, reserves, and a fraction buys. Useful
// for watching admission, queueing and promotion behave under load.
//
// Usage:
//
//	go run scripts/simulate-load.go --addr ws://localhost:3001/ws --event 1 --users 50
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

var (
	addr     = flag.String("addr", "ws://localhost:3001/ws", "websocket endpoint")
	eventID  = flag.String("event", "", "event ID (required)")
	numUsers = flag.Int("users", 50, "number of clients to spawn")
	seatMax  = flag.Int64("seat-max", 50, "highest seat id to pick from")
	buyRate  = flag.Float64("buy-rate", 0.5, "probability a client buys after reserving")
	joinRate = flag.Duration("join-rate", 50*time.Millisecond, "delay between client spawns")
	lifetime = flag.Duration("lifetime", 30*time.Second, "how long each client stays connected")
)

type frame struct {
	Name string          `json:"name"`
	Data json.RawMessage `json:"data,omitempty"`
}

func main() {
	flag.Parse()

	if *eventID == "" {
		fmt.Println("Error: --event flag is required")
		flag.Usage()
		os.Exit(1)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var wg sync.WaitGroup
	done := make(chan struct{})

	for i := 0; i < *numUsers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			runClient(n, done)
		}(i)

		select {
		case <-quit:
			close(done)
			wg.Wait()
			return
		case <-time.After(*joinRate):
		}
	}

	fmt.Printf("Spawned %d clients against %s\n", *numUsers, *addr)

	select {
	case <-quit:
	case <-time.After(*lifetime + 5*time.Second):
	}
	close(done)
	wg.Wait()
}

func runClient(n int, done <-chan struct{}) {
	conn, _, err := websocket.DefaultDialer.Dial(*addr, nil)
	if err != nil {
		fmt.Printf("client %d: dial: %v\n", n, err)
		return
	}
	defer conn.Close()

	// Drain server frames so the connection stays healthy; print the
	// interesting ones.
	go func() {
		for {
			var f frame
			if err := conn.ReadJSON(&f); err != nil {
				return
			}
			switch f.Name {
			case "enterQueue", "queuePromoted", "reserveSuccess", "reserveError", "buySuccess", "reservationExpired":
				fmt.Printf("client %d: %s %s\n", n, f.Name, string(f.Data))
			}
		}
	}()

	send := func(name string, data any) {
		payload, _ := json.Marshal(data)
		_ = conn.WriteJSON(frame{Name: name, Data: payload})
	}

	send("enterEvent", map[string]string{"eventId": *eventID})
	time.Sleep(time.Duration(rand.Intn(1000)) * time.Millisecond)

	seats := []int64{
		rand.Int63n(*seatMax) + 1,
		rand.Int63n(*seatMax) + 1,
	}
	for _, s := range seats {
		send("selectSeat", map[string]int64{"seatId": s})
	}

	send("reserveSeats", map[string][]int64{"seatIds": seats})
	time.Sleep(time.Duration(rand.Intn(2000)) * time.Millisecond)

	if rand.Float64() < *buyRate {
		send("buySeats", struct{}{})
	}

	select {
	case <-done:
	case <-time.After(*lifetime):
	}
	send("leaveEvent", struct{}{})
}
