// Package store is the gateway to the authoritative seat store. Every call
// is a single bounded attempt; callers decide the compensating action on
// conflict or transport failure.
package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openvenue/seatfloor/config"
	"github.com/openvenue/seatfloor/pkg/logger"
)

var (
	// ErrConflict means the store rejected the batch because at least one
	// seat was not in the expected prior status.
	ErrConflict = errors.New("store conflict")
	// ErrNotFound means the requested resource does not exist.
	ErrNotFound = errors.New("not found in store")
)

type Event struct {
	ID         string
	Title      string
	SeatsCount int
}

type Client struct {
	baseURL string
	httpCli *http.Client
	l       logger.Logger
}

func NewClient(cfg config.StoreConfig, l logger.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpCli: &http.Client{Timeout: cfg.Timeout},
		l:       l,
	}
}

// Laravel serializes resources as {"data": ...} with numeric ids.
type eventDTO struct {
	ID         json.Number `json:"id"`
	Title      string      `json:"title"`
	SeatsCount int         `json:"seats_count"`
}

func (d eventDTO) toEvent() Event {
	return Event{
		ID:         d.ID.String(),
		Title:      d.Title,
		SeatsCount: d.SeatsCount,
	}
}

func (c *Client) ListEvents(ctx context.Context) ([]Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/event", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpCli.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to list events: unexpected status %d", resp.StatusCode)
	}

	var body struct {
		Data []eventDTO `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode event list: %w", err)
	}

	events := make([]Event, 0, len(body.Data))
	for _, d := range body.Data {
		events = append(events, d.toEvent())
	}

	return events, nil
}

func (c *Client) GetEvent(ctx context.Context, id string) (*Event, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/event/"+id, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpCli.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch event %s: %w", id, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrNotFound
	default:
		return nil, fmt.Errorf("failed to fetch event %s: unexpected status %d", id, resp.StatusCode)
	}

	var body struct {
		Data eventDTO `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode event %s: %w", id, err)
	}

	ev := body.Data.toEvent()
	return &ev, nil
}

// ReserveSeats marks the batch reserved. The store requires every seat to
// be available; a partial batch yields ErrConflict and no change.
func (c *Client) ReserveSeats(ctx context.Context, seatIDs []int64) error {
	return c.postSeats(ctx, "/seats/reserve", seatIDs)
}

// BuySeats marks the batch sold. Every seat must currently be reserved.
func (c *Client) BuySeats(ctx context.Context, seatIDs []int64) error {
	return c.postSeats(ctx, "/seats/buy", seatIDs)
}

// ReleaseSeats returns the batch to available. Every seat must currently
// be reserved.
func (c *Client) ReleaseSeats(ctx context.Context, seatIDs []int64) error {
	return c.postSeats(ctx, "/seats/release", seatIDs)
}

func (c *Client) postSeats(ctx context.Context, path string, seatIDs []int64) error {
	payload, err := json.Marshal(map[string][]int64{"seat_ids": seatIDs})
	if err != nil {
		return fmt.Errorf("failed to encode seat batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpCli.Do(req)
	if err != nil {
		return fmt.Errorf("store call %s failed: %w", path, err)
	}
	defer resp.Body.Close()

	c.l.Debugf(ctx, "Store call %s: status=%d seats=%d took=%s",
		path, resp.StatusCode, len(seatIDs), time.Since(start))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusConflict || resp.StatusCode == http.StatusUnprocessableEntity:
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		if body.Error != "" {
			return fmt.Errorf("%w: %s", ErrConflict, body.Error)
		}
		return ErrConflict
	default:
		return fmt.Errorf("store call %s failed: unexpected status %d", path, resp.StatusCode)
	}
}
