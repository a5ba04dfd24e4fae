// Package relay mirrors seat-status broadcasts across broker instances
// through Redis Pub/Sub. Seat availability is public and every instance
// has viewers of the same seat maps, so seatsUpdated frames published by
// one instance are re-broadcast locally by all others.
package relay

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/openvenue/seatfloor/internal/fanout"
	"github.com/openvenue/seatfloor/internal/models"
	"github.com/openvenue/seatfloor/pkg/logger"
)

type Relay struct {
	cli        *redis.Client
	fan        *fanout.Fanout
	channel    string
	instanceID string
	l          logger.Logger
}

func New(cli *redis.Client, fan *fanout.Fanout, channel string, l logger.Logger) *Relay {
	return &Relay{
		cli:        cli,
		fan:        fan,
		channel:    channel,
		instanceID: uuid.New().String(),
		l:          l,
	}
}

// envelope carries the origin instance id so an instance never re-applies
// its own broadcasts.
type envelope struct {
	Origin string                     `json:"origin"`
	Data   models.SeatsUpdatedPayload `json:"data"`
}

func (r *Relay) PublishSeatsUpdated(ctx context.Context, payload models.SeatsUpdatedPayload) {
	val, err := json.Marshal(envelope{Origin: r.instanceID, Data: payload})
	if err != nil {
		r.l.Errorf(ctx, "relay.Relay.PublishSeatsUpdated: %v", err)
		return
	}

	if err := r.cli.Publish(ctx, r.channel, val).Err(); err != nil {
		r.l.Errorf(ctx, "relay.Relay.PublishSeatsUpdated: %v", err)
	}
}

// Run subscribes to the relay channel and re-broadcasts peer seat updates
// to local connections until the context is canceled.
func (r *Relay) Run(ctx context.Context) error {
	sub := r.cli.Subscribe(ctx, r.channel)
	defer sub.Close()

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}

	r.l.Infof(ctx, "Seat relay subscribed to %s as instance %s", r.channel, r.instanceID)

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}

			var env envelope
			if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
				r.l.Warnf(ctx, "relay.Relay.Run: malformed relay frame: %v", err)
				continue
			}
			if env.Origin == r.instanceID {
				continue
			}

			r.fan.ToAll(models.ServerMessage{
				Name: models.MsgSeatsUpdated,
				Data: env.Data,
			})
		}
	}
}

// Broadcaster wraps the local fanout so that seat-status broadcasts are
// also published to peers. All other addressing stays local.
type Broadcaster struct {
	*fanout.Fanout
	relay *Relay
}

func WrapFanout(f *fanout.Fanout, r *Relay) *Broadcaster {
	return &Broadcaster{Fanout: f, relay: r}
}

func (b *Broadcaster) ToAll(msg models.ServerMessage) {
	b.Fanout.ToAll(msg)

	if msg.Name != models.MsgSeatsUpdated {
		return
	}
	if data, ok := msg.Data.(models.SeatsUpdatedPayload); ok {
		b.relay.PublishSeatsUpdated(context.Background(), data)
	}
}
