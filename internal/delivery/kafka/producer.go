package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/IBM/sarama"
	"github.com/openvenue/seatfloor/pkg/logger"
)

// Producer publishes broker lifecycle events for downstream consumers
// (analytics, notifications). Publishing is best effort: callers log and
// continue when a publish fails.
type Producer interface {
	PublishQueueJoined(ctx context.Context, event QueueJoinedEvent) error
	PublishQueuePromoted(ctx context.Context, event QueuePromotedEvent) error
	PublishQueueLeft(ctx context.Context, event QueueLeftEvent) error
	PublishSeatsReserved(ctx context.Context, event SeatsReservedEvent) error
	PublishSeatsSold(ctx context.Context, event SeatsSoldEvent) error
	PublishSeatsReleased(ctx context.Context, event SeatsReleasedEvent) error
	Close() error
}

type implProducer struct {
	l    logger.Logger
	prod sarama.SyncProducer
}

func NewProducer(prod sarama.SyncProducer, l logger.Logger) Producer {
	return &implProducer{
		l:    l,
		prod: prod,
	}
}

func (p *implProducer) PublishQueueJoined(ctx context.Context, event QueueJoinedEvent) error {
	event.Timestamp = time.Now()
	return p.send(ctx, TopicQueueJoined, event.EventID, event)
}

func (p *implProducer) PublishQueuePromoted(ctx context.Context, event QueuePromotedEvent) error {
	event.Timestamp = time.Now()
	return p.send(ctx, TopicQueuePromoted, event.EventID, event)
}

func (p *implProducer) PublishQueueLeft(ctx context.Context, event QueueLeftEvent) error {
	event.Timestamp = time.Now()
	return p.send(ctx, TopicQueueLeft, event.EventID, event)
}

func (p *implProducer) PublishSeatsReserved(ctx context.Context, event SeatsReservedEvent) error {
	event.Timestamp = time.Now()
	return p.send(ctx, TopicSeatsReserved, event.EventID, event)
}

func (p *implProducer) PublishSeatsSold(ctx context.Context, event SeatsSoldEvent) error {
	event.Timestamp = time.Now()
	return p.send(ctx, TopicSeatsSold, event.EventID, event)
}

func (p *implProducer) PublishSeatsReleased(ctx context.Context, event SeatsReleasedEvent) error {
	event.Timestamp = time.Now()
	return p.send(ctx, TopicSeatsReleased, event.EventID, event)
}

func (p *implProducer) send(ctx context.Context, topic, key string, event any) error {
	val, err := json.Marshal(event)
	if err != nil {
		p.l.Errorf(ctx, "delivery.kafka.producer.send: %v", err)
		return err
	}

	msg := &sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key), // Partition by event_id for ordering
		Value: sarama.ByteEncoder(val),
		Headers: []sarama.RecordHeader{
			{
				Key:   []byte("timestamp"),
				Value: []byte(time.Now().Format(time.RFC3339)),
			},
		},
	}

	_, _, err = p.prod.SendMessage(msg)
	return err
}

func (p *implProducer) Close() error {
	return p.prod.Close()
}
