package event

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Producer streams booking events to Kafka keyed by booking id, so every
// event of one booking lands on the same partition in commit order.
type Producer struct {
	writer messageWriter
	log    *zap.Logger
}

func NewProducer(brokers []string, topic string, log *zap.Logger) *Producer {
	writer := &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 50 * time.Millisecond,
	}
	return newProducer(writer, log)
}

func newProducer(writer messageWriter, log *zap.Logger) *Producer {
	return &Producer{
		writer: writer,
		log:    log.With(zap.String("publisher", "kafka")),
	}
}

func (p *Producer) Publish(ctx context.Context, evt BookingEvent) error {
	value, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", evt.Type, err)
	}

	msg := kafka.Message{
		Key:   []byte(strconv.FormatInt(evt.BookingID, 10)),
		Value: value,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(evt.Type)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.log.Error("Failed to publish booking event",
			zap.Error(err),
			zap.String("type", string(evt.Type)),
			zap.Int64("booking_id", evt.BookingID),
		)
		return fmt.Errorf("publish %s event: %w", evt.Type, err)
	}

	p.log.Debug("Published booking event",
		zap.String("type", string(evt.Type)),
		zap.Int64("booking_id", evt.BookingID),
	)
	return nil
}

func (p *Producer) Close() error {
	return p.writer.Close()
}
