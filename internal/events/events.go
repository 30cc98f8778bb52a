// Package events publishes committed trades to Kafka.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
)

// TradeEvent is the wire form of one committed trade.
type TradeEvent struct {
	TradeID    uuid.UUID `json:"tradeId"`
	UserID     int64     `json:"userId"`
	Side       string    `json:"side"`
	Symbol     string    `json:"symbol"`
	Shares     int64     `json:"shares"`
	PriceCents int64     `json:"priceCents"`
	TotalCents int64     `json:"totalCents"`
	CashAfter  int64     `json:"cashAfter"`
	Provenance string    `json:"provenance"`
	ExecutedAt time.Time `json:"executedAt"`
}

type Publisher interface {
	PublishTrade(ctx context.Context, ev TradeEvent) error
	Close() error
}

// Writer is the subset of *kafka.Writer the publisher uses.
type Writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type KafkaPublisher struct {
	w Writer
}

// NewKafkaWriter builds the writer for the trades topic.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 10 * time.Millisecond,
		RequiredAcks: kafka.RequireOne,
	}
}

func NewKafkaPublisher(w Writer) *KafkaPublisher {
	return &KafkaPublisher{w: w}
}

// PublishTrade keys by user so one user's trades stay on one partition.
func (p *KafkaPublisher) PublishTrade(ctx context.Context, ev TradeEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal trade event: %w", err)
	}
	err = p.w.WriteMessages(ctx, kafka.Message{
		Key:   []byte(strconv.FormatInt(ev.UserID, 10)),
		Value: payload,
		Time:  ev.ExecutedAt,
	})
	if err != nil {
		return fmt.Errorf("write trade event: %w", err)
	}
	return nil
}

func (p *KafkaPublisher) Close() error { return p.w.Close() }

// NopPublisher drops every event.
type NopPublisher struct{}

func (NopPublisher) PublishTrade(context.Context, TradeEvent) error { return nil }
func (NopPublisher) Close() error                                  { return nil }
