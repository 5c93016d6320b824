// Package events publishes order lifecycle events to Kafka for downstream
// consumers (notifications, analytics). Publishing is best-effort: the
// checkout path never fails on a broker error.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/go-faster/errors"
	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/rivamart/storefront/internal/domain/order"
)

// orderPlaced is the wire payload for an order.placed event.
type orderPlaced struct {
	Type           string          `json:"type"`
	OrderID        string          `json:"orderId"`
	UserID         string          `json:"userId"`
	TrackingNumber string          `json:"trackingNumber"`
	Total          decimal.Decimal `json:"total"`
	CouponCode     string          `json:"couponCode,omitempty"`
	PlacedAt       time.Time       `json:"placedAt"`
}

// KafkaPublisher implements order.EventPublisher on a kafka-go Writer.
type KafkaPublisher struct {
	writer *kafka.Writer
}

var _ order.EventPublisher = (*KafkaPublisher)(nil)

// NewKafkaPublisher creates a publisher writing to the given brokers/topic.
func NewKafkaPublisher(brokers []string, topic string) *KafkaPublisher {
	return &KafkaPublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireOne,
			Async:        false,
		},
	}
}

// OrderPlaced publishes an order.placed message keyed by order ID.
func (p *KafkaPublisher) OrderPlaced(ctx context.Context, o *order.Order) error {
	payload, err := json.Marshal(orderPlaced{
		Type:           "order.placed",
		OrderID:        o.ID,
		UserID:         o.UserID,
		TrackingNumber: o.TrackingNumber,
		Total:          o.Total,
		CouponCode:     o.CouponCode,
		PlacedAt:       o.CreatedAt,
	})
	if err != nil {
		return errors.Wrap(err, "marshal order placed event")
	}

	err = p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(o.ID),
		Value: payload,
	})
	if err != nil {
		return errors.Wrap(err, "write order placed event")
	}
	return nil
}

// Close flushes and closes the underlying writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}
