// Package events fans order status changes out to websocket subscribers and Kafka.
package events

import (
	"context"
	"errors"
	"time"

	"canteen/internal/models"
)

// OrderEvent describes the state of an order right after a change
type OrderEvent struct {
	OrderID         string             `json:"order_id"`
	Status          models.OrderStatus `json:"status"`
	TotalPricePaise int64              `json:"total_price_paise"`
	ExpiresAt       time.Time          `json:"expires_at"`
	At              time.Time          `json:"at"`
}

// NewOrderEvent snapshots order as of at
func NewOrderEvent(order *models.Order, at time.Time) OrderEvent {
	return OrderEvent{
		OrderID:         order.ID,
		Status:          order.Status,
		TotalPricePaise: order.TotalPricePaise,
		ExpiresAt:       order.ExpiresAt,
		At:              at,
	}
}

// Publisher delivers order events somewhere
type Publisher interface {
	Publish(ctx context.Context, ev OrderEvent) error
}

// Nop discards every event
type Nop struct{}

func (Nop) Publish(context.Context, OrderEvent) error { return nil }

// Multi publishes to every publisher in order and joins their errors
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, ev OrderEvent) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
