package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// OrderStatus represents the possible states of an order
type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusCompleted OrderStatus = "completed"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusFailed    OrderStatus = "failed"
)

// Terminal reports whether no further transition is possible
func (s OrderStatus) Terminal() bool {
	switch s {
	case OrderStatusCompleted, OrderStatusCancelled, OrderStatusFailed:
		return true
	}
	return false
}

// Valid reports whether s is one of the declared statuses
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusCompleted, OrderStatusCancelled, OrderStatusFailed:
		return true
	}
	return false
}

// OrderItem is a snapshot of a menu item taken when it was attached to an order.
type OrderItem struct {
	MenuItemID string `json:"menu_item_id"`
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
	PricePaise int64  `json:"price_paise"`
}

// Subtotal returns price times quantity
func (oi OrderItem) Subtotal() int64 {
	return oi.PricePaise * int64(oi.Quantity)
}

// OrderItems is the embedded line-item document of an order, stored as JSON
type OrderItems []OrderItem

// Total sums the line item subtotals
func (items OrderItems) Total() int64 {
	var total int64
	for _, it := range items {
		total += it.Subtotal()
	}
	return total
}

// Value converts the items to a JSON string for storage
func (items OrderItems) Value() (driver.Value, error) {
	if len(items) == 0 {
		return "[]", nil
	}
	data, err := json.Marshal([]OrderItem(items))
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

// Scan converts the database value back to items
func (items *OrderItems) Scan(value interface{}) error {
	if value == nil {
		*items = OrderItems{}
		return nil
	}

	switch v := value.(type) {
	case []byte:
		return json.Unmarshal(v, (*[]OrderItem)(items))
	case string:
		return json.Unmarshal([]byte(v), (*[]OrderItem)(items))
	default:
		return errors.New("unsupported type for OrderItems")
	}
}

// Order represents a canteen order
type Order struct {
	ID              string      `gorm:"primary_key;type:varchar(36)"`
	ClientID        string      `gorm:"type:varchar(36);index:idx_orders_client_created"`
	Status          OrderStatus `gorm:"type:varchar(16);not null;index:idx_orders_status_expiry"`
	Items           OrderItems  `gorm:"type:text;not null"`
	TotalPricePaise int64       `gorm:"not null"`
	CreatedAt       time.Time   `gorm:"index:idx_orders_client_created"`
	ExpiresAt       time.Time   `gorm:"not null;index:idx_orders_status_expiry"`
	UpdatedAt       time.Time
}

// TableName sets the table name for Order
func (Order) TableName() string {
	return "orders"
}
