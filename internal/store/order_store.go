package store

import (
	"context"
	"fmt"
	"time"

	"canteen/internal/models"

	"github.com/jinzhu/gorm"
)

// OrderStore reads and writes orders with their embedded line items
type OrderStore struct {
	db *gorm.DB
}

// Create inserts a new order
func (s *OrderStore) Create(ctx context.Context, order *models.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.db.Create(order).Error; err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	return nil
}

// Get returns an order by id
func (s *OrderStore) Get(ctx context.Context, id string) (*models.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var order models.Order
	if err := s.db.Where("id = ?", id).First(&order).Error; err != nil {
		return nil, notFound(err)
	}
	return &order, nil
}

// List returns one page of orders, newest first, optionally for a single client
func (s *OrderStore) List(ctx context.Context, clientID string, page, size int) ([]models.Order, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	q := s.db.Model(&models.Order{})
	if clientID != "" {
		q = q.Where("client_id = ?", clientID)
	}

	var total int
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count orders: %w", err)
	}

	orders := []models.Order{}
	err := q.Order("created_at desc").
		Offset(offset(page, size)).
		Limit(size).
		Find(&orders).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list orders: %w", err)
	}
	return orders, total, nil
}

// ListExpired returns pending orders whose expiry is at or before now, oldest expiry first
func (s *OrderStore) ListExpired(ctx context.Context, now time.Time) ([]models.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var orders []models.Order
	err := s.db.
		Where("status = ? AND expires_at <= ?", string(models.OrderStatusPending), now).
		Order("expires_at asc").
		Find(&orders).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list expired orders: %w", err)
	}
	return orders, nil
}

// UpdateGuarded writes fields only while the order is in one of the from
// statuses. It reports whether the row was updated.
func (s *OrderStore) UpdateGuarded(ctx context.Context, id string, from []models.OrderStatus, fields map[string]interface{}) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	statuses := make([]string, len(from))
	for i, st := range from {
		statuses[i] = string(st)
	}
	res := s.db.Model(&models.Order{}).
		Where("id = ? AND status IN (?)", id, statuses).
		UpdateColumns(fields)
	if res.Error != nil {
		return false, fmt.Errorf("failed to update order %s: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}
