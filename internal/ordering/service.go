// Package ordering implements the canteen order lifecycle and menu catalog
// on top of the store: stock reservation, status transitions and expiry.
package ordering

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"canteen/internal/events"
	"canteen/internal/models"
	"canteen/internal/store"

	"github.com/google/uuid"
)

const (
	DefaultExpiry   = 15 * time.Minute
	DefaultPageSize = 20
	MaxPageSize     = 100
	MaxPage         = 100000

	// MaxQuantity bounds a single line, after merging repeated item ids
	MaxQuantity = 1000
)

// Recorder receives domain counters. monitoring.Metrics satisfies it.
type Recorder interface {
	OrderPlaced()
	OrderTransition(status string)
	StockRejected(reason string)
}

type nopRecorder struct{}

func (nopRecorder) OrderPlaced()            {}
func (nopRecorder) OrderTransition(string) {}
func (nopRecorder) StockRejected(string)   {}

// Service coordinates orders and the menu they reserve stock from
type Service struct {
	store     *store.Store
	now       func() time.Time
	expiry    time.Duration
	publisher events.Publisher
	metrics   Recorder
	log       *slog.Logger
}

// Option configures a Service
type Option func(*Service)

// WithClock replaces the wall clock, mainly for tests
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithExpiry sets how long a pending order holds its stock
func WithExpiry(d time.Duration) Option {
	return func(s *Service) {
		if d > 0 {
			s.expiry = d
		}
	}
}

func WithPublisher(p events.Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func WithMetrics(r Recorder) Option {
	return func(s *Service) { s.metrics = r }
}

func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.log = l }
}

// NewService creates an ordering service backed by st
func NewService(st *store.Store, opts ...Option) *Service {
	s := &Service{
		store:     st,
		now:       time.Now,
		expiry:    DefaultExpiry,
		publisher: events.Nop{},
		metrics:   nopRecorder{},
		log:       slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ItemRequest asks for quantity units of one menu item
type ItemRequest struct {
	ItemID   string
	Quantity int
}

// PlaceOrderInput is the payload of PlaceOrder
type PlaceOrderInput struct {
	ClientID string
	Items    []ItemRequest
}

func (s *Service) clock() time.Time {
	return s.now().UTC()
}

// PlaceOrder reserves stock for every requested item and records a pending
// order expiring after the configured window. Either every item is reserved
// and the order exists, or nothing changes.
func (s *Service) PlaceOrder(ctx context.Context, in PlaceOrderInput) (*models.Order, error) {
	if in.ClientID != "" {
		if _, err := uuid.Parse(in.ClientID); err != nil {
			return nil, newError(ErrValidation, "client_id must be a uuid")
		}
	}
	lines, err := mergeLines(in.Items)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	order := &models.Order{
		ID:        uuid.NewString(),
		ClientID:  in.ClientID,
		Status:    models.OrderStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
		ExpiresAt: now.Add(s.expiry),
	}

	err = s.store.Transaction(ctx, func(tx *store.Store) error {
		snapshot, err := reserve(ctx, tx, lines, now)
		if err != nil {
			return err
		}
		order.Items = snapshot
		order.TotalPricePaise = snapshot.Total()
		return tx.Orders.Create(ctx, order)
	})
	if err != nil {
		s.recordRejection(err)
		return nil, err
	}

	s.metrics.OrderPlaced()
	s.log.Info("order placed",
		"order_id", order.ID,
		"items", len(order.Items),
		"total_paise", order.TotalPricePaise,
		"expires_at", order.ExpiresAt)
	s.publish(ctx, order)
	return order, nil
}

// AddItems reserves more stock and appends it to a pending order
func (s *Service) AddItems(ctx context.Context, orderID string, items []ItemRequest) (*models.Order, error) {
	lines, err := mergeLines(items)
	if err != nil {
		return nil, err
	}

	now := s.clock()
	var order *models.Order
	err = s.store.Transaction(ctx, func(tx *store.Store) error {
		var err error
		order, err = s.loadOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.Status != models.OrderStatusPending {
			return newError(ErrInvalidState, "Only pending orders can be modified")
		}
		if !now.Before(order.ExpiresAt) {
			return newError(ErrInvalidState, "Order has expired")
		}

		snapshot, err := reserve(ctx, tx, lines, now)
		if err != nil {
			return err
		}
		order.Items = append(order.Items, snapshot...)
		order.TotalPricePaise += snapshot.Total()
		order.UpdatedAt = now

		ok, err := tx.Orders.UpdateGuarded(ctx, order.ID, []models.OrderStatus{models.OrderStatusPending}, map[string]interface{}{
			"items":             order.Items,
			"total_price_paise": order.TotalPricePaise,
			"updated_at":        now,
		})
		if err != nil {
			return err
		}
		if !ok {
			return newError(ErrInvalidState, "Only pending orders can be modified")
		}
		return nil
	})
	if err != nil {
		s.recordRejection(err)
		return nil, err
	}

	s.log.Info("order items added", "order_id", order.ID, "total_paise", order.TotalPricePaise)
	s.publish(ctx, order)
	return order, nil
}

// Confirm marks an order confirmed. Confirming a confirmed order changes nothing.
func (s *Service) Confirm(ctx context.Context, orderID string) (*models.Order, error) {
	return s.transition(ctx, orderID, models.OrderStatusConfirmed, models.OrderStatusPending)
}

// Complete marks an order completed. Completing a completed order changes nothing.
func (s *Service) Complete(ctx context.Context, orderID string) (*models.Order, error) {
	return s.transition(ctx, orderID, models.OrderStatusCompleted, models.OrderStatusPending, models.OrderStatusConfirmed)
}

// transition moves an order to status when it is currently in one of from.
// An order already in status is returned unchanged.
func (s *Service) transition(ctx context.Context, orderID string, status models.OrderStatus, from ...models.OrderStatus) (*models.Order, error) {
	now := s.clock()
	changed := false
	var order *models.Order
	err := s.store.Transaction(ctx, func(tx *store.Store) error {
		var err error
		order, err = s.loadOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if order.Status == status {
			return nil
		}
		if !statusIn(order.Status, from) {
			return newError(ErrInvalidState, "Cannot move a %s order to %s", order.Status, status)
		}

		ok, err := tx.Orders.UpdateGuarded(ctx, order.ID, from, map[string]interface{}{
			"status":     status,
			"updated_at": now,
		})
		if err != nil {
			return err
		}
		if !ok {
			return newError(ErrInvalidState, "Order %s changed concurrently", order.ID)
		}
		order.Status = status
		order.UpdatedAt = now
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.metrics.OrderTransition(string(status))
		s.log.Info("order status changed", "order_id", order.ID, "status", status)
		s.publish(ctx, order)
	}
	return order, nil
}

// Cancel releases the stock held by a pending order and marks it cancelled
func (s *Service) Cancel(ctx context.Context, orderID string) (*models.Order, error) {
	now := s.clock()
	var order *models.Order
	err := s.store.Transaction(ctx, func(tx *store.Store) error {
		current, err := s.loadOrder(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if current.Status != models.OrderStatusPending {
			return newError(ErrInvalidState, "Only pending orders can be cancelled")
		}
		order, err = closePending(ctx, tx, current.ID, models.OrderStatusCancelled, now)
		if errors.Is(err, errNotPending) {
			return newError(ErrInvalidState, "Only pending orders can be cancelled")
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	s.metrics.OrderTransition(string(models.OrderStatusCancelled))
	s.log.Info("order cancelled", "order_id", order.ID)
	s.publish(ctx, order)
	return order, nil
}

// ExpireDue fails every pending order whose expiry has passed and returns its
// stock. Each order is handled in its own transaction; an order that left
// pending in the meantime is skipped. It returns how many orders were expired.
func (s *Service) ExpireDue(ctx context.Context) (int, error) {
	now := s.clock()
	due, err := s.store.Orders.ListExpired(ctx, now)
	if err != nil {
		return 0, err
	}

	expired := 0
	var errs []error
	for i := range due {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		var order *models.Order
		err := s.store.Transaction(ctx, func(tx *store.Store) error {
			var err error
			order, err = closePending(ctx, tx, due[i].ID, models.OrderStatusFailed, now)
			return err
		})
		switch {
		case errors.Is(err, errNotPending):
			continue
		case err != nil:
			s.log.Error("failed to expire order", "order_id", due[i].ID, "error", err)
			errs = append(errs, err)
			continue
		}

		expired++
		s.metrics.OrderTransition(string(models.OrderStatusFailed))
		s.log.Info("order expired", "order_id", order.ID, "expires_at", order.ExpiresAt)
		s.publish(ctx, order)
	}
	return expired, errors.Join(errs...)
}

var errNotPending = errors.New("order is no longer pending")

// closePending moves a pending order to a terminal status and releases its
// stock. The guarded status write comes first; the items released are read
// after it, inside the same transaction, so lines appended before the write
// are returned too.
func closePending(ctx context.Context, tx *store.Store, orderID string, status models.OrderStatus, now time.Time) (*models.Order, error) {
	ok, err := tx.Orders.UpdateGuarded(ctx, orderID, []models.OrderStatus{models.OrderStatusPending}, map[string]interface{}{
		"status":     status,
		"updated_at": now,
	})
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errNotPending
	}

	order, err := tx.Orders.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if err := release(ctx, tx, order.Items, now); err != nil {
		return nil, err
	}
	return order, nil
}

// GetOrder returns an order by id
func (s *Service) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	return s.loadOrder(ctx, s.store, orderID)
}

// History returns one page of orders, newest first, optionally for one client
func (s *Service) History(ctx context.Context, clientID string, page, size int) ([]models.Order, int, error) {
	page, size = NormalizePage(page, size)
	return s.store.Orders.List(ctx, clientID, page, size)
}

func (s *Service) loadOrder(ctx context.Context, st *store.Store, orderID string) (*models.Order, error) {
	order, err := st.Orders.Get(ctx, orderID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, newError(ErrOrderNotFound, "Order not found")
	}
	return order, err
}

func (s *Service) publish(ctx context.Context, order *models.Order) {
	ev := events.NewOrderEvent(order, s.clock())
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.log.Warn("failed to publish order event", "order_id", order.ID, "status", order.Status, "error", err)
	}
}

func (s *Service) recordRejection(err error) {
	switch {
	case errors.Is(err, ErrInsufficientStock):
		s.metrics.StockRejected("insufficient_stock")
	case errors.Is(err, ErrItemNotFound):
		s.metrics.StockRejected("item_not_found")
	}
}

// NormalizePage clamps paging parameters to the supported range
func NormalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	if size < 1 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}
	return page, size
}

func statusIn(status models.OrderStatus, set []models.OrderStatus) bool {
	for _, st := range set {
		if st == status {
			return true
		}
	}
	return false
}
