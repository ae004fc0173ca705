package ordering

import (
	"context"
	"errors"
	"strings"

	"canteen/internal/models"
	"canteen/internal/store"

	"github.com/google/uuid"
)

// CreateItemInput describes a new menu item. Prices arrive in rupees.
type CreateItemInput struct {
	Name        string
	Description string
	PriceRupees float64
	StockCount  int
	IsAvailable *bool
	ImageURL    string
}

// UpdateItemInput carries a partial update; nil fields are left alone
type UpdateItemInput struct {
	Name        *string
	Description *string
	PriceRupees *float64
	StockCount  *int
	IsAvailable *bool
	ImageURL    *string
}

// CreateItem adds an item to the menu. Items are available unless stated otherwise.
func (s *Service) CreateItem(ctx context.Context, in CreateItemInput) (*models.MenuItem, error) {
	if in.PriceRupees < 0 {
		return nil, newError(ErrValidation, "price_rupees must not be negative")
	}
	now := s.clock()
	item := &models.MenuItem{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(in.Name),
		Description: strings.TrimSpace(in.Description),
		PricePaise:  models.RupeesToPaise(in.PriceRupees),
		StockCount:  in.StockCount,
		IsAvailable: true,
		ImageURL:    in.ImageURL,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if in.IsAvailable != nil {
		item.IsAvailable = *in.IsAvailable
	}
	if err := models.ValidateMenuItem(item); err != nil {
		return nil, newError(ErrValidation, "%s", err.Error())
	}

	if err := s.store.Menu.Create(ctx, item); err != nil {
		return nil, err
	}
	s.log.Info("menu item created", "item_id", item.ID, "name", item.Name)
	return item, nil
}

// UpdateItem applies a partial update to any item, deleted ones included
func (s *Service) UpdateItem(ctx context.Context, id string, in UpdateItemInput) (*models.MenuItem, error) {
	fields := map[string]interface{}{}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, newError(ErrValidation, "menu item name is required")
		}
		fields["name"] = name
	}
	if in.Description != nil {
		desc := strings.TrimSpace(*in.Description)
		if desc == "" {
			return nil, newError(ErrValidation, "menu item description is required")
		}
		fields["description"] = desc
	}
	if in.PriceRupees != nil {
		if *in.PriceRupees < 0 {
			return nil, newError(ErrValidation, "price_rupees must not be negative")
		}
		fields["price_paise"] = models.RupeesToPaise(*in.PriceRupees)
	}
	if in.StockCount != nil {
		if *in.StockCount < 0 {
			return nil, newError(ErrValidation, "stock_count must not be negative")
		}
		fields["stock_count"] = *in.StockCount
	}
	if in.IsAvailable != nil {
		fields["is_available"] = *in.IsAvailable
	}
	if in.ImageURL != nil {
		fields["image_url"] = *in.ImageURL
	}
	fields["updated_at"] = s.clock()

	if err := s.store.Menu.Update(ctx, id, fields); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, newError(ErrItemNotFound, "Not found")
		}
		return nil, err
	}
	s.log.Info("menu item updated", "item_id", id, "fields", len(fields)-1)
	return s.GetItem(ctx, id)
}

// DeleteItem soft-deletes a live item
func (s *Service) DeleteItem(ctx context.Context, id string) error {
	if err := s.store.Menu.SoftDelete(ctx, id, s.clock()); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return newError(ErrItemNotFound, "Not found or already deleted")
		}
		return err
	}
	s.log.Info("menu item deleted", "item_id", id)
	return nil
}

// ListMenu returns the items customers can order right now, newest first
func (s *Service) ListMenu(ctx context.Context) ([]models.MenuItem, error) {
	return s.store.Menu.ListAvailable(ctx)
}

// ListItems returns one page of every item, deleted ones included
func (s *Service) ListItems(ctx context.Context, page, size int) ([]models.MenuItem, int, error) {
	page, size = NormalizePage(page, size)
	return s.store.Menu.List(ctx, page, size)
}

// GetItem returns an item by id, deleted ones included
func (s *Service) GetItem(ctx context.Context, id string) (*models.MenuItem, error) {
	item, err := s.store.Menu.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, newError(ErrItemNotFound, "Not found")
	}
	return item, err
}
