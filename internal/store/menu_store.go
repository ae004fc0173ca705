package store

import (
	"context"
	"fmt"
	"time"

	"canteen/internal/models"

	"github.com/jinzhu/gorm"
)

// MenuStore reads and writes menu items.
// Default-scoped queries hide soft-deleted rows; admin reads use Unscoped.
type MenuStore struct {
	db *gorm.DB
}

// Create inserts a new menu item
func (s *MenuStore) Create(ctx context.Context, item *models.MenuItem) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := s.db.Create(item).Error; err != nil {
		return fmt.Errorf("failed to create menu item: %w", err)
	}
	return nil
}

// ListAvailable returns the public menu, newest first
func (s *MenuStore) ListAvailable(ctx context.Context) ([]models.MenuItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var items []models.MenuItem
	err := s.db.
		Where("is_deleted = ? AND is_available = ?", false, true).
		Order("created_at desc").
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list menu: %w", err)
	}
	return items, nil
}

// List returns one page of all items, deleted ones included, and the total count
func (s *MenuStore) List(ctx context.Context, page, size int) ([]models.MenuItem, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	var total int
	if err := s.db.Unscoped().Model(&models.MenuItem{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count menu items: %w", err)
	}

	items := []models.MenuItem{}
	err := s.db.Unscoped().
		Order("created_at desc").
		Offset(offset(page, size)).
		Limit(size).
		Find(&items).Error
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list menu items: %w", err)
	}
	return items, total, nil
}

// Get returns an item by id, including soft-deleted ones
func (s *MenuStore) Get(ctx context.Context, id string) (*models.MenuItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var item models.MenuItem
	if err := s.db.Unscoped().Where("id = ?", id).First(&item).Error; err != nil {
		return nil, notFound(err)
	}
	return &item, nil
}

// FindByIDs returns the live (not soft-deleted) items among ids, keyed by id
func (s *MenuStore) FindByIDs(ctx context.Context, ids []string) (map[string]models.MenuItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var items []models.MenuItem
	if err := s.db.Where("id IN (?) AND is_deleted = ?", ids, false).Find(&items).Error; err != nil {
		return nil, fmt.Errorf("failed to load menu items: %w", err)
	}
	byID := make(map[string]models.MenuItem, len(items))
	for _, it := range items {
		byID[it.ID] = it
	}
	return byID, nil
}

// Update applies a partial column update. Soft-deleted items can still be edited.
func (s *MenuStore) Update(ctx context.Context, id string, fields map[string]interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	res := s.db.Unscoped().Model(&models.MenuItem{}).Where("id = ?", id).UpdateColumns(fields)
	if res.Error != nil {
		return fmt.Errorf("failed to update menu item: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// SoftDelete marks a live item deleted. Missing or already deleted items yield ErrNotFound.
func (s *MenuStore) SoftDelete(ctx context.Context, id string, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	res := s.db.Model(&models.MenuItem{}).
		Where("id = ? AND is_deleted = ?", id, false).
		UpdateColumns(map[string]interface{}{
			"is_deleted": true,
			"deleted_at": now,
			"updated_at": now,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to delete menu item: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// Decrement takes qty units of stock from an orderable item.
// It reports false, without changing anything, when the item is gone,
// unavailable or holds fewer than qty units.
func (s *MenuStore) Decrement(ctx context.Context, id string, qty int, now time.Time) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	res := s.db.Model(&models.MenuItem{}).
		Where("id = ? AND stock_count >= ? AND is_deleted = ? AND is_available = ?", id, qty, false, true).
		UpdateColumns(map[string]interface{}{
			"stock_count": gorm.Expr("stock_count - ?", qty),
			"updated_at":  now,
		})
	if res.Error != nil {
		return false, fmt.Errorf("failed to reserve stock for %s: %w", id, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// Increment returns qty units of stock to an item, deleted or not
func (s *MenuStore) Increment(ctx context.Context, id string, qty int, now time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	res := s.db.Unscoped().Model(&models.MenuItem{}).
		Where("id = ?", id).
		UpdateColumns(map[string]interface{}{
			"stock_count": gorm.Expr("stock_count + ?", qty),
			"updated_at":  now,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to release stock for %s: %w", id, res.Error)
	}
	return nil
}
