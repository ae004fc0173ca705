package models

import (
	"fmt"
	"strings"
	"time"
)

// MenuItem represents a dish on the canteen menu.
// DeletedAt doubles as gorm's soft-delete marker, so default-scoped queries
// never see removed items; admin reads go through Unscoped.
type MenuItem struct {
	ID          string `gorm:"primary_key;type:varchar(36)"`
	Name        string `gorm:"not null"`
	Description string `gorm:"not null"`
	PricePaise  int64  `gorm:"not null"`
	StockCount  int    `gorm:"not null"`
	IsAvailable bool   `gorm:"not null;index:idx_menu_items_visible"`
	ImageURL    string
	IsDeleted   bool `gorm:"not null;index:idx_menu_items_visible"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeletedAt   *time.Time `sql:"index"`
}

// TableName sets the table name for MenuItem
func (MenuItem) TableName() string {
	return "menu_items"
}

// ValidateMenuItem validates a menu item
func ValidateMenuItem(item *MenuItem) error {
	if strings.TrimSpace(item.Name) == "" {
		return fmt.Errorf("menu item name is required")
	}
	if strings.TrimSpace(item.Description) == "" {
		return fmt.Errorf("menu item description is required")
	}
	if item.PricePaise < 0 {
		return fmt.Errorf("menu item price must not be negative")
	}
	if item.StockCount < 0 {
		return fmt.Errorf("menu item stock must not be negative")
	}
	return nil
}

// Orderable reports whether new orders may reserve this item
func (mi *MenuItem) Orderable() bool {
	return !mi.IsDeleted && mi.DeletedAt == nil && mi.IsAvailable
}
