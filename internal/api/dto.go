package api

import (
	"time"

	"canteen/internal/models"
)

type publicMenuItem struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	PriceRupees float64 `json:"price_rupees"`
	StockCount  int     `json:"stock_count"`
	ImageURL    string  `json:"image_url,omitempty"`
}

type adminMenuItem struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description"`
	PriceRupees float64    `json:"price_rupees"`
	PricePaise  int64      `json:"price_paise"`
	StockCount  int        `json:"stock_count"`
	IsAvailable bool       `json:"is_available"`
	ImageURL    string     `json:"image_url,omitempty"`
	IsDeleted   bool       `json:"is_deleted"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	DeletedAt   *time.Time `json:"deleted_at"`
}

type orderView struct {
	ID              string             `json:"id"`
	ClientID        string             `json:"client_id,omitempty"`
	Status          models.OrderStatus `json:"status"`
	Items           []models.OrderItem `json:"items"`
	TotalPricePaise int64              `json:"total_price_paise"`
	TotalRupees     float64            `json:"total_rupees"`
	CreatedAt       time.Time          `json:"created_at"`
	ExpiresAt       time.Time          `json:"expires_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

type page[T any] struct {
	Items    []T `json:"items"`
	Page     int `json:"page"`
	PageSize int `json:"pageSize"`
	Total    int `json:"total"`
}

func toPublicMenuItem(mi models.MenuItem) publicMenuItem {
	return publicMenuItem{
		ID:          mi.ID,
		Name:        mi.Name,
		Description: mi.Description,
		PriceRupees: models.PaiseToRupees(mi.PricePaise),
		StockCount:  mi.StockCount,
		ImageURL:    mi.ImageURL,
	}
}

func toAdminMenuItem(mi models.MenuItem) adminMenuItem {
	return adminMenuItem{
		ID:          mi.ID,
		Name:        mi.Name,
		Description: mi.Description,
		PriceRupees: models.PaiseToRupees(mi.PricePaise),
		PricePaise:  mi.PricePaise,
		StockCount:  mi.StockCount,
		IsAvailable: mi.IsAvailable,
		ImageURL:    mi.ImageURL,
		IsDeleted:   mi.IsDeleted,
		CreatedAt:   mi.CreatedAt,
		UpdatedAt:   mi.UpdatedAt,
		DeletedAt:   mi.DeletedAt,
	}
}

func toOrderView(o *models.Order) orderView {
	items := []models.OrderItem(o.Items)
	if items == nil {
		items = []models.OrderItem{}
	}
	return orderView{
		ID:              o.ID,
		ClientID:        o.ClientID,
		Status:          o.Status,
		Items:           items,
		TotalPricePaise: o.TotalPricePaise,
		TotalRupees:     models.PaiseToRupees(o.TotalPricePaise),
		CreatedAt:       o.CreatedAt,
		ExpiresAt:       o.ExpiresAt,
		UpdatedAt:       o.UpdatedAt,
	}
}
