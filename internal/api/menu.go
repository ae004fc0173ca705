package api

import (
	"strconv"

	"canteen/internal/ordering"

	"github.com/gin-gonic/gin"
)

type createItemRequest struct {
	Name        string   `json:"name" binding:"required"`
	Description string   `json:"description" binding:"required"`
	PriceRupees *float64 `json:"price_rupees" binding:"required,gte=0"`
	StockCount  *int     `json:"stock_count" binding:"required,gte=0"`
	IsAvailable *bool    `json:"is_available"`
	ImageURL    string   `json:"image_url" binding:"omitempty,url"`
}

type updateItemRequest struct {
	Name        *string  `json:"name" binding:"omitempty,min=1"`
	Description *string  `json:"description" binding:"omitempty,min=1"`
	PriceRupees *float64 `json:"price_rupees" binding:"omitempty,gte=0"`
	StockCount  *int     `json:"stock_count" binding:"omitempty,gte=0"`
	IsAvailable *bool    `json:"is_available"`
	ImageURL    *string  `json:"image_url" binding:"omitempty,url"`
}

// ListMenu returns the items customers can order
func (k *CanteenAPI) ListMenu(c *gin.Context) {
	items, err := k.Orders.ListMenu(c.Request.Context())
	if err != nil {
		k.fail(c, err)
		return
	}

	data := make([]publicMenuItem, len(items))
	for i, it := range items {
		data[i] = toPublicMenuItem(it)
	}
	ok(c, data)
}

func (k *CanteenAPI) CreateMenuItem(c *gin.Context) {
	var req createItemRequest
	if !bindJSON(c, &req) {
		return
	}

	item, err := k.Orders.CreateItem(c.Request.Context(), ordering.CreateItemInput{
		Name:        req.Name,
		Description: req.Description,
		PriceRupees: *req.PriceRupees,
		StockCount:  *req.StockCount,
		IsAvailable: req.IsAvailable,
		ImageURL:    req.ImageURL,
	})
	if err != nil {
		k.fail(c, err)
		return
	}
	ok(c, gin.H{"id": item.ID})
}

func (k *CanteenAPI) ListMenuItems(c *gin.Context) {
	pageNum, size, valid := pageParams(c)
	if !valid {
		return
	}

	items, total, err := k.Orders.ListItems(c.Request.Context(), pageNum, size)
	if err != nil {
		k.fail(c, err)
		return
	}

	data := make([]adminMenuItem, len(items))
	for i, it := range items {
		data[i] = toAdminMenuItem(it)
	}
	ok(c, page[adminMenuItem]{Items: data, Page: pageNum, PageSize: size, Total: total})
}

func (k *CanteenAPI) GetMenuItem(c *gin.Context) {
	item, err := k.Orders.GetItem(c.Request.Context(), c.Param("id"))
	if err != nil {
		k.fail(c, err)
		return
	}
	ok(c, toAdminMenuItem(*item))
}

func (k *CanteenAPI) UpdateMenuItem(c *gin.Context) {
	var req updateItemRequest
	if !bindJSON(c, &req) {
		return
	}

	item, err := k.Orders.UpdateItem(c.Request.Context(), c.Param("id"), ordering.UpdateItemInput{
		Name:        req.Name,
		Description: req.Description,
		PriceRupees: req.PriceRupees,
		StockCount:  req.StockCount,
		IsAvailable: req.IsAvailable,
		ImageURL:    req.ImageURL,
	})
	if err != nil {
		k.fail(c, err)
		return
	}
	ok(c, gin.H{"id": item.ID})
}

func (k *CanteenAPI) DeleteMenuItem(c *gin.Context) {
	id := c.Param("id")
	if err := k.Orders.DeleteItem(c.Request.Context(), id); err != nil {
		k.fail(c, err)
		return
	}
	ok(c, gin.H{"id": id, "deleted": true})
}

// pageParams reads page and pageSize. page must lie in [1, MaxPage]; pageSize
// is clamped to the maximum.
func pageParams(c *gin.Context) (int, int, bool) {
	fields := map[string][]string{}

	pageNum, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	switch {
	case err != nil || pageNum < 1:
		fields["page"] = []string{"Must be an integer greater than or equal to 1"}
	case pageNum > ordering.MaxPage:
		fields["page"] = []string{"Must be less than or equal to " + strconv.Itoa(ordering.MaxPage)}
	}
	size, err := strconv.Atoi(c.DefaultQuery("pageSize", strconv.Itoa(ordering.DefaultPageSize)))
	if err != nil || size < 1 {
		fields["pageSize"] = []string{"Must be an integer greater than or equal to 1"}
	}
	if len(fields) > 0 {
		invalid(c, nil, fields)
		return 0, 0, false
	}

	if size > ordering.MaxPageSize {
		size = ordering.MaxPageSize
	}
	return pageNum, size, true
}
