package ordering

import (
	"context"
	"strings"
	"time"

	"canteen/internal/models"
	"canteen/internal/store"

	"github.com/google/uuid"
)

// mergeLines validates a request and folds repeated item ids into one line,
// keeping first-seen order.
func mergeLines(items []ItemRequest) ([]ItemRequest, error) {
	if len(items) == 0 {
		return nil, newError(ErrValidation, "at least one item is required")
	}
	merged := make([]ItemRequest, 0, len(items))
	index := make(map[string]int, len(items))
	for _, it := range items {
		id := strings.TrimSpace(it.ItemID)
		if _, err := uuid.Parse(id); err != nil {
			return nil, newError(ErrValidation, "itemId %q must be a uuid", it.ItemID)
		}
		if it.Quantity < 1 {
			return nil, newError(ErrValidation, "quantity for %s must be at least 1", id)
		}
		if it.Quantity > MaxQuantity {
			return nil, newError(ErrValidation, "quantity for %s must be at most %d", id, MaxQuantity)
		}
		if i, ok := index[id]; ok {
			if merged[i].Quantity > MaxQuantity-it.Quantity {
				return nil, newError(ErrValidation, "quantity for %s must be at most %d", id, MaxQuantity)
			}
			merged[i].Quantity += it.Quantity
			continue
		}
		index[id] = len(merged)
		merged = append(merged, ItemRequest{ItemID: id, Quantity: it.Quantity})
	}
	return merged, nil
}

// reserve checks every line against the current menu, then takes the stock
// with conditional decrements. It must run inside a store transaction so a
// failed decrement rolls back the ones before it. The returned snapshot
// records name and price as they are now.
func reserve(ctx context.Context, tx *store.Store, lines []ItemRequest, now time.Time) (models.OrderItems, error) {
	ids := make([]string, len(lines))
	for i, l := range lines {
		ids[i] = l.ItemID
	}
	menu, err := tx.Menu.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	snapshot := make(models.OrderItems, 0, len(lines))
	for _, l := range lines {
		item, ok := menu[l.ItemID]
		if !ok || !item.Orderable() {
			return nil, newError(ErrItemNotFound, "Item %s not found", l.ItemID)
		}
		if item.StockCount < l.Quantity {
			return nil, newError(ErrInsufficientStock, "Insufficient stock for %s", item.Name)
		}
		snapshot = append(snapshot, models.OrderItem{
			MenuItemID: item.ID,
			Name:       item.Name,
			Quantity:   l.Quantity,
			PricePaise: item.PricePaise,
		})
	}

	for _, line := range snapshot {
		ok, err := tx.Menu.Decrement(ctx, line.MenuItemID, line.Quantity, now)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, newError(ErrInsufficientStock, "Insufficient stock for %s", line.Name)
		}
	}
	return snapshot, nil
}

// release returns the stock held by items. Deleted items get their stock back too.
func release(ctx context.Context, tx *store.Store, items models.OrderItems, now time.Time) error {
	for _, it := range items {
		if err := tx.Menu.Increment(ctx, it.MenuItemID, it.Quantity, now); err != nil {
			return err
		}
	}
	return nil
}
