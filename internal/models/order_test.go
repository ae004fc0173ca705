package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOrderItemsTotal(t *testing.T) {
	items := OrderItems{
		{MenuItemID: "a", Name: "Masala Dosa", Quantity: 2, PricePaise: 899},
		{MenuItemID: "b", Name: "Filter Coffee", Quantity: 3, PricePaise: 150},
	}

	assert.Equal(t, int64(1798+450), items.Total())
	assert.Equal(t, int64(0), OrderItems{}.Total())
}

func TestOrderItemsRoundTripThroughColumn(t *testing.T) {
	items := OrderItems{{MenuItemID: "a", Name: "Idli", Quantity: 1, PricePaise: 4000}}

	v, err := items.Value()
	require.NoError(t, err)

	var fromString OrderItems
	require.NoError(t, fromString.Scan(v))
	assert.Equal(t, items, fromString)

	var fromBytes OrderItems
	require.NoError(t, fromBytes.Scan([]byte(v.(string))))
	assert.Equal(t, items, fromBytes)
}

func TestOrderItemsScanEdgeCases(t *testing.T) {
	var items OrderItems
	require.NoError(t, items.Scan(nil))
	assert.Empty(t, items)

	empty, err := OrderItems(nil).Value()
	require.NoError(t, err)
	assert.Equal(t, "[]", empty)

	assert.Error(t, items.Scan(42))
}

func TestOrderStatusTerminal(t *testing.T) {
	tests := []struct {
		status   OrderStatus
		terminal bool
	}{
		{OrderStatusPending, false},
		{OrderStatusConfirmed, false},
		{OrderStatusCompleted, true},
		{OrderStatusCancelled, true},
		{OrderStatusFailed, true},
	}
	for _, tt := range tests {
		if got := tt.status.Terminal(); got != tt.terminal {
			t.Errorf("%q.Terminal() = %v, want %v", tt.status, got, tt.terminal)
		}
		if !tt.status.Valid() {
			t.Errorf("%q.Valid() = false, want true", tt.status)
		}
	}
	assert.False(t, OrderStatus("shipped").Valid())
}

func TestMoneyConversion(t *testing.T) {
	tests := []struct {
		rupees float64
		paise  int64
	}{
		{8.99, 899},
		{0, 0},
		{120, 12000},
		{0.1 + 0.2, 30},
		{10.005, 1001},
		{1.234, 123},
	}
	for _, tt := range tests {
		if got := RupeesToPaise(tt.rupees); got != tt.paise {
			t.Errorf("RupeesToPaise(%v) = %d, want %d", tt.rupees, got, tt.paise)
		}
	}

	assert.Equal(t, 8.99, PaiseToRupees(899))
	assert.Equal(t, 17.98, PaiseToRupees(1798))
	assert.Equal(t, 0.0, PaiseToRupees(0))
}

func TestValidateMenuItem(t *testing.T) {
	valid := MenuItem{Name: "Vada", Description: "Crisp lentil fritter", PricePaise: 3000, StockCount: 0}
	assert.NoError(t, ValidateMenuItem(&valid))

	noName := valid
	noName.Name = "  "
	assert.Error(t, ValidateMenuItem(&noName))

	negative := valid
	negative.StockCount = -1
	assert.Error(t, ValidateMenuItem(&negative))

	negativePrice := valid
	negativePrice.PricePaise = -5
	assert.Error(t, ValidateMenuItem(&negativePrice))
}
