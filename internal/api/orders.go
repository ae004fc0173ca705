package api

import (
	"context"
	"time"

	"canteen/internal/events"
	"canteen/internal/ordering"

	"github.com/gin-gonic/gin"
)

type itemLine struct {
	ItemID   string `json:"itemId" binding:"required,uuid"`
	Quantity int    `json:"quantity" binding:"required,min=1,max=1000"`
}

type placeOrderRequest struct {
	ClientID string     `json:"client_id" binding:"omitempty,uuid"`
	Items    []itemLine `json:"items" binding:"required,min=1,dive"`
}

type addItemsRequest struct {
	Items []itemLine `json:"items" binding:"required,min=1,dive"`
}

func toItemRequests(lines []itemLine) []ordering.ItemRequest {
	out := make([]ordering.ItemRequest, len(lines))
	for i, l := range lines {
		out[i] = ordering.ItemRequest{ItemID: l.ItemID, Quantity: l.Quantity}
	}
	return out
}

// PlaceOrder reserves stock and opens a pending order
func (k *CanteenAPI) PlaceOrder(c *gin.Context) {
	var req placeOrderRequest
	if !bindJSON(c, &req) {
		return
	}

	order, err := k.Orders.PlaceOrder(c.Request.Context(), ordering.PlaceOrderInput{
		ClientID: req.ClientID,
		Items:    toItemRequests(req.Items),
	})
	if err != nil {
		k.fail(c, err)
		return
	}
	ok(c, gin.H{"id": order.ID, "expires_at": order.ExpiresAt})
}

func (k *CanteenAPI) AddItems(c *gin.Context) {
	var req addItemsRequest
	if !bindJSON(c, &req) {
		return
	}

	order, err := k.Orders.AddItems(c.Request.Context(), c.Param("id"), toItemRequests(req.Items))
	if err != nil {
		k.fail(c, err)
		return
	}
	ok(c, gin.H{"id": order.ID, "total_price_paise": order.TotalPricePaise})
}

func (k *CanteenAPI) OrderHistory(c *gin.Context) {
	pageNum, size, valid := pageParams(c)
	if !valid {
		return
	}

	orders, total, err := k.Orders.History(c.Request.Context(), c.Query("client_id"), pageNum, size)
	if err != nil {
		k.fail(c, err)
		return
	}

	data := make([]orderView, len(orders))
	for i := range orders {
		data[i] = toOrderView(&orders[i])
	}
	ok(c, page[orderView]{Items: data, Page: pageNum, PageSize: size, Total: total})
}

func (k *CanteenAPI) GetOrder(c *gin.Context) {
	order, err := k.Orders.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		k.fail(c, err)
		return
	}
	ok(c, toOrderView(order))
}

// StreamOrder upgrades to a websocket that pushes the order's status on every change
func (k *CanteenAPI) StreamOrder(c *gin.Context) {
	order, err := k.Orders.GetOrder(c.Request.Context(), c.Param("id"))
	if err != nil {
		k.fail(c, err)
		return
	}

	snapshot := func(ctx context.Context) (events.OrderEvent, error) {
		current, err := k.Orders.GetOrder(ctx, order.ID)
		if err != nil {
			return events.OrderEvent{}, err
		}
		return events.NewOrderEvent(current, time.Now().UTC()), nil
	}
	if err := k.Hub.Serve(c.Writer, c.Request, order.ID, snapshot); err != nil {
		k.log.Warn("order stream not opened", "order_id", order.ID, "error", err)
	}
}

func (k *CanteenAPI) CancelOrder(c *gin.Context) {
	order, err := k.Orders.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		k.fail(c, err)
		return
	}
	ok(c, gin.H{"id": order.ID, "status": order.Status})
}

func (k *CanteenAPI) ConfirmOrder(c *gin.Context) {
	order, err := k.Orders.Confirm(c.Request.Context(), c.Param("id"))
	if err != nil {
		k.fail(c, err)
		return
	}
	ok(c, gin.H{"id": order.ID, "status": order.Status})
}

func (k *CanteenAPI) CompleteOrder(c *gin.Context) {
	order, err := k.Orders.Complete(c.Request.Context(), c.Param("id"))
	if err != nil {
		k.fail(c, err)
		return
	}
	ok(c, gin.H{"id": order.ID, "status": order.Status})
}

// RunCancellations expires every overdue pending order now
func (k *CanteenAPI) RunCancellations(c *gin.Context) {
	n, err := k.Orders.ExpireDue(c.Request.Context())
	if err != nil {
		k.log.Error("bulk expiry finished with errors", "expired", n, "error", err)
		if n == 0 {
			k.fail(c, err)
			return
		}
	}
	ok(c, gin.H{"cancelled": n})
}
