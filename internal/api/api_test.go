package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"canteen/internal/config"
	"canteen/internal/database"
	"canteen/internal/events"
	"canteen/internal/models"
	"canteen/internal/monitoring"
	"canteen/internal/ordering"
	"canteen/internal/store"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type testServer struct {
	api   *CanteenAPI
	store *store.Store
	clock *testClock
}

func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.Open(config.DatabaseConfig{Driver: "sqlite3", Source: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, database.Migrate(db))
	t.Cleanup(func() { database.Close(db) })

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	clock := &testClock{now: time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)}
	st := store.New(db)
	hub := events.NewHub(log, nil)
	metrics := monitoring.NewMetrics()
	svc := ordering.NewService(st,
		ordering.WithClock(clock.Now),
		ordering.WithPublisher(hub),
		ordering.WithMetrics(metrics),
		ordering.WithLogger(log),
	)

	cfg := config.Default().Server
	return &testServer{
		api:   NewCanteenAPI(svc, hub, metrics, cfg, log),
		store: st,
		clock: clock,
	}
}

func (s *testServer) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	s.api.Router.ServeHTTP(w, req)
	return w
}

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Message     string              `json:"message"`
		FormErrors  []string            `json:"formErrors"`
		FieldErrors map[string][]string `json:"fieldErrors"`
	} `json:"error"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder, data any) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	if data != nil && env.Data != nil {
		require.NoError(t, json.Unmarshal(env.Data, data))
	}
	return env
}

func (s *testServer) createItem(t *testing.T, name string, price float64, stock int) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/admin/menu", gin.H{
		"name":         name,
		"description":  name + " made fresh",
		"price_rupees": price,
		"stock_count":  stock,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out struct {
		ID string `json:"id"`
	}
	decode(t, w, &out)
	s.clock.Advance(time.Second)
	return out.ID
}

func (s *testServer) placeOrder(t *testing.T, itemID string, qty int) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/api/orders", gin.H{
		"items": []gin.H{{"itemId": itemID, "quantity": qty}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out struct {
		ID string `json:"id"`
	}
	decode(t, w, &out)
	return out.ID
}

func (s *testServer) stock(t *testing.T, id string) int {
	t.Helper()
	item, err := s.store.Menu.Get(context.Background(), id)
	require.NoError(t, err)
	return item.StockCount
}

func TestHealth(t *testing.T) {
	s := setupTestServer(t)
	w := s.do(t, http.MethodGet, "/api/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":{"status":"ok"}}`, w.Body.String())
}

func TestPlaceOrderScenario(t *testing.T) {
	s := setupTestServer(t)
	itemID := s.createItem(t, "Masala Dosa", 8.99, 5)

	w := s.do(t, http.MethodPost, "/api/orders", gin.H{
		"client_id": uuid.NewString(),
		"items":     []gin.H{{"itemId": itemID, "quantity": 2}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var placed struct {
		ID        string    `json:"id"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	decode(t, w, &placed)
	assert.NotEmpty(t, placed.ID)
	assert.True(t, placed.ExpiresAt.Equal(s.clock.Now().Add(15*time.Minute)))
	assert.Equal(t, 3, s.stock(t, itemID))

	w = s.do(t, http.MethodGet, "/api/orders/"+placed.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var order orderView
	decode(t, w, &order)
	assert.Equal(t, models.OrderStatusPending, order.Status)
	assert.Equal(t, int64(1798), order.TotalPricePaise)
	assert.Equal(t, 17.98, order.TotalRupees)
	require.Len(t, order.Items, 1)
	assert.Equal(t, "Masala Dosa", order.Items[0].Name)
}

func TestPlaceOrderInsufficientStock(t *testing.T) {
	s := setupTestServer(t)
	itemID := s.createItem(t, "Vada", 3, 1)

	w := s.do(t, http.MethodPost, "/api/orders", gin.H{
		"items": []gin.H{{"itemId": itemID, "quantity": 2}},
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	env := decode(t, w, nil)
	require.NotNil(t, env.Error)
	assert.Equal(t, "Insufficient stock for Vada", env.Error.Message)
	assert.Equal(t, 1, s.stock(t, itemID))
}

func TestPlaceOrderUnknownItem(t *testing.T) {
	s := setupTestServer(t)
	w := s.do(t, http.MethodPost, "/api/orders", gin.H{
		"items": []gin.H{{"itemId": uuid.NewString(), "quantity": 1}},
	})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestPlaceOrderValidationErrors(t *testing.T) {
	s := setupTestServer(t)

	w := s.do(t, http.MethodPost, "/api/orders", gin.H{
		"client_id": "not-a-uuid",
		"items":     []gin.H{{"itemId": "x", "quantity": 0}},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	env := decode(t, w, nil)
	require.NotNil(t, env.Error)
	assert.Contains(t, env.Error.FieldErrors, "client_id")
	assert.Contains(t, env.Error.FieldErrors, "items[0].itemId")
	assert.Contains(t, env.Error.FieldErrors, "items[0].quantity")

	w = s.do(t, http.MethodPost, "/api/orders", gin.H{"items": []gin.H{}})
	require.Equal(t, http.StatusBadRequest, w.Code)
	env = decode(t, w, nil)
	assert.Contains(t, env.Error.FieldErrors, "items")

	w = s.do(t, http.MethodPost, "/api/orders", `{"items": [`)
	require.Equal(t, http.StatusBadRequest, w.Code)
	env = decode(t, w, nil)
	assert.NotEmpty(t, env.Error.FormErrors)
}

func TestPlaceOrderRejectsOversizedQuantities(t *testing.T) {
	s := setupTestServer(t)
	itemID := s.createItem(t, "Lassi", 60, 3)

	w := s.do(t, http.MethodPost, "/api/orders", gin.H{
		"items": []gin.H{{"itemId": itemID, "quantity": 1001}},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	env := decode(t, w, nil)
	assert.Equal(t, []string{"Must be less than or equal to 1000"}, env.Error.FieldErrors["items[0].quantity"])

	// two maximal lines for one item must not wrap around when merged
	w = s.do(t, http.MethodPost, "/api/orders", fmt.Sprintf(
		`{"items":[{"itemId":%q,"quantity":%d},{"itemId":%q,"quantity":%d}]}`, itemID, math.MaxInt, itemID, math.MaxInt))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPost, "/api/orders", gin.H{
		"items": []gin.H{{"itemId": itemID, "quantity": 600}, {"itemId": itemID, "quantity": 600}},
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	env = decode(t, w, nil)
	assert.NotEmpty(t, env.Error.FormErrors)

	assert.Equal(t, 3, s.stock(t, itemID))
}

func TestAddItemsAndCancel(t *testing.T) {
	s := setupTestServer(t)
	itemID := s.createItem(t, "Idli", 4, 10)
	orderID := s.placeOrder(t, itemID, 2)

	w := s.do(t, http.MethodPost, "/api/orders/"+orderID+"/add-items", gin.H{
		"items": []gin.H{{"itemId": itemID, "quantity": 3}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var added struct {
		ID    string `json:"id"`
		Total int64  `json:"total_price_paise"`
	}
	decode(t, w, &added)
	assert.Equal(t, int64(2000), added.Total)
	assert.Equal(t, 5, s.stock(t, itemID))

	w = s.do(t, http.MethodPost, "/api/orders/"+orderID+"/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":{"id":"`+orderID+`","status":"cancelled"}}`, w.Body.String())
	assert.Equal(t, 10, s.stock(t, itemID))

	w = s.do(t, http.MethodPost, "/api/orders/"+orderID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	env := decode(t, w, nil)
	assert.Equal(t, "Only pending orders can be cancelled", env.Error.Message)
}

func TestAddItemsToConfirmedOrder(t *testing.T) {
	s := setupTestServer(t)
	itemID := s.createItem(t, "Bonda", 2, 5)
	orderID := s.placeOrder(t, itemID, 1)

	w := s.do(t, http.MethodPost, "/api/orders/"+orderID+"/confirm", nil)
	require.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/api/orders/"+orderID+"/add-items", gin.H{
		"items": []gin.H{{"itemId": itemID, "quantity": 1}},
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 4, s.stock(t, itemID))
}

func TestConfirmTwiceAndComplete(t *testing.T) {
	s := setupTestServer(t)
	itemID := s.createItem(t, "Thali", 120, 3)
	orderID := s.placeOrder(t, itemID, 1)

	for i := 0; i < 2; i++ {
		w := s.do(t, http.MethodPost, "/api/orders/"+orderID+"/confirm", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, `{"data":{"id":"`+orderID+`","status":"confirmed"}}`, w.Body.String())
	}

	w := s.do(t, http.MethodPost, "/api/orders/"+orderID+"/complete", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":{"id":"`+orderID+`","status":"completed"}}`, w.Body.String())

	w = s.do(t, http.MethodPost, "/api/orders/"+orderID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, 2, s.stock(t, itemID))
}

func TestOrderNotFound(t *testing.T) {
	s := setupTestServer(t)
	id := uuid.NewString()

	for _, path := range []string{"/api/orders/" + id} {
		w := s.do(t, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	}
	for _, action := range []string{"cancel", "confirm", "complete"} {
		w := s.do(t, http.MethodPost, "/api/orders/"+id+"/"+action, nil)
		assert.Equal(t, http.StatusNotFound, w.Code, action)
	}
}

func TestRunCancellations(t *testing.T) {
	s := setupTestServer(t)
	itemID := s.createItem(t, "Paratha", 40, 5)
	orderID := s.placeOrder(t, itemID, 2)

	w := s.do(t, http.MethodPost, "/api/admin/jobs/run-cancellations", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":{"cancelled":0}}`, w.Body.String())

	s.clock.Advance(16 * time.Minute)
	w = s.do(t, http.MethodPost, "/api/admin/jobs/run-cancellations", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":{"cancelled":1}}`, w.Body.String())
	assert.Equal(t, 5, s.stock(t, itemID))

	w = s.do(t, http.MethodGet, "/api/orders/"+orderID, nil)
	var order orderView
	decode(t, w, &order)
	assert.Equal(t, models.OrderStatusFailed, order.Status)
}

func TestOrderHistory(t *testing.T) {
	s := setupTestServer(t)
	itemID := s.createItem(t, "Jalebi", 10, 20)
	client := uuid.NewString()

	for i := 0; i < 3; i++ {
		w := s.do(t, http.MethodPost, "/api/orders", gin.H{
			"client_id": client,
			"items":     []gin.H{{"itemId": itemID, "quantity": 1}},
		})
		require.Equal(t, http.StatusOK, w.Code)
		s.clock.Advance(time.Second)
	}
	s.placeOrder(t, itemID, 1)

	w := s.do(t, http.MethodGet, "/api/orders/history?client_id="+client+"&page=1&pageSize=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var p page[orderView]
	decode(t, w, &p)
	assert.Equal(t, 3, p.Total)
	assert.Equal(t, 1, p.Page)
	assert.Equal(t, 2, p.PageSize)
	assert.Len(t, p.Items, 2)

	w = s.do(t, http.MethodGet, "/api/orders/history?pageSize=1000", nil)
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &p)
	assert.Equal(t, 100, p.PageSize)
	assert.Equal(t, 4, p.Total)

	w = s.do(t, http.MethodGet, "/api/orders/history?page=0", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodGet, "/api/orders/history?page=9223372036854775807&pageSize=100", nil)
	require.Equal(t, http.StatusBadRequest, w.Code)
	env := decode(t, w, nil)
	assert.Contains(t, env.Error.FieldErrors, "page")

	w = s.do(t, http.MethodGet, "/api/admin/menu?page=100001", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMenuLifecycle(t *testing.T) {
	s := setupTestServer(t)
	keepID := s.createItem(t, "Coffee", 1.5, 10)
	goneID := s.createItem(t, "Tea", 1, 10)

	w := s.do(t, http.MethodDelete, "/api/admin/menu/"+goneID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"data":{"id":"`+goneID+`","deleted":true}}`, w.Body.String())

	w = s.do(t, http.MethodDelete, "/api/admin/menu/"+goneID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	env := decode(t, w, nil)
	assert.Equal(t, "Not found or already deleted", env.Error.Message)

	w = s.do(t, http.MethodGet, "/api/menu", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var menu []publicMenuItem
	decode(t, w, &menu)
	require.Len(t, menu, 1)
	assert.Equal(t, keepID, menu[0].ID)
	assert.Equal(t, 1.5, menu[0].PriceRupees)

	w = s.do(t, http.MethodPost, "/api/orders", gin.H{
		"items": []gin.H{{"itemId": goneID, "quantity": 1}},
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/api/admin/menu?page=1&pageSize=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var all page[adminMenuItem]
	decode(t, w, &all)
	assert.Equal(t, 2, all.Total)
	require.Len(t, all.Items, 2)
	assert.Equal(t, goneID, all.Items[0].ID)
	assert.True(t, all.Items[0].IsDeleted)
	assert.NotNil(t, all.Items[0].DeletedAt)

	w = s.do(t, http.MethodGet, "/api/admin/menu/"+goneID, nil)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestUpdateMenuItem(t *testing.T) {
	s := setupTestServer(t)
	itemID := s.createItem(t, "Lassi", 5, 10)

	w := s.do(t, http.MethodPut, "/api/admin/menu/"+itemID, gin.H{
		"price_rupees": 6.25,
		"is_available": false,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"data":{"id":"`+itemID+`"}}`, w.Body.String())

	w = s.do(t, http.MethodGet, "/api/admin/menu/"+itemID, nil)
	var item adminMenuItem
	decode(t, w, &item)
	assert.Equal(t, int64(625), item.PricePaise)
	assert.False(t, item.IsAvailable)
	assert.Equal(t, "Lassi", item.Name)

	w = s.do(t, http.MethodGet, "/api/menu", nil)
	var menu []publicMenuItem
	decode(t, w, &menu)
	assert.Empty(t, menu)

	w = s.do(t, http.MethodPut, "/api/admin/menu/"+itemID, gin.H{"stock_count": -1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPut, "/api/admin/menu/"+uuid.NewString(), gin.H{"name": "Ghost"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCreateMenuItemValidation(t *testing.T) {
	s := setupTestServer(t)

	w := s.do(t, http.MethodPost, "/api/admin/menu", gin.H{
		"name":         "",
		"price_rupees": -1,
		"image_url":    "not a url",
	})
	require.Equal(t, http.StatusBadRequest, w.Code)
	env := decode(t, w, nil)
	for _, field := range []string{"name", "description", "price_rupees", "stock_count", "image_url"} {
		assert.Contains(t, env.Error.FieldErrors, field)
	}

	w = s.do(t, http.MethodPost, "/api/admin/menu", gin.H{
		"name":         "Free Water",
		"description":  "Tap",
		"price_rupees": 0,
		"stock_count":  0,
		"is_available": false,
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestBodyLimit(t *testing.T) {
	s := setupTestServer(t)
	big := `{"name":"` + strings.Repeat("a", 3<<20) + `"}`

	w := s.do(t, http.MethodPost, "/api/admin/menu", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	s := setupTestServer(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/orders", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	s.api.Router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestStreamOrder(t *testing.T) {
	s := setupTestServer(t)
	itemID := s.createItem(t, "Samosa", 2, 4)
	orderID := s.placeOrder(t, itemID, 1)

	srv := httptest.NewServer(s.api.Router)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/orders/" + orderID + "/stream"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var ev events.OrderEvent
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, models.OrderStatusPending, ev.Status)

	require.Eventually(t, func() bool { return s.api.Hub.Subscribers(orderID) == 1 }, 2*time.Second, 10*time.Millisecond)
	w := s.do(t, http.MethodPost, "/api/orders/"+orderID+"/confirm", nil)
	require.Equal(t, http.StatusOK, w.Code)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, models.OrderStatusConfirmed, ev.Status)

	resp, err := http.Get(srv.URL + "/api/orders/" + uuid.NewString() + "/stream")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStreamCancelledOrderClosesAfterSnapshot(t *testing.T) {
	s := setupTestServer(t)
	itemID := s.createItem(t, "Kachori", 3, 4)
	orderID := s.placeOrder(t, itemID, 1)
	w := s.do(t, http.MethodPost, "/api/orders/"+orderID+"/cancel", nil)
	require.Equal(t, http.StatusOK, w.Code)

	srv := httptest.NewServer(s.api.Router)
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/orders/" + orderID + "/stream"

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var ev events.OrderEvent
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, models.OrderStatusCancelled, ev.Status)
	assert.Zero(t, s.api.Hub.Subscribers(orderID))

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure))
}
