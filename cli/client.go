package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ApiClient handles requests to the canteen API
type ApiClient struct {
	httpClient *http.Client
	BaseURL    string
	ClientID   string
}

// NewApiClient creates a new API client with a fresh client id for order history
func NewApiClient() *ApiClient {
	baseURL := os.Getenv("CANTEEN_API_URL")
	if baseURL == "" {
		baseURL = "http://localhost:8080/api"
	}

	return &ApiClient{
		httpClient: &http.Client{
			Timeout: time.Second * 10,
		},
		BaseURL:  strings.TrimRight(baseURL, "/"),
		ClientID: uuid.NewString(),
	}
}

// MenuItem is an orderable item as listed on the public menu
type MenuItem struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	PriceRupees float64 `json:"price_rupees"`
	StockCount  int     `json:"stock_count"`
	ImageURL    string  `json:"image_url,omitempty"`
}

// OrderItem is one line of an order
type OrderItem struct {
	MenuItemID string `json:"menu_item_id"`
	Name       string `json:"name"`
	Quantity   int    `json:"quantity"`
	PricePaise int64  `json:"price_paise"`
}

// Order is a placed order
type Order struct {
	ID              string      `json:"id"`
	ClientID        string      `json:"client_id,omitempty"`
	Status          string      `json:"status"`
	Items           []OrderItem `json:"items"`
	TotalPricePaise int64       `json:"total_price_paise"`
	TotalRupees     float64     `json:"total_rupees"`
	CreatedAt       time.Time   `json:"created_at"`
	ExpiresAt       time.Time   `json:"expires_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

// CartLine asks for quantity units of one menu item
type CartLine struct {
	ItemID   string `json:"itemId"`
	Quantity int    `json:"quantity"`
}

// OrderPage is one page of order history
type OrderPage struct {
	Items    []Order `json:"items"`
	Page     int     `json:"page"`
	PageSize int     `json:"pageSize"`
	Total    int     `json:"total"`
}

// APIError is an error response from the server
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (HTTP %d)", e.Message, e.Status)
}

// IsConflict reports whether err is a 409 from the server
func IsConflict(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict
}

// CheckHealth checks if the API is up and running
func (c *ApiClient) CheckHealth() error {
	var out struct {
		Status string `json:"status"`
	}
	return c.do(http.MethodGet, "/health", nil, &out)
}

// GetMenu returns the items that can be ordered right now
func (c *ApiClient) GetMenu() ([]MenuItem, error) {
	var items []MenuItem
	if err := c.do(http.MethodGet, "/menu", nil, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// PlaceOrder opens a pending order for this client and returns its id and expiry
func (c *ApiClient) PlaceOrder(lines []CartLine) (string, time.Time, error) {
	body := map[string]interface{}{
		"client_id": c.ClientID,
		"items":     lines,
	}
	var out struct {
		ID        string    `json:"id"`
		ExpiresAt time.Time `json:"expires_at"`
	}
	if err := c.do(http.MethodPost, "/orders", body, &out); err != nil {
		return "", time.Time{}, err
	}
	return out.ID, out.ExpiresAt, nil
}

// AddItems appends lines to a pending order and returns the new total in paise
func (c *ApiClient) AddItems(orderID string, lines []CartLine) (int64, error) {
	body := map[string]interface{}{"items": lines}
	var out struct {
		TotalPricePaise int64 `json:"total_price_paise"`
	}
	if err := c.do(http.MethodPost, "/orders/"+url.PathEscape(orderID)+"/add-items", body, &out); err != nil {
		return 0, err
	}
	return out.TotalPricePaise, nil
}

// GetOrder retrieves a specific order by ID
func (c *ApiClient) GetOrder(id string) (*Order, error) {
	var order Order
	if err := c.do(http.MethodGet, "/orders/"+url.PathEscape(id), nil, &order); err != nil {
		return nil, err
	}
	return &order, nil
}

// History returns this client's orders, newest first
func (c *ApiClient) History(page int) (*OrderPage, error) {
	q := url.Values{}
	q.Set("client_id", c.ClientID)
	q.Set("page", fmt.Sprint(page))
	q.Set("pageSize", "20")

	var out OrderPage
	if err := c.do(http.MethodGet, "/orders/history?"+q.Encode(), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CancelOrder cancels a pending order by ID
func (c *ApiClient) CancelOrder(id string) (string, error) {
	var out struct {
		Status string `json:"status"`
	}
	if err := c.do(http.MethodPost, "/orders/"+url.PathEscape(id)+"/cancel", nil, &out); err != nil {
		return "", err
	}
	return out.Status, nil
}

// do sends a request and decodes the data field of the response envelope into out
func (c *ApiClient) do(method, path string, body interface{}, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.BaseURL+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var env struct {
		Data  json.RawMessage `json:"data"`
		Error *struct {
			Message     string              `json:"message"`
			FormErrors  []string            `json:"formErrors"`
			FieldErrors map[string][]string `json:"fieldErrors"`
		} `json:"error"`
	}
	if err := json.Unmarshal(raw, &env); err != nil {
		return fmt.Errorf("unexpected response (HTTP %d): %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	if resp.StatusCode >= http.StatusBadRequest || env.Error != nil {
		msg := http.StatusText(resp.StatusCode)
		if env.Error != nil {
			switch {
			case env.Error.Message != "":
				msg = env.Error.Message
			case len(env.Error.FormErrors) > 0:
				msg = strings.Join(env.Error.FormErrors, "; ")
			case len(env.Error.FieldErrors) > 0:
				parts := make([]string, 0, len(env.Error.FieldErrors))
				for field, errs := range env.Error.FieldErrors {
					parts = append(parts, field+": "+strings.Join(errs, ", "))
				}
				msg = strings.Join(parts, "; ")
			}
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}

	if out == nil || len(env.Data) == 0 {
		return nil
	}
	return json.Unmarshal(env.Data, out)
}
