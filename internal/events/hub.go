package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 512
	sendBuffer     = 16
)

// Hub streams order events to websocket subscribers of that order.
// A subscriber's stream is closed once its order reaches a terminal status.
type Hub struct {
	mu       sync.RWMutex
	subs     map[string]map[*subscriber]struct{}
	upgrader websocket.Upgrader
	log      *slog.Logger
}

type subscriber struct {
	hub     *Hub
	orderID string
	conn    *websocket.Conn
	send    chan []byte
}

// NewHub creates a hub. checkOrigin may be nil to accept same-origin requests only.
func NewHub(log *slog.Logger, checkOrigin func(*http.Request) bool) *Hub {
	return &Hub{
		subs: make(map[string]map[*subscriber]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		log: log,
	}
}

// Snapshot reads the current state of an order
type Snapshot func(ctx context.Context) (OrderEvent, error)

// Serve upgrades the request and streams events for orderID, starting with the
// state returned by snapshot. The snapshot is read and the subscriber registered
// under the hub lock, so no published change falls between the two.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, orderID string, snapshot Snapshot) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	sub := &subscriber{
		hub:     h,
		orderID: orderID,
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
	}

	if err := h.attach(r.Context(), sub, snapshot); err != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, ""),
			time.Now().Add(writeWait))
		conn.Close()
		return err
	}

	go sub.writePump()
	go sub.readPump()
	return nil
}

// attach registers sub and queues the snapshot as its first message. A
// terminal snapshot closes the stream right after it is sent.
func (h *Hub) attach(ctx context.Context, sub *subscriber, snapshot Snapshot) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	ev, err := snapshot(ctx)
	if err != nil {
		return fmt.Errorf("failed to read order snapshot: %w", err)
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode order event: %w", err)
	}

	sub.send <- data
	if ev.Status.Terminal() {
		close(sub.send)
		return nil
	}

	set, ok := h.subs[sub.orderID]
	if !ok {
		set = make(map[*subscriber]struct{})
		h.subs[sub.orderID] = set
	}
	set[sub] = struct{}{}
	return nil
}

// Publish queues ev for every subscriber of its order. Slow subscribers drop events.
func (h *Hub) Publish(_ context.Context, ev OrderEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to encode order event: %w", err)
	}

	h.mu.RLock()
	for sub := range h.subs[ev.OrderID] {
		select {
		case sub.send <- data:
		default:
			h.log.Warn("order stream buffer full, dropping event", "order_id", ev.OrderID)
		}
	}
	h.mu.RUnlock()

	if ev.Status.Terminal() {
		h.closeOrder(ev.OrderID)
	}
	return nil
}

// Subscribers returns how many streams are open for orderID
func (h *Hub) Subscribers(orderID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[orderID])
}

func (h *Hub) unregister(sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set := h.subs[sub.orderID]
	if _, ok := set[sub]; !ok {
		return
	}
	delete(set, sub)
	close(sub.send)
	if len(set) == 0 {
		delete(h.subs, sub.orderID)
	}
}

func (h *Hub) closeOrder(orderID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs[orderID] {
		close(sub.send)
	}
	delete(h.subs, orderID)
}

// readPump only services control frames; clients are not expected to send data
func (s *subscriber) readPump() {
	defer func() {
		s.hub.unregister(s)
		s.conn.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		s.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := s.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				s.hub.log.Warn("order stream read error", "order_id", s.orderID, "error", err)
			}
			return
		}
	}
}

func (s *subscriber) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case message, ok := <-s.send:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				s.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}

			w, err := s.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
