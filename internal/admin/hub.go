package admin

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"reactor-sim/internal/eventlog"
	"reactor-sim/internal/telemetry"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
	sendBuffer     = 64
)

type message struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

func encodeMessage(kind string, payload any) ([]byte, error) {
	return json.Marshal(message{Type: kind, Payload: payload})
}

// Hub pushes engine output to connected websocket clients. It implements
// the reactor writer interfaces and never blocks the caller: a client whose
// buffer is full is dropped.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub returns an empty hub. Register it with the engine writers to push
// updates to every connected websocket.
func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

type client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (h *Hub) register(conn *websocket.Conn) *client {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	c := &client{hub: h, conn: conn, send: make(chan []byte, sendBuffer)}
	h.clients[c] = struct{}{}
	return c
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
}

// Clients reports the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		c.close()
	}
}

func (h *Hub) broadcast(kind string, payload any) error {
	msg, err := encodeMessage(kind, payload)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- msg:
		default:
			delete(h.clients, c)
			c.close()
		}
	}
	return nil
}

// Write implements reactor.TelemetryWriter.
func (h *Hub) Write(s telemetry.Sample) error { return h.broadcast("telemetry", []telemetry.Sample{s}) }

// WriteBatch pushes several samples as one message.
func (h *Hub) WriteBatch(rows []telemetry.Sample) error { return h.broadcast("telemetry", rows) }

// WriteLog implements reactor.LogWriter.
func (h *Hub) WriteLog(e eventlog.Entry) error { return h.broadcast("logs", []eventlog.Entry{e}) }

// WriteLogs pushes several entries as one message.
func (h *Hub) WriteLogs(entries []eventlog.Entry) error { return h.broadcast("logs", entries) }

// WriteState implements reactor.StateWriter.
func (h *Hub) WriteState(row telemetry.StateRow) error { return h.broadcast("state", row) }

// WriteReaction implements reactor.ReactionWriter.
func (h *Hub) WriteReaction(row telemetry.ReactionRow) error {
	return h.broadcast("reaction", row)
}

// enqueue delivers msg to c alone if it is still registered.
func (h *Hub) enqueue(c *client, msg []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

func (c *client) close() {
	c.once.Do(func() { close(c.send) })
}

// readPump discards client frames and unregisters on disconnect.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case msg, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
