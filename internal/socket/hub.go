// internal/socket/hub.go
package socket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"pickup-map-api-server/internal/geo"
	"pickup-map-api-server/internal/models"
)

const (
	writeWait = 10 * time.Second
	// Pending events per viewer before it is considered stalled and dropped.
	sendBuffer = 16
)

// MessageTypeViewport is the only message a map viewer sends.
const MessageTypeViewport = "viewport"

// ClientMessage is what a viewer sends over the socket.
type ClientMessage struct {
	Type string    `json:"type"`
	BBox []float64 `json:"bbox"`
}

// Client is one connected map viewer. Writes are serialized per connection;
// broadcast events are queued on send and written by WritePump.
type Client struct {
	ID   string
	conn *websocket.Conn
	send chan []byte

	writeMu sync.Mutex

	mu       sync.RWMutex
	viewport *geo.BBox
}

// SetViewport restricts the feed to pickups inside b. A nil box means everything.
func (c *Client) SetViewport(b *geo.BBox) {
	c.mu.Lock()
	c.viewport = b
	c.mu.Unlock()
}

func (c *Client) Viewport() *geo.BBox {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.viewport
}

// Wants reports whether a pickup at lat/lng is inside the client's viewport.
func (c *Client) Wants(lat, lng float64) bool {
	vp := c.Viewport()
	return vp == nil || vp.Contains(geo.Point{Latitude: lat, Longitude: lng})
}

func (c *Client) write(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}

// Ping sends a websocket ping control frame.
func (c *Client) Ping() error {
	return c.write(websocket.PingMessage, nil)
}

// WritePump writes queued events and periodic pings until the client is
// unregistered or a write fails. A failed write closes the connection so the
// reader notices and unregisters.
func (c *Client) WritePump(pingPeriod time.Duration) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case msg, ok := <-c.send:
			if !ok {
				_ = c.write(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.write(websocket.TextMessage, msg); err != nil {
				zap.L().Debug("websocket write failed", zap.String("client_id", c.ID), zap.Error(err))
				c.close()
				return
			}
		case <-ticker.C:
			if err := c.Ping(); err != nil {
				c.close()
				return
			}
		}
	}
}

func (c *Client) close() {
	if c.conn != nil {
		_ = c.conn.Close()
	}
}

// HandleMessage applies a message read from the viewer.
func (c *Client) HandleMessage(data []byte) error {
	var msg ClientMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return eris.Wrap(err, "socket: decode client message")
	}
	if msg.Type != MessageTypeViewport {
		return eris.Errorf("socket: unknown message type %q", msg.Type)
	}
	if len(msg.BBox) == 0 {
		c.SetViewport(nil)
		return nil
	}
	b, err := geo.FromSlice(msg.BBox)
	if err != nil {
		return err
	}
	c.SetViewport(&b)
	return nil
}

// Hub keeps every connected viewer and fans approved pickups out to them.
type Hub struct {
	clients map[string]*Client
	mu      sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]*Client),
	}
}

// Register adds a connection under id and returns its client.
func (h *Hub) Register(id string, conn *websocket.Conn) *Client {
	client := &Client{ID: id, conn: conn, send: make(chan []byte, sendBuffer)}
	h.mu.Lock()
	h.clients[id] = client
	h.mu.Unlock()
	zap.L().Debug("websocket client registered", zap.String("client_id", id))
	return client
}

func (h *Hub) Unregister(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[id]; ok {
		delete(h.clients, id)
		close(c.send)
		zap.L().Debug("websocket client unregistered", zap.String("client_id", id))
	}
}

// Count returns the number of connected viewers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast queues the event for every viewer whose viewport contains the
// pickup. It never blocks on a socket: a viewer whose queue is full is
// dropped and closed.
func (h *Hub) Broadcast(event models.PickupEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		zap.L().Error("marshal pickup event", zap.Error(err))
		return
	}

	var stalled []*Client
	h.mu.RLock()
	for _, c := range h.clients {
		if !c.Wants(event.Pickup.Latitude, event.Pickup.Longitude) {
			continue
		}
		select {
		case c.send <- payload:
		default:
			stalled = append(stalled, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range stalled {
		zap.L().Warn("websocket client stalled, dropping", zap.String("client_id", c.ID))
		h.Unregister(c.ID)
		c.close()
	}
}
