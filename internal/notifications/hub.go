package notifications

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Hub fans service-request updates out to connected dashboard clients
// over websockets. Clients register with their employee identity so the
// dispatcher can target the in-app channel per recipient.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}

	upgrader websocket.Upgrader
}

type client struct {
	employeeID int
	conn       *websocket.Conn
	send       chan []byte
}

// NewHub creates an empty websocket hub
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeWS upgrades an HTTP request and joins the connection to the hub.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, employeeID int) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &client{employeeID: employeeID, conn: conn, send: make(chan []byte, 16)}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	go h.writeLoop(c)
	go h.readLoop(c)
	return nil
}

// BroadcastServiceRequestUpdate pushes a change notification for one
// request to every connected client.
func (h *Hub) BroadcastServiceRequestUpdate(serviceRequestID int, changeType string, payload any) {
	message, err := json.Marshal(map[string]any{
		"service_request_id": serviceRequestID,
		"change_type":        changeType,
		"payload":            payload,
		"at":                 time.Now().UTC(),
	})
	if err != nil {
		log.Printf("hub: marshal broadcast: %v", err)
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- message:
		default:
			// Slow consumer; drop rather than block the broadcast.
		}
	}
}

// SendToEmployee delivers an in-app notification to one recipient's open
// connections. Returns false when the employee has no connection.
func (h *Hub) SendToEmployee(employeeID int, subject, body string) bool {
	message, err := json.Marshal(map[string]any{
		"subject": subject,
		"body":    body,
		"at":      time.Now().UTC(),
	})
	if err != nil {
		log.Printf("hub: marshal notification: %v", err)
		return false
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	delivered := false
	for c := range h.clients {
		if c.employeeID != employeeID {
			continue
		}
		select {
		case c.send <- message:
			delivered = true
		default:
		}
	}
	return delivered
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()
	for message := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
		if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
			return
		}
	}
}

func (h *Hub) readLoop(c *client) {
	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
		close(c.send)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(512)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
