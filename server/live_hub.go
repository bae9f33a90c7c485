package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"Soundscape/core/engine"
	"Soundscape/logger"
)

// MessageType tags frames on the live feed.
type MessageType string

const (
	MsgTypeStatus MessageType = "status" // periodic mixer snapshot
	MsgTypeEvent  MessageType = "event"  // playback transition
	MsgTypePing   MessageType = "ping"
	MsgTypePong   MessageType = "pong"
)

// statusInterval gives roughly 20 frames per second, enough for sliders
// to follow automation smoothly.
const statusInterval = 50 * time.Millisecond

// WSMessage is one frame on the live feed.
type WSMessage struct {
	Type      MessageType   `json:"type"`
	Status    *mixerStatus  `json:"status,omitempty"`
	Event     *engine.Event `json:"event,omitempty"`
	Timestamp int64         `json:"timestamp"`
}

// liveClient is one WebSocket subscriber.
type liveClient struct {
	id   string
	hub  *LiveHub
	conn *websocket.Conn
	send chan []byte
	pong chan struct{}
}

// LiveHub pushes mixer status and engine events to WebSocket clients.
type LiveHub struct {
	api *APIHandler

	mu      sync.RWMutex
	clients map[*liveClient]bool

	register   chan *liveClient
	unregister chan *liveClient
	events     chan engine.Event
	done       chan struct{}

	upgrader websocket.Upgrader
}

func NewLiveHub(api *APIHandler) *LiveHub {
	return &LiveHub{
		api:        api,
		clients:    make(map[*liveClient]bool),
		register:   make(chan *liveClient),
		unregister: make(chan *liveClient),
		events:     make(chan engine.Event, 256),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Run subscribes to engine events and serves clients until ctx ends.
func (h *LiveHub) Run(ctx context.Context) {
	unsubscribe := h.api.mixer.Engine().Subscribe(func(ev engine.Event) {
		select {
		case h.events <- ev:
		default:
			// slow consumer; status frames carry the state anyway
		}
	})
	defer unsubscribe()
	defer close(h.done)

	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			logger.Info("live client registered", logger.String("client", c.id))

		case c := <-h.unregister:
			h.removeClient(c)

		case ev := <-h.events:
			h.broadcast(&WSMessage{Type: MsgTypeEvent, Event: &ev})

		case <-ticker.C:
			if h.ClientCount() == 0 {
				continue
			}
			st := h.api.currentStatus()
			h.broadcast(&WSMessage{Type: MsgTypeStatus, Status: &st})

		case <-ctx.Done():
			h.cleanup()
			return
		}
	}
}

func (h *LiveHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *LiveHub) removeClient(c *liveClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
		logger.Info("live client unregistered", logger.String("client", c.id))
	}
}

func (h *LiveHub) broadcast(msg *WSMessage) {
	msg.Timestamp = time.Now().UnixMilli()
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Warn("marshal live frame failed", logger.ErrorField(err))
		return
	}

	h.mu.RLock()
	clientList := make([]*liveClient, 0, len(h.clients))
	for c := range h.clients {
		clientList = append(clientList, c)
	}
	h.mu.RUnlock()

	for _, c := range clientList {
		select {
		case c.send <- data:
		default:
			// send buffer full, drop the client
			h.removeClient(c)
		}
	}
}

func (h *LiveHub) cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
}

// ServeWS upgrades the request and attaches the client to the hub.
func (h *LiveHub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Error("websocket upgrade failed", logger.ErrorField(err))
		return
	}
	c := &liveClient{
		id:   uuid.NewString(),
		hub:  h,
		conn: conn,
		send: make(chan []byte, 64),
		pong: make(chan struct{}, 1),
	}
	select {
	case h.register <- c:
	case <-h.done:
		conn.Close()
		return
	}
	go c.writePump()
	go c.readPump()
}

// readPump only handles pings and disconnects; the feed is one-way.
func (c *liveClient) readPump() {
	defer func() {
		select {
		case c.hub.unregister <- c:
		case <-c.hub.done:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("websocket read error", logger.ErrorField(err), logger.String("client", c.id))
			}
			return
		}
		var msg WSMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		if msg.Type == MsgTypePing {
			select {
			case c.pong <- struct{}{}:
			default:
			}
		}
	}
}

func (c *liveClient) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-c.pong:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteJSON(&WSMessage{Type: MsgTypePong, Timestamp: time.Now().UnixMilli()}); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
