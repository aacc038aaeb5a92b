package service

import (
	"context"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/rs/zerolog"

	"github.com/teamgrid/chat-api/internal/dto"
)

const clientSendBufferSize = 32

// chatHub tracks live websocket clients and their room subscriptions. The
// presence registry answers "which connection belongs to this user"; the hub
// answers "hand me the wire for this connection".
type chatHub struct {
	mu     sync.RWMutex
	byConn map[string]*chatClient
	rooms  map[uint]map[string]*chatClient
	log    zerolog.Logger
}

func newChatHub(logger zerolog.Logger) *chatHub {
	return &chatHub{
		byConn: make(map[string]*chatClient),
		rooms:  make(map[uint]map[string]*chatClient),
		log:    logger.With().Str("component", "chat_hub").Logger(),
	}
}

func (h *chatHub) register(client *chatClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.byConn[client.id] = client
}

func (h *chatHub) unregister(client *chatClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.byConn, client.id)
	for roomID, subscribers := range h.rooms {
		delete(subscribers, client.id)
		if len(subscribers) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

func (h *chatHub) subscribe(roomID uint, client *chatClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.rooms[roomID]; !ok {
		h.rooms[roomID] = make(map[string]*chatClient)
	}
	h.rooms[roomID][client.id] = client
}

func (h *chatHub) unsubscribe(roomID uint, client *chatClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if subscribers, ok := h.rooms[roomID]; ok {
		delete(subscribers, client.id)
		if len(subscribers) == 0 {
			delete(h.rooms, roomID)
		}
	}
}

// sendTo enqueues the event for one connection. Slow consumers drop frames
// rather than block the fan-out.
func (h *chatHub) sendTo(connectionID string, event dto.SocketEvent) bool {
	h.mu.RLock()
	client, ok := h.byConn[connectionID]
	h.mu.RUnlock()
	if !ok {
		return false
	}
	client.enqueue(event)
	return true
}

// broadcast delivers to every live connection, optionally skipping one.
func (h *chatHub) broadcast(event dto.SocketEvent, exceptConnID string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, client := range h.byConn {
		if id == exceptConnID {
			continue
		}
		client.enqueue(event)
	}
}

// sendToRoom delivers to every subscriber of the room's fan-out channel,
// optionally skipping one connection.
func (h *chatHub) sendToRoom(roomID uint, event dto.SocketEvent, exceptConnID string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, client := range h.rooms[roomID] {
		if id == exceptConnID {
			continue
		}
		client.enqueue(event)
	}
}

// closeStale closes a connection that a fresh registration for the same user
// replaced.
func (h *chatHub) closeStale(connectionID string) {
	h.mu.RLock()
	client, ok := h.byConn[connectionID]
	h.mu.RUnlock()
	if !ok {
		return
	}
	if client.conn != nil {
		_ = client.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "connection replaced"))
	}
	client.close()
	h.log.Debug().Str("connection_id", connectionID).Msg("stale connection closed")
}

// chatClient is one live websocket connection. A connection starts without
// identity, becomes joined after a successful join event, may subscribe to
// any number of rooms, and is terminal once closed.
type chatClient struct {
	id      string
	conn    *websocket.Conn
	send    chan dto.SocketEvent
	service *chatService
	baseCtx context.Context

	joined   bool
	userID   string
	userName string
	rooms    map[uint]struct{}

	closed chan struct{}
	once   sync.Once
}

func (c *chatClient) enqueue(event dto.SocketEvent) {
	select {
	case c.send <- event:
	case <-c.closed:
	default:
		c.service.logger.Warn().
			Str("connection_id", c.id).
			Str("event", event.Event).
			Msg("dropping frame for slow client")
	}
}

func (c *chatClient) emit(event string, payload any) {
	frame, err := dto.NewSocketEvent(event, payload)
	if err != nil {
		c.service.logger.Warn().Err(err).Str("event", event).Msg("failed to encode frame")
		return
	}
	c.enqueue(frame)
}

// reader processes inbound frames in arrival order. It is the only goroutine
// mutating the client's session state, which keeps the per-connection
// ordering guarantee without extra locking.
func (c *chatClient) reader() {
	defer c.close()

	for {
		var frame dto.SocketEvent
		if err := c.conn.ReadJSON(&frame); err != nil {
			c.service.logger.Debug().Err(err).Str("connection_id", c.id).Msg("chat read loop ended")
			return
		}
		c.service.dispatch(c, frame)
	}
}

func (c *chatClient) writer() {
	defer c.close()

	for {
		select {
		case event, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
				c.service.logger.Debug().Err(err).Str("connection_id", c.id).Msg("chat write loop terminated")
				return
			}
		case <-time.After(30 * time.Second):
			if err := c.conn.WriteMessage(websocket.PingMessage, []byte("keepalive")); err != nil {
				c.service.logger.Debug().Err(err).Str("connection_id", c.id).Msg("chat ping failed")
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *chatClient) close() {
	c.once.Do(func() {
		close(c.closed)
		c.service.handleDisconnect(c)
		if c.conn != nil {
			_ = c.conn.Close()
		}
	})
}
