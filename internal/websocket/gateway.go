package websocket

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"collab-engine/internal/broadcast"
	"collab-engine/internal/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
	sendBuffer     = 256
)

var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// client is one live websocket connection for a user.
type client struct {
	conn      *websocket.Conn
	send      chan []byte
	userID    uuid.UUID
	sessionID uuid.UUID
}

// Gateway tracks live websocket connections per user and implements the
// engine's broadcast channel. Sends are non-blocking: a slow client's full
// buffer drops the event rather than stalling operation processing.
type Gateway struct {
	mu      sync.RWMutex
	clients map[uuid.UUID][]*client

	touch   func(sessionID uuid.UUID)
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// NewGateway creates a gateway. touch is invoked for every inbound frame so
// client heartbeats keep sessions alive.
func NewGateway(touch func(sessionID uuid.UUID), m *metrics.Metrics, logger *zap.Logger) *Gateway {
	return &Gateway{
		clients: make(map[uuid.UUID][]*client),
		touch:   touch,
		metrics: m,
		logger:  logger,
	}
}

// Send implements broadcast.Channel. Fire-and-forget to every live
// connection of the user.
func (g *Gateway) Send(userID uuid.UUID, event broadcast.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	g.mu.RLock()
	conns := g.clients[userID]
	g.mu.RUnlock()

	for _, c := range conns {
		select {
		case c.send <- payload:
		default:
			g.metrics.BroadcastsDroppedTotal.Inc()
			g.logger.Warn("dropped event on full client buffer",
				zap.String("user_id", userID.String()),
				zap.String("event", event.Type))
		}
	}
	return nil
}

// Attach upgrades the HTTP request and runs the connection's pumps. Blocks
// until the connection closes.
func (g *Gateway) Attach(w http.ResponseWriter, r *http.Request, userID, sessionID uuid.UUID) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}

	c := &client{
		conn:      conn,
		send:      make(chan []byte, sendBuffer),
		userID:    userID,
		sessionID: sessionID,
	}
	g.register(c)
	g.logger.Info("websocket attached",
		zap.String("user_id", userID.String()),
		zap.String("session_id", sessionID.String()))

	go g.writePump(c)
	g.readPump(c)
	return nil
}

func (g *Gateway) register(c *client) {
	g.mu.Lock()
	g.clients[c.userID] = append(g.clients[c.userID], c)
	g.mu.Unlock()
}

func (g *Gateway) unregister(c *client) {
	g.mu.Lock()
	defer g.mu.Unlock()

	conns := g.clients[c.userID]
	for i, existing := range conns {
		if existing == c {
			g.clients[c.userID] = append(conns[:i], conns[i+1:]...)
			close(c.send)
			break
		}
	}
	if len(g.clients[c.userID]) == 0 {
		delete(g.clients, c.userID)
	}
}

func (g *Gateway) readPump(c *client) {
	defer func() {
		g.unregister(c)
		c.conn.Close()
		g.logger.Info("websocket detached",
			zap.String("user_id", c.userID.String()),
			zap.String("session_id", c.sessionID.String()))
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		g.touch(c.sessionID)
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				g.logger.Warn("websocket read error", zap.Error(err))
			}
			break
		}
		// Any inbound frame counts as a heartbeat.
		g.touch(c.sessionID)
	}
}

func (g *Gateway) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
