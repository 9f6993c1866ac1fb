package websocket

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/KevinKickass/OpenMatrixCore/internal/auth"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Time allowed for the auth message
	authWait = 10 * time.Second

	// Maximum message size allowed from peer
	maxMessageSize = 8192

	// Send channel buffer size
	sendBufferSize = 256
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client represents a WebSocket client connection
type Client struct {
	hub         *Hub
	conn        *websocket.Conn
	send        chan []byte
	logger      *zap.Logger
	statusOnly  bool
	registered  bool
	permissions []auth.Permission
	subject     string
}

// clientMessage is what a client may send
type clientMessage struct {
	Type  string `json:"type"`
	Token string `json:"token,omitempty"`
}

func (c *Client) remoteAddr() string {
	return c.conn.RemoteAddr().String()
}

func (c *Client) wants(t MessageType) bool {
	return !c.statusOnly || t.IsStatus()
}

// readPump handles reading messages from the WebSocket connection
func (c *Client) readPump() {
	defer func() {
		if !c.registered {
			// writePump flushes pending auth replies, then closes
			close(c.send)
			return
		}
		select {
		case c.hub.unregister <- c:
		case <-c.hub.stop:
		}
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(authWait))
	c.conn.SetPongHandler(func(string) error {
		if c.registered {
			c.conn.SetReadDeadline(time.Now().Add(pongWait))
		}
		return nil
	})

	for {
		var msg clientMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err,
				websocket.CloseGoingAway,
				websocket.CloseAbnormalClosure) {
				c.logger.Warn("WebSocket read error",
					zap.Error(err),
					zap.String("remote_addr", c.remoteAddr()))
			}
			return
		}

		// First message MUST be authentication
		if !c.registered {
			if !c.authenticate(msg) {
				return
			}
			continue
		}

		c.handleMessage(msg)
	}
}

func (c *Client) authenticate(msg clientMessage) bool {
	if msg.Type != "auth" {
		c.sendDirect(authFailed("First message must be authentication"))
		return false
	}
	if msg.Token == "" {
		c.sendDirect(authFailed("Missing token in auth message"))
		return false
	}

	permissions, claims, err := c.hub.authService.ValidateToken(msg.Token)
	if err != nil {
		c.logger.Warn("WebSocket authentication failed",
			zap.Error(err),
			zap.String("remote_addr", c.remoteAddr()))
		c.sendDirect(authFailed("Invalid or expired token"))
		return false
	}

	c.permissions = permissions
	c.subject = claims.Subject
	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	c.sendDirect(map[string]any{
		"type":        "auth_success",
		"timestamp":   time.Now(),
		"permissions": permissions,
	})
	if !c.statusOnly {
		if snap, ok := c.hub.snapshot(); ok {
			c.sendDirect(snap)
		}
	}

	c.logger.Info("WebSocket client authenticated",
		zap.String("remote_addr", c.remoteAddr()),
		zap.String("subject", c.subject),
		zap.Any("permissions", permissions))

	// Erst nach Auth beim Hub registrieren
	select {
	case c.hub.register <- c:
		c.registered = true
		return true
	case <-c.hub.stop:
		return false
	}
}

func authFailed(reason string) map[string]any {
	return map[string]any{
		"type":      "auth_failed",
		"timestamp": time.Now(),
		"reason":    reason,
	}
}

// sendDirect queues a message before the client is handed to the hub.
func (c *Client) sendDirect(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		c.logger.Error("Failed to marshal message", zap.Error(err))
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (c *Client) handleMessage(msg clientMessage) {
	switch msg.Type {
	case "snapshot":
		if snap, ok := c.hub.snapshot(); ok {
			c.hub.sendTo(c, snap)
		}
	default:
		c.logger.Debug("Ignoring client message",
			zap.String("remote_addr", c.remoteAddr()),
			zap.String("type", msg.Type))
	}
}

// writePump handles writing messages to the WebSocket connection
func (c *Client) writePump() {
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
				// Hub closed the channel
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

// ServeWs upgrades the request. The client joins the hub once its first
// message authenticates it. statusOnly limits it to connection and system
// status messages.
func ServeWs(hub *Hub, w http.ResponseWriter, r *http.Request, statusOnly bool) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		hub.logger.Error("WebSocket upgrade error",
			zap.Error(err),
			zap.String("remote_addr", r.RemoteAddr))
		return
	}

	client := &Client{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBufferSize),
		logger:     hub.logger,
		statusOnly: statusOnly,
	}

	go client.writePump()
	go client.readPump()
}
