package relay

import (
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"quizmesh/internal/domain"
	"quizmesh/internal/signaling"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024

	// Size of the send channel buffer
	sendBufferSize = 64
)

var errConnClosed = errors.New("connection closed")

// Conn is one peer's WebSocket connection to the relay
type Conn struct {
	conn   *websocket.Conn
	hub    *Hub
	peerID string
	code   string
	send   chan []byte
	done   chan struct{}
	logger *slog.Logger
	mu     sync.Mutex
	closed bool
}

// NewConn wraps an upgraded WebSocket connection
func NewConn(conn *websocket.Conn, hub *Hub, peerID string, logger *slog.Logger) *Conn {
	return &Conn{
		conn:   conn,
		hub:    hub,
		peerID: peerID,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
		logger: logger,
	}
}

// PeerID returns the relay-assigned id of this connection
func (c *Conn) PeerID() string {
	return c.peerID
}

// Send queues a frame for delivery
func (c *Conn) Send(f *signaling.Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return errConnClosed
	}

	select {
	case c.send <- data:
		return nil
	default:
		c.logger.Warn("send buffer full, frame dropped", "peerID", c.peerID, "type", f.Type)
		return errors.New("send buffer full")
	}
}

// Close implements Member
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}

	c.closed = true
	close(c.done)
	return c.conn.Close()
}

// Run starts the connection's read and write pumps and blocks until the
// peer goes away
func (c *Conn) Run() {
	go c.writePump()
	c.readPump()
}

// readPump pumps frames from the WebSocket connection into the hub
func (c *Conn) readPump() {
	defer func() {
		if c.code != "" {
			c.hub.Leave(c.code, c.peerID)
		}
		c.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.logger.Debug("websocket read error", "peerID", c.peerID, "error", err)
			}
			break
		}

		c.handleFrame(message)
	}
}

// writePump pumps frames from the send channel to the WebSocket connection
func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
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

// handleFrame processes an incoming frame from the peer. Unknown types are
// ignored so newer clients can talk to this relay.
func (c *Conn) handleFrame(data []byte) {
	f, err := signaling.UnmarshalFrame(data)
	if err != nil {
		c.logger.Debug("invalid frame", "peerID", c.peerID, "error", err)
		return
	}

	switch f.Type {
	case signaling.FrameJoin:
		c.handleJoin(f)
	case signaling.FrameOffer, signaling.FrameAnswer:
		if c.code == "" {
			c.logger.Debug("descriptor before join", "peerID", c.peerID)
			return
		}
		if f.PeerID == "" {
			c.logger.Debug("descriptor without target", "peerID", c.peerID)
			return
		}
		if !c.hub.Forward(c.code, c.peerID, f) {
			c.logger.Warn("failed to forward descriptor", "from", c.peerID, "to", f.PeerID, "type", f.Type)
		}
	default:
		c.logger.Debug("unknown frame type", "peerID", c.peerID, "type", f.Type)
	}
}

// handleJoin puts the connection in a room. A connection joins at most once.
func (c *Conn) handleJoin(f *signaling.Frame) {
	if c.code != "" {
		c.logger.Debug("duplicate join ignored", "peerID", c.peerID)
		return
	}
	if f.SessionCode == "" {
		c.logger.Debug("join without session code", "peerID", c.peerID)
		return
	}

	c.code = domain.NormalizeSessionCode(f.SessionCode).String()
	c.hub.Join(c.code, c)
}
