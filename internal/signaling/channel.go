package signaling

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"quizmesh/internal/domain"
)

const (
	// Time allowed to write a message to the relay
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the relay
	pongWait = 60 * time.Second

	// Send pings to the relay with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10

	// Maximum frame size accepted from the relay. Descriptors with a full
	// candidate list are a few KB.
	maxFrameSize = 64 * 1024

	// Size of the send channel buffer
	sendBufferSize = 64

	// How long Connect waits for the relay to acknowledge the join
	ackWait = 10 * time.Second
)

// Channel is a persistent connection to the signaling relay for one session
// code. Register handlers before calling Connect; they run on the channel's
// read goroutine and must not block.
type Channel struct {
	url    string
	dialer *websocket.Dialer
	logger *slog.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	code      domain.SessionCode
	localID   string
	send      chan []byte
	done      chan struct{}
	closed    bool
	closeOnce sync.Once

	onPeerJoined func(peerID string)
	onPeerLeft   func(peerID string)
	onOffer      func(peerID, descriptor string)
	onAnswer     func(peerID, descriptor string)
	onDisconnect func(err error)
}

// NewChannel creates an unconnected channel for the relay at url (ws:// or wss://)
func NewChannel(url string, logger *slog.Logger) *Channel {
	return &Channel{
		url: url,
		dialer: &websocket.Dialer{
			HandshakeTimeout: 10 * time.Second,
		},
		logger: logger.With("component", "signaling"),
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
	}
}

// OnPeerJoined is called once per remote peer that shares the room
func (c *Channel) OnPeerJoined(fn func(peerID string)) { c.onPeerJoined = fn }

// OnPeerLeft is called when a remote peer's relay connection goes away
func (c *Channel) OnPeerLeft(fn func(peerID string)) { c.onPeerLeft = fn }

// OnOffer is called with an offer descriptor and the peer that sent it
func (c *Channel) OnOffer(fn func(peerID, descriptor string)) { c.onOffer = fn }

// OnAnswer is called with an answer descriptor and the peer that sent it
func (c *Channel) OnAnswer(fn func(peerID, descriptor string)) { c.onAnswer = fn }

// OnDisconnect is called once if the relay connection drops without Close
func (c *Channel) OnDisconnect(fn func(err error)) { c.onDisconnect = fn }

// LocalID returns the peer id the relay assigned to this connection
func (c *Channel) LocalID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.localID
}

// Code returns the session code this channel joined
func (c *Channel) Code() domain.SessionCode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.code
}

// Connect dials the relay, joins the room for code and waits for the relay's
// acknowledgement. Any failure is reported as domain.ErrSignalingUnavailable.
func (c *Channel) Connect(ctx context.Context, code domain.SessionCode) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return fmt.Errorf("%w: channel closed", domain.ErrSignalingUnavailable)
	}
	if c.conn != nil {
		c.mu.Unlock()
		return fmt.Errorf("%w: already connected", domain.ErrSignalingUnavailable)
	}
	c.mu.Unlock()

	conn, _, err := c.dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %v", domain.ErrSignalingUnavailable, c.url, err)
	}

	localID, pending, err := c.handshake(ctx, conn, code)
	if err != nil {
		conn.Close()
		return fmt.Errorf("%w: %v", domain.ErrSignalingUnavailable, err)
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return fmt.Errorf("%w: channel closed", domain.ErrSignalingUnavailable)
	}
	c.conn = conn
	c.code = code
	c.localID = localID
	c.mu.Unlock()

	c.logger.Info("joined relay room", "code", code, "peerID", localID)

	for _, f := range pending {
		c.dispatch(f)
	}

	go c.writePump()
	go c.readPump()

	return nil
}

// handshake sends the join frame and reads until the relay echoes it back.
// Frames that arrive before the ack are returned for later dispatch.
func (c *Channel) handshake(ctx context.Context, conn *websocket.Conn, code domain.SessionCode) (string, []*Frame, error) {
	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	deadline := time.Now().Add(ackWait)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	conn.SetWriteDeadline(deadline)
	if err := conn.WriteJSON(&Frame{Type: FrameJoin, SessionCode: string(code)}); err != nil {
		return "", nil, fmt.Errorf("send join: %w", err)
	}

	conn.SetReadLimit(maxFrameSize)
	conn.SetReadDeadline(deadline)

	var pending []*Frame
	for {
		var f Frame
		if err := conn.ReadJSON(&f); err != nil {
			if ctx.Err() != nil {
				return "", nil, ctx.Err()
			}
			return "", nil, fmt.Errorf("await join ack: %w", err)
		}
		if f.Type == FrameJoin {
			if f.PeerID == "" {
				return "", nil, errors.New("join ack without peer id")
			}
			conn.SetReadDeadline(time.Time{})
			conn.SetWriteDeadline(time.Time{})
			return f.PeerID, pending, nil
		}
		pending = append(pending, &f)
	}
}

// SendOffer forwards an offer descriptor to peerID through the relay
func (c *Channel) SendOffer(peerID, descriptor string) error {
	return c.enqueue(&Frame{Type: FrameOffer, PeerID: peerID, Descriptor: descriptor})
}

// SendAnswer forwards an answer descriptor to peerID through the relay
func (c *Channel) SendAnswer(peerID, descriptor string) error {
	return c.enqueue(&Frame{Type: FrameAnswer, PeerID: peerID, Descriptor: descriptor})
}

func (c *Channel) enqueue(f *Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed || c.conn == nil {
		return fmt.Errorf("%w: not connected", domain.ErrSignalingUnavailable)
	}

	f.SessionCode = string(c.code)
	data, err := f.Marshal()
	if err != nil {
		return err
	}

	select {
	case c.send <- data:
		return nil
	default:
		c.logger.Warn("send buffer full, frame dropped", "type", f.Type, "peerID", f.PeerID)
		return fmt.Errorf("%w: send buffer full", domain.ErrSignalingUnavailable)
	}
}

// Close releases the relay connection. It is idempotent and safe to call on
// a channel that never connected.
func (c *Channel) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		conn := c.conn
		c.mu.Unlock()

		close(c.done)
		if conn != nil {
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(writeWait))
			err = conn.Close()
		}
	})
	return err
}

func (c *Channel) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// readPump pumps frames from the relay to the registered handlers
func (c *Channel) readPump() {
	var readErr error
	defer func() {
		dropped := !c.isClosed()
		c.Close()
		if dropped && c.onDisconnect != nil {
			c.onDisconnect(readErr)
		}
	}()

	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn("relay connection lost", "error", err)
			}
			readErr = err
			return
		}

		f, err := UnmarshalFrame(data)
		if err != nil {
			c.logger.Debug("ignoring unparsable relay frame", "error", err)
			continue
		}
		c.dispatch(f)
	}
}

// writePump pumps frames from the send channel to the relay
func (c *Channel) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			return
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Debug("relay write failed", "error", err)
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

// dispatch routes a relay frame to its handler. Unknown types are ignored.
func (c *Channel) dispatch(f *Frame) {
	switch f.Type {
	case FramePeerJoined:
		if c.onPeerJoined != nil && f.PeerID != "" {
			c.onPeerJoined(f.PeerID)
		}
	case FramePeerLeft:
		if c.onPeerLeft != nil && f.PeerID != "" {
			c.onPeerLeft(f.PeerID)
		}
	case FrameOffer:
		if c.onOffer != nil {
			c.onOffer(f.PeerID, f.Descriptor)
		}
	case FrameAnswer:
		if c.onAnswer != nil {
			c.onAnswer(f.PeerID, f.Descriptor)
		}
	default:
		c.logger.Debug("ignoring relay frame", "type", f.Type)
	}
}
