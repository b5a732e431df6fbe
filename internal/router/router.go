// Package router dispatches decoded data channel messages to per-kind
// handlers.
package router

import (
	"errors"
	"log/slog"
	"sync"

	"quizmesh/internal/domain"
	"quizmesh/internal/protocol"
)

// Handler processes one message. from is the relay peer id of the sender.
type Handler func(from string, msg protocol.Message)

// Router maps message kinds to handlers. Malformed and unknown messages are
// logged and dropped.
type Router struct {
	handlers map[protocol.Kind]Handler
	logger   *slog.Logger
}

// New creates an empty router
func New(logger *slog.Logger) *Router {
	return &Router{
		handlers: make(map[protocol.Kind]Handler),
		logger:   logger.With("component", "router"),
	}
}

// Handle registers h for kind, replacing any previous handler
func (r *Router) Handle(kind protocol.Kind, h Handler) {
	r.handlers[kind] = h
}

// On registers a handler that receives the concrete payload type
func On[T protocol.Message](r *Router, fn func(from string, msg T)) {
	var zero T
	r.Handle(zero.Kind(), func(from string, msg protocol.Message) {
		if m, ok := msg.(T); ok {
			fn(from, m)
		}
	})
}

// Dispatch decodes data and runs the handler for its kind. The returned
// error is informational; the message has already been dropped.
func (r *Router) Dispatch(from string, data []byte) error {
	msg, err := protocol.Decode(data)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrUnknownKind):
			r.logger.Debug("dropping unknown message", "from", from, "error", err)
		default:
			r.logger.Warn("dropping malformed message", "from", from, "error", err)
		}
		return err
	}

	h, ok := r.handlers[msg.Kind()]
	if !ok {
		r.logger.Debug("no handler for message", "from", from, "type", msg.Kind())
		return nil
	}

	h(from, msg)
	return nil
}

// Bindings remembers which player each relay peer registered as, so the
// host can reject messages that claim another player's id
type Bindings struct {
	mu       sync.RWMutex
	byPeer   map[string]string
	byPlayer map[string]string
}

// NewBindings creates an empty binding table
func NewBindings() *Bindings {
	return &Bindings{
		byPeer:   make(map[string]string),
		byPlayer: make(map[string]string),
	}
}

// Bind associates peerID with playerID. A player that reconnects through a
// new peer moves to that peer.
func (b *Bindings) Bind(peerID, playerID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if oldPlayer, ok := b.byPeer[peerID]; ok {
		delete(b.byPlayer, oldPlayer)
	}
	if oldPeer, ok := b.byPlayer[playerID]; ok {
		delete(b.byPeer, oldPeer)
	}
	b.byPeer[peerID] = playerID
	b.byPlayer[playerID] = peerID
}

// Player returns the player bound to peerID
func (b *Bindings) Player(peerID string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	id, ok := b.byPeer[peerID]
	return id, ok
}

// Peer returns the peer a player is currently bound to
func (b *Bindings) Peer(playerID string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	id, ok := b.byPlayer[playerID]
	return id, ok
}

// Unbind forgets peerID and returns the player it was bound to
func (b *Bindings) Unbind(peerID string) (string, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	playerID, ok := b.byPeer[peerID]
	if !ok {
		return "", false
	}
	delete(b.byPeer, peerID)
	delete(b.byPlayer, playerID)
	return playerID, true
}

// Owns reports whether peerID is bound to playerID
func (b *Bindings) Owns(peerID, playerID string) bool {
	bound, ok := b.Player(peerID)
	return ok && bound == playerID
}
