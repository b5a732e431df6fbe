// Package relay implements the signaling rendezvous server. Rooms are keyed
// by session code; the relay forwards offer/answer descriptors between the
// members of a room and announces joins and leaves. It never sees game data.
package relay

import (
	"log/slog"
	"sync"
	"time"

	"quizmesh/internal/signaling"
)

// DefaultStaleRoomTimeout is how long a room may sit idle before the
// cleanup loop closes it
const DefaultStaleRoomTimeout = 2 * time.Hour

// Member is a connection that can receive relay frames
type Member interface {
	PeerID() string
	Send(f *signaling.Frame) error
	Close() error
}

// Room is the set of members sharing a session code
type Room struct {
	Code       string
	members    map[string]Member
	createdAt  time.Time
	lastActive time.Time
}

// Hub manages all rooms
type Hub struct {
	rooms        map[string]*Room
	mu           sync.RWMutex
	staleTimeout time.Duration
	logger       *slog.Logger
	done         chan struct{}
	closeOnce    sync.Once
}

// NewHub creates a hub and starts its cleanup loop
func NewHub(staleTimeout time.Duration, logger *slog.Logger) *Hub {
	if staleTimeout <= 0 {
		staleTimeout = DefaultStaleRoomTimeout
	}

	hub := &Hub{
		rooms:        make(map[string]*Room),
		staleTimeout: staleTimeout,
		logger:       logger,
		done:         make(chan struct{}),
	}

	go hub.cleanupLoop()

	return hub
}

// Join adds m to the room for code, creating the room if needed. The join
// is acknowledged to m first, then m and the existing members are told
// about each other.
func (h *Hub) Join(code string, m Member) {
	h.mu.Lock()
	room, ok := h.rooms[code]
	if !ok {
		now := time.Now()
		room = &Room{
			Code:       code,
			members:    make(map[string]Member),
			createdAt:  now,
			lastActive: now,
		}
		h.rooms[code] = room
		h.logger.Info("room created", "code", code)
	}

	existing := make([]Member, 0, len(room.members))
	for _, other := range room.members {
		existing = append(existing, other)
	}
	room.members[m.PeerID()] = m
	room.lastActive = time.Now()
	h.mu.Unlock()

	h.logger.Info("peer joined room", "code", code, "peerID", m.PeerID(), "members", len(existing)+1)

	h.send(m, &signaling.Frame{Type: signaling.FrameJoin, SessionCode: code, PeerID: m.PeerID()})

	for _, other := range existing {
		h.send(other, &signaling.Frame{Type: signaling.FramePeerJoined, SessionCode: code, PeerID: m.PeerID()})
		h.send(m, &signaling.Frame{Type: signaling.FramePeerJoined, SessionCode: code, PeerID: other.PeerID()})
	}
}

// Leave removes the member from its room, tells the remaining members and
// deletes the room once it is empty
func (h *Hub) Leave(code, peerID string) {
	h.mu.Lock()
	room, ok := h.rooms[code]
	if !ok {
		h.mu.Unlock()
		return
	}
	if _, member := room.members[peerID]; !member {
		h.mu.Unlock()
		return
	}

	delete(room.members, peerID)
	remaining := make([]Member, 0, len(room.members))
	for _, other := range room.members {
		remaining = append(remaining, other)
	}
	if len(room.members) == 0 {
		delete(h.rooms, code)
		h.logger.Info("room deleted (empty)", "code", code)
	}
	h.mu.Unlock()

	h.logger.Info("peer left room", "code", code, "peerID", peerID)

	for _, other := range remaining {
		h.send(other, &signaling.Frame{Type: signaling.FramePeerLeft, SessionCode: code, PeerID: peerID})
	}
}

// Forward delivers an offer or answer from one member to another in the same
// room, rewriting PeerID to the sender. It returns false if the target is not
// in the room.
func (h *Hub) Forward(code, from string, f *signaling.Frame) bool {
	h.mu.Lock()
	room, ok := h.rooms[code]
	if !ok {
		h.mu.Unlock()
		return false
	}
	target, ok := room.members[f.PeerID]
	room.lastActive = time.Now()
	h.mu.Unlock()

	if !ok {
		return false
	}

	out := &signaling.Frame{
		Type:        f.Type,
		SessionCode: code,
		PeerID:      from,
		Descriptor:  f.Descriptor,
	}
	return h.send(target, out)
}

func (h *Hub) send(m Member, f *signaling.Frame) bool {
	if err := m.Send(f); err != nil {
		h.logger.Debug("failed to send to peer", "peerID", m.PeerID(), "type", f.Type, "error", err)
		return false
	}
	return true
}

// MemberCount returns the number of members in a room and whether it exists
func (h *Hub) MemberCount(code string) (int, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	room, ok := h.rooms[code]
	if !ok {
		return 0, false
	}
	return len(room.members), true
}

// GetRoomCount returns the number of open rooms
func (h *Hub) GetRoomCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms)
}

// GetTotalPeerCount returns the number of connected peers across all rooms
func (h *Hub) GetTotalPeerCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	total := 0
	for _, room := range h.rooms {
		total += len(room.members)
	}
	return total
}

// Close shuts down the hub and disconnects every member
func (h *Hub) Close() {
	h.closeOnce.Do(func() {
		close(h.done)

		h.mu.Lock()
		rooms := h.rooms
		h.rooms = make(map[string]*Room)
		h.mu.Unlock()

		for _, room := range rooms {
			for _, m := range room.members {
				m.Close()
			}
		}
	})
}

// cleanupLoop periodically closes stale rooms
func (h *Hub) cleanupLoop() {
	ticker := time.NewTicker(10 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-h.done:
			return
		case <-ticker.C:
			h.cleanupStaleRooms(time.Now())
		}
	}
}

// cleanupStaleRooms closes rooms that have been inactive for too long
func (h *Hub) cleanupStaleRooms(now time.Time) int {
	h.mu.Lock()
	stale := make([]*Room, 0)
	for code, room := range h.rooms {
		if now.Sub(room.lastActive) > h.staleTimeout {
			stale = append(stale, room)
			delete(h.rooms, code)
		}
	}
	h.mu.Unlock()

	for _, room := range stale {
		for _, m := range room.members {
			m.Close()
		}
		h.logger.Info("stale room cleaned up", "code", room.Code)
	}
	return len(stale)
}
