// Package mesh manages the peer links of a session. The host keeps one link
// per player (Mesh); a player keeps a single link to the host (HostLink).
// Descriptors travel through a Signaler, normally a *signaling.Channel.
package mesh

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"quizmesh/internal/domain"
	"quizmesh/internal/peer"
)

// Signaler carries descriptors between peers of one room
type Signaler interface {
	OnPeerJoined(fn func(peerID string))
	OnPeerLeft(fn func(peerID string))
	OnOffer(fn func(peerID, descriptor string))
	OnAnswer(fn func(peerID, descriptor string))
	SendOffer(peerID, descriptor string) error
	SendAnswer(peerID, descriptor string) error
}

// Mesh is the host's set of links, keyed by relay peer id. The host offers
// to every peer the relay announces.
type Mesh struct {
	sig    Signaler
	opts   peer.Options
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	links  map[string]*peer.Link
	closed bool

	onOpen       func(peerID string)
	onMessage    func(peerID string, data []byte)
	onDisconnect func(peerID string)
}

// New creates a host mesh and registers its handlers on sig. Set the
// callbacks before the signaler connects.
func New(sig Signaler, opts peer.Options, logger *slog.Logger) *Mesh {
	ctx, cancel := context.WithCancel(context.Background())
	opts.Logger = logger

	m := &Mesh{
		sig:    sig,
		opts:   opts,
		logger: logger.With("component", "mesh"),
		ctx:    ctx,
		cancel: cancel,
		links:  make(map[string]*peer.Link),
	}

	sig.OnPeerJoined(m.handlePeerJoined)
	sig.OnPeerLeft(m.handlePeerLeft)
	sig.OnAnswer(m.handleAnswer)
	sig.OnOffer(func(peerID, _ string) {
		m.logger.Debug("host ignores offers", "peerID", peerID)
	})

	return m
}

// OnPeerOpen is called when a link to peerID opens
func (m *Mesh) OnPeerOpen(fn func(peerID string)) { m.onOpen = fn }

// OnMessage is called for every message received on any link
func (m *Mesh) OnMessage(fn func(peerID string, data []byte)) { m.onMessage = fn }

// OnDisconnect is called when the current link to peerID closes or fails
func (m *Mesh) OnDisconnect(fn func(peerID string)) { m.onDisconnect = fn }

// Broadcast sends data to every open link and returns how many accepted it.
// Links that are not open are skipped.
func (m *Mesh) Broadcast(data []byte) int {
	sent := 0
	for peerID, link := range m.snapshot() {
		if link.State() != peer.StateOpen {
			m.logger.Debug("broadcast skipped link", "peerID", peerID, "state", link.State())
			continue
		}
		if err := link.Send(data); err != nil {
			m.logger.Warn("broadcast send failed", "peerID", peerID, "error", err)
			continue
		}
		sent++
	}
	return sent
}

// SendTo sends data to one peer
func (m *Mesh) SendTo(peerID string, data []byte) error {
	m.mu.Lock()
	link, ok := m.links[peerID]
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: no link to %s", domain.ErrLinkNotReady, peerID)
	}
	return link.Send(data)
}

// OpenPeers returns the ids of peers with an open link
func (m *Mesh) OpenPeers() []string {
	var ids []string
	for peerID, link := range m.snapshot() {
		if link.State() == peer.StateOpen {
			ids = append(ids, peerID)
		}
	}
	return ids
}

// Close cancels in-flight negotiations and closes every link
func (m *Mesh) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	links := m.links
	m.links = make(map[string]*peer.Link)
	m.mu.Unlock()

	m.cancel()
	for _, link := range links {
		link.Close()
	}
	m.wg.Wait()
	return nil
}

func (m *Mesh) snapshot() map[string]*peer.Link {
	m.mu.Lock()
	defer m.mu.Unlock()

	links := make(map[string]*peer.Link, len(m.links))
	for id, link := range m.links {
		links[id] = link
	}
	return links
}

// handlePeerJoined starts a negotiation with a newly announced peer. A
// previous link to the same peer is replaced.
func (m *Mesh) handlePeerJoined(peerID string) {
	link, err := peer.NewLink(m.opts)
	if err != nil {
		m.logger.Error("failed to create link", "peerID", peerID, "error", err)
		return
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		link.Close()
		return
	}
	old := m.links[peerID]
	m.links[peerID] = link
	m.wg.Add(1)
	m.mu.Unlock()

	if old != nil {
		m.logger.Info("replacing link", "peerID", peerID)
		old.Close()
	}

	m.wire(peerID, link)

	go func() {
		defer m.wg.Done()
		m.offer(peerID, link)
	}()
}

func (m *Mesh) offer(peerID string, link *peer.Link) {
	token, err := link.CreateOffer(m.ctx)
	if err != nil {
		m.logger.Warn("offer failed", "peerID", peerID, "error", err)
		link.Close()
		return
	}

	if err := m.sig.SendOffer(peerID, token); err != nil {
		m.logger.Warn("failed to send offer", "peerID", peerID, "error", err)
		link.Close()
		return
	}
	m.logger.Debug("offer sent", "peerID", peerID)
}

func (m *Mesh) handleAnswer(peerID, descriptor string) {
	m.mu.Lock()
	link, ok := m.links[peerID]
	m.mu.Unlock()

	if !ok {
		m.logger.Debug("answer from unknown peer", "peerID", peerID)
		return
	}

	if err := link.AcceptAnswer(descriptor); err != nil {
		m.logger.Warn("failed to apply answer", "peerID", peerID, "error", err)
		link.Close()
	}
}

func (m *Mesh) handlePeerLeft(peerID string) {
	m.mu.Lock()
	link, ok := m.links[peerID]
	m.mu.Unlock()

	if ok {
		m.logger.Info("peer left relay", "peerID", peerID)
		link.Close()
	}
}

// wire connects a link's events to the mesh callbacks. Events from a link
// that has since been replaced are dropped.
func (m *Mesh) wire(peerID string, link *peer.Link) {
	link.OnOpen(func() {
		m.logger.Info("link open", "peerID", peerID)
		if m.onOpen != nil {
			m.onOpen(peerID)
		}
	})

	link.OnMessage(func(data []byte) {
		if m.onMessage != nil {
			m.onMessage(peerID, data)
		}
	})

	link.OnClose(func(state peer.State) {
		m.mu.Lock()
		current := m.links[peerID] == link
		if current {
			delete(m.links, peerID)
		}
		closed := m.closed
		m.mu.Unlock()

		if !current || closed {
			return
		}

		m.logger.Info("link lost", "peerID", peerID, "state", state)
		if m.onDisconnect != nil {
			m.onDisconnect(peerID)
		}
	})
}
