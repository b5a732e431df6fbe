package mesh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"quizmesh/internal/domain"
	"quizmesh/internal/peer"
)

// HostLink is a player's link to the host. It answers the host's offer. An
// offer that arrives while the link is open is held and answered once that
// link closes; a link that has not opened yet is replaced by the newer offer.
type HostLink struct {
	sig    Signaler
	opts   peer.Options
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu      sync.Mutex
	link    *peer.Link
	hostID  string
	pending *offer
	lastErr error
	closed  bool

	opened     chan struct{}
	openOnce   sync.Once
	done       chan struct{}
	onHostOpen func()
	onMessage  func([]byte)
	onHostLost func()
}

type offer struct {
	peerID     string
	descriptor string
}

// NewHostLink creates a player link and registers its handlers on sig
func NewHostLink(sig Signaler, opts peer.Options, logger *slog.Logger) *HostLink {
	ctx, cancel := context.WithCancel(context.Background())
	opts.Logger = logger

	h := &HostLink{
		sig:    sig,
		opts:   opts,
		logger: logger.With("component", "hostlink"),
		ctx:    ctx,
		cancel: cancel,
		opened: make(chan struct{}),
		done:   make(chan struct{}),
	}

	sig.OnOffer(h.handleOffer)
	sig.OnPeerJoined(func(string) {})
	sig.OnPeerLeft(h.handlePeerLeft)
	sig.OnAnswer(func(peerID, _ string) {
		h.logger.Debug("player ignores answers", "peerID", peerID)
	})

	return h
}

// OnHostOpen is called each time a link to the host opens, before WaitOpen
// returns
func (h *HostLink) OnHostOpen(fn func()) { h.onHostOpen = fn }

// OnMessage is called for every message received from the host
func (h *HostLink) OnMessage(fn func([]byte)) { h.onMessage = fn }

// OnHostLost is called when an open link to the host closes or fails
func (h *HostLink) OnHostLost(fn func()) { h.onHostLost = fn }

// HostID returns the relay peer id of the host, empty before an offer arrives
func (h *HostLink) HostID() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hostID
}

// WaitOpen blocks until the link to the host is open, ctx ends or the link
// is closed. A ctx deadline is reported as domain.ErrNegotiationTimeout.
func (h *HostLink) WaitOpen(ctx context.Context) error {
	select {
	case <-h.opened:
		return nil
	case <-h.done:
		return domain.ErrLinkClosed
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			h.mu.Lock()
			lastErr := h.lastErr
			h.mu.Unlock()
			if lastErr != nil {
				return fmt.Errorf("%w: %v", domain.ErrNegotiationTimeout, lastErr)
			}
			return fmt.Errorf("%w: link to host not open", domain.ErrNegotiationTimeout)
		}
		return ctx.Err()
	}
}

// SendToHost sends data to the host
func (h *HostLink) SendToHost(data []byte) error {
	h.mu.Lock()
	link := h.link
	closed := h.closed
	h.mu.Unlock()

	if closed {
		return domain.ErrLinkClosed
	}
	if link == nil {
		return domain.ErrLinkNotReady
	}
	return link.Send(data)
}

// Close cancels an in-flight negotiation and closes the link
func (h *HostLink) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	link := h.link
	h.mu.Unlock()

	close(h.done)
	h.cancel()
	if link != nil {
		link.Close()
	}
	h.wg.Wait()
	return nil
}

// handleOffer answers an offer. While the current link is open the offer is
// held until that link closes; a link still negotiating is replaced.
func (h *HostLink) handleOffer(peerID, descriptor string) {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return
	}

	stale := h.link
	if stale != nil && stale.State().IsTerminal() {
		stale = nil
	}
	if stale != nil && stale.State() == peer.StateOpen {
		h.pending = &offer{peerID: peerID, descriptor: descriptor}
		current := h.hostID
		h.mu.Unlock()
		h.logger.Debug("holding offer while link is open", "peerID", peerID, "hostID", current)
		return
	}

	link, err := peer.NewLink(h.opts)
	if err != nil {
		h.lastErr = err
		h.mu.Unlock()
		h.logger.Error("failed to create link", "error", err)
		return
	}
	previous := h.hostID
	h.link = link
	h.hostID = peerID
	h.pending = nil
	h.wg.Add(1)
	h.mu.Unlock()

	if stale != nil {
		h.logger.Info("replacing unopened link", "hostID", previous, "peerID", peerID)
		stale.Close()
	}

	h.wire(link)

	go func() {
		defer h.wg.Done()
		h.answer(peerID, link, descriptor)
	}()
}

func (h *HostLink) answer(peerID string, link *peer.Link, descriptor string) {
	token, err := link.CreateAnswer(h.ctx, descriptor)
	if err != nil {
		h.setErr(err)
		h.logger.Warn("answer failed", "peerID", peerID, "error", err)
		link.Close()
		return
	}

	if err := h.sig.SendAnswer(peerID, token); err != nil {
		h.setErr(err)
		h.logger.Warn("failed to send answer", "peerID", peerID, "error", err)
		link.Close()
		return
	}
	h.logger.Debug("answer sent", "peerID", peerID)
}

// handlePeerLeft closes the link when the relay reports the host gone, so a
// host that comes back under the same code can be answered
func (h *HostLink) handlePeerLeft(peerID string) {
	h.mu.Lock()
	if h.pending != nil && h.pending.peerID == peerID {
		h.pending = nil
	}
	var link *peer.Link
	if !h.closed && peerID == h.hostID {
		link = h.link
	}
	h.mu.Unlock()

	if link != nil && !link.State().IsTerminal() {
		h.logger.Info("host left relay, closing link", "peerID", peerID)
		link.Close()
	}
}

func (h *HostLink) setErr(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.lastErr = err
}

func (h *HostLink) wire(link *peer.Link) {
	var opened atomic.Bool

	link.OnOpen(func() {
		opened.Store(true)
		h.mu.Lock()
		current := h.link == link
		h.mu.Unlock()
		if !current {
			return
		}

		h.logger.Info("link to host open", "hostID", h.HostID())
		if h.onHostOpen != nil {
			h.onHostOpen()
		}
		h.openOnce.Do(func() { close(h.opened) })
	})

	link.OnMessage(func(data []byte) {
		if h.onMessage != nil {
			h.onMessage(data)
		}
	})

	link.OnClose(func(state peer.State) {
		h.mu.Lock()
		current := h.link == link
		closed := h.closed
		pending := h.pending
		if current {
			h.pending = nil
		}
		h.mu.Unlock()

		if !current || closed {
			return
		}

		if opened.Load() {
			h.logger.Info("link to host lost", "state", state)
			if h.onHostLost != nil {
				h.onHostLost()
			}
		}

		if pending != nil {
			h.logger.Info("answering held offer", "peerID", pending.peerID)
			h.handleOffer(pending.peerID, pending.descriptor)
		}
	})
}
