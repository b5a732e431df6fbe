// Package peer wraps a single WebRTC peer connection carrying one ordered,
// reliable data channel. Descriptors are exchanged as complete tokens after
// ICE gathering finishes, so no trickle candidates cross the relay.
package peer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"quizmesh/internal/domain"
	"quizmesh/internal/logging"
)

// ChannelLabel is the label of the game data channel
const ChannelLabel = "gameChannel"

// DefaultNegotiationTimeout bounds ICE gathering when Options leaves it unset
const DefaultNegotiationTimeout = 15 * time.Second

// Options configures a Link
type Options struct {
	STUNServers        []string
	NegotiationTimeout time.Duration
	Logger             *slog.Logger

	// LoopbackOnly gathers host candidates on loopback addresses only and
	// ignores STUNServers. Used for same-machine sessions and tests.
	LoopbackOnly bool
}

// Link is one peer connection with its game data channel
type Link struct {
	pc      *webrtc.PeerConnection
	timeout time.Duration
	logger  *slog.Logger

	mu        sync.Mutex
	state     State
	dc        *webrtc.DataChannel
	onOpen    []func()
	onMessage func([]byte)
	onClose   []func(State)
}

// NewLink creates an Idle link
func NewLink(opts Options) (*Link, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	timeout := opts.NegotiationTimeout
	if timeout <= 0 {
		timeout = DefaultNegotiationTimeout
	}

	se := webrtc.SettingEngine{
		LoggerFactory: logging.PionFactory{Logger: logger},
	}

	cfg := webrtc.Configuration{}
	if opts.LoopbackOnly {
		se.SetIncludeLoopbackCandidate(true)
		se.SetNetworkTypes([]webrtc.NetworkType{webrtc.NetworkTypeUDP4})
		se.SetIPFilter(func(ip net.IP) bool { return ip.IsLoopback() })
	} else if len(opts.STUNServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: opts.STUNServers}}
	}

	api := webrtc.NewAPI(webrtc.WithSettingEngine(se))
	pc, err := api.NewPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	l := &Link{
		pc:      pc,
		timeout: timeout,
		logger:  logger.With("component", "peer"),
		state:   StateIdle,
	}

	pc.OnDataChannel(func(dc *webrtc.DataChannel) {
		if dc.Label() != ChannelLabel {
			l.logger.Debug("ignoring unexpected data channel", "label", dc.Label())
			return
		}
		l.bindChannel(dc)
	})

	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		l.logger.Debug("peer connection state changed", "state", s.String())
		switch s {
		case webrtc.PeerConnectionStateFailed:
			l.finish(StateErrored)
			go l.pc.Close()
		case webrtc.PeerConnectionStateClosed:
			l.finish(StateClosed)
		}
	})

	return l, nil
}

// State returns the current lifecycle state
func (l *Link) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// OnOpen registers fn to run once the data channel opens. If the link is
// already open fn runs immediately.
func (l *Link) OnOpen(fn func()) {
	l.mu.Lock()
	if l.state == StateOpen {
		l.mu.Unlock()
		fn()
		return
	}
	l.onOpen = append(l.onOpen, fn)
	l.mu.Unlock()
}

// OnMessage sets the handler for inbound data channel messages
func (l *Link) OnMessage(fn func([]byte)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onMessage = fn
}

// OnClose registers fn to run once when the link reaches Closed or Errored.
// If the link is already terminal fn runs immediately.
func (l *Link) OnClose(fn func(State)) {
	l.mu.Lock()
	if l.state.IsTerminal() {
		state := l.state
		l.mu.Unlock()
		fn(state)
		return
	}
	l.onClose = append(l.onClose, fn)
	l.mu.Unlock()
}

// CreateOffer opens the data channel, builds the offer and returns it as a
// token once ICE gathering completes. The link ends in
// AwaitingRemoteDescriptor.
func (l *Link) CreateOffer(ctx context.Context) (string, error) {
	if err := l.transition(StateOffering); err != nil {
		return "", err
	}

	dc, err := l.pc.CreateDataChannel(ChannelLabel, nil)
	if err != nil {
		return "", l.fail(fmt.Errorf("create data channel: %w", err))
	}
	l.bindChannel(dc)

	offer, err := l.pc.CreateOffer(nil)
	if err != nil {
		return "", l.fail(fmt.Errorf("create offer: %w", err))
	}

	token, err := l.gather(ctx, offer)
	if err != nil {
		return "", l.fail(err)
	}

	if err := l.transition(StateAwaitingRemoteDescriptor); err != nil {
		return "", err
	}
	return token, nil
}

// CreateAnswer applies a remote offer token and returns the answer token
// once ICE gathering completes. The link ends in Negotiating.
func (l *Link) CreateAnswer(ctx context.Context, offerToken string) (string, error) {
	offer, err := DecodeToken(offerToken)
	if err != nil {
		return "", err
	}
	if offer.Type != webrtc.SDPTypeOffer {
		return "", fmt.Errorf("%w: expected offer, got %s", domain.ErrMalformedDescriptor, offer.Type)
	}

	if err := l.transitionFrom(StateIdle, StateNegotiating); err != nil {
		return "", err
	}

	if err := l.pc.SetRemoteDescription(offer); err != nil {
		return "", l.fail(fmt.Errorf("%w: set remote offer: %v", domain.ErrMalformedDescriptor, err))
	}

	answer, err := l.pc.CreateAnswer(nil)
	if err != nil {
		return "", l.fail(fmt.Errorf("create answer: %w", err))
	}

	token, err := l.gather(ctx, answer)
	if err != nil {
		return "", l.fail(err)
	}
	return token, nil
}

// AcceptAnswer applies the remote answer to an offering link
func (l *Link) AcceptAnswer(answerToken string) error {
	answer, err := DecodeToken(answerToken)
	if err != nil {
		return err
	}
	if answer.Type != webrtc.SDPTypeAnswer {
		return fmt.Errorf("%w: expected answer, got %s", domain.ErrMalformedDescriptor, answer.Type)
	}

	if err := l.transitionFrom(StateAwaitingRemoteDescriptor, StateNegotiating); err != nil {
		return err
	}

	if err := l.pc.SetRemoteDescription(answer); err != nil {
		return l.fail(fmt.Errorf("%w: set remote answer: %v", domain.ErrMalformedDescriptor, err))
	}
	return nil
}

// Send writes one message on the data channel
func (l *Link) Send(data []byte) error {
	l.mu.Lock()
	state := l.state
	dc := l.dc
	l.mu.Unlock()

	switch {
	case state == StateOpen:
	case state.IsTerminal():
		return domain.ErrLinkClosed
	default:
		return domain.ErrLinkNotReady
	}

	if err := dc.SendText(string(data)); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrLinkClosed, err)
	}
	return nil
}

// Close tears down the peer connection. It is idempotent.
func (l *Link) Close() error {
	if !l.finish(StateClosed) {
		return nil
	}
	return l.pc.Close()
}

// gather sets the local description and waits for ICE gathering to finish,
// bounded by the negotiation timeout and ctx
func (l *Link) gather(ctx context.Context, sd webrtc.SessionDescription) (string, error) {
	gatherComplete := webrtc.GatheringCompletePromise(l.pc)

	if err := l.pc.SetLocalDescription(sd); err != nil {
		return "", fmt.Errorf("set local description: %w", err)
	}

	timer := time.NewTimer(l.timeout)
	defer timer.Stop()

	select {
	case <-gatherComplete:
	case <-timer.C:
		return "", fmt.Errorf("%w: ice gathering exceeded %s", domain.ErrNegotiationTimeout, l.timeout)
	case <-ctx.Done():
		return "", ctx.Err()
	}

	local := l.pc.LocalDescription()
	if local == nil {
		return "", errors.New("local description missing after gathering")
	}
	return EncodeToken(*local)
}

// bindChannel attaches the link's handlers to the game data channel
func (l *Link) bindChannel(dc *webrtc.DataChannel) {
	l.mu.Lock()
	if l.dc != nil {
		l.mu.Unlock()
		l.logger.Debug("duplicate game channel ignored")
		return
	}
	l.dc = dc
	l.mu.Unlock()

	dc.OnOpen(l.open)
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		l.mu.Lock()
		handler := l.onMessage
		l.mu.Unlock()

		if handler != nil {
			handler(msg.Data)
		}
	})
	dc.OnClose(func() {
		if l.finish(StateClosed) {
			go l.pc.Close()
		}
	})
}

func (l *Link) transition(target State) error {
	return l.transitionFrom("", target)
}

// transitionFrom is transition restricted to links currently in from. An
// empty from accepts any source state.
func (l *Link) transitionFrom(from, target State) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state.IsTerminal() {
		return domain.ErrLinkClosed
	}
	if from != "" && l.state != from {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, l.state, target)
	}
	if !l.state.CanTransitionTo(target) {
		return fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, l.state, target)
	}
	l.state = target
	return nil
}

func (l *Link) open() {
	l.mu.Lock()
	if !l.state.CanTransitionTo(StateOpen) {
		l.mu.Unlock()
		return
	}
	l.state = StateOpen
	handlers := l.onOpen
	l.onOpen = nil
	l.mu.Unlock()

	l.logger.Debug("data channel open")
	for _, fn := range handlers {
		fn()
	}
}

// fail moves the link to Errored, releases the peer connection and returns err
func (l *Link) fail(err error) error {
	if l.finish(StateErrored) {
		l.pc.Close()
	}
	l.logger.Debug("link failed", "error", err)
	return err
}

// finish moves the link to a terminal state and runs the close handlers.
// It returns false if the link was already terminal.
func (l *Link) finish(target State) bool {
	l.mu.Lock()
	if l.state.IsTerminal() {
		l.mu.Unlock()
		return false
	}
	l.state = target
	handlers := l.onClose
	l.onClose = nil
	l.onOpen = nil
	l.mu.Unlock()

	for _, fn := range handlers {
		fn(target)
	}
	return true
}
