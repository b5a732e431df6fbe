// Package app runs a quiz session on top of the peer mesh. A Session is a
// single actor: every state mutation and every inbound message is handled
// on its own goroutine, in arrival order.
package app

import (
	"log/slog"
	"sync"
	"time"

	"quizmesh/internal/config"
	"quizmesh/internal/domain"
	"quizmesh/internal/logging"
	"quizmesh/internal/mesh"
	"quizmesh/internal/peer"
	"quizmesh/internal/protocol"
	"quizmesh/internal/router"
	"quizmesh/internal/signaling"
)

const (
	inboxSize      = 256
	subscriberSize = 64
)

// Role is the local participant's role in a session
type Role string

const (
	RoleHost   Role = "host"
	RolePlayer Role = "player"
)

// Deps are the collaborators a session is built with
type Deps struct {
	Logger *slog.Logger

	// Clock stamps buzzes. Defaults to time.Now.
	Clock func() time.Time

	// LoopbackOnly restricts peer links to loopback host candidates
	LoopbackOnly bool
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = logging.Discard()
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	return d
}

// Update is delivered to subscribers after every change to the local state
type Update struct {
	Event    domain.GameEvent
	Snapshot domain.Snapshot
}

// Session is one participant's view of a running quiz
type Session struct {
	role     Role
	code     domain.SessionCode
	name     string
	playerID string
	cfg      *config.Config
	deps     Deps
	logger   *slog.Logger

	channel  *signaling.Channel
	mesh     *mesh.Mesh
	hostLink *mesh.HostLink
	router   *router.Router
	bindings *router.Bindings

	// owned by the actor goroutine
	state   *domain.GameState
	joinErr error

	inbox     chan func()
	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once

	subMu   sync.Mutex
	subs    map[int]chan Update
	nextSub int
}

func newSession(role Role, code domain.SessionCode, name, playerID string, cfg *config.Config, deps Deps) *Session {
	logger := deps.Logger.With("code", code.String(), "role", string(role))

	s := &Session{
		role:     role,
		code:     code,
		name:     name,
		playerID: playerID,
		cfg:      cfg,
		deps:     deps,
		logger:   logger,
		router:   router.New(logger),
		state:    domain.NewGameState(),
		inbox:    make(chan func(), inboxSize),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
		subs:     make(map[int]chan Update),
	}
	s.channel = signaling.NewChannel(cfg.Client.RelayURL, logger)
	s.channel.OnDisconnect(func(err error) {
		s.logger.Warn("relay connection lost; existing links stay up", "error", err)
	})

	go s.loop()

	return s
}

func (s *Session) linkOptions() peer.Options {
	return peer.Options{
		STUNServers:        s.cfg.Client.STUNServers,
		NegotiationTimeout: s.cfg.Client.NegotiationTimeout,
		LoopbackOnly:       s.deps.LoopbackOnly,
	}
}

// Code returns the session code
func (s *Session) Code() domain.SessionCode {
	return s.code
}

// PlayerID returns the local participant's player id
func (s *Session) PlayerID() string {
	return s.playerID
}

// Role returns whether this session hosts or plays
func (s *Session) Role() Role {
	return s.role
}

// IsHost returns true for the hosting session
func (s *Session) IsHost() bool {
	return s.role == RoleHost
}

// State returns a copy of the local game state. After Close it returns the
// final state.
func (s *Session) State() domain.Snapshot {
	var snap domain.Snapshot
	err := s.call(func() error {
		snap = s.state.Snapshot()
		return nil
	})
	if err != nil {
		<-s.stopped
		return s.state.Snapshot()
	}
	return snap
}

// Subscribe returns a channel of updates and a func that cancels the
// subscription. Slow subscribers miss updates rather than block the session.
func (s *Session) Subscribe() (<-chan Update, func()) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	ch := make(chan Update, subscriberSize)
	if s.subs == nil {
		close(ch)
		return ch, func() {}
	}

	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			defer s.subMu.Unlock()
			if sub, ok := s.subs[id]; ok {
				delete(s.subs, id)
				close(sub)
			}
		})
	}
}

// Close leaves the session and releases every connection. It is idempotent.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		<-s.stopped

		if s.mesh != nil {
			s.mesh.Close()
		}
		if s.hostLink != nil {
			s.hostLink.Close()
		}
		s.channel.Close()

		s.subMu.Lock()
		for id, ch := range s.subs {
			close(ch)
			delete(s.subs, id)
		}
		s.subs = nil
		s.subMu.Unlock()

		s.logger.Info("session closed")
	})
	return nil
}

// loop runs queued closures until the session closes
func (s *Session) loop() {
	defer close(s.stopped)

	for {
		select {
		case <-s.done:
			return
		case fn := <-s.inbox:
			fn()
		}
	}
}

// post queues fn on the actor. It returns false once the session is closed.
func (s *Session) post(fn func()) bool {
	select {
	case <-s.done:
		return false
	default:
	}

	select {
	case s.inbox <- fn:
		return true
	case <-s.done:
		return false
	}
}

// call runs fn on the actor and waits for its result
func (s *Session) call(fn func() error) error {
	result := make(chan error, 1)
	if !s.post(func() { result <- fn() }) {
		return domain.ErrSessionClosed
	}

	select {
	case err := <-result:
		return err
	case <-s.done:
		return domain.ErrSessionClosed
	}
}

// emit fans an update out to subscribers. Must run on the actor.
func (s *Session) emit(event domain.GameEvent) {
	update := Update{Event: event, Snapshot: s.state.Snapshot()}

	s.subMu.Lock()
	defer s.subMu.Unlock()

	for _, ch := range s.subs {
		select {
		case ch <- update:
		default:
			s.logger.Warn("subscriber queue full, dropping update", "type", event.Type)
		}
	}
}

// dispatch hands a raw data channel message to the router on the actor
func (s *Session) dispatch(from string, data []byte) {
	s.post(func() {
		s.router.Dispatch(from, data)
	})
}

// timestamp returns the buzz time in milliseconds since the Unix epoch
func (s *Session) timestamp() float64 {
	return float64(s.deps.Clock().UnixMicro()) / 1000
}

func (s *Session) requireHost() error {
	if s.role != RoleHost {
		return domain.ErrNotHost
	}
	return nil
}

func (s *Session) encode(m protocol.Message) ([]byte, error) {
	data, err := protocol.Encode(m)
	if err != nil {
		s.logger.Error("failed to encode message", "type", m.Kind(), "error", err)
		return nil, err
	}
	return data, nil
}
