package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"quizmesh/internal/config"
	"quizmesh/internal/domain"
	"quizmesh/internal/mesh"
	"quizmesh/internal/protocol"
	"quizmesh/internal/router"
)

// Join enters the session for code as a player. It returns once the link to
// the host is open and JOIN has been sent, or with the error that stopped it.
// The wait is bounded by the configured join timeout.
func Join(ctx context.Context, cfg *config.Config, deps Deps, code, name string) (*Session, error) {
	return join(ctx, cfg, deps.withDefaults(), domain.NormalizeSessionCode(code), name, uuid.NewString())
}

func join(ctx context.Context, cfg *config.Config, deps Deps, code domain.SessionCode, name, playerID string) (*Session, error) {
	if !domain.ValidSessionCode(code, cfg.Game.SessionCodeLength) {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidSessionCode, code)
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.ErrEmptyName
	}

	ctx, cancel := context.WithTimeout(ctx, cfg.Client.JoinTimeout)
	defer cancel()

	s := newSession(RolePlayer, code, name, playerID, cfg, deps)

	s.hostLink = mesh.NewHostLink(s.channel, s.linkOptions(), s.logger)
	s.hostLink.OnMessage(func(data []byte) {
		s.dispatch(s.hostLink.HostID(), data)
	})
	s.hostLink.OnHostOpen(func() {
		s.post(s.sendJoin)
	})
	s.hostLink.OnHostLost(func() {
		s.post(func() {
			s.emit(domain.NewEvent(domain.EventLinkLost))
		})
	})

	router.On(s.router, s.handleQuestion)
	router.On(s.router, s.handleAnswerResult)
	router.On(s.router, s.handleGameState)

	if err := s.channel.Connect(ctx, code); err != nil {
		s.Close()
		return nil, err
	}

	if err := s.hostLink.WaitOpen(ctx); err != nil {
		s.Close()
		return nil, err
	}

	// sendJoin was queued before WaitOpen returned
	if err := s.call(func() error { return s.joinErr }); err != nil {
		s.Close()
		return nil, err
	}

	s.logger.Info("joined session", "playerID", playerID, "hostID", s.hostLink.HostID())
	return s, nil
}

// SendBuzz stamps a buzz with the local clock and sends it to the host. The
// local mirror records it only after the send succeeds.
func (s *Session) SendBuzz() error {
	if s.role != RolePlayer {
		return domain.ErrNotPlayer
	}

	return s.call(func() error {
		if s.state.CurrentQuestion == nil {
			return domain.ErrNoActiveQuestion
		}
		if s.state.HasBuzzed(s.playerID) {
			return domain.ErrDuplicateBuzz
		}

		buzz := protocol.Buzz{PlayerID: s.playerID, Timestamp: s.timestamp()}
		data, err := s.encode(buzz)
		if err != nil {
			return err
		}
		if err := s.hostLink.SendToHost(data); err != nil {
			return fmt.Errorf("send buzz: %w", err)
		}

		if err := s.state.RecordBuzz(domain.BuzzResponse{PlayerID: buzz.PlayerID, Timestamp: buzz.Timestamp}); err != nil {
			s.logger.Debug("buzz sent but not mirrored", "error", err)
		}
		s.emit(domain.NewPlayerEvent(domain.EventBuzzRecorded, s.playerID))
		return nil
	})
}

// sendJoin registers with the host over a freshly opened link
func (s *Session) sendJoin() {
	data, err := s.encode(protocol.Join{PlayerID: s.playerID, Name: s.name})
	if err != nil {
		s.joinErr = err
		return
	}
	if err := s.hostLink.SendToHost(data); err != nil {
		s.joinErr = fmt.Errorf("send join: %w", err)
		s.logger.Warn("failed to send join", "error", err)
		return
	}

	s.joinErr = nil
	s.emit(domain.NewEvent(domain.EventLinkOpen))
}

func (s *Session) handleQuestion(_ string, m protocol.Question) {
	id := m.ID
	if id == "" {
		id = uuid.NewString()
	}
	s.state.SetQuestion(domain.Question{ID: id, Text: m.Question, Answer: m.Answer})
	s.emit(domain.NewEvent(domain.EventQuestionAsked))
}

// handleAnswerResult applies the score change only; the host follows up
// with GAME_STATE carrying the cleared buzz list
func (s *Session) handleAnswerResult(_ string, m protocol.AnswerResult) {
	if err := s.state.ApplyAnswerResult(m.PlayerID, m.Correct); err != nil {
		s.logger.Debug("answer result for unknown player", "playerID", m.PlayerID)
	}
	s.emit(domain.NewPlayerEvent(domain.EventAnswerJudged, m.PlayerID))
}

func (s *Session) handleGameState(_ string, m protocol.GameState) {
	wasStarted := s.state.Started

	if m.Snapshot != nil {
		s.state.Restore(*m.Snapshot)
	}
	s.state.SetStarted(m.Started)

	if m.Started && !wasStarted {
		s.emit(domain.NewEvent(domain.EventGameStarted))
	}
	s.emit(domain.NewEvent(domain.EventStateSynced))
}
