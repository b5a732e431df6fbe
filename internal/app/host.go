package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"quizmesh/internal/config"
	"quizmesh/internal/domain"
	"quizmesh/internal/mesh"
	"quizmesh/internal/protocol"
	"quizmesh/internal/router"
)

// Host creates a session under a fresh code and waits for players. It
// returns once the relay has acknowledged the room.
func Host(ctx context.Context, cfg *config.Config, deps Deps, name string) (*Session, error) {
	code := domain.GenerateSessionCode(cfg.Game.SessionCodeLength)
	return host(ctx, cfg, deps.withDefaults(), code, name, uuid.NewString())
}

func host(ctx context.Context, cfg *config.Config, deps Deps, code domain.SessionCode, name, playerID string) (*Session, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domain.ErrEmptyName
	}

	s := newSession(RoleHost, code, name, playerID, cfg, deps)
	s.bindings = router.NewBindings()

	if err := s.call(func() error {
		_, err := s.state.AddHost(playerID, name)
		return err
	}); err != nil {
		s.Close()
		return nil, err
	}

	s.mesh = mesh.New(s.channel, s.linkOptions(), s.logger)
	s.mesh.OnMessage(s.dispatch)
	s.mesh.OnDisconnect(func(peerID string) {
		s.post(func() { s.handlePeerLost(peerID) })
	})

	router.On(s.router, s.handleJoin)
	router.On(s.router, s.handleBuzz)

	if err := s.channel.Connect(ctx, code); err != nil {
		s.Close()
		return nil, err
	}

	s.logger.Info("hosting session", "playerID", playerID)
	return s, nil
}

// AskQuestion replaces the current question, clears buzzes and sends the
// question to every player
func (s *Session) AskQuestion(text, answer string) error {
	if err := s.requireHost(); err != nil {
		return err
	}
	text = strings.TrimSpace(text)
	answer = strings.TrimSpace(answer)
	if text == "" || answer == "" {
		return domain.ErrEmptyQuestion
	}

	return s.call(func() error {
		q := domain.Question{ID: uuid.NewString(), Text: text, Answer: answer}
		s.state.SetQuestion(q)

		s.broadcast(protocol.Question{ID: q.ID, Question: q.Text, Answer: q.Answer})
		s.emit(domain.NewEvent(domain.EventQuestionAsked))
		return nil
	})
}

// JudgeAnswer scores the player's answer, clears the buzz list for the next
// attempt and sends the result and the new state to every player
func (s *Session) JudgeAnswer(playerID string, correct bool) error {
	if err := s.requireHost(); err != nil {
		return err
	}

	return s.call(func() error {
		if err := s.state.ApplyAnswerResult(playerID, correct); err != nil {
			return fmt.Errorf("judge %s: %w", playerID, err)
		}

		s.broadcast(protocol.AnswerResult{PlayerID: playerID, Correct: correct})
		s.state.ClearBuzzes()
		s.emit(domain.NewPlayerEvent(domain.EventAnswerJudged, playerID))
		s.broadcastState()
		return nil
	})
}

// StartGame marks the game as started on every peer
func (s *Session) StartGame() error {
	if err := s.requireHost(); err != nil {
		return err
	}

	return s.call(func() error {
		s.state.SetStarted(true)
		s.emit(domain.NewEvent(domain.EventGameStarted))
		s.broadcastState()
		return nil
	})
}

// handleJoin registers or reconnects the player behind peer from
func (s *Session) handleJoin(from string, m protocol.Join) {
	if m.PlayerID == s.playerID {
		s.logger.Warn("peer claimed the host's player id", "peerID", from)
		return
	}

	player, added, err := s.state.AddPlayer(m.PlayerID, m.Name)
	if err != nil {
		s.logger.Warn("join rejected", "peerID", from, "error", err)
		return
	}
	s.bindings.Bind(from, player.ID)

	if added {
		s.logger.Info("player joined", "playerID", player.ID, "name", player.Name, "peerID", from)
		s.emit(domain.NewPlayerEvent(domain.EventPlayerJoined, player.ID))
	} else {
		s.logger.Info("player reconnected", "playerID", player.ID, "score", player.Score, "peerID", from)
		s.emit(domain.NewPlayerEvent(domain.EventPlayerReconnected, player.ID))
	}
	s.broadcastState()
}

// handleBuzz records a buzz from the player bound to peer from. Buzzes
// without an active question, from unknown players or repeated within a
// question are dropped.
func (s *Session) handleBuzz(from string, m protocol.Buzz) {
	if !s.bindings.Owns(from, m.PlayerID) {
		s.logger.Warn("buzz for another player dropped", "peerID", from, "playerID", m.PlayerID)
		return
	}

	err := s.state.RecordBuzz(domain.BuzzResponse{PlayerID: m.PlayerID, Timestamp: m.Timestamp})
	switch {
	case errors.Is(err, domain.ErrDuplicateBuzz):
		return
	case err != nil:
		s.logger.Debug("buzz dropped", "playerID", m.PlayerID, "error", err)
		return
	}

	s.emit(domain.NewPlayerEvent(domain.EventBuzzRecorded, m.PlayerID))
	s.broadcastState()
}

func (s *Session) handlePeerLost(peerID string) {
	playerID, ok := s.bindings.Unbind(peerID)
	if !ok {
		return
	}
	if err := s.state.MarkDisconnected(playerID); err != nil {
		return
	}

	s.logger.Info("player disconnected", "playerID", playerID, "peerID", peerID)
	s.emit(domain.NewPlayerEvent(domain.EventPlayerDisconnected, playerID))
	s.broadcastState()
}

// broadcastState sends the full snapshot so every mirror converges
func (s *Session) broadcastState() {
	snap := s.state.Snapshot()
	s.broadcast(protocol.GameState{Started: snap.Started, Snapshot: &snap})
}

func (s *Session) broadcast(m protocol.Message) {
	data, err := s.encode(m)
	if err != nil {
		return
	}
	s.mesh.Broadcast(data)
}
