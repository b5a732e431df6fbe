package domain

import (
	"cmp"
	"slices"
)

// GameState is the replicated quiz state. The host's copy is authoritative;
// players hold a mirror. It has no locking of its own: the owning session
// serializes every mutation.
type GameState struct {
	Players         []*Player
	CurrentQuestion *Question
	BuzzResponses   []BuzzResponse
	CurrentAnswerer string
	Started         bool
}

// Snapshot is a deep, immutable copy of GameState handed to observers and
// shipped to players inside GAME_STATE.
type Snapshot struct {
	Players         []Player       `json:"players"`
	CurrentQuestion *Question      `json:"currentQuestion,omitempty"`
	BuzzResponses   []BuzzResponse `json:"buzzResponses"`
	CurrentAnswerer string         `json:"currentAnswerer,omitempty"`
	Started         bool           `json:"started"`
}

// NewGameState creates an empty state
func NewGameState() *GameState {
	return &GameState{
		Players:       make([]*Player, 0),
		BuzzResponses: make([]BuzzResponse, 0),
	}
}

// GetPlayer returns a player by ID
func (g *GameState) GetPlayer(playerID string) (*Player, error) {
	for _, p := range g.Players {
		if p.ID == playerID {
			return p, nil
		}
	}
	return nil, ErrPlayerNotFound
}

// Host returns the host player, if any
func (g *GameState) Host() *Player {
	for _, p := range g.Players {
		if p.IsHost {
			return p
		}
	}
	return nil
}

// AddHost registers the local host player. It fails if a host already exists.
func (g *GameState) AddHost(playerID, name string) (*Player, error) {
	if name == "" {
		return nil, ErrEmptyName
	}
	if g.Host() != nil {
		return nil, ErrHostExists
	}

	host := NewHostPlayer(playerID, name)
	g.Players = append(g.Players, host)
	return host, nil
}

// AddPlayer adds a remote player with score 0. A known ID is treated as a
// reconnect: the existing record (and its score) is kept and added is false.
func (g *GameState) AddPlayer(playerID, name string) (player *Player, added bool, err error) {
	if name == "" {
		return nil, false, ErrEmptyName
	}

	if existing, err := g.GetPlayer(playerID); err == nil {
		existing.Reconnect()
		if !existing.IsHost {
			existing.Name = name
		}
		return existing, false, nil
	}

	player = NewPlayer(playerID, name)
	g.Players = append(g.Players, player)
	return player, true, nil
}

// MarkDisconnected flags a player as disconnected without removing them
func (g *GameState) MarkDisconnected(playerID string) error {
	p, err := g.GetPlayer(playerID)
	if err != nil {
		return err
	}
	p.Disconnect()
	return nil
}

// SetQuestion replaces the current question and clears all buzz state
func (g *GameState) SetQuestion(q Question) {
	g.CurrentQuestion = &q
	g.ClearBuzzes()
}

// RecordBuzz inserts a buzz, keeps the list sorted by ascending timestamp
// and makes the head the current answerer. Equal timestamps keep arrival
// order.
func (g *GameState) RecordBuzz(b BuzzResponse) error {
	if g.CurrentQuestion == nil {
		return ErrNoActiveQuestion
	}
	if _, err := g.GetPlayer(b.PlayerID); err != nil {
		return err
	}
	if g.HasBuzzed(b.PlayerID) {
		return ErrDuplicateBuzz
	}

	g.BuzzResponses = append(g.BuzzResponses, b)
	slices.SortStableFunc(g.BuzzResponses, func(x, y BuzzResponse) int {
		return cmp.Compare(x.Timestamp, y.Timestamp)
	})
	g.CurrentAnswerer = g.BuzzResponses[0].PlayerID

	return nil
}

// HasBuzzed reports whether the player already buzzed for the current question
func (g *GameState) HasBuzzed(playerID string) bool {
	return slices.ContainsFunc(g.BuzzResponses, func(b BuzzResponse) bool {
		return b.PlayerID == playerID
	})
}

// ClearBuzzes empties the buzz list and the current answerer together
func (g *GameState) ClearBuzzes() {
	g.BuzzResponses = make([]BuzzResponse, 0)
	g.CurrentAnswerer = ""
}

// ApplyAnswerResult adds one point to the player iff correct. Buzz state is
// left alone.
func (g *GameState) ApplyAnswerResult(playerID string, correct bool) error {
	p, err := g.GetPlayer(playerID)
	if err != nil {
		return err
	}
	if correct {
		p.Score++
	}
	return nil
}

// SetStarted sets the started flag
func (g *GameState) SetStarted(started bool) {
	g.Started = started
}

// Snapshot returns a deep copy of the state
func (g *GameState) Snapshot() Snapshot {
	s := Snapshot{
		Players:         make([]Player, 0, len(g.Players)),
		BuzzResponses:   slices.Clone(g.BuzzResponses),
		CurrentAnswerer: g.CurrentAnswerer,
		Started:         g.Started,
	}
	if s.BuzzResponses == nil {
		s.BuzzResponses = make([]BuzzResponse, 0)
	}
	for _, p := range g.Players {
		s.Players = append(s.Players, *p.clone())
	}
	if g.CurrentQuestion != nil {
		q := *g.CurrentQuestion
		s.CurrentQuestion = &q
	}
	return s
}

// Restore replaces the mirror with a host snapshot
func (g *GameState) Restore(s Snapshot) {
	g.Players = make([]*Player, 0, len(s.Players))
	for i := range s.Players {
		g.Players = append(g.Players, s.Players[i].clone())
	}

	g.CurrentQuestion = nil
	if s.CurrentQuestion != nil {
		q := *s.CurrentQuestion
		g.CurrentQuestion = &q
	}

	g.BuzzResponses = slices.Clone(s.BuzzResponses)
	if g.BuzzResponses == nil {
		g.BuzzResponses = make([]BuzzResponse, 0)
	}
	g.CurrentAnswerer = s.CurrentAnswerer
	g.Started = s.Started
}

// Player returns a copy of the player with the given ID
func (s Snapshot) Player(playerID string) (Player, bool) {
	for _, p := range s.Players {
		if p.ID == playerID {
			return p, true
		}
	}
	return Player{}, false
}
