package domain

import "time"

// ConnectionStatus represents a player's connection state
type ConnectionStatus string

const (
	StatusConnected    ConnectionStatus = "CONNECTED"
	StatusDisconnected ConnectionStatus = "DISCONNECTED"
)

// Player represents a quiz participant
type Player struct {
	ID          string           `json:"id"`
	Name        string           `json:"name"`
	Score       int              `json:"score"`
	IsHost      bool             `json:"isHost"`
	ConnectedAt *time.Time       `json:"connectedAt,omitempty"`
	Status      ConnectionStatus `json:"status"`
}

// NewPlayer creates a connected, non-host player with a zero score
func NewPlayer(id, name string) *Player {
	now := time.Now()
	return &Player{
		ID:          id,
		Name:        name,
		ConnectedAt: &now,
		Status:      StatusConnected,
	}
}

// NewHostPlayer creates the local host player
func NewHostPlayer(id, name string) *Player {
	p := NewPlayer(id, name)
	p.IsHost = true
	return p
}

// IsConnected returns true if the player is currently connected
func (p *Player) IsConnected() bool {
	return p.Status == StatusConnected
}

// Disconnect marks the player as disconnected. Score and roster position are kept.
func (p *Player) Disconnect() {
	p.Status = StatusDisconnected
}

// Reconnect marks the player as connected again
func (p *Player) Reconnect() {
	now := time.Now()
	p.ConnectedAt = &now
	p.Status = StatusConnected
}

func (p *Player) clone() *Player {
	c := *p
	if p.ConnectedAt != nil {
		t := *p.ConnectedAt
		c.ConnectedAt = &t
	}
	return &c
}
