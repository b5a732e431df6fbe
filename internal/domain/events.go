package domain

import "time"

// EventType represents the type of game event
type EventType string

const (
	EventPlayerJoined       EventType = "PLAYER_JOINED"
	EventPlayerReconnected  EventType = "PLAYER_RECONNECTED"
	EventPlayerDisconnected EventType = "PLAYER_DISCONNECTED"
	EventQuestionAsked      EventType = "QUESTION_ASKED"
	EventBuzzRecorded       EventType = "BUZZ_RECORDED"
	EventAnswerJudged       EventType = "ANSWER_JUDGED"
	EventGameStarted        EventType = "GAME_STARTED"
	EventStateSynced        EventType = "STATE_SYNCED"
	EventLinkOpen           EventType = "LINK_OPEN"
	EventLinkLost           EventType = "LINK_LOST"
)

// GameEvent represents something that changed the local view of the game
type GameEvent struct {
	Type      EventType `json:"type"`
	PlayerID  string    `json:"playerId,omitempty"` // If event is player-specific
	Timestamp time.Time `json:"timestamp"`
}

// NewEvent creates a new game event
func NewEvent(eventType EventType) GameEvent {
	return GameEvent{
		Type:      eventType,
		Timestamp: time.Now(),
	}
}

// NewPlayerEvent creates a new player-specific game event
func NewPlayerEvent(eventType EventType, playerID string) GameEvent {
	return GameEvent{
		Type:      eventType,
		PlayerID:  playerID,
		Timestamp: time.Now(),
	}
}
