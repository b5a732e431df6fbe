// Package protocol defines the messages exchanged over peer data channels.
// Every message is an envelope {type, payload} whose payload is decoded into
// the struct for its kind at the boundary, so handlers only see typed values.
package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"quizmesh/internal/domain"
)

// Kind identifies a message type on the data channel
type Kind string

const (
	KindJoin         Kind = "JOIN"          // player -> host
	KindQuestion     Kind = "QUESTION"      // host -> players
	KindBuzz         Kind = "BUZZ"          // player -> host
	KindAnswerResult Kind = "ANSWER_RESULT" // host -> players
	KindGameState    Kind = "GAME_STATE"    // host -> players
)

// Message is implemented by every payload type
type Message interface {
	Kind() Kind
	validate() error
}

// Envelope is the wire form of a message
type Envelope struct {
	Type    Kind            `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Join registers the sending player with the host
type Join struct {
	PlayerID string `json:"playerId"`
	Name     string `json:"name"`
}

// Question replaces the current question. ID is set by the host so every
// peer agrees on it; older senders may omit it.
type Question struct {
	ID       string `json:"id,omitempty"`
	Question string `json:"question"`
	Answer   string `json:"answer"`
}

// Buzz is a player's timestamped request to answer
type Buzz struct {
	PlayerID  string  `json:"playerId"`
	Timestamp float64 `json:"timestamp"`
}

// AnswerResult tells peers how the host judged an answer
type AnswerResult struct {
	PlayerID string `json:"playerId"`
	Correct  bool   `json:"correct"`
}

// GameState carries the started flag and, optionally, a full snapshot for
// the player mirrors
type GameState struct {
	Started  bool             `json:"started"`
	Snapshot *domain.Snapshot `json:"snapshot,omitempty"`
}

func (Join) Kind() Kind         { return KindJoin }
func (Question) Kind() Kind     { return KindQuestion }
func (Buzz) Kind() Kind         { return KindBuzz }
func (AnswerResult) Kind() Kind { return KindAnswerResult }
func (GameState) Kind() Kind    { return KindGameState }

func (m Join) validate() error {
	if m.PlayerID == "" || m.Name == "" {
		return fmt.Errorf("%w: JOIN requires playerId and name", domain.ErrMalformedMessage)
	}
	return nil
}

func (m Question) validate() error {
	if m.Question == "" {
		return fmt.Errorf("%w: QUESTION requires question", domain.ErrMalformedMessage)
	}
	return nil
}

func (m Buzz) validate() error {
	if m.PlayerID == "" {
		return fmt.Errorf("%w: BUZZ requires playerId", domain.ErrMalformedMessage)
	}
	return nil
}

func (m AnswerResult) validate() error {
	if m.PlayerID == "" {
		return fmt.Errorf("%w: ANSWER_RESULT requires playerId", domain.ErrMalformedMessage)
	}
	return nil
}

func (m GameState) validate() error {
	return nil
}

// Encode serializes a message into its envelope
func Encode(m Message) ([]byte, error) {
	if err := m.validate(); err != nil {
		return nil, err
	}

	payload, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", m.Kind(), err)
	}

	return json.Marshal(&Envelope{
		Type:    m.Kind(),
		Payload: payload,
	})
}

// Decode parses an envelope and its typed payload. It returns
// domain.ErrMalformedMessage for bad JSON or missing fields and
// domain.ErrUnknownKind for types it does not know.
func Decode(data []byte) (Message, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedMessage, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", domain.ErrMalformedMessage)
	}

	var (
		msg Message
		err error
	)
	switch env.Type {
	case KindJoin:
		msg, err = decodePayload[Join](env.Payload)
	case KindQuestion:
		msg, err = decodePayload[Question](env.Payload)
	case KindBuzz:
		msg, err = decodePayload[Buzz](env.Payload)
	case KindAnswerResult:
		msg, err = decodePayload[AnswerResult](env.Payload)
	case KindGameState:
		msg, err = decodePayload[GameState](env.Payload)
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownKind, env.Type)
	}
	if err != nil {
		return nil, err
	}
	if err := msg.validate(); err != nil {
		return nil, err
	}

	return msg, nil
}

func decodePayload[T Message](raw json.RawMessage) (Message, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, fmt.Errorf("%w: missing payload", domain.ErrMalformedMessage)
	}

	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrMalformedMessage, err)
	}
	return v, nil
}
