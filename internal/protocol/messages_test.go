package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quizmesh/internal/domain"
)

func TestEncodeEnvelope(t *testing.T) {
	data, err := Encode(Buzz{PlayerID: "p1", Timestamp: 98.2})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"BUZZ","payload":{"playerId":"p1","timestamp":98.2}}`, string(data))

	data, err = Encode(Question{Question: "Capital of France?", Answer: "Paris"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"QUESTION","payload":{"question":"Capital of France?","answer":"Paris"}}`, string(data))
}

func TestDecodeTypedPayloads(t *testing.T) {
	snap := domain.Snapshot{
		Players:       []domain.Player{{ID: "h", Name: "Host", IsHost: true, Status: domain.StatusConnected}},
		BuzzResponses: []domain.BuzzResponse{},
		Started:       true,
	}

	messages := []Message{
		Join{PlayerID: "p1", Name: "Ada"},
		Question{ID: "q1", Question: "2+2?", Answer: "4"},
		Buzz{PlayerID: "p1", Timestamp: 120.5},
		AnswerResult{PlayerID: "p1", Correct: true},
		GameState{Started: true, Snapshot: &snap},
		GameState{},
	}

	for _, want := range messages {
		data, err := Encode(want)
		require.NoError(t, err)

		got, err := Decode(data)
		require.NoError(t, err, string(data))
		assert.Equal(t, want.Kind(), got.Kind())
		assert.Equal(t, want, got)
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
		err  error
	}{
		{"not json", `{"type":`, domain.ErrMalformedMessage},
		{"missing type", `{"payload":{}}`, domain.ErrMalformedMessage},
		{"unknown type", `{"type":"CHAT","payload":{}}`, domain.ErrUnknownKind},
		{"missing payload", `{"type":"BUZZ"}`, domain.ErrMalformedMessage},
		{"null payload", `{"type":"JOIN","payload":null}`, domain.ErrMalformedMessage},
		{"wrong field type", `{"type":"BUZZ","payload":{"playerId":"p","timestamp":"soon"}}`, domain.ErrMalformedMessage},
		{"join without name", `{"type":"JOIN","payload":{"playerId":"p"}}`, domain.ErrMalformedMessage},
		{"buzz without player", `{"type":"BUZZ","payload":{"timestamp":1}}`, domain.ErrMalformedMessage},
		{"result without player", `{"type":"ANSWER_RESULT","payload":{"correct":true}}`, domain.ErrMalformedMessage},
		{"empty question", `{"type":"QUESTION","payload":{"answer":"x"}}`, domain.ErrMalformedMessage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.data))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestDecodeIgnoresUnknownFields(t *testing.T) {
	msg, err := Decode([]byte(`{"type":"QUESTION","payload":{"question":"q","answer":"a","category":"geo"},"v":2}`))
	require.NoError(t, err)
	assert.Equal(t, Question{Question: "q", Answer: "a"}, msg)
}

func TestEncodeValidates(t *testing.T) {
	_, err := Encode(Join{PlayerID: "p1"})
	assert.ErrorIs(t, err, domain.ErrMalformedMessage)

	_, err = Encode(AnswerResult{Correct: true})
	assert.ErrorIs(t, err, domain.ErrMalformedMessage)
}

func TestGameStateSnapshotWireShape(t *testing.T) {
	snap := domain.Snapshot{
		Players:         []domain.Player{{ID: "p1", Name: "Ada", Score: 2, Status: domain.StatusConnected}},
		CurrentQuestion: &domain.Question{ID: "q", Text: "t", Answer: "a"},
		BuzzResponses:   []domain.BuzzResponse{{PlayerID: "p1", Timestamp: 1.5}},
		CurrentAnswerer: "p1",
	}
	data, err := Encode(GameState{Snapshot: &snap})
	require.NoError(t, err)

	var env struct {
		Type    string `json:"type"`
		Payload struct {
			Snapshot struct {
				Players []struct {
					Score  int  `json:"score"`
					IsHost bool `json:"isHost"`
				} `json:"players"`
				CurrentAnswerer string `json:"currentAnswerer"`
			} `json:"snapshot"`
		} `json:"payload"`
	}
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, "GAME_STATE", env.Type)
	assert.Equal(t, "p1", env.Payload.Snapshot.CurrentAnswerer)
	require.Len(t, env.Payload.Snapshot.Players, 1)
	assert.Equal(t, 2, env.Payload.Snapshot.Players[0].Score)
}
