package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestState(t *testing.T, players ...string) *GameState {
	t.Helper()

	g := NewGameState()
	_, err := g.AddHost("host", "Quizmaster")
	require.NoError(t, err)
	for _, id := range players {
		_, added, err := g.AddPlayer(id, "name-"+id)
		require.NoError(t, err)
		require.True(t, added)
	}
	return g
}

func TestAddHostOnce(t *testing.T) {
	g := NewGameState()

	host, err := g.AddHost("host", "Quizmaster")
	require.NoError(t, err)
	assert.True(t, host.IsHost)
	assert.Equal(t, 0, host.Score)

	_, err = g.AddHost("other", "Impostor")
	assert.ErrorIs(t, err, ErrHostExists)

	_, err = NewGameState().AddHost("host", "")
	assert.ErrorIs(t, err, ErrEmptyName)
}

func TestAddPlayerReconnectKeepsScore(t *testing.T) {
	g := newTestState(t, "ada")
	require.NoError(t, g.ApplyAnswerResult("ada", true))
	require.NoError(t, g.MarkDisconnected("ada"))

	p, err := g.GetPlayer("ada")
	require.NoError(t, err)
	assert.False(t, p.IsConnected())

	p, added, err := g.AddPlayer("ada", "Ada L.")
	require.NoError(t, err)
	assert.False(t, added)
	assert.True(t, p.IsConnected())
	assert.Equal(t, 1, p.Score)
	assert.Equal(t, "Ada L.", p.Name)
	assert.Len(t, g.Players, 2)

	_, _, err = g.AddPlayer("bob", "")
	assert.ErrorIs(t, err, ErrEmptyName)
	assert.ErrorIs(t, g.MarkDisconnected("bob"), ErrPlayerNotFound)
}

func TestRecordBuzzOrdersByTimestamp(t *testing.T) {
	g := newTestState(t, "a", "b", "c")

	assert.ErrorIs(t, g.RecordBuzz(BuzzResponse{PlayerID: "a", Timestamp: 1}), ErrNoActiveQuestion)

	g.SetQuestion(Question{ID: "q1", Text: "Capital of France?", Answer: "Paris"})

	require.NoError(t, g.RecordBuzz(BuzzResponse{PlayerID: "a", Timestamp: 120.5}))
	assert.Equal(t, "a", g.CurrentAnswerer)

	require.NoError(t, g.RecordBuzz(BuzzResponse{PlayerID: "b", Timestamp: 98.2}))
	assert.Equal(t, "b", g.CurrentAnswerer)

	// equal timestamps keep arrival order
	require.NoError(t, g.RecordBuzz(BuzzResponse{PlayerID: "c", Timestamp: 120.5}))

	ids := make([]string, 0, len(g.BuzzResponses))
	for _, b := range g.BuzzResponses {
		ids = append(ids, b.PlayerID)
	}
	assert.Equal(t, []string{"b", "a", "c"}, ids)
	assert.Equal(t, g.BuzzResponses[0].PlayerID, g.CurrentAnswerer)
}

func TestRecordBuzzRejects(t *testing.T) {
	g := newTestState(t, "a")
	g.SetQuestion(Question{Text: "q", Answer: "a"})

	require.NoError(t, g.RecordBuzz(BuzzResponse{PlayerID: "a", Timestamp: 10}))
	assert.ErrorIs(t, g.RecordBuzz(BuzzResponse{PlayerID: "a", Timestamp: 5}), ErrDuplicateBuzz)
	assert.ErrorIs(t, g.RecordBuzz(BuzzResponse{PlayerID: "ghost", Timestamp: 1}), ErrPlayerNotFound)

	assert.Len(t, g.BuzzResponses, 1)
	assert.Equal(t, 10.0, g.BuzzResponses[0].Timestamp)
	assert.True(t, g.HasBuzzed("a"))
}

func TestSetQuestionClearsBuzzes(t *testing.T) {
	g := newTestState(t, "a", "b")
	g.SetQuestion(Question{ID: "q1", Text: "one", Answer: "1"})
	require.NoError(t, g.RecordBuzz(BuzzResponse{PlayerID: "a", Timestamp: 1}))

	g.SetQuestion(Question{ID: "q2", Text: "two", Answer: "2"})

	assert.Empty(t, g.BuzzResponses)
	assert.Empty(t, g.CurrentAnswerer)
	assert.Equal(t, "q2", g.CurrentQuestion.ID)
	assert.False(t, g.HasBuzzed("a"))
}

func TestApplyAnswerResult(t *testing.T) {
	g := newTestState(t, "a", "b")
	g.SetQuestion(Question{Text: "q", Answer: "a"})
	require.NoError(t, g.RecordBuzz(BuzzResponse{PlayerID: "b", Timestamp: 1}))

	require.NoError(t, g.ApplyAnswerResult("b", true))
	require.NoError(t, g.ApplyAnswerResult("a", false))

	a, _ := g.GetPlayer("a")
	b, _ := g.GetPlayer("b")
	assert.Equal(t, 0, a.Score)
	assert.Equal(t, 1, b.Score)

	// judging leaves the buzz list alone
	assert.Equal(t, "b", g.CurrentAnswerer)
	assert.Len(t, g.BuzzResponses, 1)

	assert.ErrorIs(t, g.ApplyAnswerResult("ghost", true), ErrPlayerNotFound)

	g.ClearBuzzes()
	assert.Empty(t, g.BuzzResponses)
	assert.Empty(t, g.CurrentAnswerer)
}

func TestSnapshotIsDeepCopy(t *testing.T) {
	g := newTestState(t, "a")
	g.SetQuestion(Question{ID: "q1", Text: "q", Answer: "a"})
	require.NoError(t, g.RecordBuzz(BuzzResponse{PlayerID: "a", Timestamp: 3}))

	snap := g.Snapshot()
	snap.Players[1].Score = 99
	snap.CurrentQuestion.Text = "changed"
	snap.BuzzResponses[0].Timestamp = 0

	p, _ := g.GetPlayer("a")
	assert.Equal(t, 0, p.Score)
	assert.Equal(t, "q", g.CurrentQuestion.Text)
	assert.Equal(t, 3.0, g.BuzzResponses[0].Timestamp)

	g.SetStarted(true)
	assert.False(t, snap.Started)
}

func TestRestoreReplacesMirror(t *testing.T) {
	host := newTestState(t, "a", "b")
	host.SetQuestion(Question{ID: "q1", Text: "q", Answer: "a"})
	require.NoError(t, host.RecordBuzz(BuzzResponse{PlayerID: "b", Timestamp: 7}))
	require.NoError(t, host.ApplyAnswerResult("a", true))
	host.SetStarted(true)
	want := host.Snapshot()

	mirror := newTestState(t, "stale")
	mirror.Restore(want)

	assert.Equal(t, want, mirror.Snapshot())
	_, err := mirror.GetPlayer("stale")
	assert.ErrorIs(t, err, ErrPlayerNotFound)

	// the mirror does not alias the snapshot it came from
	want.Players[1].Score = 42
	a, _ := mirror.GetPlayer("a")
	assert.Equal(t, 1, a.Score)

	mirror.Restore(Snapshot{})
	assert.Empty(t, mirror.Players)
	assert.NotNil(t, mirror.BuzzResponses)
	assert.Nil(t, mirror.CurrentQuestion)
}

func TestSnapshotPlayer(t *testing.T) {
	snap := newTestState(t, "a").Snapshot()

	p, ok := snap.Player("a")
	assert.True(t, ok)
	assert.Equal(t, "name-a", p.Name)

	_, ok = snap.Player("nobody")
	assert.False(t, ok)
}
