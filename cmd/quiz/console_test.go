package main

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quizmesh/internal/app"
	"quizmesh/internal/domain"
)

func testSnapshot() domain.Snapshot {
	return domain.Snapshot{
		Players: []domain.Player{
			{ID: "h0st-1111", Name: "Quizmaster", IsHost: true, Status: domain.StatusConnected},
			{ID: "a1b2c3d4-0000", Name: "Ada", Status: domain.StatusConnected},
			{ID: "a1ffeeee-0000", Name: "Alan", Score: 2, Status: domain.StatusDisconnected},
			{ID: "b7777777-0000", Name: "Babbage", Status: domain.StatusConnected},
		},
		BuzzResponses:   []domain.BuzzResponse{{PlayerID: "b7777777-0000", Timestamp: 98.2}},
		CurrentAnswerer: "b7777777-0000",
		CurrentQuestion: &domain.Question{ID: "q1", Text: "Capital of France?", Answer: "Paris"},
	}
}

func TestResolvePlayer(t *testing.T) {
	snap := testSnapshot()

	tests := []struct {
		ref  string
		want string
	}{
		{"a1b2c3d4-0000", "a1b2c3d4-0000"},
		{"ada", "a1b2c3d4-0000"},
		{"BABBAGE", "b7777777-0000"},
		{"a1f", "a1ffeeee-0000"},
		{"b7", "b7777777-0000"},
	}
	for _, tt := range tests {
		got, err := resolvePlayer(snap, tt.ref)
		require.NoError(t, err, tt.ref)
		assert.Equal(t, tt.want, got, tt.ref)
	}

	_, err := resolvePlayer(snap, "a1")
	assert.ErrorContains(t, err, "matches 2 players")

	_, err = resolvePlayer(snap, "Quizmaster")
	assert.ErrorIs(t, err, domain.ErrPlayerNotFound)

	_, err = resolvePlayer(snap, "zed")
	assert.ErrorIs(t, err, domain.ErrPlayerNotFound)
}

func TestExecUsage(t *testing.T) {
	var out bytes.Buffer
	c := newConsole(nil, nil, &out)

	assert.NoError(t, c.exec("   "))
	assert.ErrorIs(t, c.exec("quit"), errQuit)
	assert.ErrorIs(t, c.exec("EXIT"), errQuit)
	assert.ErrorContains(t, c.exec("ask what is it"), "usage: ask")
	assert.ErrorContains(t, c.exec("judge ada"), "usage: judge")
	assert.ErrorContains(t, c.exec("judge ada maybe"), "usage: judge")
	assert.ErrorContains(t, c.exec("dance"), `unknown command "dance"`)
}

func TestPrintState(t *testing.T) {
	var out bytes.Buffer
	c := newConsole(nil, nil, &out)

	c.printState(testSnapshot())

	text := out.String()
	assert.Contains(t, text, "question: Capital of France?")
	assert.Contains(t, text, "(host)")
	assert.Contains(t, text, " * Babbage")
	assert.Contains(t, text, "DISCONNECTED")
}

func TestPrintUpdate(t *testing.T) {
	var out bytes.Buffer
	c := newConsole(nil, nil, &out)

	c.printUpdate(app.Update{
		Event:    domain.NewPlayerEvent(domain.EventBuzzRecorded, "b7777777-0000"),
		Snapshot: testSnapshot(),
	})
	assert.Equal(t, "Buzz! Babbage is answering\n", out.String())

	out.Reset()
	c.printUpdate(app.Update{Event: domain.NewEvent(domain.EventLinkLost)})
	assert.Equal(t, "Lost connection to the host\n", out.String())

	out.Reset()
	c.printUpdate(app.Update{Event: domain.NewEvent(domain.EventStateSynced), Snapshot: testSnapshot()})
	assert.Empty(t, out.String())
}

type fakeSession struct {
	updates chan app.Update
	snap    domain.Snapshot
}

func (f *fakeSession) Code() domain.SessionCode               { return "7K4M" }
func (f *fakeSession) PlayerID() string                       { return "b7777777-0000" }
func (f *fakeSession) IsHost() bool                           { return false }
func (f *fakeSession) Token() string                          { return "resume-token" }
func (f *fakeSession) State() domain.Snapshot                 { return f.snap }
func (f *fakeSession) Subscribe() (<-chan app.Update, func()) { return f.updates, func() {} }
func (f *fakeSession) AskQuestion(string, string) error       { return nil }
func (f *fakeSession) JudgeAnswer(string, bool) error         { return nil }
func (f *fakeSession) StartGame() error                       { return nil }
func (f *fakeSession) SendBuzz() error                        { return nil }

// overlapWriter counts writes that start while another is still in flight
type overlapWriter struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	inflight atomic.Int32
	overlaps atomic.Int32
}

func (w *overlapWriter) Write(p []byte) (int, error) {
	if w.inflight.Add(1) > 1 {
		w.overlaps.Add(1)
	}
	defer w.inflight.Add(-1)
	time.Sleep(100 * time.Microsecond)

	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func (w *overlapWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

func TestRunWritesFromOneGoroutine(t *testing.T) {
	const n = 50

	updates := make(chan app.Update, n)
	for i := 0; i < n; i++ {
		updates <- app.Update{
			Event:    domain.NewPlayerEvent(domain.EventBuzzRecorded, "b7777777-0000"),
			Snapshot: testSnapshot(),
		}
	}
	close(updates)

	session := &fakeSession{updates: updates, snap: testSnapshot()}
	in := strings.NewReader(strings.Repeat("state\n", n))
	out := &overlapWriter{}

	require.NoError(t, newConsole(session, in, out).run(context.Background()))

	assert.Zero(t, out.overlaps.Load())
	text := out.String()
	assert.True(t, strings.HasPrefix(text, "Joined session 7K4M as b7777777-0000\n"))
	assert.Equal(t, n, strings.Count(text, "  question: Capital of France?\n"))
	assert.Contains(t, text, "Buzz! Babbage is answering\n")
	for _, line := range strings.Split(strings.TrimSuffix(text, "\n"), "\n") {
		assert.LessOrEqual(t, strings.Index(line, "Buzz!"), 0, "torn line %q", line)
	}
}

func TestRunStopsOnQuit(t *testing.T) {
	session := &fakeSession{updates: make(chan app.Update), snap: testSnapshot()}
	var out bytes.Buffer

	err := newConsole(session, strings.NewReader("token\nquit\nstate\n"), &out).run(context.Background())
	require.NoError(t, err)

	// once in the banner, once for the command
	assert.Equal(t, 2, strings.Count(out.String(), "resume-token\n"))
	assert.NotContains(t, out.String(), "question:")
}
