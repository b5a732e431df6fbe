package relay

import (
	"bytes"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"quizmesh/internal/config"
	"quizmesh/internal/logging"
	"quizmesh/internal/signaling"
)

func newTestServer(t *testing.T) (*httptest.Server, *Hub) {
	t.Helper()

	hub := newTestHub(t)
	srv := NewServer(config.Default(), hub, logging.Discard())
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)

	return ts, hub
}

func dialRelay(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) *signaling.Frame {
	t.Helper()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var f signaling.Frame
	require.NoError(t, conn.ReadJSON(&f))
	return &f
}

func joinRoom(t *testing.T, conn *websocket.Conn, code string) string {
	t.Helper()

	require.NoError(t, conn.WriteJSON(&signaling.Frame{Type: signaling.FrameJoin, SessionCode: code}))
	ack := readFrame(t, conn)
	require.Equal(t, signaling.FrameJoin, ack.Type)
	require.NotEmpty(t, ack.PeerID)
	return ack.PeerID
}

func TestServerHealth(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	var body HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
}

func TestServerRoomNotFound(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/rooms/ZZZZ")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var body ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ROOM_NOT_FOUND", body.Code)
}

func TestServerSignalingExchange(t *testing.T) {
	ts, hub := newTestServer(t)

	host := dialRelay(t, ts)
	hostID := joinRoom(t, host, "abcd")

	player := dialRelay(t, ts)
	playerID := joinRoom(t, player, "ABCD")
	assert.NotEqual(t, hostID, playerID)

	// each side learns about the other
	announced := readFrame(t, player)
	assert.Equal(t, signaling.FramePeerJoined, announced.Type)
	assert.Equal(t, hostID, announced.PeerID)

	announced = readFrame(t, host)
	assert.Equal(t, signaling.FramePeerJoined, announced.Type)
	assert.Equal(t, playerID, announced.PeerID)

	require.NoError(t, host.WriteJSON(&signaling.Frame{Type: signaling.FrameOffer, PeerID: playerID, Descriptor: "offer-token"}))
	offer := readFrame(t, player)
	assert.Equal(t, signaling.FrameOffer, offer.Type)
	assert.Equal(t, hostID, offer.PeerID)
	assert.Equal(t, "offer-token", offer.Descriptor)

	require.NoError(t, player.WriteJSON(&signaling.Frame{Type: signaling.FrameAnswer, PeerID: hostID, Descriptor: "answer-token"}))
	answer := readFrame(t, host)
	assert.Equal(t, signaling.FrameAnswer, answer.Type)
	assert.Equal(t, playerID, answer.PeerID)
	assert.Equal(t, "answer-token", answer.Descriptor)

	resp, err := http.Get(ts.URL + "/api/rooms/abcd")
	require.NoError(t, err)
	defer resp.Body.Close()

	var room RoomResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&room))
	assert.Equal(t, "ABCD", room.Code)
	assert.Equal(t, 2, room.Members)

	player.Close()
	left := readFrame(t, host)
	assert.Equal(t, signaling.FramePeerLeft, left.Type)
	assert.Equal(t, playerID, left.PeerID)

	assert.Eventually(t, func() bool {
		return hub.GetTotalPeerCount() == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestServerStats(t *testing.T) {
	ts, _ := newTestServer(t)

	joinRoom(t, dialRelay(t, ts), "ABCD")
	joinRoom(t, dialRelay(t, ts), "EFGH")

	resp, err := http.Get(ts.URL + "/api/stats")
	require.NoError(t, err)
	defer resp.Body.Close()

	var stats StatsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 2, stats.Rooms)
	assert.Equal(t, 2, stats.Peers)
}

func TestServerRoomQR(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/rooms/ABCD/qr")
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))

	var buf bytes.Buffer
	_, err = buf.ReadFrom(resp.Body)
	require.NoError(t, err)

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, 256, img.Bounds().Dx())
}

func TestServerRoomQRRejectsBadCode(t *testing.T) {
	ts, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/rooms/ab0/qr")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
