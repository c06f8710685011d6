// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package wshub

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type hubFixture struct {
	hub    *Hub
	server *httptest.Server
}

func newHubFixture(t *testing.T) *hubFixture {
	t.Helper()
	hub := NewHub(nil)
	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(func() {
		hub.Close()
		server.Close()
	})
	return &hubFixture{hub: hub, server: server}
}

func (f *hubFixture) dial(t *testing.T, playerID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "?player_id=" + playerID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) Frame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var frame Frame
	_, raw, err := conn.ReadMessage()
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(raw, &frame))
	return frame
}

func TestServeWSRequiresPlayerID(t *testing.T) {
	f := newHubFixture(t)

	resp, err := http.Get(f.server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestSendToUser(t *testing.T) {
	f := newHubFixture(t)
	conn := f.dial(t, "alice")

	require.Eventually(t, func() bool {
		return f.hub.Connected("alice")
	}, 2*time.Second, 10*time.Millisecond)

	f.hub.SendToUser("alice", "hello", map[string]string{"greeting": "hi"})

	frame := readFrame(t, conn)
	assert.Equal(t, "hello", frame.Event)

	// frames to unknown players are dropped without blocking
	f.hub.SendToUser("nobody", "hello", nil)
}

func TestSendToRoomReachesOnlyMembers(t *testing.T) {
	f := newHubFixture(t)
	alice := f.dial(t, "alice")
	bob := f.dial(t, "bob")

	require.Eventually(t, func() bool {
		return f.hub.Connected("alice") && f.hub.Connected("bob")
	}, 2*time.Second, 10*time.Millisecond)

	f.hub.JoinRoom("race", "alice")
	f.hub.SendToRoom("race", "countdown", nil)

	frame := readFrame(t, alice)
	assert.Equal(t, "countdown", frame.Event)

	require.NoError(t, bob.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := bob.ReadMessage()
	assert.Error(t, err, "non-member must not receive the broadcast")
}

func TestLeaveRoomStopsDelivery(t *testing.T) {
	f := newHubFixture(t)
	alice := f.dial(t, "alice")

	require.Eventually(t, func() bool {
		return f.hub.Connected("alice")
	}, 2*time.Second, 10*time.Millisecond)

	f.hub.JoinRoom("race", "alice")
	f.hub.LeaveRoom("race", "alice")
	f.hub.SendToRoom("race", "countdown", nil)

	require.NoError(t, alice.SetReadDeadline(time.Now().Add(200*time.Millisecond)))
	_, _, err := alice.ReadMessage()
	assert.Error(t, err)
}

func TestInboundFramesReachHandler(t *testing.T) {
	f := newHubFixture(t)

	var mu sync.Mutex
	var received []Inbound
	f.hub.OnMessage = func(msg Inbound) {
		mu.Lock()
		received = append(received, msg)
		mu.Unlock()
	}

	conn := f.dial(t, "alice")
	require.NoError(t, conn.WriteJSON(map[string]interface{}{
		"event":   "ready",
		"payload": map[string]string{"match_id": "m1"},
	}))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "alice", received[0].PlayerID)
	assert.Equal(t, "ready", received[0].Event)
}

func TestOnDisconnectFiresOnClose(t *testing.T) {
	f := newHubFixture(t)

	disconnected := make(chan string, 1)
	f.hub.OnDisconnect = func(playerID string) {
		disconnected <- playerID
	}

	conn := f.dial(t, "alice")
	require.Eventually(t, func() bool {
		return f.hub.Connected("alice")
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())

	select {
	case playerID := <-disconnected:
		assert.Equal(t, "alice", playerID)
	case <-time.After(2 * time.Second):
		t.Fatal("disconnect hook never fired")
	}
	assert.False(t, f.hub.Connected("alice"))
}

func TestNewerConnectionReplacesOlderWithoutDisconnect(t *testing.T) {
	f := newHubFixture(t)

	disconnected := make(chan string, 2)
	f.hub.OnDisconnect = func(playerID string) {
		disconnected <- playerID
	}

	f.dial(t, "alice")
	require.Eventually(t, func() bool {
		return f.hub.Connected("alice")
	}, 2*time.Second, 10*time.Millisecond)

	// the replacement keeps the player connected; the evicted socket
	// must not be reported as a disconnect
	f.dial(t, "alice")

	select {
	case playerID := <-disconnected:
		t.Fatalf("unexpected disconnect for %s", playerID)
	case <-time.After(300 * time.Millisecond):
	}
	assert.True(t, f.hub.Connected("alice"))
	assert.Equal(t, 1, f.hub.ConnectionCount())
}
