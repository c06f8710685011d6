// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package transport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AccelByte/livematch/pkg/common"
	"github.com/AccelByte/livematch/pkg/config"
	"github.com/AccelByte/livematch/pkg/constants"
	"github.com/AccelByte/livematch/pkg/models"
	"github.com/AccelByte/livematch/pkg/outcome"
	"github.com/AccelByte/livematch/pkg/party"
	"github.com/AccelByte/livematch/pkg/queue"
	"github.com/AccelByte/livematch/pkg/session"
	"github.com/AccelByte/livematch/pkg/storage/memory"
	"github.com/AccelByte/livematch/pkg/testsetup"
	"github.com/AccelByte/livematch/pkg/transport/wshub"
)

type stackFixture struct {
	server *httptest.Server
	store  *memory.Store
}

func newStackFixture(t *testing.T) *stackFixture {
	t.Helper()
	cfg := config.Default()
	store := memory.New()
	hub := wshub.NewHub(nil)
	parties := party.NewManager(cfg, hub)
	finalizer := outcome.NewFinalizer(cfg, store, hub, testsetup.NewMetrics())
	sessions := session.NewRegistry(cfg, store, finalizer, hub, testsetup.NewMetrics())
	matchQueue := queue.New(cfg, store, parties, sessions, hub, testsetup.NewMetrics())
	NewDispatcher(hub, store, parties, matchQueue, sessions)

	server := httptest.NewServer(http.HandlerFunc(hub.ServeWS))
	t.Cleanup(func() {
		hub.Close()
		server.Close()
	})
	return &stackFixture{server: server, store: store}
}

type client struct {
	t    *testing.T
	conn *websocket.Conn
}

func (f *stackFixture) connect(t *testing.T, playerID string) *client {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "?player_id=" + playerID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return &client{t: t, conn: conn}
}

func (c *client) send(event string, payload interface{}) {
	c.t.Helper()
	require.NoError(c.t, c.conn.WriteJSON(map[string]interface{}{
		"event":   event,
		"payload": payload,
	}))
}

// waitFor reads frames until one with the wanted event arrives.
func (c *client) waitFor(event string) wshub.Frame {
	c.t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		require.NoError(c.t, c.conn.SetReadDeadline(time.Now().Add(3*time.Second)))
		var frame wshub.Frame
		_, raw, err := c.conn.ReadMessage()
		require.NoError(c.t, err)
		require.NoError(c.t, json.Unmarshal(raw, &frame))
		if frame.Event == event {
			return frame
		}
	}
	c.t.Fatalf("never received %q", event)
	return wshub.Frame{}
}

func payloadField(t *testing.T, frame wshub.Frame, key string) interface{} {
	t.Helper()
	payload, ok := frame.Payload.(map[string]interface{})
	require.True(t, ok, "payload is not an object")
	value, _ := common.GetMapValueAs[interface{}](payload, key)
	return value
}

func TestPartyLifecycleOverWebsocket(t *testing.T) {
	f := newStackFixture(t)
	leader := f.connect(t, "leader")

	leader.send(constants.CmdCreateParty, nil)
	created := leader.waitFor(constants.EventPartyUpdated)
	partyID, _ := payloadField(t, created, "party_id").(string)
	require.NotEmpty(t, partyID)

	member := f.connect(t, "member")
	member.send(constants.CmdJoinParty, map[string]string{"party_id": partyID})
	updated := member.waitFor(constants.EventPartyUpdated)
	assert.Equal(t, "leader", payloadField(t, updated, "leader_id"))

	member.send(constants.CmdPartyChat, map[string]string{"party_id": partyID, "text": "ready when you are"})
	message := member.waitFor(constants.EventPartyMessage)
	assert.Equal(t, "member", payloadField(t, message, "sender_id"))
}

func TestQueueToRaceOverWebsocket(t *testing.T) {
	f := newStackFixture(t)
	f.store.SeedRating("alice", 1000)
	f.store.SeedRating("bob", 1040)

	alice := f.connect(t, "alice")
	bob := f.connect(t, "bob")

	alice.send(constants.CmdEnqueueSolo, map[string]string{"ship_id": "ship-a"})
	bob.send(constants.CmdEnqueueSolo, map[string]string{"ship_id": "ship-b"})

	aliceFound := alice.waitFor(constants.EventMatchFound)
	bobFound := bob.waitFor(constants.EventMatchFound)
	matchID, _ := payloadField(t, aliceFound, "match_id").(string)
	require.NotEmpty(t, matchID)
	assert.Equal(t, matchID, payloadField(t, bobFound, "match_id"))

	alice.send(constants.CmdReady, map[string]string{"match_id": matchID})
	bob.send(constants.CmdReady, map[string]string{"match_id": matchID})
	alice.waitFor(constants.EventMatchStarted)

	alice.send(constants.CmdFinish, map[string]interface{}{
		"match_id": matchID, "finish_time_seconds": 61.5, "position": 1,
	})
	bob.send(constants.CmdFinish, map[string]interface{}{
		"match_id": matchID, "finish_time_seconds": 63.2, "position": 2,
	})

	results := alice.waitFor(constants.EventRaceResults)
	assert.Equal(t, matchID, payloadField(t, results, "match_id"))
}

func TestInvalidCommandReturnsErrorFrame(t *testing.T) {
	f := newStackFixture(t)
	alice := f.connect(t, "alice")

	alice.send(constants.CmdJoinParty, map[string]string{"party_id": "no-such-party"})
	errFrame := alice.waitFor(constants.EventCommandError)

	code, _ := payloadField(t, errFrame, "code").(float64)
	assert.Equal(t, models.ValidationErrorCode(models.ErrPartyNotFound), int(code))
	assert.Equal(t, constants.CmdJoinParty, payloadField(t, errFrame, "command"))
}
