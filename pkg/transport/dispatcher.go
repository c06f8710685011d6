// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

// Package transport routes inbound client frames to the party, queue,
// and session operations and keeps websocket room membership in step
// with domain state.
package transport

import (
	"context"
	"encoding/json"
	"time"

	"github.com/AccelByte/livematch/pkg/constants"
	"github.com/AccelByte/livematch/pkg/envelope"
	"github.com/AccelByte/livematch/pkg/models"
	"github.com/AccelByte/livematch/pkg/notify"
	"github.com/AccelByte/livematch/pkg/party"
	"github.com/AccelByte/livematch/pkg/queue"
	"github.com/AccelByte/livematch/pkg/session"
	"github.com/AccelByte/livematch/pkg/storage"
	"github.com/AccelByte/livematch/pkg/transport/wshub"
)

// Dispatcher decodes client commands and invokes the matching operation.
type Dispatcher struct {
	hub      *wshub.Hub
	store    storage.Store
	parties  *party.Manager
	queue    *queue.Queue
	sessions *session.Registry
}

func NewDispatcher(hub *wshub.Hub, store storage.Store, parties *party.Manager, q *queue.Queue, sessions *session.Registry) *Dispatcher {
	d := &Dispatcher{
		hub:      hub,
		store:    store,
		parties:  parties,
		queue:    q,
		sessions: sessions,
	}
	hub.OnMessage = d.Handle
	hub.OnDisconnect = d.handleDisconnect
	return d
}

type partyRequest struct {
	PartyID  string `json:"party_id"`
	TargetID string `json:"target_id,omitempty"`
	ShipID   string `json:"ship_id,omitempty"`
	Text     string `json:"text,omitempty"`
}

type queueRequest struct {
	ShipID  string `json:"ship_id,omitempty"`
	PartyID string `json:"party_id,omitempty"`
}

type matchRequest struct {
	MatchID string `json:"match_id"`
}

type stateRequest struct {
	MatchID string                `json:"match_id"`
	State   models.TransientState `json:"state"`
}

type finishRequest struct {
	MatchID    string  `json:"match_id"`
	FinishTime float64 `json:"finish_time_seconds"`
	Position   int     `json:"position"`
	Replay     []byte  `json:"replay,omitempty"`
}

// Handle routes one inbound frame. Failures go back to the sender as a
// command_error event carrying the validation error code.
func (d *Dispatcher) Handle(msg wshub.Inbound) {
	scope := envelope.NewRootScope(context.Background(), "transport."+msg.Event, "")
	defer scope.Finish()
	scope.SetAttributes(envelope.PlayerIDTag, msg.PlayerID)

	if err := d.dispatch(scope, msg); err != nil {
		scope.Log.WithError(err).WithField("playerID", msg.PlayerID).
			WithField("event", msg.Event).Debug("command failed")
		d.hub.SendToUser(msg.PlayerID, constants.EventCommandError, map[string]interface{}{
			"command": msg.Event,
			"code":    models.ValidationErrorCode(err),
			"message": err.Error(),
		})
	}
}

func (d *Dispatcher) dispatch(scope *envelope.Scope, msg wshub.Inbound) error {
	switch msg.Event {
	case constants.CmdCreateParty:
		partyID := d.parties.Create(scope, msg.PlayerID)
		d.hub.JoinRoom(notify.PartyRoom(partyID), msg.PlayerID)
		if p, err := d.parties.Get(partyID); err == nil {
			d.hub.SendToUser(msg.PlayerID, constants.EventPartyUpdated, p)
		}
		return nil

	case constants.CmdJoinParty:
		var req partyRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			return err
		}
		// join the room first so the member sees their own update
		d.hub.JoinRoom(notify.PartyRoom(req.PartyID), msg.PlayerID)
		if err := d.parties.Join(scope, req.PartyID, msg.PlayerID); err != nil {
			d.hub.LeaveRoom(notify.PartyRoom(req.PartyID), msg.PlayerID)
			return err
		}
		return nil

	case constants.CmdLeaveParty:
		var req partyRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			return err
		}
		if err := d.parties.Leave(scope, req.PartyID, msg.PlayerID); err != nil {
			return err
		}
		d.hub.LeaveRoom(notify.PartyRoom(req.PartyID), msg.PlayerID)
		return nil

	case constants.CmdKickMember:
		var req partyRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			return err
		}
		if err := d.parties.Kick(scope, req.PartyID, msg.PlayerID, req.TargetID); err != nil {
			return err
		}
		d.hub.LeaveRoom(notify.PartyRoom(req.PartyID), req.TargetID)
		return nil

	case constants.CmdSetShip:
		var req partyRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			return err
		}
		return d.parties.SetShip(scope, req.PartyID, msg.PlayerID, req.ShipID)

	case constants.CmdPartyChat:
		var req partyRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			return err
		}
		return d.parties.SendMessage(scope, req.PartyID, msg.PlayerID, req.Text)

	case constants.CmdSpectate:
		var req partyRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			return err
		}
		d.hub.JoinRoom(notify.PartyRoom(req.PartyID), msg.PlayerID)
		if err := d.parties.AddSpectator(scope, req.PartyID, msg.PlayerID); err != nil {
			d.hub.LeaveRoom(notify.PartyRoom(req.PartyID), msg.PlayerID)
			return err
		}
		return nil

	case constants.CmdEnqueueSolo:
		var req queueRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			return err
		}
		ctx, cancel := context.WithTimeout(scope.Ctx, 5*time.Second)
		defer cancel()
		rating, err := d.store.GetRating(ctx, msg.PlayerID)
		if err != nil {
			return err
		}
		return d.queue.EnqueueSolo(scope, msg.PlayerID, rating, req.ShipID)

	case constants.CmdEnqueueParty:
		var req queueRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			return err
		}
		return d.queue.EnqueueParty(scope, req.PartyID)

	case constants.CmdCancelQueue:
		d.queue.Cancel(scope, msg.PlayerID)
		return nil

	case constants.CmdQueueStatus:
		status := d.queue.Status(scope, msg.PlayerID)
		d.hub.SendToUser(msg.PlayerID, constants.CmdQueueStatus, status)
		return nil

	case constants.CmdReady:
		var req matchRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			return err
		}
		d.hub.JoinRoom(notify.MatchRoom(req.MatchID), msg.PlayerID)
		return d.sessions.MarkReady(scope, req.MatchID, msg.PlayerID)

	case constants.CmdForceStart:
		var req matchRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			return err
		}
		return d.sessions.ForceStart(scope, req.MatchID, msg.PlayerID)

	case constants.CmdStateUpdate:
		var req stateRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			return err
		}
		return d.sessions.RecordUpdate(scope, req.MatchID, msg.PlayerID, req.State)

	case constants.CmdFinish:
		var req finishRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			return err
		}
		finishTime := time.Duration(req.FinishTime * float64(time.Second))
		return d.sessions.RecordFinish(scope, req.MatchID, msg.PlayerID, finishTime, req.Position, req.Replay)

	case constants.CmdReconnect:
		_, err := d.sessions.Reconnect(scope, msg.PlayerID)
		if err != nil {
			return err
		}
		if matchID, ok := d.sessions.MatchFor(msg.PlayerID); ok {
			d.hub.JoinRoom(notify.MatchRoom(matchID), msg.PlayerID)
		}
		return nil

	case constants.CmdWatchMatch:
		var req matchRequest
		if err := json.Unmarshal(msg.Payload, &req); err != nil {
			return err
		}
		if err := d.sessions.Spectate(scope, req.MatchID, msg.PlayerID); err != nil {
			return err
		}
		d.hub.JoinRoom(notify.SpectatorRoom(req.MatchID), msg.PlayerID)
		return nil
	}

	scope.Log.WithField("event", msg.Event).Debug("unknown command")
	return nil
}

// handleDisconnect tears down everything tied to a dropped connection:
// the queue entry is cancelled, a live session opens its grace window,
// and party membership is released.
func (d *Dispatcher) handleDisconnect(playerID string) {
	scope := envelope.NewRootScope(context.Background(), "transport.disconnect", "")
	defer scope.Finish()
	scope.SetAttributes(envelope.PlayerIDTag, playerID)

	d.queue.Cancel(scope, playerID)

	if matchID, ok := d.sessions.MatchFor(playerID); ok {
		d.sessions.RecordDisconnect(scope, matchID, playerID)
		return
	}

	if partyID, ok := d.parties.PartyFor(playerID); ok {
		if err := d.parties.Leave(scope, partyID, playerID); err == nil {
			d.hub.LeaveRoom(notify.PartyRoom(partyID), playerID)
		}
	}
}
