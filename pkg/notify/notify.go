// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

// Package notify defines the fan-out boundary the core pushes events
// through. Delivery is fire-and-forget: a failed send never rolls back a
// state transition.
package notify

import "fmt"

// Notifier fans events out to a single user or to everyone in a room.
type Notifier interface {
	SendToUser(playerID string, event string, payload interface{})
	SendToRoom(roomID string, event string, payload interface{})
}

// PartyRoom derives the deterministic room id for a party.
func PartyRoom(partyID string) string {
	return fmt.Sprintf("party_%s", partyID)
}

// MatchRoom derives the deterministic room id for a match.
func MatchRoom(matchID string) string {
	return fmt.Sprintf("match_%s", matchID)
}

// SpectatorRoom derives the room id for a match's spectators.
func SpectatorRoom(matchID string) string {
	return fmt.Sprintf("match_%s_spectators", matchID)
}

// Noop discards every event. Useful as a default and in tests that do not
// assert on notifications.
type Noop struct{}

func (Noop) SendToUser(string, string, interface{}) {}

func (Noop) SendToRoom(string, string, interface{}) {}
