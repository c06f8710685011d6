// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package constants

const (
	// Event names sent through the notifier. The transport layer forwards
	// them verbatim, so clients key off these strings.
	EventPartyUpdated       = "party_updated"
	EventPartyMessage       = "party_message"
	EventPartyKicked        = "party_kicked"
	EventMatchFound         = "match_found"
	EventMatchStarted       = "match_started"
	EventMatchAborted       = "match_aborted"
	EventPlayerReady        = "player_ready"
	EventPlayerUpdate       = "player_update"
	EventPlayerDisconnected = "player_disconnected"
	EventPlayerReconnected  = "player_reconnected"
	EventPlayerTimeout      = "player_timeout"
	EventPlayerFinished     = "player_finished"
	EventMatchSnapshot      = "match_snapshot"
	EventRaceResults        = "race_results"

	// Abort reason constants.
	AbortReasonTooManyDisconnects = "abort_too_many_disconnects"
	AbortReasonFormationTimeout   = "abort_formation_timeout"

	// Not matched reason constants.
	ReasonNotEnoughPlayers = "not_enough_players"
	ReasonNoFitWithinMax   = "no_admissible_combination"

	// Finalize function labels for metrics.
	ApplyRatingFunction   = "applyRatingDelta"
	AppendHistoryFunction = "appendRaceHistory"
)

const (
	// Client command names carried in inbound websocket frames.
	CmdCreateParty  = "create_party"
	CmdJoinParty    = "join_party"
	CmdLeaveParty   = "leave_party"
	CmdKickMember   = "kick_member"
	CmdSetShip      = "set_ship"
	CmdPartyChat    = "party_chat"
	CmdSpectate     = "spectate_party"
	CmdEnqueueSolo  = "enqueue_solo"
	CmdEnqueueParty = "enqueue_party"
	CmdCancelQueue  = "cancel_queue"
	CmdQueueStatus  = "queue_status"
	CmdReady        = "ready"
	CmdForceStart   = "force_start"
	CmdStateUpdate  = "state_update"
	CmdFinish       = "finish"
	CmdReconnect    = "reconnect"
	CmdWatchMatch   = "watch_match"

	// Error event pushed back to the sender when a command fails.
	EventCommandError = "command_error"
)
