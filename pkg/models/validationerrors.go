// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package models

import (
	"errors"
)

// Validation errors indicate a caller-side precondition violation. They are
// returned synchronously and never retried.
var (
	ErrPartyFull           = errors.New("party is at configured capacity")
	ErrNotAMember          = errors.New("player is not a member of the party")
	ErrNotLeader           = errors.New("requester is not the party leader")
	ErrAlreadyMember       = errors.New("player is already a racing member")
	ErrUnauthorized        = errors.New("sender is neither member nor spectator")
	ErrAlreadyQueued       = errors.New("player already has an active queue entry")
	ErrIncompleteSelection = errors.New("every party member must select a ship before queueing")
	ErrNotInSession        = errors.New("player is not in an active session")
	ErrPartyNotFound       = errors.New("party does not exist")
	ErrMatchNotFound       = errors.New("match does not exist")
)

var validationErrorCodeMap = map[error]int{
	ErrPartyFull:           520101,
	ErrNotAMember:          520102,
	ErrNotLeader:           520103,
	ErrAlreadyMember:       520104,
	ErrUnauthorized:        520105,
	ErrAlreadyQueued:       520110,
	ErrIncompleteSelection: 520111,
	ErrNotInSession:        520120,
	ErrPartyNotFound:       520106,
	ErrMatchNotFound:       520121,
}

// ValidationErrorCode returns a code for the error.
// It returns 20002 if the error is not registered in the map.
func ValidationErrorCode(err error) int {
	code, ok := validationErrorCodeMap[err]
	if !ok {
		return 20002
	}
	return code
}
