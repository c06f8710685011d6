// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package models

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMatchStatusTransitions(t *testing.T) {
	tests := []struct {
		From MatchStatus
		To   MatchStatus
		Want bool
	}{
		{From: MatchStatusForming, To: MatchStatusInProgress, Want: true},
		{From: MatchStatusForming, To: MatchStatusAborted, Want: true},
		{From: MatchStatusForming, To: MatchStatusCompleted, Want: false},
		{From: MatchStatusInProgress, To: MatchStatusCompleted, Want: true},
		{From: MatchStatusInProgress, To: MatchStatusAborted, Want: true},
		{From: MatchStatusInProgress, To: MatchStatusForming, Want: false},
		{From: MatchStatusCompleted, To: MatchStatusAborted, Want: false},
		{From: MatchStatusAborted, To: MatchStatusInProgress, Want: false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s_to_%s", tt.From, tt.To), func(t *testing.T) {
			assert.Equal(t, tt.Want, tt.From.CanTransitionTo(tt.To))
		})
	}
}

func TestMatchStatusTerminal(t *testing.T) {
	assert.False(t, MatchStatusForming.Terminal())
	assert.False(t, MatchStatusInProgress.Terminal())
	assert.True(t, MatchStatusCompleted.Terminal())
	assert.True(t, MatchStatusAborted.Terminal())
}

func TestAppendChatEvictsOldest(t *testing.T) {
	p := Party{}
	for i := 0; i < 7; i++ {
		p.AppendChat(ChatMessage{Text: fmt.Sprintf("m%d", i), Timestamp: time.Now()}, 5)
	}
	assert.Len(t, p.Chat, 5)
	assert.Equal(t, "m2", p.Chat[0].Text)
	assert.Equal(t, "m6", p.Chat[4].Text)
}

func TestParticipantStateSettled(t *testing.T) {
	assert.False(t, (&ParticipantState{}).Settled())
	assert.True(t, (&ParticipantState{Finished: true}).Settled())
	assert.True(t, (&ParticipantState{DNF: true}).Settled())
}

func TestValidationErrorCode(t *testing.T) {
	assert.Equal(t, validationErrorCodeMap[ErrPartyFull], ValidationErrorCode(ErrPartyFull))
	assert.Equal(t, validationErrorCodeMap[ErrAlreadyQueued], ValidationErrorCode(ErrAlreadyQueued))
	assert.Equal(t, 20002, ValidationErrorCode(errors.New("unmapped")))
}
