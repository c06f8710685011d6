// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package models

import (
	"gopkg.in/typ.v4/sync2"
)

// Pool reusable objects to reduce garbage collector pressure on the
// snapshot/broadcast hot path.
type Pool struct {
	PlayerViews *sync2.Pool[[]PlayerView]
}

func NewPool() *Pool {
	return &Pool{
		PlayerViews: &sync2.Pool[[]PlayerView]{
			New: func() []PlayerView {
				return make([]PlayerView, 0, 8)
			},
		},
	}
}
