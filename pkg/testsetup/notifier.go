// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package testsetup

import (
	"sync"
)

// Event is one captured notification.
type Event struct {
	Target  string
	Room    bool
	Name    string
	Payload interface{}
}

// RecordingNotifier captures notifications so tests can assert on them.
// Safe for concurrent use since timers and finalizers notify from their
// own goroutines.
type RecordingNotifier struct {
	mu     sync.Mutex
	events []Event
}

func NewRecordingNotifier() *RecordingNotifier {
	return &RecordingNotifier{}
}

func (n *RecordingNotifier) SendToUser(playerID, event string, payload interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, Event{Target: playerID, Name: event, Payload: payload})
}

func (n *RecordingNotifier) SendToRoom(roomID, event string, payload interface{}) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, Event{Target: roomID, Room: true, Name: event, Payload: payload})
}

// Events returns a copy of everything captured so far.
func (n *RecordingNotifier) Events() []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]Event, len(n.events))
	copy(out, n.events)
	return out
}

// EventsNamed filters captured events by name.
func (n *RecordingNotifier) EventsNamed(name string) []Event {
	n.mu.Lock()
	defer n.mu.Unlock()
	var out []Event
	for _, e := range n.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

// Reset clears captured events.
func (n *RecordingNotifier) Reset() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = nil
}
