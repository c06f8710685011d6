// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

// Package party owns the short-lived group-forming state players build up
// before entering the matchmaking queue. Each party is its own locking
// aggregate; unrelated parties never contend.
package party

import (
	"sync"
	"time"

	"github.com/mitchellh/copystructure"

	"github.com/AccelByte/livematch/pkg/config"
	"github.com/AccelByte/livematch/pkg/constants"
	"github.com/AccelByte/livematch/pkg/envelope"
	"github.com/AccelByte/livematch/pkg/models"
	"github.com/AccelByte/livematch/pkg/notify"

	"github.com/AccelByte/livematch/pkg/common"
)

// Manager owns every live party until it empties out or merges into a
// match.
type Manager struct {
	cfg      *config.Config
	notifier notify.Notifier

	mu      sync.RWMutex
	parties map[string]*partyEntry
}

type partyEntry struct {
	mu    sync.Mutex
	party models.Party
}

func NewManager(cfg *config.Config, notifier notify.Notifier) *Manager {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	return &Manager{
		cfg:      cfg,
		notifier: notifier,
		parties:  make(map[string]*partyEntry),
	}
}

func (m *Manager) entry(partyID string) (*partyEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.parties[partyID]
	if !ok {
		return nil, models.ErrPartyNotFound
	}
	return e, nil
}

// snapshotLocked deep-copies the party so broadcast payloads never alias
// mutable state. Caller holds the entry lock.
func snapshotLocked(p *models.Party) models.Party {
	copied, err := copystructure.Copy(*p)
	if err != nil {
		return *p
	}
	return copied.(models.Party)
}

func (m *Manager) broadcastLocked(p *models.Party) {
	m.notifier.SendToRoom(notify.PartyRoom(p.PartyID), constants.EventPartyUpdated, snapshotLocked(p))
}

// Create forms a new party with leader as its only member and returns the
// party id.
func (m *Manager) Create(rootScope *envelope.Scope, leaderID string) string {
	scope := rootScope.NewChildScope("party.Create")
	defer scope.Finish()

	partyID := common.GenerateUUID()
	scope.SetAttributes(envelope.PartyIDTag, partyID)

	e := &partyEntry{
		party: models.Party{
			PartyID:   partyID,
			LeaderID:  leaderID,
			Members:   []string{leaderID},
			ShipIDs:   make(map[string]string),
			CreatedAt: time.Now().UTC(),
		},
	}

	m.mu.Lock()
	m.parties[partyID] = e
	m.mu.Unlock()

	scope.Log.WithField("partyID", partyID).WithField("leader", leaderID).Info("party created")

	e.mu.Lock()
	defer e.mu.Unlock()
	m.broadcastLocked(&e.party)

	return partyID
}

// Join appends the player to the party in join order.
func (m *Manager) Join(rootScope *envelope.Scope, partyID, playerID string) error {
	scope := rootScope.NewChildScope("party.Join")
	defer scope.Finish()

	e, err := m.entry(partyID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.party.HasMember(playerID) {
		return models.ErrAlreadyMember
	}
	if len(e.party.Members) >= m.cfg.PartyMaxMembers {
		return models.ErrPartyFull
	}
	e.party.Members = append(e.party.Members, playerID)
	m.broadcastLocked(&e.party)
	return nil
}

// SetShip records the player's ship selection.
func (m *Manager) SetShip(rootScope *envelope.Scope, partyID, playerID, shipID string) error {
	scope := rootScope.NewChildScope("party.SetShip")
	defer scope.Finish()

	e, err := m.entry(partyID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.party.HasMember(playerID) {
		return models.ErrNotAMember
	}
	e.party.ShipIDs[playerID] = shipID
	m.broadcastLocked(&e.party)
	return nil
}

// Kick removes target from the party. Only the leader may kick.
func (m *Manager) Kick(rootScope *envelope.Scope, partyID, requesterID, targetID string) error {
	scope := rootScope.NewChildScope("party.Kick")
	defer scope.Finish()

	e, err := m.entry(partyID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.party.LeaderID != requesterID {
		return models.ErrNotLeader
	}
	if !e.party.HasMember(targetID) {
		return models.ErrNotAMember
	}

	m.removeMemberLocked(e, targetID)
	m.notifier.SendToUser(targetID, constants.EventPartyKicked, map[string]interface{}{"party_id": partyID})

	if len(e.party.Members) == 0 {
		m.destroy(partyID)
		return nil
	}
	if e.party.LeaderID == targetID {
		e.party.LeaderID = e.party.Members[0]
	}
	m.broadcastLocked(&e.party)
	return nil
}

// Leave removes the player. Leadership transfers to the next member in
// join order; an emptied party is destroyed immediately.
func (m *Manager) Leave(rootScope *envelope.Scope, partyID, playerID string) error {
	scope := rootScope.NewChildScope("party.Leave")
	defer scope.Finish()

	e, err := m.entry(partyID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.party.HasMember(playerID) {
		return models.ErrNotAMember
	}

	m.removeMemberLocked(e, playerID)

	if len(e.party.Members) == 0 {
		m.destroy(partyID)
		scope.Log.WithField("partyID", partyID).Info("party destroyed, last member left")
		return nil
	}
	if e.party.LeaderID == playerID {
		e.party.LeaderID = e.party.Members[0]
	}
	m.broadcastLocked(&e.party)
	return nil
}

// AddSpectator attaches a non-racing watcher to the party.
func (m *Manager) AddSpectator(rootScope *envelope.Scope, partyID, playerID string) error {
	scope := rootScope.NewChildScope("party.AddSpectator")
	defer scope.Finish()

	e, err := m.entry(partyID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.party.HasMember(playerID) {
		return models.ErrAlreadyMember
	}
	if !e.party.HasSpectator(playerID) {
		e.party.Spectators = append(e.party.Spectators, playerID)
		m.broadcastLocked(&e.party)
	}
	return nil
}

// SendMessage appends to the bounded chat log and broadcasts the message.
func (m *Manager) SendMessage(rootScope *envelope.Scope, partyID, senderID, text string) error {
	scope := rootScope.NewChildScope("party.SendMessage")
	defer scope.Finish()

	e, err := m.entry(partyID)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.party.HasMember(senderID) && !e.party.HasSpectator(senderID) {
		return models.ErrUnauthorized
	}

	msg := models.ChatMessage{
		SenderID:  senderID,
		Text:      text,
		Timestamp: time.Now().UTC(),
	}
	e.party.AppendChat(msg, m.cfg.ChatHistoryLimit)
	m.notifier.SendToRoom(notify.PartyRoom(partyID), constants.EventPartyMessage, msg)
	return nil
}

// Get returns a deep copy of the party state.
func (m *Manager) Get(partyID string) (models.Party, error) {
	e, err := m.entry(partyID)
	if err != nil {
		return models.Party{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return snapshotLocked(&e.party), nil
}

// PartyFor reports which party, if any, the player is a member of.
func (m *Manager) PartyFor(playerID string) (string, bool) {
	m.mu.RLock()
	entries := make(map[string]*partyEntry, len(m.parties))
	for partyID, e := range m.parties {
		entries[partyID] = e
	}
	m.mu.RUnlock()

	for partyID, e := range entries {
		e.mu.Lock()
		member := e.party.HasMember(playerID)
		e.mu.Unlock()
		if member {
			return partyID, true
		}
	}
	return "", false
}

// Destroy drops the party, used when its members merge into a match.
func (m *Manager) Destroy(partyID string) {
	m.destroy(partyID)
}

func (m *Manager) destroy(partyID string) {
	m.mu.Lock()
	delete(m.parties, partyID)
	m.mu.Unlock()
}

func (m *Manager) removeMemberLocked(e *partyEntry, playerID string) {
	members := e.party.Members[:0]
	for _, id := range e.party.Members {
		if id != playerID {
			members = append(members, id)
		}
	}
	e.party.Members = members
	delete(e.party.ShipIDs, playerID)
}
