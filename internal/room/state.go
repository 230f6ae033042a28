// Package room holds the local mirror of a lobby room: the wire model, the
// state machine that applies pushed snapshots, and the derived view used by
// the terminal UI.
package room

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"

	"lobbyclient/internal/network"
)

// Status is the server-authoritative lifecycle phase of a room.
type Status string

const (
	StatusWaiting Status = "waiting"
	StatusReady   Status = "ready"
	StatusInGame  Status = "in_game"
)

// StartPhase is the state of the start negotiation. StartNone means the
// server sent no state at all, which the client treats like idle.
type StartPhase string

const (
	StartNone     StartPhase = ""
	StartIdle     StartPhase = "idle"
	StartProposed StartPhase = "proposed"
	StartAgreed   StartPhase = "agreed"
	StartRejected StartPhase = "rejected"
)

// Start is the negotiation sub-state.
type Start struct {
	State StartPhase `json:"state"`
	// Responses maps guest id to its answer for the current proposal.
	Responses  map[string]bool `json:"responses,omitempty"`
	RejectedBy string          `json:"rejected_by,omitempty"`
}

// State is one room snapshot as pushed by the lobby. A State is never
// patched: every push replaces it wholesale.
type State struct {
	RoomID       string   `json:"room_id"`
	Players      []string `json:"players"`
	ReadyPlayers []string `json:"ready_players"`
	Owner        string   `json:"owner"`
	Status       Status   `json:"status"`
	MaxPlayers   int      `json:"max_players"`
	Start        Start    `json:"start"`
}

// Parse decodes and validates a room payload for the room the client
// subscribed to. Snapshots without a room_id inherit roomID; snapshots
// for any other room are rejected.
func Parse(data json.RawMessage, roomID string) (*State, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, &network.Error{Kind: network.KindProtocol, Op: "room", Message: "missing room snapshot"}
	}
	var s State
	if err := json.Unmarshal(trimmed, &s); err != nil {
		return nil, &network.Error{Kind: network.KindProtocol, Op: "room", Err: err}
	}
	if s.RoomID == "" {
		s.RoomID = roomID
	}
	if roomID != "" && s.RoomID != roomID {
		return nil, violation("snapshot for room %q on subscription to %q", s.RoomID, roomID)
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return &s, nil
}

// Validate checks the invariants every snapshot must hold.
func (s *State) Validate() error {
	if s.RoomID == "" {
		return violation("empty room_id")
	}
	switch s.Status {
	case StatusWaiting, StatusReady, StatusInGame:
	default:
		return violation("unknown status %q", s.Status)
	}
	switch s.Start.State {
	case StartNone, StartIdle, StartProposed, StartAgreed, StartRejected:
	default:
		return violation("unknown start state %q", s.Start.State)
	}
	if s.MaxPlayers < 0 {
		return violation("negative max_players %d", s.MaxPlayers)
	}
	for _, p := range s.Players {
		if p == "" {
			return violation("empty player id")
		}
	}
	for _, p := range s.ReadyPlayers {
		if !s.HasPlayer(p) {
			return violation("ready player %q is not in the room", p)
		}
	}
	if s.Owner != "" && !s.HasPlayer(s.Owner) {
		return violation("owner %q is not in the room", s.Owner)
	}
	return nil
}

func violation(format string, args ...any) error {
	return &network.Error{Kind: network.KindProtocol, Op: "room", Message: fmt.Sprintf(format, args...)}
}

// Clone returns a deep copy.
func (s *State) Clone() *State {
	if s == nil {
		return nil
	}
	c := *s
	c.Players = slices.Clone(s.Players)
	c.ReadyPlayers = slices.Clone(s.ReadyPlayers)
	if s.Start.Responses != nil {
		c.Start.Responses = make(map[string]bool, len(s.Start.Responses))
		for k, v := range s.Start.Responses {
			c.Start.Responses[k] = v
		}
	}
	return &c
}

func (s *State) HasPlayer(id string) bool { return slices.Contains(s.Players, id) }

func (s *State) IsReady(id string) bool { return slices.Contains(s.ReadyPlayers, id) }

// Phase is the start state with StartNone folded into StartIdle.
func (s *State) Phase() StartPhase {
	if s.Start.State == StartNone {
		return StartIdle
	}
	return s.Start.State
}

// Guests lists every player except the owner, in room order.
func (s *State) Guests() []string {
	guests := make([]string, 0, len(s.Players))
	for _, p := range s.Players {
		if p != s.Owner {
			guests = append(guests, p)
		}
	}
	return guests
}
