package room

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDerive(t *testing.T) {
	base := func(start Start) *State {
		return &State{
			RoomID:       "r1",
			Players:      []string{"A", "B", "C"},
			ReadyPlayers: []string{"B"},
			Owner:        "A",
			Status:       StatusWaiting,
			MaxPlayers:   3,
			Start:        start,
		}
	}

	tests := []struct {
		name       string
		state      *State
		flags      Flags
		self       string
		notice     Notice
		canPropose bool
		pending    []string
		acks       []GuestAck
		rejectedBy string
	}{
		{name: "no snapshot yet", self: "A", notice: NoticeAwaitingState},
		{name: "owner idle", state: base(Start{State: StartIdle}), self: "A", notice: NoticeOwnerMayPropose, canPropose: true},
		{name: "guest idle", state: base(Start{}), self: "B", notice: NoticeWaitingForOwner},
		{
			name:   "owner sees acks",
			state:  base(Start{State: StartProposed, Responses: map[string]bool{"B": true}}),
			self:   "A",
			notice: NoticeOwnerAwaitingGuests,
			acks:   []GuestAck{{Name: "B", Accepted: true}, {Name: "C", Accepted: false}},
		},
		{
			name:   "guest prompted",
			state:  base(Start{State: StartProposed, Responses: map[string]bool{"C": true}}),
			self:   "B",
			notice: NoticeRespondToProposal,
		},
		{
			name:    "guest waits for others",
			state:   base(Start{State: StartProposed, Responses: map[string]bool{"B": true}}),
			self:    "B",
			notice:  NoticeWaitingForOthers,
			pending: []string{"C"},
		},
		{
			name:   "everyone agreed",
			state:  base(Start{State: StartProposed, Responses: map[string]bool{"B": true, "C": true}}),
			self:   "B",
			notice: NoticeAllAgreed,
		},
		{
			name:       "rejected by you",
			state:      base(Start{State: StartRejected, RejectedBy: "B"}),
			self:       "B",
			notice:     NoticeRejectedByYou,
			rejectedBy: "B",
		},
		{
			name:       "rejected by other, owner may re-propose",
			state:      base(Start{State: StartRejected, RejectedBy: "C"}),
			self:       "A",
			notice:     NoticeRejectedByOther,
			canPropose: true,
			rejectedBy: "C",
		},
		{name: "rejected unspecified", state: base(Start{State: StartRejected}), self: "C", notice: NoticeRejectedUnspecified},
		{
			name:   "game starting",
			state:  func() *State { s := base(Start{State: StartAgreed}); s.Status = StatusInGame; return s }(),
			self:   "B",
			notice: NoticeGameStarting,
		},
		{
			name:   "game running",
			state:  func() *State { s := base(Start{State: StartAgreed}); s.Status = StatusInGame; return s }(),
			flags:  Flags{GameStarted: true},
			self:   "B",
			notice: NoticeGameRunning,
		},
		{name: "room closed", state: base(Start{State: StartIdle}), self: "Z", notice: NoticeRoomClosed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Derive(tt.state, tt.flags, tt.self)
			assert.Equal(t, tt.notice, v.Notice)
			assert.Equal(t, tt.canPropose, v.CanPropose)
			assert.Equal(t, tt.pending, v.Pending)
			assert.Equal(t, tt.acks, v.Acks)
			assert.Equal(t, tt.rejectedBy, v.RejectedBy)
		})
	}
}

func TestDerive_PlayerLines(t *testing.T) {
	s := &State{
		RoomID:       "r1",
		Players:      []string{"A", "B"},
		ReadyPlayers: []string{"B"},
		Owner:        "A",
		Status:       StatusWaiting,
		MaxPlayers:   2,
	}
	v := Derive(s, Flags{PlayerReady: true, GameStarted: true}, "B")

	assert.Equal(t, []PlayerLine{{Name: "A"}, {Name: "B", Ready: true, You: true}}, v.Players)
	assert.False(t, v.IsOwner)
	assert.True(t, v.PlayerReady)
	assert.True(t, v.InputLocked)
	assert.Equal(t, 2, v.MaxPlayers)
}

func TestDerive_DoesNotMutateState(t *testing.T) {
	s := &State{
		RoomID:  "r1",
		Players: []string{"A", "B"},
		Owner:   "A",
		Status:  StatusWaiting,
		Start:   Start{State: StartProposed, Responses: map[string]bool{"B": true}},
	}
	before := s.Clone()
	Derive(s, Flags{}, "A")
	Derive(s, Flags{}, "B")
	assert.Equal(t, before, s)
}
