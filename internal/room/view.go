package room

// Notice is the one situation line the room screen shows under the player
// list.
type Notice int

const (
	NoticeNone Notice = iota
	NoticeAwaitingState
	NoticeRoomClosed

	NoticeOwnerMayPropose
	NoticeWaitingForOwner

	NoticeOwnerAwaitingGuests
	NoticeRespondToProposal
	NoticeWaitingForOthers
	NoticeAllAgreed

	NoticeRejectedByYou
	NoticeRejectedByOther
	NoticeRejectedUnspecified

	NoticeGameStarting
	NoticeGameRunning
)

type PlayerLine struct {
	Name  string
	Ready bool
	You   bool
}

type GuestAck struct {
	Name     string
	Accepted bool
}

// View is everything the room screen needs, derived from a snapshot and
// the session flags.
type View struct {
	RoomID     string
	Status     Status
	Players    []PlayerLine
	MaxPlayers int
	IsOwner    bool

	Notice Notice
	// Acks is the owner's per-guest view of a pending proposal.
	Acks []GuestAck
	// Pending lists the guests who have not agreed yet (guest view).
	Pending    []string
	RejectedBy string
	// CanPropose is set when the owner may send a (new) proposal.
	CanPropose bool

	PlayerReady bool
	InputLocked bool
}

// Derive builds the view for self. It has no side effects and is safe to
// call on every update. s may be nil before the first snapshot.
func Derive(s *State, f Flags, self string) View {
	v := View{PlayerReady: f.PlayerReady, InputLocked: f.GameStarted}
	if s == nil {
		v.Notice = NoticeAwaitingState
		return v
	}

	v.RoomID = s.RoomID
	v.Status = s.Status
	v.MaxPlayers = s.MaxPlayers
	v.IsOwner = s.Owner == self

	if !s.HasPlayer(self) {
		v.Notice = NoticeRoomClosed
		return v
	}

	v.Players = make([]PlayerLine, 0, len(s.Players))
	for _, p := range s.Players {
		v.Players = append(v.Players, PlayerLine{Name: p, Ready: s.IsReady(p), You: p == self})
	}

	switch s.Status {
	case StatusWaiting, StatusReady:
		deriveNegotiation(&v, s, self)
	case StatusInGame:
		if s.Start.State == StartAgreed {
			if f.GameStarted {
				v.Notice = NoticeGameRunning
			} else {
				v.Notice = NoticeGameStarting
			}
		}
	}
	return v
}

func deriveNegotiation(v *View, s *State, self string) {
	responses := s.Start.Responses

	switch s.Phase() {
	case StartIdle:
		if v.IsOwner {
			v.Notice = NoticeOwnerMayPropose
			v.CanPropose = true
		} else {
			v.Notice = NoticeWaitingForOwner
		}

	case StartProposed:
		guests := s.Guests()
		if v.IsOwner {
			v.Notice = NoticeOwnerAwaitingGuests
			for _, g := range guests {
				v.Acks = append(v.Acks, GuestAck{Name: g, Accepted: responses[g]})
			}
			return
		}
		if _, responded := responses[self]; !responded {
			v.Notice = NoticeRespondToProposal
			return
		}
		for _, g := range guests {
			if g != self && !responses[g] {
				v.Pending = append(v.Pending, g)
			}
		}
		if len(v.Pending) > 0 {
			v.Notice = NoticeWaitingForOthers
		} else {
			v.Notice = NoticeAllAgreed
		}

	case StartRejected:
		v.RejectedBy = s.Start.RejectedBy
		v.CanPropose = v.IsOwner
		switch {
		case v.RejectedBy == "":
			v.Notice = NoticeRejectedUnspecified
		case v.RejectedBy == self:
			v.Notice = NoticeRejectedByYou
		default:
			v.Notice = NoticeRejectedByOther
		}

	case StartAgreed:
		// waiting for the lobby to flip the room to in_game
		v.Notice = NoticeAllAgreed
	}
}
