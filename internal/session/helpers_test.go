package session

import (
	"context"
	"io"
	"testing"
	"time"

	"lobbyclient/internal/room"
)

const waitTimeout = 3 * time.Second

func roomState(start room.StartPhase, players ...string) *room.State {
	return &room.State{
		RoomID:       "r1",
		Players:      players,
		ReadyPlayers: []string{},
		Owner:        players[0],
		Status:       room.StatusWaiting,
		MaxPlayers:   4,
		Start:        room.Start{State: start},
	}
}

// scriptedInput feeds lines to the session; closing lines means EOF.
type scriptedInput struct {
	lines chan string
}

func newInput() *scriptedInput { return &scriptedInput{lines: make(chan string, 16)} }

func (in *scriptedInput) ReadLine(ctx context.Context) (string, error) {
	select {
	case line, ok := <-in.lines:
		if !ok {
			return "", io.EOF
		}
		return line, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

type recordingUI struct {
	views  chan room.View
	events chan Event
}

func newUI() *recordingUI {
	return &recordingUI{views: make(chan room.View, 256), events: make(chan Event, 256)}
}

func (u *recordingUI) Render(v room.View) {
	select {
	case u.views <- v:
	default:
	}
}

func (u *recordingUI) Report(ev Event) {
	select {
	case u.events <- ev:
	default:
	}
}

func (u *recordingUI) requireEvent(t *testing.T, kind EventKind) Event {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case ev := <-u.events:
			if ev.Kind == kind {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for event %d", kind)
			return Event{}
		}
	}
}

func (u *recordingUI) requireView(t *testing.T, match func(room.View) bool) room.View {
	t.Helper()
	deadline := time.After(waitTimeout)
	for {
		select {
		case v := <-u.views:
			if match(v) {
				return v
			}
		case <-deadline:
			t.Fatal("timed out waiting for a matching view")
			return room.View{}
		}
	}
}

func requireResult(t *testing.T, results <-chan Result) Result {
	t.Helper()
	select {
	case r := <-results:
		return r
	case <-time.After(waitTimeout):
		t.Fatal("session did not end")
		return Result{}
	}
}
