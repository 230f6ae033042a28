package console

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lobbyclient/internal/launcher"
	"lobbyclient/internal/lobby"
	"lobbyclient/internal/network"
	"lobbyclient/internal/room"
	"lobbyclient/internal/session"
)

func TestInput_ReadsLinesThenEOF(t *testing.T) {
	in := NewInput(strings.NewReader("r\nq\n"))

	line, err := in.ReadLine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "r", line)

	line, err = in.Prompt(context.Background(), io.Discard, "> ")
	require.NoError(t, err)
	assert.Equal(t, "q", line)

	_, err = in.ReadLine(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestInput_ReadLineReturnsOnCancel(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()
	in := NewInput(pr)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := in.ReadLine(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// the abandoned read does not lose the next line
	go fmt.Fprintln(pw, "y")
	line, err := in.ReadLine(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "y", line)
}

func TestScreen_RenderRoom(t *testing.T) {
	var out bytes.Buffer
	s := NewScreen(&out)
	s.SetHeader(Header{RoomID: "r1", Lobby: "127.0.0.1:5502", Game: "tetris", Version: "1.0", Server: "10.0.0.5:9100"})

	state := &room.State{
		RoomID:       "r1",
		Players:      []string{"A", "B", "C"},
		ReadyPlayers: []string{"B"},
		Owner:        "A",
		Status:       room.StatusWaiting,
		MaxPlayers:   4,
		Start:        room.Start{State: room.StartProposed, Responses: map[string]bool{"B": true}},
	}
	s.Render(room.Derive(state, room.Flags{}, "A"))

	text := out.String()
	assert.Contains(t, text, "Room r1")
	assert.Contains(t, text, "lobby 127.0.0.1:5502")
	assert.Contains(t, text, "Game: tetris@1.0")
	assert.Contains(t, text, "Server: 10.0.0.5:9100")
	assert.Contains(t, text, "Players: 3/4")
	assert.Contains(t, text, "✓ B")
	assert.Contains(t, text, "✗ A (you)")
	assert.Contains(t, text, "B: agreed")
	assert.Contains(t, text, "C: no answer yet")
	assert.Contains(t, text, "r) mark ready")
}

func TestScreen_RenderNotices(t *testing.T) {
	tests := []struct {
		name string
		view room.View
		want string
	}{
		{"awaiting", room.View{Notice: room.NoticeAwaitingState}, "waiting for room data"},
		{"closed", room.View{Notice: room.NoticeRoomClosed}, "room is closed"},
		{"guest prompt", room.View{Notice: room.NoticeRespondToProposal}, "[y] to agree"},
		{"waiting others", room.View{Notice: room.NoticeWaitingForOthers, Pending: []string{"C", "D"}}, "waiting for: C, D"},
		{"rejected by other", room.View{Notice: room.NoticeRejectedByOther, RejectedBy: "C", CanPropose: true}, "press [s]"},
		{"rejected by you", room.View{Notice: room.NoticeRejectedByYou}, "You refused"},
		{"running", room.View{Notice: room.NoticeGameRunning, PlayerReady: true}, "r) cancel ready"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			NewScreen(&out).Render(tt.view)
			assert.Contains(t, out.String(), tt.want)
		})
	}
}

func TestScreen_Report(t *testing.T) {
	var out bytes.Buffer
	s := NewScreen(&out)

	s.Report(session.Event{Kind: session.EventCommandFailed, Command: session.CommandPropose,
		Err: &network.Error{Kind: network.KindCommandRejected, Message: "not everyone is ready"}})
	s.Report(session.Event{Kind: session.EventLaunchFailed, Err: fmt.Errorf("x: %w", launcher.ErrArtifactMissing)})
	s.Report(session.Event{Kind: session.EventInputIgnored})

	text := out.String()
	assert.Contains(t, text, "propose failed: not everyone is ready")
	assert.Contains(t, text, "Download the latest version")
	assert.Contains(t, text, "commands here are paused")
}

func TestDescribe(t *testing.T) {
	assert.Equal(t, "cannot reach the lobby server", Describe(&network.Error{Kind: network.KindTransport}))
	assert.Equal(t, "room not found", Describe(&network.Error{Kind: network.KindSubscriptionRejected, Message: "room not found"}))
	assert.Equal(t, "boom", Describe(errors.New("boom")))
	assert.Empty(t, Describe(nil))
}

func TestScreen_Rooms(t *testing.T) {
	var out bytes.Buffer
	NewScreen(&out).Rooms([]lobby.RoomSummary{{
		RoomID: "tetris-1", Game: "tetris", Version: "1.0", Host: "h", Port: 9000,
		Players: []string{"A", "B"}, Status: "waiting", MaxPlayers: 2,
	}})
	text := out.String()
	assert.Contains(t, text, "tetris-1")
	assert.Contains(t, text, "tetris@1.0")
	assert.Contains(t, text, "players: 2/2")
	assert.Contains(t, text, "ready:   none")

	out.Reset()
	NewScreen(&out).Rooms(nil)
	assert.Contains(t, out.String(), "no rooms yet")
}
