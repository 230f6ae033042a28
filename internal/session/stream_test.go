package session

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lobbyclient/internal/lobbytest"
	"lobbyclient/internal/network"
	"lobbyclient/internal/room"
)

func subscribedLobby(t *testing.T, initial *room.State) *lobbytest.Server {
	return lobbytest.Start(t, func(req lobbytest.Request) any {
		if req.Kind == network.KindSubscribeRoom {
			return lobbytest.Subscribed(initial)
		}
		return lobbytest.OK()
	})
}

func TestSubscribe_InitialSnapshotThenPushes(t *testing.T) {
	srv := subscribedLobby(t, roomState(room.StartIdle, "A", "B"))

	stream, initial, err := Subscribe(context.Background(), srv.Dialer(), "tok", "r1", nil)
	require.NoError(t, err)
	defer stream.Close()

	req := srv.RequireRequest(network.KindSubscribeRoom)
	assert.Equal(t, "tok", req.Token)
	assert.Equal(t, "r1", req.RoomID)
	assert.Equal(t, []string{"A", "B"}, initial.Players)

	srv.WaitSubscribers("r1", 1)
	srv.Push("r1", roomState(room.StartProposed, "A", "B"))

	next, err := stream.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, room.StartProposed, next.Start.State)

	srv.CloseRoom("r1")
	_, err = stream.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestSubscribe_OverWebSocket(t *testing.T) {
	srv := lobbytest.StartWebSocket(t, func(req lobbytest.Request) any {
		return lobbytest.Subscribed(roomState(room.StartIdle, "A", "B"))
	})

	stream, _, err := Subscribe(context.Background(), srv.Dialer(), "tok", "r1", nil)
	require.NoError(t, err)
	defer stream.Close()

	srv.WaitSubscribers("r1", 1)
	srv.Push("r1", roomState(room.StartAgreed, "A", "B"))
	next, err := stream.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, room.StartAgreed, next.Start.State)

	srv.CloseRoom("r1")
	_, err = stream.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestSubscribe_Failures(t *testing.T) {
	tests := []struct {
		name  string
		reply any
		want  error
	}{
		{"rejected", lobbytest.Fail("room not found"), network.ErrSubscriptionRejected},
		{"not logged in", lobbytest.NotLoggedIn(), network.ErrAuthExpired},
		{"error literal only", lobbytest.Reply{"ok": true, "error": network.ErrorNotLoggedIn}, network.ErrAuthExpired},
		{"ok without room", lobbytest.OK(), network.ErrProtocol},
		{"invalid room", lobbytest.Subscribed(map[string]any{"players": []string{"A"}, "ready_players": []string{"Z"}, "status": "waiting"}), network.ErrProtocol},
		{"push instead of reply", lobbytest.Reply{"event": "room_update", "room": roomState(room.StartIdle, "A")}, network.ErrProtocol},
		{"hang up", nil, network.ErrTransport},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := lobbytest.Start(t, func(lobbytest.Request) any { return tt.reply })

			stream, initial, err := Subscribe(context.Background(), srv.Dialer(), "tok", "r1", nil)
			require.Error(t, err)
			assert.Nil(t, stream)
			assert.Nil(t, initial)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestSubscribe_RejectionKeepsLobbyMessage(t *testing.T) {
	srv := lobbytest.Start(t, func(lobbytest.Request) any { return lobbytest.Fail("room not found") })

	_, _, err := Subscribe(context.Background(), srv.Dialer(), "tok", "r1", nil)
	var nerr *network.Error
	require.True(t, errors.As(err, &nerr))
	assert.Equal(t, "room not found", nerr.Message)
}

func TestStream_Violations(t *testing.T) {
	tests := []struct {
		name string
		msg  any
		want error
	}{
		{"auth expired push", lobbytest.NotLoggedIn(), network.ErrAuthExpired},
		{"unknown event", lobbytest.Reply{"event": "chat", "text": "hi"}, network.ErrProtocol},
		{"plain reply", lobbytest.OK(), network.ErrProtocol},
		{"not an object", lobbytest.Raw(`[1,2,3]`), network.ErrProtocol},
		{"ready outside players", lobbytest.Reply{"event": "room_update", "room": map[string]any{
			"room_id": "r1", "players": []string{"A"}, "ready_players": []string{"B"}, "status": "waiting",
		}}, network.ErrProtocol},
		{"other room", lobbytest.Reply{"event": "room_update", "room": map[string]any{
			"room_id": "r2", "players": []string{"A"}, "status": "waiting",
		}}, network.ErrProtocol},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := subscribedLobby(t, roomState(room.StartIdle, "A", "B"))
			stream, _, err := Subscribe(context.Background(), srv.Dialer(), "tok", "r1", nil)
			require.NoError(t, err)
			defer stream.Close()

			srv.WaitSubscribers("r1", 1)
			srv.Send("r1", tt.msg)

			_, err = stream.Next(context.Background())
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestStream_NextReturnsOnCancel(t *testing.T) {
	srv := subscribedLobby(t, roomState(room.StartIdle, "A", "B"))
	stream, _, err := Subscribe(context.Background(), srv.Dialer(), "tok", "r1", nil)
	require.NoError(t, err)
	defer stream.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := stream.Next(ctx)
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(waitTimeout):
		t.Fatal("Next did not return after cancel")
	}
	srv.WaitSubscribers("r1", 0)
}
