// Package lobby wraps the one-shot lobby calls made outside a room:
// accounts, the room list and joining or creating a room.
package lobby

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"lobbyclient/internal/network"
)

// Caller is the request channel.
type Caller interface {
	Call(ctx context.Context, req network.Request) (network.Response, error)
}

// JoinInfo is what the lobby returns when a room is created or joined:
// where the room's game server runs and which game version it plays.
type JoinInfo struct {
	RoomID  string `json:"room_id"`
	Game    string `json:"game"`
	Version string `json:"version"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
}

// Address is the game server host:port.
func (j JoinInfo) Address() string { return fmt.Sprintf("%s:%d", j.Host, j.Port) }

// RoomSummary is one entry of the room list.
type RoomSummary struct {
	RoomID       string   `json:"-"`
	Game         string   `json:"game"`
	Version      string   `json:"version"`
	Host         string   `json:"host"`
	Port         int      `json:"port"`
	Owner        string   `json:"owner"`
	Players      []string `json:"players"`
	ReadyPlayers []string `json:"ready_players"`
	Status       string   `json:"status"`
	MaxPlayers   int      `json:"max_players"`
}

type Client struct {
	caller Caller
	log    *zap.Logger
}

func New(caller Caller, log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{caller: caller, log: log.Named("lobby")}
}

func (c *Client) Register(ctx context.Context, username, password string) error {
	_, err := c.caller.Call(ctx, network.Request{
		Kind:   network.KindRegister,
		Fields: map[string]any{"username": username, "password": password},
	})
	return err
}

// Login returns the session token for username.
func (c *Client) Login(ctx context.Context, username, password string) (string, error) {
	resp, err := c.caller.Call(ctx, network.Request{
		Kind:   network.KindLogin,
		Fields: map[string]any{"username": username, "password": password},
	})
	if err != nil {
		return "", err
	}
	var body struct {
		Token string `json:"token"`
	}
	if err := resp.Decode(&body); err != nil {
		return "", err
	}
	if body.Token == "" {
		return "", &network.Error{Kind: network.KindProtocol, Op: network.KindLogin, Message: "login reply without token"}
	}
	c.log.Info("[Lobby] logged in", zap.String("player", username))
	return body.Token, nil
}

// Logout releases token. An already expired token counts as logged out.
func (c *Client) Logout(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	_, err := c.caller.Call(ctx, network.Request{Kind: network.KindLogout, Token: token})
	if network.KindOf(err) == network.KindAuthExpired {
		return nil
	}
	return err
}

// ListRooms returns every open room, sorted by id.
func (c *Client) ListRooms(ctx context.Context, token string) ([]RoomSummary, error) {
	resp, err := c.caller.Call(ctx, network.Request{Kind: network.KindListRooms, Token: token})
	if err != nil {
		return nil, err
	}
	var body struct {
		Rooms map[string]RoomSummary `json:"rooms"`
	}
	if err := resp.Decode(&body); err != nil {
		return nil, err
	}
	rooms := make([]RoomSummary, 0, len(body.Rooms))
	for id, r := range body.Rooms {
		r.RoomID = id
		rooms = append(rooms, r)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].RoomID < rooms[j].RoomID })
	return rooms, nil
}

// CreateRoom opens a new room for game@version owned by the caller.
func (c *Client) CreateRoom(ctx context.Context, token, game, version string) (JoinInfo, error) {
	return c.join(ctx, network.Request{
		Kind:   network.KindCreateRoom,
		Token:  token,
		Fields: map[string]any{"game": game, "version": version},
	})
}

func (c *Client) JoinRoom(ctx context.Context, token, roomID string) (JoinInfo, error) {
	info, err := c.join(ctx, network.Request{Kind: network.KindJoinRoom, Token: token, RoomID: roomID})
	if err == nil && info.RoomID == "" {
		info.RoomID = roomID
	}
	return info, err
}

func (c *Client) join(ctx context.Context, req network.Request) (JoinInfo, error) {
	resp, err := c.caller.Call(ctx, req)
	if err != nil {
		return JoinInfo{}, err
	}
	var info JoinInfo
	if err := resp.Decode(&info); err != nil {
		return JoinInfo{}, err
	}
	if info.RoomID == "" && req.Kind == network.KindCreateRoom {
		return JoinInfo{}, &network.Error{Kind: network.KindProtocol, Op: req.Kind, Message: "reply without room_id"}
	}
	c.log.Info("[Lobby] entered room",
		zap.String("kind", req.Kind),
		zap.String("room_id", info.RoomID),
		zap.String("game", info.Game),
		zap.String("version", info.Version))
	return info, nil
}
