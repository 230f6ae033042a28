package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"lobbyclient/internal/config"
	"lobbyclient/internal/console"
	"lobbyclient/internal/launcher"
	"lobbyclient/internal/lobby"
	"lobbyclient/internal/network"
	"lobbyclient/internal/notify"
	"lobbyclient/internal/room"
	"lobbyclient/internal/session"
)

type app struct {
	cfg       *config.Config
	log       *zap.Logger
	lobbyAddr string
	requester *network.Requester
	lobby     *lobby.Client
	launcher  *launcher.Launcher
	screen    *console.Screen
	input     *console.Input
	events    notify.Publisher

	token  string
	player string
}

// run is the login menu. It returns when the player quits, the input ends
// or ctx is cancelled.
func (a *app) run(ctx context.Context) error {
	for {
		a.screen.Clear()
		a.screen.Title("Game Lobby")
		a.screen.Printf("(lobby %s)\n\n1) register\n2) log in\n3) exit\n", a.lobbyAddr)

		choice, err := a.input.Prompt(ctx, os.Stdout, "> ")
		if err != nil {
			return quietEOF(err)
		}

		switch choice {
		case "1":
			err = a.register(ctx)
		case "2":
			err = a.login(ctx)
			if err == nil {
				err = a.lobbyMenu(ctx)
			}
		case "3":
			return nil
		default:
			continue
		}

		switch {
		case errors.Is(err, errQuit):
			return nil
		case ctx.Err() != nil, errors.Is(err, io.EOF):
			return quietEOF(err)
		case errors.Is(err, network.ErrAuthExpired):
			a.token, a.player = "", ""
			a.screen.Warn("\nYour login expired or you were logged out, please log in again.")
			a.pause(ctx)
		case err != nil:
			a.screen.Error("%s", console.Describe(err))
			a.pause(ctx)
		}
	}
}

func (a *app) credentials(ctx context.Context) (string, string, error) {
	user, err := a.input.Prompt(ctx, os.Stdout, "username: ")
	if err != nil {
		return "", "", err
	}
	pass, err := a.input.Prompt(ctx, os.Stdout, "password: ")
	return user, pass, err
}

func (a *app) register(ctx context.Context) error {
	user, pass, err := a.credentials(ctx)
	if err != nil {
		return err
	}
	if err := a.lobby.Register(ctx, user, pass); err != nil {
		return err
	}
	a.screen.OK("Registered %s, you can log in now.", user)
	a.pause(ctx)
	return nil
}

func (a *app) login(ctx context.Context) error {
	user, pass, err := a.credentials(ctx)
	if err != nil {
		return err
	}
	token, err := a.lobby.Login(ctx, user, pass)
	if err != nil {
		return err
	}
	a.token, a.player = token, user
	return nil
}

// lobbyMenu runs until the player logs out. Auth expiry is returned so the
// caller goes back to the login menu.
func (a *app) lobbyMenu(ctx context.Context) error {
	for {
		a.screen.Clear()
		a.screen.Title("Lobby")
		a.screen.Printf("(lobby %s, logged in as %s)\n\n", a.lobbyAddr, a.player)
		a.screen.Printf("1) create a room\n2) list rooms\n3) join a room\n4) log out\n5) exit\n")

		choice, err := a.input.Prompt(ctx, os.Stdout, "> ")
		if err != nil {
			return err
		}

		switch choice {
		case "1":
			err = a.createRoom(ctx)
		case "2":
			err = a.listRooms(ctx)
		case "3":
			err = a.joinRoom(ctx)
		case "4":
			a.logout(ctx)
			a.screen.Printf("Logged out.\n")
			return nil
		case "5":
			a.logout(ctx)
			a.screen.Printf("Bye.\n")
			return errQuit
		default:
			continue
		}

		switch {
		case err == nil:
		case ctx.Err() != nil, errors.Is(err, io.EOF), errors.Is(err, network.ErrAuthExpired):
			return err
		default:
			a.screen.Error("%s", console.Describe(err))
			a.pause(ctx)
		}
	}
}

func (a *app) createRoom(ctx context.Context) error {
	game, err := a.input.Prompt(ctx, os.Stdout, "game: ")
	if err != nil || game == "" {
		return err
	}
	version, err := a.input.Prompt(ctx, os.Stdout, "version: ")
	if err != nil || version == "" {
		return err
	}
	if !a.launcher.Installed(a.player, game, version) {
		a.screen.Error("%s@%s is not downloaded yet. Download it before creating a room.", game, version)
		a.pause(ctx)
		return nil
	}

	info, err := a.lobby.CreateRoom(ctx, a.token, game, version)
	if err != nil {
		return err
	}
	a.screen.OK("Room created: %s", info.RoomID)
	return a.enterRoom(ctx, info)
}

func (a *app) listRooms(ctx context.Context) error {
	rooms, err := a.lobby.ListRooms(ctx, a.token)
	if err != nil {
		return err
	}
	a.screen.Rooms(rooms)
	a.pause(ctx)
	return nil
}

func (a *app) joinRoom(ctx context.Context) error {
	rooms, err := a.lobby.ListRooms(ctx, a.token)
	if err != nil {
		return err
	}
	a.screen.Rooms(rooms)
	if len(rooms) == 0 {
		a.pause(ctx)
		return nil
	}

	id, err := a.input.Prompt(ctx, os.Stdout, "\nroom id (Enter to go back): ")
	if err != nil || id == "" {
		return err
	}
	var target *lobby.RoomSummary
	for i := range rooms {
		if rooms[i].RoomID == id {
			target = &rooms[i]
		}
	}
	if target == nil {
		a.screen.Error("No such room.")
		a.pause(ctx)
		return nil
	}
	if !a.launcher.Installed(a.player, target.Game, target.Version) {
		a.screen.Error("%s@%s is not downloaded yet. Download it before joining.", target.Game, target.Version)
		a.pause(ctx)
		return nil
	}

	info, err := a.lobby.JoinRoom(ctx, a.token, id)
	if err != nil {
		return err
	}
	a.screen.OK("Joined room %s", id)
	return a.enterRoom(ctx, info)
}

// enterRoom runs one room session and maps its end to the menu flow.
func (a *app) enterRoom(ctx context.Context, info lobby.JoinInfo) error {
	a.screen.SetHeader(console.Header{
		RoomID:  info.RoomID,
		Lobby:   a.lobbyAddr,
		Game:    info.Game,
		Version: info.Version,
		Server:  info.Address(),
	})

	s := session.New(session.Config{
		Player:      a.player,
		Token:       a.token,
		RoomID:      info.RoomID,
		Requester:   a.requester,
		Input:       a.input,
		UI:          a.screen,
		Trigger:     a.trigger(info),
		Events:      a.events,
		SettleDelay: a.cfg.SettleDelay,
		Logger:      a.log,
	})
	res := s.Run(ctx)
	a.screen.Ended(res)

	switch res.Reason {
	case session.ReasonAuthExpired:
		return res.Err
	case session.ReasonCancelled:
		return ctx.Err()
	}
	a.pause(ctx)
	return nil
}

func (a *app) trigger(info lobby.JoinInfo) session.StartTrigger {
	return session.TriggerFunc(func(ctx context.Context, s *room.State) error {
		_, err := a.launcher.Launch(ctx, launcher.Request{
			Player:  a.player,
			Game:    info.Game,
			Version: info.Version,
			RoomID:  s.RoomID,
			Host:    info.Host,
			Port:    info.Port,
		})
		return err
	})
}

func (a *app) logout(ctx context.Context) {
	if err := a.lobby.Logout(ctx, a.token); err != nil {
		a.log.Debug("[Main] logout failed", zap.Error(err))
	}
	a.token, a.player = "", ""
}

// logoutOnExit releases the token after an interrupt. The run context is
// already cancelled, so it gets its own short deadline.
func (a *app) logoutOnExit() {
	if a.token == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.LogoutTimeout)
	defer cancel()
	if err := a.lobby.Logout(ctx, a.token); err == nil {
		fmt.Println("\n[lobbyclient] token released")
	}
}

func (a *app) pause(ctx context.Context) {
	_, _ = a.input.Prompt(ctx, os.Stdout, "\n(press Enter to continue) ")
}

func quietEOF(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
