package session

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"lobbyclient/internal/network"
	"lobbyclient/internal/room"
)

var (
	// ErrInputIgnored is returned for input typed while a launched game
	// owns the interaction.
	ErrInputIgnored = errors.New("game in progress, input ignored")
	// ErrUnknownCommand is returned for input that maps to no command.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrSessionOver is returned once the room has closed.
	ErrSessionOver = errors.New("session is over")
)

// Caller is the request channel the dispatcher sends through.
type Caller interface {
	Call(ctx context.Context, req network.Request) (network.Response, error)
}

// Dispatcher turns player input into lobby requests, one request per
// command, and records successful ready changes in the machine.
type Dispatcher struct {
	caller  Caller
	machine *room.Machine
	token   string
	roomID  string
	log     *zap.Logger
}

func NewDispatcher(caller Caller, machine *room.Machine, token, roomID string, log *zap.Logger) *Dispatcher {
	if log == nil {
		log = zap.NewNop()
	}
	return &Dispatcher{
		caller:  caller,
		machine: machine,
		token:   token,
		roomID:  roomID,
		log:     log.Named("dispatch"),
	}
}

// HandleLine parses and dispatches one input line. Empty lines are
// ignored silently. done reports that the session must end (leave).
func (d *Dispatcher) HandleLine(ctx context.Context, line string) (cmd Command, done bool, err error) {
	line = strings.TrimSpace(line)
	if line == "" {
		return CommandUnknown, false, nil
	}
	flags := d.machine.Flags()
	if flags.GameStarted {
		return CommandUnknown, false, ErrInputIgnored
	}
	cmd = ParseCommand(line, flags.PlayerReady)
	if cmd == CommandUnknown {
		return cmd, false, ErrUnknownCommand
	}
	done, err = d.Dispatch(ctx, cmd)
	return cmd, done, err
}

// Dispatch sends cmd. Leave always ends the session whatever the lobby
// answers; the returned error still reports an expired token.
func (d *Dispatcher) Dispatch(ctx context.Context, cmd Command) (done bool, err error) {
	if d.machine.Closed() {
		return true, ErrSessionOver
	}
	req, ok := cmd.request(d.token, d.roomID)
	if !ok {
		return false, ErrUnknownCommand
	}

	_, err = d.caller.Call(ctx, req)
	log := d.log.With(zap.String("kind", req.Kind))

	if cmd == CommandLeave {
		if err != nil && !errors.Is(err, network.ErrAuthExpired) {
			log.Debug("[Dispatch] leave not acknowledged", zap.Error(err))
			err = nil
		}
		return true, err
	}
	if err != nil {
		log.Debug("[Dispatch] command failed", zap.Error(err))
		return false, err
	}

	switch cmd {
	case CommandReady:
		d.machine.SetPlayerReady(true)
	case CommandUnready:
		d.machine.SetPlayerReady(false)
	}
	log.Debug("[Dispatch] command accepted")
	return false, nil
}
