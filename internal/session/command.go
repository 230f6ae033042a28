package session

import (
	"strings"

	"lobbyclient/internal/network"
)

// Command is one room action typed by the player.
type Command int

const (
	CommandUnknown Command = iota
	CommandReady
	CommandUnready
	CommandPropose
	CommandAccept
	CommandReject
	CommandLeave
)

func (c Command) String() string {
	switch c {
	case CommandReady:
		return "ready"
	case CommandUnready:
		return "unready"
	case CommandPropose:
		return "propose"
	case CommandAccept:
		return "accept"
	case CommandReject:
		return "reject"
	case CommandLeave:
		return "leave"
	default:
		return "unknown"
	}
}

// ParseCommand maps an input line to a command. "r" toggles readiness, so
// the result depends on the current ready flag.
func ParseCommand(line string, playerReady bool) Command {
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "r":
		if playerReady {
			return CommandUnready
		}
		return CommandReady
	case "s":
		return CommandPropose
	case "y":
		return CommandAccept
	case "n":
		return CommandReject
	case "q":
		return CommandLeave
	default:
		return CommandUnknown
	}
}

// request builds the single lobby request a command maps to.
func (c Command) request(token, roomID string) (network.Request, bool) {
	req := network.Request{Token: token, RoomID: roomID}
	switch c {
	case CommandReady:
		req.Kind = network.KindPlayerReady
	case CommandUnready:
		req.Kind = network.KindPlayerUnready
	case CommandPropose:
		req.Kind = network.KindProposeStart
	case CommandAccept, CommandReject:
		accept := c == CommandAccept
		req.Kind = network.KindRespondStart
		req.Accept = &accept
	case CommandLeave:
		req.Kind = network.KindLeaveRoom
	default:
		return network.Request{}, false
	}
	return req, true
}
