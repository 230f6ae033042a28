package network

import (
	"errors"
	"strings"
)

// Kind tags every failure the room session can run into. The session
// supervisor decides where to unwind to by looking only at the kind.
type Kind uint8

const (
	KindNone Kind = iota
	// KindTransport is a connect, read or write failure.
	KindTransport
	// KindProtocol is a malformed or unexpected message.
	KindProtocol
	// KindSubscriptionRejected is an explicit ok:false on subscribe_room.
	KindSubscriptionRejected
	// KindCommandRejected is an explicit ok:false on any other request.
	KindCommandRejected
	// KindAuthExpired means the token is no longer valid. Always unwinds to login.
	KindAuthExpired
	// KindRoomClosed means the local player is no longer listed in the room.
	KindRoomClosed
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindTransport:
		return "transport failure"
	case KindProtocol:
		return "protocol violation"
	case KindSubscriptionRejected:
		return "subscription rejected"
	case KindCommandRejected:
		return "command rejected"
	case KindAuthExpired:
		return "not logged in"
	case KindRoomClosed:
		return "room closed"
	default:
		return "unknown"
	}
}

// Error is the error type returned by this package and by the session layer.
type Error struct {
	Kind Kind
	// Op names the operation that failed ("dial", "player_ready", "subscribe_room").
	Op string
	// Message is the server supplied error text, when there is one.
	Message string
	Err     error
}

func (e *Error) Error() string {
	var sb strings.Builder
	if e.Op != "" {
		sb.WriteString(e.Op)
		sb.WriteString(": ")
	}
	sb.WriteString(e.Kind.String())
	if e.Message != "" {
		sb.WriteString(": ")
		sb.WriteString(e.Message)
	}
	if e.Err != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Err.Error())
	}
	return sb.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the bare kind sentinels below, so callers can write
// errors.Is(err, network.ErrAuthExpired) for any wrapped *Error of that kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Message == "" && t.Err == nil && t.Kind == e.Kind
}

var (
	ErrTransport            = &Error{Kind: KindTransport}
	ErrProtocol             = &Error{Kind: KindProtocol}
	ErrSubscriptionRejected = &Error{Kind: KindSubscriptionRejected}
	ErrCommandRejected      = &Error{Kind: KindCommandRejected}
	ErrAuthExpired          = &Error{Kind: KindAuthExpired}
	ErrRoomClosed           = &Error{Kind: KindRoomClosed}
)

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindNone
}

func transportError(op string, err error) *Error {
	return &Error{Kind: KindTransport, Op: op, Err: err}
}

func protocolError(op, message string, err error) *Error {
	return &Error{Kind: KindProtocol, Op: op, Message: message, Err: err}
}
