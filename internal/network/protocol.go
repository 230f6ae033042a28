package network

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// MaxMessageSize bounds a single newline-delimited message.
const MaxMessageSize = 1024 * 1024

// Request kinds understood by the lobby server.
const (
	KindRegister      = "register"
	KindLogin         = "login"
	KindLogout        = "logout"
	KindListRooms     = "list_rooms"
	KindCreateRoom    = "create_room"
	KindJoinRoom      = "join_room"
	KindSubscribeRoom = "subscribe_room"
	KindPlayerReady   = "player_ready"
	KindPlayerUnready = "player_unready"
	KindProposeStart  = "propose_start"
	KindRespondStart  = "respond_start"
	KindLeaveRoom     = "leave_room"
)

// EventRoomUpdate is the only push event on a room subscription.
const EventRoomUpdate = "room_update"

// Reserved markers the lobby uses to say the token is no longer valid.
// Either one is enough.
const (
	CodeNotLoggedIn  = "NOT_LOGGED_IN"
	ErrorNotLoggedIn = "未登入"
)

// Request is the envelope of every client -> lobby message.
type Request struct {
	Kind   string
	Token  string
	RoomID string
	// Accept is only sent with respond_start.
	Accept *bool
	// Fields carries the remaining kind specific values (username, game, ...).
	Fields map[string]any
}

func (r Request) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, len(r.Fields)+4)
	for k, v := range r.Fields {
		m[k] = v
	}
	m["kind"] = r.Kind
	if r.Token != "" {
		m["token"] = r.Token
	}
	if r.RoomID != "" {
		m["room_id"] = r.RoomID
	}
	if r.Accept != nil {
		m["accept"] = *r.Accept
	}
	return json.Marshal(m)
}

// Response is any lobby -> client message: a reply ({ok, error, code, ...})
// or a push ({event, room}). Fields not listed here stay available through
// Decode.
type Response struct {
	OK    bool            `json:"ok"`
	Error string          `json:"error,omitempty"`
	Code  string          `json:"code,omitempty"`
	Event string          `json:"event,omitempty"`
	Room  json.RawMessage `json:"room,omitempty"`

	raw json.RawMessage
}

// DecodeResponse parses one message. Anything that is not a JSON object
// with the expected field types is a protocol violation.
func DecodeResponse(data []byte) (Response, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return Response{}, protocolError("decode", "message is not a JSON object", nil)
	}
	var resp Response
	if err := json.Unmarshal(trimmed, &resp); err != nil {
		return Response{}, protocolError("decode", "", err)
	}
	resp.raw = append(json.RawMessage(nil), trimmed...)
	return resp, nil
}

// Decode unmarshals the full message into v.
func (r Response) Decode(v any) error {
	if len(r.raw) == 0 {
		return fmt.Errorf("empty response")
	}
	if err := json.Unmarshal(r.raw, v); err != nil {
		return protocolError("decode", "", err)
	}
	return nil
}

// IsAuthExpired is the structural not-logged-in check. It looks at the code
// and error fields only, never at kind or event.
func IsAuthExpired(resp Response) bool {
	return resp.Code == CodeNotLoggedIn || resp.Error == ErrorNotLoggedIn
}

// Classify is the one place that decides what a lobby message means for
// the caller. Replies and pushes both go through it.
func Classify(resp Response) Kind {
	switch {
	case IsAuthExpired(resp):
		return KindAuthExpired
	case resp.Event != "":
		// pushes carry no ok flag
		return KindNone
	case !resp.OK:
		return KindCommandRejected
	}
	return KindNone
}

// ClassifiedError turns a classified reply into the error the caller
// returns, or nil when the reply is a success.
func ClassifiedError(op string, resp Response) error {
	switch Classify(resp) {
	case KindAuthExpired:
		return &Error{Kind: KindAuthExpired, Op: op}
	case KindCommandRejected:
		msg := resp.Error
		if msg == "" {
			msg = "request refused"
		}
		return &Error{Kind: KindCommandRejected, Op: op, Message: msg}
	}
	return nil
}
