package session

import (
	"context"
	"errors"
	"io"

	"go.uber.org/zap"

	"lobbyclient/internal/network"
	"lobbyclient/internal/room"
)

// Stream is a live room subscription. It owns one connection for its whole
// lifetime and is never re-established.
type Stream struct {
	conn   network.Conn
	roomID string
	log    *zap.Logger
}

// Subscribe dials the lobby, sends subscribe_room and waits for the initial
// snapshot. ctx bounds the handshake only.
//
// A refused subscription is ErrSubscriptionRejected carrying the lobby's
// message; an expired token is ErrAuthExpired.
func Subscribe(ctx context.Context, dialer network.Dialer, token, roomID string, log *zap.Logger) (*Stream, *room.State, error) {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("stream").With(zap.String("room_id", roomID))

	conn, err := dialer.Dial(ctx)
	if err != nil {
		return nil, nil, err
	}

	stop := network.CloseOnCancel(ctx, conn)
	initial, err := handshake(conn, token, roomID)
	if !stop() {
		err = &network.Error{Kind: network.KindTransport, Op: network.KindSubscribeRoom, Err: ctx.Err()}
	}
	if err != nil {
		conn.Close()
		log.Debug("[Stream] subscription failed", zap.Error(err))
		return nil, nil, err
	}

	log.Info("[Stream] subscribed", zap.Int("players", len(initial.Players)))
	return &Stream{conn: conn, roomID: roomID, log: log}, initial, nil
}

func handshake(conn network.Conn, token, roomID string) (*room.State, error) {
	op := network.KindSubscribeRoom
	req := network.Request{Kind: op, Token: token, RoomID: roomID}
	if err := conn.WriteJSON(req); err != nil {
		return nil, err
	}

	data, err := conn.ReadMessage()
	if errors.Is(err, io.EOF) {
		return nil, &network.Error{Kind: network.KindTransport, Op: op, Err: io.ErrUnexpectedEOF}
	}
	if err != nil {
		return nil, err
	}

	resp, err := network.DecodeResponse(data)
	if err != nil {
		return nil, err
	}
	switch network.Classify(resp) {
	case network.KindAuthExpired:
		return nil, &network.Error{Kind: network.KindAuthExpired, Op: op}
	case network.KindCommandRejected:
		return nil, &network.Error{Kind: network.KindSubscriptionRejected, Op: op, Message: resp.Error}
	}
	if resp.Event != "" {
		return nil, &network.Error{Kind: network.KindProtocol, Op: op, Message: "push before the subscription reply"}
	}
	return room.Parse(resp.Room, roomID)
}

// Next blocks until the next room_update and returns its validated
// snapshot. It returns io.EOF when the lobby closes the stream, which means
// the room is gone. Cancelling ctx closes the stream.
func (s *Stream) Next(ctx context.Context) (*room.State, error) {
	stop := network.CloseOnCancel(ctx, s.conn)
	defer stop()

	data, err := s.conn.ReadMessage()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		if errors.Is(err, io.EOF) {
			s.log.Info("[Stream] closed by lobby")
			return nil, io.EOF
		}
		return nil, err
	}

	resp, err := network.DecodeResponse(data)
	if err != nil {
		return nil, err
	}
	if network.Classify(resp) == network.KindAuthExpired {
		return nil, &network.Error{Kind: network.KindAuthExpired, Op: "room stream"}
	}
	if resp.Event != network.EventRoomUpdate {
		return nil, &network.Error{Kind: network.KindProtocol, Op: "room stream", Message: "unexpected message on room stream"}
	}
	return room.Parse(resp.Room, s.roomID)
}

// Close releases the connection. It is safe to call more than once.
func (s *Stream) Close() error {
	return s.conn.Close()
}
