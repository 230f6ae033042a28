package network

import (
	"context"
	"errors"
	"io"
	"time"

	"go.uber.org/zap"
)

// Requester is the request channel: every call opens a fresh connection,
// writes one request, reads exactly one reply and closes. Nothing is pooled
// and nothing is retried.
type Requester struct {
	dialer  Dialer
	timeout time.Duration
	log     *zap.Logger
}

// NewRequester returns a Requester that bounds each round trip by timeout
// (no bound when timeout <= 0).
func NewRequester(dialer Dialer, timeout time.Duration, log *zap.Logger) *Requester {
	if log == nil {
		log = zap.NewNop()
	}
	return &Requester{dialer: dialer, timeout: timeout, log: log.Named("request")}
}

// Dialer returns the dialer used for every request. The event stream dials
// through the same one.
func (r *Requester) Dialer() Dialer { return r.dialer }

// Do performs one raw round trip. The reply is returned unclassified.
func (r *Requester) Do(ctx context.Context, req Request) (Response, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	conn, err := r.dialer.Dial(ctx)
	if err != nil {
		r.log.Debug("[Request] dial failed", zap.String("kind", req.Kind), zap.Error(err))
		return Response{}, err
	}
	defer conn.Close()
	stop := CloseOnCancel(ctx, conn)
	defer stop()

	if err := conn.WriteJSON(req); err != nil {
		return Response{}, r.interrupted(ctx, req.Kind, err)
	}

	data, err := conn.ReadMessage()
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = transportError("read", io.ErrUnexpectedEOF)
		}
		return Response{}, r.interrupted(ctx, req.Kind, err)
	}

	resp, err := DecodeResponse(data)
	if err != nil {
		return Response{}, err
	}
	r.log.Debug("[Request] reply received",
		zap.String("kind", req.Kind), zap.Bool("ok", resp.OK), zap.String("error", resp.Error))
	return resp, nil
}

// Call performs a round trip and classifies the reply: an expired token
// becomes ErrAuthExpired, ok:false becomes ErrCommandRejected carrying the
// server's message.
func (r *Requester) Call(ctx context.Context, req Request) (Response, error) {
	resp, err := r.Do(ctx, req)
	if err != nil {
		return Response{}, err
	}
	if err := ClassifiedError(req.Kind, resp); err != nil {
		return resp, err
	}
	return resp, nil
}

// interrupted reports a failed read/write. When the context ended first the
// context error is kept in the chain so callers can tell cancellation apart.
func (r *Requester) interrupted(ctx context.Context, kind string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &Error{Kind: KindTransport, Op: kind, Err: ctxErr}
	}
	var e *Error
	if errors.As(err, &e) && e.Op != "" {
		return &Error{Kind: e.Kind, Op: kind + " " + e.Op, Message: e.Message, Err: e.Err}
	}
	return transportError(kind, err)
}
