// Package session runs one room session: the room stream, the player's
// commands and the game start trigger, under one cancellation scope.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"lobbyclient/internal/clock"
	"lobbyclient/internal/network"
	"lobbyclient/internal/notify"
	"lobbyclient/internal/room"
)

// Reason says why a session ended and where the caller goes next.
type Reason int

const (
	// ReasonLeft: the player left. Back to the lobby.
	ReasonLeft Reason = iota
	// ReasonRoomClosed: the player is no longer listed in the room.
	ReasonRoomClosed
	// ReasonRoomGone: the lobby closed the room stream.
	ReasonRoomGone
	// ReasonAuthExpired: the token is no longer valid. Back to login.
	ReasonAuthExpired
	// ReasonSubscriptionRejected: the room was never entered.
	ReasonSubscriptionRejected
	// ReasonFailed: transport or protocol failure on the stream.
	ReasonFailed
	// ReasonCancelled: the parent context ended.
	ReasonCancelled
)

func (r Reason) String() string {
	switch r {
	case ReasonLeft:
		return "left"
	case ReasonRoomClosed:
		return "room_closed"
	case ReasonRoomGone:
		return "room_gone"
	case ReasonAuthExpired:
		return "auth_expired"
	case ReasonSubscriptionRejected:
		return "subscription_rejected"
	case ReasonFailed:
		return "failed"
	case ReasonCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("reason(%d)", int(r))
	}
}

// Result is how a session ended. Err is set for every reason that came
// from an error.
type Result struct {
	Reason Reason
	Err    error
}

// StartTrigger launches the local game when every player agreed to start.
// It must not block on the game itself.
type StartTrigger interface {
	Trigger(ctx context.Context, s *room.State) error
}

// TriggerFunc adapts a function to StartTrigger.
type TriggerFunc func(ctx context.Context, s *room.State) error

func (f TriggerFunc) Trigger(ctx context.Context, s *room.State) error { return f(ctx, s) }

// LineReader is the player's input. ReadLine must return promptly once ctx
// is done.
type LineReader interface {
	ReadLine(ctx context.Context) (string, error)
}

// EventKind classifies what a session reports to the player besides the
// room view.
type EventKind int

const (
	EventCommandFailed EventKind = iota
	EventInputIgnored
	EventUnknownInput
	EventGameStarting
	EventGameLaunched
	EventLaunchFailed
)

type Event struct {
	Kind    EventKind
	Command Command
	Err     error
}

// UI renders the room and reports events. Calls are serialized.
type UI interface {
	Render(v room.View)
	Report(ev Event)
}

type Config struct {
	// Player is the local player id as listed in the room.
	Player string
	Token  string
	RoomID string

	// Requester is the request channel. The stream dials through its
	// Dialer.
	Requester *network.Requester
	Input     LineReader
	UI        UI
	Trigger   StartTrigger
	Events    notify.Publisher

	Clock       clock.Clock
	SettleDelay time.Duration
	SessionID   string
	Logger      *zap.Logger
}

type Session struct {
	cfg     Config
	id      string
	log     *zap.Logger
	machine *room.Machine

	uiMu sync.Mutex
}

// New prepares a session. Nothing is dialed until Run.
func New(cfg Config) *Session {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Trigger == nil {
		cfg.Trigger = TriggerFunc(func(context.Context, *room.State) error { return nil })
	}
	if cfg.Events == nil {
		cfg.Events = notify.Nop{}
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.Real()
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = room.DefaultSettleDelay
	}
	id := cfg.SessionID
	if id == "" {
		id = uuid.NewString()
	}

	return &Session{
		cfg: cfg,
		id:  id,
		log: cfg.Logger.With(
			zap.String("session_id", id),
			zap.String("player", cfg.Player),
			zap.String("room_id", cfg.RoomID),
		),
		machine: room.NewMachine(cfg.Player,
			room.WithClock(cfg.Clock),
			room.WithSettleDelay(cfg.SettleDelay)),
	}
}

// ID is the correlation id used in logs and lifecycle events.
func (s *Session) ID() string { return s.id }

// Machine exposes the room state machine, mostly for inspection.
func (s *Session) Machine() *room.Machine { return s.machine }

// end carries a terminal result out of a loop through errgroup.
type end struct{ result Result }

func (e *end) Error() string { return "session ended: " + e.result.Reason.String() }

func finish(reason Reason, err error) error {
	return &end{result: Result{Reason: reason, Err: err}}
}

// Run subscribes to the room and runs until the session ends. The stream
// consumer and the input loop share one context: whichever ends first
// cancels the other. All in-memory room state is dropped on return.
func (s *Session) Run(ctx context.Context) (res Result) {
	defer s.machine.Close()
	defer func() {
		s.log.Info("[Session] ended", zap.Stringer("reason", res.Reason), zap.Error(res.Err))
		s.publish(notify.Event{Type: notify.TypeSessionEnded, Reason: res.Reason.String()})
	}()

	stream, initial, err := Subscribe(ctx, s.cfg.Requester.Dialer(), s.cfg.Token, s.cfg.RoomID, s.log)
	if err != nil {
		switch {
		case ctx.Err() != nil:
			return Result{Reason: ReasonCancelled, Err: err}
		case errors.Is(err, network.ErrAuthExpired):
			return Result{Reason: ReasonAuthExpired, Err: err}
		case errors.Is(err, network.ErrSubscriptionRejected):
			return Result{Reason: ReasonSubscriptionRejected, Err: err}
		}
		return Result{Reason: ReasonFailed, Err: err}
	}
	defer stream.Close()

	s.log.Info("[Session] joined room")
	s.publish(notify.Event{Type: notify.TypeSessionJoined})

	if t := s.apply(ctx, initial); t.RoomClosed {
		return Result{Reason: ReasonRoomClosed, Err: network.ErrRoomClosed}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.consume(gctx, stream) })
	g.Go(func() error { return s.readInput(gctx) })

	err = g.Wait()
	var e *end
	if errors.As(err, &e) {
		return e.result
	}
	return Result{Reason: ReasonCancelled, Err: ctx.Err()}
}

func (s *Session) consume(ctx context.Context, stream *Stream) error {
	for {
		next, err := stream.Next(ctx)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return ctx.Err()
			case errors.Is(err, io.EOF):
				return finish(ReasonRoomGone, nil)
			case errors.Is(err, network.ErrAuthExpired):
				return finish(ReasonAuthExpired, err)
			}
			return finish(ReasonFailed, err)
		}
		if t := s.apply(ctx, next); t.RoomClosed {
			return finish(ReasonRoomClosed, network.ErrRoomClosed)
		}
	}
}

func (s *Session) readInput(ctx context.Context) error {
	d := NewDispatcher(s.cfg.Requester, s.machine, s.cfg.Token, s.cfg.RoomID, s.log)
	for {
		line, err := s.cfg.Input.ReadLine(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if !errors.Is(err, io.EOF) {
				return finish(ReasonFailed, fmt.Errorf("read input: %w", err))
			}
			return s.leaveOnEOF(ctx, d)
		}

		cmd, done, err := d.HandleLine(ctx, line)
		switch {
		case errors.Is(err, network.ErrAuthExpired):
			return finish(ReasonAuthExpired, err)
		case errors.Is(err, ErrSessionOver):
			// the stream loop reports why
			<-ctx.Done()
			return ctx.Err()
		case done:
			return finish(ReasonLeft, nil)
		case errors.Is(err, ErrInputIgnored):
			s.report(Event{Kind: EventInputIgnored})
		case errors.Is(err, ErrUnknownCommand):
			s.report(Event{Kind: EventUnknownInput})
		case err != nil:
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.report(Event{Kind: EventCommandFailed, Command: cmd, Err: err})
		case cmd == CommandReady || cmd == CommandUnready:
			s.render()
		}
	}
}

// leaveOnEOF leaves the room once the input is exhausted, even while a
// launched game holds the input guard.
func (s *Session) leaveOnEOF(ctx context.Context, d *Dispatcher) error {
	s.log.Debug("[Session] input closed, leaving room")
	_, err := d.Dispatch(ctx, CommandLeave)
	switch {
	case errors.Is(err, network.ErrAuthExpired):
		return finish(ReasonAuthExpired, err)
	case errors.Is(err, ErrSessionOver):
		<-ctx.Done()
		return ctx.Err()
	}
	return finish(ReasonLeft, nil)
}

// apply runs one snapshot through the machine, renders it and fires the
// start trigger on the agreed edge.
func (s *Session) apply(ctx context.Context, next *room.State) room.Transition {
	t := s.machine.Apply(next)
	if t.Ignored {
		return t
	}
	s.log.Debug("[Session] room update",
		zap.String("status", string(next.Status)),
		zap.String("start", string(t.Current)),
		zap.Strings("players", next.Players))
	s.render()

	if t.StartTriggered {
		s.launch(ctx, t.Launch)
	}
	return t
}

func (s *Session) launch(ctx context.Context, id uint64) {
	s.report(Event{Kind: EventGameStarting})
	state, _ := s.machine.Snapshot()

	if err := s.cfg.Trigger.Trigger(ctx, state); err != nil {
		s.log.Warn("[Session] game launch failed", zap.Uint64("launch", id), zap.Error(err))
		s.machine.AbortLaunch(id)
		s.report(Event{Kind: EventLaunchFailed, Err: err})
		s.render()
		return
	}

	s.log.Info("[Session] game launched", zap.Uint64("launch", id))
	s.machine.SettleLaunch(id)
	s.publish(notify.Event{Type: notify.TypeGameLaunched, Launch: id})
	s.report(Event{Kind: EventGameLaunched})
	s.render()
}

func (s *Session) render() {
	if s.cfg.UI == nil {
		return
	}
	state, flags := s.machine.Snapshot()
	v := room.Derive(state, flags, s.cfg.Player)

	s.uiMu.Lock()
	defer s.uiMu.Unlock()
	s.cfg.UI.Render(v)
}

func (s *Session) report(ev Event) {
	if s.cfg.UI == nil {
		return
	}
	s.uiMu.Lock()
	defer s.uiMu.Unlock()
	s.cfg.UI.Report(ev)
}

func (s *Session) publish(ev notify.Event) {
	ev.SessionID = s.id
	ev.Player = s.cfg.Player
	ev.RoomID = s.cfg.RoomID
	ev.Time = s.cfg.Clock.Now()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := s.cfg.Events.Publish(ctx, ev); err != nil {
		s.log.Debug("[Session] publish failed", zap.String("type", ev.Type), zap.Error(err))
	}
}
