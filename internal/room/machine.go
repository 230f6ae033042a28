package room

import (
	"sync"
	"time"

	"lobbyclient/internal/clock"
)

// DefaultSettleDelay is how long the start guard stays up after a launch.
const DefaultSettleDelay = time.Second

// Flags is the client-only session state. None of it is sent to the lobby.
type Flags struct {
	// PlayerReady mirrors the local player's membership in ready_players,
	// updated ahead of the lobby on a successful ready/unready command.
	PlayerReady bool
	// GameStarted is up while a launch is in progress and input is ignored.
	GameStarted bool
	// LastStartState is the start state of the last applied snapshot.
	LastStartState StartPhase
}

// Transition reports what an Apply call did.
type Transition struct {
	Previous StartPhase
	Current  StartPhase

	// StartTriggered is set on the edge into agreed. Launch identifies the
	// launch for SettleLaunch / AbortLaunch.
	StartTriggered bool
	Launch         uint64

	// RoomClosed is set when the local player is no longer in the room.
	// The machine accepts nothing afterwards.
	RoomClosed bool

	// Ignored is set when the snapshot arrived after the room closed.
	Ignored bool
}

// Option configures a Machine.
type Option func(*Machine)

// WithClock replaces the real clock.
func WithClock(c clock.Clock) Option {
	return func(m *Machine) { m.clock = c }
}

// WithSettleDelay sets how long GameStarted stays up after a launch.
func WithSettleDelay(d time.Duration) Option {
	return func(m *Machine) { m.settleDelay = d }
}

// Machine owns the room mirror and the session flags. Snapshot application
// and the dispatcher's optimistic updates are serialized on one mutex, so a
// reader never sees a half-applied snapshot.
type Machine struct {
	self string

	mu     sync.Mutex
	state  *State
	flags  Flags
	closed bool
	launch uint64
	timer  clock.Timer

	clock       clock.Clock
	settleDelay time.Duration
}

// NewMachine returns an empty machine for the local player self.
func NewMachine(self string, opts ...Option) *Machine {
	m := &Machine{
		self:        self,
		clock:       clock.Real(),
		settleDelay: DefaultSettleDelay,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Self is the local player id.
func (m *Machine) Self() string { return m.self }

// Apply replaces the room mirror with next and reports the transitions it
// caused. next is copied; the caller may keep using it.
func (m *Machine) Apply(next *State) Transition {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return Transition{Ignored: true}
	}

	prev := m.flags.LastStartState
	if m.state == nil {
		prev = StartIdle
	}

	m.state = next.Clone()
	cur := m.state.Start.State
	// updated after prev was captured, never before
	m.flags.LastStartState = cur

	t := Transition{Previous: prev, Current: cur}

	// A finished round resynchronizes the optimistic ready flag. During a
	// negotiation it is left alone so a pending local action is not clobbered.
	if m.state.Status == StatusWaiting && (cur == StartIdle || cur == StartNone) {
		m.flags.PlayerReady = m.state.IsReady(m.self)
		m.flags.GameStarted = false
	}

	inRoom := m.state.HasPlayer(m.self)
	if prev != StartAgreed && cur == StartAgreed && inRoom && !m.flags.GameStarted {
		m.flags.GameStarted = true
		m.launch++
		t.StartTriggered = true
		t.Launch = m.launch
	}

	if !inRoom {
		m.closed = true
		t.RoomClosed = true
		m.stopTimerLocked()
	}
	return t
}

// SetPlayerReady records a successful ready/unready command. It reports
// false when the room has already closed.
func (m *Machine) SetPlayerReady(ready bool) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return false
	}
	m.flags.PlayerReady = ready
	return true
}

// SettleLaunch lowers the start guard of launch once the settle delay has
// passed. A newer launch keeps its own guard.
func (m *Machine) SettleLaunch(launch uint64) {
	// AfterFunc may run the callback synchronously, so no lock is held here.
	timer := m.clock.AfterFunc(m.settleDelay, func() { m.lowerGuard(launch) })

	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopTimerLocked()
	m.timer = timer
}

// AbortLaunch lowers the start guard of launch immediately.
func (m *Machine) AbortLaunch(launch uint64) {
	m.lowerGuard(launch)
}

func (m *Machine) lowerGuard(launch uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.launch == launch {
		m.flags.GameStarted = false
	}
}

// Close marks the session as over and cancels a pending settle timer.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.stopTimerLocked()
}

func (m *Machine) stopTimerLocked() {
	if m.timer != nil {
		m.timer.Stop()
		m.timer = nil
	}
}

// Snapshot returns a copy of the current room (nil before the first
// snapshot) together with the flags, taken atomically.
func (m *Machine) Snapshot() (*State, Flags) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone(), m.flags
}

func (m *Machine) Flags() Flags {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flags
}

func (m *Machine) GameStarted() bool { return m.Flags().GameStarted }

func (m *Machine) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
