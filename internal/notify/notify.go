// Package notify publishes session lifecycle events for anything that wants
// to follow what the client is doing (dashboards, bots, test harnesses).
package notify

import (
	"context"
	"time"
)

// Event types, appended to the subject prefix.
const (
	TypeSessionJoined = "session.joined"
	TypeGameLaunched  = "game.launched"
	TypeSessionEnded  = "session.ended"
)

type Event struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id"`
	Player    string    `json:"player"`
	RoomID    string    `json:"room_id"`
	Reason    string    `json:"reason,omitempty"`
	Launch    uint64    `json:"launch,omitempty"`
	Time      time.Time `json:"time"`
}

// Publisher delivers events. Publishing is best effort: callers log a
// failure and carry on.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

// Nop drops every event.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }

// Subject is the subject an event of type typ is published on.
func Subject(prefix, typ string) string {
	if prefix == "" {
		return typ
	}
	return prefix + "." + typ
}

// Recorder keeps every published event in memory.
type Recorder struct {
	events chan Event
}

// NewRecorder returns a Recorder that buffers up to size events; further
// events are dropped.
func NewRecorder(size int) *Recorder {
	return &Recorder{events: make(chan Event, size)}
}

func (r *Recorder) Publish(_ context.Context, ev Event) error {
	select {
	case r.events <- ev:
	default:
	}
	return nil
}

func (r *Recorder) Close() error { return nil }

// Events is the channel recorded events are delivered on.
func (r *Recorder) Events() <-chan Event { return r.events }
