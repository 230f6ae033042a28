package lobbytest

import (
	"lobbyclient/internal/network"
)

// subscriber is one open room stream.
type subscriber struct {
	roomID string
	conn   network.Conn
	send   chan any
}

func (s *subscriber) writeLoop() {
	defer s.conn.Close()
	for msg := range s.send {
		if err := s.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

type broadcast struct {
	roomID string
	msg    any
}

type countQuery struct {
	roomID string
	reply  chan int
}

// hub owns the set of room subscribers. Every field below is touched only
// by the run goroutine.
type hub struct {
	subscribers map[*subscriber]bool

	register   chan *subscriber
	unregister chan *subscriber
	broadcast  chan broadcast
	closeRoom  chan string
	count      chan countQuery
	quit       chan struct{}
}

func newHub() *hub {
	return &hub{
		subscribers: make(map[*subscriber]bool),
		register:    make(chan *subscriber),
		unregister:  make(chan *subscriber),
		broadcast:   make(chan broadcast),
		closeRoom:   make(chan string),
		count:       make(chan countQuery),
		quit:        make(chan struct{}),
	}
}

func (h *hub) run() {
	for {
		select {
		case s := <-h.register:
			h.subscribers[s] = true
			go s.writeLoop()

		case s := <-h.unregister:
			h.drop(s)

		case b := <-h.broadcast:
			for s := range h.subscribers {
				if s.roomID != b.roomID {
					continue
				}
				select {
				case s.send <- b.msg:
				default:
					// slow reader, cut it off like a real lobby would
					h.drop(s)
				}
			}

		case roomID := <-h.closeRoom:
			for s := range h.subscribers {
				if s.roomID == roomID {
					h.drop(s)
				}
			}

		case q := <-h.count:
			n := 0
			for s := range h.subscribers {
				if s.roomID == q.roomID {
					n++
				}
			}
			q.reply <- n

		case <-h.quit:
			for s := range h.subscribers {
				h.drop(s)
			}
			return
		}
	}
}

// drop closes the send channel, which ends writeLoop and closes the
// connection after pending pushes are flushed.
func (h *hub) drop(s *subscriber) {
	if _, ok := h.subscribers[s]; ok {
		delete(h.subscribers, s)
		close(s.send)
	}
}
