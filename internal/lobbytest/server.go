// Package lobbytest runs an in-process lobby for tests. It speaks the real
// wire protocol over TCP or WebSocket, answers requests through a Handler
// and pushes room updates on demand.
package lobbytest

import (
	"encoding/json"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"lobbyclient/internal/network"
)

// Request is a decoded client request.
type Request struct {
	Kind   string         `json:"kind"`
	Token  string         `json:"token"`
	RoomID string         `json:"room_id"`
	Accept *bool          `json:"accept"`
	Fields map[string]any `json:"-"`
}

// Reply is what the lobby answers. Raw replies are sent verbatim.
type Reply map[string]any

// Raw is a reply line sent as is, for malformed-message tests.
type Raw string

// Handler answers one request. Returning nil hangs up without a reply.
// A successful subscribe_room reply keeps the connection open as a room
// stream.
type Handler func(req Request) any

// OK is the plain success reply.
func OK() Reply { return Reply{"ok": true} }

// Fail is an ok:false reply with message.
func Fail(message string) Reply { return Reply{"ok": false, "error": message} }

// NotLoggedIn is the reply the lobby sends for an expired token.
func NotLoggedIn() Reply {
	return Reply{"ok": false, "code": network.CodeNotLoggedIn, "error": network.ErrorNotLoggedIn}
}

// Subscribed is the successful subscribe_room reply.
func Subscribed(room any) Reply { return Reply{"ok": true, "room": room} }

// Server is a running fake lobby.
type Server struct {
	t         testing.TB
	handler   Handler
	hub       *hub
	transport network.Transport
	addr      string
	requests  chan Request

	ln        net.Listener
	http      *httptest.Server
	closeOnce sync.Once
}

var upgrader = websocket.Upgrader{
	CheckOrigin:     func(r *http.Request) bool { return true },
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Start runs a newline-delimited JSON lobby on a loopback TCP port. It is
// shut down by t.Cleanup.
func Start(t testing.TB, handler Handler) *Server {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := newServer(t, handler, network.TransportTCP)
	s.ln = ln
	s.addr = ln.Addr().String()

	go s.acceptLoop()
	t.Cleanup(s.Close)
	return s
}

// StartWebSocket runs the same lobby behind a /ws WebSocket endpoint.
func StartWebSocket(t testing.TB, handler Handler) *Server {
	t.Helper()
	s := newServer(t, handler, network.TransportWebSocket)

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.wsHandler)
	s.http = httptest.NewServer(mux)
	s.addr = strings.TrimPrefix(s.http.URL, "http://")

	t.Cleanup(s.Close)
	return s
}

func newServer(t testing.TB, handler Handler, transport network.Transport) *Server {
	if handler == nil {
		handler = func(Request) any { return OK() }
	}
	s := &Server{
		t:         t,
		handler:   handler,
		hub:       newHub(),
		transport: transport,
		requests:  make(chan Request, 128),
	}
	go s.hub.run()
	return s
}

// Addr is the host:port clients dial.
func (s *Server) Addr() string { return s.addr }

// Dialer returns a dialer for this lobby.
func (s *Server) Dialer() network.Dialer {
	return network.Dialer{Transport: s.transport, Address: s.addr, Timeout: time.Second}
}

func (s *Server) acceptLoop() {
	for {
		c, err := s.ln.Accept()
		if err != nil {
			return
		}
		go s.serve(network.NewLineConn(c))
	}
}

func (s *Server) wsHandler(w http.ResponseWriter, r *http.Request) {
	c, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	s.serve(network.NewWebSocketConn(c))
}

// serve answers one request; a successful subscription then stays open
// until the client hangs up or the room is closed.
func (s *Server) serve(conn network.Conn) {
	data, err := conn.ReadMessage()
	if err != nil {
		conn.Close()
		return
	}
	req, err := decodeRequest(data)
	if err != nil {
		conn.Close()
		return
	}
	s.requests <- req

	reply := s.handler(req)
	if reply == nil {
		conn.Close()
		return
	}
	if err := writeReply(conn, reply); err != nil {
		conn.Close()
		return
	}
	if req.Kind != network.KindSubscribeRoom || !isOK(reply) {
		conn.Close()
		return
	}

	sub := &subscriber{roomID: req.RoomID, conn: conn, send: make(chan any, 64)}
	select {
	case s.hub.register <- sub:
	case <-s.hub.quit:
		conn.Close()
		return
	}
	// block until the client goes away, then unregister
	for {
		if _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	select {
	case s.hub.unregister <- sub:
	case <-s.hub.quit:
	}
}

func decodeRequest(data []byte) (Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return Request{}, err
	}
	if err := json.Unmarshal(data, &req.Fields); err != nil {
		return Request{}, err
	}
	return req, nil
}

func writeReply(conn network.Conn, reply any) error {
	if raw, ok := reply.(Raw); ok {
		return conn.WriteJSON(json.RawMessage(raw))
	}
	return conn.WriteJSON(reply)
}

func isOK(reply any) bool {
	r, ok := reply.(Reply)
	if !ok {
		return false
	}
	v, _ := r["ok"].(bool)
	return v
}

// Push sends a room_update with room to every subscriber of roomID.
func (s *Server) Push(roomID string, room any) {
	s.Send(roomID, Reply{"event": network.EventRoomUpdate, "room": room})
}

// Send writes msg verbatim on every stream of roomID. A Raw value must be
// valid JSON.
func (s *Server) Send(roomID string, msg any) {
	if raw, ok := msg.(Raw); ok {
		msg = json.RawMessage(raw)
	}
	select {
	case s.hub.broadcast <- broadcast{roomID: roomID, msg: msg}:
	case <-s.hub.quit:
	}
}

// CloseRoom ends every stream of roomID; clients see end of stream.
func (s *Server) CloseRoom(roomID string) {
	select {
	case s.hub.closeRoom <- roomID:
	case <-s.hub.quit:
	}
}

// Subscribers returns the number of open streams for roomID.
func (s *Server) Subscribers(roomID string) int {
	q := countQuery{roomID: roomID, reply: make(chan int, 1)}
	select {
	case s.hub.count <- q:
		return <-q.reply
	case <-s.hub.quit:
		return 0
	}
}

// WaitSubscribers blocks until roomID has n open streams.
func (s *Server) WaitSubscribers(roomID string, n int) {
	s.t.Helper()
	require.Eventually(s.t, func() bool { return s.Subscribers(roomID) == n },
		2*time.Second, 5*time.Millisecond, "room %s never reached %d subscribers", roomID, n)
}

// Requests is every request received, in arrival order.
func (s *Server) Requests() <-chan Request { return s.requests }

// RequireRequest waits for the next request and checks its kind.
func (s *Server) RequireRequest(kind string) Request {
	s.t.Helper()
	select {
	case req := <-s.requests:
		require.Equal(s.t, kind, req.Kind, "unexpected request %+v", req)
		return req
	case <-time.After(2 * time.Second):
		s.t.Fatalf("timed out waiting for %s request", kind)
		return Request{}
	}
}

// Close stops the lobby and drops every stream.
func (s *Server) Close() {
	s.closeOnce.Do(func() {
		close(s.hub.quit)
		if s.ln != nil {
			s.ln.Close()
		}
		if s.http != nil {
			s.http.Close()
		}
	})
}

