package network

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Transport selects how messages reach the lobby.
type Transport string

const (
	// TransportTCP sends newline-delimited JSON over a plain TCP stream.
	TransportTCP Transport = "tcp"
	// TransportWebSocket sends one JSON object per text frame.
	TransportWebSocket Transport = "ws"
)

const (
	defaultDialTimeout = 5 * time.Second
	defaultWSPath      = "/ws"
)

// Conn carries whole messages in both directions. ReadMessage returns
// io.EOF when the peer closes the stream cleanly.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteJSON(v any) error
	Close() error
}

// Dialer opens connections to the lobby. The zero Transport means TCP.
type Dialer struct {
	Transport Transport
	Address   string
	Timeout   time.Duration
	// Path is the websocket endpoint path, "/ws" when empty.
	Path string
}

// Dial opens a new connection. Failures are transport errors.
func (d Dialer) Dial(ctx context.Context) (Conn, error) {
	timeout := d.Timeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	switch d.Transport {
	case TransportTCP, "":
		var nd net.Dialer
		conn, err := nd.DialContext(ctx, "tcp", d.Address)
		if err != nil {
			return nil, transportError("dial", err)
		}
		return NewLineConn(conn), nil

	case TransportWebSocket:
		path := d.Path
		if path == "" {
			path = defaultWSPath
		}
		u := url.URL{Scheme: "ws", Host: d.Address, Path: path}
		conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
		if err != nil {
			if resp != nil {
				err = fmt.Errorf("%w (status %s)", err, resp.Status)
			}
			return nil, transportError("dial", err)
		}
		return NewWebSocketConn(conn), nil

	default:
		return nil, transportError("dial", fmt.Errorf("unknown transport %q", d.Transport))
	}
}

// CloseOnCancel closes c as soon as ctx is done, which unblocks a pending
// ReadMessage. The returned stop function detaches the hook.
func CloseOnCancel(ctx context.Context, c Conn) (stop func() bool) {
	return context.AfterFunc(ctx, func() { c.Close() })
}

// ============================================================================
// Newline-delimited JSON over a byte stream
// ============================================================================

type lineConn struct {
	conn   net.Conn
	reader *bufio.Reader

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewLineConn frames messages on conn with a trailing '\n'.
func NewLineConn(conn net.Conn) Conn {
	return &lineConn{conn: conn, reader: bufio.NewReader(conn)}
}

func (c *lineConn) ReadMessage() ([]byte, error) {
	for {
		line, err := c.readLine()
		if err != nil {
			return nil, err
		}
		// blank lines carry nothing
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		return line, nil
	}
}

func (c *lineConn) readLine() ([]byte, error) {
	var buf []byte
	for {
		chunk, err := c.reader.ReadSlice('\n')
		if len(buf)+len(chunk) > MaxMessageSize {
			return nil, protocolError("read", fmt.Sprintf("message exceeds %d bytes", MaxMessageSize), nil)
		}
		buf = append(buf, chunk...)

		switch {
		case err == nil:
			return bytes.TrimRight(buf, "\r\n"), nil
		case errors.Is(err, bufio.ErrBufferFull):
			continue
		case errors.Is(err, io.EOF):
			if len(bytes.TrimSpace(buf)) > 0 {
				// last message without its newline
				return buf, nil
			}
			return nil, io.EOF
		default:
			return nil, transportError("read", err)
		}
	}
}

func (c *lineConn) WriteJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	data = append(data, '\n')

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := c.conn.Write(data); err != nil {
		return transportError("write", err)
	}
	return nil
}

func (c *lineConn) Close() error {
	c.closeOnce.Do(func() { c.closeErr = c.conn.Close() })
	return c.closeErr
}

// ============================================================================
// WebSocket
// ============================================================================

type wsConn struct {
	conn *websocket.Conn

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// NewWebSocketConn carries one message per text frame on conn.
func NewWebSocketConn(conn *websocket.Conn) Conn {
	conn.SetReadLimit(MaxMessageSize)
	return &wsConn{conn: conn}
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil, io.EOF
			}
			if errors.Is(err, websocket.ErrReadLimit) {
				return nil, protocolError("read", fmt.Sprintf("message exceeds %d bytes", MaxMessageSize), err)
			}
			return nil, transportError("read", err)
		}
		if msgType != websocket.TextMessage {
			return nil, protocolError("read", "unexpected binary frame", nil)
		}
		if len(bytes.TrimSpace(data)) == 0 {
			continue
		}
		return data, nil
	}
}

func (c *wsConn) WriteJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return transportError("write", err)
	}
	return nil
}

func (c *wsConn) Close() error {
	c.closeOnce.Do(func() {
		// WriteControl is safe to call concurrently with WriteMessage.
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.closeErr = c.conn.Close()
	})
	return c.closeErr
}
