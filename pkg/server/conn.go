package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/gorilla/websocket"

	"github.com/trondhumbor/ChitChat/pkg/protocol"
)

// Conn is one client transport carrying whole envelopes. ReadFrame is only
// called by the session's reader and WriteFrame only by its writer; Close
// may be called from anywhere and unblocks both.
type Conn interface {
	ReadFrame() ([]byte, error)
	WriteFrame(payload []byte, deadline time.Time) error
	Close() error
	RemoteAddr() string
	Transport() string
}

// streamConn frames envelopes over a TCP byte stream.
type streamConn struct {
	conn    net.Conn
	reader  protocol.FrameReader
	framing protocol.Framing
}

// newStreamConn bounds incoming frames by maxSize. Responses are capped at
// protocol.MaxResponseSize.
func newStreamConn(conn net.Conn, framing protocol.Framing, maxSize int) *streamConn {
	return &streamConn{
		conn:    conn,
		reader:  protocol.NewFrameReader(conn, framing, maxSize),
		framing: framing,
	}
}

func (c *streamConn) ReadFrame() ([]byte, error) {
	return c.reader.ReadFrame()
}

func (c *streamConn) WriteFrame(payload []byte, deadline time.Time) error {
	if err := c.conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("server: set write deadline: %w", err)
	}
	return protocol.WriteFrame(c.conn, c.framing, payload, protocol.MaxResponseSize)
}

func (c *streamConn) Close() error      { return c.conn.Close() }
func (c *streamConn) RemoteAddr() string { return c.conn.RemoteAddr().String() }
func (c *streamConn) Transport() string  { return "tcp/" + string(c.framing) }

// wsConn carries one envelope per WebSocket message.
type wsConn struct {
	ws *websocket.Conn
}

func newWSConn(ws *websocket.Conn, maxSize int) *wsConn {
	ws.SetReadLimit(int64(maxSize))
	return &wsConn{ws: ws}
}

func (c *wsConn) ReadFrame() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		if errors.Is(err, websocket.ErrReadLimit) {
			return nil, protocol.ErrFrameTooLarge
		}
		if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
			return nil, io.EOF
		}
		return nil, err
	}
	return data, nil
}

func (c *wsConn) WriteFrame(payload []byte, deadline time.Time) error {
	if len(payload) > protocol.MaxResponseSize {
		return fmt.Errorf("%w: %d bytes", protocol.ErrFrameTooLarge, len(payload))
	}
	if err := c.ws.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("server: set write deadline: %w", err)
	}
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

func (c *wsConn) Close() error      { return c.ws.Close() }
func (c *wsConn) RemoteAddr() string { return c.ws.RemoteAddr().String() }
func (c *wsConn) Transport() string  { return "websocket" }

// isClosedErr reports whether err means the peer or the server closed the connection.
func isClosedErr(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, websocket.ErrCloseSent)
}
