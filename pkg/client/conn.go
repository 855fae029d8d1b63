// Package client implements the ChitChat terminal client.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/trondhumbor/ChitChat/pkg/protocol"
)

// ResponseHandler is a callback for responses pushed by the server.
type ResponseHandler func(resp protocol.Response)

// transport moves whole envelopes to and from the server.
type transport interface {
	writeFrame(payload []byte) error
	readFrame() ([]byte, error)
	Close() error
}

// ChatClient manages one connection to a ChitChat server.
type ChatClient struct {
	conn    transport
	mu      sync.Mutex
	handler ResponseHandler
	done    chan struct{}
}

func newChatClient(t transport) *ChatClient {
	return &ChatClient{conn: t, done: make(chan struct{})}
}

// Dial connects over TCP using the given framing.
func Dial(ctx context.Context, addr string, framing protocol.Framing) (*ChatClient, error) {
	f, err := protocol.ParseFraming(string(framing))
	if err != nil {
		return nil, fmt.Errorf("client: %w", err)
	}
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("client: connect: %w", err)
	}
	return newChatClient(&streamTransport{
		conn:    conn,
		reader:  protocol.NewFrameReader(conn, f, protocol.MaxResponseSize),
		framing: f,
	}), nil
}

// DialWebSocket connects to a server's /ws endpoint, e.g. ws://host:9999/ws.
func DialWebSocket(ctx context.Context, url string) (*ChatClient, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	ws, resp, err := dialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("client: connect websocket: %w", err)
	}
	ws.SetReadLimit(protocol.MaxResponseSize)
	return newChatClient(&wsTransport{ws: ws}), nil
}

// SetResponseHandler sets the callback for incoming responses.
// It must be called before StartReceiving.
func (c *ChatClient) SetResponseHandler(handler ResponseHandler) {
	c.handler = handler
}

// Send sends a request to the server.
func (c *ChatClient) Send(req protocol.Request) error {
	payload, err := protocol.EncodeRequest(req)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.conn.writeFrame(payload); err != nil {
		return fmt.Errorf("client: send %s: %w", req.Kind, err)
	}
	return nil
}

// StartReceiving starts a goroutine that reads incoming responses
// and dispatches them to the response handler.
func (c *ChatClient) StartReceiving() {
	go func() {
		defer close(c.done)
		for {
			frame, err := c.conn.readFrame()
			if err != nil {
				if isClosedErr(err) {
					slog.Debug("connection closed")
					return
				}
				slog.Error("read error", "err", err)
				return
			}
			resp, err := protocol.DecodeResponse(frame)
			if err != nil {
				slog.Warn("dropping undecodable response", "err", err)
				continue
			}
			if c.handler != nil {
				c.handler(resp)
			}
		}
	}()
}

// Close closes the connection.
func (c *ChatClient) Close() error {
	return c.conn.Close()
}

// Done returns a channel that's closed when the connection is lost.
func (c *ChatClient) Done() <-chan struct{} {
	return c.done
}

type streamTransport struct {
	conn    net.Conn
	reader  protocol.FrameReader
	framing protocol.Framing
}

func (t *streamTransport) writeFrame(payload []byte) error {
	return protocol.WriteFrame(t.conn, t.framing, payload, protocol.MaxFrameSize)
}

func (t *streamTransport) readFrame() ([]byte, error) { return t.reader.ReadFrame() }
func (t *streamTransport) Close() error               { return t.conn.Close() }

type wsTransport struct {
	ws *websocket.Conn
}

func (t *wsTransport) writeFrame(payload []byte) error {
	return t.ws.WriteMessage(websocket.TextMessage, payload)
}

func (t *wsTransport) readFrame() ([]byte, error) {
	_, data, err := t.ws.ReadMessage()
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
		return nil, io.EOF
	}
	return data, err
}

func (t *wsTransport) Close() error { return t.ws.Close() }

func isClosedErr(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}
