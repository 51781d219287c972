package stream

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/yanun0323/errors"

	"main/pkg/exception"
)

// Conn is one live framed connection. The concrete wire protocol is opaque
// bytes handed to the shard's parser.
type Conn interface {
	// ReadMessage blocks for at most timeout. It returns
	// exception.ErrStreamTimeout when no frame arrived (not a failure) and
	// exception.ErrStreamClosed when the peer is gone.
	ReadMessage(timeout time.Duration) ([]byte, error)

	// WriteMessage sends one text frame.
	WriteMessage(payload []byte) error

	// Close tears the connection down.
	Close() error
}

// Dialer establishes new connections.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

const defaultHandshakeTimeout = 10 * time.Second

// WebSocketDialer dials exchange streaming endpoints over websocket.
type WebSocketDialer struct {
	// HandshakeTimeout bounds the dial. Optional; default 10s.
	HandshakeTimeout time.Duration
	// Header is attached to the handshake request. Optional.
	Header http.Header
}

func (d WebSocketDialer) Dial(ctx context.Context, url string) (Conn, error) {
	timeout := d.HandshakeTimeout
	if timeout <= 0 {
		timeout = defaultHandshakeTimeout
	}
	dialer := websocket.Dialer{HandshakeTimeout: timeout}
	conn, _, err := dialer.DialContext(ctx, url, d.Header)
	if err != nil {
		return nil, errors.Wrap(err, "stream: dial")
	}
	return &wsConn{conn: conn}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) ReadMessage(timeout time.Duration) ([]byte, error) {
	if timeout > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(timeout))
	}
	_, payload, err := c.conn.ReadMessage()
	if err == nil {
		return payload, nil
	}
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return nil, exception.ErrStreamTimeout
	}
	return nil, errors.Wrap(exception.ErrStreamClosed, err.Error())
}

func (c *wsConn) WriteMessage(payload []byte) error {
	if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		return errors.Wrap(exception.ErrStreamClosed, err.Error())
	}
	return nil
}

func (c *wsConn) Close() error {
	return c.conn.Close()
}
