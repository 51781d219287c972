package exception

import "github.com/yanun0323/errors"

// Stream errors
var (
	// ErrStreamClosed is returned when the remote peer closed the connection.
	ErrStreamClosed = errors.New("stream: connection closed")

	// ErrStreamTimeout is returned when no frame arrived within the receive
	// timeout. It is not a failure; the caller decides what to do next.
	ErrStreamTimeout = errors.New("stream: receive timeout")

	// ErrStreamNotConnected is returned when an operation needs a live
	// connection and there is none.
	ErrStreamNotConnected = errors.New("stream: not connected")

	// ErrStreamShutdown is returned after an explicit shutdown.
	ErrStreamShutdown = errors.New("stream: shut down")
)
