package stream

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/obs"
	"main/pkg/exception"
)

// State is the connection lifecycle state.
type State uint32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateReconnecting:
		return "RECONNECTING"
	default:
		return "UNKNOWN"
	}
}

const (
	DefaultReceiveTimeout   = 5 * time.Second
	DefaultHeartbeatTimeout = 60 * time.Second
)

// Option configures a connection manager.
type Option struct {
	// Backoff defines reconnect delays. Optional; default DefaultBackoff.
	Backoff Backoff
	// HeartbeatTimeout is how long the stream may stay silent before the
	// connection is treated as half-open. Optional; default 60s.
	HeartbeatTimeout time.Duration
	// OnConnect runs after each successful dial, before any Receive; return
	// an error to fail the attempt. Used for subscribe requests.
	OnConnect func(conn Conn) error
	// Metrics receives reconnect counters. Optional.
	Metrics *obs.Metrics
}

func (opt *Option) init() {
	if opt.Backoff.Base == 0 && opt.Backoff.Max == 0 && opt.Backoff.Factor == 0 && opt.Backoff.Jitter == 0 {
		opt.Backoff = DefaultBackoff()
	}
	if opt.HeartbeatTimeout <= 0 {
		opt.HeartbeatTimeout = DefaultHeartbeatTimeout
	}
}

// Manager owns one streaming connection's lifecycle: dial, timed receive,
// backoff reconnect and heartbeat health. It is driven by a single loop
// goroutine; only the health fields are shared with the monitor goroutine.
type Manager struct {
	url    string
	dialer Dialer
	opt    Option

	conn      Conn
	attempts  int
	state     atomic.Uint32
	lastFrame atomic.Int64
	unhealthy atomic.Bool
	closed    atomic.Bool

	now func() time.Time
}

// NewManager builds a manager for the given endpoint.
func NewManager(url string, dialer Dialer, option ...Option) (*Manager, error) {
	if url == "" || dialer == nil {
		return nil, exception.ErrInvalidArgument
	}
	var opt Option
	if len(option) != 0 {
		opt = option[0]
	}
	opt.init()
	return &Manager{
		url:    url,
		dialer: dialer,
		opt:    opt,
		now:    time.Now,
	}, nil
}

// State reports the current lifecycle state.
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Healthy reports whether the connection is live and recently active. A
// silent stream past the heartbeat timeout counts as unhealthy even though
// the socket has not errored, which is exactly the half-open case.
func (m *Manager) Healthy() bool {
	if m.State() != StateConnected || m.unhealthy.Load() {
		return false
	}
	last := time.Unix(0, m.lastFrame.Load())
	return m.now().Sub(last) < m.opt.HeartbeatTimeout
}

// EnsureConnected is the mandatory first step of every loop iteration: it
// checks health and, when unhealthy, performs one backoff-paced reconnect
// attempt. Keeping the check here, not only at startup, is what prevents a
// permanent stall after the first disconnect.
func (m *Manager) EnsureConnected(ctx context.Context) error {
	if m.closed.Load() {
		return exception.ErrStreamShutdown
	}
	if m.Healthy() {
		return nil
	}

	m.teardown()

	if m.attempts > 0 {
		if err := sleep(ctx, m.opt.Backoff.Next(m.attempts)); err != nil {
			return err
		}
	}
	return m.Connect(ctx)
}

// Connect performs exactly one connection attempt. Success resets the
// backoff attempt count; failure increments it.
func (m *Manager) Connect(ctx context.Context) error {
	if m.closed.Load() {
		return exception.ErrStreamShutdown
	}

	m.state.Store(uint32(StateConnecting))

	conn, err := m.dialer.Dial(ctx, m.url)
	if err != nil {
		m.attempts++
		m.state.Store(uint32(StateReconnecting))
		logs.Errorf("stream %s: connect attempt %d failed: %v", m.url, m.attempts, err)
		return err
	}

	if m.opt.OnConnect != nil {
		if err := m.opt.OnConnect(conn); err != nil {
			_ = conn.Close()
			m.attempts++
			m.state.Store(uint32(StateReconnecting))
			logs.Errorf("stream %s: post-connect setup failed: %v", m.url, err)
			return err
		}
	}

	if m.attempts > 0 {
		m.opt.Metrics.AddReconnect()
	}
	m.conn = conn
	m.attempts = 0
	m.unhealthy.Store(false)
	m.lastFrame.Store(m.now().UnixNano())
	m.state.Store(uint32(StateConnected))
	logs.Infof("stream %s: connected", m.url)
	return nil
}

// Receive waits up to timeout for one frame. A timeout is not an error
// condition; a closed connection flips the manager to RECONNECTING so the
// next EnsureConnected dials again.
func (m *Manager) Receive(timeout time.Duration) ([]byte, error) {
	conn := m.conn
	if conn == nil || m.State() != StateConnected {
		return nil, exception.ErrStreamNotConnected
	}

	payload, err := conn.ReadMessage(timeout)
	if err == nil {
		m.lastFrame.Store(m.now().UnixNano())
		return payload, nil
	}
	if errors.Is(err, exception.ErrStreamTimeout) {
		return nil, err
	}

	m.teardown()
	return nil, err
}

// Send writes one frame on the live connection.
func (m *Manager) Send(payload []byte) error {
	conn := m.conn
	if conn == nil || m.State() != StateConnected {
		return exception.ErrStreamNotConnected
	}
	return conn.WriteMessage(payload)
}

// RunHealthCheck periodically flags a silent stream as unhealthy,
// independent of message receipt, until ctx is done.
func (m *Manager) RunHealthCheck(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = m.opt.HeartbeatTimeout / 2
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if m.State() != StateConnected {
				continue
			}
			silent := m.now().Sub(time.Unix(0, m.lastFrame.Load()))
			if silent >= m.opt.HeartbeatTimeout && !m.unhealthy.Swap(true) {
				logs.Errorf("stream %s: no frame for %s, marking unhealthy", m.url, silent)
			}
		}
	}
}

// Close shuts the manager down for good.
func (m *Manager) Close() error {
	m.closed.Store(true)
	m.teardown()
	m.state.Store(uint32(StateDisconnected))
	return nil
}

func (m *Manager) teardown() {
	hadConn := m.conn != nil
	if hadConn {
		_ = m.conn.Close()
		m.conn = nil
	}
	// a manager that never connected stays DISCONNECTED until it dials
	if !m.closed.Load() && (hadConn || m.State() != StateDisconnected) {
		m.state.Store(uint32(StateReconnecting))
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
