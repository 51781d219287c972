package feed

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/yanun0323/logs"

	"main/internal/obs"
	"main/internal/ringbuf"
	"main/internal/sanitize"
	"main/internal/stream"
	"main/pkg/exception"
)

// MaxSymbolsPerShard bounds one subscription within exchange protocol
// limits and keeps a disconnect's blast radius to one shard.
const MaxSymbolsPerShard = 50

const DefaultMaxConsecutiveErrs = 5

// ShardState is the shard lifecycle state.
type ShardState uint32

const (
	ShardIdle ShardState = iota
	ShardRunning
	ShardStopped
	ShardAborted
)

func (s ShardState) String() string {
	switch s {
	case ShardIdle:
		return "IDLE"
	case ShardRunning:
		return "RUNNING"
	case ShardStopped:
		return "STOPPED"
	case ShardAborted:
		return "ABORTED"
	default:
		return "UNKNOWN"
	}
}

// Option configures a shard feed.
type Option struct {
	// ReceiveTimeout bounds each blocking receive. Optional; default 5s.
	ReceiveTimeout time.Duration
	// MaxConsecutiveErrs aborts the shard past this many unexpected errors
	// in a row. Optional; default 5.
	MaxConsecutiveErrs int
	// HealthCheckInterval paces the heartbeat monitor. Optional.
	HealthCheckInterval time.Duration
	// Metrics receives feed counters. Optional.
	Metrics *obs.Metrics
}

func (opt *Option) init() {
	if opt.ReceiveTimeout <= 0 {
		opt.ReceiveTimeout = stream.DefaultReceiveTimeout
	}
	if opt.MaxConsecutiveErrs <= 0 {
		opt.MaxConsecutiveErrs = DefaultMaxConsecutiveErrs
	}
}

// Shard binds a bounded symbol set to one connection and pumps sanitized
// ticks into its ring buffer.
type Shard struct {
	id      int
	symbols []string
	mgr     *stream.Manager
	parser  Parser
	ring    *ringbuf.Buffer
	opt     Option

	state       atomic.Uint32
	consecutive int
}

// NewShard validates the symbol set and builds a shard.
func NewShard(id int, symbols []string, mgr *stream.Manager, parser Parser, ring *ringbuf.Buffer, option ...Option) (*Shard, error) {
	if len(symbols) == 0 || mgr == nil || parser == nil || ring == nil {
		return nil, exception.ErrInvalidArgument
	}
	if len(symbols) > MaxSymbolsPerShard {
		return nil, exception.ErrTooManySymbols
	}
	var opt Option
	if len(option) != 0 {
		opt = option[0]
	}
	opt.init()
	return &Shard{
		id:      id,
		symbols: append([]string(nil), symbols...),
		mgr:     mgr,
		parser:  parser,
		ring:    ring,
		opt:     opt,
	}, nil
}

// ID reports the shard identifier.
func (s *Shard) ID() int {
	return s.id
}

// Symbols reports the bound symbol set.
func (s *Shard) Symbols() []string {
	return append([]string(nil), s.symbols...)
}

// State reports the shard lifecycle state.
func (s *Shard) State() ShardState {
	return ShardState(s.state.Load())
}

// ConnState reports the underlying connection state.
func (s *Shard) ConnState() stream.State {
	return s.mgr.State()
}

// Ring exposes the shard's buffer for auditing.
func (s *Shard) Ring() *ringbuf.Buffer {
	return s.ring
}

// Run drives the message loop until ctx is done or the shard aborts. The
// loop's first action every iteration is the connection health check, so a
// disconnect at any point is always followed by another reconnect attempt.
func (s *Shard) Run(ctx context.Context) error {
	s.state.Store(uint32(ShardRunning))
	go s.mgr.RunHealthCheck(ctx, s.opt.HealthCheckInterval)

	defer func() {
		_ = s.mgr.Close()
		if s.State() == ShardRunning {
			s.state.Store(uint32(ShardStopped))
		}
	}()

	for {
		if ctx.Err() != nil {
			return nil
		}

		if err := s.step(ctx); err != nil {
			s.consecutive++
			logs.Errorf("shard %d: unexpected error %d/%d: %v",
				s.id, s.consecutive, s.opt.MaxConsecutiveErrs, err)
			if s.consecutive >= s.opt.MaxConsecutiveErrs {
				s.state.Store(uint32(ShardAborted))
				s.opt.Metrics.AddShardAbort()
				return fmt.Errorf("%w: shard %d after %d consecutive errors",
					exception.ErrShardAborted, s.id, s.consecutive)
			}
			continue
		}
		s.consecutive = 0
	}
}

// step runs one loop iteration. Expected outcomes (timeouts, disconnects,
// malformed frames, rejected payloads) are absorbed here and return nil;
// only genuinely unexpected failures count toward the abort threshold.
func (s *Shard) step(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	if err := s.mgr.EnsureConnected(ctx); err != nil {
		// backoff already paced the retry; the loop just goes around
		return nil
	}

	frame, err := s.mgr.Receive(s.opt.ReceiveTimeout)
	if err != nil {
		// timeout means no data; closed means the next iteration reconnects
		return nil
	}

	raw, err := s.parser.Parse(frame)
	if err != nil {
		if errors.Is(err, exception.ErrFrameSkipped) {
			s.opt.Metrics.AddFrameSkipped()
			return nil
		}
		logs.Errorf("shard %d: malformed frame %q: %v", s.id, truncate(frame, 256), err)
		s.opt.Metrics.AddReject()
		return nil
	}

	tick, err := sanitize.Sanitize(raw)
	if err != nil {
		logs.Errorf("shard %d: rejected payload %+v: %v", s.id, raw, err)
		s.opt.Metrics.AddReject()
		return nil
	}

	s.ring.Write(tick)
	return nil
}

// SubscribePayload builds this shard's subscription request.
func (s *Shard) SubscribePayload() ([]byte, error) {
	return s.parser.SubscribeRequest(s.symbols)
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
