package breaker

import (
	"sync"

	"github.com/yanun0323/logs"

	"main/internal/obs"
	"main/pkg/exception"
)

// Severity orders the breaker's escalation levels.
type Severity uint8

const (
	SeverityNormal Severity = iota
	SeverityWarning
	SeverityThrottled
	SeverityBlocked
)

func (s Severity) String() string {
	switch s {
	case SeverityNormal:
		return "NORMAL"
	case SeverityWarning:
		return "WARNING"
	case SeverityThrottled:
		return "THROTTLED"
	case SeverityBlocked:
		return "BLOCKED"
	default:
		return "UNKNOWN"
	}
}

// Priority ranks outbound operations. Forced risk-reducing closes must be
// PriorityCritical: when the breaker is blocked because the exchange API is
// in distress, a position-reducing order is exactly the call that still has
// to get through.
type Priority uint8

const (
	PriorityLow Priority = iota
	PriorityNormal
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "LOW"
	case PriorityNormal:
		return "NORMAL"
	case PriorityHigh:
		return "HIGH"
	case PriorityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// Config defines the escalation thresholds over consecutive failures.
type Config struct {
	// WarningAt, ThrottledAt, BlockedAt are the failure counts at which the
	// severity escalates. They must be strictly ascending.
	WarningAt   int `json:"warningAt"`
	ThrottledAt int `json:"throttledAt"`
	BlockedAt   int `json:"blockedAt"`
	// Bypass lists operation types a CRITICAL call may run while BLOCKED.
	Bypass []string `json:"bypass"`
	// Metrics receives denial counters. Optional.
	Metrics *obs.Metrics `json:"-"`
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{WarningAt: 2, ThrottledAt: 4, BlockedAt: 5}
}

func (cfg Config) validate() error {
	if cfg.WarningAt <= 0 || cfg.ThrottledAt <= cfg.WarningAt || cfg.BlockedAt <= cfg.ThrottledAt {
		return exception.ErrInvalidArgument
	}
	return nil
}

// Breaker gates outbound operations on recent failure history. Severity is
// purely a function of the consecutive-failure count, so transitions need no
// clock. Safe for concurrent callers.
type Breaker struct {
	mu       sync.Mutex
	cfg      Config
	failures int
	bypass   map[string]struct{}
}

// New builds a breaker, or fails on non-ascending thresholds.
func New(cfg Config) (*Breaker, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	bypass := make(map[string]struct{}, len(cfg.Bypass))
	for _, op := range cfg.Bypass {
		bypass[op] = struct{}{}
	}
	return &Breaker{cfg: cfg, bypass: bypass}, nil
}

// Allow decides whether an operation may be attempted right now. A denial
// is binding: the caller must not make the call.
func (b *Breaker) Allow(priority Priority, operation string) bool {
	b.mu.Lock()
	severity := b.severityLocked()
	_, bypassed := b.bypass[operation]
	b.mu.Unlock()

	allowed := false
	switch severity {
	case SeverityNormal, SeverityWarning:
		allowed = true
	case SeverityThrottled:
		allowed = priority >= PriorityHigh
	case SeverityBlocked:
		allowed = priority == PriorityCritical && bypassed
	}

	if !allowed {
		b.cfg.Metrics.AddBreakerDenial()
		logs.Infof("breaker: denied %s %q at %s", priority, operation, severity)
	}
	return allowed
}

// ReportSuccess resets the consecutive-failure count.
func (b *Breaker) ReportSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failures == 0 {
		return
	}
	prev := b.severityLocked()
	b.failures = 0
	if prev != SeverityNormal {
		logs.Infof("breaker: recovered from %s", prev)
	}
}

// ReportFailure records one more consecutive failure.
func (b *Breaker) ReportFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	prev := b.severityLocked()
	b.failures++
	if next := b.severityLocked(); next != prev {
		logs.Errorf("breaker: escalated %s -> %s after %d consecutive failures", prev, next, b.failures)
	}
}

// Severity reports the current escalation level.
func (b *Breaker) Severity() Severity {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.severityLocked()
}

// Failures reports the consecutive-failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

func (b *Breaker) severityLocked() Severity {
	switch {
	case b.failures >= b.cfg.BlockedAt:
		return SeverityBlocked
	case b.failures >= b.cfg.ThrottledAt:
		return SeverityThrottled
	case b.failures >= b.cfg.WarningAt:
		return SeverityWarning
	default:
		return SeverityNormal
	}
}
