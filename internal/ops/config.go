package ops

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/yanun0323/errors"

	"main/internal/breaker"
	"main/internal/feed"
	"main/internal/ringbuf"
	"main/internal/stream"
	"main/pkg/conn"
)

// FileConfig mirrors the JSON config layout.
type FileConfig struct {
	Exchange  ExchangeConfig  `json:"exchange"`
	Shards    []ShardConfig   `json:"shards"`
	Ring      RingConfig      `json:"ring"`
	Stream    StreamConfig    `json:"stream"`
	Feed      FeedConfig      `json:"feed"`
	Breaker   breaker.Config  `json:"breaker"`
	Reconcile ReconcileConfig `json:"reconcile"`
	Profiling ProfilingConfig `json:"profiling"`
}

// ExchangeConfig locates the streaming endpoint.
type ExchangeConfig struct {
	URL           string `json:"url"`
	KlineInterval string `json:"klineInterval"`
}

// ShardConfig binds a symbol set to one connection and one ring segment.
type ShardConfig struct {
	ID      int      `json:"id"`
	Symbols []string `json:"symbols"`
	Ring    string   `json:"ring"`
}

// RingConfig sizes the shared-memory segments.
type RingConfig struct {
	Dir          string  `json:"dir"`
	NumSlots     uint64  `json:"numSlots"`
	SafetyMargin uint64  `json:"safetyMargin"`
	JumpFraction float64 `json:"jumpFraction"`
}

// StreamConfig defines reconnect and heartbeat behavior.
type StreamConfig struct {
	BaseDelaySeconds      int     `json:"baseDelaySeconds"`
	MaxDelaySeconds       int     `json:"maxDelaySeconds"`
	Jitter                float64 `json:"jitter"`
	HeartbeatSeconds      int     `json:"heartbeatSeconds"`
	ReceiveTimeoutSeconds int     `json:"receiveTimeoutSeconds"`
}

// FeedConfig defines per-shard failure handling.
type FeedConfig struct {
	MaxConsecutiveErrors int `json:"maxConsecutiveErrors"`
}

// ReconcileConfig paces the orchestrator and locates its cache database and
// the authoritative account-state endpoint.
type ReconcileConfig struct {
	IntervalSeconds int         `json:"intervalSeconds"`
	AccountURL      string      `json:"accountUrl"`
	Database        conn.Option `json:"database"`
}

// ProfilingConfig enables the continuous profiler.
type ProfilingConfig struct {
	Enabled       bool   `json:"enabled"`
	ServerAddress string `json:"serverAddress"`
}

// Loaded is the resolved configuration ready for use.
type Loaded struct {
	ExchangeURL       string
	KlineInterval     string
	Shards            []ShardConfig
	Ring              ringbuf.Config
	Backoff           stream.Backoff
	HeartbeatTimeout  time.Duration
	ReceiveTimeout    time.Duration
	MaxConsecutive    int
	Breaker           breaker.Config
	ReconcileInterval time.Duration
	AccountURL        string
	Database          conn.Option
	Profiling         ProfilingConfig
}

// Load reads a JSON config file and validates it.
func Load(path string) (Loaded, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Loaded{}, errors.Wrap(err, "read config")
	}
	var cfg FileConfig
	if err := json.Unmarshal(data, &cfg); err != nil {
		return Loaded{}, errors.Wrap(err, "parse config")
	}
	return resolve(cfg)
}

func resolve(cfg FileConfig) (Loaded, error) {
	if cfg.Exchange.URL == "" {
		return Loaded{}, fmt.Errorf("exchange url is empty")
	}
	if len(cfg.Shards) == 0 {
		return Loaded{}, fmt.Errorf("no shards configured")
	}

	ids := make(map[int]struct{}, len(cfg.Shards))
	rings := make(map[string]struct{}, len(cfg.Shards))
	for _, shard := range cfg.Shards {
		if len(shard.Symbols) == 0 {
			return Loaded{}, fmt.Errorf("shard %d has no symbols", shard.ID)
		}
		if len(shard.Symbols) > feed.MaxSymbolsPerShard {
			return Loaded{}, fmt.Errorf("shard %d exceeds %d symbols", shard.ID, feed.MaxSymbolsPerShard)
		}
		if shard.Ring == "" {
			return Loaded{}, fmt.Errorf("shard %d has no ring name", shard.ID)
		}
		if _, dup := ids[shard.ID]; dup {
			return Loaded{}, fmt.Errorf("duplicate shard id %d", shard.ID)
		}
		if _, dup := rings[shard.Ring]; dup {
			return Loaded{}, fmt.Errorf("duplicate ring name %s", shard.Ring)
		}
		ids[shard.ID] = struct{}{}
		rings[shard.Ring] = struct{}{}
	}

	loaded := Loaded{
		ExchangeURL:   cfg.Exchange.URL,
		KlineInterval: cfg.Exchange.KlineInterval,
		Shards:        cfg.Shards,
		Ring: ringbuf.Config{
			Dir:          cfg.Ring.Dir,
			NumSlots:     cfg.Ring.NumSlots,
			SafetyMargin: cfg.Ring.SafetyMargin,
			JumpFraction: cfg.Ring.JumpFraction,
		},
		Backoff:           stream.DefaultBackoff(),
		HeartbeatTimeout:  stream.DefaultHeartbeatTimeout,
		ReceiveTimeout:    stream.DefaultReceiveTimeout,
		MaxConsecutive:    cfg.Feed.MaxConsecutiveErrors,
		Breaker:           cfg.Breaker,
		ReconcileInterval: 5 * time.Minute,
		AccountURL:        cfg.Reconcile.AccountURL,
		Database:          cfg.Reconcile.Database,
		Profiling:         cfg.Profiling,
	}
	if loaded.Ring.SafetyMargin == 0 {
		loaded.Ring.SafetyMargin = ringbuf.DefaultSafetyMargin
	}

	if cfg.Stream.BaseDelaySeconds > 0 {
		loaded.Backoff.Base = time.Duration(cfg.Stream.BaseDelaySeconds) * time.Second
	}
	if cfg.Stream.MaxDelaySeconds > 0 {
		loaded.Backoff.Max = time.Duration(cfg.Stream.MaxDelaySeconds) * time.Second
	}
	loaded.Backoff.Jitter = cfg.Stream.Jitter
	if cfg.Stream.HeartbeatSeconds > 0 {
		loaded.HeartbeatTimeout = time.Duration(cfg.Stream.HeartbeatSeconds) * time.Second
	}
	if cfg.Stream.ReceiveTimeoutSeconds > 0 {
		loaded.ReceiveTimeout = time.Duration(cfg.Stream.ReceiveTimeoutSeconds) * time.Second
	}
	if cfg.Reconcile.IntervalSeconds > 0 {
		loaded.ReconcileInterval = time.Duration(cfg.Reconcile.IntervalSeconds) * time.Second
	}

	if loaded.Breaker.WarningAt == 0 && loaded.Breaker.ThrottledAt == 0 && loaded.Breaker.BlockedAt == 0 {
		bypass := loaded.Breaker.Bypass
		loaded.Breaker = breaker.DefaultConfig()
		loaded.Breaker.Bypass = bypass
	}
	if _, err := breaker.New(loaded.Breaker); err != nil {
		return Loaded{}, fmt.Errorf("breaker thresholds must be strictly ascending")
	}

	return loaded, nil
}
