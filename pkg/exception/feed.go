package exception

import "github.com/yanun0323/errors"

// Feed errors
var (
	// ErrFrameSkipped marks a frame that carries no tick data (acks,
	// heartbeats); the loop drops it silently.
	ErrFrameSkipped = errors.New("feed: frame skipped")

	// ErrUnknownShape marks a frame the parser does not recognize.
	ErrUnknownShape = errors.New("feed: unknown message shape")

	// ErrShardAborted is returned when a shard gave up after too many
	// consecutive unexpected errors.
	ErrShardAborted = errors.New("feed: shard aborted")

	// ErrTooManySymbols is returned when a shard exceeds the per-connection
	// symbol limit.
	ErrTooManySymbols = errors.New("feed: too many symbols for one shard")
)
