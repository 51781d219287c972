package feed

import (
	"sync"

	"github.com/yanun0323/errors"

	"main/internal/stream"
	"main/pkg/exception"
)

// Status is one shard's state snapshot.
type Status struct {
	ID          int
	State       ShardState
	Conn        stream.State
	SymbolCount int
	RingName    string
	RingPending uint64
}

// Registry tracks running shards so the orchestrator can audit them.
type Registry struct {
	mu     sync.Mutex
	shards map[int]*Shard
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{shards: make(map[int]*Shard)}
}

// Add registers a shard by id.
func (r *Registry) Add(s *Shard) error {
	if s == nil {
		return exception.ErrNilInstance
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.shards[s.ID()]; ok {
		return errors.Wrap(exception.ErrInvalidArgument, "duplicate shard id")
	}
	r.shards[s.ID()] = s
	return nil
}

// Remove drops a shard from the registry.
func (r *Registry) Remove(id int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.shards, id)
}

// Get returns a shard by id.
func (r *Registry) Get(id int) (*Shard, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.shards[id]
	return s, ok
}

// Snapshot captures every shard's status.
func (r *Registry) Snapshot() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	statuses := make([]Status, 0, len(r.shards))
	for _, s := range r.shards {
		statuses = append(statuses, Status{
			ID:          s.ID(),
			State:       s.State(),
			Conn:        s.ConnState(),
			SymbolCount: len(s.symbols),
			RingName:    s.ring.Name(),
			RingPending: s.ring.Pending(),
		})
	}
	return statuses
}
