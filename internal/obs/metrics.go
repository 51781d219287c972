package obs

import "sync/atomic"

// Metrics collects lightweight counters for the data plane. All methods are
// nil-safe so components can run without observability wired.
type Metrics struct {
	ticksWritten   uint64
	ticksRead      uint64
	rejects        uint64
	framesSkipped  uint64
	capacityEvents uint64
	reconnects     uint64
	shardAborts    uint64
	breakerDenials uint64
	queueDrops     uint64
	corrections    uint64
}

// Snapshot is a point-in-time view of the counters.
type Snapshot struct {
	TicksWritten   uint64
	TicksRead      uint64
	Rejects        uint64
	FramesSkipped  uint64
	CapacityEvents uint64
	Reconnects     uint64
	ShardAborts    uint64
	BreakerDenials uint64
	QueueDrops     uint64
	Corrections    uint64
}

// NewMetrics allocates a zeroed metrics set.
func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) AddTickWritten() {
	if m != nil {
		atomic.AddUint64(&m.ticksWritten, 1)
	}
}

func (m *Metrics) AddTickRead() {
	if m != nil {
		atomic.AddUint64(&m.ticksRead, 1)
	}
}

func (m *Metrics) AddReject() {
	if m != nil {
		atomic.AddUint64(&m.rejects, 1)
	}
}

func (m *Metrics) AddFrameSkipped() {
	if m != nil {
		atomic.AddUint64(&m.framesSkipped, 1)
	}
}

func (m *Metrics) AddCapacityEvent() {
	if m != nil {
		atomic.AddUint64(&m.capacityEvents, 1)
	}
}

func (m *Metrics) AddReconnect() {
	if m != nil {
		atomic.AddUint64(&m.reconnects, 1)
	}
}

func (m *Metrics) AddShardAbort() {
	if m != nil {
		atomic.AddUint64(&m.shardAborts, 1)
	}
}

func (m *Metrics) AddBreakerDenial() {
	if m != nil {
		atomic.AddUint64(&m.breakerDenials, 1)
	}
}

func (m *Metrics) AddQueueDrop() {
	if m != nil {
		atomic.AddUint64(&m.queueDrops, 1)
	}
}

func (m *Metrics) AddCorrection() {
	if m != nil {
		atomic.AddUint64(&m.corrections, 1)
	}
}

// Snapshot captures the current counter values.
func (m *Metrics) Snapshot() Snapshot {
	if m == nil {
		return Snapshot{}
	}
	return Snapshot{
		TicksWritten:   atomic.LoadUint64(&m.ticksWritten),
		TicksRead:      atomic.LoadUint64(&m.ticksRead),
		Rejects:        atomic.LoadUint64(&m.rejects),
		FramesSkipped:  atomic.LoadUint64(&m.framesSkipped),
		CapacityEvents: atomic.LoadUint64(&m.capacityEvents),
		Reconnects:     atomic.LoadUint64(&m.reconnects),
		ShardAborts:    atomic.LoadUint64(&m.shardAborts),
		BreakerDenials: atomic.LoadUint64(&m.breakerDenials),
		QueueDrops:     atomic.LoadUint64(&m.queueDrops),
		Corrections:    atomic.LoadUint64(&m.corrections),
	}
}
