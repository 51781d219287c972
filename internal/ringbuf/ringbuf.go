package ringbuf

import (
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"unsafe"

	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"
	"golang.org/x/sys/unix"

	"main/internal/codec"
	"main/internal/obs"
	"main/internal/schema"
	"main/pkg/exception"
)

const (
	// DefaultDir is where segments live. Files under /dev/shm are plain
	// tmpfs-backed files, so a MAP_SHARED mapping behaves as POSIX shared
	// memory and outlives any single process.
	DefaultDir = "/dev/shm"

	DefaultNumSlots     = 1 << 16
	DefaultSafetyMargin = 10
	DefaultJumpFraction = 0.5

	headerSize = 32

	offMagic = 0
	offSlots = 8
	offWrite = 16
	offRead  = 24

	magic = uint64(0x6d64727467723031) // "mdrtgr01"
)

// Config sizes and locates one shared-memory segment.
type Config struct {
	// Name is the segment file name, unique per writer.
	Name string
	// Dir overrides the segment directory. Optional; default DefaultDir.
	Dir string
	// NumSlots is the slot count. Optional; default DefaultNumSlots.
	// Ignored by Attach, which trusts the segment header.
	NumSlots uint64
	// SafetyMargin is how close the writer may get to a full lap before it
	// jumps the reader forward. Zero means the writer only jumps on a
	// completely full lap; ops.Load applies DefaultSafetyMargin.
	SafetyMargin uint64
	// JumpFraction is the fraction of the buffer the reader keeps after an
	// overrun jump. Optional; default DefaultJumpFraction. Tunable, not a
	// correctness constant.
	JumpFraction float64
	// Metrics receives capacity/throughput counters. Optional.
	Metrics *obs.Metrics
}

func (cfg *Config) init() error {
	if cfg.Name == "" {
		return errors.Wrap(exception.ErrInvalidArgument, "ring: empty name")
	}
	if cfg.Dir == "" {
		cfg.Dir = DefaultDir
	}
	if cfg.NumSlots == 0 {
		cfg.NumSlots = DefaultNumSlots
	}
	if cfg.SafetyMargin >= cfg.NumSlots {
		return errors.Wrap(exception.ErrInvalidArgument, "ring: safety margin must be below slot count")
	}
	if cfg.JumpFraction == 0 {
		cfg.JumpFraction = DefaultJumpFraction
	}
	if cfg.JumpFraction <= 0 || cfg.JumpFraction >= 1 {
		return errors.Wrap(exception.ErrInvalidArgument, "ring: jump fraction must be in (0,1)")
	}
	// the capacity threshold must sit above the jump target, otherwise the
	// jump would move the read cursor backwards (or underflow it) whenever
	// it fires before jumpSlots records exist
	if cfg.NumSlots-cfg.SafetyMargin <= jumpWidth(cfg.NumSlots, cfg.JumpFraction) {
		return errors.Wrap(exception.ErrInvalidArgument, "ring: safety margin and jump fraction overlap")
	}
	return nil
}

func jumpWidth(numSlots uint64, fraction float64) uint64 {
	jump := uint64(float64(numSlots) * fraction)
	if jump == 0 {
		jump = 1
	}
	return jump
}

func (cfg Config) path() string {
	return filepath.Join(cfg.Dir, cfg.Name)
}

func (cfg Config) segmentSize() int {
	return headerSize + int(cfg.NumSlots)*codec.TickPayloadSize
}

// Buffer is a fixed-slot single-writer single-reader ring over a shared
// memory segment. Cursors are unbounded counters in the segment header,
// touched only through 64-bit atomics; slot addressing is cursor mod slots.
type Buffer struct {
	name      string
	path      string
	data      []byte
	numSlots  uint64
	safety    uint64
	jumpSlots uint64
	metrics   *obs.Metrics
}

// Create allocates a new segment and explicitly zeroes both cursors.
// Left-over memory content is never trusted as cursor state.
func Create(cfg Config) (*Buffer, error) {
	if err := cfg.init(); err != nil {
		return nil, err
	}

	fd, err := unix.Open(cfg.path(), unix.O_RDWR|unix.O_CREAT|unix.O_EXCL, 0o644)
	if err != nil {
		if err == unix.EEXIST {
			return nil, exception.ErrRingExists
		}
		return nil, errors.Wrap(err, "ring: create segment")
	}

	size := cfg.segmentSize()
	if err := unix.Ftruncate(fd, int64(size)); err != nil {
		_ = unix.Close(fd)
		_ = os.Remove(cfg.path())
		return nil, errors.Wrap(err, "ring: size segment")
	}

	b, err := mapSegment(fd, cfg, size)
	if err != nil {
		_ = os.Remove(cfg.path())
		return nil, err
	}

	atomic.StoreUint64(b.u64(offSlots), cfg.NumSlots)
	atomic.StoreUint64(b.u64(offWrite), 0)
	atomic.StoreUint64(b.u64(offRead), 0)
	// magic last, so attachers never see a half-built header
	atomic.StoreUint64(b.u64(offMagic), magic)

	return b, nil
}

// Attach maps an existing segment by name without touching cursor values.
func Attach(cfg Config) (*Buffer, error) {
	if err := cfg.init(); err != nil {
		return nil, err
	}

	fd, err := unix.Open(cfg.path(), unix.O_RDWR, 0)
	if err != nil {
		if err == unix.ENOENT {
			return nil, exception.ErrRingNotFound
		}
		return nil, errors.Wrap(err, "ring: open segment")
	}

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		_ = unix.Close(fd)
		return nil, errors.Wrap(err, "ring: stat segment")
	}
	if st.Size < headerSize {
		_ = unix.Close(fd)
		return nil, exception.ErrRingCorrupt
	}

	probe := cfg
	probe.NumSlots = uint64(st.Size-headerSize) / codec.TickPayloadSize
	if probe.NumSlots == 0 || int64(probe.segmentSize()) != st.Size {
		_ = unix.Close(fd)
		return nil, exception.ErrRingCorrupt
	}

	b, err := mapSegment(fd, probe, int(st.Size))
	if err != nil {
		return nil, err
	}

	if atomic.LoadUint64(b.u64(offMagic)) != magic ||
		atomic.LoadUint64(b.u64(offSlots)) != probe.NumSlots {
		_ = b.Close()
		return nil, exception.ErrRingCorrupt
	}
	return b, nil
}

// Open attaches when the segment exists and creates it otherwise, so the
// first process to start owns initialization.
func Open(cfg Config) (*Buffer, error) {
	b, err := Attach(cfg)
	if err == exception.ErrRingNotFound {
		b, err = Create(cfg)
		if err == exception.ErrRingExists {
			return Attach(cfg)
		}
	}
	return b, err
}

func mapSegment(fd int, cfg Config, size int) (*Buffer, error) {
	data, err := unix.Mmap(fd, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	// the mapping keeps the segment alive; the descriptor is not needed
	_ = unix.Close(fd)
	if err != nil {
		return nil, errors.Wrap(err, "ring: mmap segment")
	}

	return &Buffer{
		name:      cfg.Name,
		path:      cfg.path(),
		data:      data,
		numSlots:  cfg.NumSlots,
		safety:    cfg.SafetyMargin,
		jumpSlots: jumpWidth(cfg.NumSlots, cfg.JumpFraction),
		metrics:   cfg.Metrics,
	}, nil
}

// Write encodes one sanitized tick into the next slot. Input validity is the
// sanitizer's job; Write only handles capacity. When the reader has fallen
// within the safety margin of a full lap, the read cursor is jumped forward
// so that exactly jumpSlots records remain pending after this write. That is
// deliberate, logged data loss, never a silent overwrite of a slot the
// reader is still addressing.
func (b *Buffer) Write(t schema.Tick) {
	wc := atomic.LoadUint64(b.u64(offWrite))
	rc := atomic.LoadUint64(b.u64(offRead))

	if pending := wc - rc; pending >= b.numSlots-b.safety {
		// only ever move the reader forward; an attach-derived geometry can
		// trip the threshold before jumpSlots records exist, and the jump
		// must not underflow the cursor or revisit consumed slots
		if wc+1 > b.jumpSlots && wc+1-b.jumpSlots > rc {
			jumped := wc + 1 - b.jumpSlots
			atomic.StoreUint64(b.u64(offRead), jumped)
			b.metrics.AddCapacityEvent()
			logs.Errorf("ring %s: consumer too slow, jumped read cursor %d -> %d (dropped %d records)",
				b.name, rc, jumped, jumped-rc)
		}
	}

	slot := b.slot(wc)
	codec.EncodeTick(slot, t)
	atomic.StoreUint64(b.u64(offWrite), wc+1)
	b.metrics.AddTickWritten()
}

// Read decodes the slot under the read cursor, or reports no new data.
func (b *Buffer) Read() (schema.Tick, bool) {
	rc := atomic.LoadUint64(b.u64(offRead))
	wc := atomic.LoadUint64(b.u64(offWrite))
	if rc == wc {
		return schema.Tick{}, false
	}

	t, ok := codec.DecodeTick(b.slot(rc))
	if !ok {
		return schema.Tick{}, false
	}
	atomic.StoreUint64(b.u64(offRead), rc+1)
	b.metrics.AddTickRead()
	return t, true
}

// Pending reports the unread record count.
func (b *Buffer) Pending() uint64 {
	wc := atomic.LoadUint64(b.u64(offWrite))
	rc := atomic.LoadUint64(b.u64(offRead))
	return wc - rc
}

// Cursors returns the raw unbounded cursor values.
func (b *Buffer) Cursors() (write, read uint64) {
	return atomic.LoadUint64(b.u64(offWrite)), atomic.LoadUint64(b.u64(offRead))
}

// NumSlots reports the slot count of the mapped segment.
func (b *Buffer) NumSlots() uint64 {
	return b.numSlots
}

// Name reports the segment name.
func (b *Buffer) Name() string {
	return b.name
}

// Audit validates the header invariants. It returns a descriptive error when
// the segment no longer looks like a ring this code wrote.
func (b *Buffer) Audit() error {
	if b == nil || b.data == nil {
		return exception.ErrRingClosed
	}
	if atomic.LoadUint64(b.u64(offMagic)) != magic {
		return exception.ErrRingCorrupt
	}
	wc, rc := b.Cursors()
	if rc > wc {
		return errors.Wrap(exception.ErrRingCorrupt, fmt.Sprintf("read cursor %d ahead of write cursor %d", rc, wc))
	}
	if wc-rc > b.numSlots {
		return errors.Wrap(exception.ErrRingCorrupt, fmt.Sprintf("pending %d exceeds %d slots", wc-rc, b.numSlots))
	}
	return nil
}

// Close unmaps the segment. The segment itself stays alive for other
// processes until Unlink removes it.
func (b *Buffer) Close() error {
	if b == nil || b.data == nil {
		return nil
	}
	data := b.data
	b.data = nil
	return unix.Munmap(data)
}

// Unlink removes the segment file from the shared directory.
func (b *Buffer) Unlink() error {
	return os.Remove(b.path)
}

func (b *Buffer) slot(cursor uint64) []byte {
	off := headerSize + int(cursor%b.numSlots)*codec.TickPayloadSize
	return b.data[off : off+codec.TickPayloadSize]
}

// u64 returns an atomically addressable pointer into the header. The mmap
// base is page aligned and all offsets are multiples of 8.
func (b *Buffer) u64(off int) *uint64 {
	return (*uint64)(unsafe.Pointer(&b.data[off]))
}
