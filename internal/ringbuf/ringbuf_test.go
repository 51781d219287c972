package ringbuf

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/obs"
	"main/internal/schema"
	"main/pkg/exception"
)

func tick(i int) schema.Tick {
	return schema.Tick{
		Timestamp: float64(i),
		Open:      100,
		High:      101,
		Low:       99,
		Close:     100.5,
		Volume:    1,
	}
}

func TestRingFIFO(t *testing.T) {
	b, err := Create(Config{Name: "fifo", Dir: t.TempDir(), NumSlots: 16})
	require.NoError(t, err)
	defer b.Close()

	if _, ok := b.Read(); ok {
		t.Fatal("empty ring should report no data")
	}

	for i := 1; i <= 5; i++ {
		b.Write(tick(i))
	}
	require.EqualValues(t, 5, b.Pending())

	for i := 1; i <= 5; i++ {
		got, ok := b.Read()
		require.True(t, ok)
		assert.EqualValues(t, i, got.Timestamp, "records must come out in write order")
	}

	if _, ok := b.Read(); ok {
		t.Fatal("drained ring should report no data")
	}
	require.NoError(t, b.Audit())
}

func TestRingOverrunJumpsReader(t *testing.T) {
	metrics := obs.NewMetrics()
	b, err := Create(Config{
		Name:         "overrun",
		Dir:          t.TempDir(),
		NumSlots:     10,
		SafetyMargin: 0,
		JumpFraction: 0.5,
		Metrics:      metrics,
	})
	require.NoError(t, err)
	defer b.Close()

	for i := 1; i <= 10; i++ {
		b.Write(tick(i))
	}
	require.EqualValues(t, 10, b.Pending())
	require.EqualValues(t, 0, metrics.Snapshot().CapacityEvents)

	// the 11th write fills the lap, so the reader jumps to half a buffer
	// behind the writer before the record lands
	b.Write(tick(11))
	require.EqualValues(t, 5, b.Pending())
	require.EqualValues(t, 1, metrics.Snapshot().CapacityEvents)

	b.Write(tick(12))
	require.EqualValues(t, 6, b.Pending())

	// records 1-6 are gone; the oldest surviving record is the 7th
	for i := 7; i <= 12; i++ {
		got, ok := b.Read()
		require.True(t, ok)
		assert.EqualValues(t, i, got.Timestamp)
	}
	if _, ok := b.Read(); ok {
		t.Fatal("ring should be drained after the jump window")
	}
	require.NoError(t, b.Audit())
}

func TestRingSafetyMarginTriggersEarly(t *testing.T) {
	b, err := Create(Config{
		Name:         "margin",
		Dir:          t.TempDir(),
		NumSlots:     10,
		SafetyMargin: 2,
	})
	require.NoError(t, err)
	defer b.Close()

	for i := 1; i <= 8; i++ {
		b.Write(tick(i))
	}
	require.EqualValues(t, 8, b.Pending())

	// pending has reached numSlots-margin, so the next write jumps
	b.Write(tick(9))
	require.EqualValues(t, 5, b.Pending())

	got, ok := b.Read()
	require.True(t, ok)
	require.EqualValues(t, 5, got.Timestamp)
}

// An attacher can bring a safety margin the segment's slot count was never
// validated against: the threshold then fires before jumpSlots records
// exist. The jump must wait until it can move the reader forward; the read
// cursor may never underflow or walk backwards over consumed slots.
func TestRingEarlyCapacityTriggerKeepsCursorsOrdered(t *testing.T) {
	dir := t.TempDir()

	b, err := Create(Config{Name: "early", Dir: dir, NumSlots: 16})
	require.NoError(t, err)
	require.NoError(t, b.Close())

	w, err := Attach(Config{Name: "early", Dir: dir, SafetyMargin: 10})
	require.NoError(t, err)
	defer w.Close()

	for i := 1; i <= 12; i++ {
		w.Write(tick(i))
		wc, rc := w.Cursors()
		if rc > wc {
			t.Fatalf("after write %d: read cursor %d ahead of write cursor %d", i, rc, wc)
		}
		require.NoError(t, w.Audit(), "after write %d", i)
	}

	// pending settles at the jump width (16/2); records 1-4 were dropped
	require.EqualValues(t, 8, w.Pending())
	for i := 5; i <= 12; i++ {
		got, ok := w.Read()
		require.True(t, ok)
		assert.EqualValues(t, i, got.Timestamp)
	}
}

func TestRingCursorsAreUnbounded(t *testing.T) {
	b, err := Create(Config{Name: "laps", Dir: t.TempDir(), NumSlots: 4})
	require.NoError(t, err)
	defer b.Close()

	// write/read in lockstep for several laps; cursors keep counting up
	for i := 1; i <= 20; i++ {
		b.Write(tick(i))
		got, ok := b.Read()
		require.True(t, ok)
		require.EqualValues(t, i, got.Timestamp)
	}
	wc, rc := b.Cursors()
	assert.EqualValues(t, 20, wc)
	assert.EqualValues(t, 20, rc)
}

func TestRingCreateZeroesAttachPreserves(t *testing.T) {
	dir := t.TempDir()

	b, err := Create(Config{Name: "seg", Dir: dir, NumSlots: 8})
	require.NoError(t, err)

	wc, rc := b.Cursors()
	require.Zero(t, wc, "create must zero the write cursor")
	require.Zero(t, rc, "create must zero the read cursor")

	for i := 1; i <= 3; i++ {
		b.Write(tick(i))
	}
	require.NoError(t, b.Close())

	// a second process attaches to the same segment and picks up where the
	// writer left off
	b2, err := Attach(Config{Name: "seg", Dir: dir})
	require.NoError(t, err)
	defer b2.Close()

	require.EqualValues(t, 8, b2.NumSlots(), "attach derives the slot count from the segment")
	wc, rc = b2.Cursors()
	require.EqualValues(t, 3, wc)
	require.EqualValues(t, 0, rc)

	for i := 1; i <= 3; i++ {
		got, ok := b2.Read()
		require.True(t, ok)
		require.EqualValues(t, i, got.Timestamp)
	}
}

func TestRingCreateExistsAttachMissing(t *testing.T) {
	dir := t.TempDir()

	b, err := Create(Config{Name: "dup", Dir: dir, NumSlots: 8})
	require.NoError(t, err)
	defer b.Close()

	_, err = Create(Config{Name: "dup", Dir: dir, NumSlots: 8})
	require.ErrorIs(t, err, exception.ErrRingExists)

	_, err = Attach(Config{Name: "missing", Dir: dir})
	require.ErrorIs(t, err, exception.ErrRingNotFound)
}

func TestRingOpenCreatesThenAttaches(t *testing.T) {
	dir := t.TempDir()

	b, err := Open(Config{Name: "open", Dir: dir, NumSlots: 8})
	require.NoError(t, err)
	b.Write(tick(1))
	require.NoError(t, b.Close())

	b2, err := Open(Config{Name: "open", Dir: dir, NumSlots: 8})
	require.NoError(t, err)
	defer b2.Close()
	require.EqualValues(t, 1, b2.Pending())
}

func TestRingConfigValidation(t *testing.T) {
	dir := t.TempDir()

	testCases := []struct {
		desc string
		cfg  Config
	}{
		{"empty name", Config{Dir: dir}},
		{"margin at slot count", Config{Name: "x", Dir: dir, NumSlots: 10, SafetyMargin: 10}},
		{"jump fraction too high", Config{Name: "x", Dir: dir, NumSlots: 10, JumpFraction: 1.5}},
		{"negative jump fraction", Config{Name: "x", Dir: dir, NumSlots: 10, JumpFraction: -0.5}},
		{"margin overlaps jump window", Config{Name: "x", Dir: dir, NumSlots: 16, SafetyMargin: 10, JumpFraction: 0.5}},
		{"margin overlaps wide jump", Config{Name: "x", Dir: dir, NumSlots: 100, SafetyMargin: 70}},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			if _, err := Create(tc.cfg); !errors.Is(err, exception.ErrInvalidArgument) {
				t.Fatalf("expected invalid argument, got %v", err)
			}
		})
	}
}

func TestRingAuditClosed(t *testing.T) {
	b, err := Create(Config{Name: "closed", Dir: t.TempDir(), NumSlots: 8})
	require.NoError(t, err)
	require.NoError(t, b.Audit())
	require.NoError(t, b.Close())
	require.ErrorIs(t, b.Audit(), exception.ErrRingClosed)
}
