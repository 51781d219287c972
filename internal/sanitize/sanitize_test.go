package sanitize

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"main/internal/schema"
)

func TestSanitizeValid(t *testing.T) {
	got, err := Sanitize(schema.RawTick{
		Timestamp: float64(1700000000123),
		Open:      "42000.5",
		High:      json.Number("42100.1"),
		Low:       float32(41900),
		Close:     int64(42050),
		Volume:    "12.5",
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1700000000123, got.Timestamp)
	assert.EqualValues(t, 42000.5, got.Open)
	assert.EqualValues(t, 42100.1, got.High)
	assert.EqualValues(t, 41900, got.Low)
	assert.EqualValues(t, 42050, got.Close)
	assert.EqualValues(t, 12.5, got.Volume)
}

func TestSanitizeMissingVolumeDefaultsToZero(t *testing.T) {
	got, err := Sanitize(schema.RawTick{
		Timestamp: float64(1700000000123),
		Open:      "1.5",
		High:      "2.0",
		Low:       "1.0",
		Close:     "1.8",
		Volume:    nil,
	})
	require.NoError(t, err)
	assert.Zero(t, got.Volume)
	assert.EqualValues(t, 1.8, got.Close)
}

func TestSanitizeRejects(t *testing.T) {
	valid := func() schema.RawTick {
		return schema.RawTick{
			Timestamp: float64(1700000000123),
			Open:      "1.5",
			High:      "2.0",
			Low:       "1.0",
			Close:     "1.8",
			Volume:    "3",
		}
	}

	testCases := []struct {
		desc   string
		mutate func(*schema.RawTick)
		want   error
	}{
		{"missing timestamp", func(r *schema.RawTick) { r.Timestamp = nil }, ErrMissingField},
		{"null close", func(r *schema.RawTick) { r.Close = "null" }, ErrMissingField},
		{"garbage open", func(r *schema.RawTick) { r.Open = "abc" }, ErrBadNumber},
		{"nan high", func(r *schema.RawTick) { r.High = math.NaN() }, ErrBadNumber},
		{"inf low", func(r *schema.RawTick) { r.Low = math.Inf(1) }, ErrBadNumber},
		{"zero price", func(r *schema.RawTick) { r.Close = "0" }, ErrZeroPrice},
		{"zero timestamp", func(r *schema.RawTick) { r.Timestamp = float64(0) }, ErrZeroPrice},
		{"unsupported shape", func(r *schema.RawTick) { r.Open = []any{1, 2} }, ErrBadNumber},
		{"bad volume", func(r *schema.RawTick) { r.Volume = "abc" }, ErrBadNumber},
	}
	for _, tc := range testCases {
		t.Run(tc.desc, func(t *testing.T) {
			raw := valid()
			tc.mutate(&raw)
			got, err := Sanitize(raw)
			require.ErrorIs(t, err, tc.want)
			assert.Equal(t, schema.Tick{}, got, "a rejected record must not leak partial values")
		})
	}
}

// A malformed record is rejected whole and leaves no trace: the next valid
// record sanitizes exactly as if the bad one never arrived.
func TestSanitizeRejectDoesNotCorruptNextRecord(t *testing.T) {
	_, err := Sanitize(schema.RawTick{
		Timestamp: nil,
		Open:      "abc",
		High:      float64(1),
		Low:       float64(1),
		Close:     float64(1),
		Volume:    float64(1),
	})
	require.Error(t, err)

	got, err := Sanitize(schema.RawTick{
		Timestamp: float64(5),
		Open:      float64(1),
		High:      float64(2),
		Low:       float64(1),
		Close:     float64(2),
		Volume:    float64(7),
	})
	require.NoError(t, err)
	assert.Equal(t, schema.Tick{Timestamp: 5, Open: 1, High: 2, Low: 1, Close: 2, Volume: 7}, got)
}

func TestSanitizeIdempotent(t *testing.T) {
	first, err := Sanitize(schema.RawTick{
		Timestamp: "1700000000123",
		Open:      "42000.5",
		High:      "42100.1",
		Low:       "41900.2",
		Close:     "42050.9",
		Volume:    "12.5",
	})
	require.NoError(t, err)

	second, err := Sanitize(schema.RawTick{
		Timestamp: first.Timestamp,
		Open:      first.Open,
		High:      first.High,
		Low:       first.Low,
		Close:     first.Close,
		Volume:    first.Volume,
	})
	require.NoError(t, err)
	assert.Equal(t, first, second)
}
